package syncer

import (
	"identity-system/internal/dto"
	"identity-system/internal/plugins"
	apperrors "identity-system/pkg/errors"
)

// Normalizer приводит сырые записи плагина к каноничному виду:
// применяет правила маппинга полей и достраивает производную идентичность.
// Для локального плагина источник не задаёт code подразделения — он
// выводится из полного пути через GenCode; code пользователя — username.
type Normalizer struct {
	pluginType string
	mappings   []dto.FieldMappingDTO
}

func NewNormalizer(pluginType string, mappings []dto.FieldMappingDTO) *Normalizer {
	return &Normalizer{pluginType: pluginType, mappings: mappings}
}

// NormalizeUsers — маппинг свойств плюс проверка уникальности code.
// Любая ошибка фатальна для всей пачки: частичного результата не бывает.
func (n *Normalizer) NormalizeUsers(raw []dto.RawUser) ([]dto.RawUser, error) {
	out := make([]dto.RawUser, 0, len(raw))
	seen := make(map[string]bool, len(raw))

	for _, u := range raw {
		props, err := n.applyMappings(u.Properties)
		if err != nil {
			return nil, err
		}

		departments := u.Departments
		if n.pluginType == plugins.TypeLocal {
			// В книге пользователь ссылается на подразделения полными путями.
			departments = make([]string, 0, len(u.Departments))
			for _, path := range u.Departments {
				departments = append(departments, GenCode(path))
			}
		}

		code := u.Code
		if code == "" {
			code = props["username"]
		}
		if code == "" {
			return nil, apperrors.NewMalformedDataError(0, "пользователь без code и username", nil)
		}
		if seen[code] {
			return nil, apperrors.NewDuplicateCodeError("user", code)
		}
		seen[code] = true

		out = append(out, dto.RawUser{
			Code:        code,
			Properties:  props,
			Leaders:     u.Leaders,
			Departments: departments,
		})
	}
	return out, nil
}

func (n *Normalizer) NormalizeDepartments(raw []dto.RawDepartment) ([]dto.RawDepartment, error) {
	out := make([]dto.RawDepartment, 0, len(raw))
	seen := make(map[string]bool, len(raw))

	for _, d := range raw {
		code := d.Code
		parent := d.Parent
		if n.pluginType == plugins.TypeLocal {
			path := d.Properties["path"]
			if path == "" {
				return nil, apperrors.NewMalformedDataError(0, "подразделение локального источника без пути", nil)
			}
			code = GenCode(path)
			if parent != "" {
				parent = GenCode(d.Parent)
			}
		}

		if code == "" {
			return nil, apperrors.NewMalformedDataError(0, "подразделение без code", nil)
		}
		if seen[code] {
			return nil, apperrors.NewDuplicateCodeError("department", code)
		}
		seen[code] = true

		out = append(out, dto.RawDepartment{
			Code:       code,
			Name:       d.Name,
			Parent:     parent,
			Properties: d.Properties,
		})
	}
	return out, nil
}

// applyMappings строит свойства записи по документу маппинга. Свойства
// источника, не задействованные ни одним правилом, проходят насквозь —
// так нестандартные колонки локальной книги доезжают до extras.
func (n *Normalizer) applyMappings(src map[string]string) (map[string]string, error) {
	if len(n.mappings) == 0 {
		return src, nil
	}

	out := make(map[string]string, len(src))
	consumed := make(map[string]bool, len(n.mappings))

	for _, m := range n.mappings {
		switch m.MappingOperation {
		case dto.MappingOperationDirect:
			value, ok := src[m.SourceField]
			if !ok {
				return nil, apperrors.NewFieldMappingError(m.SourceField, m.TargetField, "поле отсутствует в записи источника")
			}
			out[m.TargetField] = value
			consumed[m.SourceField] = true
		case dto.MappingOperationExpression:
			value, err := evaluateExpression(m.Expression, m.TargetField, src)
			if err != nil {
				return nil, err
			}
			out[m.TargetField] = value
		default:
			return nil, apperrors.NewFieldMappingError(m.SourceField, m.TargetField, "неизвестная операция маппинга")
		}
	}

	for key, value := range src {
		if consumed[key] {
			continue
		}
		if _, exists := out[key]; !exists {
			out[key] = value
		}
	}
	return out, nil
}
