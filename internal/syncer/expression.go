package syncer

import (
	"strings"

	apperrors "identity-system/pkg/errors"
)

// Вычислитель выражений маппинга. Грамматика намеренно узкая:
// литеральный текст и ссылки на поля вида {{field}}, ничего больше.
// Пример: "{{last_name}} {{first_name}}".

func evaluateExpression(expr, targetField string, props map[string]string) (string, error) {
	var out strings.Builder
	rest := expr

	for {
		start := strings.Index(rest, "{{")
		if start < 0 {
			out.WriteString(rest)
			return out.String(), nil
		}
		out.WriteString(rest[:start])

		end := strings.Index(rest[start:], "}}")
		if end < 0 {
			return "", apperrors.NewFieldMappingError(expr, targetField, "незакрытая ссылка {{")
		}

		field := strings.TrimSpace(rest[start+2 : start+end])
		if field == "" {
			return "", apperrors.NewFieldMappingError(expr, targetField, "пустая ссылка на поле")
		}
		value, ok := props[field]
		if !ok {
			return "", apperrors.NewFieldMappingError(field, targetField, "поле отсутствует в записи источника")
		}
		out.WriteString(value)

		rest = rest[start+end+2:]
	}
}
