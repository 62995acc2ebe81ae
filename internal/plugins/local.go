package plugins

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"identity-system/internal/dto"
	apperrors "identity-system/pkg/errors"
)

const (
	usersSheet       = "users"
	departmentsSheet = "departments"

	defaultListSeparator = ","
)

// Обязательные колонки листа users; всё сверх этого уходит
// в произвольные свойства записи.
var userSheetColumns = []string{"username", "full_name", "email", "phone", "leaders", "departments"}

var departmentSheetColumns = []string{"name", "parent"}

// LocalPlugin читает загруженную администратором книгу (xlsx).
// Код подразделения здесь не задан источником: плагин отдаёт полный путь
// ("公司/部门A/中心AA"), а нормализатор выводит из него стабильный code.
type LocalPlugin struct {
	cfg    dto.LocalPluginConfigDTO
	logger *zap.Logger

	open func() (*excelize.File, error)
}

func NewLocalPlugin(raw json.RawMessage, logger *zap.Logger) (Plugin, error) {
	var cfg dto.LocalPluginConfigDTO
	if err := decodeConfig(raw, &cfg); err != nil {
		return nil, err
	}
	if cfg.ListSeparator == "" {
		cfg.ListSeparator = defaultListSeparator
	}
	p := &LocalPlugin{cfg: cfg, logger: logger.Named("plugin_local")}
	p.open = func() (*excelize.File, error) { return excelize.OpenFile(cfg.WorkbookPath) }
	return p, nil
}

func (p *LocalPlugin) FetchUsers(ctx context.Context) ([]dto.RawUser, error) {
	f, err := p.open()
	if err != nil {
		return nil, fmt.Errorf("ошибка открытия файла %q: %w", p.cfg.WorkbookPath, err)
	}
	defer f.Close()
	return p.parseUsers(f)
}

func (p *LocalPlugin) FetchDepartments(ctx context.Context) ([]dto.RawDepartment, error) {
	f, err := p.open()
	if err != nil {
		return nil, fmt.Errorf("ошибка открытия файла %q: %w", p.cfg.WorkbookPath, err)
	}
	defer f.Close()
	return p.parseDepartments(f)
}

func (p *LocalPlugin) TestConnection(ctx context.Context) dto.TestConnectionResult {
	res := dto.TestConnectionResult{Extras: map[string]string{"workbook_path": p.cfg.WorkbookPath}}

	users, err := p.FetchUsers(ctx)
	if err != nil {
		res.ErrorMessage = err.Error()
		return res
	}
	departments, err := p.FetchDepartments(ctx)
	if err != nil {
		res.ErrorMessage = err.Error()
		return res
	}

	if len(users) > 0 {
		res.User = &users[0]
	}
	if len(departments) > 0 {
		res.Department = &departments[0]
	}
	res.Extras["users"] = fmt.Sprintf("%d", len(users))
	res.Extras["departments"] = fmt.Sprintf("%d", len(departments))
	return res
}

func (p *LocalPlugin) parseUsers(f *excelize.File) ([]dto.RawUser, error) {
	rows, err := f.GetRows(usersSheet)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrUserSheetMissing, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: лист %q пуст", apperrors.ErrSheetColumns, usersSheet)
	}

	header := rows[0]
	colIdx, err := matchColumns(usersSheet, header, userSheetColumns)
	if err != nil {
		return nil, err
	}

	var users []dto.RawUser
	for _, row := range rows[1:] {
		username := cellAt(row, colIdx["username"])
		if username == "" {
			continue
		}

		props := map[string]string{
			"username":  username,
			"full_name": cellAt(row, colIdx["full_name"]),
			"email":     cellAt(row, colIdx["email"]),
			"phone":     cellAt(row, colIdx["phone"]),
		}
		// Нестандартные колонки — произвольные свойства.
		for i, name := range header {
			name = strings.TrimSpace(name)
			if name == "" || contains(userSheetColumns, name) {
				continue
			}
			props[name] = cellAt(row, i)
		}

		users = append(users, dto.RawUser{
			Code:        username,
			Properties:  props,
			Leaders:     splitList(cellAt(row, colIdx["leaders"]), p.cfg.ListSeparator),
			Departments: splitList(cellAt(row, colIdx["departments"]), p.cfg.ListSeparator),
		})
	}
	return users, nil
}

func (p *LocalPlugin) parseDepartments(f *excelize.File) ([]dto.RawDepartment, error) {
	rows, err := f.GetRows(departmentsSheet)
	if err != nil {
		// Лист departments опционален: источник может состоять только из людей.
		p.logger.Warn("лист departments отсутствует, подразделения берутся из колонки users", zap.Error(err))
		rows = nil
	}

	// Полный путь -> подразделение; сюда же досоздаются недостающие предки.
	byPath := map[string]dto.RawDepartment{}
	addPath := func(path string) {
		path = strings.Trim(strings.TrimSpace(path), "/")
		if path == "" {
			return
		}
		segments := strings.Split(path, "/")
		for i := range segments {
			full := strings.Join(segments[:i+1], "/")
			if _, ok := byPath[full]; ok {
				continue
			}
			parent := ""
			if i > 0 {
				parent = strings.Join(segments[:i], "/")
			}
			byPath[full] = dto.RawDepartment{
				Name:       segments[i],
				Parent:     parent,
				Properties: map[string]string{"path": full},
			}
		}
	}

	if len(rows) > 0 {
		colIdx, err := matchColumns(departmentsSheet, rows[0], departmentSheetColumns)
		if err != nil {
			return nil, err
		}
		for _, row := range rows[1:] {
			name := cellAt(row, colIdx["name"])
			if name == "" {
				continue
			}
			parent := strings.Trim(cellAt(row, colIdx["parent"]), "/")
			if parent == "" {
				addPath(name)
			} else {
				addPath(parent + "/" + name)
			}
		}
	}

	// Подразделения, упомянутые только в колонке departments у пользователей.
	users, err := p.parseUsers(f)
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		for _, path := range u.Departments {
			addPath(path)
		}
	}

	departments := make([]dto.RawDepartment, 0, len(byPath))
	for _, d := range byPath {
		departments = append(departments, d)
	}
	return departments, nil
}

func matchColumns(sheet string, header []string, required []string) (map[string]int, error) {
	idx := map[string]int{}
	for i, name := range header {
		idx[strings.TrimSpace(name)] = i
	}
	var missing []string
	for _, name := range required {
		if _, ok := idx[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: лист %q, не хватает колонок %v", apperrors.ErrSheetColumns, sheet, missing)
	}
	return idx, nil
}

func cellAt(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func splitList(raw, sep string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(raw, sep) {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func contains(list []string, item string) bool {
	for _, val := range list {
		if strings.EqualFold(val, item) {
			return true
		}
	}
	return false
}
