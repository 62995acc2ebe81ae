package dto

// RawUser — пользователь в том виде, в каком его отдал плагин,
// до маппинга полей. Code — стабильный идентификатор внутри источника,
// уникальность в рамках одного прогона обязательна.
type RawUser struct {
	Code        string            `json:"code"`
	Properties  map[string]string `json:"properties"`
	Leaders     []string          `json:"leaders"`
	Departments []string          `json:"departments"`
}

// RawDepartment — подразделение до маппинга. Parent == "" у корня.
type RawDepartment struct {
	Code       string            `json:"code"`
	Name       string            `json:"name"`
	Parent     string            `json:"parent"`
	Properties map[string]string `json:"properties"`
}

// TestConnectionResult — результат пробного обращения к источнику.
// Ожидаемые сбои не бросаются наружу, а попадают в ErrorMessage
// (пустая строка = успех).
type TestConnectionResult struct {
	ErrorMessage string            `json:"error_message"`
	User         *RawUser          `json:"user,omitempty"`
	Department   *RawDepartment    `json:"department,omitempty"`
	Extras       map[string]string `json:"extras,omitempty"`
}
