package dto

// Конфигурации плагинов. Хранятся в DataSource.PluginConfig как JSON,
// валидируются фабрикой плагина до первого fetch-вызова.

// LocalPluginConfigDTO — книга с листами "users" и "departments".
type LocalPluginConfigDTO struct {
	WorkbookPath string `json:"workbook_path" validate:"required"`
	// Разделитель списков в ячейках leaders/departments.
	ListSeparator string `json:"list_separator" validate:"omitempty,max=3"`
}

// LDAPPluginConfigDTO — подключение к каталогу по LDAP.
type LDAPPluginConfigDTO struct {
	ServerURL         string   `json:"server_url" validate:"required,startswith=ldap"`
	BindDN            string   `json:"bind_dn" validate:"required"`
	BindPassword      string   `json:"bind_password" validate:"required"`
	BaseDN            string   `json:"base_dn" validate:"required"`
	UserFilter        string   `json:"user_filter" validate:"required"`
	DepartmentFilter  string   `json:"department_filter" validate:"required"`
	UserAttributes    []string `json:"user_attributes" validate:"required,min=1"`
	CodeAttribute     string   `json:"code_attribute" validate:"required"`
	LeaderAttribute   string   `json:"leader_attribute"`
	MemberOfAttribute string   `json:"member_of_attribute"`
	PageSize          uint32   `json:"page_size" validate:"omitempty,min=1,max=5000"`
}

// ADPluginConfigDTO — Active Directory: тот же транспорт, что LDAP,
// но атрибуты фиксированы под AD и запись в источник запрещена.
type ADPluginConfigDTO struct {
	LDAPPluginConfigDTO
	// AD отдаёт и выключенные учётки; фильтруем по userAccountControl.
	SkipDisabledUsers bool `json:"skip_disabled_users"`
}

// WeComPluginConfigDTO — корпоративный API WeCom.
type WeComPluginConfigDTO struct {
	BaseURL    string `json:"base_url" validate:"required,url"`
	CorpID     string `json:"corp_id" validate:"required"`
	CorpSecret string `json:"corp_secret" validate:"required"`
}

// GeneralPluginConfigDTO — произвольный REST-источник.
type GeneralPluginConfigDTO struct {
	ServerBaseURL  string `json:"server_base_url" validate:"required,url"`
	UsersPath      string `json:"users_path" validate:"required,startswith=/"`
	DepartmentsPath string `json:"departments_path" validate:"required,startswith=/"`
	AuthMethod     string `json:"auth_method" validate:"required,oneof=none basic bearer"`
	Username       string `json:"username" validate:"required_if=AuthMethod basic"`
	Password       string `json:"password" validate:"required_if=AuthMethod basic"`
	BearerToken    string `json:"bearer_token" validate:"required_if=AuthMethod bearer"`
	TimeoutSeconds int    `json:"timeout_seconds" validate:"omitempty,min=1,max=600"`
	RetryCount     int    `json:"retry_count" validate:"omitempty,min=0,max=10"`
	PageSize       int    `json:"page_size" validate:"omitempty,min=1,max=5000"`
}
