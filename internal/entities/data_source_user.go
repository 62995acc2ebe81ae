package entities

import "time"

// DataSourceUser — долговременная запись пользователя источника,
// ключ (data_source_id, code). Значения полей — уже после маппинга.
type DataSourceUser struct {
	ID           uint64            `json:"id"`
	DataSourceID uint64            `json:"data_source_id"`
	Code         string            `json:"code"`
	Username     string            `json:"username"`
	FullName     string            `json:"full_name"`
	Email        string            `json:"email"`
	Phone        string            `json:"phone"`
	Extras       map[string]string `json:"extras"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// UserLeaderRelation — пара (пользователь, руководитель) по кодам.
type UserLeaderRelation struct {
	DataSourceID uint64 `json:"data_source_id"`
	UserCode     string `json:"user_code"`
	LeaderCode   string `json:"leader_code"`
}

// UserDepartmentRelation — членство пользователя в подразделении по кодам.
type UserDepartmentRelation struct {
	DataSourceID   uint64 `json:"data_source_id"`
	UserCode       string `json:"user_code"`
	DepartmentCode string `json:"department_code"`
}
