package entities

import "time"

// DataSourceDepartment — долговременная запись подразделения источника,
// ключ (data_source_id, code). ParentCode == nil у корней дерева.
type DataSourceDepartment struct {
	ID           uint64            `json:"id"`
	DataSourceID uint64            `json:"data_source_id"`
	Code         string            `json:"code"`
	Name         string            `json:"name"`
	ParentCode   *string           `json:"parent_code"`
	Extras       map[string]string `json:"extras"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}
