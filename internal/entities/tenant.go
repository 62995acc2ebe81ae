package entities

import "time"

// Правила генерации tenant user ID. Приоритет выбора — в порядке объявления.
const (
	TenantUserIDRuleUsernameWithDomain = "username_with_domain"
	TenantUserIDRuleUsername           = "username"
	TenantUserIDRuleUUID               = "uuid"
)

// TenantUserIDConfig — активное правило генерации tenant user ID для
// привязки (источник, тенант). Выбор любого правила кроме uuid замораживает
// переименование пользователей источника.
type TenantUserIDConfig struct {
	ID           uint64 `json:"id"`
	DataSourceID uint64 `json:"data_source_id"`
	TenantID     string `json:"tenant_id"`
	Rule         string `json:"rule"`
	Domain       string `json:"domain"`
	Enabled      bool   `json:"enabled"`
}

// TenantUser — проекция DataSourceUser в конкретный тенант.
type TenantUser struct {
	ID           string    `json:"id"` // tenant user id, сгенерирован по правилу
	TenantID     string    `json:"tenant_id"`
	DataSourceID uint64    `json:"data_source_id"`
	Code         string    `json:"code"`
	CreatedAt    time.Time `json:"created_at"`
}

// TenantDepartment — проекция DataSourceDepartment в конкретный тенант.
type TenantDepartment struct {
	ID           int64     `json:"id"`
	TenantID     string    `json:"tenant_id"`
	DataSourceID uint64    `json:"data_source_id"`
	Code         string    `json:"code"`
	CreatedAt    time.Time `json:"created_at"`
}

// TenantDepartmentIDRecord — устойчивое соответствие tenant_department_id
// исходному подразделению. Производный индекс: восстанавливается офлайн
// из соединения TenantDepartment с DataSourceDepartment.
type TenantDepartmentIDRecord struct {
	TenantDepartmentID int64  `json:"tenant_department_id"`
	TenantID           string `json:"tenant_id"`
	DataSourceID       uint64 `json:"data_source_id"`
	Code               string `json:"code"`
}

// CollaborationBinding — межтенантный шаринг: пользователи источника
// одного тенанта становятся видимы в другом.
type CollaborationBinding struct {
	ID             uint64 `json:"id"`
	DataSourceID   uint64 `json:"data_source_id"`
	SourceTenantID string `json:"source_tenant_id"`
	TargetTenantID string `json:"target_tenant_id"`
	Enabled        bool   `json:"enabled"`
}
