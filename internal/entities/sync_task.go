package entities

import "time"

// Статусы задачи синхронизации. PENDING -> RUNNING -> {SUCCESS, FAILED},
// других переходов нет; повтор — это всегда новая задача.
const (
	SyncTaskStatusPending = "PENDING"
	SyncTaskStatusRunning = "RUNNING"
	SyncTaskStatusSuccess = "SUCCESS"
	SyncTaskStatusFailed  = "FAILED"
)

// Способ запуска задачи.
const (
	SyncTriggerManual    = "manual"
	SyncTriggerScheduled = "scheduled"
)

// SyncTask — запись одного прогона синхронизации. Мутируется только
// раннером, не удаляется (аудит).
type SyncTask struct {
	ID           string     `json:"id"`
	DataSourceID uint64     `json:"data_source_id"`
	TenantID     string     `json:"tenant_id"`
	Status       string     `json:"status"`
	Trigger      string     `json:"trigger"` // manual | scheduled
	HasWarning   bool       `json:"has_warning"`
	Logs         string     `json:"logs"`
	StartedAt    *time.Time `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at"`
	CreatedAt    time.Time  `json:"created_at"`
}
