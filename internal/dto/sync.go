package dto

import (
	"encoding/json"
	"time"
)

type CreateDataSourceDTO struct {
	TenantID            string            `json:"tenant_id" validate:"required"`
	Name                string            `json:"name" validate:"required"`
	PluginType          string            `json:"plugin_type" validate:"required"`
	PluginConfig        json.RawMessage   `json:"plugin_config" validate:"required"`
	FieldMappings       []FieldMappingDTO `json:"field_mappings"`
	SyncIntervalSeconds int               `json:"sync_interval_seconds" validate:"omitempty,min=60"`
	Enabled             bool              `json:"enabled"`
}

type UpdateDataSourceDTO struct {
	Name                *string           `json:"name"`
	PluginConfig        json.RawMessage   `json:"plugin_config"`
	FieldMappings       []FieldMappingDTO `json:"field_mappings"`
	SyncIntervalSeconds *int              `json:"sync_interval_seconds" validate:"omitempty,min=60"`
	Enabled             *bool             `json:"enabled"`
}

type SyncTaskDTO struct {
	ID           string     `json:"id"`
	DataSourceID uint64     `json:"data_source_id"`
	TenantID     string     `json:"tenant_id"`
	Status       string     `json:"status"`
	Trigger      string     `json:"trigger"`
	HasWarning   bool       `json:"has_warning"`
	Logs         string     `json:"logs"`
	StartedAt    *time.Time `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at"`
}

type TriggerSyncResponseDTO struct {
	TaskID string `json:"task_id"`
}
