package entities

import (
	"encoding/json"
	"time"
)

// DataSource — настроенное подключение к внешнему каталогу.
// PluginConfig хранится как непрозрачный JSON и интерпретируется
// только плагином соответствующего типа.
type DataSource struct {
	ID           uint64          `json:"id"`
	TenantID     string          `json:"tenant_id"`
	Name         string          `json:"name"`
	PluginType   string          `json:"plugin_type"`
	PluginConfig json.RawMessage `json:"plugin_config"`
	Enabled      bool            `json:"enabled"`
	SyncInterval time.Duration   `json:"sync_interval"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}
