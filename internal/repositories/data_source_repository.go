package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"identity-system/internal/dto"
	"identity-system/internal/entities"
	apperrors "identity-system/pkg/errors"
)

const (
	dataSourceTable   = "data_sources"
	fieldMappingTable = "data_source_field_mappings"
)

type DataSourceRepositoryInterface interface {
	ListDataSources(ctx context.Context) ([]entities.DataSource, error)
	ListEnabledDataSources(ctx context.Context) ([]entities.DataSource, error)
	FindDataSource(ctx context.Context, id uint64) (*entities.DataSource, error)
	CreateDataSource(ctx context.Context, ds entities.DataSource, mappings []dto.FieldMappingDTO) (*entities.DataSource, error)
	UpdateDataSource(ctx context.Context, id uint64, payload dto.UpdateDataSourceDTO) (*entities.DataSource, error)
	DeleteDataSource(ctx context.Context, id uint64) error
	GetFieldMappings(ctx context.Context, dataSourceID uint64) ([]dto.FieldMappingDTO, error)
}

type DataSourceRepository struct {
	storage   *pgxpool.Pool
	txManager TxManagerInterface
	logger    *zap.Logger
}

func NewDataSourceRepository(storage *pgxpool.Pool, txManager TxManagerInterface, logger *zap.Logger) DataSourceRepositoryInterface {
	return &DataSourceRepository{storage: storage, txManager: txManager, logger: logger}
}

func scanDataSource(row pgx.Row) (*entities.DataSource, error) {
	var ds entities.DataSource
	var intervalSeconds int64
	err := row.Scan(&ds.ID, &ds.TenantID, &ds.Name, &ds.PluginType, &ds.PluginConfig,
		&ds.Enabled, &intervalSeconds, &ds.CreatedAt, &ds.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка сканирования data_source: %w", err)
	}
	ds.SyncInterval = time.Duration(intervalSeconds) * time.Second
	return &ds, nil
}

const dataSourceColumns = "id, tenant_id, name, plugin_type, plugin_config, enabled, sync_interval_seconds, created_at, updated_at"

func (r *DataSourceRepository) listWhere(ctx context.Context, pred interface{}) ([]entities.DataSource, error) {
	builder := psql.Select(dataSourceColumns).From(dataSourceTable).OrderBy("id")
	if pred != nil {
		builder = builder.Where(pred)
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.storage.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("выборка источников: %w", err)
	}
	defer rows.Close()

	var out []entities.DataSource
	for rows.Next() {
		ds, err := scanDataSource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *ds)
	}
	return out, rows.Err()
}

func (r *DataSourceRepository) ListDataSources(ctx context.Context) ([]entities.DataSource, error) {
	return r.listWhere(ctx, nil)
}

func (r *DataSourceRepository) ListEnabledDataSources(ctx context.Context) ([]entities.DataSource, error) {
	return r.listWhere(ctx, sq.Eq{"enabled": true})
}

func (r *DataSourceRepository) FindDataSource(ctx context.Context, id uint64) (*entities.DataSource, error) {
	query, args, err := psql.Select(dataSourceColumns).From(dataSourceTable).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, err
	}
	return scanDataSource(r.storage.QueryRow(ctx, query, args...))
}

func (r *DataSourceRepository) CreateDataSource(ctx context.Context, ds entities.DataSource, mappings []dto.FieldMappingDTO) (*entities.DataSource, error) {
	var created *entities.DataSource
	err := r.txManager.RunInTransaction(ctx, func(tx pgx.Tx) error {
		query, args, err := psql.Insert(dataSourceTable).
			Columns("tenant_id", "name", "plugin_type", "plugin_config", "enabled", "sync_interval_seconds").
			Values(ds.TenantID, ds.Name, ds.PluginType, []byte(ds.PluginConfig), ds.Enabled, int64(ds.SyncInterval/time.Second)).
			Suffix("RETURNING " + dataSourceColumns).
			ToSql()
		if err != nil {
			return err
		}
		created, err = scanDataSource(tx.QueryRow(ctx, query, args...))
		if err != nil {
			return err
		}
		return r.replaceMappings(ctx, tx, created.ID, mappings)
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (r *DataSourceRepository) UpdateDataSource(ctx context.Context, id uint64, payload dto.UpdateDataSourceDTO) (*entities.DataSource, error) {
	var updated *entities.DataSource
	err := r.txManager.RunInTransaction(ctx, func(tx pgx.Tx) error {
		builder := psql.Update(dataSourceTable).Set("updated_at", sq.Expr("NOW()")).Where(sq.Eq{"id": id})
		if payload.Name != nil {
			builder = builder.Set("name", *payload.Name)
		}
		if len(payload.PluginConfig) > 0 {
			builder = builder.Set("plugin_config", []byte(payload.PluginConfig))
		}
		if payload.Enabled != nil {
			builder = builder.Set("enabled", *payload.Enabled)
		}
		if payload.SyncIntervalSeconds != nil {
			builder = builder.Set("sync_interval_seconds", *payload.SyncIntervalSeconds)
		}
		query, args, err := builder.Suffix("RETURNING " + dataSourceColumns).ToSql()
		if err != nil {
			return err
		}
		updated, err = scanDataSource(tx.QueryRow(ctx, query, args...))
		if err != nil {
			return err
		}
		if payload.FieldMappings != nil {
			return r.replaceMappings(ctx, tx, id, payload.FieldMappings)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteDataSource каскадно сносит синхронизированные записи источника
// (FK ON DELETE CASCADE в схеме).
func (r *DataSourceRepository) DeleteDataSource(ctx context.Context, id uint64) error {
	query, args, err := psql.Delete(dataSourceTable).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return err
	}
	tag, err := r.storage.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("удаление источника %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *DataSourceRepository) GetFieldMappings(ctx context.Context, dataSourceID uint64) ([]dto.FieldMappingDTO, error) {
	query, args, err := psql.
		Select("source_field", "mapping_operation", "target_field", "expression").
		From(fieldMappingTable).
		Where(sq.Eq{"data_source_id": dataSourceID}).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.storage.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("маппинги источника %d: %w", dataSourceID, err)
	}
	defer rows.Close()

	var mappings []dto.FieldMappingDTO
	for rows.Next() {
		var m dto.FieldMappingDTO
		if err := rows.Scan(&m.SourceField, &m.MappingOperation, &m.TargetField, &m.Expression); err != nil {
			return nil, err
		}
		mappings = append(mappings, m)
	}
	return mappings, rows.Err()
}

func (r *DataSourceRepository) replaceMappings(ctx context.Context, tx pgx.Tx, dataSourceID uint64, mappings []dto.FieldMappingDTO) error {
	query, args, err := psql.Delete(fieldMappingTable).Where(sq.Eq{"data_source_id": dataSourceID}).ToSql()
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("очистка маппингов: %w", err)
	}
	if len(mappings) == 0 {
		return nil
	}

	builder := psql.Insert(fieldMappingTable).
		Columns("data_source_id", "source_field", "mapping_operation", "target_field", "expression")
	for _, m := range mappings {
		builder = builder.Values(dataSourceID, m.SourceField, m.MappingOperation, m.TargetField, m.Expression)
	}
	query, args, err = builder.ToSql()
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("вставка маппингов: %w", err)
	}
	return nil
}
