package repositories

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"identity-system/internal/entities"
	"identity-system/internal/tenant"
)

const (
	tenantUserTable         = "tenant_users"
	tenantDepartmentTable   = "tenant_departments"
	tenantDeptIDRecordTable = "tenant_department_id_records"
	tenantIDConfigTable     = "tenant_user_id_configs"
	collaborationTable      = "collaboration_bindings"
)

// TenantRepository реализует персистентную часть тенантной проекции.
type TenantRepository struct {
	storage   *pgxpool.Pool
	syncStore *SyncStore
	txManager TxManagerInterface
	logger    *zap.Logger
}

func NewTenantRepository(storage *pgxpool.Pool, syncStore *SyncStore, txManager TxManagerInterface, logger *zap.Logger) *TenantRepository {
	return &TenantRepository{storage: storage, syncStore: syncStore, txManager: txManager, logger: logger}
}

var _ tenant.Repository = (*TenantRepository)(nil)

func (r *TenantRepository) ListIDConfigs(ctx context.Context, dataSourceID uint64) ([]entities.TenantUserIDConfig, error) {
	query, args, err := psql.
		Select("id", "data_source_id", "tenant_id", "rule", "domain", "enabled").
		From(tenantIDConfigTable).
		Where(sq.Eq{"data_source_id": dataSourceID}).
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.storage.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("правила tenant ID источника %d: %w", dataSourceID, err)
	}
	defer rows.Close()

	var configs []entities.TenantUserIDConfig
	for rows.Next() {
		var c entities.TenantUserIDConfig
		if err := rows.Scan(&c.ID, &c.DataSourceID, &c.TenantID, &c.Rule, &c.Domain, &c.Enabled); err != nil {
			return nil, err
		}
		configs = append(configs, c)
	}
	return configs, rows.Err()
}

func (r *TenantRepository) ListBindings(ctx context.Context, dataSourceID uint64) ([]entities.CollaborationBinding, error) {
	query, args, err := psql.
		Select("id", "data_source_id", "source_tenant_id", "target_tenant_id", "enabled").
		From(collaborationTable).
		Where(sq.Eq{"data_source_id": dataSourceID}).
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.storage.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("биндинги источника %d: %w", dataSourceID, err)
	}
	defer rows.Close()

	var bindings []entities.CollaborationBinding
	for rows.Next() {
		var b entities.CollaborationBinding
		if err := rows.Scan(&b.ID, &b.DataSourceID, &b.SourceTenantID, &b.TargetTenantID, &b.Enabled); err != nil {
			return nil, err
		}
		bindings = append(bindings, b)
	}
	return bindings, rows.Err()
}

func (r *TenantRepository) ListUserCodes(ctx context.Context, dataSourceID uint64) (map[string]entities.DataSourceUser, error) {
	return r.syncStore.LoadUsers(ctx, dataSourceID)
}

func (r *TenantRepository) ListDepartmentCodes(ctx context.Context, dataSourceID uint64) (map[string]entities.DataSourceDepartment, error) {
	return r.syncStore.LoadDepartments(ctx, dataSourceID)
}

func (r *TenantRepository) ListTenantUsers(ctx context.Context, tenantID string, dataSourceID uint64) (map[string]entities.TenantUser, error) {
	query, args, err := psql.
		Select("id", "tenant_id", "data_source_id", "code", "created_at").
		From(tenantUserTable).
		Where(sq.Eq{"tenant_id": tenantID, "data_source_id": dataSourceID}).
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.storage.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("tenant-пользователи %s/%d: %w", tenantID, dataSourceID, err)
	}
	defer rows.Close()

	users := map[string]entities.TenantUser{}
	for rows.Next() {
		var u entities.TenantUser
		if err := rows.Scan(&u.ID, &u.TenantID, &u.DataSourceID, &u.Code, &u.CreatedAt); err != nil {
			return nil, err
		}
		users[u.Code] = u
	}
	return users, rows.Err()
}

func (r *TenantRepository) CreateTenantUsers(ctx context.Context, users []entities.TenantUser) error {
	return r.txManager.RunInTransaction(ctx, func(tx pgx.Tx) error {
		builder := psql.Insert(tenantUserTable).Columns("id", "tenant_id", "data_source_id", "code")
		for _, u := range users {
			builder = builder.Values(u.ID, u.TenantID, u.DataSourceID, u.Code)
		}
		query, args, err := builder.ToSql()
		if err != nil {
			return err
		}
		// Уникальный индекс на id ловит коллизии правила username между
		// источниками одного тенанта.
		if _, err := tx.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("вставка tenant-пользователей: %w", err)
		}
		return nil
	})
}

func (r *TenantRepository) DeleteTenantUsers(ctx context.Context, tenantID string, dataSourceID uint64, codes []string) error {
	return r.txManager.RunInTransaction(ctx, func(tx pgx.Tx) error {
		query, args, err := psql.Delete(tenantUserTable).
			Where(sq.Eq{"tenant_id": tenantID, "data_source_id": dataSourceID, "code": codes}).
			ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("удаление tenant-пользователей: %w", err)
		}
		return nil
	})
}

func (r *TenantRepository) ListTenantDepartments(ctx context.Context, tenantID string, dataSourceID uint64) (map[string]entities.TenantDepartment, error) {
	query, args, err := psql.
		Select("id", "tenant_id", "data_source_id", "code", "created_at").
		From(tenantDepartmentTable).
		Where(sq.Eq{"tenant_id": tenantID, "data_source_id": dataSourceID}).
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.storage.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("tenant-подразделения %s/%d: %w", tenantID, dataSourceID, err)
	}
	defer rows.Close()

	departments := map[string]entities.TenantDepartment{}
	for rows.Next() {
		var d entities.TenantDepartment
		if err := rows.Scan(&d.ID, &d.TenantID, &d.DataSourceID, &d.Code, &d.CreatedAt); err != nil {
			return nil, err
		}
		departments[d.Code] = d
	}
	return departments, rows.Err()
}

func (r *TenantRepository) CreateTenantDepartments(ctx context.Context, departments []entities.TenantDepartment) ([]entities.TenantDepartment, error) {
	created := make([]entities.TenantDepartment, 0, len(departments))
	err := r.txManager.RunInTransaction(ctx, func(tx pgx.Tx) error {
		for _, d := range departments {
			query, args, err := psql.Insert(tenantDepartmentTable).
				Columns("tenant_id", "data_source_id", "code").
				Values(d.TenantID, d.DataSourceID, d.Code).
				Suffix("RETURNING id, tenant_id, data_source_id, code, created_at").
				ToSql()
			if err != nil {
				return err
			}
			var row entities.TenantDepartment
			if err := tx.QueryRow(ctx, query, args...).Scan(&row.ID, &row.TenantID, &row.DataSourceID, &row.Code, &row.CreatedAt); err != nil {
				return fmt.Errorf("вставка tenant-подразделения %s: %w", d.Code, err)
			}
			created = append(created, row)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (r *TenantRepository) DeleteTenantDepartments(ctx context.Context, tenantID string, dataSourceID uint64, codes []string) error {
	return r.txManager.RunInTransaction(ctx, func(tx pgx.Tx) error {
		query, args, err := psql.Delete(tenantDepartmentTable).
			Where(sq.Eq{"tenant_id": tenantID, "data_source_id": dataSourceID, "code": codes}).
			ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("удаление tenant-подразделений: %w", err)
		}
		return nil
	})
}

func (r *TenantRepository) RecordTenantDepartmentIDs(ctx context.Context, records []entities.TenantDepartmentIDRecord) error {
	return r.txManager.RunInTransaction(ctx, func(tx pgx.Tx) error {
		builder := psql.Insert(tenantDeptIDRecordTable).
			Columns("tenant_department_id", "tenant_id", "data_source_id", "code")
		for _, rec := range records {
			builder = builder.Values(rec.TenantDepartmentID, rec.TenantID, rec.DataSourceID, rec.Code)
		}
		query, args, err := builder.Suffix("ON CONFLICT (tenant_department_id) DO NOTHING").ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("запись индекса tenant_department_id: %w", err)
		}
		return nil
	})
}
