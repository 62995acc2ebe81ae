package repositories

import (
	"context"
	"encoding/json"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"identity-system/internal/entities"
	"identity-system/internal/syncer"
)

const (
	dsUserTable           = "data_source_users"
	dsDepartmentTable     = "data_source_departments"
	userLeaderTable       = "user_leader_relations"
	userDepartmentTable   = "user_department_relations"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// SyncStore — apply-фаза раннера поверх PostgreSQL. Каждый метод — одна
// пачка в одной транзакции; нарезку на пачки делает раннер. Единственный
// писатель этих таблиц — раннер под per-source блокировкой, веб-слой
// читает их без блокировок.
type SyncStore struct {
	storage   *pgxpool.Pool
	txManager TxManagerInterface
	logger    *zap.Logger
}

func NewSyncStore(storage *pgxpool.Pool, txManager TxManagerInterface, logger *zap.Logger) *SyncStore {
	return &SyncStore{storage: storage, txManager: txManager, logger: logger.Named("sync_store")}
}

var _ syncer.Store = (*SyncStore)(nil)

func (s *SyncStore) LoadUsers(ctx context.Context, dataSourceID uint64) (map[string]entities.DataSourceUser, error) {
	query, args, err := psql.
		Select("id", "code", "username", "full_name", "email", "phone", "extras").
		From(dsUserTable).
		Where(sq.Eq{"data_source_id": dataSourceID}).
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.storage.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("загрузка пользователей источника %d: %w", dataSourceID, err)
	}
	defer rows.Close()

	users := map[string]entities.DataSourceUser{}
	for rows.Next() {
		u := entities.DataSourceUser{DataSourceID: dataSourceID}
		var extras []byte
		if err := rows.Scan(&u.ID, &u.Code, &u.Username, &u.FullName, &u.Email, &u.Phone, &extras); err != nil {
			return nil, fmt.Errorf("ошибка сканирования data_source_user: %w", err)
		}
		if len(extras) > 0 {
			if err := json.Unmarshal(extras, &u.Extras); err != nil {
				return nil, fmt.Errorf("extras пользователя %s: %w", u.Code, err)
			}
		}
		if u.Extras == nil {
			u.Extras = map[string]string{}
		}
		users[u.Code] = u
	}
	return users, rows.Err()
}

func (s *SyncStore) LoadDepartments(ctx context.Context, dataSourceID uint64) (map[string]entities.DataSourceDepartment, error) {
	query, args, err := psql.
		Select("id", "code", "name", "parent_code", "extras").
		From(dsDepartmentTable).
		Where(sq.Eq{"data_source_id": dataSourceID}).
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.storage.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("загрузка подразделений источника %d: %w", dataSourceID, err)
	}
	defer rows.Close()

	departments := map[string]entities.DataSourceDepartment{}
	for rows.Next() {
		d := entities.DataSourceDepartment{DataSourceID: dataSourceID}
		var extras []byte
		if err := rows.Scan(&d.ID, &d.Code, &d.Name, &d.ParentCode, &extras); err != nil {
			return nil, fmt.Errorf("ошибка сканирования data_source_department: %w", err)
		}
		if len(extras) > 0 {
			if err := json.Unmarshal(extras, &d.Extras); err != nil {
				return nil, fmt.Errorf("extras подразделения %s: %w", d.Code, err)
			}
		}
		if d.Extras == nil {
			d.Extras = map[string]string{}
		}
		departments[d.Code] = d
	}
	return departments, rows.Err()
}

func (s *SyncStore) loadPairs(ctx context.Context, table, fromCol, toCol string, dataSourceID uint64) ([]syncer.RelationPair, error) {
	query, args, err := psql.
		Select(fromCol, toCol).
		From(table).
		Where(sq.Eq{"data_source_id": dataSourceID}).
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.storage.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("загрузка связей %s: %w", table, err)
	}
	defer rows.Close()

	var pairs []syncer.RelationPair
	for rows.Next() {
		var p syncer.RelationPair
		if err := rows.Scan(&p.From, &p.To); err != nil {
			return nil, err
		}
		pairs = append(pairs, p)
	}
	return pairs, rows.Err()
}

func (s *SyncStore) LoadUserLeaderPairs(ctx context.Context, dataSourceID uint64) ([]syncer.RelationPair, error) {
	return s.loadPairs(ctx, userLeaderTable, "user_code", "leader_code", dataSourceID)
}

func (s *SyncStore) LoadUserDepartmentPairs(ctx context.Context, dataSourceID uint64) ([]syncer.RelationPair, error) {
	return s.loadPairs(ctx, userDepartmentTable, "user_code", "department_code", dataSourceID)
}

func (s *SyncStore) CreateUsers(ctx context.Context, dataSourceID uint64, batch []entities.DataSourceUser) error {
	return s.txManager.RunInTransaction(ctx, func(tx pgx.Tx) error {
		builder := psql.Insert(dsUserTable).
			Columns("data_source_id", "code", "username", "full_name", "email", "phone", "extras")
		for _, u := range batch {
			extras, err := json.Marshal(u.Extras)
			if err != nil {
				return fmt.Errorf("extras пользователя %s: %w", u.Code, err)
			}
			builder = builder.Values(dataSourceID, u.Code, u.Username, u.FullName, u.Email, u.Phone, extras)
		}
		query, args, err := builder.ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("вставка пользователей: %w", err)
		}
		return nil
	})
}

func (s *SyncStore) UpdateUsers(ctx context.Context, dataSourceID uint64, batch []entities.DataSourceUser) error {
	return s.txManager.RunInTransaction(ctx, func(tx pgx.Tx) error {
		for _, u := range batch {
			extras, err := json.Marshal(u.Extras)
			if err != nil {
				return fmt.Errorf("extras пользователя %s: %w", u.Code, err)
			}
			query, args, err := psql.Update(dsUserTable).
				Set("username", u.Username).
				Set("full_name", u.FullName).
				Set("email", u.Email).
				Set("phone", u.Phone).
				Set("extras", extras).
				Set("updated_at", sq.Expr("NOW()")).
				Where(sq.Eq{"data_source_id": dataSourceID, "code": u.Code}).
				ToSql()
			if err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, query, args...); err != nil {
				return fmt.Errorf("обновление пользователя %s: %w", u.Code, err)
			}
		}
		return nil
	})
}

func (s *SyncStore) DeleteUsers(ctx context.Context, dataSourceID uint64, codes []string) error {
	return s.txManager.RunInTransaction(ctx, func(tx pgx.Tx) error {
		query, args, err := psql.Delete(dsUserTable).
			Where(sq.Eq{"data_source_id": dataSourceID, "code": codes}).
			ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("удаление пользователей: %w", err)
		}
		return nil
	})
}

func (s *SyncStore) CreateDepartments(ctx context.Context, dataSourceID uint64, batch []entities.DataSourceDepartment) error {
	return s.txManager.RunInTransaction(ctx, func(tx pgx.Tx) error {
		builder := psql.Insert(dsDepartmentTable).
			Columns("data_source_id", "code", "name", "extras")
		for _, d := range batch {
			extras, err := json.Marshal(d.Extras)
			if err != nil {
				return fmt.Errorf("extras подразделения %s: %w", d.Code, err)
			}
			builder = builder.Values(dataSourceID, d.Code, d.Name, extras)
		}
		query, args, err := builder.ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("вставка подразделений: %w", err)
		}
		return nil
	})
}

func (s *SyncStore) UpdateDepartments(ctx context.Context, dataSourceID uint64, batch []entities.DataSourceDepartment) error {
	return s.txManager.RunInTransaction(ctx, func(tx pgx.Tx) error {
		for _, d := range batch {
			extras, err := json.Marshal(d.Extras)
			if err != nil {
				return fmt.Errorf("extras подразделения %s: %w", d.Code, err)
			}
			query, args, err := psql.Update(dsDepartmentTable).
				Set("name", d.Name).
				Set("extras", extras).
				Set("updated_at", sq.Expr("NOW()")).
				Where(sq.Eq{"data_source_id": dataSourceID, "code": d.Code}).
				ToSql()
			if err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, query, args...); err != nil {
				return fmt.Errorf("обновление подразделения %s: %w", d.Code, err)
			}
		}
		return nil
	})
}

func (s *SyncStore) DeleteDepartments(ctx context.Context, dataSourceID uint64, codes []string) error {
	return s.txManager.RunInTransaction(ctx, func(tx pgx.Tx) error {
		query, args, err := psql.Delete(dsDepartmentTable).
			Where(sq.Eq{"data_source_id": dataSourceID, "code": codes}).
			ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("удаление подразделений: %w", err)
		}
		return nil
	})
}

func (s *SyncStore) SetDepartmentParents(ctx context.Context, dataSourceID uint64, pairs []syncer.RelationPair) error {
	return s.txManager.RunInTransaction(ctx, func(tx pgx.Tx) error {
		for _, pair := range pairs {
			query, args, err := psql.Update(dsDepartmentTable).
				Set("parent_code", pair.To).
				Where(sq.Eq{"data_source_id": dataSourceID, "code": pair.From}).
				ToSql()
			if err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, query, args...); err != nil {
				return fmt.Errorf("установка родителя %s -> %s: %w", pair.From, pair.To, err)
			}
		}
		return nil
	})
}

func (s *SyncStore) ClearDepartmentParents(ctx context.Context, dataSourceID uint64, pairs []syncer.RelationPair) error {
	return s.txManager.RunInTransaction(ctx, func(tx pgx.Tx) error {
		for _, pair := range pairs {
			// Сбрасываем только если родитель всё ещё тот, которого сняли:
			// установка нового родителя могла пройти раньше в этом же прогоне.
			query, args, err := psql.Update(dsDepartmentTable).
				Set("parent_code", nil).
				Where(sq.Eq{"data_source_id": dataSourceID, "code": pair.From, "parent_code": pair.To}).
				ToSql()
			if err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, query, args...); err != nil {
				return fmt.Errorf("сброс родителя %s: %w", pair.From, err)
			}
		}
		return nil
	})
}

func (s *SyncStore) AddUserLeaderPairs(ctx context.Context, dataSourceID uint64, pairs []syncer.RelationPair) error {
	return s.insertPairs(ctx, userLeaderTable, "user_code", "leader_code", dataSourceID, pairs)
}

func (s *SyncStore) RemoveUserLeaderPairs(ctx context.Context, dataSourceID uint64, pairs []syncer.RelationPair) error {
	return s.deletePairs(ctx, userLeaderTable, "user_code", "leader_code", dataSourceID, pairs)
}

func (s *SyncStore) AddUserDepartmentPairs(ctx context.Context, dataSourceID uint64, pairs []syncer.RelationPair) error {
	return s.insertPairs(ctx, userDepartmentTable, "user_code", "department_code", dataSourceID, pairs)
}

func (s *SyncStore) RemoveUserDepartmentPairs(ctx context.Context, dataSourceID uint64, pairs []syncer.RelationPair) error {
	return s.deletePairs(ctx, userDepartmentTable, "user_code", "department_code", dataSourceID, pairs)
}

func (s *SyncStore) insertPairs(ctx context.Context, table, fromCol, toCol string, dataSourceID uint64, pairs []syncer.RelationPair) error {
	return s.txManager.RunInTransaction(ctx, func(tx pgx.Tx) error {
		builder := psql.Insert(table).Columns("data_source_id", fromCol, toCol)
		for _, pair := range pairs {
			builder = builder.Values(dataSourceID, pair.From, pair.To)
		}
		query, args, err := builder.Suffix("ON CONFLICT DO NOTHING").ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("вставка связей %s: %w", table, err)
		}
		return nil
	})
}

func (s *SyncStore) deletePairs(ctx context.Context, table, fromCol, toCol string, dataSourceID uint64, pairs []syncer.RelationPair) error {
	return s.txManager.RunInTransaction(ctx, func(tx pgx.Tx) error {
		for _, pair := range pairs {
			query, args, err := psql.Delete(table).
				Where(sq.Eq{"data_source_id": dataSourceID, fromCol: pair.From, toCol: pair.To}).
				ToSql()
			if err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, query, args...); err != nil {
				return fmt.Errorf("удаление связи %s: %w", table, err)
			}
		}
		return nil
	})
}
