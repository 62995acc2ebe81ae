package repositories

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"identity-system/internal/entities"
	"identity-system/internal/syncer"
	apperrors "identity-system/pkg/errors"
)

const syncTaskTable = "sync_tasks"

// SyncTaskRepositoryInterface — запись задачи прогона. Задачи не
// удаляются: это аудиторский след; ретеншн — забота внешней политики.
type SyncTaskRepositoryInterface interface {
	syncer.TaskStore
	CreateTask(ctx context.Context, task entities.SyncTask) (*entities.SyncTask, error)
	FindTask(ctx context.Context, id string) (*entities.SyncTask, error)
	ListTasksByDataSource(ctx context.Context, dataSourceID uint64, limit uint64) ([]entities.SyncTask, error)
}

type SyncTaskRepository struct {
	storage *pgxpool.Pool
	logger  *zap.Logger
}

func NewSyncTaskRepository(storage *pgxpool.Pool, logger *zap.Logger) SyncTaskRepositoryInterface {
	return &SyncTaskRepository{storage: storage, logger: logger}
}

const syncTaskColumns = "id, data_source_id, tenant_id, status, trigger_kind, has_warning, logs, started_at, finished_at, created_at"

func scanSyncTask(row pgx.Row) (*entities.SyncTask, error) {
	var t entities.SyncTask
	err := row.Scan(&t.ID, &t.DataSourceID, &t.TenantID, &t.Status, &t.Trigger,
		&t.HasWarning, &t.Logs, &t.StartedAt, &t.FinishedAt, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка сканирования sync_task: %w", err)
	}
	return &t, nil
}

func (r *SyncTaskRepository) CreateTask(ctx context.Context, task entities.SyncTask) (*entities.SyncTask, error) {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if task.Status == "" {
		task.Status = entities.SyncTaskStatusPending
	}

	query, args, err := psql.Insert(syncTaskTable).
		Columns("id", "data_source_id", "tenant_id", "status", "trigger_kind").
		Values(task.ID, task.DataSourceID, task.TenantID, task.Status, task.Trigger).
		Suffix("RETURNING " + syncTaskColumns).
		ToSql()
	if err != nil {
		return nil, err
	}
	return scanSyncTask(r.storage.QueryRow(ctx, query, args...))
}

func (r *SyncTaskRepository) MarkRunning(ctx context.Context, taskID string) error {
	query, args, err := psql.Update(syncTaskTable).
		Set("status", entities.SyncTaskStatusRunning).
		Set("started_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": taskID, "status": entities.SyncTaskStatusPending}).
		ToSql()
	if err != nil {
		return err
	}
	tag, err := r.storage.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("перевод задачи %s в RUNNING: %w", taskID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("задача %s не в состоянии PENDING", taskID)
	}
	return nil
}

func (r *SyncTaskRepository) Finish(ctx context.Context, taskID, status, logs string, hasWarning bool) error {
	query, args, err := psql.Update(syncTaskTable).
		Set("status", status).
		Set("logs", logs).
		Set("has_warning", hasWarning).
		Set("finished_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": taskID, "status": entities.SyncTaskStatusRunning}).
		ToSql()
	if err != nil {
		return err
	}
	tag, err := r.storage.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("финализация задачи %s: %w", taskID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("задача %s не в состоянии RUNNING", taskID)
	}
	return nil
}

func (r *SyncTaskRepository) FindTask(ctx context.Context, id string) (*entities.SyncTask, error) {
	query, args, err := psql.Select(syncTaskColumns).From(syncTaskTable).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, err
	}
	return scanSyncTask(r.storage.QueryRow(ctx, query, args...))
}

func (r *SyncTaskRepository) ListTasksByDataSource(ctx context.Context, dataSourceID uint64, limit uint64) ([]entities.SyncTask, error) {
	if limit == 0 {
		limit = 50
	}
	query, args, err := psql.Select(syncTaskColumns).
		From(syncTaskTable).
		Where(sq.Eq{"data_source_id": dataSourceID}).
		OrderBy("created_at DESC").
		Limit(limit).
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.storage.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("задачи источника %d: %w", dataSourceID, err)
	}
	defer rows.Close()

	var tasks []entities.SyncTask
	for rows.Next() {
		t, err := scanSyncTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}
