package syncer

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"identity-system/internal/entities"
	"identity-system/internal/plugins"
)

// Options — явные пороги раннера. Передаются конструктором,
// глобального состояния нет.
type Options struct {
	ApplyBatchSize int
	// Поля, исключённые из сравнения при diff-е (например, неизменяемые
	// идентификационные поля).
	ExcludedUserFields       map[string]bool
	ExcludedDepartmentFields map[string]bool
}

func (o Options) batchSize() int {
	if o.ApplyBatchSize <= 0 {
		return 200
	}
	return o.ApplyBatchSize
}

// Store — персистентная часть apply-фазы. Каждый вызов — одна пачка в
// одной транзакции; раннер сам режет изменения на пачки.
type Store interface {
	LoadUsers(ctx context.Context, dataSourceID uint64) (map[string]entities.DataSourceUser, error)
	LoadDepartments(ctx context.Context, dataSourceID uint64) (map[string]entities.DataSourceDepartment, error)
	LoadUserLeaderPairs(ctx context.Context, dataSourceID uint64) ([]RelationPair, error)
	LoadUserDepartmentPairs(ctx context.Context, dataSourceID uint64) ([]RelationPair, error)

	CreateDepartments(ctx context.Context, dataSourceID uint64, batch []entities.DataSourceDepartment) error
	UpdateDepartments(ctx context.Context, dataSourceID uint64, batch []entities.DataSourceDepartment) error
	DeleteDepartments(ctx context.Context, dataSourceID uint64, codes []string) error
	SetDepartmentParents(ctx context.Context, dataSourceID uint64, pairs []RelationPair) error
	ClearDepartmentParents(ctx context.Context, dataSourceID uint64, pairs []RelationPair) error

	CreateUsers(ctx context.Context, dataSourceID uint64, batch []entities.DataSourceUser) error
	UpdateUsers(ctx context.Context, dataSourceID uint64, batch []entities.DataSourceUser) error
	DeleteUsers(ctx context.Context, dataSourceID uint64, codes []string) error
	AddUserLeaderPairs(ctx context.Context, dataSourceID uint64, pairs []RelationPair) error
	RemoveUserLeaderPairs(ctx context.Context, dataSourceID uint64, pairs []RelationPair) error
	AddUserDepartmentPairs(ctx context.Context, dataSourceID uint64, pairs []RelationPair) error
	RemoveUserDepartmentPairs(ctx context.Context, dataSourceID uint64, pairs []RelationPair) error
}

// TaskStore ведёт запись задачи: статусы, таймстемпы, финальный лог.
type TaskStore interface {
	MarkRunning(ctx context.Context, taskID string) error
	Finish(ctx context.Context, taskID, status, logs string, hasWarning bool) error
}

// Projector — тенантная проекция, выполняется последним шагом прогона.
type Projector interface {
	ProjectDataSource(ctx context.Context, dataSource *entities.DataSource, tl *TaskLogger) error
}

// Runner прогоняет одну задачу синхронизации: fetch -> normalize -> diff ->
// apply -> projection. Состояния строго PENDING -> RUNNING -> {SUCCESS,
// FAILED}; возобновления нет — повтор это новая задача, пересчитывающая
// diff с нуля поверх текущего состояния базы.
//
// Apply-фаза коммитит каждую пачку отдельной транзакцией. Упавший прогон
// НЕ откатывает уже закоммиченные пачки: это сознательная семантика
// «применён как минимум префикс», ограничивающая размер транзакций.
// Корректность восстановления обеспечивает идемпотентность diff-а.
type Runner struct {
	store     Store
	tasks     TaskStore
	projector Projector
	opts      Options
	logger    *zap.Logger
}

func NewRunner(store Store, tasks TaskStore, projector Projector, opts Options, logger *zap.Logger) *Runner {
	return &Runner{
		store:     store,
		tasks:     tasks,
		projector: projector,
		opts:      opts,
		logger:    logger.Named("sync_runner"),
	}
}

// Run выполняет задачу до конца. Ошибка любого шага прекращает прогон:
// оставшиеся шаги пропускаются, задача уходит в FAILED с ERROR-строкой,
// называющей упавший шаг/пачку.
func (r *Runner) Run(ctx context.Context, task *entities.SyncTask, dataSource *entities.DataSource, plugin plugins.Plugin, normalizer *Normalizer) error {
	tl := NewTaskLogger()

	if err := r.tasks.MarkRunning(ctx, task.ID); err != nil {
		return fmt.Errorf("задача %s не перешла в RUNNING: %w", task.ID, err)
	}
	r.logger.Info("прогон синхронизации начат",
		zap.String("task_id", task.ID),
		zap.Uint64("data_source_id", dataSource.ID))

	runErr := r.execute(ctx, dataSource, plugin, normalizer, tl)

	status := entities.SyncTaskStatusSuccess
	if runErr != nil {
		status = entities.SyncTaskStatusFailed
	} else {
		tl.Info("синхронизация завершена успешно")
	}

	if err := r.tasks.Finish(ctx, task.ID, status, tl.Logs(), tl.HasWarning()); err != nil {
		r.logger.Error("не удалось финализировать задачу", zap.String("task_id", task.ID), zap.Error(err))
		if runErr == nil {
			return err
		}
	}

	r.logger.Info("прогон синхронизации завершён",
		zap.String("task_id", task.ID),
		zap.String("status", status),
		zap.Bool("has_warning", tl.HasWarning()))
	return runErr
}

func (r *Runner) execute(ctx context.Context, ds *entities.DataSource, plugin plugins.Plugin, normalizer *Normalizer, tl *TaskLogger) error {
	// Шаг 1: fetch users.
	tl.Info("получение пользователей из источника")
	rawUsers, err := plugin.FetchUsers(ctx)
	if err != nil {
		return r.fail(tl, "fetch_users", err)
	}
	tl.Infof("получено пользователей: %d", len(rawUsers))

	// Шаг 2: fetch departments.
	tl.Info("получение подразделений из источника")
	rawDepartments, err := plugin.FetchDepartments(ctx)
	if err != nil {
		return r.fail(tl, "fetch_departments", err)
	}
	tl.Infof("получено подразделений: %d", len(rawDepartments))

	// Шаг 3: нормализация. Дубликат code или ошибка маппинга валит прогон
	// целиком — в базу не попадает ничего.
	users, err := normalizer.NormalizeUsers(rawUsers)
	if err != nil {
		return r.fail(tl, "normalize_users", err)
	}
	departments, err := normalizer.NormalizeDepartments(rawDepartments)
	if err != nil {
		return r.fail(tl, "normalize_departments", err)
	}

	// Шаг 4: защита от битого дерева до первого коммита.
	if err := ValidateDepartmentTree(ds.ID, departments); err != nil {
		return r.fail(tl, "validate_tree", err)
	}

	// Шаг 5: diff и apply подразделений. Подразделения раньше
	// пользователей: пользователи на них ссылаются.
	existingDepartments, err := r.store.LoadDepartments(ctx, ds.ID)
	if err != nil {
		return r.fail(tl, "load_departments", err)
	}
	deptCS := DiffDepartments(ds.ID, existingDepartments, departments, r.opts.ExcludedDepartmentFields)
	tl.Infof("diff подразделений: создать %d, обновить %d, удалить %d",
		len(deptCS.Created), len(deptCS.Updated), len(deptCS.Deleted))

	parentCS := DiffRelations(CurrentParentRelations(existingDepartments), DesiredParentRelations(departments))

	// Создание подразделений полностью предшествует связям родитель-потомок.
	if err := applyBatches(ctx, tl, "apply_departments_create", deptCS.Created, r.opts.batchSize(),
		func(batch []entities.DataSourceDepartment) error { return r.store.CreateDepartments(ctx, ds.ID, batch) }); err != nil {
		return err
	}
	if err := applyBatches(ctx, tl, "apply_departments_update", deptCS.Updated, r.opts.batchSize(),
		func(batch []entities.DataSourceDepartment) error { return r.store.UpdateDepartments(ctx, ds.ID, batch) }); err != nil {
		return err
	}
	if err := applyBatches(ctx, tl, "apply_department_parents_remove", parentCS.Removed, r.opts.batchSize(),
		func(batch []RelationPair) error { return r.store.ClearDepartmentParents(ctx, ds.ID, batch) }); err != nil {
		return err
	}
	if err := applyBatches(ctx, tl, "apply_department_parents_add", parentCS.Added, r.opts.batchSize(),
		func(batch []RelationPair) error { return r.store.SetDepartmentParents(ctx, ds.ID, batch) }); err != nil {
		return err
	}

	// Шаг 6: diff и apply пользователей.
	existingUsers, err := r.store.LoadUsers(ctx, ds.ID)
	if err != nil {
		return r.fail(tl, "load_users", err)
	}
	userCS := DiffUsers(ds.ID, existingUsers, users, r.opts.ExcludedUserFields)
	tl.Infof("diff пользователей: создать %d, обновить %d, удалить %d",
		len(userCS.Created), len(userCS.Updated), len(userCS.Deleted))

	if err := applyBatches(ctx, tl, "apply_users_create", userCS.Created, r.opts.batchSize(),
		func(batch []entities.DataSourceUser) error { return r.store.CreateUsers(ctx, ds.ID, batch) }); err != nil {
		return err
	}
	if err := applyBatches(ctx, tl, "apply_users_update", userCS.Updated, r.opts.batchSize(),
		func(batch []entities.DataSourceUser) error { return r.store.UpdateUsers(ctx, ds.ID, batch) }); err != nil {
		return err
	}

	// Шаг 7: связи руководитель/членство — только когда обе стороны
	// уже существуют в этом же проходе.
	userCodes := make(map[string]bool, len(users))
	for _, u := range users {
		userCodes[u.Code] = true
	}
	departmentCodes := make(map[string]bool, len(departments))
	for _, d := range departments {
		departmentCodes[d.Code] = true
	}
	desiredLeaders, desiredMemberships := DesiredUserRelations(users, userCodes, departmentCodes, tl)

	currentLeaders, err := r.store.LoadUserLeaderPairs(ctx, ds.ID)
	if err != nil {
		return r.fail(tl, "load_leader_pairs", err)
	}
	leaderCS := DiffRelations(currentLeaders, desiredLeaders)

	currentMemberships, err := r.store.LoadUserDepartmentPairs(ctx, ds.ID)
	if err != nil {
		return r.fail(tl, "load_membership_pairs", err)
	}
	membershipCS := DiffRelations(currentMemberships, desiredMemberships)

	// Удаление связей раньше удаления сущностей: каталог ни в один момент
	// не содержит висячих ссылок.
	if err := applyBatches(ctx, tl, "apply_leader_pairs_remove", leaderCS.Removed, r.opts.batchSize(),
		func(batch []RelationPair) error { return r.store.RemoveUserLeaderPairs(ctx, ds.ID, batch) }); err != nil {
		return err
	}
	if err := applyBatches(ctx, tl, "apply_membership_pairs_remove", membershipCS.Removed, r.opts.batchSize(),
		func(batch []RelationPair) error { return r.store.RemoveUserDepartmentPairs(ctx, ds.ID, batch) }); err != nil {
		return err
	}
	if err := applyBatches(ctx, tl, "apply_leader_pairs_add", leaderCS.Added, r.opts.batchSize(),
		func(batch []RelationPair) error { return r.store.AddUserLeaderPairs(ctx, ds.ID, batch) }); err != nil {
		return err
	}
	if err := applyBatches(ctx, tl, "apply_membership_pairs_add", membershipCS.Added, r.opts.batchSize(),
		func(batch []RelationPair) error { return r.store.AddUserDepartmentPairs(ctx, ds.ID, batch) }); err != nil {
		return err
	}

	// Шаг 8: удаление сущностей — после удаления связей на них.
	if err := applyBatches(ctx, tl, "apply_users_delete", userCS.Deleted, r.opts.batchSize(),
		func(batch []string) error { return r.store.DeleteUsers(ctx, ds.ID, batch) }); err != nil {
		return err
	}
	if err := applyBatches(ctx, tl, "apply_departments_delete", deptCS.Deleted, r.opts.batchSize(),
		func(batch []string) error { return r.store.DeleteDepartments(ctx, ds.ID, batch) }); err != nil {
		return err
	}

	// Шаг 9: проекция в тенанты.
	tl.Info("проекция пользователей и подразделений в тенанты")
	if err := r.projector.ProjectDataSource(ctx, ds, tl); err != nil {
		return r.fail(tl, "tenant_projection", err)
	}

	return nil
}

func (r *Runner) fail(tl *TaskLogger, step string, err error) error {
	tl.Errorf("шаг %s: %v", step, err)
	return fmt.Errorf("шаг %s: %w", step, err)
}

// applyBatches применяет изменения пачками: одна пачка — одна транзакция.
// Ошибка пачки прекращает прогон; уже закоммиченные пачки остаются.
func applyBatches[T any](ctx context.Context, tl *TaskLogger, step string, items []T, size int, apply func([]T) error) error {
	chunks := Chunk(items, size)
	for i, batch := range chunks {
		if err := apply(batch); err != nil {
			tl.Errorf("шаг %s: пачка %d/%d не применена: %v", step, i+1, len(chunks), err)
			return fmt.Errorf("шаг %s, пачка %d/%d: %w", step, i+1, len(chunks), err)
		}
	}
	if len(chunks) > 0 {
		tl.Infof("шаг %s: применено пачек %d", step, len(chunks))
	}
	return nil
}
