package services

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"identity-system/internal/entities"
	"identity-system/internal/repositories"
	apperrors "identity-system/pkg/errors"
)

// Scheduler периодически обходит включённые источники и запускает
// синхронизацию тем, у кого истёк интервал. Занятый источник просто
// пропускается до следующего тика — очереди нет.
type Scheduler struct {
	dsRepo      repositories.DataSourceRepositoryInterface
	taskRepo    repositories.SyncTaskRepositoryInterface
	syncService SyncServiceInterface
	tick        time.Duration
	logger      *zap.Logger
}

func NewScheduler(
	dsRepo repositories.DataSourceRepositoryInterface,
	taskRepo repositories.SyncTaskRepositoryInterface,
	syncService SyncServiceInterface,
	tick time.Duration,
	logger *zap.Logger,
) *Scheduler {
	return &Scheduler{
		dsRepo:      dsRepo,
		taskRepo:    taskRepo,
		syncService: syncService,
		tick:        tick,
		logger:      logger.Named("sync_scheduler"),
	}
}

// Run блокируется до отмены контекста. Запускать в отдельной горутине.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	s.logger.Info("планировщик синхронизации запущен", zap.Duration("tick", s.tick))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("планировщик синхронизации остановлен")
			return
		case <-ticker.C:
			s.runDue(ctx)
		}
	}
}

func (s *Scheduler) runDue(ctx context.Context) {
	sources, err := s.dsRepo.ListEnabledDataSources(ctx)
	if err != nil {
		s.logger.Error("не удалось получить список источников", zap.Error(err))
		return
	}

	now := time.Now()
	for _, ds := range sources {
		if ds.SyncInterval <= 0 {
			continue
		}
		due, err := s.isDue(ctx, &ds, now)
		if err != nil {
			s.logger.Error("проверка расписания источника",
				zap.Uint64("data_source_id", ds.ID), zap.Error(err))
			continue
		}
		if !due {
			continue
		}

		if _, err := s.syncService.TriggerSync(ctx, ds.ID, entities.SyncTriggerScheduled); err != nil {
			if errors.Is(err, apperrors.ErrSyncInProgress) {
				continue
			}
			s.logger.Error("плановый запуск синхронизации не удался",
				zap.Uint64("data_source_id", ds.ID), zap.Error(err))
		}
	}
}

// isDue: интервал отсчитывается от начала последнего прогона; если
// прогонов ещё не было — источник должен синхронизироваться сразу.
func (s *Scheduler) isDue(ctx context.Context, ds *entities.DataSource, now time.Time) (bool, error) {
	tasks, err := s.taskRepo.ListTasksByDataSource(ctx, ds.ID, 1)
	if err != nil {
		return false, err
	}
	if len(tasks) == 0 {
		return true, nil
	}
	last := tasks[0]
	ref := last.CreatedAt
	if last.StartedAt != nil {
		ref = *last.StartedAt
	}
	return now.Sub(ref) >= ds.SyncInterval, nil
}
