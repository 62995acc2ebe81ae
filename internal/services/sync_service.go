package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"identity-system/internal/dto"
	"identity-system/internal/entities"
	"identity-system/internal/plugins"
	"identity-system/internal/repositories"
	"identity-system/internal/syncer"
	"identity-system/pkg/config"
	apperrors "identity-system/pkg/errors"
)

type SyncServiceInterface interface {
	TriggerSync(ctx context.Context, dataSourceID uint64, trigger string) (*dto.TriggerSyncResponseDTO, error)
	GetTask(ctx context.Context, taskID string) (*dto.SyncTaskDTO, error)
	ListTasks(ctx context.Context, dataSourceID uint64, limit uint64) ([]dto.SyncTaskDTO, error)
	TestConnection(ctx context.Context, pluginType string, cfg []byte) (*dto.TestConnectionResult, error)
}

// SyncService запускает и отслеживает прогоны синхронизации. Сам прогон
// выполняется в фоне; HTTP-вызов возвращается сразу после создания задачи.
type SyncService struct {
	dsRepo   repositories.DataSourceRepositoryInterface
	taskRepo repositories.SyncTaskRepositoryInterface
	lockRepo repositories.SyncLockRepositoryInterface
	runner   *syncer.Runner
	notifier Notifier
	syncCfg  config.SyncConfig
	logger   *zap.Logger
}

func NewSyncService(
	dsRepo repositories.DataSourceRepositoryInterface,
	taskRepo repositories.SyncTaskRepositoryInterface,
	lockRepo repositories.SyncLockRepositoryInterface,
	runner *syncer.Runner,
	notifier Notifier,
	syncCfg config.SyncConfig,
	logger *zap.Logger,
) SyncServiceInterface {
	return &SyncService{
		dsRepo:   dsRepo,
		taskRepo: taskRepo,
		lockRepo: lockRepo,
		runner:   runner,
		notifier: notifier,
		syncCfg:  syncCfg,
		logger:   logger.Named("sync_service"),
	}
}

// TriggerSync создаёт задачу и запускает прогон в фоне. Если по источнику
// уже идёт прогон — немедленный отказ с ErrSyncInProgress, без очереди.
func (s *SyncService) TriggerSync(ctx context.Context, dataSourceID uint64, trigger string) (*dto.TriggerSyncResponseDTO, error) {
	ds, err := s.dsRepo.FindDataSource(ctx, dataSourceID)
	if err != nil {
		return nil, err
	}
	if !ds.Enabled {
		return nil, apperrors.ErrDataSourceOff
	}

	plugin, err := plugins.New(ds.PluginType, ds.PluginConfig, s.logger)
	if err != nil {
		return nil, fmt.Errorf("сборка плагина источника %d: %w", ds.ID, err)
	}
	mappings, err := s.dsRepo.GetFieldMappings(ctx, ds.ID)
	if err != nil {
		return nil, err
	}
	normalizer := syncer.NewNormalizer(ds.PluginType, mappings)

	token := uuid.NewString()
	acquired, err := s.lockRepo.Acquire(ctx, ds.ID, token, s.syncCfg.LockTTL)
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, apperrors.ErrSyncInProgress
	}

	task, err := s.taskRepo.CreateTask(ctx, entities.SyncTask{
		DataSourceID: ds.ID,
		TenantID:     ds.TenantID,
		Trigger:      trigger,
	})
	if err != nil {
		if relErr := s.lockRepo.Release(ctx, ds.ID, token); relErr != nil {
			s.logger.Error("блокировка не освобождена после отказа создания задачи",
				zap.Uint64("data_source_id", ds.ID), zap.Error(relErr))
		}
		return nil, err
	}

	go s.runTask(task, ds, plugin, normalizer, token)

	return &dto.TriggerSyncResponseDTO{TaskID: task.ID}, nil
}

// runTask — фоновая часть прогона. Контекст родительского HTTP-запроса
// не используется: прогон живёт дольше запроса.
func (s *SyncService) runTask(task *entities.SyncTask, ds *entities.DataSource, plugin plugins.Plugin, normalizer *syncer.Normalizer, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.syncCfg.LockTTL)
	defer cancel()
	defer func() {
		if err := s.lockRepo.Release(context.Background(), ds.ID, token); err != nil {
			s.logger.Error("блокировка синхронизации не освобождена",
				zap.Uint64("data_source_id", ds.ID), zap.Error(err))
		}
	}()

	if err := s.runner.Run(ctx, task, ds, plugin, normalizer); err != nil {
		s.logger.Error("прогон синхронизации упал",
			zap.String("task_id", task.ID),
			zap.Uint64("data_source_id", ds.ID),
			zap.Error(err))
		if nerr := s.notifier.Notify(ctx, "log", NotifySceneSyncFailed, ds.TenantID, map[string]string{
			"data_source": ds.Name,
			"task_id":     task.ID,
			"error":       err.Error(),
		}); nerr != nil {
			s.logger.Warn("уведомление о сбое не отправлено", zap.Error(nerr))
		}
	}
}

func (s *SyncService) GetTask(ctx context.Context, taskID string) (*dto.SyncTaskDTO, error) {
	task, err := s.taskRepo.FindTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	out := taskToDTO(*task)
	return &out, nil
}

func (s *SyncService) ListTasks(ctx context.Context, dataSourceID uint64, limit uint64) ([]dto.SyncTaskDTO, error) {
	tasks, err := s.taskRepo.ListTasksByDataSource(ctx, dataSourceID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]dto.SyncTaskDTO, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, taskToDTO(t))
	}
	return out, nil
}

// TestConnection проверяет конфигурацию до сохранения источника.
// Ожидаемые сбои соединения приходят в ErrorMessage, не ошибкой.
func (s *SyncService) TestConnection(ctx context.Context, pluginType string, cfg []byte) (*dto.TestConnectionResult, error) {
	plugin, err := plugins.New(pluginType, cfg, s.logger)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.syncCfg.PluginTimeout)
	defer cancel()
	result := plugin.TestConnection(ctx)
	return &result, nil
}

func taskToDTO(t entities.SyncTask) dto.SyncTaskDTO {
	return dto.SyncTaskDTO{
		ID:           t.ID,
		DataSourceID: t.DataSourceID,
		TenantID:     t.TenantID,
		Status:       t.Status,
		Trigger:      t.Trigger,
		HasWarning:   t.HasWarning,
		Logs:         t.Logs,
		StartedAt:    t.StartedAt,
		FinishedAt:   t.FinishedAt,
	}
}
