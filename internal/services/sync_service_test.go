package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"identity-system/internal/dto"
	"identity-system/internal/entities"
	"identity-system/internal/repositories"
	"identity-system/internal/syncer"
	"identity-system/pkg/config"
	apperrors "identity-system/pkg/errors"
)

type fakeDataSourceRepo struct {
	repositories.DataSourceRepositoryInterface
	source *entities.DataSource
}

func (r *fakeDataSourceRepo) FindDataSource(_ context.Context, _ uint64) (*entities.DataSource, error) {
	if r.source == nil {
		return nil, apperrors.ErrNotFound
	}
	return r.source, nil
}

func (r *fakeDataSourceRepo) GetFieldMappings(_ context.Context, _ uint64) ([]dto.FieldMappingDTO, error) {
	return nil, nil
}

type fakeTaskRepo struct {
	repositories.SyncTaskRepositoryInterface
	created   *entities.SyncTask
	createErr error
	finished  chan string
}

func (r *fakeTaskRepo) CreateTask(_ context.Context, task entities.SyncTask) (*entities.SyncTask, error) {
	if r.createErr != nil {
		return nil, r.createErr
	}
	task.ID = "task-1"
	task.Status = entities.SyncTaskStatusPending
	r.created = &task
	return &task, nil
}

func (r *fakeTaskRepo) MarkRunning(_ context.Context, _ string) error { return nil }

func (r *fakeTaskRepo) Finish(_ context.Context, _ string, status, _ string, _ bool) error {
	if r.finished != nil {
		r.finished <- status
	}
	return nil
}

type fakeLockRepo struct {
	busy      bool
	acquired  int
	released  chan struct{}
}

func (r *fakeLockRepo) Acquire(_ context.Context, _ uint64, _ string, _ time.Duration) (bool, error) {
	if r.busy {
		return false, nil
	}
	r.acquired++
	return true, nil
}

func (r *fakeLockRepo) Release(_ context.Context, _ uint64, _ string) error {
	if r.released != nil {
		r.released <- struct{}{}
	}
	return nil
}

// emptyStore отдаёт пустое состояние: прогону нечего применять.
type emptyStore struct {
	syncer.Store
}

func (emptyStore) LoadUsers(_ context.Context, _ uint64) (map[string]entities.DataSourceUser, error) {
	return map[string]entities.DataSourceUser{}, nil
}

func (emptyStore) LoadDepartments(_ context.Context, _ uint64) (map[string]entities.DataSourceDepartment, error) {
	return map[string]entities.DataSourceDepartment{}, nil
}

func (emptyStore) LoadUserLeaderPairs(_ context.Context, _ uint64) ([]syncer.RelationPair, error) {
	return nil, nil
}

func (emptyStore) LoadUserDepartmentPairs(_ context.Context, _ uint64) ([]syncer.RelationPair, error) {
	return nil, nil
}

type noopProjector struct{}

func (noopProjector) ProjectDataSource(_ context.Context, _ *entities.DataSource, _ *syncer.TaskLogger) error {
	return nil
}

func generalSource(enabled bool) *entities.DataSource {
	cfg, _ := json.Marshal(map[string]interface{}{
		"server_base_url":  "http://127.0.0.1:1", // закрытый порт: fetch упадёт
		"users_path":       "/users",
		"departments_path": "/departments",
		"auth_method":      "none",
	})
	return &entities.DataSource{ID: 1, TenantID: "t1", Name: "rest", PluginType: "general", PluginConfig: cfg, Enabled: enabled}
}

func newTestSyncService(dsRepo *fakeDataSourceRepo, taskRepo *fakeTaskRepo, lockRepo *fakeLockRepo) SyncServiceInterface {
	runner := syncer.NewRunner(emptyStore{}, taskRepo, noopProjector{}, syncer.Options{}, zap.NewNop())
	return NewSyncService(dsRepo, taskRepo, lockRepo, runner, NewLogNotifier(zap.NewNop()), config.SyncConfig{
		ApplyBatchSize: 10,
		LockTTL:        time.Minute,
		PluginTimeout:  time.Second,
	}, zap.NewNop())
}

func TestTriggerSync_DisabledSource(t *testing.T) {
	svc := newTestSyncService(&fakeDataSourceRepo{source: generalSource(false)}, &fakeTaskRepo{}, &fakeLockRepo{})

	_, err := svc.TriggerSync(context.Background(), 1, entities.SyncTriggerManual)
	require.ErrorIs(t, err, apperrors.ErrDataSourceOff)
}

// Занятый источник — немедленный отказ, в очередь запрос не встаёт.
func TestTriggerSync_Busy(t *testing.T) {
	taskRepo := &fakeTaskRepo{}
	svc := newTestSyncService(&fakeDataSourceRepo{source: generalSource(true)}, taskRepo, &fakeLockRepo{busy: true})

	_, err := svc.TriggerSync(context.Background(), 1, entities.SyncTriggerManual)
	require.ErrorIs(t, err, apperrors.ErrSyncInProgress)
	assert.Nil(t, taskRepo.created)
}

func TestTriggerSync_ReleasesLockOnCreateFailure(t *testing.T) {
	lockRepo := &fakeLockRepo{released: make(chan struct{}, 1)}
	taskRepo := &fakeTaskRepo{createErr: assert.AnError}
	svc := newTestSyncService(&fakeDataSourceRepo{source: generalSource(true)}, taskRepo, lockRepo)

	_, err := svc.TriggerSync(context.Background(), 1, entities.SyncTriggerManual)
	require.Error(t, err)

	select {
	case <-lockRepo.released:
	case <-time.After(time.Second):
		t.Fatal("блокировка не освобождена")
	}
}

// Полный цикл: задача создаётся, прогон идёт в фоне, по завершении
// блокировка освобождается и задача финализирована.
func TestTriggerSync_RunsInBackground(t *testing.T) {
	lockRepo := &fakeLockRepo{released: make(chan struct{}, 1)}
	taskRepo := &fakeTaskRepo{finished: make(chan string, 1)}
	svc := newTestSyncService(&fakeDataSourceRepo{source: generalSource(true)}, taskRepo, lockRepo)

	resp, err := svc.TriggerSync(context.Background(), 1, entities.SyncTriggerManual)
	require.NoError(t, err)
	assert.Equal(t, "task-1", resp.TaskID)
	require.NotNil(t, taskRepo.created)
	assert.Equal(t, entities.SyncTriggerManual, taskRepo.created.Trigger)

	// Источник указывает на закрытый порт: прогон завершается FAILED,
	// но блокировка обязана освободиться.
	select {
	case status := <-taskRepo.finished:
		assert.Equal(t, entities.SyncTaskStatusFailed, status)
	case <-time.After(10 * time.Second):
		t.Fatal("задача не финализирована")
	}
	select {
	case <-lockRepo.released:
	case <-time.After(time.Second):
		t.Fatal("блокировка не освобождена после прогона")
	}
}

func TestTestConnection_UnknownPlugin(t *testing.T) {
	svc := newTestSyncService(&fakeDataSourceRepo{}, &fakeTaskRepo{}, &fakeLockRepo{})

	_, err := svc.TestConnection(context.Background(), "scim", []byte(`{}`))
	require.ErrorIs(t, err, apperrors.ErrUnknownPlugin)
}
