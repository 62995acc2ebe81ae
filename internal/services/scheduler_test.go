package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"identity-system/internal/dto"
	"identity-system/internal/entities"
	"identity-system/internal/repositories"
	apperrors "identity-system/pkg/errors"
)

type fakeListRepo struct {
	repositories.DataSourceRepositoryInterface
	sources []entities.DataSource
}

func (r *fakeListRepo) ListEnabledDataSources(_ context.Context) ([]entities.DataSource, error) {
	return r.sources, nil
}

type fakeTaskListRepo struct {
	repositories.SyncTaskRepositoryInterface
	lastTasks map[uint64][]entities.SyncTask
}

func (r *fakeTaskListRepo) ListTasksByDataSource(_ context.Context, dataSourceID uint64, _ uint64) ([]entities.SyncTask, error) {
	return r.lastTasks[dataSourceID], nil
}

type recordingSyncService struct {
	SyncServiceInterface
	triggered []uint64
	err       error
}

func (s *recordingSyncService) TriggerSync(_ context.Context, dataSourceID uint64, trigger string) (*dto.TriggerSyncResponseDTO, error) {
	s.triggered = append(s.triggered, dataSourceID)
	if s.err != nil {
		return nil, s.err
	}
	return &dto.TriggerSyncResponseDTO{TaskID: "task"}, nil
}

func TestScheduler_RunDue(t *testing.T) {
	now := time.Now()
	recent := now.Add(-time.Minute)
	stale := now.Add(-2 * time.Hour)

	dsRepo := &fakeListRepo{sources: []entities.DataSource{
		{ID: 1, SyncInterval: time.Hour},  // прогонов не было — пора
		{ID: 2, SyncInterval: time.Hour},  // недавний прогон — рано
		{ID: 3, SyncInterval: time.Hour},  // давний прогон — пора
		{ID: 4, SyncInterval: 0},          // расписание выключено
	}}
	taskRepo := &fakeTaskListRepo{lastTasks: map[uint64][]entities.SyncTask{
		2: {{ID: "t2", StartedAt: &recent, CreatedAt: recent}},
		3: {{ID: "t3", StartedAt: &stale, CreatedAt: stale}},
	}}
	syncSvc := &recordingSyncService{}

	s := NewScheduler(dsRepo, taskRepo, syncSvc, time.Minute, zap.NewNop())
	s.runDue(context.Background())

	assert.Equal(t, []uint64{1, 3}, syncSvc.triggered)
}

// Занятый источник молча пропускается до следующего тика.
func TestScheduler_SkipsBusySources(t *testing.T) {
	dsRepo := &fakeListRepo{sources: []entities.DataSource{
		{ID: 1, SyncInterval: time.Hour},
	}}
	taskRepo := &fakeTaskListRepo{lastTasks: map[uint64][]entities.SyncTask{}}
	syncSvc := &recordingSyncService{err: apperrors.ErrSyncInProgress}

	s := NewScheduler(dsRepo, taskRepo, syncSvc, time.Minute, zap.NewNop())
	s.runDue(context.Background())

	assert.Equal(t, []uint64{1}, syncSvc.triggered)
}
