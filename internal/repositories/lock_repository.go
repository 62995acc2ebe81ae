package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// SyncLockRepositoryInterface — advisory-блокировка на источник данных.
// Одновременно по одному источнику может идти только один прогон.
type SyncLockRepositoryInterface interface {
	Acquire(ctx context.Context, dataSourceID uint64, token string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, dataSourceID uint64, token string) error
}

type SyncLockRepository struct {
	redisClient *redis.Client
	logger      *zap.Logger
}

func NewSyncLockRepository(redisClient *redis.Client, logger *zap.Logger) SyncLockRepositoryInterface {
	return &SyncLockRepository{redisClient: redisClient, logger: logger}
}

func lockKey(dataSourceID uint64) string {
	return fmt.Sprintf("sync:lock:%d", dataSourceID)
}

// Скрипт освобождения: удаляем ключ только если токен наш, чтобы
// просроченная блокировка не снесла чужую.
const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end`

func (r *SyncLockRepository) Acquire(ctx context.Context, dataSourceID uint64, token string, ttl time.Duration) (bool, error) {
	ok, err := r.redisClient.SetNX(ctx, lockKey(dataSourceID), token, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("захват блокировки источника %d: %w", dataSourceID, err)
	}
	return ok, nil
}

func (r *SyncLockRepository) Release(ctx context.Context, dataSourceID uint64, token string) error {
	released, err := r.redisClient.Eval(ctx, releaseScript, []string{lockKey(dataSourceID)}, token).Int()
	if err != nil {
		return fmt.Errorf("освобождение блокировки источника %d: %w", dataSourceID, err)
	}
	if released == 0 {
		r.logger.Warn("блокировка синхронизации уже истекла или захвачена другим прогоном",
			zap.Uint64("data_source_id", dataSourceID))
	}
	return nil
}
