package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// releaseScript удаляет ключ только если он всё ещё принадлежит нашему токену
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisLocker сериализует запросы между несколькими экземплярами сервиса.
// Порядок ожидающих не гарантируется; TTL ключа ограничивает время удержания.
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
	wait   time.Duration
	retry  time.Duration
	logger *zap.Logger
}

// NewRedisLocker создаёт распределённый локер поверх SET NX PX
func NewRedisLocker(client *redis.Client, ttl, wait time.Duration, logger *zap.Logger) *RedisLocker {
	return &RedisLocker{
		client: client,
		ttl:    ttl,
		wait:   wait,
		retry:  25 * time.Millisecond,
		logger: logger,
	}
}

func lockKey(providerID int64) string {
	return fmt.Sprintf("booking:lock:provider:%d", providerID)
}

// Acquire пытается занять ключ провайдера до истечения времени ожидания
func (l *RedisLocker) Acquire(ctx context.Context, providerID int64) (*Lease, error) {
	waitCtx := ctx
	if l.wait > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, l.wait)
		defer cancel()
	}

	key := lockKey(providerID)
	token := uuid.NewString()

	for {
		ok, err := l.client.SetNX(waitCtx, key, token, l.ttl).Result()
		if err != nil {
			if waitCtx.Err() != nil {
				return nil, fmt.Errorf("%w: provider %d", ErrTimeout, providerID)
			}
			return nil, fmt.Errorf("acquire redis lock: %w", err)
		}

		if ok {
			leaseCtx, cancel := context.WithTimeout(context.Background(), l.ttl)
			lease := newLease(providerID, token, leaseCtx, cancel, func() {
				l.release(providerID, key, token)
			})
			return lease, nil
		}

		select {
		case <-waitCtx.Done():
			return nil, fmt.Errorf("%w: provider %d", ErrTimeout, providerID)
		case <-time.After(l.retry):
		}
	}
}

func (l *RedisLocker) release(providerID int64, key, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	deleted, err := releaseScript.Run(ctx, l.client, []string{key}, token).Int()
	if err != nil {
		l.logger.Error("Failed to release redis lock",
			zap.Int64("provider_id", providerID),
			zap.Error(err),
		)
		return
	}

	if deleted == 0 {
		l.logger.Warn("Redis lock expired before release",
			zap.Int64("provider_id", providerID),
			zap.String("token", token),
		)
	}
}
