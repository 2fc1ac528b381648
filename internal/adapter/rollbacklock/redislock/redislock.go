// Package redislock implements domain.RollbackLock as a single-instance
// Redis SET-NX lock with an ownership token, the same mitigation shape as
// the rate limiter's Redis usage elsewhere in the example pack, scaled down
// from sliding-window counting to a plain mutual-exclusion lease.
package redislock

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/godon-project/breeder-worker/internal/domain"
)

const keyPrefix = "breeder:rollback_lock:"

// releaseScript deletes the key only if it still holds this holder's token,
// so a lock that already expired and was re-acquired by someone else is
// never released out from under them.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`

// Lock implements domain.RollbackLock over a *redis.Client.
type Lock struct {
	client  *redis.Client
	logger  *slog.Logger
	mu      sync.Mutex
	holders map[string]string
}

// New constructs a Lock.
func New(client *redis.Client, logger *slog.Logger) *Lock {
	if logger == nil {
		logger = slog.Default()
	}
	return &Lock{client: client, logger: logger, holders: map[string]string{}}
}

// TryAcquire implements domain.RollbackLock.
func (l *Lock) TryAcquire(ctx domain.Context, key string, ttl int64) (bool, error) {
	token := uuid.New().String()
	ok, err := l.client.SetNX(ctx, keyPrefix+key, token, time.Duration(ttl)*time.Second).Result()
	if err != nil {
		return false, fmt.Errorf("op=redislock.try_acquire: %w", err)
	}
	if ok {
		l.mu.Lock()
		l.holders[key] = token
		l.mu.Unlock()
	}
	return ok, nil
}

// Release implements domain.RollbackLock.
func (l *Lock) Release(ctx domain.Context, key string) error {
	l.mu.Lock()
	token, held := l.holders[key]
	if held {
		delete(l.holders, key)
	}
	l.mu.Unlock()
	if !held {
		return nil
	}

	if err := l.client.Eval(ctx, releaseScript, []string{keyPrefix + key}, token).Err(); err != nil {
		l.logger.Warn("rollback lock release failed", slog.String("key", key), slog.Any("error", err))
		return fmt.Errorf("op=redislock.release: %w", err)
	}
	return nil
}
