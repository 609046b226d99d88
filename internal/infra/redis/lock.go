// File: internal/infra/redis/lock.go
package redis

import (
	"context"
	"time"

	"ideaforge-billing/internal/domain"
	"ideaforge-billing/internal/domain/ports/adapter"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

var _ adapter.Locker = (*RedisLocker)(nil)

type RedisLocker struct {
	client  RedisClient
	retries int
	wait    time.Duration
}

// NewLocker waits up to retries*wait for a held key before giving up.
func NewLocker(c RedisClient, retries int, wait time.Duration) *RedisLocker {
	if retries <= 0 {
		retries = 5
	}
	if wait <= 0 {
		wait = 50 * time.Millisecond
	}
	return &RedisLocker{client: c, retries: retries, wait: wait}
}

func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	for i := 0; i < l.retries; i++ {
		ok, err := l.client.SetNX(ctx, key, token, ttl)
		if err == nil && ok {
			return token, nil
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(l.wait): // wait before retrying
		}
	}
	return "", domain.ErrLockNotAcquired
}

var luaUnlock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`)

func (l *RedisLocker) Unlock(ctx context.Context, key, token string) error {
	_, err := l.client.RunScript(ctx, luaUnlock, []string{key}, token)
	return err
}
