package adapter

import (
	"context"
	"time"
)

// CacheStore is a best-effort key/value store. Failures never surface:
// a failed Get is a miss and a failed Set or Delete is a no-op.
type CacheStore interface {
	// Get decodes the value under key into dst and reports a hit.
	Get(ctx context.Context, key string, dst any) bool
	Set(ctx context.Context, key string, value any, ttl time.Duration)
	Delete(ctx context.Context, key string)
}

// Locker serializes work on a key across processes.
type Locker interface {
	// TryLock returns domain.ErrLockNotAcquired when the key stays held.
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
}
