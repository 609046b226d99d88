package localcache

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"ideaforge-billing/internal/domain"
	"ideaforge-billing/internal/domain/ports/adapter"
)

var _ adapter.Locker = (*KeyedLocker)(nil)

type held struct {
	token     string
	expiresAt time.Time
}

// KeyedLocker is an in-process Locker with the same TTL semantics as the
// Redis one: an expired holder loses the key.
type KeyedLocker struct {
	mu      sync.Mutex
	keys    map[string]held
	retries int
	wait    time.Duration
	now     func() time.Time
}

func NewKeyedLocker(retries int, wait time.Duration) *KeyedLocker {
	if retries <= 0 {
		retries = 5
	}
	if wait <= 0 {
		wait = 50 * time.Millisecond
	}
	return &KeyedLocker{keys: make(map[string]held), retries: retries, wait: wait, now: time.Now}
}

func (l *KeyedLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	for i := 0; i < l.retries; i++ {
		if token, ok := l.acquire(key, ttl); ok {
			return token, nil
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(l.wait):
		}
	}
	return "", domain.ErrLockNotAcquired
}

func (l *KeyedLocker) acquire(key string, ttl time.Duration) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if h, ok := l.keys[key]; ok && now.Before(h.expiresAt) {
		return "", false
	}
	token := uuid.NewString()
	l.keys[key] = held{token: token, expiresAt: now.Add(ttl)}
	return token, true
}

func (l *KeyedLocker) Unlock(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if h, ok := l.keys[key]; ok && h.token == token {
		delete(l.keys, key)
	}
	return nil
}
