// Package localcache holds in-process implementations of the cache and lock
// ports for single-instance deployments and for running without Redis.
package localcache

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"ideaforge-billing/internal/domain/ports/adapter"
	"ideaforge-billing/internal/infra/metrics"
)

var _ adapter.CacheStore = (*LRUStore)(nil)

type entry struct {
	data      []byte
	expiresAt time.Time
}

// LRUStore is a size-bounded in-memory cache. Values are stored JSON-encoded
// so callers observe the same copy semantics as with Redis.
type LRUStore struct {
	lru *expirable.LRU[string, entry]
	now func() time.Time
}

// NewLRUStore bounds the store to size entries; maxTTL caps every entry's lifetime.
func NewLRUStore(size int, maxTTL time.Duration) *LRUStore {
	if size <= 0 {
		size = 10000
	}
	return &LRUStore{
		lru: expirable.NewLRU[string, entry](size, nil, maxTTL),
		now: time.Now,
	}
}

func (s *LRUStore) Get(_ context.Context, key string, dst any) bool {
	name := cacheName(key)
	e, ok := s.lru.Get(key)
	if !ok {
		metrics.IncCacheRequest(name, "miss")
		return false
	}
	if !e.expiresAt.IsZero() && !s.now().Before(e.expiresAt) {
		s.lru.Remove(key)
		metrics.IncCacheRequest(name, "miss")
		return false
	}
	if err := json.Unmarshal(e.data, dst); err != nil {
		metrics.IncCacheRequest(name, "miss")
		return false
	}
	metrics.IncCacheRequest(name, "hit")
	return true
}

func (s *LRUStore) Set(_ context.Context, key string, value any, ttl time.Duration) {
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	e := entry{data: data}
	if ttl > 0 {
		e.expiresAt = s.now().Add(ttl)
	}
	s.lru.Add(key, e)
}

func (s *LRUStore) Delete(_ context.Context, key string) {
	s.lru.Remove(key)
}

func cacheName(key string) string {
	if i := strings.IndexByte(key, ':'); i > 0 {
		return key[:i]
	}
	return "default"
}
