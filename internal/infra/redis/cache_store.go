package redis

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"ideaforge-billing/internal/domain/ports/adapter"
	"ideaforge-billing/internal/infra/metrics"
)

var _ adapter.CacheStore = (*CacheStore)(nil)

// CacheStore keeps JSON values in Redis. Any Redis or decoding failure is
// reported as a miss; write failures are logged and dropped.
type CacheStore struct {
	client RedisClient
	log    zerolog.Logger
}

func NewCacheStore(client RedisClient, logger *zerolog.Logger) *CacheStore {
	return &CacheStore{
		client: client,
		log:    logger.With().Str("component", "redis_cache").Logger(),
	}
}

func (c *CacheStore) Get(ctx context.Context, key string, dst any) bool {
	name := cacheName(key)
	raw, err := c.client.Get(ctx, key)
	if err != nil {
		if !IsNil(err) {
			c.log.Warn().Err(err).Str("key", key).Msg("cache get failed; treating as miss")
		}
		metrics.IncCacheRequest(name, "miss")
		return false
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("cache value undecodable; treating as miss")
		metrics.IncCacheRequest(name, "miss")
		return false
	}
	metrics.IncCacheRequest(name, "hit")
	return true
}

func (c *CacheStore) Set(ctx context.Context, key string, value any, ttl time.Duration) {
	data, err := json.Marshal(value)
	if err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("cache value not encodable")
		return
	}
	if err := c.client.Set(ctx, key, data, ttl); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("cache set failed")
	}
}

func (c *CacheStore) Delete(ctx context.Context, key string) {
	if err := c.client.Del(ctx, key); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("cache delete failed")
	}
}

// cacheName is the metrics label for a key: the part before the first ':'.
func cacheName(key string) string {
	if i := strings.IndexByte(key, ':'); i > 0 {
		return key[:i]
	}
	return "default"
}
