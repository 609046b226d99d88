package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RateResult is the outcome of one counted request.
type RateResult struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

type RateLimiter struct {
	client RedisClient
	now    func() time.Time
}

func NewRateLimiter(client RedisClient) *RateLimiter {
	return &RateLimiter{client: client, now: time.Now}
}

// INCR, EXPIRE and TTL run as one script.
var luaFixedWindow = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
	redis.call("EXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("TTL", KEYS[1])
return {current, ttl}`)

// Allow counts a request against a fixed window of the given length.
func (r *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (RateResult, error) {
	secs := int64(window / time.Second)
	if secs <= 0 {
		secs = 1
	}
	res, err := r.client.RunScript(ctx, luaFixedWindow, []string{key}, secs)
	if err != nil {
		return RateResult{}, err
	}
	vals, ok := res.([]interface{})
	if !ok || len(vals) != 2 {
		return RateResult{}, fmt.Errorf("rate limiter: unexpected script result %T", res)
	}
	count, _ := vals[0].(int64)
	ttl, _ := vals[1].(int64)
	if ttl < 0 {
		ttl = secs
	}

	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return RateResult{
		Allowed:   count <= int64(limit),
		Remaining: remaining,
		ResetAt:   r.now().Add(time.Duration(ttl) * time.Second),
	}, nil
}

func AccountRuleKey(accountID, rule string) string {
	return fmt.Sprintf("rate_limit:%s:%s", rule, accountID)
}
