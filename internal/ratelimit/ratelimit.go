// Package ratelimit provides a Redis-backed sliding-window limiter gating
// outbound LLM/embedding provider calls, surfacing rate_limit errors
// through the shared error taxonomy.
package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"workspacememory/internal/apperrors"
)

// slidingWindowScript increments a sorted-set-backed sliding window and
// reports whether the request is allowed, atomically: stale entries are
// trimmed and the count checked in a single round trip so concurrent
// callers can't race past the limit.
const slidingWindowScript = `
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, 0, now - window)
local count = redis.call('ZCARD', key)
if count < limit then
	redis.call('ZADD', key, now, now)
	redis.call('PEXPIRE', key, window)
	return 1
end
return 0
`

// Limiter is a Redis sliding-window rate limiter keyed by an arbitrary
// string (e.g. "llm:claude" or "embeddings:openai").
type Limiter struct {
	client      *redis.Client
	window      time.Duration
	maxRequests int
	script      *redis.Script
}

// New builds a Limiter. addr/db connect to Redis; window/maxRequests set
// the sliding-window policy.
func New(addr string, db int, window time.Duration, maxRequests int) *Limiter {
	return &Limiter{
		client:      redis.NewClient(&redis.Options{Addr: addr, DB: db}),
		window:      window,
		maxRequests: maxRequests,
		script:      redis.NewScript(slidingWindowScript),
	}
}

// Allow reports whether key is within its rate limit, returning a
// rate_limit apperror with RetryAfter set to the window size when denied.
func (l *Limiter) Allow(ctx context.Context, key string) error {
	now := time.Now().UnixMilli()
	res, err := l.script.Run(ctx, l.client, []string{"ratelimit:" + key},
		now, l.window.Milliseconds(), l.maxRequests).Int()
	if err != nil {
		return apperrors.Database("rate limiter redis call failed", err)
	}
	if res == 0 {
		return apperrors.RateLimit(l.window)
	}
	return nil
}

// Close releases the underlying Redis client.
func (l *Limiter) Close() error { return l.client.Close() }
