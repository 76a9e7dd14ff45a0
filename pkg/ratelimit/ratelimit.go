// Package ratelimit bounds how often a single client can call the
// monitor's waitup/force-down RPCs, so a misbehaving client cannot
// monopolize the Monitor (spec.md §7's ProtocolError/InvalidInput
// boundary). The in-process limiter reuses the teacher's
// core/pkg/adapters/security/ratelimiter implementation directly; the
// Redis-backed limiter below is new, for deployments running more than
// one monitor process behind a shared client population.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/flux-framework/flux-core/core/pkg/adapters/security/ratelimiter"
	"github.com/flux-framework/flux-core/core/pkg/contracts"
)

// NewInMemory builds a token-bucket limiter allowing limit requests per
// window, with the given burst allowance — a thin constructor over the
// teacher's ratelimiter.InMemoryRateLimiter.
func NewInMemory(limit int, window time.Duration, burst int) contracts.RateLimiter {
	return ratelimiter.NewInMemoryRateLimiter(&ratelimiter.InMemoryRateLimiterConfig{
		Limit:  limit,
		Window: window,
		Burst:  burst,
	})
}

// RedisLimiter implements contracts.RateLimiter as a fixed-window counter
// in Redis: INCR the window's key, set its expiry on first increment, and
// compare against the limit. Simpler than the in-memory driver's token
// bucket, but that's the tradeoff of pushing the counter state off-box.
type RedisLimiter struct {
	client *redis.Client
	prefix string
	limit  int
	window time.Duration
}

// NewRedis builds a RedisLimiter allowing limit requests per window,
// namespacing keys under prefix (e.g. "fluxresource:ratelimit:").
func NewRedis(client *redis.Client, prefix string, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{client: client, prefix: prefix, limit: limit, window: window}
}

func (r *RedisLimiter) windowKey(key string) string {
	bucket := time.Now().Truncate(r.window).Unix()
	return fmt.Sprintf("%s%s:%d", r.prefix, key, bucket)
}

// Allow checks if a single request is allowed.
func (r *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	return r.AllowN(ctx, key, 1)
}

// AllowN checks if n requests are allowed, atomically incrementing the
// window counter regardless of the outcome (matching the in-memory
// driver's "N tokens consumed or request rejected" semantics would require
// a Lua script to roll back; fixed-window counting instead simply lets the
// caller's next window start clean).
func (r *RedisLimiter) AllowN(ctx context.Context, key string, n int) (bool, error) {
	k := r.windowKey(key)
	pipe := r.client.TxPipeline()
	incr := pipe.IncrBy(ctx, k, int64(n))
	pipe.Expire(ctx, k, r.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("ratelimit: redis pipeline: %w", err)
	}
	return incr.Val() <= int64(r.limit), nil
}

// Remaining returns how many requests remain in the current window.
func (r *RedisLimiter) Remaining(ctx context.Context, key string) (int, error) {
	count, err := r.client.Get(ctx, r.windowKey(key)).Int()
	if err == redis.Nil {
		return r.limit, nil
	}
	if err != nil {
		return 0, fmt.Errorf("ratelimit: redis get: %w", err)
	}
	remaining := r.limit - count
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// Reset clears key's current window.
func (r *RedisLimiter) Reset(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.windowKey(key)).Err(); err != nil {
		return fmt.Errorf("ratelimit: redis del: %w", err)
	}
	return nil
}

var _ contracts.RateLimiter = (*RedisLimiter)(nil)
