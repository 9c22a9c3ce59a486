// Package ratelimit provides fixed-window limiters for OTP-sending requests: a Redis one shared
// by every replica and an in-process one for single-instance deployments.
package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

// Result is the outcome of one Allow call.
type Result struct {
	Allowed     bool
	Remaining   int64
	RetryAfter  time.Duration // set when not allowed
	CurrentHits int64
}

// Limiter counts hits per key.
type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

func result(hits, max int64, windowEnd, now time.Time) Result {
	res := Result{Allowed: hits <= max, Remaining: max - hits, CurrentHits: hits}
	if res.Remaining < 0 {
		res.Remaining = 0
	}
	if !res.Allowed {
		res.RetryAfter = windowEnd.Sub(now)
		if res.RetryAfter < time.Second {
			res.RetryAfter = time.Second
		}
	}
	return res
}

// RedisLimiter is a fixed window over INCR + EXPIRE.
type RedisLimiter struct {
	client *redis.Client
	prefix string
	max    int64
	window time.Duration
	now    func() time.Time
}

// NewRedisLimiter allows max hits per key per window.
func NewRedisLimiter(client *redis.Client, prefix string, max int, window time.Duration) *RedisLimiter {
	if prefix == "" {
		prefix = "rl:"
	}
	return &RedisLimiter{client: client, prefix: prefix, max: int64(max), window: window, now: time.Now}
}

// Allow records a hit for key.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (Result, error) {
	now := l.now().UTC()
	start := now.Truncate(l.window)
	k := fmt.Sprintf("%s%s:%d", l.prefix, strings.ReplaceAll(key, " ", "_"), start.Unix())

	hits, err := l.client.Incr(ctx, k).Result()
	if err != nil {
		return Result{}, fmt.Errorf("ratelimit: %w", err)
	}
	if hits == 1 {
		// First hit in the window owns the expiry.
		if err := l.client.Expire(ctx, k, l.window).Err(); err != nil {
			return Result{}, fmt.Errorf("ratelimit: %w", err)
		}
	}
	return result(hits, l.max, start.Add(l.window), now), nil
}

// MemoryLimiter is an in-process fixed window.
type MemoryLimiter struct {
	mu     sync.Mutex
	hits   *cache.Cache
	max    int64
	window time.Duration
	now    func() time.Time
}

// NewMemoryLimiter allows max hits per key per window.
func NewMemoryLimiter(max int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{hits: cache.New(window, window), max: int64(max), window: window, now: time.Now}
}

// Allow records a hit for key.
func (l *MemoryLimiter) Allow(ctx context.Context, key string) (Result, error) {
	now := l.now().UTC()
	start := now.Truncate(l.window)
	k := fmt.Sprintf("%s:%d", key, start.Unix())

	l.mu.Lock()
	var hits int64 = 1
	if v, ok := l.hits.Get(k); ok {
		hits = v.(int64) + 1
	}
	l.hits.Set(k, hits, start.Add(l.window).Sub(now)+time.Second)
	l.mu.Unlock()

	return result(hits, l.max, start.Add(l.window), now), nil
}
