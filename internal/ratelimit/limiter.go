// Package ratelimit throttles entry attempts per participant.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// ErrLimitExceeded is returned when a key has used up its allowance.
var ErrLimitExceeded = errors.New("rate limit exceeded")

// Limiter decides whether an attempt identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) error
}

// RedisLimiter counts attempts in fixed windows shared by every engine instance.
type RedisLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
	prefix string
}

// NewRedisLimiter creates a limiter allowing limit attempts per window.
func NewRedisLimiter(client *redis.Client, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		limit:  limit,
		window: window,
		prefix: "giveaway:ratelimit",
	}
}

// Allow increments the key counter and rejects once it exceeds the limit.
func (r *RedisLimiter) Allow(ctx context.Context, key string) error {
	if r.limit <= 0 || r.window <= 0 {
		return nil
	}

	k := r.prefix + ":" + key
	count, err := r.client.Incr(ctx, k).Result()
	if err != nil {
		return fmt.Errorf("failed to increment rate limit counter: %w", err)
	}

	if count == 1 {
		if err := r.client.Expire(ctx, k, r.window).Err(); err != nil {
			return fmt.Errorf("failed to set rate limit expiry: %w", err)
		}
	}

	if int(count) > r.limit {
		return ErrLimitExceeded
	}
	return nil
}

// LocalLimiter is an in-process token bucket per key, used when the engine
// runs as a single node without Redis.
type LocalLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
}

// NewLocalLimiter creates a limiter refilling limit tokens per window.
func NewLocalLimiter(limit int, window time.Duration) *LocalLimiter {
	l := &LocalLimiter{
		limiters: make(map[string]*rate.Limiter),
		burst:    limit,
	}
	if limit > 0 && window > 0 {
		l.rate = rate.Every(window / time.Duration(limit))
	}
	return l
}

// Allow consumes one token for key.
func (l *LocalLimiter) Allow(_ context.Context, key string) error {
	if l.burst <= 0 {
		return nil
	}

	l.mu.Lock()
	limiter, ok := l.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(l.rate, l.burst)
		l.limiters[key] = limiter
	}
	l.mu.Unlock()

	if !limiter.Allow() {
		return ErrLimitExceeded
	}
	return nil
}

// Prune drops buckets that have refilled completely.
func (l *LocalLimiter) Prune() {
	l.mu.Lock()
	defer l.mu.Unlock()

	for key, limiter := range l.limiters {
		if limiter.Tokens() >= float64(l.burst) {
			delete(l.limiters, key)
		}
	}
}

// Noop never limits.
type Noop struct{}

// Allow always succeeds.
func (Noop) Allow(context.Context, string) error { return nil }
