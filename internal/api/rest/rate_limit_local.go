package rest

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// LocalRateLimiter enforces per-key limits with in-process token buckets.
// It backs the rate limit middleware when Redis is not configured. Counts
// are per instance, so horizontally scaled deployments should keep the
// Redis-backed limiter.
type LocalRateLimiter struct {
	limiters sync.Map // key -> *rate.Limiter
	burst    int
}

// NewLocalRateLimiter creates an in-process limiter. burst caps how many
// requests a key may consume at once before the refill rate applies.
func NewLocalRateLimiter(burst int) *LocalRateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &LocalRateLimiter{burst: burst}
}

// Allow reports whether the key may proceed under limit requests per window.
func (l *LocalRateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	return l.limiterFor(key, limit, window).Allow(), nil
}

// Count approximates the number of tokens the key has consumed.
func (l *LocalRateLimiter) Count(ctx context.Context, key string, window time.Duration) (int, error) {
	v, ok := l.limiters.Load(key)
	if !ok {
		return 0, nil
	}
	used := float64(l.burst) - v.(*rate.Limiter).Tokens()
	if used < 0 {
		used = 0
	}
	return int(used), nil
}

// Reset drops the bucket for a key so it starts fresh.
func (l *LocalRateLimiter) Reset(ctx context.Context, key string) error {
	l.limiters.Delete(key)
	return nil
}

func (l *LocalRateLimiter) limiterFor(key string, limit int, window time.Duration) *rate.Limiter {
	if v, ok := l.limiters.Load(key); ok {
		return v.(*rate.Limiter)
	}
	refill := rate.Limit(float64(limit) / window.Seconds())
	v, _ := l.limiters.LoadOrStore(key, rate.NewLimiter(refill, l.burst))
	return v.(*rate.Limiter)
}
