// Package ratelimit enforces fixed-window request limits backed by Redis.
package ratelimit

import (
	"context"
	"time"

	"shodh/internal/common/cache"
	appErr "shodh/pkg/errors"
)

const (
	defaultWindow  = time.Minute
	defaultTimeout = 200 * time.Millisecond
)

// Limiter counts hits per key in fixed windows.
type Limiter struct {
	counters     cache.CounterOps
	window       time.Duration
	redisTimeout time.Duration
}

func NewLimiter(counters cache.CounterOps, window, redisTimeout time.Duration) *Limiter {
	if window <= 0 {
		window = defaultWindow
	}
	if redisTimeout <= 0 {
		redisTimeout = defaultTimeout
	}
	return &Limiter{counters: counters, window: window, redisTimeout: redisTimeout}
}

// Allow records a hit on key and fails with TooManyRequests once more than
// max hits land in the current window. A zero window uses the limiter default.
func (l *Limiter) Allow(ctx context.Context, key string, max int, window time.Duration) error {
	if l.counters == nil {
		return appErr.New(appErr.ServiceUnavailable).WithMessage("rate limit cache is unavailable")
	}
	if max <= 0 {
		return nil
	}
	if window <= 0 {
		window = l.window
	}

	ctxCache, cancel := context.WithTimeout(ctx, l.redisTimeout)
	defer cancel()

	acquired, err := l.counters.SetNX(ctxCache, key, 1, window)
	if err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "rate limit check failed")
	}
	count := int64(1)
	if !acquired {
		count, err = l.counters.Incr(ctxCache, key)
		if err != nil {
			return appErr.Wrapf(err, appErr.CacheError, "rate limit check failed")
		}
		// A key without expiry would never reset.
		if ttl, ttlErr := l.counters.TTL(ctxCache, key); ttlErr == nil && ttl < 0 {
			_ = l.counters.Expire(ctxCache, key, window)
		}
	}
	if count > int64(max) {
		return appErr.Newf(appErr.TooManyRequests, "rate limit exceeded for %s", key)
	}
	return nil
}
