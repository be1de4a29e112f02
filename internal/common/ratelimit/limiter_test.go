package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"shodh/internal/common/cache"
	appErr "shodh/pkg/errors"

	"github.com/alicebob/miniredis/v2"
)

func newRedisLimiter(t *testing.T) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := cache.NewRedisCacheWithConfig(&cache.RedisConfig{Addr: mr.Addr()})
	if err != nil {
		t.Fatalf("new redis cache failed: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return NewLimiter(c, time.Minute, time.Second), mr
}

func TestAllowFixedWindow(t *testing.T) {
	l, mr := newRedisLimiter(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := l.Allow(ctx, "k", 3, 0); err != nil {
			t.Fatalf("hit %d: unexpected error %v", i+1, err)
		}
	}
	if err := l.Allow(ctx, "k", 3, 0); !appErr.Is(err, appErr.TooManyRequests) {
		t.Fatalf("expected TooManyRequests, got %v", err)
	}
	if err := l.Allow(ctx, "other", 3, 0); err != nil {
		t.Fatalf("keys must be counted separately, got %v", err)
	}

	mr.FastForward(61 * time.Second)
	if err := l.Allow(ctx, "k", 3, 0); err != nil {
		t.Fatalf("expected a fresh window, got %v", err)
	}
}

func TestAllowRestoresMissingExpiry(t *testing.T) {
	l, mr := newRedisLimiter(t)
	if err := mr.Set("k", "5"); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	_ = l.Allow(context.Background(), "k", 10, 30*time.Second)
	if ttl := mr.TTL("k"); ttl != 30*time.Second {
		t.Fatalf("expected expiry to be set, got %s", ttl)
	}
}

type brokenCounters struct{}

func (brokenCounters) SetNX(context.Context, string, interface{}, time.Duration) (bool, error) {
	return false, errors.New("connection refused")
}
func (brokenCounters) Incr(context.Context, string) (int64, error) { return 0, nil }
func (brokenCounters) TTL(context.Context, string) (time.Duration, error) {
	return 0, nil
}
func (brokenCounters) Expire(context.Context, string, time.Duration) error { return nil }

func TestAllowErrors(t *testing.T) {
	if err := NewLimiter(nil, 0, 0).Allow(context.Background(), "k", 1, 0); !appErr.Is(err, appErr.ServiceUnavailable) {
		t.Fatalf("expected ServiceUnavailable, got %v", err)
	}
	if err := NewLimiter(brokenCounters{}, 0, 0).Allow(context.Background(), "k", 1, 0); !appErr.Is(err, appErr.CacheError) {
		t.Fatalf("expected CacheError, got %v", err)
	}
	if err := NewLimiter(brokenCounters{}, 0, 0).Allow(context.Background(), "k", 0, 0); err != nil {
		t.Fatalf("max 0 disables the limit, got %v", err)
	}
}
