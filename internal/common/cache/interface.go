package cache

import (
	"context"
	"time"
)

// Cache is the subset of key-value operations the web tier needs.
// Implementations must be safe for concurrent use.
type Cache interface {
	BasicOps
	CounterOps
	SetOps
	PubSubOps

	// Ping verifies the cache connection is alive
	Ping(ctx context.Context) error

	// Close closes the cache connection
	Close() error
}

// BasicOps defines basic key-value operations
type BasicOps interface {
	// Get returns "" without error when the key is missing
	Get(ctx context.Context, key string) (string, error)

	// Set stores a value; ttl 0 means no expiry
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	Del(ctx context.Context, keys ...string) error

	// Exists returns the number of keys that exist
	Exists(ctx context.Context, keys ...string) (int64, error)

	Expire(ctx context.Context, key string, ttl time.Duration) error
}

// CounterOps defines counter operations used by fixed-window limits
type CounterOps interface {
	// SetNX stores value only when key is missing and reports whether it did
	SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error)

	Incr(ctx context.Context, key string) (int64, error)

	// TTL returns a negative duration when the key has no expiry or is missing
	TTL(ctx context.Context, key string) (time.Duration, error)

	Expire(ctx context.Context, key string, ttl time.Duration) error
}

// SetOps defines set operations
type SetOps interface {
	// SAdd returns the number of members that were newly added
	SAdd(ctx context.Context, key string, members ...interface{}) (int64, error)

	SRem(ctx context.Context, key string, members ...interface{}) error

	SMembers(ctx context.Context, key string) ([]string, error)

	SIsMember(ctx context.Context, key string, member interface{}) (bool, error)

	SCard(ctx context.Context, key string) (int64, error)
}

// PubSubOps defines publish/subscribe operations
type PubSubOps interface {
	// Publish returns the number of subscribers that received the message
	Publish(ctx context.Context, channel string, payload interface{}) (int64, error)

	// Subscribe listens on the given channels until the subscription is closed
	Subscribe(ctx context.Context, channels ...string) (Subscription, error)
}

// Subscription is an open channel subscription.
type Subscription interface {
	// Messages is closed when the subscription ends
	Messages() <-chan Message
	Close() error
}

// Message is a received pub/sub payload.
type Message struct {
	Channel string
	Payload string
}
