// Package joinstore records which users joined which contests.
package joinstore

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
)

const (
	TypeMemory = "memory"
	TypeCookie = "cookie"
	TypeRedis  = "redis"
	TypeMySQL  = "mysql"
)

// Store is a per-user set of joined contest ids. Join is idempotent: a
// contest id is stored at most once per user.
type Store interface {
	Join(ctx context.Context, userID, contestID int64) error
	HasJoined(ctx context.Context, userID, contestID int64) (bool, error)
	Contests(ctx context.Context, userID int64) ([]int64, error)
}

// Config selects the join store implementation.
type Config struct {
	Type      string       `yaml:"type"`
	KeyPrefix string       `yaml:"keyPrefix"`
	Cookie    CookieConfig `yaml:"cookie"`
}

// Normalize fills defaults and validates the store type.
func (c *Config) Normalize() error {
	c.Type = strings.ToLower(strings.TrimSpace(c.Type))
	if c.Type == "" {
		c.Type = TypeMemory
	}
	if c.KeyPrefix == "" {
		c.KeyPrefix = defaultRedisKeyPrefix
	}
	c.Cookie.applyDefaults()
	switch c.Type {
	case TypeMemory, TypeRedis, TypeMySQL:
		return nil
	case TypeCookie:
		if c.Cookie.Secret == "" {
			return fmt.Errorf("joinStore.cookie.secret is required")
		}
		return nil
	}
	return fmt.Errorf("unknown join store %q", c.Type)
}

// MemoryStore keeps joins in process memory. Each instance owns its table.
type MemoryStore struct {
	mu     sync.RWMutex
	joined map[int64][]int64
}

// NewMemoryStore creates an empty table.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{joined: make(map[int64][]int64)}
}

func (s *MemoryStore) Join(_ context.Context, userID, contestID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !slices.Contains(s.joined[userID], contestID) {
		s.joined[userID] = append(s.joined[userID], contestID)
	}
	return nil
}

func (s *MemoryStore) HasJoined(_ context.Context, userID, contestID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Contains(s.joined[userID], contestID), nil
}

func (s *MemoryStore) Contests(_ context.Context, userID int64) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.joined[userID]), nil
}
