package joinstore

import (
	"context"
	"slices"
	"strconv"

	"shodh/internal/common/cache"
)

const defaultRedisKeyPrefix = "contest:joined:"

// RedisStore keeps one Redis set of contest ids per user.
type RedisStore struct {
	sets   cache.SetOps
	prefix string
}

// NewRedisStore creates a store on sets. An empty prefix selects contest:joined:.
func NewRedisStore(sets cache.SetOps, prefix string) *RedisStore {
	if prefix == "" {
		prefix = defaultRedisKeyPrefix
	}
	return &RedisStore{sets: sets, prefix: prefix}
}

func (s *RedisStore) key(userID int64) string {
	return s.prefix + strconv.FormatInt(userID, 10)
}

func (s *RedisStore) Join(ctx context.Context, userID, contestID int64) error {
	_, err := s.sets.SAdd(ctx, s.key(userID), contestID)
	return err
}

func (s *RedisStore) HasJoined(ctx context.Context, userID, contestID int64) (bool, error) {
	return s.sets.SIsMember(ctx, s.key(userID), contestID)
}

func (s *RedisStore) Contests(ctx context.Context, userID int64) ([]int64, error) {
	members, err := s.sets.SMembers(ctx, s.key(userID))
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}
