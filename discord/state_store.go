package discord

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultStatePrefix namespaces outstanding OAuth state ids in Redis.
const DefaultStatePrefix = "oauth-state"

// RedisStateStore keeps outstanding state ids as expiring Redis keys and
// consumes them with GETDEL, so concurrent callbacks cannot both succeed.
type RedisStateStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisStateStore returns a store under prefix. An empty prefix selects
// DefaultStatePrefix.
func NewRedisStateStore(rdb redis.UniversalClient, prefix string) *RedisStateStore {
	if prefix == "" {
		prefix = DefaultStatePrefix
	}
	return &RedisStateStore{redis: rdb, prefix: prefix}
}

func (s *RedisStateStore) key(id string) string {
	return s.prefix + ":" + id
}

func (s *RedisStateStore) Remember(ctx context.Context, id string, ttl time.Duration) error {
	return s.redis.Set(ctx, s.key(id), "1", ttl).Err()
}

func (s *RedisStateStore) Consume(ctx context.Context, id string) (bool, error) {
	err := s.redis.GetDel(ctx, s.key(id)).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
