package permission

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RoleConfigKey is the key-value key holding the role configuration document.
const RoleConfigKey = "permissions:role-config"

// ConfigStore persists the single role configuration document.
type ConfigStore interface {
	Load(ctx context.Context) (*RoleConfig, error)
	Save(ctx context.Context, cfg *RoleConfig) error
}

// RedisConfigStore keeps the document as JSON under one Redis key.
// Writes are last-write-wins.
type RedisConfigStore struct {
	redis redis.UniversalClient
	key   string
}

// NewRedisConfigStore returns a store under key. An empty key selects
// RoleConfigKey.
func NewRedisConfigStore(rdb redis.UniversalClient, key string) *RedisConfigStore {
	if key == "" {
		key = RoleConfigKey
	}
	return &RedisConfigStore{redis: rdb, key: key}
}

// Load returns ErrConfigNotFound when no document has been written yet.
func (s *RedisConfigStore) Load(ctx context.Context) (*RoleConfig, error) {
	raw, err := s.redis.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrConfigNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrConfigUnavailable, err)
	}

	var cfg RoleConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrConfigUnavailable, err)
	}
	return &cfg, nil
}

// Save overwrites the stored document.
func (s *RedisConfigStore) Save(ctx context.Context, cfg *RoleConfig) error {
	if cfg == nil {
		return errors.New("nil role config")
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key, raw, 0).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrConfigUnavailable, err)
	}
	return nil
}
