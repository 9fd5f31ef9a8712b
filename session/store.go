package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrSessionNotFound is returned for missing and expired sessions alike.
var ErrSessionNotFound = errors.New("session not found")

// ErrRedisUnavailable wraps transport failures from Redis.
var ErrRedisUnavailable = errors.New("redis unavailable")

const (
	// DefaultLifetime is the absolute session lifetime.
	DefaultLifetime = 24 * time.Hour
	// DefaultRefreshThreshold is how long after a renewal the next read renews again.
	DefaultRefreshThreshold = 4 * time.Hour
	// DefaultPrefix namespaces session keys.
	DefaultPrefix = "session"
)

// Store is a Redis-backed session store with sliding renewal and lazy
// expiry. Concurrent writers to the same session are last-write-wins.
type Store struct {
	redis            redis.UniversalClient
	prefix           string
	lifetime         time.Duration
	refreshThreshold time.Duration
	now              func() time.Time
}

// NewStore creates a session [Store]. Zero durations and an empty prefix
// select the defaults.
func NewStore(
	redis redis.UniversalClient,
	prefix string,
	lifetime time.Duration,
	refreshThreshold time.Duration,
) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if lifetime <= 0 {
		lifetime = DefaultLifetime
	}
	if refreshThreshold <= 0 {
		refreshThreshold = DefaultRefreshThreshold
	}
	return &Store{
		redis:            redis,
		prefix:           prefix,
		lifetime:         lifetime,
		refreshThreshold: refreshThreshold,
		now:              time.Now,
	}
}

// SetClock replaces the time source. Intended for tests.
func (s *Store) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Lifetime returns the absolute session lifetime.
func (s *Store) Lifetime() time.Duration {
	return s.lifetime
}

// Now returns the store's current time.
func (s *Store) Now() time.Time {
	return s.now()
}

func (s *Store) key(sessionID string) string {
	return s.prefix + ":" + sessionID
}

func (s *Store) deviceAnomalyKey(sessionID, kind string) string {
	return s.prefix + "-anomaly:" + sessionID + ":" + kind
}

// Save persists sess. The Redis TTL is set to the remaining lifetime so
// abandoned records disappear even if never read again.
func (s *Store) Save(ctx context.Context, sess *Session) error {
	ttl := sess.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return ErrSessionNotFound
	}
	return s.write(ctx, sess, ttl)
}

func (s *Store) write(ctx context.Context, sess *Session, ttl time.Duration) error {
	data, err := Encode(sess)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(sess.ID), data, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Get loads a session. Missing and expired sessions return
// ErrSessionNotFound; expired records are deleted on the way. A session
// whose last renewal is older than the refresh threshold is renewed for a
// full lifetime and written back.
func (s *Store) Get(ctx context.Context, sessionID string) (*Session, error) {
	key := s.key(sessionID)

	data, err := s.redis.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sess, err := Decode(data)
	if err != nil {
		return nil, err
	}
	sess.ID = sessionID

	now := s.now()
	if sess.Expired(now) {
		if err := s.Delete(ctx, sessionID); err != nil {
			return nil, err
		}
		return nil, ErrSessionNotFound
	}

	migrated := sess.SchemaVersion != CurrentSchemaVersion
	sess.SchemaVersion = CurrentSchemaVersion

	if sess.NeedsRefresh(now, s.refreshThreshold) {
		sess.Refresh(now, s.lifetime)
		if err := s.write(ctx, sess, s.lifetime); err != nil {
			return nil, err
		}
		return sess, nil
	}

	if migrated {
		if err := s.write(ctx, sess, sess.ExpiresAt.Sub(now)); err != nil {
			return nil, err
		}
	}
	return sess, nil
}

// Delete removes a session. Deleting a missing session is not an error.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	if err := s.redis.Del(ctx, s.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// EstimateActiveSessions scans session keys and counts them.
// This is an O(n) admin operation and must not be used in request hot paths.
func (s *Store) EstimateActiveSessions(ctx context.Context) (int, error) {
	pattern := s.prefix + ":*"
	var (
		cursor uint64
		total  int
	)

	for {
		keys, next, err := s.redis.Scan(ctx, cursor, pattern, 1000).Result()
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		total += len(keys)
		cursor = next
		if cursor == 0 {
			break
		}
	}

	return total, nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}

// ShouldEmitDeviceAnomaly returns true only for the first anomaly in the
// window per session and kind, so a roaming client is reported once.
func (s *Store) ShouldEmitDeviceAnomaly(ctx context.Context, sessionID, kind string, window time.Duration) (bool, error) {
	if window <= 0 {
		window = time.Minute
	}
	key := s.deviceAnomalyKey(sessionID, kind)

	count, err := s.redis.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count == 1 {
		if err := s.redis.Expire(ctx, key, window).Err(); err != nil {
			return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		return true, nil
	}

	return false, nil
}
