package rate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds limiter tuning.
type Config struct {
	MaxAttempts int
	Window      time.Duration
	// EnableIPThrottle adds a per-IP budget on top of the per-username one.
	EnableIPThrottle bool
}

// Limiter enforces per-username and per-IP login budgets.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	return &Limiter{
		redis:  redisClient,
		config: cfg,
	}
}

func loginUserKey(username string) string {
	return "dppd-login:u:" + strings.ToLower(username)
}

func loginIPKey(ip string) string {
	return "dppd-login:ip:" + ip
}

func (l *Limiter) keys(username, ip string) []string {
	keys := []string{loginUserKey(username)}
	if l.config.EnableIPThrottle && ip != "" {
		keys = append(keys, loginIPKey(ip))
	}
	return keys
}

// Check returns ErrRateLimited once either budget is spent. It does not
// consume an attempt.
func (l *Limiter) Check(ctx context.Context, username, ip string) error {
	if l.config.MaxAttempts <= 0 {
		return nil
	}
	counts, err := l.redis.MGet(ctx, l.keys(username, ip)...).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	for _, raw := range counts {
		s, ok := raw.(string)
		if !ok {
			continue
		}
		var n int
		if _, err := fmt.Sscan(s, &n); err == nil && n >= l.config.MaxAttempts {
			return ErrRateLimited
		}
	}
	return nil
}

// RecordFailure consumes one attempt from each budget.
func (l *Limiter) RecordFailure(ctx context.Context, username, ip string) error {
	for _, key := range l.keys(username, ip) {
		if _, err := l.incrementWithTTL(ctx, key, l.config.Window); err != nil {
			return err
		}
	}
	return nil
}

// Reset clears both budgets after a successful login.
func (l *Limiter) Reset(ctx context.Context, username, ip string) error {
	if err := l.redis.Del(ctx, l.keys(username, ip)...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Attempts returns the failure count recorded for username.
func (l *Limiter) Attempts(ctx context.Context, username string) (int, error) {
	count, err := l.redis.Get(ctx, loginUserKey(username)).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return max(count, 0), nil
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed window: TTL only on the first hit.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}
