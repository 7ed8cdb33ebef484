package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRateLimited is returned by [Limiter.Allow] once a window's budget is spent.
var ErrRateLimited = errors.New("rate limited")

const limiterPrefix = "rl:"

// Limiter is a fixed-window counter keyed by scope and subject, stored under
// rl:<scope>:<key>.
type Limiter struct {
	redis redis.UniversalClient
}

// NewLimiter creates a [Limiter] backed by the given Redis client.
func NewLimiter(client redis.UniversalClient) *Limiter {
	return &Limiter{redis: client}
}

func limiterKey(scope, key string) string {
	return limiterPrefix + scope + ":" + key
}

// Allow records one hit and returns [ErrRateLimited] when the count exceeds
// limit within window. A non-positive limit disables the check.
func (l *Limiter) Allow(ctx context.Context, scope, key string, limit int, window time.Duration) error {
	if limit <= 0 {
		return nil
	}

	count, err := l.incrementWithTTL(ctx, limiterKey(scope, key), window)
	if err != nil {
		return err
	}
	if count > int64(limit) {
		return ErrRateLimited
	}
	return nil
}

// Reset clears the counter for scope and key.
func (l *Limiter) Reset(ctx context.Context, scope, key string) error {
	if err := l.redis.Del(ctx, limiterKey(scope, key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Count returns the hits recorded in the current window.
func (l *Limiter) Count(ctx context.Context, scope, key string) (int, error) {
	count, err := l.redis.Get(ctx, limiterKey(scope, key)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return int(count), nil
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}
