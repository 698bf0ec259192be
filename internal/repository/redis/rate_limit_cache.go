package redis

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"secmon-service/internal/client"
	"secmon-service/internal/util"
)

const (
	rateLimitPrefix = "rate_limit:"
	tempLockPrefix  = "temp_lock:"
)

// RateLimitCache backs the fixed-window limiter with a shared counter so
// every instance of the service sees the same count for an identifier.
type RateLimitCache struct {
	client *client.RedisClient
}

func NewRateLimitCache(client *client.RedisClient) *RateLimitCache {
	return &RateLimitCache{client: client}
}

// IncrementCounter bumps the window counter for a key, creating it with the
// window TTL on first use, and returns the new count.
func (c *RateLimitCache) IncrementCounter(ctx context.Context, key string, window time.Duration) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rateLimitKey := rateLimitPrefix + key

	count, err := c.client.IncrWithExpire(ctx, rateLimitKey, window)
	if err != nil {
		util.Error("Failed to increment rate limit counter",
			zap.String("key", key),
			zap.Duration("window", window),
			zap.Error(err))
		return 0, fmt.Errorf("failed to increment rate limit counter: %w", err)
	}

	util.Debug("Rate limit counter incremented",
		zap.String("key", key),
		zap.Int64("count", count),
		zap.Duration("window", window))

	return int(count), nil
}

// SetTemporaryLock places a lockout marker that expires on its own
func (c *RateLimitCache) SetTemporaryLock(ctx context.Context, key string, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	lockKey := tempLockPrefix + key
	_, err := c.client.SetNX(ctx, lockKey, "locked", ttl)
	if err != nil {
		util.Error("Failed to set temporary lock",
			zap.String("key", key),
			zap.Duration("ttl", ttl),
			zap.Error(err))
		return fmt.Errorf("failed to set temporary lock: %w", err)
	}

	util.Debug("Temporary lock set", zap.String("key", key), zap.Duration("ttl", ttl))
	return nil
}

// IsLocked reports whether a lockout marker exists for the key
func (c *RateLimitCache) IsLocked(ctx context.Context, key string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	exists, err := c.client.Exists(ctx, tempLockPrefix+key)
	if err != nil {
		util.Error("Failed to check temporary lock",
			zap.String("key", key),
			zap.Error(err))
		return false, fmt.Errorf("failed to check temporary lock: %w", err)
	}

	return exists, nil
}

// ResetCounter clears the counter and any lock for a key
func (c *RateLimitCache) ResetCounter(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	keys := []string{
		rateLimitPrefix + key,
		tempLockPrefix + key,
	}

	if err := c.client.Del(ctx, keys...); err != nil {
		util.Error("Failed to reset rate limit counter",
			zap.String("key", key),
			zap.Error(err))
		return fmt.Errorf("failed to reset rate limit counter: %w", err)
	}

	return nil
}
