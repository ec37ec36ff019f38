package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"admin-auth-service/internal/client"
	"admin-auth-service/internal/util"
)

const rateLimitPrefix = "rate_limit:"

// RateLimitCache is the Redis-backed counter store for the login rate
// limiter. INCR with a guarded EXPIRE keeps increment-and-compare atomic
// across instances.
type RateLimitCache struct {
	client *client.RedisClient
}

func NewRateLimitCache(client *client.RedisClient) *RateLimitCache {
	return &RateLimitCache{client: client}
}

func (c *RateLimitCache) IncrementAndGet(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rateLimitKey := rateLimitPrefix + key

	count, err := c.client.IncrWithExpire(ctx, rateLimitKey, window)
	if err != nil {
		util.Error("Failed to increment rate limit counter",
			zap.String("key", key),
			zap.Duration("window", window),
			zap.Error(err))
		return 0, 0, fmt.Errorf("failed to increment rate limit counter: %w", err)
	}

	ttl, err := c.client.TTL(ctx, rateLimitKey)
	if err != nil {
		// Count is already committed; surface the window as a full one.
		ttl = window
	}

	util.Debug("Rate limit counter incremented",
		zap.String("key", key),
		zap.Int64("count", count),
		zap.Duration("ttl", ttl))

	return count, ttl, nil
}

func (c *RateLimitCache) Get(ctx context.Context, key string) (int64, time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rateLimitKey := rateLimitPrefix + key

	countStr, err := c.client.Get(ctx, rateLimitKey)
	if err != nil {
		if err.Error() == fmt.Sprintf("key not found: %s", rateLimitKey) {
			return 0, 0, nil // No counter set yet
		}
		return 0, 0, fmt.Errorf("failed to get rate limit counter: %w", err)
	}

	count, err := strconv.ParseInt(countStr, 10, 64)
	if err != nil {
		util.Error("Invalid counter format",
			zap.String("key", key),
			zap.String("count_str", countStr),
			zap.Error(err))
		return 0, 0, fmt.Errorf("invalid counter format: %w", err)
	}

	ttl, err := c.client.TTL(ctx, rateLimitKey)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to get rate limit ttl: %w", err)
	}

	return count, ttl, nil
}

func (c *RateLimitCache) Reset(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := c.client.Del(ctx, rateLimitPrefix+key); err != nil {
		util.Error("Failed to reset rate limit counter",
			zap.String("key", key),
			zap.Error(err))
		return fmt.Errorf("failed to reset rate limit counter: %w", err)
	}

	util.Debug("Rate limit counter reset", zap.String("key", key))

	return nil
}
