package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type counterClient interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	TTL(ctx context.Context, key string) *redis.DurationCmd
}

// RateLimitRepository keeps fixed-window counters in Redis.
type RateLimitRepository struct {
	client counterClient
	prefix string
}

// NewRateLimitRepository constructs a repository. A nil client disables counting.
func NewRateLimitRepository(client *redis.Client, prefix string) *RateLimitRepository {
	if client == nil {
		return &RateLimitRepository{prefix: prefix}
	}
	return &RateLimitRepository{client: client, prefix: prefix}
}

// Hit increments the caller's counter. The window starts with the first hit.
// It returns the new count and the time left in the window.
func (r *RateLimitRepository) Hit(ctx context.Context, subject string, window time.Duration) (int64, time.Duration, error) {
	if r.client == nil {
		return 0, 0, nil
	}
	key := r.prefix + ":" + subject

	count, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("redis incr %s: %w", key, err)
	}
	if count == 1 {
		if err := r.client.Expire(ctx, key, window).Err(); err != nil {
			return count, window, fmt.Errorf("redis expire %s: %w", key, err)
		}
		return count, window, nil
	}

	ttl, err := r.client.TTL(ctx, key).Result()
	if err != nil {
		return count, 0, fmt.Errorf("redis ttl %s: %w", key, err)
	}
	if ttl < 0 {
		// key lost its expiry; restart the window rather than block forever
		if err := r.client.Expire(ctx, key, window).Err(); err != nil {
			return count, window, fmt.Errorf("redis expire %s: %w", key, err)
		}
		ttl = window
	}
	return count, ttl, nil
}
