package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter is a fixed-window limiter shared by every replica.
type RedisLimiter struct {
	client  redis.Cmdable
	prefix  string
	window  time.Duration
	maxReqs int
}

// NewRedisLimiter stores counters under "<prefix>:<key>".
func NewRedisLimiter(client redis.Cmdable, prefix string, window time.Duration, maxReqs int) *RedisLimiter {
	return &RedisLimiter{client: client, prefix: prefix, window: window, maxReqs: maxReqs}
}

// Allow increments the counter for key and sets its TTL if it has none.
// The TTL is checked on every call so a failed EXPIRE is repaired by the
// next request. Requires Redis 7 for EXPIRE NX. Rejected requests are not
// counted.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	countKey := l.prefix + ":" + key

	cnt, err := l.client.Incr(ctx, countKey).Result()
	if err != nil {
		return false, fmt.Errorf("ratelimit: incr %s: %w", countKey, err)
	}
	if err := l.client.ExpireNX(ctx, countKey, l.window).Err(); err != nil {
		return false, fmt.Errorf("ratelimit: expire %s: %w", countKey, err)
	}
	if cnt > int64(l.maxReqs) {
		l.client.Decr(ctx, countKey)
		return false, nil
	}
	return true, nil
}

// NewRedisClient parses a redis:// URL and returns a connected client.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}
