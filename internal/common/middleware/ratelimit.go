package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig configures the shared limiter backend.
type RedisConfig struct {
	URL               string        `envconfig:"REDIS_URL" default:""`
	RequestsPerWindow int64         `envconfig:"RATE_LIMIT_REQUESTS" default:"30"`
	Window            time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"1m"`
}

// RedisRateLimiter is a fixed-window counter shared by every replica.
type RedisRateLimiter struct {
	client *redis.Client
	prefix string
	limit  int64
	window time.Duration
}

// NewRedisRateLimiter returns a limiter allowing limit requests per window per key.
func NewRedisRateLimiter(client *redis.Client, prefix string, limit int64, window time.Duration) *RedisRateLimiter {
	if window < time.Second {
		window = time.Minute
	}
	return &RedisRateLimiter{client: client, prefix: prefix, limit: limit, window: window}
}

// Allow increments the key's counter, arming the expiry on the first hit.
func (l *RedisRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	bucket := time.Now().UnixMilli() / l.window.Milliseconds()
	redisKey := fmt.Sprintf("%s:%s:%d", l.prefix, key, bucket)

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("incrementing rate limit counter: %w", err)
	}

	return incr.Val() <= l.limit, nil
}

// Ping reports whether Redis is reachable.
func (l *RedisRateLimiter) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}
