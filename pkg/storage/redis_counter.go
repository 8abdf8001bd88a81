package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultCounterKey is the Redis key used when none is configured.
const DefaultCounterKey = "polis-chain:gather"

// RedisCounter keeps the scatter-gather count in Redis so that separate
// processes (for example one pod per job) converge on the same total.
type RedisCounter struct {
	client *redis.Client
	key    string
}

// RedisCounterConfig holds connection settings for the Redis counter.
type RedisCounterConfig struct {
	Addr     string
	Password string
	DB       int
	Key      string
}

// NewRedisCounter connects to Redis and verifies the connection.
func NewRedisCounter(ctx context.Context, cfg RedisCounterConfig) (*RedisCounter, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis counter: address is required")
	}
	key := cfg.Key
	if key == "" {
		key = DefaultCounterKey
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis counter: ping %s: %w", cfg.Addr, err)
	}

	return &RedisCounter{client: client, key: key}, nil
}

// Incr increments the shared counter and returns the new value.
func (c *RedisCounter) Incr(ctx context.Context) (int64, error) {
	n, err := c.client.Incr(ctx, c.key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis counter: incr %s: %w", c.key, err)
	}
	return n, nil
}

// Value returns the current count, zero when the key does not exist yet.
func (c *RedisCounter) Value(ctx context.Context) (int64, error) {
	n, err := c.client.Get(ctx, c.key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis counter: get %s: %w", c.key, err)
	}
	return n, nil
}

// Close releases the Redis connection pool.
func (c *RedisCounter) Close() error {
	return c.client.Close()
}
