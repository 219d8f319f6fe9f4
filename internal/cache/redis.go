// Package cache provides the read-through cache used in front of the alias store.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrCacheMiss is returned by Get when the key is not present.
var ErrCacheMiss = errors.New("cache miss")

// Key builders shared by the service and the tests. One keyspace per cached
// read path, so mutations can invalidate precisely.
func AliasKey(code string) string { return "alias:" + code }
func StatsKey(code string) string { return "stats:" + code }
func SearchKey(url string) string { return "search:" + url }

type Redis struct {
	client *redis.Client
}

func New(ctx context.Context, addr, password string, db int) (*Redis, error) {
	const op = "cache.New"

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("%s: failed to connect to redis: %w", op, err)
	}

	return &Redis{client: client}, nil
}

func (c *Redis) Get(ctx context.Context, key string) (string, error) {
	const op = "cache.Redis.Get"

	val, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", fmt.Errorf("%s: %w", op, ErrCacheMiss)
		}

		return "", fmt.Errorf("%s: failed to get key: %w", op, err)
	}

	return val, nil
}

func (c *Redis) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	const op = "cache.Redis.Set"

	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("%s: failed to set key: %w", op, err)
	}

	return nil
}

func (c *Redis) Invalidate(ctx context.Context, keys ...string) error {
	const op = "cache.Redis.Invalidate"

	if len(keys) == 0 {
		return nil
	}

	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%s: failed to delete keys: %w", op, err)
	}

	return nil
}

// Clear drops the whole keyspace. Used after a sweep pass, where per-code
// invalidation of an unbounded batch is not worth the precision.
func (c *Redis) Clear(ctx context.Context) error {
	const op = "cache.Redis.Clear"

	if err := c.client.FlushDB(ctx).Err(); err != nil {
		return fmt.Errorf("%s: failed to flush db: %w", op, err)
	}

	return nil
}

func (c *Redis) Close() error {
	return c.client.Close()
}
