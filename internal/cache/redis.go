package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisOpTimeout bounds every cache round trip; a slow Redis degrades to
// cache misses rather than slow requests.
const redisOpTimeout = 500 * time.Millisecond

// RedisCache stores JSON-encoded values under "<namespace>:<key>". Errors are
// logged and reported as misses.
type RedisCache[T any] struct {
	client    redis.UniversalClient
	namespace string
	ttl       time.Duration
}

func NewRedisCache[T any](client redis.UniversalClient, namespace string, ttl time.Duration) *RedisCache[T] {
	return &RedisCache[T]{client: client, namespace: namespace, ttl: ttl}
}

// NewRedisClient connects to url (redis://[:password@]host:port/db) and
// verifies the connection.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func (c *RedisCache[T]) redisKey(key string) string {
	return c.namespace + ":" + key
}

func (c *RedisCache[T]) Get(key string) (T, bool) {
	var zero T
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	raw, err := c.client.Get(ctx, c.redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return zero, false
	}
	if err != nil {
		slog.Warn("Redis cache get failed", "key", c.redisKey(key), "error", err)
		return zero, false
	}

	var data T
	if err := json.Unmarshal(raw, &data); err != nil {
		slog.Warn("Redis cache entry undecodable", "key", c.redisKey(key), "error", err)
		return zero, false
	}
	return data, true
}

func (c *RedisCache[T]) Set(key string, data T) {
	raw, err := json.Marshal(data)
	if err != nil {
		slog.Warn("Redis cache entry unencodable", "key", c.redisKey(key), "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	if err := c.client.Set(ctx, c.redisKey(key), raw, c.ttl).Err(); err != nil {
		slog.Warn("Redis cache set failed", "key", c.redisKey(key), "error", err)
	}
}

func (c *RedisCache[T]) Delete(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	if err := c.client.Del(ctx, c.redisKey(key)).Err(); err != nil {
		slog.Warn("Redis cache delete failed", "key", c.redisKey(key), "error", err)
	}
}

func (c *RedisCache[T]) DeletePrefix(prefix string) int {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	var (
		cursor  uint64
		removed int
	)
	for {
		keys, next, err := c.client.Scan(ctx, cursor, c.redisKey(prefix)+"*", 100).Result()
		if err != nil {
			slog.Warn("Redis cache scan failed", "prefix", c.redisKey(prefix), "error", err)
			return removed
		}
		if len(keys) > 0 {
			n, err := c.client.Del(ctx, keys...).Result()
			if err != nil {
				slog.Warn("Redis cache delete failed", "prefix", c.redisKey(prefix), "error", err)
				return removed
			}
			removed += int(n)
		}
		if next == 0 {
			return removed
		}
		cursor = next
	}
}

// Size counts the namespace's keys. It scans the keyspace and is meant for
// diagnostics only.
func (c *RedisCache[T]) Size() int {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	n := 0
	iter := c.client.Scan(ctx, 0, c.namespace+":*", 100).Iterator()
	for iter.Next(ctx) {
		n++
	}
	if err := iter.Err(); err != nil {
		slog.Warn("Redis cache size failed", "namespace", c.namespace, "error", err)
	}
	return n
}
