// Package cache provides the query result cache. Entries are keyed by query
// fingerprint and tagged with the tables the query read, so a write to any of
// those tables drops them.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"cragdb/api/internal/metrics"
)

type Cache interface {
	// Get decodes the entry for key into dest and reports whether it existed.
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, tables []string, value any) error
	Invalidate(ctx context.Context, tables ...string) error
}

// Nop never stores anything.
type Nop struct{}

func (Nop) Get(context.Context, string, any) (bool, error)   { return false, nil }
func (Nop) Set(context.Context, string, []string, any) error { return nil }
func (Nop) Invalidate(context.Context, ...string) error      { return nil }

// RedisCache keeps JSON encoded results under q:<key> and the keys of each
// table in the set t:<table>.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(redisURL string, ttl time.Duration) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisCacheWithClient(client, ttl), nil
}

func NewRedisCacheWithClient(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisCache{client: client, ttl: ttl}
}

func entryKey(key string) string   { return "q:" + key }
func tableKey(table string) string { return "t:" + table }

func (c *RedisCache) Get(ctx context.Context, key string, dest any) (bool, error) {
	lookups := metrics.Get().CacheLookups
	raw, err := c.client.Get(ctx, entryKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		lookups.WithLabelValues("miss").Inc()
		return false, nil
	}
	if err != nil {
		lookups.WithLabelValues("error").Inc()
		return false, fmt.Errorf("read cache entry: %w", err)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		lookups.WithLabelValues("error").Inc()
		return false, fmt.Errorf("decode cache entry: %w", err)
	}
	lookups.WithLabelValues("hit").Inc()
	return true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, tables []string, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}
	_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, entryKey(key), payload, c.ttl)
		for _, table := range tables {
			pipe.SAdd(ctx, tableKey(table), key)
			pipe.Expire(ctx, tableKey(table), c.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("write cache entry: %w", err)
	}
	return nil
}

func (c *RedisCache) Invalidate(ctx context.Context, tables ...string) error {
	for _, table := range tables {
		keys, err := c.client.SMembers(ctx, tableKey(table)).Result()
		if err != nil {
			return fmt.Errorf("read cache tag %s: %w", table, err)
		}
		doomed := make([]string, 0, len(keys)+1)
		for _, key := range keys {
			doomed = append(doomed, entryKey(key))
		}
		doomed = append(doomed, tableKey(table))
		if err := c.client.Del(ctx, doomed...).Err(); err != nil {
			return fmt.Errorf("drop cache entries of %s: %w", table, err)
		}
	}
	return nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
