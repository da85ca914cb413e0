package common

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lgulliver/docdesk/pkg/config"
	"github.com/redis/go-redis/v9"
)

const (
	connectTimeout = 5 * time.Second
	scanBatch      = 100
)

// ErrCacheMiss is returned by Get when the key does not exist
var ErrCacheMiss = errors.New("cache miss")

// Cache stores JSON values in Redis
type Cache struct {
	client *redis.Client
}

// NewCache connects to Redis and fails if the server does not answer a ping
func NewCache(cfg *config.RedisConfig) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.RedisAddr(), err)
	}

	return &Cache{client: client}, nil
}

// Set stores value as JSON. A zero expiration keeps the key forever.
func (c *Cache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	if err := c.client.Set(ctx, key, data, expiration).Err(); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

// Get decodes the value at key into dest
func (c *Cache) Get(ctx context.Context, key string, dest interface{}) error {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: %s", ErrCacheMiss, key)
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", key, err)
	}
	return json.Unmarshal(data, dest)
}

// GetMany reads keys in one round trip and calls fn for each value found.
// Keys that no longer exist are skipped.
func (c *Cache) GetMany(ctx context.Context, keys []string, fn func(key string, raw []byte) error) error {
	if len(keys) == 0 {
		return nil
	}
	values, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return fmt.Errorf("failed to read %d keys: %w", len(keys), err)
	}
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		if err := fn(keys[i], []byte(s)); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes key; a missing key is not an error
func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// Keys returns every key matching prefix*, walking the keyspace with SCAN
func (c *Cache) Keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	iter := c.client.Scan(ctx, 0, prefix+"*", scanBatch).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan %s*: %w", prefix, err)
	}
	return keys, nil
}

// Close closes the Redis connection
func (c *Cache) Close() error {
	return c.client.Close()
}
