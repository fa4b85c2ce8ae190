// server/internal/cache/redis.go
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ku-fleet-api-server/internal/models"

	"github.com/redis/go-redis/v9"
)

const scanBatch = 100

// RedisCache is the production Cache backed by go-redis.
type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisCache(rdb *redis.Client, locationTTL time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: locationTTL}
}

// Connect parses a redis:// URL and verifies the server answers.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

func (c *RedisCache) SetLocation(ctx context.Context, loc models.CachedLocation) error {
	return c.SetJSON(ctx, LocationKey(loc.VehicleID), loc, c.ttl)
}

func (c *RedisCache) GetLocation(ctx context.Context, vehicleID string) (*models.CachedLocation, error) {
	var loc models.CachedLocation
	ok, err := c.GetJSON(ctx, LocationKey(vehicleID), &loc)
	if err != nil || !ok {
		return nil, err
	}
	return &loc, nil
}

func (c *RedisCache) DeleteLocation(ctx context.Context, vehicleID string) error {
	return c.rdb.Del(ctx, LocationKey(vehicleID)).Err()
}

func (c *RedisCache) SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return c.rdb.Set(ctx, key, b, ttl).Err()
}

func (c *RedisCache) GetJSON(ctx context.Context, key string, dst any) (bool, error) {
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

// PurgeWithoutTTL walks the keyspace with SCAN so a large namespace never
// blocks the server the way KEYS would.
func (c *RedisCache) PurgeWithoutTTL(ctx context.Context, pattern string) (int64, error) {
	var removed int64
	var cursor uint64
	for {
		keys, next, err := c.rdb.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			return removed, fmt.Errorf("scan %s: %w", pattern, err)
		}
		for _, key := range keys {
			ttl, err := c.rdb.TTL(ctx, key).Result()
			if err != nil {
				return removed, fmt.Errorf("ttl %s: %w", key, err)
			}
			// -1 means the key exists without expiry; -2 means it is already gone.
			if ttl != -1 {
				continue
			}
			n, err := c.rdb.Del(ctx, key).Result()
			if err != nil {
				return removed, fmt.Errorf("del %s: %w", key, err)
			}
			removed += n
		}
		cursor = next
		if cursor == 0 {
			return removed, nil
		}
	}
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}
