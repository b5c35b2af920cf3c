// internal/adapters/redis_adapter/cache.go
package redis_a

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/ammerola/storefront-ledger/internal/core/ports"
)

// Namespace is the first segment of every key this service writes.
type Namespace string

const (
	DashboardKeys   Namespace = "dashboard"
	CartKeys        Namespace = "cart"
	LockKeys        Namespace = "lock"
	IdempotencyKeys Namespace = "idem"
	ExportKeys      Namespace = "export"
)

// Key joins parts under the namespace, e.g. lock:product:p-1.
func (n Namespace) Key(parts ...string) string {
	if len(parts) == 0 {
		return string(n)
	}
	return string(n) + ":" + strings.Join(parts, ":")
}

// Prefix matches every key in the namespace.
func (n Namespace) Prefix() string {
	return string(n) + ":"
}

// ErrCacheMiss is returned when a key is not found in cache.
var ErrCacheMiss = ports.ErrCacheMiss

const scanBatch = 250

// Cache stores JSON values in Redis.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	flight singleflight.Group
	logger *slog.Logger
}

var _ ports.Cache = (*Cache)(nil)

// NewCache creates a cache whose entries expire after ttl unless a call
// names its own.
func NewCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) *Cache {
	return &Cache{
		client: client,
		ttl:    ttl,
		logger: logger.With(slog.String("component", "cache")),
	}
}

func (c *Cache) expiry(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return c.ttl
	}
	return ttl
}

func (c *Cache) Get(ctx context.Context, key string, dest any) error {
	data, err := c.client.Get(ctx, key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return ErrCacheMiss
	case err != nil:
		return fmt.Errorf("redis get %s: %w", key, err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		// A value we can no longer decode is as good as absent.
		c.logger.WarnContext(ctx, "dropping undecodable cache entry",
			slog.String("key", key),
			slog.String("error", err.Error()))
		_ = c.client.Unlink(ctx, key).Err()
		return ErrCacheMiss
	}
	return nil
}

func (c *Cache) Put(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := c.client.Set(ctx, key, data, c.expiry(ttl)).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (c *Cache) PutIfAbsent(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return false, fmt.Errorf("encode %s: %w", key, err)
	}
	ok, err := c.client.SetNX(ctx, key, data, c.expiry(ttl)).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx %s: %w", key, err)
	}
	return ok, nil
}

func (c *Cache) Invalidate(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Unlink(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis unlink: %w", err)
	}
	return nil
}

// InvalidatePrefix walks the keyspace with SCAN and unlinks matches one
// batch at a time.
func (c *Cache) InvalidatePrefix(ctx context.Context, prefix string) error {
	var (
		cursor  uint64
		removed int
	)
	for {
		keys, next, err := c.client.Scan(ctx, cursor, prefix+"*", scanBatch).Result()
		if err != nil {
			return fmt.Errorf("redis scan %s*: %w", prefix, err)
		}
		if err := c.Invalidate(ctx, keys...); err != nil {
			return err
		}
		removed += len(keys)

		cursor = next
		if cursor == 0 {
			break
		}
	}

	c.logger.DebugContext(ctx, "cache prefix invalidated",
		slog.String("prefix", prefix),
		slog.Int("keys", removed))
	return nil
}

// Remember serves dest from the cache. On a miss one caller runs load and
// every concurrent caller for the same key decodes its result. Failing to
// write the loaded value back is logged, not returned.
func (c *Cache) Remember(ctx context.Context, key string, ttl time.Duration, dest any,
	load func(context.Context) (any, error)) error {

	err := c.Get(ctx, key, dest)
	if !errors.Is(err, ErrCacheMiss) {
		return err
	}

	v, err, shared := c.flight.Do(key, func() (any, error) {
		value, err := load(ctx)
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", key, err)
		}
		if err := c.client.Set(ctx, key, data, c.expiry(ttl)).Err(); err != nil {
			c.logger.WarnContext(ctx, "failed to store loaded value",
				slog.String("key", key),
				slog.String("error", err.Error()))
		}
		return data, nil
	})
	if err != nil {
		return fmt.Errorf("load %s: %w", key, err)
	}
	if shared {
		c.logger.DebugContext(ctx, "cache load shared", slog.String("key", key))
	}
	return json.Unmarshal(v.([]byte), dest)
}

func (c *Cache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}
