// internal/core/ports/cache.go
package ports

import (
	"context"
	"errors"
	"time"
)

// ErrCacheMiss reports an absent or expired key.
var ErrCacheMiss = errors.New("cache miss")

// Cache holds JSON-encoded derived data: the dashboard, rendered exports and
// replayable idempotent responses. Every entry can be rebuilt from the ledger.
type Cache interface {
	Get(ctx context.Context, key string, dest any) error

	// Put stores value under key. A ttl of zero uses the cache default.
	Put(ctx context.Context, key string, value any, ttl time.Duration) error

	// PutIfAbsent is Put that leaves an existing key alone and reports false.
	PutIfAbsent(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)

	Invalidate(ctx context.Context, keys ...string) error

	// InvalidatePrefix drops every key starting with prefix.
	InvalidatePrefix(ctx context.Context, prefix string) error

	// Remember fills dest from key, calling load on a miss. Concurrent misses
	// on one key share a single load.
	Remember(ctx context.Context, key string, ttl time.Duration, dest any,
		load func(context.Context) (any, error)) error

	Ping(ctx context.Context) error
}
