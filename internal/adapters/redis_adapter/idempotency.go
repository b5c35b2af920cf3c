// internal/adapters/redis_adapter/idempotency.go
package redis_a

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ammerola/storefront-ledger/internal/core/ports"
)

// StoredResponse is the replayable outcome of a request made with an
// Idempotency-Key.
type StoredResponse struct {
	Completed   bool   `json:"completed"`
	Status      int    `json:"status,omitempty"`
	ContentType string `json:"contentType,omitempty"`
	Body        []byte `json:"body,omitempty"`
}

// IdempotencyStore records the first response for each key so retried
// requests get the same answer instead of a second sale.
type IdempotencyStore struct {
	cache ports.Cache
	ttl   time.Duration
}

// NewIdempotencyStore creates a store backed by cache.
func NewIdempotencyStore(cache ports.Cache, ttl time.Duration) *IdempotencyStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &IdempotencyStore{cache: cache, ttl: ttl}
}

func idempotencyKey(scope, key string) string {
	return IdempotencyKeys.Key(scope, key)
}

// Begin claims key. When the key was already claimed the stored response is
// returned; it has Completed=false while the first request is still running.
func (s *IdempotencyStore) Begin(ctx context.Context, scope, key string) (*StoredResponse, bool, error) {
	k := idempotencyKey(scope, key)
	claimed, err := s.cache.PutIfAbsent(ctx, k, StoredResponse{}, s.ttl)
	if err != nil {
		return nil, false, fmt.Errorf("claim idempotency key: %w", err)
	}
	if claimed {
		return nil, true, nil
	}

	var stored StoredResponse
	if err := s.cache.Get(ctx, k, &stored); err != nil {
		if errors.Is(err, ErrCacheMiss) {
			// expired between SetNX and Get
			return &StoredResponse{}, false, nil
		}
		return nil, false, fmt.Errorf("read idempotency key: %w", err)
	}
	return &stored, false, nil
}

// Complete stores the response for replay.
func (s *IdempotencyStore) Complete(ctx context.Context, scope, key string, resp StoredResponse) error {
	resp.Completed = true
	if err := s.cache.Put(ctx, idempotencyKey(scope, key), resp, s.ttl); err != nil {
		return fmt.Errorf("store idempotent response: %w", err)
	}
	return nil
}

// Abandon releases a claim so the client may retry.
func (s *IdempotencyStore) Abandon(ctx context.Context, scope, key string) error {
	if err := s.cache.Invalidate(ctx, idempotencyKey(scope, key)); err != nil {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	return nil
}
