// internal/adapters/redis_adapter/locker.go
package redis_a

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"

	"github.com/ammerola/storefront-ledger/internal/core/domain"
	"github.com/ammerola/storefront-ledger/internal/core/ports"
)

// ProductLocker is a ports.ProductLocker shared by every API and worker
// process pointed at the same Redis.
type ProductLocker struct {
	locker  *redislock.Client
	ttl     time.Duration
	retries int
	backoff time.Duration
	logger  *slog.Logger
}

var _ ports.ProductLocker = (*ProductLocker)(nil)

// NewProductLocker creates a locker. ttl bounds how long a crashed holder can
// block a product; a live holder refreshes its locks every ttl/2, so ttl does
// not cap how long the guarded work may run.
func NewProductLocker(client *redis.Client, ttl time.Duration, retries int, logger *slog.Logger) *ProductLocker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	if retries < 0 {
		retries = 0
	}
	return &ProductLocker{
		locker:  redislock.New(client),
		ttl:     ttl,
		retries: retries,
		backoff: 50 * time.Millisecond,
		logger:  logger.With(slog.String("component", "product_locker")),
	}
}

// LockKey is the Redis key guarding one product.
func LockKey(productID string) string {
	return LockKeys.Key("product", productID)
}

// Lock obtains every product lock in sorted order and returns a function that
// releases them in reverse. The locks are kept alive until then.
func (l *ProductLocker) Lock(ctx context.Context, productIDs ...string) (func(), error) {
	ids := slices.Clone(productIDs)
	slices.Sort(ids)
	ids = slices.Compact(ids)

	held := make([]*redislock.Lock, 0, len(ids))
	release := func() {
		// release must work after the caller's ctx is cancelled
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		for i := len(held) - 1; i >= 0; i-- {
			if err := held[i].Release(rctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
				l.logger.WarnContext(ctx, "failed to release product lock",
					slog.String("key", held[i].Key()),
					slog.Any("error", err))
			}
		}
		held = held[:0]
	}

	opts := &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(l.backoff), l.retries),
	}
	for _, id := range ids {
		lock, err := l.locker.Obtain(ctx, LockKey(id), l.ttl, opts)
		if err != nil {
			release()
			if errors.Is(err, redislock.ErrNotObtained) {
				return nil, domain.Conflict("product", id, "product is locked by another writer")
			}
			return nil, fmt.Errorf("failed to lock product %s: %w", id, err)
		}
		held = append(held, lock)
	}

	stop := make(chan struct{})
	stopped := make(chan struct{})
	go l.keepAlive(context.WithoutCancel(ctx), held, stop, stopped)

	done := false
	return func() {
		if done {
			return
		}
		done = true
		close(stop)
		<-stopped
		release()
	}, nil
}

// keepAlive extends every held lock to a full ttl each half ttl until stop is
// closed. A lock that was lost is logged and no longer refreshed.
func (l *ProductLocker) keepAlive(ctx context.Context, held []*redislock.Lock, stop <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)

	ticker := time.NewTicker(l.ttl / 2)
	defer ticker.Stop()

	live := slices.Clone(held)
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		live = slices.DeleteFunc(live, func(lock *redislock.Lock) bool {
			rctx, cancel := context.WithTimeout(ctx, l.ttl/2)
			defer cancel()
			err := lock.Refresh(rctx, l.ttl, nil)
			if err == nil {
				return false
			}
			l.logger.WarnContext(ctx, "failed to refresh product lock",
				slog.String("key", lock.Key()),
				slog.Any("error", err))
			return errors.Is(err, redislock.ErrNotObtained)
		})
	}
}
