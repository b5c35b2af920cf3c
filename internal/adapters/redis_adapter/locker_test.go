package redis_a_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redis_a "github.com/ammerola/storefront-ledger/internal/adapters/redis_adapter"
	"github.com/ammerola/storefront-ledger/internal/core/domain"
	"github.com/ammerola/storefront-ledger/test/helpers"
)

func TestProductLocker(t *testing.T) {
	ctx := context.Background()

	t.Run("overlapping_sets_are_exclusive", func(t *testing.T) {
		r := helpers.SetupTestRedis(t)
		locker := redis_a.NewProductLocker(r.Client, 5*time.Second, 0, helpers.TestLogger())

		unlock, err := locker.Lock(ctx, "p2", "p1", "p1")
		require.NoError(t, err)
		assert.True(t, r.Server.Exists(redis_a.LockKey("p1")))
		assert.True(t, r.Server.Exists(redis_a.LockKey("p2")))

		_, err = locker.Lock(ctx, "p3", "p2")
		assert.ErrorIs(t, err, domain.ErrConflict)
		assert.False(t, r.Server.Exists(redis_a.LockKey("p3")), "partial locks must be released")

		unlock()
		unlock()
		assert.False(t, r.Server.Exists(redis_a.LockKey("p1")))

		unlock2, err := locker.Lock(ctx, "p3", "p2")
		require.NoError(t, err)
		unlock2()
	})

	t.Run("expired_lock_can_be_taken_over", func(t *testing.T) {
		r := helpers.SetupTestRedis(t)
		locker := redis_a.NewProductLocker(r.Client, time.Second, 0, helpers.TestLogger())

		unlock, err := locker.Lock(ctx, "p1")
		require.NoError(t, err)

		r.Server.FastForward(2 * time.Second)

		unlock2, err := locker.Lock(ctx, "p1")
		require.NoError(t, err)

		// the stale holder must not release the new owner's lock
		unlock()
		assert.True(t, r.Server.Exists(redis_a.LockKey("p1")))
		unlock2()
		assert.False(t, r.Server.Exists(redis_a.LockKey("p1")))
	})

	t.Run("held_lock_outlives_its_ttl", func(t *testing.T) {
		r := helpers.SetupTestRedis(t)
		ttl := 400 * time.Millisecond
		locker := redis_a.NewProductLocker(r.Client, ttl, 0, helpers.TestLogger())
		key := redis_a.LockKey("p1")

		unlock, err := locker.Lock(ctx, "p1")
		require.NoError(t, err)

		r.Server.FastForward(300 * time.Millisecond)
		assert.Eventually(t, func() bool {
			return r.Server.TTL(key) > 300*time.Millisecond
		}, 2*time.Second, 10*time.Millisecond, "lock was never refreshed")

		// past the original expiry
		r.Server.FastForward(300 * time.Millisecond)
		assert.True(t, r.Server.Exists(key))

		_, err = locker.Lock(ctx, "p1")
		assert.ErrorIs(t, err, domain.ErrConflict)

		unlock()
		assert.False(t, r.Server.Exists(key))
	})

	t.Run("retries_until_released", func(t *testing.T) {
		r := helpers.SetupTestRedis(t)
		locker := redis_a.NewProductLocker(r.Client, 5*time.Second, 50, helpers.TestLogger())

		unlock, err := locker.Lock(ctx, "p1")
		require.NoError(t, err)

		done := make(chan error, 1)
		go func() {
			unlock2, err := locker.Lock(ctx, "p1")
			if err == nil {
				unlock2()
			}
			done <- err
		}()

		time.Sleep(120 * time.Millisecond)
		unlock()

		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("waiting locker never obtained the lock")
		}
	})
}

func TestProductLocker_KeyLayout(t *testing.T) {
	r := helpers.SetupTestRedis(t)
	locker := redis_a.NewProductLocker(r.Client, 5*time.Second, 100, helpers.TestLogger())

	unlock, err := locker.Lock(context.Background(), "PROD-1", "PROD-2")
	require.NoError(t, err)
	defer unlock()

	keys := r.Server.Keys()
	assert.ElementsMatch(t, []string{"lock:product:PROD-1", "lock:product:PROD-2"}, keys)
}
