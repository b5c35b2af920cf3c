package redis_a_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redis_a "github.com/ammerola/storefront-ledger/internal/adapters/redis_adapter"
)

func TestIdempotencyStore(t *testing.T) {
	ctx := context.Background()
	cache, r := newCache(t)
	store := redis_a.NewIdempotencyStore(cache, time.Hour)

	stored, claimed, err := store.Begin(ctx, "POST /api/v1/pos/sales", "k1")
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.Nil(t, stored)

	stored, claimed, err = store.Begin(ctx, "POST /api/v1/pos/sales", "k1")
	require.NoError(t, err)
	assert.False(t, claimed)
	require.NotNil(t, stored)
	assert.False(t, stored.Completed, "first request still running")

	require.NoError(t, store.Complete(ctx, "POST /api/v1/pos/sales", "k1", redis_a.StoredResponse{
		Status:      201,
		ContentType: "application/json",
		Body:        []byte(`{"id":"POS-1"}`),
	}))

	stored, claimed, err = store.Begin(ctx, "POST /api/v1/pos/sales", "k1")
	require.NoError(t, err)
	assert.False(t, claimed)
	assert.True(t, stored.Completed)
	assert.Equal(t, 201, stored.Status)
	assert.JSONEq(t, `{"id":"POS-1"}`, string(stored.Body))

	t.Run("scopes_are_independent", func(t *testing.T) {
		_, claimed, err := store.Begin(ctx, "POST /api/v1/checkout", "k1")
		require.NoError(t, err)
		assert.True(t, claimed)
	})

	t.Run("abandon_allows_retry", func(t *testing.T) {
		_, claimed, err := store.Begin(ctx, "POST /api/v1/checkout", "k2")
		require.NoError(t, err)
		require.True(t, claimed)

		require.NoError(t, store.Abandon(ctx, "POST /api/v1/checkout", "k2"))

		_, claimed, err = store.Begin(ctx, "POST /api/v1/checkout", "k2")
		require.NoError(t, err)
		assert.True(t, claimed)
	})

	t.Run("keys_expire", func(t *testing.T) {
		r.Server.FastForward(2 * time.Hour)
		_, claimed, err := store.Begin(ctx, "POST /api/v1/pos/sales", "k1")
		require.NoError(t, err)
		assert.True(t, claimed)
	})
}
