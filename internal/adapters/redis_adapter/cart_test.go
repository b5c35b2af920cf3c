package redis_a_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redis_a "github.com/ammerola/storefront-ledger/internal/adapters/redis_adapter"
	"github.com/ammerola/storefront-ledger/internal/core/domain"
	"github.com/ammerola/storefront-ledger/test/helpers"
)

func TestCartRepository(t *testing.T) {
	ctx := context.Background()
	r := helpers.SetupTestRedis(t)
	repo := redis_a.NewCartRepository(r.Client, time.Hour)

	missing, err := repo.Get(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	cart := &domain.Cart{
		ID: "cart-1",
		Items: []domain.CartItem{{
			ProductID: "p1", ProductName: "Brake Pad Set", Quantity: 2,
			Price: decimal.RequireFromString("10.00"),
		}},
		UpdatedAt: time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, repo.Save(ctx, cart))
	assert.Equal(t, time.Hour, r.Server.TTL("cart:cart-1"))

	got, err := repo.Get(ctx, "cart-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Len(t, got.Items, 1)
	assert.True(t, got.Items[0].Price.Equal(decimal.NewFromInt(10)))
	assert.True(t, got.Total().Equal(decimal.NewFromInt(20)))

	t.Run("expires", func(t *testing.T) {
		require.NoError(t, repo.Save(ctx, &domain.Cart{ID: "cart-2"}))
		r.Server.FastForward(2 * time.Hour)
		got, err := repo.Get(ctx, "cart-2")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, repo.Delete(ctx, "cart-1"))
		require.NoError(t, repo.Delete(ctx, "cart-1"))
		got, err := repo.Get(ctx, "cart-1")
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}
