package services_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ammerola/storefront-ledger/internal/core/domain"
	"github.com/ammerola/storefront-ledger/test/helpers"
)

func TestCartService(t *testing.T) {
	ctx := context.Background()
	svc := helpers.NewTestServices(t)
	pads := svc.AddProduct(t, 10)
	plug := svc.AddProduct(t, 10, func(p *domain.Product) {
		p.Name = "Spark Plug"
		p.Price = decimal.RequireFromString("4.25")
	})

	cart, err := svc.Cart.Create(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, cart.ID)
	assert.Empty(t, cart.Items)

	t.Run("add_merges_lines", func(t *testing.T) {
		_, err := svc.Cart.AddItem(ctx, cart.ID, pads.ID, 1)
		require.NoError(t, err)
		_, err = svc.Cart.AddItem(ctx, cart.ID, plug.ID, 4)
		require.NoError(t, err)
		got, err := svc.Cart.AddItem(ctx, cart.ID, pads.ID, 2)
		require.NoError(t, err)

		require.Len(t, got.Items, 2)
		assert.Equal(t, int64(3), got.Items[0].Quantity)
		assert.True(t, got.Total().Equal(decimal.NewFromInt(47)), "total %s", got.Total())
	})

	t.Run("remove_line", func(t *testing.T) {
		got, err := svc.Cart.RemoveItem(ctx, cart.ID, plug.ID)
		require.NoError(t, err)
		require.Len(t, got.Items, 1)
		assert.Equal(t, pads.ID, got.Items[0].ProductID)

		_, err = svc.Cart.RemoveItem(ctx, cart.ID, plug.ID)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("rejects_bad_items", func(t *testing.T) {
		_, err := svc.Cart.AddItem(ctx, cart.ID, pads.ID, 0)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
		_, err = svc.Cart.AddItem(ctx, cart.ID, "PROD-none", 1)
		assert.ErrorIs(t, err, domain.ErrNotFound)
		_, err = svc.Cart.AddItem(ctx, "cart-none", pads.ID, 1)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("cart_does_not_reserve_stock", func(t *testing.T) {
		assert.Equal(t, int64(10), svc.Product(t, pads.ID).Stock)
	})

	t.Run("clear", func(t *testing.T) {
		require.NoError(t, svc.Cart.Clear(ctx, cart.ID))
		_, err := svc.Cart.Get(ctx, cart.ID)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}
