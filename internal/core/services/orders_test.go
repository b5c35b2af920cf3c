package services_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ammerola/storefront-ledger/internal/core/domain"
	"github.com/ammerola/storefront-ledger/internal/core/ports"
	"github.com/ammerola/storefront-ledger/test/helpers"
)

func placeOrder(t *testing.T, svc *helpers.TestServices, product *domain.Product, qty int64) *domain.Order {
	t.Helper()
	order, err := svc.Checkout.PlaceOrder(context.Background(), ports.PlaceOrderRequest{
		Items: []domain.CartItem{{
			ProductID:   product.ID,
			ProductName: product.Name,
			Quantity:    qty,
			Price:       product.Price,
		}},
		PaymentMethod: "card",
	})
	require.NoError(t, err)
	return order
}

func TestCheckout_StorefrontSale(t *testing.T) {
	ctx := context.Background()
	svc := helpers.NewTestServices(t)
	product := svc.AddProduct(t, 10)

	order := placeOrder(t, svc, product, 3)

	assert.Equal(t, domain.OrderPending, order.Status)
	assert.Equal(t, domain.ChannelStorefront, order.Channel)
	assert.Equal(t, domain.GuestCustomer, order.CustomerName)
	assert.True(t, order.TaxAmount.IsZero())
	assert.True(t, order.Total.Equal(decimal.RequireFromString("30.00")), "total %s", order.Total)
	assert.Equal(t, "USD", order.Currency)

	assert.Equal(t, int64(7), svc.Product(t, product.ID).Stock)

	history := svc.History(t, product.ID)
	require.Len(t, history, 2)
	assert.Equal(t, int64(-3), history[0].Quantity)
	assert.Equal(t, domain.MovementSale, history[0].Type)
	assert.Equal(t, domain.OnlineOrderReason(order.ID), history[0].Reason)

	weekly, err := svc.Reports.WeeklySales(ctx)
	require.NoError(t, err)
	require.Len(t, weekly, 7)
	for _, b := range weekly {
		if b.Name == order.Weekday() {
			assert.True(t, b.Sales.Equal(order.Total))
		} else {
			assert.True(t, b.Sales.IsZero(), "bucket %s", b.Name)
		}
	}

	stored, err := svc.Orders.Get(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.Items, stored.Items)
	svc.AssertLedgerConsistent(t)
}

func TestCheckout_FromStoredCart(t *testing.T) {
	ctx := context.Background()
	svc := helpers.NewTestServices(t)
	product := svc.AddProduct(t, 10)

	cart, err := svc.Cart.Create(ctx)
	require.NoError(t, err)
	_, err = svc.Cart.AddItem(ctx, cart.ID, product.ID, 2)
	require.NoError(t, err)

	// a price change after carting must not reach the order
	newPrice := decimal.RequireFromString("99.00")
	_, err = svc.Catalog.Update(ctx, product.ID, domain.ProductUpdate{Price: &newPrice})
	require.NoError(t, err)

	order, err := svc.Checkout.PlaceOrder(ctx, ports.PlaceOrderRequest{CartID: cart.ID, CustomerName: "Ana"})
	require.NoError(t, err)

	require.Len(t, order.Items, 1)
	assert.True(t, order.Items[0].PriceAtPurchase.Equal(product.Price))
	assert.True(t, order.Total.Equal(decimal.RequireFromString("20.00")))
	assert.Equal(t, "Ana", order.CustomerName)
	assert.Equal(t, int64(8), svc.Product(t, product.ID).Stock)

	_, err = svc.Cart.Get(ctx, cart.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCheckout_Validation(t *testing.T) {
	ctx := context.Background()
	svc := helpers.NewTestServices(t)
	product := svc.AddProduct(t, 10)

	tests := []struct {
		name string
		req  ports.PlaceOrderRequest
		want error
	}{
		{name: "empty_cart", req: ports.PlaceOrderRequest{}, want: domain.ErrInvalidInput},
		{name: "unknown_cart", req: ports.PlaceOrderRequest{CartID: "missing"}, want: domain.ErrNotFound},
		{
			name: "non_positive_quantity",
			req: ports.PlaceOrderRequest{Items: []domain.CartItem{{
				ProductID: product.ID, Quantity: 0, Price: product.Price,
			}}},
			want: domain.ErrInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Checkout.PlaceOrder(ctx, tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	assert.Equal(t, int64(10), svc.Product(t, product.ID).Stock)
}

func TestCheckout_DeletedProductIsSkipped(t *testing.T) {
	ctx := context.Background()
	svc := helpers.NewTestServices(t)
	kept := svc.AddProduct(t, 5)
	gone := svc.AddProduct(t, 5)
	require.NoError(t, svc.Catalog.Delete(ctx, gone.ID))

	order, err := svc.Checkout.PlaceOrder(ctx, ports.PlaceOrderRequest{Items: []domain.CartItem{
		{ProductID: kept.ID, Quantity: 1, Price: kept.Price},
		{ProductID: gone.ID, Quantity: 2, Price: gone.Price},
	}})
	require.NoError(t, err)

	assert.Len(t, order.Items, 2)
	assert.True(t, order.Total.Equal(decimal.RequireFromString("30.00")))
	assert.Equal(t, int64(4), svc.Product(t, kept.ID).Stock)
	assert.Len(t, svc.History(t, gone.ID), 1)
}

func TestOrderService_Lifecycle(t *testing.T) {
	ctx := context.Background()

	t.Run("cancel_restores_stock", func(t *testing.T) {
		svc := helpers.NewTestServices(t)
		product := svc.AddProduct(t, 10)
		order := placeOrder(t, svc, product, 3)

		cancelled, err := svc.Orders.Cancel(ctx, order.ID, "customer changed mind")
		require.NoError(t, err)
		assert.Equal(t, domain.OrderCancelled, cancelled.Status)

		assert.Equal(t, int64(10), svc.Product(t, product.ID).Stock)
		history := svc.History(t, product.ID)
		require.Len(t, history, 3)
		assert.Equal(t, int64(3), history[0].Quantity)
		assert.Equal(t, domain.MovementReturn, history[0].Type)
		assert.Equal(t, "Order Cancelled: "+order.ID+" - customer changed mind", history[0].Reason)
		svc.AssertLedgerConsistent(t)
	})

	t.Run("cancel_after_shipping", func(t *testing.T) {
		svc := helpers.NewTestServices(t)
		product := svc.AddProduct(t, 4)
		order := placeOrder(t, svc, product, 4)

		_, err := svc.Orders.UpdateStatus(ctx, order.ID, domain.OrderShipped)
		require.NoError(t, err)
		_, err = svc.Orders.Cancel(ctx, order.ID, "lost in transit")
		require.NoError(t, err)
		assert.Equal(t, int64(4), svc.Product(t, product.ID).Stock)
	})

	t.Run("cancel_requires_reason", func(t *testing.T) {
		svc := helpers.NewTestServices(t)
		product := svc.AddProduct(t, 10)
		order := placeOrder(t, svc, product, 1)

		_, err := svc.Orders.Cancel(ctx, order.ID, "   ")
		assert.ErrorIs(t, err, domain.ErrInvalidInput)

		stored, err := svc.Orders.Get(ctx, order.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.OrderPending, stored.Status)
	})

	t.Run("cancel_delivered_order_is_rejected", func(t *testing.T) {
		svc := helpers.NewTestServices(t)
		product := svc.AddProduct(t, 10)
		order := placeOrder(t, svc, product, 2)
		_, err := svc.Orders.UpdateStatus(ctx, order.ID, domain.OrderShipped)
		require.NoError(t, err)
		_, err = svc.Orders.UpdateStatus(ctx, order.ID, domain.OrderDelivered)
		require.NoError(t, err)

		_, err = svc.Orders.Cancel(ctx, order.ID, "too late")
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
		assert.Equal(t, int64(8), svc.Product(t, product.ID).Stock)
	})

	t.Run("cancel_rolls_back_when_product_was_deleted", func(t *testing.T) {
		svc := helpers.NewTestServices(t)
		product := svc.AddProduct(t, 10)
		order := placeOrder(t, svc, product, 2)
		require.NoError(t, svc.Catalog.Delete(ctx, product.ID))

		_, err := svc.Orders.Cancel(ctx, order.ID, "changed mind")
		assert.ErrorIs(t, err, domain.ErrNotFound)

		stored, err := svc.Orders.Get(ctx, order.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.OrderPending, stored.Status)
		assert.Len(t, svc.History(t, product.ID), 2)
	})

	t.Run("refund_keeps_stock", func(t *testing.T) {
		svc := helpers.NewTestServices(t)
		product := svc.AddProduct(t, 10)
		order := placeOrder(t, svc, product, 3)
		_, err := svc.Orders.UpdateStatus(ctx, order.ID, domain.OrderShipped)
		require.NoError(t, err)
		_, err = svc.Orders.UpdateStatus(ctx, order.ID, domain.OrderDelivered)
		require.NoError(t, err)

		refunded, err := svc.Orders.Refund(ctx, order.ID, "damaged")
		require.NoError(t, err)
		assert.Equal(t, domain.OrderRefunded, refunded.Status)
		assert.Equal(t, "damaged", refunded.RefundReason)
		assert.Equal(t, int64(7), svc.Product(t, product.ID).Stock)
		assert.Len(t, svc.History(t, product.ID), 2)

		_, err = svc.Orders.Cancel(ctx, order.ID, "undo")
		assert.ErrorIs(t, err, domain.ErrTerminalState)
		assert.Equal(t, int64(7), svc.Product(t, product.ID).Stock)
	})

	t.Run("refund_requires_reason", func(t *testing.T) {
		svc := helpers.NewTestServices(t)
		product := svc.AddProduct(t, 10)
		order := placeOrder(t, svc, product, 1)

		_, err := svc.Orders.Refund(ctx, order.ID, "")
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("terminal_orders_are_immutable", func(t *testing.T) {
		svc := helpers.NewTestServices(t)
		product := svc.AddProduct(t, 10)
		order := placeOrder(t, svc, product, 1)
		_, err := svc.Orders.Cancel(ctx, order.ID, "duplicate")
		require.NoError(t, err)

		_, err = svc.Orders.UpdateStatus(ctx, order.ID, domain.OrderShipped)
		assert.ErrorIs(t, err, domain.ErrTerminalState)
		_, err = svc.Orders.Cancel(ctx, order.ID, "again")
		assert.ErrorIs(t, err, domain.ErrTerminalState)
		_, err = svc.Orders.Refund(ctx, order.ID, "again")
		assert.ErrorIs(t, err, domain.ErrTerminalState)

		assert.Equal(t, int64(10), svc.Product(t, product.ID).Stock)
		svc.AssertLedgerConsistent(t)
	})

	t.Run("update_status_rejects_skips_and_terminal_targets", func(t *testing.T) {
		svc := helpers.NewTestServices(t)
		product := svc.AddProduct(t, 10)
		order := placeOrder(t, svc, product, 1)

		_, err := svc.Orders.UpdateStatus(ctx, order.ID, domain.OrderDelivered)
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
		_, err = svc.Orders.UpdateStatus(ctx, order.ID, domain.OrderCancelled)
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
		_, err = svc.Orders.UpdateStatus(ctx, order.ID, "lost")
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
		_, err = svc.Orders.UpdateStatus(ctx, "ORD-missing", domain.OrderShipped)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestOrderService_TotalsSurvivePriceChanges(t *testing.T) {
	ctx := context.Background()
	svc := helpers.NewTestServices(t)
	product := svc.AddProduct(t, 10)
	order := placeOrder(t, svc, product, 2)

	price := decimal.RequireFromString("45.50")
	_, err := svc.Catalog.Update(ctx, product.ID, domain.ProductUpdate{Price: &price})
	require.NoError(t, err)

	stored, err := svc.Orders.Get(ctx, order.ID)
	require.NoError(t, err)
	assert.True(t, stored.Total.Equal(stored.ItemsSubtotal()))
	assert.True(t, stored.Total.Equal(decimal.RequireFromString("20.00")))
}

func TestOrderService_List(t *testing.T) {
	ctx := context.Background()
	svc := helpers.NewTestServices(t)
	product := svc.AddProduct(t, 50)

	var ids []string
	for range 3 {
		ids = append(ids, placeOrder(t, svc, product, 1).ID)
	}
	_, err := svc.Orders.Cancel(ctx, ids[0], "test")
	require.NoError(t, err)

	page, err := svc.Orders.List(ctx, domain.OrderFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.TotalCount)
	assert.Equal(t, 50, page.Limit)

	pending, err := svc.Orders.List(ctx, domain.OrderFilter{Status: domain.OrderPending})
	require.NoError(t, err)
	assert.Equal(t, int64(2), pending.TotalCount)
	for _, o := range pending.Items {
		assert.Equal(t, domain.OrderPending, o.Status)
	}

	limited, err := svc.Orders.List(ctx, domain.OrderFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Len(t, limited.Items, 1)
	assert.Equal(t, int64(3), limited.TotalCount)
}
