package services_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/ammerola/storefront-ledger/internal/core/domain"
	"github.com/ammerola/storefront-ledger/test/helpers"
)

func TestLedgerService_ApplyMovement(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name          string
		opening       int64
		req           func(productID string) domain.MovementRequest
		expectedError error
		wantStock     int64
		wantBalance   int64
	}{
		{
			name:    "adjustment_adds_stock",
			opening: 10,
			req: func(id string) domain.MovementRequest {
				return domain.MovementRequest{ProductID: id, Quantity: 5, Type: domain.MovementAdjustment, Reason: "count"}
			},
			wantStock:   15,
			wantBalance: 15,
		},
		{
			name:    "sale_removes_stock",
			opening: 10,
			req: func(id string) domain.MovementRequest {
				return domain.MovementRequest{ProductID: id, Quantity: -4, Type: domain.MovementSale, Reason: "walk-in"}
			},
			wantStock:   6,
			wantBalance: 6,
		},
		{
			name:    "oversell_clamps_displayed_stock",
			opening: 2,
			req: func(id string) domain.MovementRequest {
				return domain.MovementRequest{ProductID: id, Quantity: -5, Type: domain.MovementSale, Reason: "oversold"}
			},
			wantStock:   0,
			wantBalance: -3,
		},
		{
			name:    "zero_quantity_rejected",
			opening: 10,
			req: func(id string) domain.MovementRequest {
				return domain.MovementRequest{ProductID: id, Quantity: 0, Type: domain.MovementAdjustment}
			},
			expectedError: domain.ErrInvalidInput,
			wantStock:     10,
			wantBalance:   10,
		},
		{
			name:    "unknown_type_rejected",
			opening: 10,
			req: func(id string) domain.MovementRequest {
				return domain.MovementRequest{ProductID: id, Quantity: 1, Type: "gift"}
			},
			expectedError: domain.ErrInvalidInput,
			wantStock:     10,
			wantBalance:   10,
		},
		{
			name:    "missing_product_rejected",
			opening: 10,
			req: func(string) domain.MovementRequest {
				return domain.MovementRequest{ProductID: "PROD-missing", Quantity: 1, Type: domain.MovementAdjustment}
			},
			expectedError: domain.ErrNotFound,
			wantStock:     10,
			wantBalance:   10,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := helpers.NewTestServices(t)
			product := svc.AddProduct(t, tt.opening)

			m, err := svc.Ledger.ApplyMovement(ctx, tt.req(product.ID))

			if tt.expectedError != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.expectedError)
				assert.Nil(t, m)
			} else {
				require.NoError(t, err)
				require.NotNil(t, m)
				assert.NotEmpty(t, m.ID)
				assert.Positive(t, m.Seq)
			}

			got := svc.Product(t, product.ID)
			assert.Equal(t, tt.wantStock, got.Stock)
			assert.Equal(t, tt.wantBalance, got.LedgerBalance)
			svc.AssertLedgerConsistent(t)
		})
	}
}

func TestLedgerService_HistoryFor(t *testing.T) {
	ctx := context.Background()

	t.Run("pages_newest_first", func(t *testing.T) {
		svc := helpers.NewTestServices(t)
		product := svc.AddProduct(t, 1)
		other := svc.AddProduct(t, 7)

		for _, q := range []int64{2, -1, 3, 4} {
			_, err := svc.Ledger.ApplyMovement(ctx, domain.MovementRequest{
				ProductID: product.ID, Quantity: q, Type: domain.MovementAdjustment, Reason: "recount",
			})
			require.NoError(t, err)
		}

		history := svc.History(t, product.ID)
		require.Len(t, history, 5)

		quantities := make([]int64, 0, len(history))
		for i, m := range history {
			assert.Equal(t, product.ID, m.ProductID)
			quantities = append(quantities, m.Quantity)
			if i > 0 {
				assert.Less(t, m.Seq, history[i-1].Seq)
			}
		}
		assert.Equal(t, []int64{4, 3, -1, 2, 1}, quantities)
		assert.Equal(t, domain.InitialStockReason, history[4].Reason)

		assert.Len(t, svc.History(t, other.ID), 1)
	})

	t.Run("stops_when_consumer_breaks", func(t *testing.T) {
		svc := helpers.NewTestServices(t)
		product := svc.AddProduct(t, 1)
		for range 4 {
			_, err := svc.Ledger.ApplyMovement(ctx, domain.MovementRequest{
				ProductID: product.ID, Quantity: 1, Type: domain.MovementPurchase,
			})
			require.NoError(t, err)
		}

		seen := 0
		for _, err := range svc.Ledger.HistoryFor(ctx, product.ID) {
			require.NoError(t, err)
			seen++
			if seen == 3 {
				break
			}
		}
		assert.Equal(t, 3, seen)
	})

	t.Run("ignores_movements_appended_during_iteration", func(t *testing.T) {
		svc := helpers.NewTestServices(t)
		product := svc.AddProduct(t, 10)
		for range 3 {
			_, err := svc.Ledger.ApplyMovement(ctx, domain.MovementRequest{
				ProductID: product.ID, Quantity: -1, Type: domain.MovementSale,
			})
			require.NoError(t, err)
		}

		var quantities []int64
		first := true
		for m, err := range svc.Ledger.HistoryFor(ctx, product.ID) {
			require.NoError(t, err)
			quantities = append(quantities, m.Quantity)
			if first {
				first = false
				_, err := svc.Ledger.ApplyMovement(ctx, domain.MovementRequest{
					ProductID: product.ID, Quantity: 50, Type: domain.MovementPurchase,
				})
				require.NoError(t, err)
			}
		}
		assert.Equal(t, []int64{-1, -1, -1, 10}, quantities)
		assert.Len(t, svc.History(t, product.ID), 5)
	})

	t.Run("unknown_product_yields_nothing", func(t *testing.T) {
		svc := helpers.NewTestServices(t)
		assert.Empty(t, svc.History(t, "PROD-none"))
	})
}

func TestLedgerService_ReconcileAndReplay(t *testing.T) {
	ctx := context.Background()
	svc := helpers.NewTestServices(t)

	a := svc.AddProduct(t, 10)
	b := svc.AddProduct(t, 1)

	_, err := svc.Ledger.ApplyMovement(ctx, domain.MovementRequest{ProductID: a.ID, Quantity: -3, Type: domain.MovementSale})
	require.NoError(t, err)
	_, err = svc.Ledger.ApplyMovement(ctx, domain.MovementRequest{ProductID: b.ID, Quantity: -4, Type: domain.MovementSale})
	require.NoError(t, err)

	t.Run("reconcile_reports_consistent_product", func(t *testing.T) {
		r, err := svc.Ledger.Reconcile(ctx, b.ID)
		require.NoError(t, err)
		assert.True(t, r.Consistent)
		assert.Equal(t, int64(-3), r.MovementSum)
		assert.Equal(t, int64(2), r.MovementCount)
		assert.Equal(t, int64(0), r.ExpectedStock)
		assert.Equal(t, int64(0), r.Stock)
	})

	t.Run("reconcile_missing_product", func(t *testing.T) {
		_, err := svc.Ledger.Reconcile(ctx, "PROD-none")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("replay_matches_projections", func(t *testing.T) {
		balances, err := svc.Ledger.Replay(ctx)
		require.NoError(t, err)
		assert.Equal(t, map[string]int64{a.ID: 7, b.ID: -3}, balances)

		for id, balance := range balances {
			p := svc.Product(t, id)
			assert.Equal(t, balance, p.LedgerBalance)
			assert.Equal(t, domain.ClampStock(balance), p.Stock)
		}
	})

	t.Run("drift_is_detected", func(t *testing.T) {
		require.NoError(t, svc.Store.Products().UpdateStock(ctx, a.ID, 99, 99, a.UpdatedAt))

		r, err := svc.Ledger.Reconcile(ctx, a.ID)
		require.NoError(t, err)
		assert.False(t, r.Consistent)
		assert.Equal(t, int64(7), r.MovementSum)
		assert.Equal(t, int64(99), r.LedgerBalance)
	})
}

func TestLedgerService_ConcurrentSales(t *testing.T) {
	ctx := context.Background()
	svc := helpers.NewTestServices(t)
	product := svc.AddProduct(t, 100)

	var g errgroup.Group
	for range 40 {
		g.Go(func() error {
			_, err := svc.Ledger.ApplyMovement(ctx, domain.MovementRequest{
				ProductID: product.ID, Quantity: -1, Type: domain.MovementSale, Reason: "rush",
			})
			return err
		})
	}
	require.NoError(t, g.Wait())

	got := svc.Product(t, product.ID)
	assert.Equal(t, int64(60), got.Stock)
	assert.Len(t, svc.History(t, product.ID), 41)
	svc.AssertLedgerConsistent(t)
}
