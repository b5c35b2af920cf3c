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

func TestCatalogService_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("opening_stock_is_a_ledger_adjustment", func(t *testing.T) {
		svc := helpers.NewTestServices(t)
		p := helpers.CreateTestProduct(func(p *domain.Product) {
			p.Stock = 999
			p.LedgerBalance = 999
		})

		require.NoError(t, svc.Catalog.Create(ctx, p, 12, "admin"))
		assert.Equal(t, int64(12), p.Stock)

		stored := svc.Product(t, p.ID)
		assert.Equal(t, int64(12), stored.Stock)
		assert.Equal(t, int64(12), stored.LedgerBalance)

		history := svc.History(t, p.ID)
		require.Len(t, history, 1)
		assert.Equal(t, domain.MovementAdjustment, history[0].Type)
		assert.Equal(t, domain.InitialStockReason, history[0].Reason)
		assert.Equal(t, "admin", history[0].UserID)
	})

	t.Run("zero_stock_writes_no_movement", func(t *testing.T) {
		svc := helpers.NewTestServices(t)
		p := svc.AddProduct(t, 0)
		assert.Empty(t, svc.History(t, p.ID))
	})

	t.Run("defaults_are_filled", func(t *testing.T) {
		svc := helpers.NewTestServices(t)
		p := &domain.Product{Name: "  Wiper Blade  ", Price: decimal.NewFromInt(9)}

		require.NoError(t, svc.Catalog.Create(ctx, p, 0, ""))
		assert.NotEmpty(t, p.ID)
		assert.Equal(t, "Wiper Blade", p.Name)
		assert.Equal(t, domain.DefaultProductCategory, p.Category)
		assert.Equal(t, domain.DefaultUnitOfMeasure, p.UOM)
	})

	t.Run("duplicate_id_conflicts", func(t *testing.T) {
		svc := helpers.NewTestServices(t)
		p := svc.AddProduct(t, 3)

		dup := helpers.CreateTestProduct(func(d *domain.Product) { d.ID = p.ID })
		err := svc.Catalog.Create(ctx, dup, 5, "")
		assert.ErrorIs(t, err, domain.ErrConflict)
		assert.Equal(t, int64(3), svc.Product(t, p.ID).Stock)
	})

	t.Run("validation", func(t *testing.T) {
		svc := helpers.NewTestServices(t)

		tests := []struct {
			name    string
			product *domain.Product
		}{
			{name: "blank_name", product: &domain.Product{Name: "   "}},
			{name: "negative_price", product: &domain.Product{Name: "X", Price: decimal.NewFromInt(-1)}},
			{name: "negative_cost", product: &domain.Product{Name: "X", CostPrice: decimal.NewFromInt(-1)}},
			{name: "negative_min_stock", product: &domain.Product{Name: "X", MinStockLevel: -1}},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				assert.ErrorIs(t, svc.Catalog.Create(ctx, tt.product, 0, ""), domain.ErrInvalidInput)
			})
		}
	})
}

func TestCatalogService_Update(t *testing.T) {
	ctx := context.Background()
	svc := helpers.NewTestServices(t)
	p := svc.AddProduct(t, 5, func(p *domain.Product) {
		p.CustomFields = map[string]string{"shelf": "B2", "color": "red"}
	})

	t.Run("merges_given_fields", func(t *testing.T) {
		name := "Ceramic Brake Pads"
		price := decimal.RequireFromString("14.99")
		updated, err := svc.Catalog.Update(ctx, p.ID, domain.ProductUpdate{
			Name:         &name,
			Price:        &price,
			CustomFields: map[string]string{"shelf": "", "bin": "7"},
		})
		require.NoError(t, err)

		assert.Equal(t, name, updated.Name)
		assert.True(t, updated.Price.Equal(price))
		assert.Equal(t, p.SKU, updated.SKU)
		assert.Equal(t, int64(5), updated.Stock)
		assert.Equal(t, map[string]string{"color": "red", "bin": "7"}, updated.CustomFields)

		assert.Len(t, svc.History(t, p.ID), 1)
	})

	t.Run("empty_update", func(t *testing.T) {
		_, err := svc.Catalog.Update(ctx, p.ID, domain.ProductUpdate{})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("invalid_update", func(t *testing.T) {
		blank := " "
		_, err := svc.Catalog.Update(ctx, p.ID, domain.ProductUpdate{Name: &blank})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("unknown_product", func(t *testing.T) {
		sku := "X-1"
		_, err := svc.Catalog.Update(ctx, "PROD-none", domain.ProductUpdate{SKU: &sku})
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestCatalogService_Delete(t *testing.T) {
	ctx := context.Background()
	svc := helpers.NewTestServices(t)
	p := svc.AddProduct(t, 4)

	require.NoError(t, svc.Catalog.Delete(ctx, p.ID))

	_, err := svc.Catalog.Get(ctx, p.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, svc.Catalog.Delete(ctx, p.ID), domain.ErrNotFound)

	snap, err := svc.Backup.Export(ctx)
	require.NoError(t, err)
	require.Len(t, snap.StockMovements, 1)
	assert.Equal(t, p.ID, snap.StockMovements[0].ProductID)
}

func TestCatalogService_List(t *testing.T) {
	ctx := context.Background()
	svc := helpers.NewTestServices(t)

	svc.AddProduct(t, 10, func(p *domain.Product) { p.Name = "Oil Filter"; p.SKU = "OF-1"; p.Category = "Filters" })
	svc.AddProduct(t, 1, func(p *domain.Product) { p.Name = "Air Filter"; p.SKU = "AF-1"; p.Category = "Filters" })
	svc.AddProduct(t, 9, func(p *domain.Product) { p.Name = "Spark Plug"; p.SKU = "SP-1"; p.Category = "Ignition" })

	tests := []struct {
		name      string
		filter    domain.ProductFilter
		wantTotal int64
		wantNames []string
	}{
		{
			name:      "search_by_name",
			filter:    domain.ProductFilter{Search: "filter"},
			wantTotal: 2,
			wantNames: []string{"Air Filter", "Oil Filter"},
		},
		{
			name:      "search_by_sku",
			filter:    domain.ProductFilter{Search: "sp-"},
			wantTotal: 1,
			wantNames: []string{"Spark Plug"},
		},
		{
			name:      "category",
			filter:    domain.ProductFilter{Category: "ignition"},
			wantTotal: 1,
			wantNames: []string{"Spark Plug"},
		},
		{
			name:      "low_stock",
			filter:    domain.ProductFilter{LowStock: true},
			wantTotal: 1,
			wantNames: []string{"Air Filter"},
		},
		{
			name:      "paged",
			filter:    domain.ProductFilter{Limit: 1, Offset: 1},
			wantTotal: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := svc.Catalog.List(ctx, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.wantTotal, page.TotalCount)

			if tt.wantNames == nil {
				assert.Len(t, page.Items, tt.filter.Limit)
				return
			}
			names := make([]string, 0, len(page.Items))
			for _, p := range page.Items {
				names = append(names, p.Name)
			}
			assert.ElementsMatch(t, tt.wantNames, names)
		})
	}
}
