// internal/adapters/memory/reports.go
package memory

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ammerola/storefront-ledger/internal/core/domain"
	"github.com/ammerola/storefront-ledger/internal/core/ports"
)

// ReportRepository computes dashboard aggregates over a Store.
type ReportRepository struct {
	store *Store
}

var _ ports.ReportRepository = (*ReportRepository)(nil)

// NewReportRepository creates a report repository for store.
func NewReportRepository(store *Store) *ReportRepository {
	return &ReportRepository{store: store}
}

func (r *ReportRepository) InventoryTotals(ctx context.Context) (int64, int64, decimal.Decimal, error) {
	var products, units int64
	value := decimal.Zero
	r.store.live.read(ctx, func(st *state) {
		for _, p := range st.products {
			products++
			units += p.Stock
			value = value.Add(p.CostPrice.Mul(decimal.NewFromInt(p.Stock)))
		}
	})
	return products, units, value, nil
}

func (r *ReportRepository) SalesSummary(ctx context.Context, from, to time.Time) ([]domain.SalesSummary, error) {
	type key struct {
		channel domain.Channel
		status  domain.OrderStatus
	}
	agg := make(map[key]*domain.SalesSummary)
	r.store.live.read(ctx, func(st *state) {
		for _, o := range st.orders {
			if o.CreatedAt.Before(from) || o.CreatedAt.After(to) {
				continue
			}
			k := key{o.Channel, o.Status}
			s, ok := agg[k]
			if !ok {
				s = &domain.SalesSummary{Channel: o.Channel, Status: o.Status, Revenue: decimal.Zero}
				agg[k] = s
			}
			s.Orders++
			s.Revenue = s.Revenue.Add(o.Total)
		}
	})
	out := make([]domain.SalesSummary, 0, len(agg))
	for _, s := range agg {
		out = append(out, *s)
	}
	slices.SortFunc(out, func(a, b domain.SalesSummary) int {
		return cmp.Or(cmp.Compare(a.Channel, b.Channel), cmp.Compare(a.Status, b.Status))
	})
	return out, nil
}

func (r *ReportRepository) MovementTotals(ctx context.Context, from, to time.Time) ([]domain.MovementTotals, error) {
	agg := make(map[domain.MovementType]*domain.MovementTotals)
	r.store.live.read(ctx, func(st *state) {
		for _, m := range st.movements {
			if m.CreatedAt.Before(from) || m.CreatedAt.After(to) {
				continue
			}
			t, ok := agg[m.Type]
			if !ok {
				t = &domain.MovementTotals{Type: m.Type}
				agg[m.Type] = t
			}
			t.Count++
			t.Quantity += m.Quantity
		}
	})
	out := make([]domain.MovementTotals, 0, len(agg))
	for _, t := range agg {
		out = append(out, *t)
	}
	slices.SortFunc(out, func(a, b domain.MovementTotals) int {
		return cmp.Compare(a.Type, b.Type)
	})
	return out, nil
}

func (r *ReportRepository) LowStock(ctx context.Context, limit int) ([]domain.LowStockItem, error) {
	var out []domain.LowStockItem
	r.store.live.read(ctx, func(st *state) {
		for _, p := range sortedProducts(st) {
			if p.IsLowStock() {
				out = append(out, domain.LowStockItem{
					ProductID:     p.ID,
					Name:          p.Name,
					SKU:           p.SKU,
					Stock:         p.Stock,
					MinStockLevel: p.MinStockLevel,
				})
			}
		}
	})
	slices.SortStableFunc(out, func(a, b domain.LowStockItem) int {
		return cmp.Compare(a.Stock, b.Stock)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
