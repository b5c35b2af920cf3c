// internal/adapters/db/reports.go
package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/shopspring/decimal"

	"github.com/ammerola/storefront-ledger/internal/core/domain"
	"github.com/ammerola/storefront-ledger/internal/core/ports"
)

// ReportRepository runs the dashboard aggregates through database/sql so the
// reporting queries can be pointed at a read replica.
type ReportRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ ports.ReportRepository = (*ReportRepository)(nil)

// NewReportRepository creates a report repository. Use stdlib.OpenDBFromPool
// to share the application pool.
func NewReportRepository(db *sql.DB, logger *slog.Logger) *ReportRepository {
	return &ReportRepository{
		db:     db,
		logger: logger.With(slog.String("repository", "reports")),
	}
}

// InventoryTotals counts products and on-hand units and values stock at cost.
func (r *ReportRepository) InventoryTotals(ctx context.Context) (int64, int64, decimal.Decimal, error) {
	query, args, err := squirrel.Select(
		"COUNT(*)",
		"COALESCE(SUM(stock), 0)",
		"COALESCE(SUM(cost_price * stock), 0)",
	).From("products").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return 0, 0, decimal.Zero, fmt.Errorf("failed to build query: %w", err)
	}

	var products, units int64
	var value decimal.Decimal
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&products, &units, &value); err != nil {
		return 0, 0, decimal.Zero, fmt.Errorf("failed to read inventory totals: %w", err)
	}
	return products, units, value, nil
}

func (r *ReportRepository) SalesSummary(ctx context.Context, from, to time.Time) ([]domain.SalesSummary, error) {
	query, args, err := squirrel.Select("channel", "status", "COUNT(*)", "COALESCE(SUM(total), 0)").
		From("orders").
		Where(squirrel.GtOrEq{"created_at": from}).
		Where(squirrel.LtOrEq{"created_at": to}).
		GroupBy("channel", "status").
		OrderBy("channel", "status").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sales summary: %w", err)
	}
	defer rows.Close()

	out := make([]domain.SalesSummary, 0)
	for rows.Next() {
		var s domain.SalesSummary
		var channel, status string
		if err := rows.Scan(&channel, &status, &s.Orders, &s.Revenue); err != nil {
			return nil, fmt.Errorf("failed to scan sales summary: %w", err)
		}
		s.Channel = domain.Channel(channel)
		s.Status = domain.OrderStatus(status)
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sales summary: %w", err)
	}
	return out, nil
}

func (r *ReportRepository) MovementTotals(ctx context.Context, from, to time.Time) ([]domain.MovementTotals, error) {
	query, args, err := squirrel.Select("type", "COUNT(*)", "COALESCE(SUM(quantity), 0)").
		From("stock_movements").
		Where(squirrel.GtOrEq{"created_at": from}).
		Where(squirrel.LtOrEq{"created_at": to}).
		GroupBy("type").
		OrderBy("type").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query movement totals: %w", err)
	}
	defer rows.Close()

	out := make([]domain.MovementTotals, 0)
	for rows.Next() {
		var t domain.MovementTotals
		var typ string
		if err := rows.Scan(&typ, &t.Count, &t.Quantity); err != nil {
			return nil, fmt.Errorf("failed to scan movement totals: %w", err)
		}
		t.Type = domain.MovementType(typ)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate movement totals: %w", err)
	}
	return out, nil
}

// LowStock lists products at or below their reorder level, emptiest first.
func (r *ReportRepository) LowStock(ctx context.Context, limit int) ([]domain.LowStockItem, error) {
	qb := squirrel.Select("id", "name", "sku", "stock", "min_stock_level").
		From("products").
		Where("min_stock_level > 0 AND stock <= min_stock_level").
		OrderBy("stock", "lower(name)", "id").
		PlaceholderFormat(squirrel.Dollar)
	if limit > 0 {
		qb = qb.Limit(uint64(limit))
	}
	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query low stock: %w", err)
	}
	defer rows.Close()

	out := make([]domain.LowStockItem, 0)
	for rows.Next() {
		var item domain.LowStockItem
		if err := rows.Scan(&item.ProductID, &item.Name, &item.SKU, &item.Stock, &item.MinStockLevel); err != nil {
			return nil, fmt.Errorf("failed to scan low stock item: %w", err)
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate low stock: %w", err)
	}
	return out, nil
}
