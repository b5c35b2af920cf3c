// internal/core/services/reports.go
package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ammerola/storefront-ledger/internal/core/domain"
	"github.com/ammerola/storefront-ledger/internal/core/ports"
	"github.com/ammerola/storefront-ledger/internal/pkg/currency"
)

const (
	dashboardCacheKey = "dashboard:summary"

	// DefaultReportWindow is how far back the dashboard aggregates look.
	DefaultReportWindow = 30 * 24 * time.Hour
	lowStockLimit       = 20
)

// ReportService builds the back-office dashboard. Results are cached when a
// cache is configured; writers call Invalidate.
type ReportService struct {
	uow     ports.UnitOfWork
	reports ports.ReportRepository
	cache   ports.Cache
	ttl     time.Duration
	window  time.Duration
	logger  *slog.Logger
}

var _ ports.ReportService = (*ReportService)(nil)

// NewReportService creates a new report service. cache may be nil.
func NewReportService(uow ports.UnitOfWork, reports ports.ReportRepository, cache ports.Cache, ttl time.Duration, logger *slog.Logger) *ReportService {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &ReportService{
		uow:     uow,
		reports: reports,
		cache:   cache,
		ttl:     ttl,
		window:  DefaultReportWindow,
		logger:  logger.With(slog.String("service", "reports")),
	}
}

// Dashboard returns the cached overview, building it on a miss.
func (s *ReportService) Dashboard(ctx context.Context) (*domain.Dashboard, error) {
	if s.cache == nil {
		return s.build(ctx)
	}

	var dash domain.Dashboard
	err := s.cache.Remember(ctx, dashboardCacheKey, s.ttl, &dash, func(ctx context.Context) (any, error) {
		return s.build(ctx)
	})
	if err != nil {
		s.logger.WarnContext(ctx, "dashboard cache unavailable, building directly",
			slog.String("error", err.Error()))
		return s.build(ctx)
	}
	return &dash, nil
}

func (s *ReportService) build(ctx context.Context) (*domain.Dashboard, error) {
	now := time.Now().UTC()
	from := now.Add(-s.window)

	profile, err := s.uow.StoreProfile().Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get store profile: %w", err)
	}
	products, units, value, err := s.reports.InventoryTotals(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get inventory totals: %w", err)
	}
	sales, err := s.reports.SalesSummary(ctx, from, now)
	if err != nil {
		return nil, fmt.Errorf("failed to get sales summary: %w", err)
	}
	movements, err := s.reports.MovementTotals(ctx, from, now)
	if err != nil {
		return nil, fmt.Errorf("failed to get movement totals: %w", err)
	}
	lowStock, err := s.reports.LowStock(ctx, lowStockLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to get low stock: %w", err)
	}
	weekly, err := s.WeeklySales(ctx)
	if err != nil {
		return nil, err
	}

	revenue := decimal.Zero
	for _, row := range sales {
		if row.Status == domain.OrderCancelled || row.Status == domain.OrderRefunded {
			continue
		}
		revenue = revenue.Add(row.Revenue)
	}

	return &domain.Dashboard{
		Currency:       profile.Currency,
		ProductCount:   products,
		UnitsOnHand:    units,
		InventoryValue: value,
		InventoryLabel: currency.Format(value, profile.Currency),
		Revenue:        revenue,
		RevenueLabel:   currency.Format(revenue, profile.Currency),
		Sales:          sales,
		Movements:      movements,
		LowStock:       lowStock,
		Weekly:         weekly,
		GeneratedAt:    now,
	}, nil
}

// WeeklySales returns one bucket per weekday, Monday first, with zero for days
// without sales.
func (s *ReportService) WeeklySales(ctx context.Context) ([]domain.SalesBucket, error) {
	buckets, err := s.uow.Sales().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list sales buckets: %w", err)
	}
	byDay := make(map[string]decimal.Decimal, len(buckets))
	for _, b := range buckets {
		byDay[b.Name] = b.Sales
	}

	out := make([]domain.SalesBucket, 0, len(domain.Weekdays))
	for _, day := range domain.Weekdays {
		sales, ok := byDay[day]
		if !ok {
			sales = decimal.Zero
		}
		out = append(out, domain.SalesBucket{Name: day, Sales: sales})
	}
	return out, nil
}

// Invalidate drops the cached dashboard.
func (s *ReportService) Invalidate(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	if err := s.cache.Invalidate(ctx, dashboardCacheKey); err != nil {
		return fmt.Errorf("failed to invalidate dashboard: %w", err)
	}
	return nil
}
