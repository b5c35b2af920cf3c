// internal/adapters/db/settings.go
package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/ammerola/storefront-ledger/internal/core/domain"
	"github.com/ammerola/storefront-ledger/internal/core/ports"
)

// StoreProfileRepository keeps the single profile row as jsonb.
type StoreProfileRepository struct {
	db     *Database
	logger *slog.Logger
}

var _ ports.StoreProfileRepository = (*StoreProfileRepository)(nil)

// NewStoreProfileRepository creates a new store profile repository
func NewStoreProfileRepository(db *Database, logger *slog.Logger) *StoreProfileRepository {
	return &StoreProfileRepository{
		db:     db,
		logger: logger.With(slog.String("repository", "store_profile")),
	}
}

// Get returns the saved profile, or the default one before the first save.
func (r *StoreProfileRepository) Get(ctx context.Context) (domain.StoreProfile, error) {
	var profile domain.StoreProfile
	err := r.db.conn(ctx).QueryRow(ctx, `SELECT profile FROM store_profile WHERE id = 1`).Scan(&profile)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.DefaultStoreProfile(), nil
	}
	if err != nil {
		return domain.StoreProfile{}, fmt.Errorf("failed to get store profile: %w", err)
	}
	return profile, nil
}

func (r *StoreProfileRepository) Save(ctx context.Context, profile domain.StoreProfile) error {
	_, err := r.db.conn(ctx).Exec(ctx, `
		INSERT INTO store_profile (id, profile) VALUES (1, $1)
		ON CONFLICT (id) DO UPDATE SET profile = EXCLUDED.profile`, profile)
	if err != nil {
		return fmt.Errorf("failed to save store profile: %w", err)
	}
	return nil
}

// SalesRepository keeps the weekday sales buckets.
type SalesRepository struct {
	db     *Database
	logger *slog.Logger
}

var _ ports.SalesRepository = (*SalesRepository)(nil)

// NewSalesRepository creates a new sales bucket repository
func NewSalesRepository(db *Database, logger *slog.Logger) *SalesRepository {
	return &SalesRepository{
		db:     db,
		logger: logger.With(slog.String("repository", "sales_buckets")),
	}
}

// Increment adds amount to a bucket, creating it on first use.
func (r *SalesRepository) Increment(ctx context.Context, bucket string, amount decimal.Decimal) error {
	_, err := r.db.conn(ctx).Exec(ctx, `
		INSERT INTO sales_buckets (name, sales) VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET sales = sales_buckets.sales + EXCLUDED.sales`,
		bucket, amount)
	if err != nil {
		return fmt.Errorf("failed to increment sales bucket: %w", err)
	}
	return nil
}

// List returns the stored buckets in weekday order.
func (r *SalesRepository) List(ctx context.Context) ([]domain.SalesBucket, error) {
	rows, err := r.db.conn(ctx).Query(ctx, `SELECT name, sales FROM sales_buckets`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sales buckets: %w", err)
	}
	stored, err := pgx.CollectRows(rows, pgx.RowToStructByPos[domain.SalesBucket])
	if err != nil {
		return nil, fmt.Errorf("failed to scan sales buckets: %w", err)
	}

	byName := make(map[string]domain.SalesBucket, len(stored))
	for _, b := range stored {
		byName[b.Name] = b
	}
	out := make([]domain.SalesBucket, 0, len(stored))
	for _, day := range domain.Weekdays {
		if b, ok := byName[day]; ok {
			out = append(out, b)
		}
	}
	return out, nil
}

func (r *SalesRepository) ReplaceAll(ctx context.Context, buckets []domain.SalesBucket) error {
	q := r.db.conn(ctx)
	if _, err := q.Exec(ctx, `DELETE FROM sales_buckets`); err != nil {
		return fmt.Errorf("failed to clear sales buckets: %w", err)
	}
	err := execBatch(ctx, q,
		`INSERT INTO sales_buckets (name, sales) VALUES ($1, $2)
		 ON CONFLICT (name) DO UPDATE SET sales = EXCLUDED.sales`,
		buckets, func(b domain.SalesBucket) []any { return []any{b.Name, b.Sales} })
	if err != nil {
		return fmt.Errorf("failed to restore sales buckets: %w", err)
	}
	return nil
}
