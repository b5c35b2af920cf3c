// internal/core/services/ledger.go
package services

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/ammerola/storefront-ledger/internal/core/domain"
	"github.com/ammerola/storefront-ledger/internal/core/ports"
)

// DefaultHistoryPageSize is how many movements HistoryFor reads per round trip.
const DefaultHistoryPageSize = 100

// LedgerService owns the append-only movement history and the stock
// projections derived from it.
type LedgerService struct {
	uow      ports.UnitOfWork
	locker   ports.ProductLocker
	pageSize int
	logger   *slog.Logger
}

var _ ports.LedgerService = (*LedgerService)(nil)

// NewLedgerService creates a new ledger service
func NewLedgerService(uow ports.UnitOfWork, locker ports.ProductLocker, pageSize int, logger *slog.Logger) *LedgerService {
	if pageSize <= 0 {
		pageSize = DefaultHistoryPageSize
	}
	return &LedgerService{
		uow:      uow,
		locker:   locker,
		pageSize: pageSize,
		logger:   logger.With(slog.String("service", "ledger")),
	}
}

// ApplyMovement appends one movement and moves the product's stock with it.
func (s *LedgerService) ApplyMovement(ctx context.Context, req domain.MovementRequest) (*domain.StockMovement, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var movement *domain.StockMovement
	err := s.withProducts(ctx, []string{req.ProductID}, func() error {
		return s.uow.Atomically(ctx, func(ctx context.Context, repos ports.Repositories) error {
			m, err := s.apply(ctx, repos, req, time.Now().UTC())
			if err != nil {
				return err
			}
			movement = m
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to apply movement: %w", err)
	}

	s.logger.InfoContext(ctx, "stock movement applied",
		slog.String("movement_id", movement.ID),
		slog.String("product_id", movement.ProductID),
		slog.Int64("quantity", movement.Quantity),
		slog.String("type", movement.Type.String()))

	return movement, nil
}

// apply is the ledger write used by every coordinator. It must run inside a
// unit of work with the product already locked.
func (s *LedgerService) apply(ctx context.Context, repos ports.Repositories, req domain.MovementRequest, at time.Time) (*domain.StockMovement, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	product, err := repos.Products().FindByIDForUpdate(ctx, req.ProductID)
	if err != nil {
		return nil, fmt.Errorf("failed to load product: %w", err)
	}
	if product == nil {
		return nil, domain.NotFound("product", req.ProductID)
	}

	movement := domain.NewMovement(req, at)
	if err := repos.Movements().Append(ctx, &movement); err != nil {
		return nil, fmt.Errorf("failed to append movement: %w", err)
	}

	product.ApplyDelta(req.Quantity, at)
	if err := repos.Products().UpdateStock(ctx, product.ID, product.LedgerBalance, product.Stock, at); err != nil {
		return nil, fmt.Errorf("failed to update stock: %w", err)
	}

	if product.LedgerBalance < 0 {
		s.logger.WarnContext(ctx, "ledger balance below zero",
			slog.String("product_id", product.ID),
			slog.Int64("ledger_balance", product.LedgerBalance))
	}

	return &movement, nil
}

// HistoryFor yields a product's movements newest first. Each iteration reads
// the ledger head when it starts and never yields entries appended later.
func (s *LedgerService) HistoryFor(ctx context.Context, productID string) iter.Seq2[domain.StockMovement, error] {
	return func(yield func(domain.StockMovement, error) bool) {
		head, err := s.uow.Movements().Head(ctx)
		if err != nil {
			yield(domain.StockMovement{}, fmt.Errorf("failed to read ledger head: %w", err))
			return
		}

		before := head + 1
		for {
			batch, err := s.uow.Movements().ListByProduct(ctx, productID, before, s.pageSize)
			if err != nil {
				yield(domain.StockMovement{}, fmt.Errorf("failed to read movements: %w", err))
				return
			}
			for _, m := range batch {
				if !yield(m, nil) {
					return
				}
				before = m.Seq
			}
			if len(batch) < s.pageSize {
				return
			}
		}
	}
}

// Reconcile checks the stock invariant for one product.
func (s *LedgerService) Reconcile(ctx context.Context, productID string) (*domain.Reconciliation, error) {
	var result domain.Reconciliation
	err := s.uow.Atomically(ctx, func(ctx context.Context, repos ports.Repositories) error {
		product, err := repos.Products().FindByIDForUpdate(ctx, productID)
		if err != nil {
			return fmt.Errorf("failed to load product: %w", err)
		}
		if product == nil {
			return domain.NotFound("product", productID)
		}
		sum, count, err := repos.Movements().SumByProduct(ctx, productID)
		if err != nil {
			return fmt.Errorf("failed to sum movements: %w", err)
		}
		result = domain.NewReconciliation(product, sum, count, time.Now().UTC())
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to reconcile product: %w", err)
	}

	if !result.Consistent {
		s.logger.ErrorContext(ctx, "ledger drift detected",
			slog.String("product_id", productID),
			slog.Int64("stock", result.Stock),
			slog.Int64("ledger_balance", result.LedgerBalance),
			slog.Int64("movement_sum", result.MovementSum))
	}

	return &result, nil
}

// ReconcileAll checks every product.
func (s *LedgerService) ReconcileAll(ctx context.Context) ([]domain.Reconciliation, error) {
	products, err := s.uow.Products().All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}

	results := make([]domain.Reconciliation, 0, len(products))
	for _, p := range products {
		r, err := s.Reconcile(ctx, p.ID)
		if domain.IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		results = append(results, *r)
	}
	return results, nil
}

// Replay rebuilds every product balance from zero by summing the ledger in order.
func (s *LedgerService) Replay(ctx context.Context) (map[string]int64, error) {
	movements, err := s.uow.Movements().All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger: %w", err)
	}

	balances := make(map[string]int64)
	for _, m := range movements {
		balances[m.ProductID] += m.Quantity
	}
	return balances, nil
}

// withProducts holds the product locks for the duration of fn.
func (s *LedgerService) withProducts(ctx context.Context, productIDs []string, fn func() error) error {
	if s.locker == nil || len(productIDs) == 0 {
		return fn()
	}
	unlock, err := s.locker.Lock(ctx, productIDs...)
	if err != nil {
		return err
	}
	defer unlock()
	return fn()
}
