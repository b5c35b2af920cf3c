// internal/workers/reconcile_processor.go
package workers

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/ammerola/storefront-ledger/internal/core/domain"
	"github.com/ammerola/storefront-ledger/internal/core/ports"
)

const defaultReconcileWorkers = 8

// ReconcileProcessor checks every product's projections against its ledger.
type ReconcileProcessor struct {
	products ports.ProductRepository
	ledger   ports.LedgerService
	reports  ports.ReportService
	workers  int
	logger   *slog.Logger
}

// NewReconcileProcessor creates a new reconcile processor. reports may be nil.
func NewReconcileProcessor(
	products ports.ProductRepository,
	ledger ports.LedgerService,
	reports ports.ReportService,
	workers int,
	logger *slog.Logger,
) *ReconcileProcessor {
	if workers <= 0 {
		workers = defaultReconcileWorkers
	}
	return &ReconcileProcessor{
		products: products,
		ledger:   ledger,
		reports:  reports,
		workers:  workers,
		logger:   logger.With(slog.String("processor", "reconcile")),
	}
}

// ReconcileLedger reports drift but never repairs it.
func (p *ReconcileProcessor) ReconcileLedger(ctx context.Context, t *asynq.Task) error {
	start := time.Now()

	products, err := p.products.All(ctx)
	if err != nil {
		return fmt.Errorf("failed to list products: %w", err)
	}

	var (
		mu      sync.Mutex
		checked int
		drifted []string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for _, product := range products {
		id := product.ID
		g.Go(func() error {
			r, err := p.ledger.Reconcile(gctx, id)
			if domain.IsNotFound(err) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("reconcile %s: %w", id, err)
			}

			mu.Lock()
			defer mu.Unlock()
			checked++
			if !r.Consistent {
				drifted = append(drifted, id)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	sort.Strings(drifted)

	if p.reports != nil {
		if err := p.reports.Invalidate(ctx); err != nil {
			p.logger.WarnContext(ctx, "failed to invalidate dashboard", slog.Any("error", err))
		}
	}

	result := ReconcileJobResult{
		Checked:  checked,
		Drifted:  drifted,
		Duration: time.Since(start).String(),
	}
	if err := writeResult(t, result); err != nil {
		p.logger.WarnContext(ctx, "failed to store reconcile result", slog.Any("error", err))
	}

	level := slog.LevelInfo
	if len(drifted) > 0 {
		level = slog.LevelError
	}
	p.logger.Log(ctx, level, "ledger reconciliation finished",
		slog.Int("checked", checked),
		slog.Int("drifted", len(drifted)),
		slog.String("duration", result.Duration))

	return nil
}
