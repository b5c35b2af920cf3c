// internal/core/services/backup.go
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"slices"
	"time"

	"github.com/ammerola/storefront-ledger/internal/core/domain"
	"github.com/ammerola/storefront-ledger/internal/core/ports"
)

// BackupPrefix is the object storage folder for archived snapshots.
const BackupPrefix = "backups"

// BackupService exports every collection as one JSON document and merges such
// documents back.
type BackupService struct {
	uow    ports.UnitOfWork
	blobs  ports.BlobStorage
	logger *slog.Logger
}

var _ ports.BackupService = (*BackupService)(nil)

// NewBackupService creates a new backup service. blobs may be nil when
// snapshots are only downloaded.
func NewBackupService(uow ports.UnitOfWork, blobs ports.BlobStorage, logger *slog.Logger) *BackupService {
	return &BackupService{
		uow:    uow,
		blobs:  blobs,
		logger: logger.With(slog.String("service", "backup")),
	}
}

// Export reads a consistent snapshot of all collections.
func (s *BackupService) Export(ctx context.Context) (*domain.Snapshot, error) {
	snap := &domain.Snapshot{}
	err := s.uow.Atomically(ctx, func(ctx context.Context, repos ports.Repositories) error {
		var err error
		if snap.Products, err = repos.Products().All(ctx); err != nil {
			return fmt.Errorf("failed to read products: %w", err)
		}
		if snap.Orders, err = repos.Orders().All(ctx); err != nil {
			return fmt.Errorf("failed to read orders: %w", err)
		}
		if snap.Customers, err = repos.Customers().List(ctx); err != nil {
			return fmt.Errorf("failed to read customers: %w", err)
		}
		if snap.SalesData, err = repos.Sales().List(ctx); err != nil {
			return fmt.Errorf("failed to read sales data: %w", err)
		}
		if snap.Vendors, err = repos.Vendors().List(ctx); err != nil {
			return fmt.Errorf("failed to read vendors: %w", err)
		}
		if snap.PurchaseOrders, err = repos.PurchaseOrders().All(ctx); err != nil {
			return fmt.Errorf("failed to read purchase orders: %w", err)
		}
		if snap.Invoices, err = repos.Invoices().All(ctx); err != nil {
			return fmt.Errorf("failed to read invoices: %w", err)
		}
		if snap.StockMovements, err = repos.Movements().All(ctx); err != nil {
			return fmt.Errorf("failed to read stock movements: %w", err)
		}
		if snap.StoreProfile, err = repos.StoreProfile().Get(ctx); err != nil {
			return fmt.Errorf("failed to read store profile: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to export snapshot: %w", err)
	}
	emptyToSlices(snap)
	return snap, nil
}

// WriteJSON writes the snapshot as indented JSON.
func (s *BackupService) WriteJSON(ctx context.Context, w io.Writer) error {
	snap, err := s.Export(ctx)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return nil
}

// Archive uploads a snapshot to object storage and returns its key.
func (s *BackupService) Archive(ctx context.Context) (string, error) {
	if s.blobs == nil {
		return "", errors.New("no blob storage configured")
	}

	var buf bytes.Buffer
	if err := s.WriteJSON(ctx, &buf); err != nil {
		return "", err
	}

	key := path.Join(BackupPrefix, domain.BackupFileName(time.Now().UTC()))
	size := buf.Len()
	if _, err := s.blobs.Upload(ctx, key, &buf, "application/json"); err != nil {
		return "", fmt.Errorf("failed to upload snapshot: %w", err)
	}

	s.logger.InfoContext(ctx, "snapshot archived",
		slog.String("key", key),
		slog.Int("bytes", size))
	return key, nil
}

// Restore merges a snapshot document by presence: every collection key in the
// document replaces that collection, absent keys are left alone. All replaced
// collections are written in one unit of work.
func (s *BackupService) Restore(ctx context.Context, document []byte) (*domain.RestoreResult, error) {
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(document, &keys); err != nil {
		return nil, domain.InvalidInput("backup is not a JSON object: %v", err)
	}
	var payload domain.RestorePayload
	if err := json.Unmarshal(document, &payload); err != nil {
		return nil, domain.InvalidInput("backup has an invalid collection: %v", err)
	}

	result := &domain.RestoreResult{Restored: []string{}}
	for _, key := range domain.IgnoredBackupKeys {
		if _, ok := keys[key]; ok {
			result.Ignored = append(result.Ignored, key)
		}
	}

	err := s.uow.Atomically(ctx, func(ctx context.Context, repos ports.Repositories) error {
		steps := []struct {
			key     string
			present bool
			apply   func() error
		}{
			{"products", payload.Products != nil, func() error { return repos.Products().ReplaceAll(ctx, *payload.Products) }},
			{"orders", payload.Orders != nil, func() error { return repos.Orders().ReplaceAll(ctx, *payload.Orders) }},
			{"customers", payload.Customers != nil, func() error { return repos.Customers().ReplaceAll(ctx, *payload.Customers) }},
			{"salesData", payload.SalesData != nil, func() error { return repos.Sales().ReplaceAll(ctx, *payload.SalesData) }},
			{"vendors", payload.Vendors != nil, func() error { return repos.Vendors().ReplaceAll(ctx, *payload.Vendors) }},
			{"purchaseOrders", payload.PurchaseOrders != nil, func() error { return repos.PurchaseOrders().ReplaceAll(ctx, *payload.PurchaseOrders) }},
			{"invoices", payload.Invoices != nil, func() error { return repos.Invoices().ReplaceAll(ctx, *payload.Invoices) }},
			{"stockMovements", payload.StockMovements != nil, func() error { return repos.Movements().ReplaceAll(ctx, *payload.StockMovements) }},
			{"storeProfile", payload.StoreProfile != nil, func() error { return repos.StoreProfile().Save(ctx, *payload.StoreProfile) }},
		}
		for _, step := range steps {
			if !step.present {
				continue
			}
			if err := step.apply(); err != nil {
				return fmt.Errorf("failed to restore %s: %w", step.key, err)
			}
			result.Restored = append(result.Restored, step.key)
		}
		if payload.Products != nil || payload.StockMovements != nil {
			return rebalance(ctx, repos, result)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to restore snapshot: %w", err)
	}

	s.logger.InfoContext(ctx, "snapshot restored",
		slog.Any("restored", result.Restored),
		slog.Any("ignored", result.Ignored),
		slog.Int("opening_movements", result.OpeningMovements),
		slog.Int("rebalanced", len(result.Rebalanced)))

	return result, nil
}

// OpeningStockReason is the reason of the adjustment that gives restored stock
// without ledger history its opening movement.
const OpeningStockReason = "Opening stock from restored backup"

// rebalance rebuilds every product's projections from the ledger after a
// restore. Products that arrive with stock but no movements get an opening
// adjustment so the ledger explains their stock.
func rebalance(ctx context.Context, repos ports.Repositories, result *domain.RestoreResult) error {
	products, err := repos.Products().All(ctx)
	if err != nil {
		return fmt.Errorf("failed to read restored products: %w", err)
	}

	now := time.Now().UTC()
	for i := range products {
		p := &products[i]
		sum, count, err := repos.Movements().SumByProduct(ctx, p.ID)
		if err != nil {
			return fmt.Errorf("failed to sum ledger of %s: %w", p.ID, err)
		}

		if count == 0 && p.Stock > 0 {
			m := domain.NewMovement(domain.MovementRequest{
				ProductID: p.ID,
				Quantity:  p.Stock,
				Type:      domain.MovementAdjustment,
				Reason:    OpeningStockReason,
			}, now)
			if err := repos.Movements().Append(ctx, &m); err != nil {
				return fmt.Errorf("failed to record opening stock of %s: %w", p.ID, err)
			}
			sum, count = p.Stock, 1
			result.OpeningMovements++
		}

		rec := domain.NewReconciliation(p, sum, count, now)
		if rec.Consistent {
			continue
		}
		if err := repos.Products().UpdateStock(ctx, p.ID, sum, rec.ExpectedStock, now); err != nil {
			return fmt.Errorf("failed to rebuild stock of %s: %w", p.ID, err)
		}
		result.Rebalanced = append(result.Rebalanced, rec)
	}
	return nil
}

// emptyToSlices keeps empty collections as [] rather than null in the output,
// so a restore of the document clears them instead of skipping them.
func emptyToSlices(s *domain.Snapshot) {
	s.Products = nonNil(s.Products)
	s.Orders = nonNil(s.Orders)
	s.Customers = nonNil(s.Customers)
	s.SalesData = nonNil(s.SalesData)
	s.Vendors = nonNil(s.Vendors)
	s.PurchaseOrders = nonNil(s.PurchaseOrders)
	s.Invoices = nonNil(s.Invoices)
	s.StockMovements = nonNil(s.StockMovements)
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return slices.Clip(items)
}
