// internal/core/services/catalog.go
package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ammerola/storefront-ledger/internal/core/domain"
	"github.com/ammerola/storefront-ledger/internal/core/ports"
)

// CatalogService manages product records. Stock is never written here
// directly: an initial quantity goes through the ledger.
type CatalogService struct {
	uow    ports.UnitOfWork
	ledger *LedgerService
	logger *slog.Logger
}

var _ ports.CatalogService = (*CatalogService)(nil)

// NewCatalogService creates a new catalog service
func NewCatalogService(uow ports.UnitOfWork, ledger *LedgerService, logger *slog.Logger) *CatalogService {
	return &CatalogService{
		uow:    uow,
		ledger: ledger,
		logger: logger.With(slog.String("service", "catalog")),
	}
}

// Create stores a product and books its opening stock as an adjustment.
func (s *CatalogService) Create(ctx context.Context, product *domain.Product, initialStock int64, userID string) error {
	if err := product.Validate(); err != nil {
		return err
	}
	product.PrepareForStorage()
	product.Stock = 0
	product.LedgerBalance = 0

	err := s.ledger.withProducts(ctx, []string{product.ID}, func() error {
		return s.uow.Atomically(ctx, func(ctx context.Context, repos ports.Repositories) error {
			existing, err := repos.Products().FindByID(ctx, product.ID)
			if err != nil {
				return fmt.Errorf("failed to check product: %w", err)
			}
			if existing != nil {
				return domain.Conflict("product", product.ID, "product already exists")
			}
			if err := repos.Products().Create(ctx, product); err != nil {
				return fmt.Errorf("failed to create product: %w", err)
			}
			if initialStock == 0 {
				return nil
			}
			_, err = s.ledger.apply(ctx, repos, domain.MovementRequest{
				ProductID: product.ID,
				Quantity:  initialStock,
				Type:      domain.MovementAdjustment,
				Reason:    domain.InitialStockReason,
				UserID:    userID,
			}, product.CreatedAt)
			if err != nil {
				return err
			}
			product.ApplyDelta(initialStock, product.CreatedAt)
			return nil
		})
	})
	if err != nil {
		return fmt.Errorf("failed to create product: %w", err)
	}

	s.logger.InfoContext(ctx, "product created",
		slog.String("product_id", product.ID),
		slog.String("name", product.Name),
		slog.Int64("initial_stock", initialStock))
	return nil
}

// Get retrieves a product by id
func (s *CatalogService) Get(ctx context.Context, id string) (*domain.Product, error) {
	product, err := s.uow.Products().FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	if product == nil {
		return nil, domain.NotFound("product", id)
	}
	return product, nil
}

// List returns a filtered page of products
func (s *CatalogService) List(ctx context.Context, filter domain.ProductFilter) (*ports.ProductPage, error) {
	filter.Normalize()
	products, total, err := s.uow.Products().List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	return &ports.ProductPage{
		Items:      products,
		Limit:      filter.Limit,
		Offset:     filter.Offset,
		TotalCount: total,
	}, nil
}

// Update merges a typed partial update into a product. Past orders keep the
// price they were placed at.
func (s *CatalogService) Update(ctx context.Context, id string, update domain.ProductUpdate) (*domain.Product, error) {
	if update.IsEmpty() {
		return nil, domain.InvalidInput("update has no fields")
	}
	if err := update.Validate(); err != nil {
		return nil, err
	}

	var updated *domain.Product
	err := s.ledger.withProducts(ctx, []string{id}, func() error {
		return s.uow.Atomically(ctx, func(ctx context.Context, repos ports.Repositories) error {
			product, err := repos.Products().FindByIDForUpdate(ctx, id)
			if err != nil {
				return fmt.Errorf("failed to load product: %w", err)
			}
			if product == nil {
				return domain.NotFound("product", id)
			}
			if err := update.Apply(product, time.Now().UTC()); err != nil {
				return err
			}
			if err := repos.Products().Update(ctx, product); err != nil {
				return fmt.Errorf("failed to update product: %w", err)
			}
			updated = product
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update product: %w", err)
	}

	s.logger.InfoContext(ctx, "product updated", slog.String("product_id", id))
	return updated, nil
}

// Delete removes a product. Its movements stay in the ledger as history.
func (s *CatalogService) Delete(ctx context.Context, id string) error {
	var deleted bool
	err := s.ledger.withProducts(ctx, []string{id}, func() error {
		var err error
		deleted, err = s.uow.Products().Delete(ctx, id)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}
	if !deleted {
		return domain.NotFound("product", id)
	}

	s.logger.InfoContext(ctx, "product deleted", slog.String("product_id", id))
	return nil
}
