// internal/core/services/receiving.go
package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ammerola/storefront-ledger/internal/core/domain"
	"github.com/ammerola/storefront-ledger/internal/core/ports"
)

// ReceivingService handles vendor purchase orders. Receiving one books a
// purchase movement per line.
type ReceivingService struct {
	uow    ports.UnitOfWork
	ledger *LedgerService
	logger *slog.Logger
}

var _ ports.ReceivingService = (*ReceivingService)(nil)

// NewReceivingService creates a new receiving service
func NewReceivingService(uow ports.UnitOfWork, ledger *LedgerService, logger *slog.Logger) *ReceivingService {
	return &ReceivingService{
		uow:    uow,
		ledger: ledger,
		logger: logger.With(slog.String("service", "receiving")),
	}
}

// Create stores a new draft purchase order.
func (s *ReceivingService) Create(ctx context.Context, po *domain.PurchaseOrder) error {
	if err := po.Validate(); err != nil {
		return err
	}
	if po.Status == domain.POReceived {
		return domain.InvalidInput("purchase order cannot be created as received")
	}
	po.PrepareForStorage()

	vendor, err := s.uow.Vendors().FindByID(ctx, po.VendorID)
	if err != nil {
		return fmt.Errorf("failed to get vendor: %w", err)
	}
	if vendor == nil {
		return domain.NotFound("vendor", po.VendorID)
	}

	if err := s.uow.PurchaseOrders().Create(ctx, po); err != nil {
		return fmt.Errorf("failed to create purchase order: %w", err)
	}

	s.logger.InfoContext(ctx, "purchase order created",
		slog.String("po_id", po.ID),
		slog.String("vendor_id", po.VendorID),
		slog.String("total", po.Total.String()))
	return nil
}

// Get retrieves a purchase order by id
func (s *ReceivingService) Get(ctx context.Context, id string) (*domain.PurchaseOrder, error) {
	po, err := s.uow.PurchaseOrders().FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get purchase order: %w", err)
	}
	if po == nil {
		return nil, domain.NotFound("purchase_order", id)
	}
	return po, nil
}

// List returns all purchase orders, newest first
func (s *ReceivingService) List(ctx context.Context) ([]domain.PurchaseOrder, error) {
	pos, err := s.uow.PurchaseOrders().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list purchase orders: %w", err)
	}
	return pos, nil
}

// MarkOrdered sends a draft to the vendor.
func (s *ReceivingService) MarkOrdered(ctx context.Context, id string) (*domain.PurchaseOrder, error) {
	var updated *domain.PurchaseOrder
	err := s.uow.Atomically(ctx, func(ctx context.Context, repos ports.Repositories) error {
		po, err := lockPurchaseOrder(ctx, repos, id)
		if err != nil {
			return err
		}
		if err := po.MarkOrdered(); err != nil {
			return err
		}
		if err := repos.PurchaseOrders().Update(ctx, po); err != nil {
			return fmt.Errorf("failed to update purchase order: %w", err)
		}
		updated = po
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to mark purchase order ordered: %w", err)
	}
	return updated, nil
}

// Receive closes the purchase order and adds every line to stock. Lines are
// matched by product id, or by product name when the id is missing.
func (s *ReceivingService) Receive(ctx context.Context, id, userID string) (*domain.PurchaseOrder, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status == domain.POReceived {
		return nil, domain.InvalidTransition("purchase_order", id, current.Status, domain.POReceived)
	}

	lockIDs, err := s.resolveProductIDs(ctx, s.uow, current.Items)
	if err != nil {
		return nil, err
	}

	var received *domain.PurchaseOrder
	err = s.ledger.withProducts(ctx, lockIDs, func() error {
		return s.uow.Atomically(ctx, func(ctx context.Context, repos ports.Repositories) error {
			po, err := lockPurchaseOrder(ctx, repos, id)
			if err != nil {
				return err
			}
			now := time.Now().UTC()
			if err := po.MarkReceived(now); err != nil {
				return err
			}

			ids, err := s.resolveProductIDs(ctx, repos, po.Items)
			if err != nil {
				return err
			}
			for i, item := range po.Items {
				po.Items[i].ProductID = ids[i]
				_, err := s.ledger.apply(ctx, repos, domain.MovementRequest{
					ProductID: ids[i],
					Quantity:  item.Quantity,
					Type:      domain.MovementPurchase,
					Reason:    domain.PurchaseReceivedReason(po.ID),
					UserID:    userID,
				}, now)
				if err != nil {
					return fmt.Errorf("failed to receive %s: %w", ids[i], err)
				}
			}

			if err := repos.PurchaseOrders().Update(ctx, po); err != nil {
				return fmt.Errorf("failed to update purchase order: %w", err)
			}
			received = po
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to receive purchase order: %w", err)
	}

	s.logger.InfoContext(ctx, "purchase order received",
		slog.String("po_id", id),
		slog.Int("lines", len(received.Items)))

	return received, nil
}

// resolveProductIDs maps every line to an existing product id.
func (s *ReceivingService) resolveProductIDs(ctx context.Context, repos ports.Repositories, items []domain.PurchaseOrderItem) ([]string, error) {
	ids := make([]string, len(items))
	for i, item := range items {
		var (
			product *domain.Product
			err     error
		)
		if item.ProductID != "" {
			product, err = repos.Products().FindByID(ctx, item.ProductID)
		} else {
			product, err = repos.Products().FindByName(ctx, item.ProductName)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to resolve product: %w", err)
		}
		if product == nil {
			ref := item.ProductID
			if ref == "" {
				ref = item.ProductName
			}
			return nil, domain.NotFound("product", ref)
		}
		ids[i] = product.ID
	}
	return ids, nil
}

func lockPurchaseOrder(ctx context.Context, repos ports.Repositories, id string) (*domain.PurchaseOrder, error) {
	po, err := repos.PurchaseOrders().FindByIDForUpdate(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load purchase order: %w", err)
	}
	if po == nil {
		return nil, domain.NotFound("purchase_order", id)
	}
	return po, nil
}
