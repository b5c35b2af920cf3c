// internal/core/services/orders.go
package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ammerola/storefront-ledger/internal/core/domain"
	"github.com/ammerola/storefront-ledger/internal/core/ports"
)

// OrderService moves orders through their lifecycle. Cancellation is the only
// transition that touches stock.
type OrderService struct {
	uow    ports.UnitOfWork
	ledger *LedgerService
	logger *slog.Logger
}

var _ ports.OrderService = (*OrderService)(nil)

// NewOrderService creates a new order service
func NewOrderService(uow ports.UnitOfWork, ledger *LedgerService, logger *slog.Logger) *OrderService {
	return &OrderService{
		uow:    uow,
		ledger: ledger,
		logger: logger.With(slog.String("service", "orders")),
	}
}

// Get retrieves an order by id
func (s *OrderService) Get(ctx context.Context, id string) (*domain.Order, error) {
	order, err := s.uow.Orders().FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	if order == nil {
		return nil, domain.NotFound("order", id)
	}
	return order, nil
}

// List returns a page of orders
func (s *OrderService) List(ctx context.Context, filter domain.OrderFilter) (*ports.OrderPage, error) {
	filter.Normalize()
	orders, total, err := s.uow.Orders().List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return &ports.OrderPage{
		Items:      orders,
		Limit:      filter.Limit,
		Offset:     filter.Offset,
		TotalCount: total,
	}, nil
}

// UpdateStatus applies a manual forward transition (pending→shipped→delivered).
// Cancelled and refunded have their own operations.
func (s *OrderService) UpdateStatus(ctx context.Context, id string, status domain.OrderStatus) (*domain.Order, error) {
	if !status.Valid() {
		return nil, domain.InvalidInput("unknown order status %q", status)
	}
	if status.IsTerminal() {
		current, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		return nil, domain.InvalidTransition("order", id, current.Status, status)
	}

	var updated *domain.Order
	err := s.uow.Atomically(ctx, func(ctx context.Context, repos ports.Repositories) error {
		order, err := lockOrder(ctx, repos, id)
		if err != nil {
			return err
		}
		if err := order.TransitionTo(status, time.Now().UTC()); err != nil {
			return err
		}
		if err := repos.Orders().UpdateStatus(ctx, order); err != nil {
			return fmt.Errorf("failed to update order: %w", err)
		}
		updated = order
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update order status: %w", err)
	}

	s.logger.InfoContext(ctx, "order status updated",
		slog.String("order_id", id),
		slog.String("status", status.String()))

	return updated, nil
}

// Cancel closes a pending or shipped order and returns every item to stock in
// the same unit of work.
func (s *OrderService) Cancel(ctx context.Context, id, reason string) (*domain.Order, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, domain.InvalidInput("cancellation reason is required")
	}

	// Items never change after creation, so the unlocked read is enough to
	// know which products to lock.
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	var cancelled *domain.Order
	err = s.ledger.withProducts(ctx, productIDs(current.Items), func() error {
		return s.uow.Atomically(ctx, func(ctx context.Context, repos ports.Repositories) error {
			order, err := lockOrder(ctx, repos, id)
			if err != nil {
				return err
			}
			now := time.Now().UTC()
			if err := order.TransitionTo(domain.OrderCancelled, now); err != nil {
				return err
			}
			for _, item := range order.Items {
				_, err := s.ledger.apply(ctx, repos, domain.MovementRequest{
					ProductID: item.ProductID,
					Quantity:  item.Quantity,
					Type:      domain.MovementReturn,
					Reason:    domain.CancellationReason(order.ID, reason),
				}, now)
				if err != nil {
					return fmt.Errorf("failed to restock %s: %w", item.ProductID, err)
				}
			}
			if err := repos.Orders().UpdateStatus(ctx, order); err != nil {
				return fmt.Errorf("failed to update order: %w", err)
			}
			cancelled = order
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to cancel order: %w", err)
	}

	s.logger.InfoContext(ctx, "order cancelled",
		slog.String("order_id", id),
		slog.String("reason", reason),
		slog.Int("items_restocked", len(cancelled.Items)))

	return cancelled, nil
}

// Refund flags an order as refunded. Stock is left alone: refunded goods are
// not assumed to be resellable.
func (s *OrderService) Refund(ctx context.Context, id, reason string) (*domain.Order, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, domain.InvalidInput("refund reason is required")
	}

	var refunded *domain.Order
	err := s.uow.Atomically(ctx, func(ctx context.Context, repos ports.Repositories) error {
		order, err := lockOrder(ctx, repos, id)
		if err != nil {
			return err
		}
		if err := order.TransitionTo(domain.OrderRefunded, time.Now().UTC()); err != nil {
			return err
		}
		order.RefundReason = reason
		if err := repos.Orders().UpdateStatus(ctx, order); err != nil {
			return fmt.Errorf("failed to update order: %w", err)
		}
		refunded = order
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to refund order: %w", err)
	}

	s.logger.InfoContext(ctx, "order refunded",
		slog.String("order_id", id),
		slog.String("reason", reason))

	return refunded, nil
}

func lockOrder(ctx context.Context, repos ports.Repositories, id string) (*domain.Order, error) {
	order, err := repos.Orders().FindByIDForUpdate(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load order: %w", err)
	}
	if order == nil {
		return nil, domain.NotFound("order", id)
	}
	return order, nil
}

func productIDs(items []domain.OrderItem) []string {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}
	return ids
}
