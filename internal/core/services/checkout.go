// internal/core/services/checkout.go
package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ammerola/storefront-ledger/internal/core/domain"
	"github.com/ammerola/storefront-ledger/internal/core/ports"
)

// CheckoutService turns storefront carts into pending orders.
type CheckoutService struct {
	uow    ports.UnitOfWork
	ledger *LedgerService
	carts  ports.CartRepository
	logger *slog.Logger
}

var _ ports.CheckoutService = (*CheckoutService)(nil)

// NewCheckoutService creates a new checkout service. carts may be nil when
// baskets are kept by the caller.
func NewCheckoutService(uow ports.UnitOfWork, ledger *LedgerService, carts ports.CartRepository, logger *slog.Logger) *CheckoutService {
	return &CheckoutService{
		uow:    uow,
		ledger: ledger,
		carts:  carts,
		logger: logger.With(slog.String("service", "checkout")),
	}
}

// PlaceOrder creates a pending order at the prices captured in the cart,
// takes the items out of stock and books the sale into the weekday bucket.
// Lines whose product was deleted after being carted keep their place in the
// order but move no stock.
func (s *CheckoutService) PlaceOrder(ctx context.Context, req ports.PlaceOrderRequest) (*domain.Order, error) {
	items, err := s.resolveItems(ctx, req)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	order := &domain.Order{
		ID:              domain.NewDocumentID("ORD", now),
		Channel:         domain.ChannelStorefront,
		Date:            now.Format(time.DateOnly),
		Status:          domain.OrderPending,
		Items:           items,
		TaxAmount:       decimal.Zero,
		CustomerName:    strings.TrimSpace(req.CustomerName),
		CustomerNIF:     strings.TrimSpace(req.CustomerNIF),
		PaymentMethod:   strings.TrimSpace(req.PaymentMethod),
		ShippingAddress: strings.TrimSpace(req.ShippingAddress),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if order.CustomerName == "" {
		order.CustomerName = domain.GuestCustomer
	}
	order.Subtotal = order.ItemsSubtotal()
	order.Total = order.Subtotal

	var skipped []string
	err = s.ledger.withProducts(ctx, productIDs(items), func() error {
		return s.uow.Atomically(ctx, func(ctx context.Context, repos ports.Repositories) error {
			skipped = skipped[:0]

			profile, err := repos.StoreProfile().Get(ctx)
			if err != nil {
				return fmt.Errorf("failed to load store profile: %w", err)
			}
			order.Currency = profile.Currency

			if err := repos.Orders().Create(ctx, order); err != nil {
				return fmt.Errorf("failed to create order: %w", err)
			}

			for _, item := range order.Items {
				_, err := s.ledger.apply(ctx, repos, domain.MovementRequest{
					ProductID: item.ProductID,
					Quantity:  -item.Quantity,
					Type:      domain.MovementSale,
					Reason:    domain.OnlineOrderReason(order.ID),
				}, now)
				if domain.IsNotFound(err) {
					skipped = append(skipped, item.ProductID)
					continue
				}
				if err != nil {
					return fmt.Errorf("failed to record sale of %s: %w", item.ProductID, err)
				}
			}

			if err := repos.Sales().Increment(ctx, order.Weekday(), order.Total); err != nil {
				return fmt.Errorf("failed to update sales bucket: %w", err)
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to place order: %w", err)
	}

	for _, productID := range skipped {
		s.logger.WarnContext(ctx, "ordered product no longer exists, stock not moved",
			slog.String("order_id", order.ID),
			slog.String("product_id", productID))
	}

	if req.CartID != "" && s.carts != nil {
		if err := s.carts.Delete(ctx, req.CartID); err != nil {
			s.logger.WarnContext(ctx, "failed to clear cart",
				slog.String("cart_id", req.CartID),
				slog.String("error", err.Error()))
		}
	}

	s.logger.InfoContext(ctx, "storefront order placed",
		slog.String("order_id", order.ID),
		slog.String("total", order.Total.String()),
		slog.Int("items", len(order.Items)))

	return order, nil
}

// resolveItems reads the stored cart when the request names one and no lines
// were sent inline.
func (s *CheckoutService) resolveItems(ctx context.Context, req ports.PlaceOrderRequest) ([]domain.OrderItem, error) {
	lines := req.Items
	if len(lines) == 0 && req.CartID != "" && s.carts != nil {
		cart, err := s.carts.Get(ctx, req.CartID)
		if err != nil {
			return nil, fmt.Errorf("failed to load cart: %w", err)
		}
		if cart == nil {
			return nil, domain.NotFound("cart", req.CartID)
		}
		lines = cart.Items
	}
	if len(lines) == 0 {
		return nil, domain.InvalidInput("cart is empty")
	}

	cart := domain.Cart{Items: lines}
	items := cart.OrderItems()
	for _, item := range items {
		if err := item.Validate(); err != nil {
			return nil, err
		}
	}
	return items, nil
}
