// internal/core/services/cart.go
package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ammerola/storefront-ledger/internal/core/domain"
	"github.com/ammerola/storefront-ledger/internal/core/ports"
)

// CartService keeps storefront baskets. Prices are captured from the catalog
// when a line is first added.
type CartService struct {
	carts    ports.CartRepository
	products ports.ProductRepository
	logger   *slog.Logger
}

var _ ports.CartService = (*CartService)(nil)

// NewCartService creates a new cart service
func NewCartService(carts ports.CartRepository, products ports.ProductRepository, logger *slog.Logger) *CartService {
	return &CartService{
		carts:    carts,
		products: products,
		logger:   logger.With(slog.String("service", "cart")),
	}
}

// Create starts an empty cart.
func (s *CartService) Create(ctx context.Context) (*domain.Cart, error) {
	cart := &domain.Cart{ID: uuid.New().String(), Items: []domain.CartItem{}, UpdatedAt: time.Now().UTC()}
	if err := s.carts.Save(ctx, cart); err != nil {
		return nil, fmt.Errorf("failed to create cart: %w", err)
	}
	return cart, nil
}

// Get retrieves a cart by id
func (s *CartService) Get(ctx context.Context, id string) (*domain.Cart, error) {
	cart, err := s.carts.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}
	if cart == nil {
		return nil, domain.NotFound("cart", id)
	}
	return cart, nil
}

// AddItem puts quantity units of a product in the cart at its current price.
func (s *CartService) AddItem(ctx context.Context, cartID, productID string, quantity int64) (*domain.Cart, error) {
	if quantity <= 0 {
		return nil, domain.InvalidInput("quantity must be positive")
	}
	cart, err := s.Get(ctx, cartID)
	if err != nil {
		return nil, err
	}
	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	if product == nil {
		return nil, domain.NotFound("product", productID)
	}

	cart.Add(domain.CartItem{
		ProductID:   product.ID,
		ProductName: product.Name,
		Quantity:    quantity,
		Price:       product.Price,
		AddedAt:     time.Now().UTC(),
	})
	if err := s.carts.Save(ctx, cart); err != nil {
		return nil, fmt.Errorf("failed to save cart: %w", err)
	}

	s.logger.DebugContext(ctx, "item added to cart",
		slog.String("cart_id", cartID),
		slog.String("product_id", productID),
		slog.Int64("quantity", quantity))

	return cart, nil
}

// RemoveItem drops a product line from the cart.
func (s *CartService) RemoveItem(ctx context.Context, cartID, productID string) (*domain.Cart, error) {
	cart, err := s.Get(ctx, cartID)
	if err != nil {
		return nil, err
	}
	if !cart.Remove(productID, time.Now().UTC()) {
		return nil, domain.NotFound("cart item", productID)
	}
	if err := s.carts.Save(ctx, cart); err != nil {
		return nil, fmt.Errorf("failed to save cart: %w", err)
	}
	return cart, nil
}

// Clear deletes the cart.
func (s *CartService) Clear(ctx context.Context, cartID string) error {
	if err := s.carts.Delete(ctx, cartID); err != nil {
		return fmt.Errorf("failed to clear cart: %w", err)
	}
	return nil
}
