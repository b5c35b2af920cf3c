// internal/adapters/memory/cart.go
package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/ammerola/storefront-ledger/internal/core/domain"
	"github.com/ammerola/storefront-ledger/internal/core/ports"
)

// CartRepository keeps carts in a map.
type CartRepository struct {
	mu    sync.RWMutex
	carts map[string]domain.Cart
}

var _ ports.CartRepository = (*CartRepository)(nil)

// NewCartRepository returns an empty cart store.
func NewCartRepository() *CartRepository {
	return &CartRepository{carts: make(map[string]domain.Cart)}
}

func (r *CartRepository) Get(_ context.Context, id string) (*domain.Cart, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.carts[id]
	if !ok {
		return nil, nil
	}
	c.Items = slices.Clone(c.Items)
	return &c, nil
}

func (r *CartRepository) Save(_ context.Context, cart *domain.Cart) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *cart
	c.Items = slices.Clone(cart.Items)
	r.carts[cart.ID] = c
	return nil
}

func (r *CartRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.carts, id)
	return nil
}
