// internal/adapters/redis_adapter/cart.go
package redis_a

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ammerola/storefront-ledger/internal/core/domain"
	"github.com/ammerola/storefront-ledger/internal/core/ports"
)

// CartRepository keeps storefront carts as JSON documents that expire after
// ttl without activity.
type CartRepository struct {
	client *redis.Client
	ttl    time.Duration
}

var _ ports.CartRepository = (*CartRepository)(nil)

// NewCartRepository creates a cart repository.
func NewCartRepository(client *redis.Client, ttl time.Duration) *CartRepository {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &CartRepository{client: client, ttl: ttl}
}

func cartKey(id string) string {
	return CartKeys.Key(id)
}

// Get returns nil, nil for an unknown or expired cart.
func (r *CartRepository) Get(ctx context.Context, id string) (*domain.Cart, error) {
	data, err := r.client.Get(ctx, cartKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get cart: %w", err)
	}

	var cart domain.Cart
	if err := json.Unmarshal(data, &cart); err != nil {
		return nil, fmt.Errorf("decode cart %s: %w", id, err)
	}
	return &cart, nil
}

// Save writes the cart and restarts its expiry.
func (r *CartRepository) Save(ctx context.Context, cart *domain.Cart) error {
	data, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("encode cart: %w", err)
	}
	if err := r.client.Set(ctx, cartKey(cart.ID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set cart: %w", err)
	}
	return nil
}

func (r *CartRepository) Delete(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, cartKey(id)).Err(); err != nil {
		return fmt.Errorf("redis del cart: %w", err)
	}
	return nil
}
