// internal/core/domain/cart.go
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// CartItem is a storefront basket line. The price is captured when the item is
// added and is what the customer pays at checkout.
type CartItem struct {
	ProductID   string          `json:"productId"`
	ProductName string          `json:"productName"`
	Quantity    int64           `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	AddedAt     time.Time       `json:"addedAt"`
}

// Cart is a storefront basket.
type Cart struct {
	ID        string     `json:"id"`
	Items     []CartItem `json:"items"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// Total is Σ quantity × captured price.
func (c *Cart) Total() decimal.Decimal {
	sum := decimal.Zero
	for _, item := range c.Items {
		sum = sum.Add(item.Price.Mul(decimal.NewFromInt(item.Quantity)))
	}
	return sum
}

// Add merges item into the cart. An existing line keeps its captured price.
func (c *Cart) Add(item CartItem) {
	for i := range c.Items {
		if c.Items[i].ProductID == item.ProductID {
			c.Items[i].Quantity += item.Quantity
			c.UpdatedAt = item.AddedAt
			return
		}
	}
	c.Items = append(c.Items, item)
	c.UpdatedAt = item.AddedAt
}

// Remove drops a product line, reporting whether it was present.
func (c *Cart) Remove(productID string, at time.Time) bool {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
			c.UpdatedAt = at
			return true
		}
	}
	return false
}

// OrderItems converts the cart lines into order lines.
func (c *Cart) OrderItems() []OrderItem {
	items := make([]OrderItem, 0, len(c.Items))
	for _, ci := range c.Items {
		items = append(items, OrderItem{
			ProductID:       ci.ProductID,
			ProductName:     ci.ProductName,
			Quantity:        ci.Quantity,
			PriceAtPurchase: ci.Price,
		})
	}
	return items
}
