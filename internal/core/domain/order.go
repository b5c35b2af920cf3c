// internal/core/domain/order.go
package domain

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus represents the lifecycle state of an order
type OrderStatus string

// Order status constants
const (
	OrderPending   OrderStatus = "pending"
	OrderShipped   OrderStatus = "shipped"
	OrderDelivered OrderStatus = "delivered"
	OrderCancelled OrderStatus = "cancelled"
	OrderRefunded  OrderStatus = "refunded"
)

func (s OrderStatus) String() string {
	return string(s)
}

// Valid reports whether s is a known status.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderPending, OrderShipped, OrderDelivered, OrderCancelled, OrderRefunded:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is allowed from s.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderCancelled || s == OrderRefunded
}

// transitions lists every allowed move. Forward progression is manual; the
// two terminal states each have a dedicated operation.
var transitions = map[OrderStatus][]OrderStatus{
	OrderPending:   {OrderShipped, OrderCancelled, OrderRefunded},
	OrderShipped:   {OrderDelivered, OrderCancelled, OrderRefunded},
	OrderDelivered: {OrderRefunded},
}

// CanTransition reports whether an order may move from s to next.
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ParseOrderStatus accepts any casing of a status.
func ParseOrderStatus(v string) (OrderStatus, error) {
	s := OrderStatus(strings.ToLower(strings.TrimSpace(v)))
	if !s.Valid() {
		return "", InvalidInput("unknown order status %q", v)
	}
	return s, nil
}

// Channel is the sales path an order came through
type Channel string

// Channel constants
const (
	ChannelStorefront Channel = "storefront"
	ChannelPOS        Channel = "pos"
)

// Default customer names per channel.
const (
	GuestCustomer    = "Guest"
	WalkInCustomer   = "Walk-in"
	FiscalOfflineSig = "FISCAL-OFFLINE-SIG"
)

// OrderItem is one line of an order with the price captured at purchase.
type OrderItem struct {
	ProductID       string          `json:"productId"`
	ProductName     string          `json:"productName,omitempty"`
	Quantity        int64           `json:"quantity"`
	PriceAtPurchase decimal.Decimal `json:"priceAtPurchase"`
	TaxAmount       decimal.Decimal `json:"taxAmount"`
}

// LineTotal is quantity × priceAtPurchase.
func (i OrderItem) LineTotal() decimal.Decimal {
	return i.PriceAtPurchase.Mul(decimal.NewFromInt(i.Quantity))
}

// Validate rejects lines that cannot be sold.
func (i OrderItem) Validate() error {
	if strings.TrimSpace(i.ProductID) == "" {
		return InvalidInput("product_id is required")
	}
	if i.Quantity <= 0 {
		return InvalidInput("quantity for %s must be positive", i.ProductID)
	}
	if i.PriceAtPurchase.IsNegative() {
		return InvalidInput("price for %s cannot be negative", i.ProductID)
	}
	return nil
}

// Order is a sale through either channel. Items and money fields are fixed at
// creation; only Status, RefundReason and UpdatedAt change afterwards.
type Order struct {
	ID              string          `json:"id"`
	Channel         Channel         `json:"channel"`
	Date            string          `json:"date"`
	Status          OrderStatus     `json:"status"`
	Items           []OrderItem     `json:"items"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	TaxAmount       decimal.Decimal `json:"taxAmount"`
	Total           decimal.Decimal `json:"total"`
	Currency        string          `json:"currency"`
	CustomerName    string          `json:"customerName"`
	CustomerNIF     string          `json:"customerNIF,omitempty"`
	PaymentMethod   string          `json:"paymentMethod,omitempty"`
	ShippingAddress string          `json:"shippingAddress,omitempty"`
	RefundReason    string          `json:"refundReason,omitempty"`
	FiscalSignature string          `json:"fiscalSignature,omitempty"`
	EBMSResponseID  string          `json:"ebmsResponseId,omitempty"`
	InvoiceID       string          `json:"invoiceId,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// ItemsSubtotal recomputes Σ quantity × priceAtPurchase from the captured lines.
func (o *Order) ItemsSubtotal() decimal.Decimal {
	sum := decimal.Zero
	for _, item := range o.Items {
		sum = sum.Add(item.LineTotal())
	}
	return sum
}

// ItemsTax sums the per-line tax snapshot.
func (o *Order) ItemsTax() decimal.Decimal {
	sum := decimal.Zero
	for _, item := range o.Items {
		sum = sum.Add(item.TaxAmount)
	}
	return sum
}

// Weekday is the short weekday label of the order date, used for sales buckets.
func (o *Order) Weekday() string {
	return o.CreatedAt.Weekday().String()[:3]
}

// TransitionTo moves the order to next if the state machine allows it.
func (o *Order) TransitionTo(next OrderStatus, at time.Time) error {
	if o.Status.IsTerminal() {
		return TerminalState(o.ID, o.Status)
	}
	if !o.Status.CanTransition(next) {
		return InvalidTransition("order", o.ID, o.Status, next)
	}
	o.Status = next
	o.UpdatedAt = at
	return nil
}

// OrderFilter narrows order listings.
type OrderFilter struct {
	Status  OrderStatus
	Channel Channel
	From    *time.Time
	To      *time.Time
	Limit   int
	Offset  int
}

// Normalize clamps paging values.
func (f *OrderFilter) Normalize() {
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
}

// Matches reports whether o passes the filter, ignoring paging.
func (f OrderFilter) Matches(o *Order) bool {
	if f.Status != "" && o.Status != f.Status {
		return false
	}
	if f.Channel != "" && o.Channel != f.Channel {
		return false
	}
	if f.From != nil && o.CreatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && o.CreatedAt.After(*f.To) {
		return false
	}
	return true
}

// NewDocumentID builds a prefixed identifier from the last six digits of the
// millisecond clock and a short random suffix.
func NewDocumentID(prefix string, at time.Time) string {
	return fmt.Sprintf("%s-%06d%s", prefix, at.UnixMilli()%1_000_000, randomSuffix(3))
}

const suffixAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

func randomSuffix(n int) string {
	var b strings.Builder
	limit := big.NewInt(int64(len(suffixAlphabet)))
	for range n {
		idx, err := rand.Int(rand.Reader, limit)
		if err != nil {
			b.WriteByte(suffixAlphabet[0])
			continue
		}
		b.WriteByte(suffixAlphabet[idx.Int64()])
	}
	return b.String()
}
