// internal/core/domain/movement.go
package domain

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"
)

// MovementType classifies a stock movement
type MovementType string

// Movement type constants
const (
	MovementSale       MovementType = "sale"
	MovementPurchase   MovementType = "purchase"
	MovementAdjustment MovementType = "adjustment"
	MovementReturn     MovementType = "return"
	MovementTransfer   MovementType = "transfer"
	MovementCorrection MovementType = "correction"
)

// Valid reports whether t is a known movement type.
func (t MovementType) Valid() bool {
	switch t {
	case MovementSale, MovementPurchase, MovementAdjustment,
		MovementReturn, MovementTransfer, MovementCorrection:
		return true
	}
	return false
}

func (t MovementType) String() string {
	return string(t)
}

// ParseMovementType accepts any casing of a movement type.
func ParseMovementType(s string) (MovementType, error) {
	t := MovementType(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", InvalidInput("unknown movement type %q", s)
	}
	return t, nil
}

// StockMovement is one immutable ledger entry.
type StockMovement struct {
	ID        string       `json:"id"`
	Seq       int64        `json:"seq"`
	ProductID string       `json:"productId"`
	Quantity  int64        `json:"quantity"`
	Type      MovementType `json:"type"`
	Reason    string       `json:"reason"`
	UserID    string       `json:"userId,omitempty"`
	CreatedAt time.Time    `json:"date"`
}

// MovementRequest is the input to the single ledger mutation entry point.
type MovementRequest struct {
	ProductID string       `json:"productId"`
	Quantity  int64        `json:"quantity"`
	Type      MovementType `json:"type"`
	Reason    string       `json:"reason"`
	UserID    string       `json:"userId,omitempty"`
}

// Validate checks the request before anything is written.
func (r MovementRequest) Validate() error {
	if strings.TrimSpace(r.ProductID) == "" {
		return InvalidInput("product_id is required")
	}
	if r.Quantity == 0 {
		return InvalidInput("quantity must be non-zero")
	}
	if !r.Type.Valid() {
		return InvalidInput("unknown movement type %q", r.Type)
	}
	return nil
}

var movementCounter atomic.Uint64

// NewMovement builds the ledger entry for a validated request.
func NewMovement(r MovementRequest, at time.Time) StockMovement {
	n := movementCounter.Add(1)
	return StockMovement{
		ID:        fmt.Sprintf("MOV-%d-%s-%d", at.UnixMilli(), r.ProductID, n),
		ProductID: r.ProductID,
		Quantity:  r.Quantity,
		Type:      r.Type,
		Reason:    r.Reason,
		UserID:    r.UserID,
		CreatedAt: at,
	}
}

// OnlineOrderReason is the reason recorded for storefront sale movements.
func OnlineOrderReason(orderID string) string {
	return "Online Order " + orderID
}

// POSSaleReason is the reason recorded for counter sale movements.
func POSSaleReason(orderID string) string {
	return "POS Sale " + orderID
}

// PurchaseReceivedReason is the reason recorded when a purchase order arrives.
func PurchaseReceivedReason(poID string) string {
	return "PO Received " + poID
}

// CancellationReason is the reason recorded on compensating return movements.
func CancellationReason(orderID, reason string) string {
	return fmt.Sprintf("Order Cancelled: %s - %s", orderID, reason)
}

const (
	InitialImportReason = "Initial Import"
	InitialStockReason  = "Initial Stock"
)

// MovementFilter narrows movement listings.
type MovementFilter struct {
	ProductID string
	Type      MovementType
	From      *time.Time
	To        *time.Time
	Limit     int
}
