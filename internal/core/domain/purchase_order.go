// internal/core/domain/purchase_order.go
package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PurchaseOrderStatus tracks a vendor order
type PurchaseOrderStatus string

const (
	PODraft    PurchaseOrderStatus = "draft"
	POOrdered  PurchaseOrderStatus = "ordered"
	POReceived PurchaseOrderStatus = "received"
)

func (s PurchaseOrderStatus) String() string {
	return string(s)
}

// PurchaseOrderItem is one line of a purchase order.
type PurchaseOrderItem struct {
	ProductID   string          `json:"productId,omitempty"`
	ProductName string          `json:"productName"`
	Quantity    int64           `json:"quantity"`
	Cost        decimal.Decimal `json:"cost"`
}

// PurchaseOrder is an order placed with a vendor. Receiving it adds stock.
type PurchaseOrder struct {
	ID         string              `json:"id"`
	VendorID   string              `json:"vendorId"`
	Status     PurchaseOrderStatus `json:"status"`
	Items      []PurchaseOrderItem `json:"items"`
	Total      decimal.Decimal     `json:"total"`
	CreatedAt  time.Time           `json:"date"`
	ReceivedAt *time.Time          `json:"receivedAt,omitempty"`
}

// Validate checks the purchase order and computes its total.
func (po *PurchaseOrder) Validate() error {
	if strings.TrimSpace(po.VendorID) == "" {
		return InvalidInput("vendor_id is required")
	}
	if len(po.Items) == 0 {
		return InvalidInput("purchase order has no items")
	}
	total := decimal.Zero
	for i, item := range po.Items {
		if item.ProductID == "" && strings.TrimSpace(item.ProductName) == "" {
			return InvalidInput("item %d needs a product_id or product_name", i)
		}
		if item.Quantity <= 0 {
			return InvalidInput("item %d quantity must be positive", i)
		}
		if item.Cost.IsNegative() {
			return InvalidInput("item %d cost cannot be negative", i)
		}
		total = total.Add(item.Cost.Mul(decimal.NewFromInt(item.Quantity)))
	}
	po.Total = total
	if po.Status == "" {
		po.Status = PODraft
	}
	return nil
}

// PrepareForStorage assigns an id and timestamp.
func (po *PurchaseOrder) PrepareForStorage() {
	now := time.Now().UTC()
	if po.ID == "" {
		po.ID = NewDocumentID("PO", now)
	}
	if po.CreatedAt.IsZero() {
		po.CreatedAt = now
	}
}

// MarkOrdered moves a draft to ordered.
func (po *PurchaseOrder) MarkOrdered() error {
	if po.Status != PODraft {
		return InvalidTransition("purchase_order", po.ID, po.Status, POOrdered)
	}
	po.Status = POOrdered
	return nil
}

// MarkReceived closes the purchase order.
func (po *PurchaseOrder) MarkReceived(at time.Time) error {
	if po.Status == POReceived {
		return InvalidTransition("purchase_order", po.ID, po.Status, POReceived)
	}
	po.Status = POReceived
	po.ReceivedAt = &at
	return nil
}
