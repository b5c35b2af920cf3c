// internal/core/domain/report.go
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Reconciliation compares a product's cached projections with its ledger.
type Reconciliation struct {
	ProductID     string    `json:"productId"`
	Stock         int64     `json:"stock"`
	LedgerBalance int64     `json:"ledgerBalance"`
	MovementSum   int64     `json:"movementSum"`
	MovementCount int64     `json:"movementCount"`
	ExpectedStock int64     `json:"expectedStock"`
	Consistent    bool      `json:"consistent"`
	ReconciledAt  time.Time `json:"reconciledAt"`
}

// NewReconciliation evaluates the ledger invariant for one product.
func NewReconciliation(p *Product, sum, count int64, at time.Time) Reconciliation {
	expected := ClampStock(sum)
	return Reconciliation{
		ProductID:     p.ID,
		Stock:         p.Stock,
		LedgerBalance: p.LedgerBalance,
		MovementSum:   sum,
		MovementCount: count,
		ExpectedStock: expected,
		Consistent:    p.LedgerBalance == sum && p.Stock == expected,
		ReconciledAt:  at,
	}
}

// MovementTotals aggregates movements of one type.
type MovementTotals struct {
	Type     MovementType `json:"type"`
	Count    int64        `json:"count"`
	Quantity int64        `json:"quantity"`
}

// SalesSummary aggregates orders of one channel and status.
type SalesSummary struct {
	Channel Channel         `json:"channel"`
	Status  OrderStatus     `json:"status"`
	Orders  int64           `json:"orders"`
	Revenue decimal.Decimal `json:"revenue"`
}

// LowStockItem is a product at or below its reorder level.
type LowStockItem struct {
	ProductID     string `json:"productId"`
	Name          string `json:"name"`
	SKU           string `json:"sku"`
	Stock         int64  `json:"stock"`
	MinStockLevel int64  `json:"minStockLevel"`
}

// Dashboard is the cached overview shown on the back-office home page.
type Dashboard struct {
	Currency       string           `json:"currency"`
	ProductCount   int64            `json:"productCount"`
	UnitsOnHand    int64            `json:"unitsOnHand"`
	InventoryValue decimal.Decimal  `json:"inventoryValue"`
	InventoryLabel string           `json:"inventoryValueFormatted"`
	Revenue        decimal.Decimal  `json:"revenue"`
	RevenueLabel   string           `json:"revenueFormatted"`
	Sales          []SalesSummary   `json:"sales"`
	Movements      []MovementTotals `json:"movements"`
	LowStock       []LowStockItem   `json:"lowStock"`
	Weekly         []SalesBucket    `json:"weekly"`
	GeneratedAt    time.Time        `json:"generatedAt"`
}
