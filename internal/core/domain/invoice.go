// internal/core/domain/invoice.go
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Invoice is the fiscal record of a counter sale. It is written once, in the
// same unit of work as its order, and never changed.
type Invoice struct {
	ID              string          `json:"id"`
	OrderID         string          `json:"orderId"`
	FiscalSignature string          `json:"fiscalSignature"`
	OBRTime         time.Time       `json:"obrTime"`
	CustomerName    string          `json:"customerName"`
	TIN             string          `json:"tin"`
	Items           []OrderItem     `json:"items"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	VAT             decimal.Decimal `json:"vat"`
	VATRate         decimal.Decimal `json:"vatRate"`
	Total           decimal.Decimal `json:"total"`
	Currency        string          `json:"currency"`
	CreatedAt       time.Time       `json:"createdAt"`
}

// UnknownTIN is printed when the buyer gave no tax identification number.
const UnknownTIN = "N/A"

// NewInvoice snapshots an order into its fiscal record.
func NewInvoice(order *Order, vatRate decimal.Decimal, at time.Time) *Invoice {
	tin := order.CustomerNIF
	if tin == "" {
		tin = UnknownTIN
	}
	items := make([]OrderItem, len(order.Items))
	copy(items, order.Items)
	return &Invoice{
		ID:              NewDocumentID("INV", at),
		OrderID:         order.ID,
		FiscalSignature: order.FiscalSignature,
		OBRTime:         at,
		CustomerName:    order.CustomerName,
		TIN:             tin,
		Items:           items,
		Subtotal:        order.Subtotal,
		VAT:             order.TaxAmount,
		VATRate:         vatRate,
		Total:           order.Total,
		Currency:        order.Currency,
		CreatedAt:       at,
	}
}
