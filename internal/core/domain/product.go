// internal/core/domain/product.go
package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Product placeholders used when a record arrives without the field set.
const (
	DefaultProductName     = "Imported Product"
	DefaultProductCategory = "Uncategorized"
	DefaultUnitOfMeasure   = "pcs"
)

// Product is a catalog entry. Stock and LedgerBalance are projections of the
// stock ledger and are only changed through Product.ApplyDelta.
type Product struct {
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	SKU           string            `json:"sku"`
	PartNumber    string            `json:"partNumber,omitempty"`
	Brand         string            `json:"brand,omitempty"`
	Price         decimal.Decimal   `json:"price"`
	CostPrice     decimal.Decimal   `json:"costPrice"`
	Stock         int64             `json:"stock"`
	LedgerBalance int64             `json:"ledgerBalance"`
	MinStockLevel int64             `json:"minStockLevel"`
	Category      string            `json:"category"`
	Description   string            `json:"description,omitempty"`
	ImageURL      string            `json:"imageUrl,omitempty"`
	HSCode        string            `json:"hsCode,omitempty"`
	UOM           string            `json:"uom,omitempty"`
	VATRate       decimal.Decimal   `json:"vatRate"`
	CustomFields  map[string]string `json:"customFields,omitempty"`
	CreatedAt     time.Time         `json:"createdAt"`
	UpdatedAt     time.Time         `json:"updatedAt"`
}

// Validate performs domain validation on the product and fills defaults.
func (p *Product) Validate() error {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return InvalidInput("name is required")
	}
	if p.Price.IsNegative() {
		return InvalidInput("price cannot be negative")
	}
	if p.CostPrice.IsNegative() {
		return InvalidInput("cost_price cannot be negative")
	}
	if p.VATRate.IsNegative() {
		return InvalidInput("vat_rate cannot be negative")
	}
	if p.MinStockLevel < 0 {
		return InvalidInput("min_stock_level cannot be negative")
	}
	if p.Category == "" {
		p.Category = DefaultProductCategory
	}
	if p.UOM == "" {
		p.UOM = DefaultUnitOfMeasure
	}
	return nil
}

// PrepareForStorage assigns an id and timestamps before the first write.
func (p *Product) PrepareForStorage() {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
}

// ApplyDelta moves the ledger balance by quantity and recomputes the displayed
// stock, which never drops below zero.
func (p *Product) ApplyDelta(quantity int64, at time.Time) {
	p.LedgerBalance += quantity
	p.Stock = ClampStock(p.LedgerBalance)
	p.UpdatedAt = at
}

// IsLowStock reports whether the product has reached its reorder level.
func (p *Product) IsLowStock() bool {
	return p.MinStockLevel > 0 && p.Stock <= p.MinStockLevel
}

// Margin is price minus cost price.
func (p *Product) Margin() decimal.Decimal {
	return p.Price.Sub(p.CostPrice)
}

// ClampStock converts a ledger balance into the displayed on-hand quantity.
func ClampStock(balance int64) int64 {
	if balance < 0 {
		return 0
	}
	return balance
}

// ProductUpdate is a partial update of the editable product fields.
// Stock is deliberately absent: it moves only through the ledger.
type ProductUpdate struct {
	Name          *string           `json:"name,omitempty"`
	SKU           *string           `json:"sku,omitempty"`
	PartNumber    *string           `json:"partNumber,omitempty"`
	Brand         *string           `json:"brand,omitempty"`
	Price         *decimal.Decimal  `json:"price,omitempty"`
	CostPrice     *decimal.Decimal  `json:"costPrice,omitempty"`
	MinStockLevel *int64            `json:"minStockLevel,omitempty"`
	Category      *string           `json:"category,omitempty"`
	Description   *string           `json:"description,omitempty"`
	ImageURL      *string           `json:"imageUrl,omitempty"`
	HSCode        *string           `json:"hsCode,omitempty"`
	UOM           *string           `json:"uom,omitempty"`
	VATRate       *decimal.Decimal  `json:"vatRate,omitempty"`
	CustomFields  map[string]string `json:"customFields,omitempty"`
}

// Validate checks the update before it is merged.
func (u ProductUpdate) Validate() error {
	if u.Name != nil && strings.TrimSpace(*u.Name) == "" {
		return InvalidInput("name cannot be empty")
	}
	if u.Price != nil && u.Price.IsNegative() {
		return InvalidInput("price cannot be negative")
	}
	if u.CostPrice != nil && u.CostPrice.IsNegative() {
		return InvalidInput("cost_price cannot be negative")
	}
	if u.VATRate != nil && u.VATRate.IsNegative() {
		return InvalidInput("vat_rate cannot be negative")
	}
	if u.MinStockLevel != nil && *u.MinStockLevel < 0 {
		return InvalidInput("min_stock_level cannot be negative")
	}
	return nil
}

// IsEmpty reports whether the update changes nothing.
func (u ProductUpdate) IsEmpty() bool {
	return u.Name == nil && u.SKU == nil && u.PartNumber == nil && u.Brand == nil &&
		u.Price == nil && u.CostPrice == nil && u.MinStockLevel == nil && u.Category == nil &&
		u.Description == nil && u.ImageURL == nil && u.HSCode == nil && u.UOM == nil &&
		u.VATRate == nil && u.CustomFields == nil
}

// Apply merges a validated update into p.
func (u ProductUpdate) Apply(p *Product, at time.Time) error {
	if err := u.Validate(); err != nil {
		return err
	}
	setString(&p.Name, u.Name)
	setString(&p.SKU, u.SKU)
	setString(&p.PartNumber, u.PartNumber)
	setString(&p.Brand, u.Brand)
	setString(&p.Category, u.Category)
	setString(&p.Description, u.Description)
	setString(&p.ImageURL, u.ImageURL)
	setString(&p.HSCode, u.HSCode)
	setString(&p.UOM, u.UOM)
	if u.Price != nil {
		p.Price = *u.Price
	}
	if u.CostPrice != nil {
		p.CostPrice = *u.CostPrice
	}
	if u.VATRate != nil {
		p.VATRate = *u.VATRate
	}
	if u.MinStockLevel != nil {
		p.MinStockLevel = *u.MinStockLevel
	}
	if u.CustomFields != nil {
		if p.CustomFields == nil {
			p.CustomFields = make(map[string]string, len(u.CustomFields))
		}
		for k, v := range u.CustomFields {
			if v == "" {
				delete(p.CustomFields, k)
				continue
			}
			p.CustomFields[k] = v
		}
	}
	p.UpdatedAt = at
	return nil
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = strings.TrimSpace(*src)
	}
}

// ProductFilter narrows product listings.
type ProductFilter struct {
	Search   string
	Category string
	LowStock bool
	Limit    int
	Offset   int
}

// Normalize clamps paging values.
func (f *ProductFilter) Normalize() {
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
}

// String implements fmt.Stringer for log output.
func (p *Product) String() string {
	return fmt.Sprintf("%s (%s)", p.Name, p.ID)
}
