// internal/core/ports/repositories.go
package ports

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ammerola/storefront-ledger/internal/core/domain"
)

// Lookups return (nil, nil) when the record does not exist; services turn that
// into a domain not-found error.

// ProductRepository persists the catalog.
type ProductRepository interface {
	Create(ctx context.Context, product *domain.Product) error
	Update(ctx context.Context, product *domain.Product) error
	// UpdateStock writes only the ledger projections of a product.
	UpdateStock(ctx context.Context, id string, balance, stock int64, at time.Time) error
	FindByID(ctx context.Context, id string) (*domain.Product, error)
	// FindByIDForUpdate reads a product and holds its row until the unit of work ends.
	FindByIDForUpdate(ctx context.Context, id string) (*domain.Product, error)
	FindByName(ctx context.Context, name string) (*domain.Product, error)
	List(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, int64, error)
	Delete(ctx context.Context, id string) (bool, error)
	All(ctx context.Context) ([]domain.Product, error)
	ReplaceAll(ctx context.Context, products []domain.Product) error
}

// MovementRepository is the append-only stock ledger. It has no update or
// delete by id.
type MovementRepository interface {
	// Append stores the movement and assigns its ledger position (Seq).
	Append(ctx context.Context, movement *domain.StockMovement) error
	// Head returns the highest ledger position, or 0 for an empty ledger.
	Head(ctx context.Context) (int64, error)
	// ListByProduct returns up to limit movements of a product with
	// Seq < beforeSeq, newest first.
	ListByProduct(ctx context.Context, productID string, beforeSeq int64, limit int) ([]domain.StockMovement, error)
	SumByProduct(ctx context.Context, productID string) (sum int64, count int64, err error)
	List(ctx context.Context, filter domain.MovementFilter) ([]domain.StockMovement, error)
	// All returns the whole ledger in Seq order.
	All(ctx context.Context) ([]domain.StockMovement, error)
	ReplaceAll(ctx context.Context, movements []domain.StockMovement) error
}

// OrderRepository persists orders from both channels.
type OrderRepository interface {
	Create(ctx context.Context, order *domain.Order) error
	// UpdateStatus writes the mutable fields: status, refund reason, invoice id, updated_at.
	UpdateStatus(ctx context.Context, order *domain.Order) error
	FindByID(ctx context.Context, id string) (*domain.Order, error)
	FindByIDForUpdate(ctx context.Context, id string) (*domain.Order, error)
	List(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, int64, error)
	All(ctx context.Context) ([]domain.Order, error)
	ReplaceAll(ctx context.Context, orders []domain.Order) error
}

// InvoiceRepository stores fiscal records. Create fails with a conflict when
// the order already has an invoice.
type InvoiceRepository interface {
	Create(ctx context.Context, invoice *domain.Invoice) error
	FindByID(ctx context.Context, id string) (*domain.Invoice, error)
	FindByOrderID(ctx context.Context, orderID string) (*domain.Invoice, error)
	All(ctx context.Context) ([]domain.Invoice, error)
	ReplaceAll(ctx context.Context, invoices []domain.Invoice) error
}

// SalesRepository keeps the weekday sales buckets.
type SalesRepository interface {
	Increment(ctx context.Context, bucket string, amount decimal.Decimal) error
	List(ctx context.Context) ([]domain.SalesBucket, error)
	ReplaceAll(ctx context.Context, buckets []domain.SalesBucket) error
}

// PurchaseOrderRepository persists vendor orders.
type PurchaseOrderRepository interface {
	Create(ctx context.Context, po *domain.PurchaseOrder) error
	Update(ctx context.Context, po *domain.PurchaseOrder) error
	FindByID(ctx context.Context, id string) (*domain.PurchaseOrder, error)
	FindByIDForUpdate(ctx context.Context, id string) (*domain.PurchaseOrder, error)
	List(ctx context.Context) ([]domain.PurchaseOrder, error)
	All(ctx context.Context) ([]domain.PurchaseOrder, error)
	ReplaceAll(ctx context.Context, pos []domain.PurchaseOrder) error
}

// StoreProfileRepository stores the single store profile.
type StoreProfileRepository interface {
	// Get returns the saved profile or the default one.
	Get(ctx context.Context) (domain.StoreProfile, error)
	Save(ctx context.Context, profile domain.StoreProfile) error
}

// CustomerRepository persists customers.
type CustomerRepository interface {
	Create(ctx context.Context, customer *domain.Customer) error
	FindByID(ctx context.Context, id string) (*domain.Customer, error)
	List(ctx context.Context) ([]domain.Customer, error)
	ReplaceAll(ctx context.Context, customers []domain.Customer) error
}

// VendorRepository persists vendors.
type VendorRepository interface {
	Create(ctx context.Context, vendor *domain.Vendor) error
	FindByID(ctx context.Context, id string) (*domain.Vendor, error)
	List(ctx context.Context) ([]domain.Vendor, error)
	ReplaceAll(ctx context.Context, vendors []domain.Vendor) error
}

// CartRepository stores storefront baskets outside the ledger transaction.
type CartRepository interface {
	Get(ctx context.Context, id string) (*domain.Cart, error)
	Save(ctx context.Context, cart *domain.Cart) error
	Delete(ctx context.Context, id string) error
}

// ReportRepository serves read-only aggregates for the dashboard.
type ReportRepository interface {
	InventoryTotals(ctx context.Context) (products int64, units int64, value decimal.Decimal, err error)
	SalesSummary(ctx context.Context, from, to time.Time) ([]domain.SalesSummary, error)
	MovementTotals(ctx context.Context, from, to time.Time) ([]domain.MovementTotals, error)
	LowStock(ctx context.Context, limit int) ([]domain.LowStockItem, error)
}
