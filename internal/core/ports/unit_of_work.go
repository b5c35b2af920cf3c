// internal/core/ports/unit_of_work.go
package ports

import "context"

// Repositories groups the entity repositories that take part in a unit of work.
type Repositories interface {
	Products() ProductRepository
	Movements() MovementRepository
	Orders() OrderRepository
	Invoices() InvoiceRepository
	Sales() SalesRepository
	PurchaseOrders() PurchaseOrderRepository
	StoreProfile() StoreProfileRepository
	Customers() CustomerRepository
	Vendors() VendorRepository
}

// UnitOfWork runs a function against repositories bound to one transaction.
// If fn returns an error or panics nothing it wrote is kept.
type UnitOfWork interface {
	Repositories
	Atomically(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}

// ProductLocker serializes writers per product. Unlock must be called exactly
// once, even when the protected work fails.
type ProductLocker interface {
	Lock(ctx context.Context, productIDs ...string) (unlock func(), err error)
}
