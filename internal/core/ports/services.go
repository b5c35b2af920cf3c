// internal/core/ports/services.go
package ports

import (
	"context"
	"io"
	"iter"

	"github.com/ammerola/storefront-ledger/internal/core/domain"
)

// LedgerService is the single authorized mutation entry point for stock.
type LedgerService interface {
	ApplyMovement(ctx context.Context, req domain.MovementRequest) (*domain.StockMovement, error)
	HistoryFor(ctx context.Context, productID string) iter.Seq2[domain.StockMovement, error]
	Reconcile(ctx context.Context, productID string) (*domain.Reconciliation, error)
	ReconcileAll(ctx context.Context) ([]domain.Reconciliation, error)
	Replay(ctx context.Context) (map[string]int64, error)
}

// OrderService governs order status transitions.
type OrderService interface {
	Get(ctx context.Context, id string) (*domain.Order, error)
	List(ctx context.Context, filter domain.OrderFilter) (*OrderPage, error)
	UpdateStatus(ctx context.Context, id string, status domain.OrderStatus) (*domain.Order, error)
	Cancel(ctx context.Context, id, reason string) (*domain.Order, error)
	Refund(ctx context.Context, id, reason string) (*domain.Order, error)
}

// CheckoutService turns a storefront cart into a pending order.
type CheckoutService interface {
	PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*domain.Order, error)
}

// CartService manages storefront baskets.
type CartService interface {
	Create(ctx context.Context) (*domain.Cart, error)
	Get(ctx context.Context, id string) (*domain.Cart, error)
	AddItem(ctx context.Context, cartID, productID string, quantity int64) (*domain.Cart, error)
	RemoveItem(ctx context.Context, cartID, productID string) (*domain.Cart, error)
	Clear(ctx context.Context, cartID string) error
}

// POSService completes counter sales.
type POSService interface {
	CompleteSale(ctx context.Context, req SaleRequest) (*domain.Order, *domain.Invoice, error)
	GetInvoice(ctx context.Context, id string) (*domain.Invoice, error)
	InvoiceForOrder(ctx context.Context, orderID string) (*domain.Invoice, error)
}

// ReceivingService manages purchase orders.
type ReceivingService interface {
	Create(ctx context.Context, po *domain.PurchaseOrder) error
	Get(ctx context.Context, id string) (*domain.PurchaseOrder, error)
	List(ctx context.Context) ([]domain.PurchaseOrder, error)
	MarkOrdered(ctx context.Context, id string) (*domain.PurchaseOrder, error)
	Receive(ctx context.Context, id, userID string) (*domain.PurchaseOrder, error)
}

// CatalogService manages products.
type CatalogService interface {
	Create(ctx context.Context, product *domain.Product, initialStock int64, userID string) error
	Get(ctx context.Context, id string) (*domain.Product, error)
	List(ctx context.Context, filter domain.ProductFilter) (*ProductPage, error)
	Update(ctx context.Context, id string, update domain.ProductUpdate) (*domain.Product, error)
	Delete(ctx context.Context, id string) error
}

// ImportService loads products from spreadsheets.
type ImportService interface {
	ParseCSV(r io.Reader) ([]ImportRow, []RowError, error)
	ParseXLSX(path string) ([]ImportRow, []RowError, error)
	Import(ctx context.Context, rows []ImportRow, userID string) (*ImportResult, error)
}

// BackupService exports and restores snapshots.
type BackupService interface {
	Export(ctx context.Context) (*domain.Snapshot, error)
	WriteJSON(ctx context.Context, w io.Writer) error
	Restore(ctx context.Context, document []byte) (*domain.RestoreResult, error)
}

// StoreService manages the store profile and parties.
type StoreService interface {
	Profile(ctx context.Context) (domain.StoreProfile, error)
	UpdateProfile(ctx context.Context, update domain.StoreProfileUpdate) (domain.StoreProfile, error)
	CreateCustomer(ctx context.Context, customer *domain.Customer) error
	ListCustomers(ctx context.Context) ([]domain.Customer, error)
	CreateVendor(ctx context.Context, vendor *domain.Vendor) error
	ListVendors(ctx context.Context) ([]domain.Vendor, error)
}

// ReportService builds dashboard aggregates.
type ReportService interface {
	Dashboard(ctx context.Context) (*domain.Dashboard, error)
	WeeklySales(ctx context.Context) ([]domain.SalesBucket, error)
	Invalidate(ctx context.Context) error
}

// PlaceOrderRequest is a storefront checkout.
type PlaceOrderRequest struct {
	CartID          string            `json:"cartId,omitempty"`
	Items           []domain.CartItem `json:"items"`
	CustomerName    string            `json:"customerName,omitempty"`
	CustomerNIF     string            `json:"customerNIF,omitempty"`
	PaymentMethod   string            `json:"paymentMethod"`
	ShippingAddress string            `json:"shippingAddress,omitempty"`
}

// SaleRequest is a counter sale.
type SaleRequest struct {
	Items         []domain.OrderItem `json:"items"`
	PaymentMethod string             `json:"paymentMethod"`
	CustomerName  string             `json:"customerName,omitempty"`
	CustomerNIF   string             `json:"customerNIF,omitempty"`
	UserID        string             `json:"userId,omitempty"`
}

// ImportRow is one parsed spreadsheet product row.
type ImportRow struct {
	Row     int
	Product domain.Product
	Stock   int64
}

// RowError describes a skipped spreadsheet row.
type RowError struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

// ImportResult summarizes a product import.
type ImportResult struct {
	Imported   int        `json:"imported"`
	Movements  int        `json:"movements"`
	Skipped    int        `json:"skipped"`
	Errors     []RowError `json:"errors,omitempty"`
	ProductIDs []string   `json:"productIds,omitempty"`
}

// ProductPage is one page of a product listing.
type ProductPage struct {
	Items      []domain.Product `json:"items"`
	Limit      int              `json:"limit"`
	Offset     int              `json:"offset"`
	TotalCount int64            `json:"total_count"`
}

// OrderPage is one page of an order listing.
type OrderPage struct {
	Items      []domain.Order `json:"items"`
	Limit      int            `json:"limit"`
	Offset     int            `json:"offset"`
	TotalCount int64          `json:"total_count"`
}
