// internal/handlers/router.go
package handlers

import (
	"log/slog"
	"net/http"
	"net/netip"
	"time"

	"github.com/ammerola/storefront-ledger/internal/core/ports"
	"github.com/ammerola/storefront-ledger/internal/handlers/middleware"
)

const apiV1 = "/api/v1"

// Services bundles the application services exposed over HTTP.
type Services struct {
	Ledger    ports.LedgerService
	Orders    ports.OrderService
	Checkout  ports.CheckoutService
	Carts     ports.CartService
	POS       ports.POSService
	Receiving ports.ReceivingService
	Catalog   ports.CatalogService
	Importer  ports.ImportService
	Backup    ports.BackupService
	Store     ports.StoreService
	Reports   ports.ReportService
}

// RouterOptions configures the optional collaborators and the middleware
// stack. Zero values disable the matching feature.
type RouterOptions struct {
	Cache       ports.Cache
	ExportTTL   time.Duration
	Tasks       ports.TaskEnqueuer
	Inspector   TaskInspector
	Queues      QueueInspector
	Idempotency middleware.IdempotencyStore

	Checks      map[string]CheckFunc
	Version     string
	Environment string

	MaxUploadBytes int64
	UploadDir      string

	RequestTimeout    time.Duration
	RequestIDHeader   string
	TrustedProxies    []netip.Prefix
	RateLimitRequests int
	RateLimitWindow   time.Duration
	AllowedOrigins    []string
	SecureHeaders     bool
	DisableHealth     bool
	DisableAccessLogs bool
}

// NewRouter registers every API route on a fresh mux and wraps it in the
// middleware stack.
func NewRouter(svc Services, opts RouterOptions, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	products := NewProductHandler(svc.Catalog, svc.Ledger, logger)
	carts := NewCartHandler(svc.Carts, logger)
	orders := NewOrderHandler(svc.Orders, svc.Checkout, svc.POS, svc.Reports, logger)
	purchasing := NewPurchasingHandler(svc.Receiving, svc.Store, logger)
	store := NewStoreHandler(svc.Store, svc.Reports, logger)
	exports := NewExportHandler(svc.Backup, opts.Cache, opts.ExportTTL, logger)
	backups := NewBackupHandler(svc.Backup, opts.Tasks, svc.Reports, logger)
	imports := NewImportHandler(svc.Importer, opts.Tasks, opts.Inspector, svc.Reports, opts.MaxUploadBytes, opts.UploadDir, logger)

	// Sales accept an Idempotency-Key so client retries never double-sell.
	sale := func(h http.HandlerFunc) http.Handler { return h }
	if opts.Idempotency != nil {
		guard := middleware.Idempotency(opts.Idempotency, logger)
		sale = func(h http.HandlerFunc) http.Handler { return guard(h) }
	}

	if !opts.DisableHealth {
		health := NewHealthHandler(opts.Checks, opts.Queues, opts.Version, opts.Environment, logger)
		mux.HandleFunc("GET /health", health.Health)
		mux.HandleFunc("GET /ready", health.Readiness)
		mux.HandleFunc("GET "+apiV1+"/health", health.Health)
	}

	// Catalog and ledger
	mux.HandleFunc("GET "+apiV1+"/products", products.List)
	mux.HandleFunc("POST "+apiV1+"/products", products.Create)
	mux.HandleFunc("GET "+apiV1+"/products/{id}", products.Get)
	mux.HandleFunc("PUT "+apiV1+"/products/{id}", products.Update)
	mux.HandleFunc("DELETE "+apiV1+"/products/{id}", products.Delete)
	mux.HandleFunc("POST "+apiV1+"/products/{id}/movements", products.RecordMovement)
	mux.HandleFunc("GET "+apiV1+"/products/{id}/movements", products.History)
	mux.HandleFunc("GET "+apiV1+"/products/{id}/reconcile", products.Reconcile)

	// Carts
	mux.HandleFunc("POST "+apiV1+"/carts", carts.Create)
	mux.HandleFunc("GET "+apiV1+"/carts/{id}", carts.Get)
	mux.HandleFunc("DELETE "+apiV1+"/carts/{id}", carts.Clear)
	mux.HandleFunc("POST "+apiV1+"/carts/{id}/items", carts.AddItem)
	mux.HandleFunc("DELETE "+apiV1+"/carts/{id}/items/{productId}", carts.RemoveItem)

	// Sales and orders
	mux.Handle("POST "+apiV1+"/checkout", sale(orders.Checkout))
	mux.Handle("POST "+apiV1+"/pos/sales", sale(orders.CompleteSale))
	mux.HandleFunc("GET "+apiV1+"/invoices/{id}", orders.GetInvoice)
	mux.HandleFunc("GET "+apiV1+"/orders", orders.List)
	mux.HandleFunc("GET "+apiV1+"/orders/{id}", orders.Get)
	mux.HandleFunc("GET "+apiV1+"/orders/{id}/invoice", orders.InvoiceForOrder)
	mux.HandleFunc("PATCH "+apiV1+"/orders/{id}/status", orders.UpdateStatus)
	mux.HandleFunc("POST "+apiV1+"/orders/{id}/cancel", orders.Cancel)
	mux.HandleFunc("POST "+apiV1+"/orders/{id}/refund", orders.Refund)

	// Purchasing and parties
	mux.HandleFunc("GET "+apiV1+"/purchase-orders", purchasing.ListPurchaseOrders)
	mux.HandleFunc("POST "+apiV1+"/purchase-orders", purchasing.CreatePurchaseOrder)
	mux.HandleFunc("GET "+apiV1+"/purchase-orders/{id}", purchasing.GetPurchaseOrder)
	mux.HandleFunc("POST "+apiV1+"/purchase-orders/{id}/order", purchasing.MarkOrdered)
	mux.HandleFunc("POST "+apiV1+"/purchase-orders/{id}/receive", purchasing.Receive)
	mux.HandleFunc("GET "+apiV1+"/vendors", purchasing.ListVendors)
	mux.HandleFunc("POST "+apiV1+"/vendors", purchasing.CreateVendor)
	mux.HandleFunc("GET "+apiV1+"/customers", purchasing.ListCustomers)
	mux.HandleFunc("POST "+apiV1+"/customers", purchasing.CreateCustomer)

	// Store settings and reporting
	mux.HandleFunc("GET "+apiV1+"/store/profile", store.GetProfile)
	mux.HandleFunc("PUT "+apiV1+"/store/profile", store.UpdateProfile)
	mux.HandleFunc("GET "+apiV1+"/currency/convert", store.Convert)
	mux.HandleFunc("GET "+apiV1+"/dashboard", store.Dashboard)
	mux.HandleFunc("GET "+apiV1+"/sales/weekly", store.WeeklySales)

	// Backup, import and export
	mux.HandleFunc("GET "+apiV1+"/backup", backups.Download)
	mux.HandleFunc("POST "+apiV1+"/restore", backups.Restore)
	mux.HandleFunc("POST "+apiV1+"/backup/jobs", backups.EnqueueArchive)
	mux.HandleFunc("POST "+apiV1+"/import/products", imports.ImportProducts)
	mux.HandleFunc("GET "+apiV1+"/import/status/{jobId}", imports.Status)
	mux.HandleFunc("GET "+apiV1+"/export/movements.xlsx", exports.ExportMovements)
	mux.HandleFunc("GET "+apiV1+"/export/orders.xlsx", exports.ExportOrders)
	mux.HandleFunc("GET "+apiV1+"/export/products.json", exports.ExportProducts)

	// Outermost first.
	mws := []func(http.Handler) http.Handler{
		middleware.RequestContext(middleware.ContextOptions{
			RequestIDHeader: opts.RequestIDHeader,
			TrustedProxies:  opts.TrustedProxies,
		}),
	}
	if !opts.DisableAccessLogs {
		mws = append(mws, middleware.AccessLog(logger))
	}
	mws = append(mws, middleware.Recovery(logger))
	if opts.RateLimitRequests > 0 {
		mws = append(mws, middleware.RateLimit(opts.RateLimitRequests, opts.RateLimitWindow, opts.TrustedProxies))
	}
	if len(opts.AllowedOrigins) > 0 {
		mws = append(mws, middleware.CORS(opts.AllowedOrigins))
	}
	if opts.SecureHeaders {
		mws = append(mws, middleware.SecureHeaders)
	}
	if opts.RequestTimeout > 0 {
		mws = append(mws, middleware.Timeout(opts.RequestTimeout))
	}
	mws = append(mws, middleware.Compression, middleware.ContentTypeJSON)

	return middleware.Chain(mux, mws...)
}
