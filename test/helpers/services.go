package helpers

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/ammerola/storefront-ledger/internal/adapters/fiscal"
	"github.com/ammerola/storefront-ledger/internal/adapters/memory"
	"github.com/ammerola/storefront-ledger/internal/core/domain"
	"github.com/ammerola/storefront-ledger/internal/core/ports"
	"github.com/ammerola/storefront-ledger/internal/core/services"
)

// TestServices is the full service graph over the in-memory store.
type TestServices struct {
	Store     *memory.Store
	Carts     *memory.CartRepository
	Ledger    *services.LedgerService
	Orders    *services.OrderService
	Checkout  *services.CheckoutService
	Cart      *services.CartService
	POS       *services.POSService
	Receiving *services.ReceivingService
	Catalog   *services.CatalogService
	Importer  *services.ImportService
	Backup    *services.BackupService
	Shop      *services.StoreService
	Reports   *services.ReportService
}

// ServiceOptions replaces collaborators of the service graph.
type ServiceOptions struct {
	Signer   ports.FiscalSigner
	Cache    ports.Cache
	Blobs    ports.BlobStorage
	PageSize int
}

// NewTestServices wires every service against a fresh in-memory store.
func NewTestServices(t testing.TB, opts ...func(*ServiceOptions)) *TestServices {
	t.Helper()

	logger := TestLogger()
	o := &ServiceOptions{
		Signer:   fiscal.NewHMACSigner(TestFiscalKey, logger),
		PageSize: 2,
	}
	for _, opt := range opts {
		opt(o)
	}

	store := memory.NewStore()
	carts := memory.NewCartRepository()
	ledger := services.NewLedgerService(store, memory.NewLocker(), o.PageSize, logger)

	return &TestServices{
		Store:     store,
		Carts:     carts,
		Ledger:    ledger,
		Orders:    services.NewOrderService(store, ledger, logger),
		Checkout:  services.NewCheckoutService(store, ledger, carts, logger),
		Cart:      services.NewCartService(carts, store.Products(), logger),
		POS:       services.NewPOSService(store, ledger, o.Signer, decimal.Zero, logger),
		Receiving: services.NewReceivingService(store, ledger, logger),
		Catalog:   services.NewCatalogService(store, ledger, logger),
		Importer:  services.NewImportService(store, ledger, logger),
		Backup:    services.NewBackupService(store, o.Blobs, logger),
		Shop:      services.NewStoreService(store, logger),
		Reports:   services.NewReportService(store, memory.NewReportRepository(store), o.Cache, 0, logger),
	}
}

// AddProduct creates a product with the given opening stock through the catalog.
func (s *TestServices) AddProduct(t testing.TB, stock int64, overrides ...func(*domain.Product)) *domain.Product {
	t.Helper()

	p := CreateTestProduct(overrides...)
	require.NoError(t, s.Catalog.Create(context.Background(), p, stock, "test"))
	return p
}

// Product reloads a product and fails the test when it is missing.
func (s *TestServices) Product(t testing.TB, id string) *domain.Product {
	t.Helper()

	p, err := s.Catalog.Get(context.Background(), id)
	require.NoError(t, err)
	return p
}

// History drains the movement history of a product, newest first.
func (s *TestServices) History(t testing.TB, productID string) []domain.StockMovement {
	t.Helper()

	var out []domain.StockMovement
	for m, err := range s.Ledger.HistoryFor(context.Background(), productID) {
		require.NoError(t, err)
		out = append(out, m)
	}
	return out
}

// AssertLedgerConsistent checks stock against the movement sum for every product.
func (s *TestServices) AssertLedgerConsistent(t testing.TB) {
	t.Helper()

	results, err := s.Ledger.ReconcileAll(context.Background())
	require.NoError(t, err)
	for _, r := range results {
		require.Truef(t, r.Consistent, "product %s: stock=%d balance=%d movements=%d",
			r.ProductID, r.Stock, r.LedgerBalance, r.MovementSum)
	}
}
