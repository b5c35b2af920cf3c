//go:build integration
// +build integration

package db_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"golang.org/x/sync/errgroup"

	"github.com/ammerola/storefront-ledger/internal/adapters/db"
	"github.com/ammerola/storefront-ledger/internal/adapters/fiscal"
	"github.com/ammerola/storefront-ledger/internal/adapters/memory"
	"github.com/ammerola/storefront-ledger/internal/core/domain"
	"github.com/ammerola/storefront-ledger/internal/core/ports"
	"github.com/ammerola/storefront-ledger/internal/core/services"
	"github.com/ammerola/storefront-ledger/test/helpers"
)

type StoreSuite struct {
	suite.Suite
	testDB *helpers.TestDB
	store  *db.Store
	ctx    context.Context

	ledger   *services.LedgerService
	catalog  *services.CatalogService
	orders   *services.OrderService
	checkout *services.CheckoutService
	pos      *services.POSService
	backup   *services.BackupService
	reports  *services.ReportService
}

func (s *StoreSuite) SetupSuite() {
	s.testDB = helpers.SetupTestDB(s.T())
	s.ctx = context.Background()

	logger := helpers.TestLogger()
	s.store = db.NewStore(s.testDB.Database, logger)
	s.ledger = services.NewLedgerService(s.store, memory.NewLocker(), 3, logger)
	s.catalog = services.NewCatalogService(s.store, s.ledger, logger)
	s.orders = services.NewOrderService(s.store, s.ledger, logger)
	s.checkout = services.NewCheckoutService(s.store, s.ledger, memory.NewCartRepository(), logger)
	s.pos = services.NewPOSService(s.store, s.ledger, fiscal.NewHMACSigner(helpers.TestFiscalKey, logger), decimal.Zero, logger)
	s.backup = services.NewBackupService(s.store, nil, logger)

	sqlDB := stdlib.OpenDBFromPool(s.testDB.Pool)
	s.T().Cleanup(func() { sqlDB.Close() })
	s.reports = services.NewReportService(s.store, db.NewReportRepository(sqlDB, logger), nil, 0, logger)
}

func (s *StoreSuite) SetupTest() {
	helpers.TruncateAllTables(s.T(), s.testDB.Pool)
}

func (s *StoreSuite) addProduct(stock int64, overrides ...func(*domain.Product)) *domain.Product {
	p := helpers.CreateTestProduct(overrides...)
	s.Require().NoError(s.catalog.Create(s.ctx, p, stock, "test"))
	return p
}

func (s *StoreSuite) history(productID string) []domain.StockMovement {
	var out []domain.StockMovement
	for m, err := range s.ledger.HistoryFor(s.ctx, productID) {
		s.Require().NoError(err)
		out = append(out, m)
	}
	return out
}

func (s *StoreSuite) assertConsistent() {
	results, err := s.ledger.ReconcileAll(s.ctx)
	s.Require().NoError(err)
	for _, r := range results {
		s.Truef(r.Consistent, "product %s drifted: %+v", r.ProductID, r)
	}
}

func (s *StoreSuite) TestProductRoundTrip() {
	p := s.addProduct(5, func(p *domain.Product) {
		p.CustomFields = map[string]string{"shelf": "B2"}
		p.Price = decimal.RequireFromString("12.345")
	})

	got, err := s.store.Products().FindByID(s.ctx, p.ID)
	s.Require().NoError(err)
	s.Require().NotNil(got)
	s.Equal(p.Name, got.Name)
	s.True(p.Price.Equal(got.Price))
	s.Equal(int64(5), got.Stock)
	s.Equal(map[string]string{"shelf": "B2"}, got.CustomFields)

	byName, err := s.store.Products().FindByName(s.ctx, "brake PAD set")
	s.Require().NoError(err)
	s.Require().NotNil(byName)
	s.Equal(p.ID, byName.ID)

	missing, err := s.store.Products().FindByID(s.ctx, "PROD-none")
	s.NoError(err)
	s.Nil(missing)

	dup := helpers.CreateTestProduct(func(d *domain.Product) { d.ID = p.ID })
	err = s.store.Products().Create(s.ctx, dup)
	s.ErrorIs(err, domain.ErrConflict)
}

func (s *StoreSuite) TestAtomicallyRollsBack() {
	boom := errors.New("boom")
	p := helpers.CreateTestProduct()

	err := s.store.Atomically(s.ctx, func(ctx context.Context, repos ports.Repositories) error {
		if err := repos.Products().Create(ctx, p); err != nil {
			return err
		}
		return boom
	})
	s.ErrorIs(err, boom)

	got, err := s.store.Products().FindByID(s.ctx, p.ID)
	s.NoError(err)
	s.Nil(got)
}

func (s *StoreSuite) TestOrderLifecycle() {
	p := s.addProduct(10)

	order, err := s.checkout.PlaceOrder(s.ctx, ports.PlaceOrderRequest{
		Items:         []domain.CartItem{{ProductID: p.ID, Quantity: 3, Price: p.Price}},
		PaymentMethod: "card",
	})
	s.Require().NoError(err)
	s.True(order.Total.Equal(decimal.NewFromInt(30)))

	stored, err := s.orders.Get(s.ctx, order.ID)
	s.Require().NoError(err)
	s.Len(stored.Items, 1)
	s.Equal(domain.OrderPending, stored.Status)

	_, err = s.orders.UpdateStatus(s.ctx, order.ID, domain.OrderShipped)
	s.Require().NoError(err)
	cancelled, err := s.orders.Cancel(s.ctx, order.ID, "lost in transit")
	s.Require().NoError(err)
	s.Equal(domain.OrderCancelled, cancelled.Status)

	product, err := s.catalog.Get(s.ctx, p.ID)
	s.Require().NoError(err)
	s.Equal(int64(10), product.Stock)

	history := s.history(p.ID)
	s.Require().Len(history, 3)
	s.Equal(domain.MovementReturn, history[0].Type)
	s.Equal(domain.CancellationReason(order.ID, "lost in transit"), history[0].Reason)
	s.Greater(history[0].Seq, history[1].Seq)

	_, err = s.orders.Refund(s.ctx, order.ID, "again")
	s.ErrorIs(err, domain.ErrTerminalState)

	s.assertConsistent()
}

func (s *StoreSuite) TestPOSSaleWritesInvoice() {
	p := s.addProduct(4, func(p *domain.Product) { p.Price = decimal.NewFromInt(100) })

	order, invoice, err := s.pos.CompleteSale(s.ctx, ports.SaleRequest{
		Items: []domain.OrderItem{{ProductID: p.ID, Quantity: 2, PriceAtPurchase: p.Price}},
	})
	s.Require().NoError(err)
	s.True(order.Total.Equal(decimal.NewFromInt(236)))

	stored, err := s.pos.InvoiceForOrder(s.ctx, order.ID)
	s.Require().NoError(err)
	s.Equal(invoice.ID, stored.ID)
	s.Equal(invoice.FiscalSignature, stored.FiscalSignature)
	s.True(stored.VAT.Equal(decimal.NewFromInt(36)))

	s.assertConsistent()
}

func (s *StoreSuite) TestConcurrentSalesKeepLedgerExact() {
	p := s.addProduct(50)

	var g errgroup.Group
	for i := 0; i < 20; i++ {
		g.Go(func() error {
			_, _, err := s.pos.CompleteSale(s.ctx, ports.SaleRequest{
				Items: []domain.OrderItem{{ProductID: p.ID, Quantity: 1, PriceAtPurchase: p.Price}},
			})
			return err
		})
	}
	s.Require().NoError(g.Wait())

	product, err := s.catalog.Get(s.ctx, p.ID)
	s.Require().NoError(err)
	s.Equal(int64(30), product.Stock)
	s.Len(s.history(p.ID), 21)
	s.assertConsistent()
}

func (s *StoreSuite) TestBackupRoundTrip() {
	p := s.addProduct(6)
	_, _, err := s.pos.CompleteSale(s.ctx, ports.SaleRequest{
		Items: []domain.OrderItem{{ProductID: p.ID, Quantity: 1, PriceAtPurchase: p.Price}},
	})
	s.Require().NoError(err)

	snap, err := s.backup.Export(s.ctx)
	s.Require().NoError(err)
	s.Len(snap.StockMovements, 2)

	var doc bytes.Buffer
	s.Require().NoError(s.backup.WriteJSON(s.ctx, &doc))

	helpers.TruncateAllTables(s.T(), s.testDB.Pool)

	result, err := s.backup.Restore(s.ctx, doc.Bytes())
	s.Require().NoError(err)
	s.Contains(result.Restored, "stockMovements")

	product, err := s.catalog.Get(s.ctx, p.ID)
	s.Require().NoError(err)
	s.Equal(int64(5), product.Stock)
	s.Len(s.history(p.ID), 2)
	s.assertConsistent()
}

func (s *StoreSuite) TestDashboardOverPostgres() {
	s.addProduct(1, func(p *domain.Product) { p.MinStockLevel = 3 })
	p := s.addProduct(10)
	_, _, err := s.pos.CompleteSale(s.ctx, ports.SaleRequest{
		Items: []domain.OrderItem{{ProductID: p.ID, Quantity: 2, PriceAtPurchase: p.Price}},
	})
	s.Require().NoError(err)

	dash, err := s.reports.Dashboard(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(2), dash.ProductCount)
	s.Equal(int64(9), dash.UnitsOnHand)
	s.True(dash.Revenue.Equal(decimal.RequireFromString("23.60")), "revenue %s", dash.Revenue)
	s.Len(dash.LowStock, 1)
	s.Len(dash.Weekly, 7)
}

func (s *StoreSuite) TestHealthReportsLedgerHead() {
	h := s.testDB.Database.Health(s.ctx)
	s.True(h.Healthy, h.Error)
	s.Zero(h.LedgerHead)
	s.Positive(h.MaxConns)

	s.addProduct(4)
	s.Positive(s.testDB.Database.Health(s.ctx).LedgerHead)
}

func (s *StoreSuite) TestMigrateIsIdempotent() {
	version, err := db.Migrate(s.ctx, db.MigrationConfig{DatabaseURL: s.testDB.DSN}, helpers.TestLogger())
	s.Require().NoError(err)
	s.Positive(version)
}

func TestStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration tests in short mode")
	}
	suite.Run(t, new(StoreSuite))
}
