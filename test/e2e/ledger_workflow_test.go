//go:build e2e
// +build e2e

package e2e_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	redis_a "github.com/ammerola/storefront-ledger/internal/adapters/redis_adapter"
	"github.com/ammerola/storefront-ledger/internal/core/domain"
	"github.com/ammerola/storefront-ledger/internal/handlers"
	"github.com/ammerola/storefront-ledger/test/helpers"
)

type LedgerE2ESuite struct {
	suite.Suite
	server    *httptest.Server
	client    *http.Client
	baseURL   string
	services  *helpers.TestServices
	testRedis *helpers.TestRedis
}

func (s *LedgerE2ESuite) SetupTest() {
	s.testRedis = helpers.SetupTestRedis(s.T())
	s.services = helpers.NewTestServices(s.T())
	s.server = s.startTestServer()
	s.client = &http.Client{Timeout: 10 * time.Second}
	s.baseURL = s.server.URL + "/api/v1"
}

func (s *LedgerE2ESuite) TearDownTest() {
	s.server.Close()
}

func (s *LedgerE2ESuite) TestCompleteLedgerWorkflow() {
	// 1. Create a product with opening stock
	resp := s.makeRequest("POST", "/products", map[string]any{
		"name":         "Timing Belt",
		"sku":          "TB-330",
		"price":        "40.00",
		"costPrice":    "22.00",
		"initialStock": 4,
	})
	s.Require().Equal(http.StatusCreated, resp.StatusCode)
	var product domain.Product
	s.decode(resp, &product)

	// 2. Receive a purchase order from a vendor
	resp = s.makeRequest("POST", "/vendors", map[string]any{"name": "Belt Supply Co"})
	s.Require().Equal(http.StatusCreated, resp.StatusCode)
	var vendor domain.Vendor
	s.decode(resp, &vendor)

	resp = s.makeRequest("POST", "/purchase-orders", map[string]any{
		"vendorId": vendor.ID,
		"items": []map[string]any{
			{"productId": product.ID, "productName": product.Name, "quantity": 6, "cost": "21.00"},
		},
	})
	s.Require().Equal(http.StatusCreated, resp.StatusCode)
	var po domain.PurchaseOrder
	s.decode(resp, &po)
	s.Equal(domain.PODraft, po.Status)

	resp = s.makeRequest("POST", "/purchase-orders/"+po.ID+"/receive", nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.decode(resp, &po)
	s.Equal(domain.POReceived, po.Status)
	s.Equal(int64(10), s.stockOf(product.ID))

	resp = s.makeRequest("POST", "/purchase-orders/"+po.ID+"/receive", nil)
	s.Equal(http.StatusConflict, resp.StatusCode)
	resp.Body.Close()
	s.Equal(int64(10), s.stockOf(product.ID), "a purchase order is received once")

	// 3. Sell at the counter
	resp = s.makeRequest("POST", "/pos/sales", map[string]any{
		"items":         []map[string]any{{"productId": product.ID, "quantity": 3, "priceAtPurchase": "40.00"}},
		"paymentMethod": "cash",
	}, "Idempotency-Key", "e2e-counter-1")
	s.Require().Equal(http.StatusCreated, resp.StatusCode)
	var sale struct {
		Order   domain.Order   `json:"order"`
		Invoice domain.Invoice `json:"invoice"`
	}
	s.decode(resp, &sale)
	s.True(sale.Invoice.Total.Equal(decimal.RequireFromString("141.60")), "total %s", sale.Invoice.Total)
	s.Equal(int64(7), s.stockOf(product.ID))

	// 4. Place a storefront order and cancel it
	resp = s.makeRequest("POST", "/checkout", map[string]any{
		"items":         []map[string]any{{"productId": product.ID, "quantity": 2, "price": "40.00"}},
		"paymentMethod": "card",
	})
	s.Require().Equal(http.StatusCreated, resp.StatusCode)
	var order domain.Order
	s.decode(resp, &order)
	s.Equal(int64(5), s.stockOf(product.ID))

	resp = s.makeRequest("POST", "/orders/"+order.ID+"/cancel", map[string]any{"reason": "customer changed mind"})
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	resp.Body.Close()
	s.Equal(int64(7), s.stockOf(product.ID))

	// 5. Back up, lose stock, restore
	resp = s.makeRequest("GET", "/backup", nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	document, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	s.Require().NoError(err)

	resp = s.makeRequest("POST", "/products/"+product.ID+"/movements", map[string]any{
		"quantity": -7,
		"type":     "adjustment",
		"reason":   "flood damage",
	})
	s.Require().Equal(http.StatusCreated, resp.StatusCode)
	resp.Body.Close()
	s.Equal(int64(0), s.stockOf(product.ID))

	resp = s.makeRaw("POST", "/restore", document)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	resp.Body.Close()
	s.Equal(int64(7), s.stockOf(product.ID))

	// 6. The ledger still explains the stock level
	resp = s.makeRequest("GET", "/products/"+product.ID+"/reconcile", nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	var rec domain.Reconciliation
	s.decode(resp, &rec)
	s.True(rec.Consistent)
	s.Equal(int64(7), rec.MovementSum)

	s.services.AssertLedgerConsistent(s.T())
}

func (s *LedgerE2ESuite) TestConcurrentCounterSales() {
	product := s.services.AddProduct(s.T(), 20)

	const sales = 25
	codes := make(chan int, sales)
	for i := 0; i < sales; i++ {
		go func(i int) {
			resp := s.makeRequest("POST", "/pos/sales", map[string]any{
				"items":         []map[string]any{{"productId": product.ID, "quantity": 1, "priceAtPurchase": "10.00"}},
				"paymentMethod": "cash",
			}, "Idempotency-Key", fmt.Sprintf("e2e-concurrent-%d", i))
			resp.Body.Close()
			codes <- resp.StatusCode
		}(i)
	}

	created := 0
	for i := 0; i < sales; i++ {
		if <-codes == http.StatusCreated {
			created++
		}
	}

	s.Equal(20, created, "stock never goes negative")
	s.Equal(int64(0), s.stockOf(product.ID))
	s.services.AssertLedgerConsistent(s.T())
}

func TestLedgerE2E(t *testing.T) {
	suite.Run(t, new(LedgerE2ESuite))
}

func (s *LedgerE2ESuite) startTestServer() *httptest.Server {
	svc := s.services
	logger := helpers.TestLogger()
	cache := redis_a.NewCache(s.testRedis.Client, time.Minute, logger)

	router := handlers.NewRouter(handlers.Services{
		Ledger:    svc.Ledger,
		Orders:    svc.Orders,
		Checkout:  svc.Checkout,
		Carts:     svc.Cart,
		POS:       svc.POS,
		Receiving: svc.Receiving,
		Catalog:   svc.Catalog,
		Importer:  svc.Importer,
		Backup:    svc.Backup,
		Store:     svc.Shop,
		Reports:   svc.Reports,
	}, handlers.RouterOptions{
		Cache:          cache,
		ExportTTL:      time.Minute,
		Idempotency:    redis_a.NewIdempotencyStore(cache, time.Hour),
		Version:        "e2e",
		Environment:    "test",
		MaxUploadBytes: 1 << 20,
		UploadDir:      s.T().TempDir(),
		RequestTimeout: 5 * time.Second,
	}, logger)

	return httptest.NewServer(router)
}

func (s *LedgerE2ESuite) makeRequest(method, path string, body any, headers ...string) *http.Response {
	var data []byte
	if body != nil {
		var err error
		data, err = json.Marshal(body)
		s.Require().NoError(err)
	}
	return s.makeRaw(method, path, data, headers...)
}

func (s *LedgerE2ESuite) makeRaw(method, path string, data []byte, headers ...string) *http.Response {
	req, err := http.NewRequest(method, s.baseURL+path, bytes.NewReader(data))
	s.Require().NoError(err)
	if data != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-User-ID", "e2e")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := s.client.Do(req)
	s.Require().NoError(err)
	return resp
}

func (s *LedgerE2ESuite) decode(resp *http.Response, v any) {
	defer resp.Body.Close()
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(v))
}

func (s *LedgerE2ESuite) stockOf(productID string) int64 {
	resp := s.makeRequest("GET", "/products/"+productID, nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	var p domain.Product
	s.decode(resp, &p)
	return p.Stock
}
