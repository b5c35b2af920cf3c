// internal/adapters/memory/store.go
package memory

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/ammerola/storefront-ledger/internal/core/domain"
	"github.com/ammerola/storefront-ledger/internal/core/ports"
)

// state is one consistent copy of every collection.
type state struct {
	products  map[string]domain.Product
	movements []domain.StockMovement
	seq       int64
	orders    map[string]domain.Order
	invoices  map[string]domain.Invoice
	sales     map[string]decimal.Decimal
	pos       map[string]domain.PurchaseOrder
	profile   *domain.StoreProfile
	customers map[string]domain.Customer
	vendors   map[string]domain.Vendor
}

func newState() *state {
	return &state{
		products:  make(map[string]domain.Product),
		orders:    make(map[string]domain.Order),
		invoices:  make(map[string]domain.Invoice),
		sales:     make(map[string]decimal.Decimal),
		pos:       make(map[string]domain.PurchaseOrder),
		customers: make(map[string]domain.Customer),
		vendors:   make(map[string]domain.Vendor),
	}
}

func (s *state) clone() *state {
	c := &state{
		products:  make(map[string]domain.Product, len(s.products)),
		movements: slices.Clone(s.movements),
		seq:       s.seq,
		orders:    make(map[string]domain.Order, len(s.orders)),
		invoices:  make(map[string]domain.Invoice, len(s.invoices)),
		sales:     maps.Clone(s.sales),
		pos:       make(map[string]domain.PurchaseOrder, len(s.pos)),
		customers: maps.Clone(s.customers),
		vendors:   maps.Clone(s.vendors),
	}
	for id, p := range s.products {
		c.products[id] = cloneProduct(p)
	}
	for id, o := range s.orders {
		c.orders[id] = cloneOrder(o)
	}
	for id, inv := range s.invoices {
		c.invoices[id] = cloneInvoice(inv)
	}
	for id, po := range s.pos {
		c.pos[id] = clonePurchaseOrder(po)
	}
	if s.profile != nil {
		p := *s.profile
		c.profile = &p
	}
	return c
}

// Store is an in-memory implementation of ports.UnitOfWork. Units of work run
// one at a time against a private copy of the state which replaces the live
// state on success.
type Store struct {
	txMu sync.Mutex
	mu   sync.RWMutex
	st   *state
	live *view
}

var _ ports.UnitOfWork = (*Store)(nil)

// NewStore returns an empty store.
func NewStore() *Store {
	s := &Store{st: newState()}
	s.live = &view{store: s}
	return s
}

type txKey struct{}

// Atomically runs fn against a snapshot and publishes it if fn succeeds.
func (s *Store) Atomically(ctx context.Context, fn func(ctx context.Context, repos ports.Repositories) error) error {
	if v, ok := ctx.Value(txKey{}).(*view); ok && v.store == s {
		return fn(ctx, v)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	snapshot := s.st.clone()
	s.mu.RUnlock()

	tx := &view{store: s, tx: snapshot}
	if err := fn(context.WithValue(ctx, txKey{}, tx), tx); err != nil {
		return err
	}

	s.mu.Lock()
	s.st = snapshot
	s.mu.Unlock()
	return nil
}

func (s *Store) Products() ports.ProductRepository             { return s.live.Products() }
func (s *Store) Movements() ports.MovementRepository           { return s.live.Movements() }
func (s *Store) Orders() ports.OrderRepository                 { return s.live.Orders() }
func (s *Store) Invoices() ports.InvoiceRepository             { return s.live.Invoices() }
func (s *Store) Sales() ports.SalesRepository                  { return s.live.Sales() }
func (s *Store) PurchaseOrders() ports.PurchaseOrderRepository { return s.live.PurchaseOrders() }
func (s *Store) StoreProfile() ports.StoreProfileRepository    { return s.live.StoreProfile() }
func (s *Store) Customers() ports.CustomerRepository           { return s.live.Customers() }
func (s *Store) Vendors() ports.VendorRepository               { return s.live.Vendors() }

// view binds repositories either to the live state or to a transaction snapshot.
type view struct {
	store *Store
	tx    *state
}

// bind resolves the view for ctx: a live view called from inside a unit of
// work of the same store joins that unit of work.
func (v *view) bind(ctx context.Context) *view {
	if v.tx == nil {
		if tx, ok := ctx.Value(txKey{}).(*view); ok && tx.store == v.store {
			return tx
		}
	}
	return v
}

func (v *view) read(ctx context.Context, fn func(st *state)) {
	v = v.bind(ctx)
	if v.tx != nil {
		fn(v.tx)
		return
	}
	v.store.mu.RLock()
	defer v.store.mu.RUnlock()
	fn(v.store.st)
}

// write outside a unit of work still excludes concurrent units of work so a
// committing snapshot cannot drop it.
func (v *view) write(ctx context.Context, fn func(st *state) error) error {
	v = v.bind(ctx)
	if v.tx != nil {
		return fn(v.tx)
	}
	v.store.txMu.Lock()
	defer v.store.txMu.Unlock()
	v.store.mu.Lock()
	defer v.store.mu.Unlock()
	return fn(v.store.st)
}

func (v *view) Products() ports.ProductRepository             { return productRepo{v} }
func (v *view) Movements() ports.MovementRepository           { return movementRepo{v} }
func (v *view) Orders() ports.OrderRepository                 { return orderRepo{v} }
func (v *view) Invoices() ports.InvoiceRepository             { return invoiceRepo{v} }
func (v *view) Sales() ports.SalesRepository                  { return salesRepo{v} }
func (v *view) PurchaseOrders() ports.PurchaseOrderRepository { return purchaseOrderRepo{v} }
func (v *view) StoreProfile() ports.StoreProfileRepository    { return profileRepo{v} }
func (v *view) Customers() ports.CustomerRepository           { return customerRepo{v} }
func (v *view) Vendors() ports.VendorRepository               { return vendorRepo{v} }

func cloneProduct(p domain.Product) domain.Product {
	p.CustomFields = maps.Clone(p.CustomFields)
	return p
}

func cloneOrder(o domain.Order) domain.Order {
	o.Items = slices.Clone(o.Items)
	return o
}

func cloneInvoice(inv domain.Invoice) domain.Invoice {
	inv.Items = slices.Clone(inv.Items)
	return inv
}

func clonePurchaseOrder(po domain.PurchaseOrder) domain.PurchaseOrder {
	po.Items = slices.Clone(po.Items)
	if po.ReceivedAt != nil {
		t := *po.ReceivedAt
		po.ReceivedAt = &t
	}
	return po
}
