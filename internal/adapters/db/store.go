// internal/adapters/db/store.go
package db

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ammerola/storefront-ledger/internal/core/domain"
	"github.com/ammerola/storefront-ledger/internal/core/ports"
)

const uniqueViolation = "23505"

// Store is the Postgres unit of work. Repositories pick up the transaction
// bound to the context they are called with, so one set of repositories
// serves both transactional and plain reads.
type Store struct {
	db             *Database
	products       *ProductRepository
	movements      *MovementRepository
	orders         *OrderRepository
	invoices       *InvoiceRepository
	sales          *SalesRepository
	purchaseOrders *PurchaseOrderRepository
	profile        *StoreProfileRepository
	customers      *CustomerRepository
	vendors        *VendorRepository
	logger         *slog.Logger
}

var _ ports.UnitOfWork = (*Store)(nil)

// NewStore creates the Postgres-backed unit of work.
func NewStore(db *Database, logger *slog.Logger) *Store {
	return &Store{
		db:             db,
		products:       NewProductRepository(db, logger),
		movements:      NewMovementRepository(db, logger),
		orders:         NewOrderRepository(db, logger),
		invoices:       NewInvoiceRepository(db, logger),
		sales:          NewSalesRepository(db, logger),
		purchaseOrders: NewPurchaseOrderRepository(db, logger),
		profile:        NewStoreProfileRepository(db, logger),
		customers:      NewCustomerRepository(db, logger),
		vendors:        NewVendorRepository(db, logger),
		logger:         logger.With(slog.String("repository", "unit_of_work")),
	}
}

// Atomically runs fn in one transaction. A nested call joins the outer one.
func (s *Store) Atomically(ctx context.Context, fn func(ctx context.Context, repos ports.Repositories) error) error {
	if inTx(ctx) {
		return fn(ctx, s)
	}
	return s.db.Transaction(ctx, func(tx pgx.Tx) error {
		return fn(withTx(ctx, tx), s)
	})
}

func (s *Store) Products() ports.ProductRepository             { return s.products }
func (s *Store) Movements() ports.MovementRepository           { return s.movements }
func (s *Store) Orders() ports.OrderRepository                 { return s.orders }
func (s *Store) Invoices() ports.InvoiceRepository             { return s.invoices }
func (s *Store) Sales() ports.SalesRepository                  { return s.sales }
func (s *Store) PurchaseOrders() ports.PurchaseOrderRepository { return s.purchaseOrders }
func (s *Store) StoreProfile() ports.StoreProfileRepository    { return s.profile }
func (s *Store) Customers() ports.CustomerRepository           { return s.customers }
func (s *Store) Vendors() ports.VendorRepository               { return s.vendors }

// conflictOr turns a unique violation into a domain conflict.
func conflictOr(err error, entity, id string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return domain.Conflict(entity, id, "already exists")
	}
	return err
}

// execBatch queues one statement per item and sends them in a single round
// trip on the connection bound to ctx.
func execBatch[T any](ctx context.Context, q querier, sql string, items []T, args func(T) []any) error {
	if len(items) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, item := range items {
		batch.Queue(sql, args(item)...)
	}
	br := q.SendBatch(ctx, batch)
	for range items {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return err
		}
	}
	return br.Close()
}
