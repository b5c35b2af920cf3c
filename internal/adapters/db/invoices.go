// internal/adapters/db/invoices.go
package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/ammerola/storefront-ledger/internal/core/domain"
	"github.com/ammerola/storefront-ledger/internal/core/ports"
)

const invoiceSelect = `
	SELECT id, order_id, fiscal_signature, obr_time, customer_name, tin, items,
	       subtotal, vat, vat_rate, total, currency, created_at
	FROM invoices`

const insertInvoiceSQL = `
	INSERT INTO invoices (
		id, order_id, fiscal_signature, obr_time, customer_name, tin, items,
		subtotal, vat, vat_rate, total, currency, created_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

// InvoiceRepository implements ports.InvoiceRepository. The unique index on
// order_id keeps one invoice per order.
type InvoiceRepository struct {
	db     *Database
	logger *slog.Logger
}

var _ ports.InvoiceRepository = (*InvoiceRepository)(nil)

// NewInvoiceRepository creates a new invoice repository
func NewInvoiceRepository(db *Database, logger *slog.Logger) *InvoiceRepository {
	return &InvoiceRepository{
		db:     db,
		logger: logger.With(slog.String("repository", "invoices")),
	}
}

func (r *InvoiceRepository) Create(ctx context.Context, inv *domain.Invoice) error {
	if _, err := r.db.conn(ctx).Exec(ctx, insertInvoiceSQL, invoiceArgs(*inv)...); err != nil {
		return conflictOr(fmt.Errorf("failed to insert invoice: %w", err), "invoice", inv.OrderID)
	}
	return nil
}

func (r *InvoiceRepository) FindByID(ctx context.Context, id string) (*domain.Invoice, error) {
	return r.findOne(ctx, invoiceSelect+" WHERE id = $1", id)
}

func (r *InvoiceRepository) FindByOrderID(ctx context.Context, orderID string) (*domain.Invoice, error) {
	return r.findOne(ctx, invoiceSelect+" WHERE order_id = $1", orderID)
}

func (r *InvoiceRepository) findOne(ctx context.Context, query string, args ...any) (*domain.Invoice, error) {
	var inv domain.Invoice
	err := r.db.conn(ctx).QueryRow(ctx, query, args...).Scan(invoiceDest(&inv)...)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}
	return &inv, nil
}

func (r *InvoiceRepository) All(ctx context.Context) ([]domain.Invoice, error) {
	rows, err := r.db.conn(ctx).Query(ctx, invoiceSelect+" ORDER BY created_at, id")
	if err != nil {
		return nil, fmt.Errorf("failed to read invoices: %w", err)
	}
	invoices, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Invoice, error) {
		var inv domain.Invoice
		err := row.Scan(invoiceDest(&inv)...)
		return inv, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan invoices: %w", err)
	}
	return invoices, nil
}

func (r *InvoiceRepository) ReplaceAll(ctx context.Context, invoices []domain.Invoice) error {
	q := r.db.conn(ctx)
	if _, err := q.Exec(ctx, `DELETE FROM invoices`); err != nil {
		return fmt.Errorf("failed to clear invoices: %w", err)
	}
	if err := execBatch(ctx, q, insertInvoiceSQL, invoices, invoiceArgs); err != nil {
		return fmt.Errorf("failed to restore invoices: %w", err)
	}
	r.logger.InfoContext(ctx, "invoices replaced", slog.Int("count", len(invoices)))
	return nil
}

func invoiceArgs(inv domain.Invoice) []any {
	items := inv.Items
	if items == nil {
		items = []domain.OrderItem{}
	}
	return []any{
		inv.ID, inv.OrderID, inv.FiscalSignature, inv.OBRTime, inv.CustomerName, inv.TIN,
		items, inv.Subtotal, inv.VAT, inv.VATRate, inv.Total, inv.Currency, inv.CreatedAt,
	}
}

func invoiceDest(inv *domain.Invoice) []any {
	return []any{
		&inv.ID, &inv.OrderID, &inv.FiscalSignature, &inv.OBRTime, &inv.CustomerName, &inv.TIN,
		&inv.Items, &inv.Subtotal, &inv.VAT, &inv.VATRate, &inv.Total, &inv.Currency, &inv.CreatedAt,
	}
}
