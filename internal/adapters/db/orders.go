// internal/adapters/db/orders.go
package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/ammerola/storefront-ledger/internal/core/domain"
	"github.com/ammerola/storefront-ledger/internal/core/ports"
)

var orderColumns = []string{
	"id", "channel", "date", "status", "items", "subtotal", "tax_amount", "total",
	"currency", "customer_name", "customer_nif", "payment_method", "shipping_address",
	"refund_reason", "fiscal_signature", "ebms_response_id", "invoice_id",
	"created_at", "updated_at",
}

const insertOrderSQL = `
	INSERT INTO orders (
		id, channel, date, status, items, subtotal, tax_amount, total,
		currency, customer_name, customer_nif, payment_method, shipping_address,
		refund_reason, fiscal_signature, ebms_response_id, invoice_id,
		created_at, updated_at
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
		$11, $12, $13, $14, $15, $16, $17, $18, $19
	)`

// OrderRepository implements ports.OrderRepository. Items are stored as a
// jsonb snapshot; they never change after insert.
type OrderRepository struct {
	db     *Database
	logger *slog.Logger
}

var _ ports.OrderRepository = (*OrderRepository)(nil)

// NewOrderRepository creates a new order repository
func NewOrderRepository(db *Database, logger *slog.Logger) *OrderRepository {
	return &OrderRepository{
		db:     db,
		logger: logger.With(slog.String("repository", "orders")),
	}
}

func (r *OrderRepository) Create(ctx context.Context, o *domain.Order) error {
	if _, err := r.db.conn(ctx).Exec(ctx, insertOrderSQL, orderArgs(*o)...); err != nil {
		return conflictOr(fmt.Errorf("failed to insert order: %w", err), "order", o.ID)
	}
	return nil
}

// UpdateStatus writes the mutable fields of an order.
func (r *OrderRepository) UpdateStatus(ctx context.Context, o *domain.Order) error {
	tag, err := r.db.conn(ctx).Exec(ctx, `
		UPDATE orders
		SET status = $2, refund_reason = $3, invoice_id = $4, updated_at = $5
		WHERE id = $1`,
		o.ID, string(o.Status), o.RefundReason, o.InvoiceID, o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFound("order", o.ID)
	}
	return nil
}

func (r *OrderRepository) FindByID(ctx context.Context, id string) (*domain.Order, error) {
	return r.findOne(ctx, false, id)
}

func (r *OrderRepository) FindByIDForUpdate(ctx context.Context, id string) (*domain.Order, error) {
	return r.findOne(ctx, true, id)
}

func (r *OrderRepository) findOne(ctx context.Context, forUpdate bool, id string) (*domain.Order, error) {
	qb := squirrel.Select(orderColumns...).
		From("orders").
		Where(squirrel.Eq{"id": id}).
		PlaceholderFormat(squirrel.Dollar)
	if forUpdate {
		qb = qb.Suffix("FOR UPDATE")
	}
	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	var o domain.Order
	err = r.db.conn(ctx).QueryRow(ctx, query, args...).Scan(orderDest(&o)...)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return &o, nil
}

// List returns one page of orders, newest first.
func (r *OrderRepository) List(ctx context.Context, f domain.OrderFilter) ([]domain.Order, int64, error) {
	f.Normalize()

	qb := squirrel.Select(append(orderColumns, "COUNT(*) OVER() AS total_count")...).
		From("orders").
		PlaceholderFormat(squirrel.Dollar)

	if f.Status != "" {
		qb = qb.Where(squirrel.Eq{"status": string(f.Status)})
	}
	if f.Channel != "" {
		qb = qb.Where(squirrel.Eq{"channel": string(f.Channel)})
	}
	if f.From != nil {
		qb = qb.Where(squirrel.GtOrEq{"created_at": *f.From})
	}
	if f.To != nil {
		qb = qb.Where(squirrel.LtOrEq{"created_at": *f.To})
	}

	query, args, err := qb.OrderBy("created_at DESC", "id DESC").
		Limit(uint64(f.Limit)).
		Offset(uint64(f.Offset)).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := r.db.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0, f.Limit)
	var total int64
	for rows.Next() {
		var o domain.Order
		if err := rows.Scan(append(orderDest(&o), &total)...); err != nil {
			return nil, 0, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate orders: %w", err)
	}
	return orders, total, nil
}

func (r *OrderRepository) All(ctx context.Context) ([]domain.Order, error) {
	query, args, err := squirrel.Select(orderColumns...).
		From("orders").
		OrderBy("created_at DESC", "id DESC").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}
	rows, err := r.db.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to read orders: %w", err)
	}
	orders, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Order, error) {
		var o domain.Order
		err := row.Scan(orderDest(&o)...)
		return o, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan orders: %w", err)
	}
	return orders, nil
}

func (r *OrderRepository) ReplaceAll(ctx context.Context, orders []domain.Order) error {
	q := r.db.conn(ctx)
	if _, err := q.Exec(ctx, `DELETE FROM orders`); err != nil {
		return fmt.Errorf("failed to clear orders: %w", err)
	}
	if err := execBatch(ctx, q, insertOrderSQL, orders, orderArgs); err != nil {
		return fmt.Errorf("failed to restore orders: %w", err)
	}
	r.logger.InfoContext(ctx, "orders replaced", slog.Int("count", len(orders)))
	return nil
}

func orderArgs(o domain.Order) []any {
	items := o.Items
	if items == nil {
		items = []domain.OrderItem{}
	}
	return []any{
		o.ID, string(o.Channel), o.Date, string(o.Status), items,
		o.Subtotal, o.TaxAmount, o.Total, o.Currency, o.CustomerName,
		o.CustomerNIF, o.PaymentMethod, o.ShippingAddress, o.RefundReason,
		o.FiscalSignature, o.EBMSResponseID, o.InvoiceID, o.CreatedAt, o.UpdatedAt,
	}
}

// orderDest relies on pgx scanning text columns into the string-based
// Channel and OrderStatus types.
func orderDest(o *domain.Order) []any {
	return []any{
		&o.ID, &o.Channel, &o.Date, &o.Status, &o.Items,
		&o.Subtotal, &o.TaxAmount, &o.Total, &o.Currency, &o.CustomerName,
		&o.CustomerNIF, &o.PaymentMethod, &o.ShippingAddress, &o.RefundReason,
		&o.FiscalSignature, &o.EBMSResponseID, &o.InvoiceID, &o.CreatedAt, &o.UpdatedAt,
	}
}
