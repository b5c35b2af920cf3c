// internal/adapters/db/purchase_orders.go
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

const purchaseOrderSelect = `
	SELECT id, vendor_id, status, items, total, created_at, received_at
	FROM purchase_orders`

const insertPurchaseOrderSQL = `
	INSERT INTO purchase_orders (id, vendor_id, status, items, total, created_at, received_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)`

// PurchaseOrderRepository implements ports.PurchaseOrderRepository
type PurchaseOrderRepository struct {
	db     *Database
	logger *slog.Logger
}

var _ ports.PurchaseOrderRepository = (*PurchaseOrderRepository)(nil)

// NewPurchaseOrderRepository creates a new purchase order repository
func NewPurchaseOrderRepository(db *Database, logger *slog.Logger) *PurchaseOrderRepository {
	return &PurchaseOrderRepository{
		db:     db,
		logger: logger.With(slog.String("repository", "purchase_orders")),
	}
}

func (r *PurchaseOrderRepository) Create(ctx context.Context, po *domain.PurchaseOrder) error {
	if _, err := r.db.conn(ctx).Exec(ctx, insertPurchaseOrderSQL, purchaseOrderArgs(*po)...); err != nil {
		return conflictOr(fmt.Errorf("failed to insert purchase order: %w", err), "purchase_order", po.ID)
	}
	return nil
}

// Update rewrites status, items and receipt time. Items change on receive
// when lines are matched to products.
func (r *PurchaseOrderRepository) Update(ctx context.Context, po *domain.PurchaseOrder) error {
	tag, err := r.db.conn(ctx).Exec(ctx, `
		UPDATE purchase_orders
		SET status = $2, items = $3, total = $4, received_at = $5
		WHERE id = $1`,
		po.ID, string(po.Status), po.Items, po.Total, po.ReceivedAt)
	if err != nil {
		return fmt.Errorf("failed to update purchase order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFound("purchase_order", po.ID)
	}
	return nil
}

func (r *PurchaseOrderRepository) FindByID(ctx context.Context, id string) (*domain.PurchaseOrder, error) {
	return r.findOne(ctx, purchaseOrderSelect+" WHERE id = $1", id)
}

func (r *PurchaseOrderRepository) FindByIDForUpdate(ctx context.Context, id string) (*domain.PurchaseOrder, error) {
	return r.findOne(ctx, purchaseOrderSelect+" WHERE id = $1 FOR UPDATE", id)
}

func (r *PurchaseOrderRepository) findOne(ctx context.Context, query string, args ...any) (*domain.PurchaseOrder, error) {
	var po domain.PurchaseOrder
	err := r.db.conn(ctx).QueryRow(ctx, query, args...).Scan(purchaseOrderDest(&po)...)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get purchase order: %w", err)
	}
	return &po, nil
}

func (r *PurchaseOrderRepository) List(ctx context.Context) ([]domain.PurchaseOrder, error) {
	return r.All(ctx)
}

// All returns purchase orders newest first.
func (r *PurchaseOrderRepository) All(ctx context.Context) ([]domain.PurchaseOrder, error) {
	rows, err := r.db.conn(ctx).Query(ctx, purchaseOrderSelect+" ORDER BY created_at DESC, id DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to read purchase orders: %w", err)
	}
	pos, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.PurchaseOrder, error) {
		var po domain.PurchaseOrder
		err := row.Scan(purchaseOrderDest(&po)...)
		return po, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan purchase orders: %w", err)
	}
	return pos, nil
}

func (r *PurchaseOrderRepository) ReplaceAll(ctx context.Context, pos []domain.PurchaseOrder) error {
	q := r.db.conn(ctx)
	if _, err := q.Exec(ctx, `DELETE FROM purchase_orders`); err != nil {
		return fmt.Errorf("failed to clear purchase orders: %w", err)
	}
	if err := execBatch(ctx, q, insertPurchaseOrderSQL, pos, purchaseOrderArgs); err != nil {
		return fmt.Errorf("failed to restore purchase orders: %w", err)
	}
	r.logger.InfoContext(ctx, "purchase orders replaced", slog.Int("count", len(pos)))
	return nil
}

func purchaseOrderArgs(po domain.PurchaseOrder) []any {
	items := po.Items
	if items == nil {
		items = []domain.PurchaseOrderItem{}
	}
	return []any{po.ID, po.VendorID, string(po.Status), items, po.Total, po.CreatedAt, po.ReceivedAt}
}

func purchaseOrderDest(po *domain.PurchaseOrder) []any {
	return []any{&po.ID, &po.VendorID, &po.Status, &po.Items, &po.Total, &po.CreatedAt, &po.ReceivedAt}
}
