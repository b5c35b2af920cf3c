// internal/adapters/db/movements.go
package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/ammerola/storefront-ledger/internal/core/domain"
	"github.com/ammerola/storefront-ledger/internal/core/ports"
)

const movementSelect = `SELECT seq, id, product_id, quantity, type, reason, user_id, created_at FROM stock_movements`

// MovementRepository is the append-only ledger table. The table itself
// rejects UPDATE and DELETE; only a full restore truncates it.
type MovementRepository struct {
	db     *Database
	logger *slog.Logger
}

var _ ports.MovementRepository = (*MovementRepository)(nil)

// NewMovementRepository creates a new movement repository
func NewMovementRepository(db *Database, logger *slog.Logger) *MovementRepository {
	return &MovementRepository{
		db:     db,
		logger: logger.With(slog.String("repository", "stock_movements")),
	}
}

// Append inserts the movement and stores its ledger position in m.Seq.
func (r *MovementRepository) Append(ctx context.Context, m *domain.StockMovement) error {
	query := `
		INSERT INTO stock_movements (id, product_id, quantity, type, reason, user_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING seq`

	err := r.db.conn(ctx).QueryRow(ctx, query,
		m.ID, m.ProductID, m.Quantity, string(m.Type), m.Reason, m.UserID, m.CreatedAt,
	).Scan(&m.Seq)
	if err != nil {
		return conflictOr(fmt.Errorf("failed to append movement: %w", err), "stock_movement", m.ID)
	}
	return nil
}

func (r *MovementRepository) Head(ctx context.Context) (int64, error) {
	var head int64
	if err := r.db.conn(ctx).QueryRow(ctx, `SELECT COALESCE(MAX(seq), 0) FROM stock_movements`).Scan(&head); err != nil {
		return 0, fmt.Errorf("failed to read ledger head: %w", err)
	}
	return head, nil
}

func (r *MovementRepository) ListByProduct(ctx context.Context, productID string, beforeSeq int64, limit int) ([]domain.StockMovement, error) {
	rows, err := r.db.conn(ctx).Query(ctx,
		movementSelect+` WHERE product_id = $1 AND seq < $2 ORDER BY seq DESC LIMIT $3`,
		productID, beforeSeq, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list movements: %w", err)
	}
	return collectMovements(rows)
}

func (r *MovementRepository) SumByProduct(ctx context.Context, productID string) (int64, int64, error) {
	var sum, count int64
	err := r.db.conn(ctx).QueryRow(ctx,
		`SELECT COALESCE(SUM(quantity), 0), COUNT(*) FROM stock_movements WHERE product_id = $1`,
		productID).Scan(&sum, &count)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to sum movements: %w", err)
	}
	return sum, count, nil
}

// List returns movements newest first.
func (r *MovementRepository) List(ctx context.Context, f domain.MovementFilter) ([]domain.StockMovement, error) {
	qb := squirrel.Select("seq", "id", "product_id", "quantity", "type", "reason", "user_id", "created_at").
		From("stock_movements").
		PlaceholderFormat(squirrel.Dollar)

	if f.ProductID != "" {
		qb = qb.Where(squirrel.Eq{"product_id": f.ProductID})
	}
	if f.Type != "" {
		qb = qb.Where(squirrel.Eq{"type": string(f.Type)})
	}
	if f.From != nil {
		qb = qb.Where(squirrel.GtOrEq{"created_at": *f.From})
	}
	if f.To != nil {
		qb = qb.Where(squirrel.LtOrEq{"created_at": *f.To})
	}
	qb = qb.OrderBy("seq DESC")
	if f.Limit > 0 {
		qb = qb.Limit(uint64(f.Limit))
	}

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}
	rows, err := r.db.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list movements: %w", err)
	}
	return collectMovements(rows)
}

func (r *MovementRepository) All(ctx context.Context) ([]domain.StockMovement, error) {
	rows, err := r.db.conn(ctx).Query(ctx, movementSelect+` ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger: %w", err)
	}
	return collectMovements(rows)
}

// ReplaceAll truncates the ledger and appends the given movements in order,
// renumbering them from 1.
func (r *MovementRepository) ReplaceAll(ctx context.Context, movements []domain.StockMovement) error {
	q := r.db.conn(ctx)
	if _, err := q.Exec(ctx, `TRUNCATE stock_movements RESTART IDENTITY`); err != nil {
		return fmt.Errorf("failed to truncate ledger: %w", err)
	}

	insert := `
		INSERT INTO stock_movements (id, product_id, quantity, type, reason, user_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	err := execBatch(ctx, q, insert, movements, func(m domain.StockMovement) []any {
		return []any{m.ID, m.ProductID, m.Quantity, string(m.Type), m.Reason, m.UserID, m.CreatedAt}
	})
	if err != nil {
		return fmt.Errorf("failed to restore ledger: %w", err)
	}

	r.logger.InfoContext(ctx, "ledger replaced", slog.Int("count", len(movements)))
	return nil
}

func collectMovements(rows pgx.Rows) ([]domain.StockMovement, error) {
	movements, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.StockMovement, error) {
		var m domain.StockMovement
		var typ string
		err := row.Scan(&m.Seq, &m.ID, &m.ProductID, &m.Quantity, &typ, &m.Reason, &m.UserID, &m.CreatedAt)
		m.Type = domain.MovementType(typ)
		return m, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan movements: %w", err)
	}
	return movements, nil
}
