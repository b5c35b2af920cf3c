// internal/adapters/db/products.go
package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/ammerola/storefront-ledger/internal/core/domain"
	"github.com/ammerola/storefront-ledger/internal/core/ports"
)

var productColumns = []string{
	"id", "name", "sku", "part_number", "brand", "price", "cost_price",
	"stock", "ledger_balance", "min_stock_level", "category", "description",
	"image_url", "hs_code", "uom", "vat_rate", "custom_fields", "created_at", "updated_at",
}

var productSelect = "SELECT " + strings.Join(productColumns, ", ") + " FROM products"

const insertProductSQL = `
	INSERT INTO products (
		id, name, sku, part_number, brand, price, cost_price,
		stock, ledger_balance, min_stock_level, category, description,
		image_url, hs_code, uom, vat_rate, custom_fields, created_at, updated_at
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
		$11, $12, $13, $14, $15, $16, $17, $18, $19
	)`

// ProductRepository implements ports.ProductRepository
type ProductRepository struct {
	db     *Database
	logger *slog.Logger
}

var _ ports.ProductRepository = (*ProductRepository)(nil)

// NewProductRepository creates a new product repository
func NewProductRepository(db *Database, logger *slog.Logger) *ProductRepository {
	return &ProductRepository{
		db:     db,
		logger: logger.With(slog.String("repository", "products")),
	}
}

// Create inserts a new product
func (r *ProductRepository) Create(ctx context.Context, p *domain.Product) error {
	if _, err := r.db.conn(ctx).Exec(ctx, insertProductSQL, productArgs(*p)...); err != nil {
		return conflictOr(fmt.Errorf("failed to insert product: %w", err), "product", p.ID)
	}
	return nil
}

// Update writes the editable fields. Stock columns are left to UpdateStock.
func (r *ProductRepository) Update(ctx context.Context, p *domain.Product) error {
	query := `
		UPDATE products SET
			name = $2, sku = $3, part_number = $4, brand = $5, price = $6,
			cost_price = $7, min_stock_level = $8, category = $9, description = $10,
			image_url = $11, hs_code = $12, uom = $13, vat_rate = $14,
			custom_fields = $15, updated_at = $16
		WHERE id = $1`

	tag, err := r.db.conn(ctx).Exec(ctx, query,
		p.ID, p.Name, p.SKU, p.PartNumber, p.Brand, p.Price,
		p.CostPrice, p.MinStockLevel, p.Category, p.Description,
		p.ImageURL, p.HSCode, p.UOM, p.VATRate,
		customFields(p.CustomFields), p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFound("product", p.ID)
	}
	return nil
}

// UpdateStock writes the ledger projections of a product.
func (r *ProductRepository) UpdateStock(ctx context.Context, id string, balance, stock int64, at time.Time) error {
	tag, err := r.db.conn(ctx).Exec(ctx,
		`UPDATE products SET ledger_balance = $2, stock = $3, updated_at = $4 WHERE id = $1`,
		id, balance, stock, at)
	if err != nil {
		return fmt.Errorf("failed to update stock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFound("product", id)
	}
	return nil
}

func (r *ProductRepository) FindByID(ctx context.Context, id string) (*domain.Product, error) {
	return r.findOne(ctx, productSelect+" WHERE id = $1", id)
}

// FindByIDForUpdate locks the product row until the surrounding transaction ends.
func (r *ProductRepository) FindByIDForUpdate(ctx context.Context, id string) (*domain.Product, error) {
	return r.findOne(ctx, productSelect+" WHERE id = $1 FOR UPDATE", id)
}

// FindByName matches the name case-insensitively, oldest product first.
func (r *ProductRepository) FindByName(ctx context.Context, name string) (*domain.Product, error) {
	return r.findOne(ctx,
		productSelect+" WHERE lower(name) = lower($1) ORDER BY lower(name), id LIMIT 1",
		strings.TrimSpace(name))
}

func (r *ProductRepository) findOne(ctx context.Context, query string, args ...any) (*domain.Product, error) {
	p, err := scanProduct(r.db.conn(ctx).QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return p, nil
}

// List returns one page of products and the number of matches.
func (r *ProductRepository) List(ctx context.Context, f domain.ProductFilter) ([]domain.Product, int64, error) {
	f.Normalize()

	qb := squirrel.Select(append(productColumns, "COUNT(*) OVER() AS total_count")...).
		From("products").
		PlaceholderFormat(squirrel.Dollar)

	if f.Search != "" {
		pattern := "%" + strings.ToLower(f.Search) + "%"
		qb = qb.Where(squirrel.Or{
			squirrel.Like{"lower(name)": pattern},
			squirrel.Like{"lower(sku)": pattern},
		})
	}
	if f.Category != "" {
		qb = qb.Where("lower(category) = lower(?)", f.Category)
	}
	if f.LowStock {
		qb = qb.Where("min_stock_level > 0 AND stock <= min_stock_level")
	}

	query, args, err := qb.OrderBy("lower(name)", "id").
		Limit(uint64(f.Limit)).
		Offset(uint64(f.Offset)).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := r.db.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	products := make([]domain.Product, 0, f.Limit)
	var total int64
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(append(productDest(&p), &total)...); err != nil {
			return nil, 0, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate products: %w", err)
	}
	return products, total, nil
}

// Delete removes the product row. Its movements stay in the ledger.
func (r *ProductRepository) Delete(ctx context.Context, id string) (bool, error) {
	tag, err := r.db.conn(ctx).Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete product: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *ProductRepository) All(ctx context.Context) ([]domain.Product, error) {
	rows, err := r.db.conn(ctx).Query(ctx, productSelect+" ORDER BY lower(name), id")
	if err != nil {
		return nil, fmt.Errorf("failed to read products: %w", err)
	}
	products, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Product, error) {
		var p domain.Product
		err := row.Scan(productDest(&p)...)
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan products: %w", err)
	}
	return products, nil
}

// ReplaceAll swaps the whole catalog. Call it inside a unit of work.
func (r *ProductRepository) ReplaceAll(ctx context.Context, products []domain.Product) error {
	q := r.db.conn(ctx)
	if _, err := q.Exec(ctx, `DELETE FROM products`); err != nil {
		return fmt.Errorf("failed to clear products: %w", err)
	}
	if err := execBatch(ctx, q, insertProductSQL, products, productArgs); err != nil {
		return fmt.Errorf("failed to restore products: %w", err)
	}
	r.logger.InfoContext(ctx, "products replaced", slog.Int("count", len(products)))
	return nil
}

func productArgs(p domain.Product) []any {
	return []any{
		p.ID, p.Name, p.SKU, p.PartNumber, p.Brand, p.Price, p.CostPrice,
		p.Stock, p.LedgerBalance, p.MinStockLevel, p.Category, p.Description,
		p.ImageURL, p.HSCode, p.UOM, p.VATRate, customFields(p.CustomFields),
		p.CreatedAt, p.UpdatedAt,
	}
}

func productDest(p *domain.Product) []any {
	return []any{
		&p.ID, &p.Name, &p.SKU, &p.PartNumber, &p.Brand, &p.Price, &p.CostPrice,
		&p.Stock, &p.LedgerBalance, &p.MinStockLevel, &p.Category, &p.Description,
		&p.ImageURL, &p.HSCode, &p.UOM, &p.VATRate, &p.CustomFields,
		&p.CreatedAt, &p.UpdatedAt,
	}
}

func scanProduct(row pgx.Row) (*domain.Product, error) {
	var p domain.Product
	if err := row.Scan(productDest(&p)...); err != nil {
		return nil, err
	}
	if len(p.CustomFields) == 0 {
		p.CustomFields = nil
	}
	return &p, nil
}

// customFields keeps the jsonb column an object rather than null.
func customFields(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
