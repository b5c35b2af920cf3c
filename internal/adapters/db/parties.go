// internal/adapters/db/parties.go
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

// CustomerRepository implements ports.CustomerRepository
type CustomerRepository struct {
	db     *Database
	logger *slog.Logger
}

var _ ports.CustomerRepository = (*CustomerRepository)(nil)

// NewCustomerRepository creates a new customer repository
func NewCustomerRepository(db *Database, logger *slog.Logger) *CustomerRepository {
	return &CustomerRepository{
		db:     db,
		logger: logger.With(slog.String("repository", "customers")),
	}
}

const insertCustomerSQL = `
	INSERT INTO customers (id, name, email, phone, nif, address, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)`

func customerArgs(c domain.Customer) []any {
	return []any{c.ID, c.Name, c.Email, c.Phone, c.NIF, c.Address, c.CreatedAt}
}

func (r *CustomerRepository) Create(ctx context.Context, c *domain.Customer) error {
	if _, err := r.db.conn(ctx).Exec(ctx, insertCustomerSQL, customerArgs(*c)...); err != nil {
		return conflictOr(fmt.Errorf("failed to insert customer: %w", err), "customer", c.ID)
	}
	return nil
}

func (r *CustomerRepository) FindByID(ctx context.Context, id string) (*domain.Customer, error) {
	var c domain.Customer
	err := r.db.conn(ctx).QueryRow(ctx,
		`SELECT id, name, email, phone, nif, address, created_at FROM customers WHERE id = $1`, id,
	).Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.NIF, &c.Address, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}
	return &c, nil
}

func (r *CustomerRepository) List(ctx context.Context) ([]domain.Customer, error) {
	rows, err := r.db.conn(ctx).Query(ctx,
		`SELECT id, name, email, phone, nif, address, created_at FROM customers ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list customers: %w", err)
	}
	customers, err := pgx.CollectRows(rows, pgx.RowToStructByPos[domain.Customer])
	if err != nil {
		return nil, fmt.Errorf("failed to scan customers: %w", err)
	}
	return customers, nil
}

func (r *CustomerRepository) ReplaceAll(ctx context.Context, customers []domain.Customer) error {
	q := r.db.conn(ctx)
	if _, err := q.Exec(ctx, `DELETE FROM customers`); err != nil {
		return fmt.Errorf("failed to clear customers: %w", err)
	}
	if err := execBatch(ctx, q, insertCustomerSQL, customers, customerArgs); err != nil {
		return fmt.Errorf("failed to restore customers: %w", err)
	}
	return nil
}

// VendorRepository implements ports.VendorRepository
type VendorRepository struct {
	db     *Database
	logger *slog.Logger
}

var _ ports.VendorRepository = (*VendorRepository)(nil)

// NewVendorRepository creates a new vendor repository
func NewVendorRepository(db *Database, logger *slog.Logger) *VendorRepository {
	return &VendorRepository{
		db:     db,
		logger: logger.With(slog.String("repository", "vendors")),
	}
}

const insertVendorSQL = `
	INSERT INTO vendors (id, name, contact_name, email, phone, address, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)`

func vendorArgs(v domain.Vendor) []any {
	return []any{v.ID, v.Name, v.ContactName, v.Email, v.Phone, v.Address, v.CreatedAt}
}

func (r *VendorRepository) Create(ctx context.Context, v *domain.Vendor) error {
	if _, err := r.db.conn(ctx).Exec(ctx, insertVendorSQL, vendorArgs(*v)...); err != nil {
		return conflictOr(fmt.Errorf("failed to insert vendor: %w", err), "vendor", v.ID)
	}
	return nil
}

func (r *VendorRepository) FindByID(ctx context.Context, id string) (*domain.Vendor, error) {
	var v domain.Vendor
	err := r.db.conn(ctx).QueryRow(ctx,
		`SELECT id, name, contact_name, email, phone, address, created_at FROM vendors WHERE id = $1`, id,
	).Scan(&v.ID, &v.Name, &v.ContactName, &v.Email, &v.Phone, &v.Address, &v.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get vendor: %w", err)
	}
	return &v, nil
}

func (r *VendorRepository) List(ctx context.Context) ([]domain.Vendor, error) {
	rows, err := r.db.conn(ctx).Query(ctx,
		`SELECT id, name, contact_name, email, phone, address, created_at FROM vendors ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list vendors: %w", err)
	}
	vendors, err := pgx.CollectRows(rows, pgx.RowToStructByPos[domain.Vendor])
	if err != nil {
		return nil, fmt.Errorf("failed to scan vendors: %w", err)
	}
	return vendors, nil
}

func (r *VendorRepository) ReplaceAll(ctx context.Context, vendors []domain.Vendor) error {
	q := r.db.conn(ctx)
	if _, err := q.Exec(ctx, `DELETE FROM vendors`); err != nil {
		return fmt.Errorf("failed to clear vendors: %w", err)
	}
	if err := execBatch(ctx, q, insertVendorSQL, vendors, vendorArgs); err != nil {
		return fmt.Errorf("failed to restore vendors: %w", err)
	}
	return nil
}
