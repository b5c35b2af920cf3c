// internal/core/services/store.go
package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ammerola/storefront-ledger/internal/core/domain"
	"github.com/ammerola/storefront-ledger/internal/core/ports"
)

// StoreService manages the store profile, customers and vendors.
type StoreService struct {
	uow    ports.UnitOfWork
	logger *slog.Logger
}

var _ ports.StoreService = (*StoreService)(nil)

// NewStoreService creates a new store service
func NewStoreService(uow ports.UnitOfWork, logger *slog.Logger) *StoreService {
	return &StoreService{
		uow:    uow,
		logger: logger.With(slog.String("service", "store")),
	}
}

func (s *StoreService) Profile(ctx context.Context) (domain.StoreProfile, error) {
	profile, err := s.uow.StoreProfile().Get(ctx)
	if err != nil {
		return domain.StoreProfile{}, fmt.Errorf("failed to get store profile: %w", err)
	}
	return profile, nil
}

// UpdateProfile merges a partial update into the saved profile.
func (s *StoreService) UpdateProfile(ctx context.Context, update domain.StoreProfileUpdate) (domain.StoreProfile, error) {
	if err := update.Validate(); err != nil {
		return domain.StoreProfile{}, err
	}

	var profile domain.StoreProfile
	err := s.uow.Atomically(ctx, func(ctx context.Context, repos ports.Repositories) error {
		var err error
		profile, err = repos.StoreProfile().Get(ctx)
		if err != nil {
			return fmt.Errorf("failed to get store profile: %w", err)
		}
		if err := update.Apply(&profile); err != nil {
			return err
		}
		return repos.StoreProfile().Save(ctx, profile)
	})
	if err != nil {
		return domain.StoreProfile{}, fmt.Errorf("failed to update store profile: %w", err)
	}

	s.logger.InfoContext(ctx, "store profile updated",
		slog.String("currency", profile.Currency),
		slog.Bool("vat_assured", profile.VATAssured))
	return profile, nil
}

func (s *StoreService) CreateCustomer(ctx context.Context, customer *domain.Customer) error {
	if err := customer.Validate(); err != nil {
		return err
	}
	customer.PrepareForStorage()
	if err := s.uow.Customers().Create(ctx, customer); err != nil {
		return fmt.Errorf("failed to create customer: %w", err)
	}
	s.logger.InfoContext(ctx, "customer created", slog.String("customer_id", customer.ID))
	return nil
}

func (s *StoreService) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	customers, err := s.uow.Customers().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list customers: %w", err)
	}
	return customers, nil
}

func (s *StoreService) CreateVendor(ctx context.Context, vendor *domain.Vendor) error {
	if err := vendor.Validate(); err != nil {
		return err
	}
	vendor.PrepareForStorage()
	if err := s.uow.Vendors().Create(ctx, vendor); err != nil {
		return fmt.Errorf("failed to create vendor: %w", err)
	}
	s.logger.InfoContext(ctx, "vendor created", slog.String("vendor_id", vendor.ID))
	return nil
}

func (s *StoreService) ListVendors(ctx context.Context) ([]domain.Vendor, error) {
	vendors, err := s.uow.Vendors().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list vendors: %w", err)
	}
	return vendors, nil
}
