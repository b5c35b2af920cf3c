package services_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ammerola/storefront-ledger/internal/core/domain"
	"github.com/ammerola/storefront-ledger/test/helpers"
)

func ptr[T any](v T) *T { return &v }

func TestStoreService_Profile(t *testing.T) {
	ctx := context.Background()
	svc := helpers.NewTestServices(t)

	profile, err := svc.Shop.Profile(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultStoreProfile(), profile)

	t.Run("partial_update", func(t *testing.T) {
		updated, err := svc.Shop.UpdateProfile(ctx, domain.StoreProfileUpdate{
			StoreName: ptr("Garage 42"),
			Currency:  ptr("bif"),
		})
		require.NoError(t, err)
		assert.Equal(t, "Garage 42", updated.StoreName)
		assert.Equal(t, "BIF", updated.Currency)
		assert.True(t, updated.VATAssured)

		stored, err := svc.Shop.Profile(ctx)
		require.NoError(t, err)
		assert.Equal(t, updated, stored)
	})

	t.Run("invalid_updates", func(t *testing.T) {
		tests := []struct {
			name   string
			update domain.StoreProfileUpdate
		}{
			{name: "blank_name", update: domain.StoreProfileUpdate{StoreName: ptr(" ")}},
			{name: "currency_code", update: domain.StoreProfileUpdate{Currency: ptr("FRANC")}},
			{name: "base_currency_code", update: domain.StoreProfileUpdate{BaseCurrency: ptr("U")}},
			{name: "email", update: domain.StoreProfileUpdate{Email: ptr("not-an-email")}},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := svc.Shop.UpdateProfile(ctx, tt.update)
				assert.ErrorIs(t, err, domain.ErrInvalidInput)
			})
		}

		stored, err := svc.Shop.Profile(ctx)
		require.NoError(t, err)
		assert.Equal(t, "Garage 42", stored.StoreName)
	})

	t.Run("currency_flows_into_storefront_orders", func(t *testing.T) {
		product := svc.AddProduct(t, 3)
		order := placeOrder(t, svc, product, 1)
		assert.Equal(t, "BIF", order.Currency)
	})
}

func TestStoreService_Parties(t *testing.T) {
	ctx := context.Background()
	svc := helpers.NewTestServices(t)

	customer := &domain.Customer{Name: " Ana ", Email: "ana@example.com"}
	require.NoError(t, svc.Shop.CreateCustomer(ctx, customer))
	assert.NotEmpty(t, customer.ID)
	assert.Equal(t, "Ana", customer.Name)
	assert.ErrorIs(t, svc.Shop.CreateCustomer(ctx, &domain.Customer{}), domain.ErrInvalidInput)

	customers, err := svc.Shop.ListCustomers(ctx)
	require.NoError(t, err)
	require.Len(t, customers, 1)
	assert.Equal(t, customer.ID, customers[0].ID)

	vendor := &domain.Vendor{Name: "Parts Co", ContactName: "Eric"}
	require.NoError(t, svc.Shop.CreateVendor(ctx, vendor))
	assert.ErrorIs(t, svc.Shop.CreateVendor(ctx, &domain.Vendor{Name: ""}), domain.ErrInvalidInput)

	vendors, err := svc.Shop.ListVendors(ctx)
	require.NoError(t, err)
	require.Len(t, vendors, 1)
	assert.Equal(t, "Eric", vendors[0].ContactName)
}
