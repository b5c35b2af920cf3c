// internal/core/domain/store.go
package domain

import (
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// StoreProfile holds the shop settings the coordinators read at sale time.
type StoreProfile struct {
	StoreName    string `json:"storeName"`
	Currency     string `json:"currency"`
	BaseCurrency string `json:"baseCurrency"`
	VATAssured   bool   `json:"vatAssured"`
	Email        string `json:"email"`
	Address      string `json:"address"`
	Phone        string `json:"phone"`
	NIF          string `json:"nif"`
}

// DefaultStoreProfile is used until a profile is saved.
func DefaultStoreProfile() StoreProfile {
	return StoreProfile{
		StoreName:    "Nebula Shop",
		Currency:     "USD",
		BaseCurrency: "USD",
		VATAssured:   true,
		Email:        "admin@example.com",
		Address:      "123 Main St",
		Phone:        "555-0123",
		NIF:          "123456789",
	}
}

// StoreProfileUpdate is a partial update of the store profile.
type StoreProfileUpdate struct {
	StoreName    *string `json:"storeName,omitempty"`
	Currency     *string `json:"currency,omitempty"`
	BaseCurrency *string `json:"baseCurrency,omitempty"`
	VATAssured   *bool   `json:"vatAssured,omitempty"`
	Email        *string `json:"email,omitempty"`
	Address      *string `json:"address,omitempty"`
	Phone        *string `json:"phone,omitempty"`
	NIF          *string `json:"nif,omitempty"`
}

// Validate checks the update before it is merged.
func (u StoreProfileUpdate) Validate() error {
	if u.StoreName != nil && strings.TrimSpace(*u.StoreName) == "" {
		return InvalidInput("store_name cannot be empty")
	}
	if u.Currency != nil && len(strings.TrimSpace(*u.Currency)) != 3 {
		return InvalidInput("currency must be a 3-letter code")
	}
	if u.BaseCurrency != nil && len(strings.TrimSpace(*u.BaseCurrency)) != 3 {
		return InvalidInput("base_currency must be a 3-letter code")
	}
	if u.Email != nil && *u.Email != "" {
		if _, err := mail.ParseAddress(*u.Email); err != nil {
			return InvalidInput("email is invalid")
		}
	}
	return nil
}

// Apply merges a validated update into p.
func (u StoreProfileUpdate) Apply(p *StoreProfile) error {
	if err := u.Validate(); err != nil {
		return err
	}
	setString(&p.StoreName, u.StoreName)
	if u.Currency != nil {
		p.Currency = strings.ToUpper(strings.TrimSpace(*u.Currency))
	}
	if u.BaseCurrency != nil {
		p.BaseCurrency = strings.ToUpper(strings.TrimSpace(*u.BaseCurrency))
	}
	if u.VATAssured != nil {
		p.VATAssured = *u.VATAssured
	}
	setString(&p.Email, u.Email)
	setString(&p.Address, u.Address)
	setString(&p.Phone, u.Phone)
	setString(&p.NIF, u.NIF)
	return nil
}

// SalesBucket is the per-weekday storefront sales aggregate.
type SalesBucket struct {
	Name  string          `json:"name"`
	Sales decimal.Decimal `json:"sales"`
}

// Weekdays lists bucket labels in display order.
var Weekdays = []string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

// Customer is a known buyer.
type Customer struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	NIF       string    `json:"nif,omitempty"`
	Address   string    `json:"address,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Validate performs domain validation on the customer.
func (c *Customer) Validate() error {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return InvalidInput("name is required")
	}
	return nil
}

// PrepareForStorage assigns an id and timestamp.
func (c *Customer) PrepareForStorage() {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
}

// Vendor supplies purchase orders.
type Vendor struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	ContactName string    `json:"contactName,omitempty"`
	Email       string    `json:"email,omitempty"`
	Phone       string    `json:"phone,omitempty"`
	Address     string    `json:"address,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Validate performs domain validation on the vendor.
func (v *Vendor) Validate() error {
	v.Name = strings.TrimSpace(v.Name)
	if v.Name == "" {
		return InvalidInput("name is required")
	}
	return nil
}

// PrepareForStorage assigns an id and timestamp.
func (v *Vendor) PrepareForStorage() {
	if v.ID == "" {
		v.ID = uuid.New().String()
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}
}
