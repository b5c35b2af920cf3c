// internal/core/domain/snapshot.go
package domain

import (
	"fmt"
	"time"
)

// Snapshot is a full backup of the engine's collections.
type Snapshot struct {
	Products       []Product       `json:"products"`
	Orders         []Order         `json:"orders"`
	Customers      []Customer      `json:"customers"`
	SalesData      []SalesBucket   `json:"salesData"`
	Vendors        []Vendor        `json:"vendors"`
	PurchaseOrders []PurchaseOrder `json:"purchaseOrders"`
	Invoices       []Invoice       `json:"invoices"`
	StockMovements []StockMovement `json:"stockMovements"`
	StoreProfile   StoreProfile    `json:"storeProfile"`
}

// RestorePayload is a backup being merged back. A nil field means the key was
// absent from the document and the collection is left untouched.
type RestorePayload struct {
	Products       *[]Product       `json:"products"`
	Orders         *[]Order         `json:"orders"`
	Customers      *[]Customer      `json:"customers"`
	SalesData      *[]SalesBucket   `json:"salesData"`
	Vendors        *[]Vendor        `json:"vendors"`
	PurchaseOrders *[]PurchaseOrder `json:"purchaseOrders"`
	Invoices       *[]Invoice       `json:"invoices"`
	StockMovements *[]StockMovement `json:"stockMovements"`
	StoreProfile   *StoreProfile    `json:"storeProfile"`
}

// IgnoredBackupKeys are collections of the full shop application that this
// service does not own. They are accepted in a restore document and skipped.
var IgnoredBackupKeys = []string{
	"shipments", "users", "integrations", "blogPosts",
	"reviews", "templates", "roles", "customFields",
}

// BackupFileName is the attachment name for a snapshot taken at t.
func BackupFileName(t time.Time) string {
	return fmt.Sprintf("nebula-backup-%s.json", t.Format(time.DateOnly))
}

// RestoreResult reports which collections a restore replaced and how the
// stock projections were brought back in line with the ledger.
type RestoreResult struct {
	Restored []string `json:"restored"`
	Ignored  []string `json:"ignored,omitempty"`
	// OpeningMovements counts adjustments appended for products whose
	// restored stock had no ledger entries.
	OpeningMovements int `json:"openingMovements,omitempty"`
	// Rebalanced lists products whose restored projections disagreed with
	// the ledger, as they were before being rebuilt from it.
	Rebalanced []Reconciliation `json:"rebalanced,omitempty"`
}
