// internal/handlers/purchasing.go
package handlers

import (
	"log/slog"
	"net/http"

	"github.com/ammerola/storefront-ledger/internal/core/domain"
	"github.com/ammerola/storefront-ledger/internal/core/ports"
)

// PurchasingHandler serves purchase orders and the parties they involve.
type PurchasingHandler struct {
	base
	receiving ports.ReceivingService
	store     ports.StoreService
}

func NewPurchasingHandler(receiving ports.ReceivingService, store ports.StoreService, logger *slog.Logger) *PurchasingHandler {
	return &PurchasingHandler{
		base:      base{logger: logger.With(slog.String("handler", "purchasing"))},
		receiving: receiving,
		store:     store,
	}
}

type purchaseOrderBody struct {
	VendorID string                     `json:"vendorId" validate:"required"`
	Items    []domain.PurchaseOrderItem `json:"items" validate:"required,min=1,dive"`
}

func (h *PurchasingHandler) ListPurchaseOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.receiving.List(r.Context())
	if err != nil {
		h.handleError(w, r, err, "list purchase orders")
		return
	}
	h.respondJSON(w, http.StatusOK, orders)
}

// CreatePurchaseOrder handles POST /purchase-orders. The order starts as a draft.
func (h *PurchasingHandler) CreatePurchaseOrder(w http.ResponseWriter, r *http.Request) {
	var body purchaseOrderBody
	if !h.decode(w, r, &body) {
		return
	}

	po := &domain.PurchaseOrder{VendorID: body.VendorID, Items: body.Items}
	if err := h.receiving.Create(r.Context(), po); err != nil {
		h.handleError(w, r, err, "create purchase order")
		return
	}
	h.respondJSON(w, http.StatusCreated, po)
}

func (h *PurchasingHandler) GetPurchaseOrder(w http.ResponseWriter, r *http.Request) {
	po, err := h.receiving.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.handleError(w, r, err, "get purchase order")
		return
	}
	h.respondJSON(w, http.StatusOK, po)
}

func (h *PurchasingHandler) MarkOrdered(w http.ResponseWriter, r *http.Request) {
	po, err := h.receiving.MarkOrdered(r.Context(), r.PathValue("id"))
	if err != nil {
		h.handleError(w, r, err, "mark purchase order ordered")
		return
	}
	h.respondJSON(w, http.StatusOK, po)
}

// Receive handles POST /purchase-orders/{id}/receive and books a purchase
// movement per line.
func (h *PurchasingHandler) Receive(w http.ResponseWriter, r *http.Request) {
	po, err := h.receiving.Receive(r.Context(), r.PathValue("id"), userID(r))
	if err != nil {
		h.handleError(w, r, err, "receive purchase order")
		return
	}

	h.logger.InfoContext(r.Context(), "purchase order received",
		slog.String("po_id", po.ID),
		slog.Int("lines", len(po.Items)))
	h.respondJSON(w, http.StatusOK, po)
}

func (h *PurchasingHandler) ListVendors(w http.ResponseWriter, r *http.Request) {
	vendors, err := h.store.ListVendors(r.Context())
	if err != nil {
		h.handleError(w, r, err, "list vendors")
		return
	}
	h.respondJSON(w, http.StatusOK, vendors)
}

func (h *PurchasingHandler) CreateVendor(w http.ResponseWriter, r *http.Request) {
	var vendor domain.Vendor
	if !h.decode(w, r, &vendor) {
		return
	}
	vendor.ID = ""
	if err := h.store.CreateVendor(r.Context(), &vendor); err != nil {
		h.handleError(w, r, err, "create vendor")
		return
	}
	h.respondJSON(w, http.StatusCreated, vendor)
}

func (h *PurchasingHandler) ListCustomers(w http.ResponseWriter, r *http.Request) {
	customers, err := h.store.ListCustomers(r.Context())
	if err != nil {
		h.handleError(w, r, err, "list customers")
		return
	}
	h.respondJSON(w, http.StatusOK, customers)
}

func (h *PurchasingHandler) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	var customer domain.Customer
	if !h.decode(w, r, &customer) {
		return
	}
	customer.ID = ""
	if err := h.store.CreateCustomer(r.Context(), &customer); err != nil {
		h.handleError(w, r, err, "create customer")
		return
	}
	h.respondJSON(w, http.StatusCreated, customer)
}
