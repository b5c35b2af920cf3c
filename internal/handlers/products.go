// internal/handlers/products.go
package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/ammerola/storefront-ledger/internal/core/domain"
	"github.com/ammerola/storefront-ledger/internal/core/ports"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 1000
)

// ProductHandler serves the catalog and the per-product ledger views.
type ProductHandler struct {
	base
	catalog ports.CatalogService
	ledger  ports.LedgerService
}

func NewProductHandler(catalog ports.CatalogService, ledger ports.LedgerService, logger *slog.Logger) *ProductHandler {
	return &ProductHandler{
		base:    base{logger: logger.With(slog.String("handler", "products"))},
		catalog: catalog,
		ledger:  ledger,
	}
}

type createProductBody struct {
	domain.Product
	InitialStock int64 `json:"initialStock" validate:"gte=0"`
}

type movementBody struct {
	Quantity int64  `json:"quantity" validate:"required"`
	Type     string `json:"type" validate:"required,oneof=adjustment correction transfer"`
	Reason   string `json:"reason" validate:"required,max=500"`
}

// List handles GET /products?search=&category=&low_stock=&limit=&offset=
func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.ProductFilter{
		Search:   strings.TrimSpace(q.Get("search")),
		Category: q.Get("category"),
		LowStock: q.Get("low_stock") == "true",
		Limit:    intQuery(r, "limit", 0),
		Offset:   intQuery(r, "offset", 0),
	}

	page, err := h.catalog.List(r.Context(), filter)
	if err != nil {
		h.handleError(w, r, err, "list products")
		return
	}
	h.respondJSON(w, http.StatusOK, page)
}

// Create handles POST /products. A positive initialStock is booked as an
// opening adjustment.
func (h *ProductHandler) Create(w http.ResponseWriter, r *http.Request) {
	var body createProductBody
	if !h.decode(w, r, &body) {
		return
	}

	product := body.Product
	product.ID = ""
	if err := h.catalog.Create(r.Context(), &product, body.InitialStock, userID(r)); err != nil {
		h.handleError(w, r, err, "create product")
		return
	}

	h.logger.InfoContext(r.Context(), "product created",
		slog.String("product_id", product.ID),
		slog.Int64("initial_stock", body.InitialStock))
	h.respondJSON(w, http.StatusCreated, product)
}

func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request) {
	product, err := h.catalog.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.handleError(w, r, err, "get product")
		return
	}
	h.respondJSON(w, http.StatusOK, product)
}

// Update handles PUT /products/{id}. Stock is not editable here.
func (h *ProductHandler) Update(w http.ResponseWriter, r *http.Request) {
	var update domain.ProductUpdate
	if !h.decode(w, r, &update) {
		return
	}

	product, err := h.catalog.Update(r.Context(), r.PathValue("id"), update)
	if err != nil {
		h.handleError(w, r, err, "update product")
		return
	}
	h.respondJSON(w, http.StatusOK, product)
}

func (h *ProductHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.Delete(r.Context(), r.PathValue("id")); err != nil {
		h.handleError(w, r, err, "delete product")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RecordMovement handles POST /products/{id}/movements. Sales, purchases and
// returns are booked by their coordinators, so only manual kinds are accepted.
func (h *ProductHandler) RecordMovement(w http.ResponseWriter, r *http.Request) {
	var body movementBody
	if !h.decode(w, r, &body) {
		return
	}

	movement, err := h.ledger.ApplyMovement(r.Context(), domain.MovementRequest{
		ProductID: r.PathValue("id"),
		Quantity:  body.Quantity,
		Type:      domain.MovementType(body.Type),
		Reason:    body.Reason,
		UserID:    userID(r),
	})
	if err != nil {
		h.handleError(w, r, err, "record movement")
		return
	}
	h.respondJSON(w, http.StatusCreated, movement)
}

// History handles GET /products/{id}/movements?limit=, newest first.
func (h *ProductHandler) History(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	limit := intQuery(r, "limit", defaultHistoryLimit)
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	limit = min(limit, maxHistoryLimit)

	if _, err := h.catalog.Get(ctx, id); err != nil {
		h.handleError(w, r, err, "get movement history")
		return
	}

	movements := make([]domain.StockMovement, 0, min(limit, 64))
	for m, err := range h.ledger.HistoryFor(ctx, id) {
		if err != nil {
			h.handleError(w, r, err, "get movement history")
			return
		}
		movements = append(movements, m)
		if len(movements) == limit {
			break
		}
	}

	h.respondJSON(w, http.StatusOK, map[string]any{
		"productId": id,
		"movements": movements,
	})
}

func (h *ProductHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	result, err := h.ledger.Reconcile(r.Context(), r.PathValue("id"))
	if err != nil {
		h.handleError(w, r, err, "reconcile product")
		return
	}
	if !result.Consistent {
		h.logger.WarnContext(r.Context(), "ledger drift detected",
			slog.String("product_id", result.ProductID),
			slog.Int64("stock", result.Stock),
			slog.Int64("movement_sum", result.MovementSum))
	}
	h.respondJSON(w, http.StatusOK, result)
}
