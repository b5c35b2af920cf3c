// internal/handlers/carts.go
package handlers

import (
	"log/slog"
	"net/http"

	"github.com/ammerola/storefront-ledger/internal/core/ports"
)

// CartHandler serves storefront baskets.
type CartHandler struct {
	base
	carts ports.CartService
}

func NewCartHandler(carts ports.CartService, logger *slog.Logger) *CartHandler {
	return &CartHandler{
		base:  base{logger: logger.With(slog.String("handler", "carts"))},
		carts: carts,
	}
}

type cartItemBody struct {
	ProductID string `json:"productId" validate:"required"`
	Quantity  int64  `json:"quantity" validate:"gt=0"`
}

func (h *CartHandler) Create(w http.ResponseWriter, r *http.Request) {
	cart, err := h.carts.Create(r.Context())
	if err != nil {
		h.handleError(w, r, err, "create cart")
		return
	}
	h.respondJSON(w, http.StatusCreated, cart)
}

func (h *CartHandler) Get(w http.ResponseWriter, r *http.Request) {
	cart, err := h.carts.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.handleError(w, r, err, "get cart")
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]any{
		"id":        cart.ID,
		"items":     cart.Items,
		"total":     cart.Total(),
		"updatedAt": cart.UpdatedAt,
	})
}

// AddItem handles POST /carts/{id}/items. Adding a product already in the
// cart increases its quantity.
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var body cartItemBody
	if !h.decode(w, r, &body) {
		return
	}

	cart, err := h.carts.AddItem(r.Context(), r.PathValue("id"), body.ProductID, body.Quantity)
	if err != nil {
		h.handleError(w, r, err, "add cart item")
		return
	}
	h.respondJSON(w, http.StatusOK, cart)
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	cart, err := h.carts.RemoveItem(r.Context(), r.PathValue("id"), r.PathValue("productId"))
	if err != nil {
		h.handleError(w, r, err, "remove cart item")
		return
	}
	h.respondJSON(w, http.StatusOK, cart)
}

func (h *CartHandler) Clear(w http.ResponseWriter, r *http.Request) {
	if err := h.carts.Clear(r.Context(), r.PathValue("id")); err != nil {
		h.handleError(w, r, err, "clear cart")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
