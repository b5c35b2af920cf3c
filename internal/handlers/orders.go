// internal/handlers/orders.go
package handlers

import (
	"log/slog"
	"net/http"

	"github.com/ammerola/storefront-ledger/internal/core/domain"
	"github.com/ammerola/storefront-ledger/internal/core/ports"
)

// OrderHandler serves order reads, status changes and both sale channels.
type OrderHandler struct {
	base
	orders   ports.OrderService
	checkout ports.CheckoutService
	pos      ports.POSService
	reports  dashboardInvalidator
}

func NewOrderHandler(
	orders ports.OrderService,
	checkout ports.CheckoutService,
	pos ports.POSService,
	reports ports.ReportService,
	logger *slog.Logger,
) *OrderHandler {
	h := &OrderHandler{
		base:     base{logger: logger.With(slog.String("handler", "orders"))},
		orders:   orders,
		checkout: checkout,
		pos:      pos,
	}
	if reports != nil {
		h.reports = reports
	}
	return h
}

type statusBody struct {
	Status string `json:"status" validate:"required"`
}

type reasonBody struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

type saleResponse struct {
	Order   *domain.Order   `json:"order"`
	Invoice *domain.Invoice `json:"invoice"`
}

// List handles GET /orders?status=&channel=&from=&to=&limit=&offset=
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.OrderFilter{
		Channel: domain.Channel(q.Get("channel")),
		Limit:   intQuery(r, "limit", 0),
		Offset:  intQuery(r, "offset", 0),
	}
	if v := q.Get("status"); v != "" {
		status, err := domain.ParseOrderStatus(v)
		if err != nil {
			h.handleError(w, r, err, "list orders")
			return
		}
		filter.Status = status
	}
	if filter.Channel != "" && filter.Channel != domain.ChannelStorefront && filter.Channel != domain.ChannelPOS {
		h.respondError(w, r, http.StatusBadRequest, "channel must be storefront or pos")
		return
	}

	var err error
	if filter.From, err = timeQuery(r, "from", false); err != nil {
		h.handleError(w, r, err, "list orders")
		return
	}
	if filter.To, err = timeQuery(r, "to", true); err != nil {
		h.handleError(w, r, err, "list orders")
		return
	}

	page, err := h.orders.List(r.Context(), filter)
	if err != nil {
		h.handleError(w, r, err, "list orders")
		return
	}
	h.respondJSON(w, http.StatusOK, page)
}

func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.handleError(w, r, err, "get order")
		return
	}
	h.respondJSON(w, http.StatusOK, order)
}

// UpdateStatus handles PATCH /orders/{id}/status for forward moves
// (pending -> shipped -> delivered). Cancel and refund have their own routes
// because they carry a reason and compensate stock.
func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var body statusBody
	if !h.decode(w, r, &body) {
		return
	}
	status, err := domain.ParseOrderStatus(body.Status)
	if err != nil {
		h.handleError(w, r, err, "update order status")
		return
	}

	order, err := h.orders.UpdateStatus(r.Context(), r.PathValue("id"), status)
	if err != nil {
		h.handleError(w, r, err, "update order status")
		return
	}
	h.respondJSON(w, http.StatusOK, order)
}

func (h *OrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	var body reasonBody
	if !h.decode(w, r, &body) {
		return
	}

	order, err := h.orders.Cancel(r.Context(), r.PathValue("id"), body.Reason)
	if err != nil {
		h.handleError(w, r, err, "cancel order")
		return
	}
	h.invalidate(r, h.reports)
	h.respondJSON(w, http.StatusOK, order)
}

func (h *OrderHandler) Refund(w http.ResponseWriter, r *http.Request) {
	var body reasonBody
	if !h.decode(w, r, &body) {
		return
	}

	order, err := h.orders.Refund(r.Context(), r.PathValue("id"), body.Reason)
	if err != nil {
		h.handleError(w, r, err, "refund order")
		return
	}
	h.invalidate(r, h.reports)
	h.respondJSON(w, http.StatusOK, order)
}

// Checkout handles POST /checkout: either a stored cart or inline items.
func (h *OrderHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req ports.PlaceOrderRequest
	if !h.decode(w, r, &req) {
		return
	}

	order, err := h.checkout.PlaceOrder(r.Context(), req)
	if err != nil {
		h.handleError(w, r, err, "place order")
		return
	}

	h.logger.InfoContext(r.Context(), "order placed",
		slog.String("order_id", order.ID),
		slog.String("total", order.Total.StringFixed(2)))
	h.invalidate(r, h.reports)
	h.respondJSON(w, http.StatusCreated, order)
}

// CompleteSale handles POST /pos/sales.
func (h *OrderHandler) CompleteSale(w http.ResponseWriter, r *http.Request) {
	var req ports.SaleRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.UserID == "" {
		req.UserID = userID(r)
	}

	order, invoice, err := h.pos.CompleteSale(r.Context(), req)
	if err != nil {
		h.handleError(w, r, err, "complete sale")
		return
	}

	h.logger.InfoContext(r.Context(), "counter sale completed",
		slog.String("order_id", order.ID),
		slog.String("invoice_id", invoice.ID))
	h.invalidate(r, h.reports)
	h.respondJSON(w, http.StatusCreated, saleResponse{Order: order, Invoice: invoice})
}

func (h *OrderHandler) GetInvoice(w http.ResponseWriter, r *http.Request) {
	invoice, err := h.pos.GetInvoice(r.Context(), r.PathValue("id"))
	if err != nil {
		h.handleError(w, r, err, "get invoice")
		return
	}
	h.respondJSON(w, http.StatusOK, invoice)
}

func (h *OrderHandler) InvoiceForOrder(w http.ResponseWriter, r *http.Request) {
	invoice, err := h.pos.InvoiceForOrder(r.Context(), r.PathValue("id"))
	if err != nil {
		h.handleError(w, r, err, "get order invoice")
		return
	}
	h.respondJSON(w, http.StatusOK, invoice)
}
