// internal/handlers/store.go
package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ammerola/storefront-ledger/internal/core/domain"
	"github.com/ammerola/storefront-ledger/internal/core/ports"
	"github.com/ammerola/storefront-ledger/internal/pkg/currency"
)

// StoreHandler serves shop settings, the dashboard and currency helpers.
type StoreHandler struct {
	base
	store   ports.StoreService
	reports ports.ReportService
}

func NewStoreHandler(store ports.StoreService, reports ports.ReportService, logger *slog.Logger) *StoreHandler {
	return &StoreHandler{
		base:    base{logger: logger.With(slog.String("handler", "store"))},
		store:   store,
		reports: reports,
	}
}

type conversion struct {
	Amount    decimal.Decimal `json:"amount"`
	Code      string          `json:"code"`
	Rate      decimal.Decimal `json:"rate"`
	Converted decimal.Decimal `json:"converted"`
	Formatted string          `json:"formatted"`
}

func (h *StoreHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := h.store.Profile(r.Context())
	if err != nil {
		h.handleError(w, r, err, "get store profile")
		return
	}
	h.respondJSON(w, http.StatusOK, profile)
}

func (h *StoreHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var update domain.StoreProfileUpdate
	if !h.decode(w, r, &update) {
		return
	}

	profile, err := h.store.UpdateProfile(r.Context(), update)
	if err != nil {
		h.handleError(w, r, err, "update store profile")
		return
	}
	if update.Currency != nil || update.BaseCurrency != nil {
		h.invalidate(r, h.reports)
	}
	h.respondJSON(w, http.StatusOK, profile)
}

// Convert handles GET /currency/convert?amount=&code=
func (h *StoreHandler) Convert(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	amount, err := decimal.NewFromString(q.Get("amount"))
	if err != nil {
		h.respondError(w, r, http.StatusBadRequest, "amount must be a decimal number")
		return
	}
	code := strings.ToUpper(strings.TrimSpace(q.Get("code")))
	if !currency.Supported(code) {
		h.respondError(w, r, http.StatusBadRequest, "unsupported currency code")
		return
	}

	h.respondJSON(w, http.StatusOK, conversion{
		Amount:    amount,
		Code:      code,
		Rate:      currency.Rate(code),
		Converted: currency.Convert(amount, code),
		Formatted: currency.Format(amount, code),
	})
}

// Dashboard handles GET /dashboard. The summary is cached by the report service.
func (h *StoreHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	dash, err := h.reports.Dashboard(r.Context())
	if err != nil {
		h.handleError(w, r, err, "load dashboard")
		return
	}
	h.respondJSON(w, http.StatusOK, dash)
}

// WeeklySales handles GET /sales/weekly, Mon..Sun.
func (h *StoreHandler) WeeklySales(w http.ResponseWriter, r *http.Request) {
	buckets, err := h.reports.WeeklySales(r.Context())
	if err != nil {
		h.handleError(w, r, err, "load weekly sales")
		return
	}
	h.respondJSON(w, http.StatusOK, buckets)
}
