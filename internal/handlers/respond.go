// internal/handlers/respond.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/ammerola/storefront-ledger/internal/core/domain"
	"github.com/ammerola/storefront-ledger/internal/pkg/logger"
)

const maxJSONBody = 1 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error     string            `json:"error"`
	Details   map[string]string `json:"details,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
}

// base carries the response helpers shared by all handlers.
type base struct {
	logger *slog.Logger
}

func (b base) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		b.logger.Error("failed to encode JSON response", slog.Any("error", err))
	}
}

func (b base) respondError(w http.ResponseWriter, r *http.Request, status int, message string) {
	b.respondJSON(w, status, ErrorResponse{
		Error:     message,
		RequestID: logger.Value(r.Context(), logger.ContextKeyRequestID),
	})
}

// handleError maps a service error to its HTTP status. Domain errors carry
// client-safe messages; anything else is logged and hidden behind a generic one.
func (b base) handleError(w http.ResponseWriter, r *http.Request, err error, action string) {
	ctx := r.Context()
	status := statusFor(err)

	if status >= http.StatusInternalServerError {
		b.logger.ErrorContext(ctx, "failed to "+action, slog.Any("error", err))
		msg := "Failed to " + action
		if status == http.StatusGatewayTimeout {
			msg = "Request timeout"
		}
		b.respondError(w, r, status, msg)
		return
	}

	b.logger.WarnContext(ctx, action+" rejected",
		slog.Int("status", status),
		slog.Any("error", err))

	msg := err.Error()
	var de *domain.Error
	if errors.As(err, &de) {
		msg = de.Error()
	}
	b.respondError(w, r, status, msg)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrTerminalState),
		errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// decode reads and validates a JSON body. It writes the 400 itself and
// reports whether the handler should continue.
func (b base) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		b.respondError(w, r, http.StatusBadRequest, "Invalid request body")
		return false
	}

	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			b.respondJSON(w, http.StatusBadRequest, ErrorResponse{
				Error:     "Validation failed",
				Details:   validationDetails(verrs),
				RequestID: logger.Value(r.Context(), logger.ContextKeyRequestID),
			})
			return false
		}
		b.respondError(w, r, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func validationDetails(verrs validator.ValidationErrors) map[string]string {
	details := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		// Drop the top-level type name: "saleBody.items[0].quantity" -> "items[0].quantity".
		field := fe.Namespace()
		if i := strings.IndexByte(field, '.'); i >= 0 {
			field = field[i+1:]
		}
		tag := fe.Tag()
		if fe.Param() != "" {
			tag += "=" + fe.Param()
		}
		details[field] = tag
	}
	return details
}

// userID is the acting user from the request context or X-User-ID header.
func userID(r *http.Request) string {
	if id := logger.Value(r.Context(), logger.ContextKeyUserID); id != "" {
		return id
	}
	return strings.TrimSpace(r.Header.Get("X-User-ID"))
}

func intQuery(r *http.Request, name string, def int) int {
	if v := r.URL.Query().Get(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// timeQuery accepts RFC 3339 or a plain date. A plain "to" date covers the
// whole day.
func timeQuery(r *http.Request, name string, endOfDay bool) (*time.Time, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return nil, domain.InvalidInput("%s must be a date (YYYY-MM-DD) or RFC 3339 time", name)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}

// dashboardInvalidator drops cached aggregates after a write that moves
// stock or revenue.
type dashboardInvalidator interface {
	Invalidate(ctx context.Context) error
}

func (b base) invalidate(r *http.Request, inv dashboardInvalidator) {
	if inv == nil {
		return
	}
	if err := inv.Invalidate(context.WithoutCancel(r.Context())); err != nil {
		b.logger.WarnContext(r.Context(), "failed to invalidate dashboard cache", slog.Any("error", err))
	}
}
