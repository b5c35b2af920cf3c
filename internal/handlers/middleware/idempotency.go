// internal/handlers/middleware/idempotency.go
package middleware

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"time"

	redis_a "github.com/ammerola/storefront-ledger/internal/adapters/redis_adapter"
	"github.com/ammerola/storefront-ledger/internal/pkg/logger"
)

const (
	// IdempotencyHeader carries the client-chosen retry key.
	IdempotencyHeader = "Idempotency-Key"
	// ReplayedHeader marks a response served from the idempotency store.
	ReplayedHeader = "Idempotent-Replayed"

	maxIdempotencyKeyLen = 255
)

// IdempotencyStore remembers the first response per key.
type IdempotencyStore interface {
	Begin(ctx context.Context, scope, key string) (*redis_a.StoredResponse, bool, error)
	Complete(ctx context.Context, scope, key string, resp redis_a.StoredResponse) error
	Abandon(ctx context.Context, scope, key string) error
}

// Idempotency replays the stored response when a request repeats an
// Idempotency-Key. Requests without the header pass through. Responses with
// a 5xx status release the key so the client can retry. When the store is
// unreachable requests are served without the guarantee.
func Idempotency(store IdempotencyStore, l *slog.Logger) func(http.Handler) http.Handler {
	l = l.With(slog.String("middleware", "idempotency"))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(IdempotencyHeader)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			requestID := logger.Value(ctx, logger.ContextKeyRequestID)
			if len(key) > maxIdempotencyKeyLen {
				writeError(w, http.StatusBadRequest, "Idempotency-Key is too long", requestID)
				return
			}

			scope := r.Method + " " + r.URL.Path
			stored, claimed, err := store.Begin(ctx, scope, key)
			if err != nil {
				l.WarnContext(ctx, "idempotency store unavailable, serving without replay protection",
					slog.String("scope", scope),
					slog.Any("error", err))
				next.ServeHTTP(w, r)
				return
			}

			if !claimed {
				if !stored.Completed {
					writeError(w, http.StatusConflict, "a request with this Idempotency-Key is still in progress", requestID)
					return
				}
				l.InfoContext(ctx, "replaying idempotent response",
					slog.String("scope", scope),
					slog.Int("status", stored.Status))
				if stored.ContentType != "" {
					w.Header().Set("Content-Type", stored.ContentType)
				}
				w.Header().Set(ReplayedHeader, "true")
				w.WriteHeader(stored.Status)
				_, _ = w.Write(stored.Body)
				return
			}

			rec := &recordingWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			// the response is already sent; store it even if the client left
			saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
			defer cancel()

			if rec.status >= http.StatusInternalServerError {
				if err := store.Abandon(saveCtx, scope, key); err != nil {
					l.WarnContext(ctx, "failed to release idempotency key", slog.Any("error", err))
				}
				return
			}

			err = store.Complete(saveCtx, scope, key, redis_a.StoredResponse{
				Status:      rec.status,
				ContentType: rec.Header().Get("Content-Type"),
				Body:        rec.body.Bytes(),
			})
			if err != nil {
				l.WarnContext(ctx, "failed to store idempotent response", slog.Any("error", err))
			}
		})
	}
}

type recordingWriter struct {
	http.ResponseWriter
	status      int
	body        bytes.Buffer
	wroteHeader bool
}

func (rw *recordingWriter) WriteHeader(code int) {
	if rw.wroteHeader {
		return
	}
	rw.wroteHeader = true
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *recordingWriter) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}
	rw.body.Write(b)
	return rw.ResponseWriter.Write(b)
}
