// internal/handlers/middleware/context.go
package middleware

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"

	"github.com/google/uuid"

	"github.com/ammerola/storefront-ledger/internal/pkg/logger"
)

// Chain applies middlewares so the first one listed runs first.
func Chain(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// ContextOptions configures RequestContext.
type ContextOptions struct {
	// RequestIDHeader carries an upstream request id. Defaults to X-Request-ID.
	RequestIDHeader string
	// TrustedProxies are the peers allowed to set X-Forwarded-For. When empty
	// the forwarding headers are taken at face value.
	TrustedProxies []netip.Prefix
}

// RequestContext puts the request id, trace id, client IP and acting user on
// the request context, so every log line written while serving carries them.
// The ids are echoed back as response headers.
func RequestContext(opts ContextOptions) func(http.Handler) http.Handler {
	idHeader := opts.RequestIDHeader
	if idHeader == "" {
		idHeader = "X-Request-ID"
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := headerOrNew(r, idHeader)
			traceID := headerOrNew(r, "X-Trace-ID")

			ctx := logger.WithValue(r.Context(), logger.ContextKeyRequestID, requestID)
			ctx = logger.WithValue(ctx, logger.ContextKeyTraceID, traceID)
			ctx = logger.WithValue(ctx, logger.ContextKeyClientIP, ClientIP(r, opts.TrustedProxies))
			if user := strings.TrimSpace(r.Header.Get("X-User-ID")); user != "" {
				ctx = logger.WithValue(ctx, logger.ContextKeyUserID, user)
			}

			w.Header().Set(idHeader, requestID)
			w.Header().Set("X-Trace-ID", traceID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func headerOrNew(r *http.Request, name string) string {
	if v := strings.TrimSpace(r.Header.Get(name)); v != "" && len(v) <= 128 {
		return v
	}
	return uuid.NewString()
}

// ClientIP returns the address of the client behind any proxies. With a
// trusted list, X-Forwarded-For is read right to left from a trusted peer
// and the first untrusted hop wins.
func ClientIP(r *http.Request, trusted []netip.Prefix) string {
	peer := r.RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		peer = host
	}

	if len(trusted) == 0 {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			return strings.TrimSpace(first)
		}
		if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
			return xri
		}
		return peer
	}

	addr, err := netip.ParseAddr(peer)
	if err != nil || !isTrusted(addr, trusted) {
		return peer
	}

	client := peer
	hops := strings.Split(r.Header.Get("X-Forwarded-For"), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		a, err := netip.ParseAddr(hop)
		if err != nil {
			break
		}
		client = hop
		if !isTrusted(a, trusted) {
			break
		}
	}
	return client
}

func isTrusted(addr netip.Addr, trusted []netip.Prefix) bool {
	addr = addr.Unmap()
	for _, p := range trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// ParseProxies accepts CIDR prefixes and bare addresses.
func ParseProxies(entries []string) ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(entries))
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if strings.Contains(e, "/") {
			p, err := netip.ParsePrefix(e)
			if err != nil {
				return nil, fmt.Errorf("trusted proxy %q: %w", e, err)
			}
			out = append(out, p.Masked())
			continue
		}
		a, err := netip.ParseAddr(e)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", e, err)
		}
		out = append(out, netip.PrefixFrom(a, a.BitLen()))
	}
	return out, nil
}

func writeError(w http.ResponseWriter, status int, message, requestID string) {
	body := map[string]string{"error": message}
	if requestID != "" {
		body["request_id"] = requestID
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
