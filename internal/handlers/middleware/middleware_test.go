package middleware_test

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ammerola/storefront-ledger/internal/handlers/middleware"
	"github.com/ammerola/storefront-ledger/internal/pkg/logger"
	"github.com/ammerola/storefront-ledger/test/helpers"
)

func TestRequestContext(t *testing.T) {
	tests := []struct {
		name     string
		opts     middleware.ContextOptions
		headers  map[string]string
		validate func(t *testing.T, ctx context.Context, resp http.Header)
	}{
		{
			name: "generates_ids",
			validate: func(t *testing.T, ctx context.Context, resp http.Header) {
				id := resp.Get("X-Request-ID")
				assert.Len(t, id, 36)
				assert.Equal(t, id, logger.Value(ctx, logger.ContextKeyRequestID))
				assert.Len(t, resp.Get("X-Trace-ID"), 36)
			},
		},
		{
			name:    "keeps_upstream_ids",
			headers: map[string]string{"X-Request-ID": "existing-id-123", "X-Trace-ID": "trace-9"},
			validate: func(t *testing.T, ctx context.Context, resp http.Header) {
				assert.Equal(t, "existing-id-123", resp.Get("X-Request-ID"))
				assert.Equal(t, "trace-9", logger.Value(ctx, logger.ContextKeyTraceID))
			},
		},
		{
			name:    "oversized_id_is_replaced",
			headers: map[string]string{"X-Request-ID": string(bytes.Repeat([]byte("a"), 200))},
			validate: func(t *testing.T, ctx context.Context, resp http.Header) {
				assert.Len(t, resp.Get("X-Request-ID"), 36)
			},
		},
		{
			name:    "custom_header_name",
			opts:    middleware.ContextOptions{RequestIDHeader: "X-Correlation-ID"},
			headers: map[string]string{"X-Correlation-ID": "corr-1"},
			validate: func(t *testing.T, ctx context.Context, resp http.Header) {
				assert.Equal(t, "corr-1", resp.Get("X-Correlation-ID"))
				assert.Empty(t, resp.Get("X-Request-ID"))
				assert.Equal(t, "corr-1", logger.Value(ctx, logger.ContextKeyRequestID))
			},
		},
		{
			name:    "user_and_client",
			headers: map[string]string{"X-User-ID": " clerk-7 ", "X-Forwarded-For": "10.0.0.9, 172.16.0.1"},
			validate: func(t *testing.T, ctx context.Context, resp http.Header) {
				assert.Equal(t, "clerk-7", logger.Value(ctx, logger.ContextKeyUserID))
				assert.Equal(t, "10.0.0.9", logger.Value(ctx, logger.ContextKeyClientIP))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen context.Context
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = r.Context()
			})

			req := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			w := httptest.NewRecorder()
			middleware.RequestContext(tt.opts)(handler).ServeHTTP(w, req)

			require.NotNil(t, seen)
			tt.validate(t, seen, w.Header())
		})
	}
}

func TestAccessLog(t *testing.T) {
	var buf bytes.Buffer
	l := logger.New(&logger.LogConfig{Level: "info", Format: "json", Output: &buf})

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte("test response"))
	})
	wrapped := middleware.Chain(handler,
		middleware.RequestContext(middleware.ContextOptions{}),
		middleware.AccessLog(l))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/pos/sales", nil)
	req.Header.Set("X-Request-ID", "test-123")
	w := httptest.NewRecorder()
	wrapped.ServeHTTP(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "test response", w.Body.String())

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "WARN", record["severity"])
	assert.Equal(t, "test-123", record["request_id"])

	response := record["response"].(map[string]any)
	assert.Equal(t, float64(http.StatusConflict), response["status"])
	assert.Equal(t, float64(len("test response")), response["bytes"])
	assert.Equal(t, "/api/v1/pos/sales", record["request"].(map[string]any)["path"])
}

func TestRecovery(t *testing.T) {
	log := helpers.TestLogger()

	tests := []struct {
		name           string
		handler        http.HandlerFunc
		expectedStatus int
		expectedBody   string
	}{
		{
			name: "recovers_from_panic",
			handler: func(w http.ResponseWriter, r *http.Request) {
				panic("test panic")
			},
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   `"request_id":"test-123"`,
		},
		{
			name: "passes_through_normal_response",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				w.Write([]byte("normal response"))
			},
			expectedStatus: http.StatusOK,
			expectedBody:   "normal response",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := middleware.Recovery(log)(tt.handler)

			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			req = req.WithContext(logger.WithValue(req.Context(), logger.ContextKeyRequestID, "test-123"))
			w := httptest.NewRecorder()

			wrapped.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Contains(t, w.Body.String(), tt.expectedBody)
		})
	}

	t.Run("abort_handler_is_reraised", func(t *testing.T) {
		wrapped := middleware.Recovery(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic(http.ErrAbortHandler)
		}))

		assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
			wrapped.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/test", nil))
		})
	})
}

func TestRateLimit(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	send := func(h http.Handler, remote, xff string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.RemoteAddr = remote
		if xff != "" {
			req.Header.Set("X-Forwarded-For", xff)
		}
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w
	}

	t.Run("per_client_allowance", func(t *testing.T) {
		wrapped := middleware.RateLimit(2, time.Minute, nil)(handler)

		for i := 0; i < 2; i++ {
			assert.Equal(t, http.StatusOK, send(wrapped, "127.0.0.1:1234", "").Code)
		}

		w := send(wrapped, "127.0.0.1:1234", "")
		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Equal(t, "30", w.Header().Get("Retry-After"))
		assert.Contains(t, w.Body.String(), "Rate limit exceeded")

		assert.Equal(t, http.StatusOK, send(wrapped, "192.168.1.1:5678", "").Code)
	})

	t.Run("forwarded_clients_behind_trusted_proxy", func(t *testing.T) {
		trusted := []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")}
		wrapped := middleware.RateLimit(1, time.Minute, trusted)(handler)

		assert.Equal(t, http.StatusOK, send(wrapped, "10.0.0.2:80", "203.0.113.5").Code)
		assert.Equal(t, http.StatusOK, send(wrapped, "10.0.0.2:80", "203.0.113.6").Code)
		assert.Equal(t, http.StatusTooManyRequests, send(wrapped, "10.0.0.2:80", "203.0.113.5").Code)
	})
}

func TestClientIP(t *testing.T) {
	trusted, err := middleware.ParseProxies([]string{"10.0.0.0/8", "192.168.1.10"})
	require.NoError(t, err)

	tests := []struct {
		name    string
		trusted []netip.Prefix
		remote  string
		xff     string
		realIP  string
		want    string
	}{
		{name: "peer_only", remote: "198.51.100.1:443", want: "198.51.100.1"},
		{name: "untrusted_list_takes_leftmost", remote: "10.0.0.2:80", xff: "203.0.113.5, 10.0.0.3", want: "203.0.113.5"},
		{name: "real_ip_fallback", remote: "10.0.0.2:80", realIP: "203.0.113.7", want: "203.0.113.7"},
		{name: "untrusted_peer_ignores_headers", trusted: trusted, remote: "198.51.100.1:443", xff: "203.0.113.5", want: "198.51.100.1"},
		{name: "walks_back_through_trusted_hops", trusted: trusted, remote: "10.0.0.2:80", xff: "1.1.1.1, 203.0.113.5, 10.0.0.3", want: "203.0.113.5"},
		{name: "single_address_entry", trusted: trusted, remote: "192.168.1.10:80", xff: "203.0.113.9", want: "203.0.113.9"},
		{name: "garbage_hop_stops_walk", trusted: trusted, remote: "10.0.0.2:80", xff: "203.0.113.5, not-an-ip", want: "10.0.0.2"},
		{name: "all_hops_trusted", trusted: trusted, remote: "10.0.0.2:80", xff: "10.1.1.1", want: "10.1.1.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.realIP != "" {
				req.Header.Set("X-Real-IP", tt.realIP)
			}
			assert.Equal(t, tt.want, middleware.ClientIP(req, tt.trusted))
		})
	}
}

func TestParseProxies(t *testing.T) {
	t.Run("prefixes_and_addresses", func(t *testing.T) {
		got, err := middleware.ParseProxies([]string{" 10.1.2.3/8 ", "", "::1"})
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "10.0.0.0/8", got[0].String())
		assert.Equal(t, "::1/128", got[1].String())
	})

	t.Run("invalid_entry", func(t *testing.T) {
		_, err := middleware.ParseProxies([]string{"10.0.0.0/8", "proxy.internal"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), `"proxy.internal"`)
	})
}

func TestCORS(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name           string
		allowedOrigins []string
		requestOrigin  string
		requestMethod  string
		expectedStatus int
		checkHeaders   func(*testing.T, http.Header)
	}{
		{
			name:           "allows_wildcard_origin",
			allowedOrigins: []string{"*"},
			requestOrigin:  "https://example.com",
			requestMethod:  http.MethodGet,
			expectedStatus: http.StatusOK,
			checkHeaders: func(t *testing.T, headers http.Header) {
				assert.Equal(t, "https://example.com", headers.Get("Access-Control-Allow-Origin"))
				assert.Equal(t, "Origin", headers.Get("Vary"))
			},
		},
		{
			name:           "allows_specific_origin",
			allowedOrigins: []string{"https://app.example.com/", "https://admin.example.com"},
			requestOrigin:  "https://app.example.com",
			requestMethod:  http.MethodGet,
			expectedStatus: http.StatusOK,
			checkHeaders: func(t *testing.T, headers http.Header) {
				assert.Equal(t, "https://app.example.com", headers.Get("Access-Control-Allow-Origin"))
				assert.Contains(t, headers.Get("Access-Control-Expose-Headers"), "Idempotent-Replayed")
			},
		},
		{
			name:           "handles_preflight_request",
			allowedOrigins: []string{"*"},
			requestOrigin:  "https://example.com",
			requestMethod:  http.MethodOptions,
			expectedStatus: http.StatusNoContent,
			checkHeaders: func(t *testing.T, headers http.Header) {
				assert.Equal(t, "https://example.com", headers.Get("Access-Control-Allow-Origin"))
				assert.NotEmpty(t, headers.Get("Access-Control-Allow-Methods"))
				assert.Contains(t, headers.Get("Access-Control-Allow-Headers"), "Idempotency-Key")
			},
		},
		{
			name:           "blocks_unallowed_origin",
			allowedOrigins: []string{"https://allowed.com"},
			requestOrigin:  "https://notallowed.com",
			requestMethod:  http.MethodGet,
			expectedStatus: http.StatusOK,
			checkHeaders: func(t *testing.T, headers http.Header) {
				assert.Empty(t, headers.Get("Access-Control-Allow-Origin"))
			},
		},
		{
			name:           "no_origin_header",
			allowedOrigins: []string{"*"},
			requestMethod:  http.MethodGet,
			expectedStatus: http.StatusOK,
			checkHeaders: func(t *testing.T, headers http.Header) {
				assert.Empty(t, headers.Get("Access-Control-Allow-Origin"))
				assert.Empty(t, headers.Get("Vary"))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := middleware.CORS(tt.allowedOrigins)(handler)

			req := httptest.NewRequest(tt.requestMethod, "/test", nil)
			if tt.requestOrigin != "" {
				req.Header.Set("Origin", tt.requestOrigin)
			}
			w := httptest.NewRecorder()

			wrapped.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			tt.checkHeaders(t, w.Header())
		})
	}
}

func TestTimeout(t *testing.T) {
	tests := []struct {
		name         string
		timeout      time.Duration
		handlerDelay time.Duration
		wantErr      error
	}{
		{
			name:         "completes_within_timeout",
			timeout:      time.Second,
			handlerDelay: 10 * time.Millisecond,
		},
		{
			name:         "deadline_reaches_handler",
			timeout:      20 * time.Millisecond,
			handlerDelay: time.Second,
			wantErr:      context.DeadlineExceeded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got error
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, ok := r.Context().Deadline()
				assert.True(t, ok)
				select {
				case <-time.After(tt.handlerDelay):
				case <-r.Context().Done():
					got = r.Context().Err()
				}
			})

			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			middleware.Timeout(tt.timeout)(handler).ServeHTTP(httptest.NewRecorder(), req)

			assert.ErrorIs(t, got, tt.wantErr)
		})
	}
}

func TestCompression(t *testing.T) {
	const payload = `{"products":[]}`
	wrapped := middleware.Compression(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(payload))
	}))

	gzipRequest := func(method string) *http.Request {
		req := httptest.NewRequest(method, "/api/v1/backup", nil)
		req.Header.Set("Accept-Encoding", "gzip, deflate")
		return req
	}

	t.Run("gzips_when_accepted", func(t *testing.T) {
		// Twice, so the second response reuses a pooled writer.
		for i := 0; i < 2; i++ {
			w := httptest.NewRecorder()
			wrapped.ServeHTTP(w, gzipRequest(http.MethodGet))

			assert.Equal(t, "gzip", w.Header().Get("Content-Encoding"))
			assert.Equal(t, "Accept-Encoding", w.Header().Get("Vary"))
			zr, err := gzip.NewReader(w.Body)
			require.NoError(t, err)
			body, err := io.ReadAll(zr)
			require.NoError(t, err)
			assert.Equal(t, payload, string(body))
		}
	})

	t.Run("plain_otherwise", func(t *testing.T) {
		w := httptest.NewRecorder()
		wrapped.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/backup", nil))

		assert.Empty(t, w.Header().Get("Content-Encoding"))
		assert.Equal(t, payload, w.Body.String())
	})

	t.Run("gzip_refused_with_zero_quality", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/backup", nil)
		req.Header.Set("Accept-Encoding", "br, gzip; q=0")
		w := httptest.NewRecorder()
		wrapped.ServeHTTP(w, req)

		assert.Empty(t, w.Header().Get("Content-Encoding"))
		assert.Equal(t, payload, w.Body.String())
	})

	t.Run("head_passes_through", func(t *testing.T) {
		w := httptest.NewRecorder()
		wrapped.ServeHTTP(w, gzipRequest(http.MethodHead))

		assert.Empty(t, w.Header().Get("Content-Encoding"))
	})

	t.Run("no_content_is_not_encoded", func(t *testing.T) {
		h := middleware.Compression(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}))
		w := httptest.NewRecorder()
		h.ServeHTTP(w, gzipRequest(http.MethodDelete))

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Empty(t, w.Header().Get("Content-Encoding"))
		assert.Zero(t, w.Body.Len())
	})

	t.Run("handler_encoding_wins", func(t *testing.T) {
		h := middleware.Compression(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Encoding", "identity")
			w.Write([]byte(payload))
		}))
		w := httptest.NewRecorder()
		h.ServeHTTP(w, gzipRequest(http.MethodGet))

		assert.Equal(t, "identity", w.Header().Get("Content-Encoding"))
		assert.Equal(t, payload, w.Body.String())
	})
}

func TestSecureHeaders(t *testing.T) {
	t.Run("plain_http", func(t *testing.T) {
		w := httptest.NewRecorder()
		middleware.SecureHeaders(http.NotFoundHandler()).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
		assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
		assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
		assert.Empty(t, w.Header().Get("Strict-Transport-Security"))
	})

	t.Run("tls_adds_hsts", func(t *testing.T) {
		w := httptest.NewRecorder()
		middleware.SecureHeaders(http.NotFoundHandler()).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "https://ledger.local/", nil))

		assert.Contains(t, w.Header().Get("Strict-Transport-Security"), "max-age=")
	})
}

func TestContentTypeJSON(t *testing.T) {
	t.Run("defaults_to_json", func(t *testing.T) {
		wrapped := middleware.ContentTypeJSON(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

		rec := httptest.NewRecorder()
		wrapped.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil))
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	})

	t.Run("handler_overrides", func(t *testing.T) {
		const xlsx = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
		wrapped := middleware.ContentTypeJSON(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", xlsx)
			w.WriteHeader(http.StatusOK)
		}))

		rec := httptest.NewRecorder()
		wrapped.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/export/orders.xlsx", nil))
		assert.Equal(t, xlsx, rec.Header().Get("Content-Type"))
	})
}
