package middleware_test

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redis_a "github.com/ammerola/storefront-ledger/internal/adapters/redis_adapter"
	"github.com/ammerola/storefront-ledger/internal/handlers/middleware"
	"github.com/ammerola/storefront-ledger/test/helpers"
)

func TestIdempotency(t *testing.T) {
	setup := func(t *testing.T, status int) (http.Handler, *int32, *helpers.TestRedis) {
		r := helpers.SetupTestRedis(t)
		cache := redis_a.NewCache(r.Client, time.Hour, helpers.TestLogger())
		store := redis_a.NewIdempotencyStore(cache, time.Hour)

		var calls int32
		handler := http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			n := atomic.AddInt32(&calls, 1)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			fmt.Fprintf(w, `{"order":"ORD-%d"}`, n)
		})
		return middleware.Idempotency(store, helpers.TestLogger())(handler), &calls, r
	}

	post := func(h http.Handler, key string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/pos/sales", strings.NewReader(`{}`))
		if key != "" {
			req.Header.Set(middleware.IdempotencyHeader, key)
		}
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w
	}

	t.Run("replays_first_response", func(t *testing.T) {
		h, calls, _ := setup(t, http.StatusCreated)

		first := post(h, "sale-1")
		second := post(h, "sale-1")

		assert.Equal(t, int32(1), atomic.LoadInt32(calls))
		assert.Equal(t, http.StatusCreated, second.Code)
		assert.Equal(t, first.Body.String(), second.Body.String())
		assert.Equal(t, "application/json", second.Header().Get("Content-Type"))
		assert.Equal(t, "true", second.Header().Get(middleware.ReplayedHeader))
		assert.Empty(t, first.Header().Get(middleware.ReplayedHeader))
	})

	t.Run("different_keys_run_separately", func(t *testing.T) {
		h, calls, _ := setup(t, http.StatusCreated)

		post(h, "a")
		post(h, "b")
		assert.Equal(t, int32(2), atomic.LoadInt32(calls))
	})

	t.Run("no_header_passes_through", func(t *testing.T) {
		h, calls, _ := setup(t, http.StatusCreated)

		post(h, "")
		post(h, "")
		assert.Equal(t, int32(2), atomic.LoadInt32(calls))
	})

	t.Run("client_errors_are_replayed", func(t *testing.T) {
		h, calls, _ := setup(t, http.StatusConflict)

		post(h, "k")
		w := post(h, "k")
		assert.Equal(t, int32(1), atomic.LoadInt32(calls))
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("server_errors_release_key", func(t *testing.T) {
		h, calls, r := setup(t, http.StatusInternalServerError)

		post(h, "k")
		assert.False(t, r.Server.Exists("idem:POST /api/v1/pos/sales:k"))
		post(h, "k")
		assert.Equal(t, int32(2), atomic.LoadInt32(calls))
	})

	t.Run("in_flight_key_conflicts", func(t *testing.T) {
		h, calls, r := setup(t, http.StatusCreated)
		require.NoError(t, r.Server.Set("idem:POST /api/v1/pos/sales:busy", `{"completed":false}`))

		w := post(h, "busy")
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Zero(t, atomic.LoadInt32(calls))
	})

	t.Run("oversized_key_rejected", func(t *testing.T) {
		h, calls, _ := setup(t, http.StatusCreated)

		w := post(h, strings.Repeat("x", 256))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Zero(t, atomic.LoadInt32(calls))
	})

	t.Run("store_outage_fails_open", func(t *testing.T) {
		h, calls, r := setup(t, http.StatusCreated)
		r.Server.Close()

		w := post(h, "k")
		assert.Equal(t, http.StatusCreated, w.Code)
		assert.Equal(t, int32(1), atomic.LoadInt32(calls))
	})
}
