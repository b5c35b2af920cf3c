package handlers_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ammerola/storefront-ledger/internal/core/ports"
	"github.com/ammerola/storefront-ledger/internal/handlers"
	"github.com/ammerola/storefront-ledger/test/helpers"
)

type fakeQueues struct {
	infos map[string]*asynq.QueueInfo
	err   error
}

func (f fakeQueues) Queues() ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	names := make([]string, 0, len(f.infos))
	for name := range f.infos {
		names = append(names, name)
	}
	return names, nil
}

func (f fakeQueues) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	return f.infos[queue], nil
}

func (f fakeQueues) Servers() ([]*asynq.ServerInfo, error) {
	return []*asynq.ServerInfo{{ID: "w1"}}, nil
}

type fakePool ports.PoolHealth

func (f fakePool) Health(context.Context) ports.PoolHealth { return ports.PoolHealth(f) }

func TestQueueCheck(t *testing.T) {
	t.Run("sums_backlog", func(t *testing.T) {
		check := handlers.QueueCheck(fakeQueues{infos: map[string]*asynq.QueueInfo{
			"ledger":  {Size: 5, Pending: 3, Retry: 1, Archived: 1},
			"default": {Size: 2, Pending: 2},
		}})

		details, err := check(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 5, details["pending"])
		assert.Equal(t, 1, details["retry"])
		assert.Equal(t, 1, details["archived"])
		assert.Equal(t, map[string]int{"ledger": 5, "default": 2}, details["queues"])
		assert.Equal(t, 1, details["servers"])
	})

	t.Run("inspector_error", func(t *testing.T) {
		_, err := handlers.QueueCheck(fakeQueues{err: errors.New("redis down")})(context.Background())
		assert.EqualError(t, err, "redis down")
	})
}

func TestPoolCheck(t *testing.T) {
	details, err := handlers.PoolCheck(fakePool{Healthy: true, MaxConns: 10, LedgerHead: 42})(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(42), details["ledger_head"])

	details, err = handlers.PoolCheck(fakePool{Error: "relation does not exist", MaxConns: 10})(context.Background())
	assert.EqualError(t, err, "relation does not exist")
	assert.Equal(t, int32(10), details["max_conns"])
}

func TestHealthHandler(t *testing.T) {
	slow := func(ctx context.Context) (map[string]any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	up := func(context.Context) (map[string]any, error) { return map[string]any{"n": 1}, nil }

	t.Run("probe_timeout_marks_dependency_down", func(t *testing.T) {
		h := handlers.NewHealthHandler(map[string]handlers.CheckFunc{"postgres": up, "redis": slow}, nil, "v1", "test", helpers.TestLogger())

		start := time.Now()
		w := httptest.NewRecorder()
		h.Health(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Less(t, time.Since(start), 5*time.Second)

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		var status handlers.HealthStatus
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
		assert.Equal(t, "degraded", status.Status)
		assert.Equal(t, "up", status.Services["postgres"].Status)
		assert.Equal(t, "down", status.Services["redis"].Status)
		assert.Contains(t, status.Services["redis"].Error, "deadline exceeded")
		assert.NotEmpty(t, status.Runtime.GoVersion)
	})

	t.Run("readiness_includes_queues", func(t *testing.T) {
		queues := fakeQueues{infos: map[string]*asynq.QueueInfo{"ledger": {Size: 1}}}
		h := handlers.NewHealthHandler(map[string]handlers.CheckFunc{"postgres": up}, queues, "v1", "test", helpers.TestLogger())

		w := httptest.NewRecorder()
		h.Readiness(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		var body struct {
			Ready   bool              `json:"ready"`
			Details map[string]string `json:"details"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.True(t, body.Ready)
		assert.Equal(t, map[string]string{"postgres": "up", "asynq": "up"}, body.Details)
		assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	})
}
