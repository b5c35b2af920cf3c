// internal/handlers/health.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"runtime"
	"slices"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/ammerola/storefront-ledger/internal/core/ports"
)

const (
	statusUp       = "up"
	statusDown     = "down"
	statusDegraded = "degraded"
	statusOK       = "ok"

	// checkTimeout bounds each dependency probe; a slow dependency is down.
	checkTimeout = 2 * time.Second
)

// CheckFunc probes one dependency. Details are optional.
type CheckFunc func(ctx context.Context) (map[string]any, error)

// QueueInspector is the part of *asynq.Inspector the health check reads.
type QueueInspector interface {
	Queues() ([]string, error)
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
	Servers() ([]*asynq.ServerInfo, error)
}

// HealthHandler serves liveness and readiness. Every probe runs
// concurrently under its own deadline.
type HealthHandler struct {
	checks      map[string]CheckFunc
	version     string
	environment string
	started     time.Time
	logger      *slog.Logger
}

// NewHealthHandler registers checks. A non-nil inspector adds an "asynq"
// check over the background job queues.
func NewHealthHandler(checks map[string]CheckFunc, inspector QueueInspector, version, environment string, logger *slog.Logger) *HealthHandler {
	all := make(map[string]CheckFunc, len(checks)+1)
	for name, fn := range checks {
		all[name] = fn
	}
	if inspector != nil {
		all["asynq"] = QueueCheck(inspector)
	}
	return &HealthHandler{
		checks:      all,
		version:     version,
		environment: environment,
		started:     time.Now(),
		logger:      logger.With(slog.String("handler", "health")),
	}
}

// HealthStatus is the /health document.
type HealthStatus struct {
	Status      string                 `json:"status"`
	Version     string                 `json:"version"`
	Environment string                 `json:"environment"`
	Uptime      string                 `json:"uptime"`
	Timestamp   time.Time              `json:"timestamp"`
	Services    map[string]ServiceInfo `json:"services"`
	Runtime     RuntimeInfo            `json:"runtime"`
}

// ServiceInfo is one dependency's probe result.
type ServiceInfo struct {
	Status  string         `json:"status"`
	Error   string         `json:"error,omitempty"`
	Latency string         `json:"latency"`
	Details map[string]any `json:"details,omitempty"`
}

type RuntimeInfo struct {
	GoVersion  string `json:"go_version"`
	Goroutines int    `json:"goroutines"`
	HeapMB     uint64 `json:"heap_mb"`
	GCCycles   uint32 `json:"gc_cycles"`
}

// Health reports every dependency. Any failed probe answers 503 with
// status "degraded".
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	services := h.probe(r.Context())

	status := HealthStatus{
		Status:      statusOK,
		Version:     h.version,
		Environment: h.environment,
		Uptime:      time.Since(h.started).Round(time.Second).String(),
		Timestamp:   time.Now().UTC(),
		Services:    services,
		Runtime:     runtimeInfo(),
	}
	code := http.StatusOK
	if !allUp(services) {
		status.Status = statusDegraded
		code = http.StatusServiceUnavailable
	}
	h.write(r.Context(), w, code, status)
}

// Readiness answers whether the instance can take traffic.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	services := h.probe(r.Context())

	details := make(map[string]string, len(services))
	for name, s := range services {
		details[name] = s.Status
	}
	ready := allUp(services)
	code := http.StatusOK
	if !ready {
		code = http.StatusServiceUnavailable
	}
	h.write(r.Context(), w, code, map[string]any{"ready": ready, "details": details})
}

// probe runs all checks in parallel. Results land in a pre-sized slice so
// the goroutines never share a map.
func (h *HealthHandler) probe(ctx context.Context) map[string]ServiceInfo {
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	slices.Sort(names)

	results := make([]ServiceInfo, len(names))
	var g errgroup.Group
	for i, name := range names {
		g.Go(func() error {
			results[i] = h.run(ctx, name, h.checks[name])
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string]ServiceInfo, len(names))
	for i, name := range names {
		out[name] = results[i]
	}
	return out
}

func (h *HealthHandler) run(ctx context.Context, name string, check CheckFunc) ServiceInfo {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	start := time.Now()
	details, err := check(ctx)
	info := ServiceInfo{Status: statusUp, Details: details, Latency: time.Since(start).String()}
	if err != nil {
		info.Status = statusDown
		info.Error = err.Error()
		h.logger.WarnContext(ctx, "dependency check failed",
			slog.String("dependency", name),
			slog.String("error", err.Error()))
	}
	return info
}

func allUp(services map[string]ServiceInfo) bool {
	for _, s := range services {
		if s.Status != statusUp {
			return false
		}
	}
	return true
}

func (h *HealthHandler) write(ctx context.Context, w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.ErrorContext(ctx, "failed to encode health response", slog.String("error", err.Error()))
	}
}

func runtimeInfo() RuntimeInfo {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return RuntimeInfo{
		GoVersion:  runtime.Version(),
		Goroutines: runtime.NumGoroutine(),
		HeapMB:     m.HeapAlloc >> 20,
		GCCycles:   m.NumGC,
	}
}

// RedisCheck pings Redis and reports pool statistics.
func RedisCheck(client *redis.Client) CheckFunc {
	return func(ctx context.Context) (map[string]any, error) {
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, err
		}
		stats := client.PoolStats()
		return map[string]any{
			"total_conns": stats.TotalConns,
			"idle_conns":  stats.IdleConns,
			"timeouts":    stats.Timeouts,
		}, nil
	}
}

// PoolCheck reports pgx pool statistics and the ledger head. An unhealthy
// pool fails the check.
func PoolCheck(db interface {
	Health(ctx context.Context) ports.PoolHealth
}) CheckFunc {
	return func(ctx context.Context) (map[string]any, error) {
		h := db.Health(ctx)
		details := map[string]any{
			"acquired_conns": h.AcquiredConns,
			"idle_conns":     h.IdleConns,
			"max_conns":      h.MaxConns,
			"ledger_head":    h.LedgerHead,
		}
		if !h.Healthy {
			return details, errors.New(h.Error)
		}
		return details, nil
	}
}

// QueueCheck sums the job backlog across asynq queues. Archived tasks are
// jobs that exhausted their retries and need an operator.
func QueueCheck(inspector QueueInspector) CheckFunc {
	return func(context.Context) (map[string]any, error) {
		queues, err := inspector.Queues()
		if err != nil {
			return nil, err
		}

		var pending, retry, archived int
		sizes := make(map[string]int, len(queues))
		for _, q := range queues {
			info, err := inspector.GetQueueInfo(q)
			if err != nil {
				return nil, err
			}
			sizes[q] = info.Size
			pending += info.Pending
			retry += info.Retry
			archived += info.Archived
		}

		details := map[string]any{
			"queues":   sizes,
			"pending":  pending,
			"retry":    retry,
			"archived": archived,
		}
		if servers, err := inspector.Servers(); err == nil {
			details["servers"] = len(servers)
		}
		return details, nil
	}
}
