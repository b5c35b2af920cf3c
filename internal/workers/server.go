// internal/workers/server.go
package workers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/ammerola/storefront-ledger/internal/pkg/logger"
)

// Processors groups the task handlers served by cmd/worker.
type Processors struct {
	Import    *ImportProcessor
	Backup    *BackupProcessor
	Reconcile *ReconcileProcessor
	Cleanup   *CleanupProcessor
}

// NewServeMux routes every task type to its processor and tags the context
// with the task id for logging.
func NewServeMux(p Processors, l *slog.Logger) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Use(loggingMiddleware(l))

	if p.Import != nil {
		mux.HandleFunc(TypeProductImport, p.Import.ProcessImport)
	}
	if p.Backup != nil {
		mux.HandleFunc(TypeBackupExport, p.Backup.ExportBackup)
	}
	if p.Reconcile != nil {
		mux.HandleFunc(TypeLedgerReconcile, p.Reconcile.ReconcileLedger)
	}
	if p.Cleanup != nil {
		mux.HandleFunc(TypeCleanupTempFiles, p.Cleanup.CleanupTempFiles)
		mux.HandleFunc(TypeCleanupCache, p.Cleanup.CleanupCache)
	}
	return mux
}

func loggingMiddleware(l *slog.Logger) asynq.MiddlewareFunc {
	return func(next asynq.Handler) asynq.Handler {
		return asynq.HandlerFunc(func(ctx context.Context, t *asynq.Task) error {
			start := time.Now()
			if id, ok := asynq.GetTaskID(ctx); ok {
				ctx = logger.WithValue(ctx, logger.ContextKeyTaskID, id)
			}

			err := next.ProcessTask(ctx, t)

			attrs := []any{
				slog.String("type", t.Type()),
				slog.Duration("duration", time.Since(start)),
			}
			if err != nil {
				l.ErrorContext(ctx, "task failed", append(attrs, slog.Any("error", err))...)
				return err
			}
			l.InfoContext(ctx, "task completed", attrs...)
			return nil
		})
	}
}

// Schedule is the cron spec of each periodic task. Empty specs are skipped.
type Schedule struct {
	Reconcile string
	Backup    string
	Cleanup   string
}

// RegisterPeriodic adds the periodic tasks to scheduler.
func RegisterPeriodic(scheduler *asynq.Scheduler, s Schedule) error {
	entries := []struct {
		spec string
		task *asynq.Task
	}{
		{s.Reconcile, NewReconcileTask()},
		{s.Backup, NewBackupTask()},
		{s.Cleanup, asynq.NewTask(TypeCleanupTempFiles, nil, asynq.Queue(QueueLow), asynq.MaxRetry(1))},
		{s.Cleanup, asynq.NewTask(TypeCleanupCache, nil, asynq.Queue(QueueLow), asynq.MaxRetry(1))},
	}
	for _, e := range entries {
		if e.spec == "" {
			continue
		}
		if _, err := scheduler.Register(e.spec, e.task); err != nil {
			return fmt.Errorf("failed to schedule %s: %w", e.task.Type(), err)
		}
	}
	return nil
}

// RetryDelay backs off exponentially from one second up to ten minutes.
func RetryDelay(n int, _ error, _ *asynq.Task) time.Duration {
	delay := time.Second << min(n, 20)
	return min(delay, 10*time.Minute)
}
