// cmd/worker/main.go
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/spf13/afero"

	"github.com/ammerola/storefront-ledger/internal/app"
	"github.com/ammerola/storefront-ledger/internal/pkg/config"
	"github.com/ammerola/storefront-ledger/internal/pkg/logger"
	"github.com/ammerola/storefront-ledger/internal/workers"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Error("worker stopped", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// run starts the job server and the periodic scheduler, then blocks until
// ctx is cancelled.
func run(ctx context.Context) error {
	cfg, err := config.Load(logger.SetupLogger("info", "json"))
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	log := logger.SetupLogger(cfg.App.LogLevel, cfg.App.LogFormat)
	slog.SetDefault(log)
	if cfg.Storage.Backend != config.BackendPostgres {
		log.Warn("worker runs against a private in-memory store; jobs will not see API data")
	}

	backends, err := app.Open(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("open backends: %w", err)
	}
	defer backends.Close()

	svc, err := app.NewServices(ctx, cfg, backends, log)
	if err != nil {
		return fmt.Errorf("build services: %w", err)
	}

	queues := cfg.Asynq.Queues
	if len(queues) == 0 {
		queues = workers.Queues
	}
	redisOpt := app.AsynqRedis(cfg)
	asynqLog := logger.NewAsynqLogger(log)

	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency:     cfg.Asynq.Concurrency,
		Queues:          queues,
		StrictPriority:  cfg.Asynq.StrictPriority,
		ErrorHandler:    asynq.ErrorHandlerFunc(reportExhausted),
		RetryDelayFunc:  workers.RetryDelay,
		ShutdownTimeout: cfg.Asynq.ShutdownTimeout,
		HealthCheckFunc: func(err error) {
			if err != nil {
				log.Error("worker lost redis", slog.String("error", err.Error()))
			}
		},
		Logger: asynqLog,
	})

	mux := workers.NewServeMux(workers.Processors{
		Import: workers.NewImportProcessor(svc.Importer, svc.Reports, log),
		Backup: workers.NewBackupProcessor(svc.Backup, log),
		Reconcile: workers.NewReconcileProcessor(
			backends.Store.Products(), svc.Ledger, svc.Reports, cfg.Asynq.Concurrency, log),
		Cleanup: workers.NewCleanupProcessor(
			afero.NewOsFs(), cfg.Import.TempDir, cfg.Import.TempFileMaxAge, backends.Cache, log),
	}, log)

	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{
		Logger: asynqLog,
		PostEnqueueFunc: func(info *asynq.TaskInfo, err error) {
			if err != nil {
				log.Error("periodic task not enqueued", slog.String("error", err.Error()))
			}
		},
	})
	err = workers.RegisterPeriodic(scheduler, workers.Schedule{
		Reconcile: cfg.Asynq.ReconcileCron,
		Backup:    cfg.Asynq.BackupCron,
		Cleanup:   cfg.Asynq.CleanupCron,
	})
	if err != nil {
		return fmt.Errorf("register periodic tasks: %w", err)
	}

	if err := srv.Start(mux); err != nil {
		return fmt.Errorf("start job server: %w", err)
	}
	if err := scheduler.Start(); err != nil {
		srv.Shutdown()
		return fmt.Errorf("start scheduler: %w", err)
	}
	log.Info("worker started",
		slog.String("redis", cfg.Asynq.RedisAddr),
		slog.Int("concurrency", cfg.Asynq.Concurrency),
		slog.Any("queues", queues))

	<-ctx.Done()
	log.Info("shutting down worker")

	scheduler.Shutdown()
	srv.Shutdown()
	log.Info("worker shutdown complete")
	return nil
}

// reportExhausted logs a task only once it has used up its retries.
func reportExhausted(ctx context.Context, task *asynq.Task, err error) {
	retried, _ := asynq.GetRetryCount(ctx)
	maxRetry, _ := asynq.GetMaxRetry(ctx)
	if retried < maxRetry {
		return
	}
	slog.ErrorContext(ctx, "task exhausted its retries",
		slog.String("type", task.Type()),
		slog.Int("retried", retried),
		slog.String("error", err.Error()))
}
