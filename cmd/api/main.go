// cmd/api/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	redis_a "github.com/ammerola/storefront-ledger/internal/adapters/redis_adapter"
	"github.com/ammerola/storefront-ledger/internal/app"
	"github.com/ammerola/storefront-ledger/internal/handlers"
	"github.com/ammerola/storefront-ledger/internal/handlers/middleware"
	"github.com/ammerola/storefront-ledger/internal/pkg/config"
	"github.com/ammerola/storefront-ledger/internal/pkg/logger"
)

// Build information injected at compile time
var (
	Version   = "dev"
	BuildTime = "unknown"
	GoVersion = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Error("storefront ledger API stopped", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	boot := logger.SetupLogger("debug", "json")
	boot.Info("starting storefront ledger API",
		slog.String("version", Version),
		slog.String("build_time", BuildTime),
		slog.String("go_version", GoVersion))

	cfg, err := config.Load(boot)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	log := logger.SetupLogger(cfg.App.LogLevel, cfg.App.LogFormat)
	slog.SetDefault(log)
	log.Info("configuration loaded",
		slog.String("environment", cfg.App.Environment),
		slog.String("storage", cfg.Storage.Backend),
		slog.String("locks", cfg.Storage.LockBackend),
		slog.String("blobs", cfg.Storage.BlobBackend))

	// Production schemas are migrated by the deploy pipeline.
	if !cfg.IsProduction() {
		if err := app.RunMigrations(ctx, cfg, log); err != nil {
			log.Error("failed to run migrations", slog.String("error", err.Error()))
		}
	}

	deps, err := initializeDependencies(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("initialize dependencies: %w", err)
	}
	defer deps.cleanup()

	server, err := setupHTTPServer(cfg, deps, log)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting HTTP server",
			slog.String("address", server.Addr),
			slog.Bool("tls", cfg.Server.TLSEnabled))

		var err error
		if cfg.Server.TLSEnabled {
			err = server.ListenAndServeTLS(cfg.Server.TLSCertFile, cfg.Server.TLSKeyFile)
		} else {
			err = server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down HTTP server")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.Server.GracefulTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			_ = server.Close()
			return fmt.Errorf("graceful shutdown: %w", err)
		}
		log.Info("server shutdown complete")
		return nil
	})

	return g.Wait()
}

// dependencies holds all application dependencies
type dependencies struct {
	backends       *app.Backends
	services       *app.Services
	asynqClient    *asynq.Client
	asynqInspector *asynq.Inspector
}

func (d *dependencies) cleanup() {
	if d.asynqClient != nil {
		_ = d.asynqClient.Close()
	}
	if d.asynqInspector != nil {
		_ = d.asynqInspector.Close()
	}
	if d.backends != nil {
		d.backends.Close()
	}
}

func initializeDependencies(ctx context.Context, cfg *config.Config, log *slog.Logger) (*dependencies, error) {
	backends, err := app.Open(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	deps := &dependencies{backends: backends}

	if deps.services, err = app.NewServices(ctx, cfg, backends, log); err != nil {
		deps.cleanup()
		return nil, err
	}

	// Workers see API writes only through Postgres; with the memory store
	// imports run inline instead.
	if cfg.Asynq.RedisAddr != "" && cfg.Storage.Backend == config.BackendPostgres {
		deps.asynqClient = asynq.NewClient(app.AsynqRedis(cfg))
		deps.asynqInspector = asynq.NewInspector(app.AsynqRedis(cfg))
		log.Info("background jobs enabled", slog.String("redis", cfg.Asynq.RedisAddr))
	}

	return deps, nil
}

func setupHTTPServer(cfg *config.Config, deps *dependencies, log *slog.Logger) (*http.Server, error) {
	proxies, err := middleware.ParseProxies(cfg.Security.TrustedProxies)
	if err != nil {
		return nil, fmt.Errorf("TRUSTED_PROXIES: %w", err)
	}

	opts := handlers.RouterOptions{
		ExportTTL:         cfg.Redis.TTL,
		Checks:            map[string]handlers.CheckFunc{},
		Version:           Version,
		Environment:       cfg.App.Environment,
		MaxUploadBytes:    int64(cfg.Import.MaxUploadMB) << 20,
		UploadDir:         cfg.Import.TempDir,
		RequestTimeout:    cfg.Server.RequestTimeout,
		RequestIDHeader:   cfg.Security.RequestIDHeader,
		TrustedProxies:    proxies,
		RateLimitRequests: cfg.Security.RateLimitRequests,
		RateLimitWindow:   cfg.Security.RateLimitDuration,
		AllowedOrigins:    cfg.Security.AllowedOrigins,
		SecureHeaders:     cfg.Security.SecureHeaders,
		DisableHealth:     !cfg.Server.EnableHealthCheck,
		DisableAccessLogs: cfg.App.Environment == "test",
	}

	b := deps.backends
	if b.Database != nil {
		opts.Checks["database"] = handlers.PoolCheck(b.Database)
	}
	if b.Redis != nil {
		opts.Checks["redis"] = handlers.RedisCheck(b.Redis)
	}
	if b.Cache != nil {
		opts.Cache = b.Cache
		opts.Idempotency = redis_a.NewIdempotencyStore(b.Cache, cfg.Security.IdempotencyTTL)
	}
	if deps.asynqClient != nil {
		opts.Tasks = deps.asynqClient
		opts.Inspector = deps.asynqInspector
		opts.Queues = deps.asynqInspector
	}

	svc := deps.services
	router := handlers.NewRouter(handlers.Services{
		Ledger:    svc.Ledger,
		Orders:    svc.Orders,
		Checkout:  svc.Checkout,
		Carts:     svc.Carts,
		POS:       svc.POS,
		Receiving: svc.Receiving,
		Catalog:   svc.Catalog,
		Importer:  svc.Importer,
		Backup:    svc.Backup,
		Store:     svc.Store,
		Reports:   svc.Reports,
	}, opts, log)

	return &http.Server{
		Addr:           cfg.GetServerAddress(),
		Handler:        router,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
		ErrorLog:       slog.NewLogLogger(log.Handler(), slog.LevelError),
	}, nil
}
