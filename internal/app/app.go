// internal/app/app.go
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"github.com/ammerola/storefront-ledger/internal/adapters/db"
	"github.com/ammerola/storefront-ledger/internal/adapters/fiscal"
	"github.com/ammerola/storefront-ledger/internal/adapters/memory"
	redis_a "github.com/ammerola/storefront-ledger/internal/adapters/redis_adapter"
	"github.com/ammerola/storefront-ledger/internal/adapters/storage"
	"github.com/ammerola/storefront-ledger/internal/core/ports"
	"github.com/ammerola/storefront-ledger/internal/core/services"
	"github.com/ammerola/storefront-ledger/internal/pkg/config"
)

// Backends holds the adapters selected by configuration. Optional ones are
// nil when the configuration does not ask for them.
type Backends struct {
	Database ports.Database
	Redis    *redis.Client
	Cache    ports.Cache
	Store    ports.UnitOfWork
	Locker   ports.ProductLocker
	Carts    ports.CartRepository
	Reports  ports.ReportRepository
	Blobs    ports.BlobStorage

	sqlDB *sql.DB
}

// Close releases every open connection.
func (b *Backends) Close() {
	if b.sqlDB != nil {
		b.sqlDB.Close()
	}
	if b.Database != nil {
		b.Database.Close()
	}
	if b.Redis != nil {
		b.Redis.Close()
	}
}

// Open connects the backends named in cfg.Storage.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *Backends, err error) {
	b := &Backends{}
	defer func() {
		if err != nil {
			b.Close()
		}
	}()

	if cfg.UsesRedis() {
		logger.Info("connecting to Redis",
			slog.String("host", cfg.Redis.Host),
			slog.String("port", cfg.Redis.Port))

		client := redis.NewClient(RedisOptions(cfg))
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		b.Redis = client
		b.Cache = redis_a.NewCache(client, cfg.Redis.TTL, logger)
		b.Carts = redis_a.NewCartRepository(client, cfg.Redis.CartTTL)
	} else {
		b.Carts = memory.NewCartRepository()
	}

	switch cfg.Storage.LockBackend {
	case config.BackendRedis:
		b.Locker = redis_a.NewProductLocker(b.Redis, cfg.Ledger.LockTTL, cfg.Ledger.LockRetries, logger)
	default:
		b.Locker = memory.NewLocker()
	}

	switch cfg.Storage.Backend {
	case config.BackendPostgres:
		logger.Info("connecting to database",
			slog.String("host", cfg.Database.Host),
			slog.String("database", cfg.Database.Name))

		database, err := db.NewDatabase(ctx, &db.Config{
			Host:               cfg.Database.Host,
			Port:               cfg.Database.Port,
			User:               cfg.Database.User,
			Password:           cfg.Database.Password,
			Database:           cfg.Database.Name,
			SSLMode:            cfg.Database.SSLMode,
			ApplicationName:    cfg.App.Name,
			LockTimeout:        cfg.Ledger.LockTTL,
			MaxConnections:     cfg.Database.MaxConnections,
			MinConnections:     cfg.Database.MinConnections,
			MaxConnLifetime:    cfg.Database.MaxConnLifetime,
			MaxConnIdleTime:    cfg.Database.MaxConnIdleTime,
			HealthCheckPeriod:  cfg.Database.HealthCheckPeriod,
			ConnectTimeout:     cfg.Database.ConnectTimeout,
			StatementCacheMode: cfg.Database.StatementCacheMode,
			EnableQueryLogging: cfg.Database.EnableQueryLogging,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		b.Database = database
		b.Store = db.NewStore(database, logger)

		// Reports aggregate with database/sql over the same pool.
		b.sqlDB = stdlib.OpenDBFromPool(database.Pool())
		b.Reports = db.NewReportRepository(b.sqlDB, logger)
	default:
		store := memory.NewStore()
		b.Store = store
		b.Reports = memory.NewReportRepository(store)
	}

	switch cfg.Storage.BlobBackend {
	case config.BackendS3:
		blobs, err := storage.NewS3Storage(ctx, &storage.S3Config{
			Region:          cfg.AWS.Region,
			Bucket:          cfg.AWS.S3Bucket,
			AccessKeyID:     cfg.AWS.AccessKeyID,
			SecretAccessKey: cfg.AWS.SecretAccessKey,
			Endpoint:        cfg.AWS.S3Endpoint,
			UsePathStyle:    cfg.AWS.UsePathStyle,
			KeyPrefix:       cfg.AWS.S3KeyPrefix,
			Encryption:      cfg.AWS.S3Encryption,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize S3 storage: %w", err)
		}
		b.Blobs = blobs
	default:
		blobs, err := storage.NewLocalStorage(cfg.Storage.LocalBlobDir, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize local storage: %w", err)
		}
		b.Blobs = blobs
	}

	logger.Info("backends ready",
		slog.String("store", cfg.Storage.Backend),
		slog.String("locks", cfg.Storage.LockBackend),
		slog.String("blobs", cfg.Storage.BlobBackend))
	return b, nil
}

// Services is the application service graph.
type Services struct {
	Ledger    *services.LedgerService
	Orders    *services.OrderService
	Checkout  *services.CheckoutService
	Carts     *services.CartService
	POS       *services.POSService
	Receiving *services.ReceivingService
	Catalog   *services.CatalogService
	Importer  *services.ImportService
	Backup    *services.BackupService
	Store     *services.StoreService
	Reports   *services.ReportService
}

// NewServices wires the services over b. The fiscal key comes from the
// configuration or the secrets manager.
func NewServices(ctx context.Context, cfg *config.Config, b *Backends, logger *slog.Logger) (*Services, error) {
	secrets, err := config.NewSecretSource(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create secret source: %w", err)
	}
	key, err := config.ResolveFiscalKey(ctx, cfg, secrets)
	if err != nil {
		return nil, err
	}

	ledger := services.NewLedgerService(b.Store, b.Locker, cfg.Ledger.HistoryPageSize, logger)
	pos := services.NewPOSService(b.Store, ledger, fiscal.NewHMACSigner(key, logger), cfg.Ledger.VATRate, logger).
		WithSignerTimeout(cfg.Ledger.SignerTimeout)

	return &Services{
		Ledger:    ledger,
		Orders:    services.NewOrderService(b.Store, ledger, logger),
		Checkout:  services.NewCheckoutService(b.Store, ledger, b.Carts, logger),
		Carts:     services.NewCartService(b.Carts, b.Store.Products(), logger),
		POS:       pos,
		Receiving: services.NewReceivingService(b.Store, ledger, logger),
		Catalog:   services.NewCatalogService(b.Store, ledger, logger),
		Importer:  services.NewImportService(b.Store, ledger, logger),
		Backup:    services.NewBackupService(b.Store, b.Blobs, logger),
		Store:     services.NewStoreService(b.Store, logger),
		Reports:   services.NewReportService(b.Store, b.Reports, b.Cache, cfg.Ledger.DashboardTTL, logger),
	}, nil
}

// RedisOptions builds the go-redis options from cfg.Redis.
func RedisOptions(cfg *config.Config) *redis.Options {
	return &redis.Options{
		Addr:            cfg.GetRedisAddress(),
		Password:        cfg.Redis.Password,
		DB:              cfg.Redis.DB,
		MaxRetries:      cfg.Redis.MaxRetries,
		MinRetryBackoff: cfg.Redis.MinRetryBackoff,
		MaxRetryBackoff: cfg.Redis.MaxRetryBackoff,
		DialTimeout:     cfg.Redis.DialTimeout,
		ReadTimeout:     cfg.Redis.ReadTimeout,
		WriteTimeout:    cfg.Redis.WriteTimeout,
		PoolSize:        cfg.Redis.PoolSize,
		MinIdleConns:    cfg.Redis.MinIdleConns,
		PoolTimeout:     cfg.Redis.PoolTimeout,
	}
}

// AsynqRedis returns the connection options of the job queue.
func AsynqRedis(cfg *config.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Asynq.RedisAddr,
		Password: cfg.Asynq.RedisPassword,
		DB:       cfg.Asynq.RedisDB,
	}
}

// RunMigrations applies the SQL migrations when the Postgres backend is used.
func RunMigrations(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if cfg.Storage.Backend != config.BackendPostgres {
		return nil
	}
	logger.Info("running database migrations")

	_, err := db.Migrate(ctx, db.MigrationConfig{
		DatabaseURL: cfg.GetDatabaseURL(),
		SourcePath:  cfg.Database.MigrationPath,
		Attempts:    3,
	}, logger)
	return err
}
