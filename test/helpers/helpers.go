package helpers

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/ammerola/storefront-ledger/internal/adapters/db"
	"github.com/ammerola/storefront-ledger/internal/core/domain"
	"github.com/ammerola/storefront-ledger/internal/pkg/config"
)

// TestFiscalKey signs counter sales in tests.
const TestFiscalKey = "test-fiscal-key-0123456789abcdefghijkl"

// ledgerTables lists every table TruncateAllTables clears.
var ledgerTables = []string{
	"stock_movements",
	"invoices",
	"orders",
	"sales_buckets",
	"purchase_orders",
	"vendors",
	"customers",
	"store_profile",
	"products",
}

// TestDB is a migrated Postgres running in a throwaway container.
type TestDB struct {
	Pool     *pgxpool.Pool
	Database *db.Database
	DSN      string
}

// TestRedis pairs a go-redis client with the miniredis server behind it.
type TestRedis struct {
	Client *redis.Client
	Server *miniredis.Miniredis
}

// TestLogger logs at debug under -v and stays quiet otherwise.
func TestLogger() *slog.Logger {
	if !testing.Verbose() {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// SetupTestDB starts postgres:16-alpine, waits for it to accept connections
// and applies the embedded schema. The container is purged on cleanup.
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()

	pool, err := dockertest.NewPool("")
	require.NoError(t, err, "Could not connect to Docker")
	pool.MaxWait = 90 * time.Second

	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "postgres",
		Tag:        "16-alpine",
		Env: []string{
			"POSTGRES_USER=ledger",
			"POSTGRES_PASSWORD=ledger",
			"POSTGRES_DB=ledger_test",
		},
	}, func(hc *docker.HostConfig) {
		hc.AutoRemove = true
		hc.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	require.NoError(t, err, "Could not start PostgreSQL container")
	_ = resource.Expire(300)

	t.Cleanup(func() {
		if err := pool.Purge(resource); err != nil {
			t.Logf("purge postgres container: %v", err)
		}
	})

	cfg := &db.Config{
		Host:               "localhost",
		Port:               resource.GetPort("5432/tcp"),
		User:               "ledger",
		Password:           "ledger",
		Database:           "ledger_test",
		SSLMode:            "disable",
		ApplicationName:    "storefront-ledger-test",
		MaxConnections:     8,
		MinConnections:     1,
		MaxConnLifetime:    time.Hour,
		MaxConnIdleTime:    time.Minute,
		HealthCheckPeriod:  time.Minute,
		ConnectTimeout:     5 * time.Second,
		StatementCacheMode: "describe",
		EnableQueryLogging: testing.Verbose(),
	}
	dsn := fmt.Sprintf("postgresql://%s:%s@%s:%s/%s?sslmode=disable",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database)

	ctx := context.Background()
	var database *db.Database
	require.NoError(t, pool.Retry(func() error {
		var err error
		database, err = db.NewDatabase(ctx, cfg, TestLogger())
		return err
	}), "Could not connect to PostgreSQL")
	t.Cleanup(database.Close)

	version, err := db.Migrate(ctx, db.MigrationConfig{DatabaseURL: dsn}, TestLogger())
	require.NoError(t, err, "Could not run migrations")
	require.NotZero(t, version)

	return &TestDB{Pool: database.Pool(), Database: database, DSN: dsn}
}

// TruncateAllTables empties the ledger schema in one statement.
func TruncateAllTables(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()

	stmt := "TRUNCATE TABLE " + strings.Join(ledgerTables, ", ") + " RESTART IDENTITY CASCADE"
	_, err := pool.Exec(context.Background(), stmt)
	require.NoError(t, err, "Failed to truncate ledger tables")
}

// SetupTestRedis starts a miniredis server and a client pointed at it.
func SetupTestRedis(t *testing.T) *TestRedis {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return &TestRedis{Client: client, Server: mr}
}

// SetupMockDB returns a sqlmock-backed *sql.DB for the report queries.
func SetupMockDB(t *testing.T) (sqlmock.Sqlmock, *sql.DB) {
	t.Helper()

	conn, mock, err := sqlmock.New()
	require.NoError(t, err, "Failed to create mock DB")
	t.Cleanup(func() { _ = conn.Close() })

	return mock, conn
}

// LoadTestConfig is a config for the in-memory backends: no Postgres, no
// Redis, local blobs and a fixed fiscal key.
func LoadTestConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{
			Name:        "test-api",
			Environment: "test",
			Version:     "test",
			LogLevel:    "debug",
			LogFormat:   "text",
			Debug:       true,
		},
		Database: config.DatabaseConfig{
			Host:               "localhost",
			Port:               "5432",
			User:               "test",
			Password:           "test",
			Name:               "test_ledger",
			SSLMode:            "disable",
			MaxConnections:     10,
			MinConnections:     2,
			EnableQueryLogging: true,
		},
		Redis: config.RedisConfig{
			Host:     "localhost",
			Port:     "6379",
			TTL:      time.Hour,
			CartTTL:  time.Hour,
			PoolSize: 10,
		},
		Storage: config.StorageConfig{
			Backend:      config.BackendMemory,
			LockBackend:  config.BackendLocal,
			BlobBackend:  config.BackendLocal,
			LocalBlobDir: os.TempDir(),
		},
		Ledger: config.LedgerConfig{
			VATRate:         decimal.RequireFromString("0.18"),
			LockTTL:         5 * time.Second,
			LockRetries:     10,
			HistoryPageSize: 2,
			FiscalKey:       TestFiscalKey,
			SignerTimeout:   time.Second,
			DashboardTTL:    time.Minute,
		},
		Import: config.ImportConfig{
			MaxUploadMB:       10,
			ProcessingTimeout: 5 * time.Minute,
			TempDir:           os.TempDir(),
			TempFileMaxAge:    time.Hour,
		},
		Security: config.SecurityConfig{
			RateLimitRequests: 100,
			RateLimitDuration: time.Minute,
			AllowedOrigins:    []string{"*"},
			RequestIDHeader:   "X-Request-ID",
			IdempotencyTTL:    time.Hour,
		},
		Server: config.ServerConfig{
			Host:           "localhost",
			Port:           "8080",
			ReadTimeout:    15 * time.Second,
			WriteTimeout:   15 * time.Second,
			RequestTimeout: 10 * time.Second,
		},
	}
}

// CreateTestProduct builds an unsaved brake pad product with zero stock.
func CreateTestProduct(overrides ...func(*domain.Product)) *domain.Product {
	now := time.Now().UTC()
	p := &domain.Product{
		ID:            "PROD-" + uuid.NewString()[:8],
		Name:          "Brake Pad Set",
		SKU:           "BP-1001",
		PartNumber:    "BP-1001-F",
		Brand:         "Stopwell",
		Price:         decimal.RequireFromString("10.00"),
		CostPrice:     decimal.RequireFromString("6.50"),
		MinStockLevel: 2,
		Category:      "Brakes",
		UOM:           domain.DefaultUnitOfMeasure,
		VATRate:       decimal.RequireFromString("0.18"),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	for _, override := range overrides {
		override(p)
	}
	return p
}

// LoadFixture reads test/fixtures/<name>.
func LoadFixture(t *testing.T, name string) []byte {
	t.Helper()

	_, self, _, _ := runtime.Caller(0)
	data, err := os.ReadFile(filepath.Join(filepath.Dir(self), "..", "fixtures", name))
	require.NoError(t, err, "Failed to load fixture: %s", name)
	return data
}

// CreateTempFile writes content to a file in the test's temp dir and returns
// its path.
func CreateTempFile(t *testing.T, content []byte, extension string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "upload-"+uuid.NewString()[:8]+extension)
	require.NoError(t, os.WriteFile(path, content, 0o600), "Failed to write temp file")
	return path
}
