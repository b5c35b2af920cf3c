// internal/pkg/config/config.go
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// ErrMissingRequiredConfig is returned when a required setting is empty.
var ErrMissingRequiredConfig = errors.New("missing required configuration")

// Backend names
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendLocal    = "local"
	BackendRedis    = "redis"
	BackendS3       = "s3"
)

// Config holds all application configuration
type Config struct {
	// Application
	App AppConfig

	// Database
	Database DatabaseConfig

	// Redis
	Redis RedisConfig

	// Asynq
	Asynq AsynqConfig

	// AWS
	AWS AWSConfig

	// Storage backends
	Storage StorageConfig

	// Ledger and sales
	Ledger LedgerConfig

	// Imports and temp files
	Import ImportConfig

	// Security
	Security SecurityConfig

	// Server
	Server ServerConfig
}

// AppConfig holds application-specific configuration
type AppConfig struct {
	Name        string `validate:"required"`
	Environment string // development, staging, production
	Version     string
	LogLevel    string
	LogFormat   string // json, text, pretty
	Debug       bool
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host               string
	Port               string
	User               string
	Password           string
	Name               string
	SSLMode            string
	MaxConnections     int32 `validate:"gtefield=MinConnections"`
	MinConnections     int32
	MaxConnLifetime    time.Duration
	MaxConnIdleTime    time.Duration
	HealthCheckPeriod  time.Duration
	ConnectTimeout     time.Duration
	StatementCacheMode string
	EnableQueryLogging bool
	MigrationPath      string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host            string
	Port            string
	Password        string
	DB              int
	MaxRetries      int
	MinRetryBackoff time.Duration
	MaxRetryBackoff time.Duration
	DialTimeout     time.Duration
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	PoolSize        int `validate:"gt=0"`
	MinIdleConns    int
	PoolTimeout     time.Duration
	TTL             time.Duration
	CartTTL         time.Duration
}

// AsynqConfig holds Asynq configuration
type AsynqConfig struct {
	RedisAddr            string
	RedisPassword        string
	RedisDB              int
	Concurrency          int
	Queues               map[string]int // queue name -> priority
	StrictPriority       bool
	RetryMax             int
	ShutdownTimeout      time.Duration
	HealthCheckInterval  time.Duration
	DelayedTaskCheckTime time.Duration
	ReconcileCron        string
	BackupCron           string
	CleanupCron          string
}

// AWSConfig holds AWS configuration
type AWSConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	S3Bucket        string
	S3Endpoint      string // For MinIO in development
	UsePathStyle    bool   // For MinIO compatibility
	S3KeyPrefix     string // Shared buckets keep each deployment under its own prefix
	S3Encryption    string `validate:"omitempty,oneof=AES256 aws:kms"`
	SecretName      string // Secrets Manager secret holding the fiscal key
}

// StorageConfig selects the adapters behind the ports
type StorageConfig struct {
	Backend      string `validate:"oneof=memory postgres"`
	LockBackend  string `validate:"oneof=local redis"`
	BlobBackend  string `validate:"oneof=local s3"`
	LocalBlobDir string
}

// LedgerConfig holds stock ledger and sales settings
type LedgerConfig struct {
	VATRate         decimal.Decimal `validate:"gte=0,lt=1"`
	LockTTL         time.Duration   `validate:"gt=0"`
	LockRetries     int
	HistoryPageSize int
	FiscalKey       string
	SignerTimeout   time.Duration
	DashboardTTL    time.Duration
}

// ImportConfig holds product import settings
type ImportConfig struct {
	MaxUploadMB       int
	ProcessingTimeout time.Duration
	TempDir           string
	CleanupInterval   time.Duration
	TempFileMaxAge    time.Duration
}

// SecurityConfig holds security configuration
type SecurityConfig struct {
	RateLimitRequests int `validate:"gt=0"`
	RateLimitDuration time.Duration
	AllowedOrigins    []string
	TrustedProxies    []string
	SecureHeaders     bool
	RequestIDHeader   string
	IdempotencyTTL    time.Duration
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host              string
	Port              string `validate:"required,numeric"`
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	RequestTimeout    time.Duration
	MaxHeaderBytes    int
	GracefulTimeout   time.Duration
	EnableHealthCheck bool
	TLSEnabled        bool
	TLSCertFile       string `validate:"required_if=TLSEnabled true"`
	TLSKeyFile        string `validate:"required_if=TLSEnabled true"`
}

// Load loads configuration from environment variables
func Load(logger *slog.Logger) (*Config, error) {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}

	// Load .env file in development
	if env == "development" || env == "local" {
		if err := godotenv.Load(); err != nil {
			logger.Warn("no .env file found, using environment variables",
				slog.String("error", err.Error()))
		} else {
			logger.Info(".env file loaded successfully")
		}
	}

	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults(v, env)

	vatRate, err := decimal.NewFromString(v.GetString("LEDGER_VAT_RATE"))
	if err != nil {
		return nil, fmt.Errorf("invalid LEDGER_VAT_RATE: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:        v.GetString("APP_NAME"),
			Environment: env,
			Version:     v.GetString("APP_VERSION"),
			LogLevel:    v.GetString("LOG_LEVEL"),
			LogFormat:   v.GetString("LOG_FORMAT"),
			Debug:       v.GetBool("APP_DEBUG"),
		},
		Database: DatabaseConfig{
			Host:               v.GetString("DB_HOST"),
			Port:               v.GetString("DB_PORT"),
			User:               v.GetString("DB_USER"),
			Password:           v.GetString("DB_PASSWORD"),
			Name:               v.GetString("DB_NAME"),
			SSLMode:            v.GetString("DB_SSL_MODE"),
			MaxConnections:     v.GetInt32("DB_MAX_CONNECTIONS"),
			MinConnections:     v.GetInt32("DB_MIN_CONNECTIONS"),
			MaxConnLifetime:    v.GetDuration("DB_CONNECTION_LIFETIME"),
			MaxConnIdleTime:    v.GetDuration("DB_IDLE_TIME"),
			HealthCheckPeriod:  v.GetDuration("DB_HEALTH_CHECK_PERIOD"),
			ConnectTimeout:     v.GetDuration("DB_CONNECT_TIMEOUT"),
			StatementCacheMode: v.GetString("DB_STATEMENT_CACHE_MODE"),
			EnableQueryLogging: v.GetBool("DB_QUERY_LOGGING"),
			MigrationPath:      v.GetString("DB_MIGRATION_PATH"),
		},
		Redis: RedisConfig{
			Host:            v.GetString("REDIS_HOST"),
			Port:            v.GetString("REDIS_PORT"),
			Password:        v.GetString("REDIS_PASSWORD"),
			DB:              v.GetInt("REDIS_DB"),
			MaxRetries:      v.GetInt("REDIS_MAX_RETRIES"),
			MinRetryBackoff: v.GetDuration("REDIS_MIN_RETRY_BACKOFF"),
			MaxRetryBackoff: v.GetDuration("REDIS_MAX_RETRY_BACKOFF"),
			DialTimeout:     v.GetDuration("REDIS_DIAL_TIMEOUT"),
			ReadTimeout:     v.GetDuration("REDIS_READ_TIMEOUT"),
			WriteTimeout:    v.GetDuration("REDIS_WRITE_TIMEOUT"),
			PoolSize:        v.GetInt("REDIS_POOL_SIZE"),
			MinIdleConns:    v.GetInt("REDIS_MIN_IDLE_CONNS"),
			PoolTimeout:     v.GetDuration("REDIS_POOL_TIMEOUT"),
			TTL:             v.GetDuration("REDIS_TTL"),
			CartTTL:         v.GetDuration("REDIS_CART_TTL"),
		},
		Asynq: AsynqConfig{
			RedisAddr:            fmt.Sprintf("%s:%s", v.GetString("REDIS_HOST"), v.GetString("REDIS_PORT")),
			RedisPassword:        v.GetString("REDIS_PASSWORD"),
			RedisDB:              v.GetInt("ASYNQ_REDIS_DB"),
			Concurrency:          v.GetInt("ASYNQ_CONCURRENCY"),
			Queues:               parseQueues(v.GetString("ASYNQ_QUEUES")),
			StrictPriority:       v.GetBool("ASYNQ_STRICT_PRIORITY"),
			RetryMax:             v.GetInt("ASYNQ_RETRY_MAX"),
			ShutdownTimeout:      v.GetDuration("ASYNQ_SHUTDOWN_TIMEOUT"),
			HealthCheckInterval:  v.GetDuration("ASYNQ_HEALTH_CHECK_INTERVAL"),
			DelayedTaskCheckTime: v.GetDuration("ASYNQ_DELAYED_TASK_CHECK"),
			ReconcileCron:        v.GetString("ASYNQ_RECONCILE_CRON"),
			BackupCron:           v.GetString("ASYNQ_BACKUP_CRON"),
			CleanupCron:          v.GetString("ASYNQ_CLEANUP_CRON"),
		},
		AWS: AWSConfig{
			Region:          v.GetString("AWS_REGION"),
			AccessKeyID:     v.GetString("AWS_ACCESS_KEY_ID"),
			SecretAccessKey: v.GetString("AWS_SECRET_ACCESS_KEY"),
			S3Bucket:        v.GetString("AWS_S3_BUCKET"),
			S3Endpoint:      v.GetString("AWS_S3_ENDPOINT"),
			UsePathStyle:    v.GetBool("AWS_S3_PATH_STYLE"),
			S3KeyPrefix:     v.GetString("AWS_S3_PREFIX"),
			S3Encryption:    v.GetString("AWS_S3_SSE"),
			SecretName:      v.GetString("AWS_SECRET_NAME"),
		},
		Storage: StorageConfig{
			Backend:      strings.ToLower(v.GetString("STORAGE_BACKEND")),
			LockBackend:  strings.ToLower(v.GetString("LOCK_BACKEND")),
			BlobBackend:  strings.ToLower(v.GetString("BLOB_BACKEND")),
			LocalBlobDir: v.GetString("BLOB_LOCAL_DIR"),
		},
		Ledger: LedgerConfig{
			VATRate:         vatRate,
			LockTTL:         v.GetDuration("LEDGER_LOCK_TTL"),
			LockRetries:     v.GetInt("LEDGER_LOCK_RETRIES"),
			HistoryPageSize: v.GetInt("LEDGER_HISTORY_PAGE_SIZE"),
			FiscalKey:       v.GetString("FISCAL_SIGNING_KEY"),
			SignerTimeout:   v.GetDuration("FISCAL_SIGNER_TIMEOUT"),
			DashboardTTL:    v.GetDuration("DASHBOARD_CACHE_TTL"),
		},
		Import: ImportConfig{
			MaxUploadMB:       v.GetInt("IMPORT_MAX_UPLOAD_MB"),
			ProcessingTimeout: v.GetDuration("PROCESSING_TIMEOUT"),
			TempDir:           v.GetString("TEMP_DIR"),
			CleanupInterval:   v.GetDuration("CLEANUP_INTERVAL"),
			TempFileMaxAge:    v.GetDuration("TEMP_FILE_MAX_AGE"),
		},
		Security: SecurityConfig{
			RateLimitRequests: v.GetInt("RATE_LIMIT_REQUESTS"),
			RateLimitDuration: v.GetDuration("RATE_LIMIT_DURATION"),
			AllowedOrigins:    getSlice(v, "ALLOWED_ORIGINS"),
			TrustedProxies:    getSlice(v, "TRUSTED_PROXIES"),
			SecureHeaders:     v.GetBool("SECURE_HEADERS"),
			RequestIDHeader:   v.GetString("REQUEST_ID_HEADER"),
			IdempotencyTTL:    v.GetDuration("IDEMPOTENCY_TTL"),
		},
		Server: ServerConfig{
			Host:              v.GetString("SERVER_HOST"),
			Port:              v.GetString("SERVER_PORT"),
			ReadTimeout:       v.GetDuration("SERVER_READ_TIMEOUT"),
			WriteTimeout:      v.GetDuration("SERVER_WRITE_TIMEOUT"),
			IdleTimeout:       v.GetDuration("SERVER_IDLE_TIMEOUT"),
			RequestTimeout:    v.GetDuration("SERVER_REQUEST_TIMEOUT"),
			MaxHeaderBytes:    v.GetInt("SERVER_MAX_HEADER_BYTES"),
			GracefulTimeout:   v.GetDuration("SERVER_GRACEFUL_TIMEOUT"),
			EnableHealthCheck: v.GetBool("ENABLE_HEALTH_CHECK"),
			TLSEnabled:        v.GetBool("TLS_ENABLED"),
			TLSCertFile:       v.GetString("TLS_CERT_FILE"),
			TLSKeyFile:        v.GetString("TLS_KEY_FILE"),
		},
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// GetDatabaseURL returns the formatted database connection string
func (c *Config) GetDatabaseURL() string {
	return fmt.Sprintf(
		"postgresql://%s:%s@%s:%s/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

// GetServerAddress returns the formatted server address
func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%s", c.Server.Host, c.Server.Port)
}

// GetRedisAddress returns host:port of the Redis server
func (c *Config) GetRedisAddress() string {
	return fmt.Sprintf("%s:%s", c.Redis.Host, c.Redis.Port)
}

// IsProduction returns true if running in production
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// IsDevelopment returns true if running in development
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development" || c.App.Environment == "local"
}

// UsesRedis reports whether any configured backend needs Redis
func (c *Config) UsesRedis() bool {
	return c.Storage.LockBackend == BackendRedis || c.Storage.Backend == BackendPostgres
}

// Helper functions

func setDefaults(v *viper.Viper, env string) {
	dev := env == "development"

	v.SetDefault("APP_NAME", "storefront-ledger")
	v.SetDefault("APP_VERSION", "dev")
	v.SetDefault("LOG_LEVEL", "debug")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("APP_DEBUG", dev)

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "ledger")
	v.SetDefault("DB_PASSWORD", "ledger_dev")
	v.SetDefault("DB_NAME", "storefront_ledger")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_CONNECTIONS", 25)
	v.SetDefault("DB_MIN_CONNECTIONS", 5)
	v.SetDefault("DB_CONNECTION_LIFETIME", time.Hour)
	v.SetDefault("DB_IDLE_TIME", 30*time.Minute)
	v.SetDefault("DB_HEALTH_CHECK_PERIOD", time.Minute)
	v.SetDefault("DB_CONNECT_TIMEOUT", 10*time.Second)
	v.SetDefault("DB_STATEMENT_CACHE_MODE", "describe")
	v.SetDefault("DB_QUERY_LOGGING", dev)
	v.SetDefault("DB_MIGRATION_PATH", "migrations")

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_MAX_RETRIES", 3)
	v.SetDefault("REDIS_MIN_RETRY_BACKOFF", 8*time.Millisecond)
	v.SetDefault("REDIS_MAX_RETRY_BACKOFF", 512*time.Millisecond)
	v.SetDefault("REDIS_DIAL_TIMEOUT", 5*time.Second)
	v.SetDefault("REDIS_READ_TIMEOUT", 3*time.Second)
	v.SetDefault("REDIS_WRITE_TIMEOUT", 3*time.Second)
	v.SetDefault("REDIS_POOL_SIZE", 10)
	v.SetDefault("REDIS_MIN_IDLE_CONNS", 2)
	v.SetDefault("REDIS_POOL_TIMEOUT", 4*time.Second)
	v.SetDefault("REDIS_TTL", time.Hour)
	v.SetDefault("REDIS_CART_TTL", 72*time.Hour)

	v.SetDefault("ASYNQ_REDIS_DB", 0)
	v.SetDefault("ASYNQ_CONCURRENCY", 10)
	v.SetDefault("ASYNQ_QUEUES", "critical:6,default:3,low:1")
	v.SetDefault("ASYNQ_STRICT_PRIORITY", false)
	v.SetDefault("ASYNQ_RETRY_MAX", 3)
	v.SetDefault("ASYNQ_SHUTDOWN_TIMEOUT", 30*time.Second)
	v.SetDefault("ASYNQ_HEALTH_CHECK_INTERVAL", 30*time.Second)
	v.SetDefault("ASYNQ_DELAYED_TASK_CHECK", 5*time.Second)
	v.SetDefault("ASYNQ_RECONCILE_CRON", "@every 1h")
	v.SetDefault("ASYNQ_BACKUP_CRON", "0 3 * * *")
	v.SetDefault("ASYNQ_CLEANUP_CRON", "@every 1h")

	v.SetDefault("AWS_REGION", "us-east-1")
	v.SetDefault("AWS_ACCESS_KEY_ID", "minioadmin")
	v.SetDefault("AWS_SECRET_ACCESS_KEY", "minioadmin123")
	v.SetDefault("AWS_S3_BUCKET", "storefront-backups")
	v.SetDefault("AWS_S3_ENDPOINT", "")
	v.SetDefault("AWS_S3_PATH_STYLE", dev)
	v.SetDefault("AWS_S3_PREFIX", "")
	v.SetDefault("AWS_S3_SSE", "")
	v.SetDefault("AWS_SECRET_NAME", "")

	v.SetDefault("STORAGE_BACKEND", BackendPostgres)
	v.SetDefault("LOCK_BACKEND", BackendRedis)
	v.SetDefault("BLOB_BACKEND", BackendLocal)
	v.SetDefault("BLOB_LOCAL_DIR", "./data/blobs")

	v.SetDefault("LEDGER_VAT_RATE", "0.18")
	v.SetDefault("LEDGER_LOCK_TTL", 10*time.Second)
	v.SetDefault("LEDGER_LOCK_RETRIES", 50)
	v.SetDefault("LEDGER_HISTORY_PAGE_SIZE", 100)
	v.SetDefault("FISCAL_SIGNING_KEY", defaultFiscalKey(env))
	v.SetDefault("FISCAL_SIGNER_TIMEOUT", 3*time.Second)
	v.SetDefault("DASHBOARD_CACHE_TTL", time.Minute)

	v.SetDefault("IMPORT_MAX_UPLOAD_MB", 20)
	v.SetDefault("PROCESSING_TIMEOUT", 5*time.Minute)
	v.SetDefault("TEMP_DIR", os.TempDir())
	v.SetDefault("CLEANUP_INTERVAL", time.Hour)
	v.SetDefault("TEMP_FILE_MAX_AGE", 24*time.Hour)

	v.SetDefault("RATE_LIMIT_REQUESTS", 100)
	v.SetDefault("RATE_LIMIT_DURATION", time.Minute)
	v.SetDefault("ALLOWED_ORIGINS", "*")
	v.SetDefault("TRUSTED_PROXIES", "")
	v.SetDefault("SECURE_HEADERS", env == "production")
	v.SetDefault("REQUEST_ID_HEADER", "X-Request-ID")
	v.SetDefault("IDEMPOTENCY_TTL", 24*time.Hour)

	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("SERVER_READ_TIMEOUT", 15*time.Second)
	v.SetDefault("SERVER_WRITE_TIMEOUT", 30*time.Second)
	v.SetDefault("SERVER_IDLE_TIMEOUT", 60*time.Second)
	v.SetDefault("SERVER_REQUEST_TIMEOUT", 25*time.Second)
	v.SetDefault("SERVER_MAX_HEADER_BYTES", 1<<20) // 1 MB
	v.SetDefault("SERVER_GRACEFUL_TIMEOUT", 30*time.Second)
	v.SetDefault("ENABLE_HEALTH_CHECK", true)
	v.SetDefault("TLS_ENABLED", false)
	v.SetDefault("TLS_CERT_FILE", "")
	v.SetDefault("TLS_KEY_FILE", "")
}

func getSlice(v *viper.Viper, key string) []string {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseQueues(queuesStr string) map[string]int {
	queues := make(map[string]int)
	pairs := strings.Split(queuesStr, ",")
	for _, pair := range pairs {
		parts := strings.Split(pair, ":")
		if len(parts) == 2 {
			name := strings.TrimSpace(parts[0])
			priority, err := strconv.Atoi(strings.TrimSpace(parts[1]))
			if err == nil {
				queues[name] = priority
			}
		}
	}
	if len(queues) == 0 {
		queues["default"] = 1
	}
	return queues
}

func defaultFiscalKey(env string) string {
	if env == "production" {
		return "" // resolved from the secrets manager
	}
	return "development-fiscal-key-change-in-production"
}
