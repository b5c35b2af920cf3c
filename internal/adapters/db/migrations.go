// internal/adapters/db/migrations.go
package db

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/file"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// MigrationConfig describes where the ledger schema comes from and how hard
// to try applying it. Without a SourcePath the embedded schema is used.
type MigrationConfig struct {
	DatabaseURL string
	SourcePath  string
	// ForceDirty clears a dirty flag left by a crashed run before migrating.
	ForceDirty  bool
	Attempts    int
	LockTimeout time.Duration
}

func (c MigrationConfig) withDefaults() MigrationConfig {
	if c.Attempts <= 0 {
		c.Attempts = 3
	}
	if c.LockTimeout <= 0 {
		c.LockTimeout = 5 * time.Minute
	}
	return c
}

// Migrate brings the schema up to date and returns the resulting version.
// Connection failures are retried with a linear backoff; a failing migration
// is not.
func Migrate(ctx context.Context, cfg MigrationConfig, logger *slog.Logger) (uint, error) {
	cfg = cfg.withDefaults()
	logger = logger.With(slog.String("component", "migrator"))

	var lastErr error
	for attempt := 1; attempt <= cfg.Attempts; attempt++ {
		if attempt > 1 {
			wait := time.Duration(attempt-1) * 2 * time.Second
			logger.InfoContext(ctx, "retrying migrations",
				slog.Int("attempt", attempt),
				slog.Duration("wait", wait))
			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			case <-time.After(wait):
			}
		}

		m, closeFn, err := openMigrator(ctx, cfg, logger)
		if err != nil {
			lastErr = err
			logger.ErrorContext(ctx, "migrator unavailable",
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()))
			continue
		}

		version, err := up(ctx, m, cfg, logger)
		closeFn()
		return version, err
	}

	return 0, fmt.Errorf("migrations failed after %d attempts: %w", cfg.Attempts, lastErr)
}

func openMigrator(ctx context.Context, cfg MigrationConfig, logger *slog.Logger) (*migrate.Migrate, func(), error) {
	conn, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	conn.SetMaxOpenConns(2)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("ping database: %w", err)
	}

	driver, err := postgres.WithInstance(conn, &postgres.Config{
		MigrationsTable:  "schema_migrations",
		StatementTimeout: 10 * time.Minute,
	})
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("postgres driver: %w", err)
	}

	src, name, err := migrationSource(cfg.SourcePath)
	if err != nil {
		conn.Close()
		return nil, nil, err
	}

	m, err := migrate.NewWithInstance(name, src, "postgres", driver)
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("create migrator: %w", err)
	}
	m.LockTimeout = cfg.LockTimeout
	m.Log = migrateLogger{logger: logger}

	closeFn := func() {
		if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
			logger.Warn("failed to close migrator",
				slog.Any("source_error", srcErr),
				slog.Any("db_error", dbErr))
		}
	}
	return m, closeFn, nil
}

func migrationSource(path string) (source.Driver, string, error) {
	if path == "" {
		src, err := iofs.New(embeddedMigrations, "migrations")
		if err != nil {
			return nil, "", fmt.Errorf("embedded migrations: %w", err)
		}
		return src, "iofs", nil
	}
	src, err := (&file.File{}).Open("file://" + path)
	if err != nil {
		return nil, "", fmt.Errorf("migrations at %s: %w", path, err)
	}
	return src, "file", nil
}

// up applies pending migrations. Cancelling ctx lets the running migration
// finish and skips the rest.
func up(ctx context.Context, m *migrate.Migrate, cfg MigrationConfig, logger *slog.Logger) (uint, error) {
	from, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	if dirty {
		if !cfg.ForceDirty {
			return from, fmt.Errorf("schema is dirty at version %d", from)
		}
		logger.WarnContext(ctx, "forcing dirty schema version", slog.Uint64("version", uint64(from)))
		if err := m.Force(int(from)); err != nil {
			return from, fmt.Errorf("force version %d: %w", from, err)
		}
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			m.GracefulStop <- true
		case <-done:
		}
	}()

	err = m.Up()
	switch {
	case errors.Is(err, migrate.ErrNoChange):
		logger.InfoContext(ctx, "schema up to date", slog.Uint64("version", uint64(from)))
		return from, nil
	case err != nil:
		return from, fmt.Errorf("apply migrations: %w", err)
	}

	to, _, err := m.Version()
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	logger.InfoContext(ctx, "schema migrated",
		slog.Uint64("from", uint64(from)),
		slog.Uint64("to", uint64(to)))
	return to, nil
}

// migrateLogger routes golang-migrate output into slog at debug level.
type migrateLogger struct {
	logger *slog.Logger
}

func (l migrateLogger) Printf(format string, v ...any) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l migrateLogger) Verbose() bool {
	return l.logger.Enabled(context.Background(), slog.LevelDebug)
}
