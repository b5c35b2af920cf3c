// internal/workers/cleanup_processor.go
package workers

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/hibiken/asynq"
	"github.com/spf13/afero"

	redis_a "github.com/ammerola/storefront-ledger/internal/adapters/redis_adapter"
	"github.com/ammerola/storefront-ledger/internal/core/ports"
)

// UploadPrefix starts the names of import uploads in the temp dir. Cleanup
// only touches files with this prefix.
const UploadPrefix = "ledger-import-"

// CleanupProcessor handles cleanup tasks
type CleanupProcessor struct {
	fs      afero.Fs
	tempDir string
	maxAge  time.Duration
	cache   ports.Cache
	now     func() time.Time
	logger  *slog.Logger
}

// NewCleanupProcessor creates a new cleanup processor. cache may be nil.
func NewCleanupProcessor(fsys afero.Fs, tempDir string, maxAge time.Duration, cache ports.Cache, logger *slog.Logger) *CleanupProcessor {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}
	return &CleanupProcessor{
		fs:      fsys,
		tempDir: tempDir,
		maxAge:  maxAge,
		cache:   cache,
		now:     time.Now,
		logger:  logger.With(slog.String("processor", "cleanup")),
	}
}

// CleanupTempFiles removes import uploads older than maxAge that no import
// task picked up.
func (p *CleanupProcessor) CleanupTempFiles(ctx context.Context, t *asynq.Task) error {
	entries, err := afero.ReadDir(p.fs, p.tempDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read temp directory: %w", err)
	}

	cutoff := p.now().Add(-p.maxAge)
	var deleted int
	for _, info := range entries {
		if info.IsDir() || !hasUploadPrefix(info.Name()) || info.ModTime().After(cutoff) {
			continue
		}
		path := p.tempDir + string(os.PathSeparator) + info.Name()
		if err := p.fs.Remove(path); err != nil {
			p.logger.WarnContext(ctx, "failed to delete temp file",
				slog.String("file", path),
				slog.Any("error", err))
			continue
		}
		deleted++
	}

	p.logger.InfoContext(ctx, "temp files cleaned up",
		slog.Int("files_deleted", deleted))

	return nil
}

// CleanupCache drops derived cache entries so they are rebuilt from the store.
func (p *CleanupProcessor) CleanupCache(ctx context.Context, t *asynq.Task) error {
	if p.cache == nil {
		return nil
	}
	for _, prefix := range []redis_a.Namespace{redis_a.DashboardKeys, redis_a.ExportKeys} {
		if err := p.cache.InvalidatePrefix(ctx, prefix.Prefix()); err != nil {
			return fmt.Errorf("failed to clear %s cache: %w", prefix, err)
		}
	}
	p.logger.InfoContext(ctx, "derived caches cleared")
	return nil
}

func hasUploadPrefix(name string) bool {
	return len(name) >= len(UploadPrefix) && name[:len(UploadPrefix)] == UploadPrefix
}
