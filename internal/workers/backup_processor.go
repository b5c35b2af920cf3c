// internal/workers/backup_processor.go
package workers

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
)

// Archiver uploads a snapshot and returns its storage key.
type Archiver interface {
	Archive(ctx context.Context) (string, error)
}

// BackupProcessor runs backup:export tasks.
type BackupProcessor struct {
	archiver Archiver
	logger   *slog.Logger
}

func NewBackupProcessor(archiver Archiver, logger *slog.Logger) *BackupProcessor {
	return &BackupProcessor{
		archiver: archiver,
		logger:   logger.With(slog.String("processor", "backup")),
	}
}

// ExportBackup writes a full snapshot to object storage.
func (p *BackupProcessor) ExportBackup(ctx context.Context, t *asynq.Task) error {
	key, err := p.archiver.Archive(ctx)
	if err != nil {
		return fmt.Errorf("failed to archive snapshot: %w", err)
	}

	if err := writeResult(t, BackupJobResult{Key: key}); err != nil {
		p.logger.WarnContext(ctx, "failed to store backup result", slog.Any("error", err))
	}
	p.logger.InfoContext(ctx, "backup exported", slog.String("key", key))
	return nil
}
