// internal/workers/import_processor.go
package workers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/hibiken/asynq"

	"github.com/ammerola/storefront-ledger/internal/core/domain"
	"github.com/ammerola/storefront-ledger/internal/core/ports"
)

// ImportProcessor runs products:import tasks.
type ImportProcessor struct {
	importer ports.ImportService
	reports  ports.ReportService
	logger   *slog.Logger
}

// NewImportProcessor creates a new import processor. reports may be nil.
func NewImportProcessor(importer ports.ImportService, reports ports.ReportService, logger *slog.Logger) *ImportProcessor {
	return &ImportProcessor{
		importer: importer,
		reports:  reports,
		logger:   logger.With(slog.String("processor", "import")),
	}
}

// ProcessImport parses the uploaded file and imports its rows. A file that
// cannot be parsed is not retried. The upload is removed once the import
// finished.
func (p *ImportProcessor) ProcessImport(ctx context.Context, t *asynq.Task) error {
	start := time.Now()

	var payload ImportJobPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}

	p.logger.InfoContext(ctx, "processing product import",
		slog.String("file", payload.FileName),
		slog.String("format", payload.Format))

	rows, rowErrs, err := p.parse(payload)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) || errors.Is(err, os.ErrNotExist) {
			p.removeUpload(ctx, payload.FilePath)
			return fmt.Errorf("failed to parse %s: %v: %w", payload.FileName, err, asynq.SkipRetry)
		}
		return fmt.Errorf("failed to parse %s: %w", payload.FileName, err)
	}

	result, err := p.importer.Import(ctx, rows, payload.UserID)
	if err != nil {
		return fmt.Errorf("failed to import products: %w", err)
	}

	out := ImportJobResult{
		Imported:       result.Imported,
		Movements:      result.Movements,
		Skipped:        result.Skipped + len(rowErrs),
		ProductIDs:     result.ProductIDs,
		ProcessingTime: time.Since(start).String(),
	}
	for _, e := range rowErrs {
		out.Errors = append(out.Errors, ImportRowErr{Row: e.Row, Message: e.Message})
	}
	for _, e := range result.Errors {
		out.Errors = append(out.Errors, ImportRowErr{Row: e.Row, Message: e.Message})
	}

	if err := writeResult(t, out); err != nil {
		p.logger.WarnContext(ctx, "failed to store import result", slog.Any("error", err))
	}
	if p.reports != nil && result.Imported > 0 {
		if err := p.reports.Invalidate(ctx); err != nil {
			p.logger.WarnContext(ctx, "failed to invalidate dashboard", slog.Any("error", err))
		}
	}
	p.removeUpload(ctx, payload.FilePath)

	p.logger.InfoContext(ctx, "product import completed",
		slog.Int("imported", out.Imported),
		slog.Int("skipped", out.Skipped),
		slog.String("duration", out.ProcessingTime))

	return nil
}

func (p *ImportProcessor) parse(payload ImportJobPayload) ([]ports.ImportRow, []ports.RowError, error) {
	switch payload.Format {
	case FormatXLSX:
		if _, err := os.Stat(payload.FilePath); err != nil {
			return nil, nil, err
		}
		return p.importer.ParseXLSX(payload.FilePath)
	case FormatCSV:
		f, err := os.Open(payload.FilePath)
		if err != nil {
			return nil, nil, err
		}
		defer f.Close()
		return p.importer.ParseCSV(f)
	default:
		return nil, nil, domain.InvalidInput("unknown import format %q", payload.Format)
	}
}

func (p *ImportProcessor) removeUpload(ctx context.Context, path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		p.logger.WarnContext(ctx, "failed to remove upload",
			slog.String("file", path),
			slog.Any("error", err))
	}
}
