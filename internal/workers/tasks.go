// internal/workers/tasks.go
package workers

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/hibiken/asynq"
)

// Task types handled by cmd/worker.
const (
	TypeProductImport    = "products:import"
	TypeBackupExport     = "backup:export"
	TypeLedgerReconcile  = "ledger:reconcile"
	TypeCleanupTempFiles = "cleanup:temp_files"
	TypeCleanupCache     = "cleanup:cache"
)

// Queue names and their weights.
const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

// Queues is the asynq queue priority map.
var Queues = map[string]int{
	QueueCritical: 6,
	QueueDefault:  3,
	QueueLow:      1,
}

// Import file formats.
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

// ImportJobPayload points a products:import task at an uploaded file.
type ImportJobPayload struct {
	FilePath string `json:"file_path"`
	FileName string `json:"file_name"`
	Format   string `json:"format"`
	UserID   string `json:"user_id,omitempty"`
}

// ImportJobResult is written as the task result and read by the status endpoint.
type ImportJobResult struct {
	Imported       int            `json:"imported"`
	Movements      int            `json:"movements"`
	Skipped        int            `json:"skipped"`
	Errors         []ImportRowErr `json:"errors,omitempty"`
	ProductIDs     []string       `json:"productIds,omitempty"`
	ProcessingTime string         `json:"processing_time"`
}

// ImportRowErr is one rejected spreadsheet row.
type ImportRowErr struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

// BackupJobResult is written by backup:export.
type BackupJobResult struct {
	Key string `json:"key"`
}

// ReconcileJobResult is written by ledger:reconcile.
type ReconcileJobResult struct {
	Checked  int      `json:"checked"`
	Drifted  []string `json:"drifted,omitempty"`
	Duration string   `json:"duration"`
}

// FormatFromFileName maps an upload name to an import format.
func FormatFromFileName(name string) (string, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		return FormatCSV, nil
	case ".xlsx":
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("unsupported import file %q: use .csv or .xlsx", name)
	}
}

// NewImportTask builds a products:import task. Results are kept for a day so
// clients can poll the status endpoint.
func NewImportTask(p ImportJobPayload) (*asynq.Task, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal import payload: %w", err)
	}
	return asynq.NewTask(TypeProductImport, b,
		asynq.Queue(QueueDefault),
		asynq.MaxRetry(3),
		asynq.Timeout(10*time.Minute),
		asynq.Retention(24*time.Hour)), nil
}

// NewBackupTask builds a backup:export task.
func NewBackupTask() *asynq.Task {
	return asynq.NewTask(TypeBackupExport, nil,
		asynq.Queue(QueueLow),
		asynq.MaxRetry(5),
		asynq.Retention(7*24*time.Hour))
}

// NewReconcileTask builds a ledger:reconcile task.
func NewReconcileTask() *asynq.Task {
	return asynq.NewTask(TypeLedgerReconcile, nil,
		asynq.Queue(QueueLow),
		asynq.MaxRetry(1),
		asynq.Retention(24*time.Hour))
}

func writeResult(t *asynq.Task, v any) error {
	w := t.ResultWriter()
	if w == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal task result: %w", err)
	}
	if _, err := w.Write(b); err != nil {
		return fmt.Errorf("failed to write task result: %w", err)
	}
	return nil
}
