// internal/handlers/import.go
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/hibiken/asynq"

	"github.com/ammerola/storefront-ledger/internal/core/ports"
	"github.com/ammerola/storefront-ledger/internal/workers"
)

// TaskInspector looks up queued tasks. *asynq.Inspector satisfies it.
type TaskInspector interface {
	GetTaskInfo(queue, id string) (*asynq.TaskInfo, error)
}

// ImportHandler handles import operations
type ImportHandler struct {
	base
	importer    ports.ImportService
	tasks       ports.TaskEnqueuer
	inspector   TaskInspector
	reports     dashboardInvalidator
	maxFileSize int64
	uploadDir   string
}

// NewImportHandler creates a new import handler. Without a task enqueuer the
// upload is imported inline.
func NewImportHandler(
	importer ports.ImportService,
	tasks ports.TaskEnqueuer,
	inspector TaskInspector,
	reports ports.ReportService,
	maxFileSize int64,
	uploadDir string,
	logger *slog.Logger,
) *ImportHandler {
	h := &ImportHandler{
		base:        base{logger: logger.With(slog.String("handler", "import"))},
		importer:    importer,
		tasks:       tasks,
		inspector:   inspector,
		maxFileSize: maxFileSize,
		uploadDir:   uploadDir,
	}
	if reports != nil {
		h.reports = reports
	}
	return h
}

// ImportStatus is the body of GET /import/status/{jobId}.
type ImportStatus struct {
	JobID     string          `json:"job_id"`
	State     string          `json:"state"`
	Retried   int             `json:"retried"`
	LastError string          `json:"last_error,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
}

// ImportProducts handles POST /import/products with a multipart "file" field
// holding a .csv or .xlsx upload.
func (h *ImportHandler) ImportProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	r.Body = http.MaxBytesReader(w, r.Body, h.maxFileSize)
	if err := r.ParseMultipartForm(h.maxFileSize); err != nil {
		h.respondError(w, r, http.StatusBadRequest, "Failed to parse form data")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.respondError(w, r, http.StatusBadRequest, "File is required")
		return
	}
	defer file.Close()

	format, err := workers.FormatFromFileName(header.Filename)
	if err != nil {
		h.respondError(w, r, http.StatusBadRequest, "Only .csv and .xlsx files are allowed")
		return
	}

	if err := os.MkdirAll(h.uploadDir, 0o755); err != nil {
		h.logger.ErrorContext(ctx, "failed to create upload directory", slog.Any("error", err))
		h.respondError(w, r, http.StatusInternalServerError, "Failed to prepare upload")
		return
	}

	dst, err := os.CreateTemp(h.uploadDir, workers.UploadPrefix+"*"+filepath.Ext(header.Filename))
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to create temp file", slog.Any("error", err))
		h.respondError(w, r, http.StatusInternalServerError, "Failed to save upload")
		return
	}
	tempFile := dst.Name()

	_, err = io.Copy(dst, file)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tempFile)
		h.logger.ErrorContext(ctx, "failed to save file", slog.Any("error", err))
		h.respondError(w, r, http.StatusInternalServerError, "Failed to save upload")
		return
	}

	payload := workers.ImportJobPayload{
		FilePath: tempFile,
		FileName: header.Filename,
		Format:   format,
		UserID:   userID(r),
	}

	if h.tasks == nil {
		h.importInline(w, r, payload)
		return
	}

	task, err := workers.NewImportTask(payload)
	if err != nil {
		os.Remove(tempFile)
		h.handleError(w, r, err, "queue import job")
		return
	}
	info, err := h.tasks.EnqueueContext(ctx, task)
	if err != nil {
		os.Remove(tempFile)
		h.handleError(w, r, err, "queue import job")
		return
	}

	h.logger.InfoContext(ctx, "product import queued",
		slog.String("task_id", info.ID),
		slog.String("file", header.Filename))

	h.respondJSON(w, http.StatusAccepted, map[string]string{
		"job_id":  info.ID,
		"status":  "queued",
		"message": "Product import has been queued for processing",
	})
}

func (h *ImportHandler) importInline(w http.ResponseWriter, r *http.Request, payload workers.ImportJobPayload) {
	defer os.Remove(payload.FilePath)

	var (
		rows    []ports.ImportRow
		rowErrs []ports.RowError
		err     error
	)
	if payload.Format == workers.FormatXLSX {
		rows, rowErrs, err = h.importer.ParseXLSX(payload.FilePath)
	} else {
		var f *os.File
		if f, err = os.Open(payload.FilePath); err == nil {
			rows, rowErrs, err = h.importer.ParseCSV(f)
			f.Close()
		}
	}
	if err != nil {
		h.handleError(w, r, err, "parse import file")
		return
	}

	result, err := h.importer.Import(r.Context(), rows, payload.UserID)
	if err != nil {
		h.handleError(w, r, err, "import products")
		return
	}
	result.Skipped += len(rowErrs)
	result.Errors = append(rowErrs, result.Errors...)

	if result.Imported > 0 {
		h.invalidate(r, h.reports)
	}
	h.respondJSON(w, http.StatusOK, result)
}

// Status handles GET /import/status/{jobId}.
func (h *ImportHandler) Status(w http.ResponseWriter, r *http.Request) {
	if h.inspector == nil {
		h.respondError(w, r, http.StatusServiceUnavailable, "Background jobs are not configured")
		return
	}

	jobID := r.PathValue("jobId")
	info, err := h.inspector.GetTaskInfo(workers.QueueDefault, jobID)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
			h.respondError(w, r, http.StatusNotFound, "Job not found")
			return
		}
		h.handleError(w, r, err, "get job status")
		return
	}
	if info.Type != workers.TypeProductImport {
		h.respondError(w, r, http.StatusNotFound, "Job not found")
		return
	}

	status := ImportStatus{
		JobID:     info.ID,
		State:     info.State.String(),
		Retried:   info.Retried,
		LastError: info.LastErr,
	}
	if len(info.Result) > 0 && json.Valid(info.Result) {
		status.Result = info.Result
	}
	h.respondJSON(w, http.StatusOK, status)
}
