// internal/handlers/backup.go
package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ammerola/storefront-ledger/internal/core/domain"
	"github.com/ammerola/storefront-ledger/internal/core/ports"
	"github.com/ammerola/storefront-ledger/internal/workers"
)

const maxRestoreBody = 64 << 20

// BackupHandler serves snapshot download, restore and archive jobs.
type BackupHandler struct {
	base
	backup  ports.BackupService
	tasks   ports.TaskEnqueuer
	reports dashboardInvalidator
}

// NewBackupHandler creates a new backup handler. tasks may be nil, in which
// case POST /backup/jobs is unavailable.
func NewBackupHandler(backup ports.BackupService, tasks ports.TaskEnqueuer, reports ports.ReportService, logger *slog.Logger) *BackupHandler {
	h := &BackupHandler{
		base:   base{logger: logger.With(slog.String("handler", "backup"))},
		backup: backup,
		tasks:  tasks,
	}
	if reports != nil {
		h.reports = reports
	}
	return h
}

// Download handles GET /backup as a JSON attachment.
func (h *BackupHandler) Download(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := h.backup.WriteJSON(r.Context(), &buf); err != nil {
		h.handleError(w, r, err, "export backup")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, domain.BackupFileName(time.Now().UTC())))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	if _, err := buf.WriteTo(w); err != nil {
		h.logger.ErrorContext(r.Context(), "failed to write backup", slog.String("error", err.Error()))
	}
}

// Restore handles POST /restore. Collections present in the document replace
// the stored ones; absent collections are left alone.
func (h *BackupHandler) Restore(w http.ResponseWriter, r *http.Request) {
	document, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRestoreBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.respondError(w, r, http.StatusRequestEntityTooLarge, "Backup document too large")
			return
		}
		h.respondError(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := h.backup.Restore(r.Context(), document)
	if err != nil {
		h.handleError(w, r, err, "restore backup")
		return
	}

	h.logger.InfoContext(r.Context(), "backup restored",
		slog.Any("restored", result.Restored),
		slog.Any("ignored", result.Ignored))
	h.invalidate(r, h.reports)
	h.respondJSON(w, http.StatusOK, result)
}

// EnqueueArchive handles POST /backup/jobs.
func (h *BackupHandler) EnqueueArchive(w http.ResponseWriter, r *http.Request) {
	if h.tasks == nil {
		h.respondError(w, r, http.StatusServiceUnavailable, "Background jobs are not configured")
		return
	}

	info, err := h.tasks.EnqueueContext(r.Context(), workers.NewBackupTask())
	if err != nil {
		h.handleError(w, r, err, "queue backup job")
		return
	}

	h.logger.InfoContext(r.Context(), "backup job queued", slog.String("task_id", info.ID))
	h.respondJSON(w, http.StatusAccepted, map[string]string{
		"job_id": info.ID,
		"status": "queued",
	})
}
