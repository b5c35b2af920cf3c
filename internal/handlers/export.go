// internal/handlers/export.go
package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/tealeg/xlsx/v3"

	redis_a "github.com/ammerola/storefront-ledger/internal/adapters/redis_adapter"
	"github.com/ammerola/storefront-ledger/internal/core/domain"
	"github.com/ammerola/storefront-ledger/internal/core/ports"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ExportHandler renders spreadsheets and cached JSON dumps from a snapshot.
type ExportHandler struct {
	base
	backup ports.BackupService
	cache  ports.Cache
	ttl    time.Duration
}

// NewExportHandler creates a new export handler. cache may be nil.
func NewExportHandler(backup ports.BackupService, cache ports.Cache, ttl time.Duration, logger *slog.Logger) *ExportHandler {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &ExportHandler{
		base:   base{logger: logger.With(slog.String("handler", "export"))},
		backup: backup,
		cache:  cache,
		ttl:    ttl,
	}
}

// ProductsExport is the body of GET /export/products.json.
type ProductsExport struct {
	Products []domain.Product `json:"products"`
	Metadata ExportMetadata   `json:"metadata"`
}

// ExportMetadata contains metadata about the export
type ExportMetadata struct {
	ExportDate time.Time `json:"export_date"`
	TotalItems int       `json:"total_items"`
}

// ExportMovements handles GET /export/movements.xlsx, oldest first.
func (h *ExportHandler) ExportMovements(w http.ResponseWriter, r *http.Request) {
	snap, err := h.backup.Export(r.Context())
	if err != nil {
		h.handleError(w, r, err, "export movements")
		return
	}

	names := make(map[string]string, len(snap.Products))
	for _, p := range snap.Products {
		names[p.ID] = p.Name
	}

	headers := []string{"Seq", "Date", "Product ID", "Product", "Type", "Quantity", "Reason", "User"}
	rows := make([][]string, 0, len(snap.StockMovements))
	for _, m := range snap.StockMovements {
		rows = append(rows, []string{
			strconv.FormatInt(m.Seq, 10),
			m.CreatedAt.UTC().Format(time.RFC3339),
			m.ProductID,
			names[m.ProductID],
			string(m.Type),
			strconv.FormatInt(m.Quantity, 10),
			m.Reason,
			m.UserID,
		})
	}

	h.writeWorkbook(w, r, "Movements", "stock_movements", headers, rows)
}

// ExportOrders handles GET /export/orders.xlsx.
func (h *ExportHandler) ExportOrders(w http.ResponseWriter, r *http.Request) {
	snap, err := h.backup.Export(r.Context())
	if err != nil {
		h.handleError(w, r, err, "export orders")
		return
	}

	headers := []string{"Order ID", "Date", "Channel", "Status", "Customer", "Items", "Subtotal", "Tax", "Total", "Currency", "Payment"}
	rows := make([][]string, 0, len(snap.Orders))
	for _, o := range snap.Orders {
		var units int64
		for _, it := range o.Items {
			units += it.Quantity
		}
		rows = append(rows, []string{
			o.ID,
			o.CreatedAt.UTC().Format(time.RFC3339),
			string(o.Channel),
			string(o.Status),
			o.CustomerName,
			strconv.FormatInt(units, 10),
			o.Subtotal.StringFixed(2),
			o.TaxAmount.StringFixed(2),
			o.Total.StringFixed(2),
			o.Currency,
			o.PaymentMethod,
		})
	}

	h.writeWorkbook(w, r, "Orders", "orders", headers, rows)
}

// ExportProducts handles GET /export/products.json. The rendered body is
// cached; X-Cache reports HIT or MISS.
func (h *ExportHandler) ExportProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cacheKey := redis_a.ExportKeys.Key("products")

	if h.cache != nil {
		var cached []byte
		if err := h.cache.Get(ctx, cacheKey, &cached); err == nil {
			h.writeRaw(w, r, "HIT", cached)
			return
		}
	}

	snap, err := h.backup.Export(ctx)
	if err != nil {
		h.handleError(w, r, err, "export products")
		return
	}

	body, err := json.Marshal(ProductsExport{
		Products: snap.Products,
		Metadata: ExportMetadata{
			ExportDate: time.Now().UTC(),
			TotalItems: len(snap.Products),
		},
	})
	if err != nil {
		h.handleError(w, r, err, "export products")
		return
	}

	if h.cache != nil {
		cacheCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		if err := h.cache.Put(cacheCtx, cacheKey, body, h.ttl); err != nil {
			h.logger.WarnContext(ctx, "failed to cache products export", slog.String("error", err.Error()))
		}
		cancel()
	}

	h.writeRaw(w, r, "MISS", body)
}

func (h *ExportHandler) writeRaw(w http.ResponseWriter, r *http.Request, cacheStatus string, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Cache", cacheStatus)
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	if _, err := w.Write(body); err != nil {
		h.logger.ErrorContext(r.Context(), "failed to write export response", slog.String("error", err.Error()))
	}
}

func (h *ExportHandler) writeWorkbook(w http.ResponseWriter, r *http.Request, sheetName, filePrefix string, headers []string, rows [][]string) {
	ctx := r.Context()

	data, err := generateWorkbook(sheetName, headers, rows)
	if err != nil {
		h.handleError(w, r, err, "generate spreadsheet")
		return
	}

	filename := fmt.Sprintf("%s_%s.xlsx", filePrefix, time.Now().Format("20060102_150405"))
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")

	if _, err := w.Write(data); err != nil {
		h.logger.ErrorContext(ctx, "failed to write spreadsheet", slog.String("error", err.Error()))
		return
	}

	h.logger.InfoContext(ctx, "spreadsheet exported",
		slog.String("sheet", sheetName),
		slog.Int("rows", len(rows)))
}

func generateWorkbook(sheetName string, headers []string, rows [][]string) ([]byte, error) {
	file := xlsx.NewFile()
	sheet, err := file.AddSheet(sheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to add worksheet: %w", err)
	}

	headerRow := sheet.AddRow()
	for _, header := range headers {
		cell := headerRow.AddCell()
		cell.Value = header
		cell.GetStyle().Font.Bold = true
		cell.GetStyle().Fill.PatternType = "solid"
		cell.GetStyle().Fill.FgColor = "CCCCCC"
	}

	for _, values := range rows {
		row := sheet.AddRow()
		for _, v := range values {
			row.AddCell().Value = v
		}
	}

	sheet.SetColWidth(1, len(headers), 18)

	var buffer bytes.Buffer
	if err := file.Write(&buffer); err != nil {
		return nil, fmt.Errorf("failed to write Excel file to buffer: %w", err)
	}
	return buffer.Bytes(), nil
}
