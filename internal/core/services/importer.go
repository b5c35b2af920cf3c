// internal/core/services/importer.go
package services

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tealeg/xlsx/v3"

	"github.com/ammerola/storefront-ledger/internal/core/domain"
	"github.com/ammerola/storefront-ledger/internal/core/ports"
)

// ImportService loads product spreadsheets. Each imported row becomes a
// product plus one opening adjustment in the ledger.
type ImportService struct {
	uow    ports.UnitOfWork
	ledger *LedgerService
	logger *slog.Logger
}

var _ ports.ImportService = (*ImportService)(nil)

// NewImportService creates a new import service
func NewImportService(uow ports.UnitOfWork, ledger *LedgerService, logger *slog.Logger) *ImportService {
	return &ImportService{
		uow:    uow,
		ledger: ledger,
		logger: logger.With(slog.String("service", "import")),
	}
}

// ParseCSV reads a header-driven product CSV. Header names are matched
// case-insensitively; rows with fewer cells than the header are reported and
// skipped.
func (s *ImportService) ParseCSV(r io.Reader) ([]ports.ImportRow, []ports.RowError, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.LazyQuotes = true

	var records []record
	for {
		cells, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, domain.InvalidInput("malformed csv: %v", err)
		}
		line, _ := reader.FieldPos(0)
		if isBlank(cells) {
			continue
		}
		records = append(records, record{line: line, cells: cells})
	}
	return parseRecords(records, time.Now().UTC())
}

// ParseXLSX reads the first sheet of a workbook with the same header rules as
// ParseCSV.
func (s *ImportService) ParseXLSX(path string) ([]ports.ImportRow, []ports.RowError, error) {
	file, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	if len(file.Sheets) == 0 {
		return nil, nil, domain.InvalidInput("workbook has no sheets")
	}

	sheet := file.Sheets[0]
	var records []record
	err = sheet.ForEachRow(func(r *xlsx.Row) error {
		cells := make([]string, sheet.MaxCol)
		for i := range cells {
			if c := r.GetCell(i); c != nil {
				cells[i] = strings.TrimSpace(c.String())
			}
		}
		if !isBlank(cells) {
			records = append(records, record{line: r.GetCoordinate() + 1, cells: cells})
		}
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to process Excel rows: %w", err)
	}
	return parseRecords(records, time.Now().UTC())
}

// Import creates the parsed products. Rows are independent: one failing row is
// reported and the rest are still imported.
func (s *ImportService) Import(ctx context.Context, rows []ports.ImportRow, userID string) (*ports.ImportResult, error) {
	result := &ports.ImportResult{}

	for _, row := range rows {
		product := row.Product
		if err := product.Validate(); err != nil {
			result.Skipped++
			result.Errors = append(result.Errors, ports.RowError{Row: row.Row, Message: err.Error()})
			continue
		}
		product.PrepareForStorage()

		err := s.importRow(ctx, &product, row.Stock, userID)
		if err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			s.logger.WarnContext(ctx, "import row skipped",
				slog.Int("row", row.Row),
				slog.String("product_id", product.ID),
				slog.String("error", err.Error()))
			result.Skipped++
			result.Errors = append(result.Errors, ports.RowError{Row: row.Row, Message: err.Error()})
			continue
		}

		result.Imported++
		result.ProductIDs = append(result.ProductIDs, product.ID)
		if row.Stock != 0 {
			result.Movements++
		}
	}

	s.logger.InfoContext(ctx, "product import completed",
		slog.Int("imported", result.Imported),
		slog.Int("movements", result.Movements),
		slog.Int("skipped", result.Skipped))

	return result, nil
}

func (s *ImportService) importRow(ctx context.Context, product *domain.Product, stock int64, userID string) error {
	product.Stock = 0
	product.LedgerBalance = 0

	return s.ledger.withProducts(ctx, []string{product.ID}, func() error {
		return s.uow.Atomically(ctx, func(ctx context.Context, repos ports.Repositories) error {
			if err := repos.Products().Create(ctx, product); err != nil {
				return fmt.Errorf("failed to create product: %w", err)
			}
			if stock == 0 {
				return nil
			}
			_, err := s.ledger.apply(ctx, repos, domain.MovementRequest{
				ProductID: product.ID,
				Quantity:  stock,
				Type:      domain.MovementAdjustment,
				Reason:    domain.InitialImportReason,
				UserID:    userID,
			}, product.CreatedAt)
			return err
		})
	})
}

// record is one non-blank line of the source file. line is the 1-based
// physical line, so blank lines still count.
type record struct {
	line  int
	cells []string
}

// parseRecords maps header-named cells onto products. The first record is the
// header; rows are numbered by their distance from it.
func parseRecords(records []record, now time.Time) ([]ports.ImportRow, []ports.RowError, error) {
	if len(records) == 0 {
		return nil, nil, domain.InvalidInput("file is empty")
	}

	header := records[0]
	headers := make([]string, len(header.cells))
	for i, h := range header.cells {
		headers[i] = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
	}

	var (
		rows    []ports.ImportRow
		rowErrs []ports.RowError
	)
rowLoop:
	for _, rec := range records[1:] {
		line := rec.line - header.line
		cells := rec.cells
		if len(cells) < len(headers) {
			rowErrs = append(rowErrs, ports.RowError{
				Row:     line,
				Message: fmt.Sprintf("expected %d columns, got %d", len(headers), len(cells)),
			})
			continue
		}

		product := domain.Product{
			ID:           fmt.Sprintf("PROD-IMP-%d-%d", now.UnixMilli(), line),
			CustomFields: map[string]string{},
		}
		var stock int64
		for idx, h := range headers {
			val := strings.TrimSpace(cells[idx])
			switch h {
			case "price":
				product.Price = parseAmount(val)
			case "costprice":
				product.CostPrice = parseAmount(val)
			case "vatrate":
				product.VATRate = parseAmount(val)
			case "stock":
				q, err := parseQuantity(val)
				if err != nil {
					rowErrs = append(rowErrs, ports.RowError{Row: line, Message: "stock: " + err.Error()})
					continue rowLoop
				}
				stock = q
			case "name":
				product.Name = val
			case "sku":
				product.SKU = val
			case "category":
				product.Category = val
			case "description":
				product.Description = val
			case "brand":
				product.Brand = val
			case "partnumber":
				product.PartNumber = val
			case "imageurl":
				product.ImageURL = val
			case "hscode":
				product.HSCode = val
			case "uom":
				product.UOM = val
			case "minstocklevel":
				q, err := parseQuantity(val)
				if err != nil {
					rowErrs = append(rowErrs, ports.RowError{Row: line, Message: "minstocklevel: " + err.Error()})
					continue rowLoop
				}
				product.MinStockLevel = q
			case "":
			default:
				if val != "" {
					product.CustomFields[h] = val
				}
			}
		}
		if product.Name == "" {
			product.Name = domain.DefaultProductName
		}
		if product.Category == "" {
			product.Category = domain.DefaultProductCategory
		}
		if len(product.CustomFields) == 0 {
			product.CustomFields = nil
		}

		rows = append(rows, ports.ImportRow{Row: line, Product: product, Stock: stock})
	}
	return rows, rowErrs, nil
}

// parseAmount reads a float cell, falling back to zero.
func parseAmount(s string) decimal.Decimal {
	f, err := strconv.ParseFloat(strings.TrimPrefix(s, "$"), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(f)
}

// parseQuantity reads a float cell as whole units, falling back to zero on
// unparseable text. Values no int64 can hold are rejected.
func parseQuantity(s string) (int64, error) {
	f, err := strconv.ParseFloat(s, 64)
	switch {
	case errors.Is(err, strconv.ErrRange), math.IsInf(f, 0):
		return 0, domain.InvalidInput("quantity %s is out of range", s)
	case err != nil, math.IsNaN(f):
		return 0, nil
	}
	f = math.Round(f)
	// float64(math.MaxInt64) rounds up to 2^63, which int64 cannot hold.
	if f >= math.MaxInt64 || f < math.MinInt64 {
		return 0, domain.InvalidInput("quantity %s is out of range", s)
	}
	return int64(f), nil
}

func isBlank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
