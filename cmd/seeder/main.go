// cmd/seeder/main.go
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/ammerola/storefront-ledger/internal/app"
	"github.com/ammerola/storefront-ledger/internal/core/domain"
	"github.com/ammerola/storefront-ledger/internal/core/ports"
	"github.com/ammerola/storefront-ledger/internal/pkg/config"
	"github.com/ammerola/storefront-ledger/internal/pkg/logger"
)

// seederState records which catalog files were already imported.
type seederState struct {
	ProcessedFiles []string  `json:"processed_files"`
	ProcessedCount int       `json:"processed_count"`
	LastUpdate     time.Time `json:"last_update"`
}

func main() {
	var (
		catalogDir = flag.String("catalog", "./catalog", "Directory containing product .csv and .xlsx files")
		backupFile = flag.String("backup", "", "Backup JSON document to restore before importing")
		stateFile  = flag.String("state", "./.seed_state.json", "State file for tracking progress")
		userID     = flag.String("user", "seeder", "User recorded on opening stock movements")
		logLevel   = flag.String("log-level", "info", "Log level (debug, info, warn, error)")
		dryRun     = flag.Bool("dry-run", false, "Parse files without writing anything")
		force      = flag.Bool("force", false, "Reimport every file")
	)
	flag.Parse()

	slogger := logger.SetupLogger(*logLevel, "json")
	slog.SetDefault(slogger)

	cfg, err := config.Load(slogger)
	if err != nil {
		slogger.Error("failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx := context.Background()

	if !*dryRun {
		if err := app.RunMigrations(ctx, cfg, slogger); err != nil {
			slogger.Error("failed to run migrations", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	backends, err := app.Open(ctx, cfg, slogger)
	if err != nil {
		slogger.Error("failed to initialize backends", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer backends.Close()

	svc, err := app.NewServices(ctx, cfg, backends, slogger)
	if err != nil {
		slogger.Error("failed to initialize services", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if *backupFile != "" && !*dryRun {
		if err := restore(ctx, svc, *backupFile); err != nil {
			slogger.Error("failed to restore backup", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	var state seederState
	if !*force {
		if data, err := os.ReadFile(*stateFile); err == nil {
			if err := json.Unmarshal(data, &state); err != nil {
				slogger.Warn("ignoring unreadable state file", slog.String("error", err.Error()))
			}
		}
	}

	files, err := catalogFiles(*catalogDir)
	if err != nil {
		slogger.Error("failed to list catalog files", slog.String("error", err.Error()))
		os.Exit(1)
	}

	var (
		totalFiles     int
		totalProducts  int
		totalMovements int
		failed         []string
		rowErrors      = map[string][]ports.RowError{}
	)

	for i, path := range files {
		name := filepath.Base(path)
		fmt.Printf("PROGRESS: Processing %d/%d: %s\n", i+1, len(files), name)

		if !*force && slices.Contains(state.ProcessedFiles, name) {
			slogger.Info("skipping already imported file", slog.String("file", name))
			continue
		}

		rows, rowErrs, err := parse(svc.Importer, path)
		if err != nil {
			slogger.Error("failed to parse file", slog.String("file", name), slog.String("error", err.Error()))
			failed = append(failed, name)
			continue
		}
		if len(rowErrs) > 0 {
			rowErrors[name] = rowErrs
		}

		if *dryRun {
			fmt.Printf("DRY RUN: %s - %d valid rows, %d rejected\n", name, len(rows), len(rowErrs))
			continue
		}

		result, err := svc.Importer.Import(ctx, rows, *userID)
		if err != nil {
			slogger.Error("failed to import file", slog.String("file", name), slog.String("error", err.Error()))
			failed = append(failed, name)
			continue
		}
		if len(result.Errors) > 0 {
			rowErrors[name] = append(rowErrors[name], result.Errors...)
		}

		fmt.Printf("SUCCESS: %s - %d products, %d opening movements\n", name, result.Imported, result.Movements)
		totalFiles++
		totalProducts += result.Imported
		totalMovements += result.Movements

		state.ProcessedFiles = append(state.ProcessedFiles, name)
		state.ProcessedCount = len(state.ProcessedFiles)
		state.LastUpdate = time.Now()
		if err := saveState(*stateFile, state); err != nil {
			slogger.Warn("failed to save state", slog.String("error", err.Error()))
		}
	}

	if !*dryRun && totalProducts > 0 {
		if err := svc.Reports.Invalidate(ctx); err != nil {
			slogger.Warn("failed to invalidate dashboard cache", slog.String("error", err.Error()))
		}
		results, err := svc.Ledger.ReconcileAll(ctx)
		if err != nil {
			slogger.Error("failed to reconcile ledger", slog.String("error", err.Error()))
		} else {
			for _, r := range results {
				if !r.Consistent {
					slogger.Error("ledger drift after seeding",
						slog.String("product_id", r.ProductID),
						slog.Int64("stock", r.Stock),
						slog.Int64("movement_sum", r.MovementSum))
				}
			}
		}
	}

	printSummary(totalFiles, totalProducts, totalMovements, failed, rowErrors)

	slogger.Info("seed operation completed",
		slog.Int("files_imported", totalFiles),
		slog.Int("products_created", totalProducts),
		slog.Int("failed_files", len(failed)))

	if *dryRun {
		fmt.Println("\n[DRY RUN] No changes were made")
	}
}

func catalogFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".csv", ".xlsx":
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

func parse(importer ports.ImportService, path string) ([]ports.ImportRow, []ports.RowError, error) {
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return importer.ParseXLSX(path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	return importer.ParseCSV(f)
}

func restore(ctx context.Context, svc *app.Services, path string) error {
	document, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	result, err := svc.Backup.Restore(ctx, document)
	if err != nil {
		return err
	}
	fmt.Printf("RESTORED: %s (%s)\n", filepath.Base(path), strings.Join(result.Restored, ", "))
	if len(result.Ignored) > 0 {
		fmt.Printf("IGNORED: %s\n", strings.Join(result.Ignored, ", "))
	}
	return nil
}

func saveState(path string, state seederState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func printSummary(files, products, movements int, failed []string, rowErrors map[string][]ports.RowError) {
	fmt.Println("\n" + strings.Repeat("=", 60))
	fmt.Println("SEEDING OPERATION SUMMARY")
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("Files Imported:       %d\n", files)
	fmt.Printf("Products Created:     %d\n", products)
	fmt.Printf("Opening Movements:    %d (%s)\n", movements, domain.MovementAdjustment)

	if len(rowErrors) > 0 {
		names := make([]string, 0, len(rowErrors))
		for name := range rowErrors {
			names = append(names, name)
		}
		sort.Strings(names)

		fmt.Println("\nRejected rows:")
		for _, name := range names {
			for _, re := range rowErrors[name] {
				fmt.Printf("  - %s row %d: %s\n", name, re.Row, re.Message)
			}
		}
	}

	if len(failed) > 0 {
		fmt.Printf("\nFailed files (%d):\n", len(failed))
		for _, name := range failed {
			fmt.Printf("  - %s\n", name)
		}
	}
}
