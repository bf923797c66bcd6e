package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"tradePilot/config"
	"tradePilot/internal/adapters/logger"
	"tradePilot/internal/app"
	"tradePilot/internal/domain"
	"tradePilot/internal/ports"
	"tradePilot/internal/report"
	"tradePilot/internal/utils"
)

func main() {
	symbol := flag.String("symbol", "", "only rows for this symbol")
	status := flag.String("status", "", "only rows with this status (PENDING, APPROVED, REJECTED, EXECUTED, FAILED)")
	since := flag.Duration("since", 0, "only rows newer than this, e.g. 24h")
	limit := flag.Int("limit", 1000, "maximum rows to read, 0 for all")
	rows := flag.Bool("rows", false, "print every row, not just the summary")
	csvPath := flag.String("csv", "", "also export rows to this CSV file")
	xlsxPath := flag.String("xlsx", "", "also export rows and summary to this XLSX file")
	flag.Parse()

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	// 2. Initialize Logger
	appLogger := logger.NewStdLogger(cfg.LogLevel).With("audit_report")
	ctx := context.Background()

	// 3. Open the audit store the daemon writes to
	store, err := app.OpenAuditStore(cfg, appLogger)
	if err != nil {
		log.Fatalf("FATAL: Failed to open audit store: %v", err)
	}
	defer store.Close()

	filter := ports.ResultFilter{
		Symbol: strings.ToUpper(strings.TrimSpace(*symbol)),
		Status: domain.ExecutionStatus(strings.ToUpper(strings.TrimSpace(*status))),
		Limit:  *limit,
	}
	if *since > 0 {
		filter.Since = time.Now().Add(-*since)
	}

	results, err := store.ListResults(ctx, filter)
	if err != nil {
		log.Fatalf("Error reading audit results: %v", err)
	}
	appLogger.Info(ctx, "Loaded audit rows", map[string]interface{}{"count": len(results), "driver": cfg.AuditDriver})

	metrics := report.Analyze(results)
	report.RenderSummary(os.Stdout, metrics)
	if *rows {
		report.RenderResults(os.Stdout, results)
	}

	if *csvPath != "" {
		if err := utils.WriteResultsToCSV(results, *csvPath); err != nil {
			log.Fatalf("Error writing CSV: %v", err)
		}
		fmt.Printf("CSV written to %s\n", *csvPath)
	}
	if *xlsxPath != "" {
		if err := report.WriteXLSX(*xlsxPath, results, metrics); err != nil {
			log.Fatalf("Error writing XLSX: %v", err)
		}
		fmt.Printf("XLSX written to %s\n", *xlsxPath)
	}
}
