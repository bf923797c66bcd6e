package utils

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"time"

	"tradePilot/internal/domain"
)

var resultsHeader = []string{
	"created_at", "completed_at", "signal_id", "strategy", "symbol", "side", "status",
	"risk_check_passed", "position_size", "entry_price", "stop_loss", "quality_score",
	"allowed_fraction", "order_id", "rejection_reason",
}

// WriteResultsToCSV writes audit rows to filename, replacing it.
func WriteResultsToCSV(results []domain.ExecutionResult, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	return WriteResultsCSV(file, results)
}

// WriteResultsCSV writes a header and one line per audit row.
func WriteResultsCSV(w io.Writer, results []domain.ExecutionResult) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(resultsHeader); err != nil {
		return err
	}
	for _, r := range results {
		completed := ""
		if !r.CompletedAt.IsZero() {
			completed = r.CompletedAt.UTC().Format(time.RFC3339)
		}
		record := []string{
			r.CreatedAt.UTC().Format(time.RFC3339),
			completed,
			r.Signal.ID,
			r.Signal.StrategyName,
			r.Signal.Symbol,
			string(r.Signal.Side),
			string(r.Status),
			strconv.FormatBool(r.RiskCheckPassed),
			strconv.FormatInt(r.PositionSize, 10),
			strconv.FormatFloat(r.Signal.EntryPrice, 'f', -1, 64),
			strconv.FormatFloat(r.StopLoss, 'f', -1, 64),
			strconv.FormatFloat(r.QualityScore, 'f', -1, 64),
			strconv.FormatFloat(r.AllowedFraction, 'f', -1, 64),
			r.OrderID,
			r.RejectionReason,
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
