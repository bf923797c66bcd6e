package report

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/xuri/excelize/v2"

	"tradePilot/internal/domain"
)

const (
	resultsSheet = "Results"
	summarySheet = "Summary"
	symbolsSheet = "By Symbol"
)

var resultHeaders = []interface{}{
	"Created", "Signal ID", "Strategy", "Symbol", "Side", "Status", "Risk Passed",
	"Quantity", "Entry Price", "Stop Loss", "Quality", "Allowed Fraction", "Order ID", "Reason",
}

// WriteXLSX exports rows and their summary to an Excel workbook at path.
func WriteXLSX(path string, results []domain.ExecutionResult, m *AuditMetrics) error {
	// Ensure directory exists before creating file
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	fx := excelize.NewFile()
	defer fx.Close()

	if err := fx.SetSheetName(fx.GetSheetName(0), resultsSheet); err != nil {
		return err
	}
	for _, name := range []string{summarySheet, symbolsSheet} {
		if _, err := fx.NewSheet(name); err != nil {
			return err
		}
	}

	header, err := fx.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"2F4F4F"}, Pattern: 1},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
		},
	})
	if err != nil {
		return err
	}

	if err := writeResultsSheet(fx, results, header); err != nil {
		return err
	}
	if err := writeSummarySheet(fx, m, header); err != nil {
		return err
	}
	if err := writeSymbolsSheet(fx, m, header); err != nil {
		return err
	}
	return fx.SaveAs(path)
}

func writeRow(fx *excelize.File, sheet string, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return fx.SetSheetRow(sheet, cell, &values)
}

func styleHeader(fx *excelize.File, sheet string, cols, style int) error {
	last, err := excelize.CoordinatesToCellName(cols, 1)
	if err != nil {
		return err
	}
	return fx.SetCellStyle(sheet, "A1", last, style)
}

func writeResultsSheet(fx *excelize.File, results []domain.ExecutionResult, header int) error {
	if err := writeRow(fx, resultsSheet, 1, resultHeaders); err != nil {
		return err
	}
	if err := styleHeader(fx, resultsSheet, len(resultHeaders), header); err != nil {
		return err
	}
	for i, r := range results {
		row := []interface{}{
			r.CreatedAt.UTC().Format(time.RFC3339),
			r.Signal.ID,
			r.Signal.StrategyName,
			r.Signal.Symbol,
			string(r.Signal.Side),
			string(r.Status),
			r.RiskCheckPassed,
			r.PositionSize,
			r.Signal.EntryPrice,
			r.StopLoss,
			r.QualityScore,
			r.AllowedFraction,
			r.OrderID,
			r.RejectionReason,
		}
		if err := writeRow(fx, resultsSheet, i+2, row); err != nil {
			return err
		}
	}
	if err := fx.SetColWidth(resultsSheet, "A", "A", 22); err != nil {
		return err
	}
	if err := fx.SetColWidth(resultsSheet, "B", "B", 38); err != nil {
		return err
	}
	return fx.SetColWidth(resultsSheet, "N", "N", 40)
}

func writeSummarySheet(fx *excelize.File, m *AuditMetrics, header int) error {
	rows := [][]interface{}{
		{"Metric", "Value"},
		{"Signals", m.Signals},
		{"Executed", m.ByStatus[domain.StatusExecuted]},
		{"Rejected", m.ByStatus[domain.StatusRejected]},
		{"Failed", m.ByStatus[domain.StatusFailed]},
		{"Approval Rate", m.ApprovalRate},
		{"Fill Rate", m.FillRate},
		{"Average Quality", m.AverageQuality},
		{"Average Allowed Fraction", m.AverageAllowedFraction},
		{"Shares Executed", m.SharesExecuted},
		{"Max Rejection Streak", m.MaxConsecutiveRejections},
	}
	for _, r := range m.TopRejectionReasons() {
		rows = append(rows, []interface{}{"Rejected: " + r.Reason, r.Count})
	}
	for i, row := range rows {
		if err := writeRow(fx, summarySheet, i+1, row); err != nil {
			return err
		}
	}
	if err := styleHeader(fx, summarySheet, 2, header); err != nil {
		return err
	}
	return fx.SetColWidth(summarySheet, "A", "A", 36)
}

func writeSymbolsSheet(fx *excelize.File, m *AuditMetrics, header int) error {
	if err := writeRow(fx, symbolsSheet, 1, []interface{}{"Symbol", "Signals", "Executed", "Rejected", "Failed", "Shares", "Average Quality"}); err != nil {
		return err
	}
	if err := styleHeader(fx, symbolsSheet, 7, header); err != nil {
		return err
	}
	for i, s := range m.Symbols {
		row := []interface{}{s.Symbol, s.Signals, s.Executed, s.Rejected, s.Failed, s.SharesExecuted, s.AverageQuality}
		if err := writeRow(fx, symbolsSheet, i+2, row); err != nil {
			return err
		}
	}
	return nil
}
