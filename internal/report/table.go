package report

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"tradePilot/internal/domain"
)

// RenderSummary writes the headline numbers, the per-symbol breakdown and
// the rejection reasons as rounded tables.
func RenderSummary(w io.Writer, m *AuditMetrics) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("AUDIT SUMMARY")
	t.SetStyle(table.StyleRounded)
	t.AppendRows([]table.Row{
		{"Signals", m.Signals},
		{"Executed", m.ByStatus[domain.StatusExecuted]},
		{"Rejected", m.ByStatus[domain.StatusRejected]},
		{"Failed", m.ByStatus[domain.StatusFailed]},
		{"In flight", m.ByStatus[domain.StatusPending] + m.ByStatus[domain.StatusApproved]},
		{"Approval rate", percent(m.ApprovalRate)},
		{"Fill rate", percent(m.FillRate)},
		{"Avg quality", fmt.Sprintf("%.3f", m.AverageQuality)},
		{"Avg allowed fraction", percent(m.AverageAllowedFraction)},
		{"Shares executed", m.SharesExecuted},
		{"Max rejection streak", m.MaxConsecutiveRejections},
		{"Window", window(m.From, m.To)},
	})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMin: 22, Align: text.AlignLeft},
		{Number: 2, WidthMin: 20, Align: text.AlignRight},
	})
	t.Render()

	if len(m.Symbols) > 0 {
		st := table.NewWriter()
		st.SetOutputMirror(w)
		st.SetTitle("BY SYMBOL")
		st.SetStyle(table.StyleRounded)
		st.AppendHeader(table.Row{"Symbol", "Signals", "Executed", "Rejected", "Failed", "Shares", "Avg quality"})
		for _, s := range m.Symbols {
			st.AppendRow(table.Row{s.Symbol, s.Signals, s.Executed, s.Rejected, s.Failed, s.SharesExecuted, fmt.Sprintf("%.3f", s.AverageQuality)})
		}
		st.Render()
	}

	if reasons := m.TopRejectionReasons(); len(reasons) > 0 {
		rt := table.NewWriter()
		rt.SetOutputMirror(w)
		rt.SetTitle("REJECTION REASONS")
		rt.SetStyle(table.StyleRounded)
		rt.AppendHeader(table.Row{"Reason", "Count"})
		for _, r := range reasons {
			rt.AppendRow(table.Row{r.Reason, r.Count})
		}
		rt.Render()
	}
}

// RenderResults writes one row per audit record.
func RenderResults(w io.Writer, results []domain.ExecutionResult) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Time", "Symbol", "Side", "Status", "Qty", "Quality", "Order", "Reason"})
	for _, r := range results {
		t.AppendRow(table.Row{
			r.CreatedAt.UTC().Format(time.DateTime),
			r.Signal.Symbol,
			r.Signal.Side,
			r.Status,
			r.PositionSize,
			fmt.Sprintf("%.3f", r.QualityScore),
			r.OrderID,
			r.RejectionReason,
		})
	}
	t.AppendFooter(table.Row{"", "", "", "rows", len(results)})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
		{Number: 8, WidthMax: 40},
	})
	t.Render()
}

func percent(v float64) string {
	return fmt.Sprintf("%.1f%%", v*100)
}

func window(from, to time.Time) string {
	if from.IsZero() {
		return "-"
	}
	return from.UTC().Format(time.DateTime) + " .. " + to.UTC().Format(time.DateTime)
}
