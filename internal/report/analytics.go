// Package report summarizes the audit trail for operators.
package report

import (
	"sort"
	"time"

	"tradePilot/internal/domain"
)

// AuditMetrics summarizes the latest outcome of every signal in a result set.
type AuditMetrics struct {
	Signals  int
	ByStatus map[domain.ExecutionStatus]int

	// Rates over all signals / over risk-approved signals.
	ApprovalRate float64
	FillRate     float64

	AverageQuality         float64
	AverageAllowedFraction float64 // over risk-approved signals
	SharesExecuted         int64

	// Longest run of consecutive rejections in signal order.
	MaxConsecutiveRejections int

	RejectionReasons map[string]int
	Symbols          []SymbolMetrics
	Daily            []DailyCount
	From, To         time.Time
}

// SymbolMetrics is the per-symbol slice of AuditMetrics.
type SymbolMetrics struct {
	Symbol         string
	Signals        int
	Executed       int
	Rejected       int
	Failed         int
	SharesExecuted int64
	AverageQuality float64
}

// DailyCount buckets signals by the UTC day they were generated.
type DailyCount struct {
	Day      time.Time
	Signals  int
	Executed int
}

// Latest keeps the newest row per signal. Rows are expected newest first, as
// returned by AuditReader.ListResults; the output is oldest first.
func Latest(results []domain.ExecutionResult) []domain.ExecutionResult {
	seen := make(map[string]struct{}, len(results))
	out := make([]domain.ExecutionResult, 0, len(results))
	for _, r := range results {
		if _, ok := seen[r.Signal.ID]; ok {
			continue
		}
		seen[r.Signal.ID] = struct{}{}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Signal.GeneratedAt.Before(out[j].Signal.GeneratedAt)
	})
	return out
}

// Analyze computes AuditMetrics from audit rows.
func Analyze(results []domain.ExecutionResult) *AuditMetrics {
	m := &AuditMetrics{
		ByStatus:         make(map[domain.ExecutionStatus]int),
		RejectionReasons: make(map[string]int),
	}
	latest := Latest(results)
	if len(latest) == 0 {
		return m
	}

	symbols := make(map[string]*SymbolMetrics)
	days := make(map[time.Time]*DailyCount)
	var approved, rejectRun int
	var qualitySum, fractionSum float64

	for _, r := range latest {
		m.Signals++
		m.ByStatus[r.Status]++
		qualitySum += r.QualityScore

		sym, ok := symbols[r.Signal.Symbol]
		if !ok {
			sym = &SymbolMetrics{Symbol: r.Signal.Symbol}
			symbols[r.Signal.Symbol] = sym
		}
		sym.Signals++
		sym.AverageQuality += (r.QualityScore - sym.AverageQuality) / float64(sym.Signals)

		day := r.Signal.GeneratedAt.UTC().Truncate(24 * time.Hour)
		dc, ok := days[day]
		if !ok {
			dc = &DailyCount{Day: day}
			days[day] = dc
		}
		dc.Signals++

		if r.RiskCheckPassed {
			approved++
			fractionSum += r.AllowedFraction
		}

		switch r.Status {
		case domain.StatusExecuted:
			sym.Executed++
			sym.SharesExecuted += r.PositionSize
			m.SharesExecuted += r.PositionSize
			dc.Executed++
		case domain.StatusRejected:
			sym.Rejected++
		case domain.StatusFailed:
			sym.Failed++
		}

		if r.Status == domain.StatusRejected {
			rejectRun++
			m.MaxConsecutiveRejections = max(m.MaxConsecutiveRejections, rejectRun)
		} else {
			rejectRun = 0
		}
		if r.RejectionReason != "" {
			m.RejectionReasons[r.RejectionReason]++
		}
	}

	m.From = latest[0].Signal.GeneratedAt
	m.To = latest[len(latest)-1].Signal.GeneratedAt
	m.ApprovalRate = float64(approved) / float64(m.Signals)
	m.AverageQuality = qualitySum / float64(m.Signals)
	if approved > 0 {
		m.FillRate = float64(m.ByStatus[domain.StatusExecuted]) / float64(approved)
		m.AverageAllowedFraction = fractionSum / float64(approved)
	}

	for _, s := range symbols {
		m.Symbols = append(m.Symbols, *s)
	}
	sort.Slice(m.Symbols, func(i, j int) bool { return m.Symbols[i].Symbol < m.Symbols[j].Symbol })
	for _, d := range days {
		m.Daily = append(m.Daily, *d)
	}
	sort.Slice(m.Daily, func(i, j int) bool { return m.Daily[i].Day.Before(m.Daily[j].Day) })
	return m
}

// TopRejectionReasons returns reasons by descending count, ties by name.
func (m *AuditMetrics) TopRejectionReasons() []ReasonCount {
	out := make([]ReasonCount, 0, len(m.RejectionReasons))
	for reason, n := range m.RejectionReasons {
		out = append(out, ReasonCount{Reason: reason, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Reason < out[j].Reason
	})
	return out
}

// ReasonCount pairs a rejection reason with its frequency.
type ReasonCount struct {
	Reason string
	Count  int
}
