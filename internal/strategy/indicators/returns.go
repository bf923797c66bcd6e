package indicators

import (
	"math"

	"tradePilot/internal/domain"
)

// Returns are simple close-to-close returns; a bar with a non-positive
// previous close is skipped.
func Returns(bars []domain.Bar) []float64 {
	if len(bars) < 2 {
		return nil
	}
	out := make([]float64, 0, len(bars)-1)
	for i := 1; i < len(bars); i++ {
		prev := bars[i-1].Close
		if prev <= 0 {
			continue
		}
		out = append(out, bars[i].Close/prev-1)
	}
	return out
}

// SharpeRatio annualises mean/stddev of returns with periodsPerYear samples
// per year. It is zero when fewer than two returns exist or the series is
// flat.
func SharpeRatio(returns []float64, periodsPerYear float64) float64 {
	n := float64(len(returns))
	if n < 2 {
		return 0
	}
	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= n
	var ss float64
	for _, r := range returns {
		ss += (r - mean) * (r - mean)
	}
	std := math.Sqrt(ss / (n - 1))
	if std == 0 {
		return 0
	}
	return mean / std * math.Sqrt(periodsPerYear)
}
