package risk

import (
	"math"
	"strings"
)

// CorrelationMatrix is a symmetric, read-only table of pairwise correlations.
type CorrelationMatrix struct {
	pairs map[string]float64
}

// NewCorrelationMatrix builds a matrix from nested maps. Either orientation
// of a pair may be given; the last one read wins.
func NewCorrelationMatrix(table map[string]map[string]float64) *CorrelationMatrix {
	m := &CorrelationMatrix{pairs: make(map[string]float64)}
	for a, row := range table {
		for b, v := range row {
			m.pairs[pairKey(a, b)] = v
		}
	}
	return m
}

// CorrelationFromReturns computes Pearson correlations between every pair of
// return series.
func CorrelationFromReturns(returns map[string][]float64) *CorrelationMatrix {
	m := &CorrelationMatrix{pairs: make(map[string]float64)}
	symbols := make([]string, 0, len(returns))
	for s := range returns {
		symbols = append(symbols, s)
	}
	for i := range symbols {
		for j := i + 1; j < len(symbols); j++ {
			if c, ok := PearsonCorrelation(returns[symbols[i]], returns[symbols[j]]); ok {
				m.pairs[pairKey(symbols[i], symbols[j])] = c
			}
		}
	}
	return m
}

// Correlation implements ports.CorrelationSource. A symbol is fully
// correlated with itself.
func (m *CorrelationMatrix) Correlation(a, b string) (float64, bool) {
	if strings.EqualFold(a, b) {
		return 1, true
	}
	if m == nil {
		return 0, false
	}
	v, ok := m.pairs[pairKey(a, b)]
	return v, ok
}

// Len returns the number of known pairs.
func (m *CorrelationMatrix) Len() int {
	if m == nil {
		return 0
	}
	return len(m.pairs)
}

// PearsonCorrelation over the common prefix of x and y. ok is false when
// fewer than two points overlap or either series is constant.
func PearsonCorrelation(x, y []float64) (float64, bool) {
	n := len(x)
	if len(y) < n {
		n = len(y)
	}
	if n < 2 {
		return 0, false
	}
	var mx, my float64
	for i := 0; i < n; i++ {
		mx += x[i]
		my += y[i]
	}
	mx /= float64(n)
	my /= float64(n)
	var cov, vx, vy float64
	for i := 0; i < n; i++ {
		dx, dy := x[i]-mx, y[i]-my
		cov += dx * dy
		vx += dx * dx
		vy += dy * dy
	}
	if vx == 0 || vy == 0 {
		return 0, false
	}
	return cov / math.Sqrt(vx*vy), true
}

func pairKey(a, b string) string {
	a, b = strings.ToUpper(a), strings.ToUpper(b)
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}
