// Package indicators computes technical indicators over closed bars, oldest
// first.
package indicators

import (
	"errors"
	"fmt"

	"tradePilot/internal/domain"
)

// ErrInsufficientData is returned when fewer bars are supplied than an
// indicator needs.
var ErrInsufficientData = errors.New("not enough data")

// Indicator represents a technical indicator computed from bars.
type Indicator interface {
	// Calculate returns the indicator value at the last bar.
	Calculate(bars []domain.Bar) (float64, error)
	// RequiredDataPoints is the minimum number of bars Calculate accepts.
	RequiredDataPoints() int
	Name() string
}

// IndicatorConfig holds common configuration for indicators.
type IndicatorConfig struct {
	Period int
}

func (c IndicatorConfig) validate(name string) error {
	if c.Period < 1 {
		return fmt.Errorf("%s: period must be at least 1, got %d", name, c.Period)
	}
	return nil
}

func needBars(name string, have, need int) error {
	if have < need {
		return fmt.Errorf("%w: %s needs %d bars, got %d", ErrInsufficientData, name, need, have)
	}
	return nil
}

func closes(bars []domain.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}
