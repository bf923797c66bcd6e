package indicators

import (
	"fmt"

	"tradePilot/internal/domain"
)

// MovingAverageType defines the type of moving average.
type MovingAverageType string

const (
	SimpleMovingAverage      MovingAverageType = "SMA"
	ExponentialMovingAverage MovingAverageType = "EMA"
)

// MovingAverageConfig holds configuration for moving average indicators.
type MovingAverageConfig struct {
	IndicatorConfig
	Type MovingAverageType
}

// MovingAverage implements both SMA and EMA over closing prices.
type MovingAverage struct {
	config MovingAverageConfig
}

func NewMovingAverage(config MovingAverageConfig) *MovingAverage {
	return &MovingAverage{config: config}
}

func (m *MovingAverage) Name() string {
	return fmt.Sprintf("%s(%d)", m.config.Type, m.config.Period)
}

func (m *MovingAverage) RequiredDataPoints() int {
	return m.config.Period
}

// Calculate returns the average at the last bar.
func (m *MovingAverage) Calculate(bars []domain.Bar) (float64, error) {
	if err := m.config.validate(m.Name()); err != nil {
		return 0, err
	}
	if err := needBars(m.Name(), len(bars), m.config.Period); err != nil {
		return 0, err
	}
	switch m.config.Type {
	case SimpleMovingAverage:
		return SMA(closes(bars), m.config.Period), nil
	case ExponentialMovingAverage:
		return EMA(closes(bars), m.config.Period), nil
	default:
		return 0, fmt.Errorf("unsupported moving average type: %s", m.config.Type)
	}
}

// SMA is the mean of the last period values. The caller guarantees
// len(values) >= period > 0.
func SMA(values []float64, period int) float64 {
	total := 0.0
	for _, v := range values[len(values)-period:] {
		total += v
	}
	return total / float64(period)
}

// EMA seeds with the SMA of the first period values and smooths the rest.
func EMA(values []float64, period int) float64 {
	k := 2.0 / float64(period+1)
	ema := SMA(values[:period], period)
	for _, v := range values[period:] {
		ema += (v - ema) * k
	}
	return ema
}
