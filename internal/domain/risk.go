package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidSettings is returned by RiskSettings.Validate.
var ErrInvalidSettings = errors.New("invalid risk settings")

// RiskSettings is an immutable set of risk limits. Fractions are of NAV.
type RiskSettings struct {
	MaxPositionSize         float64 `mapstructure:"max_position_size" json:"max_position_size"`
	MaxTotalExposure        float64 `mapstructure:"max_total_exposure" json:"max_total_exposure"`
	MaxPortfolioDrawdown    float64 `mapstructure:"max_portfolio_drawdown" json:"max_portfolio_drawdown"`
	CircuitBreakerThreshold float64 `mapstructure:"circuit_breaker_threshold" json:"circuit_breaker_threshold"`
	PositionStopLoss        float64 `mapstructure:"position_stop_loss" json:"position_stop_loss"`
	MinQualityScore         float64 `mapstructure:"min_quality_score" json:"min_quality_score"`
	MaxPositions            int     `mapstructure:"max_positions" json:"max_positions"`
	MaxCorrelation          float64 `mapstructure:"max_correlation" json:"max_correlation"`
	MaxCorrelatedHoldings   int     `mapstructure:"max_correlated_holdings" json:"max_correlated_holdings"`
	CashBufferMin           float64 `mapstructure:"cash_buffer_min" json:"cash_buffer_min"`
	CashBufferMax           float64 `mapstructure:"cash_buffer_max" json:"cash_buffer_max"`
}

// Validate returns every inconsistency found, joined into one error.
func (s RiskSettings) Validate() error {
	var errs []string
	frac := func(name string, v float64) {
		if v <= 0 || v > 1 {
			errs = append(errs, fmt.Sprintf("%s must be in (0,1], got %v", name, v))
		}
	}
	frac("max_position_size", s.MaxPositionSize)
	frac("max_total_exposure", s.MaxTotalExposure)
	frac("max_portfolio_drawdown", s.MaxPortfolioDrawdown)
	frac("circuit_breaker_threshold", s.CircuitBreakerThreshold)
	frac("position_stop_loss", s.PositionStopLoss)
	frac("max_correlation", s.MaxCorrelation)
	if s.MaxPositionSize > s.MaxTotalExposure {
		errs = append(errs, "max_position_size cannot exceed max_total_exposure")
	}
	if s.MinQualityScore < 0 || s.MinQualityScore > 1 {
		errs = append(errs, "min_quality_score must be in [0,1]")
	}
	if s.MaxPositions <= 0 {
		errs = append(errs, "max_positions must be positive")
	}
	if s.MaxCorrelatedHoldings < 0 {
		errs = append(errs, "max_correlated_holdings cannot be negative")
	}
	if s.CashBufferMin < 0 || s.CashBufferMax > 1 || s.CashBufferMin > s.CashBufferMax {
		errs = append(errs, "cash buffer must satisfy 0 <= min <= max <= 1")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidSettings, strings.Join(errs, "; "))
	}
	return nil
}

// RiskDecision is the outcome of a risk evaluation. A rejection is a value,
// not an error.
type RiskDecision struct {
	Approved        bool
	Reason          string
	MaxSizeFraction float64
	Quality         float64
}

// BreakerState is the circuit breaker mode.
type BreakerState string

const (
	BreakerArmed   BreakerState = "ARMED"
	BreakerTripped BreakerState = "TRIPPED"
)

// CircuitBreakerState is a copyable view of the breaker.
type CircuitBreakerState struct {
	State     BreakerState `json:"state"`
	Reason    string       `json:"reason,omitempty"`
	TrippedAt time.Time    `json:"tripped_at,omitempty"`
	Threshold float64      `json:"threshold"`
}
