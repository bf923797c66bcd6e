package indicators

import (
	"fmt"

	"tradePilot/internal/domain"
)

// RSIConfig holds configuration for the RSI indicator.
type RSIConfig struct {
	IndicatorConfig
	Overbought float64
	Oversold   float64
}

// RSI is the Relative Strength Index with Wilder smoothing.
type RSI struct {
	config RSIConfig
}

func NewRSI(config RSIConfig) *RSI {
	return &RSI{config: config}
}

func (r *RSI) Name() string {
	return fmt.Sprintf("RSI(%d)", r.config.Period)
}

// RequiredDataPoints is period+1: RSI works on period price changes.
func (r *RSI) RequiredDataPoints() int {
	return r.config.Period + 1
}

func (r *RSI) Calculate(bars []domain.Bar) (float64, error) {
	if err := r.config.validate(r.Name()); err != nil {
		return 0, err
	}
	if err := needBars(r.Name(), len(bars), r.RequiredDataPoints()); err != nil {
		return 0, err
	}

	period := float64(r.config.Period)
	var avgGain, avgLoss float64
	for i := 1; i < len(bars); i++ {
		change := bars[i].Close - bars[i-1].Close
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		if i <= r.config.Period {
			avgGain += gain / period
			avgLoss += loss / period
			continue
		}
		avgGain = (avgGain*(period-1) + gain) / period
		avgLoss = (avgLoss*(period-1) + loss) / period
	}

	if avgLoss == 0 {
		if avgGain == 0 {
			return 50, nil
		}
		return 100, nil
	}
	return 100 - 100/(1+avgGain/avgLoss), nil
}

// IsOverbought reports whether value is at or above the overbought level.
func (r *RSI) IsOverbought(value float64) bool {
	return value >= r.config.Overbought
}

// IsOversold reports whether value is at or below the oversold level.
func (r *RSI) IsOversold(value float64) bool {
	return value <= r.config.Oversold
}
