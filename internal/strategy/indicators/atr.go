package indicators

import (
	"fmt"
	"math"

	"tradePilot/internal/domain"
)

// ATR is the Average True Range with Wilder smoothing.
type ATR struct {
	config IndicatorConfig
}

func NewATR(config IndicatorConfig) *ATR {
	return &ATR{config: config}
}

func (a *ATR) Name() string {
	return fmt.Sprintf("ATR(%d)", a.config.Period)
}

func (a *ATR) RequiredDataPoints() int {
	return a.config.Period + 1
}

func (a *ATR) Calculate(bars []domain.Bar) (float64, error) {
	if err := a.config.validate(a.Name()); err != nil {
		return 0, err
	}
	if err := needBars(a.Name(), len(bars), a.RequiredDataPoints()); err != nil {
		return 0, err
	}

	period := a.config.Period
	atr := 0.0
	for i, b := range bars {
		tr := b.High - b.Low
		if i > 0 {
			prev := bars[i-1].Close
			tr = math.Max(tr, math.Max(math.Abs(b.High-prev), math.Abs(b.Low-prev)))
		}
		if i < period {
			atr += tr / float64(period)
			continue
		}
		atr = (atr*float64(period-1) + tr) / float64(period)
	}
	return atr, nil
}
