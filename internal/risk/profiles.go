package risk

import (
	"fmt"
	"strings"

	"tradePilot/internal/domain"
	"tradePilot/internal/ports"
)

var profiles = map[domain.RiskProfile]domain.RiskSettings{
	domain.ProfileConservative: {
		MaxPositionSize:         0.05,
		MaxTotalExposure:        0.50,
		MaxPortfolioDrawdown:    0.10,
		CircuitBreakerThreshold: 0.08,
		PositionStopLoss:        0.03,
		MinQualityScore:         0.6,
		MaxPositions:            5,
		MaxCorrelation:          0.6,
		MaxCorrelatedHoldings:   1,
		CashBufferMin:           0.30,
		CashBufferMax:           1.0,
	},
	domain.ProfileBalanced: {
		MaxPositionSize:         0.10,
		MaxTotalExposure:        0.80,
		MaxPortfolioDrawdown:    0.15,
		CircuitBreakerThreshold: 0.12,
		PositionStopLoss:        0.05,
		MinQualityScore:         0.5,
		MaxPositions:            10,
		MaxCorrelation:          0.7,
		MaxCorrelatedHoldings:   2,
		CashBufferMin:           0.10,
		CashBufferMax:           1.0,
	},
	domain.ProfileAggressive: {
		MaxPositionSize:         0.20,
		MaxTotalExposure:        0.95,
		MaxPortfolioDrawdown:    0.25,
		CircuitBreakerThreshold: 0.20,
		PositionStopLoss:        0.08,
		MinQualityScore:         0.4,
		MaxPositions:            20,
		MaxCorrelation:          0.8,
		MaxCorrelatedHoldings:   3,
		CashBufferMin:           0.05,
		CashBufferMax:           1.0,
	},
}

// ProfileSettings returns the preset for name (case-insensitive).
func ProfileSettings(name string) (domain.RiskSettings, error) {
	s, ok := profiles[domain.RiskProfile(strings.ToLower(strings.TrimSpace(name)))]
	if !ok {
		return domain.RiskSettings{}, fmt.Errorf("%w: unknown risk profile %q", ports.ErrConfiguration, name)
	}
	return s, nil
}
