package ports

import (
	"context"
	"time"

	"tradePilot/internal/domain"
)

// StrategyCapability produces trading signals from market data.
type StrategyCapability interface {
	// Name identifies the strategy in logs, signals and the dashboard.
	Name() string
	// GenerateSignals returns zero or more signals for the given instant.
	GenerateSignals(ctx context.Context, ts time.Time, market domain.MarketData) ([]domain.TradingSignal, error)
}

// CorrelationSource reports the correlation between two symbols. ok is false
// when the pair is unknown.
type CorrelationSource interface {
	Correlation(a, b string) (corr float64, ok bool)
}
