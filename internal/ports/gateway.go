package ports

import (
	"context"
	"time"

	"tradePilot/internal/domain"
)

// ExecutionGateway is the brokerage connection used to submit orders and read
// the account.
type ExecutionGateway interface {
	// Connect establishes the session, making up to maxRetries attempts of at
	// most timeout each. Failure wraps ErrConnectivity.
	Connect(ctx context.Context, timeout time.Duration, maxRetries int) error
	// SubmitMarketOrder places a market order and returns the venue order ID.
	// Failure wraps ErrExecutionFailure.
	SubmitMarketOrder(ctx context.Context, symbol string, side domain.OrderSide, quantity int64) (string, error)
	// PortfolioSnapshot returns the current account state.
	PortfolioSnapshot(ctx context.Context) (domain.PortfolioSnapshot, error)
	// Disconnect releases the session. Safe to call when not connected.
	Disconnect(ctx context.Context) error
	// Connected reports whether the session is up.
	Connected() bool
}

// MarketDataSource provides recent bars for strategies.
type MarketDataSource interface {
	Bars(ctx context.Context, symbol string, limit int) ([]domain.Bar, error)
}
