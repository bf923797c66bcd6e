package domain

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQualityScore(t *testing.T) {
	testCases := []struct {
		name       string
		confidence float64
		sharpe     float64
		want       float64
	}{
		{"saturated sharpe", 0.9, 3.0, 0.9},
		{"exactly two", 0.5, 2.0, 0.5},
		{"half weight", 0.8, 1.0, 0.4},
		{"zero sharpe", 1.0, 0, 0},
		{"negative sharpe", 0.5, -1, -0.25},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s := NewSignal("s", "AAPL", Buy, tc.confidence, tc.sharpe, 100, time.Now())
			assert.InDelta(t, tc.want, QualityScore(s), 1e-12)
		})
	}
}

func TestTradingSignal_Validate(t *testing.T) {
	base := NewSignal("s", "AAPL", Buy, 0.7, 1.5, 100, time.Now())
	require.NoError(t, base.Validate())
	assert.NotEmpty(t, base.ID)

	mutate := []struct {
		name string
		fn   func(*TradingSignal)
	}{
		{"empty symbol", func(s *TradingSignal) { s.Symbol = "" }},
		{"bad side", func(s *TradingSignal) { s.Side = "HOLD" }},
		{"confidence high", func(s *TradingSignal) { s.Confidence = 1.01 }},
		{"confidence NaN", func(s *TradingSignal) { s.Confidence = math.NaN() }},
		{"zero price", func(s *TradingSignal) { s.EntryPrice = 0 }},
		{"inf price", func(s *TradingSignal) { s.EntryPrice = math.Inf(1) }},
		{"price below minimum", func(s *TradingSignal) { s.EntryPrice = 1e-300 }},
		{"sharpe NaN", func(s *TradingSignal) { s.SharpeEstimate = math.NaN() }},
		{"sharpe +Inf", func(s *TradingSignal) { s.SharpeEstimate = math.Inf(1) }},
		{"sharpe -Inf", func(s *TradingSignal) { s.SharpeEstimate = math.Inf(-1) }},
	}
	for _, tc := range mutate {
		t.Run(tc.name, func(t *testing.T) {
			s := base
			tc.fn(&s)
			err := s.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidSignal))
		})
	}
}

func TestTradingSignal_WithStops(t *testing.T) {
	s := NewSignal("s", "AAPL", Buy, 0.7, 1.5, 100, time.Now())
	withStop := s.WithStops(95, 0)
	require.NotNil(t, withStop.StopLoss)
	assert.Equal(t, 95.0, *withStop.StopLoss)
	assert.Nil(t, withStop.TakeProfit)
	assert.Nil(t, s.StopLoss, "original must be untouched")
}

func TestPortfolioSnapshot(t *testing.T) {
	p := PortfolioSnapshot{
		NAV:  100000,
		Cash: 60000,
		Positions: map[string]Holding{
			"AAPL": {Quantity: 100, Value: 30000},
			"TSLA": {Quantity: -20, Value: -10000},
			"IBM":  {Quantity: 0, Value: 0},
		},
	}
	assert.InDelta(t, 0.4, p.DeployedFraction(), 1e-12)
	assert.InDelta(t, 0.6, p.CashFraction(), 1e-12)
	assert.Equal(t, 2, p.OpenPositions())
	assert.True(t, p.Reduces("AAPL", Sell))
	assert.False(t, p.Reduces("AAPL", Buy))
	assert.True(t, p.Reduces("TSLA", Buy))
	assert.False(t, p.Reduces("MSFT", Sell))

	c := p.Clone()
	c.Positions["AAPL"] = Holding{Quantity: 1, Value: 1}
	assert.Equal(t, 100.0, p.Positions["AAPL"].Quantity)

	empty := PortfolioSnapshot{}
	assert.Zero(t, empty.DeployedFraction())
	assert.Zero(t, empty.CashFraction())
}

func TestRiskSettings_Validate(t *testing.T) {
	ok := RiskSettings{
		MaxPositionSize: 0.1, MaxTotalExposure: 0.8, MaxPortfolioDrawdown: 0.15,
		CircuitBreakerThreshold: 0.12, PositionStopLoss: 0.05, MinQualityScore: 0.5,
		MaxPositions: 10, MaxCorrelation: 0.7, MaxCorrelatedHoldings: 2,
		CashBufferMin: 0.1, CashBufferMax: 1,
	}
	require.NoError(t, ok.Validate())

	bad := ok
	bad.MaxPositionSize = 0.9
	bad.MaxPositions = 0
	err := bad.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidSettings)
	assert.Contains(t, err.Error(), "max_position_size cannot exceed")
	assert.Contains(t, err.Error(), "max_positions must be positive")
}

func TestExecutionStatus_IsTerminal(t *testing.T) {
	assert.False(t, StatusPending.IsTerminal())
	assert.False(t, StatusApproved.IsTerminal())
	assert.True(t, StatusRejected.IsTerminal())
	assert.True(t, StatusExecuted.IsTerminal())
	assert.True(t, StatusFailed.IsTerminal())
}
