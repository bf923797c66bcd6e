package domain

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidSignal is returned by TradingSignal.Validate.
var ErrInvalidSignal = errors.New("invalid signal")

// MinEntryPrice is the smallest entry price a signal may carry.
const MinEntryPrice = 1e-8

// TradingSignal is a strategy's proposal to trade. It is treated as an
// immutable value once created.
type TradingSignal struct {
	ID             string
	Symbol         string
	Side           OrderSide
	Confidence     float64 // [0,1]
	SharpeEstimate float64
	EntryPrice     float64
	StopLoss       *float64
	TakeProfit     *float64
	StrategyName   string
	GeneratedAt    time.Time
}

// NewSignal builds a signal with a fresh ID.
func NewSignal(strategy, symbol string, side OrderSide, confidence, sharpe, entry float64, at time.Time) TradingSignal {
	return TradingSignal{
		ID:             uuid.NewString(),
		Symbol:         symbol,
		Side:           side,
		Confidence:     confidence,
		SharpeEstimate: sharpe,
		EntryPrice:     entry,
		StrategyName:   strategy,
		GeneratedAt:    at,
	}
}

// WithStops returns a copy of s carrying the given protective levels.
// Zero values leave the corresponding level unset.
func (s TradingSignal) WithStops(stopLoss, takeProfit float64) TradingSignal {
	if stopLoss > 0 {
		s.StopLoss = &stopLoss
	}
	if takeProfit > 0 {
		s.TakeProfit = &takeProfit
	}
	return s
}

// Validate checks the fields every downstream stage relies on.
func (s TradingSignal) Validate() error {
	switch {
	case s.Symbol == "":
		return fmt.Errorf("%w: empty symbol", ErrInvalidSignal)
	case !s.Side.Valid():
		return fmt.Errorf("%w: unknown side %q", ErrInvalidSignal, s.Side)
	case math.IsNaN(s.Confidence) || s.Confidence < 0 || s.Confidence > 1:
		return fmt.Errorf("%w: confidence %v outside [0,1]", ErrInvalidSignal, s.Confidence)
	case math.IsNaN(s.EntryPrice) || math.IsInf(s.EntryPrice, 0) || s.EntryPrice <= 0:
		return fmt.Errorf("%w: entry price %v must be positive", ErrInvalidSignal, s.EntryPrice)
	case s.EntryPrice < MinEntryPrice:
		return fmt.Errorf("%w: entry price %v below minimum %v", ErrInvalidSignal, s.EntryPrice, MinEntryPrice)
	case math.IsNaN(s.SharpeEstimate) || math.IsInf(s.SharpeEstimate, 0):
		return fmt.Errorf("%w: sharpe estimate %v is not finite", ErrInvalidSignal, s.SharpeEstimate)
	}
	return nil
}

// QualityScore is confidence weighted by the Sharpe estimate, saturating at
// a Sharpe of 2.
func QualityScore(s TradingSignal) float64 {
	return s.Confidence * math.Min(s.SharpeEstimate/2, 1)
}
