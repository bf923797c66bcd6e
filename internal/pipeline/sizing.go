package pipeline

import (
	"errors"
	"math"

	"github.com/shopspring/decimal"

	"tradePilot/internal/domain"
)

// fractionPlaces trims float noise from risk fractions before sizing.
const fractionPlaces = 10

// ErrSizeOverflow is returned when a computed share count does not fit an
// order quantity.
var ErrSizeOverflow = errors.New("position size exceeds order quantity range")

var maxShares = decimal.NewFromInt(math.MaxInt64)

// PositionSize returns floor(fraction * nav / price) whole shares. It is
// zero for any non-positive or non-finite input.
func PositionSize(fraction, nav, price float64) (int64, error) {
	for _, v := range []float64{fraction, nav, price} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
			return 0, nil
		}
	}
	f := decimal.NewFromFloat(fraction).Round(fractionPlaces)
	shares := f.Mul(decimal.NewFromFloat(nav)).Div(decimal.NewFromFloat(price)).Floor()
	if !shares.IsPositive() {
		return 0, nil
	}
	if shares.GreaterThan(maxShares) {
		return 0, ErrSizeOverflow
	}
	return shares.IntPart(), nil
}

// applyFill books an executed order into a working portfolio copy.
func applyFill(p *domain.PortfolioSnapshot, r domain.ExecutionResult) {
	qty := decimal.NewFromInt(r.PositionSize)
	if r.Signal.Side == domain.Sell {
		qty = qty.Neg()
	}
	notional := qty.Mul(decimal.NewFromFloat(r.Signal.EntryPrice))

	h := p.Positions[r.Signal.Symbol]
	h.Quantity = decimal.NewFromFloat(h.Quantity).Add(qty).InexactFloat64()
	h.Value = decimal.NewFromFloat(h.Value).Add(notional).InexactFloat64()
	if p.Positions == nil {
		p.Positions = make(map[string]domain.Holding)
	}
	p.Positions[r.Signal.Symbol] = h
	p.Cash = decimal.NewFromFloat(p.Cash).Sub(notional).InexactFloat64()
}
