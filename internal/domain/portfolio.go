package domain

import "time"

// Holding is the position held in one symbol. Quantity is negative for shorts.
type Holding struct {
	Quantity float64
	Value    float64 // Signed market value
}

// PortfolioSnapshot is a point-in-time view of the account.
type PortfolioSnapshot struct {
	NAV        float64
	Cash       float64
	Positions  map[string]Holding
	PeakEquity float64
	Drawdown   float64 // (peak - NAV) / peak
	AsOf       time.Time
}

// Clone returns a deep copy; the positions map is never shared.
func (p PortfolioSnapshot) Clone() PortfolioSnapshot {
	out := p
	out.Positions = make(map[string]Holding, len(p.Positions))
	for k, v := range p.Positions {
		out.Positions[k] = v
	}
	return out
}

// DeployedFraction is gross position value over NAV.
func (p PortfolioSnapshot) DeployedFraction() float64 {
	if p.NAV <= 0 {
		return 0
	}
	var gross float64
	for _, h := range p.Positions {
		if h.Value < 0 {
			gross -= h.Value
		} else {
			gross += h.Value
		}
	}
	return gross / p.NAV
}

// CashFraction is cash over NAV; zero when NAV is not positive.
func (p PortfolioSnapshot) CashFraction() float64 {
	if p.NAV <= 0 {
		return 0
	}
	return p.Cash / p.NAV
}

// OpenPositions counts symbols with a non-zero quantity.
func (p PortfolioSnapshot) OpenPositions() int {
	n := 0
	for _, h := range p.Positions {
		if h.Quantity != 0 {
			n++
		}
	}
	return n
}

// Reduces reports whether trading side on symbol would shrink an existing position.
func (p PortfolioSnapshot) Reduces(symbol string, side OrderSide) bool {
	h, ok := p.Positions[symbol]
	if !ok {
		return false
	}
	return (side == Sell && h.Quantity > 0) || (side == Buy && h.Quantity < 0)
}
