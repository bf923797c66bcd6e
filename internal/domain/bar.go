package domain

import "time"

// Bar represents a single OHLCV candle for a symbol.
type Bar struct {
	OpenTime  time.Time // Start time of the interval
	CloseTime time.Time // End time of the interval
	Symbol    string
	Interval  string // e.g. "1m", "1h"
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// MarketData maps a symbol to its bars, oldest first.
type MarketData map[string][]Bar

// Last returns the most recent bar for symbol.
func (m MarketData) Last(symbol string) (Bar, bool) {
	bars := m[symbol]
	if len(bars) == 0 {
		return Bar{}, false
	}
	return bars[len(bars)-1], true
}
