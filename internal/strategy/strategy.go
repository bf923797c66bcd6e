// Package strategy holds the bundled trend-following signal generator.
package strategy

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"tradePilot/internal/domain"
	"tradePilot/internal/ports"
	"tradePilot/internal/strategy/indicators"
)

// Config holds parameters for the MA/RSI strategy.
type Config struct {
	Name              string  // default "ma_rsi"
	ShortTermMAPeriod int     // e.g., 20
	LongTermMAPeriod  int     // e.g., 50
	EMAPeriod         int     // defaults to ShortTermMAPeriod
	RSIPeriod         int     // e.g., 14
	RSIOverbought     float64 // e.g., 70
	RSIOversold       float64 // e.g., 30
	ATRPeriod         int     // defaults to RSIPeriod
	ATRMultiplier     float64 // stop distance in ATRs, default 2
	RewardRisk        float64 // take-profit distance over stop distance, default 2
	PeriodsPerYear    float64 // bars per year for the Sharpe estimate, default 252
}

// Strategy emits a BUY when price trades above both averages in an uptrend
// with RSI below overbought, and the mirror SELL in a downtrend.
type Strategy struct {
	cfg     Config
	logger  ports.Logger
	shortMA *indicators.MovingAverage
	longMA  *indicators.MovingAverage
	ema     *indicators.MovingAverage
	rsi     *indicators.RSI
	atr     *indicators.ATR
}

// New validates cfg and builds the indicators.
func New(cfg Config, logger ports.Logger) (*Strategy, error) {
	if logger == nil {
		return nil, fmt.Errorf("%w: logger is required for strategy", ports.ErrConfiguration)
	}
	if cfg.Name == "" {
		cfg.Name = "ma_rsi"
	}
	if cfg.EMAPeriod == 0 {
		cfg.EMAPeriod = cfg.ShortTermMAPeriod
	}
	if cfg.ATRPeriod == 0 {
		cfg.ATRPeriod = cfg.RSIPeriod
	}
	if cfg.ATRMultiplier == 0 {
		cfg.ATRMultiplier = 2
	}
	if cfg.RewardRisk == 0 {
		cfg.RewardRisk = 2
	}
	if cfg.PeriodsPerYear == 0 {
		cfg.PeriodsPerYear = 252
	}
	if cfg.ShortTermMAPeriod <= 0 || cfg.LongTermMAPeriod <= 0 || cfg.EMAPeriod <= 0 || cfg.RSIPeriod <= 0 || cfg.ATRPeriod <= 0 {
		return nil, fmt.Errorf("%w: strategy periods must be positive", ports.ErrConfiguration)
	}
	if cfg.ShortTermMAPeriod >= cfg.LongTermMAPeriod {
		return nil, fmt.Errorf("%w: short term MA period must be less than long term MA period", ports.ErrConfiguration)
	}
	if cfg.RSIOversold <= 0 || cfg.RSIOverbought >= 100 || cfg.RSIOversold >= cfg.RSIOverbought {
		return nil, fmt.Errorf("%w: RSI levels must satisfy 0 < oversold < overbought < 100", ports.ErrConfiguration)
	}

	return &Strategy{
		cfg:    cfg,
		logger: logger,
		shortMA: indicators.NewMovingAverage(indicators.MovingAverageConfig{
			IndicatorConfig: indicators.IndicatorConfig{Period: cfg.ShortTermMAPeriod},
			Type:            indicators.SimpleMovingAverage,
		}),
		longMA: indicators.NewMovingAverage(indicators.MovingAverageConfig{
			IndicatorConfig: indicators.IndicatorConfig{Period: cfg.LongTermMAPeriod},
			Type:            indicators.SimpleMovingAverage,
		}),
		ema: indicators.NewMovingAverage(indicators.MovingAverageConfig{
			IndicatorConfig: indicators.IndicatorConfig{Period: cfg.EMAPeriod},
			Type:            indicators.ExponentialMovingAverage,
		}),
		rsi: indicators.NewRSI(indicators.RSIConfig{
			IndicatorConfig: indicators.IndicatorConfig{Period: cfg.RSIPeriod},
			Overbought:      cfg.RSIOverbought,
			Oversold:        cfg.RSIOversold,
		}),
		atr: indicators.NewATR(indicators.IndicatorConfig{Period: cfg.ATRPeriod}),
	}, nil
}

func (s *Strategy) Name() string { return s.cfg.Name }

// RequiredDataPoints is the largest lookback among the indicators.
func (s *Strategy) RequiredDataPoints() int {
	n := 0
	for _, ind := range []indicators.Indicator{s.shortMA, s.longMA, s.ema, s.rsi, s.atr} {
		n = max(n, ind.RequiredDataPoints())
	}
	return n
}

// GenerateSignals evaluates every symbol in market, in sorted order.
func (s *Strategy) GenerateSignals(ctx context.Context, ts time.Time, market domain.MarketData) ([]domain.TradingSignal, error) {
	symbols := make([]string, 0, len(market))
	for sym := range market {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	var out []domain.TradingSignal
	for _, sym := range symbols {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		sig, ok, err := s.evaluate(ctx, ts, sym, market[sym])
		if err != nil {
			return out, fmt.Errorf("%s: %w", sym, err)
		}
		if ok {
			out = append(out, sig)
		}
	}
	return out, nil
}

type readings struct {
	price, shortMA, longMA, ema, rsi, atr float64
}

func (s *Strategy) read(bars []domain.Bar) (readings, error) {
	var (
		r   readings
		err error
	)
	r.price = bars[len(bars)-1].Close
	if r.shortMA, err = s.shortMA.Calculate(bars); err != nil {
		return r, err
	}
	if r.longMA, err = s.longMA.Calculate(bars); err != nil {
		return r, err
	}
	if r.ema, err = s.ema.Calculate(bars); err != nil {
		return r, err
	}
	if r.rsi, err = s.rsi.Calculate(bars); err != nil {
		return r, err
	}
	if r.atr, err = s.atr.Calculate(bars); err != nil {
		return r, err
	}
	return r, nil
}

func (s *Strategy) evaluate(ctx context.Context, ts time.Time, symbol string, bars []domain.Bar) (domain.TradingSignal, bool, error) {
	required := s.RequiredDataPoints()
	if len(bars) < required {
		s.logger.Debug(ctx, "Not enough bar data for strategy evaluation",
			map[string]interface{}{"symbol": symbol, "available": len(bars), "required": required})
		return domain.TradingSignal{}, false, nil
	}

	r, err := s.read(bars)
	if err != nil {
		return domain.TradingSignal{}, false, err
	}

	var side domain.OrderSide
	switch {
	case r.price > r.shortMA && r.shortMA > r.longMA && r.price > r.ema && !s.rsi.IsOverbought(r.rsi):
		side = domain.Buy
	case r.price < r.shortMA && r.shortMA < r.longMA && r.price < r.ema && !s.rsi.IsOversold(r.rsi):
		side = domain.Sell
	default:
		s.logger.Debug(ctx, "Entry conditions not met", map[string]interface{}{
			"symbol": symbol, "price": r.price, "shortMA": r.shortMA, "longMA": r.longMA, "ema": r.ema, "rsi": r.rsi,
		})
		return domain.TradingSignal{}, false, nil
	}

	confidence := s.confidence(side, r)
	sharpe := indicators.SharpeRatio(indicators.Returns(bars[len(bars)-s.cfg.LongTermMAPeriod:]), s.cfg.PeriodsPerYear)
	if side == domain.Sell {
		sharpe = -sharpe
	}

	stopDist := r.atr * s.cfg.ATRMultiplier
	stop, target := r.price-stopDist, r.price+stopDist*s.cfg.RewardRisk
	if side == domain.Sell {
		stop, target = r.price+stopDist, r.price-stopDist*s.cfg.RewardRisk
	}
	sig := domain.NewSignal(s.cfg.Name, symbol, side, confidence, sharpe, r.price, ts).WithStops(stop, target)

	s.logger.Info(ctx, "Trade entry conditions met", map[string]interface{}{
		"symbol":     symbol,
		"side":       side,
		"price":      r.price,
		"shortMA":    r.shortMA,
		"longMA":     r.longMA,
		"rsi":        r.rsi,
		"atr":        r.atr,
		"confidence": confidence,
		"sharpe":     sharpe,
	})
	return sig, true, nil
}

// confidence blends trend strength (MA spread, saturating at 5%) with RSI
// headroom before the opposite extreme.
func (s *Strategy) confidence(side domain.OrderSide, r readings) float64 {
	trend := math.Min(1, math.Abs(r.shortMA-r.longMA)/r.longMA*20)
	var headroom float64
	if side == domain.Buy {
		headroom = (s.cfg.RSIOverbought - r.rsi) / s.cfg.RSIOverbought
	} else {
		headroom = (r.rsi - s.cfg.RSIOversold) / (100 - s.cfg.RSIOversold)
	}
	c := 0.5*trend + 0.5*headroom
	return math.Max(0, math.Min(1, c))
}
