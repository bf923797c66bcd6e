// Package paper provides an in-memory venue that fills market orders at the
// last simulated price. It lets the daemon run without exchange credentials.
package paper

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"tradePilot/internal/domain"
	"tradePilot/internal/ports"
)

const maxSeriesLen = 2000

// Config holds configuration for the paper venue.
type Config struct {
	StartingCash     float64
	StartPrices      map[string]float64 // symbols not listed start at 100
	Seed             int64
	Volatility       float64       // per-bar log-return stddev, default 0.002
	BarInterval      time.Duration // default 1m
	HistoryBars      int           // bars generated before the first request, default 200
	OrderFailureRate float64       // probability in [0,1] that an order is rejected
	ConnectFailures  int           // connect attempts to fail before succeeding
	Logger           ports.Logger
}

type series struct {
	bars []domain.Bar
	rng  *rand.Rand
}

// Broker implements ports.ExecutionGateway and ports.MarketDataSource.
type Broker struct {
	cfg    Config
	logger ports.Logger
	now    func() time.Time

	mu              sync.Mutex
	connected       bool
	connectAttempts int
	cash            decimal.Decimal
	positions       map[string]decimal.Decimal
	series          map[string]*series
	orderSeq        int64
	failRng         *rand.Rand
}

// NewBroker creates a paper venue holding only cash.
func NewBroker(cfg Config) (*Broker, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("%w: logger is required for paper broker", ports.ErrConfiguration)
	}
	if cfg.StartingCash <= 0 {
		return nil, fmt.Errorf("%w: starting cash must be positive, got %v", ports.ErrConfiguration, cfg.StartingCash)
	}
	if cfg.OrderFailureRate < 0 || cfg.OrderFailureRate > 1 {
		return nil, fmt.Errorf("%w: order failure rate %v outside [0,1]", ports.ErrConfiguration, cfg.OrderFailureRate)
	}
	if cfg.Volatility <= 0 {
		cfg.Volatility = 0.002
	}
	if cfg.BarInterval <= 0 {
		cfg.BarInterval = time.Minute
	}
	if cfg.HistoryBars <= 0 {
		cfg.HistoryBars = 200
	}
	return &Broker{
		cfg:       cfg,
		logger:    cfg.Logger,
		now:       time.Now,
		cash:      decimal.NewFromFloat(cfg.StartingCash),
		positions: make(map[string]decimal.Decimal),
		series:    make(map[string]*series),
		failRng:   rand.New(rand.NewSource(cfg.Seed)),
	}, nil
}

// Connect succeeds once the configured number of failures has been used up.
func (b *Broker) Connect(ctx context.Context, timeout time.Duration, maxRetries int) error {
	if maxRetries < 1 {
		maxRetries = 1
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for attempt := 1; attempt <= maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %w", ports.ErrConnectivity, err)
		}
		b.connectAttempts++
		if b.connectAttempts > b.cfg.ConnectFailures {
			b.connected = true
			b.logger.Info(ctx, "Paper venue connected", map[string]interface{}{"attempt": attempt})
			return nil
		}
	}
	return fmt.Errorf("%w: paper venue refused %d attempts", ports.ErrConnectivity, maxRetries)
}

// Disconnect closes the simulated session.
func (b *Broker) Disconnect(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.connected {
		b.connected = false
		b.logger.Info(ctx, "Paper venue disconnected")
	}
	return nil
}

// Connected reports whether the simulated session is up.
func (b *Broker) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

// SubmitMarketOrder fills immediately at the latest close.
func (b *Broker) SubmitMarketOrder(ctx context.Context, symbol string, side domain.OrderSide, quantity int64) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.connected {
		return "", fmt.Errorf("%w: %w", ports.ErrExecutionFailure, ports.ErrNotConnected)
	}
	if quantity <= 0 || !side.Valid() {
		return "", fmt.Errorf("%w: %w: %s %d %s", ports.ErrExecutionFailure, ports.ErrInvalidInput, side, quantity, symbol)
	}
	if b.cfg.OrderFailureRate > 0 && b.failRng.Float64() < b.cfg.OrderFailureRate {
		return "", fmt.Errorf("%w: simulated venue rejection for %s", ports.ErrExecutionFailure, symbol)
	}

	price := decimal.NewFromFloat(b.lastPriceLocked(symbol))
	qty := decimal.NewFromInt(quantity)
	if side == domain.Sell {
		qty = qty.Neg()
	}
	notional := qty.Mul(price)
	if side == domain.Buy && notional.GreaterThan(b.cash) {
		return "", fmt.Errorf("%w: %w: need %s, have %s", ports.ErrExecutionFailure, ports.ErrInsufficientFunds, notional.StringFixed(2), b.cash.StringFixed(2))
	}

	b.cash = b.cash.Sub(notional)
	pos := b.positions[symbol].Add(qty)
	if pos.IsZero() {
		delete(b.positions, symbol)
	} else {
		b.positions[symbol] = pos
	}
	b.orderSeq++
	orderID := fmt.Sprintf("PAPER-%06d", b.orderSeq)
	b.logger.Info(ctx, "Paper order filled", map[string]interface{}{"orderID": orderID, "symbol": symbol, "side": side, "quantity": quantity, "price": price.String()})
	return orderID, nil
}

// PortfolioSnapshot marks every position to the latest close.
func (b *Broker) PortfolioSnapshot(ctx context.Context) (domain.PortfolioSnapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	snap := domain.PortfolioSnapshot{
		Cash:      b.cash.InexactFloat64(),
		Positions: make(map[string]domain.Holding, len(b.positions)),
		AsOf:      b.now(),
	}
	nav := b.cash
	for symbol, qty := range b.positions {
		value := qty.Mul(decimal.NewFromFloat(b.lastPriceLocked(symbol)))
		nav = nav.Add(value)
		snap.Positions[symbol] = domain.Holding{Quantity: qty.InexactFloat64(), Value: value.InexactFloat64()}
	}
	snap.NAV = nav.InexactFloat64()
	return snap, nil
}

// Bars returns up to limit bars ending at the current simulated time.
func (b *Broker) Bars(ctx context.Context, symbol string, limit int) ([]domain.Bar, error) {
	if symbol == "" {
		return nil, fmt.Errorf("%w: empty symbol", ports.ErrInvalidInput)
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	s := b.seriesLocked(symbol)
	start := 0
	if limit > 0 && len(s.bars) > limit {
		start = len(s.bars) - limit
	}
	out := make([]domain.Bar, len(s.bars)-start)
	copy(out, s.bars[start:])
	return out, nil
}

func (b *Broker) lastPriceLocked(symbol string) float64 {
	s := b.seriesLocked(symbol)
	return s.bars[len(s.bars)-1].Close
}

// seriesLocked extends the random walk for symbol up to the current time.
func (b *Broker) seriesLocked(symbol string) *series {
	now := b.now()
	s, ok := b.series[symbol]
	if !ok {
		seed := b.cfg.Seed
		for _, r := range symbol {
			seed = seed*31 + int64(r)
		}
		s = &series{rng: rand.New(rand.NewSource(seed))}
		price := b.cfg.StartPrices[symbol]
		if price <= 0 {
			price = 100
		}
		first := now.Truncate(b.cfg.BarInterval).Add(-time.Duration(b.cfg.HistoryBars) * b.cfg.BarInterval)
		s.bars = append(s.bars, b.nextBar(s, symbol, first, price))
		b.series[symbol] = s
	}

	for {
		last := s.bars[len(s.bars)-1]
		open := last.OpenTime.Add(b.cfg.BarInterval)
		if open.After(now) {
			break
		}
		s.bars = append(s.bars, b.nextBar(s, symbol, open, last.Close))
	}
	if len(s.bars) > maxSeriesLen {
		s.bars = append([]domain.Bar(nil), s.bars[len(s.bars)-maxSeriesLen:]...)
	}
	return s
}

func (b *Broker) nextBar(s *series, symbol string, open time.Time, prev float64) domain.Bar {
	vol := b.cfg.Volatility
	closePrice := prev * math.Exp(vol*s.rng.NormFloat64())
	spread := math.Abs(closePrice-prev) + prev*vol*s.rng.Float64()
	return domain.Bar{
		OpenTime:  open,
		CloseTime: open.Add(b.cfg.BarInterval - time.Millisecond),
		Symbol:    symbol,
		Interval:  b.cfg.BarInterval.String(),
		Open:      prev,
		High:      math.Max(prev, closePrice) + spread/2,
		Low:       math.Min(prev, closePrice) - spread/2,
		Close:     closePrice,
		Volume:    1000 + 500*s.rng.Float64(),
	}
}
