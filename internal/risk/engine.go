package risk

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"tradePilot/internal/domain"
	"tradePilot/internal/ports"
)

// Rejection reasons, in evaluation order.
const (
	ReasonBreakerActive   = "circuit breaker active"
	ReasonDrawdownLimit   = "drawdown limit"
	ReasonCashBuffer      = "cash buffer violated"
	ReasonQuality         = "quality below threshold"
	ReasonDeploymentLimit = "deployment limit"
	ReasonMaxPositions    = "max positions"
	ReasonCorrelation     = "correlation limit"
)

var reasonRank = map[string]int{
	ReasonBreakerActive:   1,
	ReasonDrawdownLimit:   2,
	ReasonCashBuffer:      3,
	ReasonQuality:         4,
	ReasonDeploymentLimit: 5,
	ReasonMaxPositions:    6,
	ReasonCorrelation:     7,
}

// Precedes reports whether rejection reason a is checked before b. An
// unknown a precedes nothing; a known a precedes any unknown b.
func Precedes(a, b string) bool {
	ra, ok := reasonRank[a]
	if !ok {
		return false
	}
	rb, ok := reasonRank[b]
	return !ok || ra < rb
}

// exposureTolerance absorbs float rounding in exposure sums.
const exposureTolerance = 1e-9

type correlationRef struct {
	src ports.CorrelationSource
}

// Engine evaluates signals against portfolio-level limits. It owns the
// portfolio snapshot and the circuit breaker; readers get copies.
type Engine struct {
	settings     atomic.Pointer[domain.RiskSettings]
	correlations atomic.Pointer[correlationRef]
	breaker      *CircuitBreaker
	logger       ports.Logger

	mu        sync.RWMutex
	portfolio domain.PortfolioSnapshot
	loaded    bool
}

// NewEngine validates settings and returns an engine with an armed breaker.
// corr may be nil, in which case every unknown pair counts as uncorrelated.
func NewEngine(settings domain.RiskSettings, corr ports.CorrelationSource, logger ports.Logger) (*Engine, error) {
	if logger == nil {
		return nil, fmt.Errorf("%w: risk engine requires a logger", ports.ErrConfiguration)
	}
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ports.ErrConfiguration, err)
	}
	e := &Engine{
		breaker: NewCircuitBreaker(settings.CircuitBreakerThreshold),
		logger:  logger,
		portfolio: domain.PortfolioSnapshot{
			Positions: map[string]domain.Holding{},
		},
	}
	e.settings.Store(&settings)
	e.correlations.Store(&correlationRef{src: corr})
	return e, nil
}

// Settings returns the settings currently in force.
func (e *Engine) Settings() domain.RiskSettings {
	return *e.settings.Load()
}

// SwapSettings installs a new settings value. In-flight evaluations finish
// with the value they loaded.
func (e *Engine) SwapSettings(ctx context.Context, s domain.RiskSettings) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ports.ErrConfiguration, err)
	}
	old := e.settings.Swap(&s)
	e.breaker.SetThreshold(s.CircuitBreakerThreshold)
	e.logger.Info(ctx, "Risk settings reloaded", map[string]interface{}{
		"maxPositionSize":  s.MaxPositionSize,
		"maxTotalExposure": s.MaxTotalExposure,
		"prevMaxExposure":  old.MaxTotalExposure,
	})
	return nil
}

// SwapCorrelations replaces the correlation source.
func (e *Engine) SwapCorrelations(src ports.CorrelationSource) {
	e.correlations.Store(&correlationRef{src: src})
}

// Breaker exposes the circuit breaker for observers and manual reset.
func (e *Engine) Breaker() *CircuitBreaker { return e.breaker }

// UpdatePortfolio installs a fresh snapshot. Peak equity only grows and
// drawdown is recomputed from it. A snapshot older than the held one is
// discarded and false is returned.
func (e *Engine) UpdatePortfolio(ctx context.Context, snap domain.PortfolioSnapshot) (domain.PortfolioSnapshot, bool) {
	e.mu.Lock()
	if e.loaded && snap.AsOf.Before(e.portfolio.AsOf) {
		current := e.portfolio.Clone()
		e.mu.Unlock()
		e.logger.Debug(ctx, "Discarding stale portfolio snapshot", map[string]interface{}{
			"asOf":    snap.AsOf,
			"current": current.AsOf,
		})
		return current, false
	}
	peak := math.Max(e.portfolio.PeakEquity, math.Max(snap.PeakEquity, snap.NAV))
	next := snap.Clone()
	next.PeakEquity = peak
	next.Drawdown = 0
	if peak > 0 {
		next.Drawdown = math.Max(0, (peak-snap.NAV)/peak)
	}
	e.portfolio = next
	e.loaded = true
	out := next.Clone()
	e.mu.Unlock()

	// Trip proactively so the dashboard reflects it without waiting for a signal.
	e.breaker.Evaluate(out.Drawdown)
	return out, true
}

// Portfolio returns a copy of the current snapshot.
func (e *Engine) Portfolio() domain.PortfolioSnapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.portfolio.Clone()
}

// Evaluate runs the risk checks in fixed order and stops at the first
// violation, so the reason is always the highest-priority one.
func (e *Engine) Evaluate(signal domain.TradingSignal, portfolio domain.PortfolioSnapshot) domain.RiskDecision {
	s := e.settings.Load()
	quality := domain.QualityScore(signal)
	reject := func(reason string) domain.RiskDecision {
		return domain.RiskDecision{Approved: false, Reason: reason, Quality: quality}
	}

	if e.breaker.Evaluate(portfolio.Drawdown) {
		return reject(ReasonBreakerActive)
	}
	if portfolio.Drawdown >= s.MaxPortfolioDrawdown {
		return reject(ReasonDrawdownLimit)
	}
	if portfolio.NAV <= 0 {
		return reject(ReasonCashBuffer)
	}
	if cash := portfolio.CashFraction(); cash < s.CashBufferMin || cash > s.CashBufferMax {
		return reject(ReasonCashBuffer)
	}
	if math.IsNaN(quality) || math.IsInf(quality, 0) || quality < s.MinQualityScore {
		return reject(ReasonQuality)
	}
	deployed := portfolio.DeployedFraction()
	if deployed+s.MaxPositionSize*quality > s.MaxTotalExposure+exposureTolerance {
		return reject(ReasonDeploymentLimit)
	}
	if !portfolio.Reduces(signal.Symbol, signal.Side) && portfolio.OpenPositions() >= s.MaxPositions {
		return reject(ReasonMaxPositions)
	}
	if e.correlatedHoldings(signal.Symbol, portfolio, s.MaxCorrelation) > s.MaxCorrelatedHoldings {
		return reject(ReasonCorrelation)
	}

	fraction := math.Max(0, math.Min(s.MaxPositionSize, s.MaxTotalExposure-deployed)*quality)
	return domain.RiskDecision{Approved: true, MaxSizeFraction: fraction, Quality: quality}
}

func (e *Engine) correlatedHoldings(symbol string, portfolio domain.PortfolioSnapshot, limit float64) int {
	src := e.correlations.Load().src
	if src == nil {
		return 0
	}
	n := 0
	for held, h := range portfolio.Positions {
		if h.Quantity == 0 || held == symbol {
			continue
		}
		if c, ok := src.Correlation(symbol, held); ok && math.Abs(c) > limit {
			n++
		}
	}
	return n
}

// StopLossPrice is the signal's own stop if set, otherwise the entry price
// moved against the trade by the configured fraction.
func (e *Engine) StopLossPrice(signal domain.TradingSignal) float64 {
	if signal.StopLoss != nil && *signal.StopLoss > 0 {
		return *signal.StopLoss
	}
	pct := e.settings.Load().PositionStopLoss
	if signal.Side == domain.Sell {
		return signal.EntryPrice * (1 + pct)
	}
	return signal.EntryPrice * (1 - pct)
}
