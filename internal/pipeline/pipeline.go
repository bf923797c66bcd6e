package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"tradePilot/internal/domain"
	"tradePilot/internal/ports"
	"tradePilot/internal/risk"
)

// Terminal reasons set by the pipeline itself.
const (
	ReasonAuditUnavailable = "audit store unavailable"
	ReasonBelowOneShare    = "size below one share"
	ReasonCapacity         = "deployment limit reached"
	ReasonSizeOverflow     = "size exceeds order limit"
)

const exposureTolerance = 1e-9

// Config holds the loop parameters.
type Config struct {
	Symbols            []string
	UpdateInterval     time.Duration
	StrategyTimeout    time.Duration
	BarLimit           int
	MaxRefreshFailures int
	// DeriveCorrelations rebuilds the engine's correlation source from the
	// bars fetched each cycle.
	DeriveCorrelations bool
}

// Deps are the collaborators a Pipeline drives.
type Deps struct {
	Risk       *risk.Engine
	Gateway    ports.ExecutionGateway
	Store      ports.AuditStore
	Notifier   ports.Notifier
	Market     ports.MarketDataSource
	Strategies []ports.StrategyCapability
	Logger     ports.Logger
}

// ResultObserver receives every terminal result, synchronously.
type ResultObserver func(domain.ExecutionResult)

// Pipeline turns signals into risk-checked, sized orders and records every
// outcome.
type Pipeline struct {
	cfg        Config
	risk       *risk.Engine
	gateway    ports.ExecutionGateway
	store      ports.AuditStore
	notifier   ports.Notifier
	market     ports.MarketDataSource
	strategies []ports.StrategyCapability
	logger     ports.Logger
	now        func() time.Time

	generated atomic.Int64
	executed  atomic.Int64
	rejected  atomic.Int64
	failed    atomic.Int64

	consecutiveFailures atomic.Int64
	active              atomic.Int64

	observersMu sync.RWMutex
	observers   []ResultObserver

	// loop state
	lifecycle       sync.Mutex
	cancel          context.CancelFunc
	done            chan struct{}
	busy            atomic.Bool
	inflight        sync.WaitGroup
	refreshFailures int
	faults          chan error
}

// New validates the dependencies and wires the breaker trip alert.
func New(cfg Config, deps Deps) (*Pipeline, error) {
	if deps.Risk == nil || deps.Gateway == nil || deps.Store == nil || deps.Notifier == nil || deps.Logger == nil {
		return nil, fmt.Errorf("%w: missing required dependencies for pipeline", ports.ErrConfiguration)
	}
	if cfg.UpdateInterval <= 0 {
		return nil, fmt.Errorf("%w: update interval must be positive", ports.ErrConfiguration)
	}
	if cfg.StrategyTimeout <= 0 {
		cfg.StrategyTimeout = cfg.UpdateInterval
	}
	if cfg.BarLimit <= 0 {
		cfg.BarLimit = 100
	}
	if cfg.MaxRefreshFailures <= 0 {
		cfg.MaxRefreshFailures = 3
	}
	p := &Pipeline{
		cfg:        cfg,
		risk:       deps.Risk,
		gateway:    deps.Gateway,
		store:      deps.Store,
		notifier:   deps.Notifier,
		market:     deps.Market,
		strategies: append([]ports.StrategyCapability(nil), deps.Strategies...),
		logger:     deps.Logger,
		now:        time.Now,
		faults:     make(chan error, 1),
	}
	p.risk.Breaker().OnTrip(func(s domain.CircuitBreakerState) {
		ctx := context.Background()
		p.logger.Warn(ctx, "Circuit breaker tripped", map[string]interface{}{"reason": s.Reason})
		p.notify(ctx, "Circuit breaker tripped", s.Reason, domain.AlertCritical, map[string]string{
			"threshold":  fmt.Sprintf("%.4f", s.Threshold),
			"tripped_at": s.TrippedAt.Format(time.RFC3339),
		})
	})
	return p, nil
}

// OnResult registers an observer for terminal results.
func (p *Pipeline) OnResult(fn ResultObserver) {
	p.observersMu.Lock()
	defer p.observersMu.Unlock()
	p.observers = append(p.observers, fn)
}

// Stats returns the lifetime counters.
func (p *Pipeline) Stats() domain.PipelineStats {
	return domain.PipelineStats{
		Generated: p.generated.Load(),
		Executed:  p.executed.Load(),
		Rejected:  p.rejected.Load(),
		Failed:    p.failed.Load(),
	}
}

// ActiveSignals is the number of signals of the in-flight batch not yet
// terminal.
func (p *Pipeline) ActiveSignals() int {
	return int(p.active.Load())
}

// StrategyNames lists the registered strategies in order.
func (p *Pipeline) StrategyNames() []string {
	names := make([]string, len(p.strategies))
	for i, s := range p.strategies {
		names[i] = s.Name()
	}
	return names
}

// Symbols returns the configured universe.
func (p *Pipeline) Symbols() []string {
	return append([]string(nil), p.cfg.Symbols...)
}

// ProcessSignal runs one signal against the engine's current portfolio.
// The returned result is always terminal.
func (p *Pipeline) ProcessSignal(ctx context.Context, signal domain.TradingSignal) domain.ExecutionResult {
	return p.process(ctx, signal, p.risk.Portfolio())
}

// ProcessBatch handles signals best quality first, strictly sequentially.
// Once the running deployed fraction leaves no room for the next signal,
// every remaining signal is recorded as rejected. Results are returned in
// processing order.
func (p *Pipeline) ProcessBatch(ctx context.Context, signals []domain.TradingSignal) []domain.ExecutionResult {
	ordered := append([]domain.TradingSignal(nil), signals...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return domain.QualityScore(ordered[i]) > domain.QualityScore(ordered[j])
	})

	p.active.Store(int64(len(ordered)))
	defer p.active.Store(0)

	working := p.risk.Portfolio()
	settings := p.risk.Settings()
	exhausted := false
	results := make([]domain.ExecutionResult, 0, len(ordered))

	for _, sig := range ordered {
		if !exhausted {
			prospective := settings.MaxPositionSize * domain.QualityScore(sig)
			if working.DeployedFraction()+prospective > settings.MaxTotalExposure+exposureTolerance {
				exhausted = true
				p.logger.Info(ctx, "Deployment capacity exhausted for batch", map[string]interface{}{
					"deployed":  working.DeployedFraction(),
					"remaining": len(ordered) - len(results),
				})
			}
		}

		var r domain.ExecutionResult
		if exhausted {
			r = p.rejectAtIntake(ctx, sig, p.capacityReason(sig, working))
		} else {
			r = p.process(ctx, sig, working)
			if r.Status == domain.StatusExecuted {
				applyFill(&working, r)
			}
		}
		results = append(results, r)
		p.active.Add(-1)
	}
	return results
}

// capacityReason is the reason recorded for a signal past the batch's
// capacity. Invalid signals and risk rejections that precede the deployment
// check keep their own reason.
func (p *Pipeline) capacityReason(sig domain.TradingSignal, working domain.PortfolioSnapshot) string {
	if err := sig.Validate(); err != nil {
		return err.Error()
	}
	d := p.risk.Evaluate(sig, working)
	if !d.Approved && risk.Precedes(d.Reason, risk.ReasonDeploymentLimit) {
		return d.Reason
	}
	return ReasonCapacity
}

func (p *Pipeline) process(ctx context.Context, sig domain.TradingSignal, portfolio domain.PortfolioSnapshot) domain.ExecutionResult {
	op := "ProcessSignal"
	result, err := p.intake(ctx, sig)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidSignal) {
			return p.finish(ctx, result, domain.StatusRejected, err.Error())
		}
		return p.finish(ctx, result, domain.StatusRejected, ReasonAuditUnavailable)
	}

	decision := p.risk.Evaluate(sig, portfolio)
	result.QualityScore = decision.Quality
	if !decision.Approved {
		return p.finish(ctx, result, domain.StatusRejected, decision.Reason)
	}
	result.RiskCheckPassed = true
	result.AllowedFraction = decision.MaxSizeFraction
	result.StopLoss = p.risk.StopLossPrice(sig)

	size, err := PositionSize(decision.MaxSizeFraction, portfolio.NAV, sig.EntryPrice)
	if err != nil {
		p.logger.Warn(ctx, fmt.Sprintf("%s: sizing failed", op), map[string]interface{}{
			"signalID": sig.ID,
			"fraction": decision.MaxSizeFraction,
			"nav":      portfolio.NAV,
			"price":    sig.EntryPrice,
		})
		return p.finish(ctx, result, domain.StatusRejected, ReasonSizeOverflow)
	}
	if size == 0 {
		return p.finish(ctx, result, domain.StatusRejected, ReasonBelowOneShare)
	}

	result.Status = domain.StatusApproved
	p.saveResult(ctx, result)

	p.logger.Info(ctx, fmt.Sprintf("%s: submitting market order", op), map[string]interface{}{
		"signalID": sig.ID,
		"symbol":   sig.Symbol,
		"side":     sig.Side,
		"quantity": size,
		"quality":  decision.Quality,
	})
	orderID, err := p.gateway.SubmitMarketOrder(ctx, sig.Symbol, sig.Side, size)
	if err != nil {
		p.logger.Error(ctx, err, fmt.Sprintf("%s: order submission failed", op), map[string]interface{}{
			"signalID": sig.ID,
			"symbol":   sig.Symbol,
		})
		result.PositionSize = 0
		return p.finish(ctx, result, domain.StatusFailed, err.Error())
	}
	result.PositionSize = size
	result.OrderID = orderID
	return p.finish(ctx, result, domain.StatusExecuted, "")
}

// intake counts and persists the signal and its PENDING row.
func (p *Pipeline) intake(ctx context.Context, sig domain.TradingSignal) (domain.ExecutionResult, error) {
	p.generated.Add(1)
	result := domain.ExecutionResult{
		Signal:       sig,
		Status:       domain.StatusPending,
		QualityScore: domain.QualityScore(sig),
		CreatedAt:    p.now(),
	}

	saveErr := p.store.SaveSignal(ctx, sig)
	if saveErr != nil {
		p.logger.Error(ctx, saveErr, "Failed to persist signal", map[string]interface{}{"signalID": sig.ID})
	} else {
		p.saveResult(ctx, result)
	}

	if err := sig.Validate(); err != nil {
		return result, err
	}
	return result, saveErr
}

func (p *Pipeline) rejectAtIntake(ctx context.Context, sig domain.TradingSignal, reason string) domain.ExecutionResult {
	result, _ := p.intake(ctx, sig)
	return p.finish(ctx, result, domain.StatusRejected, reason)
}

func (p *Pipeline) finish(ctx context.Context, result domain.ExecutionResult, status domain.ExecutionStatus, reason string) domain.ExecutionResult {
	result.Status = status
	result.RejectionReason = reason
	result.CompletedAt = p.now()
	if status != domain.StatusExecuted {
		result.PositionSize = 0
		result.OrderID = ""
	}
	p.saveResult(ctx, result)

	sig := result.Signal
	meta := map[string]string{
		"signal_id": sig.ID,
		"symbol":    sig.Symbol,
		"side":      string(sig.Side),
		"strategy":  sig.StrategyName,
	}
	switch status {
	case domain.StatusExecuted:
		p.executed.Add(1)
		p.consecutiveFailures.Store(0)
		meta["order_id"] = result.OrderID
		meta["quantity"] = fmt.Sprintf("%d", result.PositionSize)
		p.notify(ctx, "Order executed",
			fmt.Sprintf("%s %d %s @ %.2f", sig.Side, result.PositionSize, sig.Symbol, sig.EntryPrice),
			domain.AlertInfo, meta)
	case domain.StatusRejected:
		p.rejected.Add(1)
		p.logger.Info(ctx, "Signal rejected", map[string]interface{}{
			"signalID": sig.ID,
			"symbol":   sig.Symbol,
			"reason":   reason,
		})
		p.notify(ctx, "Signal rejected", fmt.Sprintf("%s %s: %s", sig.Side, sig.Symbol, reason), domain.AlertWarning, meta)
	case domain.StatusFailed:
		p.failed.Add(1)
		level := domain.AlertWarning
		if p.consecutiveFailures.Add(1) >= 2 {
			level = domain.AlertCritical
		}
		p.notify(ctx, "Order failed", fmt.Sprintf("%s %s: %s", sig.Side, sig.Symbol, reason), level, meta)
	}

	p.observersMu.RLock()
	observers := append([]ResultObserver(nil), p.observers...)
	p.observersMu.RUnlock()
	for _, fn := range observers {
		fn(result)
	}
	return result
}

func (p *Pipeline) saveResult(ctx context.Context, result domain.ExecutionResult) {
	if err := p.store.SaveExecutionResult(ctx, result); err != nil {
		p.logger.Error(ctx, err, "Failed to persist execution result", map[string]interface{}{
			"signalID": result.Signal.ID,
			"status":   result.Status,
		})
	}
}

func (p *Pipeline) notify(ctx context.Context, title, msg string, level domain.AlertLevel, meta map[string]string) {
	if err := p.notifier.Notify(ctx, title, msg, level, meta); err != nil {
		p.logger.Warn(ctx, "Notification delivery failed", map[string]interface{}{
			"title": title,
			"error": err.Error(),
		})
	}
}
