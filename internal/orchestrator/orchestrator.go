package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"tradePilot/internal/domain"
	"tradePilot/internal/ports"
)

// maxSettleSteps bounds the transitions taken within a single tick.
const maxSettleSteps = 4

// SessionClock reports the market session at an instant.
type SessionClock interface {
	StateAt(ts time.Time) (domain.SessionState, error)
}

// SignalLoop is the supervised pipeline.
type SignalLoop interface {
	Start(ctx context.Context)
	Stop()
	Running() bool
	Faults() <-chan error
	Stats() domain.PipelineStats
	ActiveSignals() int
	StrategyNames() []string
	Symbols() []string
}

// PortfolioReader returns a copy of the current portfolio.
type PortfolioReader interface {
	Portfolio() domain.PortfolioSnapshot
}

// Config controls ticking and restart supervision.
type Config struct {
	HeartbeatInterval  time.Duration
	AutoStart          bool
	AutoStop           bool
	ConnectTimeout     time.Duration
	ConnectRetries     int
	MaxRestartAttempts int
	RestartBackoff     time.Duration
	MaxRestartBackoff  time.Duration
}

// TransitionObserver is called synchronously after every state change.
type TransitionObserver func(from, to domain.OrchestratorState, reason string)

// HeartbeatObserver is called on every tick.
type HeartbeatObserver func(state domain.OrchestratorState, at time.Time)

// Orchestrator drives the pipeline from the market calendar and restarts it
// after faults.
type Orchestrator struct {
	cfg       Config
	calendar  SessionClock
	loop      SignalLoop
	gateway   ports.ExecutionGateway
	portfolio PortfolioReader
	notifier  ports.Notifier
	logger    ports.Logger
	now       func() time.Time

	mu              sync.RWMutex
	state           domain.OrchestratorState
	restartAttempts int
	nextRestart     time.Time
	exhausted       bool
	restartCount    int
	lastHeartbeat   time.Time
	lastError       string
	onTransition    []TransitionObserver
	onHeartbeat     []HeartbeatObserver

	lifecycle sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
}

// New returns a stopped orchestrator.
func New(cfg Config, cal SessionClock, loop SignalLoop, gateway ports.ExecutionGateway, portfolio PortfolioReader, notifier ports.Notifier, logger ports.Logger) (*Orchestrator, error) {
	if cal == nil || loop == nil || gateway == nil || portfolio == nil || notifier == nil || logger == nil {
		return nil, fmt.Errorf("%w: missing required dependencies for orchestrator", ports.ErrConfiguration)
	}
	if cfg.HeartbeatInterval <= 0 {
		return nil, fmt.Errorf("%w: heartbeat interval must be positive", ports.ErrConfiguration)
	}
	if cfg.MaxRestartAttempts < 0 {
		return nil, fmt.Errorf("%w: max restart attempts cannot be negative", ports.ErrConfiguration)
	}
	if cfg.RestartBackoff <= 0 {
		cfg.RestartBackoff = 5 * time.Second
	}
	if cfg.MaxRestartBackoff <= 0 {
		cfg.MaxRestartBackoff = 5 * time.Minute
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	return &Orchestrator{
		cfg:       cfg,
		calendar:  cal,
		loop:      loop,
		gateway:   gateway,
		portfolio: portfolio,
		notifier:  notifier,
		logger:    logger,
		now:       time.Now,
		state:     domain.StateStopped,
	}, nil
}

// OnTransition registers a state-change observer.
func (o *Orchestrator) OnTransition(fn TransitionObserver) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.onTransition = append(o.onTransition, fn)
}

// OnHeartbeat registers a tick observer.
func (o *Orchestrator) OnHeartbeat(fn HeartbeatObserver) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.onHeartbeat = append(o.onHeartbeat, fn)
}

// State returns the current state.
func (o *Orchestrator) State() domain.OrchestratorState {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}

// Start connects the gateway, picks the initial state from the calendar and
// launches the supervisor. Starting a running orchestrator is a no-op unless
// it sits in ERROR, in which case supervision restarts with a fresh restart
// budget. A connect failure leaves the orchestrator in ERROR with restarts
// scheduled and is returned.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.lifecycle.Lock()
	defer o.lifecycle.Unlock()

	if o.cancel != nil {
		if o.State() != domain.StateError {
			return nil
		}
		o.stopSupervisorLocked()
	}

	o.mu.Lock()
	o.restartAttempts = 0
	o.exhausted = false
	o.nextRestart = time.Time{}
	o.lastError = ""
	o.mu.Unlock()

	superCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.done = make(chan struct{})

	err := o.gateway.Connect(ctx, o.cfg.ConnectTimeout, o.cfg.ConnectRetries)
	if err != nil {
		err = fmt.Errorf("%w: %w", ports.ErrConnectivity, err)
		o.enterError(ctx, err)
	} else {
		o.activate(superCtx, "start requested", true)
	}

	go o.supervise(superCtx, o.done)
	return err
}

// Stop halts supervision, drains the pipeline and disconnects. Stopping a
// stopped orchestrator is a no-op.
func (o *Orchestrator) Stop(ctx context.Context) {
	o.lifecycle.Lock()
	defer o.lifecycle.Unlock()

	if o.cancel == nil && o.State() == domain.StateStopped {
		return
	}
	o.stopSupervisorLocked()
	o.loop.Stop()
	if err := o.gateway.Disconnect(ctx); err != nil {
		o.logger.Warn(ctx, "Gateway disconnect failed", map[string]interface{}{"error": err.Error()})
	}
	o.transition(ctx, domain.StateStopped, "stop requested")
}

func (o *Orchestrator) stopSupervisorLocked() {
	if o.cancel == nil {
		return
	}
	o.cancel()
	<-o.done
	o.cancel = nil
	o.done = nil
}

func (o *Orchestrator) supervise(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(o.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.tick(ctx)
		case err := <-o.loop.Faults():
			o.fault(ctx, err)
		}
	}
}

// tick emits a heartbeat and advances the state machine.
func (o *Orchestrator) tick(ctx context.Context) {
	now := o.now()
	o.mu.Lock()
	o.lastHeartbeat = now
	state := o.state
	observers := append([]HeartbeatObserver(nil), o.onHeartbeat...)
	o.mu.Unlock()

	o.logger.Info(ctx, "Heartbeat", map[string]interface{}{
		"state":         state,
		"activeSignals": o.loop.ActiveSignals(),
		"connected":     o.gateway.Connected(),
	})
	for _, fn := range observers {
		fn(state, now)
	}

	if state == domain.StateError {
		o.maybeRestart(ctx)
		return
	}
	o.evaluate(ctx)
}

// evaluate applies calendar-driven transitions until the state settles.
func (o *Orchestrator) evaluate(ctx context.Context) {
	for i := 0; i < maxSettleSteps; i++ {
		session, err := o.calendar.StateAt(o.now())
		if err != nil {
			o.logger.Error(ctx, err, "Calendar evaluation failed")
			return
		}
		if !o.step(ctx, session) {
			return
		}
	}
}

func (o *Orchestrator) step(ctx context.Context, session domain.SessionState) bool {
	switch o.State() {
	case domain.StatePreMarket:
		if session == domain.SessionTrading && o.cfg.AutoStart {
			o.loop.Start(ctx)
			o.transition(ctx, domain.StateTrading, "market open")
			return true
		}
	case domain.StateTrading:
		if (session == domain.SessionPostMarket || session == domain.SessionClosed) && o.cfg.AutoStop {
			o.loop.Stop()
			o.transition(ctx, domain.StatePostMarket, "market closed")
			return true
		}
		if !o.loop.Running() {
			o.loop.Start(ctx)
		}
	case domain.StatePostMarket:
		if session == domain.SessionPreMarket || session == domain.SessionTrading {
			o.transition(ctx, domain.StatePreMarket, "new session")
			return true
		}
	}
	return false
}

// activate moves to the calendar-chosen operating state.
func (o *Orchestrator) activate(ctx context.Context, reason string, fromStart bool) {
	session, err := o.calendar.StateAt(o.now())
	if err != nil {
		o.logger.Error(ctx, err, "Calendar evaluation failed, assuming closed")
		session = domain.SessionClosed
	}
	target := domain.StatePreMarket
	switch session {
	case domain.SessionTrading:
		target = domain.StateTrading
	case domain.SessionPostMarket:
		if fromStart {
			target = domain.StatePostMarket
		}
	}
	if target == domain.StateTrading {
		o.loop.Start(ctx)
	}
	o.transition(ctx, target, reason)
}

// fault handles an unrecovered error from the supervised loop.
func (o *Orchestrator) fault(ctx context.Context, err error) {
	switch o.State() {
	case domain.StateStopped, domain.StateError:
		o.logger.Warn(ctx, "Ignoring fault outside active states", map[string]interface{}{"error": err.Error()})
		return
	}
	o.logger.Error(ctx, err, "Supervised loop fault")
	o.loop.Stop()
	if derr := o.gateway.Disconnect(ctx); derr != nil {
		o.logger.Warn(ctx, "Gateway disconnect failed", map[string]interface{}{"error": derr.Error()})
	}
	o.enterError(ctx, err)
}

func (o *Orchestrator) enterError(ctx context.Context, err error) {
	o.mu.Lock()
	o.restartAttempts = 0
	o.exhausted = o.cfg.MaxRestartAttempts == 0
	o.nextRestart = o.now().Add(o.backoff(1))
	o.lastError = err.Error()
	o.mu.Unlock()

	o.transition(ctx, domain.StateError, err.Error())
	o.alert(ctx, "Trading halted", err.Error(), domain.AlertWarning)
	if o.cfg.MaxRestartAttempts == 0 {
		o.alert(ctx, "Restart budget exhausted", "automatic restarts disabled; call Start to resume", domain.AlertCritical)
	}
}

func (o *Orchestrator) maybeRestart(ctx context.Context) {
	o.mu.Lock()
	if o.exhausted || o.now().Before(o.nextRestart) {
		o.mu.Unlock()
		return
	}
	o.restartAttempts++
	attempt := o.restartAttempts
	o.mu.Unlock()

	o.logger.Info(ctx, "Attempting restart", map[string]interface{}{
		"attempt":     attempt,
		"maxAttempts": o.cfg.MaxRestartAttempts,
	})
	err := o.gateway.Connect(ctx, o.cfg.ConnectTimeout, o.cfg.ConnectRetries)
	if err == nil {
		o.mu.Lock()
		o.restartAttempts = 0
		o.restartCount++
		o.lastError = ""
		o.mu.Unlock()
		o.activate(ctx, fmt.Sprintf("restart attempt %d succeeded", attempt), false)
		o.alert(ctx, "Trading resumed", fmt.Sprintf("recovered after %d attempt(s)", attempt), domain.AlertInfo)
		return
	}

	o.logger.Error(ctx, err, "Restart attempt failed", map[string]interface{}{"attempt": attempt})
	o.mu.Lock()
	o.lastError = err.Error()
	if attempt >= o.cfg.MaxRestartAttempts {
		o.exhausted = true
	} else {
		o.nextRestart = o.now().Add(o.backoff(attempt + 1))
	}
	exhausted := o.exhausted
	o.mu.Unlock()

	if exhausted {
		o.alert(ctx, "Restart budget exhausted",
			fmt.Sprintf("%d restart attempts failed, last error: %v", attempt, err), domain.AlertCritical)
	}
}

// backoff for the nth attempt: base * 2^(n-1), capped.
func (o *Orchestrator) backoff(n int) time.Duration {
	d := o.cfg.RestartBackoff
	for i := 1; i < n; i++ {
		d *= 2
		if d >= o.cfg.MaxRestartBackoff {
			return o.cfg.MaxRestartBackoff
		}
	}
	if d > o.cfg.MaxRestartBackoff {
		return o.cfg.MaxRestartBackoff
	}
	return d
}

func (o *Orchestrator) transition(ctx context.Context, to domain.OrchestratorState, reason string) {
	o.mu.Lock()
	from := o.state
	if from == to {
		o.mu.Unlock()
		return
	}
	o.state = to
	observers := append([]TransitionObserver(nil), o.onTransition...)
	o.mu.Unlock()

	o.logger.Info(ctx, "State transition", map[string]interface{}{
		"from":   from,
		"to":     to,
		"reason": reason,
	})
	for _, fn := range observers {
		fn(from, to, reason)
	}
}

func (o *Orchestrator) alert(ctx context.Context, title, msg string, level domain.AlertLevel) {
	meta := map[string]string{"state": string(o.State())}
	if err := o.notifier.Notify(ctx, title, msg, level, meta); err != nil {
		o.logger.Warn(ctx, "Notification delivery failed", map[string]interface{}{
			"title": title,
			"error": err.Error(),
		})
	}
}
