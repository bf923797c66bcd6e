package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradePilot/internal/domain"
	"tradePilot/internal/ports"
)

type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (e *eventLog) add(ev string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
}

func (e *eventLog) list() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.events...)
}

func (e *eventLog) count(ev string) int {
	n := 0
	for _, s := range e.list() {
		if s == ev {
			n++
		}
	}
	return n
}

type mockLogger struct{}

func (mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}

func (mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {}

func (mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {}

func (mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {}

type mockCalendar struct {
	mu      sync.Mutex
	session domain.SessionState
}

func (c *mockCalendar) set(s domain.SessionState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = s
}

func (c *mockCalendar) StateAt(ts time.Time) (domain.SessionState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session, nil
}

type mockLoop struct {
	mu      sync.Mutex
	running bool
	faults  chan error
	log     *eventLog
	release chan struct{} // Stop waits on it while running, if set
}

func (l *mockLoop) Start(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		return
	}
	l.running = true
	l.log.add("loop.start")
}

func (l *mockLoop) Stop() {
	l.mu.Lock()
	running := l.running
	l.mu.Unlock()
	if !running {
		return
	}
	if l.release != nil {
		<-l.release
	}
	l.mu.Lock()
	l.running = false
	l.mu.Unlock()
	l.log.add("loop.stop")
}

func (l *mockLoop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

func (l *mockLoop) Faults() <-chan error        { return l.faults }
func (l *mockLoop) Stats() domain.PipelineStats { return domain.PipelineStats{Generated: 5, Executed: 2, Rejected: 3} }
func (l *mockLoop) ActiveSignals() int          { return 0 }
func (l *mockLoop) StrategyNames() []string     { return []string{"ma_rsi"} }
func (l *mockLoop) Symbols() []string           { return []string{"AAPL", "MSFT"} }

type mockGateway struct {
	mu          sync.Mutex
	connectErrs []error // consumed in order; empty means success
	connected   bool
	log         *eventLog
}

func (g *mockGateway) Connect(ctx context.Context, timeout time.Duration, maxRetries int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.log.add("gateway.connect")
	if len(g.connectErrs) > 0 {
		err := g.connectErrs[0]
		g.connectErrs = g.connectErrs[1:]
		if err != nil {
			return err
		}
	}
	g.connected = true
	return nil
}

func (g *mockGateway) SubmitMarketOrder(ctx context.Context, symbol string, side domain.OrderSide, quantity int64) (string, error) {
	return "", errors.New("not used")
}

func (g *mockGateway) PortfolioSnapshot(ctx context.Context) (domain.PortfolioSnapshot, error) {
	return domain.PortfolioSnapshot{}, nil
}

func (g *mockGateway) Disconnect(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.connected = false
	g.log.add("gateway.disconnect")
	return nil
}

func (g *mockGateway) Connected() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.connected
}

type mockPortfolio struct{}

func (mockPortfolio) Portfolio() domain.PortfolioSnapshot {
	return domain.PortfolioSnapshot{
		NAV:       250000,
		Positions: map[string]domain.Holding{"AAPL": {Quantity: 10, Value: 2000}, "OLD": {}},
	}
}

type mockNotifier struct {
	mu   sync.Mutex
	sent map[string][]domain.AlertLevel
}

func (n *mockNotifier) Notify(ctx context.Context, title, message string, level domain.AlertLevel, metadata map[string]string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.sent == nil {
		n.sent = map[string][]domain.AlertLevel{}
	}
	n.sent[title] = append(n.sent[title], level)
	return nil
}

func (n *mockNotifier) levels(title string) []domain.AlertLevel {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]domain.AlertLevel(nil), n.sent[title]...)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	o        *Orchestrator
	cal      *mockCalendar
	loop     *mockLoop
	gateway  *mockGateway
	notifier *mockNotifier
	clock    *fakeClock
	log      *eventLog
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	log := &eventLog{}
	h := &harness{
		cal:      &mockCalendar{session: domain.SessionClosed},
		loop:     &mockLoop{faults: make(chan error, 1), log: log},
		gateway:  &mockGateway{log: log},
		notifier: &mockNotifier{},
		clock:    &fakeClock{now: time.Date(2024, 12, 24, 8, 0, 0, 0, time.UTC)},
		log:      log,
	}
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = time.Hour
	}
	o, err := New(cfg, h.cal, h.loop, h.gateway, mockPortfolio{}, h.notifier, mockLogger{})
	require.NoError(t, err)
	o.now = h.clock.Now
	h.o = o
	t.Cleanup(func() { o.Stop(context.Background()) })
	return h
}

func defaultConfig() Config {
	return Config{
		AutoStart:          true,
		AutoStop:           true,
		MaxRestartAttempts: 3,
		RestartBackoff:     time.Second,
		MaxRestartBackoff:  10 * time.Second,
	}
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{HeartbeatInterval: time.Second}, nil, nil, nil, nil, nil, nil)
	assert.ErrorIs(t, err, ports.ErrConfiguration)

	log := &eventLog{}
	_, err = New(Config{}, &mockCalendar{}, &mockLoop{log: log}, &mockGateway{log: log}, mockPortfolio{}, &mockNotifier{}, mockLogger{})
	assert.ErrorIs(t, err, ports.ErrConfiguration)
}

func TestLifecycle_CalendarDriven(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, defaultConfig())
	assert.Equal(t, domain.StateStopped, h.o.State())

	var transitions []string
	h.o.OnTransition(func(from, to domain.OrchestratorState, reason string) {
		transitions = append(transitions, string(from)+">"+string(to))
	})

	require.NoError(t, h.o.Start(ctx))
	assert.Equal(t, domain.StatePreMarket, h.o.State(), "closed market waits in pre-market")
	assert.False(t, h.loop.Running())

	h.cal.set(domain.SessionTrading)
	h.o.tick(ctx)
	assert.Equal(t, domain.StateTrading, h.o.State())
	assert.True(t, h.loop.Running())

	h.cal.set(domain.SessionPostMarket)
	h.o.tick(ctx)
	assert.Equal(t, domain.StatePostMarket, h.o.State())
	assert.False(t, h.loop.Running())

	h.cal.set(domain.SessionClosed)
	h.o.tick(ctx)
	assert.Equal(t, domain.StatePostMarket, h.o.State())

	// Next morning straight into the open settles in one tick.
	h.cal.set(domain.SessionTrading)
	h.o.tick(ctx)
	assert.Equal(t, domain.StateTrading, h.o.State())

	assert.Equal(t, []string{
		"STOPPED>PRE_MARKET",
		"PRE_MARKET>TRADING",
		"TRADING>POST_MARKET",
		"POST_MARKET>PRE_MARKET",
		"PRE_MARKET>TRADING",
	}, transitions)
}

func TestLifecycle_AutoFlagsDisabled(t *testing.T) {
	ctx := context.Background()
	cfg := defaultConfig()
	cfg.AutoStart = false
	cfg.AutoStop = false
	h := newHarness(t, cfg)

	require.NoError(t, h.o.Start(ctx))
	h.cal.set(domain.SessionTrading)
	h.o.tick(ctx)
	assert.Equal(t, domain.StatePreMarket, h.o.State())

	h.o.Stop(ctx)
	require.NoError(t, h.o.Start(ctx))
	assert.Equal(t, domain.StateTrading, h.o.State(), "explicit start follows the calendar")

	h.cal.set(domain.SessionClosed)
	h.o.tick(ctx)
	assert.Equal(t, domain.StateTrading, h.o.State())
	assert.True(t, h.loop.Running())
}

func TestStart_PostMarket(t *testing.T) {
	h := newHarness(t, defaultConfig())
	h.cal.set(domain.SessionPostMarket)
	require.NoError(t, h.o.Start(context.Background()))
	assert.Equal(t, domain.StatePostMarket, h.o.State())
}

func TestStart_IsNoOpWhenRunning(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, defaultConfig())
	require.NoError(t, h.o.Start(ctx))
	require.NoError(t, h.o.Start(ctx))
	assert.Equal(t, 1, h.log.count("gateway.connect"))
}

func TestStop_DrainsBeforeStopped(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, defaultConfig())
	h.cal.set(domain.SessionTrading)
	require.NoError(t, h.o.Start(ctx))
	require.True(t, h.loop.Running())

	h.loop.release = make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		h.o.Stop(ctx)
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned before the pipeline drained")
	case <-time.After(100 * time.Millisecond):
	}
	assert.NotEqual(t, domain.StateStopped, h.o.State())

	close(h.loop.release)
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
	assert.Equal(t, domain.StateStopped, h.o.State())

	events := h.log.list()
	assert.Equal(t, []string{"gateway.connect", "loop.start", "loop.stop", "gateway.disconnect"}, events)

	h.o.Stop(ctx)
	assert.Equal(t, events, h.log.list(), "second stop has no side effects")
}

func TestStop_WhenNeverStarted(t *testing.T) {
	h := newHarness(t, defaultConfig())
	h.o.Stop(context.Background())
	assert.Empty(t, h.log.list())
	assert.Equal(t, domain.StateStopped, h.o.State())
}

func TestFault_RestartWithBackoff(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, defaultConfig())
	h.cal.set(domain.SessionTrading)
	require.NoError(t, h.o.Start(ctx))

	h.loop.faults <- errors.New("pipeline crashed")
	require.Eventually(t, func() bool { return len(h.notifier.levels("Trading halted")) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, domain.StateError, h.o.State())
	assert.False(t, h.loop.Running())
	assert.False(t, h.gateway.Connected())
	assert.Equal(t, "pipeline crashed", h.o.LastError())
	assert.Equal(t, []domain.AlertLevel{domain.AlertWarning}, h.notifier.levels("Trading halted"))

	h.gateway.mu.Lock()
	h.gateway.connectErrs = []error{errors.New("refused")}
	h.gateway.mu.Unlock()

	// Before the first backoff elapses nothing happens.
	h.o.tick(ctx)
	assert.Equal(t, 1, h.log.count("gateway.connect"))

	h.clock.advance(time.Second)
	h.o.tick(ctx)
	assert.Equal(t, 2, h.log.count("gateway.connect"))
	assert.Equal(t, domain.StateError, h.o.State())

	// Second attempt waits 2s.
	h.clock.advance(time.Second)
	h.o.tick(ctx)
	assert.Equal(t, 2, h.log.count("gateway.connect"))
	h.clock.advance(time.Second)
	h.o.tick(ctx)
	assert.Equal(t, 3, h.log.count("gateway.connect"))

	assert.Equal(t, domain.StateTrading, h.o.State())
	assert.True(t, h.loop.Running())
	assert.Equal(t, 1, h.o.Summary().RestartCount)
	assert.Empty(t, h.o.LastError())
	assert.Equal(t, []domain.AlertLevel{domain.AlertInfo}, h.notifier.levels("Trading resumed"))
}

func TestFault_BudgetExhausted(t *testing.T) {
	ctx := context.Background()
	cfg := defaultConfig()
	cfg.MaxRestartAttempts = 2
	h := newHarness(t, cfg)

	h.gateway.connectErrs = []error{errors.New("down"), errors.New("down"), errors.New("down")}
	err := h.o.Start(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrConnectivity)
	assert.Equal(t, domain.StateError, h.o.State())

	for i := 0; i < 5; i++ {
		h.clock.advance(time.Minute)
		h.o.tick(ctx)
	}
	assert.Equal(t, 3, h.log.count("gateway.connect"), "initial connect plus two restarts")
	assert.Equal(t, domain.StateError, h.o.State())
	assert.Equal(t, []domain.AlertLevel{domain.AlertCritical}, h.notifier.levels("Restart budget exhausted"))

	// External intervention.
	h.cal.set(domain.SessionPreMarket)
	require.NoError(t, h.o.Start(ctx))
	assert.Equal(t, domain.StatePreMarket, h.o.State())
}

func TestFault_IgnoredWhileInError(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, defaultConfig())
	h.gateway.connectErrs = []error{errors.New("down")}
	require.Error(t, h.o.Start(ctx))

	h.o.fault(ctx, errors.New("late fault"))
	assert.Equal(t, 0, h.log.count("gateway.disconnect"))
}

func TestBackoff(t *testing.T) {
	h := newHarness(t, Config{RestartBackoff: time.Second, MaxRestartBackoff: 3 * time.Second})
	assert.Equal(t, time.Second, h.o.backoff(1))
	assert.Equal(t, 2*time.Second, h.o.backoff(2))
	assert.Equal(t, 3*time.Second, h.o.backoff(3))
	assert.Equal(t, 3*time.Second, h.o.backoff(10))
}

func TestSummaryAndHeartbeat(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, defaultConfig())
	var beats int
	h.o.OnHeartbeat(func(state domain.OrchestratorState, at time.Time) { beats++ })

	require.NoError(t, h.o.Start(ctx))
	h.o.tick(ctx)
	assert.Equal(t, 1, beats)

	s := h.o.Summary()
	assert.Equal(t, domain.StatePreMarket, s.State)
	assert.True(t, s.Connected)
	assert.Equal(t, []string{"ma_rsi"}, s.Strategies)
	assert.Equal(t, []string{"AAPL", "MSFT"}, s.Symbols)
	assert.Equal(t, int64(5), s.Stats.Generated)
	assert.Equal(t, 250000.0, s.AccountValue)
	assert.Equal(t, 1, s.OpenPositions)
	assert.Equal(t, "2024-12-24T08:00:00Z", s.LastHeartbeat)
}
