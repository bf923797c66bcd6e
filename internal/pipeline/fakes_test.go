package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"tradePilot/internal/domain"
	"tradePilot/internal/ports"
)

type mockLogger struct {
	mu   sync.Mutex
	msgs []string
}

func (m *mockLogger) record(msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.msgs = append(m.msgs, msg)
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.record(msg)
}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.record(msg)
}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.record(msg)
}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	m.record(msg)
}

func (m *mockLogger) contains(msg string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.msgs {
		if s == msg {
			return true
		}
	}
	return false
}

type submittedOrder struct {
	Symbol   string
	Side     domain.OrderSide
	Quantity int64
}

type mockGateway struct {
	mu        sync.Mutex
	snapshot  domain.PortfolioSnapshot
	snapErr   error
	snapCalls int
	submitErr error
	orders    []submittedOrder
	entered   chan struct{} // signalled when SubmitMarketOrder starts, if set
	release   chan struct{} // SubmitMarketOrder waits on it, if set
}

func newMockGateway(nav float64) *mockGateway {
	return &mockGateway{snapshot: domain.PortfolioSnapshot{
		NAV:        nav,
		Cash:       nav,
		Positions:  map[string]domain.Holding{},
		PeakEquity: nav,
	}}
}

func (g *mockGateway) Connect(ctx context.Context, timeout time.Duration, maxRetries int) error {
	return nil
}

func (g *mockGateway) SubmitMarketOrder(ctx context.Context, symbol string, side domain.OrderSide, quantity int64) (string, error) {
	if g.entered != nil {
		g.entered <- struct{}{}
	}
	if g.release != nil {
		<-g.release
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.submitErr != nil {
		return "", g.submitErr
	}
	g.orders = append(g.orders, submittedOrder{Symbol: symbol, Side: side, Quantity: quantity})
	return "ord-" + symbol, nil
}

func (g *mockGateway) PortfolioSnapshot(ctx context.Context) (domain.PortfolioSnapshot, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.snapCalls++
	if g.snapErr != nil {
		return domain.PortfolioSnapshot{}, g.snapErr
	}
	s := g.snapshot.Clone()
	s.AsOf = time.Now()
	return s, nil
}

func (g *mockGateway) Disconnect(ctx context.Context) error { return nil }
func (g *mockGateway) Connected() bool                      { return true }

func (g *mockGateway) setSubmitErr(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.submitErr = err
}

func (g *mockGateway) submitted() []submittedOrder {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]submittedOrder(nil), g.orders...)
}

type mockStore struct {
	mu        sync.Mutex
	signals   []domain.TradingSignal
	results   []domain.ExecutionResult
	signalErr error
}

func (s *mockStore) SaveSignal(ctx context.Context, sig domain.TradingSignal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.signalErr != nil {
		return s.signalErr
	}
	s.signals = append(s.signals, sig)
	return nil
}

func (s *mockStore) SaveExecutionResult(ctx context.Context, r domain.ExecutionResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, r)
	return nil
}

func (s *mockStore) Close() error { return nil }

func (s *mockStore) statusesFor(id string) []domain.ExecutionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.ExecutionStatus
	for _, r := range s.results {
		if r.Signal.ID == id {
			out = append(out, r.Status)
		}
	}
	return out
}

type notification struct {
	Title string
	Level domain.AlertLevel
}

type mockNotifier struct {
	mu   sync.Mutex
	sent []notification
	err  error
}

func (n *mockNotifier) Notify(ctx context.Context, title, message string, level domain.AlertLevel, metadata map[string]string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification{Title: title, Level: level})
	return n.err
}

func (n *mockNotifier) levels(title string) []domain.AlertLevel {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []domain.AlertLevel
	for _, s := range n.sent {
		if s.Title == title {
			out = append(out, s.Level)
		}
	}
	return out
}

type mockMarket struct {
	bars map[string][]domain.Bar
}

func (m *mockMarket) Bars(ctx context.Context, symbol string, limit int) ([]domain.Bar, error) {
	bars, ok := m.bars[symbol]
	if !ok {
		return nil, errors.New("no bars for " + symbol)
	}
	return bars, nil
}

type mockStrategy struct {
	name    string
	signals []domain.TradingSignal
	err     error
	panics  bool
	delay   time.Duration
}

func (s *mockStrategy) Name() string { return s.name }

func (s *mockStrategy) GenerateSignals(ctx context.Context, ts time.Time, market domain.MarketData) ([]domain.TradingSignal, error) {
	if s.panics {
		panic("boom")
	}
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.signals, s.err
}

var _ ports.StrategyCapability = (*mockStrategy)(nil)

var errGateway = errors.New("venue rejected order")
