package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradePilot/internal/domain"
	"tradePilot/internal/ports"
	"tradePilot/internal/risk"
)

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}

func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {}

func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {}

func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {}

type fakeSummary struct {
	summary domain.DashboardSummary
	lastErr string
}

func (f *fakeSummary) Summary() domain.DashboardSummary { return f.summary }
func (f *fakeSummary) LastError() string                { return f.lastErr }

type fakeAudit struct {
	rows   []domain.ExecutionResult
	filter ports.ResultFilter
	err    error
}

func (f *fakeAudit) ListResults(ctx context.Context, filter ports.ResultFilter) ([]domain.ExecutionResult, error) {
	f.filter = filter
	return f.rows, f.err
}

func (f *fakeAudit) CountByStatus(ctx context.Context) (map[domain.ExecutionStatus]int64, error) {
	return map[domain.ExecutionStatus]int64{domain.StatusExecuted: 3}, f.err
}

type fakeControl struct {
	summary  *fakeSummary
	startErr error
	ctxLive  bool
}

func (f *fakeControl) Start(ctx context.Context) error {
	f.ctxLive = ctx.Done() == nil
	if f.startErr != nil {
		f.summary.summary.State = domain.StateError
		return f.startErr
	}
	f.summary.summary.State = domain.StateTrading
	return nil
}

func (f *fakeControl) Stop(ctx context.Context) {
	f.summary.summary.State = domain.StateStopped
}

type harness struct {
	srv     *Server
	engine  *risk.Engine
	summary *fakeSummary
	audit   *fakeAudit
	control *fakeControl
	resets  int
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	settings, err := risk.ProfileSettings("balanced")
	require.NoError(t, err)
	engine, err := risk.NewEngine(settings, nil, &mockLogger{})
	require.NoError(t, err)

	h := &harness{
		engine: engine,
		summary: &fakeSummary{summary: domain.DashboardSummary{
			State:      domain.StateTrading,
			Connected:  true,
			Strategies: []string{"ma_rsi"},
			Stats:      domain.PipelineStats{Generated: 4, Executed: 2, Rejected: 1, Failed: 1},
		}, lastErr: "gateway flapped"},
		audit: &fakeAudit{},
	}
	h.control = &fakeControl{summary: h.summary}
	h.srv, err = NewServer(ServerConfig{
		Summary: h.summary,
		Risk:    engine,
		Audit:   h.audit,
		Control: h.control,
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("tradepilot_up 1\n"))
		}),
		Logger:         &mockLogger{},
		OnBreakerReset: func(domain.CircuitBreakerState) { h.resets++ },
	})
	require.NoError(t, err)
	return h
}

func (h *harness) do(t *testing.T, method, path string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	h.srv.Handler().ServeHTTP(w, req)
	var body map[string]interface{}
	if w.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	}
	return w, body
}

func TestNewServer_RequiresDeps(t *testing.T) {
	_, err := NewServer(ServerConfig{})
	assert.Error(t, err)
}

func TestSummaryAndStats(t *testing.T) {
	h := newHarness(t)

	w, body := h.do(t, http.MethodGet, "/api/summary")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "TRADING", body["state"])
	assert.Equal(t, true, body["connected"])
	assert.Equal(t, "gateway flapped", body["last_error"])

	w, body = h.do(t, http.MethodGet, "/api/stats")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(4), body["generated"])
	assert.Equal(t, float64(1), body["failed"])
}

func TestHealthAndMetrics(t *testing.T) {
	h := newHarness(t)

	w, body := h.do(t, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", body["status"])

	w, _ = h.do(t, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "tradepilot_up 1")
}

func TestRiskAndBreakerReset(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	t0 := time.Date(2024, 3, 4, 15, 0, 0, 0, time.UTC)

	w, _ := h.do(t, http.MethodPost, "/api/risk/breaker/reset")
	assert.Equal(t, http.StatusConflict, w.Code)

	h.engine.UpdatePortfolio(ctx, domain.PortfolioSnapshot{NAV: 1000, Cash: 1000, AsOf: t0})
	h.engine.UpdatePortfolio(ctx, domain.PortfolioSnapshot{NAV: 850, Cash: 850, AsOf: t0.Add(time.Minute)})

	w, body := h.do(t, http.MethodGet, "/api/risk")
	require.Equal(t, http.StatusOK, w.Code)
	breaker := body["breaker"].(map[string]interface{})
	assert.Equal(t, "TRIPPED", breaker["state"])
	portfolio := body["portfolio"].(map[string]interface{})
	assert.Equal(t, float64(850), portfolio["nav"])
	assert.InDelta(t, 0.15, portfolio["drawdown"], 1e-9)
	settings := body["settings"].(map[string]interface{})
	assert.Equal(t, 0.12, settings["circuit_breaker_threshold"])

	w, body = h.do(t, http.MethodPost, "/api/risk/breaker/reset")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ARMED", body["breaker"].(map[string]interface{})["state"])
	assert.Equal(t, 1, h.resets)
	assert.Equal(t, domain.BreakerArmed, h.engine.Breaker().State().State)
}

func TestResults(t *testing.T) {
	h := newHarness(t)
	created := time.Date(2024, 3, 4, 15, 0, 0, 0, time.UTC)
	h.audit.rows = []domain.ExecutionResult{{
		Signal:       domain.TradingSignal{ID: "s1", Symbol: "AAPL", Side: domain.Buy, StrategyName: "ma_rsi"},
		Status:       domain.StatusExecuted,
		PositionSize: 10,
		OrderID:      "o-1",
		CreatedAt:    created,
		CompletedAt:  created,
	}}

	w, body := h.do(t, http.MethodGet, "/api/results?symbol=aapl&status=executed&limit=1000&since=2024-03-01T00:00:00Z")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), body["count"])
	assert.Equal(t, "AAPL", h.audit.filter.Symbol)
	assert.Equal(t, domain.StatusExecuted, h.audit.filter.Status)
	assert.Equal(t, maxResultLimit, h.audit.filter.Limit)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), h.audit.filter.Since)

	row := body["results"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "s1", row["signal_id"])
	assert.Equal(t, "o-1", row["order_id"])
	assert.NotContains(t, row, "rejection_reason")

	tests := []struct {
		name string
		path string
	}{
		{"bad limit", "/api/results?limit=-1"},
		{"bad since", "/api/results?since=yesterday"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, _ := h.do(t, http.MethodGet, tt.path)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}

	w, body = h.do(t, http.MethodGet, "/api/results/counts")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(3), body["EXECUTED"])

	h.audit.err = errors.New("db down")
	w, _ = h.do(t, http.MethodGet, "/api/results")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestControl(t *testing.T) {
	h := newHarness(t)

	w, body := h.do(t, http.MethodPost, "/api/control/stop")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "STOPPED", body["state"])

	w, body = h.do(t, http.MethodPost, "/api/control/start")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "TRADING", body["state"])
	assert.True(t, h.control.ctxLive)

	h.control.startErr = errors.New("gateway unreachable")
	w, body = h.do(t, http.MethodPost, "/api/control/start")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "ERROR", body["state"])
}
