// Package metrics exposes pipeline, risk and orchestrator activity as
// Prometheus metrics. The Recorder's methods match the observer hooks of
// those components so main can subscribe them directly.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tradePilot/internal/domain"
)

var orchestratorStates = []domain.OrchestratorState{
	domain.StatePreMarket,
	domain.StateTrading,
	domain.StatePostMarket,
	domain.StateStopped,
	domain.StateError,
}

// Recorder owns a private registry so tests and multiple instances never
// collide on the global one.
type Recorder struct {
	registry *prometheus.Registry

	results       *prometheus.CounterVec
	positionSize  *prometheus.HistogramVec
	qualityScore  prometheus.Histogram
	transitions   *prometheus.CounterVec
	state         *prometheus.GaugeVec
	lastHeartbeat prometheus.Gauge
	breakerTrips  prometheus.Counter
	breakerActive prometheus.Gauge
	nav           prometheus.Gauge
	drawdown      prometheus.Gauge
	deployed      prometheus.Gauge
	openPositions prometheus.Gauge
}

func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		results: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradepilot_signal_results_total",
				Help: "Terminal signal outcomes by status and symbol",
			},
			[]string{"status", "symbol"},
		),
		positionSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tradepilot_position_size_shares",
				Help:    "Distribution of executed order sizes",
				Buckets: prometheus.ExponentialBuckets(1, 4, 8),
			},
			[]string{"symbol"},
		),
		qualityScore: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tradepilot_signal_quality_score",
				Help:    "Quality score of processed signals",
				Buckets: prometheus.LinearBuckets(0, 0.1, 11),
			},
		),
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradepilot_state_transitions_total",
				Help: "Orchestrator state transitions",
			},
			[]string{"from", "to"},
		),
		state: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tradepilot_orchestrator_state",
				Help: "1 for the orchestrator's current state, 0 otherwise",
			},
			[]string{"state"},
		),
		lastHeartbeat: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tradepilot_last_heartbeat_timestamp_seconds",
			Help: "Unix time of the last orchestrator heartbeat",
		}),
		breakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tradepilot_circuit_breaker_trips_total",
			Help: "Number of circuit breaker trips",
		}),
		breakerActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tradepilot_circuit_breaker_active",
			Help: "1 while the circuit breaker is tripped",
		}),
		nav: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tradepilot_portfolio_nav",
			Help: "Net asset value of the last accepted snapshot",
		}),
		drawdown: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tradepilot_portfolio_drawdown_ratio",
			Help: "Drawdown from peak equity",
		}),
		deployed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tradepilot_portfolio_deployed_ratio",
			Help: "Gross position value over NAV",
		}),
		openPositions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tradepilot_open_positions",
			Help: "Number of symbols with a non-zero position",
		}),
	}
	r.registry.MustRegister(
		r.results, r.positionSize, r.qualityScore, r.transitions, r.state, r.lastHeartbeat,
		r.breakerTrips, r.breakerActive, r.nav, r.drawdown, r.deployed, r.openPositions,
	)
	return r
}

// Handler serves the recorder's registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// ObserveResult counts terminal results; intermediate rows are ignored.
func (r *Recorder) ObserveResult(res domain.ExecutionResult) {
	if !res.Status.IsTerminal() {
		return
	}
	r.results.WithLabelValues(string(res.Status), res.Signal.Symbol).Inc()
	r.qualityScore.Observe(res.QualityScore)
	if res.Status == domain.StatusExecuted {
		r.positionSize.WithLabelValues(res.Signal.Symbol).Observe(float64(res.PositionSize))
	}
}

func (r *Recorder) ObserveTransition(from, to domain.OrchestratorState, reason string) {
	r.transitions.WithLabelValues(string(from), string(to)).Inc()
	r.setState(to)
}

func (r *Recorder) ObserveHeartbeat(state domain.OrchestratorState, at time.Time) {
	r.lastHeartbeat.Set(float64(at.UnixNano()) / 1e9)
	r.setState(state)
}

func (r *Recorder) ObserveTrip(state domain.CircuitBreakerState) {
	r.breakerTrips.Inc()
	r.breakerActive.Set(1)
}

// ObserveBreaker mirrors the breaker's current state, e.g. after a reset.
func (r *Recorder) ObserveBreaker(state domain.CircuitBreakerState) {
	if state.State == domain.BreakerTripped {
		r.breakerActive.Set(1)
	} else {
		r.breakerActive.Set(0)
	}
}

func (r *Recorder) ObservePortfolio(p domain.PortfolioSnapshot) {
	r.nav.Set(p.NAV)
	r.drawdown.Set(p.Drawdown)
	r.deployed.Set(p.DeployedFraction())
	r.openPositions.Set(float64(p.OpenPositions()))
}

func (r *Recorder) setState(current domain.OrchestratorState) {
	for _, s := range orchestratorStates {
		v := 0.0
		if s == current {
			v = 1
		}
		r.state.WithLabelValues(string(s)).Set(v)
	}
}
