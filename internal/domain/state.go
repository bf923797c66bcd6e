package domain

// OrchestratorState is the operational mode of the service.
type OrchestratorState string

const (
	StatePreMarket  OrchestratorState = "PRE_MARKET"
	StateTrading    OrchestratorState = "TRADING"
	StatePostMarket OrchestratorState = "POST_MARKET"
	StateStopped    OrchestratorState = "STOPPED"
	StateError      OrchestratorState = "ERROR"
)

// SessionState is the market session reported by the calendar.
type SessionState string

const (
	SessionClosed     SessionState = "CLOSED"
	SessionPreMarket  SessionState = "PRE_MARKET"
	SessionTrading    SessionState = "TRADING"
	SessionPostMarket SessionState = "POST_MARKET"
)

// DashboardSummary is the read-only status exposed to dashboards.
type DashboardSummary struct {
	State         OrchestratorState `json:"state"`
	Connected     bool              `json:"connected"`
	Strategies    []string          `json:"strategies"`
	Symbols       []string          `json:"symbols"`
	ActiveSignals int               `json:"active_signals"`
	Stats         PipelineStats     `json:"stats"`
	AccountValue  float64           `json:"account_value"`
	OpenPositions int               `json:"open_positions"`
	LastHeartbeat string            `json:"last_heartbeat,omitempty"`
	RestartCount  int               `json:"restart_count"`
}
