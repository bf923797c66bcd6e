package orchestrator

import (
	"time"

	"tradePilot/internal/domain"
)

// Summary returns a point-in-time dashboard view. Safe for concurrent use.
func (o *Orchestrator) Summary() domain.DashboardSummary {
	o.mu.RLock()
	state := o.state
	heartbeat := o.lastHeartbeat
	restarts := o.restartCount
	o.mu.RUnlock()

	p := o.portfolio.Portfolio()
	s := domain.DashboardSummary{
		State:         state,
		Connected:     o.gateway.Connected(),
		Strategies:    o.loop.StrategyNames(),
		Symbols:       o.loop.Symbols(),
		ActiveSignals: o.loop.ActiveSignals(),
		Stats:         o.loop.Stats(),
		AccountValue:  p.NAV,
		OpenPositions: p.OpenPositions(),
		RestartCount:  restarts,
	}
	if !heartbeat.IsZero() {
		s.LastHeartbeat = heartbeat.UTC().Format(time.RFC3339)
	}
	return s
}

// LastError is the most recent fault message, empty when healthy.
func (o *Orchestrator) LastError() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.lastError
}
