package ports

import (
	"context"
	"time"

	"tradePilot/internal/domain"
)

// AuditStore persists signals and execution results. It is append-only:
// every status change is a new row.
type AuditStore interface {
	SaveSignal(ctx context.Context, signal domain.TradingSignal) error
	SaveExecutionResult(ctx context.Context, result domain.ExecutionResult) error
	Close() error
}

// ResultFilter narrows ListResults. Zero values mean no constraint.
type ResultFilter struct {
	Symbol string
	Status domain.ExecutionStatus
	Since  time.Time
	Limit  int
}

// AuditReader is the read side used by reports and the HTTP API.
type AuditReader interface {
	// ListResults returns result rows newest first.
	ListResults(ctx context.Context, filter ResultFilter) ([]domain.ExecutionResult, error)
	// CountByStatus counts the latest row per signal, grouped by status.
	CountByStatus(ctx context.Context) (map[domain.ExecutionStatus]int64, error)
}
