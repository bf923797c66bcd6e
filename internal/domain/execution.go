package domain

import "time"

// ExecutionStatus is the lifecycle status of one signal's processing.
type ExecutionStatus string

const (
	StatusPending  ExecutionStatus = "PENDING"
	StatusApproved ExecutionStatus = "APPROVED"
	StatusRejected ExecutionStatus = "REJECTED"
	StatusExecuted ExecutionStatus = "EXECUTED"
	StatusFailed   ExecutionStatus = "FAILED"
)

// IsTerminal reports whether no further transition can follow.
func (s ExecutionStatus) IsTerminal() bool {
	return s == StatusRejected || s == StatusExecuted || s == StatusFailed
}

// ExecutionResult records what happened to a signal. Exactly one terminal
// result exists per signal.
type ExecutionResult struct {
	Signal          TradingSignal
	Status          ExecutionStatus
	RiskCheckPassed bool
	PositionSize    int64
	OrderID         string // set iff EXECUTED
	RejectionReason string // set iff REJECTED or FAILED
	QualityScore    float64
	AllowedFraction float64
	StopLoss        float64 // effective stop price, 0 when none applies
	CreatedAt       time.Time
	CompletedAt     time.Time
}

// PipelineStats are monotonically increasing processing counters.
type PipelineStats struct {
	Generated int64 `json:"generated"`
	Executed  int64 `json:"executed"`
	Rejected  int64 `json:"rejected"`
	Failed    int64 `json:"failed"`
}
