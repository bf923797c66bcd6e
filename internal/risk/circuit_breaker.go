package risk

import (
	"fmt"
	"sync"
	"time"

	"tradePilot/internal/domain"
)

// CircuitBreaker halts new risk approvals once drawdown reaches its threshold.
// A tripped breaker stays tripped until Reset is called.
type CircuitBreaker struct {
	mu        sync.Mutex
	threshold float64
	state     domain.BreakerState
	reason    string
	trippedAt time.Time
	now       func() time.Time
	onTrip    []func(domain.CircuitBreakerState)
}

// NewCircuitBreaker returns an armed breaker.
func NewCircuitBreaker(threshold float64) *CircuitBreaker {
	return &CircuitBreaker{
		threshold: threshold,
		state:     domain.BreakerArmed,
		now:       time.Now,
	}
}

// OnTrip registers an observer invoked synchronously after each trip.
func (b *CircuitBreaker) OnTrip(fn func(domain.CircuitBreakerState)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onTrip = append(b.onTrip, fn)
}

// Evaluate reports whether trading is blocked. While tripped the drawdown is
// not looked at.
func (b *CircuitBreaker) Evaluate(drawdown float64) bool {
	b.mu.Lock()
	if b.state == domain.BreakerTripped {
		b.mu.Unlock()
		return true
	}
	if drawdown < b.threshold {
		b.mu.Unlock()
		return false
	}
	b.state = domain.BreakerTripped
	b.reason = fmt.Sprintf("drawdown %.4f reached threshold %.4f", drawdown, b.threshold)
	b.trippedAt = b.now()
	snapshot := b.snapshotLocked()
	observers := append([]func(domain.CircuitBreakerState){}, b.onTrip...)
	b.mu.Unlock()

	for _, fn := range observers {
		fn(snapshot)
	}
	return true
}

// Reset re-arms a tripped breaker. It returns false when already armed.
func (b *CircuitBreaker) Reset() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == domain.BreakerArmed {
		return false
	}
	b.state = domain.BreakerArmed
	b.reason = ""
	b.trippedAt = time.Time{}
	return true
}

// SetThreshold changes the trip level. It never re-arms a tripped breaker.
func (b *CircuitBreaker) SetThreshold(threshold float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.threshold = threshold
}

// State returns a copy of the breaker state.
func (b *CircuitBreaker) State() domain.CircuitBreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshotLocked()
}

func (b *CircuitBreaker) snapshotLocked() domain.CircuitBreakerState {
	return domain.CircuitBreakerState{
		State:     b.state,
		Reason:    b.reason,
		TrippedAt: b.trippedAt,
		Threshold: b.threshold,
	}
}
