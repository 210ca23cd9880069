package flow

import (
	"errors"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/ragforge/flowengine/flow/collab"
)

var errSimulatedFailure = errors.New("flow: recorded node failure")

// Breaker is the per-node circuit breaker, backed by
// github.com/sony/gobreaker/v2 rather than a hand-rolled state machine.
// It exposes the per-node CircuitBreakerState shape and is driven by
// RecordSuccess/RecordFailure rather than Execute directly, since the
// recovery loop needs to inspect the classified error before deciding
// whether this failure even counts toward the breaker.
type Breaker struct {
	cb    *gobreaker.CircuitBreaker[map[string]any]
	clock collab.Clock

	mu          sync.Mutex
	lastFailure time.Time
}

// NewBreaker constructs a breaker that opens after threshold consecutive
// failures and stays open for timeoutSeconds before allowing a half-open
// probe.
func NewBreaker(nodeID string, threshold int, timeoutSeconds float64, clock collab.Clock) *Breaker {
	if clock == nil {
		clock = collab.SystemClock{}
	}
	b := &Breaker{clock: clock}
	settings := gobreaker.Settings{
		Name:        nodeID,
		MaxRequests: 1,
		Timeout:     time.Duration(timeoutSeconds * float64(time.Second)),
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(threshold)
		},
	}
	b.cb = gobreaker.NewCircuitBreaker[map[string]any](settings)
	return b
}

// IsOpen reports whether the breaker is currently open (not half-open,
// not closed); a half-open probe is allowed through.
func (b *Breaker) IsOpen() bool {
	return b.cb.State() == gobreaker.StateOpen
}

// RecordSuccess reports a successful node call, resetting the consecutive
// failure count (and closing the breaker if it was half-open).
func (b *Breaker) RecordSuccess() {
	_, _ = b.cb.Execute(func() (map[string]any, error) {
		return map[string]any{}, nil
	})
}

// RecordFailure reports a failed node call, incrementing the consecutive
// failure count and opening the breaker once it crosses the threshold.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	b.lastFailure = time.Unix(0, int64(b.clock.NowSeconds()*1e9))
	b.mu.Unlock()
	_, _ = b.cb.Execute(func() (map[string]any, error) {
		return nil, errSimulatedFailure
	})
}

// State returns the externally-observable snapshot.
func (b *Breaker) State() CircuitBreakerState {
	counts := b.cb.Counts()
	b.mu.Lock()
	last := b.lastFailure
	b.mu.Unlock()
	return CircuitBreakerState{
		IsOpen:          b.IsOpen(),
		FailureCount:    int(counts.ConsecutiveFailures),
		LastFailureTime: last,
		SuccessCount:    int(counts.TotalSuccesses),
		TotalCalls:      int(counts.Requests),
	}
}
