package gateway

import (
	"sync"
	"time"
)

// breakerState is the circuit breaker's three-state machine, per spec.md
// §4.1: closed (normal), open (admission rejected outright), half-open (a
// single trial request is let through to test recovery).
type breakerState string

const (
	breakerClosed   breakerState = "closed"
	breakerOpen     breakerState = "open"
	breakerHalfOpen breakerState = "half_open"
)

// CircuitBreaker trips after a run of consecutive downstream failures and
// resets after a single successful probe request once its reset timeout
// has elapsed. Grounded on the teacher's
// pkg/util/resiliency/client.go:CircuitBreaker, tightened from "any request
// may probe during half-open" to "exactly one in-flight probe at a time" —
// spec.md §8's admission-control scenarios require that a half-open
// breaker not admit a second concurrent probe while the first is pending.
type CircuitBreaker struct {
	mu sync.Mutex

	threshold    int
	resetTimeout time.Duration

	state         breakerState
	failureCount  int
	lastFailure   time.Time
	probeInFlight bool
}

// NewCircuitBreaker creates a breaker that opens after threshold
// consecutive failures and allows one probe resetTimeout after opening.
func NewCircuitBreaker(threshold int, resetTimeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		threshold:    threshold,
		resetTimeout: resetTimeout,
		state:        breakerClosed,
	}
}

// Allow reports whether a new request may proceed, and if the breaker is
// half-open and this call is the admitted probe, reserves the probe slot —
// the caller must call Success or Failure exactly once afterward.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case breakerOpen:
		if time.Since(cb.lastFailure) < cb.resetTimeout {
			return false
		}
		cb.state = breakerHalfOpen
		cb.probeInFlight = true
		return true
	case breakerHalfOpen:
		return false // a probe is already outstanding
	default:
		return true
	}
}

// Success records a successful request, closing the breaker if it was
// half-open.
func (cb *CircuitBreaker) Success() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failureCount = 0
	if cb.state == breakerHalfOpen {
		cb.state = breakerClosed
		cb.probeInFlight = false
	}
}

// Failure records a failed request. A failed probe reopens the breaker and
// restarts its reset timer; a failed closed-state request trips the
// breaker once failureCount reaches threshold.
func (cb *CircuitBreaker) Failure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.lastFailure = time.Now()

	if cb.state == breakerHalfOpen {
		cb.state = breakerOpen
		cb.probeInFlight = false
		return
	}

	cb.failureCount++
	if cb.failureCount >= cb.threshold {
		cb.state = breakerOpen
	}
}

// State returns the breaker's current state, for health/status reporting.
func (cb *CircuitBreaker) State() string {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return string(cb.state)
}

// FailureCount returns the current consecutive-failure count, for
// health/status reporting. Resets to 0 on any success.
func (cb *CircuitBreaker) FailureCount() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failureCount
}
