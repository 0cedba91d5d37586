// Package gateway implements the Write Gateway (WG): admission control,
// optional authentication, per-table schema validation, and enqueue onto
// the Durable Queue. See pkg/gateway/httpapi for the HTTP surface.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// ErrAtCapacity is returned when the in-flight cap is saturated.
var ErrAtCapacity = errors.New("gateway: at capacity")

// ErrCircuitOpen is returned when the circuit breaker is open (or
// half-open with a probe already outstanding).
var ErrCircuitOpen = errors.New("gateway: circuit open")

// Admission bounds the number of write requests in flight and trips a
// circuit breaker on a run of downstream failures, per spec.md §4.1.
// Grounded on golang.org/x/sync/semaphore.Weighted for the in-flight cap
// (the teacher's pkg/kernel package has no direct analogue; semaphore is
// the standard x/sync idiom for a bounded concurrent-admission gate) and
// CircuitBreaker (breaker.go) for failure-based shedding.
type Admission struct {
	sem      *semaphore.Weighted
	breaker  *CircuitBreaker
	inFlight atomic.Int64
}

// NewAdmission creates an Admission gate with maxInFlight concurrent
// requests and the given breaker.
func NewAdmission(maxInFlight int64, breaker *CircuitBreaker) *Admission {
	return &Admission{
		sem:     semaphore.NewWeighted(maxInFlight),
		breaker: breaker,
	}
}

// Ticket represents one admitted request. Release must be called exactly
// once when the request finishes, passing the outcome so the breaker can
// track it.
type Ticket struct {
	a *Admission
}

// Acquire admits a new request, or returns ErrAtCapacity / ErrCircuitOpen
// if it cannot be admitted right now. Acquire never blocks waiting for
// capacity — admission control fails fast, it does not queue (spec.md
// §4.1: callers that are shed must retry, not wait on the gateway).
func (a *Admission) Acquire(ctx context.Context) (*Ticket, error) {
	if !a.breaker.Allow() {
		return nil, ErrCircuitOpen
	}
	if !a.sem.TryAcquire(1) {
		return nil, ErrAtCapacity
	}
	a.inFlight.Add(1)
	return &Ticket{a: a}, nil
}

// Release finishes the ticket and records the request's outcome with the
// circuit breaker. err should be the downstream processing error (nil on
// success); admission-layer rejections never reach here.
func (t *Ticket) Release(err error) {
	t.a.sem.Release(1)
	t.a.inFlight.Add(-1)
	if err != nil {
		t.a.breaker.Failure()
	} else {
		t.a.breaker.Success()
	}
}

// BreakerState reports the admission gate's circuit breaker state, for
// health reporting.
func (a *Admission) BreakerState() string {
	return a.breaker.State()
}

// InFlight reports the number of requests currently admitted and not yet
// released, for health reporting (spec.md §6's "in-flight" metric).
func (a *Admission) InFlight() int64 {
	return a.inFlight.Load()
}

// ConsecutiveFailures reports the admission gate's circuit breaker's
// current consecutive-failure count, for health reporting (spec.md §6's
// "consecutive failures" metric).
func (a *Admission) ConsecutiveFailures() int {
	return a.breaker.FailureCount()
}

// RejectionStatus maps an admission error to the detail string the HTTP
// layer should surface.
func RejectionStatus(err error) (int, string) {
	switch {
	case errors.Is(err, ErrAtCapacity):
		return 503, "write gateway is at capacity, retry with backoff"
	case errors.Is(err, ErrCircuitOpen):
		return 503, "write gateway circuit breaker is open"
	default:
		return 500, fmt.Sprintf("admission error: %v", err)
	}
}
