// Package breaker implements a circuit breaker wrapping one collaborator
// class (venue, pool, notifier) at a time: closed (normal) -> open
// (rejecting calls) -> half-open (trial calls) -> closed or back to open.
package breaker

import (
	"fmt"
	"sync"
	"time"

	"lphedge/internal/coretypes"
)

// State is the breaker's current mode.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

// OpenError reports that a call was rejected because the breaker is
// open (or its half-open trial budget is exhausted), plus how long the
// caller should wait before the window is worth retrying — the value
// the cycle runner sleeps on instead of applying normal backoff.
type OpenError struct {
	Name       string
	RetryAfter time.Duration
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("circuit open: %s (retry after %s)", e.Name, e.RetryAfter.Round(time.Second))
}

func (e *OpenError) Unwrap() error { return coretypes.ErrCircuitOpen }

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Breaker guards calls to one named collaborator class. It does not
// invoke the call itself — callers wrap their own call with Allow/
// RecordSuccess/RecordFailure so it composes with any signature.
type Breaker struct {
	name             string
	failureThreshold int
	resetTimeout     time.Duration
	halfOpenTrials   int

	mu             sync.Mutex
	state          State
	failureCount   int
	trialCount     int
	stateChangedAt time.Time
}

// New creates a breaker for the given collaborator name.
func New(name string, failureThreshold int, resetTimeout time.Duration, halfOpenTrials int) *Breaker {
	return &Breaker{
		name:             name,
		failureThreshold: failureThreshold,
		resetTimeout:     resetTimeout,
		halfOpenTrials:   halfOpenTrials,
		state:            Closed,
		stateChangedAt:   time.Now(),
	}
}

// Allow reports whether a call may proceed right now. It transitions
// Open -> HalfOpen once the reset timeout has elapsed. Returns an
// *OpenError (which matches coretypes.ErrCircuitOpen via errors.Is)
// when the call must be rejected.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == Open {
		if time.Since(b.stateChangedAt) >= b.resetTimeout {
			b.transition(HalfOpen)
		} else {
			return &OpenError{Name: b.name, RetryAfter: b.resetTimeout - time.Since(b.stateChangedAt)}
		}
	}

	if b.state == HalfOpen && b.trialCount >= b.halfOpenTrials {
		return &OpenError{Name: b.name, RetryAfter: b.resetTimeout}
	}

	if b.state == HalfOpen {
		b.trialCount++
	}
	return nil
}

// RecordSuccess clears the failure streak and, from half-open, closes
// the breaker — one clean trial is enough to trust the collaborator again.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failureCount = 0
	if b.state == HalfOpen {
		b.transition(Closed)
	}
}

// RecordFailure increments the failure streak and opens the breaker
// once the streak reaches failureThreshold, or immediately on any
// half-open trial failure.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failureCount++
	if b.state == HalfOpen {
		b.transition(Open)
		return
	}
	if b.state == Closed && b.failureCount >= b.failureThreshold {
		b.transition(Open)
	}
}

// State reports the breaker's current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) transition(to State) {
	b.state = to
	b.stateChangedAt = time.Now()
	b.failureCount = 0
	b.trialCount = 0
}

// Name returns the collaborator name this breaker guards.
func (b *Breaker) Name() string { return b.name }

// ResetTimeout returns the configured cooldown a caller should wait
// out after observing an open breaker before trying again.
func (b *Breaker) ResetTimeout() time.Duration { return b.resetTimeout }
