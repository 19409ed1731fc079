package circuitbreaker

import (
	"sync"
	"time"
)

// State is the breaker state.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

// CircuitBreaker fast-fails calls to a dependency that keeps failing.
// Closed passes everything through; Open rejects until the cool-off
// timeout; HalfOpen lets probes through and closes again after enough
// consecutive successes. All transitions happen under one lock.
type CircuitBreaker struct {
	mu            sync.Mutex
	state         State
	failures      int32
	successes     int32
	lastFailure   time.Time
	failLimit     int32
	successLimit  int32
	timeout       time.Duration
	onStateChange func(from, to State)
}

// NewCircuitBreaker creates a breaker that opens after failLimit
// consecutive failures and closes after successLimit half-open successes.
func NewCircuitBreaker(failLimit, successLimit int32, timeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		state:         StateClosed,
		failLimit:     failLimit,
		successLimit:  successLimit,
		timeout:       timeout,
		onStateChange: func(_, _ State) {},
	}
}

// SetStateChangeCallback registers a callback invoked on each transition.
// The callback runs outside the breaker's lock.
func (cb *CircuitBreaker) SetStateChangeCallback(fn func(from, to State)) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.onStateChange = fn
}

// RecordSuccess notes a successful call.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	var notify func()
	switch cb.state {
	case StateHalfOpen:
		cb.successes++
		if cb.successes >= cb.successLimit {
			notify = cb.transition(StateClosed)
		}
	case StateClosed:
		cb.failures = 0
	}
	cb.mu.Unlock()
	if notify != nil {
		notify()
	}
}

// RecordFailure notes a failed call; it may trip the breaker open. A
// failure during a half-open probe reopens immediately.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	cb.lastFailure = time.Now()
	var notify func()
	switch cb.state {
	case StateClosed:
		cb.failures++
		if cb.failures >= cb.failLimit {
			notify = cb.transition(StateOpen)
		}
	case StateHalfOpen:
		notify = cb.transition(StateOpen)
	}
	cb.mu.Unlock()
	if notify != nil {
		notify()
	}
}

// AllowRequest reports whether a call may proceed right now. An open
// breaker whose cool-off has elapsed moves to half-open and allows one.
func (cb *CircuitBreaker) AllowRequest() bool {
	cb.mu.Lock()
	var notify func()
	allowed := true
	if cb.state == StateOpen {
		if time.Since(cb.lastFailure) > cb.timeout {
			notify = cb.transition(StateHalfOpen)
		} else {
			allowed = false
		}
	}
	cb.mu.Unlock()
	if notify != nil {
		notify()
	}
	return allowed
}

// GetState returns the current state.
func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// transition switches state and returns the deferred callback
// invocation. Must be called with the lock held.
func (cb *CircuitBreaker) transition(to State) func() {
	from := cb.state
	if from == to {
		return nil
	}
	cb.state = to
	cb.failures = 0
	cb.successes = 0
	fn := cb.onStateChange
	return func() { fn(from, to) }
}
