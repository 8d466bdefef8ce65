package breaker

import (
	"context"
	"sync"
	"time"
)

// State represents the current state of the circuit breaker.
type State int

const (
	// StateClosed lets calls pass through.
	StateClosed State = iota
	// StateOpen short-circuits every call.
	StateOpen
	// StateHalfOpen lets trial calls through to probe recovery.
	StateHalfOpen
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config controls when the breaker opens and how it recovers.
type Config struct {
	FailureThreshold int           `env:"BREAKER_FAILURE_THRESHOLD" envDefault:"5"`  // consecutive failures before opening
	SuccessThreshold int           `env:"BREAKER_SUCCESS_THRESHOLD" envDefault:"2"`  // half-open successes before closing
	RecoveryTimeout  time.Duration `env:"BREAKER_RECOVERY_TIMEOUT" envDefault:"30s"` // open duration before probing
}

// CircuitBreaker sheds load when the wrapped operation keeps failing, so a
// burst of redelivered events during an outage cannot hammer the backing
// store. Safe for concurrent use.
type CircuitBreaker struct {
	mu sync.Mutex

	cfg Config

	state           State
	failures        int
	successes       int  // consecutive successes while half-open
	probing         bool // a trial call is in flight and its outcome unknown
	lastFailureTime time.Time
}

// New creates a circuit breaker. Zero or negative config values fall back to
// defaults: 5 failures to open, 2 successes to close, 30s recovery timeout.
func New(cfg Config) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 2
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = 30 * time.Second
	}
	return &CircuitBreaker{cfg: cfg, state: StateClosed}
}

// Allow reports whether a call may proceed. An open breaker transitions to
// half-open once the recovery timeout has elapsed, admitting exactly one
// trial call; further callers are rejected until that call's outcome is
// recorded, so a burst during recovery cannot hit a still-down dependency.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return true
	case StateOpen:
		if time.Since(cb.lastFailureTime) > cb.cfg.RecoveryTimeout {
			cb.state = StateHalfOpen
			cb.successes = 0
			cb.probing = true
			return true
		}
		return false
	case StateHalfOpen:
		if cb.probing {
			return false
		}
		cb.probing = true
		return true
	default:
		return false
	}
}

// RecordSuccess records a successful call and may close the circuit.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		cb.failures = 0
	case StateHalfOpen:
		cb.probing = false
		cb.successes++
		if cb.successes >= cb.cfg.SuccessThreshold {
			cb.state = StateClosed
			cb.failures = 0
			cb.successes = 0
		}
	}
}

// RecordFailure records a failed call and may open the circuit.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.lastFailureTime = time.Now()

	switch cb.state {
	case StateClosed:
		cb.failures++
		if cb.failures >= cb.cfg.FailureThreshold {
			cb.state = StateOpen
		}
	case StateHalfOpen:
		// The probe failed; reopen immediately.
		cb.state = StateOpen
		cb.failures = cb.cfg.FailureThreshold
		cb.successes = 0
		cb.probing = false
	}
}

// Do runs fn through the breaker. It returns ErrOpen without invoking fn when
// the circuit is open, and otherwise records the outcome of fn.
func (cb *CircuitBreaker) Do(ctx context.Context, fn func(context.Context) error) error {
	if !cb.Allow() {
		return ErrOpen
	}
	if err := fn(ctx); err != nil {
		cb.RecordFailure()
		return err
	}
	cb.RecordSuccess()
	return nil
}

// State returns the current state, accounting for the automatic open to
// half-open transition Allow would perform.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen && time.Since(cb.lastFailureTime) > cb.cfg.RecoveryTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Reset forces the breaker back to the closed state.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = StateClosed
	cb.failures = 0
	cb.successes = 0
	cb.probing = false
	cb.lastFailureTime = time.Time{}
}

// Stats provides visibility into breaker state for monitoring.
type Stats struct {
	State           string
	Failures        int
	Successes       int
	LastFailureTime time.Time
}

// Stats returns a snapshot of the breaker's counters.
func (cb *CircuitBreaker) Stats() Stats {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return Stats{
		State:           cb.state.String(),
		Failures:        cb.failures,
		Successes:       cb.successes,
		LastFailureTime: cb.lastFailureTime,
	}
}
