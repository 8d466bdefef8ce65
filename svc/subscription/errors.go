package subscription

import (
	"errors"
	"fmt"
)

var (
	ErrRecordNotFound = errors.New("subscription: record not found")
	ErrRecordExists   = errors.New("subscription: record already exists")

	// ErrStaleVersion is the optimistic-concurrency rejection: the write was
	// computed from a version that is no longer current. The caller must
	// re-read and retry the whole operation, not just the write.
	ErrStaleVersion = errors.New("subscription: record version is stale")

	// ErrLockUnavailable means the subject lock could not be taken. The
	// event is not lost; the provider redelivers it or the retry endpoint
	// replays it.
	ErrLockUnavailable = errors.New("subscription: subject lock unavailable, retry later")

	// ErrStoreUnavailable wraps infrastructure failures of any backing
	// store. It bubbles to the circuit breaker and the failed-operation log.
	ErrStoreUnavailable = errors.New("subscription: backing store unavailable")

	ErrUnknownEventType = errors.New("subscription: no transition registered for event type")
	ErrInvalidEvent     = errors.New("subscription: event is missing id or subject reference")
	ErrFailedOpNotFound = errors.New("subscription: failed operation not found")

	// ErrRetriesExceeded rejects redeliveries of an event whose failed
	// operation went terminal. Manual replay resets the budget.
	ErrRetriesExceeded = errors.New("subscription: failed operation exceeded max retries")

	ErrInvalidPlanCatalog = errors.New("subscription: invalid plan catalog")
)

// TransitionError is a domain validation failure inside a state-transition
// function. The ledger is not marked on it, so a retry re-attempts the
// transition; it is logged with before/after context rather than counted
// against the circuit breaker.
type TransitionError struct {
	EventType EventType
	SubjectID string
	Reason    string
	Err       error
}

func (e *TransitionError) Error() string {
	msg := fmt.Sprintf("subscription: transition %s for subject %s failed: %s", e.EventType, e.SubjectID, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TransitionError) Unwrap() error { return e.Err }

func newTransitionError(evt Event, reason string) *TransitionError {
	return &TransitionError{EventType: evt.Type, SubjectID: evt.SubjectID, Reason: reason}
}
