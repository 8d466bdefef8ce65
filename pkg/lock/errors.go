package lock

import "errors"

var (
	// ErrNotAcquired means another live lock holds the subject. Transient;
	// the caller retries the whole event later.
	ErrNotAcquired = errors.New("lock: subject is locked by another operation")

	// ErrUnavailable wraps backing-store failures. Also transient: the
	// processor surfaces it so the event gets redelivered, never as a
	// permanent rejection.
	ErrUnavailable = errors.New("lock: backing store unavailable")
)
