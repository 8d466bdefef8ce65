package lock

import (
	"context"
	"time"
)

// Config holds the tunables of the subject lock manager. The defaults match
// a processor that finishes well under the TTL; a holder that crashes
// mid-operation is implicitly recovered once its lock expires.
type Config struct {
	TTL             time.Duration `env:"LOCK_TTL" envDefault:"30s"`              // lock lifetime; expired locks count as absent
	ConflictWindow  time.Duration `env:"LOCK_CONFLICT_WINDOW" envDefault:"60s"`  // how far back FindConflicting looks
	PollInterval    time.Duration `env:"LOCK_POLL_INTERVAL" envDefault:"500ms"`  // Await polling cadence
	MaxConflictWait time.Duration `env:"LOCK_MAX_CONFLICT_WAIT" envDefault:"5s"` // Await gives up after this and proceeds
}

// Token is the credential returned by a successful Acquire. Only the holder
// of the token can release the lock; a token kept past the TTL releases
// nothing once another acquirer has taken over.
type Token struct {
	ID         string    // release credential, unique per acquisition
	SubjectID  string    // customer the lock serializes work for
	Tag        string    // operation kind being processed (event type)
	HolderID   string    // process identity of the acquirer
	AcquiredAt time.Time
	ExpiresAt  time.Time
}

// Descriptor describes another in-flight operation on the same subject,
// surfaced by FindConflicting.
type Descriptor struct {
	SubjectID string
	Tag       string
	HolderID  string
	StartedAt time.Time
}

// Manager serializes per-subject work across processes.
//
// The lock is a contention and duplicate-work reducer, not the correctness
// mechanism: the record store's version check is what rejects lost updates.
// At most one live lock exists per subject; an expired lock is equivalent to
// absent and is silently overwritten by the next acquirer.
type Manager interface {
	// Acquire takes the subject lock for ttl (Config.TTL when zero). It
	// returns ErrNotAcquired while another live lock exists; callers treat
	// that as "try again later" and never block on Acquire itself.
	Acquire(ctx context.Context, subjectID, tag string, ttl time.Duration) (*Token, error)

	// Release frees the lock if token still identifies the current holder,
	// and is a no-op otherwise. Releasing after expiry therefore cannot
	// remove a lock re-acquired by someone else.
	Release(ctx context.Context, token *Token) error

	// FindConflicting returns operations on the same subject with a
	// different tag that started within window (Config.ConflictWindow when
	// zero) and have not released yet. Entries survive lock expiry for the
	// length of the window, so a previous holder whose lock was reaped but
	// which may still be running is visible here.
	FindConflicting(ctx context.Context, subjectID, currentTag string, window time.Duration) ([]Descriptor, error)
}
