package ledger

import (
	"context"
	"time"
)

// DefaultRetention is how long processed-event entries are kept before the
// garbage collection sweep removes them. A week comfortably exceeds every
// provider's redelivery horizon.
const DefaultRetention = 7 * 24 * time.Hour

// Fingerprint uniquely identifies the logical effect of one event delivery.
// It is derived from the provider event id and the id of the object the event
// is about, so a redelivered event maps to the same fingerprint.
type Fingerprint string

// NewFingerprint derives a fingerprint from the provider event id and the
// payload object id. The object id may be empty for events that carry none.
func NewFingerprint(eventID, objectID string) Fingerprint {
	if objectID == "" {
		return Fingerprint(eventID)
	}
	return Fingerprint(eventID + ":" + objectID)
}

// Entry records one processed event. Entries are created once and never
// updated; their presence alone means the event's effect has been applied.
type Entry struct {
	Fingerprint Fingerprint `bson:"_id" json:"fingerprint"`
	EventType   string      `bson:"event_type" json:"event_type"`
	SubjectID   string      `bson:"subject_id" json:"subject_id"`
	ProcessedAt time.Time   `bson:"processed_at" json:"processed_at"`
}

// Ledger is the append-only idempotency log consulted before and written
// after every event application. A fingerprint present in the ledger means
// its effect has already been applied and redelivery must be a no-op.
type Ledger interface {
	// IsProcessed reports whether the fingerprint has already been applied.
	IsProcessed(ctx context.Context, fp Fingerprint) (bool, error)

	// MarkProcessed appends an entry for the fingerprint. It fails with
	// ErrAlreadyMarked if an entry exists; normal callers check IsProcessed
	// first, so hitting the error means the caller's invariant is broken.
	MarkProcessed(ctx context.Context, fp Fingerprint, eventType, subjectID string) error

	// Collect removes entries older than the retention window and returns
	// how many were deleted. The sweep is idempotent and purely a disk-space
	// concern: a failed collection never affects correctness.
	Collect(ctx context.Context, retention time.Duration) (int64, error)
}
