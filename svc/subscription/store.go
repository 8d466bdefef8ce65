package subscription

import (
	"context"
	"errors"
	"time"
)

// DefaultDuplicateWindow is the cooldown within which a second update
// carrying the same provider subscription id is treated as a duplicate
// delivery of the same underlying change.
const DefaultDuplicateWindow = 5 * time.Second

// MergeOutcome describes what a MergeWrite did.
type MergeOutcome string

const (
	MergeCreated          MergeOutcome = "created"
	MergeUpdated          MergeOutcome = "updated"
	MergeSkippedDuplicate MergeOutcome = "skipped_duplicate"
)

// MergeResult reports the outcome and the version the record is at after the
// call (unchanged when the write was skipped).
type MergeResult struct {
	Outcome MergeOutcome
	Version int64
}

// Driver is the persistence contract the Store runs on: a keyed record
// collection with versioned replace semantics. Implementations map
// ErrRecordNotFound, ErrRecordExists and ErrStaleVersion onto their native
// failure modes and join ErrStoreUnavailable on infrastructure errors.
type Driver interface {
	Get(ctx context.Context, subjectID string) (*Record, error)
	Insert(ctx context.Context, rec *Record) error
	// Update replaces the stored record only while its version still equals
	// expectedVersion; otherwise it fails with ErrStaleVersion.
	Update(ctx context.Context, rec *Record, expectedVersion int64) error
	ListByTier(ctx context.Context, tier Tier) ([]Record, error)
}

// Store owns the subscription record and is its only mutation path. All
// writes are read-merge-write with an optimistic version check, which is the
// actual correctness guard under concurrent writers; the subject lock above
// it only reduces how often the check fires.
type Store struct {
	driver    Driver
	dupWindow time.Duration
	now       func() time.Time
}

// StoreOption configures optional Store settings.
type StoreOption func(*Store)

// WithDuplicateWindow overrides the duplicate-suppression cooldown.
func WithDuplicateWindow(d time.Duration) StoreOption {
	return func(s *Store) { s.dupWindow = d }
}

// WithStoreClock injects the clock. Tests use it to step through the
// duplicate-suppression window without sleeping.
func WithStoreClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// NewStore creates a Store on top of the given driver.
// Panics on a nil driver to fail fast during initialization.
func NewStore(driver Driver, opts ...StoreOption) *Store {
	if driver == nil {
		panic("subscription: store driver is required")
	}
	s := &Store{
		driver:    driver,
		dupWindow: DefaultDuplicateWindow,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the current record for the subject, or ErrRecordNotFound.
func (s *Store) Get(ctx context.Context, subjectID string) (*Record, error) {
	return s.driver.Get(ctx, subjectID)
}

// ListByTier returns every record on the given tier. The trial sweep uses it
// to enumerate trial subjects.
func (s *Store) ListByTier(ctx context.Context, tier Tier) ([]Record, error) {
	return s.driver.ListByTier(ctx, tier)
}

// MergeWrite applies a partial update to the subject's record.
//
// Without an existing record it creates one at version 1. With one it merges
// the update over the current fields, bumps the version by exactly one and
// stamps the update time. Two suppressions apply before writing:
//
//   - stale base: upd.BaseVersion set but no longer current -> ErrStaleVersion.
//   - duplicate delivery: the update carries the same provider subscription
//     id as the record and the record was touched within the cooldown
//     window -> skipped, version unchanged. Providers legitimately deliver
//     near-duplicate updates in rapid bursts for one underlying change;
//     skipping them keeps the version counter meaningful and the audit trail
//     quiet. Note the known gap: a genuine rapid double-change on the same
//     subscription (upgrade then immediate downgrade inside the window)
//     is indistinguishable from a duplicate and will be suppressed too.
func (s *Store) MergeWrite(ctx context.Context, subjectID string, upd Update) (MergeResult, error) {
	now := s.now()

	cur, err := s.driver.Get(ctx, subjectID)
	if err != nil && !errors.Is(err, ErrRecordNotFound) {
		return MergeResult{}, err
	}

	if cur == nil {
		rec := &Record{
			SubjectID:   subjectID,
			Status:      StatusActive,
			Version:     1,
			CreatedAt:   now,
			UpdatedAt:   now,
			LastEventAt: now,
		}
		upd.apply(rec)
		if err := s.driver.Insert(ctx, rec); err != nil {
			if errors.Is(err, ErrRecordExists) {
				// Lost a create race; the caller re-reads and retries.
				return MergeResult{}, ErrStaleVersion
			}
			return MergeResult{}, err
		}
		return MergeResult{Outcome: MergeCreated, Version: rec.Version}, nil
	}

	if upd.BaseVersion != 0 && upd.BaseVersion != cur.Version {
		return MergeResult{}, ErrStaleVersion
	}

	if s.isDuplicate(cur, upd, now) {
		return MergeResult{Outcome: MergeSkippedDuplicate, Version: cur.Version}, nil
	}

	next := cur.Clone()
	upd.apply(next)
	next.Version = cur.Version + 1
	next.UpdatedAt = now
	next.LastEventAt = now

	if err := s.driver.Update(ctx, next, cur.Version); err != nil {
		return MergeResult{}, err
	}
	return MergeResult{Outcome: MergeUpdated, Version: next.Version}, nil
}

func (s *Store) isDuplicate(cur *Record, upd Update, now time.Time) bool {
	if upd.ProviderSubID == nil || *upd.ProviderSubID == "" || *upd.ProviderSubID != cur.ProviderSubID {
		return false
	}
	return now.Sub(cur.LastEventAt) < s.dupWindow
}
