package subscription

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dmitrymomot/subsync/pkg/breaker"
	"github.com/dmitrymomot/subsync/pkg/ledger"
	"github.com/dmitrymomot/subsync/pkg/lock"
)

// ProcessOutcome describes what processing an event did.
type ProcessOutcome string

const (
	// OutcomeApplied means the transition ran and the record changed.
	OutcomeApplied ProcessOutcome = "applied"
	// OutcomeAlreadyProcessed means the fingerprint was in the ledger; the
	// delivery is a replay and nothing ran. A success, not an error.
	OutcomeAlreadyProcessed ProcessOutcome = "already_processed"
	// OutcomeDuplicateSuppressed means the store recognized a near-duplicate
	// update inside the cooldown window and skipped the write.
	OutcomeDuplicateSuppressed ProcessOutcome = "duplicate_suppressed"
	// OutcomeNoChange means the transition decided the event has nothing to
	// apply (e.g. deleting an unknown subject).
	OutcomeNoChange ProcessOutcome = "no_change"
)

// ProcessResult reports the outcome and the record version after processing
// (zero when no record was touched or read).
type ProcessResult struct {
	Outcome ProcessOutcome
	Version int64
}

// Processor reconciles provider events into subscription records. One
// instance serves all subjects; every dependency is injected and shared.
//
// Per event it runs: ledger dedup check, subject lock acquire, best-effort
// conflict wait, domain transition, version-checked merge-write, ledger
// mark, lock release. The ledger is written only after a successful write,
// so any failure leaves the event retryable; the lock is released on every
// path.
type Processor struct {
	ledger      ledger.Ledger
	locks       lock.Manager
	store       *Store
	transitions map[EventType]TransitionFunc

	brk        *breaker.CircuitBreaker
	failed     FailedOpStore
	notifier   Notifier
	log        *slog.Logger
	lockCfg    lock.Config
	maxRetries int
	retention  time.Duration
	now        func() time.Time
}

// NewProcessor creates a Processor. Panics if ledger, lock manager or store
// is nil to fail fast during initialization.
func NewProcessor(led ledger.Ledger, locks lock.Manager, store *Store, opts ...ProcessorOption) *Processor {
	if led == nil {
		panic("subscription: ledger is required")
	}
	if locks == nil {
		panic("subscription: lock manager is required")
	}
	if store == nil {
		panic("subscription: record store is required")
	}

	p := &Processor{
		ledger:      led,
		locks:       locks,
		store:       store,
		transitions: defaultTransitions(),
		log:         slog.Default(),
		maxRetries:  DefaultMaxRetries,
		retention:   ledger.DefaultRetention,
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process applies one event to its subject's record. Duplicate deliveries
// return OutcomeAlreadyProcessed without side effects. Errors are transient
// unless they are a *TransitionError: the caller (or the provider's
// redelivery) retries the whole event, and the failed-operation log keeps
// the retry bookkeeping.
func (p *Processor) Process(ctx context.Context, evt Event) (ProcessResult, error) {
	if evt.ID == "" || evt.SubjectID == "" {
		return ProcessResult{}, ErrInvalidEvent
	}

	// An event whose retry budget is exhausted is excluded from automatic
	// redelivery; only a manual replay (which resets the budget) runs it.
	if p.failed != nil {
		if op, err := p.failed.Get(ctx, string(evt.Fingerprint())); err == nil && op.Status == FailedOpExceeded {
			return ProcessResult{}, ErrRetriesExceeded
		}
	}

	if p.brk != nil && !p.brk.Allow() {
		err := breaker.ErrOpen
		p.recordFailure(ctx, evt, err)
		return ProcessResult{}, err
	}

	res, before, after, err := p.process(ctx, evt)

	if p.brk != nil {
		// Only infrastructure failures count against the breaker. Lock
		// contention and domain rejections reached the backing stores and
		// got an answer, so they count as healthy calls; this also hands a
		// half-open probe slot back instead of leaving it in flight.
		if err != nil && isInfraError(err) {
			p.brk.RecordFailure()
		} else {
			p.brk.RecordSuccess()
		}
	}

	if err != nil {
		p.recordFailure(ctx, evt, err)
		p.notifyFailed(ctx, evt, before, err)
		return res, err
	}

	p.clearFailure(ctx, evt)
	if res.Outcome == OutcomeApplied {
		p.notifyApplied(ctx, evt, before, after, res.Outcome)
	}
	return res, nil
}

// process runs steps 1-7 for one event and returns before/after snapshots
// for the notification sink.
func (p *Processor) process(ctx context.Context, evt Event) (res ProcessResult, before, after *Record, err error) {
	fp := evt.Fingerprint()

	processed, err := p.ledger.IsProcessed(ctx, fp)
	if err != nil {
		return ProcessResult{}, nil, nil, errors.Join(ErrStoreUnavailable, err)
	}
	if processed {
		return ProcessResult{Outcome: OutcomeAlreadyProcessed}, nil, nil, nil
	}

	token, err := p.locks.Acquire(ctx, evt.SubjectID, string(evt.Type), 0)
	if err != nil {
		// Both contention and a broken lock store degrade to "try later".
		return ProcessResult{}, nil, nil, errors.Join(ErrLockUnavailable, err)
	}
	defer func() {
		// Release must run even when the request context is already gone.
		if relErr := p.locks.Release(context.WithoutCancel(ctx), token); relErr != nil {
			p.log.WarnContext(ctx, "failed to release subject lock",
				slog.String("subject_id", evt.SubjectID), slog.Any("error", relErr))
		}
	}()

	if remaining, waitErr := lock.Await(ctx, p.locks, evt.SubjectID, string(evt.Type), p.lockCfg, lock.AwaitOptions{Logger: p.log}); waitErr != nil {
		if ctx.Err() != nil {
			return ProcessResult{}, nil, nil, waitErr
		}
		// The conflict wait is advisory; a broken registry is not a reason
		// to reject the event.
		p.log.WarnContext(ctx, "conflict check failed, proceeding",
			slog.String("subject_id", evt.SubjectID), slog.Any("error", waitErr))
	} else if len(remaining) > 0 {
		p.log.InfoContext(ctx, "proceeding despite in-flight conflicting operations",
			slog.String("subject_id", evt.SubjectID), slog.Int("conflicts", len(remaining)))
	}

	cur, err := p.store.Get(ctx, evt.SubjectID)
	if err != nil && !errors.Is(err, ErrRecordNotFound) {
		return ProcessResult{}, nil, nil, err
	}
	before = cur

	fn, ok := p.transitions[evt.Type]
	if !ok {
		return ProcessResult{}, before, nil, errors.Join(ErrUnknownEventType, errors.New(string(evt.Type)))
	}

	upd, err := fn(cur, evt)
	if err != nil {
		return ProcessResult{}, before, nil, err
	}

	if upd == nil {
		// Nothing to change, but the effect is final: mark the delivery so
		// replays stay no-ops.
		if err := p.markProcessed(ctx, evt, fp); err != nil {
			return ProcessResult{}, before, nil, err
		}
		res = ProcessResult{Outcome: OutcomeNoChange}
		if cur != nil {
			res.Version = cur.Version
		}
		return res, before, before, nil
	}

	if cur != nil {
		upd.BaseVersion = cur.Version
	}

	mres, err := p.store.MergeWrite(ctx, evt.SubjectID, *upd)
	if err != nil {
		return ProcessResult{}, before, nil, err
	}

	if err := p.markProcessed(ctx, evt, fp); err != nil {
		return ProcessResult{}, before, nil, err
	}

	outcome := OutcomeApplied
	if mres.Outcome == MergeSkippedDuplicate {
		outcome = OutcomeDuplicateSuppressed
	}

	if outcome == OutcomeApplied {
		if rec, getErr := p.store.Get(ctx, evt.SubjectID); getErr == nil {
			after = rec
		}
	}

	return ProcessResult{Outcome: outcome, Version: mres.Version}, before, after, nil
}

func (p *Processor) markProcessed(ctx context.Context, evt Event, fp ledger.Fingerprint) error {
	err := p.ledger.MarkProcessed(ctx, fp, string(evt.Type), evt.SubjectID)
	if err == nil {
		return nil
	}
	if errors.Is(err, ledger.ErrAlreadyMarked) {
		// A concurrent processor got here first despite the subject lock
		// (possible after a lock-TTL takeover). The effect is applied
		// either way.
		p.log.WarnContext(ctx, "event was marked processed concurrently",
			slog.String("event_id", evt.ID), slog.String("subject_id", evt.SubjectID))
		return nil
	}
	return errors.Join(ErrStoreUnavailable, err)
}

// CollectLedger garbage-collects idempotency entries older than the
// configured retention. Idempotent; a failure costs disk space, not
// correctness.
func (p *Processor) CollectLedger(ctx context.Context) (int64, error) {
	return p.ledger.Collect(ctx, p.retention)
}

// ReplayReport aggregates the result of a manual replay request.
type ReplayReport struct {
	Requested int
	Succeeded int
	Failed    int
	NotFound  int
}

// Replay re-runs failed operations by fingerprint through the normal
// processing path. Admin-triggered; exceeded operations are eligible, that
// is what manual replay is for. Successful replays remove the
// failed-operation record.
func (p *Processor) Replay(ctx context.Context, fingerprints []string) ReplayReport {
	report := ReplayReport{Requested: len(fingerprints)}
	if p.failed == nil {
		report.NotFound = len(fingerprints)
		return report
	}

	for _, fp := range fingerprints {
		op, err := p.failed.Get(ctx, fp)
		if err != nil {
			if !errors.Is(err, ErrFailedOpNotFound) {
				p.log.ErrorContext(ctx, "failed to load failed operation",
					slog.String("fingerprint", fp), slog.Any("error", err))
			}
			report.NotFound++
			continue
		}

		if op.Status == FailedOpExceeded {
			op.Status = FailedOpPending
			op.RetryCount = 0
			if err := p.failed.Save(ctx, op); err != nil {
				p.log.ErrorContext(ctx, "failed to reset retry budget",
					slog.String("fingerprint", fp), slog.Any("error", err))
				report.Failed++
				continue
			}
		}

		if _, err := p.Process(ctx, op.Event); err != nil {
			report.Failed++
			continue
		}
		report.Succeeded++
	}
	return report
}

func (p *Processor) recordFailure(ctx context.Context, evt Event, cause error) {
	if p.failed == nil {
		return
	}
	fp := string(evt.Fingerprint())
	now := p.now()

	op, err := p.failed.Get(ctx, fp)
	if err != nil {
		if !errors.Is(err, ErrFailedOpNotFound) {
			p.log.ErrorContext(ctx, "failed to read failed-operation record",
				slog.String("fingerprint", fp), slog.Any("error", err))
			return
		}
		op = &FailedOperation{
			Fingerprint: fp,
			Event:       evt,
			MaxRetries:  p.maxRetries,
			Status:      FailedOpPending,
			FailedAt:    now,
		}
	}

	op.RetryCount++
	op.LastError = cause.Error()
	op.LastTriedAt = now
	if op.RetryCount >= op.MaxRetries {
		op.Status = FailedOpExceeded
	}

	if err := p.failed.Save(ctx, op); err != nil {
		p.log.ErrorContext(ctx, "failed to persist failed-operation record",
			slog.String("fingerprint", fp), slog.Any("error", err))
	}
}

func (p *Processor) clearFailure(ctx context.Context, evt Event) {
	if p.failed == nil {
		return
	}
	if err := p.failed.Delete(ctx, string(evt.Fingerprint())); err != nil {
		p.log.WarnContext(ctx, "failed to clear failed-operation record",
			slog.String("event_id", evt.ID), slog.Any("error", err))
	}
}

func (p *Processor) notifyApplied(ctx context.Context, evt Event, before, after *Record, outcome ProcessOutcome) {
	if p.notifier == nil {
		return
	}
	p.notifier.TransitionApplied(ctx, TransitionAudit{
		Event:   evt,
		Before:  before,
		After:   after,
		Outcome: outcome,
		At:      p.now(),
	})
}

func (p *Processor) notifyFailed(ctx context.Context, evt Event, before *Record, cause error) {
	if p.notifier == nil {
		return
	}
	p.notifier.TransitionFailed(ctx, TransitionAudit{
		Event:  evt,
		Before: before,
		Reason: cause.Error(),
		At:     p.now(),
	})
}

// isInfraError reports whether the failure indicates unhealthy
// infrastructure rather than contention or a domain rejection.
func isInfraError(err error) bool {
	return errors.Is(err, ErrStoreUnavailable) || errors.Is(err, lock.ErrUnavailable)
}
