package subscription

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// SweeperConfig tunes the trial-expiry background loop.
type SweeperConfig struct {
	InitialDelay time.Duration `env:"TRIAL_SWEEP_INITIAL_DELAY" envDefault:"1m"`
	Interval     time.Duration `env:"TRIAL_SWEEP_INTERVAL" envDefault:"1h"`
	BatchSize    int           `env:"TRIAL_SWEEP_BATCH_SIZE" envDefault:"50"`
	BatchDelay   time.Duration `env:"TRIAL_SWEEP_BATCH_DELAY" envDefault:"2s"`
}

// SweepReport aggregates one sweep run. Errored counts subjects whose
// synthesized event failed to process; their errors are in Errors.
type SweepReport struct {
	Scanned int
	Expired int
	Skipped int
	Errored int
	Errors  []error
}

// Sweeper periodically finds active trial subscriptions whose period ended
// and pushes them through the processor as synthesized internal events. The
// processor re-checks the expiry under the subject lock, so a webhook that
// upgraded the subject between scan and apply wins.
type Sweeper struct {
	processor *Processor
	store     *Store
	cfg       SweeperConfig
	log       *slog.Logger
	now       func() time.Time
}

// SweeperOption configures optional Sweeper behavior.
type SweeperOption func(*Sweeper)

// WithSweeperLogger sets the structured logger.
func WithSweeperLogger(log *slog.Logger) SweeperOption {
	return func(s *Sweeper) {
		if log != nil {
			s.log = log
		}
	}
}

// WithSweeperClock injects the time source. Tests use it to pin the clock.
func WithSweeperClock(now func() time.Time) SweeperOption {
	return func(s *Sweeper) {
		if now != nil {
			s.now = now
		}
	}
}

// NewSweeper creates a Sweeper. Panics if processor or store is nil.
func NewSweeper(processor *Processor, store *Store, cfg SweeperConfig, opts ...SweeperOption) *Sweeper {
	if processor == nil {
		panic("subscription: processor is required")
	}
	if store == nil {
		panic("subscription: record store is required")
	}

	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = time.Minute
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.BatchDelay < 0 {
		cfg.BatchDelay = 0
	}

	s := &Sweeper{
		processor: processor,
		store:     store,
		cfg:       cfg,
		log:       slog.Default(),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start runs the sweep loop until ctx is cancelled. Blocking; run it in its
// own goroutine.
func (s *Sweeper) Start(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.cfg.InitialDelay):
	}

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		report := s.RunOnce(ctx)
		s.log.InfoContext(ctx, "trial expiry sweep finished",
			slog.Int("scanned", report.Scanned),
			slog.Int("expired", report.Expired),
			slog.Int("skipped", report.Skipped),
			slog.Int("errored", report.Errored))

		if collected, err := s.processor.CollectLedger(ctx); err != nil {
			s.log.WarnContext(ctx, "ledger collection failed", slog.Any("error", err))
		} else if collected > 0 {
			s.log.InfoContext(ctx, "ledger entries collected", slog.Int64("collected", collected))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce performs a single sweep. Per-subject failures are collected into
// the report, never fatal for the run.
func (s *Sweeper) RunOnce(ctx context.Context) SweepReport {
	var report SweepReport

	records, err := s.store.ListByTier(ctx, TierTrial)
	if err != nil {
		report.Errored++
		report.Errors = append(report.Errors, err)
		return report
	}

	now := s.now()
	for i, rec := range records {
		if ctx.Err() != nil {
			report.Errors = append(report.Errors, ctx.Err())
			return report
		}

		report.Scanned++
		if !rec.IsTrialExpiredAt(now) {
			report.Skipped++
			continue
		}

		evt := s.expiryEvent(rec, now)
		res, err := s.processor.Process(ctx, evt)
		switch {
		case err != nil:
			report.Errored++
			report.Errors = append(report.Errors, fmt.Errorf("subject %s: %w", rec.SubjectID, err))
		case res.Outcome == OutcomeApplied:
			report.Expired++
		default:
			// Already processed today or a webhook changed the record
			// between the scan and the locked re-check.
			report.Skipped++
		}

		if i > 0 && (i+1)%s.cfg.BatchSize == 0 && s.cfg.BatchDelay > 0 {
			select {
			case <-ctx.Done():
				report.Errors = append(report.Errors, ctx.Err())
				return report
			case <-time.After(s.cfg.BatchDelay):
			}
		}
	}
	return report
}

// expiryEvent synthesizes the internal event for one expired trial. The id
// carries the day, so the ledger makes the expiry at most once per day even
// across overlapping sweeper instances.
func (s *Sweeper) expiryEvent(rec Record, now time.Time) Event {
	return Event{
		ID:         fmt.Sprintf("trial_expiry:%s:%s", rec.SubjectID, now.Format("2006-01-02")),
		Type:       EventTrialExpired,
		SubjectID:  rec.SubjectID,
		OccurredAt: now,
		Payload: Payload{
			ObjectID: objectIDForExpiry(rec),
		},
	}
}

// objectIDForExpiry picks a stable object id for the fingerprint. Trials
// created without a provider subscription fall back to the subject id.
func objectIDForExpiry(rec Record) string {
	if rec.ProviderSubID != "" {
		return rec.ProviderSubID
	}
	return rec.SubjectID
}
