package lock

import (
	"context"
	"log/slog"
	"time"
)

// AwaitOptions tunes Await. Zero values fall back to the given Config.
type AwaitOptions struct {
	PollInterval time.Duration
	MaxWait      time.Duration
	Logger       *slog.Logger
}

// Await polls FindConflicting until the conflicting operations for the
// subject clear or MaxWait elapses. On timeout it logs a warning and returns
// the remaining descriptors with a nil error: the wait is a best-effort
// ordering aid that reduces cross-type races landing back to back, not a
// barrier. Correctness is guaranteed by the record store's version-checked
// merge-write, so proceeding after the timeout is safe.
func Await(ctx context.Context, mgr Manager, subjectID, currentTag string, cfg Config, opts AwaitOptions) ([]Descriptor, error) {
	poll := opts.PollInterval
	if poll <= 0 {
		poll = cfg.PollInterval
	}
	if poll <= 0 {
		poll = 500 * time.Millisecond
	}
	maxWait := opts.MaxWait
	if maxWait <= 0 {
		maxWait = cfg.MaxConflictWait
	}
	if maxWait <= 0 {
		maxWait = 5 * time.Second
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	deadline := time.Now().Add(maxWait)
	for {
		conflicts, err := mgr.FindConflicting(ctx, subjectID, currentTag, cfg.ConflictWindow)
		if err != nil {
			return nil, err
		}
		if len(conflicts) == 0 {
			return nil, nil
		}

		if time.Now().After(deadline) {
			log.WarnContext(ctx, "conflicting operations did not clear in time, proceeding",
				slog.String("subject_id", subjectID),
				slog.String("tag", currentTag),
				slog.Int("conflicts", len(conflicts)))
			return conflicts, nil
		}

		select {
		case <-ctx.Done():
			return conflicts, ctx.Err()
		case <-time.After(poll):
		}
	}
}
