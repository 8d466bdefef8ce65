package subscription

import (
	"context"
	"log/slog"
	"time"
)

// TransitionAudit is the before/after snapshot sent to the notification sink
// after every transition attempt.
type TransitionAudit struct {
	Event   Event
	Before  *Record
	After   *Record
	Outcome ProcessOutcome // applied outcomes only
	Reason  string         // failure description, empty on success
	At      time.Time
}

// Notifier receives transition outcomes. It is strictly fire-and-forget: the
// processor never waits on it and a notifier failure never rolls back a
// transition, so implementations must not block and must swallow their own
// errors.
type Notifier interface {
	TransitionApplied(ctx context.Context, audit TransitionAudit)
	TransitionFailed(ctx context.Context, audit TransitionAudit)
}

// slogNotifier is the default sink: structured log lines with the snapshot
// context an operator needs to reconstruct what happened.
type slogNotifier struct {
	log *slog.Logger
}

// NewLogNotifier returns a Notifier that writes to the given logger
// (slog.Default when nil).
func NewLogNotifier(log *slog.Logger) Notifier {
	if log == nil {
		log = slog.Default()
	}
	return &slogNotifier{log: log}
}

func (n *slogNotifier) TransitionApplied(ctx context.Context, a TransitionAudit) {
	n.log.InfoContext(ctx, "subscription transition applied", auditAttrs(a)...)
}

func (n *slogNotifier) TransitionFailed(ctx context.Context, a TransitionAudit) {
	n.log.ErrorContext(ctx, "subscription transition failed", auditAttrs(a)...)
}

func auditAttrs(a TransitionAudit) []any {
	attrs := []any{
		slog.String("event_id", a.Event.ID),
		slog.String("event_type", string(a.Event.Type)),
		slog.String("subject_id", a.Event.SubjectID),
	}
	if a.Outcome != "" {
		attrs = append(attrs, slog.String("outcome", string(a.Outcome)))
	}
	if a.Reason != "" {
		attrs = append(attrs, slog.String("reason", a.Reason))
	}
	if a.Before != nil {
		attrs = append(attrs, slog.Group("before",
			slog.String("status", string(a.Before.Status)),
			slog.String("tier", string(a.Before.Tier)),
			slog.Int64("version", a.Before.Version)))
	}
	if a.After != nil {
		attrs = append(attrs, slog.Group("after",
			slog.String("status", string(a.After.Status)),
			slog.String("tier", string(a.After.Tier)),
			slog.Int64("version", a.After.Version)))
	}
	return attrs
}

// AsyncNotifier decouples a slow sink from the processing path with a
// bounded buffer. Entries are dropped when the buffer is full; audit is an
// observability concern, never backpressure on transitions.
type AsyncNotifier struct {
	sink Notifier
	ch   chan asyncAuditItem
	done chan struct{}
}

type asyncAuditItem struct {
	audit  TransitionAudit
	failed bool
}

// NewAsyncNotifier wraps sink with an asynchronous buffer of the given size.
// Call Close to flush and stop the worker.
func NewAsyncNotifier(sink Notifier, bufferSize int) *AsyncNotifier {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	n := &AsyncNotifier{
		sink: sink,
		ch:   make(chan asyncAuditItem, bufferSize),
		done: make(chan struct{}),
	}
	go n.run()
	return n
}

func (n *AsyncNotifier) run() {
	defer close(n.done)
	// Detached context: the producer's request context is long gone by the
	// time the sink runs.
	ctx := context.Background()
	for item := range n.ch {
		if item.failed {
			n.sink.TransitionFailed(ctx, item.audit)
		} else {
			n.sink.TransitionApplied(ctx, item.audit)
		}
	}
}

func (n *AsyncNotifier) TransitionApplied(_ context.Context, a TransitionAudit) {
	select {
	case n.ch <- asyncAuditItem{audit: a}:
	default:
	}
}

func (n *AsyncNotifier) TransitionFailed(_ context.Context, a TransitionAudit) {
	select {
	case n.ch <- asyncAuditItem{audit: a, failed: true}:
	default:
	}
}

// Close stops accepting entries, flushes the buffer and waits for the worker.
func (n *AsyncNotifier) Close(ctx context.Context) error {
	close(n.ch)
	select {
	case <-n.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
