package subscription

import (
	"log/slog"
	"time"

	"github.com/dmitrymomot/subsync/pkg/breaker"
	"github.com/dmitrymomot/subsync/pkg/lock"
)

// ProcessorOption configures optional Processor behavior.
type ProcessorOption func(*Processor)

// WithTransition overrides or registers the transition function for one
// event type. Passing nil removes the type from the table.
func WithTransition(t EventType, fn TransitionFunc) ProcessorOption {
	return func(p *Processor) {
		if fn == nil {
			delete(p.transitions, t)
			return
		}
		p.transitions[t] = fn
	}
}

// WithBreaker gates processing behind the given circuit breaker.
func WithBreaker(b *breaker.CircuitBreaker) ProcessorOption {
	return func(p *Processor) {
		p.brk = b
	}
}

// WithFailedOps enables failed-operation bookkeeping and manual replay.
func WithFailedOps(store FailedOpStore) ProcessorOption {
	return func(p *Processor) {
		if store != nil {
			p.failed = store
		}
	}
}

// WithMaxRetries sets the retry budget stamped onto new failed-operation
// records. Values below one are ignored.
func WithMaxRetries(n int) ProcessorOption {
	return func(p *Processor) {
		if n > 0 {
			p.maxRetries = n
		}
	}
}

// WithNotifier sets the transition audit sink.
func WithNotifier(n Notifier) ProcessorOption {
	return func(p *Processor) {
		if n != nil {
			p.notifier = n
		}
	}
}

// WithProcessorLogger sets the structured logger.
func WithProcessorLogger(log *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		if log != nil {
			p.log = log
		}
	}
}

// WithLockConfig sets the conflict-wait tuning used around each event.
func WithLockConfig(cfg lock.Config) ProcessorOption {
	return func(p *Processor) {
		p.lockCfg = cfg
	}
}

// WithLedgerRetention sets how long processed-event fingerprints are kept
// before CollectLedger removes them.
func WithLedgerRetention(d time.Duration) ProcessorOption {
	return func(p *Processor) {
		if d > 0 {
			p.retention = d
		}
	}
}

// WithProcessorClock injects the time source. Tests use it to pin the clock.
func WithProcessorClock(now func() time.Time) ProcessorOption {
	return func(p *Processor) {
		if now != nil {
			p.now = now
		}
	}
}
