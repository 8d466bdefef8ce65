package ledger

import (
	"context"
	"sync"
	"time"
)

// memoryLedger is an in-memory Ledger for tests and single-process setups.
type memoryLedger struct {
	mu      sync.RWMutex
	entries map[Fingerprint]Entry
}

// NewMemoryLedger returns an empty in-memory ledger.
func NewMemoryLedger() Ledger {
	return &memoryLedger{entries: make(map[Fingerprint]Entry)}
}

func (l *memoryLedger) IsProcessed(_ context.Context, fp Fingerprint) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	_, ok := l.entries[fp]
	return ok, nil
}

func (l *memoryLedger) MarkProcessed(_ context.Context, fp Fingerprint, eventType, subjectID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.entries[fp]; ok {
		return ErrAlreadyMarked
	}

	l.entries[fp] = Entry{
		Fingerprint: fp,
		EventType:   eventType,
		SubjectID:   subjectID,
		ProcessedAt: time.Now().UTC(),
	}
	return nil
}

func (l *memoryLedger) Collect(_ context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-retention)

	l.mu.Lock()
	defer l.mu.Unlock()

	var removed int64
	for fp, e := range l.entries {
		if e.ProcessedAt.Before(cutoff) {
			delete(l.entries, fp)
			removed++
		}
	}
	return removed, nil
}
