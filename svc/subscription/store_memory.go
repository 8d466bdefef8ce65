package subscription

import (
	"context"
	"sync"
)

// memoryDriver keeps records in process memory. Tests and single-node
// setups; the concurrency semantics match the real drivers.
type memoryDriver struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// NewMemoryDriver returns an empty in-memory record driver.
func NewMemoryDriver() Driver {
	return &memoryDriver{records: make(map[string]*Record)}
}

func (d *memoryDriver) Get(_ context.Context, subjectID string) (*Record, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rec, ok := d.records[subjectID]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return rec.Clone(), nil
}

func (d *memoryDriver) Insert(_ context.Context, rec *Record) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.records[rec.SubjectID]; ok {
		return ErrRecordExists
	}
	d.records[rec.SubjectID] = rec.Clone()
	return nil
}

func (d *memoryDriver) Update(_ context.Context, rec *Record, expectedVersion int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	cur, ok := d.records[rec.SubjectID]
	if !ok {
		return ErrRecordNotFound
	}
	if cur.Version != expectedVersion {
		return ErrStaleVersion
	}
	d.records[rec.SubjectID] = rec.Clone()
	return nil
}

func (d *memoryDriver) ListByTier(_ context.Context, tier Tier) ([]Record, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []Record
	for _, rec := range d.records {
		if rec.Tier == tier {
			out = append(out, *rec.Clone())
		}
	}
	return out, nil
}
