package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// memoryManager is an in-process Manager for tests and single-node setups.
type memoryManager struct {
	mu       sync.Mutex
	cfg      Config
	holderID string
	locks    map[string]*Token  // subjectID -> live lock
	ops      map[string][]opRec // subjectID -> recent operations
}

type opRec struct {
	tokenID   string
	tag       string
	holderID  string
	startedAt time.Time
	released  bool
}

// NewMemoryManager returns a Manager that keeps all state in process memory.
func NewMemoryManager(cfg Config) Manager {
	return &memoryManager{
		cfg:      cfg,
		holderID: "mem-" + uuid.NewString(),
		locks:    make(map[string]*Token),
		ops:      make(map[string][]opRec),
	}
}

func (m *memoryManager) Acquire(_ context.Context, subjectID, tag string, ttl time.Duration) (*Token, error) {
	if ttl <= 0 {
		ttl = m.cfg.TTL
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	if cur, ok := m.locks[subjectID]; ok && cur.ExpiresAt.After(now) {
		return nil, ErrNotAcquired
	}

	token := &Token{
		ID:         uuid.NewString(),
		SubjectID:  subjectID,
		Tag:        tag,
		HolderID:   m.holderID,
		AcquiredAt: now,
		ExpiresAt:  now.Add(ttl),
	}
	m.locks[subjectID] = token
	m.recordOp(subjectID, token)
	return token, nil
}

func (m *memoryManager) Release(_ context.Context, token *Token) error {
	if token == nil {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if cur, ok := m.locks[token.SubjectID]; ok && cur.ID == token.ID {
		delete(m.locks, token.SubjectID)
	}
	// Mark the operation finished even if the lock itself already expired
	// and was taken over, so it stops showing up as conflicting.
	for i := range m.ops[token.SubjectID] {
		if m.ops[token.SubjectID][i].tokenID == token.ID {
			m.ops[token.SubjectID][i].released = true
		}
	}
	return nil
}

func (m *memoryManager) FindConflicting(_ context.Context, subjectID, currentTag string, window time.Duration) ([]Descriptor, error) {
	if window <= 0 {
		window = m.cfg.ConflictWindow
	}
	if window <= 0 {
		window = time.Minute
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().UTC().Add(-window)

	kept := m.ops[subjectID][:0]
	var conflicts []Descriptor
	for _, op := range m.ops[subjectID] {
		if op.startedAt.Before(cutoff) {
			continue
		}
		kept = append(kept, op)
		if op.released || op.tag == currentTag {
			continue
		}
		conflicts = append(conflicts, Descriptor{
			SubjectID: subjectID,
			Tag:       op.tag,
			HolderID:  op.holderID,
			StartedAt: op.startedAt,
		})
	}
	m.ops[subjectID] = kept

	return conflicts, nil
}

// recordOp appends to the recent-operations registry; callers hold m.mu.
func (m *memoryManager) recordOp(subjectID string, token *Token) {
	m.ops[subjectID] = append(m.ops[subjectID], opRec{
		tokenID:   token.ID,
		tag:       token.Tag,
		holderID:  token.HolderID,
		startedAt: token.AcquiredAt,
	})
}
