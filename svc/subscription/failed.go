package subscription

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// DefaultMaxRetries is how many failed attempts an event gets before its
// failed-operation record goes terminal.
const DefaultMaxRetries = 5

// FailedOpStatus is the state of a failed-operation record.
type FailedOpStatus string

const (
	FailedOpPending  FailedOpStatus = "pending"  // awaiting redelivery or manual replay
	FailedOpExceeded FailedOpStatus = "exceeded" // retries exhausted, manual intervention only
)

// FailedOperation captures an event whose processing failed, keyed by the
// event fingerprint. The full event is kept so a replay needs nothing from
// the provider.
type FailedOperation struct {
	Fingerprint string         `bson:"_id" json:"fingerprint"`
	Event       Event          `bson:"event" json:"event"`
	LastError   string         `bson:"last_error" json:"last_error"`
	RetryCount  int            `bson:"retry_count" json:"retry_count"`
	MaxRetries  int            `bson:"max_retries" json:"max_retries"`
	Status      FailedOpStatus `bson:"status" json:"status"`
	FailedAt    time.Time      `bson:"failed_at" json:"failed_at"`
	LastTriedAt time.Time      `bson:"last_tried_at" json:"last_tried_at"`
}

// FailedOpStore persists failed operations for retry bookkeeping and manual
// replay.
type FailedOpStore interface {
	Get(ctx context.Context, fingerprint string) (*FailedOperation, error)
	Save(ctx context.Context, op *FailedOperation) error
	Delete(ctx context.Context, fingerprint string) error
	List(ctx context.Context, status FailedOpStatus, limit int) ([]FailedOperation, error)
}

// memoryFailedOps is the in-memory FailedOpStore for tests.
type memoryFailedOps struct {
	mu  sync.RWMutex
	ops map[string]FailedOperation
}

// NewMemoryFailedOpStore returns an empty in-memory failed-operation store.
func NewMemoryFailedOpStore() FailedOpStore {
	return &memoryFailedOps{ops: make(map[string]FailedOperation)}
}

func (s *memoryFailedOps) Get(_ context.Context, fingerprint string) (*FailedOperation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	op, ok := s.ops[fingerprint]
	if !ok {
		return nil, ErrFailedOpNotFound
	}
	return &op, nil
}

func (s *memoryFailedOps) Save(_ context.Context, op *FailedOperation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ops[op.Fingerprint] = *op
	return nil
}

func (s *memoryFailedOps) Delete(_ context.Context, fingerprint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.ops, fingerprint)
	return nil
}

func (s *memoryFailedOps) List(_ context.Context, status FailedOpStatus, limit int) ([]FailedOperation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []FailedOperation
	for _, op := range s.ops {
		if op.Status != status {
			continue
		}
		out = append(out, op)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// mongoFailedOps is the production FailedOpStore.
type mongoFailedOps struct {
	coll *mongo.Collection
}

// NewMongoFailedOpStore returns a FailedOpStore backed by the given collection.
func NewMongoFailedOpStore(coll *mongo.Collection) FailedOpStore {
	return &mongoFailedOps{coll: coll}
}

func (s *mongoFailedOps) Get(ctx context.Context, fingerprint string) (*FailedOperation, error) {
	var op FailedOperation
	err := s.coll.FindOne(ctx, bson.M{"_id": fingerprint}).Decode(&op)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrFailedOpNotFound
		}
		return nil, errors.Join(ErrStoreUnavailable, err)
	}
	return &op, nil
}

func (s *mongoFailedOps) Save(ctx context.Context, op *FailedOperation) error {
	if _, err := s.coll.ReplaceOne(ctx, bson.M{"_id": op.Fingerprint}, op, options.Replace().SetUpsert(true)); err != nil {
		return errors.Join(ErrStoreUnavailable, err)
	}
	return nil
}

func (s *mongoFailedOps) Delete(ctx context.Context, fingerprint string) error {
	if _, err := s.coll.DeleteOne(ctx, bson.M{"_id": fingerprint}); err != nil {
		return errors.Join(ErrStoreUnavailable, err)
	}
	return nil
}

func (s *mongoFailedOps) List(ctx context.Context, status FailedOpStatus, limit int) ([]FailedOperation, error) {
	findOpts := options.Find()
	if limit > 0 {
		findOpts = findOpts.SetLimit(int64(limit))
	}
	cursor, err := s.coll.Find(ctx, bson.M{"status": status}, findOpts)
	if err != nil {
		return nil, errors.Join(ErrStoreUnavailable, err)
	}
	defer func() { _ = cursor.Close(ctx) }()

	var out []FailedOperation
	if err := cursor.All(ctx, &out); err != nil {
		return nil, errors.Join(ErrStoreUnavailable, err)
	}
	return out, nil
}
