package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// mongoLedger stores entries in a mongo collection keyed by fingerprint.
// The unique _id index gives MarkProcessed its create-once semantics.
type mongoLedger struct {
	coll *mongo.Collection
}

// NewMongoLedger returns a Ledger backed by the given collection.
func NewMongoLedger(coll *mongo.Collection) Ledger {
	return &mongoLedger{coll: coll}
}

func (l *mongoLedger) IsProcessed(ctx context.Context, fp Fingerprint) (bool, error) {
	err := l.coll.FindOne(ctx, bson.M{"_id": fp}).Err()
	if err == nil {
		return true, nil
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	return false, fmt.Errorf("ledger: lookup failed: %w", err)
}

func (l *mongoLedger) MarkProcessed(ctx context.Context, fp Fingerprint, eventType, subjectID string) error {
	entry := Entry{
		Fingerprint: fp,
		EventType:   eventType,
		SubjectID:   subjectID,
		ProcessedAt: time.Now().UTC(),
	}

	if _, err := l.coll.InsertOne(ctx, entry); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrAlreadyMarked
		}
		return fmt.Errorf("ledger: mark failed: %w", err)
	}
	return nil
}

func (l *mongoLedger) Collect(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-retention)

	res, err := l.coll.DeleteMany(ctx, bson.M{"processed_at": bson.M{"$lt": cutoff}})
	if err != nil {
		return 0, fmt.Errorf("ledger: collect failed: %w", err)
	}
	return res.DeletedCount, nil
}
