package subscription

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// mongoDriver stores one document per subject keyed by _id. The version
// check rides on the replace filter: a replace whose filter version no
// longer matches touches nothing and surfaces as ErrStaleVersion.
type mongoDriver struct {
	coll *mongo.Collection
}

// NewMongoDriver returns a Driver backed by the given collection.
func NewMongoDriver(coll *mongo.Collection) Driver {
	return &mongoDriver{coll: coll}
}

func (d *mongoDriver) Get(ctx context.Context, subjectID string) (*Record, error) {
	var rec Record
	err := d.coll.FindOne(ctx, bson.M{"_id": subjectID}).Decode(&rec)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrRecordNotFound
		}
		return nil, errors.Join(ErrStoreUnavailable, err)
	}
	return &rec, nil
}

func (d *mongoDriver) Insert(ctx context.Context, rec *Record) error {
	if _, err := d.coll.InsertOne(ctx, rec); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrRecordExists
		}
		return errors.Join(ErrStoreUnavailable, err)
	}
	return nil
}

func (d *mongoDriver) Update(ctx context.Context, rec *Record, expectedVersion int64) error {
	res, err := d.coll.ReplaceOne(ctx, bson.M{"_id": rec.SubjectID, "version": expectedVersion}, rec)
	if err != nil {
		return errors.Join(ErrStoreUnavailable, err)
	}
	if res.MatchedCount == 0 {
		// Distinguish a vanished record from a concurrent writer.
		if err := d.coll.FindOne(ctx, bson.M{"_id": rec.SubjectID}).Err(); errors.Is(err, mongo.ErrNoDocuments) {
			return ErrRecordNotFound
		}
		return ErrStaleVersion
	}
	return nil
}

func (d *mongoDriver) ListByTier(ctx context.Context, tier Tier) ([]Record, error) {
	cursor, err := d.coll.Find(ctx, bson.M{"tier": tier})
	if err != nil {
		return nil, errors.Join(ErrStoreUnavailable, err)
	}
	defer func() { _ = cursor.Close(ctx) }()

	var out []Record
	if err := cursor.All(ctx, &out); err != nil {
		return nil, errors.Join(ErrStoreUnavailable, err)
	}
	return out, nil
}
