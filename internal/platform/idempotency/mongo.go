package idempotency

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	pmongo "github.com/picklepantry/api/internal/platform/mongo"
)

const mongoCollection = "idempotencyKeys"

// MongoStore keeps records in MongoDB. The unique _id makes the first insert the winner.
type MongoStore struct {
	provider *pmongo.Provider
}

// NewMongoStore constructs a Mongo-backed store.
func NewMongoStore(provider *pmongo.Provider) *MongoStore {
	return &MongoStore{provider: provider}
}

type mongoRecord struct {
	ID              string              `bson:"_id"`
	Key             string              `bson:"key"`
	Fingerprint     string              `bson:"fingerprint"`
	Status          string              `bson:"status"`
	ResponseStatus  int                 `bson:"responseStatus"`
	ResponseHeaders map[string][]string `bson:"responseHeaders,omitempty"`
	ResponseBody    []byte              `bson:"responseBody,omitempty"`
	CreatedAt       time.Time           `bson:"createdAt"`
	UpdatedAt       time.Time           `bson:"updatedAt"`
	ExpiresAt       time.Time           `bson:"expiresAt"`
}

func toMongoRecord(r Record) mongoRecord {
	return mongoRecord{
		ID:              documentID(r.Key),
		Key:             r.Key,
		Fingerprint:     r.Fingerprint,
		Status:          string(r.Status),
		ResponseStatus:  r.ResponseStatus,
		ResponseHeaders: r.ResponseHeaders,
		ResponseBody:    r.ResponseBody,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
		ExpiresAt:       r.ExpiresAt,
	}
}

func (d mongoRecord) record() Record {
	return Record{
		Key:             d.Key,
		Fingerprint:     d.Fingerprint,
		Status:          Status(d.Status),
		ResponseStatus:  d.ResponseStatus,
		ResponseHeaders: d.ResponseHeaders,
		ResponseBody:    d.ResponseBody,
		CreatedAt:       d.CreatedAt.UTC(),
		UpdatedAt:       d.UpdatedAt.UTC(),
		ExpiresAt:       d.ExpiresAt.UTC(),
	}
}

// Reserve implements Store. An expired record is taken over with a compare-and-replace on
// its expiry; losing that race reports the key as pending.
func (s *MongoStore) Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	coll, err := s.provider.Collection(ctx, mongoCollection)
	if err != nil {
		return Reservation{}, err
	}
	now = now.UTC()
	record := pendingRecord(key, fingerprint, now, ttl)

	_, err = coll.InsertOne(ctx, toMongoRecord(record))
	if err == nil {
		return Reservation{State: ReservationStateNew, Record: record}, nil
	}
	if !mongo.IsDuplicateKeyError(err) {
		return Reservation{}, pmongo.WrapError("mongo.idempotency.reserve", err)
	}

	var doc mongoRecord
	if err := coll.FindOne(ctx, bson.M{"_id": documentID(key)}).Decode(&doc); err != nil {
		return Reservation{}, pmongo.WrapError("mongo.idempotency.reserve", err)
	}
	existing := doc.record()
	if existing.expired(now) {
		res, err := coll.ReplaceOne(ctx, bson.M{"_id": doc.ID, "expiresAt": doc.ExpiresAt}, toMongoRecord(record))
		if err != nil {
			return Reservation{}, pmongo.WrapError("mongo.idempotency.reserve", err)
		}
		if res.MatchedCount == 1 {
			return Reservation{State: ReservationStateNew, Record: record}, nil
		}
		return Reservation{State: ReservationStatePending, Record: existing}, nil
	}
	if existing.Fingerprint != fingerprint {
		return Reservation{}, ErrFingerprintMismatch
	}
	if existing.Status == StatusCompleted {
		return Reservation{State: ReservationStateCompleted, Record: existing}, nil
	}
	return Reservation{State: ReservationStatePending, Record: existing}, nil
}

// SaveResponse implements Store.
func (s *MongoStore) SaveResponse(ctx context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	coll, err := s.provider.Collection(ctx, mongoCollection)
	if err != nil {
		return err
	}
	var existing Record
	var doc mongoRecord
	err = coll.FindOne(ctx, bson.M{"_id": documentID(key)}).Decode(&doc)
	switch {
	case err == nil:
		existing = doc.record()
		if existing.Fingerprint != fingerprint {
			return ErrFingerprintMismatch
		}
	case !errors.Is(err, mongo.ErrNoDocuments):
		return pmongo.WrapError("mongo.idempotency.save", err)
	}

	record := completedRecord(existing, key, fingerprint, resp, now.UTC(), ttl)
	_, err = coll.ReplaceOne(ctx, bson.M{"_id": documentID(key)}, toMongoRecord(record), options.Replace().SetUpsert(true))
	return pmongo.WrapError("mongo.idempotency.save", err)
}

// Release implements Store.
func (s *MongoStore) Release(ctx context.Context, key string) error {
	coll, err := s.provider.Collection(ctx, mongoCollection)
	if err != nil {
		return err
	}
	_, err = coll.DeleteOne(ctx, bson.M{"_id": documentID(key)})
	return pmongo.WrapError("mongo.idempotency.release", err)
}

// CleanupExpired implements Store.
func (s *MongoStore) CleanupExpired(ctx context.Context, now time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}
	coll, err := s.provider.Collection(ctx, mongoCollection)
	if err != nil {
		return 0, err
	}
	cur, err := coll.Find(ctx, bson.M{"expiresAt": bson.M{"$lte": now.UTC()}},
		options.Find().SetLimit(int64(limit)).SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return 0, pmongo.WrapError("mongo.idempotency.cleanup", err)
	}
	var ids []struct {
		ID string `bson:"_id"`
	}
	if err := cur.All(ctx, &ids); err != nil {
		return 0, pmongo.WrapError("mongo.idempotency.cleanup", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}
	in := make(bson.A, 0, len(ids))
	for _, id := range ids {
		in = append(in, id.ID)
	}
	res, err := coll.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": in}})
	if err != nil {
		return 0, pmongo.WrapError("mongo.idempotency.cleanup", err)
	}
	return int(res.DeletedCount), nil
}
