package idempotency

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	firestoreCollection  = "idempotencyKeys"
	firestoreMaxAttempts = 5
)

// FirestoreStore keeps records in a Firestore collection, one document per key.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
}

// NewFirestoreStore constructs a Firestore-backed store.
func NewFirestoreStore(client *firestore.Client) *FirestoreStore {
	return &FirestoreStore{client: client, collection: firestoreCollection}
}

func (s *FirestoreStore) doc(key string) *firestore.DocumentRef {
	return s.client.Collection(s.collection).Doc(documentID(key))
}

// Reserve implements Store inside a transaction so concurrent first requests see one winner.
func (s *FirestoreStore) Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now = now.UTC()
	ref := s.doc(key)

	var result Reservation
	err := s.client.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil && status.Code(err) != codes.NotFound {
			return err
		}
		if err == nil {
			var doc firestoreRecord
			if err := snap.DataTo(&doc); err != nil {
				return err
			}
			existing := doc.record()
			if !existing.expired(now) {
				if existing.Fingerprint != fingerprint {
					return ErrFingerprintMismatch
				}
				state := ReservationStatePending
				if existing.Status == StatusCompleted {
					state = ReservationStateCompleted
				}
				result = Reservation{State: state, Record: existing}
				return nil
			}
		}

		record := pendingRecord(key, fingerprint, now, ttl)
		result = Reservation{State: ReservationStateNew, Record: record}
		return tx.Set(ref, toFirestoreRecord(record))
	}, firestore.MaxAttempts(firestoreMaxAttempts))
	return result, err
}

// SaveResponse implements Store.
func (s *FirestoreStore) SaveResponse(ctx context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	ref := s.doc(key)
	return s.client.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		var existing Record
		snap, err := tx.Get(ref)
		switch {
		case err == nil:
			var doc firestoreRecord
			if err := snap.DataTo(&doc); err != nil {
				return err
			}
			existing = doc.record()
			if existing.Fingerprint != fingerprint {
				return ErrFingerprintMismatch
			}
		case status.Code(err) != codes.NotFound:
			return err
		}
		return tx.Set(ref, toFirestoreRecord(completedRecord(existing, key, fingerprint, resp, now.UTC(), ttl)))
	}, firestore.MaxAttempts(firestoreMaxAttempts))
}

// Release implements Store.
func (s *FirestoreStore) Release(ctx context.Context, key string) error {
	_, err := s.doc(key).Delete(ctx)
	if status.Code(err) == codes.NotFound {
		return nil
	}
	return err
}

// CleanupExpired deletes up to limit expired records in one batch.
func (s *FirestoreStore) CleanupExpired(ctx context.Context, now time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}
	docs, err := s.client.Collection(s.collection).Where("expiresAt", "<=", now.UTC()).Limit(limit).Documents(ctx).GetAll()
	if err != nil || len(docs) == 0 {
		return 0, err
	}
	batch := s.client.Batch()
	for _, doc := range docs {
		batch.Delete(doc.Ref)
	}
	if _, err := batch.Commit(ctx); err != nil {
		return 0, err
	}
	return len(docs), nil
}

type firestoreRecord struct {
	Key             string              `firestore:"key"`
	Fingerprint     string              `firestore:"fingerprint"`
	Status          string              `firestore:"status"`
	ResponseStatus  int                 `firestore:"responseStatus"`
	ResponseHeaders map[string][]string `firestore:"responseHeaders"`
	ResponseBody    []byte              `firestore:"responseBody"`
	CreatedAt       time.Time           `firestore:"createdAt"`
	UpdatedAt       time.Time           `firestore:"updatedAt"`
	ExpiresAt       time.Time           `firestore:"expiresAt"`
}

func toFirestoreRecord(r Record) firestoreRecord {
	return firestoreRecord{
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

func (d firestoreRecord) record() Record {
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
