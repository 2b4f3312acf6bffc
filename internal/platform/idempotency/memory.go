package idempotency

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps records in process memory. Used by the memory storage backend and tests.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
}

// NewMemoryStore constructs an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

// Reserve implements Store.
func (s *MemoryStore) Reserve(_ context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now = now.UTC()
	id := documentID(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[id]
	if !ok || record.expired(now) {
		record = pendingRecord(key, fingerprint, now, ttl)
		s.records[id] = record
		return Reservation{State: ReservationStateNew, Record: record}, nil
	}
	if record.Fingerprint != fingerprint {
		return Reservation{}, ErrFingerprintMismatch
	}
	if record.Status == StatusCompleted {
		return Reservation{State: ReservationStateCompleted, Record: record}, nil
	}
	return Reservation{State: ReservationStatePending, Record: record}, nil
}

// SaveResponse implements Store.
func (s *MemoryStore) SaveResponse(_ context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	id := documentID(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.records[id]
	if ok && existing.Fingerprint != fingerprint {
		return ErrFingerprintMismatch
	}
	s.records[id] = completedRecord(existing, key, fingerprint, resp, now.UTC(), ttl)
	return nil
}

// Release implements Store.
func (s *MemoryStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, documentID(key))
	return nil
}

// CleanupExpired implements Store.
func (s *MemoryStore) CleanupExpired(_ context.Context, now time.Time, limit int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, record := range s.records {
		if limit > 0 && removed >= limit {
			break
		}
		if record.expired(now.UTC()) {
			delete(s.records, id)
			removed++
		}
	}
	return removed, nil
}
