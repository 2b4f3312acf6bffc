// Package idempotency replays stored responses for retried mutating requests that carry an
// Idempotency-Key header.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"
)

// DefaultTTL is how long a reservation or stored response is kept.
const DefaultTTL = 24 * time.Hour

// Status is the lifecycle state of a record.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
)

// ReservationState is the outcome of Store.Reserve.
type ReservationState int

const (
	// ReservationStateNew means the caller owns the key and should run the handler.
	ReservationStateNew ReservationState = iota
	// ReservationStateCompleted means a stored response should be replayed.
	ReservationStateCompleted
	// ReservationStatePending means another request holds the key.
	ReservationStatePending
)

// Reservation is returned by Store.Reserve.
type Reservation struct {
	State  ReservationState
	Record Record
}

// Record is the persisted state of one key.
type Record struct {
	Key             string
	Fingerprint     string
	Status          Status
	ResponseStatus  int
	ResponseHeaders map[string][]string
	ResponseBody    []byte
	CreatedAt       time.Time
	UpdatedAt       time.Time
	ExpiresAt       time.Time
}

func (r Record) expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && !now.Before(r.ExpiresAt)
}

func pendingRecord(key, fingerprint string, now time.Time, ttl time.Duration) Record {
	return Record{
		Key:         key,
		Fingerprint: fingerprint,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}
}

func completedRecord(existing Record, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) Record {
	record := existing
	record.Key = key
	record.Fingerprint = fingerprint
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.Status = StatusCompleted
	record.ResponseStatus = resp.Status
	record.ResponseHeaders = sanitizeHeaders(resp.Headers)
	record.ResponseBody = nil
	if len(resp.Body) > 0 {
		record.ResponseBody = append([]byte(nil), resp.Body...)
	}
	record.UpdatedAt = now
	record.ExpiresAt = now.Add(ttl)
	return record
}

// Response is the captured handler output.
type Response struct {
	Status  int
	Headers http.Header
	Body    []byte
}

// Store persists reservations and responses.
type Store interface {
	Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error)
	SaveResponse(ctx context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error
	Release(ctx context.Context, key string) error
	CleanupExpired(ctx context.Context, now time.Time, limit int) (int, error)
}

// ErrFingerprintMismatch is returned when a key is reused for a different request.
var ErrFingerprintMismatch = errors.New("idempotency: key reserved for different request fingerprint")

// documentID derives the storage id from the key alone so a reused key with a different
// fingerprint is detected instead of stored alongside.
func documentID(key string) string {
	return sha256Hex([]byte(strings.TrimSpace(key)))
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func sanitizeHeaders(header http.Header) map[string][]string {
	filtered := make(map[string][]string, len(header))
	for name, values := range header {
		canonical := http.CanonicalHeaderKey(name)
		switch canonical {
		case "Content-Length", "Date", "Connection", "Keep-Alive", "Transfer-Encoding", "Trailer", "Upgrade":
			continue
		}
		filtered[canonical] = append([]string(nil), values...)
	}
	if len(filtered) == 0 {
		return nil
	}
	return filtered
}
