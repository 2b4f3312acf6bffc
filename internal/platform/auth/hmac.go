package auth

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	defaultSignatureHeader = "X-Signature"
	defaultTimestampHeader = "X-Signature-Timestamp"
	defaultNonceHeader     = "X-Signature-Nonce"

	defaultClockSkew = 5 * time.Minute
	defaultNonceTTL  = 10 * time.Minute
)

// SecretProvider resolves shared webhook secrets by name.
type SecretProvider interface {
	GetSecret(ctx context.Context, name string) (string, error)
}

// SecretProviderFunc adapts a function to SecretProvider.
type SecretProviderFunc func(context.Context, string) (string, error)

// GetSecret implements SecretProvider.
func (f SecretProviderFunc) GetSecret(ctx context.Context, name string) (string, error) {
	if f == nil {
		return "", errors.New("auth: secret provider not configured")
	}
	return f(ctx, name)
}

// StaticSecrets serves secrets from a map loaded at startup.
func StaticSecrets(secrets map[string]string) SecretProvider {
	return SecretProviderFunc(func(_ context.Context, name string) (string, error) {
		value, ok := secrets[name]
		if !ok || value == "" {
			return "", fmt.Errorf("auth: secret %q not configured", name)
		}
		return value, nil
	})
}

// NonceStore remembers nonces until they expire.
type NonceStore interface {
	// UseNonce returns false when the nonce was already recorded for scope.
	UseNonce(ctx context.Context, scope, nonce string, expiry time.Time) (bool, error)
}

// InMemoryNonceStore is a process-local NonceStore.
type InMemoryNonceStore struct {
	mu     sync.Mutex
	nonces map[string]time.Time
	now    func() time.Time
}

// NewInMemoryNonceStore constructs an empty store.
func NewInMemoryNonceStore() *InMemoryNonceStore {
	return &InMemoryNonceStore{nonces: make(map[string]time.Time), now: time.Now}
}

// UseNonce implements NonceStore. Expired entries are swept on every call.
func (s *InMemoryNonceStore) UseNonce(_ context.Context, scope, nonce string, expiry time.Time) (bool, error) {
	if scope == "" || nonce == "" {
		return false, errors.New("auth: scope and nonce are required")
	}
	key := scope + "::" + nonce

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for k, exp := range s.nonces {
		if exp.Before(now) {
			delete(s.nonces, k)
		}
	}
	if _, seen := s.nonces[key]; seen {
		return false, nil
	}
	s.nonces[key] = expiry
	return true, nil
}

// HMACValidator verifies signed courier webhooks. The signed message is
// METHOD\nPATH\nTIMESTAMP\nNONCE\nhex(sha256(body)).
type HMACValidator struct {
	provider SecretProvider
	nonces   NonceStore
	logger   Logger
	metrics  MetricsRecorder
	now      func() time.Time

	signatureHeader string
	timestampHeader string
	nonceHeader     string
	clockSkew       time.Duration
	nonceTTL        time.Duration
}

// HMACOption customises the validator.
type HMACOption func(*HMACValidator)

// NewHMACValidator builds a validator.
func NewHMACValidator(provider SecretProvider, nonces NonceStore, opts ...HMACOption) *HMACValidator {
	v := &HMACValidator{
		provider:        provider,
		nonces:          nonces,
		logger:          nopLogger{},
		now:             time.Now,
		signatureHeader: defaultSignatureHeader,
		timestampHeader: defaultTimestampHeader,
		nonceHeader:     defaultNonceHeader,
		clockSkew:       defaultClockSkew,
		nonceTTL:        defaultNonceTTL,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	return v
}

// WithHMACLogger overrides the validator logger.
func WithHMACLogger(logger Logger) HMACOption {
	return func(v *HMACValidator) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// WithHMACMetrics sets the metrics recorder.
func WithHMACMetrics(metrics MetricsRecorder) HMACOption {
	return func(v *HMACValidator) { v.metrics = metrics }
}

// WithHMACClock injects a clock.
func WithHMACClock(now func() time.Time) HMACOption {
	return func(v *HMACValidator) {
		if now != nil {
			v.now = now
		}
	}
}

// WithHMACHeaders overrides the header names; empty values keep the defaults.
func WithHMACHeaders(signature, timestamp, nonce string) HMACOption {
	return func(v *HMACValidator) {
		if signature != "" {
			v.signatureHeader = signature
		}
		if timestamp != "" {
			v.timestampHeader = timestamp
		}
		if nonce != "" {
			v.nonceHeader = nonce
		}
	}
}

// WithHMACWindow sets the accepted clock skew and nonce retention.
func WithHMACWindow(skew, nonceTTL time.Duration) HMACOption {
	return func(v *HMACValidator) {
		if skew > 0 {
			v.clockSkew = skew
		}
		if nonceTTL > 0 {
			v.nonceTTL = nonceTTL
		}
	}
}

type webhookSourceKey struct{}

// WebhookSourceFromContext returns the secret name a request was verified against.
func WebhookSourceFromContext(ctx context.Context) (string, bool) {
	source, ok := ctx.Value(webhookSourceKey{}).(string)
	return source, ok && source != ""
}

// RequireHMAC rejects requests whose signature does not match the named secret.
func (v *HMACValidator) RequireHMAC(secretName string) func(http.Handler) http.Handler {
	scope := strings.TrimSpace(secretName)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := v.now()
			ctx := r.Context()
			fail := func(status int, reason, code, message string) {
				v.record(ctx, false, reason, start)
				deny(w, r, status, code, message)
			}

			if scope == "" || v.provider == nil {
				fail(http.StatusServiceUnavailable, "secret_not_configured", "verification_unavailable", "hmac secret not configured")
				return
			}
			secret, err := v.provider.GetSecret(ctx, scope)
			if err != nil || secret == "" {
				v.logger.Printf("auth: hmac secret lookup failed: %v", err)
				fail(http.StatusServiceUnavailable, "secret_unavailable", "verification_unavailable", "hmac secret unavailable")
				return
			}

			signatureValue := strings.TrimSpace(r.Header.Get(v.signatureHeader))
			timestampValue := strings.TrimSpace(r.Header.Get(v.timestampHeader))
			nonce := strings.TrimSpace(r.Header.Get(v.nonceHeader))
			switch {
			case signatureValue == "":
				fail(http.StatusUnauthorized, "signature_missing", "signature_missing", "signature header missing")
				return
			case timestampValue == "":
				fail(http.StatusUnauthorized, "timestamp_missing", "timestamp_missing", "signature timestamp missing")
				return
			case nonce == "":
				fail(http.StatusUnauthorized, "nonce_missing", "nonce_missing", "signature nonce missing")
				return
			}

			timestamp, err := parseSignatureTimestamp(timestampValue)
			if err != nil {
				fail(http.StatusUnauthorized, "timestamp_invalid", "timestamp_invalid", "signature timestamp invalid")
				return
			}
			if skew := v.now().Sub(timestamp); skew > v.clockSkew || skew < -v.clockSkew {
				fail(http.StatusUnauthorized, "timestamp_skew", "timestamp_skew", "signature timestamp outside allowed window")
				return
			}

			body, err := readAndRestoreBody(r)
			if err != nil {
				fail(http.StatusBadRequest, "body_unreadable", "invalid_body", "unable to read request body")
				return
			}
			signature, err := decodeSignature(signatureValue)
			if err != nil {
				fail(http.StatusUnauthorized, "signature_invalid", "signature_invalid", "signature encoding invalid")
				return
			}
			expected := ComputeSignature([]byte(secret), CanonicalMessage(r.Method, r.URL.EscapedPath(), timestampValue, nonce, body))
			if !hmac.Equal(signature, expected) {
				fail(http.StatusUnauthorized, "signature_mismatch", "signature_mismatch", "signature verification failed")
				return
			}

			if v.nonces == nil {
				fail(http.StatusServiceUnavailable, "nonce_store_unavailable", "verification_unavailable", "nonce store unavailable")
				return
			}
			stored, err := v.nonces.UseNonce(ctx, scope, nonce, v.now().Add(v.nonceTTL))
			if err != nil {
				v.logger.Printf("auth: nonce store error: %v", err)
				fail(http.StatusServiceUnavailable, "nonce_store_error", "verification_unavailable", "nonce storage error")
				return
			}
			if !stored {
				fail(http.StatusUnauthorized, "nonce_replay", "nonce_replay", "duplicate signature nonce")
				return
			}

			v.record(ctx, true, "ok", start)
			next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, webhookSourceKey{}, scope)))
		})
	}
}

func (v *HMACValidator) record(ctx context.Context, success bool, reason string, start time.Time) {
	if v.metrics != nil {
		v.metrics.RecordVerification(ctx, "hmac", success, reason, v.now().Sub(start))
	}
}

// CanonicalMessage builds the byte string covered by a webhook signature.
func CanonicalMessage(method, path, timestamp, nonce string, body []byte) []byte {
	if path == "" {
		path = "/"
	}
	sum := sha256.Sum256(body)
	return []byte(strings.Join([]string{strings.ToUpper(method), path, timestamp, nonce, hex.EncodeToString(sum[:])}, "\n"))
}

// ComputeSignature returns HMAC-SHA256 of message under secret.
func ComputeSignature(secret, message []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	_, _ = mac.Write(message)
	return mac.Sum(nil)
}

func readAndRestoreBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	defer r.Body.Close()
	buf, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	r.Body = io.NopCloser(bytes.NewReader(buf))
	return buf, nil
}

func decodeSignature(value string) ([]byte, error) {
	if decoded, err := hex.DecodeString(value); err == nil {
		return decoded, nil
	}
	if decoded, err := base64.StdEncoding.DecodeString(value); err == nil {
		return decoded, nil
	}
	return nil, errors.New("auth: signature must be hex or base64 encoded")
}

func parseSignatureTimestamp(value string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts.UTC(), nil
	}
	if seconds, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.Unix(seconds, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("auth: unable to parse timestamp %q", value)
}
