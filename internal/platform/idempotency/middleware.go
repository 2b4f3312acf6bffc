package idempotency

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/picklepantry/api/internal/platform/auth"
	"github.com/picklepantry/api/internal/platform/httpx"
)

const (
	defaultHeaderName = "Idempotency-Key"
	replayHeaderName  = "X-Idempotent-Replay"
)

// Logger is the Printf contract used for persistence failures.
type Logger interface {
	Printf(format string, args ...any)
}

type middlewareConfig struct {
	headerName  string
	ttl         time.Duration
	requireKey  bool
	clock       func() time.Time
	logger      Logger
	methodGuard map[string]struct{}
}

// MiddlewareOption customises Middleware.
type MiddlewareOption func(*middlewareConfig)

// WithHeader overrides the header carrying the key.
func WithHeader(name string) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if name = strings.TrimSpace(name); name != "" {
			cfg.headerName = name
		}
	}
}

// WithTTL sets how long responses are kept for replay.
func WithTTL(ttl time.Duration) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if ttl > 0 {
			cfg.ttl = ttl
		}
	}
}

// WithRequiredKey rejects guarded requests that carry no key.
func WithRequiredKey() MiddlewareOption {
	return func(cfg *middlewareConfig) { cfg.requireKey = true }
}

// WithLogger injects a logger.
func WithLogger(logger Logger) MiddlewareOption {
	return func(cfg *middlewareConfig) { cfg.logger = logger }
}

// WithClock overrides the time source.
func WithClock(clock func() time.Time) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if clock != nil {
			cfg.clock = clock
		}
	}
}

// Middleware guards POST, PUT, PATCH and DELETE requests. A request with a key runs the
// handler once; retries with the same key and body replay the stored response, and a retry
// with a different body is rejected with 409. Keys are scoped to the caller.
func Middleware(store Store, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	if store == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	cfg := middlewareConfig{
		headerName: defaultHeaderName,
		ttl:        DefaultTTL,
		clock:      time.Now,
		methodGuard: map[string]struct{}{
			http.MethodPost:   {},
			http.MethodPut:    {},
			http.MethodPatch:  {},
			http.MethodDelete: {},
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := cfg.methodGuard[r.Method]; !ok {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			key := strings.TrimSpace(r.Header.Get(cfg.headerName))
			if key == "" {
				if cfg.requireKey {
					httpx.WriteError(ctx, w, httpx.NewError("idempotency_key_required", "missing "+cfg.headerName+" header", http.StatusBadRequest))
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			body, err := readAndReplayBody(r)
			if err != nil {
				httpx.WriteError(ctx, w, httpx.NewError("invalid_body", "unable to read request body", http.StatusBadRequest))
				return
			}

			requester := requesterID(ctx)
			scoped := key + "|" + requester
			fingerprint := requestFingerprint(r, body, requester)

			reservation, err := store.Reserve(ctx, scoped, fingerprint, cfg.clock().UTC(), cfg.ttl)
			if err != nil {
				if errors.Is(err, ErrFingerprintMismatch) {
					httpx.WriteError(ctx, w, httpx.NewError("idempotency_key_conflict", "idempotency key already used for a different request", http.StatusConflict))
					return
				}
				cfg.printf("idempotency: reserve failed: %v", err)
				httpx.WriteError(ctx, w, httpx.NewError("idempotency_store_error", "unable to process idempotency key", http.StatusInternalServerError))
				return
			}
			switch reservation.State {
			case ReservationStateCompleted:
				replay(w, reservation.Record)
				return
			case ReservationStatePending:
				httpx.WriteError(ctx, w, httpx.NewError("idempotency_in_progress", "another request is processing this idempotency key", http.StatusConflict))
				return
			}

			recorder := &responseRecorder{header: make(http.Header)}
			next.ServeHTTP(recorder, r)

			// 5xx responses are not stored so the client may retry with the same key.
			if recorder.status() >= http.StatusInternalServerError {
				if err := store.Release(context.WithoutCancel(ctx), scoped); err != nil {
					cfg.printf("idempotency: release failed: %v", err)
				}
			} else {
				resp := Response{Status: recorder.status(), Headers: recorder.header, Body: recorder.body.Bytes()}
				if err := store.SaveResponse(context.WithoutCancel(ctx), scoped, fingerprint, resp, cfg.clock().UTC(), cfg.ttl); err != nil {
					cfg.printf("idempotency: save failed: %v", err)
					_ = store.Release(context.WithoutCancel(ctx), scoped)
				}
			}
			recorder.flush(w)
		})
	}
}

func (cfg middlewareConfig) printf(format string, args ...any) {
	if cfg.logger != nil {
		cfg.logger.Printf(format, args...)
	}
}

func readAndReplayBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	data, err := io.ReadAll(r.Body)
	_ = r.Body.Close()
	if err != nil {
		return nil, err
	}
	r.Body = io.NopCloser(bytes.NewReader(data))
	return data, nil
}

func requestFingerprint(r *http.Request, body []byte, requester string) string {
	parts := []string{strings.ToUpper(r.Method), r.URL.Path, r.URL.RawQuery, requester, sha256Hex(body)}
	return sha256Hex([]byte(strings.Join(parts, "|")))
}

func requesterID(ctx context.Context) string {
	if identity, ok := auth.IdentityFromContext(ctx); ok && identity.UID != "" {
		return identity.UID
	}
	if svc, ok := auth.ServiceIdentityFromContext(ctx); ok && svc.Subject != "" {
		return svc.Subject
	}
	if source, ok := auth.WebhookSourceFromContext(ctx); ok {
		return "webhook:" + source
	}
	return "anonymous"
}

func replay(w http.ResponseWriter, record Record) {
	for name, values := range record.ResponseHeaders {
		w.Header()[name] = append([]string(nil), values...)
	}
	w.Header().Set(replayHeaderName, "true")
	status := record.ResponseStatus
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write(record.ResponseBody)
}

type responseRecorder struct {
	header http.Header
	code   int
	body   bytes.Buffer
}

func (r *responseRecorder) Header() http.Header { return r.header }

func (r *responseRecorder) WriteHeader(status int) {
	if r.code == 0 {
		r.code = status
	}
}

func (r *responseRecorder) Write(data []byte) (int, error) {
	if r.code == 0 {
		r.code = http.StatusOK
	}
	return r.body.Write(data)
}

func (r *responseRecorder) status() int {
	if r.code == 0 {
		return http.StatusOK
	}
	return r.code
}

func (r *responseRecorder) flush(w http.ResponseWriter) {
	for name, values := range r.header {
		w.Header()[name] = values
	}
	w.WriteHeader(r.status())
	_, _ = w.Write(r.body.Bytes())
}
