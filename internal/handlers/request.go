package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/picklepantry/api/internal/platform/auth"
	"github.com/picklepantry/api/internal/platform/httpx"
	"github.com/picklepantry/api/internal/platform/pagination"
	"github.com/picklepantry/api/internal/services"
)

const defaultMaxBodyBytes int64 = 64 * 1024

// Middleware is the net/http middleware shape used by chi.
type Middleware = func(http.Handler) http.Handler

// HandlerOption customises shared handler behaviour.
type HandlerOption func(*handlerConfig)

type handlerConfig struct {
	idempotency  Middleware
	maxBodyBytes int64
	clock        func() time.Time
	otpLimit     int
	otpWindow    time.Duration
}

func newHandlerConfig(opts []HandlerOption) handlerConfig {
	cfg := handlerConfig{maxBodyBytes: defaultMaxBodyBytes, clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// WithIdempotency runs mw on mutating routes after authentication, so keys are scoped to
// the caller.
func WithIdempotency(mw Middleware) HandlerOption {
	return func(cfg *handlerConfig) {
		cfg.idempotency = mw
	}
}

// WithMaxBodyBytes caps request bodies.
func WithMaxBodyBytes(limit int64) HandlerOption {
	return func(cfg *handlerConfig) {
		if limit > 0 {
			cfg.maxBodyBytes = limit
		}
	}
}

// WithHandlerClock overrides the clock used for response timestamps.
func WithHandlerClock(clock func() time.Time) HandlerOption {
	return func(cfg *handlerConfig) {
		if clock != nil {
			cfg.clock = clock
		}
	}
}

// WithOTPRateLimit caps delivery code submissions per user and order within window.
func WithOTPRateLimit(limit int, window time.Duration) HandlerOption {
	return func(cfg *handlerConfig) {
		cfg.otpLimit = limit
		cfg.otpWindow = window
	}
}

// guarded returns a router that authenticates with roles and, for mutating routes, applies
// the idempotency middleware.
func guarded(r chi.Router, authn *auth.Authenticator, cfg handlerConfig, mutating bool, roles ...string) chi.Router {
	var chain []Middleware
	if authn != nil {
		chain = append(chain, authn.RequireAuth(roles...))
	}
	if mutating && cfg.idempotency != nil {
		chain = append(chain, cfg.idempotency)
	}
	if len(chain) == 0 {
		return r
	}
	return r.With(chain...)
}

func requireIdentity(ctx context.Context, w http.ResponseWriter) (*auth.Identity, bool) {
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return nil, false
	}
	return identity, true
}

func requireStaff(ctx context.Context, w http.ResponseWriter) (*auth.Identity, bool) {
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return nil, false
	}
	if !identity.IsStaff() {
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_role", "identity does not have required role", http.StatusForbidden))
		return nil, false
	}
	return identity, true
}

func decodeBody(ctx context.Context, w http.ResponseWriter, r *http.Request, limit int64, dst any) bool {
	if err := httpx.DecodeJSON(r, limit, dst); err != nil {
		if errors.Is(err, httpx.ErrBodyTooLarge) {
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
			return false
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return false
	}
	return true
}

func parsePage(ctx context.Context, w http.ResponseWriter, r *http.Request) (services.Pagination, bool) {
	params, err := pagination.FromRequest(r, pagination.Options{})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return services.Pagination{}, false
	}
	return services.Pagination{PageSize: params.PageSize, PageToken: params.PageToken}, true
}

// requestLocale negotiates the locale from the identity claim, then Accept-Language.
func requestLocale(r *http.Request, identity *auth.Identity) string {
	var claim string
	if identity != nil {
		claim = identity.Locale
	}
	return services.NegotiateLocale(claim, r.Header.Get("Accept-Language"))
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	httpx.WriteJSON(w, status, payload)
}

func serviceUnavailable(ctx context.Context, w http.ResponseWriter, name string) {
	httpx.WriteError(ctx, w, httpx.NewError(name+"_service_unavailable", name+" service unavailable", http.StatusServiceUnavailable))
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil || t.IsZero() {
		return nil
	}
	value := formatTime(*t)
	return &value
}
