// Package auth authenticates storefront users (Firebase ID tokens), courier webhooks (HMAC)
// and internal jobs (Google-signed OIDC tokens).
package auth

import (
	"context"
	"net/http"
	"time"

	"github.com/picklepantry/api/internal/platform/httpx"
)

// Logger is the Printf contract used for verification diagnostics.
type Logger interface {
	Printf(format string, args ...any)
}

// MetricsRecorder records verification outcomes.
type MetricsRecorder interface {
	RecordVerification(ctx context.Context, kind string, success bool, reason string, duration time.Duration)
}

// MetricsRecorderFunc adapts a function to MetricsRecorder.
type MetricsRecorderFunc func(context.Context, string, bool, string, time.Duration)

// RecordVerification implements MetricsRecorder.
func (f MetricsRecorderFunc) RecordVerification(ctx context.Context, kind string, success bool, reason string, d time.Duration) {
	if f != nil {
		f(ctx, kind, success, reason, d)
	}
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

func deny(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	httpx.WriteError(r.Context(), w, httpx.NewError(code, message, status))
}
