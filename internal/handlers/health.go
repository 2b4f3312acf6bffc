package handlers

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	domain "github.com/picklepantry/api/internal/domain"
	"github.com/picklepantry/api/internal/platform/requestctx"
	"github.com/picklepantry/api/internal/services"
)

// HealthHandlers serves liveness and readiness probes.
type HealthHandlers struct {
	system services.SystemService
	build  services.BuildInfo
	clock  func() time.Time
}

// HealthOption customises HealthHandlers.
type HealthOption func(*HealthHandlers)

// NewHealthHandlers constructs probe handlers. Readyz degrades to liveness when no system
// service is configured.
func NewHealthHandlers(opts ...HealthOption) *HealthHandlers {
	h := &HealthHandlers{clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	if h.build.StartedAt.IsZero() {
		h.build.StartedAt = h.clock()
	}
	return h
}

// WithHealthSystemService wires the service collecting dependency checks.
func WithHealthSystemService(svc services.SystemService) HealthOption {
	return func(h *HealthHandlers) {
		h.system = svc
	}
}

// WithHealthBuildInfo sets version metadata reported by the probes.
func WithHealthBuildInfo(info services.BuildInfo) HealthOption {
	return func(h *HealthHandlers) {
		h.build = info
	}
}

// WithHealthClock overrides the clock.
func WithHealthClock(clock func() time.Time) HealthOption {
	return func(h *HealthHandlers) {
		if clock != nil {
			h.clock = clock
		}
	}
}

type healthzResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version,omitempty"`
	Environment string `json:"environment,omitempty"`
	Uptime      string `json:"uptime"`
	Timestamp   string `json:"timestamp"`
}

type healthCheckPayload struct {
	Status    string `json:"status"`
	Detail    string `json:"detail,omitempty"`
	Error     string `json:"error,omitempty"`
	LatencyMS int64  `json:"latencyMs"`
	CheckedAt string `json:"checkedAt,omitempty"`
}

type readyzResponse struct {
	Status      string                        `json:"status"`
	Version     string                        `json:"version,omitempty"`
	Environment string                        `json:"environment,omitempty"`
	Uptime      string                        `json:"uptime,omitempty"`
	GeneratedAt string                        `json:"generatedAt"`
	Checks      map[string]healthCheckPayload `json:"checks"`
	Details     []string                      `json:"details,omitempty"`
}

// Healthz reports process liveness without touching dependencies.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	now := h.clock()
	writeJSONResponse(w, http.StatusOK, healthzResponse{
		Status:      domain.HealthStatusOK,
		Version:     h.build.Version,
		Environment: h.build.Environment,
		Uptime:      now.Sub(h.build.StartedAt).Truncate(time.Second).String(),
		Timestamp:   now.UTC().Format(time.RFC3339),
	})
}

// Readyz reports dependency health. Any status other than ok answers 503.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	if h.system == nil {
		h.Healthz(w, r)
		return
	}
	ctx := r.Context()
	report, err := h.system.HealthReport(ctx)
	if err != nil {
		requestctx.Logger(ctx).Warn("health report failed", zap.Error(err))
		writeJSONResponse(w, http.StatusServiceUnavailable, readyzResponse{
			Status:      domain.HealthStatusError,
			GeneratedAt: formatTime(h.clock()),
			Checks:      map[string]healthCheckPayload{},
			Details:     []string{err.Error()},
		})
		return
	}

	resp := readyzResponse{
		Status:      report.Status,
		Version:     report.Version,
		Environment: report.Environment,
		GeneratedAt: formatTime(report.GeneratedAt),
		Checks:      make(map[string]healthCheckPayload, len(report.Checks)),
	}
	if report.Uptime > 0 {
		resp.Uptime = report.Uptime.Truncate(time.Second).String()
	}
	names := make([]string, 0, len(report.Checks))
	for name, check := range report.Checks {
		names = append(names, name)
		resp.Checks[name] = healthCheckPayload{
			Status:    check.Status,
			Detail:    check.Detail,
			Error:     check.Error,
			LatencyMS: check.Latency.Milliseconds(),
			CheckedAt: formatTime(check.CheckedAt),
		}
	}
	sort.Strings(names)
	for _, name := range names {
		check := report.Checks[name]
		if check.Status == domain.HealthStatusOK || check.Status == "" {
			continue
		}
		reason := strings.TrimSpace(check.Error)
		if reason == "" {
			reason = check.Status
		}
		resp.Details = append(resp.Details, fmt.Sprintf("%s: %s", name, reason))
	}

	status := http.StatusOK
	if report.Status != domain.HealthStatusOK {
		status = http.StatusServiceUnavailable
	}
	writeJSONResponse(w, status, resp)
}
