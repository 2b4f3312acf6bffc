package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/picklepantry/api/internal/domain"
	"github.com/picklepantry/api/internal/services"
)

func TestNewRouter_DefaultMounts(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	healthHandlers := NewHealthHandlers(
		WithHealthSystemService(&stubSystemService{
			report: services.SystemHealthReport{
				Status:      domain.HealthStatusOK,
				Uptime:      5 * time.Second,
				GeneratedAt: now,
				Checks: map[string]domain.SystemHealthCheck{
					"orders": {Status: domain.HealthStatusOK},
				},
			},
		}),
		WithHealthClock(func() time.Time { return now }),
	)

	router := NewRouter(WithHealthHandlers(healthHandlers))

	t.Run("healthz", func(t *testing.T) {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
			t.Fatalf("expected content-type application/json, got %s", ct)
		}
	})

	t.Run("readyz", func(t *testing.T) {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
	})

	for _, path := range []string{"/api/v1/orders", "/api/v1/payment/create-order", "/api/v1/products/P1", "/api/v1/cart"} {
		t.Run("not implemented "+path, func(t *testing.T) {
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))

			if rr.Code != http.StatusNotImplemented {
				t.Fatalf("expected status 501, got %d", rr.Code)
			}
			var body map[string]any
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
				t.Fatalf("expected JSON body: %v", err)
			}
			if body["error"] != "not_implemented" {
				t.Fatalf("expected not_implemented error, got %v", body["error"])
			}
		})
	}
}

func TestNewRouter_WithRegistrars(t *testing.T) {
	registrar := func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})
	}

	router := NewRouter(WithProductRoutes(registrar))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/products", nil))

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rr.Code)
	}
}

func TestNewRouter_NotFound(t *testing.T) {
	router := NewRouter()

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/does/not/exist", nil))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("expected JSON body: %v", err)
	}
	if body["error"] != "route_not_found" {
		t.Fatalf("expected route_not_found error, got %v", body["error"])
	}
	if body["request_id"] == nil {
		t.Fatalf("expected request id in error envelope")
	}
}

func TestNewRouter_GroupMiddleware(t *testing.T) {
	header := func(value string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("X-Test-Middleware", value)
				next.ServeHTTP(w, r)
			})
		}
	}

	router := NewRouter(
		WithWebhookMiddlewares(header("webhooks")),
		WithInternalMiddlewares(header("internal")),
	)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/deliveries", nil))
	if rr.Header().Get("X-Test-Middleware") != "webhooks" {
		t.Fatalf("expected webhook middleware to set header")
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/internal/orders/o/ledger:apply", nil))
	if rr.Header().Get("X-Test-Middleware") != "internal" {
		t.Fatalf("expected internal middleware to set header")
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil))
	if rr.Header().Get("X-Test-Middleware") != "" {
		t.Fatalf("group middleware leaked onto /orders")
	}
}
