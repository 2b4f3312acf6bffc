package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/picklepantry/api/internal/platform/requestctx"
)

func TestParseCloudTrace(t *testing.T) {
	sc, ok := parseCloudTrace("105445aa7843bc8bf206b12000100000/1;o=1")
	if !ok {
		t.Fatal("expected header to parse")
	}
	if sc.TraceID().String() != "105445aa7843bc8bf206b12000100000" {
		t.Fatalf("unexpected trace id %s", sc.TraceID())
	}
	if sc.SpanID().String() != "0000000000000001" || !sc.IsSampled() {
		t.Fatalf("unexpected span %s sampled=%v", sc.SpanID(), sc.IsSampled())
	}

	for _, header := range []string{"", "abc/1", "105445aa7843bc8bf206b12000100000/0", "105445aa7843bc8bf206b12000100000"} {
		if _, ok := parseCloudTrace(header); ok {
			t.Fatalf("expected %q to be rejected", header)
		}
	}
}

func TestTraceMiddlewareStoresTraceInfo(t *testing.T) {
	var got requestctx.TraceInfo
	handler := TraceMiddleware("pantry")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = requestctx.Trace(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
	req.Header.Set(cloudTraceHeader, "105445aa7843bc8bf206b12000100000/7;o=1")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if got.ProjectID != "pantry" {
		t.Fatalf("expected project id, got %+v", got)
	}
	if got.TraceID != "105445aa7843bc8bf206b12000100000" {
		t.Fatalf("expected remote trace id to be continued, got %s", got.TraceID)
	}
}

func TestEventLoggerLevels(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	log := EventLogger(zap.New(core))

	log(context.Background(), "inventory.line.skipped", map[string]any{"order_id": "ord_1", "weight": "1kg"})
	log(context.Background(), "notification.dispatch.failed", map[string]any{"order_id": "ord_1"})
	log(context.Background(), "order.status.updated", nil)

	entries := logs.All()
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].Level != zap.WarnLevel || entries[1].Level != zap.ErrorLevel || entries[2].Level != zap.InfoLevel {
		t.Fatalf("unexpected levels %v %v %v", entries[0].Level, entries[1].Level, entries[2].Level)
	}
	if entries[0].ContextMap()["order_id"] != "ord_1" {
		t.Fatalf("expected order_id field, got %v", entries[0].ContextMap())
	}
}
