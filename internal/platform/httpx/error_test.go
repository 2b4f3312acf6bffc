package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/picklepantry/api/internal/platform/requestctx"
)

func TestWriteErrorEnvelope(t *testing.T) {
	ctx := requestctx.WithTrace(context.Background(), requestctx.TraceInfo{TraceID: "abc123"})
	rec := httptest.NewRecorder()

	WriteError(ctx, rec, NewError("illegal_transition", "order is delivered\n", http.StatusBadRequest).
		WithDetails(map[string]any{"order_id": "ord_1"}))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "illegal_transition", body["error"])
	assert.Equal(t, "order is delivered", body["message"])
	assert.Equal(t, "abc123", body["trace_id"])
	assert.Equal(t, "ord_1", body["order_id"])
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Status string `json:"status"`
	}

	t.Run("ok", func(t *testing.T) {
		var dst payload
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"status":"confirmed"}`))
		require.NoError(t, DecodeJSON(r, 1024, &dst))
		assert.Equal(t, "confirmed", dst.Status)
	})

	t.Run("unknown field", func(t *testing.T) {
		var dst payload
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"state":"x"}`))
		assert.Error(t, DecodeJSON(r, 1024, &dst))
	})

	t.Run("too large", func(t *testing.T) {
		var dst payload
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"status":"`+strings.Repeat("a", 64)+`"}`))
		assert.True(t, errors.Is(DecodeJSON(r, 16, &dst), ErrBodyTooLarge))
	})

	t.Run("empty", func(t *testing.T) {
		var dst payload
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("  "))
		assert.Error(t, DecodeJSON(r, 1024, &dst))
	})
}
