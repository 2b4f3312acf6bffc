// Package httpx holds the JSON envelope helpers shared by handlers and middleware.
package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/picklepantry/api/internal/platform/requestctx"
)

// Error is the canonical JSON error envelope returned by the API.
type Error struct {
	Code      string
	Message   string
	Status    int
	RequestID string
	TraceID   string
	Details   map[string]any
}

// NewError constructs an Error. A zero status becomes 500.
func NewError(code, message string, status int) Error {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return Error{
		Code:    clip(code, 80),
		Message: clip(message, 512),
		Status:  status,
	}
}

// WithDetails attaches additional JSON-serialisable metadata.
func (e Error) WithDetails(details map[string]any) Error {
	if len(details) == 0 {
		return e
	}
	e.Details = make(map[string]any, len(details))
	for k, v := range details {
		e.Details[k] = v
	}
	return e
}

// WriteError writes err as JSON, filling request and trace ids from ctx.
func WriteError(ctx context.Context, w http.ResponseWriter, err Error) {
	status := err.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}
	requestID := err.RequestID
	if requestID == "" {
		requestID = clip(middleware.GetReqID(ctx), 80)
	}
	traceID := err.TraceID
	if traceID == "" {
		traceID = clip(requestctx.TraceID(ctx), 64)
	}

	payload := map[string]any{
		"error":   err.Code,
		"message": err.Message,
		"status":  status,
	}
	if requestID != "" {
		payload["request_id"] = requestID
	}
	if traceID != "" {
		payload["trace_id"] = traceID
	}
	for k, v := range err.Details {
		payload[k] = v
	}
	WriteJSON(w, status, payload)
}

// WriteJSON encodes payload with the given status.
func WriteJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

// ErrBodyTooLarge is returned by DecodeJSON when the body exceeds the limit.
var ErrBodyTooLarge = errors.New("request body too large")

// DecodeJSON decodes a single JSON object from the request body into dst, rejecting
// unknown fields and bodies larger than limit bytes.
func DecodeJSON(r *http.Request, limit int64, dst any) error {
	if r.Body == nil {
		return errors.New("request body is required")
	}
	body := io.LimitReader(r.Body, limit+1)
	raw, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if int64(len(raw)) > limit {
		return ErrBodyTooLarge
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return errors.New("request body is required")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid json: %w", err)
	}
	if dec.More() {
		return errors.New("invalid json: trailing data")
	}
	return nil
}

func clip(value string, limit int) string {
	value = strings.NewReplacer("\n", " ", "\r", " ").Replace(value)
	value = strings.TrimSpace(value)
	if len(value) > limit {
		value = value[:limit]
	}
	return value
}
