package auth

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

type recordingMetrics struct {
	mu      sync.Mutex
	reasons []string
}

func (m *recordingMetrics) RecordVerification(_ context.Context, _ string, _ bool, reason string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reasons = append(m.reasons, reason)
}

func (m *recordingMetrics) last() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.reasons) == 0 {
		return ""
	}
	return m.reasons[len(m.reasons)-1]
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body %q: %v", rr.Body.String(), err)
	}
	return body.Error
}
