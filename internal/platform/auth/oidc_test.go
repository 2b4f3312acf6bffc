package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	jwt "github.com/golang-jwt/jwt/v4"
)

const (
	testAudience = "https://api.picklepantry.test"
	testIssuer   = "https://accounts.google.com"
)

type jwksFixture struct {
	key      *rsa.PrivateKey
	server   *httptest.Server
	requests atomic.Int32
}

func newJWKSFixture(t *testing.T) *jwksFixture {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	f := &jwksFixture{key: key}
	jwk := jose.JSONWebKey{Key: &key.PublicKey, KeyID: "k1", Algorithm: jwt.SigningMethodRS256.Alg(), Use: "sig"}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		f.requests.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		_ = json.NewEncoder(w).Encode(jose.JSONWebKeySet{Keys: []jose.JSONWebKey{jwk}})
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *jwksFixture) sign(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = "k1"
	signed, err := token.SignedString(f.key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func validClaims() jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"iss":   testIssuer,
		"aud":   testAudience,
		"sub":   "scheduler",
		"email": "scheduler@picklepantry.iam.gserviceaccount.com",
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
	}
}

func TestJWKSCache_ReusesKeysUntilExpiry(t *testing.T) {
	fixture := newJWKSFixture(t)
	now := time.Unix(1_000_000, 0)
	cache := NewJWKSCache(fixture.server.URL, WithJWKSClock(func() time.Time { return now }))

	for i := 0; i < 3; i++ {
		if _, err := cache.Key(context.Background(), "k1"); err != nil {
			t.Fatalf("Key: %v", err)
		}
	}
	if got := fixture.requests.Load(); got != 1 {
		t.Fatalf("expected one fetch, got %d", got)
	}

	now = now.Add(2 * time.Hour)
	if _, err := cache.Key(context.Background(), "k1"); err != nil {
		t.Fatalf("Key after expiry: %v", err)
	}
	if got := fixture.requests.Load(); got != 2 {
		t.Fatalf("expected refetch after max-age, got %d fetches", got)
	}

	if _, err := cache.Key(context.Background(), "unknown"); err == nil {
		t.Fatal("expected unknown kid error")
	}
}

func TestRequireOIDC(t *testing.T) {
	fixture := newJWKSFixture(t)
	metrics := &recordingMetrics{}
	validator := NewOIDCValidator(NewJWKSCache(fixture.server.URL), WithOIDCMetrics(metrics))
	middleware := validator.RequireOIDC(testAudience, []string{testIssuer})

	var identity *ServiceIdentity
	handler := middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, _ = ServiceIdentityFromContext(r.Context())
		w.WriteHeader(http.StatusAccepted)
	}))

	wrongAudience := validClaims()
	wrongAudience["aud"] = "https://elsewhere"
	wrongIssuer := validClaims()
	wrongIssuer["iss"] = "https://evil.example"
	expired := validClaims()
	expired["exp"] = time.Now().Add(-time.Minute).Unix()

	cases := []struct {
		name   string
		header func(*http.Request)
		status int
		reason string
	}{
		{"valid bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+fixture.sign(t, validClaims())) }, http.StatusAccepted, "ok"},
		{"valid iap assertion", func(r *http.Request) { r.Header.Set("X-Goog-Iap-Jwt-Assertion", fixture.sign(t, validClaims())) }, http.StatusAccepted, "ok"},
		{"missing", func(*http.Request) {}, http.StatusUnauthorized, "token_missing"},
		{"wrong audience", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+fixture.sign(t, wrongAudience)) }, http.StatusUnauthorized, "audience_mismatch"},
		{"wrong issuer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+fixture.sign(t, wrongIssuer)) }, http.StatusUnauthorized, "issuer_mismatch"},
		{"expired", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+fixture.sign(t, expired)) }, http.StatusUnauthorized, "token_invalid"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			identity = nil
			req := httptest.NewRequest(http.MethodPost, "/internal/orders/ord_1/ledger:apply", nil)
			tc.header(req)
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, rr.Code, rr.Body.String())
			}
			if metrics.last() != tc.reason {
				t.Fatalf("expected reason %q, got %q", tc.reason, metrics.last())
			}
			if tc.status == http.StatusAccepted && (identity == nil || identity.Subject != "scheduler") {
				t.Fatalf("expected service identity, got %+v", identity)
			}
		})
	}
}

func TestRequireOIDC_JWKSOutageIsUnavailable(t *testing.T) {
	fixture := newJWKSFixture(t)
	token := fixture.sign(t, validClaims())
	fixture.server.Close()

	validator := NewOIDCValidator(NewJWKSCache(fixture.server.URL))
	handler := validator.RequireOIDC(testAudience, nil)(http.NotFoundHandler())

	req := httptest.NewRequest(http.MethodPost, "/internal/orders/x/ledger:apply", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}
