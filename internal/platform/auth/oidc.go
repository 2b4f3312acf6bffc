package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	jwt "github.com/golang-jwt/jwt/v4"
)

var (
	// ErrJWKSKeyNotFound is returned when the key id is absent from the key set.
	ErrJWKSKeyNotFound = errors.New("auth: jwks key not found")
	// ErrJWKSFetchFailed wraps transport and decoding failures while refreshing keys.
	ErrJWKSFetchFailed = errors.New("auth: jwks fetch failed")
)

const defaultJWKSRefreshInterval = 15 * time.Minute

// JWKSCache fetches signing keys on demand and keeps them until Cache-Control max-age expires.
type JWKSCache struct {
	url      string
	client   *http.Client
	now      func() time.Time
	fallback time.Duration

	mu     sync.RWMutex
	keys   map[string]jose.JSONWebKey
	expiry time.Time

	refreshMu sync.Mutex
}

// JWKSOption customises JWKSCache.
type JWKSOption func(*JWKSCache)

// WithJWKSHTTPClient overrides the HTTP client.
func WithJWKSHTTPClient(client *http.Client) JWKSOption {
	return func(c *JWKSCache) {
		if client != nil {
			c.client = client
		}
	}
}

// WithJWKSClock injects a clock.
func WithJWKSClock(now func() time.Time) JWKSOption {
	return func(c *JWKSCache) {
		if now != nil {
			c.now = now
		}
	}
}

// NewJWKSCache constructs a cache for url.
func NewJWKSCache(url string, opts ...JWKSOption) *JWKSCache {
	c := &JWKSCache{
		url:      url,
		client:   &http.Client{Timeout: 10 * time.Second},
		now:      time.Now,
		fallback: defaultJWKSRefreshInterval,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Keyfunc adapts the cache to jwt parsing. Only RS256 tokens with a kid are accepted.
func (c *JWKSCache) Keyfunc(ctx context.Context) jwt.Keyfunc {
	return func(token *jwt.Token) (any, error) {
		if token.Method == nil || token.Method.Alg() != jwt.SigningMethodRS256.Alg() {
			return nil, fmt.Errorf("auth: unexpected signing method %v", token.Method)
		}
		kid, _ := token.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("auth: token missing kid header")
		}
		return c.Key(ctx, kid)
	}
}

// Key returns the public key for kid, refreshing once when it is unknown or the set is stale.
func (c *JWKSCache) Key(ctx context.Context, kid string) (any, error) {
	if key, ok := c.cached(kid); ok {
		return key, nil
	}
	if err := c.refresh(ctx); err != nil {
		return nil, err
	}
	if key, ok := c.cached(kid); ok {
		return key, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrJWKSKeyNotFound, kid)
}

func (c *JWKSCache) cached(kid string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.keys == nil || !c.now().Before(c.expiry) {
		return nil, false
	}
	jwk, ok := c.keys[kid]
	if !ok {
		return nil, false
	}
	return jwk.Key, true
}

func (c *JWKSCache) refresh(ctx context.Context) error {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrJWKSFetchFailed, err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrJWKSFetchFailed, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: unexpected status %d", ErrJWKSFetchFailed, resp.StatusCode)
	}

	var set jose.JSONWebKeySet
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return fmt.Errorf("%w: decode jwks: %v", ErrJWKSFetchFailed, err)
	}
	keys := make(map[string]jose.JSONWebKey, len(set.Keys))
	for _, jwk := range set.Keys {
		if jwk.KeyID != "" && jwk.Valid() {
			keys[jwk.KeyID] = jwk
		}
	}
	if len(keys) == 0 {
		return fmt.Errorf("%w: empty key set", ErrJWKSFetchFailed)
	}

	validity := c.fallback
	if maxAge := parseMaxAge(resp.Header.Get("Cache-Control")); maxAge > 0 {
		validity = maxAge
	}

	c.mu.Lock()
	c.keys = keys
	c.expiry = c.now().Add(validity)
	c.mu.Unlock()
	return nil
}

func parseMaxAge(header string) time.Duration {
	for _, part := range strings.Split(header, ",") {
		name, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok || !strings.EqualFold(name, "max-age") {
			continue
		}
		if seconds, err := strconv.Atoi(strings.TrimSpace(value)); err == nil && seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
	}
	return 0
}

// ServiceIdentity is the verified caller of an internal endpoint.
type ServiceIdentity struct {
	Subject string
	Email   string
	Issuer  string
}

type serviceIdentityKey struct{}

// ServiceIdentityFromContext returns the identity stored by RequireOIDC.
func ServiceIdentityFromContext(ctx context.Context) (*ServiceIdentity, bool) {
	identity, ok := ctx.Value(serviceIdentityKey{}).(*ServiceIdentity)
	return identity, ok && identity != nil
}

// OIDCValidator verifies Google-signed OIDC tokens presented by schedulers and task queues.
type OIDCValidator struct {
	cache   *JWKSCache
	logger  Logger
	metrics MetricsRecorder
	now     func() time.Time
}

// OIDCOption customises the validator.
type OIDCOption func(*OIDCValidator)

// WithOIDCLogger overrides the validator logger.
func WithOIDCLogger(logger Logger) OIDCOption {
	return func(v *OIDCValidator) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// WithOIDCMetrics sets the metrics recorder.
func WithOIDCMetrics(recorder MetricsRecorder) OIDCOption {
	return func(v *OIDCValidator) { v.metrics = recorder }
}

// WithOIDCClock injects a clock used for verification timings.
func WithOIDCClock(now func() time.Time) OIDCOption {
	return func(v *OIDCValidator) {
		if now != nil {
			v.now = now
		}
	}
}

// NewOIDCValidator constructs a validator backed by cache.
func NewOIDCValidator(cache *JWKSCache, opts ...OIDCOption) *OIDCValidator {
	v := &OIDCValidator{cache: cache, logger: nopLogger{}, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	return v
}

// RequireOIDC admits requests carrying a valid token for audience from one of issuers.
func (v *OIDCValidator) RequireOIDC(audience string, issuers []string) func(http.Handler) http.Handler {
	audience = strings.TrimSpace(audience)
	allowed := make(map[string]struct{}, len(issuers))
	for _, issuer := range issuers {
		if issuer = strings.TrimSpace(issuer); issuer != "" {
			allowed[issuer] = struct{}{}
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := v.now()
			ctx := r.Context()
			fail := func(status int, reason, code, message string) {
				v.record(ctx, false, reason, start)
				deny(w, r, status, code, message)
			}

			if audience == "" || v.cache == nil {
				fail(http.StatusServiceUnavailable, "not_configured", "verification_unavailable", "oidc verification not configured")
				return
			}
			raw := extractOIDCToken(r)
			if raw == "" {
				fail(http.StatusUnauthorized, "token_missing", "unauthenticated", "oidc token missing")
				return
			}

			claims := jwt.MapClaims{}
			parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}))
			if _, err := parser.ParseWithClaims(raw, claims, v.cache.Keyfunc(ctx)); err != nil {
				if errors.Is(err, ErrJWKSFetchFailed) {
					v.logger.Printf("auth: oidc keys unavailable: %v", err)
					fail(http.StatusServiceUnavailable, "jwks_unavailable", "verification_unavailable", "oidc keys unavailable")
					return
				}
				fail(http.StatusUnauthorized, "token_invalid", "invalid_token", "oidc token verification failed")
				return
			}

			issuer, _ := claims["iss"].(string)
			if _, ok := allowed[issuer]; len(allowed) > 0 && !ok {
				fail(http.StatusUnauthorized, "issuer_mismatch", "invalid_token", "oidc issuer mismatch")
				return
			}
			if !claims.VerifyAudience(audience, true) {
				fail(http.StatusUnauthorized, "audience_mismatch", "invalid_token", "oidc audience mismatch")
				return
			}

			identity := &ServiceIdentity{Issuer: issuer}
			identity.Subject, _ = claims["sub"].(string)
			identity.Email, _ = claims["email"].(string)

			v.record(ctx, true, "ok", start)
			next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, serviceIdentityKey{}, identity)))
		})
	}
}

func (v *OIDCValidator) record(ctx context.Context, success bool, reason string, start time.Time) {
	if v.metrics != nil {
		v.metrics.RecordVerification(ctx, "oidc", success, reason, v.now().Sub(start))
	}
}

func extractOIDCToken(r *http.Request) string {
	if token, ok := bearerToken(r.Header.Get("Authorization")); ok {
		return token
	}
	return strings.TrimSpace(r.Header.Get("X-Goog-Iap-Jwt-Assertion"))
}
