package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	firebaseauth "firebase.google.com/go/v4/auth"
)

const (
	defaultRoleClaim     = "role"
	defaultAdminClaim    = "admin"
	defaultVerifyTimeout = 5 * time.Second
)

// TokenVerifier verifies Firebase ID tokens.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error)
}

// Authenticator turns bearer ID tokens into an Identity on the request context.
type Authenticator struct {
	verifier  TokenVerifier
	roleClaim string
}

// NewAuthenticator constructs an Authenticator. The role claim may be a string or a list;
// a boolean "admin" custom claim also grants the admin role.
func NewAuthenticator(verifier TokenVerifier) *Authenticator {
	return &Authenticator{verifier: verifier, roleClaim: defaultRoleClaim}
}

// RequireAuth rejects requests without a valid token (401) or without one of roles (403).
// With no roles any authenticated user passes.
func (a *Authenticator) RequireAuth(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				deny(w, r, http.StatusUnauthorized, "unauthenticated", "authorization header missing or invalid")
				return
			}
			if a == nil || a.verifier == nil {
				deny(w, r, http.StatusServiceUnavailable, "verification_unavailable", "authentication unavailable")
				return
			}

			token, err := a.verifier.VerifyIDToken(r.Context(), raw)
			if err != nil {
				code, message := "invalid_token", "id token verification failed"
				if firebaseauth.IsIDTokenExpired(err) {
					code, message = "token_expired", "id token expired"
				}
				deny(w, r, http.StatusUnauthorized, code, message)
				return
			}

			identity := &Identity{
				UID:    token.UID,
				Email:  stringClaim(token.Claims, "email"),
				Locale: stringClaim(token.Claims, "locale"),
				Roles:  rolesFromClaims(token.Claims, a.roleClaim),
			}
			if len(roles) > 0 && !identity.HasAnyRole(roles...) {
				deny(w, r, http.StatusForbidden, "insufficient_role", "identity does not have required role")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

func rolesFromClaims(claims map[string]any, key string) []string {
	seen := map[string]struct{}{}
	var roles []string
	add := func(role string) {
		role = strings.ToLower(strings.TrimSpace(role))
		if role == "" {
			return
		}
		if _, ok := seen[role]; ok {
			return
		}
		seen[role] = struct{}{}
		roles = append(roles, role)
	}

	switch v := claims[key].(type) {
	case string:
		for _, part := range strings.Split(v, ",") {
			add(part)
		}
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				add(s)
			}
		}
	case []string:
		for _, s := range v {
			add(s)
		}
	}
	if admin, ok := claims[defaultAdminClaim].(bool); ok && admin {
		add(RoleAdmin)
	}
	if len(roles) == 0 {
		add(RoleUser)
	}
	return roles
}

func stringClaim(claims map[string]any, key string) string {
	value, _ := claims[key].(string)
	return strings.TrimSpace(value)
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
