package auth

import (
	"context"
	"strings"
)

// Roles recognised on storefront identities.
const (
	RoleUser  = "user"
	RoleStaff = "staff"
	RoleAdmin = "admin"
)

// Identity is the authenticated storefront principal.
type Identity struct {
	UID    string
	Email  string
	Roles  []string
	Locale string
}

// HasRole reports whether the identity carries role, case-insensitively.
func (i *Identity) HasRole(role string) bool {
	if i == nil {
		return false
	}
	for _, r := range i.Roles {
		if strings.EqualFold(r, strings.TrimSpace(role)) {
			return true
		}
	}
	return false
}

// HasAnyRole reports whether the identity carries any of roles.
func (i *Identity) HasAnyRole(roles ...string) bool {
	for _, role := range roles {
		if i.HasRole(role) {
			return true
		}
	}
	return false
}

// IsStaff reports whether the identity may act on other users' orders.
func (i *Identity) IsStaff() bool {
	return i.HasAnyRole(RoleStaff, RoleAdmin)
}

type identityKey struct{}

// WithIdentity stores identity on ctx.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

// IdentityFromContext returns the identity stored by the authenticator.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(identityKey{}).(*Identity)
	return identity, ok && identity != nil
}
