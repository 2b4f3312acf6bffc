package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	firebaseauth "firebase.google.com/go/v4/auth"
)

type stubTokenVerifier struct {
	tokens map[string]*firebaseauth.Token
}

func (s stubTokenVerifier) VerifyIDToken(_ context.Context, idToken string) (*firebaseauth.Token, error) {
	if token, ok := s.tokens[idToken]; ok {
		return token, nil
	}
	return nil, errors.New("invalid token")
}

func newStubAuthenticator() *Authenticator {
	return NewAuthenticator(stubTokenVerifier{tokens: map[string]*firebaseauth.Token{
		"customer": {UID: "u-1", Claims: map[string]any{"email": "asha@example.com", "locale": "te-IN"}},
		"admin":    {UID: "u-2", Claims: map[string]any{"admin": true}},
		"staff":    {UID: "u-3", Claims: map[string]any{"role": []any{"Staff", "user"}}},
	}})
}

func TestRequireAuth(t *testing.T) {
	auth := newStubAuthenticator()

	cases := []struct {
		name   string
		header string
		roles  []string
		status int
		uid    string
		want   []string
	}{
		{name: "missing header", status: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic abc", status: http.StatusUnauthorized},
		{name: "invalid token", header: "Bearer nope", status: http.StatusUnauthorized},
		{name: "customer", header: "Bearer customer", status: http.StatusOK, uid: "u-1", want: []string{RoleUser}},
		{name: "customer on admin route", header: "Bearer customer", roles: []string{RoleAdmin}, status: http.StatusForbidden},
		{name: "admin claim", header: "Bearer admin", roles: []string{RoleAdmin}, status: http.StatusOK, uid: "u-2", want: []string{RoleAdmin}},
		{name: "role list", header: "Bearer staff", roles: []string{RoleStaff, RoleAdmin}, status: http.StatusOK, uid: "u-3", want: []string{RoleStaff, RoleUser}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var got *Identity
			handler := auth.RequireAuth(tc.roles...)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got, _ = IdentityFromContext(r.Context())
			}))
			req := httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rr.Code)
			}
			if tc.status != http.StatusOK {
				return
			}
			if got == nil || got.UID != tc.uid {
				t.Fatalf("unexpected identity %+v", got)
			}
			if !reflect.DeepEqual(got.Roles, tc.want) {
				t.Fatalf("expected roles %v, got %v", tc.want, got.Roles)
			}
		})
	}
}

func TestRequireAuth_CopiesProfileClaims(t *testing.T) {
	var got *Identity
	handler := newStubAuthenticator().RequireAuth()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = IdentityFromContext(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer customer")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if got.Email != "asha@example.com" || got.Locale != "te-IN" {
		t.Fatalf("unexpected profile %+v", got)
	}
	if got.IsStaff() {
		t.Fatal("customer must not be staff")
	}
}
