package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	firebaseauth "firebase.google.com/go/v4/auth"
)

type stubTokenVerifier struct {
	token    *firebaseauth.Token
	err      error
	received string
}

func (s *stubTokenVerifier) VerifyIDToken(_ context.Context, idToken string) (*firebaseauth.Token, error) {
	s.received = idToken
	if s.err != nil {
		return nil, s.err
	}
	return s.token, nil
}

func TestRequireFirebaseAuth_VendorWithStores(t *testing.T) {
	verifier := &stubTokenVerifier{token: &firebaseauth.Token{
		UID: "vendor-1",
		Claims: map[string]any{
			"role":   []any{"Vendor"},
			"stores": []any{"sto_a", "sto_b", "sto_a"},
			"email":  "vendor@example.com",
			"locale": "fr-FR",
		},
	}}

	var identity *Identity
	handler := NewAuthenticator(verifier).RequireFirebaseAuth(RoleVendor, RoleOperator)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, _ = IdentityFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/fulfillments", nil)
	req.Header.Set("Authorization", "Bearer token-abc")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if verifier.received != "token-abc" {
		t.Fatalf("unexpected token forwarded: %q", verifier.received)
	}
	if identity == nil || !identity.HasRole(RoleVendor) {
		t.Fatalf("expected vendor identity, got %+v", identity)
	}
	if len(identity.StoreIDs) != 2 || !identity.CanActForStore("sto_b") || identity.CanActForStore("sto_c") {
		t.Fatalf("unexpected store scope %v", identity.StoreIDs)
	}
	if identity.Locale != "fr-FR" {
		t.Fatalf("expected locale fr-FR, got %s", identity.Locale)
	}
}

func TestRequireFirebaseAuth_DefaultsToCustomer(t *testing.T) {
	verifier := &stubTokenVerifier{token: &firebaseauth.Token{UID: "cust-1", Claims: map[string]any{}}}

	called := false
	handler := NewAuthenticator(verifier).RequireFirebaseAuth()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, _ := IdentityFromContext(r.Context())
		called = identity.HasRole(RoleCustomer)
	}))

	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	req.Header.Set("Authorization", "bearer t")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if !called {
		t.Fatalf("expected customer role fallback")
	}
}

func TestRequireFirebaseAuth_Rejects(t *testing.T) {
	cases := []struct {
		name     string
		header   string
		verifier *stubTokenVerifier
		roles    []string
		status   int
	}{
		{name: "missing header", header: "", verifier: &stubTokenVerifier{}, status: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic abc", verifier: &stubTokenVerifier{}, status: http.StatusUnauthorized},
		{name: "verify error", header: "Bearer x", verifier: &stubTokenVerifier{err: errors.New("bad")}, status: http.StatusUnauthorized},
		{
			name:     "insufficient role",
			header:   "Bearer x",
			verifier: &stubTokenVerifier{token: &firebaseauth.Token{UID: "c", Claims: map[string]any{"role": "customer"}}},
			roles:    []string{RoleOperator},
			status:   http.StatusForbidden,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := NewAuthenticator(tc.verifier).RequireFirebaseAuth(tc.roles...)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
				t.Fatalf("handler should not run")
			}))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rr.Code)
			}
		})
	}
}

func TestRolesFromClaimsMapForm(t *testing.T) {
	roles := rolesFromClaims(map[string]any{"role": map[string]any{"operator": true, "vendor": false}}, "role")
	if len(roles) != 1 || roles[0] != RoleOperator {
		t.Fatalf("unexpected roles %v", roles)
	}
}
