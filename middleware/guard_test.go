package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	goGate "github.com/MrEthical07/goGate"
	"github.com/MrEthical07/goGate/keys"
	"github.com/MrEthical07/goGate/policy"
)

func newEngine(t *testing.T) *goGate.Engine {
	t.Helper()

	ring, err := keys.Generate()
	require.NoError(t, err)
	t.Cleanup(ring.Destroy)

	enforcer, err := policy.NewEnforcer(policy.Policy{
		Rules: []policy.Rule{
			{Subject: "anon", Domain: "*", Object: "/auth/*", Action: "POST"},
			{Subject: "user", Domain: "*", Object: "/me", Action: "GET"},
			{Subject: "admin", Domain: "admin.example.com", Object: "/users/:id", Action: "*"},
		},
		Inherits: map[string][]string{"admin": {"user"}},
	}, policy.Options{DecisionCacheSize: 64})
	require.NoError(t, err)

	engine, err := goGate.New().WithKeys(ring).WithPolicy(enforcer).Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)
	return engine
}

func TestAuthorizeAnonymousPermit(t *testing.T) {
	engine := newEngine(t)

	var seen goGate.Identity
	h := Authorize(engine)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = goGate.IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.True(t, seen.Anonymous())
	assert.Equal(t, goGate.RoleAnonymous, seen.Role)
}

func TestAuthorizeDenyStatus(t *testing.T) {
	engine := newEngine(t)
	userToken, _, err := engine.IssueAccessToken("S-1", goGate.RoleUser)
	require.NoError(t, err)

	called := false
	h := Authorize(engine)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	tests := []struct {
		name   string
		method string
		target string
		token  string
		want   int
	}{
		{"anonymous", http.MethodGet, "/me", "", http.StatusUnauthorized},
		{"garbage token", http.MethodGet, "/me", "not-a-jwt", http.StatusUnauthorized},
		{"authenticated", http.MethodDelete, "/users/7", userToken, http.StatusForbidden},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.target, nil)
			if tc.token != "" {
				req.Header.Set("Authorization", "Bearer "+tc.token)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tc.want, rec.Code)
		})
	}
	assert.False(t, called)
}

func TestAuthorizeAttachesIdentity(t *testing.T) {
	engine := newEngine(t)
	token, _, err := engine.IssueAccessToken("S-1", goGate.RoleUser)
	require.NoError(t, err)

	var seen goGate.Identity
	h := Authorize(engine)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = goGate.IdentityFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "S-1", seen.SubjectID)
	assert.Equal(t, goGate.RoleUser, seen.Role)
	require.NotNil(t, seen.Claims)
	assert.True(t, seen.IsSelf("S-1"))
}

func TestAuthorizeDomainIsHostWithoutPort(t *testing.T) {
	engine := newEngine(t)
	token, _, err := engine.IssueAccessToken("S-9", goGate.RoleAdmin)
	require.NoError(t, err)

	h := Authorize(engine)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	for host, want := range map[string]int{
		"admin.example.com:8443": http.StatusOK,
		"ADMIN.example.com":      http.StatusOK,
		"shop.example.com:8443":  http.StatusForbidden,
	} {
		req := httptest.NewRequest(http.MethodPut, "/users/7", nil)
		req.Host = host
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, want, rec.Code, host)
	}
}

func TestAuthorizeResolverOverrides(t *testing.T) {
	engine := newEngine(t)
	token, _, err := engine.IssueAccessToken("S-9", goGate.RoleAdmin)
	require.NoError(t, err)

	h := Authorize(engine,
		WithDomainResolver(func(r *http.Request) string { return r.Header.Get("X-Tenant-Host") }),
		WithObjectResolver(func(*http.Request) string { return "/users/7" }),
		WithActionResolver(func(*http.Request) string { return "PATCH" }),
	)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/anything", nil)
	req.Header.Set("X-Tenant-Host", "admin.example.com")
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

type erroringAuthorizer struct{}

func (erroringAuthorizer) Authorize(context.Context, goGate.AccessRequest) (goGate.Decision, error) {
	return goGate.Decision{Identity: goGate.AnonymousIdentity()}, goGate.ErrPolicyEvaluation
}

func TestAuthorizeEngineErrorIsInternal(t *testing.T) {
	h := Authorize(erroringAuthorizer{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal server error\n", rec.Body.String())
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		in    string
		token string
		ok    bool
	}{
		{"Bearer abc", "abc", true},
		{"bearer abc", "abc", true},
		{"Bearer ", "", false},
		{"Basic abc", "", false},
		{"", "", false},
	}
	for _, tc := range tests {
		token, ok := bearerToken(tc.in)
		assert.Equal(t, tc.ok, ok, tc.in)
		assert.Equal(t, tc.token, token, tc.in)
	}
}
