package goGate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/goGate/policy"
)

func TestAuthorizeAnonymous(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	d, err := env.engine.Authorize(ctx, AccessRequest{
		Domain: "api.example.com",
		Object: "/auth/login",
		Action: "POST",
	})
	require.NoError(t, err)
	assert.True(t, d.Permit)
	assert.True(t, d.Identity.Anonymous())
	assert.Equal(t, RoleAnonymous, d.Identity.Role)
	assert.Nil(t, d.Identity.Claims)

	d, err = env.engine.Authorize(ctx, AccessRequest{
		Domain: "api.example.com",
		Object: "/products/42",
		Action: "GET",
	})
	require.NoError(t, err)
	assert.False(t, d.Permit)
	assert.True(t, d.Identity.Anonymous())
}

func TestAuthorizeInvalidTokenFallsBackToAnonymous(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	refresh, _, err := env.engine.IssueRefreshToken("S-1", RoleAdmin)
	require.NoError(t, err)

	for _, token := range []string{"garbage", refresh} {
		d, err := env.engine.Authorize(ctx, AccessRequest{
			Token:  token,
			Domain: "shop.local",
			Object: "/auth/refresh",
			Action: "POST",
		})
		require.NoError(t, err)
		assert.True(t, d.Permit)
		assert.True(t, d.Identity.Anonymous())
	}

	assert.Equal(t, uint64(2), env.engine.MetricsSnapshot().Counters[MetricAuthorizeAnonymous])
}

func TestAuthorizeUserRole(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	token, _, err := env.engine.IssueAccessToken("S-7", RoleUser)
	require.NoError(t, err)

	d, err := env.engine.Authorize(ctx, AccessRequest{
		Token:  token,
		Domain: "shop.local",
		Object: "/products/42",
		Action: "GET",
	})
	require.NoError(t, err)
	assert.True(t, d.Permit)
	assert.Equal(t, "S-7", d.Identity.SubjectID)
	assert.Equal(t, RoleUser, d.Identity.Role)
	require.NotNil(t, d.Identity.Claims)
	assert.True(t, d.Identity.IsSelf("S-7"))

	cases := []AccessRequest{
		{Token: token, Domain: "shop.local", Object: "/products/42", Action: "PUT"},
		{Token: token, Domain: "shop.local", Object: "/products/42/reviews", Action: "GET"},
		{Token: token, Domain: "shop.local", Object: "/products/", Action: "GET"},
		{Token: token, Domain: "api.example.com", Object: "/users/1", Action: "GET"},
	}
	for _, req := range cases {
		d, err := env.engine.Authorize(ctx, req)
		require.NoError(t, err)
		assert.False(t, d.Permit, "%s %s", req.Action, req.Object)
		assert.Equal(t, "S-7", d.Identity.SubjectID)
	}
}

func TestAuthorizeDomainMatching(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	token, _, err := env.engine.IssueAccessToken("S-9", RoleAdmin)
	require.NoError(t, err)

	tests := []struct {
		domain string
		want   bool
	}{
		{"api.example.com", true},
		{"eu.api.example.com", true},
		{"example.com", false},
		{"api.example.org", false},
		{"apixexample.com", false},
	}
	for _, tc := range tests {
		t.Run(tc.domain, func(t *testing.T) {
			d, err := env.engine.Authorize(ctx, AccessRequest{
				Token:  token,
				Domain: tc.domain,
				Object: "/users/1",
				Action: "DELETE",
			})
			require.NoError(t, err)
			assert.Equal(t, tc.want, d.Permit)
		})
	}
}

func TestAuthorizeRoleInheritance(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	token, _, err := env.engine.IssueAccessToken("S-root", RoleSuperAdmin)
	require.NoError(t, err)

	for _, req := range []AccessRequest{
		{Token: token, Domain: "api.example.com", Object: "/users/1", Action: "PUT"},
		{Token: token, Domain: "shop.local", Object: "/products/3", Action: "GET"},
	} {
		d, err := env.engine.Authorize(ctx, req)
		require.NoError(t, err)
		assert.True(t, d.Permit, "%s %s", req.Action, req.Object)
		assert.Equal(t, RoleSuperAdmin, d.Identity.Role)
	}

	// Inheritance does not flow down to anonymous rules.
	d, err := env.engine.Authorize(ctx, AccessRequest{
		Token:  token,
		Domain: "api.example.com",
		Object: "/auth/login",
		Action: "POST",
	})
	require.NoError(t, err)
	assert.False(t, d.Permit)
}

func TestAuthorizeWithoutPolicy(t *testing.T) {
	engine, err := New().
		WithConfig(testConfig()).
		WithKeys(mustKeys(t)).
		Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	_, err = engine.Authorize(context.Background(), AccessRequest{Object: "/auth/login", Action: "POST"})
	require.ErrorIs(t, err, ErrEngineNotReady)
}

type failingEvaluator struct{}

func (failingEvaluator) Enforce(string, string, string, string) (bool, error) {
	return false, assert.AnError
}

func TestAuthorizePolicyFailure(t *testing.T) {
	engine, err := New().
		WithConfig(testConfig()).
		WithKeys(mustKeys(t)).
		WithPolicy(failingEvaluator{}).
		Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	d, err := engine.Authorize(context.Background(), AccessRequest{Object: "/auth/login", Action: "POST"})
	require.ErrorIs(t, err, ErrPolicyEvaluation)
	assert.False(t, d.Permit)
	assert.Equal(t, KindInternal, KindOf(err))
}

func TestAuthorizeMetrics(t *testing.T) {
	env := newTestEnv(t, func(c *Config) {
		c.Metrics.EnableLatencyHistograms = true
	})
	ctx := context.Background()

	_, err := env.engine.Authorize(ctx, AccessRequest{Domain: "a", Object: "/auth/login", Action: "POST"})
	require.NoError(t, err)
	_, err = env.engine.Authorize(ctx, AccessRequest{Domain: "a", Object: "/users/1", Action: "GET"})
	require.NoError(t, err)

	snap := env.engine.MetricsSnapshot()
	assert.Equal(t, uint64(1), snap.Counters[MetricAuthorizePermit])
	assert.Equal(t, uint64(1), snap.Counters[MetricAuthorizeDeny])
	assert.Equal(t, uint64(2), snap.Counters[MetricAuthorizeAnonymous])

	var observed uint64
	for _, n := range snap.Histograms[MetricAuthorizeLatency] {
		observed += n
	}
	assert.Equal(t, uint64(2), observed)
}

func TestBuildCompilesRules(t *testing.T) {
	cfg := testConfig()
	cfg.Authorization.DecisionCacheSize = 8

	engine, err := New().
		WithConfig(cfg).
		WithKeys(mustKeys(t)).
		WithRules(policy.Policy{Rules: []policy.Rule{
			{Subject: "anon", Domain: "*", Object: "/auth/*", Action: "POST"},
		}}).
		Build()
	require.NoError(t, err)
	defer engine.Close()

	for i := 0; i < 2; i++ {
		d, err := engine.Authorize(context.Background(), AccessRequest{Domain: "shop.local", Object: "/auth/login", Action: "POST"})
		require.NoError(t, err)
		assert.True(t, d.Permit)
	}
	d, err := engine.Authorize(context.Background(), AccessRequest{Domain: "shop.local", Object: "/me", Action: "GET"})
	require.NoError(t, err)
	assert.False(t, d.Permit)
}

func TestBuildRejectsInvalidRules(t *testing.T) {
	_, err := New().
		WithConfig(testConfig()).
		WithKeys(mustKeys(t)).
		WithRules(policy.Policy{Rules: []policy.Rule{{Subject: "anon", Domain: "*", Object: "", Action: "GET"}}}).
		Build()
	assert.ErrorIs(t, err, policy.ErrInvalidRule)
}
