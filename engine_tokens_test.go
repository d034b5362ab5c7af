package goGate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndVerifyAccessToken(t *testing.T) {
	env := newTestEnv(t, nil)

	token, exp, err := env.engine.IssueAccessToken("S-1", RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, env.clock.Now().Add(5*time.Minute), exp)

	claims, err := env.engine.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, "S-1", claims.SubjectID)
	assert.Equal(t, RoleAdmin, claims.Role)
	assert.WithinDuration(t, env.clock.Now(), claims.IssuedAt, 0)
	assert.WithinDuration(t, exp, claims.ExpiresAt, 0)
}

func TestAccessTokenExpiry(t *testing.T) {
	env := newTestEnv(t, nil)

	token, _, err := env.engine.IssueAccessToken("S-1", RoleUser)
	require.NoError(t, err)

	env.clock.Advance(5*time.Minute - time.Second)
	_, err = env.engine.VerifyToken(token)
	require.NoError(t, err)

	env.clock.Advance(time.Second)
	_, err = env.engine.VerifyToken(token)
	require.ErrorIs(t, err, ErrTokenInvalid)
}

func TestRefreshTokenLifetime(t *testing.T) {
	env := newTestEnv(t, nil)

	_, exp, err := env.engine.IssueRefreshToken("S-1", RoleUser)
	require.NoError(t, err)
	assert.Equal(t, env.clock.Now().Add(14*24*time.Hour), exp)
}

func TestVerifyTokenCollapsesFailures(t *testing.T) {
	env := newTestEnv(t, nil)
	other := newTestEnv(t, nil)

	access, _, err := env.engine.IssueAccessToken("S-1", RoleUser)
	require.NoError(t, err)
	refresh, _, err := env.engine.IssueRefreshToken("S-1", RoleUser)
	require.NoError(t, err)
	foreign, _, err := other.engine.IssueAccessToken("S-1", RoleUser)
	require.NoError(t, err)

	cases := map[string]string{
		"empty":         "",
		"garbage":       "not.a.token",
		"refresh kind":  refresh,
		"foreign key":   foreign,
		"truncated":     access[:len(access)-4],
		"tampered body": tamperMiddle(access),
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := env.engine.VerifyToken(token)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrTokenInvalid))
			assert.Equal(t, ErrTokenInvalid.Error(), err.Error())
			assert.Equal(t, KindUnauthorized, KindOf(err))
		})
	}
}

func tamperMiddle(token string) string {
	b := []byte(token)
	i := len(b) / 2
	if b[i] == 'A' {
		b[i] = 'B'
	} else {
		b[i] = 'A'
	}
	return string(b)
}

func TestIssueRejectsAnonymousAndInvalidRoles(t *testing.T) {
	env := newTestEnv(t, nil)

	_, _, err := env.engine.IssueAccessToken("S-1", RoleAnonymous)
	require.ErrorIs(t, err, ErrRoleInvalid)

	_, _, err = env.engine.IssueAccessToken("S-1", Role(42))
	require.ErrorIs(t, err, ErrRoleInvalid)

	_, _, err = env.engine.IssueAccessToken("", RoleUser)
	require.ErrorIs(t, err, ErrBadRequest)
}

func TestRefreshIssuesNewPair(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	pair, err := env.engine.IssueTokenPair("S-1", RoleSuperAdmin)
	require.NoError(t, err)

	env.clock.Advance(time.Hour)

	next, err := env.engine.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, env.clock.Now().Add(5*time.Minute), next.AccessExpiresAt)

	claims, err := env.engine.VerifyToken(next.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "S-1", claims.SubjectID)
	assert.Equal(t, RoleSuperAdmin, claims.Role)

	_, err = env.engine.VerifyToken(pair.AccessToken)
	require.ErrorIs(t, err, ErrTokenInvalid)
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	env := newTestEnv(t, nil)

	access, _, err := env.engine.IssueAccessToken("S-1", RoleUser)
	require.NoError(t, err)

	_, err = env.engine.Refresh(context.Background(), access)
	require.ErrorIs(t, err, ErrTokenInvalid)
	assert.Equal(t, uint64(1), env.engine.MetricsSnapshot().Counters[MetricRefreshFailure])
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	res, err := env.engine.Login(ctx, "R-1001", "initial-password")
	require.NoError(t, err)
	assert.Equal(t, activeSubject, res.SubjectID)
	assert.Equal(t, RoleUser, res.Role)
	assert.True(t, res.ForcePwChange)

	claims, err := env.engine.VerifyToken(res.Tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, activeSubject, claims.SubjectID)

	snap := env.engine.MetricsSnapshot()
	assert.Equal(t, uint64(1), snap.Counters[MetricLoginSuccess])
	assert.Equal(t, uint64(2), snap.Counters[MetricTokenIssued])
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	cases := []struct {
		name     string
		login    string
		password string
	}{
		{"unknown login", "R-9999", "initial-password"},
		{"wrong password", "R-1001", "wrong-password"},
		{"inactive account", "R-1002", "dormant-password"},
		{"empty password", "R-1001", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.engine.Login(ctx, tc.login, tc.password)
			require.ErrorIs(t, err, ErrInvalidCredentials)
			assert.Equal(t, "unauthorized", PublicMessage(err))
		})
	}
}

func TestLoginDirectoryFailureIsInternal(t *testing.T) {
	env := newTestEnv(t, nil)
	env.dir.lookErr = errors.New("pq: too many connections")

	_, err := env.engine.Login(context.Background(), "R-1001", "initial-password")
	require.ErrorIs(t, err, ErrAccountLookupFailed)
	assert.Equal(t, KindInternal, KindOf(err))
}
