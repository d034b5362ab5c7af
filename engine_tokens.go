package goGate

import (
	"context"
	"fmt"
	"time"

	"github.com/MrEthical07/goGate/internal/flows"
	"github.com/MrEthical07/goGate/jwt"
)

// IssueAccessToken signs a short-lived access token for subject and role.
func (e *Engine) IssueAccessToken(subjectID string, role Role) (string, time.Time, error) {
	return e.issue(subjectID, role, jwt.KindAccess)
}

// IssueRefreshToken signs a long-lived refresh token for subject and role.
func (e *Engine) IssueRefreshToken(subjectID string, role Role) (string, time.Time, error) {
	return e.issue(subjectID, role, jwt.KindRefresh)
}

// IssueTokenPair signs an access and a refresh token for the same subject.
func (e *Engine) IssueTokenPair(subjectID string, role Role) (TokenPair, error) {
	access, accessExp, err := e.IssueAccessToken(subjectID, role)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, refreshExp, err := e.IssueRefreshToken(subjectID, role)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func (e *Engine) issue(subjectID string, role Role, kind jwt.Kind) (string, time.Time, error) {
	if e == nil || e.tokens == nil {
		return "", time.Time{}, ErrEngineNotReady
	}
	if subjectID == "" {
		return "", time.Time{}, ErrBadRequest
	}
	if role == RoleAnonymous || !role.Valid() {
		return "", time.Time{}, ErrRoleInvalid
	}

	token, exp, err := e.tokens.Issue(subjectID, role.String(), kind)
	if err != nil {
		e.logger.Error().Err(err).Str("subject_id", subjectID).Msg("token signing failed")
		return "", time.Time{}, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	e.metricInc(MetricTokenIssued)
	return token, exp, nil
}

// VerifyToken checks an access token and returns its claims.
//
// Every failure (bad signature, malformed input, expiry, wrong token kind,
// unknown role) returns ErrTokenInvalid and nothing else.
func (e *Engine) VerifyToken(token string) (Claims, error) {
	return e.parseToken(token, jwt.KindAccess)
}

func (e *Engine) parseToken(token string, kind jwt.Kind) (Claims, error) {
	if e == nil || e.tokens == nil {
		return Claims{}, ErrTokenInvalid
	}

	parsed, err := e.tokens.Parse(token, kind)
	if err != nil {
		e.metricInc(MetricTokenVerifyFailed)
		return Claims{}, ErrTokenInvalid
	}
	role, err := ParseRole(parsed.Role)
	if err != nil || role == RoleAnonymous {
		e.metricInc(MetricTokenVerifyFailed)
		return Claims{}, ErrTokenInvalid
	}

	claims := Claims{
		SubjectID: parsed.Subject,
		Role:      role,
	}
	if parsed.IssuedAt != nil {
		claims.IssuedAt = parsed.IssuedAt.Time
	}
	if parsed.ExpiresAt != nil {
		claims.ExpiresAt = parsed.ExpiresAt.Time
	}
	return claims, nil
}

// Refresh exchanges a refresh token for a new pair for the same subject and
// role. Refresh tokens are not rotated: there is no revocation.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	tokens, err := flows.RunRefresh(ctx, refreshToken, e.flows.Refresh)
	if err != nil {
		return TokenPair{}, err
	}
	return tokenPairFromFlow(tokens), nil
}

// Login authenticates login and password and issues a token pair.
// Unknown logins, inactive accounts and wrong passwords all return
// ErrInvalidCredentials.
func (e *Engine) Login(ctx context.Context, login, password string) (LoginResult, error) {
	res, err := flows.RunLogin(ctx, login, password, e.flows.Login)
	if err != nil {
		return LoginResult{}, err
	}

	role, err := ParseRole(res.Role)
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{
		SubjectID:     res.SubjectID,
		Role:          role,
		ForcePwChange: res.ForcePwChange,
		Tokens:        tokenPairFromFlow(res.Tokens),
	}, nil
}

func (e *Engine) issueFlowTokens(subjectID, role string) (flows.IssuedTokens, error) {
	r, err := ParseRole(role)
	if err != nil {
		return flows.IssuedTokens{}, err
	}
	pair, err := e.IssueTokenPair(subjectID, r)
	if err != nil {
		return flows.IssuedTokens{}, err
	}
	return flows.IssuedTokens{
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		AccessExpiresAt:  pair.AccessExpiresAt,
		RefreshExpiresAt: pair.RefreshExpiresAt,
	}, nil
}

func tokenPairFromFlow(t flows.IssuedTokens) TokenPair {
	return TokenPair{
		AccessToken:      t.AccessToken,
		RefreshToken:     t.RefreshToken,
		AccessExpiresAt:  t.AccessExpiresAt,
		RefreshExpiresAt: t.RefreshExpiresAt,
	}
}
