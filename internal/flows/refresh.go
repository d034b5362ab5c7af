package flows

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

type RefreshMetrics struct {
	Success int
	Failure int
}

type RefreshEvents struct {
	Success string
	Invalid string
}

type RefreshErrors struct {
	EngineNotReady error
	Internal       error
	TokenInvalid   error
}

// RefreshDeps captures refresh-token exchange dependencies.
type RefreshDeps struct {
	Logger zerolog.Logger

	// ParseRefresh returns subject and role of a valid refresh token.
	ParseRefresh func(string) (string, string, error)
	IssueTokens  func(subjectID, role string) (IssuedTokens, error)

	MetricInc func(int)
	EmitAudit func(context.Context, string, bool, string, string, error, func() map[string]string)

	Metrics RefreshMetrics
	Events  RefreshEvents
	Errors  RefreshErrors
}

// RunRefresh exchanges a refresh token for a new pair bound to the same
// subject and role. Refresh tokens are not rotated or revoked.
func RunRefresh(ctx context.Context, refreshToken string, deps RefreshDeps) (IssuedTokens, error) {
	normalizeRefreshDeps(&deps)

	if deps.ParseRefresh == nil || deps.IssueTokens == nil {
		return IssuedTokens{}, deps.Errors.EngineNotReady
	}

	subjectID, role, err := deps.ParseRefresh(refreshToken)
	if err != nil {
		deps.MetricInc(deps.Metrics.Failure)
		deps.EmitAudit(ctx, deps.Events.Invalid, false, "", "", deps.Errors.TokenInvalid, nil)
		return IssuedTokens{}, deps.Errors.TokenInvalid
	}

	tokens, err := deps.IssueTokens(subjectID, role)
	if err != nil {
		deps.Logger.Error().Err(err).Str("subject_id", subjectID).Msg("token issuance failed")
		deps.MetricInc(deps.Metrics.Failure)
		return IssuedTokens{}, fmt.Errorf("%w: %v", deps.Errors.Internal, err)
	}

	deps.MetricInc(deps.Metrics.Success)
	deps.EmitAudit(ctx, deps.Events.Success, true, subjectID, role, nil, nil)
	return tokens, nil
}

func normalizeRefreshDeps(deps *RefreshDeps) {
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = func(context.Context, string, bool, string, string, error, func() map[string]string) {}
	}
}
