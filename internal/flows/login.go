package flows

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// LoginAccount is the directory view needed to authenticate a login.
type LoginAccount struct {
	SubjectID     string
	PasswordHash  string
	Role          string
	Active        bool
	ForcePwChange bool
}

// IssuedTokens is a freshly minted access and refresh pair.
type IssuedTokens struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// LoginResult never carries the password hash.
type LoginResult struct {
	SubjectID     string
	Role          string
	ForcePwChange bool
	Tokens        IssuedTokens
}

type LoginMetrics struct {
	Success int
	Failure int
}

type LoginEvents struct {
	Success string
	Failure string
}

type LoginErrors struct {
	EngineNotReady      error
	Internal            error
	InvalidCredentials  error
	AccountNotFound     error
	AccountLookupFailed error
}

// LoginDeps captures password login dependencies.
type LoginDeps struct {
	Logger zerolog.Logger

	FindByLogin    func(context.Context, string) (LoginAccount, error)
	VerifyPassword func(password, hash string) (bool, error)
	VerifyDummy    func(password string)
	IssueTokens    func(subjectID, role string) (IssuedTokens, error)

	MetricInc func(int)
	EmitAudit func(context.Context, string, bool, string, string, error, func() map[string]string)

	Metrics LoginMetrics
	Events  LoginEvents
	Errors  LoginErrors
}

// RunLogin authenticates login and password against the account directory.
// Unknown logins, inactive accounts and wrong passwords are indistinguishable.
func RunLogin(ctx context.Context, login, password string, deps LoginDeps) (LoginResult, error) {
	normalizeLoginDeps(&deps)

	if deps.FindByLogin == nil || deps.VerifyPassword == nil || deps.IssueTokens == nil {
		return LoginResult{}, deps.Errors.EngineNotReady
	}

	login = strings.TrimSpace(login)
	if login == "" || password == "" {
		deps.VerifyDummy(password)
		return LoginResult{}, loginFailure(ctx, "", "empty_input", deps)
	}

	account, err := deps.FindByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, deps.Errors.AccountNotFound) {
			deps.VerifyDummy(password)
			return LoginResult{}, loginFailure(ctx, "", "unknown_login", deps)
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return LoginResult{}, err
		}
		deps.Logger.Error().Err(err).Msg("account lookup failed")
		mapped := fmt.Errorf("%w: %v", deps.Errors.AccountLookupFailed, err)
		deps.MetricInc(deps.Metrics.Failure)
		deps.EmitAudit(ctx, deps.Events.Failure, false, "", "", mapped, nil)
		return LoginResult{}, mapped
	}

	ok, err := deps.VerifyPassword(password, account.PasswordHash)
	if err != nil {
		deps.Logger.Error().Err(err).Str("subject_id", account.SubjectID).Msg("stored password hash rejected")
		return LoginResult{}, loginFailure(ctx, account.SubjectID, "malformed_hash", deps)
	}
	if !ok {
		return LoginResult{}, loginFailure(ctx, account.SubjectID, "password_mismatch", deps)
	}
	if !account.Active {
		return LoginResult{}, loginFailure(ctx, account.SubjectID, "inactive", deps)
	}

	tokens, err := deps.IssueTokens(account.SubjectID, account.Role)
	if err != nil {
		deps.Logger.Error().Err(err).Str("subject_id", account.SubjectID).Msg("token issuance failed")
		deps.MetricInc(deps.Metrics.Failure)
		return LoginResult{}, fmt.Errorf("%w: %v", deps.Errors.Internal, err)
	}

	deps.MetricInc(deps.Metrics.Success)
	deps.EmitAudit(ctx, deps.Events.Success, true, account.SubjectID, account.Role, nil, nil)
	return LoginResult{
		SubjectID:     account.SubjectID,
		Role:          account.Role,
		ForcePwChange: account.ForcePwChange,
		Tokens:        tokens,
	}, nil
}

func loginFailure(ctx context.Context, subjectID, reason string, deps LoginDeps) error {
	deps.MetricInc(deps.Metrics.Failure)
	deps.EmitAudit(ctx, deps.Events.Failure, false, subjectID, "", deps.Errors.InvalidCredentials, func() map[string]string {
		return map[string]string{
			"reason": reason,
		}
	})
	return deps.Errors.InvalidCredentials
}

func normalizeLoginDeps(deps *LoginDeps) {
	if deps.VerifyDummy == nil {
		deps.VerifyDummy = func(string) {}
	}
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = func(context.Context, string, bool, string, string, error, func() map[string]string) {}
	}
}
