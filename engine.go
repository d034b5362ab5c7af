package goGate

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/MrEthical07/goGate/internal"
	"github.com/MrEthical07/goGate/internal/audit"
	"github.com/MrEthical07/goGate/internal/flows"
	"github.com/MrEthical07/goGate/internal/rate"
	"github.com/MrEthical07/goGate/internal/stores"
	"github.com/MrEthical07/goGate/jwt"
	"github.com/MrEthical07/goGate/password"
	"github.com/MrEthical07/goGate/policy"
)

// Engine is the auth core: password reset state machine, token issuance and
// verification, and the authorization decision point.
//
// An Engine is immutable after Build and safe for concurrent use.
type Engine struct {
	config     Config
	resetStore *stores.ResetSessionStore
	attempts   rate.Counter
	tokens     *jwt.Manager
	hasher     *password.Argon2
	accounts   AccountDirectory
	otpSender  OTPSender
	policy     policy.Evaluator
	audit      *audit.Dispatcher
	metrics    *Metrics
	logger     zerolog.Logger
	clock      func() time.Time
	flows      flows.Deps

	// deliveries counts OTP sends still running in the background.
	deliveries sync.WaitGroup
}

// Close waits for in-flight OTP deliveries and flushes pending audit
// events. It does not close injected clients.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.deliveries.Wait()
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports audit events discarded because the buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a copy of the engine counters. Disabled metrics
// yield empty maps.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Config returns a copy of the active configuration.
func (e *Engine) Config() Config {
	return e.config
}

func (e *Engine) now() time.Time {
	if e == nil || e.clock == nil {
		return time.Now()
	}
	return e.clock()
}

func (e *Engine) buildFlowDeps() flows.Deps {
	return flows.Deps{
		PasswordReset: e.passwordResetDeps(),
		Login:         e.loginDeps(),
		Refresh:       e.refreshDeps(),
		Authorize:     e.authorizeDeps(),
	}
}

func (e *Engine) passwordResetDeps() flows.PasswordResetDeps {
	cfg := e.config.PasswordReset
	deps := flows.PasswordResetDeps{
		Window:            cfg.Window,
		StoreTTL:          cfg.StoreTTL,
		OTPDigits:         cfg.OTPDigits,
		OTPMessage:        cfg.OTPMessage,
		MaxOTPAttempts:    cfg.MaxOTPAttempts,
		ConsumeOnComplete: cfg.ConsumeOnComplete,

		Now:    e.now,
		Logger: e.logger.With().Str("component", "password_reset").Logger(),

		Sessions: e.resetStore,
		Attempts: e.attempts,

		NewSessionID:   internal.NewSessionID,
		ParseSessionID: internal.ParseSessionID,
		NewOTP:         internal.NewOTP,
		NewResetToken:  internal.NewResetToken,

		CheckPassword:      e.hasher.Check,
		NewValidationError: newValidationError,
		HashPassword:       e.hasher.Hash,
		PadResponse:        e.padResetResponse,

		MetricInc: func(id int) { e.metricInc(MetricID(id)) },
		EmitAudit: func(ctx context.Context, event string, success bool, subjectID, sessionID string, err error, metadata func() map[string]string) {
			e.emitAudit(ctx, auditRecord{
				eventType: event,
				success:   success,
				subjectID: subjectID,
				sessionID: sessionID,
				err:       err,
				metadata:  metadata,
			})
		},

		Metrics: flows.PasswordResetMetrics{
			Initiated:        int(MetricResetInitiated),
			OTPValid:         int(MetricResetOTPValid),
			OTPInvalid:       int(MetricResetOTPInvalid),
			NotFound:         int(MetricResetNotFound),
			TokenValid:       int(MetricResetTokenValid),
			TokenInvalid:     int(MetricResetTokenInvalid),
			Completed:        int(MetricResetCompleted),
			AttemptsExceeded: int(MetricResetOTPAttemptsExceeded),
			StoreError:       int(MetricStoreError),
		},
		Events: flows.PasswordResetEvents{
			Initiated:   auditEventResetInitiated,
			OTPVerify:   auditEventResetOTPVerify,
			TokenVerify: auditEventResetTokenVerify,
			Completed:   auditEventResetCompleted,
		},
		Errors: flows.PasswordResetErrors{
			EngineNotReady:      ErrEngineNotReady,
			Internal:            ErrInternal,
			InvalidPhone:        ErrInvalidPhone,
			InvalidSessionID:    ErrInvalidSessionID,
			SessionNotFound:     ErrResetSessionNotFound,
			ResetTokenInvalid:   ErrResetTokenInvalid,
			AttemptsExceeded:    ErrOTPAttemptsExceeded,
			StoreUnavailable:    ErrStoreUnavailable,
			PayloadCorrupt:      ErrResetPayloadCorrupt,
			AccountNotFound:     ErrAccountNotFound,
			AccountLookupFailed: ErrAccountLookupFailed,
			OTPMismatch:         errOTPMismatch,
		},
	}

	if e.accounts != nil {
		deps.FindActiveByPhone = func(ctx context.Context, phone string) (flows.PasswordResetAccount, error) {
			account, err := e.accounts.FindActiveByPhone(ctx, phone)
			if err != nil {
				return flows.PasswordResetAccount{}, err
			}
			if !account.Active {
				return flows.PasswordResetAccount{}, ErrAccountNotFound
			}
			return flows.PasswordResetAccount{SubjectID: account.SubjectID}, nil
		}
		deps.UpdatePasswordHash = e.accounts.UpdatePasswordHash
	}
	if e.otpSender != nil {
		deps.SendOTP = e.otpSender.SendOTP
		deps.Deliveries = &e.deliveries
	}
	return deps
}

func (e *Engine) loginDeps() flows.LoginDeps {
	deps := flows.LoginDeps{
		Logger: e.logger.With().Str("component", "login").Logger(),

		VerifyPassword: e.hasher.Verify,
		VerifyDummy:    func(pw string) { _ = e.hasher.VerifyDummy(pw) },
		IssueTokens:    e.issueFlowTokens,

		MetricInc: func(id int) { e.metricInc(MetricID(id)) },
		EmitAudit: e.emitRoleAudit,

		Metrics: flows.LoginMetrics{
			Success: int(MetricLoginSuccess),
			Failure: int(MetricLoginFailure),
		},
		Events: flows.LoginEvents{
			Success: auditEventLoginSuccess,
			Failure: auditEventLoginFailure,
		},
		Errors: flows.LoginErrors{
			EngineNotReady:      ErrEngineNotReady,
			Internal:            ErrInternal,
			InvalidCredentials:  ErrInvalidCredentials,
			AccountNotFound:     ErrAccountNotFound,
			AccountLookupFailed: ErrAccountLookupFailed,
		},
	}

	if e.accounts != nil {
		deps.FindByLogin = func(ctx context.Context, login string) (flows.LoginAccount, error) {
			account, err := e.accounts.FindByLogin(ctx, login)
			if err != nil {
				return flows.LoginAccount{}, err
			}
			return flows.LoginAccount{
				SubjectID:     account.SubjectID,
				PasswordHash:  account.PasswordHash,
				Role:          account.Role.String(),
				Active:        account.Active,
				ForcePwChange: account.ForcePwChange,
			}, nil
		}
	}
	return deps
}

func (e *Engine) refreshDeps() flows.RefreshDeps {
	return flows.RefreshDeps{
		Logger: e.logger.With().Str("component", "refresh").Logger(),

		ParseRefresh: func(token string) (string, string, error) {
			claims, err := e.parseToken(token, jwt.KindRefresh)
			if err != nil {
				return "", "", err
			}
			return claims.SubjectID, claims.Role.String(), nil
		},
		IssueTokens: e.issueFlowTokens,

		MetricInc: func(id int) { e.metricInc(MetricID(id)) },
		EmitAudit: e.emitRoleAudit,

		Metrics: flows.RefreshMetrics{
			Success: int(MetricRefreshSuccess),
			Failure: int(MetricRefreshFailure),
		},
		Events: flows.RefreshEvents{
			Success: auditEventRefreshSuccess,
			Invalid: auditEventRefreshInvalid,
		},
		Errors: flows.RefreshErrors{
			EngineNotReady: ErrEngineNotReady,
			Internal:       ErrInternal,
			TokenInvalid:   ErrTokenInvalid,
		},
	}
}

func (e *Engine) authorizeDeps() flows.AuthorizeDeps {
	deps := flows.AuthorizeDeps{
		AnonymousRole: RoleAnonymous.String(),
		Logger:        e.logger.With().Str("component", "authorize").Logger(),

		VerifyAccess: func(token string) (flows.AccessIdentity, error) {
			claims, err := e.VerifyToken(token)
			if err != nil {
				return flows.AccessIdentity{}, err
			}
			return flows.AccessIdentity{
				SubjectID: claims.SubjectID,
				Role:      claims.Role.String(),
				IssuedAt:  claims.IssuedAt,
				ExpiresAt: claims.ExpiresAt,
			}, nil
		},

		MetricInc:     func(id int) { e.metricInc(MetricID(id)) },
		MetricObserve: func(id int, start time.Time) { e.metricObserve(MetricID(id), start) },
		EmitAudit:     e.emitRoleAudit,

		Metrics: flows.AuthorizeMetrics{
			Permit:    int(MetricAuthorizePermit),
			Deny:      int(MetricAuthorizeDeny),
			Anonymous: int(MetricAuthorizeAnonymous),
			Latency:   int(MetricAuthorizeLatency),
		},
		Events: flows.AuthorizeEvents{
			Denied:       auditEventAuthorizeDenied,
			InvalidToken: auditEventAuthorizeAnonymous,
		},
		Errors: flows.AuthorizeErrors{
			EngineNotReady:   ErrEngineNotReady,
			PolicyEvaluation: ErrPolicyEvaluation,
		},
	}
	if e.policy != nil {
		deps.Enforce = e.policy.Enforce
	}
	return deps
}

func (e *Engine) emitRoleAudit(ctx context.Context, event string, success bool, subjectID, role string, err error, metadata func() map[string]string) {
	e.emitAudit(ctx, auditRecord{
		eventType: event,
		success:   success,
		subjectID: subjectID,
		role:      role,
		err:       err,
		metadata:  metadata,
	})
}

// padResetResponse holds an initiation response until MinResponseTime has
// elapsed since start, then adds 20-40ms of random jitter.
func (e *Engine) padResetResponse(ctx context.Context, start time.Time) error {
	delay := e.config.PasswordReset.MinResponseTime - time.Since(start)
	if delay < 0 {
		delay = 0
	}

	jitter, err := enumerationJitter()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInternal, err)
	}
	delay += jitter

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func enumerationJitter() (time.Duration, error) {
	minMs := int64(20)
	maxMs := int64(40)
	span := maxMs - minMs + 1

	n, err := rand.Int(rand.Reader, big.NewInt(span))
	if err != nil {
		return 0, err
	}
	return time.Duration(minMs+n.Int64()) * time.Millisecond, nil
}
