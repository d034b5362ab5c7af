package goGate

import (
	"context"
	"errors"
	"time"
)

const (
	auditEventResetInitiated     = "password_reset_initiated"
	auditEventResetOTPVerify     = "password_reset_otp_verify"
	auditEventResetTokenVerify   = "password_reset_token_verify"
	auditEventResetCompleted     = "password_reset_completed"
	auditEventLoginSuccess       = "login_success"
	auditEventLoginFailure       = "login_failure"
	auditEventRefreshSuccess     = "refresh_success"
	auditEventRefreshInvalid     = "refresh_invalid"
	auditEventAuthorizeDenied    = "authorize_denied"
	auditEventAuthorizeAnonymous = "authorize_invalid_token"
)

// AuditErrorCode is the stable error classification written into audit events.
type AuditErrorCode string

const (
	auditErrUnauthorized       AuditErrorCode = "unauthorized"
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrInvalidToken       AuditErrorCode = "invalid_token"
	auditErrForbidden          AuditErrorCode = "forbidden"
	auditErrNotFound           AuditErrorCode = "not_found"
	auditErrOTPInvalid         AuditErrorCode = "otp_invalid"
	auditErrAttemptsExceeded   AuditErrorCode = "attempts_exceeded"
	auditErrBadRequest         AuditErrorCode = "bad_request"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

// errOTPMismatch only labels audit events; it is never returned.
var errOTPMismatch = errors.New("otp mismatch")

type auditRecord struct {
	eventType string
	success   bool
	subjectID string
	role      string
	sessionID string
	err       error
	metadata  func() map[string]string
}

func (e *Engine) emitAudit(ctx context.Context, rec auditRecord) {
	if e == nil || e.audit == nil {
		return
	}

	event := AuditEvent{
		Timestamp: e.now().UTC(),
		EventType: rec.eventType,
		SubjectID: rec.subjectID,
		SessionID: rec.sessionID,
		IP:        clientIPFromContext(ctx),
		Role:      rec.role,
		Success:   rec.success,
	}
	if rec.metadata != nil {
		event.Metadata = rec.metadata()
	}
	if code := auditErrorCode(rec.err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, errOTPMismatch):
		return auditErrOTPInvalid
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrTokenInvalid),
		errors.Is(err, ErrResetTokenInvalid):
		return auditErrInvalidToken
	case errors.Is(err, ErrOTPAttemptsExceeded):
		return auditErrAttemptsExceeded
	case errors.Is(err, ErrStoreUnavailable),
		errors.Is(err, ErrAccountLookupFailed):
		return auditErrUnavailable
	}

	switch KindOf(err) {
	case KindUnauthorized:
		return auditErrUnauthorized
	case KindForbidden:
		return auditErrForbidden
	case KindNotFound:
		return auditErrNotFound
	case KindBadRequest:
		return auditErrBadRequest
	default:
		return auditErrInternal
	}
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) metricObserve(id MetricID, start time.Time) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Observe(id, time.Since(start))
}
