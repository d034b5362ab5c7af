package goGate

import (
	"errors"
	"net/http"
	"strings"
)

var (
	// ErrUnauthorized is returned for missing or invalid credentials.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidCredentials is returned by Login for unknown logins and wrong passwords.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrTokenInvalid is the single outcome of every token verification failure.
	ErrTokenInvalid = errors.New("token invalid")
	// ErrRoleInvalid is returned when a role string is outside the closed role set.
	ErrRoleInvalid = errors.New("invalid role")
	// ErrForbidden is returned when policy denies an authenticated subject.
	ErrForbidden = errors.New("forbidden")
	// ErrBadRequest is the root of malformed input errors.
	ErrBadRequest = errors.New("bad request")
	// ErrInternal is the root of infrastructure failures.
	ErrInternal = errors.New("internal error")

	// ErrEngineNotReady is returned when a required dependency was not configured.
	ErrEngineNotReady = errors.New("engine not ready")
	// ErrStoreUnavailable is returned when the ephemeral store fails or times out.
	ErrStoreUnavailable = errors.New("session store unavailable")
	// ErrResetPayloadCorrupt is returned when a stored reset session cannot be decoded.
	ErrResetPayloadCorrupt = errors.New("reset session payload corrupt")
	// ErrAccountLookupFailed is returned when the account directory fails.
	ErrAccountLookupFailed = errors.New("account lookup failed")
	// ErrPolicyEvaluation is returned when the policy evaluator fails.
	ErrPolicyEvaluation = errors.New("policy evaluation failed")

	// ErrResetSessionNotFound is returned when a reset session is absent or expired.
	ErrResetSessionNotFound = errors.New("reset session not found")
	// ErrResetTokenInvalid is returned when a reset token does not match or has expired.
	ErrResetTokenInvalid = errors.New("reset token invalid")
	// ErrOTPAttemptsExceeded is returned when the optional OTP attempt cap is hit.
	ErrOTPAttemptsExceeded = errors.New("otp attempts exceeded")
	// ErrInvalidSessionID is returned for session ids that are not well formed.
	ErrInvalidSessionID = errors.New("invalid session id")
	// ErrInvalidPhone is returned for empty or malformed phone numbers.
	ErrInvalidPhone = errors.New("invalid phone")
	// ErrPasswordPolicy is returned when a new password fails validation.
	ErrPasswordPolicy = errors.New("password policy violation")

	// ErrAccountNotFound is returned by AccountDirectory implementations.
	ErrAccountNotFound = errors.New("account not found")
)

// ErrorKind is the client-facing class of an error.
type ErrorKind uint8

const (
	KindInternal ErrorKind = iota
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindBadRequest
)

func (k ErrorKind) String() string {
	switch k {
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindBadRequest:
		return "bad_request"
	default:
		return "internal"
	}
}

// HTTPStatus maps the kind to a response status.
func (k ErrorKind) HTTPStatus() int {
	switch k {
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindBadRequest:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// KindOf classifies err. Unknown errors are internal.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindInternal
	case errors.Is(err, ErrInternal),
		errors.Is(err, ErrEngineNotReady),
		errors.Is(err, ErrStoreUnavailable),
		errors.Is(err, ErrResetPayloadCorrupt),
		errors.Is(err, ErrAccountLookupFailed),
		errors.Is(err, ErrPolicyEvaluation):
		return KindInternal
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrTokenInvalid),
		errors.Is(err, ErrRoleInvalid),
		errors.Is(err, ErrOTPAttemptsExceeded):
		return KindUnauthorized
	case errors.Is(err, ErrForbidden):
		return KindForbidden
	case errors.Is(err, ErrResetSessionNotFound):
		return KindNotFound
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, ErrResetTokenInvalid),
		errors.Is(err, ErrInvalidSessionID),
		errors.Is(err, ErrInvalidPhone),
		errors.Is(err, ErrPasswordPolicy):
		return KindBadRequest
	default:
		return KindInternal
	}
}

// PublicMessage returns a message safe to send to clients. Internal causes
// are never included.
func PublicMessage(err error) string {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr.Error()
	}
	switch KindOf(err) {
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not found"
	case KindBadRequest:
		return "bad request"
	default:
		return "internal server error"
	}
}

// ValidationError lists every input problem found in one request.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Errors) == 0 {
		return "validation failed"
	}
	return "validation failed: " + strings.Join(e.Errors, "; ")
}

// Unwrap makes ValidationError match ErrBadRequest and ErrPasswordPolicy.
func (e *ValidationError) Unwrap() []error {
	return []error{ErrBadRequest, ErrPasswordPolicy}
}

func newValidationError(problems []string) error {
	return &ValidationError{Errors: problems}
}
