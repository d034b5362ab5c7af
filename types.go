package goGate

import (
	"context"
	"strings"
	"time"
)

// Role is the closed set of account-level roles.
type Role uint8

const (
	// RoleAnonymous is assigned when no valid credential is presented. It is
	// never written into a token.
	RoleAnonymous Role = iota
	RoleUser
	RoleAdmin
	RoleSuperAdmin
)

// String returns the canonical role name used in tokens and policy rules.
func (r Role) String() string {
	switch r {
	case RoleAnonymous:
		return "anon"
	case RoleUser:
		return "user"
	case RoleAdmin:
		return "admin"
	case RoleSuperAdmin:
		return "superadmin"
	default:
		return "invalid"
	}
}

// Valid reports whether r is one of the defined roles.
func (r Role) Valid() bool {
	return r <= RoleSuperAdmin
}

// ParseRole converts a canonical role name into a Role. Unknown names return
// ErrRoleInvalid.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "anon":
		return RoleAnonymous, nil
	case "user":
		return RoleUser, nil
	case "admin":
		return RoleAdmin, nil
	case "superadmin":
		return RoleSuperAdmin, nil
	default:
		return RoleAnonymous, ErrRoleInvalid
	}
}

// Account is the subset of an account record the engine needs.
type Account struct {
	SubjectID     string
	Login         string
	Phone         string
	PasswordHash  string
	Role          Role
	Active        bool
	ForcePwChange bool
}

// AccountDirectory is the relational data collaborator. Lookups return
// ErrAccountNotFound when no matching active account exists.
type AccountDirectory interface {
	FindActiveByPhone(ctx context.Context, phone string) (Account, error)
	FindByLogin(ctx context.Context, login string) (Account, error)
	UpdatePasswordHash(ctx context.Context, subjectID, passwordHash string) error
}

// OTPSender delivers a reset OTP out of band. Implementations must not log the code.
type OTPSender interface {
	SendOTP(ctx context.Context, phone, otp string) error
}

// OTPSenderFunc adapts a function to OTPSender.
type OTPSenderFunc func(ctx context.Context, phone, otp string) error

func (f OTPSenderFunc) SendOTP(ctx context.Context, phone, otp string) error {
	return f(ctx, phone, otp)
}

// InitiateResult is returned by InitiatePasswordReset. Its shape never depends
// on whether the phone belongs to an account.
type InitiateResult struct {
	SessionID string    `json:"session_uid"`
	Message   string    `json:"message"`
	OTPSent   bool      `json:"otp_sent"`
	OTPExpiry time.Time `json:"otp_expiry"`
}

// OTPStatus is the closed outcome set of OTP verification.
type OTPStatus uint8

const (
	OTPNotFound OTPStatus = iota
	OTPInvalid
	OTPValid
)

func (s OTPStatus) String() string {
	switch s {
	case OTPValid:
		return "valid"
	case OTPInvalid:
		return "otp_invalid"
	default:
		return "not_found"
	}
}

// OTPResult carries the reset token only when Status is OTPValid.
type OTPResult struct {
	Status     OTPStatus
	ResetToken string
}

// TokenPair is a freshly issued access and refresh token.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// LoginResult is returned by Login. The password hash is never included.
type LoginResult struct {
	SubjectID     string    `json:"subject_id"`
	Role          Role      `json:"-"`
	ForcePwChange bool      `json:"force_pw_change"`
	Tokens        TokenPair `json:"tokens"`
}

// AccessRequest is one authorization query.
type AccessRequest struct {
	// Token is the raw bearer credential. Empty means anonymous.
	Token  string
	Domain string
	Object string
	Action string
}

// Decision is the outcome of Authorize.
type Decision struct {
	Permit   bool
	Identity Identity
}
