package goGate

import (
	"context"

	"github.com/MrEthical07/goGate/internal/flows"
)

// InitiatePasswordReset opens a reset session for the active account that
// owns phone and sends it an OTP.
//
// The result and the response time are the same whether or not the phone
// belongs to an account. Only directory and store failures are reported,
// as internal errors.
func (e *Engine) InitiatePasswordReset(ctx context.Context, phone string) (InitiateResult, error) {
	res, err := flows.RunInitiatePasswordReset(ctx, phone, e.flows.PasswordReset)
	if err != nil {
		return InitiateResult{}, err
	}
	return InitiateResult{
		SessionID: res.SessionID,
		Message:   res.Message,
		OTPSent:   true,
		OTPExpiry: res.ExpiresAt,
	}, nil
}

// VerifyPasswordResetOTP checks otp against the session. The reset token is
// returned only for OTPValid. Sessions that never existed and sessions whose
// TTL elapsed both report OTPNotFound.
func (e *Engine) VerifyPasswordResetOTP(ctx context.Context, sessionID, otp string) (OTPResult, error) {
	res, err := flows.RunVerifyPasswordResetOTP(ctx, sessionID, otp, e.flows.PasswordReset)
	if err != nil {
		return OTPResult{}, err
	}

	switch res.Outcome {
	case flows.ResetOTPValid:
		return OTPResult{Status: OTPValid, ResetToken: res.ResetToken}, nil
	case flows.ResetOTPInvalid:
		return OTPResult{Status: OTPInvalid}, nil
	default:
		return OTPResult{Status: OTPNotFound}, nil
	}
}

// VerifyResetToken returns the session subject when token matches the
// stored reset token and the session window has not closed. A mismatch,
// an expired window and a missing session are all reported as ok == false.
func (e *Engine) VerifyResetToken(ctx context.Context, sessionID, token string) (string, bool, error) {
	return flows.RunVerifyResetToken(ctx, sessionID, token, e.flows.PasswordReset)
}

// CompletePasswordReset sets a new password for the session subject and
// clears its forced password change flag.
//
// Password problems are reported together as a *ValidationError. A token
// that does not verify returns ErrResetTokenInvalid. With
// PasswordReset.ConsumeOnComplete the session is deleted so the token
// cannot be used again.
func (e *Engine) CompletePasswordReset(ctx context.Context, sessionID, token, newPassword, confirm string) error {
	return flows.RunCompletePasswordReset(ctx, sessionID, token, newPassword, confirm, e.flows.PasswordReset)
}
