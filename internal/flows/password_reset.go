package flows

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/MrEthical07/goGate/internal/rate"
	"github.com/MrEthical07/goGate/internal/stores"
	"github.com/rs/zerolog"
)

// otpDeliveryTimeout bounds one background OTP delivery.
const otpDeliveryTimeout = 30 * time.Second

// PasswordResetAccount is the directory view needed to open a reset session.
type PasswordResetAccount struct {
	SubjectID string
}

// ResetOTPOutcome is the closed result set of OTP verification.
type ResetOTPOutcome int

const (
	ResetOTPNotFound ResetOTPOutcome = iota
	ResetOTPInvalid
	ResetOTPValid
)

// InitiatePasswordResetResult is identical in shape for known and unknown phones.
type InitiatePasswordResetResult struct {
	SessionID string
	Message   string
	ExpiresAt time.Time
}

// VerifyOTPResult carries the reset token only for ResetOTPValid.
type VerifyOTPResult struct {
	Outcome    ResetOTPOutcome
	ResetToken string
}

type ResetSessionStore interface {
	Save(ctx context.Context, sessionID string, session *stores.ResetSession, ttl time.Duration) error
	Get(ctx context.Context, sessionID string) (*stores.ResetSession, error)
	Take(ctx context.Context, sessionID string) (*stores.ResetSession, error)
}

type PasswordResetMetrics struct {
	Initiated        int
	OTPValid         int
	OTPInvalid       int
	NotFound         int
	TokenValid       int
	TokenInvalid     int
	Completed        int
	AttemptsExceeded int
	StoreError       int
}

type PasswordResetEvents struct {
	Initiated   string
	OTPVerify   string
	TokenVerify string
	Completed   string
}

type PasswordResetErrors struct {
	EngineNotReady      error
	Internal            error
	InvalidPhone        error
	InvalidSessionID    error
	SessionNotFound     error
	ResetTokenInvalid   error
	AttemptsExceeded    error
	StoreUnavailable    error
	PayloadCorrupt      error
	AccountNotFound     error
	AccountLookupFailed error
	// OTPMismatch labels audit events only.
	OTPMismatch error
}

// PasswordResetDeps captures the reset state machine dependencies.
type PasswordResetDeps struct {
	Window            time.Duration
	StoreTTL          time.Duration
	OTPDigits         int
	OTPMessage        string
	MaxOTPAttempts    int
	ConsumeOnComplete bool

	Now    func() time.Time
	Logger zerolog.Logger

	Sessions ResetSessionStore
	Attempts rate.Counter

	FindActiveByPhone  func(context.Context, string) (PasswordResetAccount, error)
	UpdatePasswordHash func(context.Context, string, string) error
	// SendOTP runs in the background so gateway latency stays out of the
	// initiation response. Deliveries, when set, tracks in-flight sends.
	SendOTP    func(context.Context, string, string) error
	Deliveries *sync.WaitGroup

	NewSessionID   func() (string, error)
	ParseSessionID func(string) (string, error)
	NewOTP         func(int) (string, error)
	NewResetToken  func() (string, error)

	CheckPassword      func(string, string) []string
	NewValidationError func([]string) error
	HashPassword       func(string) (string, error)

	// PadResponse blocks until the initiation response may be sent.
	PadResponse func(context.Context, time.Time) error

	MetricInc func(int)
	EmitAudit func(context.Context, string, bool, string, string, error, func() map[string]string)

	Metrics PasswordResetMetrics
	Events  PasswordResetEvents
	Errors  PasswordResetErrors
}

// RunInitiatePasswordReset opens a reset session for the active account
// behind phone. Unknown phones receive the same result after the same delay.
func RunInitiatePasswordReset(ctx context.Context, phone string, deps PasswordResetDeps) (InitiatePasswordResetResult, error) {
	normalizePasswordResetDeps(&deps)

	if deps.Sessions == nil || deps.FindActiveByPhone == nil || deps.NewSessionID == nil || deps.NewOTP == nil || deps.NewResetToken == nil {
		return InitiatePasswordResetResult{}, deps.Errors.EngineNotReady
	}

	phone = strings.TrimSpace(phone)
	if phone == "" {
		deps.EmitAudit(ctx, deps.Events.Initiated, false, "", "", deps.Errors.InvalidPhone, func() map[string]string {
			return map[string]string{
				"reason": "empty_phone",
			}
		})
		return InitiatePasswordResetResult{}, deps.Errors.InvalidPhone
	}

	start := time.Now()
	sessionID, err := deps.NewSessionID()
	if err != nil {
		return InitiatePasswordResetResult{}, fmt.Errorf("%w: %v", deps.Errors.Internal, err)
	}

	expiresAt := deps.Now().Add(deps.Window)
	result := InitiatePasswordResetResult{
		SessionID: sessionID,
		Message:   fmt.Sprintf(deps.OTPMessage, phone),
		ExpiresAt: expiresAt,
	}

	account, err := deps.FindActiveByPhone(ctx, phone)
	switch {
	case err == nil:
		if err := openResetSession(ctx, sessionID, phone, account, expiresAt, deps); err != nil {
			return InitiatePasswordResetResult{}, err
		}
	case errors.Is(err, deps.Errors.AccountNotFound):
		// Spend the same generation work as the found path.
		_, _ = deps.NewOTP(deps.OTPDigits)
		_, _ = deps.NewResetToken()
		deps.Logger.Debug().Str("session_id", sessionID).Msg("password reset requested for unknown phone")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return InitiatePasswordResetResult{}, err
	default:
		deps.Logger.Error().Err(err).Str("session_id", sessionID).Msg("account lookup failed")
		mapped := fmt.Errorf("%w: %v", deps.Errors.AccountLookupFailed, err)
		deps.EmitAudit(ctx, deps.Events.Initiated, false, "", sessionID, mapped, nil)
		return InitiatePasswordResetResult{}, mapped
	}

	if err := deps.PadResponse(ctx, start); err != nil {
		return InitiatePasswordResetResult{}, err
	}

	deps.MetricInc(deps.Metrics.Initiated)
	deps.EmitAudit(ctx, deps.Events.Initiated, true, account.SubjectID, sessionID, nil, func() map[string]string {
		return map[string]string{
			"account_found": strconv.FormatBool(account.SubjectID != ""),
		}
	})
	return result, nil
}

func openResetSession(ctx context.Context, sessionID, phone string, account PasswordResetAccount, expiresAt time.Time, deps PasswordResetDeps) error {
	otp, err := deps.NewOTP(deps.OTPDigits)
	if err != nil {
		return fmt.Errorf("%w: %v", deps.Errors.Internal, err)
	}
	token, err := deps.NewResetToken()
	if err != nil {
		return fmt.Errorf("%w: %v", deps.Errors.Internal, err)
	}

	session := &stores.ResetSession{
		SubjectID:  account.SubjectID,
		OTP:        otp,
		ResetToken: token,
		ExpiresAt:  expiresAt.Unix(),
	}
	if err := deps.Sessions.Save(ctx, sessionID, session, deps.StoreTTL); err != nil {
		mapped := mapResetStoreError(err, deps)
		deps.MetricInc(deps.Metrics.StoreError)
		deps.Logger.Error().Err(err).Str("session_id", sessionID).Msg("reset session write failed")
		deps.EmitAudit(ctx, deps.Events.Initiated, false, account.SubjectID, sessionID, mapped, nil)
		return mapped
	}

	if deps.SendOTP != nil {
		if deps.Deliveries != nil {
			deps.Deliveries.Add(1)
		}
		go deliverOTP(context.WithoutCancel(ctx), sessionID, phone, otp, account.SubjectID, deps)
	}
	return nil
}

func deliverOTP(ctx context.Context, sessionID, phone, otp, subjectID string, deps PasswordResetDeps) {
	if deps.Deliveries != nil {
		defer deps.Deliveries.Done()
	}

	ctx, cancel := context.WithTimeout(ctx, otpDeliveryTimeout)
	defer cancel()

	if err := deps.SendOTP(ctx, phone, otp); err != nil {
		deps.Logger.Error().Err(err).Str("session_id", sessionID).Str("subject_id", subjectID).Msg("otp delivery failed")
	}
}

// RunVerifyPasswordResetOTP compares otp with the stored session code.
// Absent and expired sessions both report ResetOTPNotFound.
func RunVerifyPasswordResetOTP(ctx context.Context, sessionID, otp string, deps PasswordResetDeps) (VerifyOTPResult, error) {
	normalizePasswordResetDeps(&deps)

	if deps.Sessions == nil || deps.ParseSessionID == nil {
		return VerifyOTPResult{}, deps.Errors.EngineNotReady
	}

	sid, err := deps.ParseSessionID(sessionID)
	if err != nil {
		return VerifyOTPResult{}, deps.Errors.InvalidSessionID
	}

	if deps.MaxOTPAttempts > 0 && deps.Attempts != nil {
		if err := deps.Attempts.Hit(ctx, sid, deps.MaxOTPAttempts, deps.StoreTTL); err != nil {
			if errors.Is(err, rate.ErrRateLimited) {
				deps.MetricInc(deps.Metrics.AttemptsExceeded)
				deps.EmitAudit(ctx, deps.Events.OTPVerify, false, "", sid, deps.Errors.AttemptsExceeded, nil)
				return VerifyOTPResult{}, deps.Errors.AttemptsExceeded
			}
			deps.MetricInc(deps.Metrics.StoreError)
			deps.Logger.Error().Err(err).Str("session_id", sid).Msg("otp attempt counter failed")
			return VerifyOTPResult{}, fmt.Errorf("%w: %v", deps.Errors.StoreUnavailable, err)
		}
	}

	session, err := loadResetSession(ctx, sid, deps)
	if err != nil {
		if errors.Is(err, deps.Errors.SessionNotFound) {
			deps.MetricInc(deps.Metrics.NotFound)
			deps.EmitAudit(ctx, deps.Events.OTPVerify, false, "", sid, err, nil)
			return VerifyOTPResult{Outcome: ResetOTPNotFound}, nil
		}
		deps.EmitAudit(ctx, deps.Events.OTPVerify, false, "", sid, err, nil)
		return VerifyOTPResult{}, err
	}

	if subtle.ConstantTimeCompare([]byte(session.OTP), []byte(otp)) != 1 {
		deps.MetricInc(deps.Metrics.OTPInvalid)
		deps.EmitAudit(ctx, deps.Events.OTPVerify, false, session.SubjectID, sid, deps.Errors.OTPMismatch, nil)
		return VerifyOTPResult{Outcome: ResetOTPInvalid}, nil
	}

	deps.MetricInc(deps.Metrics.OTPValid)
	deps.EmitAudit(ctx, deps.Events.OTPVerify, true, session.SubjectID, sid, nil, nil)
	return VerifyOTPResult{
		Outcome:    ResetOTPValid,
		ResetToken: session.ResetToken,
	}, nil
}

// RunVerifyResetToken returns the session subject when token matches and
// the session window is still open. Every other outcome is "no match".
func RunVerifyResetToken(ctx context.Context, sessionID, token string, deps PasswordResetDeps) (string, bool, error) {
	normalizePasswordResetDeps(&deps)

	if deps.Sessions == nil || deps.ParseSessionID == nil {
		return "", false, deps.Errors.EngineNotReady
	}

	sid, err := deps.ParseSessionID(sessionID)
	if err != nil {
		return "", false, deps.Errors.InvalidSessionID
	}

	subjectID, ok, err := matchResetToken(ctx, sid, token, deps)
	if err != nil {
		deps.EmitAudit(ctx, deps.Events.TokenVerify, false, "", sid, err, nil)
		return "", false, err
	}
	if !ok {
		deps.MetricInc(deps.Metrics.TokenInvalid)
		deps.EmitAudit(ctx, deps.Events.TokenVerify, false, "", sid, deps.Errors.ResetTokenInvalid, nil)
		return "", false, nil
	}

	deps.MetricInc(deps.Metrics.TokenValid)
	deps.EmitAudit(ctx, deps.Events.TokenVerify, true, subjectID, sid, nil, nil)
	return subjectID, true, nil
}

// RunCompletePasswordReset validates the new password, checks the reset
// token, consumes the session when configured and stores the new hash.
//
// With ConsumeOnComplete the session is taken atomically after hashing, so
// of several concurrent completions with one token exactly one succeeds.
// A wrong token never consumes the session.
func RunCompletePasswordReset(ctx context.Context, sessionID, token, newPassword, confirm string, deps PasswordResetDeps) error {
	normalizePasswordResetDeps(&deps)

	if deps.Sessions == nil ||
		deps.ParseSessionID == nil ||
		deps.CheckPassword == nil ||
		deps.NewValidationError == nil ||
		deps.HashPassword == nil ||
		deps.UpdatePasswordHash == nil {
		return deps.Errors.EngineNotReady
	}

	sid, err := deps.ParseSessionID(sessionID)
	if err != nil {
		return deps.Errors.InvalidSessionID
	}

	if problems := deps.CheckPassword(newPassword, confirm); len(problems) > 0 {
		verr := deps.NewValidationError(problems)
		deps.EmitAudit(ctx, deps.Events.Completed, false, "", sid, verr, func() map[string]string {
			return map[string]string{
				"reason": "password_policy",
			}
		})
		return verr
	}

	subjectID, ok, err := matchResetToken(ctx, sid, token, deps)
	if err != nil {
		deps.EmitAudit(ctx, deps.Events.Completed, false, "", sid, err, nil)
		return err
	}
	if !ok {
		deps.MetricInc(deps.Metrics.TokenInvalid)
		deps.EmitAudit(ctx, deps.Events.Completed, false, "", sid, deps.Errors.ResetTokenInvalid, nil)
		return deps.Errors.ResetTokenInvalid
	}

	hash, err := deps.HashPassword(newPassword)
	if err != nil {
		deps.Logger.Error().Err(err).Str("subject_id", subjectID).Msg("password hash failed")
		return fmt.Errorf("%w: %v", deps.Errors.Internal, err)
	}

	// The session is consumed before the directory write. A failed write
	// needs a new reset.
	if deps.ConsumeOnComplete {
		taken, ok, err := takeResetSession(ctx, sid, token, deps)
		if err != nil {
			deps.EmitAudit(ctx, deps.Events.Completed, false, subjectID, sid, err, nil)
			return err
		}
		if !ok {
			deps.MetricInc(deps.Metrics.TokenInvalid)
			deps.EmitAudit(ctx, deps.Events.Completed, false, subjectID, sid, deps.Errors.ResetTokenInvalid, nil)
			return deps.Errors.ResetTokenInvalid
		}
		subjectID = taken
	}

	if err := deps.UpdatePasswordHash(ctx, subjectID, hash); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		mapped := fmt.Errorf("%w: %v", deps.Errors.AccountLookupFailed, err)
		deps.Logger.Error().Err(err).Str("subject_id", subjectID).Msg("password update failed")
		deps.EmitAudit(ctx, deps.Events.Completed, false, subjectID, sid, mapped, nil)
		return mapped
	}

	deps.MetricInc(deps.Metrics.Completed)
	deps.EmitAudit(ctx, deps.Events.Completed, true, subjectID, sid, nil, nil)
	return nil
}

func matchResetToken(ctx context.Context, sid, token string, deps PasswordResetDeps) (string, bool, error) {
	session, err := loadResetSession(ctx, sid, deps)
	if err != nil {
		if errors.Is(err, deps.Errors.SessionNotFound) {
			return "", false, nil
		}
		return "", false, err
	}

	if !sessionAccepts(session, token, deps.Now()) {
		return "", false, nil
	}
	return session.SubjectID, true, nil
}

// takeResetSession removes the session and re-checks token against the
// removed copy. A session already taken by a concurrent caller is no match.
func takeResetSession(ctx context.Context, sid, token string, deps PasswordResetDeps) (string, bool, error) {
	session, err := deps.Sessions.Take(ctx, sid)
	if err != nil {
		mapped := mapResetStoreError(err, deps)
		switch {
		case errors.Is(mapped, deps.Errors.SessionNotFound):
			return "", false, nil
		case errors.Is(mapped, deps.Errors.PayloadCorrupt):
			deps.Logger.Error().Err(err).Str("session_id", sid).Msg("malformed reset session payload")
		default:
			deps.MetricInc(deps.Metrics.StoreError)
			deps.Logger.Error().Err(err).Str("session_id", sid).Msg("reset session take failed")
		}
		return "", false, mapped
	}

	if !sessionAccepts(session, token, deps.Now()) {
		return "", false, nil
	}
	return session.SubjectID, true, nil
}

// sessionAccepts reports whether token matches and the window is open.
func sessionAccepts(session *stores.ResetSession, token string, now time.Time) bool {
	tokenMatch := subtle.ConstantTimeCompare([]byte(session.ResetToken), []byte(token)) == 1
	return tokenMatch && now.Before(time.Unix(session.ExpiresAt, 0))
}

func loadResetSession(ctx context.Context, sid string, deps PasswordResetDeps) (*stores.ResetSession, error) {
	session, err := deps.Sessions.Get(ctx, sid)
	if err == nil {
		return session, nil
	}

	mapped := mapResetStoreError(err, deps)
	switch {
	case errors.Is(mapped, deps.Errors.SessionNotFound):
	case errors.Is(mapped, deps.Errors.PayloadCorrupt):
		deps.Logger.Error().Err(err).Str("session_id", sid).Msg("malformed reset session payload")
	default:
		deps.MetricInc(deps.Metrics.StoreError)
		deps.Logger.Error().Err(err).Str("session_id", sid).Msg("reset session read failed")
	}
	return nil, mapped
}

func mapResetStoreError(err error, deps PasswordResetDeps) error {
	switch {
	case errors.Is(err, stores.ErrResetSessionNotFound):
		return deps.Errors.SessionNotFound
	case errors.Is(err, stores.ErrResetSessionCorrupt):
		return fmt.Errorf("%w: %v", deps.Errors.PayloadCorrupt, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("%w: %v", deps.Errors.StoreUnavailable, err)
	}
}

func normalizePasswordResetDeps(deps *PasswordResetDeps) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.OTPMessage == "" {
		deps.OTPMessage = "OTP sent to %s"
	}
	if deps.PadResponse == nil {
		deps.PadResponse = func(context.Context, time.Time) error { return nil }
	}
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = func(context.Context, string, bool, string, string, error, func() map[string]string) {}
	}
}
