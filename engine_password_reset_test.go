package goGate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/goGate/internal/stores"
	"github.com/MrEthical07/goGate/store"
)

const (
	activePhone   = "+15550001"
	activeSubject = "3f1c2a9e-0000-4000-8000-000000000001"
)

func TestInitiatePasswordResetStoresSessionAndSendsOTP(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	res, err := env.engine.InitiatePasswordReset(ctx, activePhone)
	require.NoError(t, err)

	_, err = uuid.Parse(res.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "OTP sent to "+activePhone, res.Message)
	assert.True(t, res.OTPSent)
	assert.Equal(t, env.clock.Now().Add(10*time.Minute), res.OTPExpiry)

	key := "gg:prs:" + res.SessionID
	require.True(t, env.mr.Exists(key))
	assert.Equal(t, 660*time.Second, env.mr.TTL(key))

	session, err := env.engine.resetStore.Get(ctx, res.SessionID)
	require.NoError(t, err)
	assert.Equal(t, activeSubject, session.SubjectID)
	assert.Len(t, session.OTP, 6)
	assert.Equal(t, env.sender.last(activePhone), session.OTP)
	assert.NotEmpty(t, session.ResetToken)
	assert.Equal(t, res.OTPExpiry.Unix(), session.ExpiresAt)
}

func TestInitiatePasswordResetUnknownPhoneLooksIdentical(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	known, err := env.engine.InitiatePasswordReset(ctx, activePhone)
	require.NoError(t, err)

	for _, phone := range []string{"+15559999", "+15550002"} {
		unknown, err := env.engine.InitiatePasswordReset(ctx, phone)
		require.NoError(t, err, phone)

		assert.Equal(t, "OTP sent to "+phone, unknown.Message)
		assert.Equal(t, known.OTPSent, unknown.OTPSent)
		assert.Equal(t, known.OTPExpiry, unknown.OTPExpiry)
		_, err = uuid.Parse(unknown.SessionID)
		require.NoError(t, err)

		assert.False(t, env.mr.Exists("gg:prs:"+unknown.SessionID))
		assert.Empty(t, env.sender.peek(phone))
	}
}

func TestInitiatePasswordResetResponseFloor(t *testing.T) {
	env := newTestEnv(t, func(c *Config) {
		c.PasswordReset.MinResponseTime = 80 * time.Millisecond
	})

	for _, phone := range []string{activePhone, "+15559999"} {
		start := time.Now()
		_, err := env.engine.InitiatePasswordReset(context.Background(), phone)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond, phone)
	}
}

// slowSender holds every delivery for delay.
type slowSender struct {
	delay time.Duration
	inner *recordingSender
}

func (s slowSender) SendOTP(ctx context.Context, phone, otp string) error {
	time.Sleep(s.delay)
	return s.inner.SendOTP(ctx, phone, otp)
}

func TestInitiatePasswordResetDoesNotWaitForDelivery(t *testing.T) {
	cfg := testConfig()
	sender := newRecordingSender()

	engine, err := New().
		WithConfig(cfg).
		WithStore(store.NewMemory(64)).
		WithKeys(mustKeys(t)).
		WithAccounts(newFakeDirectory(Account{SubjectID: "S1", Login: "L1", Phone: "P1", Role: RoleUser, Active: true})).
		WithOTPSender(slowSender{delay: 500 * time.Millisecond, inner: sender}).
		Build()
	require.NoError(t, err)

	start := time.Now()
	_, err = engine.InitiatePasswordReset(context.Background(), "P1")
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 400*time.Millisecond)
	assert.Empty(t, sender.peek("P1"))

	// Close waits for the in-flight delivery.
	engine.Close()
	assert.NotEmpty(t, sender.peek("P1"))
}

func TestInitiatePasswordResetRejectsEmptyPhone(t *testing.T) {
	env := newTestEnv(t, nil)

	_, err := env.engine.InitiatePasswordReset(context.Background(), "   ")
	require.ErrorIs(t, err, ErrInvalidPhone)
	assert.Equal(t, KindBadRequest, KindOf(err))
}

func TestInitiatePasswordResetDirectoryFailureIsInternal(t *testing.T) {
	env := newTestEnv(t, nil)
	env.dir.lookErr = errors.New("connection refused")

	_, err := env.engine.InitiatePasswordReset(context.Background(), activePhone)
	require.ErrorIs(t, err, ErrAccountLookupFailed)
	assert.Equal(t, KindInternal, KindOf(err))
	assert.NotContains(t, PublicMessage(err), "connection refused")
}

func TestVerifyOTPScenario(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	sessionID := uuid.NewString()

	require.NoError(t, env.engine.resetStore.Save(ctx, sessionID, &stores.ResetSession{
		SubjectID:  activeSubject,
		OTP:        "482913",
		ResetToken: "Tk9XqJ3m",
		ExpiresAt:  env.clock.Now().Add(10 * time.Minute).Unix(),
	}, 660*time.Second))

	res, err := env.engine.VerifyPasswordResetOTP(ctx, sessionID, "482913")
	require.NoError(t, err)
	assert.Equal(t, OTPValid, res.Status)
	assert.Equal(t, "Tk9XqJ3m", res.ResetToken)

	res, err = env.engine.VerifyPasswordResetOTP(ctx, sessionID, "000000")
	require.NoError(t, err)
	assert.Equal(t, OTPInvalid, res.Status)
	assert.Empty(t, res.ResetToken)

	subject, ok, err := env.engine.VerifyResetToken(ctx, sessionID, "Tk9XqJ3m")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, activeSubject, subject)

	env.clock.Advance(10*time.Minute + time.Second)

	subject, ok, err = env.engine.VerifyResetToken(ctx, sessionID, "Tk9XqJ3m")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, subject)
}

func TestVerifyOTPIsReadOnly(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	res, err := env.engine.InitiatePasswordReset(ctx, activePhone)
	require.NoError(t, err)
	otp := env.sender.last(activePhone)

	for i := 0; i < 3; i++ {
		got, err := env.engine.VerifyPasswordResetOTP(ctx, res.SessionID, otp)
		require.NoError(t, err)
		assert.Equal(t, OTPValid, got.Status)
	}
}

func TestVerifyOTPNotFoundForUnknownAndExpiredSessions(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	res, err := env.engine.VerifyPasswordResetOTP(ctx, uuid.NewString(), "123456")
	require.NoError(t, err)
	assert.Equal(t, OTPNotFound, res.Status)

	initiated, err := env.engine.InitiatePasswordReset(ctx, activePhone)
	require.NoError(t, err)
	otp := env.sender.last(activePhone)

	env.mr.FastForward(661 * time.Second)

	res, err = env.engine.VerifyPasswordResetOTP(ctx, initiated.SessionID, otp)
	require.NoError(t, err)
	assert.Equal(t, OTPNotFound, res.Status)

	_, ok, err := env.engine.VerifyResetToken(ctx, initiated.SessionID, "anything")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyOTPRejectsMalformedSessionID(t *testing.T) {
	env := newTestEnv(t, nil)

	_, err := env.engine.VerifyPasswordResetOTP(context.Background(), "not-a-uuid", "123456")
	require.ErrorIs(t, err, ErrInvalidSessionID)
	assert.Equal(t, KindBadRequest, KindOf(err))
}

func TestVerifyOTPStoreOutageIsInternal(t *testing.T) {
	env := newTestEnv(t, nil)
	sessionID := uuid.NewString()
	env.mr.Close()

	_, err := env.engine.VerifyPasswordResetOTP(context.Background(), sessionID, "123456")
	require.ErrorIs(t, err, ErrStoreUnavailable)
	assert.Equal(t, KindInternal, KindOf(err))

	_, ok, err := env.engine.VerifyResetToken(context.Background(), sessionID, "token")
	require.ErrorIs(t, err, ErrStoreUnavailable)
	assert.False(t, ok)
}

func TestVerifyOTPCorruptPayloadIsInternal(t *testing.T) {
	env := newTestEnv(t, nil)
	sessionID := uuid.NewString()
	require.NoError(t, env.mr.Set("gg:prs:"+sessionID, "\x01garbage"))

	_, err := env.engine.VerifyPasswordResetOTP(context.Background(), sessionID, "123456")
	require.ErrorIs(t, err, ErrResetPayloadCorrupt)
	assert.Equal(t, KindInternal, KindOf(err))
}

func TestVerifyResetTokenRequiresExactMatch(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	res, err := env.engine.InitiatePasswordReset(ctx, activePhone)
	require.NoError(t, err)
	otp, err := env.engine.VerifyPasswordResetOTP(ctx, res.SessionID, env.sender.last(activePhone))
	require.NoError(t, err)
	require.Equal(t, OTPValid, otp.Status)

	for _, candidate := range []string{"", otp.ResetToken[:len(otp.ResetToken)-1], otp.ResetToken + "A"} {
		_, ok, err := env.engine.VerifyResetToken(ctx, res.SessionID, candidate)
		require.NoError(t, err)
		assert.False(t, ok, candidate)
	}

	subject, ok, err := env.engine.VerifyResetToken(ctx, res.SessionID, otp.ResetToken)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, activeSubject, subject)
}

func TestCompletePasswordResetFullFlow(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	res, err := env.engine.InitiatePasswordReset(ctx, activePhone)
	require.NoError(t, err)
	otp, err := env.engine.VerifyPasswordResetOTP(ctx, res.SessionID, env.sender.last(activePhone))
	require.NoError(t, err)
	require.Equal(t, OTPValid, otp.Status)

	require.NoError(t, env.engine.CompletePasswordReset(ctx, res.SessionID, otp.ResetToken, "brand-new-password", "brand-new-password"))

	hash, ok := env.dir.updatedHash(activeSubject)
	require.True(t, ok)
	assert.True(t, env.dir.cleared[activeSubject])
	assert.NotContains(t, hash, "brand-new-password")

	login, err := env.engine.Login(ctx, "R-1001", "brand-new-password")
	require.NoError(t, err)
	assert.False(t, login.ForcePwChange)

	// Consumed: the token cannot complete a second reset.
	err = env.engine.CompletePasswordReset(ctx, res.SessionID, otp.ResetToken, "another-password", "another-password")
	require.ErrorIs(t, err, ErrResetTokenInvalid)
	assert.False(t, env.mr.Exists("gg:prs:"+res.SessionID))
}

func TestCompletePasswordResetWithoutConsume(t *testing.T) {
	env := newTestEnv(t, func(c *Config) {
		c.PasswordReset.ConsumeOnComplete = false
	})
	ctx := context.Background()

	res, err := env.engine.InitiatePasswordReset(ctx, activePhone)
	require.NoError(t, err)
	otp, err := env.engine.VerifyPasswordResetOTP(ctx, res.SessionID, env.sender.last(activePhone))
	require.NoError(t, err)

	require.NoError(t, env.engine.CompletePasswordReset(ctx, res.SessionID, otp.ResetToken, "brand-new-password", "brand-new-password"))
	assert.True(t, env.mr.Exists("gg:prs:"+res.SessionID))
}

func TestCompletePasswordResetValidation(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	err := env.engine.CompletePasswordReset(ctx, uuid.NewString(), "token", "short", "different")

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Errors, 2)
	assert.Contains(t, verr.Errors, "passwords do not match")
	assert.ErrorIs(t, err, ErrBadRequest)
	assert.Equal(t, KindBadRequest, KindOf(err))
	assert.Equal(t, verr.Error(), PublicMessage(err))
}

func TestCompletePasswordResetWrongToken(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	res, err := env.engine.InitiatePasswordReset(ctx, activePhone)
	require.NoError(t, err)

	err = env.engine.CompletePasswordReset(ctx, res.SessionID, "wrong", "brand-new-password", "brand-new-password")
	require.ErrorIs(t, err, ErrResetTokenInvalid)
	assert.Equal(t, KindBadRequest, KindOf(err))

	_, updated := env.dir.updatedHash(activeSubject)
	assert.False(t, updated)
	assert.True(t, env.mr.Exists("gg:prs:"+res.SessionID))
}

func TestOTPAttemptCap(t *testing.T) {
	env := newTestEnv(t, func(c *Config) {
		c.PasswordReset.MaxOTPAttempts = 3
	})
	ctx := context.Background()

	res, err := env.engine.InitiatePasswordReset(ctx, activePhone)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		got, err := env.engine.VerifyPasswordResetOTP(ctx, res.SessionID, "000000")
		require.NoError(t, err)
		assert.Equal(t, OTPInvalid, got.Status)
	}

	_, err = env.engine.VerifyPasswordResetOTP(ctx, res.SessionID, env.sender.last(activePhone))
	require.ErrorIs(t, err, ErrOTPAttemptsExceeded)
	assert.Equal(t, KindUnauthorized, KindOf(err))
	assert.Equal(t, uint64(1), env.engine.MetricsSnapshot().Counters[MetricResetOTPAttemptsExceeded])
}

func TestOTPUncappedByDefault(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	res, err := env.engine.InitiatePasswordReset(ctx, activePhone)
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		_, err := env.engine.VerifyPasswordResetOTP(ctx, res.SessionID, "000000")
		require.NoError(t, err)
	}
	got, err := env.engine.VerifyPasswordResetOTP(ctx, res.SessionID, env.sender.last(activePhone))
	require.NoError(t, err)
	assert.Equal(t, OTPValid, got.Status)
}

func TestConcurrentVerifyOTP(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	res, err := env.engine.InitiatePasswordReset(ctx, activePhone)
	require.NoError(t, err)
	otp := env.sender.last(activePhone)

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := env.engine.VerifyPasswordResetOTP(ctx, res.SessionID, otp)
			if err != nil {
				errs <- err
				return
			}
			if got.Status != OTPValid {
				errs <- errors.New("unexpected status " + got.Status.String())
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestPasswordResetOnMemoryStore(t *testing.T) {
	cfg := testConfig()
	ring := mustKeys(t)
	clock := newTestClock()
	sender := newRecordingSender()

	engine, err := New().
		WithConfig(cfg).
		WithStore(store.NewMemory(64).WithClock(clock.Now)).
		WithKeys(ring).
		WithAccounts(newFakeDirectory(Account{SubjectID: "S1", Login: "L1", Phone: "P1", Role: RoleUser, Active: true})).
		WithOTPSender(sender).
		WithClock(clock.Now).
		Build()
	require.NoError(t, err)
	defer engine.Close()

	ctx := context.Background()
	res, err := engine.InitiatePasswordReset(ctx, "P1")
	require.NoError(t, err)

	got, err := engine.VerifyPasswordResetOTP(ctx, res.SessionID, sender.last("P1"))
	require.NoError(t, err)
	assert.Equal(t, OTPValid, got.Status)

	clock.Advance(661 * time.Second)

	got, err = engine.VerifyPasswordResetOTP(ctx, res.SessionID, sender.last("P1"))
	require.NoError(t, err)
	assert.Equal(t, OTPNotFound, got.Status)
}

func TestPasswordResetWithoutDirectoryNotReady(t *testing.T) {
	engine, err := New().WithConfig(testConfig()).WithKeys(mustKeys(t)).Build()
	require.NoError(t, err)
	defer engine.Close()

	_, err = engine.InitiatePasswordReset(context.Background(), activePhone)
	require.ErrorIs(t, err, ErrEngineNotReady)
	assert.Equal(t, KindInternal, KindOf(err))
}
