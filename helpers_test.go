package goGate

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/goGate/keys"
	"github.com/MrEthical07/goGate/password"
	"github.com/MrEthical07/goGate/policy"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeDirectory struct {
	mu       sync.Mutex
	byPhone  map[string]Account
	byLogin  map[string]Account
	updated  map[string]string
	cleared  map[string]bool
	writes   int
	lookErr  error
	writeErr error
}

func newFakeDirectory(accounts ...Account) *fakeDirectory {
	d := &fakeDirectory{
		byPhone: map[string]Account{},
		byLogin: map[string]Account{},
		updated: map[string]string{},
		cleared: map[string]bool{},
	}
	for _, a := range accounts {
		d.byPhone[a.Phone] = a
		d.byLogin[a.Login] = a
	}
	return d
}

func (d *fakeDirectory) FindActiveByPhone(_ context.Context, phone string) (Account, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lookErr != nil {
		return Account{}, d.lookErr
	}
	a, ok := d.byPhone[phone]
	if !ok || !a.Active {
		return Account{}, ErrAccountNotFound
	}
	return a, nil
}

func (d *fakeDirectory) FindByLogin(_ context.Context, login string) (Account, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lookErr != nil {
		return Account{}, d.lookErr
	}
	a, ok := d.byLogin[login]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return a, nil
}

func (d *fakeDirectory) UpdatePasswordHash(_ context.Context, subjectID, hash string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.writeErr != nil {
		return d.writeErr
	}
	d.writes++
	d.updated[subjectID] = hash
	d.cleared[subjectID] = true
	for login, a := range d.byLogin {
		if a.SubjectID == subjectID {
			a.PasswordHash = hash
			a.ForcePwChange = false
			d.byLogin[login] = a
			d.byPhone[a.Phone] = a
		}
	}
	return nil
}

func (d *fakeDirectory) writeCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.writes
}

func (d *fakeDirectory) updatedHash(subjectID string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h, ok := d.updated[subjectID]
	return h, ok
}

// recordingSender keeps the last OTP per phone.
type recordingSender struct {
	mu   sync.Mutex
	otps map[string]string
}

func newRecordingSender() *recordingSender {
	return &recordingSender{otps: map[string]string{}}
}

func (s *recordingSender) SendOTP(_ context.Context, phone, otp string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.otps[phone] = otp
	return nil
}

// last waits briefly for the OTP to arrive, since delivery runs in the
// background.
func (s *recordingSender) last(phone string) string {
	deadline := time.Now().Add(2 * time.Second)
	for {
		otp := s.peek(phone)
		if otp != "" || time.Now().After(deadline) {
			return otp
		}
		time.Sleep(time.Millisecond)
	}
}

func (s *recordingSender) peek(phone string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.otps[phone]
}

type testEnv struct {
	engine *Engine
	mr     *miniredis.Miniredis
	rdb    *redis.Client
	clock  *testClock
	dir    *fakeDirectory
	sender *recordingSender
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.PasswordReset.MinResponseTime = 0
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Metrics.Enabled = true
	return cfg
}

func testPolicy(t *testing.T) policy.Evaluator {
	t.Helper()

	enforcer, err := policy.NewEnforcer(policy.Policy{
		Rules: []policy.Rule{
			{Subject: "anon", Domain: "*", Object: "/auth/*", Action: "POST"},
			{Subject: "user", Domain: "*", Object: "/products/:id", Action: "GET"},
			{Subject: "admin", Domain: "*.example.com", Object: "/users/*", Action: "GET|PUT|DELETE"},
		},
		Inherits: map[string][]string{
			"superadmin": {"admin"},
			"admin":      {"user"},
		},
	}, policy.Options{})
	require.NoError(t, err)
	return enforcer
}

func hashPassword(t *testing.T, cfg Config, pw string) string {
	t.Helper()

	h, err := password.NewArgon2(cfg.Password.argon2())
	require.NoError(t, err)
	hash, err := h.Hash(pw)
	require.NoError(t, err)
	return hash
}

func newTestEnv(t *testing.T, mutate func(*Config)) *testEnv {
	t.Helper()
	return buildTestEnv(t, mutate, nil)
}

// newAuditedTestEnv enables the audit dispatcher and routes it into sink.
func newAuditedTestEnv(t *testing.T, sink AuditSink) *testEnv {
	t.Helper()
	return buildTestEnv(t, func(c *Config) {
		c.Audit.Enabled = true
		c.Audit.BufferSize = 64
		c.Audit.DropIfFull = false
	}, func(b *Builder) *Builder {
		return b.WithAuditSink(sink)
	})
}

func buildTestEnv(t *testing.T, mutate func(*Config), extra func(*Builder) *Builder) *testEnv {
	t.Helper()

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	ring := mustKeys(t)

	dir := newFakeDirectory(
		Account{
			SubjectID:     "3f1c2a9e-0000-4000-8000-000000000001",
			Login:         "R-1001",
			Phone:         "+15550001",
			PasswordHash:  hashPassword(t, cfg, "initial-password"),
			Role:          RoleUser,
			Active:        true,
			ForcePwChange: true,
		},
		Account{
			SubjectID:    "3f1c2a9e-0000-4000-8000-000000000002",
			Login:        "R-1002",
			Phone:        "+15550002",
			PasswordHash: hashPassword(t, cfg, "dormant-password"),
			Role:         RoleAdmin,
			Active:       false,
		},
	)
	sender := newRecordingSender()
	clock := newTestClock()

	b := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithKeys(ring).
		WithAccounts(dir).
		WithOTPSender(sender).
		WithPolicy(testPolicy(t)).
		WithClock(clock.Now)
	if extra != nil {
		b = extra(b)
	}
	engine, err := b.Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	return &testEnv{
		engine: engine,
		mr:     mr,
		rdb:    rdb,
		clock:  clock,
		dir:    dir,
		sender: sender,
	}
}

func mustKeys(t *testing.T) *keys.Keyring {
	t.Helper()

	ring, err := keys.Generate()
	require.NoError(t, err)
	t.Cleanup(ring.Destroy)
	return ring
}
