package goGate

import (
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/MrEthical07/goGate/internal/audit"
	"github.com/MrEthical07/goGate/internal/rate"
	"github.com/MrEthical07/goGate/internal/stores"
	"github.com/MrEthical07/goGate/jwt"
	"github.com/MrEthical07/goGate/password"
	"github.com/MrEthical07/goGate/policy"
	"github.com/MrEthical07/goGate/store"
)

// Builder assembles an Engine. Builder instances are configured during
// initialization and can be built once.
type Builder struct {
	config Config
	redis  redis.UniversalClient
	store  store.Store

	keys      jwt.KeySource
	accounts  AccountDirectory
	otpSender OTPSender
	policy    policy.Evaluator
	rules     *policy.Policy

	auditSink AuditSink
	logger    zerolog.Logger
	clock     func() time.Time

	built bool
}

// New returns a Builder with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
		logger: zerolog.Nop(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithRedis backs the reset session store and OTP attempt counter with
// Redis. Every Redis round trip is bounded by Store.OperationTimeout.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithStore sets the ephemeral store directly. It takes precedence over
// WithRedis for reset sessions.
func (b *Builder) WithStore(s store.Store) *Builder {
	b.store = s
	return b
}

// WithKeys sets the signing keypair. Required.
func (b *Builder) WithKeys(keys jwt.KeySource) *Builder {
	b.keys = keys
	return b
}

// WithAccounts sets the account directory used by password reset and login.
func (b *Builder) WithAccounts(accounts AccountDirectory) *Builder {
	b.accounts = accounts
	return b
}

// WithOTPSender sets the out-of-band OTP channel. Without one, reset OTPs
// are stored but never delivered.
func (b *Builder) WithOTPSender(sender OTPSender) *Builder {
	b.otpSender = sender
	return b
}

// WithPolicy sets the evaluator used by Authorize.
func (b *Builder) WithPolicy(p policy.Evaluator) *Builder {
	b.policy = p
	return b
}

// WithRules compiles p into the default Enforcer at Build, with a decision
// cache of Authorization.DecisionCacheSize entries. WithPolicy takes
// precedence.
func (b *Builder) WithRules(p policy.Policy) *Builder {
	b.rules = &p
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithLogger(logger zerolog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock overrides the time source for token and reset session
// expiry. Intended for tests.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.clock = now
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires every component.
//
// Build may return an error when the configuration is invalid or a
// required dependency is missing. A Builder can only be built once.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := b.config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.keys == nil {
		return nil, errors.New("signing keys required")
	}

	clock := b.clock
	if clock == nil {
		clock = time.Now
	}

	engine := &Engine{
		config:    cfg,
		accounts:  b.accounts,
		otpSender: b.otpSender,
		policy:    b.policy,
		logger:    b.logger,
		clock:     clock,
	}

	// -------- POLICY --------
	if engine.policy == nil && b.rules != nil {
		enforcer, err := policy.NewEnforcer(*b.rules, policy.Options{
			DecisionCacheSize: cfg.Authorization.DecisionCacheSize,
		})
		if err != nil {
			return nil, err
		}
		engine.policy = enforcer
	}

	// -------- EPHEMERAL STORE --------
	backend := b.store
	switch {
	case backend != nil:
	case b.redis != nil:
		backend = store.NewRedis(b.redis, store.Options{
			Prefix:  cfg.Store.RedisPrefix,
			Timeout: cfg.Store.OperationTimeout,
		})
	default:
		b.logger.Warn().Msg("no redis client configured, reset sessions are kept in process memory")
		backend = store.NewMemory(store.DefaultMemorySize).WithClock(clock)
	}
	engine.resetStore = stores.NewResetSessionStore(backend, cfg.PasswordReset.KeyPrefix)

	// -------- OTP ATTEMPT COUNTER --------
	if cfg.PasswordReset.MaxOTPAttempts > 0 {
		if b.redis != nil {
			engine.attempts = rate.NewRedisCounter(b.redis, cfg.Store.RedisPrefix+":ro", cfg.Store.OperationTimeout)
		} else {
			engine.attempts = rate.NewMemoryCounter(store.DefaultMemorySize, cfg.PasswordReset.StoreTTL).WithClock(clock)
		}
	}

	// -------- TOKENS --------
	tokens, err := jwt.NewManager(jwt.Config{
		AccessTTL:  cfg.Tokens.AccessTTL,
		RefreshTTL: cfg.Tokens.RefreshTTL,
		Issuer:     cfg.Tokens.Issuer,
		Audience:   cfg.Tokens.Audience,
		Leeway:     cfg.Tokens.Leeway,
		Now:        clock,
	}, b.keys)
	if err != nil {
		return nil, err
	}
	engine.tokens = tokens

	// -------- PASSWORDS --------
	hasher, err := password.NewArgon2(cfg.Password.argon2())
	if err != nil {
		return nil, err
	}
	engine.hasher = hasher

	engine.audit = audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink)
	engine.metrics = NewMetrics(cfg.Metrics)
	engine.flows = engine.buildFlowDeps()

	b.built = true

	return engine, nil
}
