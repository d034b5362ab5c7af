package goGate

import (
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/goGate/password"
)

// Config is the complete engine configuration. Use DefaultConfig as a base.
type Config struct {
	Tokens        TokenConfig
	PasswordReset PasswordResetConfig
	Store         StoreConfig
	Password      PasswordConfig
	Authorization AuthorizationConfig
	Audit         AuditConfig
	Metrics       MetricsConfig
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig controls access and refresh token issuance.
type TokenConfig struct {
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Issuer     string
	Audience   string
	// Leeway tolerates clock skew on exp/iat. Zero enforces expiry exactly.
	Leeway time.Duration
}

/*
====================================
PASSWORD RESET CONFIG
====================================
*/

// PasswordResetConfig controls the reset state machine.
type PasswordResetConfig struct {
	// Window is the validity of a session: expires_at = now + Window.
	Window time.Duration
	// StoreTTL is the store-level TTL. It must cover Window.
	StoreTTL  time.Duration
	OTPDigits int
	KeyPrefix string
	// MinResponseTime is the floor applied to InitiatePasswordReset so found
	// and not-found phones take the same time. Random jitter is added on top.
	MinResponseTime time.Duration
	// ConsumeOnComplete deletes the session after a successful
	// CompletePasswordReset.
	ConsumeOnComplete bool
	// MaxOTPAttempts caps OTP verifications per session. Zero disables the cap.
	MaxOTPAttempts int
	// OTPMessage is formatted with the phone number for the initiation response.
	OTPMessage string
}

/*
====================================
STORE CONFIG
====================================
*/

// StoreConfig bounds ephemeral store round trips.
type StoreConfig struct {
	OperationTimeout time.Duration
	RedisPrefix      string
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds Argon2id parameters and the new-password policy.
type PasswordConfig struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
	MinLength   int
	MaxLength   int
}

func (c PasswordConfig) argon2() password.Config {
	return password.Config{
		Memory:           c.Memory,
		Time:             c.Time,
		Parallelism:      c.Parallelism,
		SaltLength:       c.SaltLength,
		KeyLength:        c.KeyLength,
		MinPasswordBytes: c.MinLength,
		MaxPasswordBytes: c.MaxLength,
	}
}

/*
====================================
AUTHORIZATION CONFIG
====================================
*/

// AuthorizationConfig controls the decision point.
type AuthorizationConfig struct {
	// DecisionCacheSize bounds the policy decision cache. Zero disables it.
	DecisionCacheSize int
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	pw := password.DefaultConfig()
	return Config{
		Tokens: TokenConfig{
			AccessTTL:  5 * time.Minute,
			RefreshTTL: 14 * 24 * time.Hour,
		},
		PasswordReset: PasswordResetConfig{
			Window:            10 * time.Minute,
			StoreTTL:          660 * time.Second,
			OTPDigits:         6,
			KeyPrefix:         "prs",
			MinResponseTime:   250 * time.Millisecond,
			ConsumeOnComplete: true,
			MaxOTPAttempts:    0,
			OTPMessage:        "OTP sent to %s",
		},
		Store: StoreConfig{
			OperationTimeout: 2 * time.Second,
			RedisPrefix:      "gg",
		},
		Password: PasswordConfig{
			Memory:      pw.Memory,
			Time:        pw.Time,
			Parallelism: pw.Parallelism,
			SaltLength:  pw.SaltLength,
			KeyLength:   pw.KeyLength,
			MinLength:   10,
			MaxLength:   password.DefaultMaxPasswordBytes,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

/*
====================================
VALIDATION
====================================
*/

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	// Tokens
	if c.Tokens.AccessTTL <= 0 {
		return errors.New("Tokens AccessTTL must be > 0")
	}
	if c.Tokens.RefreshTTL < c.Tokens.AccessTTL {
		return errors.New("Tokens RefreshTTL must be >= AccessTTL")
	}
	if c.Tokens.Leeway < 0 || c.Tokens.Leeway > 2*time.Minute {
		return errors.New("Tokens Leeway must be within [0, 2m]")
	}

	// Password reset
	if c.PasswordReset.Window <= 0 {
		return errors.New("PasswordReset Window must be > 0")
	}
	if c.PasswordReset.StoreTTL < c.PasswordReset.Window {
		return errors.New("PasswordReset StoreTTL must cover Window")
	}
	if c.PasswordReset.OTPDigits < 6 || c.PasswordReset.OTPDigits > 10 {
		return errors.New("PasswordReset OTPDigits must be between 6 and 10")
	}
	if strings.TrimSpace(c.PasswordReset.KeyPrefix) == "" {
		return errors.New("PasswordReset KeyPrefix must be set")
	}
	if c.PasswordReset.MinResponseTime < 0 || c.PasswordReset.MinResponseTime > 5*time.Second {
		return errors.New("PasswordReset MinResponseTime must be within [0, 5s]")
	}
	if c.PasswordReset.MaxOTPAttempts < 0 {
		return errors.New("PasswordReset MaxOTPAttempts must be >= 0")
	}

	// Store
	if c.Store.OperationTimeout <= 0 {
		return errors.New("Store OperationTimeout must be > 0")
	}

	// Password
	if c.Password.MinLength < 1 {
		return errors.New("Password MinLength must be >= 1")
	}
	if c.Password.MaxLength < c.Password.MinLength {
		return errors.New("Password MaxLength must be >= MinLength")
	}

	// Authorization
	if c.Authorization.DecisionCacheSize < 0 {
		return errors.New("Authorization DecisionCacheSize must be >= 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	return nil
}
