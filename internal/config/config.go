// Package config loads the server binary's settings from an optional YAML
// file and GOGATE_* environment variables. Environment values win.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	goGate "github.com/MrEthical07/goGate"
)

const envPrefix = "GOGATE_"

// Config is the complete server configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Redis    RedisConfig    `yaml:"redis"`
	Postgres PostgresConfig `yaml:"postgres"`
	Keys     KeysConfig     `yaml:"keys"`
	Policy   PolicyConfig   `yaml:"policy"`
	Log      LogConfig      `yaml:"log"`
	Tokens   TokensConfig   `yaml:"tokens"`
	Reset    ResetConfig    `yaml:"reset"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Audit    AuditConfig    `yaml:"audit"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// RedisConfig selects the ephemeral store. An empty Addr keeps reset
// sessions in process memory.
type RedisConfig struct {
	Addr             string        `yaml:"addr"`
	Password         string        `yaml:"password"`
	DB               int           `yaml:"db"`
	Prefix           string        `yaml:"prefix"`
	OperationTimeout time.Duration `yaml:"operation_timeout"`
}

type PostgresConfig struct {
	DSN          string        `yaml:"dsn"`
	Table        string        `yaml:"table"`
	QueryTimeout time.Duration `yaml:"query_timeout"`
}

type KeysConfig struct {
	Dir string `yaml:"dir"`
}

type PolicyConfig struct {
	File              string `yaml:"file"`
	DecisionCacheSize int    `yaml:"decision_cache_size"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

type TokensConfig struct {
	Issuer   string `yaml:"issuer"`
	Audience string `yaml:"audience"`
}

type ResetConfig struct {
	MinResponseTime time.Duration `yaml:"min_response_time"`
	MaxOTPAttempts  int           `yaml:"max_otp_attempts"`
	// DevOTPStdout prints OTPs to stdout instead of sending them. Never enable
	// in production.
	DevOTPStdout bool `yaml:"dev_otp_stdout"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Latency bool `yaml:"latency"`

	// OTel logs an OpenTelemetry collection every OTelInterval.
	OTel         bool          `yaml:"otel"`
	OTelInterval time.Duration `yaml:"otel_interval"`
}

type AuditConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	engine := goGate.DefaultConfig()
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 20 * time.Second,
		},
		Redis: RedisConfig{
			Prefix:           engine.Store.RedisPrefix,
			OperationTimeout: engine.Store.OperationTimeout,
		},
		Postgres: PostgresConfig{
			Table:        "private.users",
			QueryTimeout: 3 * time.Second,
		},
		Keys: KeysConfig{
			Dir: "keys",
		},
		Policy: PolicyConfig{
			File:              "policy.csv",
			DecisionCacheSize: 4096,
		},
		Log: LogConfig{
			Level: "info",
		},
		Reset: ResetConfig{
			MinResponseTime: engine.PasswordReset.MinResponseTime,
		},
		Metrics: MetricsConfig{
			Enabled:      true,
			OTelInterval: time.Minute,
		},
	}
}

// Load reads path when non-empty, applies environment overrides and validates
// the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := decode(bytes.NewReader(raw), &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate checks settings the engine config does not cover.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Server.Addr) == "" {
		return errors.New("server addr is required")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("server shutdown timeout must be > 0")
	}
	if strings.TrimSpace(c.Keys.Dir) == "" {
		return errors.New("keys dir is required")
	}
	if strings.TrimSpace(c.Policy.File) == "" {
		return errors.New("policy file is required")
	}
	if c.Metrics.OTel && c.Metrics.OTelInterval <= 0 {
		return errors.New("metrics otel interval must be > 0")
	}
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	engine := c.Engine()
	return engine.Validate()
}

// Engine maps the server settings onto the engine configuration.
func (c Config) Engine() goGate.Config {
	cfg := goGate.DefaultConfig()
	cfg.Tokens.Issuer = c.Tokens.Issuer
	cfg.Tokens.Audience = c.Tokens.Audience
	cfg.PasswordReset.MinResponseTime = c.Reset.MinResponseTime
	cfg.PasswordReset.MaxOTPAttempts = c.Reset.MaxOTPAttempts
	cfg.Store.RedisPrefix = c.Redis.Prefix
	cfg.Store.OperationTimeout = c.Redis.OperationTimeout
	cfg.Authorization.DecisionCacheSize = c.Policy.DecisionCacheSize
	cfg.Metrics.Enabled = c.Metrics.Enabled
	cfg.Metrics.EnableLatencyHistograms = c.Metrics.Latency
	cfg.Audit.Enabled = c.Audit.Enabled
	return cfg
}

// LogLevel returns the parsed level, defaulting to info.
func (c Config) LogLevel() zerolog.Level {
	level, err := zerolog.ParseLevel(c.Log.Level)
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}

type lookupFunc func(string) (string, bool)

func applyEnv(cfg *Config, lookup lookupFunc) error {
	env := envReader{lookup: lookup}

	env.setString("ADDR", &cfg.Server.Addr)
	env.setDuration("SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)

	env.setString("REDIS_ADDR", &cfg.Redis.Addr)
	env.setString("REDIS_PASSWORD", &cfg.Redis.Password)
	env.setInt("REDIS_DB", &cfg.Redis.DB)
	env.setString("REDIS_PREFIX", &cfg.Redis.Prefix)
	env.setDuration("REDIS_TIMEOUT", &cfg.Redis.OperationTimeout)

	env.setString("POSTGRES_DSN", &cfg.Postgres.DSN)
	env.setString("POSTGRES_TABLE", &cfg.Postgres.Table)

	env.setString("KEYS_DIR", &cfg.Keys.Dir)
	env.setString("POLICY_FILE", &cfg.Policy.File)

	env.setString("LOG_LEVEL", &cfg.Log.Level)
	env.setBool("LOG_PRETTY", &cfg.Log.Pretty)

	env.setString("TOKEN_ISSUER", &cfg.Tokens.Issuer)
	env.setString("TOKEN_AUDIENCE", &cfg.Tokens.Audience)

	env.setDuration("RESET_MIN_RESPONSE_TIME", &cfg.Reset.MinResponseTime)
	env.setInt("RESET_MAX_OTP_ATTEMPTS", &cfg.Reset.MaxOTPAttempts)
	env.setBool("DEV_OTP_STDOUT", &cfg.Reset.DevOTPStdout)

	env.setBool("METRICS_ENABLED", &cfg.Metrics.Enabled)
	env.setBool("METRICS_OTEL", &cfg.Metrics.OTel)
	env.setDuration("METRICS_OTEL_INTERVAL", &cfg.Metrics.OTelInterval)
	env.setBool("AUDIT_ENABLED", &cfg.Audit.Enabled)

	return env.err
}

// envReader records the first malformed value and ignores the rest.
type envReader struct {
	lookup lookupFunc
	err    error
}

func (r *envReader) get(name string) (string, bool) {
	if r.err != nil {
		return "", false
	}
	v, ok := r.lookup(envPrefix + name)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func (r *envReader) fail(name, value string, err error) {
	r.err = fmt.Errorf("%s%s=%q: %w", envPrefix, name, value, err)
}

func (r *envReader) setString(name string, dst *string) {
	if v, ok := r.get(name); ok {
		*dst = v
	}
}

func (r *envReader) setInt(name string, dst *int) {
	v, ok := r.get(name)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.fail(name, v, err)
		return
	}
	*dst = n
}

func (r *envReader) setBool(name string, dst *bool) {
	v, ok := r.get(name)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.fail(name, v, err)
		return
	}
	*dst = b
}

func (r *envReader) setDuration(name string, dst *time.Duration) {
	v, ok := r.get(name)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.fail(name, v, err)
		return
	}
	*dst = d
}
