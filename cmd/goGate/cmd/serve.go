package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/awnumar/memguard"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	goGate "github.com/MrEthical07/goGate"
	"github.com/MrEthical07/goGate/accounts/postgres"
	"github.com/MrEthical07/goGate/internal/config"
	"github.com/MrEthical07/goGate/keys"
	otelexport "github.com/MrEthical07/goGate/metrics/export/otel"
	"github.com/MrEthical07/goGate/metrics/export/prometheus"
	"github.com/MrEthical07/goGate/policy"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP gateway",
	RunE: func(cmd *cobra.Command, args []string) error {
		defer memguard.Purge()

		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		logger := newLogger(cfg.Log, os.Stderr)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		engine, cleanup, err := buildEngine(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer cleanup()

		if cfg.Metrics.OTel {
			stopOTel, err := startOTel(engine, cfg.Metrics.OTelInterval, logger)
			if err != nil {
				return err
			}
			defer stopOTel()
		}

		server := &http.Server{
			Addr:              cfg.Server.Addr,
			Handler:           newRouter(engine, logger, prometheus.NewCollector(engine)),
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       cfg.Server.ReadTimeout,
			WriteTimeout:      cfg.Server.WriteTimeout,
			IdleTimeout:       60 * time.Second,
		}

		done := make(chan error, 1)
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				done <- fmt.Errorf("server failed: %w", err)
				return
			}
			done <- nil
		}()

		printBanner()
		logger.Info().Str("addr", cfg.Server.Addr).Msg("listening")

		select {
		case <-ctx.Done():
			logger.Info().Msg("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("server shutdown failed: %w", err)
			}
			return nil
		case err := <-done:
			return err
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func newLogger(cfg config.LogConfig, out io.Writer) zerolog.Logger {
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	return zerolog.New(out).Level(level).With().Timestamp().Str("service", "goGate").Logger()
}

// buildEngine connects every collaborator named by cfg. The returned cleanup
// closes them in reverse order.
func buildEngine(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*goGate.Engine, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*goGate.Engine, func(), error) {
		cleanup()
		return nil, nil, err
	}

	ring, created, err := keys.LoadOrGenerate(cfg.Keys.Dir)
	if err != nil {
		return fail(fmt.Errorf("signing keys: %w", err))
	}
	closers = append(closers, ring.Destroy)
	logger.Info().Str("kid", ring.KeyID()).Bool("created", created).Msg("signing key loaded")

	rules, err := policy.LoadFile(cfg.Policy.File)
	if err != nil {
		return fail(fmt.Errorf("policy: %w", err))
	}
	logger.Info().Int("rules", len(rules.Rules)).Str("file", cfg.Policy.File).Msg("policy loaded")

	builder := goGate.New().
		WithConfig(cfg.Engine()).
		WithKeys(ring).
		WithRules(rules).
		WithLogger(logger).
		WithAuditSink(goGate.NewLogSink(logger.With().Str("component", "audit").Logger()))

	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		closers = append(closers, func() { _ = rdb.Close() })

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return fail(fmt.Errorf("redis: %w", err))
		}
		builder = builder.WithRedis(rdb)
	}

	if cfg.Postgres.DSN != "" {
		dir, err := postgres.Open(ctx, cfg.Postgres.DSN, postgres.Options{
			Table:        cfg.Postgres.Table,
			QueryTimeout: cfg.Postgres.QueryTimeout,
		})
		if err != nil {
			return fail(fmt.Errorf("postgres: %w", err))
		}
		closers = append(closers, func() { _ = dir.Close() })
		builder = builder.WithAccounts(dir)
	} else {
		logger.Warn().Msg("no postgres dsn configured, login and password reset are disabled")
	}

	if cfg.Reset.DevOTPStdout {
		logger.Warn().Msg("reset OTPs are printed to stdout")
		builder = builder.WithOTPSender(stdoutSender(os.Stdout))
	}

	engine, err := builder.Build()
	if err != nil {
		return fail(fmt.Errorf("engine: %w", err))
	}
	closers = append(closers, engine.Close)
	return engine, cleanup, nil
}

// startOTel exports engine counters through an OpenTelemetry meter provider
// whose periodic reader logs each collection. stop flushes a final one.
func startOTel(engine *goGate.Engine, interval time.Duration, logger zerolog.Logger) (func(), error) {
	reader := sdkmetric.NewPeriodicReader(
		otelexport.NewLogExporter(logger.With().Str("component", "otel").Logger()),
		sdkmetric.WithInterval(interval),
	)
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	exporter, err := otelexport.NewExporter(provider.Meter("github.com/MrEthical07/goGate"), engine)
	if err != nil {
		_ = provider.Shutdown(context.Background())
		return nil, fmt.Errorf("otel: %w", err)
	}
	logger.Info().Dur("interval", interval).Msg("otel metrics enabled")

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(ctx); err != nil {
			logger.Warn().Err(err).Msg("otel shutdown failed")
		}
		_ = exporter.Close()
	}, nil
}

func stdoutSender(w io.Writer) goGate.OTPSender {
	return goGate.OTPSenderFunc(func(_ context.Context, phone, otp string) error {
		_, err := fmt.Fprintf(w, "otp for %s: %s\n", phone, otp)
		return err
	})
}
