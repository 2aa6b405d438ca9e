package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"stakefarm/config"
	"stakefarm/core/events"
	"stakefarm/crypto"
	"stakefarm/gateway/middleware"
	"stakefarm/gateway/routes"
	"stakefarm/gateway/stream"
	nativecommon "stakefarm/native/common"
	"stakefarm/native/bank"
	"stakefarm/native/farm"
	"stakefarm/observability"
	"stakefarm/observability/logging"
	telemetry "stakefarm/observability/otel"
	"stakefarm/storage"
	"stakefarm/storage/journal"
)

const shutdownTimeout = 10 * time.Second

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./farmd.toml", "path to farmd configuration")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger, logCloser := logging.SetupWithOptions("farmd", cfg.Environment, logging.Options{
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	defer logCloser.Close()

	if err := run(cfg, logger); err != nil {
		logger.Error("farmd exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	insecure := cfg.Telemetry.Insecure
	if value := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_INSECURE")); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			insecure = parsed
		}
	}
	provider, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: cfg.Telemetry.ServiceName,
		Environment: cfg.Environment,
		Endpoint:    cfg.Telemetry.OTLPEndpoint,
		Insecure:    insecure,
		Headers:     telemetry.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS")),
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown", slog.Any("error", err))
		}
	}()

	db, err := storage.Open(cfg.Storage.Engine, cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer db.Close()
	kv := storage.NewKV(db)

	origin, err := tickOrigin(kv, cfg.Farm)
	if err != nil {
		return err
	}
	interval, err := cfg.Farm.TickDuration()
	if err != nil {
		return err
	}
	clock := farm.NewWallClock(origin, interval)

	custody := crypto.ModuleAddress(farm.ModuleName).Raw()
	ledger := bank.NewLedger(kv, custody)
	engine := farm.NewEngine(kv, ledger, clock, cfg.Farm.RewardToken)
	governors, err := cfg.Farm.GovernorAddresses()
	if err != nil {
		return err
	}
	guardians, err := cfg.Farm.GuardianAddresses()
	if err != nil {
		return err
	}
	engine.SetAuthorizer(farm.NewRoles(governors, guardians))
	engine.SetForceUnlockOnNeutralMultiplier(cfg.Farm.ForceUnlockPolicy())
	engine.SetPauses(nativecommon.NewPauseSet(cfg.Farm.PausedModules...))

	if err := applyGenesis(engine, ledger, cfg.GenesisFile, custody, logger); err != nil {
		return err
	}

	hub := stream.NewHub(0)
	defer hub.Close()
	emitters := events.Multi{observability.Events(), hub}

	var jrnl *journal.Journal
	if dsn := strings.TrimSpace(cfg.Journal.DSN); dsn != "" {
		jrnl, err = journal.Open(dsn)
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		defer jrnl.Close()
		if err := jrnl.Verify(ctx); err != nil {
			return fmt.Errorf("verify journal: %w", err)
		}
		emitters = append(emitters, jrnl)
	}
	engine.SetEmitter(emitters)

	handler, err := routes.New(buildRouteConfig(cfg, engine, jrnl, hub, logger))
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("farmd listening",
			slog.String("addr", cfg.ListenAddress),
			slog.String("custody", crypto.FormatRaw(custody)),
			slog.Uint64("tick", engine.CurrentTick()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
	}
	hub.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func buildRouteConfig(cfg *config.Config, engine *farm.Engine, jrnl *journal.Journal, hub *stream.Hub, logger *slog.Logger) routes.Config {
	authEnabled := cfg.Auth.Enabled
	authenticator := middleware.NewAuthenticator(middleware.AuthConfig{
		Enabled:       authEnabled,
		HMACSecret:    os.Getenv(cfg.Auth.HMACSecretEnv),
		Issuer:        cfg.Auth.Issuer,
		Audience:      cfg.Auth.Audience,
		OptionalPaths: cfg.Auth.OptionalPaths,
	}, logger)
	if !authEnabled {
		logger.Warn("authentication disabled; trusting caller header")
	}

	var limiter *middleware.RateLimiter
	if cfg.RateLimit.RequestsPerSecond > 0 {
		limit := middleware.RateLimit{RatePerSecond: cfg.RateLimit.RequestsPerSecond, Burst: cfg.RateLimit.Burst}
		limiter = middleware.NewRateLimiter(map[string]middleware.RateLimit{
			"read":       limit,
			"write":      limit,
			"governance": limit,
		}, logger)
	}

	obs := middleware.NewObservability(middleware.ObservabilityConfig{
		ServiceName: cfg.Telemetry.ServiceName,
		LogRequests: true,
		Enabled:     true,
	}, logger)

	return routes.Config{
		Engine:            engine,
		Journal:           jrnl,
		Stream:            hub,
		Authenticator:     authenticator,
		RateLimiter:       limiter,
		Observability:     obs,
		TrustCallerHeader: !authEnabled,
		ServiceName:       cfg.Telemetry.ServiceName,
		Logger:            logger,
	}
}
