// Package main is the entry point for the approvald server.
// It wires all dependencies together and starts the HTTP server.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/fieldscope/approvald/internal/capability"
	"github.com/fieldscope/approvald/internal/config"
	"github.com/fieldscope/approvald/internal/coordinator"
	"github.com/fieldscope/approvald/internal/escalation"
	"github.com/fieldscope/approvald/internal/notify"
	"github.com/fieldscope/approvald/internal/observability"
	"github.com/fieldscope/approvald/internal/store"
	"github.com/fieldscope/approvald/internal/transport"
)

// Build-time variables set via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.commit=abc1234"
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Step 1: Parse CLI flags.
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	// Step 2: Load configuration.
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return 1
	}

	// Step 3: Initialize telemetry (logger, tracer, metrics).
	observability.Version = version
	observability.Commit = commit

	logger, err := observability.NewLogger(cfg.Observability)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		return 1
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	tracingShutdown, err := observability.InitTracing(ctx, cfg.Observability.Tracing, "approvald", version)
	if err != nil {
		logger.Fatal("tracing initialization failed", zap.Error(err))
		return 1
	}

	metrics := observability.InitMetrics(prometheus.DefaultRegisterer)

	// Step 4: Initialize the workflow store.
	st, storeCloser, err := buildStore(ctx, cfg.Store, logger)
	if err != nil {
		logger.Fatal("store initialization failed", zap.Error(err))
		return 1
	}

	// Step 5: Initialize capability resolver.
	evaluator, err := capability.NewStaticPolicyEvaluator(cfg.Capability.StaticPolicyFile)
	if err != nil {
		logger.Fatal("capability policy load failed", zap.Error(err))
		return 1
	}
	capResolver := capability.NewResolver(evaluator, cfg.Capability.Cache.TTL)

	// Step 6: Initialize the integration event sink.
	sink, err := buildSink(cfg.Notify, logger)
	if err != nil {
		logger.Fatal("event sink initialization failed", zap.Error(err))
		return 1
	}

	// Step 7: Build the escalation engine and coordinator.
	engine := escalation.NewEngine(st, escalation.Policy{
		Level2AfterDays: cfg.Escalation.Level2AfterDays,
		Level3AfterDays: cfg.Escalation.Level3AfterDays,
	})
	coord := coordinator.New(st, engine, capResolver, sink, logger)

	// Step 8: Build HTTP router.
	jwks := transport.NewJWKSClient(cfg.Identity.JWKSURL, cfg.Identity.JWKSCacheTTL)

	readinessChecks := observability.ReadinessChecks{
		PolicyLoaded: func() bool { return len(evaluator.Roles()) > 0 },
	}
	if hc, ok := st.(observability.HealthChecker); ok {
		readinessChecks.Store = hc
	}
	if hc, ok := sink.(observability.HealthChecker); ok {
		readinessChecks.EventSink = hc
	}

	router := transport.NewRouter(transport.Dependencies{
		Config:             cfg,
		Coordinator:        coord,
		Authenticate:       transport.JWTAuthenticator(cfg.Identity, jwks),
		CapabilityResolver: capResolver,
		Metrics:            metrics,
		Readiness:          readinessChecks,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Step 9: Start the escalation sweep.
	bgCtx, bgCancel := context.WithCancel(ctx)
	defer bgCancel()
	go runEscalationSweep(bgCtx, coord, metrics, cfg.Escalation.SweepInterval, logger)

	// Step 10: Start HTTP server.
	logger.Info("server started",
		zap.Int("port", cfg.Server.Port),
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("store_driver", cfg.Store.Driver),
		zap.String("notify_driver", cfg.Notify.Driver),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error.
	select {
	case <-ctx.Done():
		logger.Info("shutdown initiated")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		return 1
	}

	// Graceful shutdown sequence.
	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout == 0 {
		shutdownTimeout = 30 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	// Stop accepting new connections and drain in-flight requests.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	// Cancel background tasks.
	bgCancel()

	// Close the store and the event sink.
	if storeCloser != nil {
		storeCloser()
	}
	if err := sink.Close(); err != nil {
		logger.Error("event sink close error", zap.Error(err))
	}

	// Flush telemetry.
	if err := tracingShutdown(shutdownCtx); err != nil {
		logger.Error("tracing shutdown error", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return 0
}

// buildStore creates the persistence store based on config.
func buildStore(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (store.Store, func(), error) {
	switch cfg.Driver {
	case "memory":
		logger.Info("using in-memory store")
		return store.NewMemoryStore(), nil, nil
	case "postgres", "":
		dsn := os.Getenv(cfg.DSNEnv)
		if dsn == "" {
			return nil, nil, fmt.Errorf("store: %s environment variable not set", cfg.DSNEnv)
		}

		poolCfg, err := pgxpool.ParseConfig(dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("store: parse DSN: %w", err)
		}
		poolCfg.MaxConns = int32(cfg.MaxOpenConns)
		poolCfg.MinConns = int32(cfg.MaxIdleConns)
		poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime

		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("store: connect: %w", err)
		}

		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("store: ping: %w", err)
		}

		return store.NewPgStore(pool), pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported store driver: %q", cfg.Driver)
	}
}

// buildSink creates the integration event sink based on config.
func buildSink(cfg config.NotifyConfig, logger *zap.Logger) (notify.Sink, error) {
	switch cfg.Driver {
	case "kafka":
		return notify.NewKafkaSink(notify.KafkaSinkConfig{
			Brokers: cfg.Brokers,
			Topic:   cfg.Topic,
		})
	case "log", "":
		return notify.NewLogSink(logger), nil
	default:
		return nil, fmt.Errorf("unsupported notify driver: %q", cfg.Driver)
	}
}

// runEscalationSweep periodically re-applies the level thresholds to all
// active escalations.
func runEscalationSweep(ctx context.Context, coord *coordinator.Coordinator, metrics *observability.Metrics, interval time.Duration, logger *zap.Logger) {
	if interval == 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			start := time.Now()
			changed, err := coord.SweepEscalations(ctx)
			if err != nil {
				logger.Error("escalation sweep failed", zap.Error(err))
				continue
			}
			metrics.RecordSweep(time.Since(start), changed)
			if changed > 0 {
				logger.Info("escalation sweep complete", zap.Int("level_changes", changed))
			}
		}
	}
}
