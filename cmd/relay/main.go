// Package main is the entry point for the relay service.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/bryonbaker/relay/internal/adapter"
	"github.com/bryonbaker/relay/internal/api"
	"github.com/bryonbaker/relay/internal/broker"
	"github.com/bryonbaker/relay/internal/cleaner"
	"github.com/bryonbaker/relay/internal/config"
	"github.com/bryonbaker/relay/internal/metrics"
	"github.com/bryonbaker/relay/internal/retry"
	"github.com/bryonbaker/relay/internal/service"
	"github.com/bryonbaker/relay/internal/storage"
	"github.com/bryonbaker/relay/internal/store"
	"github.com/bryonbaker/relay/internal/sweeper"
	"github.com/bryonbaker/relay/internal/worker"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "/config/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.App.LogLevel, cfg.App.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("starting relay",
		zap.String("name", cfg.App.Name),
		zap.String("version", cfg.App.Version),
		zap.String("log_level", cfg.App.LogLevel),
	)

	st, err := store.NewSQLiteStore(cfg.Store.DBPath, logger)
	if err != nil {
		logger.Fatal("failed to open store", zap.Error(err))
	}
	defer st.Close()

	if err := st.Ping(); err != nil {
		logger.Fatal("store ping failed", zap.Error(err))
	}

	b, err := broker.NewRedisBroker(broker.RedisConfig{
		Addr:              cfg.Broker.Addr,
		Password:          cfg.Broker.Password,
		DB:                cfg.Broker.DB,
		PoolSize:          cfg.Broker.PoolSize,
		DialTimeout:       cfg.Broker.DialTimeout.Duration,
		ReadTimeout:       cfg.Broker.ReadTimeout.Duration,
		WriteTimeout:      cfg.Broker.WriteTimeout.Duration,
		Queue:             cfg.Broker.Queue,
		VisibilityTimeout: cfg.Broker.VisibilityTimeout.Duration,
		PromoteInterval:   cfg.Broker.PromoteInterval.Duration,
	}, logger)
	if err != nil {
		logger.Fatal("failed to connect to broker", zap.Error(err))
	}
	defer b.Close()

	registry, err := buildAdapterRegistry(cfg, logger)
	if err != nil {
		logger.Fatal("failed to build adapter registry", zap.Error(err))
	}

	delay := retry.NewCalculator(retry.Config{
		InitialDelay: cfg.Retry.InitialDelay.Duration,
		MaxDelay:     cfg.Retry.MaxDelay.Duration,
	}, nil)

	registerer := prometheus.NewRegistry()
	m := metrics.New(registerer)

	metricsServer := metrics.NewServer(
		cfg.Metrics.Port,
		cfg.Metrics.Path,
		cfg.Health.LivenessPath,
		cfg.Health.ReadinessPath,
		registerer,
	)
	metricsServer.UpdateHealthCheck("store", "ok")
	metricsServer.UpdateHealthCheck("broker", "ok")
	m.ComponentUp.WithLabelValues("store").Set(1)
	m.ComponentUp.WithLabelValues("broker").Set(1)

	svc := service.New(st, b, m, logger)

	apiServer := api.New(svc, api.Config{
		Port:           cfg.API.Port,
		RequestTimeout: cfg.API.RequestTimeout.Duration,
	}, m, logger)

	w := worker.New(st, b, registry, delay, worker.Config{
		Concurrency:   cfg.Worker.Concurrency,
		MaxRetryCount: cfg.Retry.MaxRetryCount,
		PollTimeout:   cfg.Worker.PollTimeout.Duration,
	}, m, logger)

	sw := sweeper.New(st, b, sweeper.Config{
		Enabled:   cfg.Sweeper.Enabled,
		Interval:  cfg.Sweeper.Interval.Duration,
		OnStartup: cfg.Sweeper.OnStartup,
	}, m, logger)

	cl := cleaner.New(st, cleaner.Config{
		Enabled:         cfg.Retention.Enabled,
		CleanupInterval: cfg.Retention.CleanupInterval.Duration,
		RetentionPeriod: cfg.Retention.RetentionPeriod.Duration,
	}, m, logger)

	mon := storage.New(st, b, storage.Config{
		Interval:          cfg.Storage.MonitorInterval.Duration,
		VolumePath:        cfg.Storage.VolumePath,
		WarningThreshold:  cfg.Storage.WarningThreshold,
		CriticalThreshold: cfg.Storage.CriticalThreshold,
	}, m, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting metrics server", zap.Int("port", cfg.Metrics.Port))
		return metricsServer.Start()
	})

	g.Go(func() error {
		logger.Info("starting api server", zap.Int("port", cfg.API.Port))
		return apiServer.Start()
	})

	g.Go(func() error {
		logger.Info("starting delivery workers", zap.Int("concurrency", cfg.Worker.Concurrency))
		w.Run(gCtx)
		return nil
	})

	g.Go(func() error {
		logger.Info("starting sweeper")
		sw.Start(gCtx)
		return nil
	})

	g.Go(func() error {
		logger.Info("starting retention cleaner")
		cl.Start(gCtx)
		return nil
	})

	g.Go(func() error {
		logger.Info("starting storage monitor")
		mon.Start(gCtx)
		return nil
	})

	metricsServer.SetReady(true)
	logger.Info("relay is ready")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	case <-gCtx.Done():
		logger.Info("context cancelled")
	}

	logger.Info("starting graceful shutdown")
	metricsServer.SetReady(false)

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("api server shutdown error", zap.Error(err))
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown error", zap.Error(err))
	}

	if err := g.Wait(); err != nil && err != http.ErrServerClosed {
		logger.Error("error during shutdown", zap.Error(err))
	}

	logger.Info("relay shutdown complete")
}

// buildAdapterRegistry constructs a registry holding only the generic
// fallback adapter. cfg.Vendors is not consumed: no vendor-specific signing
// or headers are applied, and every vendor name resolves to the generic
// adapter.
func buildAdapterRegistry(cfg *config.Config, logger *zap.Logger) (*adapter.Registry, error) {
	httpClient := &http.Client{Timeout: cfg.Worker.HTTPTimeout.Duration}
	generic := adapter.NewGenericHTTP(httpClient)
	return adapter.NewRegistry(generic)
}

func newLogger(level, format string) (*zap.Logger, error) {
	var zcfg zap.Config
	if format == "json" {
		zcfg = zap.NewProductionConfig()
	} else {
		zcfg = zap.NewDevelopmentConfig()
	}

	switch level {
	case "debug":
		zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	case "info":
		zcfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	case "warn":
		zcfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	case "error":
		zcfg.Level = zap.NewAtomicLevelAt(zapcore.ErrorLevel)
	default:
		zcfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}

	return zcfg.Build()
}
