package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	feed "github.com/eugener/feedcache/internal"
	"github.com/eugener/feedcache/internal/app"
	"github.com/eugener/feedcache/internal/auth"
	"github.com/eugener/feedcache/internal/cache"
	"github.com/eugener/feedcache/internal/config"
	"github.com/eugener/feedcache/internal/ratelimit"
	"github.com/eugener/feedcache/internal/server"
	"github.com/eugener/feedcache/internal/telemetry"
	"github.com/eugener/feedcache/internal/worker"
)

func run(configPath string) error {
	// Load config
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	slog.SetDefault(newLogger(cfg.Log))

	slog.Info("starting feedcache", "version", version, "addr", cfg.Server.Addr, "store", cfg.Store.Kind)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	// Telemetry
	var (
		metrics        *telemetry.Metrics
		metricsHandler http.Handler
	)
	if cfg.Telemetry.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics = telemetry.NewMetrics(reg)
		metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
	}
	if cfg.Telemetry.Tracing.Enabled {
		shutdownTracing, err := telemetry.SetupTracing(ctx, telemetry.TracingOptions{
			Endpoint:   cfg.Telemetry.Tracing.Endpoint,
			Insecure:   cfg.Telemetry.Tracing.Insecure,
			SampleRate: cfg.Telemetry.Tracing.SampleRate,
			Version:    version,
		})
		if err != nil {
			return err
		}
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTracing(flushCtx); err != nil {
				slog.Warn("tracing shutdown failed", "error", err)
			}
		}()
	}

	// Open store
	store, readyCheck, err := openStore(ctx, cfg.Store, metrics)
	if err != nil {
		return err
	}
	defer store.Close()

	// Wire services
	loader := cache.NewLocalFeedLoader(store, time.Now,
		cache.WithPolicy(cache.Policy{MaxAgeDays: cfg.Cache.MaxAgeDays, Location: cfg.Cache.Location()}),
		cache.WithMetrics(metrics),
	)
	defer loader.Close()

	var remoteLoader feed.Loader
	remoteClient, resolver, err := newRemote(ctx, cfg.Remote, metrics)
	if err != nil {
		return err
	}
	if remoteClient != nil {
		remoteLoader = remoteClient
	}

	svc := app.NewFeedService(loader, store, remoteLoader)

	deps := server.Deps{
		Feed:           svc,
		ReadyCheck:     readyCheck,
		Metrics:        metrics,
		MetricsHandler: metricsHandler,
		RefreshLimit:   ratelimit.New(cfg.Server.RefreshPerMinute),
	}
	if keys := auth.NewAdminKeys(cfg.Server.AdminKeys); keys.Len() > 0 {
		deps.Admin = keys
	} else {
		slog.Warn("no admin keys configured, operator endpoints are unauthenticated")
	}

	// Background workers
	var workers []worker.Worker
	if cfg.Cache.ValidateInterval > 0 {
		workers = append(workers, worker.NewCacheValidator(svc, cfg.Cache.ValidateInterval))
	}
	if remoteLoader != nil && cfg.Remote.RefreshInterval > 0 {
		workers = append(workers, worker.NewFeedRefresher(svc, cfg.Remote.RefreshInterval))
	}
	if resolver != nil && cfg.Remote.DNSRefresh > 0 {
		workers = append(workers, worker.NewDNSRefresher(resolver, cfg.Remote.DNSRefresh))
	}

	workerCtx, cancelWorkers := context.WithCancel(ctx)
	workerErr := make(chan error, 1)
	go func() {
		workerErr <- worker.NewRunner(workers...).Run(workerCtx)
	}()
	defer func() {
		cancelWorkers()
		if err := <-workerErr; err != nil {
			slog.Error("worker failed", "error", err)
		}
	}()

	// Create HTTP server
	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      server.New(deps),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	slog.Info("feedcache ready", "addr", cfg.Server.Addr, "remote", remoteLoader != nil)

	select {
	case <-ctx.Done():
		slog.Info("shutting down")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	slog.Info("feedcache stopped")
	return nil
}

// newLogger builds the process logger from the log section.
func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
