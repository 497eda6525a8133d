package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rs/dnscache"

	"github.com/eugener/feedcache/internal/circuitbreaker"
	"github.com/eugener/feedcache/internal/cloudauth"
	"github.com/eugener/feedcache/internal/config"
	"github.com/eugener/feedcache/internal/remote"
	"github.com/eugener/feedcache/internal/server"
	"github.com/eugener/feedcache/internal/storage"
	"github.com/eugener/feedcache/internal/storage/filestore"
	"github.com/eugener/feedcache/internal/storage/instrumented"
	"github.com/eugener/feedcache/internal/storage/memory"
	"github.com/eugener/feedcache/internal/storage/s3store"
	"github.com/eugener/feedcache/internal/storage/sqlite"
	"github.com/eugener/feedcache/internal/telemetry"
)

// openStore opens the configured backend and wraps it with metrics and
// tracing. The ReadyChecker is nil for backends without a cheap probe.
func openStore(ctx context.Context, cfg config.StoreConfig, metrics *telemetry.Metrics) (storage.Store, server.ReadyChecker, error) {
	var (
		store storage.Store
		ready server.ReadyChecker
	)
	switch cfg.Kind {
	case config.StoreFile:
		store = filestore.New(cfg.Path)
	case config.StoreSQLite:
		db, err := sqlite.New(cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		store, ready = db, db.Ping
	case config.StoreMemory:
		mem, err := memory.New()
		if err != nil {
			return nil, nil, err
		}
		store = mem
	case config.StoreS3:
		obj, err := s3store.New(ctx, s3store.Options{
			Bucket:    cfg.S3.Bucket,
			Key:       cfg.S3.Key,
			Region:    cfg.S3.Region,
			Endpoint:  cfg.S3.Endpoint,
			OpTimeout: cfg.S3.Timeout,
		})
		if err != nil {
			return nil, nil, err
		}
		store = obj
	default:
		return nil, nil, fmt.Errorf("unknown store kind %q", cfg.Kind)
	}
	return instrumented.New(store, cfg.Kind, metrics, telemetry.NewLatencyTracker(0.01)), ready, nil
}

// newRemote builds the feed API client. It returns a nil client when no URL
// is configured, and a nil resolver when DNS caching is off.
func newRemote(ctx context.Context, cfg config.RemoteConfig, metrics *telemetry.Metrics) (*remote.Client, *dnscache.Resolver, error) {
	if cfg.URL == "" {
		return nil, nil, nil
	}

	var resolver *dnscache.Resolver
	if cfg.DNSCache {
		resolver = &dnscache.Resolver{}
	}

	rt, err := cloudauth.Wrap(ctx, remote.NewTransport(resolver), cloudauth.Options{
		Kind:         cfg.Auth.Kind,
		APIKey:       cfg.Auth.APIKey,
		Header:       cfg.Auth.Header,
		Prefix:       cfg.Auth.Prefix,
		TokenURL:     cfg.Auth.TokenURL,
		ClientID:     cfg.Auth.ClientID,
		ClientSecret: cfg.Auth.ClientSecret,
		Scopes:       cfg.Auth.Scopes,
		Region:       cfg.Auth.Region,
		Service:      cfg.Auth.Service,
	})
	if err != nil {
		return nil, nil, err
	}

	opts := remote.Options{
		URL:       cfg.URL,
		Timeout:   cfg.Timeout,
		Transport: rt,
		Metrics:   metrics,
	}
	if cfg.Breaker.Enabled {
		bc := circuitbreaker.DefaultConfig()
		bc.ErrorThreshold = cfg.Breaker.ErrorThreshold
		if cfg.Breaker.MinSamples > 0 {
			bc.MinSamples = cfg.Breaker.MinSamples
		}
		if cfg.Breaker.OpenTimeout > 0 {
			bc.OpenTimeout = cfg.Breaker.OpenTimeout
		}
		bc.OnStateChange = func(from, to circuitbreaker.State) {
			slog.Warn("feed api circuit breaker", "from", from.String(), "to", to.String())
		}
		opts.Breaker = circuitbreaker.NewBreaker(bc)
	}

	client, err := remote.New(opts)
	if err != nil {
		return nil, nil, err
	}
	return client, resolver, nil
}
