// Package instrumented wraps any storage.Store with logging, metrics, and tracing.
// Instrumentation lives outside the backends so every backend gets it the same way.
package instrumented

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/eugener/feedcache/internal/storage"
	"github.com/eugener/feedcache/internal/telemetry"
)

var _ storage.Store = (*Store)(nil)

// Store decorates a storage.Store. Metrics and Latency may be nil.
type Store struct {
	next    storage.Store
	name    string
	metrics *telemetry.Metrics
	latency *telemetry.LatencyTracker
	tracer  trace.Tracer
}

// New wraps next. name labels metrics and spans (e.g. "file", "sqlite").
func New(next storage.Store, name string, metrics *telemetry.Metrics, latency *telemetry.LatencyTracker) *Store {
	return &Store{
		next:    next,
		name:    name,
		metrics: metrics,
		latency: latency,
		tracer:  telemetry.Tracer("feedcache/storage"),
	}
}

// DeleteCachedFeed forwards to the wrapped store.
func (s *Store) DeleteCachedFeed(completion storage.DeletionCompletion) {
	done := s.begin("delete")
	s.next.DeleteCachedFeed(func(err error) {
		done(err)
		completion(err)
	})
}

// Insert forwards to the wrapped store.
func (s *Store) Insert(images []storage.LocalImage, timestamp time.Time, completion storage.InsertionCompletion) {
	done := s.begin("insert", attribute.Int("feed.images", len(images)))
	s.next.Insert(images, timestamp, func(err error) {
		done(err)
		completion(err)
	})
}

// Retrieve forwards to the wrapped store.
func (s *Store) Retrieve(completion storage.RetrievalCompletion) {
	done := s.begin("retrieve")
	s.next.Retrieve(func(cached *storage.CachedFeed, err error) {
		done(err)
		completion(cached, err)
	})
}

// Close closes the wrapped store and logs the latency summary.
func (s *Store) Close() error {
	err := s.next.Close()
	if s.latency != nil {
		for _, st := range s.latency.AllStats() {
			slog.Info("store latency", "store", s.name, "stats", st.String())
		}
	}
	return err
}

// begin starts timing an operation and returns the function that ends it.
func (s *Store) begin(op string, attrs ...attribute.KeyValue) func(error) {
	start := time.Now()
	attrs = append(attrs, attribute.String("store", s.name))
	_, span := s.tracer.Start(context.Background(), "store."+op, trace.WithAttributes(attrs...))

	return func(err error) {
		elapsed := time.Since(start)
		outcome := "ok"
		if err != nil {
			outcome = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.LogAttrs(context.Background(), slog.LevelWarn, "store operation failed",
				slog.String("store", s.name),
				slog.String("op", op),
				slog.Duration("duration", elapsed),
				slog.String("error", err.Error()),
			)
		} else {
			slog.LogAttrs(context.Background(), slog.LevelDebug, "store operation",
				slog.String("store", s.name),
				slog.String("op", op),
				slog.Duration("duration", elapsed),
			)
		}
		span.End()

		if s.metrics != nil {
			s.metrics.StoreOps.WithLabelValues(s.name, op, outcome).Inc()
			s.metrics.StoreDuration.WithLabelValues(s.name, op).Observe(elapsed.Seconds())
		}
		if s.latency != nil {
			s.latency.Record(op, elapsed)
		}
	}
}
