// Package telemetry provides observability primitives for the feed cache.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus collectors for the service.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	ActiveRequests  prometheus.Gauge
	StoreOps        *prometheus.CounterVec
	StoreDuration   *prometheus.HistogramVec
	CacheLoads      *prometheus.CounterVec
	CacheValidation *prometheus.CounterVec
	RemoteFetches   *prometheus.CounterVec
	SnapshotSize    prometheus.Gauge
}

// NewMetrics creates and registers all metrics with the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "feedcache",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "path", "status"}),

		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:                       "feedcache",
			Name:                            "request_duration_seconds",
			Help:                            "HTTP request duration in seconds.",
			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: 0,
		}, []string{"method", "path"}),

		ActiveRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "feedcache",
			Name:      "active_requests",
			Help:      "Number of currently active requests.",
		}),

		StoreOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "feedcache",
			Name:      "store_operations_total",
			Help:      "Total storage operations by operation and outcome.",
		}, []string{"store", "op", "outcome"}),

		StoreDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:                       "feedcache",
			Name:                            "store_operation_duration_seconds",
			Help:                            "Time from submitting a storage operation to its completion.",
			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: 0,
		}, []string{"store", "op"}),

		CacheLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "feedcache",
			Name:      "cache_loads_total",
			Help:      "Cache loads by result (hit, empty, stale, error).",
		}, []string{"result"}),

		CacheValidation: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "feedcache",
			Name:      "cache_validations_total",
			Help:      "Cache validations by action taken (kept, deleted).",
		}, []string{"action"}),

		RemoteFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "feedcache",
			Name:      "remote_fetches_total",
			Help:      "Remote feed fetches by outcome.",
		}, []string{"outcome"}),

		SnapshotSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "feedcache",
			Name:      "snapshot_images",
			Help:      "Number of images in the last saved snapshot.",
		}),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.ActiveRequests,
		m.StoreOps,
		m.StoreDuration,
		m.CacheLoads,
		m.CacheValidation,
		m.RemoteFetches,
		m.SnapshotSize,
	)

	return m
}
