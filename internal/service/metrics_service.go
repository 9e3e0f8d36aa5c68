package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/coursework-api/internal/models"
)

// Cascade outcomes.
const (
	OutcomeOK      = "ok"
	OutcomePartial = "partial"
	OutcomeFailed  = "failed"
)

// MetricsService encapsulates Prometheus instrumentation and provides lightweight snapshots for API consumption.
type MetricsService struct {
	registry            *prometheus.Registry
	handler             http.Handler
	requestDuration     *prometheus.HistogramVec
	requestTotal        *prometheus.CounterVec
	cacheLatency        prometheus.Observer
	cacheWrite          prometheus.Observer
	cacheHitRatio       prometheus.Gauge
	cascadeTotal        *prometheus.CounterVec
	storageDeletes      *prometheus.CounterVec
	submissionTransits  *prometheus.CounterVec
	garbageOutstanding  prometheus.Gauge

	cacheHitCount        uint64
	cacheMissCount       uint64
	requestCount         uint64
	requestDurationTotal uint64
	cascadeCount         uint64
	partialCascadeCount  uint64
	storageFailureCount  uint64
}

// NewMetricsService registers the Prometheus collectors on a private registry.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	m := &MetricsService{
		registry: registry,
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		cacheLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cache_latency_seconds",
			Help:    "Latency for cache lookups",
			Buckets: prometheus.DefBuckets,
		}),
		cacheWrite: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cache_write_seconds",
			Help:    "Latency for cache set operations",
			Buckets: prometheus.DefBuckets,
		}),
		cacheHitRatio: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cache_hit_ratio",
			Help: "Ratio of cache hits to total cache lookups",
		}),
		cascadeTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cascade_operations_total",
			Help: "Cascading deletes by kind and outcome",
		}, []string{"kind", "outcome"}),
		storageDeletes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storage_deletes_total",
			Help: "Storage object deletions by outcome",
		}, []string{"outcome"}),
		submissionTransits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "submission_transitions_total",
			Help: "Submission status transitions by target status",
		}, []string{"status"}),
		garbageOutstanding: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "storage_garbage_outstanding",
			Help: "Storage paths waiting in the orphan ledger after the last sweep",
		}),
	}

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(
		m.requestDuration, m.requestTotal,
		m.cacheLatency.(prometheus.Collector), m.cacheWrite.(prometheus.Collector), m.cacheHitRatio,
		m.cascadeTotal, m.storageDeletes, m.submissionTransits, m.garbageOutstanding,
		goroutines,
	)
	m.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return m
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Registry exposes the underlying registry for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveHTTPRequest records request metrics and aggregates simple stats for snapshots.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// RecordCacheOperation records cache hit/miss metrics and updates hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	total := hits + atomic.LoadUint64(&m.cacheMissCount)
	if total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// RecordCascade counts a cascading delete of the given kind.
func (m *MetricsService) RecordCascade(kind, outcome string) {
	if m == nil {
		return
	}
	m.cascadeTotal.WithLabelValues(kind, outcome).Inc()
	atomic.AddUint64(&m.cascadeCount, 1)
	if outcome == OutcomePartial {
		atomic.AddUint64(&m.partialCascadeCount, 1)
	}
}

// RecordStorageDeletes counts deleted and failed storage objects.
func (m *MetricsService) RecordStorageDeletes(deleted, failed int) {
	if m == nil {
		return
	}
	if deleted > 0 {
		m.storageDeletes.WithLabelValues(OutcomeOK).Add(float64(deleted))
	}
	if failed > 0 {
		m.storageDeletes.WithLabelValues(OutcomeFailed).Add(float64(failed))
		atomic.AddUint64(&m.storageFailureCount, uint64(failed))
	}
}

// RecordSubmissionTransition counts a submission moving to status.
func (m *MetricsService) RecordSubmissionTransition(status models.SubmissionStatus) {
	if m == nil {
		return
	}
	m.submissionTransits.WithLabelValues(string(status)).Inc()
}

// SetGarbageOutstanding publishes the orphan ledger size.
func (m *MetricsService) SetGarbageOutstanding(n int) {
	if m == nil {
		return
	}
	m.garbageOutstanding.Set(float64(n))
}

// Snapshot returns aggregated counters for the admin metrics endpoint.
func (m *MetricsService) Snapshot() models.SystemMetrics {
	if m == nil {
		return models.SystemMetrics{}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)

	var cacheRatio float64
	if total := hits + misses; total > 0 {
		cacheRatio = float64(hits) / float64(total)
	}
	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	return models.SystemMetrics{
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		CacheHits:                hits,
		CacheMisses:              misses,
		CacheHitRatio:            cacheRatio,
		CascadesTotal:            atomic.LoadUint64(&m.cascadeCount),
		PartialCascades:          atomic.LoadUint64(&m.partialCascadeCount),
		StorageDeleteFailures:    atomic.LoadUint64(&m.storageFailureCount),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
