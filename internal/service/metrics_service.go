package service

import (
	"net/http"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService owns the Prometheus registry for HTTP, cache and
// marketplace lifecycle instrumentation.
type MetricsService struct {
	registry *prometheus.Registry
	handler  http.Handler

	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Histogram
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	cacheHitRatio   prometheus.Gauge
	invalidations   *prometheus.CounterVec

	decisions         *prometheus.CounterVec
	cascadeRejections prometheus.Counter
	cancellations     *prometheus.CounterVec
	penalties         *prometheus.CounterVec
	shiftsCreated     prometheus.Counter
	shiftsCompleted   prometheus.Counter
	exportJobs        *prometheus.CounterVec

	cacheHitCount  uint64
	cacheMissCount uint64
	requestCount   uint64
	cascadeCount   uint64
}

// MetricsSnapshot is a JSON-friendly summary of selected counters.
type MetricsSnapshot struct {
	RequestsTotal     uint64    `json:"requests_total"`
	CacheHits         uint64    `json:"cache_hits"`
	CacheMisses       uint64    `json:"cache_misses"`
	CacheHitRatio     float64   `json:"cache_hit_ratio"`
	CascadeRejections uint64    `json:"cascade_rejections"`
	Goroutines        int       `json:"goroutines"`
	GeneratedAt       time.Time `json:"generated_at"`
}

// NewMetricsService registers all collectors on a private registry.
func NewMetricsService() *MetricsService {
	m := &MetricsService{registry: prometheus.NewRegistry()}

	m.requestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})
	m.requestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
	m.cacheLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache lookups",
		Buckets: prometheus.DefBuckets,
	})
	m.cacheHits = prometheus.NewCounter(prometheus.CounterOpts{Name: "cache_hits_total", Help: "Total cache hits"})
	m.cacheMisses = prometheus.NewCounter(prometheus.CounterOpts{Name: "cache_misses_total", Help: "Total cache misses"})
	m.cacheHitRatio = prometheus.NewGauge(prometheus.GaugeOpts{Name: "cache_hit_ratio", Help: "Ratio of cache hits to lookups"})
	m.invalidations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "view_invalidations_total",
		Help: "Cached views invalidated, by path",
	}, []string{"path"})

	m.decisions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "application_decisions_total",
		Help: "Company decisions on applications",
	}, []string{"decision"})
	m.cascadeRejections = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "application_cascade_rejections_total",
		Help: "Pending applications rejected because an overlapping application was accepted",
	})
	m.cancellations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cancellations_total",
		Help: "Cancellations by actor and lateness",
	}, []string{"actor", "late"})
	m.penalties = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cancellation_penalties_total",
		Help: "Penalties issued for late cancellations",
	}, []string{"kind"})
	m.shiftsCreated = prometheus.NewCounter(prometheus.CounterOpts{Name: "shifts_created_total", Help: "Shifts created"})
	m.shiftsCompleted = prometheus.NewCounter(prometheus.CounterOpts{Name: "shifts_completed_total", Help: "Shifts marked completed"})
	m.exportJobs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "export_jobs_total",
		Help: "Export jobs by final status",
	}, []string{"status"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 { return float64(runtime.NumGoroutine()) })

	m.registry.MustRegister(
		m.requestDuration, m.requestTotal, m.cacheLatency, m.cacheHits, m.cacheMisses, m.cacheHitRatio, m.invalidations,
		m.decisions, m.cascadeRejections, m.cancellations, m.penalties, m.shiftsCreated, m.shiftsCompleted, m.exportJobs,
		goroutines,
	)
	m.handler = promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
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

// Registry exposes the registry for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	label := strconv.Itoa(status)
	m.requestDuration.WithLabelValues(method, path, label).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, label).Inc()
	atomic.AddUint64(&m.requestCount, 1)
}

// RecordCacheOperation records a lookup and refreshes the hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	total := hits + atomic.LoadUint64(&m.cacheMissCount)
	if total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// RecordInvalidation counts an invalidated view path.
func (m *MetricsService) RecordInvalidation(path string) {
	if m == nil {
		return
	}
	m.invalidations.WithLabelValues(path).Inc()
}

// RecordDecision counts a company decision.
func (m *MetricsService) RecordDecision(decision string) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(decision).Inc()
}

// RecordCascadeRejections counts applications rejected by the overlap cascade.
func (m *MetricsService) RecordCascadeRejections(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.cascadeRejections.Add(float64(n))
	atomic.AddUint64(&m.cascadeCount, uint64(n))
}

// RecordCancellation counts a cancellation by actor role.
func (m *MetricsService) RecordCancellation(actor string, late bool) {
	if m == nil {
		return
	}
	m.cancellations.WithLabelValues(actor, strconv.FormatBool(late)).Inc()
}

// RecordPenalty counts an issued penalty.
func (m *MetricsService) RecordPenalty(kind string) {
	if m == nil {
		return
	}
	m.penalties.WithLabelValues(kind).Inc()
}

// RecordShiftsCreated counts created shifts.
func (m *MetricsService) RecordShiftsCreated(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.shiftsCreated.Add(float64(n))
}

// RecordShiftsCompleted counts shifts moved to completed.
func (m *MetricsService) RecordShiftsCompleted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.shiftsCompleted.Add(float64(n))
}

// RecordExportJob counts an export job reaching a final status.
func (m *MetricsService) RecordExportJob(status string) {
	if m == nil {
		return
	}
	m.exportJobs.WithLabelValues(status).Inc()
}

// Snapshot returns aggregated counters.
func (m *MetricsService) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	var ratio float64
	if hits+misses > 0 {
		ratio = float64(hits) / float64(hits+misses)
	}
	return MetricsSnapshot{
		RequestsTotal:     atomic.LoadUint64(&m.requestCount),
		CacheHits:         hits,
		CacheMisses:       misses,
		CacheHitRatio:     ratio,
		CascadeRejections: atomic.LoadUint64(&m.cascadeCount),
		Goroutines:        runtime.NumGoroutine(),
		GeneratedAt:       time.Now().UTC(),
	}
}
