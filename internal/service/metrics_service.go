package service

import (
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService owns the Prometheus registry for HTTP, cache, database and
// workflow instrumentation.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Histogram
	cacheWrite      prometheus.Histogram
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	dbQueryDuration *prometheus.HistogramVec

	submissionsCreated prometheus.Counter
	consentResults     *prometheus.CounterVec
	voiceClones        *prometheus.CounterVec
	mediaUpserts       *prometheus.CounterVec
	qcTransitions      *prometheus.CounterVec
	sideEffectFailures *prometheus.CounterVec
}

// NewMetricsService registers all collectors on a private registry.
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
			Help:    "Latency for cache writes",
			Buckets: prometheus.DefBuckets,
		}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total cache hits",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total cache misses",
		}),
		dbQueryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Duration of database queries",
			Buckets: prometheus.DefBuckets,
		}, []string{"query"}),
		submissionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "submissions_created_total",
			Help: "Submissions accepted at intake",
		}),
		consentResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "consent_verifications_total",
			Help: "Consent code verification outcomes",
		}, []string{"result"}),
		voiceClones: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "voice_clone_total",
			Help: "Voice clone provider outcomes",
		}, []string{"result"}),
		mediaUpserts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "language_media_upserts_total",
			Help: "Per-language audio and video upserts",
		}, []string{"kind", "status"}),
		qcTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "qc_transitions_total",
			Help: "QC gate transitions",
		}, []string{"action"}),
		sideEffectFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "side_effect_failures_total",
			Help: "Fire-and-forget side effects that could not be completed",
		}, []string{"kind"}),
	}

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(
		m.requestDuration, m.requestTotal, m.cacheLatency, m.cacheWrite, m.cacheHits, m.cacheMisses,
		m.dbQueryDuration, m.submissionsCreated, m.consentResults, m.voiceClones, m.mediaUpserts,
		m.qcTransitions, m.sideEffectFailures, goroutines,
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

// Registry returns the underlying registry.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := strconv.Itoa(status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation records a cache lookup.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
	} else {
		m.cacheMisses.Inc()
	}
}

// ObserveCacheWrite tracks the duration of cache writes.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// ObserveDBQuery records database query timing.
func (m *MetricsService) ObserveDBQuery(label string, duration time.Duration) {
	if m == nil {
		return
	}
	m.dbQueryDuration.WithLabelValues(label).Observe(duration.Seconds())
}

// IncSubmissionsCreated counts an accepted intake.
func (m *MetricsService) IncSubmissionsCreated() {
	if m == nil {
		return
	}
	m.submissionsCreated.Inc()
}

// IncConsentVerification counts a verification outcome.
func (m *MetricsService) IncConsentVerification(result string) {
	if m == nil {
		return
	}
	m.consentResults.WithLabelValues(result).Inc()
}

// IncVoiceClone counts a provider clone outcome.
func (m *MetricsService) IncVoiceClone(result string) {
	if m == nil {
		return
	}
	m.voiceClones.WithLabelValues(result).Inc()
}

// IncMediaUpsert counts an audio or video upsert.
func (m *MetricsService) IncMediaUpsert(kind, status string) {
	if m == nil {
		return
	}
	m.mediaUpserts.WithLabelValues(kind, status).Inc()
}

// IncQCTransition counts a QC action.
func (m *MetricsService) IncQCTransition(action string) {
	if m == nil {
		return
	}
	m.qcTransitions.WithLabelValues(action).Inc()
}

// IncSideEffectFailure counts a dropped or failed side effect.
func (m *MetricsService) IncSideEffectFailure(kind string) {
	if m == nil {
		return
	}
	m.sideEffectFailures.WithLabelValues(kind).Inc()
}
