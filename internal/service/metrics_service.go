package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the engine.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter

	evaluationsTotal  *prometheus.CounterVec
	stageCompletions  prometheus.Counter
	conflictRetries   prometheus.Counter
	ledgerReplayTotal prometheus.Counter
}

// NewMetricsService registers the engine's Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache lookups",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	evaluationsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "evaluations_total",
		Help: "Accepted evaluations by outcome",
	}, []string{"outcome"})

	stageCompletions := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stage_completions_total",
		Help: "Stage completions detected by the progression engine",
	})

	conflictRetries := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "evaluation_conflict_retries_total",
		Help: "Evaluation transactions retried after serialization conflicts",
	})

	ledgerReplays := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ledger_replays_total",
		Help: "Full ledger replays executed to rebuild student positions",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite,
		cacheHits, cacheMisses, evaluationsTotal, stageCompletions, conflictRetries,
		ledgerReplays, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:          registry,
		handler:           handler,
		requestDuration:   requestDuration,
		requestTotal:      requestTotal,
		cacheLatency:      cacheLatency,
		cacheWrite:        cacheWrite,
		cacheHits:         cacheHits,
		cacheMisses:       cacheMisses,
		evaluationsTotal:  evaluationsTotal,
		stageCompletions:  stageCompletions,
		conflictRetries:   conflictRetries,
		ledgerReplayTotal: ledgerReplays,
	}
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

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation records cache hit/miss metrics.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	if m.cacheLatency != nil {
		m.cacheLatency.Observe(duration.Seconds())
	}
	if hit {
		m.cacheHits.Inc()
	} else {
		m.cacheMisses.Inc()
	}
}

// ObserveCacheWrite tracks the duration of cache set operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil || m.cacheWrite == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// RecordEvaluation counts an accepted evaluation by outcome.
func (m *MetricsService) RecordEvaluation(outcome string) {
	if m == nil {
		return
	}
	m.evaluationsTotal.WithLabelValues(outcome).Inc()
}

// RecordStageCompletion counts a detected stage completion.
func (m *MetricsService) RecordStageCompletion() {
	if m == nil {
		return
	}
	m.stageCompletions.Inc()
}

// RecordConflictRetry counts one serialization-conflict retry.
func (m *MetricsService) RecordConflictRetry() {
	if m == nil {
		return
	}
	m.conflictRetries.Inc()
}

// RecordLedgerReplay counts one full position rebuild.
func (m *MetricsService) RecordLedgerReplay() {
	if m == nil {
		return
	}
	m.ledgerReplayTotal.Inc()
}
