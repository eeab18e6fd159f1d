package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the bot and
// the mini-app surface. It carries its own registry so tests can build
// isolated instances.
type MetricsService struct {
	registry *prometheus.Registry
	handler  http.Handler

	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	updatesTotal    *prometheus.CounterVec
	cacheHits       *prometheus.CounterVec
	cacheMisses     *prometheus.CounterVec
	cacheRefreshes  *prometheus.CounterVec
	storeLatency    *prometheus.HistogramVec
	assistantCalls  *prometheus.CounterVec
}

// NewMetricsService registers the collectors.
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

	updatesTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bot_updates_total",
		Help: "Total processed bot updates",
	}, []string{"kind"})

	cacheHits := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "table_cache_hits_total",
		Help: "Table cache lookups served from memory",
	}, []string{"table"})

	cacheMisses := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "table_cache_misses_total",
		Help: "Table cache lookups that hit the backing store",
	}, []string{"table"})

	cacheRefreshes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "table_cache_refreshes_total",
		Help: "Table snapshot reloads",
	}, []string{"table"})

	storeLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "store_operation_duration_seconds",
		Help:    "Latency of backing store operations",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	assistantCalls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "assistant_calls_total",
		Help: "Query assistant calls by outcome",
	}, []string{"outcome"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, updatesTotal, cacheHits, cacheMisses, cacheRefreshes, storeLatency, assistantCalls, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		updatesTotal:    updatesTotal,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		cacheRefreshes:  cacheRefreshes,
		storeLatency:    storeLatency,
		assistantCalls:  assistantCalls,
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

// ObserveHTTPRequest records mini-app request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// ObserveUpdate counts one processed bot update by kind.
func (m *MetricsService) ObserveUpdate(kind string) {
	if m == nil {
		return
	}
	m.updatesTotal.WithLabelValues(kind).Inc()
}

// CacheHit implements repository.CacheMetrics.
func (m *MetricsService) CacheHit(table string) {
	if m == nil {
		return
	}
	m.cacheHits.WithLabelValues(table).Inc()
}

// CacheMiss implements repository.CacheMetrics.
func (m *MetricsService) CacheMiss(table string) {
	if m == nil {
		return
	}
	m.cacheMisses.WithLabelValues(table).Inc()
}

// CacheRefresh implements repository.CacheMetrics.
func (m *MetricsService) CacheRefresh(table string) {
	if m == nil {
		return
	}
	m.cacheRefreshes.WithLabelValues(table).Inc()
}

// ObserveStoreOperation records backing store timing.
func (m *MetricsService) ObserveStoreOperation(operation string, duration time.Duration) {
	if m == nil {
		return
	}
	m.storeLatency.WithLabelValues(operation).Observe(duration.Seconds())
}

// ObserveAssistantCall counts one assistant call by outcome.
func (m *MetricsService) ObserveAssistantCall(outcome string) {
	if m == nil {
		return
	}
	m.assistantCalls.WithLabelValues(outcome).Inc()
}
