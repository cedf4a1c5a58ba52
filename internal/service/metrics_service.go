package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/florrin/calagenda/internal/engine"
)

// MetricsService encapsulates Prometheus instrumentation for the HTTP
// surface, the sync loop and the response cache.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	ingestTotal     *prometheus.CounterVec
	pollDuration    prometheus.Histogram
	pollFetched     prometheus.Counter
	pendingRsvps    prometheus.Gauge
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
}

// NewMetricsService registers the service's Prometheus collectors.
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

	ingestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_records_total",
		Help: "Records ingested into the reconciliation engine by class",
	}, []string{"class"})

	pollDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "store_poll_duration_seconds",
		Help:    "Duration of record store poll passes",
		Buckets: prometheus.DefBuckets,
	})

	pollFetched := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "store_poll_records_total",
		Help: "Total records fetched by the poll loop",
	})

	pendingRsvps := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pending_rsvps",
		Help: "Locally submitted RSVPs awaiting store confirmation",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total response cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total response cache misses",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, ingestTotal, pollDuration, pollFetched, pendingRsvps, cacheHits, cacheMisses, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		ingestTotal:     ingestTotal,
		pollDuration:    pollDuration,
		pollFetched:     pollFetched,
		pendingRsvps:    pendingRsvps,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
	}
}

// Handler exposes the Prometheus scrape endpoint.
func (s *MetricsService) Handler() http.Handler {
	return s.handler
}

// ObserveHTTPRequest records one completed HTTP request.
func (s *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	labels := []string{method, path, fmt.Sprintf("%d", status)}
	s.requestDuration.WithLabelValues(labels...).Observe(duration.Seconds())
	s.requestTotal.WithLabelValues(labels...).Inc()
}

// ObserveIngest records one engine ingest pass.
func (s *MetricsService) ObserveIngest(result engine.BatchResult) {
	s.ingestTotal.WithLabelValues("event").Add(float64(result.Events))
	s.ingestTotal.WithLabelValues("calendar").Add(float64(result.Calendars))
	s.ingestTotal.WithLabelValues("rsvp").Add(float64(result.Rsvps))
	s.ingestTotal.WithLabelValues("ignored").Add(float64(result.Ignored))
}

// ObservePoll records one full poll pass.
func (s *MetricsService) ObservePoll(duration time.Duration, fetched int) {
	s.pollDuration.Observe(duration.Seconds())
	s.pollFetched.Add(float64(fetched))
}

// SetPendingRSVPs updates the unconfirmed-RSVP gauge.
func (s *MetricsService) SetPendingRSVPs(count int) {
	s.pendingRsvps.Set(float64(count))
}

// ObserveCache records a response cache lookup.
func (s *MetricsService) ObserveCache(hit bool) {
	if hit {
		s.cacheHits.Inc()
		return
	}
	s.cacheMisses.Inc()
}
