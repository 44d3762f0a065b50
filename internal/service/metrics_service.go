package service

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the API and the
// edit-lock subsystem.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	lockAcquires    *prometheus.CounterVec
	lockReleases    *prometheus.CounterVec
}

// NewMetricsService registers core Prometheus collectors.
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

	lockAcquires := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "record_lock_acquire_total",
		Help: "Edit lock acquisition attempts by outcome",
	}, []string{"outcome"})

	lockReleases := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "record_lock_release_total",
		Help: "Edit lock release attempts by outcome",
	}, []string{"outcome"})

	registry.MustRegister(requestDuration, requestTotal, lockAcquires, lockReleases)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		lockAcquires:    lockAcquires,
		lockReleases:    lockReleases,
	}
}

// Handler exposes the Prometheus scrape endpoint.
func (s *MetricsService) Handler() http.Handler {
	return s.handler
}

// ObserveHTTPRequest records duration and count for a completed request.
func (s *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	code := fmt.Sprintf("%d", status)
	s.requestDuration.WithLabelValues(method, path, code).Observe(duration.Seconds())
	s.requestTotal.WithLabelValues(method, path, code).Inc()
}

// RecordLockAcquire counts an acquisition attempt.
func (s *MetricsService) RecordLockAcquire(acquired bool) {
	outcome := "acquired"
	if !acquired {
		outcome = "contended"
	}
	s.lockAcquires.WithLabelValues(outcome).Inc()
}

// RecordLockRelease counts a release attempt.
func (s *MetricsService) RecordLockRelease(released bool) {
	outcome := "released"
	if !released {
		outcome = "not_held"
	}
	s.lockReleases.WithLabelValues(outcome).Inc()
}
