package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation. All methods are safe
// on a nil receiver so callers can run without metrics.
type MetricsService struct {
	registry            *prometheus.Registry
	handler             http.Handler
	requestDuration     *prometheus.HistogramVec
	requestTotal        *prometheus.CounterVec
	issuesCreated       *prometheus.CounterVec
	statusChanges       *prometheus.CounterVec
	notifications       *prometheus.CounterVec
	rateLimitRejections prometheus.Counter
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

	issuesCreated := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "issues_created_total",
		Help: "Issues created, by category",
	}, []string{"category"})

	statusChanges := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "issue_status_changes_total",
		Help: "Admin status transitions, by new status",
	}, []string{"status"})

	notifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_total",
		Help: "Status change notifications, by result",
	}, []string{"result"})

	rateLimitRejections := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rate_limit_rejections_total",
		Help: "Issue submissions rejected by the daily limit",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, issuesCreated, statusChanges, notifications, rateLimitRejections, goroutines)

	return &MetricsService{
		registry:            registry,
		handler:             promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:     requestDuration,
		requestTotal:        requestTotal,
		issuesCreated:       issuesCreated,
		statusChanges:       statusChanges,
		notifications:       notifications,
		rateLimitRejections: rateLimitRejections,
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

// Registry exposes the underlying registry for tests.
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
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// IssueCreated counts a stored submission.
func (m *MetricsService) IssueCreated(category string) {
	if m == nil {
		return
	}
	m.issuesCreated.WithLabelValues(category).Inc()
}

// IssueStatusChanged counts an admin status transition.
func (m *MetricsService) IssueStatusChanged(status string) {
	if m == nil {
		return
	}
	m.statusChanges.WithLabelValues(status).Inc()
}

// RecordNotification counts a notification outcome (sent, failed, skipped, dropped).
func (m *MetricsService) RecordNotification(result string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(result).Inc()
}

// RateLimitRejected counts a submission refused by the rate limiter.
func (m *MetricsService) RateLimitRejected() {
	if m == nil {
		return
	}
	m.rateLimitRejections.Inc()
}
