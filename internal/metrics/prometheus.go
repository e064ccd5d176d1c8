// Package metrics provides Prometheus metrics for the workspace panel.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Metrics holds all Prometheus metrics.
type Metrics struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	requestsInFlight prometheus.Gauge
	responseSize     *prometheus.HistogramVec

	provisioningTotal    *prometheus.CounterVec
	provisioningDuration *prometheus.HistogramVec

	poolClients      prometheus.Gauge
	mirrorOperations *prometheus.CounterVec
	cacheLookups     *prometheus.CounterVec
	healthStatus     prometheus.Gauge
}

// NewMetrics creates the panel metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "workspace_panel_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "workspace_panel_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"method", "route", "status"},
		),
		requestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "workspace_panel_http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed",
			},
		),
		responseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "workspace_panel_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: []float64{100, 500, 1000, 5000, 10000, 50000, 100000},
			},
			[]string{"method", "route"},
		),
		provisioningTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "workspace_panel_provisioning_requests_total",
				Help: "Total number of calls to the provisioning API",
			},
			[]string{"operation", "status"},
		),
		provisioningDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "workspace_panel_provisioning_request_duration_seconds",
				Help:    "Provisioning API call duration in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"operation"},
		),
		poolClients: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "workspace_panel_pool_clients",
				Help: "Number of pooled workspace database clients",
			},
		),
		mirrorOperations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "workspace_panel_mirror_operations_total",
				Help: "Aggregator mirror operations by result",
			},
			[]string{"operation", "result"},
		),
		cacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "workspace_panel_cache_lookups_total",
				Help: "Workspace cache lookups by result",
			},
			[]string{"result"},
		),
		healthStatus: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "workspace_panel_health_status",
				Help: "Health status of the panel (1 = healthy, 0 = unhealthy)",
			},
		),
	}
}

// RecordHTTPRequest records metrics for an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, route string, statusCode int, duration time.Duration) {
	status := strconv.Itoa(statusCode)
	m.requestsTotal.WithLabelValues(method, route, status).Inc()
	m.requestDuration.WithLabelValues(method, route, status).Observe(duration.Seconds())
}

// RecordResponseSize records the response size.
func (m *Metrics) RecordResponseSize(method, route string, size int) {
	m.responseSize.WithLabelValues(method, route).Observe(float64(size))
}

func (m *Metrics) IncRequestsInFlight() {
	m.requestsInFlight.Inc()
}

func (m *Metrics) DecRequestsInFlight() {
	m.requestsInFlight.Dec()
}

// RecordProvisioningCall records one provisioning API call.
func (m *Metrics) RecordProvisioningCall(operation, status string, duration time.Duration) {
	m.provisioningTotal.WithLabelValues(operation, status).Inc()
	m.provisioningDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// SetPoolClients reports the current tenant pool size.
func (m *Metrics) SetPoolClients(n int) {
	m.poolClients.Set(float64(n))
}

// RecordMirrorOperation counts an aggregator mirror outcome. result is one of
// "ok", "failed" or "inactive".
func (m *Metrics) RecordMirrorOperation(operation, result string) {
	m.mirrorOperations.WithLabelValues(operation, result).Inc()
}

// RecordCacheLookup counts a workspace cache hit or miss.
func (m *Metrics) RecordCacheLookup(hit bool) {
	if hit {
		m.cacheLookups.WithLabelValues("hit").Inc()
		return
	}
	m.cacheLookups.WithLabelValues("miss").Inc()
}

// SetHealthStatus sets the health status.
func (m *Metrics) SetHealthStatus(healthy bool) {
	if healthy {
		m.healthStatus.Set(1)
	} else {
		m.healthStatus.Set(0)
	}
}

// MetricsServer provides a separate HTTP server for Prometheus metrics.
type MetricsServer struct {
	server *http.Server
	logger *zap.Logger
}

// NewMetricsServer creates a new metrics server exposing gatherer on path.
func NewMetricsServer(port int, path string, gatherer prometheus.Gatherer, logger *zap.Logger) *MetricsServer {
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return &MetricsServer{
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Start starts the metrics server.
func (ms *MetricsServer) Start() error {
	ms.logger.Info("starting metrics server", zap.String("addr", ms.server.Addr))
	return ms.server.ListenAndServe()
}

// Shutdown gracefully shuts down the metrics server.
func (ms *MetricsServer) Shutdown(ctx context.Context) error {
	return ms.server.Shutdown(ctx)
}

// MetricsMiddleware creates middleware that records HTTP metrics. Requests are
// labelled with the matched route template so workspace ids stay out of the label set.
func MetricsMiddleware(m *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m.IncRequestsInFlight()
			defer m.DecRequestsInFlight()

			start := time.Now()
			rw := &metricsResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			route := routeTemplate(r)
			m.RecordHTTPRequest(r.Method, route, rw.statusCode, time.Since(start))
			m.RecordResponseSize(r.Method, route, rw.size)
		})
	}
}

func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return "unmatched"
}

// metricsResponseWriter wraps http.ResponseWriter to capture metrics.
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode int
	size       int
}

func (rw *metricsResponseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *metricsResponseWriter) Write(b []byte) (int, error) {
	size, err := rw.ResponseWriter.Write(b)
	rw.size += size
	return size, err
}
