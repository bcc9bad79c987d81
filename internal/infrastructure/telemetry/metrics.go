package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// defaultNamespace prefixes every metric name.
const defaultNamespace = "librarium"

// Metrics holds the Prometheus collectors for Librarium Core.
//
// Each Metrics owns a private registry so tests can build as many as they
// like without duplicate-registration panics.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	authOutcomes  *prometheus.CounterVec
	catalogEvents *prometheus.CounterVec
	wsClients     prometheus.Gauge
}

// NewMetrics creates and registers all collectors, including the Go
// runtime and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: defaultNamespace,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by route pattern, method and status code",
		}, []string{"route", "method", "status"}),

		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: defaultNamespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route pattern",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),

		authOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: defaultNamespace,
			Name:      "auth_outcomes_total",
			Help:      "Authentication and authorization outcomes by action and result",
		}, []string{"action", "outcome"}),

		catalogEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: defaultNamespace,
			Name:      "catalog_events_total",
			Help:      "Catalog change events published",
		}, []string{"event"}),

		wsClients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: defaultNamespace,
			Name:      "websocket_clients",
			Help:      "Connected WebSocket clients",
		}),
	}
}

// ObserveRequest records one completed HTTP request.
// route must be the router pattern, never the raw path, to bound cardinality.
func (m *Metrics) ObserveRequest(route, method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(route, method).Observe(d.Seconds())
}

// AuthOutcome counts one auth result, e.g. ("resolve", "expired").
func (m *Metrics) AuthOutcome(action, outcome string) {
	if m == nil {
		return
	}
	m.authOutcomes.WithLabelValues(action, outcome).Inc()
}

// CatalogEvent counts one published catalog event.
func (m *Metrics) CatalogEvent(event string) {
	if m == nil {
		return
	}
	m.catalogEvents.WithLabelValues(event).Inc()
}

// SetWebSocketClients sets the connected client gauge.
func (m *Metrics) SetWebSocketClients(n int) {
	if m == nil {
		return
	}
	m.wsClients.Set(float64(n))
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
