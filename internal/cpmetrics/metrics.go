// Package cpmetrics exposes Prometheus metrics for the control plane's
// own operations: container driver calls, provisioning duration, agent
// relay calls, open SSE streams, and HTTP requests. The HTTP surface
// records HTTP requests and open SSE streams; RecordContainerOp,
// RecordProvision and RecordAgentRelayCall have no callers, so those
// metrics are registered but stay at zero.
package cpmetrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every metric the control plane records. Constructed
// once via NewMetrics; promauto registers each metric with the default
// registry on creation.
type Metrics struct {
	ContainerOps       *prometheus.CounterVec
	ProvisionDuration  prometheus.Histogram
	OpenSSEStreams     prometheus.Gauge
	HTTPRequests       *prometheus.CounterVec
	HTTPRequestLatency *prometheus.HistogramVec
	AgentRelayCalls    *prometheus.CounterVec
}

var (
	once     sync.Once
	instance *Metrics
)

// NewMetrics returns the process-wide Metrics singleton.
func NewMetrics() *Metrics {
	once.Do(func() {
		instance = &Metrics{
			ContainerOps: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "refactorctl_container_driver_ops_total",
				Help: "Total Container Driver operations by op and result.",
			}, []string{"op", "result"}),

			ProvisionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
				Name:    "refactorctl_provision_duration_seconds",
				Help:    "Time to provision a project from CREATED to READY or FAILED.",
				Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
			}),

			OpenSSEStreams: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "refactorctl_open_sse_streams",
				Help: "Number of currently open SSE streams (logs + agent relay).",
			}),

			HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "refactorctl_http_requests_total",
				Help: "Total HTTP requests by route and status code.",
			}, []string{"route", "method", "status"}),

			HTTPRequestLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "refactorctl_http_request_duration_seconds",
				Help:    "HTTP request latency by route.",
				Buckets: prometheus.DefBuckets,
			}, []string{"route", "method"}),

			AgentRelayCalls: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "refactorctl_agent_relay_calls_total",
				Help: "Total Agent Relay calls by endpoint and result.",
			}, []string{"endpoint", "result"}),
		}
	})
	return instance
}

// RecordContainerOp records the outcome of a single Container Driver call.
func (m *Metrics) RecordContainerOp(op string, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	m.ContainerOps.WithLabelValues(op, result).Inc()
}

// RecordProvision records a provision attempt's wall-clock duration.
func (m *Metrics) RecordProvision(d time.Duration) {
	m.ProvisionDuration.Observe(d.Seconds())
}

// RecordHTTPRequest records one finished HTTP request.
func (m *Metrics) RecordHTTPRequest(route, method, status string, d time.Duration) {
	m.HTTPRequests.WithLabelValues(route, method, status).Inc()
	m.HTTPRequestLatency.WithLabelValues(route, method).Observe(d.Seconds())
}

// RecordAgentRelayCall records the outcome of one Agent Relay call.
func (m *Metrics) RecordAgentRelayCall(endpoint string, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	m.AgentRelayCalls.WithLabelValues(endpoint, result).Inc()
}

// Handler returns the /metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
