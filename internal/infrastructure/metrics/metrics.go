// Package metrics provides Prometheus metric collection for the
// coordination core.
//
// A single Collector instance is created at startup, registered on a
// dedicated registry, and shared by the API layer and the bus listener.
// The /metrics endpoint exposes the registry for scraping.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is the metric recording interface used by the service and
// listener layers. It exists so tests can substitute a no-op recorder.
type Recorder interface {
	RecordTransition(operation, outcome string)
	RecordBusPublish(topic string, success bool)
	RecordBusEvent(topic string, result string)
	RecordMalformedEvent(topic string)
	RecordHTTPRequest(method, route string, statusCode int, duration time.Duration)
}

// Collector implements Recorder on top of Prometheus primitives.
type Collector struct {
	transitions  *prometheus.CounterVec
	busPublishes *prometheus.CounterVec
	busEvents    *prometheus.CounterVec
	malformed    *prometheus.CounterVec
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// NewCollector creates a Collector and registers its metrics on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "parcelbox_transitions_total",
			Help: "Parcel state transitions by operation and outcome",
		}, []string{"operation", "outcome"}),
		busPublishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "parcelbox_bus_publishes_total",
			Help: "Bus publishes by topic class and result",
		}, []string{"topic", "result"}),
		busEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "parcelbox_bus_events_total",
			Help: "Inbound bus events by topic class and handling result",
		}, []string{"topic", "result"}),
		malformed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "parcelbox_bus_events_malformed_total",
			Help: "Inbound bus events dropped as malformed",
		}, []string{"topic"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "parcelbox_http_requests_total",
			Help: "HTTP requests by method, route and status code",
		}, []string{"method", "route", "status_code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "parcelbox_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	reg.MustRegister(
		c.transitions,
		c.busPublishes,
		c.busEvents,
		c.malformed,
		c.httpRequests,
		c.httpDuration,
	)

	return c
}

// RecordTransition records the outcome of a parcel state transition.
// Outcome values mirror the status strings returned to clients, for
// example "registered", "already_delivered" or "occupied".
func (c *Collector) RecordTransition(operation, outcome string) {
	c.transitions.WithLabelValues(operation, outcome).Inc()
}

// RecordBusPublish records a post-commit bus publish attempt.
func (c *Collector) RecordBusPublish(topic string, success bool) {
	result := "ok"
	if !success {
		result = "error"
	}
	c.busPublishes.WithLabelValues(topic, result).Inc()
}

// RecordBusEvent records an inbound bus event and its handling result.
func (c *Collector) RecordBusEvent(topic string, result string) {
	c.busEvents.WithLabelValues(topic, result).Inc()
}

// RecordMalformedEvent records a dropped malformed bus event.
func (c *Collector) RecordMalformedEvent(topic string) {
	c.malformed.WithLabelValues(topic).Inc()
}

// RecordHTTPRequest records a completed HTTP request.
func (c *Collector) RecordHTTPRequest(method, route string, statusCode int, duration time.Duration) {
	code := strconv.Itoa(statusCode)
	c.httpRequests.WithLabelValues(method, route, code).Inc()
	c.httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Handler returns the HTTP handler serving the registry for Prometheus
// scrapes.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop is a Recorder that discards all observations. Used in tests and
// wherever metrics are not wired.
type Nop struct{}

func (Nop) RecordTransition(string, string)                      {}
func (Nop) RecordBusPublish(string, bool)                        {}
func (Nop) RecordBusEvent(string, string)                        {}
func (Nop) RecordMalformedEvent(string)                          {}
func (Nop) RecordHTTPRequest(string, string, int, time.Duration) {}
