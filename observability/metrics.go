package observability

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "trustescrow"

type settlementMetrics struct {
	requests   *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	violations *prometheus.CounterVec
	locked     prometheus.Gauge
}

type gatewayMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	settlementOnce     sync.Once
	settlementRegistry *settlementMetrics

	gatewayOnce     sync.Once
	gatewayRegistry *gatewayMetrics
)

// Settlement returns the lazily-initialised registry recording façade
// operations.
func Settlement() *settlementMetrics {
	settlementOnce.Do(func() {
		settlementRegistry = &settlementMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "settlement",
				Name:      "requests_total",
				Help:      "Settlement operations segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "settlement",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution of settlement operations.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation"}),
			violations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "settlement",
				Name:      "invariant_violations_total",
				Help:      "Invariant violations detected while loading or storing records.",
			}, []string{"record"}),
			locked: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "settlement",
				Name:      "locks_held",
				Help:      "Record locks currently held by in-flight operations.",
			}),
		}
		prometheus.MustRegister(
			settlementRegistry.requests,
			settlementRegistry.latency,
			settlementRegistry.violations,
			settlementRegistry.locked,
		)
	})
	return settlementRegistry
}

// Observe records the outcome of a settlement operation. Outcome is the error
// code for rejected operations and "ok" otherwise.
func (m *settlementMetrics) Observe(operation, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	if operation == "" {
		operation = "unknown"
	}
	if outcome == "" {
		outcome = "ok"
	}
	m.requests.WithLabelValues(operation, outcome).Inc()
	m.latency.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordViolation increments the invariant violation counter for record.
func (m *settlementMetrics) RecordViolation(record string) {
	if m == nil {
		return
	}
	record = strings.TrimSpace(record)
	if record == "" {
		record = "unknown"
	}
	m.violations.WithLabelValues(record).Inc()
}

// LocksAcquired adjusts the held-locks gauge by delta.
func (m *settlementMetrics) LocksAcquired(delta int) {
	if m == nil {
		return
	}
	m.locked.Add(float64(delta))
}

// Gateway returns the registry recording HTTP gateway traffic.
func Gateway() *gatewayMetrics {
	gatewayOnce.Do(func() {
		gatewayRegistry = &gatewayMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "gateway",
				Name:      "requests_total",
				Help:      "Total gateway requests segmented by route and outcome.",
			}, []string{"route", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "gateway",
				Name:      "errors_total",
				Help:      "Total gateway errors segmented by route and status code.",
			}, []string{"route", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "gateway",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for gateway handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"route", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "gateway",
				Name:      "throttles_total",
				Help:      "Count of gateway requests rejected by throttling policies.",
			}, []string{"route", "reason"}),
		}
		prometheus.MustRegister(
			gatewayRegistry.requests,
			gatewayRegistry.errors,
			gatewayRegistry.latency,
			gatewayRegistry.throttles,
		)
	})
	return gatewayRegistry
}

// Observe records the outcome of a gateway request. The status code should be
// the HTTP status that was ultimately written to the response writer.
func (m *gatewayMetrics) Observe(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
	}
	m.requests.WithLabelValues(route, method, outcome).Inc()
	if status >= 400 {
		m.errors.WithLabelValues(route, method, fmt.Sprintf("%d", status)).Inc()
	}
	m.latency.WithLabelValues(route, method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter for the supplied route and
// reason. Reasons should be stable strings such as "rate_limit".
func (m *gatewayMetrics) RecordThrottle(route, reason string) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(route, reason).Inc()
}
