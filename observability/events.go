package observability

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type activityMetrics struct {
	emitted  *prometheus.CounterVec
	failures *prometheus.CounterVec
}

var (
	activityOnce     sync.Once
	activityRegistry *activityMetrics
)

// Activity returns the registry counting committed engine events and failed
// deliveries to the activity sink.
func Activity() *activityMetrics {
	activityOnce.Do(func() {
		activityRegistry = &activityMetrics{
			emitted: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "activity",
				Name:      "events_total",
				Help:      "Committed engine events by module and type.",
			}, []string{"module", "type"}),
			failures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "activity",
				Name:      "publish_failures_total",
				Help:      "Activity batches the sink rejected, by operation.",
			}, []string{"operation"}),
		}
		prometheus.MustRegister(activityRegistry.emitted, activityRegistry.failures)
	})
	return activityRegistry
}

// RecordEvent counts one event such as "escrow.released"; the module label
// is the prefix before the first dot.
func (m *activityMetrics) RecordEvent(eventType string) {
	if m == nil {
		return
	}
	normalized := strings.ToLower(strings.TrimSpace(eventType))
	module, _, found := strings.Cut(normalized, ".")
	if normalized == "" || !found {
		module = "unknown"
	}
	if normalized == "" {
		normalized = "unknown"
	}
	m.emitted.WithLabelValues(module, normalized).Inc()
}

func (m *activityMetrics) RecordPublishFailure(operation string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(operation).Inc()
}
