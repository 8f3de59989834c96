package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// WorkerMetrics covers the event consumer process.
type WorkerMetrics struct {
	registry *prometheus.Registry

	eventsTotal *prometheus.CounterVec
	eventLag    *prometheus.HistogramVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	eventsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "legallens",
			Subsystem: "worker",
			Name:      "document_events_total",
			Help:      "Total consumed document events by type and state.",
		},
		[]string{"service", "type", "state"},
	)
	eventLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "legallens",
			Subsystem: "worker",
			Name:      "event_lag_seconds",
			Help:      "Delay between event occurrence and consumption.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"service", "type"},
	)

	registry.MustRegister(eventsTotal, eventLag)

	return &WorkerMetrics{
		registry:    registry,
		eventsTotal: eventsTotal,
		eventLag:    eventLag,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) ObserveEvent(service, eventType, state string, lag time.Duration) {
	if state == "" {
		state = "unknown"
	}
	m.eventsTotal.WithLabelValues(service, eventType, state).Inc()
	if lag >= 0 {
		m.eventLag.WithLabelValues(service, eventType).Observe(lag.Seconds())
	}
}
