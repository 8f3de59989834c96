package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HTTPServerMetrics struct {
	registry *prometheus.Registry
	service  string

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	ragRequestsTotal     *prometheus.CounterVec
	ragModeRequestsTotal *prometheus.CounterVec
	ragRetrievalHitTotal *prometheus.CounterVec
	ragNoContextTotal    *prometheus.CounterVec
	ragRetrievedChunks   *prometheus.HistogramVec
	ragDuration          *prometheus.HistogramVec

	cacheLookupsTotal     *prometheus.CounterVec
	embeddingLookupsTotal *prometheus.CounterVec
	enrichmentStepsTotal  *prometheus.CounterVec
	sessionEvictionsTotal *prometheus.CounterVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "legallens",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "legallens",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "legallens",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	ragRequestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "legallens",
			Subsystem: "rag",
			Name:      "requests_total",
			Help:      "Total successful retrieval requests.",
		},
		[]string{"service", "endpoint"},
	)
	ragModeRequestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "legallens",
			Subsystem: "rag",
			Name:      "mode_requests_total",
			Help:      "Total successful chat requests by mode.",
		},
		[]string{"service", "endpoint", "mode"},
	)
	ragRetrievalHitTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "legallens",
			Subsystem: "rag",
			Name:      "retrieval_hit_total",
			Help:      "Total retrieval requests with at least one retrieved chunk.",
		},
		[]string{"service", "endpoint"},
	)
	ragNoContextTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "legallens",
			Subsystem: "rag",
			Name:      "no_context_total",
			Help:      "Total retrieval requests without retrieved chunks.",
		},
		[]string{"service", "endpoint"},
	)
	ragRetrievedChunks := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "legallens",
			Subsystem: "rag",
			Name:      "retrieved_chunks",
			Help:      "Distribution of retrieved chunks per successful request.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8},
		},
		[]string{"service", "endpoint"},
	)
	ragDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "legallens",
			Subsystem: "rag",
			Name:      "duration_seconds",
			Help:      "Retrieval request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "endpoint"},
	)
	cacheLookupsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "legallens",
			Subsystem: "cache",
			Name:      "document_lookups_total",
			Help:      "Document cache lookups on upload by source (memory, durable, none).",
		},
		[]string{"service", "source"},
	)
	embeddingLookupsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "legallens",
			Subsystem: "cache",
			Name:      "embedding_lookups_total",
			Help:      "Embedding cache lookups by result.",
		},
		[]string{"service", "result"},
	)
	enrichmentStepsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "legallens",
			Subsystem: "enrichment",
			Name:      "steps_total",
			Help:      "Background enrichment steps by step and status.",
		},
		[]string{"service", "step", "status"},
	)
	sessionEvictionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "legallens",
			Subsystem: "chat",
			Name:      "session_evictions_total",
			Help:      "Chat sessions evicted from the registry by key scope.",
		},
		[]string{"service", "scope"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		ragRequestsTotal,
		ragModeRequestsTotal,
		ragRetrievalHitTotal,
		ragNoContextTotal,
		ragRetrievedChunks,
		ragDuration,
		cacheLookupsTotal,
		embeddingLookupsTotal,
		enrichmentStepsTotal,
		sessionEvictionsTotal,
	)

	return &HTTPServerMetrics{
		registry:              registry,
		service:               service,
		requestTotal:          requestTotal,
		requestDuration:       requestDuration,
		requestInFlight:       requestInFlight,
		ragRequestsTotal:      ragRequestsTotal,
		ragModeRequestsTotal:  ragModeRequestsTotal,
		ragRetrievalHitTotal:  ragRetrievalHitTotal,
		ragNoContextTotal:     ragNoContextTotal,
		ragRetrievedChunks:    ragRetrievedChunks,
		ragDuration:           ragDuration,
		cacheLookupsTotal:     cacheLookupsTotal,
		embeddingLookupsTotal: embeddingLookupsTotal,
		enrichmentStepsTotal:  enrichmentStepsTotal,
		sessionEvictionsTotal: sessionEvictionsTotal,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := WrapResponseWriter(w)

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			path,
			strconv.Itoa(recorder.StatusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/documents/") && strings.HasSuffix(path, "/enrichment"):
		return "/v1/documents/{content_hash}/enrichment"
	case strings.HasPrefix(path, "/v1/documents/"):
		return "/v1/documents/{content_hash}"
	case strings.HasPrefix(path, "/v1/blobs/"):
		return "/v1/blobs/{key}"
	default:
		return path
	}
}

func (m *HTTPServerMetrics) RecordRAGObservation(service, endpoint string, sourceCount int, duration time.Duration) {
	m.ragRequestsTotal.WithLabelValues(service, endpoint).Inc()
	m.ragRetrievedChunks.WithLabelValues(service, endpoint).Observe(float64(sourceCount))
	m.ragDuration.WithLabelValues(service, endpoint).Observe(duration.Seconds())

	if sourceCount > 0 {
		m.ragRetrievalHitTotal.WithLabelValues(service, endpoint).Inc()
		return
	}
	m.ragNoContextTotal.WithLabelValues(service, endpoint).Inc()
}

func (m *HTTPServerMetrics) RecordRAGModeRequest(service, endpoint, mode string) {
	if mode == "" {
		mode = "unknown"
	}
	m.ragModeRequestsTotal.WithLabelValues(service, endpoint, mode).Inc()
}

func (m *HTTPServerMetrics) RecordCacheLookup(source string) {
	if source == "" {
		source = "unknown"
	}
	m.cacheLookupsTotal.WithLabelValues(m.service, source).Inc()
}

func (m *HTTPServerMetrics) RecordEmbeddingLookup(hits, misses int) {
	if hits > 0 {
		m.embeddingLookupsTotal.WithLabelValues(m.service, "hit").Add(float64(hits))
	}
	if misses > 0 {
		m.embeddingLookupsTotal.WithLabelValues(m.service, "miss").Add(float64(misses))
	}
}

func (m *HTTPServerMetrics) RecordEnrichment(step, status string) {
	if status == "" {
		status = "unknown"
	}
	m.enrichmentStepsTotal.WithLabelValues(m.service, step, status).Inc()
}

func (m *HTTPServerMetrics) RecordSessionEviction(scope string) {
	m.sessionEvictionsTotal.WithLabelValues(m.service, scope).Inc()
}
