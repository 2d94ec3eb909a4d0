package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/songzhibin97/sentinel/events"
	"github.com/songzhibin97/sentinel/types"
)

// Metrics holds all Prometheus collectors for the service.
type Metrics struct {
	gatherer prometheus.Gatherer

	// Evaluation metrics
	evaluationsTotal   *prometheus.CounterVec
	adapterErrorsTotal *prometheus.CounterVec
	evaluationDuration prometheus.Histogram

	// HTTP metrics
	httpRequestDuration *prometheus.HistogramVec
	httpRequestsTotal   *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance and registers all collectors
// with a fresh registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	return NewMetricsWith(registry, registry)
}

// NewMetricsWith registers all collectors with registerer and serves them
// from gatherer. Nil values fall back to the prometheus defaults.
func NewMetricsWith(registerer prometheus.Registerer, gatherer prometheus.Gatherer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	factory := promauto.With(registerer)

	return &Metrics{
		gatherer: gatherer,

		evaluationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentinel_evaluations_total",
				Help: "Total number of transaction evaluations by recommendation",
			},
			[]string{"recommendation"},
		),
		adapterErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentinel_adapter_errors_total",
				Help: "Total number of classification adapter errors by kind",
			},
			[]string{"kind"},
		),
		evaluationDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "sentinel_evaluation_duration_seconds",
				Help:    "Duration of a full workflow evaluation in seconds",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
		),

		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sentinel_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route", "method", "status"},
		),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentinel_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"route", "method", "status"},
		),
	}
}

// RecordEvaluation records a finished evaluation.
func (m *Metrics) RecordEvaluation(state types.WorkflowState, duration float64) {
	m.evaluationsTotal.WithLabelValues(string(state.Recommendation)).Inc()
	m.evaluationDuration.Observe(duration)
	if state.Verdict != nil && state.Verdict.Err != nil {
		m.adapterErrorsTotal.WithLabelValues(string(state.Verdict.Err.Kind)).Inc()
	}
}

// RecordHTTPRequest records an HTTP request with duration.
func (m *Metrics) RecordHTTPRequest(route, method string, statusCode int, duration float64) {
	status := statusCodeToString(statusCode)
	m.httpRequestDuration.WithLabelValues(route, method, status).Observe(duration)
	m.httpRequestsTotal.WithLabelValues(route, method, status).Inc()
}

// Handle implements events.EventHandler for evaluation_completed events.
func (m *Metrics) Handle(ctx context.Context, event events.Event) error {
	if event.Type != events.EventEvaluationCompleted || event.State == nil {
		return nil
	}
	m.RecordEvaluation(*event.State, event.Duration.Seconds())
	return nil
}

// Handler serves the registered collectors in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func statusCodeToString(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500 && code < 600:
		return "5xx"
	default:
		return "unknown"
	}
}
