package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	reelqueue = "reelqueue"

	// Job metrics
	jobsCreatedTotal      = "jobs_created_total"
	jobTransitionsTotal   = "job_status_transitions_total"
	providerRequestsTotal = "provider_requests_total"
	providerLatency       = "provider_request_duration_seconds"

	// Labels
	providerLabel  = "provider"
	statusLabel    = "status"
	operationLabel = "operation"
	outcomeLabel   = "outcome"

	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

/**
* Metrics definition
**/
var jobsCreatedTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: reelqueue,
		Name:      jobsCreatedTotal,
		Help:      "number of jobs created, including remix and extend derivatives",
	},
	[]string{providerLabel},
)

var jobTransitionsTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: reelqueue,
		Name:      jobTransitionsTotal,
		Help:      "number of job status changes persisted after a refresh",
	},
	[]string{providerLabel, statusLabel},
)

var providerRequestsTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: reelqueue,
		Name:      providerRequestsTotal,
		Help:      "number of calls made to provider APIs",
	},
	[]string{providerLabel, operationLabel, outcomeLabel},
)

var providerLatencyMetric = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Subsystem: reelqueue,
		Name:      providerLatency,
		Help:      "latency of provider API calls",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	},
	[]string{providerLabel, operationLabel},
)

func IncreaseJobsCreatedMetric(provider string) {
	jobsCreatedTotalMetric.With(prometheus.Labels{providerLabel: provider}).Inc()
}

func IncreaseJobTransitionMetric(provider, status string) {
	labels := prometheus.Labels{
		providerLabel: provider,
		statusLabel:   status,
	}
	jobTransitionsTotalMetric.With(labels).Inc()
}

func ObserveProviderRequest(provider, operation, outcome string, elapsed time.Duration) {
	providerRequestsTotalMetric.With(prometheus.Labels{
		providerLabel:  provider,
		operationLabel: operation,
		outcomeLabel:   outcome,
	}).Inc()
	providerLatencyMetric.With(prometheus.Labels{
		providerLabel:  provider,
		operationLabel: operation,
	}).Observe(elapsed.Seconds())
}

type PrometheusMetricsHandler struct{}

func NewPrometheusMetricsHandler() *PrometheusMetricsHandler {
	return &PrometheusMetricsHandler{}
}

func (h *PrometheusMetricsHandler) Handler() http.Handler {
	return promhttp.Handler()
}

func init() {
	registerMetrics()
}

func registerMetrics() {
	prometheus.MustRegister(jobsCreatedTotalMetric)
	prometheus.MustRegister(jobTransitionsTotalMetric)
	prometheus.MustRegister(providerRequestsTotalMetric)
	prometheus.MustRegister(providerLatencyMetric)
}
