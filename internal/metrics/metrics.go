package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for the ledger. A nil *Metrics is
// valid and records nothing, so components can run without instrumentation.
type Metrics struct {
	// Ledger operation metrics
	operationsTotal    *prometheus.CounterVec
	operationDuration  *prometheus.HistogramVec
	versionConflicts   *prometheus.CounterVec
	rollbacksTotal     *prometheus.CounterVec
	transactionsAmount *prometheus.CounterVec

	// Idempotency metrics
	idempotencyLookups *prometheus.CounterVec

	// HTTP metrics
	httpRequestDuration *prometheus.HistogramVec
	httpRequestsTotal   *prometheus.CounterVec

	// NATS metrics
	natsMessagesPublished *prometheus.CounterVec
	natsPublishDuration   *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		operationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_operations_total",
				Help: "Total number of ledger operations by kind and outcome",
			},
			[]string{"operation", "outcome"},
		),
		operationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ledger_operation_duration_seconds",
				Help:    "Duration of ledger operations in seconds, retries included",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1.0},
			},
			[]string{"operation"},
		),
		versionConflicts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_version_conflicts_total",
				Help: "Total number of optimistic-locking conflicts observed",
			},
			[]string{"operation"},
		),
		rollbacksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_rollbacks_total",
				Help: "Total number of compensating rollbacks by outcome",
			},
			[]string{"outcome"},
		),
		transactionsAmount: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_transaction_amount_total",
				Help: "Sum of completed transaction amounts by type and currency",
			},
			[]string{"type", "currency"},
		),

		idempotencyLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "idempotency_lookups_total",
				Help: "Total number of idempotency guard lookups by result",
			},
			[]string{"operation", "result"},
		),

		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"handler", "method", "status"},
		),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"handler", "method", "status"},
		),

		natsMessagesPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nats_messages_published_total",
				Help: "Total number of NATS messages published",
			},
			[]string{"subject", "status"},
		),
		natsPublishDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nats_publish_duration_seconds",
				Help:    "Duration of NATS publish operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
			[]string{"subject"},
		),
	}
}

// Ledger metric helpers

// RecordOperation records a finished ledger operation. Outcome is "success" or
// an error code.
func (m *Metrics) RecordOperation(operation, outcome string, duration float64) {
	if m == nil {
		return
	}
	m.operationsTotal.WithLabelValues(operation, outcome).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(duration)
}

// RecordVersionConflict records a lost optimistic-locking race.
func (m *Metrics) RecordVersionConflict(operation string) {
	if m == nil {
		return
	}
	m.versionConflicts.WithLabelValues(operation).Inc()
}

// RecordRollback records a compensating rollback, "succeeded" or "failed".
func (m *Metrics) RecordRollback(outcome string) {
	if m == nil {
		return
	}
	m.rollbacksTotal.WithLabelValues(outcome).Inc()
}

// RecordTransactionAmount adds a completed movement to the volume counter.
func (m *Metrics) RecordTransactionAmount(txType, currency string, amount float64) {
	if m == nil {
		return
	}
	m.transactionsAmount.WithLabelValues(txType, currency).Add(amount)
}

// Idempotency metric helpers

// RecordIdempotencyLookup records a guard lookup: "hit", "miss" or "mismatch".
func (m *Metrics) RecordIdempotencyLookup(operation, result string) {
	if m == nil {
		return
	}
	m.idempotencyLookups.WithLabelValues(operation, result).Inc()
}

// HTTP metric helpers

// RecordHTTPRequest records an HTTP request with duration.
func (m *Metrics) RecordHTTPRequest(handler, method string, statusCode int, duration float64) {
	if m == nil {
		return
	}
	status := statusCodeToString(statusCode)
	m.httpRequestDuration.WithLabelValues(handler, method, status).Observe(duration)
	m.httpRequestsTotal.WithLabelValues(handler, method, status).Inc()
}

// NATS metric helpers

// RecordNATSPublish records a NATS publish operation.
func (m *Metrics) RecordNATSPublish(subject, status string, duration float64) {
	if m == nil {
		return
	}
	m.natsMessagesPublished.WithLabelValues(subject, status).Inc()
	m.natsPublishDuration.WithLabelValues(subject).Observe(duration)
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
