package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics contains all Prometheus metrics of the backend.
// All methods are no-ops on a nil receiver so components can run unmetered.
type PrometheusMetrics struct {
	// Indexer metrics
	IndexerPollsTotal          *prometheus.CounterVec
	IndexerPollDuration        prometheus.Histogram
	EventsIndexedTotal         *prometheus.CounterVec
	TransactionFetchErrorTotal prometheus.Counter
	LatestIndexedSlot          prometheus.Gauge
	EventStoreSize             prometheus.Gauge

	// Ledger RPC metrics
	RPCRequestsTotal   *prometheus.CounterVec
	RPCRequestDuration *prometheus.HistogramVec

	// Storage metrics
	StorageOperationsTotal   *prometheus.CounterVec
	StorageOperationDuration *prometheus.HistogramVec

	// Webhook metrics
	WebhookAttemptsTotal   *prometheus.CounterVec
	WebhookDeliveriesTotal *prometheus.CounterVec

	// Screening metrics
	ScreeningDecisionsTotal *prometheus.CounterVec

	// Audit metrics
	AuditEventsTotal *prometheus.CounterVec

	// API metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Application health metrics
	ApplicationUptime prometheus.Gauge
	MemoryUsage       prometheus.Gauge
	GoroutineCount    prometheus.Gauge
}

// NewPrometheusMetrics creates all metrics and registers them on reg
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	factory := promauto.With(reg)

	return &PrometheusMetrics{
		IndexerPollsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sss_indexer_polls_total",
				Help: "Total number of indexer poll cycles",
			},
			[]string{"status"},
		),

		IndexerPollDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "sss_indexer_poll_duration_seconds",
				Help:    "Time spent in one indexer poll cycle",
				Buckets: prometheus.DefBuckets,
			},
		),

		EventsIndexedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sss_events_indexed_total",
				Help: "Total number of transactions appended to the event store",
			},
			[]string{"event_type"},
		),

		TransactionFetchErrorTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "sss_transaction_fetch_errors_total",
				Help: "Transactions indexed without detail because the fetch failed",
			},
		),

		LatestIndexedSlot: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "sss_latest_indexed_slot",
				Help: "Slot of the newest indexed transaction",
			},
		),

		EventStoreSize: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "sss_event_store_size",
				Help: "Number of events currently held by the event store",
			},
		),

		RPCRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sss_rpc_requests_total",
				Help: "Total number of JSON-RPC requests made to the ledger",
			},
			[]string{"method", "status"},
		),

		RPCRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sss_rpc_request_duration_seconds",
				Help:    "Duration of JSON-RPC requests to the ledger",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method"},
		),

		StorageOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sss_storage_operations_total",
				Help: "Total number of event persistence operations",
			},
			[]string{"operation", "backend", "status"},
		),

		StorageOperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sss_storage_operation_duration_seconds",
				Help:    "Duration of event persistence operations",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "backend"},
		),

		WebhookAttemptsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sss_webhook_attempts_total",
				Help: "Total number of webhook HTTP attempts",
			},
			[]string{"event_type", "outcome"},
		),

		WebhookDeliveriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sss_webhook_deliveries_total",
				Help: "Total number of finished webhook deliveries by result",
			},
			[]string{"event_type", "result"},
		),

		ScreeningDecisionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sss_screening_decisions_total",
				Help: "Total number of screening decisions",
			},
			[]string{"result", "source"},
		),

		AuditEventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sss_audit_events_total",
				Help: "Total number of audit log entries recorded",
			},
			[]string{"event"},
		),

		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sss_http_requests_total",
				Help: "Total number of HTTP requests received",
			},
			[]string{"method", "path", "status"},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sss_http_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		ApplicationUptime: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "sss_application_uptime_seconds",
				Help: "Application uptime in seconds",
			},
		),

		MemoryUsage: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "sss_memory_usage_bytes",
				Help: "Current heap allocation in bytes",
			},
		),

		GoroutineCount: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "sss_goroutines",
				Help: "Number of running goroutines",
			},
		),
	}
}

// RecordIndexerPoll records one finished poll cycle
func (m *PrometheusMetrics) RecordIndexerPoll(status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.IndexerPollsTotal.WithLabelValues(status).Inc()
	m.IndexerPollDuration.Observe(duration.Seconds())
}

// RecordEventIndexed records an appended event
func (m *PrometheusMetrics) RecordEventIndexed(eventType string, slot uint64) {
	if m == nil {
		return
	}
	m.EventsIndexedTotal.WithLabelValues(eventType).Inc()
	m.LatestIndexedSlot.Set(float64(slot))
}

// RecordTransactionFetchError records a degraded transaction
func (m *PrometheusMetrics) RecordTransactionFetchError() {
	if m == nil {
		return
	}
	m.TransactionFetchErrorTotal.Inc()
}

// UpdateEventStoreSize updates the event store size gauge
func (m *PrometheusMetrics) UpdateEventStoreSize(size int) {
	if m == nil {
		return
	}
	m.EventStoreSize.Set(float64(size))
}

// RecordRPCRequest records a ledger RPC request
func (m *PrometheusMetrics) RecordRPCRequest(method, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RPCRequestsTotal.WithLabelValues(method, status).Inc()
	m.RPCRequestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordStorageOperation records an event persistence operation
func (m *PrometheusMetrics) RecordStorageOperation(operation, backend, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.StorageOperationsTotal.WithLabelValues(operation, backend, status).Inc()
	m.StorageOperationDuration.WithLabelValues(operation, backend).Observe(duration.Seconds())
}

// RecordWebhookAttempt records a single webhook HTTP attempt
func (m *PrometheusMetrics) RecordWebhookAttempt(eventType, outcome string) {
	if m == nil {
		return
	}
	m.WebhookAttemptsTotal.WithLabelValues(eventType, outcome).Inc()
}

// RecordWebhookDelivery records the final result of a webhook delivery
func (m *PrometheusMetrics) RecordWebhookDelivery(eventType, result string) {
	if m == nil {
		return
	}
	m.WebhookDeliveriesTotal.WithLabelValues(eventType, result).Inc()
}

// RecordScreeningDecision records a screening outcome
func (m *PrometheusMetrics) RecordScreeningDecision(allowed bool, source string) {
	if m == nil {
		return
	}
	result := "denied"
	if allowed {
		result = "allowed"
	}
	m.ScreeningDecisionsTotal.WithLabelValues(result, source).Inc()
}

// RecordAuditEvent records an audit log entry
func (m *PrometheusMetrics) RecordAuditEvent(event string) {
	if m == nil {
		return
	}
	m.AuditEventsTotal.WithLabelValues(event).Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *PrometheusMetrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// UpdateApplicationUptime updates the application uptime metric
func (m *PrometheusMetrics) UpdateApplicationUptime(startTime time.Time) {
	if m == nil {
		return
	}
	m.ApplicationUptime.Set(time.Since(startTime).Seconds())
}

// UpdateMemoryUsage updates the memory usage metric
func (m *PrometheusMetrics) UpdateMemoryUsage(bytes uint64) {
	if m == nil {
		return
	}
	m.MemoryUsage.Set(float64(bytes))
}

// UpdateGoroutineCount updates the goroutine count metric
func (m *PrometheusMetrics) UpdateGoroutineCount(count int) {
	if m == nil {
		return
	}
	m.GoroutineCount.Set(float64(count))
}
