package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the application.
// The struct is passed explicitly to every component that records metrics;
// components treat a nil *Metrics as "metrics disabled".
type Metrics struct {
	// Solana RPC Metrics
	solanaRPCCallsTotal        *prometheus.CounterVec
	solanaRPCCallDuration      *prometheus.HistogramVec
	solanaRPCRateLimitHits     *prometheus.CounterVec
	solanaRPCRetries           *prometheus.CounterVec
	solanaRPCSignaturesPerCall *prometheus.HistogramVec

	// Pipeline Metrics
	transactionsScannedTotal  *prometheus.CounterVec
	creationsFoundTotal       *prometheus.CounterVec
	accountsClassifiedTotal   *prometheus.CounterVec
	reclaimsTotal             *prometheus.CounterVec
	rentReclaimedLamports     *prometheus.CounterVec
	pipelineStageDuration     *prometheus.HistogramVec
	closeConfirmationDuration *prometheus.HistogramVec

	// Workflow Metrics
	watchWorkflowDuration        *prometheus.HistogramVec
	watchWorkflowExecutionsTotal *prometheus.CounterVec
	watchActivityDuration        *prometheus.HistogramVec
	alertsRaisedTotal            *prometheus.CounterVec

	// Database Metrics
	dbQueryDuration   *prometheus.HistogramVec
	dbOperationsTotal *prometheus.CounterVec

	// HTTP Metrics
	httpRequestDuration *prometheus.HistogramVec
	httpRequestsTotal   *prometheus.CounterVec

	// NATS Metrics
	natsMessagesPublished *prometheus.CounterVec
	natsPublishDuration   *prometheus.HistogramVec

	// Bot Metrics
	botCommandsTotal *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		// Solana RPC Metrics
		solanaRPCCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_calls_total",
				Help: "Total number of Solana RPC calls by method and status",
			},
			[]string{"method", "status", "endpoint"},
		),
		solanaRPCCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "solana_rpc_call_duration_seconds",
				Help:    "Duration of Solana RPC calls in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"method", "endpoint"},
		),
		solanaRPCRateLimitHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_rate_limit_hits_total",
				Help: "Total number of Solana RPC rate limit hits (429 errors)",
			},
			[]string{"endpoint"},
		),
		solanaRPCRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_retries_total",
				Help: "Total number of Solana RPC retry attempts",
			},
			[]string{"method", "reason"},
		),
		solanaRPCSignaturesPerCall: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "solana_rpc_signatures_per_call",
				Help:    "Number of signatures fetched per GetSignaturesForAddress call",
				Buckets: []float64{1, 10, 25, 50, 75, 100},
			},
			[]string{"endpoint"},
		),

		// Pipeline Metrics
		transactionsScannedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solvent_transactions_scanned_total",
				Help: "Total number of fee payer transactions inspected for account creations",
			},
			[]string{"status"},
		),
		creationsFoundTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solvent_creations_found_total",
				Help: "Total number of sponsored account creations discovered",
			},
			[]string{"kind"},
		),
		accountsClassifiedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solvent_accounts_classified_total",
				Help: "Total number of sponsored accounts classified",
			},
			[]string{"classification", "status"},
		),
		reclaimsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solvent_reclaims_total",
				Help: "Total number of close-account attempts",
			},
			[]string{"status", "mode"},
		),
		rentReclaimedLamports: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solvent_rent_reclaimed_lamports_total",
				Help: "Total rent returned to the destination by successful closes, in lamports",
			},
			[]string{"mode"},
		),
		pipelineStageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "solvent_pipeline_stage_duration_seconds",
				Help:    "Duration of pipeline stages in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
			},
			[]string{"stage", "status"},
		),
		closeConfirmationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "solvent_close_confirmation_duration_seconds",
				Help:    "Time from submitting a close transaction to observing its confirmation",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
			},
			[]string{"status"},
		),

		// Workflow Metrics
		watchWorkflowDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "watch_workflow_duration_seconds",
				Help:    "Duration of watch workflow execution in seconds",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
			},
			[]string{"address", "status"},
		),
		watchWorkflowExecutionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "watch_workflow_executions_total",
				Help: "Total number of watch workflow executions",
			},
			[]string{"address", "status"},
		),
		watchActivityDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "watch_activity_duration_seconds",
				Help:    "Duration of watch workflow activities in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
			},
			[]string{"activity", "address"},
		),
		alertsRaisedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "watch_alerts_raised_total",
				Help: "Total number of closeable-account alerts raised",
			},
			[]string{"network"},
		),

		// Database Metrics
		dbQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "db_query_duration_seconds",
				Help:    "Duration of database queries in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
			},
			[]string{"operation", "table"},
		),
		dbOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "db_operations_total",
				Help: "Total number of database operations",
			},
			[]string{"operation", "status"},
		),

		// HTTP Metrics
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 10, 60},
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

		// NATS Metrics
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

		// Bot Metrics
		botCommandsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bot_commands_total",
				Help: "Total number of chat bot commands handled",
			},
			[]string{"command", "status"},
		),
	}
}

// Solana RPC metric helpers

// RecordRPCCall records a Solana RPC call with duration.
func (m *Metrics) RecordRPCCall(method, status, endpoint string, duration float64) {
	m.solanaRPCCallsTotal.WithLabelValues(method, status, endpoint).Inc()
	m.solanaRPCCallDuration.WithLabelValues(method, endpoint).Observe(duration)
}

// RecordRateLimitHit records a rate limit hit (429 error).
func (m *Metrics) RecordRateLimitHit(endpoint string) {
	m.solanaRPCRateLimitHits.WithLabelValues(endpoint).Inc()
}

// RecordRPCRetry records a retry attempt.
func (m *Metrics) RecordRPCRetry(method, reason string) {
	m.solanaRPCRetries.WithLabelValues(method, reason).Inc()
}

// RecordRPCSignaturesPerCall records the number of signatures fetched.
func (m *Metrics) RecordRPCSignaturesPerCall(endpoint string, count float64) {
	m.solanaRPCSignaturesPerCall.WithLabelValues(endpoint).Observe(count)
}

// Pipeline metric helpers

// RecordTransactionScanned records one transaction inspected by the scanner.
// status is one of "parsed", "failed_onchain", "fetch_error", "payer_mismatch", "missing".
func (m *Metrics) RecordTransactionScanned(status string) {
	m.transactionsScannedTotal.WithLabelValues(status).Inc()
}

// RecordCreationFound records a discovered account creation by kind.
func (m *Metrics) RecordCreationFound(kind string) {
	m.creationsFoundTotal.WithLabelValues(kind).Inc()
}

// RecordAccountClassified records a classification outcome.
func (m *Metrics) RecordAccountClassified(classification, status string) {
	m.accountsClassifiedTotal.WithLabelValues(classification, status).Inc()
}

// RecordReclaim records a close attempt. lamports is only counted for successes.
func (m *Metrics) RecordReclaim(status, mode string, lamports uint64) {
	m.reclaimsTotal.WithLabelValues(status, mode).Inc()
	if status == "success" {
		m.rentReclaimedLamports.WithLabelValues(mode).Add(float64(lamports))
	}
}

// RecordPipelineStage records the duration of a pipeline stage (scan, classify, reclaim).
func (m *Metrics) RecordPipelineStage(stage, status string, duration float64) {
	m.pipelineStageDuration.WithLabelValues(stage, status).Observe(duration)
}

// RecordCloseConfirmation records how long a submitted close took to confirm.
func (m *Metrics) RecordCloseConfirmation(status string, duration float64) {
	m.closeConfirmationDuration.WithLabelValues(status).Observe(duration)
}

// Workflow metric helpers

// RecordWorkflowDuration records workflow execution duration.
func (m *Metrics) RecordWorkflowDuration(address, status string, duration float64) {
	m.watchWorkflowDuration.WithLabelValues(address, status).Observe(duration)
	m.watchWorkflowExecutionsTotal.WithLabelValues(address, status).Inc()
}

// RecordActivityDuration records activity execution duration.
func (m *Metrics) RecordActivityDuration(activity, address string, duration float64) {
	m.watchActivityDuration.WithLabelValues(activity, address).Observe(duration)
}

// RecordAlertRaised records an alert produced by a snapshot comparison.
func (m *Metrics) RecordAlertRaised(network string) {
	m.alertsRaisedTotal.WithLabelValues(network).Inc()
}

// Database metric helpers

// RecordDBQuery records a database query with duration.
func (m *Metrics) RecordDBQuery(operation, table string, duration float64, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.dbQueryDuration.WithLabelValues(operation, table).Observe(duration)
	m.dbOperationsTotal.WithLabelValues(operation, status).Inc()
}

// HTTP metric helpers

// RecordHTTPRequest records an HTTP request with duration.
func (m *Metrics) RecordHTTPRequest(handler, method string, statusCode int, duration float64) {
	status := statusCodeToString(statusCode)
	m.httpRequestDuration.WithLabelValues(handler, method, status).Observe(duration)
	m.httpRequestsTotal.WithLabelValues(handler, method, status).Inc()
}

// NATS metric helpers

// RecordNATSPublish records a NATS publish operation.
func (m *Metrics) RecordNATSPublish(subject, status string, duration float64) {
	m.natsMessagesPublished.WithLabelValues(subject, status).Inc()
	m.natsPublishDuration.WithLabelValues(subject).Observe(duration)
}

// Bot metric helpers

// RecordBotCommand records a handled chat command.
func (m *Metrics) RecordBotCommand(command, status string) {
	m.botCommandsTotal.WithLabelValues(command, status).Inc()
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
