package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker/v2"
)

// Metrics holds all application metrics
type Metrics struct {
	// Payout metrics
	PayoutsTotal     *prometheus.CounterVec
	PayoutDuration   *prometheus.HistogramVec
	ActivePayouts    prometheus.Gauge
	ProviderAttempts *prometheus.CounterVec
	ProviderRetries  *prometheus.CounterVec
	LedgerRepairs    prometheus.Counter

	// Batch metrics
	BatchRuns     *prometheus.CounterVec
	BatchPayouts  *prometheus.CounterVec
	BatchDuration prometheus.Histogram

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Circuit breaker metrics
	CircuitBreakerState *prometheus.GaugeVec

	// Worker metrics
	OutboxBacklog            prometheus.Gauge
	StaleProcessingPayouts   prometheus.Gauge
	WorkerMessagesProcessed  *prometheus.CounterVec
	WorkerProcessingDuration *prometheus.HistogramVec
	AlertsSent               *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics against the given registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		PayoutsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "payouts_total",
				Help:      "Payout runs by final status",
			},
			[]string{"status"},
		),
		PayoutDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "payout_duration_seconds",
				Help:      "Wall time of a single payout run",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"status"},
		),
		ActivePayouts: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_payouts",
				Help:      "Payouts currently held by this process",
			},
		),
		ProviderAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_attempts_total",
				Help:      "Provider send attempts by outcome",
			},
			[]string{"provider", "outcome"},
		),
		ProviderRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_retries_total",
				Help:      "Provider send retries after a transient error",
			},
			[]string{"provider"},
		),
		LedgerRepairs: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ledger_repairs_total",
				Help:      "Ledger entries written by the reconciliation sweep",
			},
		),
		BatchRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "batch_runs_total",
				Help:      "Batch runs by result",
			},
			[]string{"result"},
		),
		BatchPayouts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "batch_payouts_total",
				Help:      "Payouts handled by batch runs by outcome",
			},
			[]string{"outcome"},
		),
		BatchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "batch_duration_seconds",
				Help:      "Batch run duration in seconds",
				Buckets:   []float64{1, 5, 15, 30, 60, 300, 900},
			},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_state",
				Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open)",
			},
			[]string{"name"},
		),
		OutboxBacklog: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "outbox_backlog",
				Help:      "Unpublished outbox entries",
			},
		),
		StaleProcessingPayouts: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "stale_processing_payouts",
				Help:      "Payouts stuck in processing longer than the lock TTL",
			},
		),
		WorkerMessagesProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "worker_messages_processed_total",
				Help:      "Total number of worker messages processed",
			},
			[]string{"stream", "status"},
		),
		WorkerProcessingDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "worker_processing_duration_seconds",
				Help:      "Worker message processing duration in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"stream"},
		),
		AlertsSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "alerts_sent_total",
				Help:      "Failure alert emails by result",
			},
			[]string{"result"},
		),
	}

	reg.MustRegister(
		m.PayoutsTotal,
		m.PayoutDuration,
		m.ActivePayouts,
		m.ProviderAttempts,
		m.ProviderRetries,
		m.LedgerRepairs,
		m.BatchRuns,
		m.BatchPayouts,
		m.BatchDuration,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.CircuitBreakerState,
		m.OutboxBacklog,
		m.StaleProcessingPayouts,
		m.WorkerMessagesProcessed,
		m.WorkerProcessingDuration,
		m.AlertsSent,
	)

	return m
}

func (m *Metrics) PayoutStarted() { m.ActivePayouts.Inc() }

func (m *Metrics) PayoutFinished(status string, d time.Duration) {
	m.ActivePayouts.Dec()
	m.PayoutsTotal.WithLabelValues(status).Inc()
	m.PayoutDuration.WithLabelValues(status).Observe(d.Seconds())
}

func (m *Metrics) ProviderAttempt(provider, outcome string) {
	m.ProviderAttempts.WithLabelValues(provider, outcome).Inc()
}

func (m *Metrics) ProviderRetry(provider string) {
	m.ProviderRetries.WithLabelValues(provider).Inc()
}

func (m *Metrics) LedgerRepaired() { m.LedgerRepairs.Inc() }

func (m *Metrics) StaleProcessing(n int) { m.StaleProcessingPayouts.Set(float64(n)) }

// BatchFinished records a completed or aborted batch run.
func (m *Metrics) BatchFinished(result string, outcomes map[string]int, d time.Duration) {
	m.BatchRuns.WithLabelValues(result).Inc()
	for outcome, n := range outcomes {
		m.BatchPayouts.WithLabelValues(outcome).Add(float64(n))
	}
	m.BatchDuration.Observe(d.Seconds())
}

// BreakerStateChanged matches providers.StateObserver.
func (m *Metrics) BreakerStateChanged(name string, _, to gobreaker.State) {
	var v float64
	switch to {
	case gobreaker.StateHalfOpen:
		v = 1
	case gobreaker.StateOpen:
		v = 2
	}
	m.CircuitBreakerState.WithLabelValues(name).Set(v)
}

func (m *Metrics) SetOutboxBacklog(n int) { m.OutboxBacklog.Set(float64(n)) }

func (m *Metrics) MessageProcessed(stream, status string, d time.Duration) {
	m.WorkerMessagesProcessed.WithLabelValues(stream, status).Inc()
	m.WorkerProcessingDuration.WithLabelValues(stream).Observe(d.Seconds())
}

func (m *Metrics) AlertSent(result string) { m.AlertsSent.WithLabelValues(result).Inc() }
