// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"solana-fund-dao/internal/domain"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "fund_dao"

// Metrics holds all Prometheus metrics for the application.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Operation metrics
	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec

	// Governance metrics
	VotesCast          prometheus.Counter
	ProposalsFinalized *prometheus.CounterVec

	// Execution metrics
	ExecutionsTotal    *prometheus.CounterVec
	ExecutionLatency   prometheus.Histogram
	InFlightExecutions prometheus.Gauge

	// External collaborator metrics
	IssuerCalls         *prometheus.CounterVec
	EventPublishErrors  *prometheus.CounterVec
	IssuerCompensations prometheus.Counter

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Sweeper metrics
	SweeperRuns         *prometheus.CounterVec
	LastSuccessfulSweep prometheus.Gauge
}

// NewMetrics creates a Metrics instance registered with reg.
// A nil reg registers with the default Prometheus registry.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		OperationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fund",
			Name:      "operations_total",
			Help:      "Total number of fund operations by operation and result",
		}, []string{"operation", "result"}),
		OperationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "fund",
			Name:      "operation_duration_seconds",
			Help:      "Fund operation duration in seconds, lock wait included",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),

		VotesCast: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "governance",
			Name:      "votes_cast_total",
			Help:      "Total number of votes cast or replaced",
		}),
		ProposalsFinalized: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "governance",
			Name:      "proposals_finalized_total",
			Help:      "Total number of proposals leaving voting, by outcome",
		}, []string{"state"}),

		ExecutionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "executions_total",
			Help:      "Total number of trade executions by final state",
		}, []string{"state"}),
		ExecutionLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "venue_latency_seconds",
			Help:      "Time spent waiting for the trade venue in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		InFlightExecutions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "in_flight",
			Help:      "Number of trades awaiting venue confirmation",
		}),

		IssuerCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "issuer",
			Name:      "calls_total",
			Help:      "Total number of token issuer calls by method and result",
		}, []string{"method", "result"}),
		IssuerCompensations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "issuer",
			Name:      "compensations_total",
			Help:      "Total number of inverse issuer calls after a failed ledger commit",
		}),
		EventPublishErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "publish_errors_total",
			Help:      "Total number of lifecycle events that failed to publish",
		}, []string{"kind"}),

		DBQueryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		SweeperRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sweeper",
			Name:      "runs_total",
			Help:      "Total number of sweeper runs by status",
		}, []string{"status"}),
		LastSuccessfulSweep: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sweeper",
			Name:      "last_success_timestamp",
			Help:      "Unix timestamp of last successful sweep",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// HandlerFor returns a /metrics handler for a custom registry.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// ResultLabel maps an operation error to a low-cardinality label value.
func ResultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	if kind := domain.KindOf(err); kind != nil {
		return strings.ReplaceAll(kind.Error(), " ", "_")
	}
	if errors.Is(err, domain.ErrExecutionFailure) {
		return "execution_failure"
	}
	return "internal"
}

// RecordOperation records the outcome and duration of a fund operation.
func (m *Metrics) RecordOperation(operation string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.OperationsTotal.WithLabelValues(operation, ResultLabel(err)).Inc()
	m.OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// RecordVote increments the votes counter.
func (m *Metrics) RecordVote() {
	if m == nil {
		return
	}
	m.VotesCast.Inc()
}

// RecordFinalized records a proposal leaving voting.
func (m *Metrics) RecordFinalized(state domain.ProposalState) {
	if m == nil {
		return
	}
	m.ProposalsFinalized.WithLabelValues(string(state)).Inc()
}

// RecordExecution records a completed execution and its venue latency.
func (m *Metrics) RecordExecution(state domain.ProposalState, venueSeconds float64) {
	if m == nil {
		return
	}
	m.ExecutionsTotal.WithLabelValues(string(state)).Inc()
	m.ExecutionLatency.Observe(venueSeconds)
}

// AddInFlight adjusts the in-flight executions gauge.
func (m *Metrics) AddInFlight(delta float64) {
	if m == nil {
		return
	}
	m.InFlightExecutions.Add(delta)
}

// RecordIssuerCall records a token issuer call.
func (m *Metrics) RecordIssuerCall(method string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.IssuerCalls.WithLabelValues(method, result).Inc()
}

// RecordCompensation increments the issuer compensation counter.
func (m *Metrics) RecordCompensation() {
	if m == nil {
		return
	}
	m.IssuerCompensations.Inc()
}

// RecordPublishError increments the publish error counter for an event kind.
func (m *Metrics) RecordPublishError(kind string) {
	if m == nil {
		return
	}
	m.EventPublishErrors.WithLabelValues(kind).Inc()
}

// RecordDBQuery records database query metrics.
func (m *Metrics) RecordDBQuery(database, operation string, seconds float64, err error) {
	if m == nil {
		return
	}
	m.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		m.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// RecordSweep records a sweeper run.
func (m *Metrics) RecordSweep(status string, at time.Time) {
	if m == nil {
		return
	}
	m.SweeperRuns.WithLabelValues(status).Inc()
	if status == "success" {
		m.LastSuccessfulSweep.Set(float64(at.Unix()))
	}
}
