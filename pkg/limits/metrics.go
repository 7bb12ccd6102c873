package limits

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"mercator-hq/sentinel/pkg/jobs"
	"mercator-hq/sentinel/pkg/limits/budget"
	"mercator-hq/sentinel/pkg/limits/circuit"
)

// Metrics contains Prometheus metrics for admission control.
type Metrics struct {
	// Rate limiting
	rateLimitChecks      *prometheus.CounterVec
	rateLimitStoreErrors prometheus.Counter

	// Budget
	budgetChecks      *prometheus.CounterVec
	budgetResolutions *prometheus.CounterVec
	budgetTokens      prometheus.Counter
	budgetConsumed    prometheus.Gauge
	budgetOutstanding prometheus.Gauge
	budgetUsage       prometheus.Gauge

	// Circuits
	circuitTransitions *prometheus.CounterVec
	circuitsOpen       prometheus.Gauge

	// Jobs
	jobsSubmitted prometheus.Counter
	jobsThrottled prometheus.Counter
	jobs          *prometheus.GaugeVec

	// Calls
	callDuration *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg creates unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		rateLimitChecks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentinel_ratelimit_checks_total",
				Help: "Total number of rate limit checks performed",
			},
			[]string{"result"},
		),

		rateLimitStoreErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "sentinel_ratelimit_store_errors_total",
				Help: "Rate limit checks admitted because the shared store failed",
			},
		),

		budgetChecks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentinel_budget_checks_total",
				Help: "Total number of budget checks and reservations",
			},
			[]string{"stage", "result"},
		),

		budgetResolutions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentinel_budget_resolutions_total",
				Help: "Reservations resolved by commit, release or expiry",
			},
			[]string{"action", "result"},
		),

		budgetTokens: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "sentinel_budget_tokens_committed_total",
				Help: "Total tokens committed to the daily budget",
			},
		),

		budgetConsumed: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "sentinel_budget_consumed_tokens",
				Help: "Tokens consumed in the current UTC day",
			},
		),

		budgetOutstanding: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "sentinel_budget_outstanding_tokens",
				Help: "Tokens held by open reservations",
			},
		),

		budgetUsage: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "sentinel_budget_usage_ratio",
				Help: "Consumed plus outstanding tokens as a fraction of the daily cap",
			},
		),

		circuitTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentinel_circuit_transitions_total",
				Help: "Circuit state transitions",
			},
			[]string{"from", "to"},
		),

		circuitsOpen: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "sentinel_circuits_open",
				Help: "Number of circuits currently open",
			},
		),

		jobsSubmitted: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "sentinel_jobs_submitted_total",
				Help: "Total number of jobs submitted",
			},
		),

		jobsThrottled: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "sentinel_jobs_concurrency_rejected_total",
				Help: "Jobs rejected because every running slot was taken",
			},
		),

		jobs: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sentinel_jobs",
				Help: "Jobs held in the registry by status",
			},
			[]string{"status"},
		),

		callDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sentinel_call_duration_seconds",
				Help:    "Duration of governed calls, including admission",
				Buckets: prometheus.ExponentialBuckets(0.005, 2, 14), // 5ms to ~41s
			},
			[]string{"operation", "outcome"},
		),
	}
}

func resultLabel(err error) string {
	if err != nil {
		return "rejected"
	}
	return "allowed"
}

// RecordRateLimitCheck records a rate limit check.
func (m *Metrics) RecordRateLimitCheck(err error) {
	m.rateLimitChecks.WithLabelValues(resultLabel(err)).Inc()
}

// RecordRateLimitStoreError records a fail-open rate limit check.
func (m *Metrics) RecordRateLimitStoreError() {
	m.rateLimitStoreErrors.Inc()
}

// RecordBudgetCheck records a budget check or reservation.
// stage is "check" or "reserve".
func (m *Metrics) RecordBudgetCheck(stage string, err error) {
	m.budgetChecks.WithLabelValues(stage, resultLabel(err)).Inc()
}

// RecordBudgetResolution records a commit, release or expiry.
func (m *Metrics) RecordBudgetResolution(action string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.budgetResolutions.WithLabelValues(action, result).Inc()
}

// RecordTokensCommitted adds committed tokens.
func (m *Metrics) RecordTokensCommitted(tokens int64) {
	m.budgetTokens.Add(float64(tokens))
}

// UpdateBudget sets the budget gauges from a status snapshot.
func (m *Metrics) UpdateBudget(status budget.Status) {
	m.budgetConsumed.Set(float64(status.Consumed))
	m.budgetOutstanding.Set(float64(status.Outstanding))
	m.budgetUsage.Set(status.Percentage)
}

// RecordCircuitTransition records a circuit state change.
func (m *Metrics) RecordCircuitTransition(from, to circuit.State) {
	m.circuitTransitions.WithLabelValues(string(from), string(to)).Inc()
}

// UpdateOpenCircuits sets the open circuit gauge.
func (m *Metrics) UpdateOpenCircuits(n int) {
	m.circuitsOpen.Set(float64(n))
}

// RecordJobSubmitted counts a submitted job.
func (m *Metrics) RecordJobSubmitted() {
	m.jobsSubmitted.Inc()
}

// RecordConcurrencyRejected counts a job rejected by the running-job cap.
func (m *Metrics) RecordConcurrencyRejected() {
	m.jobsThrottled.Inc()
}

// UpdateJobs sets the job gauges from registry counts.
func (m *Metrics) UpdateJobs(counts map[jobs.Status]int) {
	for status, n := range counts {
		m.jobs.WithLabelValues(string(status)).Set(float64(n))
	}
}

// RecordCall records the duration of a governed call.
func (m *Metrics) RecordCall(operation, outcome string, duration time.Duration) {
	m.callDuration.WithLabelValues(operation, outcome).Observe(duration.Seconds())
}
