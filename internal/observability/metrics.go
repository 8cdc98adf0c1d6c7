package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for monitoring passes, judgments,
// actions and collaborator calls.
type Metrics struct {
	runsTotal        *prometheus.CounterVec
	runDuration      *prometheus.HistogramVec
	judgmentsTotal   *prometheus.CounterVec
	actionsTotal     *prometheus.CounterVec
	refusalsTotal    *prometheus.CounterVec
	llmRequestsTotal *prometheus.CounterVec
	learningsTotal   *prometheus.CounterVec
	pendingActions   prometheus.Gauge
}

var (
	defaultMetricsOnce sync.Once
	sharedMetrics      *Metrics
)

// DefaultMetrics returns the metrics instance registered with the global registry.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		sharedMetrics = MustNewMetrics(prometheus.DefaultRegisterer)
	})
	return sharedMetrics
}

// MustNewMetrics constructs Metrics on the provided registerer.
// Tests pass a fresh prometheus.NewRegistry() to avoid duplicate registration.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "adpilot",
			Name:      "monitor_runs_total",
			Help:      "Monitoring passes by trigger and overall run status.",
		}, []string{"trigger", "status"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "adpilot",
			Name:      "monitor_run_duration_seconds",
			Help:      "Wall time of a monitoring pass.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"trigger"}),
		judgmentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "adpilot",
			Name:      "judgments_total",
			Help:      "Campaign judgments by primary KPI and status.",
		}, []string{"kpi", "status"}),
		actionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "adpilot",
			Name:      "actions_total",
			Help:      "Action lifecycle transitions by type and outcome.",
		}, []string{"type", "outcome"}),
		refusalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "adpilot",
			Name:      "action_refusals_total",
			Help:      "Actions refused by safety checks.",
		}, []string{"type"}),
		llmRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "adpilot",
			Name:      "llm_requests_total",
			Help:      "Recommendation requests by result.",
		}, []string{"result"}),
		learningsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "adpilot",
			Name:      "learnings_total",
			Help:      "Analyzed learning records by action type and effect.",
		}, []string{"type", "effect"}),
		pendingActions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "adpilot",
			Name:      "pending_actions",
			Help:      "Actions waiting for operator approval.",
		}),
	}
	reg.MustRegister(
		m.runsTotal,
		m.runDuration,
		m.judgmentsTotal,
		m.actionsTotal,
		m.refusalsTotal,
		m.llmRequestsTotal,
		m.learningsTotal,
		m.pendingActions,
	)
	return m
}

// RecordRun records a completed monitoring pass.
func (m *Metrics) RecordRun(trigger, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(trigger, status).Inc()
	m.runDuration.WithLabelValues(trigger).Observe(d.Seconds())
}

// RecordJudgment records one campaign verdict.
func (m *Metrics) RecordJudgment(kpi, status string) {
	if m == nil {
		return
	}
	m.judgmentsTotal.WithLabelValues(kpi, status).Inc()
}

// RecordAction records an action transition (proposed, approved, rejected, executed, failed).
func (m *Metrics) RecordAction(actionType, outcome string) {
	if m == nil {
		return
	}
	m.actionsTotal.WithLabelValues(actionType, outcome).Inc()
}

// RecordRefusal records a safety refusal.
func (m *Metrics) RecordRefusal(actionType string) {
	if m == nil {
		return
	}
	m.refusalsTotal.WithLabelValues(actionType).Inc()
}

// RecordLLMRequest records a recommendation request result (ok, empty, error, unparseable).
func (m *Metrics) RecordLLMRequest(result string) {
	if m == nil {
		return
	}
	m.llmRequestsTotal.WithLabelValues(result).Inc()
}

// RecordLearning records one analyzed learning record.
func (m *Metrics) RecordLearning(actionType, effect string) {
	if m == nil {
		return
	}
	m.learningsTotal.WithLabelValues(actionType, effect).Inc()
}

// SetPendingActions sets the pending queue length.
func (m *Metrics) SetPendingActions(n int) {
	if m == nil {
		return
	}
	m.pendingActions.Set(float64(n))
}
