package metrics

import (
	"time"

	"grokflow/guardrails/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// EvaluationMetrics tracks query evaluation by the match engine.
//
// Metrics:
//   - grokflow_guardrails_evaluations_total: Evaluations by outcome
//   - grokflow_guardrails_evaluation_duration_seconds: Evaluation latency
//   - grokflow_guardrails_evaluation_candidates: Candidates per evaluation
//   - grokflow_guardrails_triggers_total: Fired constraints by id and action
type EvaluationMetrics struct {
	evaluationsTotal   *prometheus.CounterVec
	evaluationDuration prometheus.Histogram
	candidates         prometheus.Histogram
	triggersTotal      *prometheus.CounterVec
}

// Evaluation outcomes.
const (
	OutcomeAllowed   = "allowed"
	OutcomeTriggered = "triggered"
	OutcomeBlocked   = "blocked"
)

// NewEvaluationMetrics creates and registers evaluation metrics with the
// provided registry.
func NewEvaluationMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *EvaluationMetrics {
	em := &EvaluationMetrics{
		evaluationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "evaluations_total",
				Help:      "Total number of query evaluations",
			},
			[]string{"outcome"},
		),

		evaluationDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "evaluation_duration_seconds",
				Help:      "Duration of query evaluation in seconds",
				Buckets:   cfg.EvaluationBuckets,
			},
		),

		candidates: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "evaluation_candidates",
				Help:      "Number of candidate constraints examined per evaluation",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 8), // 1 to 128
			},
		),

		triggersTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "triggers_total",
				Help:      "Total number of constraint triggers",
			},
			[]string{"constraint_id", "action"},
		),
	}

	registry.MustRegister(
		em.evaluationsTotal,
		em.evaluationDuration,
		em.candidates,
		em.triggersTotal,
	)

	return em
}

// RecordEvaluation records one evaluation.
func (em *EvaluationMetrics) RecordEvaluation(outcome string, duration time.Duration, candidates int) {
	em.evaluationsTotal.WithLabelValues(outcome).Inc()
	em.evaluationDuration.Observe(duration.Seconds())
	em.candidates.Observe(float64(candidates))
}

// RecordTrigger records a fired constraint.
func (em *EvaluationMetrics) RecordTrigger(constraintID, action string) {
	em.triggersTotal.WithLabelValues(constraintID, action).Inc()
}
