package metrics

import (
	"grokflow/guardrails/pkg/config"
	"grokflow/guardrails/pkg/supervisor"

	"github.com/prometheus/client_golang/prometheus"
)

// HealthMetrics publishes the supervisor dashboard.
//
// Metrics:
//   - grokflow_guardrails_constraints: Constraints per health class
//   - grokflow_guardrails_average_precision: Mean precision of rated constraints
//   - grokflow_guardrails_status: 1 for the current overall status, 0 otherwise
//   - grokflow_guardrails_health_sweeps_total: Dashboards observed
type HealthMetrics struct {
	constraints      *prometheus.GaugeVec
	averagePrecision prometheus.Gauge
	status           *prometheus.GaugeVec
	sweepsTotal      prometheus.Counter
}

var (
	healthClasses = []supervisor.Health{
		supervisor.HealthHealthy,
		supervisor.HealthAcceptable,
		supervisor.HealthNeedsReview,
		supervisor.HealthUnhealthy,
		supervisor.HealthNoData,
	}
	overallStatuses = []string{
		supervisor.OverallHealthy,
		supervisor.OverallAcceptable,
		supervisor.OverallNeedsAttention,
	}
)

// NewHealthMetrics creates and registers health metrics with the provided
// registry.
func NewHealthMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *HealthMetrics {
	hm := &HealthMetrics{
		constraints: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "constraints",
				Help:      "Number of constraints per health class",
			},
			[]string{"health"},
		),

		averagePrecision: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "average_precision",
				Help:      "Mean precision of constraints with labeled feedback",
			},
		),

		status: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "status",
				Help:      "Overall system status (1=current, 0=not current)",
			},
			[]string{"status"},
		),

		sweepsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "health_sweeps_total",
				Help:      "Total number of health dashboards published",
			},
		),
	}

	registry.MustRegister(
		hm.constraints,
		hm.averagePrecision,
		hm.status,
		hm.sweepsTotal,
	)

	return hm
}

// Update replaces the gauges with the dashboard's values.
func (hm *HealthMetrics) Update(d *supervisor.Dashboard) {
	counts := map[supervisor.Health]int{
		supervisor.HealthHealthy:     len(d.Healthy),
		supervisor.HealthAcceptable:  len(d.Acceptable),
		supervisor.HealthNeedsReview: len(d.NeedsReview),
		supervisor.HealthUnhealthy:   len(d.Unhealthy),
		supervisor.HealthNoData:      len(d.NoData),
	}
	for _, h := range healthClasses {
		hm.constraints.WithLabelValues(string(h)).Set(float64(counts[h]))
	}

	hm.averagePrecision.Set(d.AveragePrecision)

	for _, s := range overallStatuses {
		value := 0.0
		if s == d.Status {
			value = 1.0
		}
		hm.status.WithLabelValues(s).Set(value)
	}

	hm.sweepsTotal.Inc()
}
