package supervisor

import "fmt"

// Health is the classification of a constraint's quality.
type Health string

const (
	HealthHealthy     Health = "healthy"
	HealthAcceptable  Health = "acceptable"
	HealthNeedsReview Health = "needs_review"
	HealthUnhealthy   Health = "unhealthy"
	HealthNoData      Health = "no_data"
)

// Rank orders health from best to worst, with no_data last.
func (h Health) Rank() int {
	switch h {
	case HealthHealthy:
		return 0
	case HealthAcceptable:
		return 1
	case HealthNeedsReview:
		return 2
	case HealthUnhealthy:
		return 3
	}
	return 4
}

// Default health thresholds.
const (
	DefaultHealthyPrecision    = 0.8
	DefaultHealthyMaxDrift     = 0.3
	DefaultHealthyMaxFPRate    = 0.2
	DefaultAcceptablePrecision = 0.7
	DefaultAcceptableMaxDrift  = 0.5
	DefaultUnhealthyPrecision  = 0.5
	DefaultUnhealthyDrift      = 0.7
	DefaultMinSamples          = 3
	DefaultEscalatePrecision   = 0.95
)

// HealthPolicy maps metrics to a Health.
type HealthPolicy struct {
	// A constraint is healthy when precision >= HealthyPrecision, drift <
	// HealthyMaxDrift and the false positive rate <= HealthyMaxFPRate.
	HealthyPrecision float64
	HealthyMaxDrift  float64
	HealthyMaxFPRate float64

	// A constraint is acceptable when precision >= AcceptablePrecision and
	// drift < AcceptableMaxDrift.
	AcceptablePrecision float64
	AcceptableMaxDrift  float64

	// A constraint is unhealthy when precision < UnhealthyPrecision or drift
	// > UnhealthyDrift, provided it has at least MinSamples labeled triggers.
	UnhealthyPrecision float64
	UnhealthyDrift     float64
	MinSamples         int

	// EscalatePrecision is the precision above which a warn constraint is
	// suggested for escalation to block.
	EscalatePrecision float64
}

// DefaultHealthPolicy returns the default thresholds.
func DefaultHealthPolicy() HealthPolicy {
	return HealthPolicy{
		HealthyPrecision:    DefaultHealthyPrecision,
		HealthyMaxDrift:     DefaultHealthyMaxDrift,
		HealthyMaxFPRate:    DefaultHealthyMaxFPRate,
		AcceptablePrecision: DefaultAcceptablePrecision,
		AcceptableMaxDrift:  DefaultAcceptableMaxDrift,
		UnhealthyPrecision:  DefaultUnhealthyPrecision,
		UnhealthyDrift:      DefaultUnhealthyDrift,
		MinSamples:          DefaultMinSamples,
		EscalatePrecision:   DefaultEscalatePrecision,
	}
}

// Validate checks that thresholds are probabilities and ordered sensibly.
func (p HealthPolicy) Validate() error {
	for name, v := range map[string]float64{
		"healthy_precision":    p.HealthyPrecision,
		"healthy_max_drift":    p.HealthyMaxDrift,
		"healthy_max_fp_rate":  p.HealthyMaxFPRate,
		"acceptable_precision": p.AcceptablePrecision,
		"acceptable_max_drift": p.AcceptableMaxDrift,
		"unhealthy_precision":  p.UnhealthyPrecision,
		"unhealthy_drift":      p.UnhealthyDrift,
		"escalate_precision":   p.EscalatePrecision,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s must be between 0 and 1, got %v", name, v)
		}
	}
	if p.UnhealthyPrecision > p.AcceptablePrecision || p.AcceptablePrecision > p.HealthyPrecision {
		return fmt.Errorf("precision thresholds must satisfy unhealthy <= acceptable <= healthy")
	}
	if p.MinSamples < 0 {
		return fmt.Errorf("min_samples must be non-negative, got %d", p.MinSamples)
	}
	return nil
}

// Classify returns the health of a constraint with metrics m.
func (p HealthPolicy) Classify(m Metrics) Health {
	if !m.HasPrecision {
		return HealthNoData
	}

	if m.Precision >= p.HealthyPrecision && m.Drift < p.HealthyMaxDrift && m.FalsePositiveRate <= p.HealthyMaxFPRate {
		return HealthHealthy
	}
	if m.Precision < p.UnhealthyPrecision || m.Drift > p.UnhealthyDrift {
		if m.Labeled() >= p.MinSamples {
			return HealthUnhealthy
		}
		return HealthNeedsReview
	}
	if m.Precision >= p.AcceptablePrecision && m.Drift < p.AcceptableMaxDrift {
		return HealthAcceptable
	}
	return HealthNeedsReview
}

// Recommendations returns human-readable advice for metrics m.
func (p HealthPolicy) Recommendations(m Metrics) []string {
	if !m.HasPrecision {
		return []string{"No labeled triggers yet - record feedback with 'grokflow feedback <id> tp|fp'"}
	}

	var recs []string
	if m.Precision < p.AcceptablePrecision {
		recs = append(recs, "Low precision - Consider narrowing trigger patterns or adding context filters")
	}
	if m.FalsePositiveRate > p.HealthyMaxFPRate {
		recs = append(recs, "High false positive rate - Review recent false positives and adjust patterns")
	}
	if m.Drift > p.AcceptableMaxDrift {
		recs = append(recs, "High drift detected - Constraint effectiveness is declining over time")
	}
	if m.Drift > p.UnhealthyDrift {
		recs = append(recs, "CRITICAL: Very high drift - Consider disabling or rewriting this constraint")
	}
	if len(recs) == 0 {
		recs = append(recs, "Constraint is performing well - no action needed")
	}
	return recs
}
