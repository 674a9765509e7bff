package supervisor

import "grokflow/guardrails/pkg/constraint"

// Metrics are the derived quality signals of one constraint.
type Metrics struct {
	ConstraintID string `json:"constraint_id"`

	TotalTriggers  int `json:"total_triggers"`
	TruePositives  int `json:"true_positives"`
	FalsePositives int `json:"false_positives"`
	Unlabeled      int `json:"unlabeled"`

	// Precision is TP/(TP+FP). It is only meaningful when HasPrecision is true.
	Precision    float64 `json:"precision"`
	HasPrecision bool    `json:"has_precision"`

	// FalsePositiveRate is FP/(TP+FP).
	FalsePositiveRate float64 `json:"false_positive_rate"`

	Effectiveness float64 `json:"effectiveness"`
	Drift         float64 `json:"drift"`
}

// Labeled returns the number of labeled triggers.
func (m Metrics) Labeled() int { return m.TruePositives + m.FalsePositives }

// precision returns TP/(TP+FP) and false when there is no labeled data.
func precision(tp, fp int) (float64, bool) {
	if tp+fp == 0 {
		return 0, false
	}
	return float64(tp) / float64(tp+fp), true
}

// effectiveness weights precision by trigger volume so that a constraint
// with few perfect triggers does not outrank a busy, precise one.
func effectiveness(p float64, hasPrecision bool, triggers int, smoothing float64) float64 {
	if !hasPrecision || triggers <= 0 {
		return 0
	}
	n := float64(triggers)
	return p * n / (n + smoothing)
}

// drift estimates declining precision over the most recent labeled events.
// It combines the drop from the older to the recent half of the window with
// the variance of precision across fixed-size chunks, clamped to [0,1].
func drift(history []constraint.TriggerEvent, window, chunk, minSamples int) float64 {
	labeled := make([]bool, 0, len(history))
	for _, ev := range history {
		if ev.Label.IsLabeled() {
			labeled = append(labeled, ev.Label == constraint.FeedbackTruePositive)
		}
	}
	if window > 0 && len(labeled) > window {
		labeled = labeled[len(labeled)-window:]
	}
	if len(labeled) < minSamples || len(labeled) < 2 {
		return 0
	}

	half := len(labeled) / 2
	older := ratio(labeled[:half])
	recent := ratio(labeled[half:])
	decline := max(0, older-recent)

	if chunk < 1 {
		chunk = 1
	}
	var chunks []float64
	for start := 0; start+chunk <= len(labeled); start += chunk {
		chunks = append(chunks, ratio(labeled[start:start+chunk]))
	}

	score := 0.7*decline + 0.3*variance(chunks)
	return min(1, max(0, score))
}

// ratio returns the fraction of true values.
func ratio(values []bool) float64 {
	if len(values) == 0 {
		return 0
	}
	n := 0
	for _, v := range values {
		if v {
			n++
		}
	}
	return float64(n) / float64(len(values))
}

// variance returns the population variance of values, or 0 for fewer than two.
func variance(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	var sq float64
	for _, v := range values {
		sq += (v - mean) * (v - mean)
	}
	return sq / float64(len(values))
}

// computeMetrics derives Metrics from a record.
func computeMetrics(r *constraint.AnalyticsRecord, cfg *Config) Metrics {
	m := Metrics{
		ConstraintID:   r.ConstraintID,
		TotalTriggers:  r.TotalTriggers,
		TruePositives:  r.TruePositives,
		FalsePositives: r.FalsePositives,
		Unlabeled:      r.Unlabeled,
	}
	m.Precision, m.HasPrecision = precision(r.TruePositives, r.FalsePositives)
	if m.HasPrecision {
		m.FalsePositiveRate = float64(r.FalsePositives) / float64(m.Labeled())
	}
	m.Effectiveness = effectiveness(m.Precision, m.HasPrecision, r.TotalTriggers, cfg.Smoothing)
	m.Drift = drift(r.History, cfg.DriftWindow, cfg.DriftChunk, cfg.DriftMinSamples)
	return m
}

// applyMetrics stores derived values back onto the record.
func applyMetrics(r *constraint.AnalyticsRecord, m Metrics) {
	if m.HasPrecision {
		p := m.Precision
		r.Precision = &p
	} else {
		r.Precision = nil
	}
	r.EffectivenessScore = m.Effectiveness
	r.DriftScore = m.Drift
}
