package supervisor

import (
	"fmt"
	"sort"
	"strings"

	"grokflow/guardrails/pkg/constraint"
)

// SuggestionKind identifies an improvement.
type SuggestionKind string

const (
	SuggestNarrowPattern       SuggestionKind = "narrow_pattern"
	SuggestAddContextFilter    SuggestionKind = "add_context_filter"
	SuggestLowerSeverity       SuggestionKind = "lower_severity"
	SuggestDisableConstraint   SuggestionKind = "disable_constraint"
	SuggestIncreaseEnforcement SuggestionKind = "increase_enforcement"
)

// Suggestion is a ranked improvement for one constraint.
type Suggestion struct {
	Kind       SuggestionKind `json:"kind"`
	Reason     string         `json:"reason"`
	Suggestion string         `json:"suggestion"`
	Confidence float64        `json:"confidence"`
}

// HealthReport is the health of one constraint with advice.
type HealthReport struct {
	ConstraintID    string   `json:"constraint_id"`
	Description     string   `json:"description"`
	Enabled         bool     `json:"enabled"`
	Status          Health   `json:"status"`
	Metrics         Metrics  `json:"metrics"`
	Recommendations []string `json:"recommendations"`
}

// Health returns the health report of constraint id.
func (s *Supervisor) Health(id string) (*HealthReport, error) {
	c, err := s.constraints.Get(id)
	if err != nil {
		return nil, err
	}
	return s.report(c), nil
}

func (s *Supervisor) report(c *constraint.Constraint) *HealthReport {
	m := s.Metrics(c.ID)
	return &HealthReport{
		ConstraintID:    c.ID,
		Description:     c.Description,
		Enabled:         c.Enabled,
		Status:          s.config.Policy.Classify(m),
		Metrics:         m,
		Recommendations: s.config.Policy.Recommendations(m),
	}
}

// SuggestImprovements returns improvements for constraint id ordered by
// decreasing confidence. Confidence grows with the distance between the
// offending metric and its threshold. Constraints without labeled feedback
// get no suggestions.
func (s *Supervisor) SuggestImprovements(id string) ([]Suggestion, error) {
	c, err := s.constraints.Get(id)
	if err != nil {
		return nil, err
	}

	m := s.Metrics(id)
	if !m.HasPrecision {
		return []Suggestion{}, nil
	}
	p := s.config.Policy
	var out []Suggestion

	if m.FalsePositiveRate > p.HealthyMaxFPRate {
		conf := distance(m.FalsePositiveRate, p.HealthyMaxFPRate, 1)
		for _, pattern := range c.TriggerPatterns {
			narrowed, broad := narrowPattern(pattern)
			if !broad {
				continue
			}
			out = append(out, Suggestion{
				Kind:       SuggestNarrowPattern,
				Reason:     fmt.Sprintf("Pattern '%s' too broad (FP rate: %.2f)", pattern, m.FalsePositiveRate),
				Suggestion: fmt.Sprintf("Consider narrowing to '%s' (word boundary)", narrowed),
				Confidence: conf,
			})
		}
		for _, kw := range c.TriggerKeywords {
			if len(kw) < 4 {
				out = append(out, Suggestion{
					Kind:       SuggestNarrowPattern,
					Reason:     fmt.Sprintf("Keyword '%s' is short and matches inside other words (FP rate: %.2f)", kw, m.FalsePositiveRate),
					Suggestion: fmt.Sprintf("Consider replacing it with the pattern '\\b%s\\b'", kw),
					Confidence: conf,
				})
			}
		}

		if len(c.ContextFilters) == 0 && !c.IsLegacy() {
			out = append(out, Suggestion{
				Kind:       SuggestAddContextFilter,
				Reason:     "High false positive rate without context filters",
				Suggestion: `Consider restricting to 'generate' mode only: {"query_type": ["generate"]}`,
				Confidence: conf,
			})
		}
	}

	if m.Precision < p.AcceptablePrecision && c.EnforcementAction != constraint.ActionWarn {
		out = append(out, Suggestion{
			Kind:       SuggestLowerSeverity,
			Reason:     fmt.Sprintf("Precision %.2f is too low to justify '%s'", m.Precision, c.EnforcementAction),
			Suggestion: fmt.Sprintf("Consider lowering enforcement from '%s' to 'warn'", c.EnforcementAction),
			Confidence: distance(p.AcceptablePrecision, m.Precision, p.AcceptablePrecision),
		})
	}

	if m.Precision < p.UnhealthyPrecision && m.Labeled() >= p.MinSamples {
		out = append(out, Suggestion{
			Kind:       SuggestDisableConstraint,
			Reason:     fmt.Sprintf("Very low precision (%.2f)", m.Precision),
			Suggestion: "Consider disabling this constraint and reviewing patterns",
			Confidence: distance(p.UnhealthyPrecision, m.Precision, p.UnhealthyPrecision),
		})
	}

	if m.Precision >= p.EscalatePrecision && m.Labeled() >= p.MinSamples && c.EnforcementAction == constraint.ActionWarn {
		out = append(out, Suggestion{
			Kind:       SuggestIncreaseEnforcement,
			Reason:     fmt.Sprintf("Very high precision (%.2f)", m.Precision),
			Suggestion: "Consider escalating enforcement from 'warn' to 'block'",
			Confidence: escalationConfidence(m.Precision, p.EscalatePrecision),
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Confidence > out[j].Confidence
	})
	if out == nil {
		out = []Suggestion{}
	}
	return out, nil
}

// distance returns (hi-lo)/span clamped to [0,1].
func distance(hi, lo, span float64) float64 {
	if span <= 0 {
		return 1
	}
	return min(1, max(0, (hi-lo)/span))
}

// escalationConfidence scales from 0.5 at the threshold to 1 at perfect
// precision.
func escalationConfidence(p, threshold float64) float64 {
	if threshold >= 1 {
		return 1
	}
	return 0.5 + 0.5*distance(p, threshold, 1-threshold)
}

// narrowPattern replaces unbounded wildcards with word boundaries and reports
// whether the pattern had any.
func narrowPattern(pattern string) (string, bool) {
	if !strings.Contains(pattern, ".*") && !strings.Contains(pattern, ".+") {
		return pattern, false
	}
	r := strings.NewReplacer(".*", `\b`, ".+", `\b`)
	return r.Replace(pattern), true
}
