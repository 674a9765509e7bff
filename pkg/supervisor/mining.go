package supervisor

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"grokflow/guardrails/pkg/constraint"
)

// MiningConfig configures new-constraint discovery from query history.
type MiningConfig struct {
	// MinFrequency is the number of occurrences a token needs.
	// Default: 3
	MinFrequency int

	// MinTokenLength drops shorter tokens.
	// Default: 3
	MinTokenLength int

	// FrequencyScale divides the frequency to obtain a confidence.
	// Default: 10
	FrequencyScale float64

	// MaxConfidence caps the confidence of a candidate.
	// Default: 0.95
	MaxConfidence float64
}

// DefaultMiningConfig returns the default mining configuration.
func DefaultMiningConfig() MiningConfig {
	return MiningConfig{
		MinFrequency:   3,
		MinTokenLength: 3,
		FrequencyScale: 10,
		MaxConfidence:  0.95,
	}
}

// Validate checks the configuration.
func (c MiningConfig) Validate() error {
	if c.MinFrequency < 1 {
		return fmt.Errorf("mining min frequency must be positive, got %d", c.MinFrequency)
	}
	if c.FrequencyScale <= 0 {
		return fmt.Errorf("mining frequency scale must be positive, got %v", c.FrequencyScale)
	}
	if c.MaxConfidence < 0 || c.MaxConfidence > 1 {
		return fmt.Errorf("mining max confidence must be between 0 and 1, got %v", c.MaxConfidence)
	}
	return nil
}

// Candidate is a proposed new constraint mined from query history.
type Candidate struct {
	Keyword     string            `json:"keyword"`
	Frequency   int               `json:"frequency"`
	Description string            `json:"suggested_description"`
	Confidence  float64           `json:"confidence"`
	Action      constraint.Action `json:"enforcement_action"`
}

// Constraint converts the candidate into a constraint ready to be added.
func (c Candidate) Constraint() *constraint.Constraint {
	return &constraint.Constraint{
		Description:       c.Description,
		TriggerKeywords:   []string{c.Keyword},
		EnforcementAction: c.Action,
	}
}

// SuggestNewConstraints finds frequent tokens in history that no existing
// constraint uses as a keyword. Candidates are ordered by decreasing
// frequency, then alphabetically.
func (s *Supervisor) SuggestNewConstraints(history []string) []Candidate {
	covered := make(map[string]struct{})
	for _, c := range s.constraints.List(false) {
		for _, kw := range c.TriggerKeywords {
			covered[strings.ToLower(kw)] = struct{}{}
		}
	}
	return mine(history, covered, s.config.Mining)
}

func mine(history []string, covered map[string]struct{}, cfg MiningConfig) []Candidate {
	freq := make(map[string]int)
	for _, query := range history {
		for _, token := range tokenize(query) {
			if len(token) >= cfg.MinTokenLength {
				freq[token]++
			}
		}
	}

	out := []Candidate{}
	for token, n := range freq {
		if n < cfg.MinFrequency {
			continue
		}
		if _, ok := covered[token]; ok {
			continue
		}
		out = append(out, Candidate{
			Keyword:     token,
			Frequency:   n,
			Description: fmt.Sprintf("Consider blocking '%s' pattern", token),
			Confidence:  min(float64(n)/cfg.FrequencyScale, cfg.MaxConfidence),
			Action:      constraint.ActionWarn,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Frequency != out[j].Frequency {
			return out[i].Frequency > out[j].Frequency
		}
		return out[i].Keyword < out[j].Keyword
	})
	return out
}

// tokenize lowercases query and splits it on whitespace, commas and periods.
func tokenize(query string) []string {
	return strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return r == ',' || r == '.' || unicode.IsSpace(r)
	})
}
