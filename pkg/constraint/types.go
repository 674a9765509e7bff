package constraint

import (
	"slices"
	"strings"
	"time"
)

// Logic is the boolean combinator applied to a constraint's keyword and
// pattern matches.
type Logic string

const (
	// LogicOR fires when any keyword or pattern matches.
	LogicOR Logic = "OR"
	// LogicAND fires only when every keyword and pattern matches.
	LogicAND Logic = "AND"
	// LogicNOT fires only when no keyword or pattern matches.
	LogicNOT Logic = "NOT"
)

// IsValid reports whether l is a known trigger logic.
func (l Logic) IsValid() bool {
	switch l {
	case LogicOR, LogicAND, LogicNOT:
		return true
	}
	return false
}

// Action is the enforcement action taken when a constraint fires.
type Action string

const (
	// ActionWarn surfaces the message and lets generation continue.
	ActionWarn Action = "warn"
	// ActionBlock prevents generation.
	ActionBlock Action = "block"
	// ActionRequireAction surfaces the message and requires explicit
	// confirmation from the user. Confirmation is enforced by the caller.
	ActionRequireAction Action = "require_action"
)

// IsValid reports whether a is a known enforcement action.
func (a Action) IsValid() bool {
	switch a {
	case ActionWarn, ActionBlock, ActionRequireAction:
		return true
	}
	return false
}

// Severity orders actions from least to most disruptive.
func (a Action) Severity() int {
	switch a {
	case ActionWarn:
		return 1
	case ActionRequireAction:
		return 2
	case ActionBlock:
		return 3
	}
	return 0
}

// Feedback is the user-supplied label of a trigger event.
type Feedback string

const (
	FeedbackTruePositive  Feedback = "true_positive"
	FeedbackFalsePositive Feedback = "false_positive"
	FeedbackUnlabeled     Feedback = "unlabeled"
)

// IsValid reports whether f is a known feedback label.
func (f Feedback) IsValid() bool {
	switch f {
	case FeedbackTruePositive, FeedbackFalsePositive, FeedbackUnlabeled:
		return true
	}
	return false
}

// IsLabeled reports whether f carries a true or false positive verdict.
func (f Feedback) IsLabeled() bool {
	return f == FeedbackTruePositive || f == FeedbackFalsePositive
}

// ParseFeedback accepts the canonical labels plus the short forms used on the
// command line ("tp", "fp").
func ParseFeedback(s string) (Feedback, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "tp", "true_positive", "true-positive", "correct":
		return FeedbackTruePositive, nil
	case "fp", "false_positive", "false-positive", "wrong":
		return FeedbackFalsePositive, nil
	case "", "unlabeled", "unknown":
		return FeedbackUnlabeled, nil
	}
	return "", NewValidationError("feedback", "unknown label %q (want tp, fp or unlabeled)", s)
}

// Constraint versions.
const (
	// VersionLegacy constraints carry keywords only, evaluated with OR logic.
	VersionLegacy = 1
	// VersionCurrent constraints support patterns, trigger logic and context filters.
	VersionCurrent = 2
)

// ContextFilters maps a context key to the set of values for which a
// constraint is active.
type ContextFilters map[string][]string

// Allows reports whether evalCtx satisfies every configured filter. A key
// missing from evalCtx fails the filter.
func (f ContextFilters) Allows(evalCtx map[string]string) bool {
	for key, allowed := range f {
		value, ok := evalCtx[key]
		if !ok {
			return false
		}
		if !slices.Contains(allowed, value) {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of f.
func (f ContextFilters) Clone() ContextFilters {
	if f == nil {
		return nil
	}
	out := make(ContextFilters, len(f))
	for k, v := range f {
		out[k] = slices.Clone(v)
	}
	return out
}

// Constraint is a user-authored rule mapping a trigger condition to an
// enforcement action.
type Constraint struct {
	ID                 string         `json:"id" yaml:"id"`
	Description        string         `json:"description" yaml:"description"`
	TriggerKeywords    []string       `json:"trigger_keywords" yaml:"trigger_keywords"`
	TriggerPatterns    []string       `json:"trigger_patterns" yaml:"trigger_patterns"`
	TriggerLogic       Logic          `json:"trigger_logic" yaml:"trigger_logic"`
	ContextFilters     ContextFilters `json:"context_filters" yaml:"context_filters"`
	EnforcementAction  Action         `json:"enforcement_action" yaml:"enforcement_action"`
	EnforcementMessage string         `json:"enforcement_message" yaml:"enforcement_message"`
	Enabled            bool           `json:"enabled" yaml:"enabled"`
	Version            int            `json:"version" yaml:"version"`
	TriggerCount       int64          `json:"trigger_count" yaml:"trigger_count"`
	CreatedAt          time.Time      `json:"created_at" yaml:"created_at"`
	LastTriggeredAt    *time.Time     `json:"last_triggered_at,omitempty" yaml:"last_triggered_at,omitempty"`
}

// Clone returns a deep copy of c.
func (c *Constraint) Clone() *Constraint {
	if c == nil {
		return nil
	}
	out := *c
	out.TriggerKeywords = slices.Clone(c.TriggerKeywords)
	out.TriggerPatterns = slices.Clone(c.TriggerPatterns)
	out.ContextFilters = c.ContextFilters.Clone()
	if c.LastTriggeredAt != nil {
		t := *c.LastTriggeredAt
		out.LastTriggeredAt = &t
	}
	return &out
}

// Message returns the enforcement message, falling back to the description.
func (c *Constraint) Message() string {
	if c.EnforcementMessage != "" {
		return c.EnforcementMessage
	}
	return c.Description
}

// IsLegacy reports whether c is a keyword-only version 1 constraint.
func (c *Constraint) IsLegacy() bool {
	return c.Version == VersionLegacy
}

// Normalize canonicalizes user input in place: keywords are lowercased,
// trimmed and de-duplicated, empty patterns are dropped, and unset logic,
// action, version and message receive their defaults.
func (c *Constraint) Normalize() {
	c.Description = strings.TrimSpace(c.Description)
	c.TriggerKeywords = normalizeList(c.TriggerKeywords, true)
	c.TriggerPatterns = normalizeList(c.TriggerPatterns, false)

	if c.TriggerLogic == "" {
		c.TriggerLogic = LogicOR
	} else {
		c.TriggerLogic = Logic(strings.ToUpper(string(c.TriggerLogic)))
	}
	if c.EnforcementAction == "" {
		c.EnforcementAction = ActionWarn
	} else {
		c.EnforcementAction = Action(strings.ToLower(string(c.EnforcementAction)))
	}
	if c.Version == 0 {
		c.Version = VersionCurrent
	}
	if c.EnforcementMessage == "" {
		c.EnforcementMessage = c.Description
	}

	if len(c.ContextFilters) == 0 {
		c.ContextFilters = nil
		return
	}
	filters := make(ContextFilters, len(c.ContextFilters))
	for key, values := range c.ContextFilters {
		filters[strings.TrimSpace(key)] = normalizeList(values, false)
	}
	c.ContextFilters = filters
}

func normalizeList(in []string, lower bool) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if lower {
			s = strings.ToLower(s)
		}
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// TriggerEvent is a single firing of a constraint, optionally labeled by the
// user.
type TriggerEvent struct {
	ConstraintID string    `json:"constraint_id"`
	Query        string    `json:"query"`
	Timestamp    time.Time `json:"timestamp"`
	Label        Feedback  `json:"label"`
}

// AnalyticsRecord holds the supervisor's view of one constraint. It refers to
// the constraint by id and never owns it.
type AnalyticsRecord struct {
	ConstraintID       string         `json:"constraint_id"`
	TruePositives      int            `json:"true_positive_count"`
	FalsePositives     int            `json:"false_positive_count"`
	Unlabeled          int            `json:"unlabeled_count"`
	TotalTriggers      int            `json:"total_triggers"`
	Precision          *float64       `json:"precision"`
	EffectivenessScore float64        `json:"effectiveness_score"`
	DriftScore         float64        `json:"drift_score"`
	History            []TriggerEvent `json:"trigger_history"`
	LastUpdated        time.Time      `json:"last_updated"`
}

// Clone returns a deep copy of r.
func (r *AnalyticsRecord) Clone() *AnalyticsRecord {
	if r == nil {
		return nil
	}
	out := *r
	out.History = slices.Clone(r.History)
	if r.Precision != nil {
		p := *r.Precision
		out.Precision = &p
	}
	return &out
}

// Labeled returns the number of events carrying a true or false positive label.
func (r *AnalyticsRecord) Labeled() int {
	return r.TruePositives + r.FalsePositives
}
