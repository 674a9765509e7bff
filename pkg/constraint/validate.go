package constraint

import "strings"

// Validate checks c against the data model invariants. It expects c to have
// been normalized; regex syntax is deliberately not checked because invalid
// patterns fall back to literal matching at evaluation time.
func Validate(c *Constraint) error {
	if c == nil {
		return NewValidationError("", "constraint is nil")
	}

	if c.Description == "" {
		return NewValidationError("description", "must not be empty")
	}

	if len(c.TriggerKeywords) == 0 && len(c.TriggerPatterns) == 0 {
		return NewValidationError("trigger_keywords", "at least one trigger keyword or pattern is required")
	}

	if !c.TriggerLogic.IsValid() {
		return NewValidationError("trigger_logic", "unknown logic %q (want OR, AND or NOT)", c.TriggerLogic)
	}

	if !c.EnforcementAction.IsValid() {
		return NewValidationError("enforcement_action", "unknown action %q (want warn, block or require_action)", c.EnforcementAction)
	}

	switch c.Version {
	case VersionLegacy:
		if len(c.TriggerPatterns) > 0 {
			return NewValidationError("trigger_patterns", "version 1 constraints support keywords only")
		}
		if c.TriggerLogic != LogicOR {
			return NewValidationError("trigger_logic", "version 1 constraints only support OR logic")
		}
		if len(c.ContextFilters) > 0 {
			return NewValidationError("context_filters", "version 1 constraints do not support context filters")
		}
	case VersionCurrent:
	default:
		return NewValidationError("version", "unsupported version %d", c.Version)
	}

	for key, values := range c.ContextFilters {
		if key == "" {
			return NewValidationError("context_filters", "filter key must not be empty")
		}
		if len(values) == 0 {
			return NewValidationError("context_filters", "filter %q must allow at least one value", key)
		}
	}

	if c.TriggerCount < 0 {
		return NewValidationError("trigger_count", "must not be negative")
	}

	return nil
}

// ParseContext converts "key=value" pairs into an evaluation context.
func ParseContext(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, NewValidationError("context", "expected key=value, got %q", pair)
		}
		out[key] = strings.TrimSpace(value)
	}
	return out, nil
}

// ParseFilters converts "key=v1,v2" pairs into context filters.
func ParseFilters(pairs []string) (ContextFilters, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(ContextFilters, len(pairs))
	for _, pair := range pairs {
		key, values, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, NewValidationError("context_filters", "expected key=v1,v2, got %q", pair)
		}
		for _, v := range strings.Split(values, ",") {
			if v = strings.TrimSpace(v); v != "" {
				out[key] = append(out[key], v)
			}
		}
	}
	return out, nil
}
