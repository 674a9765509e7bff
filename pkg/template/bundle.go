package template

import (
	"fmt"
	"slices"
	"strings"

	"grokflow/guardrails/pkg/constraint"
)

// BundleVersion is the version written into exported bundles.
const BundleVersion = "1.0.0"

// Bundle is a portable, shareable set of constraints.
type Bundle struct {
	Name        string  `json:"template_name" yaml:"template_name"`
	Version     string  `json:"template_version" yaml:"template_version"`
	Description string  `json:"description" yaml:"description"`
	Author      string  `json:"author" yaml:"author"`
	Created     string  `json:"created" yaml:"created"`
	Constraints []Entry `json:"constraints" yaml:"constraints"`
}

// Entry is a constraint definition without runtime metadata: no id, trigger
// count, timestamps or analytics.
type Entry struct {
	Description        string                    `json:"description" yaml:"description"`
	TriggerKeywords    []string                  `json:"trigger_keywords,omitempty" yaml:"trigger_keywords,omitempty"`
	TriggerPatterns    []string                  `json:"trigger_patterns,omitempty" yaml:"trigger_patterns,omitempty"`
	TriggerLogic       constraint.Logic          `json:"trigger_logic,omitempty" yaml:"trigger_logic,omitempty"`
	ContextFilters     constraint.ContextFilters `json:"context_filters,omitempty" yaml:"context_filters,omitempty"`
	EnforcementAction  constraint.Action         `json:"enforcement_action,omitempty" yaml:"enforcement_action,omitempty"`
	EnforcementMessage string                    `json:"enforcement_message,omitempty" yaml:"enforcement_message,omitempty"`
}

// EntryFrom strips runtime metadata from c. Legacy constraints export their
// keywords only.
func EntryFrom(c *constraint.Constraint) Entry {
	e := Entry{
		Description:        c.Description,
		TriggerKeywords:    slices.Clone(c.TriggerKeywords),
		EnforcementAction:  c.EnforcementAction,
		EnforcementMessage: c.EnforcementMessage,
	}
	if c.IsLegacy() {
		return e
	}
	e.TriggerPatterns = slices.Clone(c.TriggerPatterns)
	e.TriggerLogic = c.TriggerLogic
	e.ContextFilters = c.ContextFilters.Clone()
	return e
}

// IsLegacy reports whether the entry describes a keyword-only constraint. An
// entry without patterns, logic or context filters imports as version 1.
func (e Entry) IsLegacy() bool {
	return len(e.TriggerPatterns) == 0 && e.TriggerLogic == "" && len(e.ContextFilters) == 0
}

// Constraint converts e into a normalized constraint ready to be added.
func (e Entry) Constraint() *constraint.Constraint {
	c := &constraint.Constraint{
		Description:        e.Description,
		TriggerKeywords:    slices.Clone(e.TriggerKeywords),
		TriggerPatterns:    slices.Clone(e.TriggerPatterns),
		TriggerLogic:       e.TriggerLogic,
		ContextFilters:     e.ContextFilters.Clone(),
		EnforcementAction:  e.EnforcementAction,
		EnforcementMessage: e.EnforcementMessage,
		Version:            constraint.VersionCurrent,
	}
	if e.IsLegacy() {
		c.Version = constraint.VersionLegacy
	}
	if strings.TrimSpace(c.Description) == "" {
		c.Description = "Imported constraint"
	}
	c.Normalize()
	return c
}

// Validate checks that b has entries and that every entry converts into a
// valid constraint.
func (b *Bundle) Validate() error {
	if b == nil {
		return fmt.Errorf("bundle is nil")
	}
	if len(b.Constraints) == 0 {
		return fmt.Errorf("bundle %q contains no constraints", b.Name)
	}
	for i, e := range b.Constraints {
		if err := constraint.Validate(e.Constraint()); err != nil {
			return fmt.Errorf("bundle %q entry %d: %w", b.Name, i, err)
		}
	}
	return nil
}

// Summary describes a bundle without its entries.
type Summary struct {
	Name        string `json:"template_name"`
	Version     string `json:"template_version"`
	Description string `json:"description"`
	Author      string `json:"author"`
	Constraints int    `json:"constraint_count"`
	Path        string `json:"path,omitempty"`
	Builtin     bool   `json:"builtin"`
}

// Summary returns the bundle metadata.
func (b *Bundle) Summary() Summary {
	return Summary{
		Name:        b.Name,
		Version:     b.Version,
		Description: b.Description,
		Author:      b.Author,
		Constraints: len(b.Constraints),
	}
}
