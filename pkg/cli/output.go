package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"grokflow/guardrails/pkg/constraint"
	"grokflow/guardrails/pkg/match"
	"grokflow/guardrails/pkg/store"
	"grokflow/guardrails/pkg/supervisor"
	"grokflow/guardrails/pkg/template"

	"github.com/fatih/color"
)

// OutputFormat represents the output format for command results.
type OutputFormat string

const (
	// FormatText is colored text output (default).
	FormatText OutputFormat = "text"
	// FormatJSON is indented JSON output.
	FormatJSON OutputFormat = "json"
)

// ParseFormat validates a --output flag value.
func ParseFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(s)) {
	case FormatText, "":
		return FormatText, nil
	case FormatJSON:
		return FormatJSON, nil
	}
	return "", fmt.Errorf("unknown output format %q (want text or json)", s)
}

// shortID is the id length shown in tables.
const shortID = 8

// Printer renders command results.
type Printer struct {
	w      io.Writer
	format OutputFormat
	color  bool
}

// NewPrinter creates a printer writing to w. If w is nil, it defaults to
// os.Stdout.
func NewPrinter(w io.Writer, format OutputFormat, colored bool) *Printer {
	if w == nil {
		w = os.Stdout
	}
	return &Printer{w: w, format: format, color: colored}
}

// JSON reports whether the printer emits JSON.
func (p *Printer) JSON() bool { return p.format == FormatJSON }

func (p *Printer) paint(attrs ...color.Attribute) func(a ...interface{}) string {
	c := color.New(attrs...)
	if p.color {
		c.EnableColor()
	} else {
		c.DisableColor()
	}
	return c.SprintFunc()
}

func (p *Printer) printf(format string, args ...interface{}) {
	fmt.Fprintf(p.w, format, args...)
}

func (p *Printer) writeJSON(data interface{}) error {
	encoder := json.NewEncoder(p.w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

// Success prints a confirmation. In JSON mode data is printed instead.
func (p *Printer) Success(msg string, data interface{}) error {
	if p.JSON() {
		return p.writeJSON(data)
	}
	p.printf("%s\n", p.paint(color.FgGreen)("✅ "+msg))
	return nil
}

// Warning prints a notice. In JSON mode data is printed instead.
func (p *Printer) Warning(msg string, data interface{}) error {
	if p.JSON() {
		return p.writeJSON(data)
	}
	p.printf("%s\n", p.paint(color.FgYellow)("⚠️  "+msg))
	return nil
}

// Result prints the outcome of a check.
func (p *Printer) Result(r *match.Result) error {
	if p.JSON() {
		return p.writeJSON(r)
	}
	if !r.Fired() {
		p.printf("%s\n", p.paint(color.FgGreen)("✅ No constraints triggered"))
		return nil
	}

	red := p.paint(color.FgRed, color.Bold)
	yellow := p.paint(color.FgYellow)
	cyan := p.paint(color.FgCyan)
	gray := p.paint(color.FgHiBlack)

	for _, t := range r.Triggers {
		switch t.Action {
		case constraint.ActionBlock:
			p.printf("\n%s %s\n", red("🚫 Blocked by constraint"), gray(short(t.ConstraintID)))
			p.printf("%s\n", yellow(t.Message))
		case constraint.ActionRequireAction:
			p.printf("\n%s %s\n", cyan("📋 Constraint requires action"), gray(short(t.ConstraintID)))
			p.printf("%s\n", yellow(t.Message))
		default:
			p.printf("\n%s %s\n", yellow("⚠️  Constraint warning"), gray(short(t.ConstraintID)))
			p.printf("%s\n", t.Message)
		}
		if len(t.MatchedKeywords) > 0 {
			p.printf("  %s\n", gray("keywords: "+strings.Join(t.MatchedKeywords, ", ")))
		}
		if len(t.MatchedPatterns) > 0 {
			p.printf("  %s\n", gray("patterns: "+strings.Join(t.MatchedPatterns, ", ")))
		}
	}
	p.printf("\n")
	return nil
}

// Constraints prints a constraint table.
func (p *Printer) Constraints(cs []*constraint.Constraint) error {
	if p.JSON() {
		if cs == nil {
			cs = []*constraint.Constraint{}
		}
		return p.writeJSON(cs)
	}
	if len(cs) == 0 {
		p.printf("%s\n", p.paint(color.FgYellow)("No constraints found."))
		return nil
	}

	cyan := p.paint(color.FgCyan)
	green := p.paint(color.FgGreen)
	yellow := p.paint(color.FgYellow)
	bold := p.paint(color.Bold)

	p.printf("%s\n", bold(fmt.Sprintf("Constraints (%d total)", len(cs))))
	p.printf("%-8s  %-40s  %-32s  %-14s  %8s  %s\n", "ID", "DESCRIPTION", "KEYWORDS/PATTERNS", "ACTION", "TRIGGERS", "STATUS")
	for _, c := range cs {
		status := "✅ Enabled"
		if !c.Enabled {
			status = "❌ Disabled"
		}
		p.printf("%s  %-40s  %s  %s  %8d  %s\n",
			cyan(fmt.Sprintf("%-8s", short(c.ID))),
			truncate(c.Description, 40),
			green(fmt.Sprintf("%-32s", truncate(triggerSummary(c), 32))),
			yellow(fmt.Sprintf("%-14s", c.EnforcementAction)),
			c.TriggerCount,
			status,
		)
	}
	return nil
}

// Constraint prints one constraint in full.
func (p *Printer) Constraint(c *constraint.Constraint) error {
	if p.JSON() {
		return p.writeJSON(c)
	}

	label := p.paint(color.Bold)
	p.printf("%s %s\n", label("ID:         "), c.ID)
	p.printf("%s %s\n", label("Description:"), c.Description)
	if len(c.TriggerKeywords) > 0 {
		p.printf("%s %s\n", label("Keywords:   "), strings.Join(c.TriggerKeywords, ", "))
	}
	if len(c.TriggerPatterns) > 0 {
		p.printf("%s %s\n", label("Patterns:   "), strings.Join(c.TriggerPatterns, ", "))
	}
	if !c.IsLegacy() {
		p.printf("%s %s\n", label("Logic:      "), c.TriggerLogic)
	}
	if len(c.ContextFilters) > 0 {
		keys := make([]string, 0, len(c.ContextFilters))
		for k := range c.ContextFilters {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s=%s", k, strings.Join(c.ContextFilters[k], "|")))
		}
		p.printf("%s %s\n", label("Context:    "), strings.Join(parts, " "))
	}
	p.printf("%s %s\n", label("Action:     "), c.EnforcementAction)
	p.printf("%s %s\n", label("Message:    "), c.EnforcementMessage)
	p.printf("%s %t\n", label("Enabled:    "), c.Enabled)
	p.printf("%s %d\n", label("Triggers:   "), c.TriggerCount)
	p.printf("%s %s\n", label("Created:    "), c.CreatedAt.Format("2006-01-02 15:04:05"))
	if c.LastTriggeredAt != nil {
		p.printf("%s %s\n", label("Last fired: "), c.LastTriggeredAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}

// Health prints a single constraint health report.
func (p *Printer) Health(r *supervisor.HealthReport) error {
	if p.JSON() {
		return p.writeJSON(r)
	}

	status := p.healthColor(r.Status)(strings.ToUpper(string(r.Status)))
	m := r.Metrics
	p.printf("%s %s\n\n", p.paint(color.Bold)("Health: "+short(r.ConstraintID)), truncate(r.Description, 50))
	p.printf("Status: %s\n\n", status)
	if m.HasPrecision {
		p.printf("Precision:      %.3f\n", m.Precision)
		p.printf("FP Rate:        %.3f\n", m.FalsePositiveRate)
	} else {
		p.printf("Precision:      n/a\n")
	}
	p.printf("Effectiveness:  %.3f\n", m.Effectiveness)
	p.printf("Drift Score:    %.3f\n\n", m.Drift)
	p.printf("Total Triggers: %d\n", m.TotalTriggers)
	p.printf("True Positives: %d\n", m.TruePositives)
	p.printf("False Positives: %d\n", m.FalsePositives)
	p.printf("Unlabeled:      %d\n", m.Unlabeled)
	if len(r.Recommendations) > 0 {
		p.printf("\nRecommendations:\n")
		for _, rec := range r.Recommendations {
			p.printf("  • %s\n", rec)
		}
	}
	return nil
}

// Dashboard prints the system health dashboard.
func (p *Printer) Dashboard(d *supervisor.Dashboard) error {
	if p.JSON() {
		return p.writeJSON(d)
	}

	statusColor := p.paint(color.FgGreen)
	switch d.Status {
	case supervisor.OverallAcceptable:
		statusColor = p.paint(color.FgYellow)
	case supervisor.OverallNeedsAttention:
		statusColor = p.paint(color.FgRed)
	}

	p.printf("%s\n\n", p.paint(color.FgCyan, color.Bold)("=== System Health Dashboard ==="))
	p.printf("Overall Status:    %s\n", statusColor(strings.ToUpper(d.Status)))
	p.printf("Average Precision: %.3f\n", d.AveragePrecision)
	p.printf("Total Constraints: %d (%d rated)\n\n", d.TotalConstraints, d.Rated)
	p.printf("✅ Healthy:      %d\n", len(d.Healthy))
	p.printf("🙂 Acceptable:   %d\n", len(d.Acceptable))
	p.printf("⚠️  Needs Review: %d\n", len(d.NeedsReview))
	p.printf("❌ Unhealthy:    %d\n", len(d.Unhealthy))
	p.printf("○  No Data:      %d\n", len(d.NoData))

	if len(d.NeedsReview) > 0 {
		p.printf("\n%s\n", p.paint(color.FgYellow)("⚠️  Constraints Needing Review"))
		p.printf("%-8s  %-9s  %-6s\n", "ID", "PRECISION", "DRIFT")
		for _, r := range d.NeedsReview {
			p.printf("%-8s  %-9.3f  %-6.3f\n", short(r.ConstraintID), r.Metrics.Precision, r.Metrics.Drift)
		}
	}
	if len(d.Unhealthy) > 0 {
		p.printf("\n%s\n", p.paint(color.FgRed)("❌ Unhealthy Constraints"))
		p.printf("%-8s  %-9s  %s\n", "ID", "PRECISION", "RECOMMENDATIONS")
		for _, r := range d.Unhealthy {
			recs := r.Recommendations
			if len(recs) > 2 {
				recs = recs[:2]
			}
			p.printf("%-8s  %-9.3f  %s\n", short(r.ConstraintID), r.Metrics.Precision, strings.Join(recs, "; "))
		}
	}
	return nil
}

// ConstraintSuggestions groups suggestions for one constraint.
type ConstraintSuggestions struct {
	ConstraintID string                  `json:"constraint_id"`
	Description  string                  `json:"description"`
	Suggestions  []supervisor.Suggestion `json:"suggestions"`
}

// Suggestions prints improvement suggestions per constraint.
func (p *Printer) Suggestions(groups []ConstraintSuggestions) error {
	if p.JSON() {
		if groups == nil {
			groups = []ConstraintSuggestions{}
		}
		return p.writeJSON(groups)
	}
	if len(groups) == 0 {
		p.printf("%s\n", p.paint(color.FgYellow)("No improvement suggestions available."))
		return nil
	}

	cyan := p.paint(color.FgCyan)
	green := p.paint(color.FgGreen)
	for _, g := range groups {
		p.printf("\n%s\n", p.paint(color.Bold)(fmt.Sprintf("Suggestions for %s: %s", short(g.ConstraintID), truncate(g.Description, 50))))
		for _, s := range g.Suggestions {
			p.printf("  %s %s\n", cyan(fmt.Sprintf("%-22s", s.Kind)), green(fmt.Sprintf("%.2f", s.Confidence)))
			p.printf("    %s\n", s.Reason)
			p.printf("    %s\n", truncate(s.Suggestion, 80))
		}
	}
	return nil
}

// Candidates prints mined constraint candidates.
func (p *Printer) Candidates(cs []supervisor.Candidate) error {
	if p.JSON() {
		return p.writeJSON(cs)
	}
	if len(cs) == 0 {
		p.printf("%s\n", p.paint(color.FgYellow)("No new constraint candidates found."))
		return nil
	}

	p.printf("%-20s  %9s  %10s  %s\n", "KEYWORD", "FREQUENCY", "CONFIDENCE", "SUGGESTION")
	cyan := p.paint(color.FgCyan)
	for _, c := range cs {
		p.printf("%s  %9d  %10.2f  %s\n", cyan(fmt.Sprintf("%-20s", truncate(c.Keyword, 20))), c.Frequency, c.Confidence, c.Description)
	}
	return nil
}

// Templates prints available templates.
func (p *Printer) Templates(ts []template.Summary) error {
	if p.JSON() {
		if ts == nil {
			ts = []template.Summary{}
		}
		return p.writeJSON(ts)
	}
	if len(ts) == 0 {
		p.printf("%s\n", p.paint(color.FgYellow)("No templates found."))
		return nil
	}

	p.printf("%s\n", p.paint(color.Bold)(fmt.Sprintf("Available Templates (%d total)", len(ts))))
	p.printf("%-24s  %-50s  %11s  %s\n", "NAME", "DESCRIPTION", "CONSTRAINTS", "AUTHOR")
	cyan := p.paint(color.FgCyan)
	for _, t := range ts {
		p.printf("%s  %-50s  %11d  %s\n", cyan(fmt.Sprintf("%-24s", t.Name)), truncate(t.Description, 50), t.Constraints, t.Author)
	}
	return nil
}

// Bundle prints the contents of a template.
func (p *Printer) Bundle(b *template.Bundle) error {
	if p.JSON() {
		return p.writeJSON(b)
	}

	p.printf("%s %s\n", p.paint(color.Bold)(b.Name), p.paint(color.FgHiBlack)("v"+b.Version))
	if b.Description != "" {
		p.printf("%s\n", b.Description)
	}
	if b.Author != "" {
		p.printf("Author: %s\n", b.Author)
	}
	p.printf("\nConstraints (%d):\n", len(b.Constraints))

	cyan := p.paint(color.FgCyan)
	yellow := p.paint(color.FgYellow)
	for i, e := range b.Constraints {
		action := e.EnforcementAction
		if action == "" {
			action = constraint.ActionWarn
		}
		p.printf("  %2d. %s %s\n", i+1, e.Description, yellow("["+string(action)+"]"))
		if len(e.TriggerKeywords) > 0 {
			p.printf("      %s\n", cyan("keywords: "+strings.Join(e.TriggerKeywords, ", ")))
		}
		if len(e.TriggerPatterns) > 0 {
			p.printf("      %s\n", cyan("patterns: "+strings.Join(e.TriggerPatterns, ", ")))
		}
	}
	return nil
}

// Imported prints the ids created by a template import.
func (p *Printer) Imported(name string, ids []string) error {
	if p.JSON() {
		return p.writeJSON(map[string]interface{}{"template": name, "ids": ids})
	}
	p.printf("%s\n", p.paint(color.FgGreen)(fmt.Sprintf("✅ Imported %d constraints from %s", len(ids), name)))
	for _, id := range ids {
		p.printf("  %s\n", id)
	}
	return nil
}

// Stats prints constraint system statistics.
func (p *Printer) Stats(s store.Stats) error {
	if p.JSON() {
		return p.writeJSON(s)
	}

	p.printf("%s\n\n", p.paint(color.FgCyan, color.Bold)("=== Constraint System Statistics ==="))
	p.printf("Total Constraints:   %d\n", s.Total)
	p.printf("Enabled Constraints: %d\n", s.Enabled)
	p.printf("Total Triggers:      %d\n", s.TotalTriggers)
	p.printf("Indexed Terms:       %d\n", s.IndexedTerms)
	if s.Invalid > 0 {
		p.printf("%s\n", p.paint(color.FgYellow)(fmt.Sprintf("Invalid (ignored):   %d", s.Invalid)))
	}
	p.printf("\n")

	if s.MostTriggered != nil {
		p.printf("Most Triggered Constraint:\n")
		p.printf("  ID:          %s\n", short(s.MostTriggered.ID))
		p.printf("  Description: %s\n", truncate(s.MostTriggered.Description, 50))
		p.printf("  Triggers:    %d\n", s.MostTriggered.TriggerCount)
	} else {
		p.printf("No constraints have been triggered yet.\n")
	}
	return nil
}

func (p *Printer) healthColor(h supervisor.Health) func(a ...interface{}) string {
	switch h {
	case supervisor.HealthHealthy:
		return p.paint(color.FgGreen)
	case supervisor.HealthAcceptable:
		return p.paint(color.FgYellow)
	case supervisor.HealthNeedsReview:
		return p.paint(color.FgHiYellow)
	case supervisor.HealthUnhealthy:
		return p.paint(color.FgRed)
	}
	return p.paint(color.FgHiBlack)
}

func triggerSummary(c *constraint.Constraint) string {
	switch {
	case len(c.TriggerPatterns) > 0:
		return "Patterns: " + strings.Join(first(c.TriggerPatterns, 2), ", ")
	case len(c.TriggerKeywords) > 0:
		return "Keywords: " + strings.Join(first(c.TriggerKeywords, 3), ", ")
	}
	return "None"
}

func first(s []string, n int) []string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

func short(id string) string {
	if len(id) > shortID {
		return id[:shortID]
	}
	return id
}

// truncate shortens s to n runes, marking the cut with an ellipsis.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}
