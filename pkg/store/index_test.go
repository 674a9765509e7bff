package store

import (
	"regexp"
	"strings"
	"testing"

	"grokflow/guardrails/pkg/constraint"
)

func TestPatternTerm(t *testing.T) {
	tests := []struct {
		pattern string
		want    string
		ok      bool
	}{
		{pattern: `mock`, want: "mock", ok: true},
		{pattern: `Mock\w+`, want: "mock", ok: true},
		{pattern: `^rm\s+-rf`, want: "rm", ok: true},
		{pattern: `\bTODO:\s*fix`, want: "todo:", ok: true},
		{pattern: `(api)_key=`, want: "api_key=", ok: true},
		{pattern: `ab+c`, want: "ab", ok: true},
		{pattern: `x{2,}y`, want: "x", ok: true},
		{pattern: `drop table`, want: "drop", ok: true},
		{pattern: `(foo|bar)`, ok: false},
		{pattern: `.*password`, ok: false},
		{pattern: `[a-z]+`, ok: false},
		{pattern: `a?b`, ok: false},
		{pattern: `unclosed(`, want: "unclosed(", ok: true},
		{pattern: `bad [`, ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			got, ok := PatternTerm(tt.pattern)
			if ok != tt.ok || got != tt.want {
				t.Errorf("PatternTerm(%q) = %q, %v; want %q, %v", tt.pattern, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestFold(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Mock DATA", "mock data"},
		{"Kelvin", "kelvin"},
		{"ſecret", "secret"},
		{"日本", "日本"},
	}
	for _, tt := range tests {
		if got := Fold(tt.in); got != tt.want {
			t.Errorf("Fold(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestBuildIndex_LinearScan(t *testing.T) {
	cs := []*constraint.Constraint{
		{ID: "or-kw", Enabled: true, Version: 2, TriggerLogic: constraint.LogicOR, TriggerKeywords: []string{"mock"}},
		{ID: "or-mixed", Enabled: true, Version: 2, TriggerLogic: constraint.LogicOR, TriggerKeywords: []string{"mock"}, TriggerPatterns: []string{`.*secret`}},
		{ID: "and-mixed", Enabled: true, Version: 2, TriggerLogic: constraint.LogicAND, TriggerKeywords: []string{"api"}, TriggerPatterns: []string{`.*secret`}},
		{ID: "not", Enabled: true, Version: 2, TriggerLogic: constraint.LogicNOT, TriggerKeywords: []string{"test"}},
		{ID: "phrase", Enabled: true, Version: 2, TriggerLogic: constraint.LogicOR, TriggerKeywords: []string{"drop table"}},
		{ID: "disabled", Enabled: false, Version: 2, TriggerLogic: constraint.LogicNOT, TriggerKeywords: []string{"x"}},
	}

	idx := BuildIndex(cs)
	got := strings.Join(idx.LinearScan(), ",")
	if got != "or-mixed,not,phrase" {
		t.Errorf("LinearScan() = %s, want or-mixed,not,phrase", got)
	}

	cands := idx.Candidates("nothing relevant")
	var ids []string
	for _, c := range cands {
		ids = append(ids, c.ID)
	}
	if strings.Join(ids, ",") != "or-mixed,not,phrase" {
		t.Errorf("Candidates() = %v", ids)
	}

	cands = idx.Candidates("Some MOCKED api call")
	ids = ids[:0]
	for _, c := range cands {
		ids = append(ids, c.ID)
	}
	if strings.Join(ids, ",") != "or-kw,or-mixed,and-mixed,not,phrase" {
		t.Errorf("Candidates() = %v, want insertion order with all indexed hits", ids)
	}
}

// Every constraint that fires must be a candidate.
func TestIndex_CandidatesSuperset(t *testing.T) {
	cs := []*constraint.Constraint{
		{ID: "kw", Enabled: true, Version: 2, TriggerLogic: constraint.LogicOR, TriggerKeywords: []string{"mock", "fake"}},
		{ID: "re", Enabled: true, Version: 2, TriggerLogic: constraint.LogicOR, TriggerPatterns: []string{`rm\s+-rf`, `DROP\s+TABLE`}},
		{ID: "and", Enabled: true, Version: 2, TriggerLogic: constraint.LogicAND, TriggerKeywords: []string{"password"}, TriggerPatterns: []string{`log\w*`}},
		{ID: "legacy", Enabled: true, Version: 1, TriggerLogic: constraint.LogicOR, TriggerKeywords: []string{"todo"}},
		{ID: "bad", Enabled: true, Version: 2, TriggerLogic: constraint.LogicOR, TriggerPatterns: []string{`secret[`}},
	}
	idx := BuildIndex(cs)

	queries := []string{
		"please MOCK the service",
		"unmocked",
		"run rm  -rf /tmp",
		"drop   table users",
		"log the password",
		"passwords are logged",
		"TODOs remain",
		"a secret[ appears",
		"Kelvin fakeness",
		"",
	}

	for _, q := range queries {
		cands := idx.Candidates(q)
		for _, c := range cs {
			if fires(c, q) && !containsID(cands, c.ID) {
				t.Errorf("query %q: %s fires but is not a candidate", q, c.ID)
			}
		}
	}
}

// fires is a reference evaluation without context filters.
func fires(c *constraint.Constraint, query string) bool {
	folded := Fold(query)
	var matches []bool
	for _, kw := range c.TriggerKeywords {
		matches = append(matches, strings.Contains(folded, Fold(kw)))
	}
	for _, p := range c.TriggerPatterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			matches = append(matches, strings.Contains(folded, Fold(p)))
			continue
		}
		matches = append(matches, re.MatchString(query))
	}

	anyMatch, allMatch := false, true
	for _, m := range matches {
		anyMatch = anyMatch || m
		allMatch = allMatch && m
	}
	switch c.TriggerLogic {
	case constraint.LogicAND:
		return len(matches) > 0 && allMatch
	case constraint.LogicNOT:
		return !anyMatch
	}
	return anyMatch
}
