package template

import (
	"slices"

	"grokflow/guardrails/pkg/constraint"
)

const (
	builtinAuthor  = "GrokFlow Team"
	builtinCreated = "2025-12-09"
)

// Builtins returns fresh copies of the bundled templates.
func Builtins() []*Bundle {
	return []*Bundle{
		{
			Name:        "no-mock-data",
			Version:     BundleVersion,
			Description: "Block all mock, demo, and placeholder data usage",
			Author:      builtinAuthor,
			Created:     builtinCreated,
			Constraints: []Entry{
				{
					Description:        "Never use mock data",
					TriggerPatterns:    []string{"mock.*", "demo.*", "placeholder.*", "fake.*"},
					TriggerLogic:       constraint.LogicOR,
					EnforcementAction:  constraint.ActionBlock,
					EnforcementMessage: "Use real data and APIs only. No mock allowed.",
				},
				{
					Description:        "Never use dummy values",
					TriggerKeywords:    []string{"dummy", "sample", "example"},
					TriggerLogic:       constraint.LogicOR,
					EnforcementAction:  constraint.ActionWarn,
					EnforcementMessage: "Consider using real values instead of dummy/sample data",
				},
			},
		},
		{
			Name:        "best-practices-python",
			Version:     BundleVersion,
			Description: "Python coding best practices and standards",
			Author:      builtinAuthor,
			Created:     builtinCreated,
			Constraints: []Entry{
				{
					Description:        "Avoid global variables",
					TriggerPatterns:    []string{`global\s+\w+`},
					EnforcementAction:  constraint.ActionWarn,
					EnforcementMessage: "Global variables should be avoided. Consider using class attributes or function parameters.",
				},
				{
					Description:        "Use type hints",
					TriggerKeywords:    []string{"def"},
					TriggerLogic:       constraint.LogicNOT,
					ContextFilters:     constraint.ContextFilters{"query_type": {"generate"}},
					EnforcementAction:  constraint.ActionWarn,
					EnforcementMessage: "Consider adding type hints to function signatures",
				},
			},
		},
		{
			Name:        "security-awareness",
			Version:     BundleVersion,
			Description: "Security-sensitive patterns and practices",
			Author:      builtinAuthor,
			Created:     builtinCreated,
			Constraints: []Entry{
				{
					Description:        "Avoid hardcoded credentials",
					TriggerPatterns:    []string{`password\s*=\s*['"]`, `api_key\s*=\s*['"]`, `secret\s*=\s*['"]`},
					EnforcementAction:  constraint.ActionBlock,
					EnforcementMessage: "Never hardcode credentials. Use environment variables or secret management.",
				},
				{
					Description:        "Warn about SQL string concatenation",
					TriggerPatterns:    []string{`execute\s*\(\s*['"].*\+`, `query\s*=\s*['"].*\+`},
					EnforcementAction:  constraint.ActionWarn,
					EnforcementMessage: "SQL string concatenation may lead to SQL injection. Use parameterized queries.",
				},
			},
		},
		{
			Name:        "destructive-actions",
			Version:     BundleVersion,
			Description: "Require confirmation for potentially destructive operations",
			Author:      builtinAuthor,
			Created:     builtinCreated,
			Constraints: []Entry{
				{
					Description:        "Confirm database destructive actions",
					TriggerKeywords:    []string{"delete", "drop", "truncate", "remove"},
					TriggerLogic:       constraint.LogicOR,
					EnforcementAction:  constraint.ActionRequireAction,
					EnforcementMessage: "CAUTION: This action may delete data. Proceed with care.",
				},
				{
					Description:        "Confirm file system destructive actions",
					TriggerPatterns:    []string{`rm\s+-rf`, `shutil\.rmtree`, `os\.remove`},
					EnforcementAction:  constraint.ActionRequireAction,
					EnforcementMessage: "CAUTION: This action will delete files/directories. Ensure you have backups.",
				},
			},
		},
	}
}

// Builtin returns the bundled template called name.
func Builtin(name string) (*Bundle, bool) {
	all := Builtins()
	i := slices.IndexFunc(all, func(b *Bundle) bool { return b.Name == name })
	if i < 0 {
		return nil, false
	}
	return all[i], true
}
