package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"grokflow/guardrails/pkg/constraint"
)

var constraintFlags struct {
	keywords []string
	patterns []string
	logic    string
	filters  []string
	action   string
	message  string
	enabled  bool
}

var constraintCmd = &cobra.Command{
	Use:     "constraint",
	Aliases: []string{"constraints", "c"},
	Short:   "Manage behavioral constraints",
	Long: `Create, list and manage behavioral constraints.

Constraints are identified by their id; any unambiguous prefix of at least
one character is accepted wherever an id is expected.`,
}

var constraintAddCmd = &cobra.Command{
	Use:   "add <description>",
	Short: "Add a constraint",
	Long: `Add a constraint that fires on keywords or regular expressions.

Keywords match whole words, case-insensitively. Patterns are regular
expressions matched against the query. With OR logic the constraint fires
when any trigger matches, with AND when all match, and with NOT when none
match.

Examples:
  # Block mock data
  grokflow constraint add "Never use mock data" -k mock,fake,dummy -a block

  # Warn on force pushes to main
  grokflow constraint add "No force push to main" -p 'push\s+(-f|--force)' -k main -l AND

  # Only for JavaScript files
  grokflow constraint add "Use pnpm" -k npm --context file_type=js,ts -m "This repo uses pnpm"`,
	Args: cobra.ExactArgs(1),
	RunE: runE("constraint add", runConstraintAdd),
}

var constraintListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List constraints",
	Args:    cobra.NoArgs,
	RunE: runE("constraint list", func(ctx context.Context, s *session, args []string) error {
		return s.out.Constraints(s.svc.List(constraintFlags.enabled))
	}),
}

var constraintShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a constraint in full",
	Args:  cobra.ExactArgs(1),
	RunE: runE("constraint show", func(ctx context.Context, s *session, args []string) error {
		c, err := s.svc.Get(args[0])
		if err != nil {
			return err
		}
		return s.out.Constraint(c)
	}),
}

var constraintRemoveCmd = &cobra.Command{
	Use:     "remove <id>",
	Aliases: []string{"rm"},
	Short:   "Remove a constraint and its analytics",
	Args:    cobra.ExactArgs(1),
	RunE: runE("constraint remove", func(ctx context.Context, s *session, args []string) error {
		removed, err := s.svc.Remove(ctx, args[0])
		if removed == nil {
			return err
		}
		if perr := s.out.Success(fmt.Sprintf("Constraint %s removed", removed.ID), removed); perr != nil {
			return perr
		}
		return err
	}),
}

var constraintEnableCmd = &cobra.Command{
	Use:   "enable <id>",
	Short: "Enable a constraint",
	Args:  cobra.ExactArgs(1),
	RunE: runE("constraint enable", func(ctx context.Context, s *session, args []string) error {
		if err := s.svc.Enable(ctx, args[0]); err != nil {
			return err
		}
		c, err := s.svc.Get(args[0])
		if err != nil {
			return err
		}
		return s.out.Success(fmt.Sprintf("Constraint %s enabled", c.ID), c)
	}),
}

var constraintDisableCmd = &cobra.Command{
	Use:   "disable <id>",
	Short: "Disable a constraint",
	Args:  cobra.ExactArgs(1),
	RunE: runE("constraint disable", func(ctx context.Context, s *session, args []string) error {
		if err := s.svc.Disable(ctx, args[0]); err != nil {
			return err
		}
		c, err := s.svc.Get(args[0])
		if err != nil {
			return err
		}
		return s.out.Warning(fmt.Sprintf("Constraint %s disabled", c.ID), c)
	}),
}

var constraintStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show constraint system statistics",
	Args:  cobra.NoArgs,
	RunE: runE("constraint stats", func(ctx context.Context, s *session, args []string) error {
		return s.out.Stats(s.svc.Stats())
	}),
}

func init() {
	rootCmd.AddCommand(constraintCmd)
	constraintCmd.AddCommand(constraintAddCmd, constraintListCmd, constraintShowCmd,
		constraintRemoveCmd, constraintEnableCmd, constraintDisableCmd, constraintStatsCmd)

	f := constraintAddCmd.Flags()
	f.StringSliceVarP(&constraintFlags.keywords, "keywords", "k", nil, "trigger keywords (comma separated)")
	f.StringArrayVarP(&constraintFlags.patterns, "pattern", "p", nil, "trigger regular expression (repeatable)")
	f.StringVarP(&constraintFlags.logic, "logic", "l", string(constraint.LogicOR), "trigger logic (OR, AND, NOT)")
	f.StringArrayVar(&constraintFlags.filters, "context", nil, "context filter key=v1,v2 (repeatable)")
	f.StringVarP(&constraintFlags.action, "action", "a", string(constraint.ActionWarn), "enforcement action (warn, block, require_action)")
	f.StringVarP(&constraintFlags.message, "message", "m", "", "message shown when the constraint fires")

	constraintListCmd.Flags().BoolVar(&constraintFlags.enabled, "enabled", false, "list enabled constraints only")
}

func runConstraintAdd(ctx context.Context, s *session, args []string) error {
	filters, err := constraint.ParseFilters(constraintFlags.filters)
	if err != nil {
		return err
	}

	c := &constraint.Constraint{
		Description:        args[0],
		TriggerKeywords:    constraintFlags.keywords,
		TriggerPatterns:    constraintFlags.patterns,
		TriggerLogic:       constraint.Logic(strings.ToUpper(constraintFlags.logic)),
		ContextFilters:     filters,
		EnforcementAction:  constraint.Action(strings.ToLower(constraintFlags.action)),
		EnforcementMessage: constraintFlags.message,
		Enabled:            true,
	}

	id, err := s.svc.Add(ctx, c)
	if err != nil {
		return err
	}
	added, err := s.svc.Get(id)
	if err != nil {
		return err
	}

	if s.out.JSON() {
		return s.out.Constraint(added)
	}
	if err := s.out.Success("Constraint created successfully!", added); err != nil {
		return err
	}
	return s.out.Constraint(added)
}
