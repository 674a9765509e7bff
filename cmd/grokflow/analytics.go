package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"grokflow/guardrails/pkg/cli"
	"grokflow/guardrails/pkg/constraint"
)

var mineFlags struct {
	history string
	add     bool
}

var feedbackCmd = &cobra.Command{
	Use:   "feedback <id> <tp|fp>",
	Short: "Label the latest trigger of a constraint",
	Long: `Label the most recent unlabeled trigger of a constraint as a true
positive (tp: the constraint was right to fire) or a false positive (fp).

Feedback drives precision, drift and health.`,
	Args: cobra.ExactArgs(2),
	RunE: runE("feedback", func(ctx context.Context, s *session, args []string) error {
		label, err := constraint.ParseFeedback(args[1])
		if err != nil {
			return err
		}
		if err := s.svc.Feedback(ctx, args[0], label); err != nil {
			return err
		}
		report, err := s.svc.Health(args[0])
		if err != nil {
			return err
		}
		return s.out.Success(fmt.Sprintf("Recorded %s for %s", label, report.ConstraintID), report)
	}),
}

var healthCmd = &cobra.Command{
	Use:   "health [id]",
	Short: "Show constraint health",
	Long: `Show precision, false positive rate, effectiveness and drift of a
constraint together with recommendations. Without an id the health
dashboard of all constraints is shown.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runE("constraint health", func(ctx context.Context, s *session, args []string) error {
		if len(args) == 0 {
			return s.out.Dashboard(s.svc.Dashboard())
		}
		report, err := s.svc.Health(args[0])
		if err != nil {
			return err
		}
		return s.out.Health(report)
	}),
}

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Show the system health dashboard",
	Args:  cobra.NoArgs,
	RunE: runE("constraint dashboard", func(ctx context.Context, s *session, args []string) error {
		return s.out.Dashboard(s.svc.Dashboard())
	}),
}

var suggestCmd = &cobra.Command{
	Use:   "suggest [id]",
	Short: "Suggest constraint improvements",
	Long: `Suggest improvements for a constraint, ranked by confidence. Without an
id, suggestions for every constraint are shown.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runE("constraint suggest", runSuggest),
}

var mineCmd = &cobra.Command{
	Use:   "mine",
	Short: "Discover new constraints from query history",
	Long: `Find frequent terms in a query history that no constraint covers yet
and propose them as new constraints. The history is one query per line,
read from --history or standard input.

Examples:
  grokflow constraint mine --history ~/.grokflow/history.txt
  grokflow constraint mine --history queries.txt --add`,
	Args: cobra.NoArgs,
	RunE: runE("constraint mine", runMine),
}

func init() {
	rootCmd.AddCommand(feedbackCmd)
	constraintCmd.AddCommand(healthCmd, dashboardCmd, suggestCmd, mineCmd)

	mineCmd.Flags().StringVar(&mineFlags.history, "history", "", "query history file (default stdin)")
	mineCmd.Flags().BoolVar(&mineFlags.add, "add", false, "add every candidate as a warn constraint")
}

func runSuggest(ctx context.Context, s *session, args []string) error {
	ids := args
	if len(ids) == 0 {
		for _, c := range s.svc.List(false) {
			ids = append(ids, c.ID)
		}
	}

	var groups []cli.ConstraintSuggestions
	for _, id := range ids {
		c, err := s.svc.Get(id)
		if err != nil {
			return err
		}
		suggestions, err := s.svc.Suggest(c.ID)
		if err != nil {
			return err
		}
		if len(suggestions) == 0 {
			continue
		}
		groups = append(groups, cli.ConstraintSuggestions{
			ConstraintID: c.ID,
			Description:  c.Description,
			Suggestions:  suggestions,
		})
	}
	return s.out.Suggestions(groups)
}

func runMine(ctx context.Context, s *session, args []string) error {
	var r io.Reader = os.Stdin
	if mineFlags.history != "" {
		f, err := os.Open(mineFlags.history)
		if err != nil {
			return fmt.Errorf("failed to open history: %w", err)
		}
		defer f.Close()
		r = f
	}

	history, err := readLines(r)
	if err != nil {
		return err
	}

	candidates := s.svc.Mine(history)
	if err := s.out.Candidates(candidates); err != nil {
		return err
	}
	if !mineFlags.add || len(candidates) == 0 {
		return nil
	}

	for _, cand := range candidates {
		id, err := s.svc.Add(ctx, cand.Constraint())
		if err != nil {
			return fmt.Errorf("failed to add candidate %q: %w", cand.Keyword, err)
		}
		s.logger.Info("added mined constraint", "id", id, "keyword", cand.Keyword)
	}
	if s.out.JSON() {
		return nil
	}
	return s.out.Success(fmt.Sprintf("Added %d constraints", len(candidates)), nil)
}

func readLines(r io.Reader) ([]string, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	return lines, nil
}
