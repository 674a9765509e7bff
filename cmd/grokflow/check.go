package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"grokflow/guardrails/pkg/cli"
	"grokflow/guardrails/pkg/constraint"
)

var checkFlags struct {
	context []string
}

var checkCmd = &cobra.Command{
	Use:   "check [query]",
	Short: "Check a query against the enabled constraints",
	Long: `Evaluate a query against every enabled constraint and print the ones
that fire. The query is read from standard input when no argument is given.

The command exits with status 2 when a block constraint fires, so it can be
used as a shell hook in front of the model.

Examples:
  # Check a query
  grokflow check "write a migration that drops the users table"

  # Provide context for context filters
  grokflow check "install lodash with npm" --context file_type=js

  # From a pipe
  echo "add some fake data" | grokflow check`,
	Args: cobra.MaximumNArgs(1),
	RunE: runE("check", runCheck),
}

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().StringArrayVar(&checkFlags.context, "context", nil, "evaluation context key=value (repeatable)")
}

func runCheck(ctx context.Context, s *session, args []string) error {
	evalCtx, err := constraint.ParseContext(checkFlags.context)
	if err != nil {
		return err
	}

	var query string
	if len(args) == 1 {
		query = args[0]
	} else {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("failed to read query from stdin: %w", err)
		}
		query = strings.TrimSpace(string(data))
	}

	result := s.svc.Check(ctx, query, evalCtx)
	if err := s.out.Result(result); err != nil {
		return err
	}

	if result.Blocked {
		return &cli.ExitCodeError{
			Code:   cli.ExitBlocked,
			Reason: fmt.Sprintf("blocked by %s", strings.Join(result.IDs(), ", ")),
		}
	}
	return nil
}
