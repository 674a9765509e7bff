package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"grokflow/guardrails/pkg/cli"
	"grokflow/guardrails/pkg/config"
	"grokflow/guardrails/pkg/guard"
	"grokflow/guardrails/pkg/telemetry/logging"
)

var (
	// Global flags
	cfgFile      string
	outputFormat string
	noColor      bool
	verbose      bool
)

var rootCmd = &cobra.Command{
	Use:   "grokflow",
	Short: "Grokflow guardrails - behavioral constraints for AI-assisted development",
	Long: `Grokflow guardrails checks every query against user-defined constraints
before it reaches the model.

Constraints trigger on keywords or regular expressions, combined with OR, AND
or NOT logic and narrowed by context filters. A triggered constraint warns,
blocks the query, or requires explicit confirmation. Feedback on triggers
(true or false positive) drives per-constraint precision, drift and health
analytics, and improvement suggestions.

Configuration is read from ~/.grokflow/config.yaml when present and can be
overridden with GROKFLOW_* environment variables.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	ctx, stop := cli.SetupSignalHandler(context.Background())
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		var exitErr *cli.ExitCodeError
		if errors.As(err, &exitErr) {
			return exitErr.Code
		}
		fmt.Fprintln(os.Stderr, color.RedString("Error:"), err)
		return cli.ExitError
	}
	return cli.ExitOK
}

func init() {
	// Global persistent flags (available to all subcommands)
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (default ~/.grokflow/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "text", "output format (text, json)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")
}

// session is what a command needs to run: the opened service, a printer
// and the logger.
type session struct {
	svc    *guard.Service
	out    *cli.Printer
	logger *slog.Logger
}

func (s *session) Close() error {
	return s.svc.Close()
}

// openSession loads configuration and opens the guardrails service.
func openSession(cmd *cobra.Command) (*session, error) {
	format, err := cli.ParseFormat(outputFormat)
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logCfg := logging.FromConfig(cfg.Telemetry.Logging)
	if verbose {
		logCfg.Level = "debug"
	}
	logger, err := logging.New(logCfg)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	svc, err := guard.Open(cmd.Context(), cfg, guard.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	colored := !noColor && !color.NoColor && format == cli.FormatText
	return &session{
		svc:    svc,
		out:    cli.NewPrinter(cmd.OutOrStdout(), format, colored),
		logger: logger,
	}, nil
}

// runE adapts a session-based command body to cobra. Failures are wrapped
// in a cli.CommandError; exit code requests pass through untouched.
func runE(name string, fn func(ctx context.Context, s *session, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd)
		if err != nil {
			return cli.NewCommandError(name, err)
		}
		defer func() {
			if cerr := s.Close(); cerr != nil {
				s.logger.Warn("failed to close storage", "error", cerr)
			}
		}()

		if err := fn(cmd.Context(), s, args); err != nil {
			var exitErr *cli.ExitCodeError
			if errors.As(err, &exitErr) {
				return err
			}
			return cli.NewCommandError(name, err)
		}
		return nil
	}
}
