package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"grokflow/guardrails/pkg/template"
)

var templateFlags struct {
	file   string
	format string
}

var templateCmd = &cobra.Command{
	Use:     "template",
	Aliases: []string{"templates"},
	Short:   "Share constraints as templates",
	Long: `List, import and export constraint templates.

Templates are JSON or YAML files in the templates directory
(~/.grokflow/templates by default). The built-in templates are installed
there on first use.`,
}

var templateListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List available templates",
	Args:    cobra.NoArgs,
	RunE: runE("template list", func(ctx context.Context, s *session, args []string) error {
		summaries, err := s.svc.Templates().List()
		if err != nil {
			return err
		}
		return s.out.Templates(summaries)
	}),
}

var templateShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show the constraints of a template",
	Args:  cobra.ExactArgs(1),
	RunE: runE("template show", func(ctx context.Context, s *session, args []string) error {
		b, err := s.svc.Templates().Get(args[0])
		if err != nil {
			return err
		}
		return s.out.Bundle(b)
	}),
}

var templateImportCmd = &cobra.Command{
	Use:   "import <name|file>",
	Short: "Import a template's constraints",
	Long: `Import every constraint of a template with fresh ids. The argument is
a template name, or a path to a .json, .yaml or .yml file.

Examples:
  grokflow template import no-mock-data
  grokflow template import ./team-rules.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runE("template import", func(ctx context.Context, s *session, args []string) error {
		if isTemplateFile(args[0]) {
			b, ids, err := s.svc.Templates().ImportFile(ctx, args[0])
			if err != nil {
				return err
			}
			return s.out.Imported(b.Name, ids)
		}
		ids, err := s.svc.Templates().ImportTemplate(ctx, args[0])
		if err != nil {
			return err
		}
		return s.out.Imported(args[0], ids)
	}),
}

var templateExportCmd = &cobra.Command{
	Use:   "export [id...]",
	Short: "Export constraints as a template",
	Long: `Export the given constraints, or all of them, as a template. Without
--file the template is written to standard output.

Examples:
  grokflow template export --file team-rules.yaml
  grokflow template export 1a2b 3c4d --format yaml`,
	RunE: runE("template export", runTemplateExport),
}

func init() {
	rootCmd.AddCommand(templateCmd)
	templateCmd.AddCommand(templateListCmd, templateShowCmd, templateImportCmd, templateExportCmd)

	templateExportCmd.Flags().StringVarP(&templateFlags.file, "file", "f", "", "output file (.json, .yaml or .yml)")
	templateExportCmd.Flags().StringVar(&templateFlags.format, "format", string(template.FormatJSON), "encoding when writing to stdout (json, yaml)")
}

func runTemplateExport(ctx context.Context, s *session, args []string) error {
	if templateFlags.file != "" {
		b, err := s.svc.Templates().ExportFile(templateFlags.file, args...)
		if err != nil {
			return err
		}
		return s.out.Success(fmt.Sprintf("Exported %d constraints to %s", len(b.Constraints), templateFlags.file), b)
	}

	b, err := s.svc.Export(args...)
	if err != nil {
		return err
	}
	format := template.Format(strings.ToLower(templateFlags.format))
	if format != template.FormatJSON && format != template.FormatYAML {
		return fmt.Errorf("unknown template format %q (want json or yaml)", templateFlags.format)
	}
	data, err := template.Encode(b, format)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(data)
	return err
}

func isTemplateFile(arg string) bool {
	if strings.ContainsAny(arg, `/\`) {
		return true
	}
	_, err := template.FormatFor(arg)
	return err == nil
}
