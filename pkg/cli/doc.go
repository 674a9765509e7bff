/*
Package cli provides the rendering and process helpers of the grokflow
command.

Output:

Every command result is printed through a Printer, either as colored text
for terminals or as indented JSON for scripts:

	p := cli.NewPrinter(os.Stdout, cli.FormatText, true)
	if err := p.Result(result); err != nil {
		return err
	}

Colors come from github.com/fatih/color and are disabled when the printer
is created with color set to false, for example under --no-color or when
stdout is not a terminal.

Errors and exit codes:

Commands wrap failures in CommandError. "grokflow check" returns an
ExitCodeError with ExitBlocked when a block constraint fires so that shell
hooks can refuse the prompt.

Signal Handling:

	ctx, stop := cli.SetupSignalHandler(context.Background())
	defer stop()
*/
package cli
