// Package cli implements the corrode command line.
package cli

import (
	"context"
	"io"
	"os"

	"github.com/spf13/cobra"

	apperrors "github.com/flynn-ai/corrode/internal/errors"
)

// Exit codes.
const (
	ExitSuccess       = 0
	ExitGenericError  = 1
	ExitConfigInvalid = 2
)

// GlobalFlags holds flags shared by every command.
type GlobalFlags struct {
	ConfigPath string
	Dir        string
	LogLevel   string
	LogFile    string
}

// App carries the state of one invocation.
type App struct {
	flags  GlobalFlags
	stdout io.Writer
	stderr io.Writer
}

// NewRootCommand builds the command tree writing to stdout and stderr.
func NewRootCommand(stdout, stderr io.Writer) *cobra.Command {
	app := &App{stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:   "corrode",
		Short: "Code-assistance tool server for AI clients",
		Long: "corrode serves Rust code-assistance tools over the Model Context Protocol: crate lookup, " +
			"cargo check, signature extraction, file editing with unified diffs and a persistent shell session.\n\n" +
			"Without a subcommand it serves over stdio.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.runServe(cmd.Context(), "")
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&app.flags.ConfigPath, "config", "corrode.toml", "config file path")
	pf.StringVar(&app.flags.Dir, "dir", "", "initial session directory (default: config shell.work_dir or the current directory)")
	pf.StringVar(&app.flags.LogLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&app.flags.LogFile, "log-file", "", "write logs to a rotated file instead of stderr")

	root.AddCommand(
		app.serveCmd(),
		app.toolsCmd(),
		app.schemaCmd(),
		app.historyCmd(),
		app.versionCmd(),
	)
	return root
}

// Execute runs the command line with os.Args.
func Execute(ctx context.Context) error {
	return NewRootCommand(os.Stdout, os.Stderr).ExecuteContext(ctx)
}

// ExitCode maps an error returned by Execute to a process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitSuccess
	case apperrors.HasCode(err, apperrors.CodeConfigInvalid):
		return ExitConfigInvalid
	default:
		return ExitGenericError
	}
}
