// Package cli implements the templatex command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Version is the semantic version (set via -ldflags).
var Version = "dev"

// app holds state shared by all commands of one invocation.
type app struct {
	v       *viper.Viper
	cfgFile string
	verbose bool

	stdout io.Writer
	stderr io.Writer
	logger *slog.Logger
}

// NewRootCommand builds the command tree writing to the given streams.
func NewRootCommand(stdout, stderr io.Writer) *cobra.Command {
	a := &app{
		v:      viper.New(),
		stdout: stdout,
		stderr: stderr,
	}

	root := &cobra.Command{
		Use:   "templatex",
		Short: "Pack, sign and extract template archives",
		Long: `templatex packs a directory or file into a single .mstx archive,
optionally signs it with an X.509 certificate, and extracts it again
after checking that nothing was tampered with.

Examples:
  templatex pack ./templates -o templates.mstx
  templatex sign ./templates --thumbprint 3F2A...
  templatex verify templates.mstx
  templatex extract templates.mstx ./out`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			a.initLogger()
			return a.loadConfig(cmd)
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (default is $XDG_CONFIG_HOME/templatex/config.yaml)")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")
	flags.String(flagWorkDir, "", "directory for archives without an explicit output path")
	flags.String(flagUserStore, "", "user certificate store directory")
	flags.String(flagMachineStore, "", "machine certificate store directory")
	flags.String(flagCompression, "", "entry compression: zstd or none")

	root.AddCommand(
		a.newPackCommand(),
		a.newSignCommand(),
		a.newExtractCommand(),
		a.newVerifyCommand(),
		a.newInspectCommand(),
		a.newCertCommand(),
	)
	return root
}

// initLogger installs a charm log handler behind slog.
func (a *app) initLogger() {
	level := log.InfoLevel
	if a.verbose {
		level = log.DebugLevel
	}
	handler := log.NewWithOptions(a.stderr, log.Options{
		Level:           level,
		ReportTimestamp: a.verbose,
	})
	a.logger = slog.New(handler)
}

// Execute runs the command line and returns the process exit code.
func Execute(ctx context.Context, args []string) int {
	root := NewRootCommand(os.Stdout, os.Stderr)
	root.SetArgs(args)
	return exitCode(root.ExecuteContext(ctx), os.Stderr)
}

func exitCode(err error, stderr io.Writer) int {
	if err == nil {
		return 0
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		if exitErr.Err != nil {
			fmt.Fprintln(stderr, "Error:", exitErr.Err)
		}
		return exitErr.Code
	}
	fmt.Fprintln(stderr, "Error:", err)
	return 1
}
