// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime/debug"

	"github.com/invowk/stepper/internal/config"
	"github.com/invowk/stepper/internal/issue"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"
)

// NewRootCommand creates the stepper command tree bound to app.
func NewRootCommand(app *App) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "stepper",
		Short: "Provision a build environment from an ordered list of steps",
		Long: TitleStyle.Render("stepper") + SubtitleStyle.Render(" - Provision a build environment from an ordered list of steps") + `

stepper reads a stepfile (CUE, YAML or TOML) describing an ordered recipe:
install system packages, install a package manager, set the working
directory and environment, copy files and run commands. Steps run one at a
time in declaration order and the first failure stops the run.

The same stepfile can be rendered as a Containerfile and built into an image
with Docker or Podman.

` + SubtitleStyle.Render("Examples:") + `
  stepper init                  Create a stepfile for a Python project
  stepper validate              Check the stepfile without running anything
  stepper run --root ./rootfs   Provision into ./rootfs instead of /
  stepper dockerfile            Print the equivalent Containerfile
  stepper build -t app:dev      Build an image with Docker or Podman
  stepper config show           Show current configuration`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.prepare(cmd.Context())
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.BoolVarP(&app.flags.verbose, "verbose", "v", false, "enable verbose output")
	flags.StringVar(&app.flags.configPath, "config", "", "config file (default is "+defaultConfigHint()+")")
	flags.StringVar(&app.flags.logLevel, "log-level", "", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(
		newRunCommand(app),
		newValidateCommand(app),
		newDockerfileCommand(app),
		newBuildCommand(app),
		newInitCommand(app),
		newConfigCommand(app),
	)
	rootCmd.SetOut(app.stdout)
	rootCmd.SetErr(app.stderr)

	return rootCmd
}

func defaultConfigHint() string {
	dir, err := config.ConfigDir()
	if err != nil {
		return "$HOME/.config/stepper/config.cue"
	}
	return dir + string(os.PathSeparator) + config.ConfigFileName + "." + config.ConfigFileExt
}

// getVersionString returns a formatted version string for display.
func getVersionString() string {
	if Version != "dev" {
		return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return "dev (built from source)"
}

// Execute runs the root command. It is called by main.main().
func Execute() {
	app, err := NewApp(Dependencies{})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if err := fang.Execute(
		context.Background(),
		NewRootCommand(app),
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt),
		fang.WithErrorHandler(errorHandler),
	); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			os.Exit(int(exitErr.Code))
		}
		os.Exit(1)
	}
}

// errorHandler skips errors the command already rendered.
func errorHandler(w io.Writer, styles fang.Styles, err error) {
	var exitErr *ExitError
	if errors.As(err, &exitErr) && exitErr.Err == nil {
		return
	}
	fang.DefaultErrorHandler(w, styles, err)
}

// formatErrorForDisplay formats an error for user display.
// ActionableErrors use their own Format, which shows the chain in verbose mode.
func formatErrorForDisplay(err error, verboseMode bool) string {
	var ae *issue.ActionableError
	if errors.As(err, &ae) {
		return ae.Format(verboseMode)
	}
	return err.Error()
}
