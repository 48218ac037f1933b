// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/invowk/stepper/pkg/stepfile"

	"github.com/spf13/cobra"
)

func newInitCommand(app *App) *cobra.Command {
	var (
		force  bool
		format string
	)

	initCmd := &cobra.Command{
		Use:   "init [file]",
		Short: "Create a stepfile in the current directory",
		Long: `Create a stepfile for a Python project whose dependency manifest is
src/requirements.txt and whose installable package is rooted at src.

The format follows the file extension when a file name is given, otherwise
--format.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filename := "stepfile." + format
			if len(args) > 0 {
				filename = args[0]
			}
			return writeStepfile(app, filename, force)
		},
	}

	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing stepfile")
	initCmd.Flags().StringVar(&format, "format", string(stepfile.FormatCUE), "stepfile format: cue, yaml or toml")

	return initCmd
}

func writeStepfile(app *App, filename string, force bool) error {
	format, err := stepfile.FormatFromPath(filename)
	if err != nil {
		return app.fail(err)
	}

	if _, err := os.Stat(filename); err == nil && !force {
		return app.fail(fmt.Errorf("file '%s' already exists. Use --force to overwrite", filename))
	}

	content, err := stepfile.Encode(stepfile.Default(), format)
	if err != nil {
		return app.fail(err)
	}
	if err := os.WriteFile(filename, content, 0o644); err != nil {
		return app.fail(fmt.Errorf("failed to write file: %w", err))
	}

	absPath, _ := filepath.Abs(filename)
	fmt.Fprintf(app.stdout, "%s Created %s\n", SuccessStyle.Render("✓"), absPath)
	fmt.Fprintln(app.stdout)
	fmt.Fprintln(app.stdout, SubtitleStyle.Render("Next steps:"))
	fmt.Fprintln(app.stdout, "  1. Adjust the steps for your project")
	fmt.Fprintln(app.stdout, "  2. Run 'stepper validate' to check it")
	fmt.Fprintln(app.stdout, "  3. Run 'stepper run' or 'stepper build' to provision")
	return nil
}
