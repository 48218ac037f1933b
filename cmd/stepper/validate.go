// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/invowk/stepper/internal/watch"
	"github.com/invowk/stepper/pkg/stepfile"

	"github.com/spf13/cobra"
)

func newValidateCommand(app *App) *cobra.Command {
	var (
		file     string
		source   string
		watching bool
	)

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the stepfile without running anything",
		Long: `Parse the stepfile and check every step. All problems are reported at
once. Copy sources missing from the source root are listed as warnings, since
an earlier run-command step may still create them.

With --watch the check re-runs whenever the stepfile or a file under the
source root changes, until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !watching {
				if err := checkStepfile(app, file, source); err != nil {
					return app.fail(err)
				}
				return nil
			}
			return watchStepfile(cmd.Context(), app, file, source)
		},
	}

	validateCmd.Flags().StringVarP(&file, "file", "f", "", "stepfile to check (default: stepfile.cue, .yaml or .toml in the current directory)")
	validateCmd.Flags().StringVar(&source, "source", "", "directory copy sources are read from (default: the stepfile's directory)")
	validateCmd.Flags().BoolVarP(&watching, "watch", "w", false, "re-check on every change to the stepfile or source tree")

	return validateCmd
}

// checkStepfile loads the stepfile, warns about missing copy sources and
// prints the result.
func checkStepfile(app *App, file, source string) error {
	sf, err := loadStepfile(file)
	if err != nil {
		return err
	}

	root := source
	if root == "" {
		root = filepath.Dir(sf.FilePath)
	}
	for _, w := range missingCopySources(sf, root) {
		fmt.Fprintf(app.stderr, "%s %s\n", WarningStyle.Render("!"), w)
	}

	fmt.Fprintf(app.stdout, "%s %s is valid (%d steps)\n", SuccessStyle.Render("✓"), sf.FilePath, len(sf.Steps))
	if app.flags.verbose {
		fmt.Fprintln(app.stdout)
		printPlan(app.stdout, sf)
	}
	return nil
}

// watchStepfile checks once, then again after every settled change. Check
// failures are rendered and watching continues.
func watchStepfile(ctx context.Context, app *App, file, source string) error {
	path, err := resolveStepfilePath(file)
	if err != nil {
		return app.fail(err)
	}
	root := source
	if root == "" {
		root = filepath.Dir(path)
	}

	check := func() {
		if err := checkStepfile(app, path, source); err != nil {
			app.renderError(err)
		}
	}

	w, err := watch.New(watch.Config{
		Root:     root,
		Stepfile: path,
		Logger:   app.Logger(),
		OnChange: func(_ context.Context, changed []string) error {
			fmt.Fprintf(app.stdout, "\n%s %s\n", SubtitleStyle.Render("changed:"), strings.Join(changed, ", "))
			check()
			return nil
		},
	})
	if err != nil {
		return app.fail(err)
	}

	check()
	fmt.Fprintf(app.stdout, "%s %s (Ctrl+C to stop)\n", SubtitleStyle.Render("Watching"), root)
	if err := w.Run(ctx); err != nil {
		return app.fail(err)
	}
	return nil
}

// missingCopySources describes copy-files sources that do not exist in root.
func missingCopySources(sf *stepfile.Stepfile, root string) []string {
	var warnings []string
	for i, s := range sf.Steps {
		if s.Kind != stepfile.KindCopy {
			continue
		}
		if _, err := os.Lstat(filepath.Join(root, filepath.FromSlash(s.Source))); err != nil {
			warnings = append(warnings, fmt.Sprintf("step %d (%s): source %q not found in %s", i+1, s.Kind, s.Source, root))
		}
	}
	return warnings
}
