// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"os"

	"github.com/invowk/stepper/internal/provision"
	"github.com/invowk/stepper/pkg/stepfile"

	"github.com/spf13/cobra"
)

func newDockerfileCommand(app *App) *cobra.Command {
	var (
		file   string
		output string
		base   string
	)

	dockerfileCmd := &cobra.Command{
		Use:     "dockerfile",
		Aliases: []string{"containerfile"},
		Short:   "Print the stepfile as a Containerfile",
		Long: `Render the stepfile as an equivalent Containerfile. The base image comes
from --base, then the stepfile's base field, then container.base_image in the
configuration.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sf, err := loadStepfile(file)
			if err != nil {
				return app.fail(err)
			}

			content, err := renderContainerfile(app, sf, base)
			if err != nil {
				return app.fail(err)
			}

			if output == "" || output == "-" {
				fmt.Fprint(app.stdout, content)
				return nil
			}
			if err := os.WriteFile(output, []byte(content), 0o644); err != nil {
				return app.fail(fmt.Errorf("failed to write %s: %w", output, err))
			}
			fmt.Fprintf(app.stdout, "%s Wrote %s\n", SuccessStyle.Render("✓"), output)
			return nil
		},
	}

	dockerfileCmd.Flags().StringVarP(&file, "file", "f", "", "stepfile to render (default: stepfile.cue, .yaml or .toml in the current directory)")
	dockerfileCmd.Flags().StringVarP(&output, "output", "o", "", "write to a file instead of stdout")
	dockerfileCmd.Flags().StringVar(&base, "base", "", "base image (overrides the stepfile)")

	return dockerfileCmd
}

// renderContainerfile renders sf with the configured package commands,
// filling in the base image when the stepfile has none.
func renderContainerfile(app *App, sf *stepfile.Stepfile, base string) (string, error) {
	rendered := *sf
	switch {
	case base != "":
		rendered.Base = base
	case rendered.Base == "":
		rendered.Base = app.cfg.Container.BaseImage
	}
	return provision.RenderContainerfile(&rendered, app.cfg.Commands())
}
