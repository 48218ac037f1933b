// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/invowk/stepper/internal/container"
	"github.com/invowk/stepper/internal/issue"
	"github.com/invowk/stepper/internal/provision"

	"github.com/spf13/cobra"
)

var invalidRepoChars = regexp.MustCompile(`[^a-z0-9._-]+`)

// buildOptions are the flags of `stepper build`.
type buildOptions struct {
	file      string
	source    string
	tag       string
	engine    string
	base      string
	noCache   bool
	buildArgs map[string]string
}

func newBuildCommand(app *App) *cobra.Command {
	opts := &buildOptions{}

	buildCmd := &cobra.Command{
		Use:   "build",
		Short: "Build a container image from the stepfile",
		Long: `Render the stepfile as a Containerfile and build it with Docker or Podman.
The build context is the stepfile's directory unless --source is given.`,
		Example: `  stepper build -t myapp:dev
  stepper build --engine docker --no-cache`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return buildImage(cmd.Context(), app, opts)
		},
	}

	flags := buildCmd.Flags()
	flags.StringVarP(&opts.file, "file", "f", "", "stepfile to build (default: stepfile.cue, .yaml or .toml in the current directory)")
	flags.StringVar(&opts.source, "source", "", "build context directory (default: the stepfile's directory)")
	flags.StringVarP(&opts.tag, "tag", "t", "", "image tag (default: <context dir name>:latest)")
	flags.StringVar(&opts.engine, "engine", "", "container engine: auto, podman or docker (default from config)")
	flags.StringVar(&opts.base, "base", "", "base image (overrides the stepfile)")
	flags.BoolVar(&opts.noCache, "no-cache", false, "do not use the build cache")
	flags.StringToStringVar(&opts.buildArgs, "build-arg", nil, "build-time variable (KEY=VALUE)")

	return buildCmd
}

func buildImage(ctx context.Context, app *App, opts *buildOptions) error {
	sf, err := loadStepfile(opts.file)
	if err != nil {
		return app.fail(err)
	}

	content, err := renderContainerfile(app, sf, opts.base)
	if err != nil {
		return app.fail(err)
	}

	contextDir := opts.source
	if contextDir == "" {
		contextDir = filepath.Dir(sf.FilePath)
	}
	contextDir, err = filepath.Abs(contextDir)
	if err != nil {
		return app.fail(err)
	}

	// Container engines only read .dockerignore.
	if name := provision.IgnoreFileFor(contextDir); name != "" && name != ".dockerignore" {
		app.logger.Warn(name+" is not read by container engines; only .dockerignore filters the build context", "context", contextDir)
	}

	tag := opts.tag
	if tag == "" {
		tag = defaultTag(contextDir)
	}

	engineType := container.EngineType(opts.engine)
	if engineType == "" {
		engineType = container.EngineType(app.cfg.Container.Engine)
	}
	engine, err := app.Engines(engineType)
	if err != nil {
		return app.fail(issue.NewErrorContext().
			WithOperation("find container engine").
			WithResource(string(engineType)).
			WithSuggestion("Install Podman or Docker and make sure it is on PATH").
			WithSuggestion("Set container.engine in the configuration or pass --engine").
			WithIssue(issue.ContainerEngineNotFoundId).
			Wrap(err).
			BuildError())
	}

	containerfile, err := writeTempContainerfile(content)
	if err != nil {
		return app.fail(err)
	}
	defer os.Remove(containerfile)

	app.logger.Info("building image", "engine", engine.Name(), "tag", tag, "context", contextDir)
	err = engine.Build(ctx, container.BuildOptions{
		ContextDir:    contextDir,
		Containerfile: containerfile,
		Tag:           tag,
		BuildArgs:     opts.buildArgs,
		NoCache:       opts.noCache,
		Stdout:        app.stdout,
		Stderr:        app.stderr,
	})
	if err != nil {
		return app.fail(err)
	}

	fmt.Fprintf(app.stdout, "%s Built %s with %s\n", SuccessStyle.Render("✓"), CmdStyle.Render(tag), engine.Name())
	return nil
}

// defaultTag derives "<dir>:latest" from the context directory name, folded
// to the characters an image repository allows.
func defaultTag(contextDir string) string {
	name := invalidRepoChars.ReplaceAllString(strings.ToLower(filepath.Base(contextDir)), "-")
	name = strings.Trim(name, ".-_")
	if name == "" {
		name = "stepper"
	}
	return name + ":latest"
}

func writeTempContainerfile(content string) (string, error) {
	f, err := os.CreateTemp("", "stepper-*.Containerfile")
	if err != nil {
		return "", fmt.Errorf("failed to create Containerfile: %w", err)
	}
	if _, err := f.WriteString(content); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to write Containerfile: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to write Containerfile: %w", err)
	}
	return f.Name(), nil
}
