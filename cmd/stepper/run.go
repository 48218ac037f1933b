// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/invowk/stepper/internal/provision"
	"github.com/invowk/stepper/internal/runtime"
	"github.com/invowk/stepper/pkg/stepfile"

	"github.com/spf13/cobra"
)

// runOptions are the flags of `stepper run`.
type runOptions struct {
	file     string
	source   string
	root     string
	runner   string
	envFiles []string
	envVars  []string
	envOut   string
	noIgnore bool
	trace    bool
	dryRun   bool
}

func newRunCommand(app *App) *cobra.Command {
	opts := &runOptions{}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the stepfile against the target filesystem",
		Long: `Run every step of the stepfile in declaration order.

Steps run one at a time. The first failing step stops the run; earlier
effects are left in place and nothing is retried. Copy sources are read from
the directory containing the stepfile unless --source is given, and absolute
target paths are placed under --root (default "/").`,
		Example: `  stepper run
  stepper run --root ./rootfs --runner virtual
  stepper run --env-file .env --env-out build.env`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStepfile(cmd.Context(), app, opts)
		},
	}

	flags := runCmd.Flags()
	flags.StringVarP(&opts.file, "file", "f", "", "stepfile to run (default: stepfile.cue, .yaml or .toml in the current directory)")
	flags.StringVar(&opts.source, "source", "", "directory copy sources are read from (default: the stepfile's directory)")
	flags.StringVar(&opts.root, "root", "/", "host directory that stands for / of the target")
	flags.StringVar(&opts.runner, "runner", "", "command runner: native or virtual (default from config)")
	flags.StringArrayVar(&opts.envFiles, "env-file", nil, "load initial environment from a dotenv file (suffix with ? to make it optional)")
	flags.StringArrayVarP(&opts.envVars, "env", "e", nil, "set an initial environment variable (KEY=VALUE)")
	flags.StringVar(&opts.envOut, "env-out", "", "write the final environment to a dotenv file")
	flags.BoolVar(&opts.noIgnore, "no-ignore", false, "do not read .stepperignore or .dockerignore from the source root")
	flags.BoolVar(&opts.trace, "trace", false, "log a span for the run and each step")
	flags.BoolVar(&opts.dryRun, "dry-run", false, "print the plan without running anything")

	return runCmd
}

func runStepfile(ctx context.Context, app *App, opts *runOptions) error {
	sf, err := loadStepfile(opts.file)
	if err != nil {
		return app.fail(err)
	}

	if opts.dryRun {
		printPlan(app.stdout, sf)
		return nil
	}

	popts, shutdown, err := provisionOptions(app, sf, opts)
	if err != nil {
		return app.fail(err)
	}
	defer shutdown()

	result, err := provision.New(popts...).Run(ctx, sf.Steps)
	if err != nil {
		if result != nil && result.FailedStep >= 0 {
			failed := sf.Steps[result.FailedStep]
			fmt.Fprintf(app.stderr, "%s step %d of %d: %s (%d completed)\n",
				ErrorStyle.Render("✗"), result.FailedStep+1, len(sf.Steps), failed.Describe(), result.Completed)
		}
		return app.fail(err)
	}

	if opts.envOut != "" {
		if err := runtime.WriteEnvFile(opts.envOut, result.Env); err != nil {
			return app.fail(err)
		}
	}

	fmt.Fprintf(app.stdout, "%s Provisioned %d step(s)\n", SuccessStyle.Render("✓"), result.Completed)
	fmt.Fprintf(app.stdout, "%s %s\n", SubtitleStyle.Render("Working directory:"), result.WorkDir)
	return nil
}

// provisionOptions translates flags and configuration into Provisioner
// options. The returned function flushes tracing and must always be called.
func provisionOptions(app *App, sf *stepfile.Stepfile, opts *runOptions) ([]provision.Option, func(), error) {
	runnerName := opts.runner
	if runnerName == "" {
		runnerName = string(app.cfg.DefaultRunner)
	}
	runner, err := runtime.NewRegistry().Get(runtime.Name(runnerName))
	if err != nil {
		return nil, func() {}, err
	}

	env, err := initialEnv(opts.envFiles, opts.envVars)
	if err != nil {
		return nil, func() {}, err
	}

	source := opts.source
	if source == "" {
		source = filepath.Dir(sf.FilePath)
	}

	cmds := app.cfg.Commands()
	popts := []provision.Option{
		provision.WithRunner(runner),
		provision.WithPackageSource(provision.NewAptSource(cmds)),
		provision.WithToolInstaller(provision.NewPipInstaller(cmds)),
		provision.WithLogger(app.logger),
		provision.WithStdout(app.stdout),
		provision.WithStderr(app.stderr),
		provision.WithSourceRoot(source),
		provision.WithDestRoot(opts.root),
		provision.WithWorkDir(sf.InitialWorkDir()),
		provision.WithEnv(env),
	}
	if opts.noIgnore {
		popts = append(popts, provision.WithIgnoreFiles())
	}

	shutdown := func() {}
	if opts.trace {
		provider := newTraceProvider(app.logger)
		popts = append(popts, provision.WithTracer(provider.Tracer(tracerName)))
		shutdown = func() {
			_ = provider.Shutdown(context.Background())
		}
	}

	app.logger.Debug("provisioning", "stepfile", sf.FilePath, "runner", runner.Name(), "source", source, "root", opts.root)
	return popts, shutdown, nil
}

// initialEnv merges dotenv files in order, then KEY=VALUE pairs.
func initialEnv(files, pairs []string) (map[string]string, error) {
	env := make(map[string]string)
	for _, path := range files {
		if err := runtime.LoadEnvFile(env, path); err != nil {
			return nil, err
		}
	}
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --env value %q: expected KEY=VALUE", pair)
		}
		env[name] = value
	}
	return env, nil
}
