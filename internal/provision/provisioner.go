// SPDX-License-Identifier: MPL-2.0

package provision

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sync/atomic"

	"github.com/invowk/stepper/internal/runtime"
	"github.com/invowk/stepper/pkg/stepfile"

	"github.com/charmbracelet/log"
	"go.opentelemetry.io/otel/trace"
)

type (
	// Provisioner runs an ordered list of steps once. Steps run strictly in
	// declaration order; the first failure stops the run.
	Provisioner struct {
		state atomic.Int32

		runner      runtime.Runner
		packages    PackageSource
		tools       ToolInstaller
		handlers    map[stepfile.Kind]StepHandler
		logger      *log.Logger
		tracer      trace.Tracer
		stdout      io.Writer
		stderr      io.Writer
		sourceRoot  string
		destRoot    string
		workDir     string
		env         map[string]string
		ignoreFiles []string

		rootedInstalls bool
	}

	// Option configures a Provisioner.
	Option func(*Provisioner)

	// Result describes a finished run.
	Result struct {
		// State is StateSucceeded or StateFailed.
		State State
		// FailedStep is the index of the step that failed, or -1.
		FailedStep int
		// Completed is the number of steps that finished successfully.
		Completed int
		// WorkDir is the working directory after the last completed step.
		WorkDir string
		// Env is the environment after the last completed step.
		Env map[string]string
	}
)

// New creates a Provisioner. Without options it runs commands with the
// native runner, installs packages with apt and pip, copies from the current
// directory and treats the host "/" as the target root.
func New(opts ...Option) *Provisioner {
	cmds := DefaultCommands()
	p := &Provisioner{
		runner:      runtime.NewNativeRunner(),
		packages:    NewAptSource(cmds),
		tools:       NewPipInstaller(cmds),
		logger:      log.New(io.Discard),
		stdout:      os.Stdout,
		stderr:      os.Stderr,
		sourceRoot:  ".",
		destRoot:    "/",
		workDir:     stepfile.DefaultWorkDir,
		ignoreFiles: DefaultIgnoreFiles,
	}
	p.handlers = p.defaultHandlers()

	for _, opt := range opts {
		opt(p)
	}
	return p
}

// WithRunner sets the runner used for run-command steps and package installs.
func WithRunner(r runtime.Runner) Option {
	return func(p *Provisioner) {
		p.runner = r
	}
}

// WithPackageSource sets the OS package source.
func WithPackageSource(src PackageSource) Option {
	return func(p *Provisioner) {
		p.packages = src
	}
}

// WithToolInstaller sets the package manager installer.
func WithToolInstaller(ti ToolInstaller) Option {
	return func(p *Provisioner) {
		p.tools = ti
	}
}

// WithHandler replaces the handler for one step kind.
func WithHandler(kind stepfile.Kind, h StepHandler) Option {
	return func(p *Provisioner) {
		p.handlers[kind] = h
	}
}

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) Option {
	return func(p *Provisioner) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithTracer records a span for the run and one per step.
func WithTracer(tracer trace.Tracer) Option {
	return func(p *Provisioner) {
		p.tracer = tracer
	}
}

// WithStdout sets where command output goes.
func WithStdout(w io.Writer) Option {
	return func(p *Provisioner) {
		p.stdout = w
	}
}

// WithStderr sets where command errors go.
func WithStderr(w io.Writer) Option {
	return func(p *Provisioner) {
		p.stderr = w
	}
}

// WithSourceRoot sets the host directory copy sources are read from.
func WithSourceRoot(dir string) Option {
	return func(p *Provisioner) {
		p.sourceRoot = dir
	}
}

// WithDestRoot sets the host directory that stands for "/" of the target.
func WithDestRoot(dir string) Option {
	return func(p *Provisioner) {
		p.destRoot = dir
	}
}

// WithWorkDir sets the initial working directory inside the target.
func WithWorkDir(dir string) Option {
	return func(p *Provisioner) {
		p.workDir = dir
	}
}

// WithEnv seeds the build environment.
func WithEnv(env map[string]string) Option {
	return func(p *Provisioner) {
		p.env = env
	}
}

// WithIgnoreFiles sets the ignore file names looked up in the source root.
// An empty list disables ignore files.
func WithIgnoreFiles(names ...string) Option {
	return func(p *Provisioner) {
		p.ignoreFiles = slices.Clone(names)
	}
}

// WithRootedInstalls allows package steps when the destination root is not
// the host "/". Use it only when the package source and tool installer write
// into the destination root themselves, for example through a chroot in
// their commands.
func WithRootedInstalls() Option {
	return func(p *Provisioner) {
		p.rootedInstalls = true
	}
}

// State returns the current state.
func (p *Provisioner) State() State {
	return State(p.state.Load())
}

// Run validates every step and then executes them in order. It returns a
// *stepfile.ValidationError without running anything if a step is
// malformed, and a *ProvisionError identifying the step if one fails.
// A Provisioner runs once; later calls return ErrAlreadyRun.
func (p *Provisioner) Run(ctx context.Context, steps []stepfile.Step) (*Result, error) {
	if !p.state.CompareAndSwap(int32(StatePending), int32(StateRunning)) {
		return nil, fmt.Errorf("%w (state %s)", ErrAlreadyRun, p.State())
	}

	steps = slices.Clone(steps)
	bc := NewBuildContext(p.sourceRoot, p.destRoot, p.workDir, p.env)
	result := &Result{FailedStep: -1}

	op := startOperation(ctx, p.tracer, steps)
	err := p.run(op, bc, steps, result)

	result.State = StateSucceeded
	if err != nil {
		result.State = StateFailed
	}
	result.WorkDir = bc.WorkDir
	result.Env = bc.Snapshot()
	p.state.Store(int32(result.State))
	op.end(result.State, err)

	if err != nil {
		p.logger.Error("provisioning failed", "completed", result.Completed, "err", err)
		return result, err
	}
	p.logger.Info("provisioning complete", "steps", result.Completed, "workdir", result.WorkDir)
	return result, nil
}

func (p *Provisioner) run(op *operation, bc *BuildContext, steps []stepfile.Step, result *Result) error {
	if err := stepfile.ValidateSteps(steps); err != nil {
		return err
	}
	if !p.rootedInstalls {
		if err := checkInstallRoot(steps, p.destRoot); err != nil {
			return err
		}
	}

	if err := os.MkdirAll(bc.HostDir(bc.WorkDir), 0o755); err != nil {
		return fmt.Errorf("failed to create working directory %s: %w", bc.WorkDir, err)
	}

	for i, step := range steps {
		if err := op.Context().Err(); err != nil {
			result.FailedStep = i
			return &ProvisionError{StepIndex: i, Kind: step.Kind, Cause: err}
		}

		handler, ok := p.handlers[step.Kind]
		if !ok || handler == nil {
			result.FailedStep = i
			return &ProvisionError{StepIndex: i, Kind: step.Kind, Cause: ErrNoHandler}
		}

		p.logger.Info("step", "index", i+1, "total", len(steps), "kind", step.Kind, "step", step.Describe())

		err := op.runStep(i, step, func(ctx context.Context) error {
			return handler.Handle(ctx, bc, step)
		})
		if err != nil {
			result.FailedStep = i
			return &ProvisionError{StepIndex: i, Kind: step.Kind, Cause: err}
		}
		result.Completed++
	}
	return nil
}

// checkInstallRoot rejects package steps when destRoot is not the host "/".
// The installers run on the host, so their packages and index cache would
// land outside the destination root.
func checkInstallRoot(steps []stepfile.Step, destRoot string) error {
	if isHostRoot(destRoot) {
		return nil
	}
	var errs []error
	for i, s := range steps {
		if s.Kind != stepfile.KindSystemPackages && s.Kind != stepfile.KindPackageManager {
			continue
		}
		errs = append(errs, &stepfile.InvalidStepError{
			Index:  i,
			Kind:   s.Kind,
			Reason: fmt.Sprintf("packages are installed on the host and cannot target root %s; provision with root /", destRoot),
		})
	}
	if len(errs) > 0 {
		return &stepfile.ValidationError{FieldErrors: errs}
	}
	return nil
}

// isHostRoot reports whether dir resolves to the filesystem root.
func isHostRoot(dir string) bool {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return false
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	return abs == filepath.VolumeName(abs)+string(filepath.Separator)
}
