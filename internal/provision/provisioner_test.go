// SPDX-License-Identifier: MPL-2.0

package provision

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/invowk/stepper/internal/runtime"
	"github.com/invowk/stepper/internal/testutil"
	"github.com/invowk/stepper/pkg/stepfile"
	"github.com/invowk/stepper/pkg/types"
)

// recordingRunner records every command instead of running it.
type recordingRunner struct {
	scripts []string
	dirs    []string
	envs    []map[string]string
	fail    map[string]types.ExitCode
	onRun   func(cmd *runtime.Command)
}

func (r *recordingRunner) Name() runtime.Name      { return "recording" }
func (r *recordingRunner) Available() bool         { return true }
func (r *recordingRunner) Validate(_ string) error { return nil }

func (r *recordingRunner) Run(_ context.Context, cmd *runtime.Command) *runtime.Result {
	r.scripts = append(r.scripts, cmd.Script)
	r.dirs = append(r.dirs, cmd.Dir)
	r.envs = append(r.envs, cmd.Env)
	if r.onRun != nil {
		r.onRun(cmd)
	}
	if code, ok := r.fail[cmd.Script]; ok {
		return &runtime.Result{ExitCode: code}
	}
	return &runtime.Result{}
}

func newTestProvisioner(t *testing.T, rn runtime.Runner, opts ...Option) (*Provisioner, string) {
	t.Helper()
	dest := t.TempDir()
	base := []Option{
		WithRunner(rn),
		WithDestRoot(dest),
		WithSourceRoot(t.TempDir()),
		WithStdout(io.Discard),
		WithStderr(io.Discard),
		WithRootedInstalls(),
	}
	return New(append(base, opts...)...), dest
}

func TestRun_DispatchesInDeclarationOrder(t *testing.T) {
	t.Parallel()

	var order []string
	record := func(ctx context.Context, bc *BuildContext, step stepfile.Step) error {
		order = append(order, step.Describe())
		return nil
	}

	var opts []Option
	for _, k := range stepfile.Kinds() {
		opts = append(opts, WithHandler(k, StepHandlerFunc(record)))
	}
	p, _ := newTestProvisioner(t, &recordingRunner{}, opts...)

	steps := []stepfile.Step{
		stepfile.Run("echo 1"),
		stepfile.Env("A", "1"),
		stepfile.SystemPackages("git"),
		stepfile.Copy("a", "b"),
		stepfile.Run("echo 2"),
		stepfile.WorkDir("/x"),
		stepfile.PackageManager("uv"),
		stepfile.Run("echo 1"),
	}

	result, err := p.Run(context.Background(), steps)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := make([]string, len(steps))
	for i, s := range steps {
		want[i] = s.Describe()
	}
	if !slices.Equal(order, want) {
		t.Errorf("dispatch order = %v, want %v", order, want)
	}
	if result.Completed != len(steps) {
		t.Errorf("Completed = %d, want %d", result.Completed, len(steps))
	}
}

func TestRun_AbortsAtFirstFailure(t *testing.T) {
	t.Parallel()

	for k := range 4 {
		rn := &recordingRunner{fail: map[string]types.ExitCode{"false": 3}}
		p, _ := newTestProvisioner(t, rn)

		steps := []stepfile.Step{stepfile.Run("true"), stepfile.Run("true"), stepfile.Run("true"), stepfile.Run("true")}
		steps[k] = stepfile.Run("false")

		result, err := p.Run(context.Background(), steps)

		var perr *ProvisionError
		if !errors.As(err, &perr) {
			t.Fatalf("k=%d: expected *ProvisionError, got %v", k, err)
		}
		if perr.StepIndex != k || perr.Kind != stepfile.KindRun {
			t.Errorf("k=%d: failed at step %d (%s)", k, perr.StepIndex, perr.Kind)
		}
		if perr.ExitCode() != 3 {
			t.Errorf("k=%d: ExitCode() = %d, want 3", k, perr.ExitCode())
		}
		if !errors.Is(err, ErrStepExecution) {
			t.Errorf("k=%d: expected ErrStepExecution in chain", k)
		}
		if len(rn.scripts) != k+1 {
			t.Errorf("k=%d: %d commands ran, want %d", k, len(rn.scripts), k+1)
		}
		if result.Completed != k || result.FailedStep != k || result.State != StateFailed {
			t.Errorf("k=%d: result = %+v", k, result)
		}
	}
}

func TestRun_EnvVisibleToLaterCommands(t *testing.T) {
	t.Parallel()

	p, dest := newTestProvisioner(t, runtime.NewVirtualRunner())

	steps := []stepfile.Step{
		stepfile.Env("GREETING", "hello"),
		stepfile.Env("MESSAGE", "${GREETING} world"),
		stepfile.Run(`printf '%s' "$MESSAGE" > out.txt`),
	}

	result, err := p.Run(context.Background(), steps)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dest, "out.txt"))
	if err != nil {
		t.Fatalf("command output missing: %v", err)
	}
	if string(data) != "hello world" {
		t.Errorf("out.txt = %q, want %q", data, "hello world")
	}
	if result.Env["MESSAGE"] != "hello world" {
		t.Errorf("result env MESSAGE = %q", result.Env["MESSAGE"])
	}
}

func TestRun_EnvLastWriteWins(t *testing.T) {
	t.Parallel()

	rn := &recordingRunner{}
	p, _ := newTestProvisioner(t, rn)

	_, err := p.Run(context.Background(), []stepfile.Step{
		stepfile.Env("MODE", "a"),
		stepfile.Run("true"),
		stepfile.Env("MODE", "b"),
		stepfile.Run("true"),
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if rn.envs[0]["MODE"] != "a" || rn.envs[1]["MODE"] != "b" {
		t.Errorf("MODE seen by commands = %q, %q; want a, b", rn.envs[0]["MODE"], rn.envs[1]["MODE"])
	}
}

func TestRun_WorkDirAppliesToLaterCommands(t *testing.T) {
	t.Parallel()

	rn := &recordingRunner{}
	p, dest := newTestProvisioner(t, rn, WithWorkDir("/workspace"))

	result, err := p.Run(context.Background(), []stepfile.Step{
		stepfile.Run("pwd"),
		stepfile.WorkDir("src"),
		stepfile.Run("pwd"),
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := []string{filepath.Join(dest, "workspace"), filepath.Join(dest, "workspace", "src")}
	if !slices.Equal(rn.dirs, want) {
		t.Errorf("command dirs = %v, want %v", rn.dirs, want)
	}
	if result.WorkDir != "/workspace/src" {
		t.Errorf("WorkDir = %q, want /workspace/src", result.WorkDir)
	}
	if info, err := os.Stat(want[1]); err != nil || !info.IsDir() {
		t.Errorf("working directory was not created: %v", err)
	}
}

func TestRun_ValidationFailureRunsNothing(t *testing.T) {
	t.Parallel()

	rn := &recordingRunner{}
	p, _ := newTestProvisioner(t, rn)

	result, err := p.Run(context.Background(), []stepfile.Step{
		stepfile.Run("echo first"),
		stepfile.Copy("/etc/passwd", "."),
	})

	var verr *stepfile.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *stepfile.ValidationError, got %v", err)
	}
	if len(rn.scripts) != 0 {
		t.Errorf("commands ran despite invalid steps: %v", rn.scripts)
	}
	if result.State != StateFailed || result.FailedStep != -1 || result.Completed != 0 {
		t.Errorf("result = %+v", result)
	}
}

func TestRun_EmptyStepsIsValidationError(t *testing.T) {
	t.Parallel()

	p, _ := newTestProvisioner(t, &recordingRunner{})
	if _, err := p.Run(context.Background(), nil); !errors.Is(err, stepfile.ErrNoSteps) {
		t.Errorf("expected ErrNoSteps, got %v", err)
	}
}

func TestRun_StateMachine(t *testing.T) {
	t.Parallel()

	var during State
	var p *Provisioner
	p, _ = newTestProvisioner(t, &recordingRunner{}, WithHandler(stepfile.KindRun, StepHandlerFunc(
		func(context.Context, *BuildContext, stepfile.Step) error {
			during = p.State()
			return nil
		})))

	if p.State() != StatePending {
		t.Fatalf("initial state = %s, want pending", p.State())
	}

	result, err := p.Run(context.Background(), []stepfile.Step{stepfile.Run("true")})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if during != StateRunning {
		t.Errorf("state during run = %s, want running", during)
	}
	if p.State() != StateSucceeded || result.State != StateSucceeded {
		t.Errorf("final state = %s / %s, want succeeded", p.State(), result.State)
	}

	if _, err := p.Run(context.Background(), []stepfile.Step{stepfile.Run("true")}); !errors.Is(err, ErrAlreadyRun) {
		t.Errorf("second Run() error = %v, want ErrAlreadyRun", err)
	}
}

func TestRun_CancelledContext(t *testing.T) {
	t.Parallel()

	rn := &recordingRunner{}
	p, _ := newTestProvisioner(t, rn)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Run(ctx, []stepfile.Step{stepfile.Run("true")})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(rn.scripts) != 0 {
		t.Errorf("commands ran after cancellation: %v", rn.scripts)
	}
}

func TestRun_CommandStartFailure(t *testing.T) {
	t.Parallel()

	p, _ := newTestProvisioner(t, runtime.NewVirtualRunner())

	_, err := p.Run(context.Background(), []stepfile.Step{stepfile.Run("definitely-not-a-command-stepper")})

	var execErr *StepExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("expected *StepExecutionError, got %v", err)
	}
	if execErr.ExitCode.IsSuccess() {
		t.Errorf("ExitCode = %d, want non-zero", execErr.ExitCode)
	}
}

// pythonProject lays out a minimal project matching the default stepfile.
func pythonProject(t *testing.T, withRequirements bool) string {
	t.Helper()
	root := t.TempDir()
	if withRequirements {
		testutil.WriteFile(t, filepath.Join(root, "src", "requirements.txt"), "requests==2.32.3\n")
	}
	testutil.WriteFile(t, filepath.Join(root, "src", "pyproject.toml"), "[project]\nname = \"app\"\n")
	testutil.WriteFile(t, filepath.Join(root, "src", "app", "__init__.py"), "")
	testutil.WriteFile(t, filepath.Join(root, "README.md"), "# app\n")
	return root
}

func TestScenario_FullRecipeSucceeds(t *testing.T) {
	t.Setenv("PATH", "/usr/bin:/bin")

	rn := &recordingRunner{}
	sf := stepfile.Default()
	p, dest := newTestProvisioner(t, rn,
		WithSourceRoot(pythonProject(t, true)),
		WithWorkDir(sf.InitialWorkDir()),
	)

	result, err := p.Run(context.Background(), sf.Steps)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if result.State != StateSucceeded || result.Completed != len(sf.Steps) || result.FailedStep != -1 {
		t.Errorf("result = %+v", result)
	}
	if result.WorkDir != "/workspace/src" {
		t.Errorf("WorkDir = %q, want /workspace/src", result.WorkDir)
	}

	wantScripts := []string{
		"apt-get update",
		"apt-get install -y --no-install-recommends git curl",
		"pip install --no-cache-dir uv",
		"uv pip install --system -r requirements.txt",
		"uv pip install --system -e .",
	}
	if !slices.Equal(rn.scripts, wantScripts) {
		t.Errorf("commands = %q, want %q", rn.scripts, wantScripts)
	}
	if got, want := rn.dirs[3], filepath.Join(dest, "workspace"); got != want {
		t.Errorf("requirements install ran in %s, want %s", got, want)
	}
	if got, want := rn.dirs[4], filepath.Join(dest, "workspace", "src"); got != want {
		t.Errorf("editable install ran in %s, want %s", got, want)
	}

	for _, rel := range []string{
		"workspace/requirements.txt",
		"workspace/src/requirements.txt",
		"workspace/src/pyproject.toml",
		"workspace/src/app/__init__.py",
		"workspace/README.md",
	} {
		if _, err := os.Stat(filepath.Join(dest, filepath.FromSlash(rel))); err != nil {
			t.Errorf("expected %s in destination: %v", rel, err)
		}
	}

	if result.Env["PYTHONUNBUFFERED"] != "1" {
		t.Errorf("PYTHONUNBUFFERED = %q", result.Env["PYTHONUNBUFFERED"])
	}
	if result.Env["PATH"] != "/root/.local/bin:/usr/bin:/bin" {
		t.Errorf("PATH = %q", result.Env["PATH"])
	}
}

func TestScenario_MissingRequirementsFailsAtCopy(t *testing.T) {
	t.Parallel()

	rn := &recordingRunner{}
	sf := stepfile.Default()
	p, _ := newTestProvisioner(t, rn,
		WithSourceRoot(pythonProject(t, false)),
		WithWorkDir(sf.InitialWorkDir()),
	)

	result, err := p.Run(context.Background(), sf.Steps)

	var perr *ProvisionError
	if !errors.As(err, &perr) {
		t.Fatalf("expected *ProvisionError, got %v", err)
	}
	if perr.Kind != stepfile.KindCopy || perr.StepIndex != 4 {
		t.Errorf("failed at step %d (%s), want 4 (copy-files)", perr.StepIndex, perr.Kind)
	}

	var missing *MissingPathError
	if !errors.As(err, &missing) {
		t.Fatalf("expected *MissingPathError, got %v", err)
	}
	if missing.Path != "./src/requirements.txt" {
		t.Errorf("missing path = %q", missing.Path)
	}
	if !errors.Is(err, ErrMissingPath) {
		t.Error("expected errors.Is(err, ErrMissingPath)")
	}

	if result.State != StateFailed || result.Completed != 4 {
		t.Errorf("result = %+v", result)
	}
	if slices.Contains(rn.scripts, "uv pip install --system -r requirements.txt") {
		t.Error("dependency install ran after the failed copy")
	}
}
