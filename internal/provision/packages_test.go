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

// populateAptCache simulates apt-get update writing index files.
func populateAptCache(t *testing.T, dest string) func(cmd *runtime.Command) {
	t.Helper()
	lists := filepath.Join(dest, "var", "lib", "apt", "lists")
	return func(cmd *runtime.Command) {
		if cmd.Script == "apt-get update" {
			testutil.WriteFile(t, filepath.Join(lists, "deb.debian.org_debian_dists_bookworm_InRelease"), "index")
			testutil.WriteFile(t, filepath.Join(lists, "partial", "tmp"), "")
		}
	}
}

func assertCacheEmpty(t *testing.T, dest string) {
	t.Helper()
	entries, err := os.ReadDir(filepath.Join(dest, "var", "lib", "apt", "lists"))
	if err != nil {
		t.Fatalf("cache directory should still exist: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("cache directory not emptied: %d entries left", len(entries))
	}
}

func TestAptSource_InstallsAndCleansCache(t *testing.T) {
	t.Parallel()

	rn := &recordingRunner{}
	p, dest := newTestProvisioner(t, rn)
	rn.onRun = populateAptCache(t, dest)

	_, err := p.Run(context.Background(), []stepfile.Step{stepfile.SystemPackages("git", "curl")})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := []string{"apt-get update", "apt-get install -y --no-install-recommends git curl"}
	if !slices.Equal(rn.scripts, want) {
		t.Errorf("commands = %q, want %q", rn.scripts, want)
	}
	assertCacheEmpty(t, dest)
}

func TestAptSource_CleansCacheOnFailure(t *testing.T) {
	t.Parallel()

	rn := &recordingRunner{fail: map[string]types.ExitCode{
		"apt-get install -y --no-install-recommends no-such-package": 100,
	}}
	p, dest := newTestProvisioner(t, rn)
	rn.onRun = populateAptCache(t, dest)

	_, err := p.Run(context.Background(), []stepfile.Step{stepfile.SystemPackages("no-such-package")})

	var execErr *StepExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("expected *StepExecutionError, got %v", err)
	}
	if execErr.ExitCode != 100 {
		t.Errorf("ExitCode = %d, want 100", execErr.ExitCode)
	}
	assertCacheEmpty(t, dest)
}

func TestAptSource_UpdateFailureStopsInstall(t *testing.T) {
	t.Parallel()

	rn := &recordingRunner{fail: map[string]types.ExitCode{"apt-get update": 100}}
	p, _ := newTestProvisioner(t, rn)

	if _, err := p.Run(context.Background(), []stepfile.Step{stepfile.SystemPackages("git")}); err == nil {
		t.Fatal("expected error")
	}
	if len(rn.scripts) != 1 {
		t.Errorf("install ran after failed update: %q", rn.scripts)
	}
}

func TestPipInstaller(t *testing.T) {
	t.Parallel()

	rn := &recordingRunner{}
	p, _ := newTestProvisioner(t, rn, WithToolInstaller(&PipInstaller{Command: []string{"python3", "-m", "pip", "install", "--user"}}))

	if _, err := p.Run(context.Background(), []stepfile.Step{stepfile.PackageManager("uv")}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if want := []string{"python3 -m pip install --user uv"}; !slices.Equal(rn.scripts, want) {
		t.Errorf("commands = %q, want %q", rn.scripts, want)
	}
}

func TestRun_RejectsHostInstallsIntoOtherRoot(t *testing.T) {
	t.Parallel()

	rn := &recordingRunner{}
	dest := t.TempDir()
	p := New(
		WithRunner(rn),
		WithDestRoot(dest),
		WithSourceRoot(t.TempDir()),
		WithStdout(io.Discard),
		WithStderr(io.Discard),
	)

	steps := []stepfile.Step{
		stepfile.Run("echo before"),
		stepfile.SystemPackages("git"),
		stepfile.PackageManager("uv"),
	}
	result, err := p.Run(context.Background(), steps)

	var verr *stepfile.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Run() error = %v, want *stepfile.ValidationError", err)
	}
	if len(verr.FieldErrors) != 2 {
		t.Errorf("FieldErrors = %v, want one per package step", verr.FieldErrors)
	}
	if len(rn.scripts) != 0 {
		t.Errorf("commands ran before the root check: %q", rn.scripts)
	}
	if result.Completed != 0 || result.State != StateFailed {
		t.Errorf("result = %+v", result)
	}
}

func TestCheckInstallRoot(t *testing.T) {
	t.Parallel()

	steps := []stepfile.Step{stepfile.Run("true"), stepfile.SystemPackages("git")}

	if err := checkInstallRoot(steps, "/"); err != nil {
		t.Errorf("checkInstallRoot(/) = %v, want nil", err)
	}
	if err := checkInstallRoot([]stepfile.Step{stepfile.Run("true")}, t.TempDir()); err != nil {
		t.Errorf("steps without packages should pass: %v", err)
	}
	err := checkInstallRoot(steps, t.TempDir())
	var stepErr *stepfile.InvalidStepError
	if !errors.As(err, &stepErr) || stepErr.Index != 1 || stepErr.Kind != stepfile.KindSystemPackages {
		t.Errorf("checkInstallRoot(tmp) = %v, want step 1 rejected", err)
	}
}

func TestCommandsMerge(t *testing.T) {
	t.Parallel()

	merged := Commands{Install: []string{"apt", "install", "-y"}}.Merge(DefaultCommands())
	if !slices.Equal(merged.Install, []string{"apt", "install", "-y"}) {
		t.Errorf("Install = %v", merged.Install)
	}
	if !slices.Equal(merged.Update, DefaultCommands().Update) {
		t.Errorf("Update = %v, want default", merged.Update)
	}
	if !slices.Equal(merged.CacheDirs, []string{"/var/lib/apt/lists"}) {
		t.Errorf("CacheDirs = %v", merged.CacheDirs)
	}
}
