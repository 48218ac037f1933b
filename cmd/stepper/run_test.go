// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/invowk/stepper/internal/runtime"
	"github.com/invowk/stepper/internal/testutil"
)

const projectStepfile = `workdir: /workspace
steps:
  - kind: set-environment-variable
    name: GREETING
    value: hi
  - kind: copy-files
    source: src
    dest: src
  - kind: set-working-directory
    path: /workspace/src
  - kind: run-command
    command: echo "$GREETING" > greeting.txt
`

// newProject writes a stepfile and its source tree, returning the stepfile
// path and an empty target root.
func newProject(t *testing.T, stepfileContent string) (path, root string) {
	t.Helper()
	dir := t.TempDir()
	path = filepath.Join(dir, "stepfile.yaml")
	testutil.WriteFile(t, path, stepfileContent)
	testutil.WriteFile(t, filepath.Join(dir, "src", "app.py"), "print('hi')\n")
	return path, filepath.Join(t.TempDir(), "rootfs")
}

func TestRunCommand_ProvisionsIntoRoot(t *testing.T) {
	t.Parallel()

	path, root := newProject(t, projectStepfile)
	envOut := filepath.Join(t.TempDir(), "build.env")

	res := runCLI(t, Dependencies{}, "run", "-f", path, "--root", root, "--runner", "virtual", "--env-out", envOut)
	if res.err != nil {
		t.Fatalf("run error = %v\nstderr:\n%s", res.err, res.stderr)
	}

	got, err := os.ReadFile(filepath.Join(root, "workspace", "src", "greeting.txt"))
	if err != nil {
		t.Fatalf("greeting.txt not written: %v", err)
	}
	if string(got) != "hi\n" {
		t.Errorf("greeting.txt = %q, want %q", got, "hi\n")
	}
	if _, err := os.Stat(filepath.Join(root, "workspace", "src", "app.py")); err != nil {
		t.Errorf("source tree not copied: %v", err)
	}
	if !strings.Contains(res.stdout, "Provisioned 4 step(s)") || !strings.Contains(res.stdout, "/workspace/src") {
		t.Errorf("stdout = %q", res.stdout)
	}

	env := map[string]string{}
	if err := runtime.LoadEnvFile(env, envOut); err != nil {
		t.Fatalf("LoadEnvFile() error = %v", err)
	}
	if env["GREETING"] != "hi" {
		t.Errorf("env-out GREETING = %q, want hi", env["GREETING"])
	}
}

func TestRunCommand_MissingCopySource(t *testing.T) {
	t.Parallel()

	path, root := newProject(t, `steps:
  - kind: set-working-directory
    path: /workspace
  - kind: copy-files
    source: ./src/requirements.txt
    dest: requirements.txt
  - kind: run-command
    command: touch never
`)

	res := runCLI(t, Dependencies{}, "run", "-f", path, "--root", root, "--runner", "virtual")
	requireExitCode(t, res.err, 1)
	if !strings.Contains(res.stderr, "step 2 of 3") || !strings.Contains(res.stderr, "requirements.txt") {
		t.Errorf("stderr = %q, want the failing copy step", res.stderr)
	}
	if _, err := os.Stat(filepath.Join(root, "workspace", "never")); !os.IsNotExist(err) {
		t.Errorf("step after the failure ran: %v", err)
	}
}

func TestRunCommand_PropagatesCommandExitCode(t *testing.T) {
	t.Parallel()

	path, root := newProject(t, `steps:
  - kind: run-command
    command: exit 3
`)

	res := runCLI(t, Dependencies{}, "run", "-f", path, "--root", root, "--runner", "virtual")
	requireExitCode(t, res.err, 3)
}

func TestRunCommand_InitialEnvironment(t *testing.T) {
	t.Parallel()

	path, root := newProject(t, `workdir: /out
steps:
  - kind: run-command
    command: echo "$FROM_FILE $FROM_FLAG" > env.txt
`)
	envFile := filepath.Join(t.TempDir(), ".env")
	testutil.WriteFile(t, envFile, "FROM_FILE=file\nFROM_FLAG=overridden\n")

	res := runCLI(t, Dependencies{}, "run", "-f", path, "--root", root, "--runner", "virtual",
		"--env-file", envFile, "--env-file", envFile+".missing?", "-e", "FROM_FLAG=flag")
	if res.err != nil {
		t.Fatalf("run error = %v\nstderr:\n%s", res.err, res.stderr)
	}

	got, err := os.ReadFile(filepath.Join(root, "out", "env.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "file flag\n" {
		t.Errorf("env.txt = %q, want %q", got, "file flag\n")
	}
}

func TestRunCommand_DryRun(t *testing.T) {
	t.Parallel()

	path, root := newProject(t, projectStepfile)

	res := runCLI(t, Dependencies{}, "run", "-f", path, "--root", root, "--dry-run")
	if res.err != nil {
		t.Fatalf("run error = %v", res.err)
	}
	for _, want := range []string{"4 step(s)", "set-environment-variable", "GREETING=hi", "copy-files", "src -> src"} {
		if !strings.Contains(res.stdout, want) {
			t.Errorf("plan missing %q:\n%s", want, res.stdout)
		}
	}
	if _, err := os.Stat(root); !os.IsNotExist(err) {
		t.Errorf("dry run touched the root: %v", err)
	}
}

func TestRunCommand_Trace(t *testing.T) {
	t.Parallel()

	path, root := newProject(t, projectStepfile)

	res := runCLI(t, Dependencies{}, "run", "-f", path, "--root", root, "--runner", "virtual", "--trace")
	if res.err != nil {
		t.Fatalf("run error = %v\nstderr:\n%s", res.err, res.stderr)
	}
	for _, want := range []string{"step 0: set-environment-variable", "step 3: run-command", "stepper.provision", "succeeded"} {
		if !strings.Contains(res.stderr, want) {
			t.Errorf("trace output missing %q:\n%s", want, res.stderr)
		}
	}
}

func TestRunCommand_UnknownRunner(t *testing.T) {
	t.Parallel()

	path, root := newProject(t, projectStepfile)

	res := runCLI(t, Dependencies{}, "run", "-f", path, "--root", root, "--runner", "chroot")
	requireExitCode(t, res.err, 1)
	if !strings.Contains(res.stderr, "chroot") {
		t.Errorf("stderr = %q", res.stderr)
	}
}

func TestInitialEnv(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		pairs   []string
		want    map[string]string
		wantErr bool
	}{
		{"empty", nil, map[string]string{}, false},
		{"value with equals", []string{"A=b=c"}, map[string]string{"A": "b=c"}, false},
		{"empty value", []string{"A="}, map[string]string{"A": ""}, false},
		{"later wins", []string{"A=1", "A=2"}, map[string]string{"A": "2"}, false},
		{"missing equals", []string{"A"}, nil, true},
		{"missing name", []string{"=x"}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := initialEnv(nil, tt.pairs)
			if (err != nil) != tt.wantErr {
				t.Fatalf("initialEnv() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if len(got) != len(tt.want) {
				t.Fatalf("initialEnv() = %v, want %v", got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("%s = %q, want %q", k, got[k], v)
				}
			}
		})
	}
}
