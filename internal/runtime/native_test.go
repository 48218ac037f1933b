// SPDX-License-Identifier: MPL-2.0

package runtime

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"path/filepath"
	goruntime "runtime"
	"strings"
	"testing"
)

func skipWithoutPOSIXShell(t *testing.T) {
	t.Helper()
	if goruntime.GOOS == "windows" {
		t.Skip("skipping: POSIX shell tests do not run on Windows")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("skipping: sh not found in PATH")
	}
}

func newTestNativeRunner(t *testing.T) *NativeRunner {
	t.Helper()
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("skipping: sh not found in PATH")
	}
	return &NativeRunner{Shell: sh}
}

func TestNativeRunner_Output(t *testing.T) {
	t.Parallel()
	skipWithoutPOSIXShell(t)

	var stdout bytes.Buffer
	result := newTestNativeRunner(t).Run(context.Background(), &Command{
		Script: "echo hello from native",
		Stdout: &stdout,
	})
	if !result.Success() {
		t.Fatalf("Run() = %d, %v; want success", result.ExitCode, result.Error)
	}
	if got := strings.TrimSpace(stdout.String()); got != "hello from native" {
		t.Errorf("stdout = %q", got)
	}
}

func TestNativeRunner_ExitCode(t *testing.T) {
	t.Parallel()
	skipWithoutPOSIXShell(t)

	result := newTestNativeRunner(t).Run(context.Background(), &Command{Script: "exit 7"})
	if result.ExitCode != 7 {
		t.Errorf("ExitCode = %d, want 7", result.ExitCode)
	}
	if result.Error != nil {
		t.Errorf("Error = %v, want nil for a normal non-zero exit", result.Error)
	}
	if result.Success() {
		t.Error("Success() = true for exit 7")
	}
}

func TestNativeRunner_EnvAndDir(t *testing.T) {
	t.Parallel()
	skipWithoutPOSIXShell(t)

	dir := t.TempDir()
	var stdout bytes.Buffer
	result := newTestNativeRunner(t).Run(context.Background(), &Command{
		Script: `echo "$GREETING"; pwd`,
		Dir:    dir,
		Env:    map[string]string{"GREETING": "hi"},
		Stdout: &stdout,
	})
	if !result.Success() {
		t.Fatalf("Run() = %d, %v", result.ExitCode, result.Error)
	}

	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	if len(lines) != 2 || lines[0] != "hi" {
		t.Fatalf("unexpected output %q", stdout.String())
	}
	resolved, _ := filepath.EvalSymlinks(dir)
	if lines[1] != dir && lines[1] != resolved {
		t.Errorf("pwd = %q, want %q", lines[1], dir)
	}
}

func TestNativeRunner_MissingDir(t *testing.T) {
	t.Parallel()
	skipWithoutPOSIXShell(t)

	result := newTestNativeRunner(t).Run(context.Background(), &Command{
		Script: "true",
		Dir:    filepath.Join(t.TempDir(), "missing"),
	})
	if result.Error == nil || !strings.Contains(result.Error.Error(), "does not exist") {
		t.Errorf("expected missing directory error, got %v", result.Error)
	}
}

func TestNativeRunner_Cancelled(t *testing.T) {
	t.Parallel()
	skipWithoutPOSIXShell(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := newTestNativeRunner(t).Run(ctx, &Command{Script: "sleep 5"})
	if !errors.Is(result.Error, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", result.Error)
	}
}

func TestNativeRunner_Validate(t *testing.T) {
	t.Parallel()

	if err := NewNativeRunner().Validate("  \n"); !errors.Is(err, ErrEmptyScript) {
		t.Errorf("expected ErrEmptyScript, got %v", err)
	}
	if err := NewNativeRunner().Validate("echo ok"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
