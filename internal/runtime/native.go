// SPDX-License-Identifier: MPL-2.0

package runtime

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/invowk/stepper/pkg/types"
)

// ErrNoShell is returned when no POSIX shell can be found on the host.
var ErrNoShell = errors.New("no shell found")

// NativeRunner executes commands using the host shell.
type NativeRunner struct {
	// Shell overrides the default shell.
	Shell string
	// ShellArgs are passed to the shell before the script. Defaults to "-c".
	ShellArgs []string
}

// NewNativeRunner creates a new native runner.
func NewNativeRunner() *NativeRunner {
	return &NativeRunner{}
}

// Name returns the runner name.
func (r *NativeRunner) Name() Name {
	return NameNative
}

// Available returns whether a shell can be found.
func (r *NativeRunner) Available() bool {
	_, err := r.shell()
	return err == nil
}

// Validate checks that script is not blank.
func (r *NativeRunner) Validate(script string) error {
	if strings.TrimSpace(script) == "" {
		return ErrEmptyScript
	}
	return nil
}

// Run executes cmd with "<shell> -c <script>".
func (r *NativeRunner) Run(ctx context.Context, cmd *Command) *Result {
	if err := r.Validate(cmd.Script); err != nil {
		return &Result{ExitCode: 1, Error: err}
	}
	if err := validateWorkDir(cmd.Dir); err != nil {
		return &Result{ExitCode: 1, Error: err}
	}

	shell, err := r.shell()
	if err != nil {
		return &Result{ExitCode: 1, Error: err}
	}

	args := append(r.shellArgs(), cmd.Script)
	c := exec.CommandContext(ctx, shell, args...)
	c.Dir = cmd.Dir
	c.Env = EnvToSlice(MergeEnv(cmd.Env))
	c.Stdin = cmd.Stdin
	c.Stdout = outputOrDiscard(cmd.Stdout)
	c.Stderr = outputOrDiscard(cmd.Stderr)

	return exitResult(ctx, c.Run())
}

// shell determines which shell to use.
func (r *NativeRunner) shell() (string, error) {
	if r.Shell != "" {
		return r.Shell, nil
	}
	if shell := os.Getenv("SHELL"); shell != "" {
		return shell, nil
	}
	for _, name := range []string{"bash", "sh"} {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	return "", ErrNoShell
}

func (r *NativeRunner) shellArgs() []string {
	if len(r.ShellArgs) > 0 {
		return append([]string(nil), r.ShellArgs...)
	}
	return []string{"-c"}
}

// exitResult converts the error returned by exec.Cmd.Run into a Result.
func exitResult(ctx context.Context, err error) *Result {
	if err == nil {
		return &Result{}
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return &Result{ExitCode: 1, Error: fmt.Errorf("command interrupted: %w", ctxErr)}
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code := types.ExitCode(exitErr.ExitCode())
		if validateErr := code.Validate(); validateErr != nil {
			// Killed by a signal reports -1.
			return &Result{ExitCode: 1, Error: fmt.Errorf("command terminated abnormally: %w", err)}
		}
		return &Result{ExitCode: code}
	}

	// Command could not be started (not found, permission denied, ...).
	return &Result{ExitCode: 1, Error: fmt.Errorf("failed to execute command: %w", err)}
}
