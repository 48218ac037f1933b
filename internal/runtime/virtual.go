// SPDX-License-Identifier: MPL-2.0

package runtime

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/invowk/stepper/pkg/types"

	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"
)

// VirtualRunner executes commands with the embedded mvdan/sh interpreter.
// Builtins run in-process; other programs are still looked up on the PATH
// of the command environment and executed on the host.
type VirtualRunner struct{}

// NewVirtualRunner creates a new virtual runner.
func NewVirtualRunner() *VirtualRunner {
	return &VirtualRunner{}
}

// Name returns the runner name.
func (r *VirtualRunner) Name() Name {
	return NameVirtual
}

// Available always returns true; the interpreter is built in.
func (r *VirtualRunner) Available() bool {
	return true
}

// Validate checks that script parses as POSIX shell.
func (r *VirtualRunner) Validate(script string) error {
	_, err := parseScript(script)
	return err
}

// Run interprets cmd.Script.
func (r *VirtualRunner) Run(ctx context.Context, cmd *Command) *Result {
	prog, err := parseScript(cmd.Script)
	if err != nil {
		return &Result{ExitCode: 1, Error: err}
	}
	if err := validateWorkDir(cmd.Dir); err != nil {
		return &Result{ExitCode: 1, Error: err}
	}

	opts := []interp.RunnerOption{
		interp.Env(expand.ListEnviron(EnvToSlice(MergeEnv(cmd.Env))...)),
		interp.StdIO(cmd.Stdin, outputOrDiscard(cmd.Stdout), outputOrDiscard(cmd.Stderr)),
	}
	if cmd.Dir != "" {
		opts = append(opts, interp.Dir(cmd.Dir))
	}

	runner, err := interp.New(opts...)
	if err != nil {
		return &Result{ExitCode: 1, Error: fmt.Errorf("failed to create interpreter: %w", err)}
	}

	err = runner.Run(ctx, prog)
	if err == nil {
		return &Result{}
	}

	var exitStatus interp.ExitStatus
	if errors.As(err, &exitStatus) {
		return &Result{ExitCode: types.ExitCode(exitStatus)}
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return &Result{ExitCode: 1, Error: fmt.Errorf("command interrupted: %w", ctxErr)}
	}
	return &Result{ExitCode: 1, Error: fmt.Errorf("script execution failed: %w", err)}
}

func parseScript(script string) (*syntax.File, error) {
	if strings.TrimSpace(script) == "" {
		return nil, ErrEmptyScript
	}
	prog, err := syntax.NewParser().Parse(strings.NewReader(script), "")
	if err != nil {
		return nil, fmt.Errorf("script syntax error: %w", err)
	}
	return prog, nil
}
