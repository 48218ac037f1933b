// SPDX-License-Identifier: MPL-2.0

package provision

import (
	"errors"
	"fmt"

	"github.com/invowk/stepper/pkg/stepfile"
	"github.com/invowk/stepper/pkg/types"
)

var (
	// ErrStepExecution is the sentinel error wrapped by StepExecutionError.
	ErrStepExecution = errors.New("step execution failed")
	// ErrMissingPath is the sentinel error wrapped by MissingPathError.
	ErrMissingPath = errors.New("source path not found")
	// ErrAlreadyRun is returned when Run is called on a Provisioner more than once.
	ErrAlreadyRun = errors.New("provisioner has already run")
	// ErrNoHandler is returned when no handler is registered for a step kind.
	ErrNoHandler = errors.New("no handler for step kind")
)

type (
	// StepExecutionError reports an external command that exited non-zero or
	// could not be started.
	StepExecutionError struct {
		// Command is the shell command line that was run.
		Command string
		// ExitCode is the command's exit status. It is 1 when the command
		// never ran.
		ExitCode types.ExitCode
		// Err is set when the command could not be started or was interrupted.
		Err error
	}

	// MissingPathError reports a copy source that does not exist in the
	// source root, or that the ignore file excludes.
	MissingPathError struct {
		// Path is the source path as written in the step.
		Path string
		// Root is the host directory the path was resolved against.
		Root string
		// Ignored is true when the path exists but is excluded by the ignore file.
		Ignored bool
	}

	// ProvisionError identifies the step that aborted a run.
	ProvisionError struct {
		// StepIndex is the zero-based position of the failing step.
		StepIndex int
		// Kind is the failing step's kind.
		Kind stepfile.Kind
		// Cause is the underlying error.
		Cause error
	}
)

// Error implements the error interface.
func (e *StepExecutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("command %q failed: %v", e.Command, e.Err)
	}
	return fmt.Sprintf("command %q exited with code %d", e.Command, e.ExitCode)
}

// Unwrap returns the sentinel and the start error, if any.
func (e *StepExecutionError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrStepExecution, e.Err}
	}
	return []error{ErrStepExecution}
}

// Error implements the error interface.
func (e *MissingPathError) Error() string {
	if e.Ignored {
		return fmt.Sprintf("source path %q is excluded by the ignore file in %s", e.Path, e.Root)
	}
	return fmt.Sprintf("source path %q not found in %s", e.Path, e.Root)
}

// Unwrap returns ErrMissingPath for errors.Is() compatibility.
func (e *MissingPathError) Unwrap() error { return ErrMissingPath }

// Error implements the error interface.
func (e *ProvisionError) Error() string {
	return fmt.Sprintf("step %d (%s) failed: %v", e.StepIndex, e.Kind, e.Cause)
}

// Unwrap returns the cause.
func (e *ProvisionError) Unwrap() error { return e.Cause }

// ExitCode returns the exit status of the command that failed the step, or 1
// when the failure was not a command exit.
func (e *ProvisionError) ExitCode() types.ExitCode {
	var execErr *StepExecutionError
	if errors.As(e.Cause, &execErr) && execErr.Err == nil {
		return execErr.ExitCode.Failure()
	}
	return 1
}
