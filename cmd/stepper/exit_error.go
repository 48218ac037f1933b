// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/invowk/stepper/internal/config"
	"github.com/invowk/stepper/internal/container"
	"github.com/invowk/stepper/internal/issue"
	"github.com/invowk/stepper/internal/provision"
	"github.com/invowk/stepper/internal/runtime"
	"github.com/invowk/stepper/pkg/stepfile"
	"github.com/invowk/stepper/pkg/types"
)

// ExitError signals a non-zero exit code without forcing os.Exit in RunE
// handlers. A nil Err means the failure was already shown to the user.
type ExitError struct {
	Code types.ExitCode
	Err  error
}

// Error returns the error message for ExitError.
func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("exit status %d", e.Code)
}

// Unwrap returns the underlying error, if any.
func (e *ExitError) Unwrap() error {
	return e.Err
}

// exitCodeFor returns the failing command's exit code for provisioning
// errors and 1 for everything else.
func exitCodeFor(err error) types.ExitCode {
	var provErr *provision.ProvisionError
	if errors.As(err, &provErr) {
		return provErr.ExitCode()
	}
	return 1
}

// classifyError picks the issue guide that explains err, or nil.
func classifyError(err error) *issue.Issue {
	var ae *issue.ActionableError
	if errors.As(err, &ae) {
		if guide := ae.Guide(); guide != nil {
			return guide
		}
	}

	var provErr *provision.ProvisionError
	switch {
	case errors.Is(err, stepfile.ErrStepfileNotFound):
		return issue.Get(issue.StepfileNotFoundId)
	case errors.Is(err, stepfile.ErrInvalidStepfile), errors.Is(err, stepfile.ErrUnknownFormat):
		return issue.Get(issue.StepfileInvalidId)
	case errors.Is(err, provision.ErrMissingPath):
		return issue.Get(issue.MissingPathId)
	case errors.As(err, &provErr) && errors.Is(err, provision.ErrStepExecution) && isInstallStep(provErr.Kind):
		return issue.Get(issue.PackageInstallFailedId)
	case errors.Is(err, provision.ErrStepExecution):
		return issue.Get(issue.CommandFailedId)
	case errors.Is(err, runtime.ErrRunnerUnavailable), errors.Is(err, runtime.ErrRunnerNotRegistered):
		return issue.Get(issue.RunnerUnavailableId)
	case errors.Is(err, container.ErrEngineNotAvailable):
		return issue.Get(issue.ContainerEngineNotFoundId)
	case errors.Is(err, config.ErrInvalidConfig):
		return issue.Get(issue.ConfigLoadFailedId)
	case errors.Is(err, fs.ErrPermission):
		return issue.Get(issue.PermissionDeniedId)
	default:
		return nil
	}
}

func isInstallStep(kind stepfile.Kind) bool {
	return kind == stepfile.KindSystemPackages || kind == stepfile.KindPackageManager
}
