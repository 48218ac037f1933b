// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/invowk/stepper/internal/issue"
	"github.com/invowk/stepper/pkg/stepfile"
)

// resolveStepfilePath returns path, or the default stepfile in the current
// directory when path is empty.
func resolveStepfilePath(path string) (string, error) {
	if path != "" {
		return path, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}
	found, err := stepfile.Find(cwd)
	if err != nil {
		return "", issue.NewErrorContext().
			WithOperation("find stepfile").
			WithResource(cwd).
			WithSuggestion("Run 'stepper init' to create a stepfile").
			WithSuggestion("Point at an existing file with --file").
			WithIssue(issue.StepfileNotFoundId).
			Wrap(err).
			BuildError()
	}
	return found, nil
}

// loadStepfile resolves, parses and validates the stepfile.
func loadStepfile(path string) (*stepfile.Stepfile, error) {
	path, err := resolveStepfilePath(path)
	if err != nil {
		return nil, err
	}

	sf, err := stepfile.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, issue.NewErrorContext().
			WithOperation("load stepfile").
			WithResource(path).
			WithSuggestion("Check the path passed to --file").
			WithIssue(issue.StepfileNotFoundId).
			Wrap(err).
			BuildError()
	}
	if err != nil {
		return nil, issue.NewErrorContext().
			WithOperation("load stepfile").
			WithResource(path).
			WithSuggestion("Fix the problems listed above; every problem is reported at once").
			WithSuggestion("Run 'stepper init --format cue' in an empty directory for a working example").
			WithIssue(issue.StepfileInvalidId).
			Wrap(err).
			BuildError()
	}
	return sf, nil
}
