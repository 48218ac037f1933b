// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/invowk/stepper/internal/issue"
	"github.com/invowk/stepper/internal/testutil"
)

// Stepfile discovery reads the working directory, so these tests do not
// run in parallel.

func TestResolveStepfilePath_FindsStepfileInWorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteFile(t, filepath.Join(dir, "stepfile.yaml"), "steps: []\n")
	t.Cleanup(testutil.MustChdir(t, dir))

	got, err := resolveStepfilePath("")
	if err != nil {
		t.Fatalf("resolveStepfilePath() error = %v", err)
	}
	if filepath.Base(got) != "stepfile.yaml" {
		t.Errorf("resolveStepfilePath() = %q, want stepfile.yaml", got)
	}
}

func TestResolveStepfilePath_NoneFound(t *testing.T) {
	t.Cleanup(testutil.MustChdir(t, t.TempDir()))

	_, err := resolveStepfilePath("")
	var ae *issue.ActionableError
	if !errors.As(err, &ae) {
		t.Fatalf("error = %T %v, want *issue.ActionableError", err, err)
	}
	if guide := classifyError(err); guide == nil || guide.Id() != issue.StepfileNotFoundId {
		t.Errorf("classifyError() = %v, want the stepfile-not-found guide", guide)
	}
}

func TestResolveStepfilePath_ExplicitPathUnchanged(t *testing.T) {
	t.Parallel()

	got, err := resolveStepfilePath("deploy/stepfile.toml")
	if err != nil || got != "deploy/stepfile.toml" {
		t.Errorf("resolveStepfilePath() = %q, %v", got, err)
	}
}
