// SPDX-License-Identifier: MPL-2.0

package stepfile

import (
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

var (
	// ErrInvalidStep is the sentinel error wrapped by InvalidStepError.
	ErrInvalidStep = errors.New("invalid step")
	// ErrNoSteps is returned when a step sequence is empty.
	ErrNoSteps = errors.New("no steps to run")
	// ErrInvalidStepfile is the sentinel error wrapped by ValidationError.
	ErrInvalidStepfile = errors.New("invalid stepfile")

	// packageNamePattern accepts Debian package names with an optional
	// "=version" pin or ":arch" qualifier.
	packageNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9+.-]*(:[a-z0-9]+)?(=[A-Za-z0-9.+~:-]+)?$`)
	envNamePattern     = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

type (
	// InvalidStepError describes one problem with one step.
	InvalidStepError struct {
		Index  int
		Kind   Kind
		Field  string
		Reason string
	}

	// ValidationError collects every InvalidStepError found in a sequence.
	// It is returned before any step runs.
	ValidationError struct {
		FieldErrors []error
	}
)

// Error implements the error interface.
func (e *InvalidStepError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("step %d (%s): %s", e.Index, e.Kind, e.Reason)
	}
	return fmt.Sprintf("step %d (%s): %s: %s", e.Index, e.Kind, e.Field, e.Reason)
}

// Unwrap returns ErrInvalidStep for errors.Is() compatibility.
func (e *InvalidStepError) Unwrap() error { return ErrInvalidStep }

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if len(e.FieldErrors) == 1 {
		return "invalid stepfile: " + e.FieldErrors[0].Error()
	}
	lines := make([]string, 0, len(e.FieldErrors))
	for _, fe := range e.FieldErrors {
		lines = append(lines, fe.Error())
	}
	return fmt.Sprintf("invalid stepfile: %d problem(s):\n  %s", len(e.FieldErrors), strings.Join(lines, "\n  "))
}

// Unwrap exposes the sentinel and every field error to errors.Is/As.
func (e *ValidationError) Unwrap() []error {
	return append([]error{ErrInvalidStepfile}, e.FieldErrors...)
}

// ValidateSteps checks every step and returns a *ValidationError listing all
// problems, or nil. An empty sequence is invalid.
func ValidateSteps(steps []Step) error {
	if len(steps) == 0 {
		return &ValidationError{FieldErrors: []error{ErrNoSteps}}
	}

	var errs []error
	for i, s := range steps {
		errs = append(errs, s.validate(i)...)
	}
	if len(errs) > 0 {
		return &ValidationError{FieldErrors: errs}
	}
	return nil
}

// Validate checks a single step in isolation.
func (s Step) Validate() error {
	if errs := s.validate(0); len(errs) > 0 {
		return &ValidationError{FieldErrors: errs}
	}
	return nil
}

func (s Step) validate(index int) []error {
	issue := func(field, format string, args ...any) error {
		return &InvalidStepError{Index: index, Kind: s.Kind, Field: field, Reason: fmt.Sprintf(format, args...)}
	}

	if err := s.Kind.Validate(); err != nil {
		return []error{issue("kind", "%s", err)}
	}

	var errs []error
	for _, field := range s.unexpectedFields() {
		errs = append(errs, issue(field, "not allowed for this step kind"))
	}

	switch s.Kind {
	case KindSystemPackages:
		if len(s.Packages) == 0 {
			errs = append(errs, issue("packages", "at least one package is required"))
		}
		for i, p := range s.Packages {
			if !packageNamePattern.MatchString(p) {
				errs = append(errs, issue(fmt.Sprintf("packages[%d]", i), "%q is not a valid package name", p))
			}
		}
	case KindPackageManager:
		if strings.TrimSpace(s.Tool) == "" {
			errs = append(errs, issue("tool", "must not be empty"))
		} else if strings.ContainsAny(s.Tool, " \t\n") {
			errs = append(errs, issue("tool", "%q must be a single package name", s.Tool))
		}
	case KindWorkDir:
		if strings.TrimSpace(s.Path) == "" {
			errs = append(errs, issue("path", "must not be empty"))
		} else if strings.ContainsRune(s.Path, 0) {
			errs = append(errs, issue("path", "contains a NUL byte"))
		}
	case KindEnv:
		if !envNamePattern.MatchString(s.Name) {
			errs = append(errs, issue("name", "%q is not a valid environment variable name", s.Name))
		}
	case KindCopy:
		errs = append(errs, validateCopySource(s.Source, issue)...)
		if strings.TrimSpace(s.Dest) == "" {
			errs = append(errs, issue("dest", "must not be empty"))
		}
	case KindRun:
		if strings.TrimSpace(s.Command) == "" {
			errs = append(errs, issue("command", "must not be empty"))
		} else if _, err := syntax.NewParser().Parse(strings.NewReader(s.Command), ""); err != nil {
			errs = append(errs, issue("command", "syntax error: %v", err))
		}
	}
	return errs
}

// validateCopySource requires a relative path that stays inside the source root.
func validateCopySource(source string, issue func(field, format string, args ...any) error) []error {
	if strings.TrimSpace(source) == "" {
		return []error{issue("source", "must not be empty")}
	}
	slashed := strings.ReplaceAll(source, `\`, "/")
	if path.IsAbs(slashed) {
		return []error{issue("source", "%q must be relative to the source root", source)}
	}
	cleaned := path.Clean(slashed)
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return []error{issue("source", "%q escapes the source root", source)}
	}
	return nil
}

// unexpectedFields lists populated fields that do not belong to s.Kind.
func (s Step) unexpectedFields() []string {
	set := map[string]bool{
		"packages": len(s.Packages) > 0,
		"tool":     s.Tool != "",
		"path":     s.Path != "",
		"name":     s.Name != "",
		"value":    s.Value != "",
		"source":   s.Source != "",
		"dest":     s.Dest != "",
		"command":  s.Command != "",
	}
	allowed := map[Kind][]string{
		KindSystemPackages: {"packages"},
		KindPackageManager: {"tool"},
		KindWorkDir:        {"path"},
		KindEnv:            {"name", "value"},
		KindCopy:           {"source", "dest"},
		KindRun:            {"command"},
	}
	for _, f := range allowed[s.Kind] {
		delete(set, f)
	}

	var fields []string
	for _, f := range []string{"packages", "tool", "path", "name", "value", "source", "dest", "command"} {
		if set[f] {
			fields = append(fields, f)
		}
	}
	return fields
}
