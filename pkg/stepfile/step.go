// SPDX-License-Identifier: MPL-2.0

package stepfile

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

const (
	// KindSystemPackages installs OS packages through the system package source.
	KindSystemPackages Kind = "install-system-packages"
	// KindPackageManager installs a package manager with the base runtime's installer.
	KindPackageManager Kind = "install-package-manager"
	// KindWorkDir changes the working directory of later steps.
	KindWorkDir Kind = "set-working-directory"
	// KindEnv sets an environment variable for later steps and the produced artifact.
	KindEnv Kind = "set-environment-variable"
	// KindCopy copies a file or directory tree from the source root.
	KindCopy Kind = "copy-files"
	// KindRun runs a shell command.
	KindRun Kind = "run-command"
)

// ErrInvalidKind is the sentinel error wrapped by InvalidKindError.
var ErrInvalidKind = errors.New("invalid step kind")

type (
	// Kind identifies what a Step does.
	Kind string

	// InvalidKindError is returned when a Kind is not one of the six known kinds.
	InvalidKindError struct {
		Value Kind
	}

	// Step is a single provisioning instruction. Only the fields relevant to
	// Kind are set; the rest stay empty. Steps are created once when a
	// stepfile is loaded and are never modified afterwards.
	Step struct {
		Kind Kind `json:"kind" yaml:"kind" toml:"kind"`

		// Packages lists OS package names (install-system-packages).
		Packages []string `json:"packages,omitempty" yaml:"packages,omitempty" toml:"packages,omitempty"`
		// Tool is the package manager to install (install-package-manager).
		Tool string `json:"tool,omitempty" yaml:"tool,omitempty" toml:"tool,omitempty"`
		// Path is the new working directory (set-working-directory).
		Path string `json:"path,omitempty" yaml:"path,omitempty" toml:"path,omitempty"`
		// Name and Value describe the variable (set-environment-variable).
		Name  string `json:"name,omitempty" yaml:"name,omitempty" toml:"name,omitempty"`
		Value string `json:"value,omitempty" yaml:"value,omitempty" toml:"value,omitempty"`
		// Source is relative to the source root; Dest is relative to the
		// working directory unless absolute (copy-files).
		Source string `json:"source,omitempty" yaml:"source,omitempty" toml:"source,omitempty"`
		Dest   string `json:"dest,omitempty" yaml:"dest,omitempty" toml:"dest,omitempty"`
		// Command is a POSIX shell command line (run-command).
		Command string `json:"command,omitempty" yaml:"command,omitempty" toml:"command,omitempty"`
	}
)

// Kinds returns all step kinds in documentation order.
func Kinds() []Kind {
	return []Kind{KindSystemPackages, KindPackageManager, KindWorkDir, KindEnv, KindCopy, KindRun}
}

// String returns the wire name of the kind.
func (k Kind) String() string { return string(k) }

// Validate returns an error if k is not a known kind.
func (k Kind) Validate() error {
	if slices.Contains(Kinds(), k) {
		return nil
	}
	return &InvalidKindError{Value: k}
}

// Error implements the error interface.
func (e *InvalidKindError) Error() string {
	return fmt.Sprintf("unknown step kind %q (expected one of: %s)", e.Value, kindList())
}

// Unwrap returns ErrInvalidKind for errors.Is() compatibility.
func (e *InvalidKindError) Unwrap() error { return ErrInvalidKind }

func kindList() string {
	names := make([]string, 0, len(Kinds()))
	for _, k := range Kinds() {
		names = append(names, string(k))
	}
	return strings.Join(names, ", ")
}

// SystemPackages returns an install-system-packages step.
func SystemPackages(packages ...string) Step {
	return Step{Kind: KindSystemPackages, Packages: slices.Clone(packages)}
}

// PackageManager returns an install-package-manager step.
func PackageManager(tool string) Step {
	return Step{Kind: KindPackageManager, Tool: tool}
}

// WorkDir returns a set-working-directory step.
func WorkDir(path string) Step {
	return Step{Kind: KindWorkDir, Path: path}
}

// Env returns a set-environment-variable step.
func Env(name, value string) Step {
	return Step{Kind: KindEnv, Name: name, Value: value}
}

// Copy returns a copy-files step.
func Copy(source, dest string) Step {
	return Step{Kind: KindCopy, Source: source, Dest: dest}
}

// Run returns a run-command step.
func Run(command string) Step {
	return Step{Kind: KindRun, Command: command}
}

// PackageList returns a copy of the step's package names.
func (s Step) PackageList() []string {
	return slices.Clone(s.Packages)
}

// Describe returns a short human-readable summary, e.g. "copy-files . -> .".
func (s Step) Describe() string {
	switch s.Kind {
	case KindSystemPackages:
		return fmt.Sprintf("%s %s", s.Kind, strings.Join(s.Packages, " "))
	case KindPackageManager:
		return fmt.Sprintf("%s %s", s.Kind, s.Tool)
	case KindWorkDir:
		return fmt.Sprintf("%s %s", s.Kind, s.Path)
	case KindEnv:
		return fmt.Sprintf("%s %s=%s", s.Kind, s.Name, s.Value)
	case KindCopy:
		return fmt.Sprintf("%s %s -> %s", s.Kind, s.Source, s.Dest)
	case KindRun:
		return fmt.Sprintf("%s %s", s.Kind, s.Command)
	default:
		return string(s.Kind)
	}
}
