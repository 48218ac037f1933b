// SPDX-License-Identifier: MPL-2.0

package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/invowk/stepper/pkg/types"

	"mvdan.cc/sh/v3/syntax"
)

// Runner name constants.
const (
	NameNative  Name = "native"
	NameVirtual Name = "virtual"
)

var (
	// ErrRunnerNotRegistered is returned by Registry.Get for unknown names.
	ErrRunnerNotRegistered = errors.New("runner not registered")
	// ErrRunnerUnavailable is returned when a runner cannot run on this system.
	ErrRunnerUnavailable = errors.New("runner not available")
	// ErrEmptyScript is returned by Validate for blank scripts.
	ErrEmptyScript = errors.New("script has no content to execute")
)

type (
	// Name identifies a runner implementation.
	Name string

	// Command describes one shell invocation.
	Command struct {
		// Script is a POSIX shell command line.
		Script string
		// Dir is the host working directory. Empty means the current directory.
		Dir string
		// Env is laid over the host environment; entries here win.
		Env map[string]string
		// Stdin, Stdout and Stderr default to nothing, io.Discard and io.Discard.
		Stdin  io.Reader
		Stdout io.Writer
		Stderr io.Writer
	}

	// Result contains the outcome of a command.
	Result struct {
		// ExitCode is the exit status of the command.
		ExitCode types.ExitCode
		// Error is set when the command could not be started or was interrupted,
		// as opposed to exiting with a non-zero status.
		Error error
	}

	// Runner runs shell commands.
	Runner interface {
		// Name returns the runner name.
		Name() Name
		// Available returns whether this runner can be used on the current system.
		Available() bool
		// Validate checks that script can be run by this runner.
		Validate(script string) error
		// Run executes cmd and blocks until it exits or ctx is cancelled.
		Run(ctx context.Context, cmd *Command) *Result
	}

	// Registry holds runners by name.
	Registry struct {
		runners map[Name]Runner
	}
)

// String returns the runner name.
func (n Name) String() string { return string(n) }

// Success returns true if the command exited zero and no error occurred.
func (r *Result) Success() bool {
	return r.ExitCode.IsSuccess() && r.Error == nil
}

// NewRegistry returns a registry containing the native and virtual runners.
func NewRegistry() *Registry {
	r := &Registry{runners: make(map[Name]Runner)}
	r.Register(NewNativeRunner())
	r.Register(NewVirtualRunner())
	return r
}

// Register adds or replaces a runner under its own name.
func (r *Registry) Register(rn Runner) {
	r.runners[rn.Name()] = rn
}

// Get returns the runner registered under name, failing if it is unknown or
// unavailable on this system.
func (r *Registry) Get(name Name) (Runner, error) {
	rn, ok := r.runners[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %s)", ErrRunnerNotRegistered, name, strings.Join(r.names(), ", "))
	}
	if !rn.Available() {
		return nil, fmt.Errorf("%w: %q", ErrRunnerUnavailable, name)
	}
	return rn, nil
}

// Available returns the names of runners usable on this system, sorted.
func (r *Registry) Available() []Name {
	var names []Name
	for name, rn := range r.runners {
		if rn.Available() {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}

func (r *Registry) names() []string {
	names := make([]string, 0, len(r.runners))
	for name := range r.runners {
		names = append(names, string(name))
	}
	slices.Sort(names)
	return names
}

// HostEnv returns the current process environment as a map.
func HostEnv() map[string]string {
	env := make(map[string]string)
	for _, entry := range os.Environ() {
		name, value, ok := strings.Cut(entry, "=")
		if !ok || name == "" {
			continue
		}
		env[name] = value
	}
	return env
}

// MergeEnv returns the host environment overlaid with overlay.
func MergeEnv(overlay map[string]string) map[string]string {
	env := HostEnv()
	maps.Copy(env, overlay)
	return env
}

// EnvToSlice converts an environment map to NAME=value entries sorted by name.
func EnvToSlice(env map[string]string) []string {
	result := make([]string, 0, len(env))
	for _, k := range slices.Sorted(maps.Keys(env)) {
		result = append(result, k+"="+env[k])
	}
	return result
}

// QuoteArgs joins args into a single POSIX shell command line, quoting each
// argument as needed.
func QuoteArgs(args ...string) (string, error) {
	quoted := make([]string, 0, len(args))
	for _, arg := range args {
		q, err := syntax.Quote(arg, syntax.LangPOSIX)
		if err != nil {
			return "", fmt.Errorf("cannot quote argument %q: %w", arg, err)
		}
		quoted = append(quoted, q)
	}
	return strings.Join(quoted, " "), nil
}

// validateWorkDir returns a readable error when dir does not exist or is not a directory.
func validateWorkDir(dir string) error {
	if dir == "" {
		return nil
	}

	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("directory does not exist: %s", dir)
		}
		if os.IsPermission(err) {
			return fmt.Errorf("permission denied: %s", dir)
		}
		return fmt.Errorf("cannot access directory: %w", err)
	}

	if !info.IsDir() {
		return fmt.Errorf("not a directory: %s", dir)
	}

	return nil
}

func outputOrDiscard(w io.Writer) io.Writer {
	if w == nil {
		return io.Discard
	}
	return w
}
