// SPDX-License-Identifier: MPL-2.0

package container

import (
	"bytes"
	"context"
	"fmt"
	"maps"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"

	"github.com/invowk/stepper/internal/issue"
)

type (
	// ExecCommandFunc creates an exec.Cmd; tests replace it to capture arguments.
	ExecCommandFunc func(ctx context.Context, name string, arg ...string) *exec.Cmd

	// BaseCLIEngineOption configures a BaseCLIEngine.
	BaseCLIEngineOption func(*BaseCLIEngine)

	// BaseCLIEngine provides the argument building and execution shared by
	// CLI-based engines. Docker and Podman embed it.
	BaseCLIEngine struct {
		name        EngineType
		binaryPath  string
		execCommand ExecCommandFunc
		lookPath    func(string) (string, error)
	}
)

// WithExecCommand sets the function used to create commands.
func WithExecCommand(fn ExecCommandFunc) BaseCLIEngineOption {
	return func(e *BaseCLIEngine) {
		e.execCommand = fn
	}
}

// WithBinaryPath skips the PATH lookup and uses the given binary.
func WithBinaryPath(path string) BaseCLIEngineOption {
	return func(e *BaseCLIEngine) {
		e.binaryPath = path
		e.lookPath = nil
	}
}

// WithLookPath replaces exec.LookPath for resolving the engine binary.
func WithLookPath(fn func(string) (string, error)) BaseCLIEngineOption {
	return func(e *BaseCLIEngine) {
		if e.binaryPath == "" {
			e.lookPath = fn
		}
	}
}

// newBaseCLIEngine resolves the binary for name on PATH unless an option
// sets it explicitly.
func newBaseCLIEngine(name EngineType, opts ...BaseCLIEngineOption) *BaseCLIEngine {
	e := &BaseCLIEngine{
		name:        name,
		execCommand: exec.CommandContext,
		lookPath:    exec.LookPath,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.binaryPath == "" && e.lookPath != nil {
		e.binaryPath, _ = e.lookPath(string(name))
	}
	return e
}

// Name returns the engine type.
func (e *BaseCLIEngine) Name() EngineType {
	return e.name
}

// BinaryPath returns the path to the container engine binary, or "" when
// it was not found.
func (e *BaseCLIEngine) BinaryPath() string {
	return e.binaryPath
}

// --- Argument Builders ---

// BuildArgs constructs arguments for a build command. Build args are sorted
// so the command line is reproducible.
//
// Generated command: <binary> build [options] <context>
func (e *BaseCLIEngine) BuildArgs(opts BuildOptions) []string {
	args := []string{"build"}

	if opts.Containerfile != "" {
		path := opts.Containerfile
		if !filepath.IsAbs(path) && opts.ContextDir != "" {
			path = filepath.Join(opts.ContextDir, path)
		}
		args = append(args, "-f", path)
	}

	if opts.Tag != "" {
		args = append(args, "-t", opts.Tag)
	}

	if opts.NoCache {
		args = append(args, "--no-cache")
	}

	for _, k := range slices.Sorted(maps.Keys(opts.BuildArgs)) {
		args = append(args, "--build-arg", fmt.Sprintf("%s=%s", k, opts.BuildArgs[k]))
	}

	return append(args, opts.ContextDir)
}

// RemoveImageArgs constructs arguments for removing an image.
func (e *BaseCLIEngine) RemoveImageArgs(tag string, force bool) []string {
	args := []string{"rmi"}
	if force {
		args = append(args, "-f")
	}
	return append(args, tag)
}

// --- Command Execution ---

// CreateCommand creates an exec.Cmd for the given arguments.
func (e *BaseCLIEngine) CreateCommand(ctx context.Context, args ...string) *exec.Cmd {
	return e.execCommand(ctx, e.binaryPath, args...)
}

// RunCommandStatus executes a command and returns only the error status.
func (e *BaseCLIEngine) RunCommandStatus(ctx context.Context, args ...string) error {
	if err := e.CreateCommand(ctx, args...).Run(); err != nil {
		return fmt.Errorf("command %s %v failed: %w", e.binaryPath, args, err)
	}
	return nil
}

// RunCommandWithOutput executes a command with stdout captured to a buffer.
func (e *BaseCLIEngine) RunCommandWithOutput(ctx context.Context, args ...string) (string, error) {
	cmd := e.CreateCommand(ctx, args...)
	var out bytes.Buffer
	cmd.Stdout = &out

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("command %s %v failed: %w", e.binaryPath, args, err)
	}
	return out.String(), nil
}

// Build builds an image from a Containerfile.
func (e *BaseCLIEngine) Build(ctx context.Context, opts BuildOptions) error {
	if err := opts.Validate(); err != nil {
		return err
	}

	cmd := e.CreateCommand(ctx, e.BuildArgs(opts)...)
	cmd.Stdout = opts.Stdout
	cmd.Stderr = opts.Stderr

	if err := cmd.Run(); err != nil {
		return buildContainerError(e.name, opts, err)
	}
	return nil
}

// RemoveImage removes an image.
func (e *BaseCLIEngine) RemoveImage(ctx context.Context, tag string, force bool) error {
	return e.RunCommandStatus(ctx, e.RemoveImageArgs(tag, force)...)
}

// probe reports whether the binary exists and `version` succeeds.
func (e *BaseCLIEngine) probe(format string) bool {
	if e.binaryPath == "" {
		return false
	}
	return e.CreateCommand(context.Background(), "version", "--format", format).Run() == nil
}

func (e *BaseCLIEngine) version(ctx context.Context, format string) (string, error) {
	out, err := e.RunCommandWithOutput(ctx, "version", "--format", format)
	if err != nil {
		return "", fmt.Errorf("failed to get %s version: %w", e.name, err)
	}
	return strings.TrimSpace(out), nil
}

// buildContainerError creates an actionable error for build failures.
func buildContainerError(engine EngineType, opts BuildOptions, cause error) error {
	ctx := issue.NewErrorContext().
		WithOperation("build container image")

	switch {
	case opts.Containerfile != "":
		ctx.WithResource(opts.Containerfile)
	case opts.Tag != "":
		ctx.WithResource(opts.Tag)
	default:
		ctx.WithResource(opts.ContextDir)
	}

	ctx.WithSuggestion("Check the rendered Containerfile with 'stepper dockerfile'")
	ctx.WithSuggestion("Verify the build context contains every copy-files source")
	ctx.WithSuggestion("Ensure the base image is available (try: " + string(engine) + " pull <base-image>)")

	return ctx.Wrap(cause).BuildError()
}
