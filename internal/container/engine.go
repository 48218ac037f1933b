// SPDX-License-Identifier: MPL-2.0

package container

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	// EngineTypeAuto picks Podman when installed, otherwise Docker.
	EngineTypeAuto EngineType = "auto"
	// EngineTypePodman is the Podman CLI.
	EngineTypePodman EngineType = "podman"
	// EngineTypeDocker is the Docker CLI.
	EngineTypeDocker EngineType = "docker"
)

var (
	// ErrEngineNotAvailable is the sentinel error wrapped by EngineNotAvailableError.
	ErrEngineNotAvailable = errors.New("container engine not available")
	// ErrUnknownEngineType is returned for engine names other than auto, podman and docker.
	ErrUnknownEngineType = errors.New("unknown container engine type")
	// ErrInvalidBuildOptions is the sentinel error wrapped by InvalidBuildOptionsError.
	ErrInvalidBuildOptions = errors.New("invalid build options")
)

type (
	// Engine defines the container operations stepper needs.
	Engine interface {
		// Name returns the engine type.
		Name() EngineType
		// Available reports whether the engine binary exists and answers.
		Available() bool
		// Version returns the engine version.
		Version(ctx context.Context) (string, error)
		// Build builds an image from a Containerfile.
		Build(ctx context.Context, opts BuildOptions) error
		// ImageExists reports whether an image tag exists locally.
		ImageExists(ctx context.Context, tag string) (bool, error)
		// RemoveImage removes an image.
		RemoveImage(ctx context.Context, tag string, force bool) error
	}

	// EngineType identifies the container engine type.
	EngineType string

	// BuildOptions contains options for building an image.
	BuildOptions struct {
		// ContextDir is the build context directory.
		ContextDir string
		// Containerfile is the path to the Containerfile (relative to ContextDir).
		Containerfile string
		// Tag is the image tag.
		Tag string
		// BuildArgs are build-time variables.
		BuildArgs map[string]string
		// NoCache disables the build cache.
		NoCache bool
		// Stdout receives build output.
		Stdout io.Writer
		// Stderr receives build errors.
		Stderr io.Writer
	}

	// InvalidBuildOptionsError lists every problem with a BuildOptions value.
	InvalidBuildOptionsError struct {
		Problems []string
	}

	// EngineNotAvailableError is returned when no usable engine is installed.
	EngineNotAvailableError struct {
		Engine EngineType
		Reason string
	}
)

// Validate checks the options before any command runs.
func (o BuildOptions) Validate() error {
	var problems []string
	if strings.TrimSpace(o.ContextDir) == "" {
		problems = append(problems, "context directory is required")
	}
	if o.Tag != "" && strings.ContainsAny(o.Tag, " \t\n") {
		problems = append(problems, fmt.Sprintf("tag %q contains whitespace", o.Tag))
	}
	for k := range o.BuildArgs {
		if k == "" || strings.Contains(k, "=") {
			problems = append(problems, fmt.Sprintf("build arg name %q is invalid", k))
		}
	}
	if len(problems) > 0 {
		return &InvalidBuildOptionsError{Problems: problems}
	}
	return nil
}

// Error implements the error interface.
func (e *InvalidBuildOptionsError) Error() string {
	return "invalid build options: " + strings.Join(e.Problems, "; ")
}

// Unwrap returns ErrInvalidBuildOptions for errors.Is() compatibility.
func (e *InvalidBuildOptionsError) Unwrap() error { return ErrInvalidBuildOptions }

// Error implements the error interface.
func (e *EngineNotAvailableError) Error() string {
	return fmt.Sprintf("container engine '%s' is not available: %s", e.Engine, e.Reason)
}

// Unwrap returns ErrEngineNotAvailable for errors.Is() compatibility.
func (e *EngineNotAvailableError) Unwrap() error { return ErrEngineNotAvailable }

// NewEngine returns an available engine, preferring the requested type and
// falling back to the other one.
func NewEngine(preferred EngineType, opts ...BaseCLIEngineOption) (Engine, error) {
	podman := NewPodmanEngine(opts...)
	docker := NewDockerEngine(opts...)

	var order []Engine
	switch preferred {
	case EngineTypeAuto, "":
		return AutoDetectEngine(opts...)
	case EngineTypePodman:
		order = []Engine{podman, docker}
	case EngineTypeDocker:
		order = []Engine{docker, podman}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownEngineType, preferred)
	}

	for _, e := range order {
		if e.Available() {
			return e, nil
		}
	}
	return nil, &EngineNotAvailableError{
		Engine: preferred,
		Reason: fmt.Sprintf("%s is not installed or not accessible, and %s fallback is also not available", order[0].Name(), order[1].Name()),
	}
}

// AutoDetectEngine tries to find an available container engine
func AutoDetectEngine(opts ...BaseCLIEngineOption) (Engine, error) {
	// Podman first: rootless setups usually have it
	if podman := NewPodmanEngine(opts...); podman.Available() {
		return podman, nil
	}
	if docker := NewDockerEngine(opts...); docker.Available() {
		return docker, nil
	}

	return nil, &EngineNotAvailableError{
		Engine: EngineTypeAuto,
		Reason: "no container engine (podman or docker) is available on this system",
	}
}
