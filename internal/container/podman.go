// SPDX-License-Identifier: MPL-2.0

package container

import "context"

// PodmanEngine implements the Engine interface using Podman CLI.
// It embeds BaseCLIEngine for common CLI operations.
type PodmanEngine struct {
	*BaseCLIEngine
}

// NewPodmanEngine creates a new Podman engine.
func NewPodmanEngine(opts ...BaseCLIEngineOption) *PodmanEngine {
	return &PodmanEngine{BaseCLIEngine: newBaseCLIEngine(EngineTypePodman, opts...)}
}

// Available checks if Podman is available.
func (e *PodmanEngine) Available() bool {
	return e.probe("{{.Version}}")
}

// Version returns the Podman version.
func (e *PodmanEngine) Version(ctx context.Context) (string, error) {
	return e.version(ctx, "{{.Version}}")
}

// ImageExists checks if an image exists. Podman has a dedicated subcommand
// that exits 1 for a missing image.
func (e *PodmanEngine) ImageExists(ctx context.Context, tag string) (bool, error) {
	err := e.RunCommandStatus(ctx, "image", "exists", tag)
	return err == nil, nil
}
