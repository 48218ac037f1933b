// SPDX-License-Identifier: MPL-2.0

package container

import "context"

// DockerEngine implements the Engine interface using Docker CLI.
// It embeds BaseCLIEngine for common CLI operations.
type DockerEngine struct {
	*BaseCLIEngine
}

// NewDockerEngine creates a new Docker engine.
func NewDockerEngine(opts ...BaseCLIEngineOption) *DockerEngine {
	return &DockerEngine{BaseCLIEngine: newBaseCLIEngine(EngineTypeDocker, opts...)}
}

// Available checks that the Docker daemon answers, not just that the CLI exists.
func (e *DockerEngine) Available() bool {
	return e.probe("{{.Server.Version}}")
}

// Version returns the Docker server version.
func (e *DockerEngine) Version(ctx context.Context) (string, error) {
	return e.version(ctx, "{{.Server.Version}}")
}

// ImageExists checks if an image exists.
func (e *DockerEngine) ImageExists(ctx context.Context, tag string) (bool, error) {
	err := e.RunCommandStatus(ctx, "image", "inspect", tag)
	return err == nil, nil
}
