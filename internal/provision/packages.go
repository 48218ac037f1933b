// SPDX-License-Identifier: MPL-2.0

package provision

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
)

type (
	// Executor runs commands for a step and maps target paths to host paths.
	Executor interface {
		// Exec runs argv as a single command in the current working directory
		// and environment. A non-zero exit returns a *StepExecutionError.
		Exec(ctx context.Context, argv ...string) error
		// HostDir maps a target path to the host path under the destination root.
		HostDir(p string) string
	}

	// PackageSource installs OS packages.
	PackageSource interface {
		Install(ctx context.Context, ex Executor, packages []string) error
	}

	// ToolInstaller installs a package manager using the base runtime's own
	// installer.
	ToolInstaller interface {
		Install(ctx context.Context, ex Executor, tool string) error
	}

	// AptSource installs packages with apt. It refreshes the package index,
	// installs non-interactively and then always empties CacheDirs, whether
	// or not the install succeeded.
	AptSource struct {
		UpdateCommand  []string
		InstallCommand []string
		CacheDirs      []string
	}

	// PipInstaller installs a tool with the Python installer.
	PipInstaller struct {
		Command []string
	}
)

// NewAptSource returns an AptSource configured from cmds.
func NewAptSource(cmds Commands) *AptSource {
	return &AptSource{
		UpdateCommand:  slices.Clone(cmds.Update),
		InstallCommand: slices.Clone(cmds.Install),
		CacheDirs:      slices.Clone(cmds.CacheDirs),
	}
}

// Install refreshes the index and installs packages.
func (a *AptSource) Install(ctx context.Context, ex Executor, packages []string) (err error) {
	if len(packages) == 0 {
		return nil
	}

	defer func() {
		if cleanErr := a.clean(ex); cleanErr != nil && err == nil {
			err = cleanErr
		}
	}()

	if len(a.UpdateCommand) > 0 {
		if err := ex.Exec(ctx, a.UpdateCommand...); err != nil {
			return err
		}
	}

	argv := append(slices.Clone(a.InstallCommand), packages...)
	return ex.Exec(ctx, argv...)
}

// clean removes the contents of every cache directory, keeping the
// directories themselves.
func (a *AptSource) clean(ex Executor) error {
	var errs []error
	for _, dir := range a.CacheDirs {
		hostDir := ex.HostDir(dir)
		entries, err := os.ReadDir(hostDir)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				errs = append(errs, fmt.Errorf("failed to read cache directory %s: %w", dir, err))
			}
			continue
		}
		for _, entry := range entries {
			if err := os.RemoveAll(filepath.Join(hostDir, entry.Name())); err != nil {
				errs = append(errs, fmt.Errorf("failed to clean cache directory %s: %w", dir, err))
			}
		}
	}
	return errors.Join(errs...)
}

// NewPipInstaller returns a PipInstaller configured from cmds.
func NewPipInstaller(cmds Commands) *PipInstaller {
	return &PipInstaller{Command: slices.Clone(cmds.ToolInstall)}
}

// Install runs the installer command followed by tool.
func (p *PipInstaller) Install(ctx context.Context, ex Executor, tool string) error {
	argv := append(slices.Clone(p.Command), tool)
	return ex.Exec(ctx, argv...)
}
