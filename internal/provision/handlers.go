// SPDX-License-Identifier: MPL-2.0

package provision

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/invowk/stepper/internal/runtime"
	"github.com/invowk/stepper/pkg/stepfile"
)

type (
	// StepHandler executes one kind of step against a BuildContext.
	StepHandler interface {
		Handle(ctx context.Context, bc *BuildContext, step stepfile.Step) error
	}

	// StepHandlerFunc adapts a function to StepHandler.
	StepHandlerFunc func(ctx context.Context, bc *BuildContext, step stepfile.Step) error

	// stepExecutor runs commands for one step through the provisioner's runner.
	stepExecutor struct {
		p  *Provisioner
		bc *BuildContext
	}
)

// Handle calls f.
func (f StepHandlerFunc) Handle(ctx context.Context, bc *BuildContext, step stepfile.Step) error {
	return f(ctx, bc, step)
}

// defaultHandlers returns the built-in handler for every step kind.
func (p *Provisioner) defaultHandlers() map[stepfile.Kind]StepHandler {
	return map[stepfile.Kind]StepHandler{
		stepfile.KindSystemPackages: StepHandlerFunc(p.installSystemPackages),
		stepfile.KindPackageManager: StepHandlerFunc(p.installPackageManager),
		stepfile.KindWorkDir:        StepHandlerFunc(p.setWorkDir),
		stepfile.KindEnv:            StepHandlerFunc(p.setEnv),
		stepfile.KindCopy:           StepHandlerFunc(p.copyFiles),
		stepfile.KindRun:            StepHandlerFunc(p.runCommand),
	}
}

func (p *Provisioner) installSystemPackages(ctx context.Context, bc *BuildContext, step stepfile.Step) error {
	return p.packages.Install(ctx, &stepExecutor{p: p, bc: bc}, step.PackageList())
}

func (p *Provisioner) installPackageManager(ctx context.Context, bc *BuildContext, step stepfile.Step) error {
	return p.tools.Install(ctx, &stepExecutor{p: p, bc: bc}, step.Tool)
}

// setWorkDir changes the working directory and creates it.
func (p *Provisioner) setWorkDir(_ context.Context, bc *BuildContext, step stepfile.Step) error {
	bc.SetWorkDir(step.Path)
	if err := os.MkdirAll(bc.HostDir(bc.WorkDir), 0o755); err != nil {
		return fmt.Errorf("failed to create working directory %s: %w", bc.WorkDir, err)
	}
	return nil
}

// setEnv expands references to earlier variables and stores the result.
func (p *Provisioner) setEnv(_ context.Context, bc *BuildContext, step stepfile.Step) error {
	value, err := bc.Expand(step.Value)
	if err != nil {
		return fmt.Errorf("failed to expand value of %s: %w", step.Name, err)
	}
	bc.SetEnv(step.Name, value)
	return nil
}

// copyFiles copies step.Source from the source root to step.Dest.
func (p *Provisioner) copyFiles(_ context.Context, bc *BuildContext, step stepfile.Step) error {
	rel := path.Clean(filepath.ToSlash(step.Source))
	src := filepath.Join(bc.SourceRoot, filepath.FromSlash(rel))

	info, err := os.Lstat(src)
	if err != nil {
		if os.IsNotExist(err) {
			return &MissingPathError{Path: step.Source, Root: bc.SourceRoot}
		}
		return fmt.Errorf("failed to stat %s: %w", step.Source, err)
	}

	ignore, err := loadIgnore(bc.SourceRoot, p.ignoreFiles)
	if err != nil {
		return err
	}
	excluded, err := ignore.Excluded(rel)
	if err != nil {
		return err
	}
	if excluded {
		return &MissingPathError{Path: step.Source, Root: bc.SourceRoot, Ignored: true}
	}

	dst := bc.HostDir(step.Dest)
	if !info.IsDir() {
		dst = copyDest(dst, step.Dest, filepath.Base(src))
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return fmt.Errorf("failed to create destination directory: %w", err)
		}
	}

	copier := &treeCopier{ignore: ignore}
	resolvedSrc, resolvedDst := resolvePath(src), resolvePath(dst)
	switch {
	case resolvedSrc == resolvedDst:
		p.logger.Debug("source and destination are the same path, nothing to copy", "path", resolvedSrc)
		return nil
	case info.IsDir() && pathWithin(resolvedSrc, resolvedDst):
		inner, err := filepath.Rel(resolvedSrc, resolvedDst)
		if err != nil {
			return fmt.Errorf("failed to locate destination inside source: %w", err)
		}
		// Copying the destination into itself would never terminate.
		copier.skip = filepath.Join(src, inner)
	}

	p.logger.Debug("copying", "source", src, "dest", dst)
	return copier.copyTree(src, dst, rel)
}

// runCommand runs step.Command in the working directory with the build environment.
func (p *Provisioner) runCommand(ctx context.Context, bc *BuildContext, step stepfile.Step) error {
	return p.exec(ctx, bc, step.Command)
}

// exec runs script through the configured runner.
func (p *Provisioner) exec(ctx context.Context, bc *BuildContext, script string) error {
	p.logger.Debug("running command", "command", script, "workdir", bc.WorkDir, "runner", p.runner.Name())

	result := p.runner.Run(ctx, &runtime.Command{
		Script: script,
		Dir:    bc.HostDir(bc.WorkDir),
		Env:    bc.Snapshot(),
		Stdout: p.stdout,
		Stderr: p.stderr,
	})
	if result.Success() {
		return nil
	}
	return &StepExecutionError{Command: script, ExitCode: result.ExitCode, Err: result.Error}
}

// Exec quotes argv into a command line and runs it.
func (e *stepExecutor) Exec(ctx context.Context, argv ...string) error {
	script, err := runtime.QuoteArgs(argv...)
	if err != nil {
		return fmt.Errorf("invalid command %s: %w", strings.Join(argv, " "), err)
	}
	return e.p.exec(ctx, e.bc, script)
}

// HostDir maps a target path to the host.
func (e *stepExecutor) HostDir(p string) string {
	return e.bc.HostDir(p)
}
