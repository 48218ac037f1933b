// SPDX-License-Identifier: MPL-2.0

package provision

import (
	"maps"
	"os"
	"path"
	"path/filepath"

	"mvdan.cc/sh/v3/shell"
)

// BuildContext is the state carried from one step to the next. It is owned
// by a single run and is not safe for concurrent use.
type BuildContext struct {
	// WorkDir is the absolute working directory inside the target filesystem.
	WorkDir string
	// Env holds variables set by earlier steps. Later writes win.
	Env map[string]string
	// SourceRoot is the host directory copy sources are resolved against.
	SourceRoot string
	// DestRoot is the host directory that stands for "/" of the target filesystem.
	DestRoot string
}

// NewBuildContext returns a context rooted at destRoot with the given
// initial working directory and environment.
func NewBuildContext(sourceRoot, destRoot, workDir string, env map[string]string) *BuildContext {
	bc := &BuildContext{
		WorkDir:    "/",
		Env:        make(map[string]string, len(env)),
		SourceRoot: sourceRoot,
		DestRoot:   destRoot,
	}
	maps.Copy(bc.Env, env)
	bc.SetWorkDir(workDir)
	return bc
}

// Resolve returns p as an absolute, cleaned path inside the target
// filesystem. Relative paths are resolved against WorkDir.
func (bc *BuildContext) Resolve(p string) string {
	p = filepath.ToSlash(p)
	if !path.IsAbs(p) {
		p = path.Join(bc.WorkDir, p)
	}
	return path.Clean(p)
}

// HostDir maps a target path (absolute, or relative to WorkDir) to the host
// path under DestRoot.
func (bc *BuildContext) HostDir(p string) string {
	return filepath.Join(bc.DestRoot, filepath.FromSlash(bc.Resolve(p)))
}

// SetWorkDir changes WorkDir; relative paths resolve against the previous one.
func (bc *BuildContext) SetWorkDir(p string) {
	if p == "" {
		return
	}
	bc.WorkDir = bc.Resolve(p)
}

// SetEnv sets name to value, overwriting any earlier value.
func (bc *BuildContext) SetEnv(name, value string) {
	bc.Env[name] = value
}

// Lookup returns the value of name from Env, falling back to the host
// environment.
func (bc *BuildContext) Lookup(name string) string {
	if v, ok := bc.Env[name]; ok {
		return v
	}
	return os.Getenv(name)
}

// Expand replaces $VAR and ${VAR} references in s using Lookup.
func (bc *BuildContext) Expand(s string) (string, error) {
	return shell.Expand(s, bc.Lookup)
}

// Snapshot returns a copy of the environment.
func (bc *BuildContext) Snapshot() map[string]string {
	return maps.Clone(bc.Env)
}
