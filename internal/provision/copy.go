// SPDX-License-Identifier: MPL-2.0

package provision

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// treeCopier copies source trees for one copy-files step.
type treeCopier struct {
	// ignore excludes source paths; nil excludes nothing.
	ignore *ignoreMatcher

	// skip is a source path that is never descended into. It is set when
	// the destination lies inside the source directory.
	skip string
}

// copyTree copies src (a file, symlink or directory) to dst. Directory
// sources copy their contents into dst. rel is src's slash-separated path
// relative to the source root and is matched against the ignore file.
func (c *treeCopier) copyTree(src, dst, rel string) error {
	info, err := os.Lstat(src)
	if err != nil {
		return fmt.Errorf("failed to stat source: %w", err)
	}

	switch {
	case info.IsDir():
		return c.copyDir(src, dst, rel, info.Mode())
	case info.Mode()&fs.ModeSymlink != 0:
		return copySymlink(src, dst)
	default:
		return CopyFile(src, dst)
	}
}

// copyDir recursively copies the contents of src into dst, skipping entries
// the ignore file excludes.
func (c *treeCopier) copyDir(src, dst, rel string, mode fs.FileMode) error {
	if err := os.MkdirAll(dst, mode.Perm()|0o700); err != nil {
		return fmt.Errorf("failed to create destination directory: %w", err)
	}

	entries, err := os.ReadDir(src)
	if err != nil {
		return fmt.Errorf("failed to read source directory: %w", err)
	}

	for _, entry := range entries {
		childRel := entry.Name()
		if rel != "." && rel != "" {
			childRel = rel + "/" + entry.Name()
		}

		srcPath := filepath.Join(src, entry.Name())
		if c.skip != "" && srcPath == c.skip {
			continue
		}

		excluded, err := c.ignore.Excluded(childRel)
		if err != nil {
			return err
		}
		if excluded && (!entry.IsDir() || c.ignore.CanSkipDir()) {
			continue
		}

		if err := c.copyTree(srcPath, filepath.Join(dst, entry.Name()), childRel); err != nil {
			return err
		}
	}

	return nil
}

// CopyFile copies a regular file from src to dst, replacing any existing
// file at dst and keeping the source permission bits.
func CopyFile(src, dst string) (err error) {
	srcFile, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open source file: %w", err)
	}
	defer func() { _ = srcFile.Close() }() // Read-only file; close error non-critical

	srcInfo, err := srcFile.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat source file: %w", err)
	}

	// Opening dst with O_TRUNC would empty src when both name the same file.
	if dstInfo, err := os.Stat(dst); err == nil && os.SameFile(srcInfo, dstInfo) {
		return nil
	}

	if err := removeIfSymlink(dst); err != nil {
		return err
	}

	dstFile, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, srcInfo.Mode().Perm())
	if err != nil {
		return fmt.Errorf("failed to create destination file: %w", err)
	}
	defer func() {
		if closeErr := dstFile.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close destination file: %w", closeErr)
		}
	}()

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		return fmt.Errorf("failed to copy file contents: %w", err)
	}

	// O_CREATE only applies the mode to new files.
	if err := dstFile.Chmod(srcInfo.Mode().Perm()); err != nil {
		return fmt.Errorf("failed to set destination mode: %w", err)
	}

	return nil
}

// copySymlink recreates the link at src as dst, replacing any existing entry.
func copySymlink(src, dst string) error {
	target, err := os.Readlink(src)
	if err != nil {
		return fmt.Errorf("failed to read symlink: %w", err)
	}
	if err := os.Remove(dst); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to replace %s: %w", dst, err)
	}
	if err := os.Symlink(target, dst); err != nil {
		return fmt.Errorf("failed to create symlink: %w", err)
	}
	return nil
}

// removeIfSymlink removes dst when it is a symlink so that writing to it
// replaces the link instead of following it.
func removeIfSymlink(dst string) error {
	info, err := os.Lstat(dst)
	if err != nil || info.Mode()&fs.ModeSymlink == 0 {
		return nil
	}
	if err := os.Remove(dst); err != nil {
		return fmt.Errorf("failed to replace symlink %s: %w", dst, err)
	}
	return nil
}

// copyDest returns the host path a file source is written to. A destination
// ending in a slash, or naming an existing directory, receives the file
// under its own base name.
func copyDest(hostDest, rawDest, srcBase string) string {
	if strings.HasSuffix(rawDest, "/") || rawDest == "." {
		return filepath.Join(hostDest, srcBase)
	}
	if info, err := os.Stat(hostDest); err == nil && info.IsDir() {
		return filepath.Join(hostDest, srcBase)
	}
	return hostDest
}

// resolvePath returns p as an absolute path with symlinks resolved in every
// existing parent directory. The final element is not followed, so a symlink
// source keeps its own path.
func resolvePath(p string) string {
	abs, err := filepath.Abs(p)
	if err != nil {
		return filepath.Clean(p)
	}
	dir, base := filepath.Dir(abs), filepath.Base(abs)
	if dir == abs {
		return abs
	}

	var rest []string
	for {
		if resolved, err := filepath.EvalSymlinks(dir); err == nil {
			slices.Reverse(rest)
			return filepath.Join(append([]string{resolved}, append(rest, base)...)...)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return abs
		}
		rest = append(rest, filepath.Base(dir))
		dir = parent
	}
}

// pathWithin reports whether target is base or lies below it. Both paths
// must be absolute and clean.
func pathWithin(base, target string) bool {
	rel, err := filepath.Rel(base, target)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
