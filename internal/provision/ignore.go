// SPDX-License-Identifier: MPL-2.0

package provision

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/moby/patternmatcher"
	"github.com/moby/patternmatcher/ignorefile"
)

// DefaultIgnoreFiles lists the ignore files looked up in the source root,
// in order. Only the first one found is used.
var DefaultIgnoreFiles = []string{".stepperignore", ".dockerignore"}

// IgnoreFileFor returns the name of the ignore file copy-files steps use in
// root, or "" when there is none.
func IgnoreFileFor(root string) string {
	for _, name := range DefaultIgnoreFiles {
		if _, err := os.Stat(filepath.Join(root, name)); err == nil {
			return name
		}
	}
	return ""
}

// ignoreMatcher excludes source paths from copy-files steps. A nil
// *ignoreMatcher excludes nothing.
type ignoreMatcher struct {
	file string
	pm   *patternmatcher.PatternMatcher
}

// loadIgnore reads the first existing file from names in root. It returns a
// nil matcher when none exists.
func loadIgnore(root string, names []string) (*ignoreMatcher, error) {
	for _, name := range names {
		path := filepath.Join(root, name)
		f, err := os.Open(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("failed to open ignore file: %w", err)
		}

		patterns, err := ignorefile.ReadAll(f)
		_ = f.Close() // Read-only file; close error non-critical
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}

		pm, err := patternmatcher.New(patterns)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern in %s: %w", path, err)
		}
		return &ignoreMatcher{file: path, pm: pm}, nil
	}
	return nil, nil
}

// Excluded reports whether rel, a slash-separated path relative to the
// source root, is excluded. "." is never excluded.
func (m *ignoreMatcher) Excluded(rel string) (bool, error) {
	if m == nil || rel == "." || rel == "" {
		return false, nil
	}
	excluded, err := m.pm.MatchesOrParentMatches(rel)
	if err != nil {
		return false, fmt.Errorf("failed to match %q against %s: %w", rel, m.file, err)
	}
	return excluded, nil
}

// CanSkipDir reports whether an excluded directory can be skipped entirely.
// With "!" exception patterns a child of an excluded directory may still be
// included, so the directory has to be walked.
func (m *ignoreMatcher) CanSkipDir() bool {
	return m != nil && !m.pm.Exclusions()
}
