// SPDX-License-Identifier: MPL-2.0

// Package watch re-runs a check whenever a stepfile or the source tree its
// copy steps read from changes.
//
// Events are debounced: edits that land within the quiet period are
// coalesced so the callback fires once with every changed path.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period used when Config.Debounce is unset.
const DefaultDebounce = 300 * time.Millisecond

// ErrAlreadyRunning is returned by a second call to Run.
var ErrAlreadyRunning = errors.New("watch: Run called more than once")

// defaultIgnores never trigger a callback: VCS metadata, editor swap files
// and OS metadata.
var defaultIgnores = []string{
	".git/**",
	"**/.git/**",
	"**/*.swp",
	"**/*.swx",
	"**/*~",
	"**/.DS_Store",
	"**/4913",
}

type (
	// Config describes what to watch and what to do on change.
	Config struct {
		// Root is the source root; every directory below it is watched.
		Root string

		// Stepfile is always watched, even when it lives outside Root.
		Stepfile string

		// Ignore holds extra doublestar patterns, relative to Root.
		Ignore []string

		// Debounce is the quiet period after the last event.
		Debounce time.Duration

		// OnChange receives the sorted changed paths, relative to Root.
		// A changed stepfile outside Root is reported by its base name.
		OnChange func(ctx context.Context, changed []string) error

		// Logger receives callback failures and non-fatal watcher errors.
		Logger *log.Logger
	}

	// Watcher delivers debounced change notifications for one Config.
	Watcher struct {
		cfg      Config
		fsw      *fsnotify.Watcher
		root     string
		stepfile string
		ignores  []string
		logger   *log.Logger
		started  atomic.Bool
	}
)

// New validates cfg and registers every non-ignored directory under Root.
func New(cfg Config) (*Watcher, error) {
	if cfg.OnChange == nil {
		return nil, errors.New("watch: OnChange is required")
	}

	root := cfg.Root
	if root == "" {
		if cfg.Stepfile == "" {
			return nil, errors.New("watch: Root or Stepfile is required")
		}
		root = filepath.Dir(cfg.Stepfile)
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("watch: resolve root: %w", err)
	}
	if info, err := os.Stat(absRoot); err != nil {
		return nil, fmt.Errorf("watch: %w", err)
	} else if !info.IsDir() {
		return nil, fmt.Errorf("watch: %s is not a directory", absRoot)
	}

	var absStepfile string
	if cfg.Stepfile != "" {
		if absStepfile, err = filepath.Abs(cfg.Stepfile); err != nil {
			return nil, fmt.Errorf("watch: resolve stepfile: %w", err)
		}
	}

	for _, pat := range cfg.Ignore {
		if !doublestar.ValidatePattern(pat) {
			return nil, fmt.Errorf("watch: invalid ignore pattern %q", pat)
		}
	}

	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: create watcher: %w", err)
	}

	w := &Watcher{
		cfg:      cfg,
		fsw:      fsw,
		root:     absRoot,
		stepfile: absStepfile,
		ignores:  slices.Concat(defaultIgnores, cfg.Ignore),
		logger:   logger,
	}

	if err := w.addTree(absRoot); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	if absStepfile != "" && !w.underRoot(absStepfile) {
		if err := fsw.Add(filepath.Dir(absStepfile)); err != nil {
			_ = fsw.Close()
			return nil, fmt.Errorf("watch: add stepfile directory: %w", err)
		}
	}

	return w, nil
}

// Run processes events until ctx is cancelled. It returns nil on
// cancellation and an error when the underlying watcher breaks. Callback
// errors are logged and do not stop the loop.
func (w *Watcher) Run(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer func() {
		if err := w.fsw.Close(); err != nil {
			w.logger.Warn("close watcher", "err", err)
		}
	}()

	pending := make(map[string]struct{})
	timer := time.NewTimer(w.cfg.Debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case evt, ok := <-w.fsw.Events:
			if !ok {
				return errors.New("watch: event channel closed")
			}
			rel, ok := w.relevant(evt.Name)
			if !ok {
				continue
			}
			if evt.Has(fsnotify.Create) {
				w.maybeAddDir(evt.Name)
			}
			pending[rel] = struct{}{}
			timer.Reset(w.cfg.Debounce)

		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			changed := slices.Sorted(maps.Keys(pending))
			clear(pending)
			if err := w.cfg.OnChange(ctx, changed); err != nil {
				w.logger.Warn("change handler failed", "err", err)
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return errors.New("watch: error channel closed")
			}
			if isFatalFsnotifyError(err) {
				return fmt.Errorf("watch: %w", err)
			}
			w.logger.Warn("watcher error", "err", err)
		}
	}
}

// relevant maps an event path to the name reported to OnChange, and reports
// false for paths that must not trigger a callback.
func (w *Watcher) relevant(path string) (string, bool) {
	if w.stepfile != "" && path == w.stepfile && !w.underRoot(path) {
		return filepath.Base(path), true
	}
	if !w.underRoot(path) {
		return "", false
	}
	rel, err := filepath.Rel(w.root, path)
	if err != nil || w.Ignored(rel) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

// Ignored reports whether rel, relative to Root, matches an ignore pattern.
func (w *Watcher) Ignored(rel string) bool {
	name := filepath.ToSlash(rel)
	for _, pat := range w.ignores {
		if ok, _ := doublestar.Match(pat, name); ok {
			return true
		}
	}
	return false
}

func (w *Watcher) underRoot(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// addTree registers dir and its descendants. Unreadable directories are
// skipped with a warning.
func (w *Watcher) addTree(dir string) error {
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			w.logger.Warn("skipping unreadable path", "path", path, "err", walkErr)
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if rel, err := filepath.Rel(w.root, path); err == nil && rel != "." && (w.Ignored(rel) || w.Ignored(rel+"/")) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("watch: add %s: %w", path, err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("watch: walk %s: %w", dir, err)
	}
	return nil
}

// maybeAddDir extends the watch to directories created after startup.
func (w *Watcher) maybeAddDir(path string) {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return
	}
	if err := w.addTree(path); err != nil {
		w.logger.Warn("watch new directory", "path", path, "err", err)
	}
}
