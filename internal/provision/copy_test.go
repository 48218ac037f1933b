// SPDX-License-Identifier: MPL-2.0

package provision

import (
	"context"
	"errors"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	goruntime "runtime"
	"strings"
	"testing"

	"github.com/invowk/stepper/internal/testutil"
	"github.com/invowk/stepper/pkg/stepfile"
)

// snapshotTree returns every path under root mapped to its content (files),
// link target (symlinks) or "dir".
func snapshotTree(t *testing.T, root string) map[string]string {
	t.Helper()
	tree := make(map[string]string)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(root, path)
		switch {
		case d.Type()&fs.ModeSymlink != 0:
			target, err := os.Readlink(path)
			if err != nil {
				return err
			}
			tree[rel] = "link:" + target
		case d.IsDir():
			tree[rel] = "dir"
		default:
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			tree[rel] = string(data)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("failed to walk %s: %v", root, err)
	}
	return tree
}

func copyStep(t *testing.T, source, dest string, steps ...stepfile.Step) (string, error) {
	t.Helper()
	p := New(WithSourceRoot(source), WithDestRoot(dest), WithWorkDir("/app"), WithRunner(&recordingRunner{}))
	_, err := p.Run(context.Background(), steps)
	return filepath.Join(dest, "app"), err
}

func TestCopy_Idempotent(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	testutil.WriteFile(t, filepath.Join(src, "a.txt"), "alpha")
	testutil.WriteFile(t, filepath.Join(src, "nested", "b.txt"), "beta")
	if goruntime.GOOS != "windows" {
		if err := os.Symlink("a.txt", filepath.Join(src, "link")); err != nil {
			t.Fatalf("failed to create symlink: %v", err)
		}
	}

	dest := t.TempDir()
	step := stepfile.Copy(".", ".")

	app, err := copyStep(t, src, dest, step)
	if err != nil {
		t.Fatalf("first copy: %v", err)
	}
	first := snapshotTree(t, app)

	if _, err := copyStep(t, src, dest, step); err != nil {
		t.Fatalf("second copy: %v", err)
	}
	second := snapshotTree(t, app)

	if !maps.Equal(first, second) {
		t.Errorf("tree changed after repeated copy:\nfirst  %v\nsecond %v", first, second)
	}
	if first["nested/b.txt"] != "beta" && first[filepath.Join("nested", "b.txt")] != "beta" {
		t.Errorf("nested file not copied: %v", first)
	}
}

func TestCopy_OverwritesExistingFiles(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	dest := t.TempDir()
	testutil.WriteFile(t, filepath.Join(src, "config.txt"), "new")
	testutil.WriteFile(t, filepath.Join(dest, "app", "config.txt"), "old content that is longer")

	app, err := copyStep(t, src, dest, stepfile.Copy("config.txt", "config.txt"))
	if err != nil {
		t.Fatalf("copy: %v", err)
	}

	data, _ := os.ReadFile(filepath.Join(app, "config.txt"))
	if string(data) != "new" {
		t.Errorf("config.txt = %q, want %q", data, "new")
	}
}

func TestCopy_Destinations(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		source string
		dest   string
		want   string // path under /app that must hold the file
	}{
		{name: "rename", source: "src/requirements.txt", dest: "reqs.txt", want: "reqs.txt"},
		{name: "trailing slash", source: "src/requirements.txt", dest: "deps/", want: "deps/requirements.txt"},
		{name: "dot", source: "src/requirements.txt", dest: ".", want: "requirements.txt"},
		{name: "absolute dest", source: "src/requirements.txt", dest: "/etc/app/reqs.txt", want: "../etc/app/reqs.txt"},
		{name: "directory contents", source: "src", dest: "code", want: "code/requirements.txt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			src := t.TempDir()
			testutil.WriteFile(t, filepath.Join(src, "src", "requirements.txt"), "flask\n")

			app, err := copyStep(t, src, t.TempDir(), stepfile.Copy(tt.source, tt.dest))
			if err != nil {
				t.Fatalf("copy: %v", err)
			}

			data, err := os.ReadFile(filepath.Join(app, filepath.FromSlash(tt.want)))
			if err != nil {
				t.Fatalf("expected file at %s: %v", tt.want, err)
			}
			if string(data) != "flask\n" {
				t.Errorf("content = %q", data)
			}
		})
	}
}

func TestCopy_ExistingDirectoryReceivesFile(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	dest := t.TempDir()
	testutil.WriteFile(t, filepath.Join(src, "main.py"), "print('hi')\n")
	if err := os.MkdirAll(filepath.Join(dest, "app", "bin"), 0o755); err != nil {
		t.Fatal(err)
	}

	app, err := copyStep(t, src, dest, stepfile.Copy("main.py", "bin"))
	if err != nil {
		t.Fatalf("copy: %v", err)
	}
	if _, err := os.Stat(filepath.Join(app, "bin", "main.py")); err != nil {
		t.Errorf("file not placed inside existing directory: %v", err)
	}
}

func TestCopy_PreservesMode(t *testing.T) {
	t.Parallel()
	if goruntime.GOOS == "windows" {
		t.Skip("skipping: permission bits are not preserved on Windows")
	}

	src := t.TempDir()
	script := filepath.Join(src, "run.sh")
	testutil.WriteFile(t, script, "#!/bin/sh\n")
	if err := os.Chmod(script, 0o755); err != nil {
		t.Fatal(err)
	}

	app, err := copyStep(t, src, t.TempDir(), stepfile.Copy("run.sh", "run.sh"))
	if err != nil {
		t.Fatalf("copy: %v", err)
	}
	info, err := os.Stat(filepath.Join(app, "run.sh"))
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o755 {
		t.Errorf("mode = %v, want 0755", info.Mode().Perm())
	}
}

func TestCopy_MissingSource(t *testing.T) {
	t.Parallel()

	_, err := copyStep(t, t.TempDir(), t.TempDir(), stepfile.Copy("nope.txt", "."))

	var missing *MissingPathError
	if !errors.As(err, &missing) {
		t.Fatalf("expected *MissingPathError, got %v", err)
	}
	if missing.Ignored {
		t.Error("Ignored = true for a path that does not exist")
	}
}

func TestCopy_HonorsIgnoreFile(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	testutil.WriteFile(t, filepath.Join(src, ".stepperignore"), "# build noise\n**/__pycache__\n*.log\n.venv\n!keep.log\n")
	testutil.WriteFile(t, filepath.Join(src, "app.py"), "")
	testutil.WriteFile(t, filepath.Join(src, "debug.log"), "")
	testutil.WriteFile(t, filepath.Join(src, "keep.log"), "")
	testutil.WriteFile(t, filepath.Join(src, "pkg", "__pycache__", "x.pyc"), "")
	testutil.WriteFile(t, filepath.Join(src, "pkg", "mod.py"), "")
	testutil.WriteFile(t, filepath.Join(src, ".venv", "bin", "python"), "")

	app, err := copyStep(t, src, t.TempDir(), stepfile.Copy(".", "."))
	if err != nil {
		t.Fatalf("copy: %v", err)
	}

	tree := snapshotTree(t, app)
	for _, want := range []string{"app.py", "keep.log", filepath.Join("pkg", "mod.py")} {
		if _, ok := tree[want]; !ok {
			t.Errorf("expected %s to be copied", want)
		}
	}
	for path := range tree {
		if strings.HasSuffix(path, ".pyc") || path == "debug.log" || strings.Contains(path, "python") {
			t.Errorf("ignored path %s was copied", path)
		}
	}
}

func TestCopy_IgnoredSourceIsMissing(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	testutil.WriteFile(t, filepath.Join(src, ".dockerignore"), "secrets\n")
	testutil.WriteFile(t, filepath.Join(src, "secrets", "token"), "s3cr3t")

	_, err := copyStep(t, src, t.TempDir(), stepfile.Copy("secrets/token", "token"))

	var missing *MissingPathError
	if !errors.As(err, &missing) || !missing.Ignored {
		t.Fatalf("expected ignored *MissingPathError, got %v", err)
	}
}

func TestCopy_IgnoreFilesDisabled(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	testutil.WriteFile(t, filepath.Join(src, ".dockerignore"), "*.log\n")
	testutil.WriteFile(t, filepath.Join(src, "app.log"), "")

	dest := t.TempDir()
	p := New(WithSourceRoot(src), WithDestRoot(dest), WithRunner(&recordingRunner{}), WithIgnoreFiles())
	if _, err := p.Run(context.Background(), []stepfile.Step{stepfile.Copy(".", ".")}); err != nil {
		t.Fatalf("copy: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dest, "app.log")); err != nil {
		t.Errorf("app.log should be copied when ignore files are disabled: %v", err)
	}
}

func TestCopy_SourceIsDestination(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	workspace := filepath.Join(root, "workspace")
	testutil.WriteFile(t, filepath.Join(workspace, "app.py"), "print('hi')\n")
	testutil.WriteFile(t, filepath.Join(workspace, "pkg", "mod.py"), "x = 1\n")
	before := snapshotTree(t, workspace)

	tests := []struct {
		name string
		step stepfile.Step
	}{
		{"directory onto itself", stepfile.Copy(".", ".")},
		{"file onto itself", stepfile.Copy("app.py", "app.py")},
		{"file into its own directory", stepfile.Copy("pkg/mod.py", "pkg/")},
	}

	for _, tt := range tests {
		// Subtests share one tree and run in order.
		p := New(WithSourceRoot(workspace), WithDestRoot(root), WithWorkDir("/workspace"), WithRunner(&recordingRunner{}))
		if _, err := p.Run(context.Background(), []stepfile.Step{tt.step}); err != nil {
			t.Fatalf("%s: Run() error = %v", tt.name, err)
		}
		if got := snapshotTree(t, workspace); !maps.Equal(got, before) {
			t.Fatalf("%s: source changed:\n got %v\nwant %v", tt.name, got, before)
		}
	}
}

func TestCopyFile_SameFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "data.txt")
	testutil.WriteFile(t, path, "keep me")

	if err := CopyFile(path, filepath.Join(dir, ".", "data.txt")); err != nil {
		t.Fatalf("CopyFile() error = %v", err)
	}
	if got, _ := os.ReadFile(path); string(got) != "keep me" {
		t.Errorf("content = %q, want it unchanged", got)
	}
}

func TestCopy_DestinationInsideSource(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	workspace := filepath.Join(root, "workspace")
	testutil.WriteFile(t, filepath.Join(workspace, "app.py"), "print('hi')\n")
	testutil.WriteFile(t, filepath.Join(workspace, "lib", "util.py"), "")

	p := New(WithSourceRoot(workspace), WithDestRoot(root), WithWorkDir("/workspace/out"), WithRunner(&recordingRunner{}))
	if _, err := p.Run(context.Background(), []stepfile.Step{stepfile.Copy(".", ".")}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := map[string]string{
		".":                             "dir",
		"app.py":                        "print('hi')\n",
		"lib":                           "dir",
		filepath.Join("lib", "util.py"): "",
	}
	if got := snapshotTree(t, filepath.Join(workspace, "out")); !maps.Equal(got, want) {
		t.Errorf("out = %v, want %v", got, want)
	}
}

func TestPathWithin(t *testing.T) {
	t.Parallel()

	base := filepath.FromSlash("/src/app")
	tests := []struct {
		target string
		want   bool
	}{
		{"/src/app", true},
		{"/src/app/out", true},
		{"/src/app2", false},
		{"/src", false},
		{"/other", false},
	}
	for _, tt := range tests {
		if got := pathWithin(base, filepath.FromSlash(tt.target)); got != tt.want {
			t.Errorf("pathWithin(%q, %q) = %v, want %v", base, tt.target, got, tt.want)
		}
	}
}

func TestIgnoreFileFor(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if got := IgnoreFileFor(dir); got != "" {
		t.Errorf("IgnoreFileFor(empty) = %q", got)
	}
	testutil.WriteFile(t, filepath.Join(dir, ".dockerignore"), "")
	if got := IgnoreFileFor(dir); got != ".dockerignore" {
		t.Errorf("IgnoreFileFor() = %q, want .dockerignore", got)
	}
	testutil.WriteFile(t, filepath.Join(dir, ".stepperignore"), "")
	if got := IgnoreFileFor(dir); got != ".stepperignore" {
		t.Errorf("IgnoreFileFor() = %q, want .stepperignore", got)
	}
}
