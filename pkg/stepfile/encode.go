// SPDX-License-Identifier: MPL-2.0

package stepfile

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Default returns the stepfile for a Python project laid out with its
// dependency manifest at src/requirements.txt and its installable package
// rooted at src. Dependencies are installed before the source tree is copied
// so that unchanged manifests keep their layers when built as an image.
func Default() *Stepfile {
	return &Stepfile{
		Base:    "python:3.12-slim",
		WorkDir: "/workspace",
		Steps: []Step{
			Env("PYTHONUNBUFFERED", "1"),
			Env("PATH", "/root/.local/bin:${PATH}"),
			SystemPackages("git", "curl"),
			PackageManager("uv"),
			Copy("./src/requirements.txt", "requirements.txt"),
			Run("uv pip install --system -r requirements.txt"),
			Copy(".", "."),
			WorkDir("/workspace/src"),
			Run("uv pip install --system -e ."),
		},
	}
}

// Encode renders sf in the given format.
func Encode(sf *Stepfile, format Format) ([]byte, error) {
	switch format {
	case FormatCUE:
		return []byte(GenerateCUE(sf)), nil
	case FormatYAML:
		return yaml.Marshal(sf)
	case FormatTOML:
		return toml.Marshal(sf)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// GenerateCUE renders sf as a CUE document that Parse accepts.
func GenerateCUE(sf *Stepfile) string {
	var sb strings.Builder

	sb.WriteString("// Stepfile: steps run top to bottom, stopping at the first failure.\n")
	if sf.Base != "" {
		fmt.Fprintf(&sb, "base:    %s\n", strconv.Quote(sf.Base))
	}
	if sf.WorkDir != "" {
		fmt.Fprintf(&sb, "workdir: %s\n", strconv.Quote(sf.WorkDir))
	}
	sb.WriteString("\nsteps: [\n")
	for _, s := range sf.Steps {
		fmt.Fprintf(&sb, "\t{%s},\n", cueStepFields(s))
	}
	sb.WriteString("]\n")

	return sb.String()
}

func cueStepFields(s Step) string {
	fields := []string{"kind: " + strconv.Quote(string(s.Kind))}
	add := func(name, value string) {
		if value != "" {
			fields = append(fields, name+": "+strconv.Quote(value))
		}
	}

	if len(s.Packages) > 0 {
		quoted := make([]string, len(s.Packages))
		for i, p := range s.Packages {
			quoted[i] = strconv.Quote(p)
		}
		fields = append(fields, "packages: ["+strings.Join(quoted, ", ")+"]")
	}
	add("tool", s.Tool)
	add("path", s.Path)
	add("name", s.Name)
	if s.Kind == KindEnv {
		fields = append(fields, "value: "+strconv.Quote(s.Value))
	}
	add("source", s.Source)
	add("dest", s.Dest)
	add("command", s.Command)

	return strings.Join(fields, ", ")
}
