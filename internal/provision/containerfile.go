// SPDX-License-Identifier: MPL-2.0

package provision

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/invowk/stepper/internal/runtime"
	"github.com/invowk/stepper/pkg/stepfile"
)

var (
	// ErrNoBaseImage is returned by RenderContainerfile when the stepfile has no base image.
	ErrNoBaseImage = errors.New("no base image set")
	// ErrMultilineEnv is returned for environment values containing line
	// breaks, which a Containerfile ENV instruction cannot carry.
	ErrMultilineEnv = errors.New("environment value cannot be rendered as ENV")
)

// RenderContainerfile renders sf as a Containerfile that performs the same
// steps in the same order during an image build. OS package installs clean
// their cache directories in the same RUN instruction so the index never
// lands in a layer.
func RenderContainerfile(sf *stepfile.Stepfile, cmds Commands) (string, error) {
	if sf.Base == "" {
		return "", ErrNoBaseImage
	}
	if err := sf.Validate(); err != nil {
		return "", err
	}

	var sb strings.Builder
	source := "stepfile"
	if sf.FilePath != "" {
		source = sf.FilePath
	}
	fmt.Fprintf(&sb, "# Generated by stepper from %s. Do not edit.\n", source)
	fmt.Fprintf(&sb, "FROM %s\n\n", sf.Base)
	if sf.WorkDir != "" {
		fmt.Fprintf(&sb, "WORKDIR %s\n", sf.WorkDir)
	}

	for i, step := range sf.Steps {
		line, err := renderStep(step, cmds)
		if err != nil {
			return "", fmt.Errorf("step %d (%s): %w", i, step.Kind, err)
		}
		sb.WriteString(line)
		sb.WriteByte('\n')
	}

	return sb.String(), nil
}

func renderStep(step stepfile.Step, cmds Commands) (string, error) {
	switch step.Kind {
	case stepfile.KindSystemPackages:
		return renderSystemPackages(step.PackageList(), cmds)
	case stepfile.KindPackageManager:
		install, err := runtime.QuoteArgs(slices.Concat(cmds.ToolInstall, []string{step.Tool})...)
		if err != nil {
			return "", err
		}
		return "RUN " + install, nil
	case stepfile.KindWorkDir:
		return "WORKDIR " + step.Path, nil
	case stepfile.KindEnv:
		if strings.ContainsAny(step.Value, "\r\n") {
			return "", fmt.Errorf("%w: value of %s spans several lines", ErrMultilineEnv, step.Name)
		}
		return fmt.Sprintf("ENV %s=%s", step.Name, quoteEnvValue(step.Value)), nil
	case stepfile.KindCopy:
		return renderCopy(step.Source, step.Dest)
	case stepfile.KindRun:
		return renderRun(step.Command)
	default:
		return "", &stepfile.InvalidKindError{Value: step.Kind}
	}
}

func renderSystemPackages(packages []string, cmds Commands) (string, error) {
	var parts []string
	if len(cmds.Update) > 0 {
		update, err := runtime.QuoteArgs(cmds.Update...)
		if err != nil {
			return "", err
		}
		parts = append(parts, update)
	}

	install, err := runtime.QuoteArgs(slices.Concat(cmds.Install, packages)...)
	if err != nil {
		return "", err
	}
	parts = append(parts, install)

	if len(cmds.CacheDirs) > 0 {
		clean := []string{"rm", "-rf"}
		for _, dir := range cmds.CacheDirs {
			q, err := runtime.QuoteArgs(strings.TrimSuffix(dir, "/"))
			if err != nil {
				return "", err
			}
			clean = append(clean, q+"/*")
		}
		parts = append(parts, strings.Join(clean, " "))
	}

	return "RUN " + strings.Join(parts, " \\\n    && "), nil
}

// renderRun uses the exec form for multi-line commands so that line breaks
// keep separating commands.
func renderRun(command string) (string, error) {
	if !strings.Contains(command, "\n") {
		return "RUN " + command, nil
	}
	args, err := execForm("/bin/sh", "-c", command)
	if err != nil {
		return "", err
	}
	return "RUN " + args, nil
}

// renderCopy uses the JSON form when a path contains whitespace.
func renderCopy(source, dest string) (string, error) {
	if !strings.ContainsAny(source+dest, " \t") {
		return fmt.Sprintf("COPY %s %s", source, dest), nil
	}
	args, err := execForm(source, dest)
	if err != nil {
		return "", err
	}
	return "COPY " + args, nil
}

// execForm renders args as a JSON array without HTML escaping, so shell
// operators like && stay readable.
func execForm(args ...string) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(args); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// quoteEnvValue double-quotes values containing whitespace or quotes.
// Variable references are left intact so the builder expands them. The
// value must not contain line breaks.
func quoteEnvValue(value string) string {
	if value != "" && !strings.ContainsAny(value, " \t\"'\\") {
		return value
	}
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(value) + `"`
}
