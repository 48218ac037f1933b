// SPDX-License-Identifier: MPL-2.0

package stepfile

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/invowk/stepper/pkg/cueutil"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

const (
	// FormatCUE is the primary stepfile encoding.
	FormatCUE Format = "cue"
	// FormatYAML is the YAML stepfile encoding.
	FormatYAML Format = "yaml"
	// FormatTOML is the TOML stepfile encoding.
	FormatTOML Format = "toml"

	// DefaultWorkDir is the working directory used when a stepfile sets none.
	DefaultWorkDir = "/"
)

var (
	//go:embed stepfile_schema.cue
	schema []byte

	// ErrStepfileNotFound is returned by Find when no stepfile exists in a directory.
	ErrStepfileNotFound = errors.New("stepfile not found")
	// ErrUnknownFormat is returned for files whose extension maps to no format.
	ErrUnknownFormat = errors.New("unknown stepfile format")
)

type (
	// Format is a stepfile encoding.
	Format string

	// Stepfile is a parsed recipe.
	Stepfile struct {
		// Base is the base image for Containerfile rendering. Optional.
		Base string `json:"base,omitempty" yaml:"base,omitempty" toml:"base,omitempty"`
		// WorkDir is the initial working directory. Defaults to DefaultWorkDir.
		WorkDir string `json:"workdir,omitempty" yaml:"workdir,omitempty" toml:"workdir,omitempty"`
		// Steps run in declaration order.
		Steps []Step `json:"steps" yaml:"steps" toml:"steps"`

		// FilePath is where the stepfile was loaded from, if anywhere.
		FilePath string `json:"-" yaml:"-" toml:"-"`
	}
)

// DefaultFileNames lists the names Find looks for, in order.
func DefaultFileNames() []string {
	return []string{"stepfile.cue", "stepfile.yaml", "stepfile.yml", "stepfile.toml"}
}

// FormatFromPath picks the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".cue":
		return FormatCUE, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	default:
		return "", fmt.Errorf("%w: %s (use .cue, .yaml or .toml)", ErrUnknownFormat, path)
	}
}

// Find returns the first default-named stepfile in dir.
func Find(dir string) (string, error) {
	for _, name := range DefaultFileNames() {
		candidate := filepath.Join(dir, name)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w in %s (looked for %s)", ErrStepfileNotFound, dir, strings.Join(DefaultFileNames(), ", "))
}

// Load reads, parses and validates the stepfile at path.
func Load(path string) (*Stepfile, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read stepfile: %w", err)
	}

	sf, err := Parse(data, format, path)
	if err != nil {
		return nil, err
	}
	sf.FilePath = path
	return sf, nil
}

// Parse decodes data in the given format and validates the result.
// filename is only used in error messages.
func Parse(data []byte, format Format, filename string) (*Stepfile, error) {
	var (
		sf  *Stepfile
		err error
	)

	switch format {
	case FormatCUE:
		sf, err = parseCUE(data, filename)
	case FormatYAML:
		sf, err = parseYAML(data, filename)
	case FormatTOML:
		sf, err = parseTOML(data, filename)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	if err != nil {
		return nil, err
	}

	if err := sf.Validate(); err != nil {
		return nil, err
	}
	return sf, nil
}

func parseCUE(data []byte, filename string) (*Stepfile, error) {
	result, err := cueutil.ParseAndDecode[Stepfile](schema, data, "#Stepfile", cueutil.WithFilename(filename))
	if err != nil {
		return nil, err
	}
	return result.Value, nil
}

func parseYAML(data []byte, filename string) (*Stepfile, error) {
	if err := cueutil.CheckFileSize(data, cueutil.DefaultMaxFileSize, filename); err != nil {
		return nil, err
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var sf Stepfile
	if err := dec.Decode(&sf); err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return &sf, nil
}

func parseTOML(data []byte, filename string) (*Stepfile, error) {
	if err := cueutil.CheckFileSize(data, cueutil.DefaultMaxFileSize, filename); err != nil {
		return nil, err
	}
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var sf Stepfile
	if err := dec.Decode(&sf); err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return &sf, nil
}

// Validate checks the document-level settings and every step.
func (sf *Stepfile) Validate() error {
	var errs []error
	if sf.WorkDir != "" && !strings.HasPrefix(sf.WorkDir, "/") {
		errs = append(errs, fmt.Errorf("workdir %q must be an absolute path", sf.WorkDir))
	}
	if err := ValidateSteps(sf.Steps); err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			errs = append(errs, verr.FieldErrors...)
		} else {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return &ValidationError{FieldErrors: errs}
	}
	return nil
}

// InitialWorkDir returns the configured working directory or DefaultWorkDir.
func (sf *Stepfile) InitialWorkDir() string {
	if sf.WorkDir == "" {
		return DefaultWorkDir
	}
	return sf.WorkDir
}
