// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/invowk/stepper/internal/provision"
)

const (
	// RunnerNative runs run-command steps in the host shell.
	// Defined locally to avoid coupling config to internal/runtime.
	RunnerNative RunnerName = "native"
	// RunnerVirtual runs run-command steps in the embedded mvdan/sh interpreter.
	RunnerVirtual RunnerName = "virtual"

	// ContainerEngineAuto picks whichever engine is installed, preferring Podman.
	ContainerEngineAuto ContainerEngine = "auto"
	// ContainerEnginePodman uses Podman to build images.
	ContainerEnginePodman ContainerEngine = "podman"
	// ContainerEngineDocker uses Docker to build images.
	ContainerEngineDocker ContainerEngine = "docker"

	// ColorSchemeAuto detects the terminal color scheme automatically.
	ColorSchemeAuto ColorScheme = "auto"
	// ColorSchemeDark forces dark color scheme.
	ColorSchemeDark ColorScheme = "dark"
	// ColorSchemeLight forces light color scheme.
	ColorSchemeLight ColorScheme = "light"

	// LogLevelDebug logs every step and command.
	LogLevelDebug LogLevel = "debug"
	// LogLevelInfo logs step progress.
	LogLevelInfo LogLevel = "info"
	// LogLevelWarn logs warnings and errors only.
	LogLevelWarn LogLevel = "warn"
	// LogLevelError logs errors only.
	LogLevelError LogLevel = "error"

	// DefaultBaseImage is the image rendered Containerfiles start from.
	DefaultBaseImage = "python:3.12-slim"
)

var (
	// ErrInvalidRunnerName is returned when a RunnerName value is not recognized.
	ErrInvalidRunnerName = errors.New("invalid runner name")
	// ErrInvalidContainerEngine is returned when a ContainerEngine value is not recognized.
	ErrInvalidContainerEngine = errors.New("invalid container engine")
	// ErrInvalidColorScheme is returned when a ColorScheme value is not recognized.
	ErrInvalidColorScheme = errors.New("invalid color scheme")
	// ErrInvalidLogLevel is returned when a LogLevel value is not recognized.
	ErrInvalidLogLevel = errors.New("invalid log level")
	// ErrInvalidCommand is the sentinel error wrapped by InvalidCommandError.
	ErrInvalidCommand = errors.New("invalid command")
	// ErrInvalidConfig is the sentinel error wrapped by InvalidConfigError.
	ErrInvalidConfig = errors.New("invalid config")
)

type (
	// RunnerName selects the runner for run-command steps.
	RunnerName string

	// InvalidRunnerNameError is returned when a RunnerName value is not recognized.
	InvalidRunnerNameError struct {
		Value RunnerName
	}

	// ContainerEngine selects the container CLI used by `stepper build`.
	ContainerEngine string

	// InvalidContainerEngineError is returned when a ContainerEngine value is not recognized.
	InvalidContainerEngineError struct {
		Value ContainerEngine
	}

	// ColorScheme specifies the terminal color scheme preference.
	ColorScheme string

	// InvalidColorSchemeError is returned when a ColorScheme value is not recognized.
	InvalidColorSchemeError struct {
		Value ColorScheme
	}

	// LogLevel is the minimum level written to the log.
	LogLevel string

	// InvalidLogLevelError is returned when a LogLevel value is not recognized.
	InvalidLogLevelError struct {
		Value LogLevel
	}

	// InvalidCommandError is returned when a configured argv is unusable.
	InvalidCommandError struct {
		Field  string
		Reason string
	}

	// InvalidConfigError is returned when a Config has invalid fields.
	// It wraps ErrInvalidConfig for errors.Is() compatibility and collects
	// field-level validation errors from all sub-components.
	InvalidConfigError struct {
		FieldErrors []error
	}

	// Config holds the application configuration.
	Config struct {
		// DefaultRunner is the runner used when --runner is not given.
		DefaultRunner RunnerName `json:"default_runner" mapstructure:"default_runner"`
		// LogLevel is used when --log-level is not given.
		LogLevel LogLevel `json:"log_level" mapstructure:"log_level"`
		// SystemPackages configures install-system-packages steps.
		SystemPackages SystemPackagesConfig `json:"system_packages" mapstructure:"system_packages"`
		// PackageManager configures install-package-manager steps.
		PackageManager PackageManagerConfig `json:"package_manager" mapstructure:"package_manager"`
		// Container configures `stepper build` and `stepper dockerfile`.
		Container ContainerConfig `json:"container" mapstructure:"container"`
		// UI configures the user interface.
		UI UIConfig `json:"ui" mapstructure:"ui"`
	}

	// SystemPackagesConfig holds the OS package source commands.
	SystemPackagesConfig struct {
		// Update refreshes the package index.
		Update []string `json:"update" mapstructure:"update"`
		// Install installs packages; package names are appended.
		Install []string `json:"install" mapstructure:"install"`
		// CacheDirs are emptied after every install.
		CacheDirs []string `json:"cache_dirs" mapstructure:"cache_dirs"`
	}

	// PackageManagerConfig holds the package manager installer command.
	PackageManagerConfig struct {
		// Install installs a tool; the tool name is appended.
		Install []string `json:"install" mapstructure:"install"`
	}

	// ContainerConfig configures image builds.
	ContainerConfig struct {
		// Engine is the container CLI to build with.
		Engine ContainerEngine `json:"engine" mapstructure:"engine"`
		// BaseImage is used when a stepfile declares no base.
		BaseImage string `json:"base_image" mapstructure:"base_image"`
	}

	// UIConfig configures the user interface.
	UIConfig struct {
		// Verbose enables verbose output
		Verbose bool `json:"verbose" mapstructure:"verbose"`
		// ColorScheme sets the color scheme
		ColorScheme ColorScheme `json:"color_scheme" mapstructure:"color_scheme"`
	}
)

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	cmds := provision.DefaultCommands()
	return &Config{
		DefaultRunner: RunnerNative,
		LogLevel:      LogLevelInfo,
		SystemPackages: SystemPackagesConfig{
			Update:    cmds.Update,
			Install:   cmds.Install,
			CacheDirs: cmds.CacheDirs,
		},
		PackageManager: PackageManagerConfig{
			Install: cmds.ToolInstall,
		},
		Container: ContainerConfig{
			Engine:    ContainerEngineAuto,
			BaseImage: DefaultBaseImage,
		},
		UI: UIConfig{
			ColorScheme: ColorSchemeAuto,
		},
	}
}

// Commands returns the package step commands, with unset ones taken from
// provision.DefaultCommands.
func (c *Config) Commands() provision.Commands {
	return provision.Commands{
		Update:      c.SystemPackages.Update,
		Install:     c.SystemPackages.Install,
		CacheDirs:   c.SystemPackages.CacheDirs,
		ToolInstall: c.PackageManager.Install,
	}.Merge(provision.DefaultCommands())
}

// Validate returns an *InvalidConfigError listing every invalid field.
func (c *Config) Validate() error {
	var errs []error
	if err := c.DefaultRunner.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.LogLevel.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Container.Engine.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.UI.ColorScheme.Validate(); err != nil {
		errs = append(errs, err)
	}
	errs = append(errs, validateArgv("system_packages.update", c.SystemPackages.Update)...)
	errs = append(errs, validateArgv("system_packages.install", c.SystemPackages.Install)...)
	errs = append(errs, validateArgv("package_manager.install", c.PackageManager.Install)...)
	for _, dir := range c.SystemPackages.CacheDirs {
		if !strings.HasPrefix(dir, "/") {
			errs = append(errs, &InvalidCommandError{
				Field:  "system_packages.cache_dirs",
				Reason: fmt.Sprintf("%q is not an absolute path", dir),
			})
		}
	}
	if len(errs) > 0 {
		return &InvalidConfigError{FieldErrors: errs}
	}
	return nil
}

// validateArgv accepts an empty argv (use the default) or one whose program
// is non-blank.
func validateArgv(field string, argv []string) []error {
	if len(argv) == 0 {
		return nil
	}
	if strings.TrimSpace(argv[0]) == "" {
		return []error{&InvalidCommandError{Field: field, Reason: "program name is empty"}}
	}
	return nil
}

// Error implements the error interface for InvalidConfigError.
func (e *InvalidConfigError) Error() string {
	msgs := make([]string, 0, len(e.FieldErrors))
	for _, err := range e.FieldErrors {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("invalid config: %s", strings.Join(msgs, "; "))
}

// Unwrap returns ErrInvalidConfig and every field error.
func (e *InvalidConfigError) Unwrap() []error {
	return append([]error{ErrInvalidConfig}, e.FieldErrors...)
}

// Error implements the error interface for InvalidCommandError.
func (e *InvalidCommandError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Unwrap returns ErrInvalidCommand for errors.Is() compatibility.
func (e *InvalidCommandError) Unwrap() error { return ErrInvalidCommand }

// String returns the string representation of the RunnerName.
func (r RunnerName) String() string { return string(r) }

// Validate returns an error if the RunnerName is not a known runner.
func (r RunnerName) Validate() error {
	switch r {
	case RunnerNative, RunnerVirtual:
		return nil
	default:
		return &InvalidRunnerNameError{Value: r}
	}
}

// Error implements the error interface for InvalidRunnerNameError.
func (e *InvalidRunnerNameError) Error() string {
	return fmt.Sprintf("invalid runner %q (valid: native, virtual)", e.Value)
}

// Unwrap returns the sentinel error for errors.Is() compatibility.
func (e *InvalidRunnerNameError) Unwrap() error { return ErrInvalidRunnerName }

// String returns the string representation of the ContainerEngine.
func (ce ContainerEngine) String() string { return string(ce) }

// Validate returns an error if the ContainerEngine is not a known engine.
func (ce ContainerEngine) Validate() error {
	switch ce {
	case ContainerEngineAuto, ContainerEnginePodman, ContainerEngineDocker:
		return nil
	default:
		return &InvalidContainerEngineError{Value: ce}
	}
}

// Error implements the error interface for InvalidContainerEngineError.
func (e *InvalidContainerEngineError) Error() string {
	return fmt.Sprintf("invalid container engine %q (valid: auto, podman, docker)", e.Value)
}

// Unwrap returns the sentinel error for errors.Is() compatibility.
func (e *InvalidContainerEngineError) Unwrap() error { return ErrInvalidContainerEngine }

// String returns the string representation of the ColorScheme.
func (cs ColorScheme) String() string { return string(cs) }

// Validate returns an error if the ColorScheme is not a known scheme.
func (cs ColorScheme) Validate() error {
	switch cs {
	case ColorSchemeAuto, ColorSchemeDark, ColorSchemeLight:
		return nil
	default:
		return &InvalidColorSchemeError{Value: cs}
	}
}

// Error implements the error interface for InvalidColorSchemeError.
func (e *InvalidColorSchemeError) Error() string {
	return fmt.Sprintf("invalid color scheme %q (valid: auto, dark, light)", e.Value)
}

// Unwrap returns the sentinel error for errors.Is() compatibility.
func (e *InvalidColorSchemeError) Unwrap() error { return ErrInvalidColorScheme }

// LogLevels lists the accepted log levels, most verbose first.
func LogLevels() []LogLevel {
	return []LogLevel{LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError}
}

// String returns the string representation of the LogLevel.
func (l LogLevel) String() string { return string(l) }

// Validate returns an error if the LogLevel is not a known level.
func (l LogLevel) Validate() error {
	if slices.Contains(LogLevels(), l) {
		return nil
	}
	return &InvalidLogLevelError{Value: l}
}

// Error implements the error interface for InvalidLogLevelError.
func (e *InvalidLogLevelError) Error() string {
	return fmt.Sprintf("invalid log level %q (valid: debug, info, warn, error)", e.Value)
}

// Unwrap returns the sentinel error for errors.Is() compatibility.
func (e *InvalidLogLevelError) Unwrap() error { return ErrInvalidLogLevel }
