// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/invowk/stepper/internal/config"
	"github.com/invowk/stepper/internal/container"

	"github.com/charmbracelet/log"
)

type (
	// ConfigProvider loads configuration using explicit options.
	ConfigProvider interface {
		Load(ctx context.Context, opts config.LoadOptions) (*config.Config, error)
	}

	// EngineFactory returns a usable container engine, preferring the given type.
	EngineFactory func(preferred container.EngineType) (container.Engine, error)

	// App wires CLI services and shared state. All command handlers receive
	// the same App; nothing is kept in package-level variables.
	App struct {
		Config  ConfigProvider
		Engines EngineFactory
		stdout  io.Writer
		stderr  io.Writer

		flags  globalFlags
		cfg    *config.Config
		logger *log.Logger
	}

	// Dependencies defines the injection points for building an App. Nil
	// fields are replaced with production defaults by NewApp.
	Dependencies struct {
		Config  ConfigProvider
		Engines EngineFactory
		Stdout  io.Writer
		Stderr  io.Writer
	}

	// globalFlags holds the persistent flags shared by every subcommand.
	globalFlags struct {
		verbose    bool
		configPath string
		logLevel   string
	}
)

// NewApp creates an App with defaults for omitted dependencies.
func NewApp(deps Dependencies) (*App, error) {
	if deps.Stdout == nil {
		deps.Stdout = os.Stdout
	}
	if deps.Stderr == nil {
		deps.Stderr = os.Stderr
	}
	if deps.Config == nil {
		deps.Config = config.NewProvider()
	}
	if deps.Engines == nil {
		deps.Engines = func(preferred container.EngineType) (container.Engine, error) {
			return container.NewEngine(preferred)
		}
	}

	return &App{
		Config:  deps.Config,
		Engines: deps.Engines,
		stdout:  deps.Stdout,
		stderr:  deps.Stderr,
		cfg:     config.DefaultConfig(),
		logger:  log.New(io.Discard),
	}, nil
}

// Logger returns the process logger. Before prepare runs it discards output.
func (a *App) Logger() *log.Logger {
	return a.logger
}

// prepare loads the configuration and builds the logger. An explicit
// --config file must load; a broken file in the default location is reported
// and the defaults are used.
func (a *App) prepare(ctx context.Context) error {
	cfg, err := a.Config.Load(ctx, config.LoadOptions{ConfigFilePath: a.flags.configPath})
	if err != nil {
		if a.flags.configPath != "" {
			a.renderError(err)
			return &ExitError{Code: 1}
		}
		fmt.Fprintln(a.stderr, WarningStyle.Render("Warning: ")+formatErrorForDisplay(err, a.flags.verbose))
		cfg = config.DefaultConfig()
	}
	a.cfg = cfg

	if !a.flags.verbose {
		a.flags.verbose = cfg.UI.Verbose
	}

	logger, err := newLogger(a.stderr, a.logLevel())
	if err != nil {
		return err
	}
	a.logger = logger
	return nil
}

// logLevel picks --log-level, then --verbose, then the configured level.
func (a *App) logLevel() string {
	switch {
	case a.flags.logLevel != "":
		return a.flags.logLevel
	case a.flags.verbose:
		return string(config.LogLevelDebug)
	default:
		return string(a.cfg.LogLevel)
	}
}

// newLogger creates the process logger writing to w.
func newLogger(w io.Writer, level string) (*log.Logger, error) {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return log.NewWithOptions(w, log.Options{
		Prefix: config.AppName,
		Level:  lvl,
	}), nil
}

// renderError prints err the way the CLI shows every failure: a styled
// message, actionable suggestions and, in verbose mode, the issue guide.
func (a *App) renderError(err error) {
	fmt.Fprintf(a.stderr, "%s %s\n", ErrorStyle.Render("Error:"), formatErrorForDisplay(err, a.flags.verbose))

	if !a.flags.verbose {
		return
	}
	guide := classifyError(err)
	if guide == nil {
		return
	}
	rendered, renderErr := guide.Render(a.glamourStyle())
	if renderErr != nil {
		return
	}
	fmt.Fprint(a.stderr, rendered)
}

// glamourStyle maps the configured color scheme to a glamour style name.
func (a *App) glamourStyle() string {
	switch a.cfg.UI.ColorScheme {
	case config.ColorSchemeLight:
		return "light"
	case config.ColorSchemeDark:
		return "dark"
	default:
		return "auto"
	}
}

// fail renders err and converts it into an ExitError with the matching code.
func (a *App) fail(err error) error {
	a.renderError(err)
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return &ExitError{Code: exitErr.Code}
	}
	return &ExitError{Code: exitCodeFor(err)}
}
