// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/invowk/stepper/internal/config"

	"github.com/spf13/cobra"
)

// newConfigCommand creates the `stepper config` command tree. Every
// subcommand reads the configuration loaded by the root command.
func newConfigCommand(app *App) *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage stepper configuration",
		Long: `Manage stepper configuration.

Configuration is stored in:
  - Linux: ~/.config/stepper/config.cue
  - macOS: ~/Library/Application Support/stepper/config.cue
  - Windows: %APPDATA%\stepper\config.cue

Every key can be overridden with a STEPPER_ environment variable, for example
STEPPER_DEFAULT_RUNNER=virtual or STEPPER_CONTAINER_ENGINE=docker.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			showConfig(app)
			return nil
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Create default configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, created, err := config.CreateDefaultConfig("")
			if err != nil {
				return app.fail(err)
			}
			if !created {
				fmt.Fprintf(app.stdout, "%s Config file already exists: %s\n", WarningStyle.Render("!"), path)
				return nil
			}
			fmt.Fprintf(app.stdout, "%s Created %s\n", SuccessStyle.Render("✓"), path)
			return nil
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configFilePath(app)
			if err != nil {
				return app.fail(err)
			}
			fmt.Fprintln(app.stdout, path)
			return nil
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "dump",
		Short: "Output the effective configuration as CUE",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprint(app.stdout, config.GenerateCUE(app.cfg))
			return nil
		},
	})

	return cfgCmd
}

// configFilePath returns --config when given, otherwise the default location.
func configFilePath(app *App) (string, error) {
	if app.flags.configPath != "" {
		return app.flags.configPath, nil
	}
	dir, err := config.ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, config.ConfigFileName+"."+config.ConfigFileExt), nil
}

func showConfig(app *App) {
	w := app.stdout
	keyStyle := CmdStyle
	valueStyle := SuccessStyle
	cfg := app.cfg

	fmt.Fprintln(w, TitleStyle.Render("Current Configuration"))
	fmt.Fprintln(w)

	source := SubtitleStyle.Render("(using defaults)")
	if path, err := configFilePath(app); err == nil {
		if info, statErr := os.Stat(path); statErr == nil && !info.IsDir() {
			source = path
		}
	}
	fmt.Fprintf(w, "%s: %s\n\n", keyStyle.Render("Config file"), source)

	fmt.Fprintf(w, "%s: %s\n", keyStyle.Render("default_runner"), valueStyle.Render(cfg.DefaultRunner.String()))
	fmt.Fprintf(w, "%s: %s\n", keyStyle.Render("log_level"), valueStyle.Render(cfg.LogLevel.String()))

	fmt.Fprintln(w)
	fmt.Fprintf(w, "%s:\n", keyStyle.Render("system_packages"))
	printArgv(w, "update", cfg.SystemPackages.Update)
	printArgv(w, "install", cfg.SystemPackages.Install)
	printArgv(w, "cache_dirs", cfg.SystemPackages.CacheDirs)

	fmt.Fprintln(w)
	fmt.Fprintf(w, "%s:\n", keyStyle.Render("package_manager"))
	printArgv(w, "install", cfg.PackageManager.Install)

	fmt.Fprintln(w)
	fmt.Fprintf(w, "%s:\n", keyStyle.Render("container"))
	fmt.Fprintf(w, "  engine: %s\n", valueStyle.Render(cfg.Container.Engine.String()))
	fmt.Fprintf(w, "  base_image: %s\n", valueStyle.Render(cfg.Container.BaseImage))

	fmt.Fprintln(w)
	fmt.Fprintf(w, "%s:\n", keyStyle.Render("ui"))
	fmt.Fprintf(w, "  verbose: %s\n", valueStyle.Render(fmt.Sprintf("%v", cfg.UI.Verbose)))
	fmt.Fprintf(w, "  color_scheme: %s\n", valueStyle.Render(cfg.UI.ColorScheme.String()))
}

func printArgv(w io.Writer, key string, argv []string) {
	if len(argv) == 0 {
		fmt.Fprintf(w, "  %s: %s\n", key, SubtitleStyle.Render("(none)"))
		return
	}
	fmt.Fprintf(w, "  %s: %s\n", key, SuccessStyle.Render(strings.Join(argv, " ")))
}
