// SPDX-License-Identifier: MPL-2.0

package provision

import "slices"

// Commands holds the external commands used by the package steps.
type Commands struct {
	// Update refreshes the OS package index.
	Update []string
	// Install installs OS packages; package names are appended.
	Install []string
	// CacheDirs are emptied after every OS package install.
	CacheDirs []string
	// ToolInstall installs a package manager; the tool name is appended.
	ToolInstall []string
}

// DefaultCommands returns the apt and pip commands of a Debian-based
// Python image.
func DefaultCommands() Commands {
	return Commands{
		Update:      []string{"apt-get", "update"},
		Install:     []string{"apt-get", "install", "-y", "--no-install-recommends"},
		CacheDirs:   []string{"/var/lib/apt/lists"},
		ToolInstall: []string{"pip", "install", "--no-cache-dir"},
	}
}

// Merge returns c with every empty field taken from fallback.
func (c Commands) Merge(fallback Commands) Commands {
	pick := func(v, fb []string) []string {
		if len(v) > 0 {
			return slices.Clone(v)
		}
		return slices.Clone(fb)
	}
	return Commands{
		Update:      pick(c.Update, fallback.Update),
		Install:     pick(c.Install, fallback.Install),
		CacheDirs:   pick(c.CacheDirs, fallback.CacheDirs),
		ToolInstall: pick(c.ToolInstall, fallback.ToolInstall),
	}
}
