// SPDX-License-Identifier: MPL-2.0

// Package cmd contains the stepper command line.
//
// Every command receives an *App, the composition root that owns the
// configuration provider, the container engine factory, the process logger
// and the output streams. Tests build an App with Dependencies to replace
// any of them.
package cmd
