// SPDX-License-Identifier: MPL-2.0

// Package runtime runs shell commands for provisioning steps.
//
// Two runners are available:
//   - native: executes commands using the host shell ($SHELL, bash or sh)
//   - virtual: executes commands using an embedded POSIX interpreter (mvdan/sh)
//
// Both implement the Runner interface with Name(), Available(), Validate() and Run().
// A Command carries the script, working directory, environment overlay and I/O
// streams; the overlay is applied on top of the host environment.
package runtime
