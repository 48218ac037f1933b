// SPDX-License-Identifier: MPL-2.0

// Command stepper provisions a build environment from a stepfile.
package main

import "github.com/invowk/stepper/cmd/stepper"

func main() {
	cmd.Execute()
}
