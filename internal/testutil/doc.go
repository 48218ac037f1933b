// SPDX-License-Identifier: MPL-2.0

// Package testutil holds small test helpers shared by stepper's packages:
// project fixtures (WriteFile, MustChdir), process environment (MustSetenv,
// SetHomeDir) and a limit on concurrent container tests.
package testutil
