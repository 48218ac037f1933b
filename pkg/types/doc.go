// SPDX-License-Identifier: MPL-2.0

// Package types holds small validated value types shared across stepper,
// such as process exit codes and filesystem paths.
package types
