// SPDX-License-Identifier: MPL-2.0

// Package container builds images from rendered Containerfiles through the
// Docker or Podman CLI.
//
// Both engines share BaseCLIEngine, which builds argument lists and runs the
// binary; the concrete types only differ in how they probe availability and
// query versions. NewEngine resolves a configured preference (including
// "auto") to an installed engine.
package container
