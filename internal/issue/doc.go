// SPDX-License-Identifier: MPL-2.0

// Package issue provides actionable errors and the catalog of markdown guides
// the CLI prints for them.
//
// An ActionableError names the failed operation and resource and carries
// suggestions. When it links a catalog Id, verbose output renders that guide
// with glamour.
package issue
