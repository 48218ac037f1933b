// SPDX-License-Identifier: MPL-2.0

// Package cueutil compiles user CUE documents against an embedded schema and
// decodes them into Go values.
//
// Stepfiles and the configuration file share the same flow:
//
//  1. Compile the embedded schema and look up its root definition
//  2. Compile the user document and unify it with the definition
//  3. Validate and decode
//
// Errors are reported with JSON-path style field locations, for example
// "stepfile.cue: steps[2].packages: incompatible list lengths".
package cueutil
