// SPDX-License-Identifier: MPL-2.0

// Package config loads stepper's user configuration using Viper with CUE as
// the file format.
//
// The file is config.cue in the platform configuration directory
// ($XDG_CONFIG_HOME/stepper on Linux), or the path given with --config. It is
// validated against the embedded #Config schema before it is merged over the
// defaults. Any key can be overridden from the environment with a STEPPER_
// prefix, for example STEPPER_LOG_LEVEL or STEPPER_CONTAINER_ENGINE.
package config
