// SPDX-License-Identifier: MPL-2.0

package provision

import (
	"errors"
	"fmt"
)

const (
	// StatePending means Run has not been called yet.
	StatePending State = iota
	// StateRunning means steps are being executed.
	StateRunning
	// StateSucceeded is terminal: every step completed.
	StateSucceeded
	// StateFailed is terminal: validation failed or a step failed.
	StateFailed
)

// ErrInvalidState is returned when a State value is not one of the defined states.
var ErrInvalidState = errors.New("invalid state")

type (
	// State is the lifecycle state of a provisioning run.
	State int32

	// InvalidStateError is returned when a State value is not recognized.
	InvalidStateError struct {
		Value State
	}
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Error implements the error interface.
func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("invalid state %d (valid: 0=pending, 1=running, 2=succeeded, 3=failed)", e.Value)
}

// Unwrap returns ErrInvalidState for errors.Is() compatibility.
func (e *InvalidStateError) Unwrap() error {
	return ErrInvalidState
}

// Validate returns nil if s is one of the defined states.
func (s State) Validate() error {
	switch s {
	case StatePending, StateRunning, StateSucceeded, StateFailed:
		return nil
	default:
		return &InvalidStateError{Value: s}
	}
}

// IsTerminal returns true for Succeeded and Failed.
func (s State) IsTerminal() bool {
	return s == StateSucceeded || s == StateFailed
}
