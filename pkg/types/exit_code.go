// SPDX-License-Identifier: MPL-2.0

package types

import (
	"errors"
	"fmt"
	"strconv"
)

// ErrInvalidExitCode is the sentinel error wrapped by InvalidExitCodeError.
var ErrInvalidExitCode = errors.New("invalid exit code")

type (
	// ExitCode is a process exit status. POSIX statuses are 0-255 and 0
	// means success.
	ExitCode int

	// InvalidExitCodeError reports an ExitCode outside 0-255.
	InvalidExitCodeError struct {
		Value ExitCode
	}
)

func (e *InvalidExitCodeError) Error() string {
	return fmt.Sprintf("invalid exit code %d (must be in range 0-255)", e.Value)
}

func (e *InvalidExitCodeError) Unwrap() error { return ErrInvalidExitCode }

// Validate reports whether c fits in a POSIX exit status.
func (c ExitCode) Validate() error {
	if c < 0 || c > 255 {
		return &InvalidExitCodeError{Value: c}
	}
	return nil
}

func (c ExitCode) IsSuccess() bool { return c == 0 }

// Failure returns c when it is a valid non-zero status and 1 otherwise, so
// a failed run never exits 0 or with a status the OS would truncate.
func (c ExitCode) Failure() ExitCode {
	if c.IsSuccess() || c.Validate() != nil {
		return 1
	}
	return c
}

func (c ExitCode) String() string { return strconv.Itoa(int(c)) }
