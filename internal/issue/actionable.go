// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"errors"
	"fmt"
	"strings"
)

type (
	// ActionableError is a user-facing failure: what stepper was doing, which
	// file or step it was working on, and what the user can try next.
	//
	//	return issue.NewErrorContext().
	//		WithOperation("load stepfile").
	//		WithResource(path).
	//		WithSuggestion("Run 'stepper init' to create one").
	//		WithIssue(issue.StepfileNotFoundId).
	//		Wrap(err).
	//		BuildError()
	ActionableError struct {
		// Operation is a verb phrase, e.g. "load stepfile" or "build container image".
		Operation string

		// Resource names the stepfile, config file or image involved.
		Resource string

		// Suggestions are printed as a bullet list under the message.
		Suggestions []string

		Cause error

		// Issue selects the markdown guide shown in verbose mode.
		Issue Id
	}

	// ErrorContext accumulates ActionableError fields. A context may be
	// reused; each Build copies the current state.
	ErrorContext struct {
		err ActionableError
	}
)

// NewErrorContext returns an empty builder.
func NewErrorContext() *ErrorContext {
	return &ErrorContext{}
}

// Error renders "failed to <operation>: <resource>: <cause>", omitting the
// parts that are empty.
func (e *ActionableError) Error() string {
	var parts []string
	if e.Operation != "" {
		parts = append(parts, "failed to "+e.Operation)
	}
	if e.Resource != "" {
		parts = append(parts, e.Resource)
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}
	if len(parts) == 0 {
		return "unknown error"
	}
	return strings.Join(parts, ": ")
}

func (e *ActionableError) Unwrap() error {
	return e.Cause
}

// Format returns Error followed by the suggestions. In verbose mode the
// cause chain is appended, one unwrapped error per line.
func (e *ActionableError) Format(verbose bool) string {
	var b strings.Builder
	b.WriteString(e.Error())

	if len(e.Suggestions) > 0 {
		b.WriteString("\n")
		for _, s := range e.Suggestions {
			b.WriteString("\n  • ")
			b.WriteString(s)
		}
	}

	if verbose && e.Cause != nil {
		b.WriteString("\n\nError chain:")
		depth := 1
		for err := e.Cause; err != nil; err = errors.Unwrap(err) {
			fmt.Fprintf(&b, "\n  %d. %s", depth, err.Error())
			depth++
		}
	}

	return b.String()
}

// Guide returns the linked catalog issue, or nil when none is set.
func (e *ActionableError) Guide() *Issue {
	return Get(e.Issue)
}

// WithOperation sets the verb phrase describing what failed.
func (c *ErrorContext) WithOperation(op string) *ErrorContext {
	c.err.Operation = op
	return c
}

// WithResource sets the file, step or image involved.
func (c *ErrorContext) WithResource(res string) *ErrorContext {
	c.err.Resource = res
	return c
}

// WithSuggestion appends a hint.
func (c *ErrorContext) WithSuggestion(sug string) *ErrorContext {
	c.err.Suggestions = append(c.err.Suggestions, sug)
	return c
}

// WithIssue links the error to a guide from the catalog.
func (c *ErrorContext) WithIssue(id Id) *ErrorContext {
	c.err.Issue = id
	return c
}

// Wrap sets the underlying cause.
func (c *ErrorContext) Wrap(err error) *ErrorContext {
	c.err.Cause = err
	return c
}

// Build returns a copy of the accumulated error.
func (c *ErrorContext) Build() *ActionableError {
	ae := c.err
	ae.Suggestions = append([]string(nil), c.err.Suggestions...)
	return &ae
}

// BuildError is Build typed as error, for return statements.
func (c *ErrorContext) BuildError() error {
	return c.Build()
}
