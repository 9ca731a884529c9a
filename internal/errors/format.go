package errors

import (
	stdErrors "errors"
	"fmt"
)

// FormatError is returned when an identifier string does not match the catalog grammar.
type FormatError struct {
	Input  string
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("malformed identifier %q: %s", e.Input, e.Reason)
}

// NewFormatError creates a FormatError for the given input.
func NewFormatError(input, reason string) *FormatError {
	return &FormatError{Input: input, Reason: reason}
}

// IsFormatError reports whether err is a FormatError (even when wrapped).
func IsFormatError(err error) bool {
	var fErr *FormatError
	return stdErrors.As(err, &fErr)
}
