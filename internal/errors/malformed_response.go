package errors

import (
	stdErrors "errors"
	"fmt"
)

// MalformedResponseError means the catalog answered with a payload whose shape
// the parser does not recognise. It usually signals a layout change upstream.
type MalformedResponseError struct {
	Source string // "search" or "detail"
	Reason string
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed %s response: %s", e.Source, e.Reason)
}

// NewMalformedResponseError creates a MalformedResponseError.
func NewMalformedResponseError(source, reason string) *MalformedResponseError {
	return &MalformedResponseError{Source: source, Reason: reason}
}

// IsMalformedResponseError reports whether err is a MalformedResponseError (even when wrapped).
func IsMalformedResponseError(err error) bool {
	var mrErr *MalformedResponseError
	return stdErrors.As(err, &mrErr)
}
