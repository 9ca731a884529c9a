package errors

import stdErrors "errors"

// InvalidQueryError means the caller did not supply enough input to resolve anything.
type InvalidQueryError struct {
	Reason string
}

func (e *InvalidQueryError) Error() string {
	return "invalid query: " + e.Reason
}

// NewInvalidQueryError creates an InvalidQueryError with the given reason.
func NewInvalidQueryError(reason string) *InvalidQueryError {
	return &InvalidQueryError{Reason: reason}
}

// IsInvalidQueryError reports whether err is an InvalidQueryError (even when wrapped).
func IsInvalidQueryError(err error) bool {
	var qErr *InvalidQueryError
	return stdErrors.As(err, &qErr)
}
