package errors

import (
	stdErrors "errors"
	"fmt"
)

// NotFoundError means the catalog confirmed the requested work does not exist.
type NotFoundError struct {
	NativeID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("book %s not found in catalog", e.NativeID)
}

// NewNotFoundError creates a NotFoundError for the given native id.
func NewNotFoundError(nativeID string) *NotFoundError {
	return &NotFoundError{NativeID: nativeID}
}

// IsNotFoundError reports whether err is a NotFoundError (even when wrapped).
func IsNotFoundError(err error) bool {
	var nfErr *NotFoundError
	return stdErrors.As(err, &nfErr)
}
