package errors

import (
	stdErrors "errors"
	"fmt"
)

// CatalogUnavailableError is a network or server failure that survived all retries,
// or a client error (4xx) the catalog will not serve. Retrying the whole
// resolution later is safe.
type CatalogUnavailableError struct {
	URL        string
	StatusCode int // 0 when no HTTP response was received
	Attempts   int
	Err        error
}

func (e *CatalogUnavailableError) Error() string {
	msg := fmt.Sprintf("catalog unavailable: %s", e.URL)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (HTTP %d)", e.StatusCode)
	}
	if e.Attempts > 1 {
		msg += fmt.Sprintf(" after %d attempts", e.Attempts)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CatalogUnavailableError) Unwrap() error {
	return e.Err
}

// NewCatalogUnavailableError creates a CatalogUnavailableError.
func NewCatalogUnavailableError(url string, statusCode, attempts int, err error) *CatalogUnavailableError {
	return &CatalogUnavailableError{URL: url, StatusCode: statusCode, Attempts: attempts, Err: err}
}

// IsCatalogUnavailableError reports whether err is a CatalogUnavailableError (even when wrapped).
func IsCatalogUnavailableError(err error) bool {
	var cuErr *CatalogUnavailableError
	return stdErrors.As(err, &cuErr)
}
