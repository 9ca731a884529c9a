// Package errors holds the typed failures a resolution can end with.
package errors

// Kind classifies an error chain into the resolution failure taxonomy.
type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidQuery
	KindCatalogUnavailable
	KindNotFound
	KindMalformedResponse
	KindFormat
)

func (k Kind) String() string {
	switch k {
	case KindInvalidQuery:
		return "invalid_query"
	case KindCatalogUnavailable:
		return "catalog_unavailable"
	case KindNotFound:
		return "not_found"
	case KindMalformedResponse:
		return "malformed_response"
	case KindFormat:
		return "format"
	default:
		return "unknown"
	}
}

// MarshalText lets Kind render as its name in JSON and YAML output.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// KindOf returns the Kind of the first typed error found in err's chain.
// A RateLimitError that escaped the retry loop counts as catalog unavailability.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case IsInvalidQueryError(err):
		return KindInvalidQuery
	case IsFormatError(err):
		return KindFormat
	case IsNotFoundError(err):
		return KindNotFound
	case IsMalformedResponseError(err):
		return KindMalformedResponse
	case IsCatalogUnavailableError(err), IsRateLimitError(err):
		return KindCatalogUnavailable
	default:
		return KindUnknown
	}
}
