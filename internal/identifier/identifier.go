// Package identifier converts Qidian book ids to and from the host's
// "<scheme>:<native_id>" identifier field.
package identifier

import (
	"fmt"
	"regexp"
	"strings"

	qerrors "github.com/lepinkainen/qidianmeta/internal/errors"
)

// Scheme is the identifier scheme recorded in the host's identifier field.
const Scheme = "qidian"

const (
	bookURLFormat     = "https://www.qidian.com/book/%s/"
	maxNativeIDDigits = 19
)

// nativeIDPattern is the catalog's id grammar: a positive decimal without leading zeros.
var nativeIDPattern = regexp.MustCompile(`^[1-9][0-9]*$`)

// bookURLPattern matches both the current and the legacy book page URLs.
var bookURLPattern = regexp.MustCompile(`^https?://[a-z0-9.]*qidian\.com/(?:book|info)/([0-9]+)/?(?:[?#].*)?$`)

// Validate reports whether id is a well-formed native id.
func Validate(id string) error {
	if id == "" {
		return qerrors.NewFormatError(id, "empty id")
	}
	if len(id) > maxNativeIDDigits {
		return qerrors.NewFormatError(id, "id too long")
	}
	if !nativeIDPattern.MatchString(id) {
		return qerrors.NewFormatError(id, "id must be a positive decimal number")
	}
	return nil
}

// Encode renders a native id as an external identifier string.
func Encode(nativeID string) string {
	return Scheme + ":" + nativeID
}

// Decode parses an external identifier string back into a native id.
// It fails with a FormatError when the scheme or the id grammar does not match.
func Decode(external string) (string, error) {
	scheme, id, ok := strings.Cut(external, ":")
	if !ok {
		return "", qerrors.NewFormatError(external, "missing scheme separator")
	}
	if scheme != Scheme {
		return "", qerrors.NewFormatError(external, fmt.Sprintf("unknown scheme %q", scheme))
	}
	if err := Validate(id); err != nil {
		return "", qerrors.NewFormatError(external, "bad native id")
	}
	return id, nil
}

// FromURL extracts the native id from a Qidian book page URL.
func FromURL(rawURL string) (string, error) {
	m := bookURLPattern.FindStringSubmatch(strings.TrimSpace(rawURL))
	if m == nil {
		return "", qerrors.NewFormatError(rawURL, "not a qidian book URL")
	}
	if err := Validate(m[1]); err != nil {
		return "", err
	}
	return m[1], nil
}

// Parse accepts anything a user is likely to paste: "qidian:<id>", a book
// page URL, or a bare id.
func Parse(input string) (string, error) {
	input = strings.TrimSpace(input)
	switch {
	case strings.HasPrefix(input, "http://"), strings.HasPrefix(input, "https://"):
		return FromURL(input)
	case strings.Contains(input, ":"):
		return Decode(input)
	default:
		if err := Validate(input); err != nil {
			return "", err
		}
		return input, nil
	}
}

// BookURL returns the canonical book page URL for a native id.
func BookURL(nativeID string) string {
	return fmt.Sprintf(bookURLFormat, nativeID)
}

