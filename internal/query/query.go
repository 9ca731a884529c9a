// Package query turns a host request into a resolution plan.
package query

import (
	"strings"

	qerrors "github.com/lepinkainen/qidianmeta/internal/errors"
	"github.com/lepinkainen/qidianmeta/internal/identifier"
)

const defaultLimit = 5

// Query is what the host knows about a library entry.
// At least one of Title or NativeID must be set; authors alone are never enough.
type Query struct {
	Title    string
	Authors  []string
	NativeID string
}

// Options are the builder's configuration knobs.
type Options struct {
	// Limit caps the number of candidates surfaced when a search is ambiguous.
	Limit int
}

// Plan is either a DirectLookup or a SearchLookup.
type Plan interface {
	isPlan()
}

// DirectLookup fetches a known id straight from the detail endpoint.
// Identifiers are authoritative: search is never used to double check them.
type DirectLookup struct {
	NativeID string
}

// SearchLookup searches the catalog by title and authors.
type SearchLookup struct {
	Title   string
	Authors []string
	Limit   int
}

func (DirectLookup) isPlan() {}
func (SearchLookup) isPlan() {}

// Keyword returns the catalog search keyword: title followed by the authors.
func (s SearchLookup) Keyword() string {
	parts := make([]string, 0, len(s.Authors)+1)
	parts = append(parts, s.Title)
	parts = append(parts, s.Authors...)
	return strings.Join(parts, " ")
}

// Build produces the plan for q.
func Build(q Query, opts Options) (Plan, error) {
	nativeID := strings.TrimSpace(q.NativeID)
	title := strings.TrimSpace(q.Title)

	if nativeID != "" {
		if err := identifier.Validate(nativeID); err != nil {
			return nil, err
		}
		return DirectLookup{NativeID: nativeID}, nil
	}

	if title == "" {
		return nil, qerrors.NewInvalidQueryError("either a title or a native id is required")
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = defaultLimit
	}

	return SearchLookup{
		Title:   title,
		Authors: cleanAuthors(q.Authors),
		Limit:   limit,
	}, nil
}

func cleanAuthors(authors []string) []string {
	out := make([]string, 0, len(authors))
	for _, a := range authors {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	return out
}
