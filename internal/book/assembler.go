package book

import (
	"time"

	"github.com/lepinkainen/qidianmeta/internal/identifier"
)

// Precedence controls how catalog data is laid over what the host already has.
type Precedence struct {
	// OverwriteTitleAuthor replaces the host's title/authors with the
	// catalog's. When false the catalog values only fill blanks.
	OverwriteTitleAuthor bool

	// IdentifierScheme is the key under which the native id is recorded.
	IdentifierScheme string

	// RecordURL also records the book page URL under the "url" identifier.
	RecordURL bool
}

// DefaultPrecedence returns the precedence used when nothing is configured.
func DefaultPrecedence() Precedence {
	return Precedence{
		OverwriteTitleAuthor: true,
		IdentifierScheme:     identifier.Scheme,
		RecordURL:            true,
	}
}

// Existing is what the host already knows about the entry.
type Existing struct {
	Title   string
	Authors []string
}

// HostRecord is the host's generic metadata record shape.
type HostRecord struct {
	Title       string            `json:"title" yaml:"title"`
	Authors     []string          `json:"authors" yaml:"authors"`
	Identifier  string            `json:"identifier" yaml:"identifier"`
	Identifiers map[string]string `json:"identifiers" yaml:"identifiers"`
	Tags        []string          `json:"tags,omitempty" yaml:"tags,omitempty"`
	Comments    string            `json:"comments,omitempty" yaml:"comments,omitempty"`
	PubDate     *time.Time        `json:"pubdate,omitempty" yaml:"pubdate,omitempty"`
	Series      string            `json:"series,omitempty" yaml:"series,omitempty"`
	SeriesIndex *float64          `json:"series_index,omitempty" yaml:"series_index,omitempty"`
	Rating      *float64          `json:"rating,omitempty" yaml:"rating,omitempty"`
	Publisher   string            `json:"publisher,omitempty" yaml:"publisher,omitempty"`
	Language    string            `json:"language,omitempty" yaml:"language,omitempty"`
	CoverHash   string            `json:"cover_hash,omitempty" yaml:"cover_hash,omitempty"`
	Cover       []byte            `json:"-" yaml:"-"`
}

// Assembler maps a Record (and optional cover) onto a HostRecord.
// It performs no I/O.
type Assembler struct {
	precedence Precedence
}

// NewAssembler creates an Assembler. An empty IdentifierScheme falls back to "qidian".
func NewAssembler(p Precedence) *Assembler {
	if p.IdentifierScheme == "" {
		p.IdentifierScheme = identifier.Scheme
	}
	return &Assembler{precedence: p}
}

// Assemble builds the host record. A nil record yields nil.
func (a *Assembler) Assemble(existing Existing, rec *Record, cover *CoverAsset) *HostRecord {
	if rec == nil {
		return nil
	}

	out := &HostRecord{
		Title:       pickString(existing.Title, rec.Title, a.precedence.OverwriteTitleAuthor),
		Authors:     pickAuthors(existing.Authors, rec.Authors, a.precedence.OverwriteTitleAuthor),
		Identifier:  a.precedence.IdentifierScheme + ":" + rec.NativeID,
		Identifiers: map[string]string{a.precedence.IdentifierScheme: rec.NativeID},
		Tags:        MergeTags(nil, rec.Tags),
		PubDate:     rec.PublishDate,
		Rating:      rec.Rating,
		Publisher:   rec.Publisher,
		Language:    rec.Language,
	}

	if a.precedence.RecordURL && rec.URL != "" {
		out.Identifiers["url"] = rec.URL
	}

	if rec.Description != nil {
		out.Comments = *rec.Description
	}

	if rec.Series != nil && rec.Series.Name != "" {
		out.Series = rec.Series.Name
		out.SeriesIndex = rec.Series.Index
	}

	if cover != nil && len(cover.Bytes) > 0 {
		out.Cover = cover.Bytes
		out.CoverHash = cover.ContentHash
	}

	return out
}

func pickString(existing, catalog string, overwrite bool) string {
	if catalog == "" {
		return existing
	}
	if overwrite || existing == "" {
		return catalog
	}
	return existing
}

func pickAuthors(existing, catalog []string, overwrite bool) []string {
	if len(catalog) == 0 {
		return existing
	}
	if overwrite || len(existing) == 0 {
		return catalog
	}
	return existing
}
