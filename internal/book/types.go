// Package book holds the metadata types shared by the catalog client, the
// matcher and the resolver, and the assembler that maps them onto the
// host's record shape.
package book

import "time"

// Candidate is a lightweight search hit.
type Candidate struct {
	NativeID     string   `json:"native_id" yaml:"native_id"`
	Title        string   `json:"title" yaml:"title"`
	Authors      []string `json:"authors" yaml:"authors"`
	ThumbnailURL string   `json:"thumbnail_url,omitempty" yaml:"thumbnail_url,omitempty"`

	// SearchRank is the catalog's own ordering, 0 = most relevant.
	// Only ever used to break score ties.
	SearchRank int `json:"search_rank" yaml:"search_rank"`
}

// ScoredCandidate is a Candidate with its match score against a query.
type ScoredCandidate struct {
	Candidate        `yaml:",inline"`
	Score            float64 `json:"score" yaml:"score"`
	TitleSimilarity  float64 `json:"title_similarity" yaml:"title_similarity"`
	AuthorSimilarity float64 `json:"author_similarity" yaml:"author_similarity"`
}

// Series is a named series with an optional position.
type Series struct {
	Name  string   `json:"name" yaml:"name"`
	Index *float64 `json:"index,omitempty" yaml:"index,omitempty"`
}

// Record is the full metadata of one catalog work.
// Pointer fields are nil when the catalog page does not carry the value;
// they are never filled with placeholders.
type Record struct {
	NativeID    string     `json:"native_id" yaml:"native_id"`
	Title       string     `json:"title" yaml:"title"`
	Authors     []string   `json:"authors" yaml:"authors"`
	Tags        []string   `json:"tags,omitempty" yaml:"tags,omitempty"`
	Description *string    `json:"description,omitempty" yaml:"description,omitempty"`
	PublishDate *time.Time `json:"publish_date,omitempty" yaml:"publish_date,omitempty"`
	Series      *Series    `json:"series,omitempty" yaml:"series,omitempty"`
	Rating      *float64   `json:"rating,omitempty" yaml:"rating,omitempty"` // 0-5
	CoverURL    *string    `json:"cover_url,omitempty" yaml:"cover_url,omitempty"`

	// Constant per catalog.
	Publisher string `json:"publisher,omitempty" yaml:"publisher,omitempty"`
	Language  string `json:"language,omitempty" yaml:"language,omitempty"`
	URL       string `json:"url,omitempty" yaml:"url,omitempty"`
}

// CoverAsset is a downloaded cover image as stored by the cover cache.
type CoverAsset struct {
	NativeID    string    `json:"native_id" yaml:"native_id"`
	ContentHash string    `json:"content_hash" yaml:"content_hash"`
	Bytes       []byte    `json:"-" yaml:"-"`
	FetchedAt   time.Time `json:"fetched_at" yaml:"fetched_at"`
	SourceURL   string    `json:"source_url" yaml:"source_url"`
}
