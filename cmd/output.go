package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/lepinkainen/qidianmeta/internal/book"
	"github.com/lepinkainen/qidianmeta/internal/resolver"
	"gopkg.in/yaml.v3"
)

// report is the printable form of a resolution outcome.
type report struct {
	Status     string                 `json:"status" yaml:"status"`
	Host       *book.HostRecord       `json:"host,omitempty" yaml:"host,omitempty"`
	Record     *book.Record           `json:"record,omitempty" yaml:"record,omitempty"`
	Cover      *coverReport           `json:"cover,omitempty" yaml:"cover,omitempty"`
	Partial    bool                   `json:"partial,omitempty" yaml:"partial,omitempty"`
	CoverError string                 `json:"cover_error,omitempty" yaml:"cover_error,omitempty"`
	Match      *book.ScoredCandidate  `json:"match,omitempty" yaml:"match,omitempty"`
	Candidates []book.ScoredCandidate `json:"candidates,omitempty" yaml:"candidates,omitempty"`
	Best       *book.ScoredCandidate  `json:"best,omitempty" yaml:"best,omitempty"`
	ErrorKind  string                 `json:"error_kind,omitempty" yaml:"error_kind,omitempty"`
	Error      string                 `json:"error,omitempty" yaml:"error,omitempty"`
}

type coverReport struct {
	NativeID    string    `json:"native_id" yaml:"native_id"`
	ContentHash string    `json:"content_hash" yaml:"content_hash"`
	SourceURL   string    `json:"source_url" yaml:"source_url"`
	Size        int64     `json:"size" yaml:"size"`
	FetchedAt   time.Time `json:"fetched_at" yaml:"fetched_at"`
}

func newCoverReport(c *book.CoverAsset) *coverReport {
	if c == nil {
		return nil
	}
	return &coverReport{
		NativeID:    c.NativeID,
		ContentHash: c.ContentHash,
		SourceURL:   c.SourceURL,
		Size:        int64(len(c.Bytes)),
		FetchedAt:   c.FetchedAt,
	}
}

func newReport(o resolver.Outcome) report {
	r := report{Status: o.Status()}

	switch v := o.(type) {
	case resolver.Resolved:
		r.Host = v.Host
		r.Record = v.Record
		r.Cover = newCoverReport(v.Cover)
		r.Partial = v.Partial
		r.Match = v.Match
		if v.CoverErr != nil {
			r.CoverError = v.CoverErr.Error()
		}
	case resolver.Ambiguous:
		r.Candidates = v.Candidates
	case resolver.NoConfidentMatch:
		r.Best = v.Best
	case resolver.Failed:
		r.ErrorKind = v.Kind.String()
		if v.Err != nil {
			r.Error = v.Err.Error()
		}
	}
	return r
}

func writeReport(w io.Writer, format string, v any) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(v)
	case "yaml", "":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}
