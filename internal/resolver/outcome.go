package resolver

import (
	"github.com/lepinkainen/qidianmeta/internal/book"
	qerrors "github.com/lepinkainen/qidianmeta/internal/errors"
)

// Outcome is one of Resolved, Ambiguous, NoConfidentMatch or Failed.
type Outcome interface {
	// Status names the outcome variant.
	Status() string
	isOutcome()
}

// Resolved carries the winning record. Cover is nil when the cover could not
// be fetched, in which case Partial is set and CoverErr says why.
type Resolved struct {
	Record *book.Record
	Host   *book.HostRecord
	Cover  *book.CoverAsset

	// Match is the accepted search candidate; nil on the direct path.
	Match *book.ScoredCandidate

	CoverErr error
	Partial  bool
}

// Ambiguous lists near-tied candidates, best first, for the caller to choose from.
type Ambiguous struct {
	Candidates []book.ScoredCandidate
}

// NoConfidentMatch means no candidate cleared the acceptance threshold.
// Best is the top scorer, if the search returned anything.
type NoConfidentMatch struct {
	Best *book.ScoredCandidate
}

// Failed is a terminal error outcome.
type Failed struct {
	Kind qerrors.Kind
	Err  error
}

func (Resolved) Status() string         { return "resolved" }
func (Ambiguous) Status() string        { return "ambiguous" }
func (NoConfidentMatch) Status() string { return "no_confident_match" }
func (Failed) Status() string           { return "failed" }

func (Resolved) isOutcome()         {}
func (Ambiguous) isOutcome()        {}
func (NoConfidentMatch) isOutcome() {}
func (Failed) isOutcome()           {}

func (f Failed) Error() string {
	if f.Err == nil {
		return f.Kind.String()
	}
	return f.Err.Error()
}

func (f Failed) Unwrap() error { return f.Err }
