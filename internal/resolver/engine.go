// Package resolver is the resolution entry point: it plans a query, searches
// and scores candidates when needed, fetches the winner's details and cover
// and assembles the host record.
package resolver

import (
	"context"
	"errors"
	"log/slog"

	"github.com/lepinkainen/qidianmeta/internal/book"
	"github.com/lepinkainen/qidianmeta/internal/catalog"
	qerrors "github.com/lepinkainen/qidianmeta/internal/errors"
	"github.com/lepinkainen/qidianmeta/internal/match"
	"github.com/lepinkainen/qidianmeta/internal/query"
)

// Searcher returns the raw search result page for a lookup.
type Searcher interface {
	Search(ctx context.Context, lookup query.SearchLookup) ([]byte, error)
}

// DetailFetcher returns the full record of a native id.
type DetailFetcher interface {
	FetchDetail(ctx context.Context, nativeID string) (*book.Record, error)
}

// Catalog is the catalog surface the engine needs.
type Catalog interface {
	Searcher
	DetailFetcher
}

// CoverGetter returns a cover, from cache or network.
type CoverGetter interface {
	Get(ctx context.Context, nativeID, coverURL string) (*book.CoverAsset, error)
}

// ResultParser turns a raw search page into candidates.
type ResultParser func(raw []byte) ([]book.Candidate, error)

// Engine resolves queries against one catalog. It holds no per-query state
// and is safe for concurrent use.
type Engine struct {
	catalog       Catalog
	covers        CoverGetter
	scorer        *match.Scorer
	assembler     *book.Assembler
	parse         ResultParser
	limit         int
	fallbackCover func(nativeID string) string
}

// Option configures an Engine.
type Option func(*Engine)

// WithCovers enables cover fetching. Without it records resolve without covers.
func WithCovers(c CoverGetter) Option {
	return func(e *Engine) {
		e.covers = c
	}
}

// WithScorer sets the candidate scorer.
func WithScorer(s *match.Scorer) Option {
	return func(e *Engine) {
		if s != nil {
			e.scorer = s
		}
	}
}

// WithAssembler sets the host record assembler.
func WithAssembler(a *book.Assembler) Option {
	return func(e *Engine) {
		if a != nil {
			e.assembler = a
		}
	}
}

// WithLimit caps how many candidates an ambiguous outcome surfaces. Every
// candidate on the search page is still scored. Values below two are ignored.
func WithLimit(n int) Option {
	return func(e *Engine) {
		if n >= 2 {
			e.limit = n
		}
	}
}

// WithParser replaces the search result parser.
func WithParser(p ResultParser) Option {
	return func(e *Engine) {
		if p != nil {
			e.parse = p
		}
	}
}

// WithFallbackCoverURL sets a second cover URL to try once when the record's
// cover cannot be downloaded.
func WithFallbackCoverURL(fn func(nativeID string) string) Option {
	return func(e *Engine) {
		e.fallbackCover = fn
	}
}

// New creates an Engine over cat.
func New(cat Catalog, opts ...Option) (*Engine, error) {
	if cat == nil {
		return nil, errors.New("resolver: catalog is required")
	}

	scorer, err := match.NewScorer(match.DefaultConfig())
	if err != nil {
		return nil, err
	}

	e := &Engine{
		catalog:   cat,
		scorer:    scorer,
		assembler: book.NewAssembler(book.DefaultPrecedence()),
		parse:     catalog.ParseSearch,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Resolve runs one query to an outcome. Errors never escape; they become Failed.
// A query carrying a native id is looked up directly and never searched.
func (e *Engine) Resolve(ctx context.Context, q query.Query) Outcome {
	plan, err := query.Build(q, query.Options{Limit: e.limit})
	if err != nil {
		return e.fail(err)
	}

	existing := book.Existing{Title: q.Title, Authors: q.Authors}

	switch p := plan.(type) {
	case query.DirectLookup:
		slog.Debug("direct lookup", "native_id", p.NativeID)
		return e.resolveID(ctx, p.NativeID, existing, nil)
	case query.SearchLookup:
		return e.resolveSearch(ctx, p, existing)
	default:
		return e.fail(qerrors.NewInvalidQueryError("unsupported plan"))
	}
}

func (e *Engine) resolveSearch(ctx context.Context, lookup query.SearchLookup, existing book.Existing) Outcome {
	raw, err := e.catalog.Search(ctx, lookup)
	if err != nil {
		return e.fail(err)
	}

	candidates, err := e.parse(raw)
	if err != nil {
		return e.fail(err)
	}
	slog.Debug("search candidates", "keyword", lookup.Keyword(), "count", len(candidates))

	scored := e.scorer.Score(lookup.Title, lookup.Authors, candidates)
	decision := e.scorer.Decide(scored)

	switch decision.Kind {
	case match.Accepted:
		best := *decision.Best
		slog.Info("match accepted", "native_id", best.NativeID, "title", best.Title, "score", best.Score)
		return e.resolveID(ctx, best.NativeID, existing, &best)

	case match.Ambiguous:
		tied := decision.Candidates
		if len(tied) > lookup.Limit {
			tied = tied[:lookup.Limit]
		}
		slog.Info("ambiguous match", "keyword", lookup.Keyword(), "candidates", len(tied))
		return Ambiguous{Candidates: tied}

	default:
		out := NoConfidentMatch{}
		if len(scored) > 0 {
			top := scored[0]
			out.Best = &top
			slog.Info("no confident match", "keyword", lookup.Keyword(), "best", top.NativeID, "score", top.Score)
		} else {
			slog.Info("no confident match", "keyword", lookup.Keyword(), "candidates", 0)
		}
		return out
	}
}

func (e *Engine) resolveID(ctx context.Context, nativeID string, existing book.Existing, accepted *book.ScoredCandidate) Outcome {
	rec, err := e.catalog.FetchDetail(ctx, nativeID)
	if err != nil {
		return e.fail(err)
	}

	out := Resolved{Record: rec, Match: accepted}
	if e.covers != nil {
		out.Cover, out.CoverErr = e.cover(ctx, rec)
		out.Partial = out.CoverErr != nil
	}
	out.Host = e.assembler.Assemble(existing, rec, out.Cover)
	return out
}

// cover downloads the record's cover, trying the fallback URL once on failure.
func (e *Engine) cover(ctx context.Context, rec *book.Record) (*book.CoverAsset, error) {
	if rec.CoverURL == nil || *rec.CoverURL == "" {
		return nil, errors.New("record has no cover url")
	}

	asset, err := e.covers.Get(ctx, rec.NativeID, *rec.CoverURL)
	if err == nil {
		return asset, nil
	}

	if e.fallbackCover != nil && ctx.Err() == nil {
		if alt := e.fallbackCover(rec.NativeID); alt != "" && alt != *rec.CoverURL {
			slog.Warn("cover download failed, trying fallback", "native_id", rec.NativeID, "url", alt, "error", err)
			asset, altErr := e.covers.Get(ctx, rec.NativeID, alt)
			if altErr == nil {
				return asset, nil
			}
			err = errors.Join(err, altErr)
		}
	}

	slog.Warn("resolved without cover", "native_id", rec.NativeID, "error", err)
	return nil, err
}

func (e *Engine) fail(err error) Failed {
	kind := qerrors.KindOf(err)
	if kind == qerrors.KindMalformedResponse {
		slog.Error("catalog response not recognised, the page layout may have changed", "error", err)
	} else {
		slog.Warn("resolution failed", "kind", kind.String(), "error", err)
	}
	return Failed{Kind: kind, Err: err}
}
