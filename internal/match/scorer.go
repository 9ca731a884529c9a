package match

import (
	"cmp"
	"fmt"
	"math"
	"slices"

	"github.com/lepinkainen/qidianmeta/internal/book"
)

const weightTolerance = 1e-6

// Config holds the scorer's tunables.
type Config struct {
	Normalizer       Normalizer
	TitleSimilarity  Similarity
	AuthorSimilarity Similarity

	TitleWeight  float64
	AuthorWeight float64

	// MinScore is the lowest top score that can be accepted.
	MinScore float64
	// Epsilon is the score gap under which the top two candidates count as tied.
	Epsilon float64
	// MaxResults caps the number of candidates surfaced in an ambiguous result.
	// At least two, so a tie can always be shown.
	MaxResults int
}

// DefaultConfig returns a title-biased configuration for CJK catalogs.
func DefaultConfig() Config {
	normalizer, _ := ForScript(ScriptCJK)
	return Config{
		Normalizer:       normalizer,
		TitleSimilarity:  Best(EditRatio, TokenSet),
		AuthorSimilarity: EditRatio,
		TitleWeight:      0.7,
		AuthorWeight:     0.3,
		MinScore:         0.8,
		Epsilon:          0.02,
		MaxResults:       5,
	}
}

// Scorer ranks candidates and applies the acceptance policy.
type Scorer struct {
	cfg Config
}

// NewScorer validates cfg and creates a Scorer. Nil strategies fall back to the defaults.
func NewScorer(cfg Config) (*Scorer, error) {
	defaults := DefaultConfig()
	if cfg.Normalizer == nil {
		cfg.Normalizer = defaults.Normalizer
	}
	if cfg.TitleSimilarity == nil {
		cfg.TitleSimilarity = defaults.TitleSimilarity
	}
	if cfg.AuthorSimilarity == nil {
		cfg.AuthorSimilarity = defaults.AuthorSimilarity
	}

	if cfg.TitleWeight < 0 || cfg.AuthorWeight < 0 {
		return nil, fmt.Errorf("weights must be non-negative, got title=%v author=%v", cfg.TitleWeight, cfg.AuthorWeight)
	}
	if math.Abs(cfg.TitleWeight+cfg.AuthorWeight-1) > weightTolerance {
		return nil, fmt.Errorf("weights must sum to 1, got %v", cfg.TitleWeight+cfg.AuthorWeight)
	}
	if cfg.MinScore < 0 || cfg.MinScore > 1 {
		return nil, fmt.Errorf("min score must be within [0,1], got %v", cfg.MinScore)
	}
	if cfg.Epsilon < 0 {
		return nil, fmt.Errorf("ambiguity epsilon must be non-negative, got %v", cfg.Epsilon)
	}
	if cfg.MaxResults < 2 {
		return nil, fmt.Errorf("max results must be at least 2, got %d", cfg.MaxResults)
	}

	return &Scorer{cfg: cfg}, nil
}

// Score scores every candidate against the query title and authors and
// returns them sorted by score descending, ties broken by ascending search rank.
func (s *Scorer) Score(title string, authors []string, candidates []book.Candidate) []book.ScoredCandidate {
	qTitle := s.cfg.Normalizer.Normalize(title)
	qAuthors := s.normalizeAll(authors)

	scored := make([]book.ScoredCandidate, 0, len(candidates))
	for _, c := range candidates {
		ts := clamp01(s.cfg.TitleSimilarity.Similarity(qTitle, s.cfg.Normalizer.Normalize(c.Title)))
		as := s.authorSimilarity(qAuthors, s.normalizeAll(c.Authors))
		scored = append(scored, book.ScoredCandidate{
			Candidate:        c,
			Score:            clamp01(s.cfg.TitleWeight*ts + s.cfg.AuthorWeight*as),
			TitleSimilarity:  ts,
			AuthorSimilarity: as,
		})
	}

	slices.SortStableFunc(scored, func(a, b book.ScoredCandidate) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.SearchRank, b.SearchRank)
	})

	return scored
}

// authorSimilarity is neutral (1.0) when the query has no authors, so the
// title alone can drive the score. Otherwise it is the best pairwise match.
func (s *Scorer) authorSimilarity(query, candidate []string) float64 {
	if len(query) == 0 {
		return 1
	}
	best := 0.0
	for _, q := range query {
		for _, c := range candidate {
			if v := clamp01(s.cfg.AuthorSimilarity.Similarity(q, c)); v > best {
				best = v
			}
		}
	}
	return best
}

func (s *Scorer) normalizeAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if n := s.cfg.Normalizer.Normalize(v); n != "" {
			out = append(out, n)
		}
	}
	return out
}

// DecisionKind is the outcome of the acceptance policy.
type DecisionKind int

const (
	// NoMatch means no candidate cleared the minimum score.
	NoMatch DecisionKind = iota
	// Accepted means a single best candidate cleared the threshold.
	Accepted
	// Ambiguous means the top candidates are too close to pick one.
	Ambiguous
)

func (k DecisionKind) String() string {
	switch k {
	case Accepted:
		return "accepted"
	case Ambiguous:
		return "ambiguous"
	default:
		return "no_match"
	}
}

// Decision is what Decide concluded about a scored, sorted candidate list.
type Decision struct {
	Kind DecisionKind
	// Best is set for Accepted.
	Best *book.ScoredCandidate
	// Candidates is set for Ambiguous: the near-tied leaders, best first.
	Candidates []book.ScoredCandidate
}

// Decide applies the acceptance policy to a list sorted by Score.
// The threshold is checked first; a near-tie at the top is never auto-picked.
func (s *Scorer) Decide(scored []book.ScoredCandidate) Decision {
	if len(scored) == 0 || scored[0].Score < s.cfg.MinScore {
		return Decision{Kind: NoMatch}
	}

	top := scored[0]
	if len(scored) > 1 && top.Score-scored[1].Score < s.cfg.Epsilon {
		tied := make([]book.ScoredCandidate, 0, s.cfg.MaxResults)
		for _, c := range scored {
			if len(tied) == s.cfg.MaxResults || top.Score-c.Score >= s.cfg.Epsilon {
				break
			}
			tied = append(tied, c)
		}
		return Decision{Kind: Ambiguous, Candidates: tied}
	}

	return Decision{Kind: Accepted, Best: &top}
}
