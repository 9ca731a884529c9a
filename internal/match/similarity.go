package match

import (
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// Similarity compares two normalized strings, returning a value in [0,1].
type Similarity interface {
	Similarity(a, b string) float64
}

// SimilarityFunc adapts a plain function to Similarity.
type SimilarityFunc func(a, b string) float64

// Similarity calls f(a, b).
func (f SimilarityFunc) Similarity(a, b string) float64 { return f(a, b) }

var (
	// EditRatio is 1 - levenshtein(a, b) / max(len(a), len(b)), measured in runes.
	EditRatio = SimilarityFunc(editRatio)

	// TokenSet is the Dice coefficient over the sets of whitespace separated tokens.
	TokenSet = SimilarityFunc(tokenSet)
)

// Best returns a Similarity that takes the highest value of its strategies.
func Best(strategies ...Similarity) Similarity {
	return SimilarityFunc(func(a, b string) float64 {
		best := 0.0
		for _, s := range strategies {
			if v := s.Similarity(a, b); v > best {
				best = v
			}
		}
		return best
	})
}

func editRatio(a, b string) float64 {
	if a == b {
		return 1
	}
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	if la == 0 || lb == 0 {
		return 0
	}
	longest := max(la, lb)
	d := levenshtein.ComputeDistance(a, b)
	return clamp01(1 - float64(d)/float64(longest))
}

func tokenSet(a, b string) float64 {
	if a == b {
		return 1
	}
	ta, tb := tokens(a), tokens(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	shared := 0
	for tok := range ta {
		if tb[tok] {
			shared++
		}
	}
	return 2 * float64(shared) / float64(len(ta)+len(tb))
}

func tokens(s string) map[string]bool {
	set := make(map[string]bool)
	for _, f := range strings.Fields(s) {
		set[f] = true
	}
	return set
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
