// Package match scores catalog candidates against a query and decides
// whether one of them is a confident match.
package match

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

// Normalizer canonicalises a title or author name before comparison.
type Normalizer interface {
	Normalize(s string) string
}

// NormalizerFunc adapts a plain function to Normalizer.
type NormalizerFunc func(string) string

// Normalize calls f(s).
func (f NormalizerFunc) Normalize(s string) string { return f(s) }

// Chain applies normalizers left to right.
func Chain(steps ...Normalizer) Normalizer {
	return NormalizerFunc(func(s string) string {
		for _, step := range steps {
			s = step.Normalize(s)
		}
		return s
	})
}

var (
	// NFKC applies Unicode compatibility composition.
	NFKC = NormalizerFunc(norm.NFKC.String)

	// WidthFold maps full-width Latin to half-width and half-width kana to full-width.
	WidthFold = NormalizerFunc(width.Fold.String)

	// CaseFold applies Unicode case folding. A Caser is stateful, so one is made per call.
	CaseFold = NormalizerFunc(func(s string) string {
		return cases.Fold().String(s)
	})

	// StripPunct turns punctuation and symbols into spaces and collapses whitespace.
	StripPunct = NormalizerFunc(stripPunct)

	// DropSpaces removes all whitespace. Used for scripts written without word spacing.
	DropSpaces = NormalizerFunc(func(s string) string {
		return strings.Join(strings.Fields(s), "")
	})
)

// Script names accepted by ForScript.
const (
	ScriptLatin = "latin"
	ScriptCJK   = "cjk"
)

// ForScript returns the normalizer for the given script.
func ForScript(script string) (Normalizer, error) {
	switch strings.ToLower(script) {
	case ScriptLatin:
		return Chain(NFKC, CaseFold, StripPunct), nil
	case ScriptCJK, "":
		return Chain(NFKC, WidthFold, CaseFold, StripPunct, DropSpaces), nil
	default:
		return nil, fmt.Errorf("unknown script %q (want %q or %q)", script, ScriptLatin, ScriptCJK)
	}
}

func stripPunct(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	prevSpace := true
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.Is(unicode.Mn, r) {
			b.WriteRune(r)
			prevSpace = false
			continue
		}
		// everything else separates words
		if !prevSpace {
			b.WriteRune(' ')
			prevSpace = true
		}
	}
	return strings.TrimSpace(b.String())
}
