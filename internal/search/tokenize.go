// Package search implements the Search Orchestrator (C5): keyword,
// semantic, hybrid, related, and smart modes, metadata filters, and
// composite scoring.
//
// The tokenizer/canonicalizer in this file is adapted from the donor's
// pkg/implicit-matcher CanonicalizeForMatch/TokenizeNorm idiom (a unified
// canonicalizer shared by pattern compilation and document scanning),
// trimmed of its narrative-entity (NER) machinery and re-targeted at
// memory content and search queries.
package search

import (
	"strings"
	"unicode"

	"github.com/orsinium-labs/stopwords"
)

var enStopwords = stopwords.MustGet("en")

// isJoiner returns true for punctuation that commonly appears inside
// multiword terms ("Jean-Luc", "O'Brien"), preserved during
// canonicalization instead of splitting the term apart.
func isJoiner(r rune) bool {
	switch r {
	case '\'', '’', '‘', '-', '–', '—', '·', '.', '_', '/', '#', '&':
		return true
	default:
		return false
	}
}

// Canonicalize lowercases, folds curly quotes/dashes to their ASCII forms,
// keeps letters/digits/joiners, and collapses every other run of
// characters into a single space. Used identically for pattern compilation
// (query tokens) and document scanning (memory content) so keyword
// matching is consistent in both directions.
func Canonicalize(s string) string {
	var out strings.Builder
	out.Grow(len(s))
	lastWasSpace := true

	for _, ch := range s {
		c := unicode.ToLower(ch)
		if c == '’' || c == '‘' {
			c = '\''
		}
		if c == '–' || c == '—' {
			c = '-'
		}
		if unicode.IsLetter(c) || unicode.IsDigit(c) || isJoiner(c) {
			out.WriteRune(c)
			lastWasSpace = false
		} else if !lastWasSpace {
			out.WriteRune(' ')
			lastWasSpace = true
		}
	}
	result := out.String()
	return strings.TrimSuffix(result, " ")
}

// Tokenize splits canonicalized text on whitespace, filtering English
// stopwords (via orsinium-labs/stopwords) before fuzzy/keyword scoring.
func Tokenize(text string) []string {
	words := strings.Fields(Canonicalize(text))
	out := make([]string, 0, len(words))
	for _, w := range words {
		if w != "" && !enStopwords.Contains(w) {
			out = append(out, w)
		}
	}
	return out
}
