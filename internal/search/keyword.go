package search

import (
	"strings"

	"github.com/coregx/ahocorasick"
)

// KeywordHit records a successful substring match of one of the query's
// canonicalized tokens against a memory's canonicalized content.
type KeywordHit struct {
	Index int // index into the candidate slice passed to ScanKeyword
}

// ScanKeyword builds a multi-pattern automaton over the query's
// canonicalized tokens and scans each candidate's canonicalized content,
// returning the indices of every candidate containing at least one token
// as a substring (case-insensitive, per §4.5's keyword mode).
func ScanKeyword(query string, candidates []string) ([]int, error) {
	tokens := Tokenize(query)
	if len(tokens) == 0 {
		// Fall back to the whole canonicalized query as a single pattern
		// so single-stopword or purely symbolic queries still match.
		whole := Canonicalize(query)
		if whole == "" {
			return nil, nil
		}
		tokens = []string{whole}
	}

	automaton, err := ahocorasick.NewBuilder().
		AddStrings(tokens).
		SetMatchKind(ahocorasick.LeftmostLongest).
		SetPrefilter(true).
		Build()
	if err != nil {
		return nil, err
	}

	var hits []int
	for i, content := range candidates {
		haystack := []byte(Canonicalize(content))
		if len(automaton.FindAllOverlapping(haystack)) > 0 {
			hits = append(hits, i)
		}
	}
	return hits, nil
}

// FuzzyMatch reports whether content's canonicalized tokens are at least
// threshold percent similar (edit-distance ratio) to the query's tokens —
// the keyword mode's fuzzy fallback, gated by fuzzy_threshold (§4.5).
func FuzzyMatch(query, content string, threshold float64) bool {
	qTokens := Tokenize(query)
	cTokens := Tokenize(content)
	if len(qTokens) == 0 {
		return strings.Contains(strings.ToLower(content), strings.ToLower(query))
	}
	return fuzzyRatio(qTokens, cTokens) >= threshold
}
