package search

import (
	"strings"
	"time"
)

// ambiguousPhrases mirrors query_helpers.py's two-language deictic-phrase
// set — a documented heuristic (§4.5's own Open Question), not expanded
// beyond Japanese and English.
var ambiguousPhrases = []string{
	"いつものあれ", "いつもの", "あれ", "例の件", "あのこと",
	"あの件", "さっきの", "前の", "また",
	"that thing", "the usual", "you know", "that", "it",
	"the thing", "usual stuff", "same thing",
}

// IsAmbiguousQuery reports whether query is short (<5 runes after
// trimming) or contains one of the designated deictic phrases, ported
// from is_ambiguous_query.
func IsAmbiguousQuery(query string) bool {
	trimmed := strings.TrimSpace(query)
	if len([]rune(trimmed)) < 5 {
		return true
	}
	lower := strings.ToLower(trimmed)
	for _, phrase := range ambiguousPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// ExpandQuery builds the smart-mode query and tag set: for ambiguous
// queries, appends time-of-day and day-type tokens (in the configured
// timezone) to the original query text, and always appends a "promise"
// tag when a promise-related term is present — ported field-for-field
// from build_expanded_query.
func ExpandQuery(query string, now time.Time, tags []string) (expandedQuery string, expandedTags []string) {
	parts := make([]string, 0, 5)
	if query != "" {
		parts = append(parts, query)
	}

	if IsAmbiguousQuery(query) {
		hour := now.Hour()
		switch {
		case hour >= 6 && hour < 12:
			parts = append(parts, "朝", "morning")
		case hour >= 12 && hour < 18:
			parts = append(parts, "昼", "afternoon")
		case hour >= 18 && hour < 22:
			parts = append(parts, "夜", "evening")
		default:
			parts = append(parts, "深夜", "night")
		}

		weekday := now.Weekday()
		if weekday >= time.Monday && weekday <= time.Friday {
			parts = append(parts, "平日", "weekday")
		} else {
			parts = append(parts, "週末", "weekend")
		}
	}

	out := make([]string, len(tags))
	copy(out, tags)
	lower := strings.ToLower(query)
	hasPromise := false
	for _, t := range out {
		if strings.EqualFold(t, "promise") {
			hasPromise = true
			break
		}
	}
	if !hasPromise && (strings.Contains(lower, "約束") || strings.Contains(lower, "promise")) {
		out = append(out, "promise")
	}

	if len(parts) == 0 {
		expandedQuery = query
	} else {
		expandedQuery = strings.Join(parts, " ")
	}
	return expandedQuery, out
}
