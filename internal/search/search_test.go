package search

import (
	"testing"
	"time"

	"github.com/solidlime/memoryengine/internal/store"
	"github.com/stretchr/testify/require"
)

func TestParseDateQueryToday(t *testing.T) {
	now := time.Date(2026, 7, 31, 15, 30, 0, 0, time.UTC)
	start, end, err := ParseDateQuery("today", now)
	require.NoError(t, err)
	require.Equal(t, time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC), start)
	require.Equal(t, 23, end.Hour())
}

func TestParseDateQueryDaysAgo(t *testing.T) {
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	start, _, err := ParseDateQuery("3日前", now)
	require.NoError(t, err)
	require.Equal(t, 28, start.Day())
}

func TestParseDateQueryRange(t *testing.T) {
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	start, end, err := ParseDateQuery("2026-07-01..2026-07-15", now)
	require.NoError(t, err)
	require.Equal(t, 1, start.Day())
	require.Equal(t, 15, end.Day())
	require.Equal(t, 23, end.Hour())
}

func TestParseDateQueryInvalid(t *testing.T) {
	_, _, err := ParseDateQuery("not a date", time.Now())
	require.Error(t, err)
}

func TestIsAmbiguousQuery(t *testing.T) {
	require.True(t, IsAmbiguousQuery("あれ"))
	require.True(t, IsAmbiguousQuery("hi"))
	require.True(t, IsAmbiguousQuery("that thing"))
	require.False(t, IsAmbiguousQuery("the trip to kyoto last spring"))
}

func TestExpandQueryInjectsTimeAndDayTokens(t *testing.T) {
	morning := time.Date(2026, 7, 27, 8, 0, 0, 0, time.UTC) // Monday
	expanded, tags := ExpandQuery("that", morning, nil)
	require.Contains(t, expanded, "morning")
	require.Contains(t, expanded, "weekday")
	require.Empty(t, tags)
}

func TestExpandQueryDetectsPromiseTerm(t *testing.T) {
	now := time.Date(2026, 7, 27, 8, 0, 0, 0, time.UTC)
	_, tags := ExpandQuery("did we make a promise about this", now, nil)
	require.Contains(t, tags, "promise")
}

func TestExpandQueryLeavesUnambiguousQueryUntouched(t *testing.T) {
	now := time.Date(2026, 7, 27, 8, 0, 0, 0, time.UTC)
	expanded, _ := ExpandQuery("the trip to kyoto last spring", now, nil)
	require.Equal(t, "the trip to kyoto last spring", expanded)
}

func TestCanonicalizeAndTokenize(t *testing.T) {
	require.Equal(t, "jean-luc said hello", Canonicalize("Jean-Luc said, Hello!!"))
	toks := Tokenize("The quick brown fox jumps")
	require.NotContains(t, toks, "the")
	require.Contains(t, toks, "quick")
}

func TestScanKeywordFindsSubstringMatches(t *testing.T) {
	candidates := []string{"went hiking in kyoto", "cooked dinner at home", "kyoto temples at dusk"}
	hits, err := ScanKeyword("kyoto", candidates)
	require.NoError(t, err)
	require.ElementsMatch(t, []int{0, 2}, hits)
}

func TestFuzzyMatchThreshold(t *testing.T) {
	require.True(t, FuzzyMatch("kyoto temple", "kyoto temple visit", 50))
	require.False(t, FuzzyMatch("kyoto temple", "unrelated grocery list", 90))
}

func TestCompositeScoreAndRanking(t *testing.T) {
	older := store.MemoryRecord{Key: "memory_a", CreatedAt: time.Now().Add(-72 * time.Hour), Importance: 0.9}
	newer := store.MemoryRecord{Key: "memory_b", CreatedAt: time.Now(), Importance: 0.1}

	w := Weights{Importance: 0.5, Recency: 0.5}
	candidates := []Scored{
		{Record: older, Distance: 0.2, Score: CompositeScore(0.2, older.Importance, 3, w)},
		{Record: newer, Distance: 0.2, Score: CompositeScore(0.2, newer.Importance, 0, w)},
	}
	Rank(candidates)
	require.Equal(t, "memory_a", candidates[0].Record.Key, "higher importance should win when distance ties")
}

func TestTruncateClampsToBounds(t *testing.T) {
	many := make([]Scored, 100)
	require.Len(t, Truncate(many, 5), 5)
	require.Len(t, Truncate(many, 0), 5)
	require.Len(t, Truncate(many, 1000), 50)
}

func TestFilterMatchesTagsAnyAll(t *testing.T) {
	rec := store.MemoryRecord{Tags: []string{"kyoto", "trip"}, PrivacyLevel: "internal"}
	now := time.Now()

	anyFilter := Filter{Tags: []string{"trip", "missing"}, TagMode: TagAny}
	require.True(t, anyFilter.Matches(rec, now))

	allFilter := Filter{Tags: []string{"trip", "missing"}, TagMode: TagAll}
	require.False(t, allFilter.Matches(rec, now))
}

func TestFilterPrivacyPruning(t *testing.T) {
	rec := store.MemoryRecord{PrivacyLevel: "secret"}
	now := time.Now()

	f := Filter{SearchMaxLevel: "private"}
	require.False(t, f.Matches(rec, now))

	f.IncludeSecret = true
	require.True(t, f.Matches(rec, now))
}

func TestFilterMinImportance(t *testing.T) {
	rec := store.MemoryRecord{Importance: 0.3}
	now := time.Now()
	require.False(t, Filter{MinImportance: 0.5}.Matches(rec, now))
	require.True(t, Filter{MinImportance: 0.2}.Matches(rec, now))
}
