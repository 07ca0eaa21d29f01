package search

import (
	"math"
	"sort"

	"github.com/solidlime/memoryengine/internal/store"
)

// Weights holds the two tunable coefficients of the composite scoring
// formula (§4.5). Both default to 0.0, leaving the rerank/similarity score
// unchanged unless a deployment opts in.
type Weights struct {
	Importance float64
	Recency    float64
}

// Scored pairs a memory record with its final composite score, distance,
// and the rerank-stage score it was derived from.
type Scored struct {
	Record   store.MemoryRecord
	Distance float64
	Score    float64
}

// CompositeScore computes final = base_similarity + importance_weight *
// importance + recency_weight * exp(-age_days/30), exactly as §4.5.
// base_similarity = 1 - distance.
func CompositeScore(distance float64, importance float64, ageDays float64, w Weights) float64 {
	base := 1 - distance
	return base + w.Importance*importance + w.Recency*math.Exp(-ageDays/30)
}

// Rank sorts candidates descending by Score, breaking ties by created_at
// descending then key ascending lexicographic, exactly as §4.5.
func Rank(candidates []Scored) {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.Record.CreatedAt.Equal(b.Record.CreatedAt) {
			return a.Record.CreatedAt.After(b.Record.CreatedAt)
		}
		return a.Record.Key < b.Record.Key
	})
}

// Truncate returns at most topK elements, clamped to [1, 50] per §4.5.
func Truncate(candidates []Scored, topK int) []Scored {
	if topK <= 0 {
		topK = 5
	}
	if topK > 50 {
		topK = 50
	}
	if topK < 1 {
		topK = 1
	}
	if len(candidates) <= topK {
		return candidates
	}
	return candidates[:topK]
}
