package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/solidlime/memoryengine/internal/search"
	"github.com/solidlime/memoryengine/internal/store"
)

// Mode selects one of the Search Orchestrator's five modes (§4.5).
type Mode string

const (
	ModeKeyword  Mode = "keyword"
	ModeSemantic Mode = "semantic"
	ModeHybrid   Mode = "hybrid"
	ModeRelated  Mode = "related"
	ModeSmart    Mode = "smart"
)

// SearchRequest is the `memory search` sub-operation payload (§4.5, §6).
type SearchRequest struct {
	Query          string
	Mode           Mode
	SeedKey        string // required for ModeRelated
	TopK           int
	FuzzyMatch     bool
	FuzzyThreshold float64
	Weights        search.Weights
	Filter         search.Filter
	IncludeSecret  bool
}

// Hit is one ranked search result.
type Hit struct {
	Record     store.MemoryRecord
	Distance   float64
	Score      float64
	MatchScore float64 // fuzzy threshold the record cleared (not its own ratio), 0 when fuzzy matching is off
}

// Search dispatches to the requested mode, applies the metadata filter
// and privacy pruning as the final step of every mode, and returns hits
// ranked by the composite scoring formula of §4.5.
func (e *Engine) Search(ctx context.Context, persona string, req SearchRequest) ([]Hit, error) {
	p, err := e.Persona(persona)
	if err != nil {
		return nil, err
	}
	now := time.Now().In(e.Loc)

	if req.TopK <= 0 {
		req.TopK = 5
	}
	if req.Filter.SearchMaxLevel == "" {
		req.Filter.SearchMaxLevel = e.Config.Privacy.SearchMaxLevel
	}
	req.Filter.IncludeSecret = req.IncludeSecret

	switch req.Mode {
	case ModeKeyword:
		return e.searchKeyword(p, req, now)
	case ModeSemantic:
		return e.searchSemantic(ctx, p, req, now)
	case ModeHybrid:
		return e.searchHybrid(ctx, p, req, now)
	case ModeRelated:
		return e.searchRelated(ctx, p, req, now)
	case ModeSmart:
		return e.searchSmart(ctx, p, req, now)
	default:
		return e.searchHybrid(ctx, p, req, now)
	}
}

func (e *Engine) searchKeyword(p *Persona, req SearchRequest, now time.Time) ([]Hit, error) {
	all, err := p.DB.LoadAll()
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(all))
	contents := make([]string, 0, len(all))
	for k, rec := range all {
		keys = append(keys, k)
		contents = append(contents, rec.Content)
	}

	var hitIdx []int
	matchScores := make(map[int]float64)
	if req.FuzzyMatch {
		threshold := req.FuzzyThreshold
		if threshold <= 0 {
			threshold = 70
		}
		for i, c := range contents {
			if search.FuzzyMatch(req.Query, c, threshold) {
				hitIdx = append(hitIdx, i)
				matchScores[i] = threshold
			}
		}
	} else {
		idx, err := search.ScanKeyword(req.Query, contents)
		if err != nil {
			return nil, fmt.Errorf("engine: keyword scan: %w", err)
		}
		hitIdx = idx
	}

	var hits []Hit
	for _, i := range hitIdx {
		rec := all[keys[i]]
		if !req.Filter.Matches(*rec, now) {
			continue
		}
		hits = append(hits, Hit{Record: *rec, Distance: 0, Score: 1, MatchScore: matchScores[i]})
	}
	return truncateHits(hits, req.TopK), nil
}

func (e *Engine) searchSemantic(ctx context.Context, p *Persona, req SearchRequest, now time.Time) ([]Hit, error) {
	return e.vectorSearch(ctx, p, req, now, "")
}

// vectorSearch is the shared semantic path used by ModeSemantic, the
// semantic half of ModeHybrid, and ModeRelated (which additionally
// excludes excludeKey, the seed memory itself, per §4.5).
func (e *Engine) vectorSearch(ctx context.Context, p *Persona, req SearchRequest, now time.Time, excludeKey string) ([]Hit, error) {
	vec, err := e.Embedder.EmbedQuery(ctx, req.Query)
	if err != nil {
		return nil, fmt.Errorf("engine: embedding query: %w", err)
	}

	k := req.TopK * 4
	if k < 20 {
		k = 20
	}
	if excludeKey != "" {
		k++ // headroom to still return topK after dropping the seed
	}

	candidates, err := p.Index.SearchByVector(vec, k)
	if err != nil {
		return nil, fmt.Errorf("engine: vector search: %w", err)
	}

	type scored struct {
		key      string
		distance float64
	}
	var filtered []scored
	for _, c := range candidates {
		if c.Doc.Key == excludeKey {
			continue
		}
		filtered = append(filtered, scored{key: c.Doc.Key, distance: c.Distance})
	}

	if len(filtered) > 0 && e.Reranker != nil {
		docs := make([]string, len(filtered))
		for i, f := range filtered {
			rec, err := p.DB.Get(f.key)
			if err == nil && rec != nil {
				docs[i] = rec.Content
			}
		}
		ranked, err := e.Reranker.Rerank(ctx, req.Query, docs, len(docs))
		if err == nil {
			reordered := make([]scored, 0, len(ranked))
			for _, r := range ranked {
				if r.Index >= 0 && r.Index < len(filtered) {
					reordered = append(reordered, filtered[r.Index])
				}
			}
			filtered = reordered
		}
	}

	var hits []Hit
	for _, f := range filtered {
		rec, err := p.DB.Get(f.key)
		if err != nil || rec == nil {
			continue
		}
		if !req.Filter.Matches(*rec, now) {
			continue
		}
		ageDays := now.Sub(rec.CreatedAt).Hours() / 24
		score := search.CompositeScore(f.distance, rec.Importance, ageDays, req.Weights)
		hits = append(hits, Hit{Record: *rec, Distance: f.distance, Score: score})
	}
	return truncateHits(hits, req.TopK), nil
}

func (e *Engine) searchHybrid(ctx context.Context, p *Persona, req SearchRequest, now time.Time) ([]Hit, error) {
	keywordHits, err := e.searchKeyword(p, withUnboundedTopK(req), now)
	if err != nil {
		return nil, err
	}
	semanticHits, err := e.vectorSearch(ctx, p, withUnboundedTopK(req), now, "")
	if err != nil {
		return nil, err
	}

	byKey := make(map[string]Hit)
	for _, h := range keywordHits {
		byKey[h.Record.Key] = h
	}
	for _, h := range semanticHits {
		existing, ok := byKey[h.Record.Key]
		if !ok || h.Distance < existing.Distance {
			byKey[h.Record.Key] = h
		}
	}

	union := make([]Hit, 0, len(byKey))
	for _, h := range byKey {
		union = append(union, h)
	}
	return truncateHits(union, req.TopK), nil
}

func (e *Engine) searchRelated(ctx context.Context, p *Persona, req SearchRequest, now time.Time) ([]Hit, error) {
	if req.SeedKey == "" {
		return nil, fmt.Errorf("engine: related search requires a seed key")
	}
	seed, err := p.DB.Get(req.SeedKey)
	if err != nil {
		return nil, err
	}
	if seed == nil {
		return nil, fmt.Errorf("engine: seed memory not found: %s", req.SeedKey)
	}
	related := req
	related.Query = seed.Content
	return e.vectorSearch(ctx, p, related, now, req.SeedKey)
}

func (e *Engine) searchSmart(ctx context.Context, p *Persona, req SearchRequest, now time.Time) ([]Hit, error) {
	expandedQuery, expandedTags := search.ExpandQuery(req.Query, now, req.Filter.Tags)
	smart := req
	smart.Query = expandedQuery
	smart.Filter.Tags = expandedTags
	if len(expandedTags) > len(req.Filter.Tags) {
		smart.Filter.TagMode = search.TagAny
	}
	return e.searchHybrid(ctx, p, smart, now)
}

func withUnboundedTopK(req SearchRequest) SearchRequest {
	out := req
	out.TopK = 50
	return out
}

// sortHits orders hits by the same rule as search.Rank: score descending,
// then created_at descending, then key ascending.
func sortHits(hits []Hit) {
	sort.SliceStable(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.Record.CreatedAt.Equal(b.Record.CreatedAt) {
			return a.Record.CreatedAt.After(b.Record.CreatedAt)
		}
		return a.Record.Key < b.Record.Key
	})
}

func truncateHits(hits []Hit, topK int) []Hit {
	sortHits(hits)
	if topK <= 0 {
		topK = 5
	}
	if topK > 50 {
		topK = 50
	}
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits
}
