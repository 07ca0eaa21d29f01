// Package embed implements the Embedding & Reranker component (C4) as
// pluggable interfaces (the choice of model is explicitly out of scope,
// §4.4/Non-goals), plus a deterministic local default so the rest of the
// module is exercisable without a real model dependency.
package embed

import (
	"context"
	"math"
	"sort"

	"github.com/solidlime/memoryengine/internal/search"
)

// Embedder turns text into fixed-width vectors. A single embedder is
// loaded per process and shared across personas (§4.4).
type Embedder interface {
	Dimension() int
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	EmbedDocs(ctx context.Context, texts []string) ([][]float32, error)
}

// Reranker scores a (query, document) pair and returns documents sorted
// descending by that score. Applied only to a candidate list already
// bounded by the vector search's k (§4.4).
type Reranker interface {
	Rerank(ctx context.Context, query string, docs []string, topN int) ([]RankedDoc, error)
}

// RankedDoc pairs a document's original index with its rerank score.
type RankedDoc struct {
	Index int
	Score float64
}

// HashEmbedder is a deterministic bag-of-tokens hashed embedder: each
// canonicalized token is hashed (FNV-1a) into a bucket of a fixed-width
// vector, then the vector is L2-normalized. It needs no model download and
// is stable across runs, making it suitable as the default/test embedder
// when no real embedding-model client is configured — the donor pack has
// none for a server context (Non-goals: choice of embedding model is
// pluggable).
type HashEmbedder struct {
	dim int
}

// NewHashEmbedder returns a HashEmbedder producing vectors of width dim.
func NewHashEmbedder(dim int) *HashEmbedder {
	if dim <= 0 {
		dim = 256
	}
	return &HashEmbedder{dim: dim}
}

func (h *HashEmbedder) Dimension() int { return h.dim }

func (h *HashEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return h.embed(text), nil
}

func (h *HashEmbedder) EmbedDocs(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = h.embed(t)
	}
	return out, nil
}

func (h *HashEmbedder) embed(text string) []float32 {
	vec := make([]float32, h.dim)
	for _, tok := range search.Tokenize(text) {
		bucket := fnv1a(tok) % uint32(h.dim)
		vec[bucket] += 1
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}

func fnv1a(s string) uint32 {
	const offset32 = 2166136261
	const prime32 = 16777619
	h := uint32(offset32)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= prime32
	}
	return h
}

// IdentityReranker returns candidates in their input order with a
// descending placeholder score — used when reranker_model is unset
// (e.g. the minimal resource profile's reranker_top_n: 0), falling back
// to vector distance only per §4.4.
type IdentityReranker struct{}

func (IdentityReranker) Rerank(_ context.Context, _ string, docs []string, topN int) ([]RankedDoc, error) {
	if topN <= 0 || topN > len(docs) {
		topN = len(docs)
	}
	out := make([]RankedDoc, topN)
	for i := 0; i < topN; i++ {
		out[i] = RankedDoc{Index: i, Score: float64(len(docs) - i)}
	}
	return out, nil
}

// ScoreReranker re-scores candidates by token overlap between the query
// and each document, a lightweight stand-in for a cross-encoder (no real
// reranker-model client exists anywhere in the pack for a server context).
type ScoreReranker struct{}

func (ScoreReranker) Rerank(_ context.Context, query string, docs []string, topN int) ([]RankedDoc, error) {
	qTokens := tokenSet(query)
	ranked := make([]RankedDoc, len(docs))
	for i, d := range docs {
		ranked[i] = RankedDoc{Index: i, Score: overlapScore(qTokens, tokenSet(d))}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })
	if topN <= 0 || topN > len(ranked) {
		topN = len(ranked)
	}
	return ranked[:topN], nil
}

func tokenSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range search.Tokenize(text) {
		set[tok] = true
	}
	return set
}

func overlapScore(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	common := 0
	for tok := range a {
		if b[tok] {
			common++
		}
	}
	return float64(common) / float64(len(a))
}
