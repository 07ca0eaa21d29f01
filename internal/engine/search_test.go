package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSearchKeywordFindsSubstringMatch(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Create(ctx, "nilou", CreateInput{Content: "Went dancing at the theater tonight"})
	require.NoError(t, err)
	_, err = e.Create(ctx, "nilou", CreateInput{Content: "Bought groceries for the week"})
	require.NoError(t, err)

	hits, err := e.Search(ctx, "nilou", SearchRequest{Query: "dancing", Mode: ModeKeyword})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Contains(t, hits[0].Record.Content, "dancing")
}

func TestSearchSemanticFindsConceptualMatch(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	rec, err := e.Create(ctx, "nilou", CreateInput{Content: "The garden roses bloomed beautifully this spring"})
	require.NoError(t, err)
	_, err = e.Create(ctx, "nilou", CreateInput{Content: "Filed quarterly tax paperwork"})
	require.NoError(t, err)

	p, err := e.Persona("nilou")
	require.NoError(t, err)
	p.Queue.Drain()

	hits, err := e.Search(ctx, "nilou", SearchRequest{Query: "roses bloomed garden spring", Mode: ModeSemantic, TopK: 5})
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	require.Equal(t, rec.Key, hits[0].Record.Key)
}

func TestSearchRelatedExcludesSeed(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	seed, err := e.Create(ctx, "nilou", CreateInput{Content: "Practiced piano scales for an hour"})
	require.NoError(t, err)
	other, err := e.Create(ctx, "nilou", CreateInput{Content: "Practiced piano scales again today"})
	require.NoError(t, err)

	p, err := e.Persona("nilou")
	require.NoError(t, err)
	p.Queue.Drain()

	hits, err := e.Search(ctx, "nilou", SearchRequest{Mode: ModeRelated, SeedKey: seed.Key, TopK: 5})
	require.NoError(t, err)
	for _, h := range hits {
		require.NotEqual(t, seed.Key, h.Record.Key)
	}
	if len(hits) > 0 {
		require.Equal(t, other.Key, hits[0].Record.Key)
	}
}

func TestSearchHybridUnionsKeywordAndSemantic(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Create(ctx, "nilou", CreateInput{Content: "Cooked a big pot of curry for dinner"})
	require.NoError(t, err)
	_, err = e.Create(ctx, "nilou", CreateInput{Content: "Read a novel by the fireplace"})
	require.NoError(t, err)

	p, err := e.Persona("nilou")
	require.NoError(t, err)
	p.Queue.Drain()

	hits, err := e.Search(ctx, "nilou", SearchRequest{Query: "curry dinner", Mode: ModeHybrid, TopK: 5})
	require.NoError(t, err)
	require.NotEmpty(t, hits)
}

func TestSearchSmartExpandsAmbiguousQuery(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	_, err := e.Create(ctx, "nilou", CreateInput{Content: "We promised to meet again next weekend"})
	require.NoError(t, err)

	p, err := e.Persona("nilou")
	require.NoError(t, err)
	p.Queue.Drain()

	hits, err := e.Search(ctx, "nilou", SearchRequest{Query: "that thing", Mode: ModeSmart, TopK: 5})
	require.NoError(t, err)
	_ = hits // smart mode must not error on an ambiguous query; result set may be empty
}
