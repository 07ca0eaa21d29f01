package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestRebuildVectorIndexPreservesMetadataForAssociations guards the C7
// idle-rebuild recovery path (§4.7, testable property 7): a memory's
// emotion/importance metadata must survive a full rebuild so that
// association generation for later writes still sees it, instead of
// reading back zero-value emotion fields.
func TestRebuildVectorIndexPreservesMetadataForAssociations(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	seed, err := e.Create(ctx, "nilou", CreateInput{
		Content:          "a rare solar eclipse view from the rooftop",
		Emotion:          "joy",
		EmotionIntensity: 0.9,
	})
	require.NoError(t, err)

	p, err := e.Persona("nilou")
	require.NoError(t, err)
	p.Queue.Drain()

	require.NoError(t, e.RebuildVectorIndex(ctx, p))
	count, err := p.Index.Count()
	require.NoError(t, err)
	require.Equal(t, 1, count)

	rec, err := e.Create(ctx, "nilou", CreateInput{
		Content: "a rare solar eclipse view from the rooftop",
	})
	require.NoError(t, err)

	require.Contains(t, rec.RelatedKeys, seed.Key)
	require.InDelta(t, 0.68, rec.Importance, 0.01,
		"association generation should see the rebuilt neighbor's emotion metadata and boost importance accordingly")
}
