package writepath

import (
	"context"
	"fmt"

	"github.com/solidlime/memoryengine/internal/embed"
	"github.com/solidlime/memoryengine/internal/vecindex"
)

// VecApplier is the Queue consumer's VectorApplier: it embeds the
// enriched text (the expensive, deferrable step) and upserts the
// resulting point into the vector index. Any failure here — including an
// embedding failure — surfaces only as the queue's dirty flag, per §4.6
// step 5 ("never retries inline").
type VecApplier struct {
	Index    *vecindex.Index
	Embedder embed.Embedder
}

func (a *VecApplier) ApplyUpsert(task UpsertTask) error {
	vec, err := a.Embedder.EmbedQuery(context.Background(), task.EnrichedText)
	if err != nil {
		return fmt.Errorf("writepath: embedding %s: %w", task.Key, err)
	}
	if err := a.Index.Upsert(task.Key, vec, task.EnrichedText, task.Metadata); err != nil {
		return fmt.Errorf("writepath: upserting %s into vector index: %w", task.Key, err)
	}
	return nil
}

func (a *VecApplier) ApplyDelete(task DeleteTask) error {
	if err := a.Index.Delete([]string{task.Key}); err != nil {
		return fmt.Errorf("writepath: deleting %s from vector index: %w", task.Key, err)
	}
	return nil
}
