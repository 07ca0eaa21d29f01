package engine

import (
	"context"
	"sync"
	"time"

	"github.com/solidlime/memoryengine/internal/store"
	"github.com/solidlime/memoryengine/internal/writepath"
)

// startWorkers launches every C7 background loop for p and returns a stop
// function the Engine calls on Close. Each loop polls on its own ticker
// rather than relying on a shared scheduler, mirroring
// summarization_worker.py's independent daemon-thread-per-concern design.
func (e *Engine) startWorkers(p *Persona) func() {
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		e.runIdleVectorRebuilder(ctx, p)
	}()

	if e.Config.AutoCleanup.Enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.runCleanupSuggester(ctx, p)
		}()
	}

	if e.Config.Summarization.Enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.runAutoSummarizer(ctx, p)
		}()
	}

	return func() {
		cancel()
		wg.Wait()
	}
}

// runIdleVectorRebuilder watches the queue's dirty flag and p.lastWriteTS;
// once the configured idle window has elapsed since the last write, and at
// least min_interval seconds have passed since the previous rebuild, it
// recomputes every embedding from durable content and re-upserts the full
// index (§4.7's idle vector rebuilder, VectorRebuild.Mode == "manual"
// disables the loop entirely per the minimal resource profile).
func (e *Engine) runIdleVectorRebuilder(ctx context.Context, p *Persona) {
	cfg := e.Config.VectorRebuild
	if cfg.Mode == "manual" {
		return
	}
	idle := time.Duration(cfg.IdleSeconds) * time.Second
	minInterval := time.Duration(cfg.MinInterval) * time.Second
	tick := idle
	if tick <= 0 {
		tick = 30 * time.Second
	}

	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now().In(e.Loc)
			p.mu.Lock()
			lastWrite := p.lastWriteTS
			lastRebuild := p.lastRebuildTS
			p.mu.Unlock()

			if lastWrite.IsZero() || now.Sub(lastWrite) < idle {
				continue
			}
			if !lastRebuild.IsZero() && now.Sub(lastRebuild) < minInterval {
				continue
			}
			if !p.Queue.Dirty() {
				continue
			}
			if err := e.RebuildVectorIndex(ctx, p); err != nil {
				e.Logger.Error("vector rebuild failed", "persona", p.Name, "error", err)
				continue
			}
			p.mu.Lock()
			p.lastRebuildTS = now
			p.mu.Unlock()
		}
	}
}

// RebuildVectorIndex streams every durable memory, recomputes its
// embedding from the same enriched-text construction the write path uses,
// and re-upserts it into the index, then clears the dirty flag. Exposed as
// a public method so it can also be triggered manually (VectorRebuild.Mode
// == "manual") or from a test.
func (e *Engine) RebuildVectorIndex(ctx context.Context, p *Persona) error {
	all, err := p.DB.LoadAll()
	if err != nil {
		return err
	}

	p.DB.Lock()
	defer p.DB.Unlock()

	for key, rec := range all {
		enriched := enrichedTextFor(rec)
		vec, err := e.Embedder.EmbedQuery(ctx, enriched)
		if err != nil {
			return err
		}
		if err := p.Index.Upsert(key, vec, rec.Content, writepath.MetadataOf(rec)); err != nil {
			return err
		}
	}
	p.Queue.ClearDirty()
	return nil
}

// enrichedTextFor rebuilds the exact text the write path embedded
// originally, so a full rebuild reproduces the live index rather than a
// plain-content approximation of it.
func enrichedTextFor(rec *store.MemoryRecord) string {
	return writepath.BuildEnrichedText(writepath.EnrichedTextInput{
		Content:            rec.Content,
		Tags:               rec.Tags,
		Emotion:            rec.Emotion,
		EmotionIntensity:   rec.EmotionIntensity,
		ActionTag:          rec.ActionTag,
		Environment:        rec.Environment,
		PhysicalState:      rec.PhysicalState,
		MentalState:        rec.MentalState,
		RelationshipStatus: rec.RelationshipStatus,
	})
}
