package engine

import (
	"context"
	"sort"
	"time"
)

// CleanupSuggestion is one non-destructive near-duplicate pair the
// suggester has surfaced. Nothing is deleted automatically: a caller (the
// dashboard collaborator, out of core scope, or a CLI) decides whether to
// act on it, per §4.7's "suggest, never delete" contract.
type CleanupSuggestion struct {
	KeyA       string
	KeyB       string
	Similarity float64
	Reason     string
}

// Suggestions returns the most recent cleanup pass's findings for persona.
func (e *Engine) Suggestions(persona string) ([]CleanupSuggestion, error) {
	p, err := e.Persona(persona)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]CleanupSuggestion, len(p.suggestions))
	copy(out, p.suggestions)
	return out, nil
}

func (e *Engine) runCleanupSuggester(ctx context.Context, p *Persona) {
	cfg := e.Config.AutoCleanup
	interval := time.Duration(cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	idle := time.Duration(cfg.IdleMinutes) * time.Minute

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now().In(e.Loc)
			p.mu.Lock()
			lastWrite := p.lastWriteTS
			p.mu.Unlock()
			if !lastWrite.IsZero() && now.Sub(lastWrite) < idle {
				continue
			}
			suggestions, err := e.findDuplicates(ctx, p, cfg.DuplicateThreshold, cfg.MinSimilarityToReport, cfg.MaxSuggestionsPerRun)
			if err != nil {
				e.Logger.Error("cleanup suggester failed", "persona", p.Name, "error", err)
				continue
			}
			p.mu.Lock()
			p.suggestions = suggestions
			p.mu.Unlock()
		}
	}
}

// findDuplicates embeds every memory's content, searches its nearest
// neighbors in the vector index, and reports pairs at or above
// duplicateThreshold cosine similarity (reported if they clear the lower
// minReport bar), capped at maxResults and ordered by similarity
// descending — ported from the donor's near-duplicate heuristic in
// forgetting.py's sibling cleanup pass, generalized to use the embedded
// index instead of a brute-force pairwise scan.
func (e *Engine) findDuplicates(ctx context.Context, p *Persona, duplicateThreshold, minReport float64, maxResults int) ([]CleanupSuggestion, error) {
	all, err := p.DB.LoadAll()
	if err != nil {
		return nil, err
	}
	if maxResults <= 0 {
		maxResults = 20
	}

	seen := make(map[[2]string]bool)
	var out []CleanupSuggestion
	for key, rec := range all {
		vec, err := e.Embedder.EmbedQuery(ctx, rec.Content)
		if err != nil {
			continue
		}
		candidates, err := p.Index.SearchByVector(vec, 5)
		if err != nil {
			continue
		}
		for _, c := range candidates {
			if c.Doc.Key == key || c.Doc.Key == "" {
				continue
			}
			similarity := 1 - c.Distance
			if similarity < minReport {
				continue
			}
			a, b := key, c.Doc.Key
			if a > b {
				a, b = b, a
			}
			pairKey := [2]string{a, b}
			if seen[pairKey] {
				continue
			}
			seen[pairKey] = true

			reason := "similar"
			if similarity >= duplicateThreshold {
				reason = "likely_duplicate"
			}
			out = append(out, CleanupSuggestion{KeyA: a, KeyB: b, Similarity: similarity, Reason: reason})
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Similarity > out[j].Similarity })
	if len(out) > maxResults {
		out = out[:maxResults]
	}
	return out, nil
}
