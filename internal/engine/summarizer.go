package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/solidlime/memoryengine/internal/store"
	"github.com/solidlime/memoryengine/internal/writepath"
)

// runAutoSummarizer mirrors summarization_worker.py's daemon loop: it
// wakes on its own interval, and only acts once both the idle window and
// the frequency_days cooldown since the last run have elapsed.
func (e *Engine) runAutoSummarizer(ctx context.Context, p *Persona) {
	cfg := e.Config.Summarization
	interval := time.Duration(cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	idle := time.Duration(cfg.IdleMinutes) * time.Minute
	cooldown := time.Duration(cfg.FrequencyDays) * 24 * time.Hour

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
			lastSummarization := p.lastSummarizationTS
			p.mu.Unlock()

			if !lastWrite.IsZero() && now.Sub(lastWrite) < idle {
				continue
			}
			if !lastSummarization.IsZero() && now.Sub(lastSummarization) < cooldown {
				continue
			}
			if _, err := e.Summarize(ctx, p.Name, now); err != nil {
				e.Logger.Error("auto-summarizer failed", "persona", p.Name, "error", err)
				continue
			}
			p.mu.Lock()
			p.lastSummarizationTS = now
			p.mu.Unlock()
		}
	}
}

// Summary is the statistical digest produced by one summarization run,
// mirroring generate_summary_content's shape.
type Summary struct {
	Key           string
	Themes        []string
	DominantEmotion string
	EmotionIntensity float64
	AvgImportance float64
	Highlights    []string
	IncludedKeys  []string
}

// Summarize extracts the unsummarized, sufficiently-important memories
// created since the last summarization window, computes their statistical
// digest (top-3 tags as themes, dominant emotion by highest average
// intensity, average importance, top-5-by-importance highlights truncated to
// 100 characters), stores it as a summary_ meta-memory, and stamps
// summary_ref on every included memory — ported from
// summarization_tools.py's extract_memories_by_period /
// calculate_dominant_emotion / generate_summary_content. Returns nil, nil
// when there is nothing new to summarize.
func (e *Engine) Summarize(ctx context.Context, persona string, now time.Time) (*Summary, error) {
	p, err := e.Persona(persona)
	if err != nil {
		return nil, err
	}
	cfg := e.Config.Summarization

	all, err := p.DB.LoadAll()
	if err != nil {
		return nil, err
	}

	cutoff := now.AddDate(0, 0, -cfg.FrequencyDays)
	var candidates []*store.MemoryRecord
	for _, rec := range all {
		if rec.SummaryRef != nil {
			continue
		}
		if rec.CreatedAt.Before(cutoff) {
			continue
		}
		if rec.Importance < cfg.MinImportance {
			continue
		}
		candidates = append(candidates, rec)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	summary := buildSummary(candidates)
	summary.IncludedKeys = keysOf(candidates)
	rec, err := p.Writer.Create(ctx, writepath.CreateInput{
		Key:        writepath.GenerateSummaryKey(now, e.Loc),
		Content:    renderSummary(summary),
		Tags:       append([]string{"summary"}, summary.Themes...),
		Importance: floatPtr(summary.AvgImportance),
		Emotion:    summary.DominantEmotion,
	})
	if err != nil {
		return nil, fmt.Errorf("engine: storing summary: %w", err)
	}
	summary.Key = rec.Key

	for _, c := range candidates {
		c.SummaryRef = &rec.Key
		if err := p.DB.Upsert(c); err != nil {
			e.Logger.Error("failed to stamp summary_ref", "key", c.Key, "error", err)
		}
	}

	return &summary, nil
}

func buildSummary(candidates []*store.MemoryRecord) Summary {
	tagCounts := make(map[string]int)
	emotionIntensitySum := make(map[string]float64)
	emotionCount := make(map[string]int)
	var impSum float64

	for _, rec := range candidates {
		for _, t := range rec.Tags {
			tagCounts[t]++
		}
		if rec.Emotion != "" {
			emotionIntensitySum[rec.Emotion] += rec.EmotionIntensity
			emotionCount[rec.Emotion]++
		}
		impSum += rec.Importance
	}

	themes := topTags(tagCounts, 3)
	dominant, intensity := dominantEmotion(emotionIntensitySum, emotionCount)

	sorted := make([]*store.MemoryRecord, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Importance > sorted[j].Importance })
	highlightN := 5
	if len(sorted) < highlightN {
		highlightN = len(sorted)
	}
	highlights := make([]string, highlightN)
	for i := 0; i < highlightN; i++ {
		highlights[i] = truncate(sorted[i].Content, 100)
	}

	return Summary{
		Themes:           themes,
		DominantEmotion:  dominant,
		EmotionIntensity: intensity,
		AvgImportance:    impSum / float64(len(candidates)),
		Highlights:       highlights,
	}
}

// dominantEmotion picks the emotion with the highest average intensity
// across the candidate set, ported from calculate_dominant_emotion.
func dominantEmotion(sum map[string]float64, count map[string]int) (string, float64) {
	var best string
	var bestAvg float64
	for emotion, total := range sum {
		avg := total / float64(count[emotion])
		if best == "" || avg > bestAvg {
			best, bestAvg = emotion, avg
		}
	}
	return best, bestAvg
}

func topTags(counts map[string]int, n int) []string {
	type kv struct {
		tag   string
		count int
	}
	kvs := make([]kv, 0, len(counts))
	for t, c := range counts {
		kvs = append(kvs, kv{t, c})
	}
	sort.SliceStable(kvs, func(i, j int) bool {
		if kvs[i].count != kvs[j].count {
			return kvs[i].count > kvs[j].count
		}
		return kvs[i].tag < kvs[j].tag
	})
	if len(kvs) > n {
		kvs = kvs[:n]
	}
	out := make([]string, len(kvs))
	for i, k := range kvs {
		out[i] = k.tag
	}
	return out
}

func renderSummary(s Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Summary of %d memories.", len(s.IncludedKeys))
	if len(s.Themes) > 0 {
		fmt.Fprintf(&b, " Themes: %s.", strings.Join(s.Themes, ", "))
	}
	if s.DominantEmotion != "" {
		fmt.Fprintf(&b, " Dominant emotion: %s (%.2f).", s.DominantEmotion, s.EmotionIntensity)
	}
	fmt.Fprintf(&b, " Average importance: %.2f.", s.AvgImportance)
	for _, h := range s.Highlights {
		fmt.Fprintf(&b, "\n- %s", h)
	}
	return b.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func keysOf(recs []*store.MemoryRecord) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.Key
	}
	return out
}

func floatPtr(f float64) *float64 { return &f }

// --- Forgetting / decay (ported from original_source/core/forgetting.py) ---

// calculateTimeDecay mirrors calculate_time_decay: a simple inverse-age
// curve, clamped to [0,1].
func calculateTimeDecay(ageDays float64) float64 {
	decay := 1.0 / (1.0 + ageDays/30.0)
	if decay < 0 {
		return 0
	}
	if decay > 1 {
		return 1
	}
	return decay
}

// applyImportanceDecay mirrors apply_importance_decay: high emotional
// intensity resists decay more strongly than low intensity, via three
// resistance tiers.
func applyImportanceDecay(importance, emotionIntensity, ageDays float64) float64 {
	decay := calculateTimeDecay(ageDays)
	var resistance float64
	switch {
	case emotionIntensity > 0.7:
		resistance = 0.7 + decay*0.3
	case emotionIntensity > 0.5:
		resistance = 0.5 + decay*0.5
	default:
		resistance = decay
	}
	result := importance * resistance
	if result < 0 {
		return 0
	}
	if result > 1 {
		return 1
	}
	return result
}

// DecayResult reports what one forgetting pass did.
type DecayResult struct {
	Updated           int
	PendingDeletion    []string
}

// deletionThreshold mirrors mark_memories_for_deletion's cutoff: memories
// decayed below this importance are surfaced as candidates, never deleted
// automatically (consistent with the cleanup suggester's suggest-only
// contract).
const deletionThreshold = 0.05

// Decay recomputes every memory's importance from its age and emotional
// intensity and writes the new value back, then reports which keys fell
// below the deletion threshold for a caller to act on. Age is measured
// from last_accessed when the memory has been recalled at least once,
// falling back to created_at otherwise, mirroring calculate_time_decay's
// last_accessed parameter: recalling a memory resets its decay clock.
func (e *Engine) Decay(persona string, now time.Time) (*DecayResult, error) {
	p, err := e.Persona(persona)
	if err != nil {
		return nil, err
	}
	all, err := p.DB.LoadAll()
	if err != nil {
		return nil, err
	}

	result := &DecayResult{}
	for _, rec := range all {
		reference := rec.CreatedAt
		if rec.LastAccessed != nil && !rec.LastAccessed.IsZero() {
			reference = *rec.LastAccessed
		}
		ageDays := now.Sub(reference).Hours() / 24
		newImportance := applyImportanceDecay(rec.Importance, rec.EmotionIntensity, ageDays)
		if newImportance != rec.Importance {
			rec.Importance = newImportance
			if err := p.DB.Upsert(rec); err != nil {
				return nil, fmt.Errorf("engine: decaying %s: %w", rec.Key, err)
			}
			result.Updated++
		}
		if newImportance < deletionThreshold {
			result.PendingDeletion = append(result.PendingDeletion, rec.Key)
		}
	}
	sort.Strings(result.PendingDeletion)
	return result, nil
}
