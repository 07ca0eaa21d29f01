package writepath

import (
	"context"
	"fmt"
	"time"

	"github.com/solidlime/memoryengine/internal/embed"
	"github.com/solidlime/memoryengine/internal/privacy"
	"github.com/solidlime/memoryengine/internal/store"
	"github.com/solidlime/memoryengine/internal/vecindex"
)

// CreateInput is the caller-supplied subset of a memory write; everything
// else is resolved to a default by the write path (§4.6 step 1).
type CreateInput struct {
	Key                string // optional; auto-generated if empty
	Content            string
	Tags               []string
	Importance         *float64
	Emotion            string
	EmotionIntensity   float64
	PhysicalState      string
	MentalState        string
	Environment        string
	RelationshipStatus string
	ActionTag          string
	EquippedItems      map[string]string
	PrivacyLevel       string // explicit override, empty = derive
}

// Writer orchestrates the six-step write-path contract of §4.6: durable
// write via C2 is synchronous; the vector-index mutation is enqueued onto
// the Queue (C3 applied asynchronously by its consumer goroutine);
// association generation runs after the durable write completes.
type Writer struct {
	DB              *store.DB
	Index           *vecindex.Index
	Embedder        embed.Embedder
	Queue           *Queue
	Loc             *time.Location
	DefaultPrivacy  string
	AutoRedactPII   bool
}

// Create validates and normalizes in, assigns a key if absent, performs
// the durable write, enqueues the vector-index upsert, and runs
// association generation. Returns the stored record.
func (w *Writer) Create(ctx context.Context, in CreateInput) (*store.MemoryRecord, error) {
	now := time.Now().In(w.Loc)

	processedContent, level := privacy.PrepareContent(in.Content, in.PrivacyLevel, in.Tags, w.DefaultPrivacy, w.AutoRedactPII)

	key := in.Key
	if key == "" {
		key = GenerateKey(now, w.Loc)
	} else if !ValidKey(key) {
		return nil, fmt.Errorf("writepath: invalid key format: %q", key)
	}

	importance := store.DefaultImportance
	if in.Importance != nil {
		importance = *in.Importance
	}

	rec := &store.MemoryRecord{
		Key:                key,
		Content:            processedContent,
		CreatedAt:          now,
		UpdatedAt:          now,
		Tags:               in.Tags,
		Importance:         importance,
		Emotion:            in.Emotion,
		EmotionIntensity:   in.EmotionIntensity,
		PhysicalState:      orDefault(in.PhysicalState, store.DefaultPhysicalState),
		MentalState:        orDefault(in.MentalState, store.DefaultMentalState),
		Environment:        orDefault(in.Environment, store.DefaultEnvironment),
		RelationshipStatus: orDefault(in.RelationshipStatus, store.DefaultRelationshipStatus),
		ActionTag:          in.ActionTag,
		EquippedItems:      in.EquippedItems,
		PrivacyLevel:       level,
	}

	// Step 3: durable write. On failure, return error, never touch C3.
	if err := w.DB.Upsert(rec); err != nil {
		return nil, fmt.Errorf("writepath: durable write failed: %w", err)
	}

	// Step 4: enqueue the vector-index upsert and return success.
	w.enqueueUpsert(rec)

	// Step 6: association generation, best-effort — failure here must
	// not fail the create call, since the durable write already
	// succeeded.
	w.generateAssociations(ctx, rec)

	return rec, nil
}

// Update mutates the durable row and enqueues the corresponding
// vector-index upsert under the same key (same point id), per §4.6.
func (w *Writer) Update(ctx context.Context, key string, mutate func(*store.MemoryRecord)) (*store.MemoryRecord, error) {
	rec, err := w.DB.Get(key)
	if err != nil {
		return nil, fmt.Errorf("writepath: fetching %s: %w", key, err)
	}
	if rec == nil {
		return nil, fmt.Errorf("writepath: memory not found: %s", key)
	}

	mutate(rec)
	rec.UpdatedAt = time.Now().In(w.Loc)

	if err := w.DB.Upsert(rec); err != nil {
		return nil, fmt.Errorf("writepath: durable update failed: %w", err)
	}
	w.enqueueUpsert(rec)
	return rec, nil
}

// Delete removes the durable row and enqueues a vector-index delete.
// Idempotent: deleting an absent key is not an error (§4.2).
func (w *Writer) Delete(key string) error {
	if err := w.DB.Delete(key); err != nil {
		return fmt.Errorf("writepath: durable delete failed: %w", err)
	}
	w.Queue.Enqueue(Task{Delete: &DeleteTask{Key: key}})
	return nil
}

func (w *Writer) enqueueUpsert(rec *store.MemoryRecord) {
	enriched := BuildEnrichedText(EnrichedTextInput{
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
	w.Queue.Enqueue(Task{Upsert: &UpsertTask{
		Key:          rec.Key,
		EnrichedText: enriched,
		Metadata:     MetadataOf(rec),
	}})
}

func (w *Writer) generateAssociations(ctx context.Context, rec *store.MemoryRecord) {
	if w.Index == nil || w.Embedder == nil {
		return
	}
	vec, err := w.Embedder.EmbedQuery(ctx, rec.Content)
	if err != nil {
		return
	}
	candidates, err := w.Index.SearchByVector(vec, 4) // +1 to account for self
	if err != nil {
		return
	}

	similar := make([]SimilarMemory, 0, 3)
	for _, c := range candidates {
		if c.Doc.Key == rec.Key {
			continue
		}
		if len(similar) >= 3 {
			break
		}
		intensity := 0.0
		fmt.Sscanf(c.Doc.Metadata["emotion_intensity"], "%f", &intensity)
		similar = append(similar, SimilarMemory{
			Key:              c.Doc.Key,
			Emotion:          c.Doc.Metadata["emotion"],
			EmotionIntensity: intensity,
		})
	}

	relatedKeys, adjustedImportance := GenerateAssociations(similar, rec.EmotionIntensity, rec.Importance)
	rec.RelatedKeys = relatedKeys
	rec.Importance = adjustedImportance
	_ = w.DB.Upsert(rec) // best-effort; association is an enrichment, not part of the write contract
}

// MetadataOf builds the vec0 payload metadata for rec, shared by the write
// path's enqueued upserts and the idle rebuilder's full re-upsert pass so a
// rebuild never drops the fields association generation and the cleanup
// suggester read back off candidate docs.
func MetadataOf(rec *store.MemoryRecord) map[string]string {
	return map[string]string{
		"key":               rec.Key,
		"emotion":           rec.Emotion,
		"emotion_intensity": fmt.Sprintf("%f", rec.EmotionIntensity),
		"importance":        fmt.Sprintf("%f", rec.Importance),
		"action_tag":        rec.ActionTag,
		"environment":       rec.Environment,
		"created_at":        rec.CreatedAt.Format(time.RFC3339),
		"privacy_level":     rec.PrivacyLevel,
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
