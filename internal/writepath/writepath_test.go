package writepath

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/asg017/sqlite-vec-go-bindings/ncruces"
	_ "github.com/ncruces/go-sqlite3/driver"
	"github.com/stretchr/testify/require"

	"github.com/solidlime/memoryengine/internal/embed"
	"github.com/solidlime/memoryengine/internal/store"
	"github.com/solidlime/memoryengine/internal/vecindex"
)

func newTestWriter(t *testing.T) *Writer {
	t.Helper()
	path := filepath.Join(t.TempDir(), "memory.sqlite")
	db, err := store.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	idx := vecindex.Open(db.SQL(), "testpersona")
	embedder := embed.NewHashEmbedder(32)
	applier := &VecApplier{Index: idx, Embedder: embedder}
	q := NewQueue(applier, nil)

	return &Writer{
		DB:             db,
		Index:          idx,
		Embedder:       embedder,
		Queue:          q,
		Loc:            time.UTC,
		DefaultPrivacy: "internal",
	}
}

func TestCreateAssignsKeyAndPersists(t *testing.T) {
	w := newTestWriter(t)
	rec, err := w.Create(context.Background(), CreateInput{Content: "went hiking today"})
	require.NoError(t, err)
	require.True(t, ValidKey(rec.Key))
	require.Equal(t, store.DefaultImportance, rec.Importance)
	require.Equal(t, "internal", rec.PrivacyLevel)

	got, err := w.DB.Get(rec.Key)
	require.NoError(t, err)
	require.NotNil(t, got)
}

func TestCreateEnqueuesVectorUpsert(t *testing.T) {
	w := newTestWriter(t)
	rec, err := w.Create(context.Background(), CreateInput{Content: "kyoto temple visit"})
	require.NoError(t, err)

	w.Queue.Drain()
	count, err := w.Index.Count()
	require.NoError(t, err)
	require.Equal(t, 1, count)
	require.False(t, w.Queue.Dirty())
	_ = rec
}

func TestCreateRejectsInvalidExplicitKey(t *testing.T) {
	w := newTestWriter(t)
	_, err := w.Create(context.Background(), CreateInput{Key: "not-a-valid-key", Content: "x"})
	require.Error(t, err)
}

func TestCreateDerivesPrivacyFromPrivateMarkup(t *testing.T) {
	w := newTestWriter(t)
	rec, err := w.Create(context.Background(), CreateInput{Content: "public bit <private>secret bit</private>"})
	require.NoError(t, err)
	require.Equal(t, "secret", rec.PrivacyLevel)
	require.NotContains(t, rec.Content, "secret bit")
}

func TestUpdateReusesSamePointID(t *testing.T) {
	w := newTestWriter(t)
	rec, err := w.Create(context.Background(), CreateInput{Content: "first draft"})
	require.NoError(t, err)
	w.Queue.Drain()

	updated, err := w.Update(context.Background(), rec.Key, func(r *store.MemoryRecord) {
		r.Content = "revised draft"
	})
	require.NoError(t, err)
	require.Equal(t, "revised draft", updated.Content)

	w.Queue.Drain()
	count, err := w.Index.Count()
	require.NoError(t, err)
	require.Equal(t, 1, count, "update should upsert the same point, not add a new one")
}

func TestDeleteIsIdempotent(t *testing.T) {
	w := newTestWriter(t)
	rec, err := w.Create(context.Background(), CreateInput{Content: "to be removed"})
	require.NoError(t, err)
	w.Queue.Drain()

	require.NoError(t, w.Delete(rec.Key))
	require.NoError(t, w.Delete(rec.Key)) // idempotent

	w.Queue.Drain()
	got, err := w.DB.Get(rec.Key)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestGenerateAssociationsCapsAtOne(t *testing.T) {
	similar := []SimilarMemory{
		{Key: "memory_a", Emotion: "joy", EmotionIntensity: 0.9},
		{Key: "memory_b", Emotion: "joy", EmotionIntensity: 0.9},
	}
	keys, importance := GenerateAssociations(similar, 1.0, 0.9)
	require.ElementsMatch(t, []string{"memory_a", "memory_b"}, keys)
	require.Equal(t, 1.0, importance)
}

func TestBuildEnrichedTextOnlyAnnotatesNonDefaults(t *testing.T) {
	out := BuildEnrichedText(EnrichedTextInput{
		Content:       "plain note",
		Environment:   "unknown",
		PhysicalState: "normal",
		MentalState:   "calm",
	})
	require.Equal(t, "plain note", out)

	out = BuildEnrichedText(EnrichedTextInput{
		Content: "a happy day",
		Tags:    []string{"milestone"},
		Emotion: "joy",
	})
	require.Contains(t, out, "[Tags: milestone]")
	require.Contains(t, out, "[Emotion: joy]")
}
