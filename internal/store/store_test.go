package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "memory.sqlite")
	db, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestUpsertGetRoundTrip(t *testing.T) {
	db := openTestDB(t)
	now := time.Now().UTC().Truncate(time.Second)

	rec := &MemoryRecord{
		Key:        "memory_20260115120000",
		Content:    "Completed Phase 41",
		CreatedAt:  now,
		UpdatedAt:  now,
		Tags:       []string{"milestone", "achievement"},
		Importance: 0.8,
		Emotion:    "joy",
	}
	require.NoError(t, db.Upsert(rec))

	got, err := db.Get(rec.Key)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "Completed Phase 41", got.Content)
	require.Equal(t, 0.8, got.Importance)
	require.Equal(t, "joy", got.Emotion)
	require.ElementsMatch(t, []string{"milestone", "achievement"}, got.Tags)
	require.Equal(t, 0.0, got.EmotionIntensity)
	require.Equal(t, "internal", got.PrivacyLevel)
}

func TestUpsertClampsRanges(t *testing.T) {
	db := openTestDB(t)
	now := time.Now()

	rec := &MemoryRecord{
		Key:              "memory_20260115120001",
		Content:          "x",
		CreatedAt:        now,
		UpdatedAt:        now,
		Importance:       1.7,
		EmotionIntensity: -0.3,
	}
	require.NoError(t, db.Upsert(rec))

	got, err := db.Get(rec.Key)
	require.NoError(t, err)
	require.Equal(t, 1.0, got.Importance)
	require.Equal(t, 0.0, got.EmotionIntensity)
}

func TestDeleteIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.Delete("does-not-exist"))
	require.NoError(t, db.Delete("does-not-exist"))
}

func TestSchemaReconciliationAddsColumnsWithoutDataLoss(t *testing.T) {
	path := filepath.Join(t.TempDir(), "legacy.sqlite")

	// Simulate a legacy database: only the original four columns exist.
	legacy, err := Open(path)
	require.NoError(t, err)
	_, err = legacy.sqldb.Exec(`DROP TABLE memories`)
	require.NoError(t, err)
	_, err = legacy.sqldb.Exec(`
		CREATE TABLE memories (
			key TEXT PRIMARY KEY, content TEXT NOT NULL, created_at TEXT NOT NULL, updated_at TEXT NOT NULL
		)
	`)
	require.NoError(t, err)
	now := time.Now().UTC().Format(timeLayout)
	_, err = legacy.sqldb.Exec(`INSERT INTO memories (key, content, created_at, updated_at) VALUES (?,?,?,?)`,
		"memory_20260101000000", "pre-migration content", now, now)
	require.NoError(t, err)
	require.NoError(t, legacy.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	rec, err := reopened.Get("memory_20260101000000")
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.Equal(t, "pre-migration content", rec.Content)
	require.Equal(t, DefaultImportance, rec.Importance)
	require.Equal(t, DefaultPrivacyLevel, rec.PrivacyLevel)
	require.Equal(t, []string{}, rec.Tags)
}

func TestUserStateBitemporalHistory(t *testing.T) {
	db := openTestDB(t)
	t0 := time.Now().Add(-2 * time.Hour)
	t1 := time.Now().Add(-1 * time.Hour)
	t2 := time.Now()

	require.NoError(t, db.SetUserState("name", "A", t0))
	require.NoError(t, db.SetUserState("name", "B", t1))
	require.NoError(t, db.SetUserState("name", "C", t2))

	hist, err := db.UserStateHistory("name")
	require.NoError(t, err)
	require.Len(t, hist, 3)

	currentCount := 0
	for _, h := range hist {
		if h.ValidUntil == nil {
			currentCount++
		}
	}
	require.Equal(t, 1, currentCount)

	current, err := db.CurrentUserState("name")
	require.NoError(t, err)
	require.Equal(t, "C", current.Value)
}

func TestGoalProgressAutoCompletes(t *testing.T) {
	db := openTestDB(t)
	id, err := db.CreateGoal(&Goal{Content: "ship feature", CreatedAt: time.Now()})
	require.NoError(t, err)

	require.NoError(t, db.UpdateGoalProgress(id, 60, time.Now()))
	goals, err := db.ListGoals("")
	require.NoError(t, err)
	require.Equal(t, StatusActive, goals[0].Status)

	require.NoError(t, db.UpdateGoalProgress(id, 140, time.Now()))
	goals, err = db.ListGoals("")
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, goals[0].Status)
	require.Equal(t, 100, goals[0].Progress)
	require.NotNil(t, goals[0].CompletedAt)
}

func TestCacheClearedOnWrite(t *testing.T) {
	db := openTestDB(t)
	now := time.Now()
	rec := &MemoryRecord{Key: "memory_20260115120002", Content: "v1", CreatedAt: now, UpdatedAt: now}
	require.NoError(t, db.Upsert(rec))

	_, err := db.Get(rec.Key)
	require.NoError(t, err)
	require.Equal(t, 1, db.cache.Len())

	rec.Content = "v2"
	require.NoError(t, db.Upsert(rec))
	require.Equal(t, 0, db.cache.Len())

	got, err := db.Get(rec.Key)
	require.NoError(t, err)
	require.Equal(t, "v2", got.Content)
}
