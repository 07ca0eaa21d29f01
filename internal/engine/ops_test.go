package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCreateReadUpdateDelete(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	rec, err := e.Create(ctx, "nilou", CreateInput{Content: "Watered the garden today"})
	require.NoError(t, err)
	require.NotEmpty(t, rec.Key)

	got, err := e.Read(ctx, "nilou", rec.Key)
	require.NoError(t, err)
	require.Equal(t, "Watered the garden today", got.Content)
	require.Equal(t, 1, got.AccessCount)

	newContent := "Watered the garden and the roses"
	updated, err := e.Update(ctx, "nilou", rec.Key, UpdateInput{Content: &newContent})
	require.NoError(t, err)
	require.Equal(t, newContent, updated.Content)

	require.NoError(t, e.Delete(ctx, "nilou", rec.Key))
	gone, err := e.Read(ctx, "nilou", rec.Key)
	require.NoError(t, err)
	require.Nil(t, gone)
}

func TestDeleteIsIdempotent(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	require.NoError(t, e.Delete(ctx, "nilou", "memory_00000000000000_abcd"))
	require.NoError(t, e.Delete(ctx, "nilou", "memory_00000000000000_abcd"))
}

func TestStatsReflectsCreatedMemories(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	_, err := e.Create(ctx, "nilou", CreateInput{Content: "first memory"})
	require.NoError(t, err)
	_, err = e.Create(ctx, "nilou", CreateInput{Content: "second memory, a bit longer"})
	require.NoError(t, err)

	stats, err := e.Stats("nilou")
	require.NoError(t, err)
	require.Equal(t, 2, stats.MemoryCount)
	require.Greater(t, stats.TotalChars, int64(0))
}

func TestCheckRoutinesGroupsByActionTag(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	now := time.Date(2026, 7, 31, 8, 0, 0, 0, time.UTC)

	for i := 0; i < 4; i++ {
		rec, err := e.Create(ctx, "nilou", CreateInput{
			Content:    "morning coffee ritual",
			ActionTag:  "coffee",
			Importance: floatPtr(0.6),
		})
		require.NoError(t, err)
		p, err := e.Persona("nilou")
		require.NoError(t, err)
		rec.CreatedAt = now.AddDate(0, 0, -i)
		require.NoError(t, p.DB.Upsert(rec))
	}

	patterns, err := e.CheckRoutines("nilou", now, 5)
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	require.Equal(t, "coffee", patterns[0].Label)
	require.Equal(t, 4, patterns[0].Frequency)
}
