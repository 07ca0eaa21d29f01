package engine

import (
	"testing"
	"time"

	"github.com/solidlime/memoryengine/internal/store"
	"github.com/stretchr/testify/require"
)

func TestGetContextCreatesDefaultAndTouchesTimestamp(t *testing.T) {
	e := newTestEngine(t)
	now := time.Date(2026, 7, 31, 9, 0, 0, 0, time.UTC)

	view, err := e.GetContext("nilou", now)
	require.NoError(t, err)
	require.Equal(t, "nilou", view.Context.PersonaName)
	require.NotNil(t, view.Context.LastConversationTime)
	require.True(t, view.Context.LastConversationTime.Equal(now))
	require.Empty(t, view.MemoryBlocks)
}

func TestGetContextSurfacesActivePromiseAndGoal(t *testing.T) {
	e := newTestEngine(t)
	now := time.Now().In(e.Loc)
	p, err := e.Persona("nilou")
	require.NoError(t, err)

	_, err = p.DB.CreatePromise(&store.Promise{
		Content:   "water the garden tomorrow",
		CreatedAt: now,
		Status:    store.StatusActive,
	})
	require.NoError(t, err)

	view, err := e.GetContext("nilou", now)
	require.NoError(t, err)
	require.NotNil(t, view.ActivePromise)
	require.Equal(t, "water the garden tomorrow", view.ActivePromise.Content)
}
