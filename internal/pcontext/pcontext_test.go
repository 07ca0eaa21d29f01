package pcontext

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefaultOnFirstAccess(t *testing.T) {
	path := filepath.Join(t.TempDir(), "persona_context.json")
	ctx, err := Load(path, "nilou")
	require.NoError(t, err)
	require.Equal(t, "nilou", ctx.PersonaName)
	require.Equal(t, "neutral", ctx.CurrentEmotion)
	require.FileExists(t, path)
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "persona_context.json")
	ctx := Default("nilou")
	ctx.CurrentEmotion = "joy"
	ctx.Favorites = []string{"tea", "stargazing"}
	require.NoError(t, Save(path, ctx))

	got, err := Load(path, "nilou")
	require.NoError(t, err)
	require.Equal(t, "joy", got.CurrentEmotion)
	require.ElementsMatch(t, []string{"tea", "stargazing"}, got.Favorites)
}

func TestSaveKeepsOneBackupCopy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "persona_context.json")
	require.NoError(t, Save(path, Default("nilou")))
	require.NoFileExists(t, path+".backup")

	updated := Default("nilou")
	updated.CurrentEmotion = "excited"
	require.NoError(t, Save(path, updated))
	require.FileExists(t, path+".backup")
}

func TestTouchLastConversationTime(t *testing.T) {
	path := filepath.Join(t.TempDir(), "persona_context.json")
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	require.NoError(t, TouchLastConversationTime(path, "nilou", now))

	got, err := Load(path, "nilou")
	require.NoError(t, err)
	require.NotNil(t, got.LastConversationTime)
	require.True(t, got.LastConversationTime.Equal(now))
}
