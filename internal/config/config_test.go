package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func withDataDir(t *testing.T, dir string) {
	t.Helper()
	t.Setenv("MEMORY_ENGINE_DATA_DIR", dir)
	globalCache = cacheState{}
}

func TestDefaultConfigLoadsWithNoFile(t *testing.T) {
	withDataDir(t, t.TempDir())
	cfg, err := Load(true)
	require.NoError(t, err)
	require.Equal(t, Default().ServerPort, cfg.ServerPort)
	require.Equal(t, "idle", cfg.VectorRebuild.Mode)
}

func TestFileOverridesWinOverDefaults(t *testing.T) {
	dir := t.TempDir()
	withDataDir(t, dir)

	body, _ := json.Marshal(map[string]any{
		"server_port": 9999,
		"summarization": map[string]any{
			"min_importance": 0.7,
		},
	})
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"), body, 0o644))

	cfg, err := Load(true)
	require.NoError(t, err)
	require.Equal(t, 9999, cfg.ServerPort)
	require.Equal(t, 0.7, cfg.Summarization.MinImportance)
	require.Equal(t, 1, cfg.Summarization.FrequencyDays) // untouched default leaf survives merge
}

func TestEnvOverrideWinsOverFileForServerPort(t *testing.T) {
	dir := t.TempDir()
	withDataDir(t, dir)

	body, _ := json.Marshal(map[string]any{"server_port": 1111})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"), body, 0o644))
	t.Setenv("MEMORY_ENGINE_SERVER_PORT", "2222")

	cfg, err := Load(true)
	require.NoError(t, err)
	require.Equal(t, 2222, cfg.ServerPort)
}

func TestDoubleUnderscoreEnvNesting(t *testing.T) {
	withDataDir(t, t.TempDir())
	t.Setenv("MEMORY_ENGINE_VECTOR_REBUILD__IDLE_SECONDS", "7")

	cfg, err := Load(true)
	require.NoError(t, err)
	require.Equal(t, 7, cfg.VectorRebuild.IdleSeconds)
}

func TestSingleUnderscoreFriendlyMapping(t *testing.T) {
	withDataDir(t, t.TempDir())
	t.Setenv("MEMORY_ENGINE_AUTO_CLEANUP_ENABLED", "false")

	cfg, err := Load(true)
	require.NoError(t, err)
	require.False(t, cfg.AutoCleanup.Enabled)
}

func TestResourceProfileAppliesOnlyToUntouchedLeaves(t *testing.T) {
	dir := t.TempDir()
	withDataDir(t, dir)

	body, _ := json.Marshal(map[string]any{
		"resource_profile": "minimal",
		"reranker_top_n":   42, // explicit override must survive the minimal preset
	})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"), body, 0o644))

	cfg, err := Load(true)
	require.NoError(t, err)
	require.Equal(t, 42, cfg.RerankerTopN)
	require.Equal(t, "", cfg.RerankerModel) // minimal preset still disables the reranker model
	require.False(t, cfg.Summarization.Enabled)
}

func TestSanitizePersonaReplacesSeparators(t *testing.T) {
	require.Equal(t, "a_b_c", SanitizePersona(`a/b\c`))
}

func TestPersonaResolverOrder(t *testing.T) {
	require.Equal(t, "fromHeader", Resolver{Header: "fromHeader", Binding: "fromBinding"}.Resolve())
	require.Equal(t, "fromBinding", Resolver{Binding: "fromBinding"}.Resolve())
	require.Equal(t, "default", Resolver{}.Resolve())
}

func TestMigrateLegacyLayoutRenamesOnlyWhenModernAbsent(t *testing.T) {
	withDataDir(t, t.TempDir())
	require.NoError(t, os.MkdirAll(MemoryRoot(), 0o755))
	legacy := LegacyMemoryDBPath("nilou")
	require.NoError(t, os.WriteFile(legacy, []byte("legacy-db"), 0o644))

	require.NoError(t, MigrateLegacyLayout("nilou"))

	modern := MemoryDBPath("nilou")
	data, err := os.ReadFile(modern)
	require.NoError(t, err)
	require.Equal(t, "legacy-db", string(data))
	_, err = os.Stat(legacy)
	require.True(t, os.IsNotExist(err))
}
