package engine

import (
	"testing"

	"github.com/solidlime/memoryengine/internal/config"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	t.Setenv("MEMORY_ENGINE_DATA_DIR", t.TempDir())
	t.Setenv("MEMORY_ENGINE_SUMMARIZATION_ENABLED", "false")
	t.Setenv("MEMORY_ENGINE_AUTO_CLEANUP_ENABLED", "false")
	t.Setenv("MEMORY_ENGINE_VECTOR_REBUILD__MODE", "manual")

	cfg, err := config.Load(true)
	require.NoError(t, err)
	e, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

func TestPersonaIsCachedAcrossCalls(t *testing.T) {
	e := newTestEngine(t)
	p1, err := e.Persona("nilou")
	require.NoError(t, err)
	p2, err := e.Persona("nilou")
	require.NoError(t, err)
	require.Same(t, p1, p2)
}

func TestPersonaIsolatesStores(t *testing.T) {
	e := newTestEngine(t)
	a, err := e.Persona("nilou")
	require.NoError(t, err)
	b, err := e.Persona("furina")
	require.NoError(t, err)
	require.NotSame(t, a.DB, b.DB)
}

func TestCloseDrainsAndClosesStores(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Persona("nilou")
	require.NoError(t, err)
	require.NoError(t, e.Close())
}
