package vecindex

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/asg017/sqlite-vec-go-bindings/ncruces"
	_ "github.com/ncruces/go-sqlite3/driver"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "memory.sqlite")
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestKeyToPointIDIsStable(t *testing.T) {
	a := KeyToPointID("memory_20260115120000")
	b := KeyToPointID("memory_20260115120000")
	require.Equal(t, a, b)

	c := KeyToPointID("memory_20260115120001")
	require.NotEqual(t, a, c)
}

func TestUpsertSearchDeleteRoundTrip(t *testing.T) {
	db := openTestDB(t)
	ix := Open(db, "alice")

	vecA := []float32{1, 0, 0, 0}
	vecB := []float32{0, 1, 0, 0}

	require.NoError(t, ix.Upsert("memory_a", vecA, "content a", map[string]string{"emotion": "joy"}))
	require.NoError(t, ix.Upsert("memory_b", vecB, "content b", map[string]string{"emotion": "calm"}))

	count, err := ix.Count()
	require.NoError(t, err)
	require.Equal(t, 2, count)

	results, err := ix.SearchByVector(vecA, 5)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	require.Equal(t, "memory_a", results[0].Doc.Key)
	require.InDelta(t, 0, results[0].Distance, 1e-6)

	require.NoError(t, ix.Delete([]string{"memory_a"}))
	count, err = ix.Count()
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestSearchOnEmptyCollectionNeverErrors(t *testing.T) {
	db := openTestDB(t)
	ix := Open(db, "empty-persona")

	results, err := ix.SearchByVector([]float32{1, 0}, 5)
	require.NoError(t, err)
	require.Empty(t, results)

	count, err := ix.Count()
	require.NoError(t, err)
	require.Equal(t, 0, count)
}

func TestUpsertIsIdempotentForSameKey(t *testing.T) {
	db := openTestDB(t)
	ix := Open(db, "bob")

	vec := []float32{1, 0, 0, 0}
	require.NoError(t, ix.Upsert("memory_x", vec, "first version", nil))
	require.NoError(t, ix.Upsert("memory_x", vec, "second version", nil))

	count, err := ix.Count()
	require.NoError(t, err)
	require.Equal(t, 1, count)

	keys, err := ix.AllKeys()
	require.NoError(t, err)
	require.Equal(t, []string{"memory_x"}, keys)
}
