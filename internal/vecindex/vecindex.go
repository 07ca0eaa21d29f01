package vecindex

import (
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// Index wraps one persona's vec0 virtual table plus a companion shadow
// payload table (vec0 rows only carry the vector and a rowid; everything
// searchable — key, content, metadata — lives in the shadow table,
// joined by point id). Created lazily at first Upsert with the embedding
// model's dimension, per §4.3.
type Index struct {
	db   *sql.DB
	name string // collection name = <prefix><persona>
	dim  int
}

// Doc is one payload row returned by a search.
type Doc struct {
	Key      string
	Content  string
	Metadata map[string]string
}

// Candidate is a (document, distance) pair, distance = 1 - cosine
// similarity so smaller is better, uniform with §4.5's comparisons.
type Candidate struct {
	Doc      Doc
	Distance float64
}

// Open returns an Index bound to db (the same *sql.DB as the persona's
// durable store, so the vec0 table and the memories table live in one
// SQLite file) under the given collection name. The vec0 table itself is
// created lazily on first Upsert, once the embedding dimension is known.
func Open(db *sql.DB, name string) *Index {
	ix := &Index{db: db, name: name}
	// Pick up the dimension of a collection created by an earlier Open.
	_ = db.QueryRow(`SELECT dim FROM vecindex_meta WHERE collection = ?`, name).Scan(&ix.dim)
	return ix
}

func (ix *Index) vecTable() string    { return quoteIdent("vec_" + ix.name) }
func (ix *Index) shadowTable() string { return quoteIdent("vecpayload_" + ix.name) }

// quoteIdent double-quotes a SQL identifier, doubling any embedded quote
// per standard SQL escaping (collection names are sanitized persona
// strings, never raw external input, but this keeps table construction
// correct regardless).
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// ensureTables creates the vec0 virtual table and shadow payload table if
// absent, or recreates the vec0 table when dim has changed from what it
// was created with (§4.3's collection-recreate-on-dimension-change).
func (ix *Index) ensureTables(dim int) error {
	if ix.dim == dim && ix.dim != 0 {
		return nil
	}

	var currentDim int
	row := ix.db.QueryRow(`SELECT dim FROM vecindex_meta WHERE collection = ?`, ix.name)
	_ = row.Scan(&currentDim)

	if _, err := ix.db.Exec(`CREATE TABLE IF NOT EXISTS vecindex_meta (
		collection TEXT PRIMARY KEY,
		dim INTEGER NOT NULL
	)`); err != nil {
		return fmt.Errorf("vecindex: creating meta table: %w", err)
	}

	if currentDim != 0 && currentDim != dim {
		if _, err := ix.db.Exec(fmt.Sprintf(`DROP TABLE IF EXISTS %s`, ix.vecTable())); err != nil {
			return fmt.Errorf("vecindex: dropping stale vec table: %w", err)
		}
		if _, err := ix.db.Exec(fmt.Sprintf(`DROP TABLE IF EXISTS %s`, ix.shadowTable())); err != nil {
			return fmt.Errorf("vecindex: dropping stale shadow table: %w", err)
		}
	}

	createVec := fmt.Sprintf(`CREATE VIRTUAL TABLE IF NOT EXISTS %s USING vec0(embedding float[%d] distance_metric=cosine)`, ix.vecTable(), dim)
	if _, err := ix.db.Exec(createVec); err != nil {
		return fmt.Errorf("vecindex: creating vec0 table: %w", err)
	}

	createShadow := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		point_id INTEGER PRIMARY KEY,
		key TEXT NOT NULL UNIQUE,
		content TEXT NOT NULL,
		metadata TEXT NOT NULL
	)`, ix.shadowTable())
	if _, err := ix.db.Exec(createShadow); err != nil {
		return fmt.Errorf("vecindex: creating shadow table: %w", err)
	}

	if _, err := ix.db.Exec(
		`INSERT INTO vecindex_meta(collection, dim) VALUES (?, ?)
		 ON CONFLICT(collection) DO UPDATE SET dim = excluded.dim`,
		ix.name, dim,
	); err != nil {
		return fmt.Errorf("vecindex: recording dimension: %w", err)
	}

	ix.dim = dim
	return nil
}

// Upsert computes nothing itself (the caller supplies the already-embedded
// vector); it stores the point and payload, safe to call repeatedly for
// the same key (§4.3).
func (ix *Index) Upsert(key string, vec []float32, content string, metadata map[string]string) error {
	if err := ix.ensureTables(len(vec)); err != nil {
		return err
	}
	pointID := KeyToPointID(key)

	blob, err := serializeFloat32(vec)
	if err != nil {
		return fmt.Errorf("vecindex: serializing vector: %w", err)
	}
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("vecindex: marshaling metadata: %w", err)
	}

	tx, err := ix.db.Begin()
	if err != nil {
		return fmt.Errorf("vecindex: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(fmt.Sprintf(`DELETE FROM %s WHERE rowid = ?`, ix.vecTable()), pointID); err != nil {
		return fmt.Errorf("vecindex: clearing stale point: %w", err)
	}
	if _, err := tx.Exec(fmt.Sprintf(`INSERT INTO %s(rowid, embedding) VALUES (?, ?)`, ix.vecTable()), pointID, blob); err != nil {
		return fmt.Errorf("vecindex: inserting point: %w", err)
	}
	if _, err := tx.Exec(fmt.Sprintf(`INSERT INTO %s(point_id, key, content, metadata) VALUES (?, ?, ?, ?)
		ON CONFLICT(point_id) DO UPDATE SET key = excluded.key, content = excluded.content, metadata = excluded.metadata`,
		ix.shadowTable()), pointID, key, content, string(metaJSON)); err != nil {
		return fmt.Errorf("vecindex: upserting payload: %w", err)
	}
	return tx.Commit()
}

// Delete removes points by key, idempotent (§4.3).
func (ix *Index) Delete(keys []string) error {
	if ix.dim == 0 {
		return nil // collection never created; nothing to delete
	}
	tx, err := ix.db.Begin()
	if err != nil {
		return fmt.Errorf("vecindex: begin tx: %w", err)
	}
	defer tx.Rollback()
	for _, key := range keys {
		pointID := KeyToPointID(key)
		if _, err := tx.Exec(fmt.Sprintf(`DELETE FROM %s WHERE rowid = ?`, ix.vecTable()), pointID); err != nil {
			return fmt.Errorf("vecindex: deleting point: %w", err)
		}
		if _, err := tx.Exec(fmt.Sprintf(`DELETE FROM %s WHERE point_id = ?`, ix.shadowTable()), pointID); err != nil {
			return fmt.Errorf("vecindex: deleting payload: %w", err)
		}
	}
	return tx.Commit()
}

// SearchByVector returns up to k (document, distance) pairs nearest to
// vec. Tolerant of an empty/uncreated collection: returns an empty list,
// never an error (§4.3).
func (ix *Index) SearchByVector(vec []float32, k int) ([]Candidate, error) {
	if ix.dim == 0 {
		return nil, nil
	}
	blob, err := serializeFloat32(vec)
	if err != nil {
		return nil, fmt.Errorf("vecindex: serializing query vector: %w", err)
	}

	rows, err := ix.db.Query(fmt.Sprintf(
		`SELECT v.rowid, v.distance, p.key, p.content, p.metadata
		 FROM %s v JOIN %s p ON p.point_id = v.rowid
		 WHERE v.embedding MATCH ? AND k = ?
		 ORDER BY v.distance`,
		ix.vecTable(), ix.shadowTable(),
	), blob, k)
	if err != nil {
		return nil, fmt.Errorf("vecindex: searching: %w", err)
	}
	defer rows.Close()

	var out []Candidate
	for rows.Next() {
		var rowid int64
		var distance float64
		var key, content, metaJSON string
		if err := rows.Scan(&rowid, &distance, &key, &content, &metaJSON); err != nil {
			return nil, fmt.Errorf("vecindex: scanning result: %w", err)
		}
		var meta map[string]string
		_ = json.Unmarshal([]byte(metaJSON), &meta)
		out = append(out, Candidate{
			Doc:      Doc{Key: key, Content: content, Metadata: meta},
			Distance: distance,
		})
	}
	return out, rows.Err()
}

// Count returns the number of points currently stored, 0 if the
// collection was never created.
func (ix *Index) Count() (int, error) {
	if ix.dim == 0 {
		return 0, nil
	}
	var n int
	err := ix.db.QueryRow(fmt.Sprintf(`SELECT count(*) FROM %s`, ix.shadowTable())).Scan(&n)
	return n, err
}

// AllKeys returns the key of every stored point. Vectors are not returned:
// it never attempts to decode vec0's internal storage format.
func (ix *Index) AllKeys() ([]string, error) {
	if ix.dim == 0 {
		return nil, nil
	}
	rows, err := ix.db.Query(fmt.Sprintf(`SELECT key FROM %s`, ix.shadowTable()))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// serializeFloat32 encodes a []float32 as vec0's expected raw
// little-endian byte layout for a `float[N]` column.
func serializeFloat32(vec []float32) ([]byte, error) {
	buf := make([]byte, 4*len(vec))
	for i, f := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf, nil
}
