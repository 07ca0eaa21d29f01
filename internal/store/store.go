package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/asg017/sqlite-vec-go-bindings/ncruces"
	_ "github.com/ncruces/go-sqlite3/driver"

	"github.com/solidlime/memoryengine/internal/cache"
)

// DB is the embedded single-writer relational store for one persona (C2).
// One DB per persona's memory.sqlite; callers serialize writes through mu.
type DB struct {
	mu    sync.Mutex
	sqldb *sql.DB
	cache *cache.TTLCache
}

const timeLayout = time.RFC3339Nano

// Open opens (creating if absent) the SQLite file at path and reconciles
// its schema: missing tables are created, missing memories columns are
// added in place. Open failures are fatal for the persona (§4.2).
func Open(path string) (*DB, error) {
	sqldb, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("store: opening %s: %w", path, err)
	}
	if _, err := sqldb.Exec(baseSchema); err != nil {
		sqldb.Close()
		return nil, fmt.Errorf("store: creating schema: %w", err)
	}
	if err := reconcileMemoriesColumns(sqldb); err != nil {
		sqldb.Close()
		return nil, err
	}
	return &DB{
		sqldb: sqldb,
		cache: cache.New(5*time.Minute, 512),
	}, nil
}

// Close releases the underlying SQLite connection.
func (d *DB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sqldb.Close()
}

// SQL exposes the underlying *sql.DB so the vector index adapter (C3) can
// create its vec0 virtual table and shadow payload table in the same
// SQLite file, sharing this store's connection rather than opening a
// second one against the same path.
func (d *DB) SQL() *sql.DB {
	return d.sqldb
}

// Lock/Unlock expose the persona write-serialization mutex so the vector
// index adapter's upsert/delete can participate in the same per-persona
// critical section as C2 writes when the two must be consistent (e.g.
// during a full rebuild).
func (d *DB) Lock()   { d.mu.Lock() }
func (d *DB) Unlock() { d.mu.Unlock() }

// Upsert inserts or replaces a memory row by key. Importance and
// EmotionIntensity are clamped to [0,1]; list/map fields serialize as
// compact JSON (§4.2).
func (d *DB) Upsert(rec *MemoryRecord) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	rec.Importance = clampUnit(rec.Importance)
	rec.EmotionIntensity = clampUnit(rec.EmotionIntensity)

	tagsJSON, err := json.Marshal(nonNilStrings(rec.Tags))
	if err != nil {
		return fmt.Errorf("store: marshaling tags: %w", err)
	}
	relatedJSON, err := json.Marshal(nonNilStrings(rec.RelatedKeys))
	if err != nil {
		return fmt.Errorf("store: marshaling related_keys: %w", err)
	}
	equipped := rec.EquippedItems
	if equipped == nil {
		equipped = map[string]string{}
	}
	equippedJSON, err := json.Marshal(equipped)
	if err != nil {
		return fmt.Errorf("store: marshaling equipped_items: %w", err)
	}

	var lastAccessed any
	if rec.LastAccessed != nil {
		lastAccessed = rec.LastAccessed.UTC().Format(timeLayout)
	}
	var summaryRef any
	if rec.SummaryRef != nil {
		summaryRef = *rec.SummaryRef
	}

	_, err = d.sqldb.Exec(`
		INSERT INTO memories (
			key, content, created_at, updated_at, tags, importance, emotion,
			emotion_intensity, physical_state, mental_state, environment,
			relationship_status, action_tag, related_keys, summary_ref,
			equipped_items, access_count, last_accessed, privacy_level
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(key) DO UPDATE SET
			content=excluded.content, created_at=excluded.created_at, updated_at=excluded.updated_at,
			tags=excluded.tags, importance=excluded.importance,
			emotion=excluded.emotion, emotion_intensity=excluded.emotion_intensity,
			physical_state=excluded.physical_state, mental_state=excluded.mental_state,
			environment=excluded.environment, relationship_status=excluded.relationship_status,
			action_tag=excluded.action_tag, related_keys=excluded.related_keys,
			summary_ref=excluded.summary_ref, equipped_items=excluded.equipped_items,
			access_count=excluded.access_count, last_accessed=excluded.last_accessed,
			privacy_level=excluded.privacy_level
	`,
		rec.Key, rec.Content, rec.CreatedAt.UTC().Format(timeLayout), rec.UpdatedAt.UTC().Format(timeLayout),
		string(tagsJSON), rec.Importance, rec.Emotion, rec.EmotionIntensity,
		orDefault(rec.PhysicalState, DefaultPhysicalState), orDefault(rec.MentalState, DefaultMentalState),
		orDefault(rec.Environment, DefaultEnvironment), orDefault(rec.RelationshipStatus, DefaultRelationshipStatus),
		rec.ActionTag, string(relatedJSON), summaryRef, string(equippedJSON),
		rec.AccessCount, lastAccessed, orDefault(rec.PrivacyLevel, DefaultPrivacyLevel),
	)
	if err != nil {
		return fmt.Errorf("store: upserting %s: %w", rec.Key, err)
	}
	d.cache.Clear()
	return nil
}

// Get fetches one memory row by key, or (nil, nil) if absent.
func (d *DB) Get(key string) (*MemoryRecord, error) {
	if cached, ok := d.cache.Get("get:" + key); ok {
		rec, _ := cached.(*MemoryRecord)
		return rec, nil
	}

	d.mu.Lock()
	row := d.sqldb.QueryRow(`SELECT `+memoryColumnsSQL+` FROM memories WHERE key = ?`, key)
	rec, err := scanMemoryRow(row)
	d.mu.Unlock()

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get %s: %w", key, err)
	}
	d.cache.Set("get:"+key, rec)
	return rec, nil
}

// Delete removes a memory row by key. Idempotent: deleting an absent key
// succeeds with no error (§4.2, testable property 4).
func (d *DB) Delete(key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := d.sqldb.Exec(`DELETE FROM memories WHERE key = ?`, key); err != nil {
		return fmt.Errorf("store: delete %s: %w", key, err)
	}
	d.cache.Clear()
	return nil
}

// LoadAll reads every memory row into an in-memory snapshot keyed by key.
// Used by the vector rebuilder and as a warm cache (§4.2).
func (d *DB) LoadAll() (map[string]*MemoryRecord, error) {
	d.mu.Lock()
	rows, err := d.sqldb.Query(`SELECT ` + memoryColumnsSQL + ` FROM memories`)
	d.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("store: load_all: %w", err)
	}
	defer rows.Close()

	out := make(map[string]*MemoryRecord)
	for rows.Next() {
		rec, err := scanMemoryRow(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scanning row: %w", err)
		}
		out[rec.Key] = rec
	}
	return out, rows.Err()
}

// RecentKeys returns up to n keys ordered by created_at desc.
func (d *DB) RecentKeys(n int) ([]string, error) {
	d.mu.Lock()
	rows, err := d.sqldb.Query(`SELECT key FROM memories ORDER BY created_at DESC LIMIT ?`, n)
	d.mu.Unlock()
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

// Count returns the number of memory rows.
func (d *DB) Count() (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var n int
	err := d.sqldb.QueryRow(`SELECT COUNT(*) FROM memories`).Scan(&n)
	return n, err
}

// SumContentChars returns the total character count across all memory content.
func (d *DB) SumContentChars() (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var n sql.NullInt64
	err := d.sqldb.QueryRow(`SELECT SUM(LENGTH(content)) FROM memories`).Scan(&n)
	if err != nil {
		return 0, err
	}
	return n.Int64, nil
}

// AppendOpLog writes an audit-log row. Never fails the caller: a failed
// insert is discarded silently and is not logged anywhere (§4.2, §7).
func (d *DB) AppendOpLog(entry OperationLogEntry) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, _ = d.sqldb.Exec(`
		INSERT INTO operations (timestamp, operation, key, before_image, after_image, success, error, metadata)
		VALUES (?,?,?,?,?,?,?,?)
	`, entry.Timestamp.UTC().Format(timeLayout), entry.Operation, entry.Key,
		entry.Before, entry.After, boolToInt(entry.Success), entry.Error, entry.Metadata)
}

// AppendPhysicalSensations inserts a timestamped, non-mutating history row.
func (d *DB) AppendPhysicalSensations(e PhysicalSensationEntry) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.sqldb.Exec(`
		INSERT INTO physical_sensations_history
			(timestamp, memory_key, fatigue, warmth, arousal, touch_response, heart_rate_metaphor)
		VALUES (?,?,?,?,?,?,?)
	`, e.Timestamp.UTC().Format(timeLayout), e.MemoryKey, e.Fatigue, e.Warmth, e.Arousal, e.TouchResponse, e.HeartRateMetaphor)
	return err
}

// AppendEmotion inserts a timestamped, non-mutating history row.
func (d *DB) AppendEmotion(e EmotionEntry) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.sqldb.Exec(`
		INSERT INTO emotion_history (timestamp, memory_key, emotion, emotion_intensity)
		VALUES (?,?,?,?)
	`, e.Timestamp.UTC().Format(timeLayout), e.MemoryKey, e.Emotion, e.EmotionIntensity)
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

const memoryColumnsSQL = `key, content, created_at, updated_at, tags, importance, emotion,
	emotion_intensity, physical_state, mental_state, environment,
	relationship_status, action_tag, related_keys, summary_ref,
	equipped_items, access_count, last_accessed, privacy_level`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMemoryRow(row rowScanner) (*MemoryRecord, error) {
	var rec MemoryRecord
	var createdAt, updatedAt string
	var tagsJSON, relatedJSON, equippedJSON string
	var summaryRef sql.NullString
	var lastAccessed sql.NullString

	err := row.Scan(
		&rec.Key, &rec.Content, &createdAt, &updatedAt, &tagsJSON, &rec.Importance, &rec.Emotion,
		&rec.EmotionIntensity, &rec.PhysicalState, &rec.MentalState, &rec.Environment,
		&rec.RelationshipStatus, &rec.ActionTag, &relatedJSON, &summaryRef,
		&equippedJSON, &rec.AccessCount, &lastAccessed, &rec.PrivacyLevel,
	)
	if err != nil {
		return nil, err
	}

	rec.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	rec.UpdatedAt, _ = time.Parse(timeLayout, updatedAt)
	_ = json.Unmarshal([]byte(tagsJSON), &rec.Tags)
	_ = json.Unmarshal([]byte(relatedJSON), &rec.RelatedKeys)
	_ = json.Unmarshal([]byte(equippedJSON), &rec.EquippedItems)
	if summaryRef.Valid {
		v := summaryRef.String
		rec.SummaryRef = &v
	}
	if lastAccessed.Valid {
		t, err := time.Parse(timeLayout, lastAccessed.String)
		if err == nil {
			rec.LastAccessed = &t
		}
	}
	return &rec, nil
}
