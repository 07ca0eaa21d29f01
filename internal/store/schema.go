package store

import (
	"database/sql"
	"fmt"
)

// baseSchema creates every table except the evolvable memories columns,
// which are reconciled separately by reconcileMemoriesColumns so that
// opening an older database never loses data (§4.2, Design Notes
// "Schema evolution by column-add").
const baseSchema = `
CREATE TABLE IF NOT EXISTS memories (
    key TEXT PRIMARY KEY,
    content TEXT NOT NULL,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_memories_created ON memories(created_at);

CREATE TABLE IF NOT EXISTS operations (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp TEXT NOT NULL,
    operation TEXT NOT NULL,
    key TEXT,
    before_image TEXT,
    after_image TEXT,
    success INTEGER NOT NULL,
    error TEXT,
    metadata TEXT
);
CREATE INDEX IF NOT EXISTS idx_operations_key ON operations(key);

CREATE TABLE IF NOT EXISTS physical_sensations_history (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp TEXT NOT NULL,
    memory_key TEXT,
    fatigue REAL,
    warmth REAL,
    arousal REAL,
    touch_response REAL,
    heart_rate_metaphor REAL
);

CREATE TABLE IF NOT EXISTS emotion_history (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp TEXT NOT NULL,
    memory_key TEXT,
    emotion TEXT,
    emotion_intensity REAL
);

CREATE TABLE IF NOT EXISTS promises (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    content TEXT NOT NULL,
    created_at TEXT NOT NULL,
    due_date TEXT,
    status TEXT NOT NULL DEFAULT 'active',
    priority INTEGER DEFAULT 0,
    notes TEXT,
    completed_at TEXT
);

CREATE TABLE IF NOT EXISTS goals (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    content TEXT NOT NULL,
    created_at TEXT NOT NULL,
    target_date TEXT,
    status TEXT NOT NULL DEFAULT 'active',
    priority INTEGER DEFAULT 0,
    progress INTEGER DEFAULT 0,
    notes TEXT,
    completed_at TEXT
);

CREATE TABLE IF NOT EXISTS memory_blocks (
    name TEXT PRIMARY KEY,
    content TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

-- Bitemporal: current value for a field is the row with valid_until IS NULL.
CREATE TABLE IF NOT EXISTS user_state_history (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    field TEXT NOT NULL,
    value TEXT NOT NULL,
    valid_from TEXT NOT NULL,
    valid_until TEXT
);
CREATE INDEX IF NOT EXISTS idx_user_state_field ON user_state_history(field, valid_until);
`

// memoryColumn describes one evolvable column of the memories table: its
// name, its SQL type+default for ALTER TABLE ADD COLUMN, matching the
// donor's incremental-migration idiom generalized into a data table instead
// of a hand-written if-chain.
type memoryColumn struct {
	name       string
	ddl        string // fragment after the column name, e.g. "REAL NOT NULL DEFAULT 0.5"
}

// evolvableColumns lists every memories column beyond the four created by
// baseSchema, in the order they would have been introduced historically.
// Reconciliation adds whichever of these are missing from an existing file.
var evolvableColumns = []memoryColumn{
	{"tags", "TEXT NOT NULL DEFAULT '[]'"},
	{"importance", "REAL NOT NULL DEFAULT 0.5"},
	{"emotion", "TEXT NOT NULL DEFAULT ''"},
	{"emotion_intensity", "REAL NOT NULL DEFAULT 0"},
	{"physical_state", "TEXT NOT NULL DEFAULT 'normal'"},
	{"mental_state", "TEXT NOT NULL DEFAULT 'calm'"},
	{"environment", "TEXT NOT NULL DEFAULT 'unknown'"},
	{"relationship_status", "TEXT NOT NULL DEFAULT 'normal'"},
	{"action_tag", "TEXT NOT NULL DEFAULT ''"},
	{"related_keys", "TEXT NOT NULL DEFAULT '[]'"},
	{"summary_ref", "TEXT"},
	{"equipped_items", "TEXT NOT NULL DEFAULT '{}'"},
	{"access_count", "INTEGER NOT NULL DEFAULT 0"},
	{"last_accessed", "TEXT"},
	{"privacy_level", "TEXT NOT NULL DEFAULT 'internal'"},
}

// reconcileMemoriesColumns enumerates the memories table's current columns
// via PRAGMA table_info and adds any of evolvableColumns that are missing,
// each inside its own ALTER TABLE statement (SQLite forbids adding more
// than one column per statement), all within one transaction. Never
// destructive: existing columns and rows are untouched.
func reconcileMemoriesColumns(db *sql.DB) error {
	rows, err := db.Query(`PRAGMA table_info(memories)`)
	if err != nil {
		return fmt.Errorf("store: reading memories schema: %w", err)
	}
	existing := make(map[string]bool)
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			rows.Close()
			return fmt.Errorf("store: scanning table_info: %w", err)
		}
		existing[name] = true
	}
	if err := rows.Err(); err != nil {
		return err
	}
	rows.Close()

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("store: beginning schema migration: %w", err)
	}
	defer tx.Rollback()
	for _, col := range evolvableColumns {
		if existing[col.name] {
			continue
		}
		stmt := fmt.Sprintf(`ALTER TABLE memories ADD COLUMN %s %s`, col.name, col.ddl)
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("store: adding column %s: %w", col.name, err)
		}
	}
	return tx.Commit()
}
