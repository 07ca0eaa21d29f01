package store

import (
	"database/sql"
	"fmt"
	"time"
)

func timePtrToSQL(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(timeLayout)
}

func sqlToTimePtr(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t, err := time.Parse(timeLayout, s.String)
	if err != nil {
		return nil
	}
	return &t
}

// CreatePromise inserts a new promise and returns its assigned id.
func (d *DB) CreatePromise(p *Promise) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if p.Status == "" {
		p.Status = StatusActive
	}
	res, err := d.sqldb.Exec(`
		INSERT INTO promises (content, created_at, due_date, status, priority, notes, completed_at)
		VALUES (?,?,?,?,?,?,?)
	`, p.Content, p.CreatedAt.UTC().Format(timeLayout), timePtrToSQL(p.DueDate), p.Status, p.Priority, p.Notes, timePtrToSQL(p.CompletedAt))
	if err != nil {
		return 0, fmt.Errorf("store: create promise: %w", err)
	}
	return res.LastInsertId()
}

// UpdatePromiseStatus transitions a promise's status.
func (d *DB) UpdatePromiseStatus(id int64, status string, at time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var completedAt any
	if status == StatusCompleted {
		completedAt = at.UTC().Format(timeLayout)
	}
	_, err := d.sqldb.Exec(`UPDATE promises SET status = ?, completed_at = ? WHERE id = ?`, status, completedAt, id)
	return err
}

// ListPromises returns promises, optionally filtered by status ("" = all).
func (d *DB) ListPromises(status string) ([]*Promise, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	query := `SELECT id, content, created_at, due_date, status, priority, notes, completed_at FROM promises`
	args := []any{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := d.sqldb.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Promise
	for rows.Next() {
		var p Promise
		var createdAt string
		var dueDate, completedAt sql.NullString
		if err := rows.Scan(&p.ID, &p.Content, &createdAt, &dueDate, &p.Status, &p.Priority, &p.Notes, &completedAt); err != nil {
			return nil, err
		}
		p.CreatedAt, _ = time.Parse(timeLayout, createdAt)
		p.DueDate = sqlToTimePtr(dueDate)
		p.CompletedAt = sqlToTimePtr(completedAt)
		out = append(out, &p)
	}
	return out, rows.Err()
}

// CreateGoal inserts a new goal and returns its assigned id.
func (d *DB) CreateGoal(g *Goal) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if g.Status == "" {
		g.Status = StatusActive
	}
	res, err := d.sqldb.Exec(`
		INSERT INTO goals (content, created_at, target_date, status, priority, progress, notes, completed_at)
		VALUES (?,?,?,?,?,?,?,?)
	`, g.Content, g.CreatedAt.UTC().Format(timeLayout), timePtrToSQL(g.TargetDate), g.Status, g.Priority, g.Progress, g.Notes, timePtrToSQL(g.CompletedAt))
	if err != nil {
		return 0, fmt.Errorf("store: create goal: %w", err)
	}
	return res.LastInsertId()
}

// UpdateGoalProgress sets progress on a goal. Progress >= 100 auto-transitions
// status to completed and stamps completed_at (§3).
func (d *DB) UpdateGoalProgress(id int64, progress int, at time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	status := StatusActive
	var completedAt any
	if progress >= 100 {
		progress = 100
		status = StatusCompleted
		completedAt = at.UTC().Format(timeLayout)
	}
	_, err := d.sqldb.Exec(`
		UPDATE goals SET progress = ?, status = ?, completed_at = COALESCE(completed_at, ?) WHERE id = ?
	`, progress, status, completedAt, id)
	return err
}

// ListGoals returns goals, optionally filtered by status ("" = all).
func (d *DB) ListGoals(status string) ([]*Goal, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	query := `SELECT id, content, created_at, target_date, status, priority, progress, notes, completed_at FROM goals`
	args := []any{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := d.sqldb.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Goal
	for rows.Next() {
		var g Goal
		var createdAt string
		var targetDate, completedAt sql.NullString
		if err := rows.Scan(&g.ID, &g.Content, &createdAt, &targetDate, &g.Status, &g.Priority, &g.Progress, &g.Notes, &completedAt); err != nil {
			return nil, err
		}
		g.CreatedAt, _ = time.Parse(timeLayout, createdAt)
		g.TargetDate = sqlToTimePtr(targetDate)
		g.CompletedAt = sqlToTimePtr(completedAt)
		out = append(out, &g)
	}
	return out, rows.Err()
}

// UpsertMemoryBlock writes a named always-in-context slot (§3). Upsert-only.
func (d *DB) UpsertMemoryBlock(name, content string, at time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.sqldb.Exec(`
		INSERT INTO memory_blocks (name, content, updated_at) VALUES (?,?,?)
		ON CONFLICT(name) DO UPDATE SET content = excluded.content, updated_at = excluded.updated_at
	`, name, content, at.UTC().Format(timeLayout))
	return err
}

// GetMemoryBlock fetches a named block, or (nil, nil) if absent.
func (d *DB) GetMemoryBlock(name string) (*MemoryBlock, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var b MemoryBlock
	var updatedAt string
	err := d.sqldb.QueryRow(`SELECT name, content, updated_at FROM memory_blocks WHERE name = ?`, name).
		Scan(&b.Name, &b.Content, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	b.UpdatedAt, _ = time.Parse(timeLayout, updatedAt)
	return &b, nil
}

// ListMemoryBlocks returns every always-in-context block.
func (d *DB) ListMemoryBlocks() ([]*MemoryBlock, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	rows, err := d.sqldb.Query(`SELECT name, content, updated_at FROM memory_blocks`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*MemoryBlock
	for rows.Next() {
		var b MemoryBlock
		var updatedAt string
		if err := rows.Scan(&b.Name, &b.Content, &updatedAt); err != nil {
			return nil, err
		}
		b.UpdatedAt, _ = time.Parse(timeLayout, updatedAt)
		out = append(out, &b)
	}
	return out, rows.Err()
}

// SetUserState writes a new bitemporal value for field: the prior current
// row (valid_until IS NULL) is closed at `at`, and a new row is inserted
// with valid_from = at, valid_until = NULL (§3, testable property 11).
func (d *DB) SetUserState(field, value string, at time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	tx, err := d.sqldb.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		UPDATE user_state_history SET valid_until = ? WHERE field = ? AND valid_until IS NULL
	`, at.UTC().Format(timeLayout), field); err != nil {
		return err
	}
	if _, err := tx.Exec(`
		INSERT INTO user_state_history (field, value, valid_from, valid_until) VALUES (?,?,?,NULL)
	`, field, value, at.UTC().Format(timeLayout)); err != nil {
		return err
	}
	return tx.Commit()
}

// CurrentUserState returns the current (valid_until IS NULL) value for field.
func (d *DB) CurrentUserState(field string) (*UserStateRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var r UserStateRecord
	var validFrom string
	err := d.sqldb.QueryRow(`
		SELECT field, value, valid_from FROM user_state_history WHERE field = ? AND valid_until IS NULL
	`, field).Scan(&r.Field, &r.Value, &validFrom)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r.ValidFrom, _ = time.Parse(timeLayout, validFrom)
	return &r, nil
}

// UserStateHistory returns every historical row for field, oldest first.
func (d *DB) UserStateHistory(field string) ([]*UserStateRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	rows, err := d.sqldb.Query(`
		SELECT field, value, valid_from, valid_until FROM user_state_history
		WHERE field = ? ORDER BY valid_from ASC
	`, field)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*UserStateRecord
	for rows.Next() {
		var r UserStateRecord
		var validFrom string
		var validUntil sql.NullString
		if err := rows.Scan(&r.Field, &r.Value, &validFrom, &validUntil); err != nil {
			return nil, err
		}
		r.ValidFrom, _ = time.Parse(timeLayout, validFrom)
		r.ValidUntil = sqlToTimePtr(validUntil)
		out = append(out, &r)
	}
	return out, rows.Err()
}
