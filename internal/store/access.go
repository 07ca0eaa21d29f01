package store

import (
	"time"
)

// IncrementAccessCount bumps access_count and refreshes last_accessed for a
// read. Best-effort per §7: the caller's read must not fail because of
// this (Open Question in the spec: not transactional with the read).
func (d *DB) IncrementAccessCount(key string, at time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.sqldb.Exec(`
		UPDATE memories SET access_count = access_count + 1, last_accessed = ?
		WHERE key = ?
	`, at.UTC().Format(timeLayout), key)
	if err == nil {
		d.cache.Clear()
	}
	return err
}

// Anniversaries groups memories by month-day and reports any whose
// created_at falls on the given month/day in a prior year, tagging
// "anniversary" (>=1 year), "milestone" (tagged as such), or "first_time"
// (the earliest memory on that month-day). Ported from the original
// Python implementation's get_anniversaries (supplemented feature, see
// SPEC_FULL.md).
type Anniversary struct {
	Key       string
	Content   string
	Kind      string // "anniversary" | "milestone" | "first_time"
	YearsAgo  int
}

func (d *DB) Anniversaries(today time.Time) ([]Anniversary, error) {
	all, err := d.LoadAll()
	if err != nil {
		return nil, err
	}
	md := today.Format("01-02")

	type candidate struct {
		rec *MemoryRecord
	}
	var byMonthDay []candidate
	for _, rec := range all {
		if rec.CreatedAt.Format("01-02") == md && rec.CreatedAt.Year() < today.Year() {
			byMonthDay = append(byMonthDay, candidate{rec})
		}
	}

	var earliestKey string
	var earliestTime time.Time
	for _, c := range byMonthDay {
		if earliestKey == "" || c.rec.CreatedAt.Before(earliestTime) {
			earliestKey = c.rec.Key
			earliestTime = c.rec.CreatedAt
		}
	}

	var out []Anniversary
	for _, c := range byMonthDay {
		kind := "anniversary"
		if c.rec.Key == earliestKey {
			kind = "first_time"
		} else if hasTag(c.rec.Tags, "milestone") {
			kind = "milestone"
		}
		out = append(out, Anniversary{
			Key:      c.rec.Key,
			Content:  c.rec.Content,
			Kind:     kind,
			YearsAgo: today.Year() - c.rec.CreatedAt.Year(),
		})
	}
	return out, nil
}

func hasTag(tags []string, want string) bool {
	for _, t := range tags {
		if t == want {
			return true
		}
	}
	return false
}
