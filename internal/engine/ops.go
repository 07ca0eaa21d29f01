package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/solidlime/memoryengine/internal/store"
	"github.com/solidlime/memoryengine/internal/writepath"
)

// CreateInput is the `memory` tool's `create` sub-operation payload (§6).
type CreateInput = writepath.CreateInput

// Create performs the full write-path contract (§4.6) for a new memory
// and records the attempt in the operation log (§3, §7: the op log is
// never fails-the-caller).
func (e *Engine) Create(ctx context.Context, persona string, in CreateInput) (*store.MemoryRecord, error) {
	p, err := e.Persona(persona)
	if err != nil {
		return nil, err
	}

	rec, err := p.Writer.Create(ctx, in)
	now := time.Now().In(e.Loc)
	if err != nil {
		p.DB.AppendOpLog(store.OperationLogEntry{
			Timestamp: now, Operation: "create", Key: in.Key,
			Success: false, Error: err.Error(),
		})
		return nil, err
	}

	p.markWrite(now)
	after, _ := json.Marshal(rec)
	p.DB.AppendOpLog(store.OperationLogEntry{
		Timestamp: now, Operation: "create", Key: rec.Key,
		After: string(after), Success: true,
	})
	return rec, nil
}

// Read fetches a memory by key, bumping its access_count/last_accessed
// best-effort (§7: never fails the read itself).
func (e *Engine) Read(ctx context.Context, persona, key string) (*store.MemoryRecord, error) {
	p, err := e.Persona(persona)
	if err != nil {
		return nil, err
	}
	rec, err := p.DB.Get(key)
	if err != nil {
		return nil, fmt.Errorf("engine: read %s: %w", key, err)
	}
	if rec == nil {
		return nil, nil
	}
	at := time.Now().In(e.Loc)
	if err := p.DB.IncrementAccessCount(key, at); err == nil {
		rec.AccessCount++
		rec.LastAccessed = &at
	}
	return rec, nil
}

// UpdateInput carries the optional fields a caller may change; nil/empty
// fields leave the existing value untouched.
type UpdateInput struct {
	Content            *string
	Tags               []string
	Importance         *float64
	Emotion            *string
	EmotionIntensity   *float64
	PhysicalState      *string
	MentalState        *string
	Environment        *string
	RelationshipStatus *string
	ActionTag          *string
	EquippedItems      map[string]string
	PrivacyLevel       *string
}

// Update mutates an existing memory row and enqueues the matching
// vector-index upsert under the same key/point id (§4.6).
func (e *Engine) Update(ctx context.Context, persona, key string, in UpdateInput) (*store.MemoryRecord, error) {
	p, err := e.Persona(persona)
	if err != nil {
		return nil, err
	}

	before, _ := p.DB.Get(key)
	var beforeJSON string
	if before != nil {
		b, _ := json.Marshal(before)
		beforeJSON = string(b)
	}

	rec, err := p.Writer.Update(ctx, key, func(r *store.MemoryRecord) {
		if in.Content != nil {
			r.Content = *in.Content
		}
		if in.Tags != nil {
			r.Tags = in.Tags
		}
		if in.Importance != nil {
			r.Importance = *in.Importance
		}
		if in.Emotion != nil {
			r.Emotion = *in.Emotion
		}
		if in.EmotionIntensity != nil {
			r.EmotionIntensity = *in.EmotionIntensity
		}
		if in.PhysicalState != nil {
			r.PhysicalState = *in.PhysicalState
		}
		if in.MentalState != nil {
			r.MentalState = *in.MentalState
		}
		if in.Environment != nil {
			r.Environment = *in.Environment
		}
		if in.RelationshipStatus != nil {
			r.RelationshipStatus = *in.RelationshipStatus
		}
		if in.ActionTag != nil {
			r.ActionTag = *in.ActionTag
		}
		if in.EquippedItems != nil {
			r.EquippedItems = in.EquippedItems
		}
		if in.PrivacyLevel != nil {
			r.PrivacyLevel = *in.PrivacyLevel
		}
	})
	now := time.Now().In(e.Loc)
	if err != nil {
		p.DB.AppendOpLog(store.OperationLogEntry{
			Timestamp: now, Operation: "update", Key: key, Before: beforeJSON,
			Success: false, Error: err.Error(),
		})
		return nil, err
	}
	p.markWrite(now)
	after, _ := json.Marshal(rec)
	p.DB.AppendOpLog(store.OperationLogEntry{
		Timestamp: now, Operation: "update", Key: key,
		Before: beforeJSON, After: string(after), Success: true,
	})
	return rec, nil
}

// Delete removes a memory row and enqueues the corresponding vector-index
// delete. Idempotent per §4.2/testable property 4.
func (e *Engine) Delete(ctx context.Context, persona, key string) error {
	p, err := e.Persona(persona)
	if err != nil {
		return err
	}
	before, _ := p.DB.Get(key)
	var beforeJSON string
	if before != nil {
		b, _ := json.Marshal(before)
		beforeJSON = string(b)
	}

	err = p.Writer.Delete(key)
	now := time.Now().In(e.Loc)
	p.DB.AppendOpLog(store.OperationLogEntry{
		Timestamp: now, Operation: "delete", Key: key, Before: beforeJSON,
		Success: err == nil, Error: errString(err),
	})
	if err != nil {
		return err
	}
	p.markWrite(now)
	return nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// Stats is the `memory` tool's `stats` sub-operation result (§6).
type Stats struct {
	MemoryCount     int
	TotalChars      int64
	VectorPoints    int
	VectorDirty     bool
	RecentKeys      []string
	ActivePromises  int
	ActiveGoals     int
}

// Stats reports cheap aggregate statistics over a persona's store (§4.2).
func (e *Engine) Stats(persona string) (*Stats, error) {
	p, err := e.Persona(persona)
	if err != nil {
		return nil, err
	}
	count, err := p.DB.Count()
	if err != nil {
		return nil, err
	}
	chars, err := p.DB.SumContentChars()
	if err != nil {
		return nil, err
	}
	points, err := p.Index.Count()
	if err != nil {
		return nil, err
	}
	recent, err := p.DB.RecentKeys(e.Config.RecentMemoriesCount)
	if err != nil {
		return nil, err
	}
	promises, err := p.DB.ListPromises(store.StatusActive)
	if err != nil {
		return nil, err
	}
	goals, err := p.DB.ListGoals(store.StatusActive)
	if err != nil {
		return nil, err
	}
	return &Stats{
		MemoryCount:    count,
		TotalChars:     chars,
		VectorPoints:   points,
		VectorDirty:    p.Queue.Dirty(),
		RecentKeys:     recent,
		ActivePromises: len(promises),
		ActiveGoals:    len(goals),
	}, nil
}

// RoutinePattern is one entry of the `check_routines` result: a
// recurring action/tag/content pattern recognized around the current
// hour, ported from routine_helpers.check_routines.
type RoutinePattern struct {
	Label         string
	Frequency     int
	LastOccurred  time.Time
	AvgImportance float64
}

// CheckRoutines groups the last 30 days of memories by (action_tag, or
// joined tags, or a content prefix) within currentHour±1, keeping groups
// with frequency >= 3, sorted by frequency desc then avg importance desc,
// truncated to topK (§6's `check_routines` sub-operation).
func (e *Engine) CheckRoutines(persona string, now time.Time, topK int) ([]RoutinePattern, error) {
	p, err := e.Persona(persona)
	if err != nil {
		return nil, err
	}
	all, err := p.DB.LoadAll()
	if err != nil {
		return nil, err
	}
	if topK <= 0 {
		topK = 5
	}

	cutoff := now.AddDate(0, 0, -30)
	nowHour := now.In(e.Loc).Hour()
	lowHour, highHour := nowHour-1, nowHour+1

	type group struct {
		label     string
		count     int
		last      time.Time
		impSum    float64
	}
	groups := make(map[string]*group)

	for _, rec := range all {
		if rec.CreatedAt.Before(cutoff) {
			continue
		}
		h := rec.CreatedAt.In(e.Loc).Hour()
		if h < lowHour || h > highHour {
			continue
		}
		label := routineLabel(rec)
		g, ok := groups[label]
		if !ok {
			g = &group{label: label}
			groups[label] = g
		}
		g.count++
		g.impSum += rec.Importance
		if rec.CreatedAt.After(g.last) {
			g.last = rec.CreatedAt
		}
	}

	var out []RoutinePattern
	for _, g := range groups {
		if g.count < 3 {
			continue
		}
		out = append(out, RoutinePattern{
			Label:         g.label,
			Frequency:     g.count,
			LastOccurred:  g.last,
			AvgImportance: g.impSum / float64(g.count),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Frequency != out[j].Frequency {
			return out[i].Frequency > out[j].Frequency
		}
		return out[i].AvgImportance > out[j].AvgImportance
	})
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

func routineLabel(rec *store.MemoryRecord) string {
	if rec.ActionTag != "" {
		return rec.ActionTag
	}
	if len(rec.Tags) > 0 {
		return strings.Join(rec.Tags, ",")
	}
	if len(rec.Content) > 20 {
		return rec.Content[:20]
	}
	return rec.Content
}
