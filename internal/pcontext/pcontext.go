// Package pcontext implements the Persona Context document (§3): a small
// JSON document per persona carrying current mood/state, the last
// conversation timestamp, favorites, active promise/goal, anniversaries,
// and a physical_sensations snapshot. Ported from
// original_source/core/persona_context.py's atomic write-to-temp-then-
// rename discipline, with one backup copy kept per persona.
package pcontext

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// PhysicalSensations is the snapshot embedded in the context document,
// matching the default shape from the original implementation.
type PhysicalSensations struct {
	Fatigue           float64 `json:"fatigue"`
	Warmth            float64 `json:"warmth"`
	Arousal           float64 `json:"arousal"`
	TouchResponse     string  `json:"touch_response"`
	HeartRateMetaphor string  `json:"heart_rate_metaphor"`
}

// Anniversary is one entry of the context document's surfaced anniversary
// list (populated from the Durable Store's Anniversaries method, §3).
type Anniversary struct {
	Key      string `json:"key"`
	Content  string `json:"content"`
	Kind     string `json:"kind"`
	YearsAgo int    `json:"years_ago"`
}

// Context is the full per-persona document (§3). Lifecycle: created on
// first access with schema defaults, updated on every tool call (timestamp
// refresh), deleted only by explicit persona removal (out of core scope).
type Context struct {
	UserName              string              `json:"user_name"`
	UserNickname          string              `json:"user_nickname,omitempty"`
	PreferredAddress      string              `json:"preferred_address,omitempty"`
	PersonaName           string              `json:"persona_name"`
	LastConversationTime  *time.Time          `json:"last_conversation_time,omitempty"`
	CurrentEmotion        string              `json:"current_emotion"`
	CurrentEmotionIntensity float64           `json:"current_emotion_intensity"`
	PhysicalState         string              `json:"physical_state"`
	MentalState           string              `json:"mental_state"`
	Environment           string              `json:"environment"`
	RelationshipStatus    string              `json:"relationship_status"`
	CurrentActionTag      string              `json:"current_action_tag,omitempty"`
	Favorites             []string            `json:"favorites"`
	ActivePromiseID       *int64              `json:"active_promise_id,omitempty"`
	ActiveGoalID          *int64              `json:"active_goal_id,omitempty"`
	Anniversaries         []Anniversary       `json:"anniversaries"`
	PhysicalSensations    PhysicalSensations  `json:"physical_sensations"`
}

// Default returns the schema-default context document for persona,
// mirroring load_persona_context's default_context literal.
func Default(persona string) Context {
	return Context{
		UserName:           "User",
		PersonaName:        persona,
		CurrentEmotion:     "neutral",
		PhysicalState:      "normal",
		MentalState:        "calm",
		Environment:        "unknown",
		RelationshipStatus: "normal",
		Favorites:          []string{},
		Anniversaries:      []Anniversary{},
		PhysicalSensations: PhysicalSensations{
			Fatigue:           0.0,
			Warmth:            0.5,
			Arousal:           0.0,
			TouchResponse:     "normal",
			HeartRateMetaphor: "calm",
		},
	}
}

// lockRegistry serializes writes per context path — the Go equivalent of
// the original's per-persona threading.Lock dict, keyed by path rather
// than persona string since callers already resolve the path via C1.
var (
	locksMu sync.Mutex
	locks   = map[string]*sync.Mutex{}
)

func lockFor(path string) *sync.Mutex {
	locksMu.Lock()
	defer locksMu.Unlock()
	l, ok := locks[path]
	if !ok {
		l = &sync.Mutex{}
		locks[path] = l
	}
	return l
}

// Load reads the context document at path, creating it with Default(persona)
// contents if absent.
func Load(path, persona string) (Context, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			def := Default(persona)
			if saveErr := Save(path, def); saveErr != nil {
				return def, saveErr
			}
			return def, nil
		}
		return Context{}, err
	}
	var ctx Context
	if err := json.Unmarshal(data, &ctx); err != nil {
		return Default(persona), nil
	}
	return ctx, nil
}

// Save atomically writes ctx to path: marshal to <path>.tmp, copy the
// existing file (if any) to <path>.backup, then rename the temp file into
// place. Matches save_persona_context's write-to-temp-then-replace
// discipline exactly (§3, Open Question: behavior on partial failure
// mid-rename is made atomic here via os.Rename, which POSIX guarantees is
// atomic within the same filesystem).
func Save(path string, ctx Context) error {
	lock := lockFor(path)
	lock.Lock()
	defer lock.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(ctx, "", "  ")
	if err != nil {
		return err
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return err
	}

	if existing, err := os.ReadFile(path); err == nil {
		_ = os.WriteFile(path+".backup", existing, 0o644)
	}

	return os.Rename(tmpPath, path)
}

// TouchLastConversationTime refreshes the last-conversation timestamp —
// called at the start of every tool operation, per the original's
// update_last_conversation_time.
func TouchLastConversationTime(path, persona string, at time.Time) error {
	ctx, err := Load(path, persona)
	if err != nil {
		return err
	}
	ctx.LastConversationTime = &at
	return Save(path, ctx)
}
