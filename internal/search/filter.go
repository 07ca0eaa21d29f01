package search

import (
	"strings"
	"time"

	"github.com/solidlime/memoryengine/internal/privacy"
	"github.com/solidlime/memoryengine/internal/store"
)

// TagMode selects set-membership semantics for the Tags filter (§4.5).
type TagMode int

const (
	TagAny TagMode = iota
	TagAll
)

// Filter is the full metadata filter language from §4.5: any combination
// may be applied as a post-filter (or pushed into the vector index where
// expressible — this module always applies it as a post-filter, since the
// vec0 shadow table does not support arbitrary predicate pushdown).
type Filter struct {
	DateQuery          string // raw expression, parsed via ParseDateQuery
	MinImportance       float64
	Emotion             string
	ActionTag           string
	Environment         string
	PhysicalState       string
	MentalState         string
	RelationshipStatus  string
	EquippedItemSubstr  string
	Tags                []string
	TagMode             TagMode
	MemoryKey           string
	SearchMaxLevel      string
	IncludeSecret       bool
}

// Matches reports whether a memory record satisfies every active predicate
// in f. An empty field in f is treated as "unset" and never excludes.
func (f Filter) Matches(r store.MemoryRecord, now time.Time) bool {
	if f.DateQuery != "" {
		start, end, err := ParseDateQuery(f.DateQuery, now)
		if err != nil {
			return false
		}
		if r.CreatedAt.Before(start) || r.CreatedAt.After(end) {
			return false
		}
	}
	if f.MinImportance > 0 && r.Importance < f.MinImportance {
		return false
	}
	if f.Emotion != "" && !strings.EqualFold(r.Emotion, f.Emotion) {
		return false
	}
	if f.ActionTag != "" && !strings.EqualFold(r.ActionTag, f.ActionTag) {
		return false
	}
	if f.Environment != "" && !strings.EqualFold(r.Environment, f.Environment) {
		return false
	}
	if f.PhysicalState != "" && !strings.EqualFold(r.PhysicalState, f.PhysicalState) {
		return false
	}
	if f.MentalState != "" && !strings.EqualFold(r.MentalState, f.MentalState) {
		return false
	}
	if f.RelationshipStatus != "" && !strings.EqualFold(r.RelationshipStatus, f.RelationshipStatus) {
		return false
	}
	if f.MemoryKey != "" && r.Key != f.MemoryKey {
		return false
	}
	if f.EquippedItemSubstr != "" {
		needle := strings.ToLower(f.EquippedItemSubstr)
		found := false
		for _, item := range r.EquippedItems {
			if strings.Contains(strings.ToLower(item), needle) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.SearchMaxLevel != "" && !privacy.Allowed(r.PrivacyLevel, f.SearchMaxLevel, f.IncludeSecret) {
		return false
	}
	if len(f.Tags) > 0 {
		have := make(map[string]bool, len(r.Tags))
		for _, t := range r.Tags {
			have[strings.ToLower(t)] = true
		}
		switch f.TagMode {
		case TagAll:
			for _, want := range f.Tags {
				if !have[strings.ToLower(want)] {
					return false
				}
			}
		default: // TagAny
			any := false
			for _, want := range f.Tags {
				if have[strings.ToLower(want)] {
					any = true
					break
				}
			}
			if !any {
				return false
			}
		}
	}
	return true
}
