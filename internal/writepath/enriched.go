package writepath

import (
	"fmt"
	"strings"
)

// EnrichedTextInput carries the subset of a memory record's fields that
// feed the enriched-text builder.
type EnrichedTextInput struct {
	Content            string
	Tags               []string
	Emotion            string
	EmotionIntensity   float64
	ActionTag          string
	Environment        string
	PhysicalState      string
	MentalState        string
	RelationshipStatus string
}

// BuildEnrichedText appends structured annotations to raw content so the
// embedding captures metadata, ported field-for-field from
// _build_enriched_content. Only non-default values are annotated.
func BuildEnrichedText(in EnrichedTextInput) string {
	var b strings.Builder
	b.WriteString(in.Content)

	if len(in.Tags) > 0 {
		fmt.Fprintf(&b, "\n[Tags: %s]", strings.Join(in.Tags, ", "))
	}

	if in.Emotion != "" && in.Emotion != "neutral" {
		b.WriteString("\n[Emotion: ")
		b.WriteString(in.Emotion)
		if in.EmotionIntensity > 0.5 {
			fmt.Fprintf(&b, " (intensity: %.1f)", in.EmotionIntensity)
		}
		b.WriteString("]")
	}

	if in.ActionTag != "" {
		fmt.Fprintf(&b, "\n[Action: %s]", in.ActionTag)
	}

	if in.Environment != "" && in.Environment != "unknown" {
		fmt.Fprintf(&b, "\n[Environment: %s]", in.Environment)
	}

	var states []string
	if in.PhysicalState != "" && in.PhysicalState != "normal" {
		states = append(states, "physical:"+in.PhysicalState)
	}
	if in.MentalState != "" && in.MentalState != "calm" {
		states = append(states, "mental:"+in.MentalState)
	}
	if len(states) > 0 {
		fmt.Fprintf(&b, "\n[State: %s]", strings.Join(states, ", "))
	}

	if in.RelationshipStatus != "" && in.RelationshipStatus != "normal" {
		fmt.Fprintf(&b, "\n[Relationship: %s]", in.RelationshipStatus)
	}

	return b.String()
}
