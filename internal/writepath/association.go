package writepath

// SimilarMemory is one nearest-neighbor result consulted for association
// generation (§4.6 step 6), mirroring find_similar_memories's per-item
// shape.
type SimilarMemory struct {
	Key              string
	Emotion          string
	EmotionIntensity float64
}

// EmotionContext summarizes a set of similar memories' emotional profile,
// ported from calculate_emotion_context.
type EmotionContext struct {
	AverageIntensity float64
	DominantEmotion  string
	EmotionBoost     float64
}

// CalculateEmotionContext computes the average intensity, the
// most-frequent emotion label, and an importance boost (average
// intensity * 0.2, capped contribution) across similar memories.
func CalculateEmotionContext(similar []SimilarMemory) EmotionContext {
	if len(similar) == 0 {
		return EmotionContext{DominantEmotion: "neutral"}
	}

	var sum float64
	counts := make(map[string]int, len(similar))
	for _, m := range similar {
		sum += m.EmotionIntensity
		emotion := m.Emotion
		if emotion == "" {
			emotion = "neutral"
		}
		counts[emotion]++
	}
	avg := sum / float64(len(similar))

	dominant, best := "neutral", -1
	for _, m := range similar { // iterate in input order for a stable tie-break
		emotion := m.Emotion
		if emotion == "" {
			emotion = "neutral"
		}
		if counts[emotion] > best {
			best = counts[emotion]
			dominant = emotion
		}
	}

	return EmotionContext{
		AverageIntensity: avg,
		DominantEmotion:  dominant,
		EmotionBoost:     avg * 0.2,
	}
}

// GenerateAssociations derives the related_keys list and an
// importance-adjusted value for a new memory from its k=3 nearest
// neighbors (already excluding the new memory itself), per §4.6 step 6:
// the new memory's own emotion intensity contributes up to +0.2, and the
// neighbors' average intensity contributes up to another +0.2, capped so
// the result never exceeds 1.0.
func GenerateAssociations(similar []SimilarMemory, ownEmotionIntensity, baseImportance float64) (relatedKeys []string, adjustedImportance float64) {
	relatedKeys = make([]string, len(similar))
	for i, m := range similar {
		relatedKeys[i] = m.Key
	}

	ctx := CalculateEmotionContext(similar)
	adjustment := ownEmotionIntensity*0.2 + ctx.EmotionBoost
	adjustedImportance = baseImportance + adjustment
	if adjustedImportance > 1.0 {
		adjustedImportance = 1.0
	}
	return relatedKeys, adjustedImportance
}
