// Package privacy implements the write-path's privacy tagging and
// redaction as pure functions over content, kept outside the write
// transaction per the Design Notes' PII guidance. Ported from
// original_source/src/utils/privacy_utils.py.
package privacy

import "regexp"

// Levels, lowest to highest visibility restriction (§3, GLOSSARY).
const (
	Public   = "public"
	Internal = "internal"
	Private  = "private"
	Secret   = "secret"
)

// Rank orders privacy levels for the search_max_level comparison (§4.5, §7).
var Rank = map[string]int{
	Public:   0,
	Internal: 1,
	Private:  2,
	Secret:   3,
}

var (
	privateTagRe = regexp.MustCompile(`(?s)<private>.*?</private>`)

	emailRe  = regexp.MustCompile(`(?i)\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
	phoneRe  = regexp.MustCompile(`\b0\d{1,4}[-\s]?\d{1,4}[-\s]?\d{3,4}\b`)
	ipRe     = regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`)
	cardRe   = regexp.MustCompile(`\b\d{4}[-\s]?\d{4}[-\s]?\d{4}[-\s]?\d{4}\b`)
)

// piiPatterns mirrors _PII_PATTERNS: order matters since card/phone/ip
// could overlap on purely numeric runs; email is checked first since it is
// the most specific.
var piiPatterns = []struct {
	re          *regexp.Regexp
	replacement string
}{
	{emailRe, "[EMAIL]"},
	{phoneRe, "[PHONE]"},
	{ipRe, "[IP]"},
	{cardRe, "[CARD]"},
}

// HasPrivateTags reports whether content contains a <private>...</private>
// section (claude-mem style markup, §4.6 step 1).
func HasPrivateTags(content string) bool {
	return privateTagRe.MatchString(content)
}

// StripPrivateTags removes <private>...</private> sections from content.
func StripPrivateTags(content string) string {
	return privateTagRe.ReplaceAllString(content, "")
}

// RedactPII replaces common PII patterns (email, phone, IP, card number)
// with placeholder tokens. Lightweight regex-based, no third-party service.
func RedactPII(content string) string {
	out := content
	for _, p := range piiPatterns {
		out = p.re.ReplaceAllString(out, p.replacement)
	}
	return out
}

// DetermineLevel resolves the privacy level for a memory entry: an explicit
// level wins, then <private>-tagged content forces "secret", then tag-based
// detection ("secret"/"private"/"public" tags), then the configured default
// (§4.6 step 1).
func DetermineLevel(content string, explicitLevel string, tags []string, defaultLevel string) string {
	if explicitLevel != "" {
		if _, ok := Rank[explicitLevel]; ok {
			return explicitLevel
		}
	}
	if HasPrivateTags(content) {
		return Secret
	}
	hasTag := func(want string) bool {
		for _, t := range tags {
			if equalFold(t, want) {
				return true
			}
		}
		return false
	}
	switch {
	case hasTag("secret"):
		return Secret
	case hasTag("private"):
		return Private
	case hasTag("public"):
		return Public
	}
	if defaultLevel == "" {
		return Internal
	}
	return defaultLevel
}

// PrepareContent determines the privacy level, strips private markup from
// the stored content, and optionally redacts PII — the full write-time
// pipeline from §4.6 step 1.
func PrepareContent(content, explicitLevel string, tags []string, defaultLevel string, autoRedact bool) (processed, level string) {
	level = DetermineLevel(content, explicitLevel, tags, defaultLevel)
	processed = content
	if HasPrivateTags(content) {
		processed = StripPrivateTags(content)
	}
	if autoRedact {
		processed = RedactPII(processed)
	}
	return processed, level
}

// Allowed reports whether a memory at entryLevel may be returned to a
// caller bounded by maxLevel, unless includeSecret (an admin flag) is set
// (§4.5 privacy filter).
func Allowed(entryLevel, maxLevel string, includeSecret bool) bool {
	if includeSecret {
		return true
	}
	entryRank, ok := Rank[entryLevel]
	if !ok {
		entryRank = Rank[Internal]
	}
	maxRank, ok := Rank[maxLevel]
	if !ok {
		maxRank = Rank[Private]
	}
	if entryLevel == Secret {
		return false
	}
	return entryRank <= maxRank
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}
