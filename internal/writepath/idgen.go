// Package writepath implements the Write Path & Async Queue (C6): input
// validation/normalization, key assignment, the durable write followed by
// an asynchronous vector-index enqueue, and association generation.
package writepath

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
	"time"
)

// memoryKeyRe matches the two valid memory key shapes (§6): an
// auto-generated timestamp key with an optional random suffix, or a
// summary meta-memory key.
var memoryKeyRe = regexp.MustCompile(`^memory_[0-9]{14}(_.*)?$|^summary_.*`)

// GenerateKey assigns a new memory key from the current time in loc (the
// service timezone), shaped memory_YYYYMMDDHHMMSS_<4 random hex bytes> to
// keep same-second writes unique.
func GenerateKey(now time.Time, loc *time.Location) string {
	return fmt.Sprintf("memory_%s_%s", now.In(loc).Format("20060102150405"), randomSuffix(4))
}

// GenerateSummaryKey assigns a new meta-memory key for an auto-summarizer
// node (§4.7): summary_YYYYMMDDHHMMSS_<suffix>.
func GenerateSummaryKey(now time.Time, loc *time.Location) string {
	return fmt.Sprintf("summary_%s_%s", now.In(loc).Format("20060102150405"), randomSuffix(4))
}

// ValidKey reports whether key matches one of the two accepted shapes.
func ValidKey(key string) bool {
	return memoryKeyRe.MatchString(key)
}

func randomSuffix(n int) string {
	b := make([]byte, n)
	rand.Read(b)
	return hex.EncodeToString(b)
}
