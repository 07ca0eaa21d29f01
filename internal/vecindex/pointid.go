// Package vecindex implements the per-persona Vector Index Adapter (C3) on
// top of sqlite-vec's vec0 virtual table, living in the same SQLite file as
// the durable store.
package vecindex

import (
	"crypto/sha1"
	"encoding/binary"
)

// KeyToPointID derives a stable 64-bit point id from a memory key so that
// upserts are naturally idempotent (same key always maps to the same
// point). Ported exactly from the original Qdrant-backed implementation's
// _key_to_point_id: sha1(key)[:8] interpreted as a big-endian uint64.
func KeyToPointID(key string) uint64 {
	sum := sha1.Sum([]byte(key))
	return binary.BigEndian.Uint64(sum[:8])
}
