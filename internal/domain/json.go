package domain

import (
	"bytes"
	"encoding/json"
	"math/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// JSONMap is an open map of string keys to arbitrary JSON values. Values are
// kept as raw JSON and never interpreted by the protocol core.
type JSONMap map[string]json.RawMessage

// MarshalJSON encodes a nil map as {}.
func (m JSONMap) MarshalJSON() ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]json.RawMessage(m))
}

// Clone returns a shallow copy; values are immutable raw JSON.
func (m JSONMap) Clone() JSONMap {
	out := make(JSONMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// rawOrNull returns raw, or JSON null when raw is empty.
func rawOrNull(raw json.RawMessage) json.RawMessage {
	if len(bytes.TrimSpace(raw)) == 0 {
		return json.RawMessage("null")
	}
	return raw
}

// NewID generates a sortable identifier with the given prefix, e.g.
// NewID("thr") -> "thr_01J9...".
func NewID(prefix string) string {
	now := time.Now()
	entropy := ulid.Monotonic(rand.New(rand.NewSource(now.UnixNano())), 0)
	id := ulid.MustNew(ulid.Timestamp(now), entropy).String()
	if prefix == "" {
		return id
	}
	return prefix + "_" + id
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T { return &v }
