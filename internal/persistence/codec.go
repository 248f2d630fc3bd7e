package persistence

import (
	"bytes"
	"encoding/gob"

	"github.com/petrijr/heimdall/pkg/api"
)

// EncodeSnapshot serializes a snapshot with encoding/gob. Snapshots are
// closed over concrete types (string fields, message structs, counters), so
// no type registration is needed.
func EncodeSnapshot(s *api.Snapshot) ([]byte, error) {
	if s == nil {
		return nil, nil
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(s); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeSnapshot deserializes a snapshot produced by EncodeSnapshot.
// Empty input yields nil.
func DecodeSnapshot(data []byte) (*api.Snapshot, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var s api.Snapshot
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return nil, err
	}
	return &s, nil
}
