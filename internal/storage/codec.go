package storage

import (
	"encoding/json"
	"fmt"
	"time"
)

// snapshot is the persisted JSON layout shared by byte-oriented backends.
// Timestamp is a pointer so a missing key is told apart from the zero time.
type snapshot struct {
	Feed      []LocalImage `json:"feed"`
	Timestamp *time.Time   `json:"timestamp"`
}

// EncodeSnapshot serializes images and timestamp. The timestamp is stored in
// UTC with nanosecond precision; years outside [0, 9999] cannot be encoded.
func EncodeSnapshot(images []LocalImage, timestamp time.Time) ([]byte, error) {
	if images == nil {
		images = []LocalImage{}
	}
	utc := timestamp.UTC()
	data, err := json.Marshal(snapshot{Feed: images, Timestamp: &utc})
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return data, nil
}

// DecodeSnapshot parses data produced by EncodeSnapshot.
func DecodeSnapshot(data []byte) (*CachedFeed, error) {
	var s snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if s.Feed == nil || s.Timestamp == nil {
		return nil, fmt.Errorf("decode snapshot: missing feed or timestamp")
	}
	return &CachedFeed{Images: s.Feed, Timestamp: *s.Timestamp}, nil
}
