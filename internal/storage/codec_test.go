package storage

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestSnapshotRoundTrip(t *testing.T) {
	t.Parallel()

	desc := "a description"
	images := []LocalImage{
		{ID: uuid.New(), Description: &desc, URL: "https://example.com/a"},
		{ID: uuid.New(), URL: "https://example.com/b"},
	}
	tests := []struct {
		name string
		ts   time.Time
	}{
		{"zero time", time.Time{}},
		{"nanoseconds", time.Date(2024, 3, 10, 8, 30, 15, 123456789, time.UTC)},
		{"non-UTC zone", time.Date(2024, 3, 10, 8, 30, 0, 0, time.FixedZone("X", -5*3600))},
		{"year 1600", time.Date(1600, 1, 1, 0, 0, 0, 1, time.UTC)},
		{"year 2300", time.Date(2300, 12, 31, 23, 59, 59, 999999999, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			data, err := EncodeSnapshot(images, tt.ts)
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			got, err := DecodeSnapshot(data)
			if err != nil {
				t.Fatalf("decode %s: %v", data, err)
			}
			if !got.Timestamp.Equal(tt.ts) {
				t.Errorf("timestamp = %v, want %v", got.Timestamp, tt.ts)
			}
			if len(got.Images) != len(images) || got.Images[0].ID != images[0].ID {
				t.Errorf("images = %+v, want %+v", got.Images, images)
			}
		})
	}
}

func TestEncodeSnapshot_NilImagesIsEmptyFeed(t *testing.T) {
	t.Parallel()
	data, err := EncodeSnapshot(nil, time.Unix(0, 0))
	if err != nil {
		t.Fatal(err)
	}
	got, err := DecodeSnapshot(data)
	if err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	if got.Images == nil || len(got.Images) != 0 {
		t.Errorf("images = %#v, want empty non-nil", got.Images)
	}
}

func TestDecodeSnapshot_Rejects(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		data string
	}{
		{"not json", `invalid data`},
		{"missing timestamp", `{"feed":[]}`},
		{"null timestamp", `{"feed":[],"timestamp":null}`},
		{"missing feed", `{"timestamp":"2024-01-01T00:00:00Z"}`},
		{"bad timestamp", `{"feed":[],"timestamp":"yesterday"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got, err := DecodeSnapshot([]byte(tt.data)); err == nil {
				t.Errorf("DecodeSnapshot(%s) = %+v, want error", tt.data, got)
			}
		})
	}
}
