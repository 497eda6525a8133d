// Package storage defines the persistence port for the feed cache.
//
// Every backend holds at most one snapshot. Operations on a single store run
// one at a time, in submission order, and their completions may be invoked
// on any goroutine. Callers must not assume the completion runs on the
// goroutine that issued the operation.
package storage

import (
	"time"

	"github.com/google/uuid"
)

// LocalImage is the cache representation of a feed image.
type LocalImage struct {
	ID          uuid.UUID `json:"id"`
	Description *string   `json:"description,omitempty"`
	Location    *string   `json:"location,omitempty"`
	URL         string    `json:"url"`
}

// CachedFeed is the single snapshot held by a store.
type CachedFeed struct {
	Images    []LocalImage
	Timestamp time.Time
}

// DeletionCompletion receives the outcome of DeleteCachedFeed.
type DeletionCompletion func(error)

// InsertionCompletion receives the outcome of Insert.
type InsertionCompletion func(error)

// RetrievalCompletion receives the outcome of Retrieve. A nil feed with a nil
// error means the store is empty.
type RetrievalCompletion func(*CachedFeed, error)

// FeedStore is the contract every cache backend implements.
type FeedStore interface {
	// DeleteCachedFeed removes the snapshot. Deleting an empty store succeeds.
	DeleteCachedFeed(completion DeletionCompletion)
	// Insert replaces any existing snapshot with images stamped at timestamp.
	Insert(images []LocalImage, timestamp time.Time, completion InsertionCompletion)
	// Retrieve reads the snapshot. Undecodable data is reported as an error,
	// never as an empty store.
	Retrieve(completion RetrievalCompletion)
}

// Store is a FeedStore that owns resources.
type Store interface {
	FeedStore
	Close() error
}
