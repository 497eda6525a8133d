// Package memory implements storage.Store in process memory, backed by otter.
package memory

import (
	"fmt"
	"slices"
	"time"

	"github.com/maypok86/otter/v2"

	"github.com/eugener/feedcache/internal/storage"
	"github.com/eugener/feedcache/internal/storage/queue"
)

var _ storage.Store = (*Store)(nil)

// snapshotKey is the only key ever written; the store holds one snapshot.
const snapshotKey = "feed"

// Store keeps the snapshot in an otter cache with no expiry of its own.
// Staleness is decided by the cache policy, not by the store.
type Store struct {
	cache *otter.Cache[string, storage.CachedFeed]
	queue *queue.Queue
}

// New creates an empty in-memory store.
func New() (*Store, error) {
	c, err := otter.New(&otter.Options[string, storage.CachedFeed]{})
	if err != nil {
		return nil, fmt.Errorf("create memory store: %w", err)
	}
	return &Store{cache: c, queue: queue.New()}, nil
}

// DeleteCachedFeed drops the snapshot.
func (s *Store) DeleteCachedFeed(completion storage.DeletionCompletion) {
	if err := s.queue.Submit(func() {
		s.cache.Invalidate(snapshotKey)
		completion(nil)
	}); err != nil {
		completion(err)
	}
}

// Insert replaces the snapshot with a copy of images.
func (s *Store) Insert(images []storage.LocalImage, timestamp time.Time, completion storage.InsertionCompletion) {
	cached := storage.CachedFeed{Images: cloneImages(images), Timestamp: timestamp}
	if err := s.queue.Submit(func() {
		s.cache.Set(snapshotKey, cached)
		completion(nil)
	}); err != nil {
		completion(err)
	}
}

// Retrieve returns a copy of the snapshot, or nil when empty.
func (s *Store) Retrieve(completion storage.RetrievalCompletion) {
	if err := s.queue.Submit(func() {
		cached, ok := s.cache.GetIfPresent(snapshotKey)
		if !ok {
			completion(nil, nil)
			return
		}
		completion(&storage.CachedFeed{Images: cloneImages(cached.Images), Timestamp: cached.Timestamp}, nil)
	}); err != nil {
		completion(nil, err)
	}
}

// Close stops the worker after queued operations finish.
func (s *Store) Close() error {
	s.queue.Close()
	return nil
}

func cloneImages(images []storage.LocalImage) []storage.LocalImage {
	if images == nil {
		return []storage.LocalImage{}
	}
	return slices.Clone(images)
}
