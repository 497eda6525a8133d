// Package app implements application-level services for the feed cache.
package app

import (
	"context"
	"fmt"
	"log/slog"

	feed "github.com/eugener/feedcache/internal"
	"github.com/eugener/feedcache/internal/cache"
	"github.com/eugener/feedcache/internal/storage"
)

// Source names where a refresh got its images from.
type Source string

const (
	SourceRemote Source = "remote"
	SourceCache  Source = "cache"
)

// RefreshResult is the outcome of a successful Refresh.
type RefreshResult struct {
	Images []feed.Image
	Source Source
	// SaveErr is set when the remote feed was fetched but caching it failed.
	SaveErr error
}

// FeedService exposes the callback-based cache loader as blocking,
// context-aware calls and composes it with the remote feed.
type FeedService struct {
	loader *cache.LocalFeedLoader
	store  storage.FeedStore
	remote feed.Loader
}

var _ feed.Loader = (*FeedService)(nil)

// NewFeedService returns a FeedService. remote may be nil, in which case
// Refresh serves the cache only.
func NewFeedService(loader *cache.LocalFeedLoader, store storage.FeedStore, remote feed.Loader) *FeedService {
	return &FeedService{loader: loader, store: store, remote: remote}
}

// result pairs a completion value with its error.
type result[T any] struct {
	val T
	err error
}

// await starts an async operation and blocks until it completes or ctx is
// done. A late completion lands in the buffered channel and is dropped.
func await[T any](ctx context.Context, start func(done func(T, error))) (T, error) {
	ch := make(chan result[T], 1)
	start(func(v T, err error) { ch <- result[T]{v, err} })
	select {
	case r := <-ch:
		return r.val, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Load returns the cached feed if still valid, or an empty slice.
func (s *FeedService) Load(ctx context.Context) ([]feed.Image, error) {
	return await(ctx, func(done func([]feed.Image, error)) {
		s.loader.Load(done)
	})
}

// Save replaces the cached feed.
func (s *FeedService) Save(ctx context.Context, images []feed.Image) error {
	_, err := await(ctx, func(done func(struct{}, error)) {
		s.loader.Save(images, func(err error) { done(struct{}{}, err) })
	})
	return err
}

// Validate deletes a stale or unreadable snapshot and reports what it did.
func (s *FeedService) Validate(ctx context.Context) (cache.ValidationResult, error) {
	r, err := await(ctx, func(done func(cache.ValidationResult, error)) {
		s.loader.Validate(func(r cache.ValidationResult) { done(r, nil) })
	})
	if err != nil {
		return cache.ValidationResult{}, err
	}
	return r, r.Err
}

// Clear deletes the cached feed unconditionally.
func (s *FeedService) Clear(ctx context.Context) error {
	_, err := await(ctx, func(done func(struct{}, error)) {
		s.store.DeleteCachedFeed(func(err error) { done(struct{}{}, err) })
	})
	return err
}

// Refresh fetches the remote feed and caches it. When the fetch fails it
// falls back to the cached feed. A failure to cache a fetched feed is
// reported in SaveErr but does not fail the refresh.
func (s *FeedService) Refresh(ctx context.Context) (RefreshResult, error) {
	if s.remote == nil {
		images, err := s.Load(ctx)
		if err != nil {
			return RefreshResult{}, err
		}
		return RefreshResult{Images: images, Source: SourceCache}, nil
	}

	images, fetchErr := s.remote.Load(ctx)
	if fetchErr == nil {
		res := RefreshResult{Images: images, Source: SourceRemote}
		if err := s.Save(ctx, images); err != nil {
			slog.LogAttrs(ctx, slog.LevelWarn, "caching fetched feed failed",
				slog.String("error", err.Error()),
			)
			res.SaveErr = err
		}
		return res, nil
	}

	cached, err := s.Load(ctx)
	if err != nil {
		return RefreshResult{}, fmt.Errorf("refresh: %w; cache fallback: %w", fetchErr, err)
	}
	slog.LogAttrs(ctx, slog.LevelInfo, "serving cached feed after fetch failure",
		slog.Int("items", len(cached)),
		slog.String("error", fetchErr.Error()),
	)
	return RefreshResult{Images: cached, Source: SourceCache}, nil
}
