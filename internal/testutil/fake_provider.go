// Package testutil provides configurable test fakes for feed interfaces.
package testutil

import (
	"context"
	"sync/atomic"

	"github.com/google/uuid"

	feed "github.com/eugener/feedcache/internal"
)

// FakeLoader is a configurable feed.Loader for testing.
type FakeLoader struct {
	LoadFn func(ctx context.Context) ([]feed.Image, error)
	calls  atomic.Int64
}

// Load delegates to LoadFn or returns UniqueFeed().
func (f *FakeLoader) Load(ctx context.Context) ([]feed.Image, error) {
	f.calls.Add(1)
	if f.LoadFn != nil {
		return f.LoadFn(ctx)
	}
	return UniqueFeed(), nil
}

// Calls reports how many times Load ran.
func (f *FakeLoader) Calls() int { return int(f.calls.Load()) }

// UniqueFeed returns two images with fresh IDs, one with every optional
// field set and one with none.
func UniqueFeed() []feed.Image {
	desc, loc := "a description", "a location"
	return []feed.Image{
		{ID: uuid.New(), Description: &desc, Location: &loc, URL: "https://any-url.com/1.png"},
		{ID: uuid.New(), URL: "https://any-url.com/2.png"},
	}
}
