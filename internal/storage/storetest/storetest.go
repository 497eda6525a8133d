// Package storetest is the conformance suite shared by every storage backend.
// Each backend's tests call the Assert* functions with a constructor that
// returns a fresh, empty store.
package storetest

import (
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/eugener/feedcache/internal/storage"
)

// waitTimeout bounds how long a helper waits for a completion.
const waitTimeout = 5 * time.Second

// Factory returns an empty store scoped to t. The factory registers cleanup.
type Factory func(t *testing.T) storage.FeedStore

// AssertFeedStoreBehavior runs the behavior every backend must share.
func AssertFeedStoreBehavior(t *testing.T, newStore Factory) {
	t.Helper()

	t.Run("retrieve delivers empty on empty cache", func(t *testing.T) {
		s := newStore(t)
		ExpectEmpty(t, s)
	})

	t.Run("retrieve has no side effects on empty cache", func(t *testing.T) {
		s := newStore(t)
		ExpectEmpty(t, s)
		ExpectEmpty(t, s)
	})

	t.Run("retrieve delivers found values on non-empty cache", func(t *testing.T) {
		s := newStore(t)
		images, ts := UniqueImages(), Timestamp()
		if err := Insert(t, s, images, ts); err != nil {
			t.Fatalf("insert: %v", err)
		}
		ExpectFound(t, s, images, ts)
	})

	t.Run("retrieve has no side effects on non-empty cache", func(t *testing.T) {
		s := newStore(t)
		images, ts := UniqueImages(), Timestamp()
		Insert(t, s, images, ts)
		ExpectFound(t, s, images, ts)
		ExpectFound(t, s, images, ts)
	})

	t.Run("insert delivers no error on empty cache", func(t *testing.T) {
		s := newStore(t)
		if err := Insert(t, s, UniqueImages(), Timestamp()); err != nil {
			t.Errorf("insert err = %v, want nil", err)
		}
	})

	t.Run("insert delivers no error on non-empty cache", func(t *testing.T) {
		s := newStore(t)
		Insert(t, s, UniqueImages(), Timestamp())
		if err := Insert(t, s, UniqueImages(), Timestamp()); err != nil {
			t.Errorf("second insert err = %v, want nil", err)
		}
	})

	t.Run("insert overrides previously cached value", func(t *testing.T) {
		s := newStore(t)
		Insert(t, s, UniqueImages(), Timestamp().Add(-time.Hour))
		latest, latestTS := UniqueImages(), Timestamp()
		if err := Insert(t, s, latest, latestTS); err != nil {
			t.Fatalf("insert: %v", err)
		}
		ExpectFound(t, s, latest, latestTS)
	})

	t.Run("insert round trips an empty feed", func(t *testing.T) {
		s := newStore(t)
		ts := Timestamp()
		if err := Insert(t, s, []storage.LocalImage{}, ts); err != nil {
			t.Fatalf("insert: %v", err)
		}
		ExpectFound(t, s, []storage.LocalImage{}, ts)
	})

	for _, tc := range []struct {
		name string
		ts   time.Time
	}{
		{"zero time", time.Time{}},
		{"nanosecond precision", time.Date(2024, 2, 29, 23, 59, 59, 999999999, time.UTC)},
		{"far past", time.Date(1600, 1, 1, 0, 0, 0, 1, time.UTC)},
		{"far future", time.Date(2300, 12, 31, 12, 0, 0, 123456789, time.UTC)},
	} {
		t.Run("insert round trips timestamp at "+tc.name, func(t *testing.T) {
			s := newStore(t)
			images := UniqueImages()
			if err := Insert(t, s, images, tc.ts); err != nil {
				t.Fatalf("insert: %v", err)
			}
			ExpectFound(t, s, images, tc.ts)
		})
	}

	t.Run("delete delivers no error on empty cache", func(t *testing.T) {
		s := newStore(t)
		if err := Delete(t, s); err != nil {
			t.Errorf("delete err = %v, want nil", err)
		}
		if err := Delete(t, s); err != nil {
			t.Errorf("second delete err = %v, want nil", err)
		}
	})

	t.Run("delete has no side effects on empty cache", func(t *testing.T) {
		s := newStore(t)
		Delete(t, s)
		ExpectEmpty(t, s)
	})

	t.Run("delete delivers no error on non-empty cache", func(t *testing.T) {
		s := newStore(t)
		Insert(t, s, UniqueImages(), Timestamp())
		if err := Delete(t, s); err != nil {
			t.Errorf("delete err = %v, want nil", err)
		}
	})

	t.Run("delete empties previously inserted cache", func(t *testing.T) {
		s := newStore(t)
		Insert(t, s, UniqueImages(), Timestamp())
		Delete(t, s)
		ExpectEmpty(t, s)
	})

	t.Run("side effects run serially", func(t *testing.T) {
		AssertSerialExecution(t, newStore(t))
	})

	t.Run("concurrently issued operations complete in submission order", func(t *testing.T) {
		AssertConcurrentSubmissionOrder(t, newStore(t))
	})
}

// AssertFailableRetrieve checks a store whose persisted data is corrupt.
func AssertFailableRetrieve(t *testing.T, newCorruptStore Factory) {
	t.Helper()

	t.Run("retrieve delivers failure on retrieval error", func(t *testing.T) {
		s := newCorruptStore(t)
		ExpectFailure(t, s)
	})

	t.Run("retrieve has no side effects on failure", func(t *testing.T) {
		s := newCorruptStore(t)
		ExpectFailure(t, s)
		ExpectFailure(t, s)
	})
}

// AssertFailableInsert checks a store that cannot write.
func AssertFailableInsert(t *testing.T, newFailingStore Factory) {
	t.Helper()

	t.Run("insert delivers error on insertion error", func(t *testing.T) {
		s := newFailingStore(t)
		if err := Insert(t, s, UniqueImages(), Timestamp()); err == nil {
			t.Error("insert err = nil, want error")
		}
	})

	t.Run("insert has no side effects on insertion error", func(t *testing.T) {
		s := newFailingStore(t)
		Insert(t, s, UniqueImages(), Timestamp())
		ExpectEmpty(t, s)
	})
}

// AssertFailableDelete checks a store that cannot remove its data.
// The store must be readable as empty or failing, never as found.
func AssertFailableDelete(t *testing.T, newFailingStore Factory) {
	t.Helper()

	t.Run("delete delivers error on deletion error", func(t *testing.T) {
		s := newFailingStore(t)
		if err := Delete(t, s); err == nil {
			t.Error("delete err = nil, want error")
		}
	})

	t.Run("delete has no side effects on deletion error", func(t *testing.T) {
		s := newFailingStore(t)
		Delete(t, s)
		if cached, err := Retrieve(t, s); err == nil && cached != nil {
			t.Errorf("retrieve after failed delete = %d images at %v, want empty or failure",
				len(cached.Images), cached.Timestamp)
		}
	})
}

// AssertSerialExecution issues insert, delete, insert without waiting and
// checks the completions arrive in that order.
func AssertSerialExecution(t *testing.T, s storage.FeedStore) {
	t.Helper()

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	record := func(n int) {
		mu.Lock()
		order = append(order, n)
		mu.Unlock()
		wg.Done()
	}

	wg.Add(3)
	s.Insert(UniqueImages(), Timestamp(), func(error) { record(1) })
	s.DeleteCachedFeed(func(error) { record(2) })
	s.Insert(UniqueImages(), Timestamp(), func(error) { record(3) })
	waitGroup(t, &wg)

	mu.Lock()
	defer mu.Unlock()
	if want := []int{1, 2, 3}; !reflect.DeepEqual(order, want) {
		t.Errorf("completion order = %v, want %v", order, want)
	}
}

// AssertConcurrentSubmissionOrder issues operations from many goroutines and
// checks completion order equals the order in which they were submitted.
func AssertConcurrentSubmissionOrder(t *testing.T, s storage.FeedStore) {
	t.Helper()

	const goroutines, perGoroutine = 8, 6

	var submitMu, doneMu sync.Mutex
	var submitted, completed []int
	var wg sync.WaitGroup
	var issuers sync.WaitGroup

	next := 0
	for g := range goroutines {
		issuers.Add(1)
		go func() {
			defer issuers.Done()
			for i := range perGoroutine {
				submitMu.Lock()
				n := next
				next++
				submitted = append(submitted, n)
				wg.Add(1)
				done := func() {
					doneMu.Lock()
					completed = append(completed, n)
					doneMu.Unlock()
					wg.Done()
				}
				switch (g + i) % 3 {
				case 0:
					s.Insert(UniqueImages(), Timestamp(), func(error) { done() })
				case 1:
					s.DeleteCachedFeed(func(error) { done() })
				default:
					s.Retrieve(func(*storage.CachedFeed, error) { done() })
				}
				submitMu.Unlock()
			}
		}()
	}
	issuers.Wait()
	waitGroup(t, &wg)

	doneMu.Lock()
	defer doneMu.Unlock()
	if !reflect.DeepEqual(completed, submitted) {
		t.Errorf("completion order = %v, want submission order %v", completed, submitted)
	}
}

// Insert runs s.Insert and waits for its completion.
func Insert(t *testing.T, s storage.FeedStore, images []storage.LocalImage, ts time.Time) error {
	t.Helper()
	ch := make(chan error, 1)
	s.Insert(images, ts, func(err error) { ch <- err })
	select {
	case err := <-ch:
		return err
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for insert")
		return nil
	}
}

// Delete runs s.DeleteCachedFeed and waits for its completion.
func Delete(t *testing.T, s storage.FeedStore) error {
	t.Helper()
	ch := make(chan error, 1)
	s.DeleteCachedFeed(func(err error) { ch <- err })
	select {
	case err := <-ch:
		return err
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for delete")
		return nil
	}
}

// Retrieve runs s.Retrieve and waits for its completion.
func Retrieve(t *testing.T, s storage.FeedStore) (*storage.CachedFeed, error) {
	t.Helper()
	type result struct {
		cached *storage.CachedFeed
		err    error
	}
	ch := make(chan result, 1)
	s.Retrieve(func(c *storage.CachedFeed, err error) { ch <- result{c, err} })
	select {
	case r := <-ch:
		return r.cached, r.err
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for retrieve")
		return nil, nil
	}
}

// ExpectEmpty fails t unless s retrieves as empty.
func ExpectEmpty(t *testing.T, s storage.FeedStore) {
	t.Helper()
	cached, err := Retrieve(t, s)
	if err != nil {
		t.Fatalf("retrieve err = %v, want empty", err)
	}
	if cached != nil {
		t.Fatalf("retrieve = %d images at %v, want empty", len(cached.Images), cached.Timestamp)
	}
}

// ExpectFailure fails t unless s retrieves with an error.
func ExpectFailure(t *testing.T, s storage.FeedStore) {
	t.Helper()
	cached, err := Retrieve(t, s)
	if err == nil {
		t.Fatalf("retrieve = %+v, want failure", cached)
	}
}

// ExpectFound fails t unless s retrieves exactly images stamped at ts.
func ExpectFound(t *testing.T, s storage.FeedStore, images []storage.LocalImage, ts time.Time) {
	t.Helper()
	cached, err := Retrieve(t, s)
	if err != nil {
		t.Fatalf("retrieve err = %v, want found", err)
	}
	if cached == nil {
		t.Fatal("retrieve = empty, want found")
	}
	if !cached.Timestamp.Equal(ts) {
		t.Errorf("timestamp = %v, want %v", cached.Timestamp, ts)
	}
	if len(cached.Images) != len(images) {
		t.Fatalf("images count = %d, want %d", len(cached.Images), len(images))
	}
	for i := range images {
		if !reflect.DeepEqual(cached.Images[i], images[i]) {
			t.Errorf("image[%d] = %+v, want %+v", i, cached.Images[i], images[i])
		}
	}
}

// UniqueImages returns two images with fresh IDs, one with optional fields
// set and one without.
func UniqueImages() []storage.LocalImage {
	desc, loc := "a description", "a location"
	return []storage.LocalImage{
		{ID: uuid.New(), Description: &desc, Location: &loc, URL: "https://example.com/" + uuid.NewString()},
		{ID: uuid.New(), URL: "https://example.com/" + uuid.NewString()},
	}
}

// Timestamp returns the current time in UTC at full nanosecond precision.
func Timestamp() time.Time {
	return time.Now().UTC()
}

func waitGroup(t *testing.T, wg *sync.WaitGroup) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for completions")
	}
}
