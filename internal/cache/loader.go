package cache

import (
	"sync/atomic"
	"time"

	feed "github.com/eugener/feedcache/internal"
	"github.com/eugener/feedcache/internal/storage"
	"github.com/eugener/feedcache/internal/telemetry"
)

// LocalFeedLoader saves, loads, and validates the cached feed. It holds no
// persistent state and no locks; all I/O happens inside the store.
//
// Completions run on whatever goroutine the store completes on. After Close,
// completions of operations still in flight are dropped.
type LocalFeedLoader struct {
	store       storage.FeedStore
	currentDate func() time.Time
	policy      Policy
	metrics     *telemetry.Metrics

	// generation is bumped by Close; an odd value means closed. Each
	// operation captures it with a single load when issued and only calls
	// back while it is unchanged.
	generation atomic.Uint64
}

// Option configures a LocalFeedLoader.
type Option func(*LocalFeedLoader)

// WithPolicy overrides the default 7-day policy.
func WithPolicy(p Policy) Option {
	return func(l *LocalFeedLoader) { l.policy = p }
}

// WithMetrics records load and validation outcomes.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(l *LocalFeedLoader) { l.metrics = m }
}

// NewLocalFeedLoader returns a loader over store. currentDate supplies "now"
// for timestamps and staleness checks.
func NewLocalFeedLoader(store storage.FeedStore, currentDate func() time.Time, opts ...Option) *LocalFeedLoader {
	l := &LocalFeedLoader{
		store:       store,
		currentDate: currentDate,
		policy:      DefaultPolicy(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Close releases the loader. Pending completions will not be called, and
// later calls complete immediately with feed.ErrLoaderClosed.
func (l *LocalFeedLoader) Close() {
	for {
		gen := l.generation.Load()
		if gen&1 == 1 || l.generation.CompareAndSwap(gen, gen+1) {
			return
		}
	}
}

// Save replaces the cached feed with images stamped at the current date.
// The old snapshot is deleted first; if deletion fails, nothing is inserted
// and completion receives the deletion error.
func (l *LocalFeedLoader) Save(images []feed.Image, completion func(error)) {
	gen, ok := l.issue()
	if !ok {
		completion(feed.ErrLoaderClosed)
		return
	}
	local := toLocal(images)

	l.store.DeleteCachedFeed(func(err error) {
		if !l.current(gen) {
			return
		}
		if err != nil {
			completion(err)
			return
		}
		l.store.Insert(local, l.currentDate(), func(err error) {
			if !l.current(gen) {
				return
			}
			if err == nil && l.metrics != nil {
				l.metrics.SnapshotSize.Set(float64(len(local)))
			}
			completion(err)
		})
	})
}

// Load delivers the cached images if the snapshot is still valid. Empty and
// stale caches both deliver an empty, non-nil slice. Retrieval errors are
// delivered as-is; Load never deletes.
func (l *LocalFeedLoader) Load(completion func([]feed.Image, error)) {
	gen, ok := l.issue()
	if !ok {
		completion(nil, feed.ErrLoaderClosed)
		return
	}

	l.store.Retrieve(func(cached *storage.CachedFeed, err error) {
		if !l.current(gen) {
			return
		}
		switch {
		case err != nil:
			l.countLoad("error")
			completion(nil, err)
		case cached == nil:
			l.countLoad("empty")
			completion([]feed.Image{}, nil)
		case l.policy.Validate(cached.Timestamp, l.currentDate()):
			l.countLoad("hit")
			completion(toModels(cached.Images), nil)
		default:
			l.countLoad("stale")
			completion([]feed.Image{}, nil)
		}
	})
}

// ValidationResult reports what Validate did.
type ValidationResult struct {
	Deleted bool
	Reason  string // "corrupt" or "stale" when Deleted
	Err     error  // deletion error, if any
}

// ValidateCache deletes the snapshot when it cannot be read or is stale.
// It reports nothing back.
func (l *LocalFeedLoader) ValidateCache() {
	l.Validate(nil)
}

// Validate is ValidateCache with an optional completion describing the
// action taken.
func (l *LocalFeedLoader) Validate(completion func(ValidationResult)) {
	gen, ok := l.issue()
	if !ok {
		if completion != nil {
			completion(ValidationResult{Err: feed.ErrLoaderClosed})
		}
		return
	}

	l.store.Retrieve(func(cached *storage.CachedFeed, err error) {
		if !l.current(gen) {
			return
		}
		var reason string
		switch {
		case err != nil:
			reason = "corrupt"
		case cached != nil && !l.policy.Validate(cached.Timestamp, l.currentDate()):
			reason = "stale"
		default:
			l.countValidation("kept")
			if completion != nil {
				completion(ValidationResult{})
			}
			return
		}

		l.store.DeleteCachedFeed(func(err error) {
			if !l.current(gen) {
				return
			}
			l.countValidation("deleted")
			if completion != nil {
				completion(ValidationResult{Deleted: err == nil, Reason: reason, Err: err})
			}
		})
	})
}

func (l *LocalFeedLoader) issue() (uint64, bool) {
	gen := l.generation.Load()
	if gen&1 == 1 {
		return 0, false
	}
	return gen, true
}

func (l *LocalFeedLoader) current(gen uint64) bool {
	return l.generation.Load() == gen
}

func (l *LocalFeedLoader) countLoad(result string) {
	if l.metrics != nil {
		l.metrics.CacheLoads.WithLabelValues(result).Inc()
	}
}

func (l *LocalFeedLoader) countValidation(action string) {
	if l.metrics != nil {
		l.metrics.CacheValidation.WithLabelValues(action).Inc()
	}
}

func toLocal(images []feed.Image) []storage.LocalImage {
	out := make([]storage.LocalImage, len(images))
	for i, img := range images {
		out[i] = storage.LocalImage{
			ID:          img.ID,
			Description: img.Description,
			Location:    img.Location,
			URL:         img.URL,
		}
	}
	return out
}

func toModels(images []storage.LocalImage) []feed.Image {
	out := make([]feed.Image, len(images))
	for i, img := range images {
		out[i] = feed.Image{
			ID:          img.ID,
			Description: img.Description,
			Location:    img.Location,
			URL:         img.URL,
		}
	}
	return out
}
