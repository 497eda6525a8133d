package instrumented

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/eugener/feedcache/internal/storage"
	"github.com/eugener/feedcache/internal/storage/memory"
	"github.com/eugener/feedcache/internal/storage/storetest"
	"github.com/eugener/feedcache/internal/telemetry"
)

func newMemoryStore(t *testing.T) storage.Store {
	t.Helper()
	s, err := memory.New()
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestInstrumentedStoreConformance(t *testing.T) {
	t.Parallel()
	storetest.AssertFeedStoreBehavior(t, func(t *testing.T) storage.FeedStore {
		s := New(newMemoryStore(t), "memory", nil, nil)
		t.Cleanup(func() { s.Close() })
		return s
	})
}

// failingStore fails every operation.
type failingStore struct{ err error }

func (f failingStore) DeleteCachedFeed(c storage.DeletionCompletion) { c(f.err) }
func (f failingStore) Insert(_ []storage.LocalImage, _ time.Time, c storage.InsertionCompletion) {
	c(f.err)
}
func (f failingStore) Retrieve(c storage.RetrievalCompletion) { c(nil, f.err) }
func (f failingStore) Close() error                           { return nil }

func TestInstrumentedStore_RecordsOutcomes(t *testing.T) {
	t.Parallel()
	m := telemetry.NewMetrics(prometheus.NewPedanticRegistry())
	lt := telemetry.NewLatencyTracker(0.01)
	s := New(newMemoryStore(t), "memory", m, lt)
	t.Cleanup(func() { s.Close() })

	storetest.Insert(t, s, storetest.UniqueImages(), storetest.Timestamp())
	storetest.Retrieve(t, s)
	storetest.Delete(t, s)

	for _, op := range []string{"insert", "retrieve", "delete"} {
		if got := testutil.ToFloat64(m.StoreOps.WithLabelValues("memory", op, "ok")); got != 1 {
			t.Errorf("%s ok count = %v, want 1", op, got)
		}
		if _, err := lt.Stats(op); err != nil {
			t.Errorf("latency stats for %s: %v", op, err)
		}
	}

	failing := New(failingStore{err: errors.New("disk full")}, "broken", m, nil)
	if err := storetest.Insert(t, failing, nil, storetest.Timestamp()); err == nil {
		t.Fatal("insert err = nil, want error")
	}
	if got := testutil.ToFloat64(m.StoreOps.WithLabelValues("broken", "insert", "error")); got != 1 {
		t.Errorf("error count = %v, want 1", got)
	}
}
