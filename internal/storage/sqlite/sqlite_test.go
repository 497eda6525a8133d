package sqlite

import (
	"database/sql"
	"io/fs"
	"path/filepath"
	"testing"
	"time"

	"github.com/pressly/goose/v3"

	"github.com/eugener/feedcache/internal/storage"
	"github.com/eugener/feedcache/internal/storage/storetest"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	// Use a unique file-based temp DB for each test to avoid shared :memory: races
	path := t.TempDir() + "/test.db"
	s, err := New(path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStoreConformance(t *testing.T) {
	t.Parallel()
	storetest.AssertFeedStoreBehavior(t, func(t *testing.T) storage.FeedStore {
		return newTestStore(t)
	})
}

func TestSQLiteStoreFailableRetrieve(t *testing.T) {
	t.Parallel()
	storetest.AssertFailableRetrieve(t, func(t *testing.T) storage.FeedStore {
		s := newTestStore(t)
		mustExec(t, s, `INSERT INTO feed_cache (id, unix_sec, nsec) VALUES (1, 0, 0)`)
		mustExec(t, s, `INSERT INTO feed_images (cache_id, position, id, url) VALUES (1, 0, 'not-a-uuid', 'https://example.com')`)
		return s
	})
}

func TestSQLiteStoreFailableInsert(t *testing.T) {
	t.Parallel()
	storetest.AssertFailableInsert(t, func(t *testing.T) storage.FeedStore {
		s := newTestStore(t)
		mustExec(t, s, `DROP TABLE feed_images`)
		return s
	})
}

func TestSQLiteStoreFailableDelete(t *testing.T) {
	t.Parallel()
	storetest.AssertFailableDelete(t, func(t *testing.T) storage.FeedStore {
		s := newTestStore(t)
		mustExec(t, s, `DROP TABLE feed_images`)
		mustExec(t, s, `DROP TABLE feed_cache`)
		return s
	})
}

func TestSQLiteStore_FailedInsertKeepsPreviousSnapshot(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	images, ts := storetest.UniqueImages(), storetest.Timestamp()
	if err := storetest.Insert(t, s, images, ts); err != nil {
		t.Fatal(err)
	}

	// Fail the image insert midway through the transaction.
	mustExec(t, s, `CREATE TRIGGER reject_image BEFORE INSERT ON feed_images
		WHEN NEW.url = 'https://example.com/rejected'
		BEGIN SELECT RAISE(ABORT, 'rejected'); END`)
	rejected := storetest.UniqueImages()
	rejected[1].URL = "https://example.com/rejected"
	if err := storetest.Insert(t, s, rejected, ts.Add(time.Hour)); err == nil {
		t.Fatal("insert with rejected image err = nil, want error")
	}
	storetest.ExpectFound(t, s, images, ts)
}

func TestSQLiteStore_MigratesNanosecondTimestamps(t *testing.T) {
	t.Parallel()
	db, err := sql.Open("sqlite", "file:"+filepath.Join(t.TempDir(), "old.db")+"?_pragma=foreign_keys(1)")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		t.Fatal(err)
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, db, fsys)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := provider.UpTo(t.Context(), 1); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		ns   int64
		want time.Time
	}{
		{1_700_000_000_123_456_789, time.Unix(1_700_000_000, 123_456_789)},
		{-1_500_000_001, time.Unix(-2, 499_999_999)},
	}
	for _, tt := range tests {
		if _, err := db.Exec(`DELETE FROM feed_cache`); err != nil {
			t.Fatal(err)
		}
		if _, err := db.Exec(`INSERT INTO feed_cache (id, timestamp_ns) VALUES (1, ?)`, tt.ns); err != nil {
			t.Fatal(err)
		}
		if _, err := provider.UpTo(t.Context(), 2); err != nil {
			t.Fatal(err)
		}

		var sec, nsec int64
		if err := db.QueryRow(`SELECT unix_sec, nsec FROM feed_cache`).Scan(&sec, &nsec); err != nil {
			t.Fatal(err)
		}
		if got := time.Unix(sec, nsec); !got.Equal(tt.want) {
			t.Errorf("migrated %d = %v, want %v", tt.ns, got, tt.want)
		}
		if _, err := provider.DownTo(t.Context(), 1); err != nil {
			t.Fatal(err)
		}
		var back int64
		if err := db.QueryRow(`SELECT timestamp_ns FROM feed_cache`).Scan(&back); err != nil {
			t.Fatal(err)
		}
		if back != tt.ns {
			t.Errorf("down migration = %d, want %d", back, tt.ns)
		}
	}
}

func TestSQLiteStore_Ping(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	if err := s.Ping(t.Context()); err != nil {
		t.Errorf("ping: %v", err)
	}
}

func mustExec(t *testing.T, s *Store, query string) {
	t.Helper()
	if _, err := s.db.Exec(query); err != nil {
		t.Fatalf("exec %q: %v", query, err)
	}
}
