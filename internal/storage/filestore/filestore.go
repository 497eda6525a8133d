// Package filestore implements storage.Store as a single JSON file on disk.
package filestore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofrs/flock"

	"github.com/eugener/feedcache/internal/storage"
	"github.com/eugener/feedcache/internal/storage/queue"
)

var _ storage.Store = (*Store)(nil)

// Store keeps the snapshot in one file. Operations run on a private queue and
// hold an advisory lock on a sibling ".lock" file, so stores in different
// processes pointing at the same path still execute one operation at a time.
// Reads take the lock shared, and skip it when the directory is read-only.
type Store struct {
	path  string
	lock  *flock.Flock
	queue *queue.Queue
}

// New returns a Store persisting to path. The parent directory is not
// created; a missing directory surfaces as an insertion error.
func New(path string) *Store {
	return &Store{
		path:  path,
		lock:  flock.New(path + ".lock"),
		queue: queue.New(),
	}
}

// Path returns the snapshot file location.
func (s *Store) Path() string { return s.path }

// DeleteCachedFeed removes the snapshot file if present.
func (s *Store) DeleteCachedFeed(completion storage.DeletionCompletion) {
	s.submit(func() error {
		if s.dirMissing() {
			return nil
		}
		return s.withLock(func() error {
			err := os.Remove(s.path)
			if err == nil || errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return fmt.Errorf("delete cached feed: %w", err)
		})
	}, completion)
}

// Insert writes the snapshot to a temp file and renames it over the old one.
func (s *Store) Insert(images []storage.LocalImage, timestamp time.Time, completion storage.InsertionCompletion) {
	s.submit(func() error {
		data, err := storage.EncodeSnapshot(images, timestamp)
		if err != nil {
			return err
		}
		return s.withLock(func() error { return s.writeAtomic(data) })
	}, completion)
}

// Retrieve reads and decodes the snapshot file.
func (s *Store) Retrieve(completion storage.RetrievalCompletion) {
	err := s.queue.Submit(func() {
		if s.dirMissing() {
			completion(nil, nil)
			return
		}
		var cached *storage.CachedFeed
		err := s.withReadLock(func() error {
			data, err := os.ReadFile(s.path)
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("read cached feed: %w", err)
			}
			cached, err = storage.DecodeSnapshot(data)
			return err
		})
		completion(cached, err)
	})
	if err != nil {
		completion(nil, err)
	}
}

// Close waits for queued operations and stops the worker.
func (s *Store) Close() error {
	s.queue.Close()
	return nil
}

func (s *Store) submit(op func() error, completion func(error)) {
	if err := s.queue.Submit(func() { completion(op()) }); err != nil {
		completion(err)
	}
}

// dirMissing reports whether the parent directory is absent, in which case
// nothing can be stored and no lock file can be created.
func (s *Store) dirMissing() bool {
	_, err := os.Stat(filepath.Dir(s.path))
	return errors.Is(err, fs.ErrNotExist)
}

func (s *Store) withLock(fn func() error) error {
	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("lock %s: %w", s.lock.Path(), err)
	}
	defer s.lock.Unlock()
	return fn()
}

// withReadLock runs fn under a shared lock. When the lock file cannot be
// created because the directory is not writable, no writer can be present
// either, and renames keep the snapshot whole, so fn runs unlocked.
func (s *Store) withReadLock(fn func() error) error {
	if err := s.lock.RLock(); err != nil {
		if lockUnavailable(err) {
			return fn()
		}
		return fmt.Errorf("lock %s: %w", s.lock.Path(), err)
	}
	defer s.lock.Unlock()
	return fn()
}

func lockUnavailable(err error) bool {
	return errors.Is(err, fs.ErrPermission) || errors.Is(err, syscall.EROFS)
}

// writeAtomic writes to a temp file first, then renames it into place, so a
// reader never observes a partially written snapshot.
func (s *Store) writeAtomic(data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	_, err = tmp.Write(data)
	if err == nil {
		err = tmp.Sync()
	}
	closeErr := tmp.Close()
	if err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if closeErr != nil {
		return fmt.Errorf("close temp file: %w", closeErr)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("rename cached feed: %w", err)
	}
	return nil
}
