package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/eugener/feedcache/internal/storage"
)

// DeleteCachedFeed removes the snapshot row; images go with it via cascade.
func (s *Store) DeleteCachedFeed(completion storage.DeletionCompletion) {
	if err := s.queue.Submit(func() {
		completion(s.deleteCachedFeed(context.Background()))
	}); err != nil {
		completion(err)
	}
}

// Insert replaces the snapshot inside a single transaction.
func (s *Store) Insert(images []storage.LocalImage, timestamp time.Time, completion storage.InsertionCompletion) {
	if err := s.queue.Submit(func() {
		completion(s.insert(context.Background(), images, timestamp))
	}); err != nil {
		completion(err)
	}
}

// Retrieve reads the snapshot, or nil when no row exists.
func (s *Store) Retrieve(completion storage.RetrievalCompletion) {
	if err := s.queue.Submit(func() {
		completion(s.retrieve(context.Background()))
	}); err != nil {
		completion(nil, err)
	}
}

func (s *Store) deleteCachedFeed(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM feed_cache`); err != nil {
		return fmt.Errorf("delete cached feed: %w", err)
	}
	return nil
}

func (s *Store) insert(ctx context.Context, images []storage.LocalImage, timestamp time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM feed_cache`); err != nil {
		return fmt.Errorf("clear cached feed: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO feed_cache (id, unix_sec, nsec) VALUES (1, ?, ?)`,
		timestamp.Unix(), timestamp.Nanosecond(),
	); err != nil {
		return fmt.Errorf("insert cached feed: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO feed_images (cache_id, position, id, description, location, url)
		 VALUES (1, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("prepare image insert: %w", err)
	}
	defer stmt.Close()

	for i, img := range images {
		if _, err := stmt.ExecContext(ctx,
			i, img.ID.String(), nullStr(img.Description), nullStr(img.Location), img.URL,
		); err != nil {
			return fmt.Errorf("insert image %d: %w", i, err)
		}
	}
	return tx.Commit()
}

func (s *Store) retrieve(ctx context.Context) (*storage.CachedFeed, error) {
	var sec, nsec int64
	err := s.db.QueryRowContext(ctx, `SELECT unix_sec, nsec FROM feed_cache WHERE id = 1`).Scan(&sec, &nsec)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read cached feed: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, description, location, url FROM feed_images
		 WHERE cache_id = 1 ORDER BY position`,
	)
	if err != nil {
		return nil, fmt.Errorf("read cached images: %w", err)
	}
	defer rows.Close()

	images := []storage.LocalImage{}
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return nil, err
		}
		images = append(images, img)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read cached images: %w", err)
	}
	return &storage.CachedFeed{Images: images, Timestamp: time.Unix(sec, nsec).UTC()}, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanImage(s scanner) (storage.LocalImage, error) {
	var id, url string
	var desc, loc sql.NullString
	if err := s.Scan(&id, &desc, &loc, &url); err != nil {
		return storage.LocalImage{}, fmt.Errorf("scan image: %w", err)
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return storage.LocalImage{}, fmt.Errorf("decode image id %q: %w", id, err)
	}
	return storage.LocalImage{
		ID:          parsed,
		Description: strPtr(desc),
		Location:    strPtr(loc),
		URL:         url,
	}, nil
}

func nullStr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func strPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}
