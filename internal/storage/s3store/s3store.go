// Package s3store implements storage.Store as a single object in an S3 bucket.
package s3store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/eugener/feedcache/internal/storage"
	"github.com/eugener/feedcache/internal/storage/queue"
)

var _ storage.Store = (*Store)(nil)

const defaultOpTimeout = 30 * time.Second

// Client is the subset of the S3 API the store uses.
type Client interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Options configures a Store.
type Options struct {
	Bucket    string
	Key       string
	Region    string
	Endpoint  string        // optional, for S3-compatible services
	OpTimeout time.Duration // per-request timeout; 0 means 30s
}

// Store keeps the snapshot as one JSON object. A PUT replaces the object
// atomically, so readers never observe a partial snapshot.
type Store struct {
	client    Client
	bucket    string
	key       string
	opTimeout time.Duration
	queue     *queue.Queue
}

// New loads AWS credentials from the default chain and returns a Store.
func New(ctx context.Context, opts Options) (*Store, error) {
	if opts.Bucket == "" || opts.Key == "" {
		return nil, errors.New("s3store: bucket and key are required")
	}
	var loadOpts []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("s3store: load aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewWithClient(client, opts), nil
}

// NewWithClient returns a Store using an existing client.
func NewWithClient(client Client, opts Options) *Store {
	timeout := opts.OpTimeout
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}
	return &Store{
		client:    client,
		bucket:    opts.Bucket,
		key:       opts.Key,
		opTimeout: timeout,
		queue:     queue.New(),
	}
}

// DeleteCachedFeed removes the object. S3 deletes of a missing key succeed.
func (s *Store) DeleteCachedFeed(completion storage.DeletionCompletion) {
	if err := s.queue.Submit(func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.opTimeout)
		defer cancel()
		_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(s.key),
		})
		if err != nil {
			err = fmt.Errorf("s3store: delete object: %w", err)
		}
		completion(err)
	}); err != nil {
		completion(err)
	}
}

// Insert uploads the encoded snapshot, replacing any previous object.
func (s *Store) Insert(images []storage.LocalImage, timestamp time.Time, completion storage.InsertionCompletion) {
	if err := s.queue.Submit(func() {
		completion(s.put(images, timestamp))
	}); err != nil {
		completion(err)
	}
}

// Retrieve downloads and decodes the snapshot; a missing key is empty.
func (s *Store) Retrieve(completion storage.RetrievalCompletion) {
	if err := s.queue.Submit(func() {
		completion(s.get())
	}); err != nil {
		completion(nil, err)
	}
}

// Close stops the worker after queued operations finish.
func (s *Store) Close() error {
	s.queue.Close()
	return nil
}

func (s *Store) put(images []storage.LocalImage, timestamp time.Time) error {
	data, err := storage.EncodeSnapshot(images, timestamp)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.opTimeout)
	defer cancel()
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("s3store: put object: %w", err)
	}
	return nil
}

func (s *Store) get() (*storage.CachedFeed, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.opTimeout)
	defer cancel()
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, nil
		}
		return nil, fmt.Errorf("s3store: get object: %w", err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("s3store: read object: %w", err)
	}
	return storage.DecodeSnapshot(data)
}
