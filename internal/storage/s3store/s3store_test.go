package s3store

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"

	"github.com/eugener/feedcache/internal/storage"
	"github.com/eugener/feedcache/internal/storage/storetest"
)

// fakeS3 is an in-memory object map keyed by bucket/key.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
	delErr  error
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte)}
}

func objectKey(bucket, key *string) string {
	return aws.ToString(bucket) + "/" + aws.ToString(key)
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.objects[objectKey(in.Bucket, in.Key)] = data
	f.mu.Unlock()
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	data, ok := f.objects[objectKey(in.Bucket, in.Key)]
	f.mu.Unlock()
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	if f.delErr != nil {
		return nil, f.delErr
	}
	f.mu.Lock()
	delete(f.objects, objectKey(in.Bucket, in.Key))
	f.mu.Unlock()
	return &s3.DeleteObjectOutput{}, nil
}

func newTestStore(t *testing.T, client Client) *Store {
	t.Helper()
	s := NewWithClient(client, Options{Bucket: "feeds", Key: "feed.json"})
	t.Cleanup(func() { s.Close() })
	return s
}

func TestS3StoreConformance(t *testing.T) {
	t.Parallel()
	storetest.AssertFeedStoreBehavior(t, func(t *testing.T) storage.FeedStore {
		return newTestStore(t, newFakeS3())
	})
}

func TestS3StoreFailableRetrieve(t *testing.T) {
	t.Parallel()
	storetest.AssertFailableRetrieve(t, func(t *testing.T) storage.FeedStore {
		f := newFakeS3()
		f.objects["feeds/feed.json"] = []byte("invalid data")
		return newTestStore(t, f)
	})
}

func TestS3StoreFailableInsert(t *testing.T) {
	t.Parallel()
	storetest.AssertFailableInsert(t, func(t *testing.T) storage.FeedStore {
		f := newFakeS3()
		f.putErr = errors.New("access denied")
		return newTestStore(t, f)
	})
}

func TestS3StoreFailableDelete(t *testing.T) {
	t.Parallel()
	storetest.AssertFailableDelete(t, func(t *testing.T) storage.FeedStore {
		f := newFakeS3()
		f.delErr = errors.New("access denied")
		return newTestStore(t, f)
	})
}

func TestNew_RequiresBucketAndKey(t *testing.T) {
	t.Parallel()
	if _, err := New(context.Background(), Options{Key: "feed.json"}); err == nil {
		t.Error("New without bucket err = nil, want error")
	}
}

// TestS3StoreConformance_Live runs the conformance suite against a real bucket
// when FEEDCACHE_TEST_S3_BUCKET is set.
func TestS3StoreConformance_Live(t *testing.T) {
	bucket := os.Getenv("FEEDCACHE_TEST_S3_BUCKET")
	if bucket == "" {
		t.Skip("FEEDCACHE_TEST_S3_BUCKET not set")
	}
	storetest.AssertFeedStoreBehavior(t, func(t *testing.T) storage.FeedStore {
		s, err := New(t.Context(), Options{
			Bucket:   bucket,
			Key:      "feedcache-test/" + uuid.NewString() + ".json",
			Region:   os.Getenv("AWS_REGION"),
			Endpoint: os.Getenv("FEEDCACHE_TEST_S3_ENDPOINT"),
		})
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() {
			storetest.Delete(t, s)
			s.Close()
		})
		return s
	})
}
