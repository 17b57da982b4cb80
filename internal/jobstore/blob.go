package jobstore

import (
	"context"
	"encoding/json"
	"fmt"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob" // file:// driver
	_ "gocloud.dev/blob/gcsblob"  // GCS driver
	_ "gocloud.dev/blob/memblob"  // mem:// driver
	_ "gocloud.dev/blob/s3blob"   // S3 driver
	"gocloud.dev/gcerrors"
)

// BlobStore persists the descriptor as a JSON object in any gocloud bucket.
type BlobStore struct {
	bucket *blob.Bucket
	key    string
}

// OpenBlobStore opens the bucket at bucketURL (gs://, s3://, file://, mem://).
func OpenBlobStore(ctx context.Context, bucketURL, name string) (*BlobStore, error) {
	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, fmt.Errorf("open bucket %s: %w", bucketURL, err)
	}
	return NewBlobStore(bucket, name), nil
}

// NewBlobStore wraps an already opened bucket. The store takes ownership of it.
func NewBlobStore(bucket *blob.Bucket, name string) *BlobStore {
	return &BlobStore{
		bucket: bucket,
		key:    fmt.Sprintf("jobs/%s.json", name),
	}
}

func (s *BlobStore) Load(ctx context.Context) (*Descriptor, error) {
	data, err := s.bucket.ReadAll(ctx, s.key)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, ErrNoJob
		}
		return nil, fmt.Errorf("read %s: %w", s.key, err)
	}
	return decode(data)
}

func (s *BlobStore) Save(ctx context.Context, d *Descriptor) error {
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal descriptor: %w", err)
	}
	opts := &blob.WriterOptions{ContentType: "application/json"}
	if err := s.bucket.WriteAll(ctx, s.key, data, opts); err != nil {
		return fmt.Errorf("write %s: %w", s.key, err)
	}
	return nil
}

func (s *BlobStore) Clear(ctx context.Context) error {
	if err := s.bucket.Delete(ctx, s.key); err != nil && gcerrors.Code(err) != gcerrors.NotFound {
		return fmt.Errorf("delete %s: %w", s.key, err)
	}
	return nil
}

// Close releases the bucket connection.
func (s *BlobStore) Close() error {
	if s.bucket != nil {
		return s.bucket.Close()
	}
	return nil
}
