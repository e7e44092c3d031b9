package history

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"time"

	"cloud.google.com/go/storage"
)

// GCSBlobStore keeps history documents as objects in a Cloud Storage bucket.
// It assumes Application Default Credentials are configured.
type GCSBlobStore struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCSBlobStore opens a storage client. Objects are written under prefix.
func NewGCSBlobStore(ctx context.Context, bucket, prefix string) (*GCSBlobStore, error) {
	if bucket == "" {
		return nil, fmt.Errorf("NewGCSBlobStore: bucket is required")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("NewGCSBlobStore: create storage client: %w", err)
	}
	return &GCSBlobStore{client: client, bucket: bucket, prefix: prefix}, nil
}

func (g *GCSBlobStore) object(key string) *storage.ObjectHandle {
	return g.client.Bucket(g.bucket).Object(path.Join(g.prefix, key+".json"))
}

// Get implements BlobStore.
func (g *GCSBlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	r, err := g.object(key).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, ErrBlobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("Get: open GCS object reader: %w", err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("Get: read GCS object: %w", err)
	}
	return data, nil
}

// Put implements BlobStore.
func (g *GCSBlobStore) Put(ctx context.Context, key string, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	w := g.object(key).NewWriter(ctx)
	w.ContentType = "application/json"

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("Put: write to GCS writer: %w", err)
	}
	// Close finalizes the upload.
	if err := w.Close(); err != nil {
		return fmt.Errorf("Put: finalize upload: %w", err)
	}
	return nil
}

// Delete implements BlobStore.
func (g *GCSBlobStore) Delete(ctx context.Context, key string) error {
	err := g.object(key).Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return ErrBlobNotFound
	}
	if err != nil {
		return fmt.Errorf("Delete: %w", err)
	}
	return nil
}

// Close releases the storage client.
func (g *GCSBlobStore) Close() error {
	return g.client.Close()
}
