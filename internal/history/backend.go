package history

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// Backend names accepted by Open.
const (
	BackendFile     = "file"
	BackendGCS      = "gcs"
	BackendPostgres = "postgres"
)

// BackendConfig selects and configures a BlobStore.
type BackendConfig struct {
	Backend     string
	Dir         string
	Bucket      string
	Prefix      string
	DatabaseURL string
}

// Open returns the BlobStore named by cfg.Backend and a closer for it.
func Open(ctx context.Context, cfg BackendConfig) (BlobStore, io.Closer, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", BackendFile:
		s, err := NewFileBlobStore(cfg.Dir)
		if err != nil {
			return nil, nil, err
		}
		return s, nopCloser{}, nil
	case BackendGCS:
		s, err := NewGCSBlobStore(ctx, cfg.Bucket, cfg.Prefix)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	case BackendPostgres:
		s, err := NewPostgresBlobStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	default:
		return nil, nil, fmt.Errorf("Open: unknown history backend %q", cfg.Backend)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
