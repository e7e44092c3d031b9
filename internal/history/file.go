package history

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// FileBlobStore keeps each key as a JSON file under a directory.
type FileBlobStore struct {
	dir string
}

// NewFileBlobStore creates the directory if needed.
func NewFileBlobStore(dir string) (*FileBlobStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("NewFileBlobStore: create %s: %w", dir, err)
	}
	return &FileBlobStore{dir: dir}, nil
}

func (f *FileBlobStore) path(key string) string {
	return filepath.Join(f.dir, filepath.FromSlash(key)+".json")
}

// Get implements BlobStore.
func (f *FileBlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(f.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrBlobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	return data, nil
}

// Put implements BlobStore. The file is replaced atomically.
func (f *FileBlobStore) Put(ctx context.Context, key string, data []byte) error {
	target := f.path(key)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("Put: create dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".history-*")
	if err != nil {
		return fmt.Errorf("Put: temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("Put: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("Put: close: %w", err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return fmt.Errorf("Put: rename: %w", err)
	}
	return nil
}

// Delete implements BlobStore.
func (f *FileBlobStore) Delete(ctx context.Context, key string) error {
	err := os.Remove(f.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return ErrBlobNotFound
	}
	if err != nil {
		return fmt.Errorf("Delete: %w", err)
	}
	return nil
}
