package history

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const createBlobTable = `
CREATE TABLE IF NOT EXISTS history_blobs (
	key        TEXT PRIMARY KEY,
	data       JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresBlobStore keeps history documents in a key/value table.
type PostgresBlobStore struct {
	pool *pgxpool.Pool
}

// NewPostgresBlobStore connects to dbURL and ensures the table exists.
func NewPostgresBlobStore(ctx context.Context, dbURL string) (*PostgresBlobStore, error) {
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		return nil, fmt.Errorf("NewPostgresBlobStore: connect: %w", err)
	}
	if _, err := pool.Exec(ctx, createBlobTable); err != nil {
		pool.Close()
		return nil, fmt.Errorf("NewPostgresBlobStore: create table: %w", err)
	}
	return &PostgresBlobStore{pool: pool}, nil
}

// Get implements BlobStore.
func (p *PostgresBlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := p.pool.QueryRow(ctx, `SELECT data FROM history_blobs WHERE key = $1`, key).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrBlobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	return data, nil
}

// Put implements BlobStore.
func (p *PostgresBlobStore) Put(ctx context.Context, key string, data []byte) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO history_blobs (key, data, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET data = EXCLUDED.data, updated_at = now()`,
		key, string(data))
	if err != nil {
		return fmt.Errorf("Put: %w", err)
	}
	return nil
}

// Delete implements BlobStore.
func (p *PostgresBlobStore) Delete(ctx context.Context, key string) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM history_blobs WHERE key = $1`, key)
	if err != nil {
		return fmt.Errorf("Delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrBlobNotFound
	}
	return nil
}

// Close closes the pool.
func (p *PostgresBlobStore) Close() error {
	p.pool.Close()
	return nil
}
