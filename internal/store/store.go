package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned by lookups that match nothing.
var ErrNotFound = errors.New("store: not found")

// Store is a graph-shaped object store on Postgres: typed items with JSON
// properties, named edges between them, and content-addressed blobs.
type Store struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS items (
	id            uuid PRIMARY KEY,
	type          text NOT NULL,
	properties    jsonb NOT NULL DEFAULT '{}'::jsonb,
	date_created  timestamptz NOT NULL DEFAULT now(),
	date_modified timestamptz NOT NULL DEFAULT now(),
	deleted       boolean NOT NULL DEFAULT false
);
CREATE INDEX IF NOT EXISTS items_type_idx ON items (type);
CREATE INDEX IF NOT EXISTS items_properties_idx ON items USING gin (properties jsonb_path_ops);

CREATE TABLE IF NOT EXISTS edges (
	id           uuid PRIMARY KEY,
	source       uuid NOT NULL REFERENCES items (id),
	target       uuid NOT NULL REFERENCES items (id),
	name         text NOT NULL,
	date_created timestamptz NOT NULL DEFAULT now(),
	UNIQUE (source, target, name)
);
CREATE INDEX IF NOT EXISTS edges_source_name_idx ON edges (source, name);

CREATE TABLE IF NOT EXISTS blobs (
	hash         text PRIMARY KEY,
	data         bytea NOT NULL,
	size         bigint NOT NULL,
	date_created timestamptz NOT NULL DEFAULT now()
);`

// EnsureSchema creates the tables if they do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
