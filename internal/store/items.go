package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Item is a typed node of the graph.
type Item struct {
	ID           uuid.UUID
	Type         string
	Properties   map[string]any
	DateCreated  time.Time
	DateModified time.Time
}

// Edge is a named, directed relationship between two items.
type Edge struct {
	ID     uuid.UUID
	Source uuid.UUID
	Target uuid.UUID
	Name   string
}

// Blob is binary content addressed by its hash.
type Blob struct {
	Hash string
	Data []byte
}

// Filter matches items of Type whose properties contain every Properties entry.
type Filter struct {
	Type       string
	Properties map[string]any
}

// Bulk is one transactional write.
type Bulk struct {
	CreateItems []Item
	UpdateItems []Item
	CreateEdges []Edge
}

func (b Bulk) Empty() bool {
	return len(b.CreateItems) == 0 && len(b.UpdateItems) == 0 && len(b.CreateEdges) == 0
}

// Search returns every live item matching f, oldest first.
func (s *Store) Search(ctx context.Context, f Filter) ([]Item, error) {
	props, err := marshalProps(f.Properties)
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, type, properties, date_created, date_modified
		FROM items
		WHERE type = $1 AND properties @> $2::jsonb AND NOT deleted
		ORDER BY date_created`,
		f.Type, props,
	)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", f.Type, err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", f.Type, err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// Lookup returns the first item matching f, or ErrNotFound.
func (s *Store) Lookup(ctx context.Context, f Filter) (*Item, error) {
	items, err := s.Search(ctx, f)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ErrNotFound
	}
	return &items[0], nil
}

// Get fetches a live item by id.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Item, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, type, properties, date_created, date_modified
		FROM items WHERE id = $1 AND NOT deleted`, id)

	it, err := scanItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get item %s: %w", id, err)
	}
	return &it, nil
}

// Create inserts a single item and returns its id. A nil id is assigned.
func (s *Store) Create(ctx context.Context, it Item) (uuid.UUID, error) {
	if it.ID == uuid.Nil {
		it.ID = uuid.New()
	}
	props, err := marshalProps(it.Properties)
	if err != nil {
		return uuid.Nil, err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO items (id, type, properties) VALUES ($1, $2, $3::jsonb)`,
		it.ID, it.Type, props,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert %s: %w", it.Type, err)
	}
	return it.ID, nil
}

// Edges lists the outgoing edges of source with the given name.
func (s *Store) Edges(ctx context.Context, source uuid.UUID, name string) ([]Edge, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, source, target, name FROM edges
		WHERE source = $1 AND name = $2
		ORDER BY date_created`, source, name)
	if err != nil {
		return nil, fmt.Errorf("query edges: %w", err)
	}
	defer rows.Close()

	var edges []Edge
	for rows.Next() {
		var e Edge
		if err := rows.Scan(&e.ID, &e.Source, &e.Target, &e.Name); err != nil {
			return nil, fmt.Errorf("scan edge: %w", err)
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

// BulkAction applies creates, updates and edge creates in one transaction.
// Edges that already exist are skipped.
func (s *Store) BulkAction(ctx context.Context, b Bulk) error {
	if b.Empty() {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, it := range b.CreateItems {
		props, err := marshalProps(it.Properties)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO items (id, type, properties) VALUES ($1, $2, $3::jsonb)`,
			it.ID, it.Type, props,
		); err != nil {
			return fmt.Errorf("insert %s %s: %w", it.Type, it.ID, err)
		}
	}

	for _, it := range b.UpdateItems {
		props, err := marshalProps(it.Properties)
		if err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `
			UPDATE items SET properties = $2::jsonb, date_modified = now()
			WHERE id = $1 AND NOT deleted`,
			it.ID, props,
		)
		if err != nil {
			return fmt.Errorf("update %s %s: %w", it.Type, it.ID, err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("update %s %s: %w", it.Type, it.ID, ErrNotFound)
		}
	}

	for _, e := range b.CreateEdges {
		id := e.ID
		if id == uuid.Nil {
			id = uuid.New()
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO edges (id, source, target, name) VALUES ($1, $2, $3, $4)
			ON CONFLICT (source, target, name) DO NOTHING`,
			id, e.Source, e.Target, e.Name,
		); err != nil {
			return fmt.Errorf("insert edge %s: %w", e.Name, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// UploadBlob stores binary content under its hash. Re-uploading the same hash
// is a no-op.
func (s *Store) UploadBlob(ctx context.Context, b Blob) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO blobs (hash, data, size) VALUES ($1, $2, $3)
		ON CONFLICT (hash) DO NOTHING`,
		b.Hash, b.Data, len(b.Data),
	)
	if err != nil {
		return fmt.Errorf("upload blob %s: %w", b.Hash, err)
	}
	return nil
}

func scanItem(row pgx.Row) (Item, error) {
	var (
		it  Item
		raw []byte
	)
	if err := row.Scan(&it.ID, &it.Type, &raw, &it.DateCreated, &it.DateModified); err != nil {
		return Item{}, err
	}
	if err := json.Unmarshal(raw, &it.Properties); err != nil {
		return Item{}, fmt.Errorf("decode properties: %w", err)
	}
	return it, nil
}

func marshalProps(props map[string]any) (string, error) {
	if props == nil {
		return "{}", nil
	}
	data, err := json.Marshal(props)
	if err != nil {
		return "", fmt.Errorf("marshal properties: %w", err)
	}
	return string(data), nil
}
