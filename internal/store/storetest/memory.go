// Package storetest provides an in-memory graph store for unit tests.
package storetest

import (
	"context"
	"encoding/json"
	"reflect"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/ihbar/internal/store"
)

// Memory implements the store operations on maps. Set the *Err fields to make
// the next calls fail.
type Memory struct {
	mu    sync.Mutex
	items map[uuid.UUID]store.Item
	order []uuid.UUID
	edges []store.Edge
	blobs map[string][]byte

	SearchErr error
	CreateErr error
	BulkErr   error
	UploadErr error

	// BulkDelay stalls every BulkAction before it touches the maps.
	BulkDelay time.Duration

	CreateCalls int
	BulkCalls   int
	UploadCalls int
}

func NewMemory() *Memory {
	return &Memory{
		items: make(map[uuid.UUID]store.Item),
		blobs: make(map[string][]byte),
	}
}

func (m *Memory) Search(_ context.Context, f store.Filter) ([]store.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SearchErr != nil {
		return nil, m.SearchErr
	}

	var out []store.Item
	for _, id := range m.order {
		it := m.items[id]
		if it.Type == f.Type && contains(it.Properties, f.Properties) {
			out = append(out, copyItem(it))
		}
	}
	return out, nil
}

func (m *Memory) Lookup(ctx context.Context, f store.Filter) (*store.Item, error) {
	items, err := m.Search(ctx, f)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, store.ErrNotFound
	}
	return &items[0], nil
}

func (m *Memory) Get(_ context.Context, id uuid.UUID) (*store.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	it, ok := m.items[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	c := copyItem(it)
	return &c, nil
}

func (m *Memory) Create(_ context.Context, it store.Item) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CreateCalls++
	if m.CreateErr != nil {
		return uuid.Nil, m.CreateErr
	}

	if it.ID == uuid.Nil {
		it.ID = uuid.New()
	}
	m.insert(it)
	return it.ID, nil
}

func (m *Memory) Edges(_ context.Context, source uuid.UUID, name string) ([]store.Edge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []store.Edge
	for _, e := range m.edges {
		if e.Source == source && e.Name == name {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *Memory) BulkAction(_ context.Context, b store.Bulk) error {
	if m.BulkDelay > 0 {
		time.Sleep(m.BulkDelay)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.BulkCalls++
	if m.BulkErr != nil {
		return m.BulkErr
	}
	for _, it := range b.UpdateItems {
		if _, ok := m.items[it.ID]; !ok {
			return store.ErrNotFound
		}
	}
	for _, it := range b.CreateItems {
		m.insert(it)
	}
	for _, it := range b.UpdateItems {
		prev := m.items[it.ID]
		it.DateCreated = prev.DateCreated
		it.DateModified = time.Now().UTC()
		it.Properties = roundTrip(it.Properties)
		m.items[it.ID] = it
	}
	for _, e := range b.CreateEdges {
		if !m.hasEdge(e) {
			if e.ID == uuid.Nil {
				e.ID = uuid.New()
			}
			m.edges = append(m.edges, e)
		}
	}
	return nil
}

func (m *Memory) UploadBlob(_ context.Context, b store.Blob) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.UploadCalls++
	if m.UploadErr != nil {
		return m.UploadErr
	}
	m.blobs[b.Hash] = append([]byte(nil), b.Data...)
	return nil
}

// ItemsOfType returns every stored item of type t.
func (m *Memory) ItemsOfType(t string) []store.Item {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []store.Item
	for _, id := range m.order {
		if it := m.items[id]; it.Type == t {
			out = append(out, copyItem(it))
		}
	}
	return out
}

// AllEdges returns every stored edge named name.
func (m *Memory) AllEdges(name string) []store.Edge {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []store.Edge
	for _, e := range m.edges {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}

// Blob returns uploaded content by hash.
func (m *Memory) Blob(hash string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.blobs[hash]
	return b, ok
}

func (m *Memory) insert(it store.Item) {
	now := time.Now().UTC()
	it.DateCreated, it.DateModified = now, now
	it.Properties = roundTrip(it.Properties)
	if _, exists := m.items[it.ID]; !exists {
		m.order = append(m.order, it.ID)
	}
	m.items[it.ID] = it
}

func (m *Memory) hasEdge(e store.Edge) bool {
	for _, have := range m.edges {
		if have.Source == e.Source && have.Target == e.Target && have.Name == e.Name {
			return true
		}
	}
	return false
}

// roundTrip stores properties the way a JSON column would return them, so
// numbers come back as float64.
func roundTrip(props map[string]any) map[string]any {
	out := map[string]any{}
	if props == nil {
		return out
	}
	data, err := json.Marshal(props)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		panic(err)
	}
	return out
}

func copyItem(it store.Item) store.Item {
	it.Properties = roundTrip(it.Properties)
	return it
}

func contains(have, want map[string]any) bool {
	have, want = roundTrip(have), roundTrip(want)
	for k, v := range want {
		if !reflect.DeepEqual(have[k], v) {
			return false
		}
	}
	return true
}
