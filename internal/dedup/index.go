// Package dedup remembers which locations and photos have already been
// materialized as graph entities in this process, and which reports link them.
package dedup

import (
	"sort"
	"strconv"
	"sync"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/ihbar/internal/session"
)

// Kind separates the location and photo key spaces.
type Kind string

const (
	KindLocation Kind = "location"
	KindPhoto    Kind = "photo"
)

type entityKey struct {
	kind Kind
	key  string
}

type linkKey struct {
	report uuid.UUID
	entity entityKey
}

// Index is safe for concurrent use. It is process-local: a restart forgets
// everything, and two processes do not share it.
//
// Entity and Commit are only consistent for a key while its Lock is held:
// writers resolve, write and commit under the lock so two reports never
// materialize the same location or photo twice.
type Index struct {
	mu       sync.RWMutex
	entities map[entityKey]uuid.UUID
	links    map[linkKey]struct{}
	keyLocks map[entityKey]*sync.Mutex
}

func NewIndex() *Index {
	return &Index{
		entities: make(map[entityKey]uuid.UUID),
		links:    make(map[linkKey]struct{}),
		keyLocks: make(map[entityKey]*sync.Mutex),
	}
}

// Ref names one dedup key.
type Ref struct {
	Kind Kind
	Key  string
}

// Lock acquires the locks of refs and returns the function releasing them.
// Locks are taken in sorted order so overlapping callers cannot deadlock.
func (x *Index) Lock(refs ...Ref) (unlock func()) {
	keys := make([]entityKey, 0, len(refs))
	seen := make(map[entityKey]bool, len(refs))
	for _, r := range refs {
		k := entityKey{r.Kind, r.Key}
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].kind != keys[j].kind {
			return keys[i].kind < keys[j].kind
		}
		return keys[i].key < keys[j].key
	})

	locks := make([]*sync.Mutex, len(keys))
	x.mu.Lock()
	for i, k := range keys {
		m, ok := x.keyLocks[k]
		if !ok {
			m = &sync.Mutex{}
			x.keyLocks[k] = m
		}
		locks[i] = m
	}
	x.mu.Unlock()

	for _, m := range locks {
		m.Lock()
	}
	return func() {
		for i := len(locks) - 1; i >= 0; i-- {
			locks[i].Unlock()
		}
	}
}

// LocationKey is the exact (latitude, longitude) value.
func LocationKey(c session.Coordinate) string {
	return strconv.FormatFloat(c.Latitude, 'g', -1, 64) + "|" + strconv.FormatFloat(c.Longitude, 'g', -1, 64)
}

// Entity returns the id of the entity already stored for key.
func (x *Index) Entity(kind Kind, key string) (uuid.UUID, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	id, ok := x.entities[entityKey{kind, key}]
	return id, ok
}

// Linked reports whether report already has an edge to the entity for key.
func (x *Index) Linked(report uuid.UUID, kind Kind, key string) bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	_, ok := x.links[linkKey{report, entityKey{kind, key}}]
	return ok
}

// Batch collects the entities and links of one write before it is committed.
type Batch struct {
	entries []batchEntry
}

type batchEntry struct {
	kind   Kind
	key    string
	entity uuid.UUID
}

// Add records that key is represented by entity and linked from the report.
func (b *Batch) Add(kind Kind, key string, entity uuid.UUID) {
	b.entries = append(b.entries, batchEntry{kind, key, entity})
}

func (b *Batch) Len() int { return len(b.entries) }

// Commit records a successfully written batch for report. Nothing is recorded
// for writes that failed, so a retry materializes them again.
func (x *Index) Commit(report uuid.UUID, b *Batch) {
	if b == nil {
		return
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	for _, e := range b.entries {
		k := entityKey{e.kind, e.key}
		if _, ok := x.entities[k]; !ok {
			x.entities[k] = e.entity
		}
		x.links[linkKey{report, k}] = struct{}{}
	}
}

// Stats reports how many entities of each kind are indexed.
func (x *Index) Stats() map[Kind]int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	out := map[Kind]int{}
	for k := range x.entities {
		out[k.kind]++
	}
	return out
}
