package reporter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sync"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/ihbar/internal/schema"
	"github.com/MikeSquared-Agency/ihbar/internal/session"
	"github.com/MikeSquared-Agency/ihbar/internal/store"
)

// ErrUnregistered is returned when an operation needs a registered reporter.
var ErrUnregistered = errors.New("reporter: not registered")

// phonePattern matches Turkish mobile numbers as people type them in
// registration text: 05551234567 and 5551234567 as typed, and the 0555...
// tail of +905551234567 (the country code is not captured).
var phonePattern = regexp.MustCompile(`(\+?0?5[3456]\d{7,9})`)

// ExtractPhone returns the first phone number in text.
func ExtractPhone(text string) (string, bool) {
	m := phonePattern.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// Store is the part of the graph store the directory needs.
type Store interface {
	Lookup(ctx context.Context, f store.Filter) (*store.Item, error)
	Create(ctx context.Context, it store.Item) (uuid.UUID, error)
	BulkAction(ctx context.Context, b store.Bulk) error
}

type Status int

const (
	NotFound Status = iota
	Found
)

// Result is the outcome of a lookup: Found with the reporter, or NotFound.
type Result struct {
	Status   Status
	Reporter *schema.Reporter
}

func (r Result) Found() bool { return r.Status == Found }

// Directory finds and registers reporters, caching them in process.
type Directory struct {
	store  Store
	logger *slog.Logger

	mu    sync.RWMutex
	cache map[string]*schema.Reporter
}

func NewDirectory(s Store, logger *slog.Logger) *Directory {
	return &Directory{
		store:  s,
		logger: logger,
		cache:  make(map[string]*schema.Reporter),
	}
}

// Lookup checks the cache, then the store. Store failures are logged and
// reported as NotFound, which sends the user to registration.
func (d *Directory) Lookup(ctx context.Context, id session.Identity) Result {
	key := id.Key()

	d.mu.RLock()
	r, ok := d.cache[key]
	d.mu.RUnlock()
	if ok {
		return Result{Status: Found, Reporter: r}
	}

	it, err := d.store.Lookup(ctx, schema.ReporterFilter(key))
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			d.logger.Error("reporter lookup failed, treating as unregistered", "user_key", key, "error", err)
		}
		return Result{Status: NotFound}
	}

	r = schema.ReporterFromItem(*it)
	d.remember(r)
	d.logger.Debug("reporter loaded from store", "user_key", key, "reporter_id", r.ID)
	return Result{Status: Found, Reporter: r}
}

// Register stores a new reporter with the free-text registration info. A
// phone number found in the text is stored as its own item and linked in the
// same write.
func (d *Directory) Register(ctx context.Context, id session.Identity, info string) (*schema.Reporter, error) {
	r := &schema.Reporter{
		ID:          uuid.New(),
		UserKey:     id.Key(),
		Username:    id.Username,
		Information: info,
	}

	phone, hasPhone := ExtractPhone(info)
	var err error
	if hasPhone {
		p := &schema.PhoneNumber{ID: uuid.New(), PhoneNumber: phone}
		err = d.store.BulkAction(ctx, store.Bulk{
			CreateItems: []store.Item{r.Item(), p.Item()},
			CreateEdges: []store.Edge{{Source: r.ID, Target: p.ID, Name: schema.EdgeHasPhoneNumber}},
		})
	} else {
		_, err = d.store.Create(ctx, r.Item())
	}
	if err != nil {
		return nil, fmt.Errorf("register reporter %s: %w", r.UserKey, err)
	}

	d.remember(r)
	d.logger.Info("reporter registered", "user_key", r.UserKey, "reporter_id", r.ID, "has_phone", hasPhone)
	return r, nil
}

func (d *Directory) remember(r *schema.Reporter) {
	d.mu.Lock()
	d.cache[r.UserKey] = r
	d.mu.Unlock()
}
