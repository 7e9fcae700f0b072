// Package report turns a session into the persisted report graph.
package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/ihbar/internal/dedup"
	"github.com/MikeSquared-Agency/ihbar/internal/reporter"
	"github.com/MikeSquared-Agency/ihbar/internal/schema"
	"github.com/MikeSquared-Agency/ihbar/internal/session"
	"github.com/MikeSquared-Agency/ihbar/internal/store"
)

var (
	ErrNoCategory    = errors.New("report: session has no category")
	ErrStoreWrite    = errors.New("report: store write failed")
	ErrMediaDownload = errors.New("report: media download failed")
	// ErrUpload means the report was written but at least one photo payload
	// was not. The returned report id is valid.
	ErrUpload = errors.New("report: media upload failed")
)

type Store interface {
	Get(ctx context.Context, id uuid.UUID) (*store.Item, error)
	Edges(ctx context.Context, source uuid.UUID, name string) ([]store.Edge, error)
	BulkAction(ctx context.Context, b store.Bulk) error
	UploadBlob(ctx context.Context, b store.Blob) error
}

type Reporters interface {
	Lookup(ctx context.Context, id session.Identity) reporter.Result
}

// MediaFetcher downloads a photo by its platform file id.
type MediaFetcher interface {
	Download(ctx context.Context, fileID string) ([]byte, error)
}

// Assembler performs the deduplicated upsert of a session's report.
type Assembler struct {
	store     Store
	reporters Reporters
	media     MediaFetcher
	index     *dedup.Index
	logger    *slog.Logger
}

func NewAssembler(s Store, r Reporters, m MediaFetcher, idx *dedup.Index, logger *slog.Logger) *Assembler {
	return &Assembler{store: s, reporters: r, media: m, index: idx, logger: logger}
}

// SaveOrUpdate creates the session's report on first call and updates it on
// later calls. On a successful write the report id and the saved text are
// written back into s. A failed write leaves s and the dedup index untouched.
func (a *Assembler) SaveOrUpdate(ctx context.Context, s *session.Session) (uuid.UUID, error) {
	if !s.HasPath() {
		return uuid.Nil, ErrNoCategory
	}

	res := a.reporters.Lookup(ctx, s.Identity)
	if !res.Found() {
		return uuid.Nil, fmt.Errorf("save report for %s: %w", s.Identity.Key(), reporter.ErrUnregistered)
	}

	rep, isNew, err := a.loadReport(ctx, s)
	if err != nil {
		return uuid.Nil, err
	}
	rep.AppendText(s.UnsavedText())
	rep.Status = s.Status.String()

	var bulk store.Bulk
	if isNew {
		bulk.CreateItems = append(bulk.CreateItems, rep.Item())
	} else {
		bulk.UpdateItems = append(bulk.UpdateItems, rep.Item())
	}

	needReporter := isNew
	if !isNew {
		existing, err := a.store.Edges(ctx, rep.ID, schema.EdgeReporter)
		if err != nil {
			return uuid.Nil, fmt.Errorf("load reporter edge of %s: %w", rep.ID, err)
		}
		needReporter = len(existing) == 0
	}
	if needReporter {
		bulk.CreateEdges = append(bulk.CreateEdges, store.Edge{Source: rep.ID, Target: res.Reporter.ID, Name: schema.EdgeReporter})
	}

	uploads, linked, err := a.write(ctx, rep.ID, s, bulk)
	if err != nil {
		return uuid.Nil, err
	}

	s.ReportID = rep.ID
	s.SavedText = s.FreeText

	a.logger.Info("report saved",
		"report_id", rep.ID,
		"user_key", s.Identity.Key(),
		"created", isNew,
		"linked", linked,
		"uploads", len(uploads),
	)

	var uploadErrs []error
	for _, b := range uploads {
		if err := a.store.UploadBlob(ctx, b); err != nil {
			uploadErrs = append(uploadErrs, fmt.Errorf("blob %s: %w", b.Hash, err))
		}
	}
	if len(uploadErrs) > 0 {
		return rep.ID, fmt.Errorf("%w: %w", ErrUpload, errors.Join(uploadErrs...))
	}
	return rep.ID, nil
}

// write resolves the session's locations and photos against the dedup index,
// stores bulk with them and commits the batch. The keys stay locked from
// resolution to commit.
func (a *Assembler) write(ctx context.Context, reportID uuid.UUID, s *session.Session, bulk store.Bulk) ([]store.Blob, int, error) {
	refs := make([]dedup.Ref, 0, len(s.Locations)+len(s.Photos))
	for _, c := range s.Locations {
		refs = append(refs, dedup.Ref{Kind: dedup.KindLocation, Key: dedup.LocationKey(c)})
	}
	for _, p := range s.Photos {
		refs = append(refs, dedup.Ref{Kind: dedup.KindPhoto, Key: p.Key()})
	}
	unlock := a.index.Lock(refs...)
	defer unlock()

	var batch dedup.Batch
	a.addLocations(reportID, s.Locations, &bulk, &batch)

	uploads, err := a.addPhotos(ctx, reportID, s.Photos, &bulk, &batch)
	if err != nil {
		return nil, 0, err
	}

	if err := a.store.BulkAction(ctx, bulk); err != nil {
		return nil, 0, fmt.Errorf("%w: report %s: %w", ErrStoreWrite, reportID, err)
	}
	a.index.Commit(reportID, &batch)
	return uploads, batch.Len(), nil
}

func (a *Assembler) loadReport(ctx context.Context, s *session.Session) (*schema.Report, bool, error) {
	if s.ReportID == uuid.Nil {
		subtype := ""
		if len(s.Path) > 1 {
			subtype = s.Path[1]
		}
		return schema.NewReport(s.Path[0], subtype), true, nil
	}

	it, err := a.store.Get(ctx, s.ReportID)
	if err != nil {
		return nil, false, fmt.Errorf("load report %s: %w", s.ReportID, err)
	}
	rep, err := schema.ReportFromItem(*it)
	if err != nil {
		return nil, false, err
	}
	return rep, false, nil
}

func (a *Assembler) addLocations(reportID uuid.UUID, coords []session.Coordinate, bulk *store.Bulk, batch *dedup.Batch) {
	seen := make(map[string]bool, len(coords))
	for _, c := range coords {
		key := dedup.LocationKey(c)
		if seen[key] || a.index.Linked(reportID, dedup.KindLocation, key) {
			continue
		}
		seen[key] = true

		id, ok := a.index.Entity(dedup.KindLocation, key)
		if !ok {
			loc := &schema.Location{ID: uuid.New(), Latitude: c.Latitude, Longitude: c.Longitude}
			bulk.CreateItems = append(bulk.CreateItems, loc.Item())
			id = loc.ID
		}
		bulk.CreateEdges = append(bulk.CreateEdges, store.Edge{Source: reportID, Target: id, Name: schema.EdgeLocation})
		batch.Add(dedup.KindLocation, key, id)
	}
}

func (a *Assembler) addPhotos(ctx context.Context, reportID uuid.UUID, photos []session.PhotoRef, bulk *store.Bulk, batch *dedup.Batch) ([]store.Blob, error) {
	var uploads []store.Blob
	seen := make(map[string]bool, len(photos))
	for _, p := range photos {
		key := p.Key()
		if seen[key] || a.index.Linked(reportID, dedup.KindPhoto, key) {
			continue
		}
		seen[key] = true

		id, ok := a.index.Entity(dedup.KindPhoto, key)
		if !ok {
			data, err := a.media.Download(ctx, p.FileID)
			if err != nil {
				return nil, fmt.Errorf("%w: file %s: %w", ErrMediaDownload, p.FileID, err)
			}
			photo, blob := schema.PhotoFromBytes(data)
			bulk.CreateItems = append(bulk.CreateItems, photo.Item(), photo.File.Item())
			bulk.CreateEdges = append(bulk.CreateEdges, photo.Edges()...)
			uploads = append(uploads, blob)
			id = photo.ID
		}
		bulk.CreateEdges = append(bulk.CreateEdges, store.Edge{Source: reportID, Target: id, Name: schema.EdgePhoto})
		batch.Add(dedup.KindPhoto, key, id)
	}
	return uploads, nil
}
