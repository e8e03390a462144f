// Package services – DraftService
//
// This file implements the DraftService, which owns the lifecycle of locally
// stored email drafts. It validates content and the target language tag,
// coordinates repository operations for saving (with upsert semantics),
// listing (with pagination), fetching, and deleting drafts, and runs the
// retention sweep that evicts old synchronized rows.
//
// Service-level errors (e.g., ErrDraftNotFound, ErrEmptyDraft) are returned
// for predictable cases so handlers can map them to HTTP results consistently.
package services

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-draftsync-backend/internal/domain"
	"github.com/tbourn/go-draftsync-backend/internal/search"

	// OpenTelemetry
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"golang.org/x/text/language"
)

// DefaultRetention is the window after which synchronized drafts become
// eligible for the retention sweep.
const DefaultRetention = 7 * 24 * time.Hour

// DraftRepo defines the repository contract required by DraftService.
// Implementations are responsible for persistence of draft rows.
type DraftRepo interface {
	// SaveDraft upserts a draft and returns the assigned local id.
	SaveDraft(ctx context.Context, db *gorm.DB, d *domain.Draft) (int64, error)

	// ListDrafts returns every stored draft (order unspecified).
	ListDrafts(ctx context.Context, db *gorm.DB) ([]domain.Draft, error)

	// ListDraftsPage returns a page of drafts, most recently edited first.
	ListDraftsPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.Draft, error)

	// GetDraft fetches a draft by local id.
	GetDraft(ctx context.Context, db *gorm.DB, localID int64) (*domain.Draft, error)

	// DeleteDraft removes a draft; absent rows are a no-op.
	DeleteDraft(ctx context.Context, db *gorm.DB, localID int64) error

	// CountDrafts returns the total row count for pagination.
	CountDrafts(ctx context.Context, db *gorm.DB) (int64, error)

	// CleanupSyncedBefore deletes synced drafts older than cutoff.
	CleanupSyncedBefore(ctx context.Context, db *gorm.DB, cutoff time.Time) (int64, error)
}

// DraftService provides draft-level operations: validated saves with upsert
// semantics, listing, deletion, text search, and the retention sweep.
type DraftService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Repo is the draft repository used by this service.
	Repo DraftRepo

	// Retention is how long synchronized drafts are kept before the sweep
	// removes them. Zero means DefaultRetention.
	Retention time.Duration
}

// NewDraftService constructs a DraftService with the default retention window.
func NewDraftService(db *gorm.DB, r DraftRepo) *DraftService {
	return &DraftService{
		DB:        db,
		Repo:      r,
		Retention: DefaultRetention,
	}
}

// Save validates and persists a draft, returning the assigned local id.
//
// Semantics:
//   - Drafts with no content at all (blank subject and bodies) are rejected
//     with ErrEmptyDraft; autosave callers treat that as "nothing to do".
//   - A non-empty TargetLang must parse as a BCP 47 tag (e.g. "de", "zh-CN");
//     otherwise ErrBadTargetLang. The canonicalized form is stored.
//   - The repository stamps UpdatedAt and resets SyncStatus to pending.
func (s *DraftService) Save(ctx context.Context, d *domain.Draft) (int64, error) {
	tr := otel.Tracer("services/DraftService")
	ctx, span := tr.Start(ctx, "Save",
		trace.WithAttributes(attribute.Int64("draft.local_id", d.LocalID)),
	)
	defer span.End()

	if d.IsEmpty() {
		return 0, ErrEmptyDraft
	}
	if d.TargetLang != "" {
		tag, err := language.Parse(d.TargetLang)
		if err != nil {
			return 0, ErrBadTargetLang
		}
		d.TargetLang = tag.String()
	}
	return s.Repo.SaveDraft(ctx, s.DB, d)
}

// Get returns a draft by local id, or ErrDraftNotFound.
func (s *DraftService) Get(ctx context.Context, localID int64) (*domain.Draft, error) {
	d, err := s.Repo.GetDraft(ctx, s.DB, localID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDraftNotFound
		}
		return nil, err
	}
	return d, nil
}

// ListPage returns a page of drafts (most recently edited first) and the
// total count. It applies defaults for invalid page/pageSize.
func (s *DraftService) ListPage(ctx context.Context, page, pageSize int) ([]domain.Draft, int64, error) {
	tr := otel.Tracer("services/DraftService")
	ctx, span := tr.Start(ctx, "ListPage",
		trace.WithAttributes(
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	total, err := s.Repo.CountDrafts(ctx, s.DB)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Draft{}, 0, nil
	}

	items, err := s.Repo.ListDraftsPage(ctx, s.DB, offset, pageSize)
	return items, total, err
}

// Delete removes a draft by local id. Deleting an absent draft is a no-op;
// the caller typically invokes this after a real send/submit completed.
func (s *DraftService) Delete(ctx context.Context, localID int64) error {
	return s.Repo.DeleteDraft(ctx, s.DB, localID)
}

// Search ranks stored drafts against a free-text query using the in-memory
// index, matching on subject and both bodies. It returns at most k results.
//
// The index is rebuilt per call; the local queue is small by construction
// (the sweep bounds its growth), so this stays cheap.
func (s *DraftService) Search(ctx context.Context, query string, k int) ([]search.Result, error) {
	tr := otel.Tracer("services/DraftService")
	ctx, span := tr.Start(ctx, "Search",
		trace.WithAttributes(attribute.Int("top_k", k)),
	)
	defer span.End()

	drafts, err := s.Repo.ListDrafts(ctx, s.DB)
	if err != nil {
		return nil, err
	}
	idx := search.NewIndexFromDrafts(drafts)
	return idx.TopK(query, k), nil
}

// CleanupSynced deletes synchronized drafts whose SyncedAt predates now minus
// the retention window and returns the number removed. Drafts still pending
// are never touched.
func (s *DraftService) CleanupSynced(ctx context.Context) (int64, error) {
	tr := otel.Tracer("services/DraftService")
	ctx, span := tr.Start(ctx, "CleanupSynced")
	defer span.End()

	retention := s.Retention
	if retention <= 0 {
		retention = DefaultRetention
	}
	cutoff := time.Now().UTC().Add(-retention)
	n, err := s.Repo.CleanupSyncedBefore(ctx, s.DB, cutoff)
	if err != nil {
		return 0, err
	}
	span.SetAttributes(attribute.Int64("deleted", n))
	return n, nil
}
