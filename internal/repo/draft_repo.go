// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Draft model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a draft is not found by GetDraft, gorm.ErrRecordNotFound is
//     returned (also exported here as ErrNotFound for convenience).
//   - DeleteDraft and MarkDraftSynced are deliberately no-ops when the row is
//     absent: the draft may have been deleted locally between a pending scan
//     and the follow-up write, which is benign.
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-draftsync-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// SaveDraft inserts or updates a draft row and returns the assigned local id.
//
// When d.LocalID is zero a new row is inserted and SQLite assigns the next
// id. When it is non-zero the row is upserted by primary key, so repeated
// saves of the same draft never duplicate it. Every save stamps UpdatedAt
// and forces SyncStatus back to pending: a local write always represents
// state the remote system has not seen.
func SaveDraft(ctx context.Context, db *gorm.DB, d *domain.Draft) (int64, error) {
	d.UpdatedAt = time.Now().UTC()
	d.SyncStatus = domain.SyncStatusPending
	err := db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(d).Error
	if err != nil {
		return 0, err
	}
	return d.LocalID, nil
}

// ListDrafts returns every stored draft. Order is unspecified; callers that
// need a stable presentation order should use ListDraftsPage.
func ListDrafts(ctx context.Context, db *gorm.DB) ([]domain.Draft, error) {
	var out []domain.Draft
	err := db.WithContext(ctx).Find(&out).Error
	return out, err
}

// ListPendingDrafts returns all drafts with SyncStatus == pending via the
// secondary status index. Order is unspecified.
func ListPendingDrafts(ctx context.Context, db *gorm.DB) ([]domain.Draft, error) {
	var out []domain.Draft
	err := db.WithContext(ctx).
		Where("sync_status = ?", domain.SyncStatusPending).
		Find(&out).Error
	return out, err
}

// ListDraftsPage returns a paginated slice of drafts ordered by last local
// write descending (most recently edited first). Use CountDrafts to obtain
// the total for pagination metadata.
func ListDraftsPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.Draft, error) {
	var out []domain.Draft
	err := db.WithContext(ctx).
		Order("updated_at desc, local_id desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// GetDraft fetches a single draft by its local id. If the record does not
// exist, it returns ErrNotFound. On other DB errors, the raw error is
// returned.
func GetDraft(ctx context.Context, db *gorm.DB, localID int64) (*domain.Draft, error) {
	var d domain.Draft
	err := db.WithContext(ctx).
		Where("local_id = ?", localID).
		First(&d).Error
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// DeleteDraft removes a draft by local id. Deleting a draft that does not
// exist is a no-op, not an error.
func DeleteDraft(ctx context.Context, db *gorm.DB, localID int64) error {
	return db.WithContext(ctx).
		Where("local_id = ?", localID).
		Delete(&domain.Draft{}).Error
}

// MarkDraftSynced records a confirmed upload: it sets ServerID, transitions
// SyncStatus to synced, and stamps SyncedAt. If the draft was deleted locally
// in the meantime (zero rows affected), the call is a benign no-op.
//
// This is the only writer of ServerID, which keeps the invariant that a
// non-nil ServerID implies a synced row.
func MarkDraftSynced(ctx context.Context, db *gorm.DB, localID int64, serverID string) error {
	now := time.Now().UTC()
	res := db.WithContext(ctx).
		Model(&domain.Draft{}).
		Where("local_id = ?", localID).
		Updates(map[string]any{
			"server_id":   serverID,
			"sync_status": domain.SyncStatusSynced,
			"synced_at":   now,
		})
	return res.Error
}

// CountDrafts returns the total number of stored drafts.
func CountDrafts(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Draft{}).
		Count(&total).Error
	return total, err
}

// CountPendingDrafts returns the number of drafts still awaiting upload.
func CountPendingDrafts(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Draft{}).
		Where("sync_status = ?", domain.SyncStatusPending).
		Count(&total).Error
	return total, err
}

// CleanupSyncedBefore deletes synced drafts whose SyncedAt is strictly before
// cutoff and returns the number of rows removed. Rows with a NULL SyncedAt
// (which should not occur for synced drafts) are conservatively retained.
func CleanupSyncedBefore(ctx context.Context, db *gorm.DB, cutoff time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Where("sync_status = ? AND synced_at IS NOT NULL AND synced_at < ?",
			domain.SyncStatusSynced, cutoff).
		Delete(&domain.Draft{})
	return res.RowsAffected, res.Error
}
