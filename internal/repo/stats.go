// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate/statistics queries used
// primarily for conditional responses (e.g., ETag generation) and the status
// endpoint in the HTTP layer. Each function is context-aware and safe to call
// from services or handlers.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-draftsync-backend/internal/domain"
)

// DraftsStats returns aggregate metadata for the draft store: the total
// number of rows and the maximum UpdatedAt timestamp among those rows.
//
// When the store is empty, the returned count is 0 and maxUpdatedAt is nil.
//
// Return values:
//   - count:        total drafts in the store
//   - maxUpdatedAt: pointer to the greatest UpdatedAt, or nil if no rows
//   - err:          database error, if any
func DraftsStats(ctx context.Context, db *gorm.DB) (count int64, maxUpdatedAt *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.Draft{})

	// Count
	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Get latest updated_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		UpdatedAt time.Time
	}
	if err = q.Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.UpdatedAt, nil
}

// StatusCounts aggregates drafts by synchronization state for the status
// endpoint ("N of M drafts synced" in the client UI).
type StatusCounts struct {
	Total   int64
	Pending int64
	Synced  int64
}

// DraftStatusCounts returns per-status totals in a single grouped query.
// Statuses other than pending/synced (the declared-but-unused conflict state)
// contribute to Total only.
func DraftStatusCounts(ctx context.Context, db *gorm.DB) (StatusCounts, error) {
	var rows []struct {
		SyncStatus string
		N          int64
	}
	err := db.WithContext(ctx).
		Model(&domain.Draft{}).
		Select("sync_status, COUNT(*) AS n").
		Group("sync_status").
		Scan(&rows).Error
	if err != nil {
		return StatusCounts{}, err
	}

	var out StatusCounts
	for _, r := range rows {
		out.Total += r.N
		switch r.SyncStatus {
		case domain.SyncStatusPending:
			out.Pending = r.N
		case domain.SyncStatusSynced:
			out.Synced = r.N
		}
	}
	return out, nil
}
