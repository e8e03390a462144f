// Package services – SyncService
//
// This file implements the synchronization coordinator: it reconciles locally
// pending drafts with the remote system by pushing each one through an
// injected Uploader and recording confirmed server identifiers. Transport
// concerns (HTTP, auth, timeouts) live entirely inside the Uploader
// implementation; the coordinator only sequences uploads and store updates.
package services

import (
	"context"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-draftsync-backend/internal/domain"
	"github.com/tbourn/go-draftsync-backend/internal/repo"

	// OpenTelemetry
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// Uploader pushes a single draft to the remote system and returns the server
// identifier assigned to it. Implementations own their transport, timeout,
// and retry policy; the coordinator treats any error (or an empty identifier)
// as a per-draft failure.
type Uploader interface {
	Upload(ctx context.Context, d *domain.Draft) (serverID string, err error)
}

// UploadFunc adapts a plain function to the Uploader interface.
type UploadFunc func(ctx context.Context, d *domain.Draft) (string, error)

// Upload implements Uploader.
func (f UploadFunc) Upload(ctx context.Context, d *domain.Draft) (string, error) {
	return f(ctx, d)
}

// Summary aggregates the outcome of one synchronization pass. The client UI
// renders it as "N of M drafts synced".
type Summary struct {
	Synced int `json:"synced"`
	Failed int `json:"failed"`
}

// SyncService walks the pending queue and uploads drafts one at a time.
//
// Ordering: drafts are processed strictly sequentially — the upload for draft
// N+1 does not start until draft N's outcome is resolved and its store update
// has completed. This bounds load on the remote endpoint to a single
// in-flight request from this process.
//
// Re-entrancy: a run that is still in flight causes concurrent SyncPending
// calls to return ErrSyncInProgress instead of racing to upload the same
// rows. Callers (reconnect hook, cron, manual trigger) simply try again
// later.
type SyncService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Uploader pushes drafts to the remote system.
	Uploader Uploader

	busy atomic.Bool
}

// NewSyncService constructs a SyncService around the given store handle and
// uploader.
func NewSyncService(db *gorm.DB, up Uploader) *SyncService {
	return &SyncService{DB: db, Uploader: up}
}

// SyncPending uploads every pending draft and returns per-batch counts.
//
// Semantics:
//   - An empty queue returns {0, 0} immediately without touching the uploader.
//   - On upload success with a non-empty server id, the draft is marked
//     synced (server id + timestamp recorded).
//   - On upload error, or an empty returned id, the draft stays pending for
//     a future retry; the failure is logged and counted, and the batch
//     continues. One bad draft never aborts the rest.
//   - A draft deleted locally mid-batch makes the synced-marking a benign
//     no-op.
//
// Only store-level failures (listing the queue, writing the synced mark) are
// returned as errors; upload failures are aggregated into the Summary.
func (s *SyncService) SyncPending(ctx context.Context) (Summary, error) {
	tr := otel.Tracer("services/SyncService")
	ctx, span := tr.Start(ctx, "SyncPending")
	defer span.End()

	if s.Uploader == nil {
		return Summary{}, ErrNoUploader
	}
	if !s.busy.CompareAndSwap(false, true) {
		return Summary{}, ErrSyncInProgress
	}
	defer s.busy.Store(false)

	pending, err := repo.ListPendingDrafts(ctx, s.DB)
	if err != nil {
		return Summary{}, err
	}
	if len(pending) == 0 {
		return Summary{}, nil
	}

	var out Summary
	for i := range pending {
		d := &pending[i]

		serverID, err := s.Uploader.Upload(ctx, d)
		if err != nil || serverID == "" {
			out.Failed++
			log.Warn().
				Int64("local_id", d.LocalID).
				Err(err).
				Msg("draft upload failed; will retry on next sync")
			continue
		}

		if err := repo.MarkDraftSynced(ctx, s.DB, d.LocalID, serverID); err != nil {
			// The upload succeeded but the local mark did not; surface the
			// store failure after finishing the span bookkeeping. The draft
			// stays pending, so the worst case is a duplicate upload later.
			span.SetAttributes(
				attribute.Int("synced", out.Synced),
				attribute.Int("failed", out.Failed),
			)
			return out, err
		}
		out.Synced++
		log.Debug().
			Int64("local_id", d.LocalID).
			Str("server_id", serverID).
			Msg("draft synced")
	}

	span.SetAttributes(
		attribute.Int("synced", out.Synced),
		attribute.Int("failed", out.Failed),
	)
	return out, nil
}

// InFlight reports whether a synchronization pass is currently running.
func (s *SyncService) InFlight() bool { return s.busy.Load() }
