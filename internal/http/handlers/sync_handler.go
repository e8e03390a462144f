// Sync and status HTTP handlers.
//
// This file exposes the synchronization trigger, the service status endpoint,
// and the editor snapshot feed:
//   - POST /sync    (push all pending drafts upstream now)
//   - GET  /status  (connectivity, queue counts, sync state)
//   - PUT  /editor  (replace the autosave snapshot with the editor's content)
//
// The desktop client calls PUT /editor on every keystroke burst; the autosave
// timer persists the latest snapshot on its interval, so this endpoint must
// stay cheap and never touch the store directly.
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-draftsync-backend/internal/domain"
	"github.com/tbourn/go-draftsync-backend/internal/repo"
	"github.com/tbourn/go-draftsync-backend/internal/services"
)

//
// Service contracts
//

// SyncCoordinator defines the synchronization operations consumed by HTTP
// handlers.
type SyncCoordinator interface {
	// SyncPending uploads every pending draft and returns per-batch counts.
	SyncPending(ctx context.Context) (services.Summary, error)
	// InFlight reports whether a sync pass is currently running.
	InFlight() bool
}

// NetStatus reports upstream connectivity as last observed by the monitor.
type NetStatus interface {
	IsOnline() bool
}

// EditorSink receives editor snapshots for deferred persistence.
type EditorSink interface {
	Update(d *domain.Draft)
}

//
// DTOs
//

// EditorSnapshotRequest is the JSON payload the client pushes on edits.
type EditorSnapshotRequest struct {
	// LocalID ties the snapshot to an existing draft; 0 means a new one.
	LocalID        int64  `json:"local_id"`
	To             string `json:"to"`
	Subject        string `json:"subject"`
	SourceBody     string `json:"source_body"`
	TranslatedBody string `json:"translated_body,omitempty"`
	TargetLang     string `json:"target_lang,omitempty"`
}

// StatusResponse summarizes the sidecar's state for the client UI.
type StatusResponse struct {
	Online        bool  `json:"online"`
	SyncInFlight  bool  `json:"sync_in_flight"`
	TotalDrafts   int64 `json:"total_drafts"`
	PendingDrafts int64 `json:"pending_drafts"`
	SyncedDrafts  int64 `json:"synced_drafts"`
}

//
// Handlers
//

// TriggerSync godoc
// @ID          triggerSync
// @Summary     Sync pending drafts now
// @Description Uploads every pending draft sequentially and returns how many
// @Description synced and how many failed. Returns 409 when a run is already
// @Description in flight; the client should retry later.
// @Tags        Sync
// @Produce     json
//
// @Success     200  {object}  services.Summary
// @Failure     409  {object}  handlers.ErrorResponse "Sync already running"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /sync [post]
func (h *Handlers) TriggerSync(c *gin.Context) {
	sum, err := h.syncSvc.SyncPending(c.Request.Context())
	if err != nil {
		if errors.Is(err, services.ErrSyncInProgress) {
			fail(c, http.StatusConflict, ErrCodeSyncBusy, "a sync run is already in progress")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeSyncFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, sum)
}

// Status godoc
// @ID          status
// @Summary     Service status
// @Description Reports connectivity, whether a sync pass is running, and the
// @Description local queue counts.
// @Tags        Sync
// @Produce     json
//
// @Success     200  {object}  handlers.StatusResponse
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /status [get]
func (h *Handlers) Status(c *gin.Context) {
	resp := StatusResponse{
		SyncInFlight: h.syncSvc != nil && h.syncSvc.InFlight(),
	}
	if h.net != nil {
		resp.Online = h.net.IsOnline()
	}

	if db := h.serviceDB(); db != nil {
		counts, err := repo.DraftStatusCounts(c.Request.Context(), db)
		if err != nil {
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
			return
		}
		resp.TotalDrafts = counts.Total
		resp.PendingDrafts = counts.Pending
		resp.SyncedDrafts = counts.Synced
	}
	ok(c, http.StatusOK, resp)
}

// UpdateEditor godoc
// @ID          updateEditor
// @Summary     Push an editor snapshot
// @Description Replaces the autosave timer's pending snapshot. The snapshot is
// @Description persisted on the next autosave tick, not immediately, so the
// @Description endpoint responds 202.
// @Tags        Editor
// @Accept      json
//
// @Param       body  body  handlers.EditorSnapshotRequest  true  "Current editor content"
//
// @Success     202  {string} string "Accepted"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Router      /editor [put]
func (h *Handlers) UpdateEditor(c *gin.Context) {
	if h.editor == nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "autosave is not wired")
		return
	}

	var req EditorSnapshotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	h.editor.Update(&domain.Draft{
		LocalID:        req.LocalID,
		To:             req.To,
		Subject:        req.Subject,
		SourceBody:     req.SourceBody,
		TranslatedBody: req.TranslatedBody,
		TargetLang:     req.TargetLang,
	})
	c.Status(http.StatusAccepted)
}
