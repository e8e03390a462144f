// Draft HTTP handlers.
//
// This file exposes REST endpoints for draft resources:
//   - POST   /drafts               (create/upsert)
//   - GET    /drafts               (list, paginated, ETag support)
//   - GET    /drafts/{id}          (fetch one)
//   - PUT    /drafts/{id}          (update)
//   - DELETE /drafts/{id}          (delete, e.g. after a real send)
//   - GET    /drafts/search        (rank drafts against a query)
//   - POST   /maintenance/cleanup  (run the retention sweep now)
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses (including conditional responses).
package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/tbourn/go-draftsync-backend/internal/domain"
	"github.com/tbourn/go-draftsync-backend/internal/http/middleware"
	"github.com/tbourn/go-draftsync-backend/internal/repo"
	"github.com/tbourn/go-draftsync-backend/internal/search"
	"github.com/tbourn/go-draftsync-backend/internal/services"
	"github.com/tbourn/go-draftsync-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// DraftService defines draft lifecycle operations consumed by HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type DraftService interface {
	// Save validates and upserts a draft, returning its local id.
	Save(ctx context.Context, d *domain.Draft) (int64, error)
	// Get fetches a draft by local id.
	Get(ctx context.Context, localID int64) (*domain.Draft, error)
	// ListPage returns a page of drafts and the total count.
	ListPage(ctx context.Context, page, pageSize int) ([]domain.Draft, int64, error)
	// Delete removes a draft; absent drafts are a no-op.
	Delete(ctx context.Context, localID int64) error
	// Search ranks drafts against a free-text query.
	Search(ctx context.Context, query string, k int) ([]search.Result, error)
	// CleanupSynced runs the retention sweep and reports rows removed.
	CleanupSynced(ctx context.Context) (int64, error)
}

// defaultIdempotencyTTL bounds how long a stored save key can be replayed
// when no TTL is configured.
const defaultIdempotencyTTL = 24 * time.Hour

// idemScopeDrafts scopes stored idempotency keys to draft saves.
const idemScopeDrafts = "drafts"

//
// DTOs
//

// SaveDraftRequest is the JSON payload for creating or updating a draft.
type SaveDraftRequest struct {
	// To is the recipient address shown in the editor.
	To string `json:"to" example:"supplier@example.com"`
	// Subject is the draft subject line.
	Subject string `json:"subject" example:"RFQ: stainless bolts"`
	// SourceBody is the text the user typed.
	SourceBody string `json:"source_body" example:"Please quote 500 units."`
	// TranslatedBody is the machine-translated text, if any.
	TranslatedBody string `json:"translated_body,omitempty"`
	// TargetLang is an optional BCP 47 tag, e.g. "ja" or "zh-CN".
	TargetLang string `json:"target_lang,omitempty" example:"ja"`
}

// SaveDraftResponse reports the stored draft's identifiers after a save.
type SaveDraftResponse struct {
	LocalID    int64  `json:"local_id"`
	SyncStatus string `json:"sync_status" example:"pending"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListDraftsResponse wraps a page of drafts and pagination information.
type ListDraftsResponse struct {
	Drafts     []domain.Draft `json:"drafts"`
	Pagination Pagination     `json:"pagination"`
}

// CleanupResponse reports the outcome of a retention sweep.
type CleanupResponse struct {
	Deleted int64 `json:"deleted"`
}

//
// Handler wiring
//

// Handlers groups HTTP endpoints for drafts, synchronization, and the editor
// snapshot feed. It depends on abstract service interfaces to keep transport
// concerns separate from business logic.
type Handlers struct {
	draftSvc DraftService
	syncSvc  SyncCoordinator
	net      NetStatus
	editor   EditorSink
	idemTTL  time.Duration
}

// New constructs and returns a Handlers instance bound to the given services.
func New(draftSvc DraftService, syncSvc SyncCoordinator, net NetStatus, editor EditorSink) *Handlers {
	return &Handlers{
		draftSvc: draftSvc,
		syncSvc:  syncSvc,
		net:      net,
		editor:   editor,
		idemTTL:  defaultIdempotencyTTL,
	}
}

// WithIdempotencyTTL overrides how long stored save keys remain replayable.
// Non-positive values keep the default.
func (h *Handlers) WithIdempotencyTTL(d time.Duration) *Handlers {
	if d > 0 {
		h.idemTTL = d
	}
	return h
}

// clientID extracts the calling client's identifier from the "X-Client-ID"
// header. The sidecar serves one desktop app, so a stable fallback is fine.
func clientID(c *gin.Context) string {
	if c != nil && c.Request != nil {
		if h := strings.TrimSpace(c.GetHeader("X-Client-ID")); h != "" {
			return h
		}
	}
	return "local-client"
}

//
// Helpers
//

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}

// pathLocalID parses the :id path parameter as a positive local draft id.
func pathLocalID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id < 1 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "draft id must be a positive integer")
		return 0, false
	}
	return id, true
}

// toDraft maps the request DTO onto a domain draft with the given local id
// (0 for creates).
func (r SaveDraftRequest) toDraft(localID int64) *domain.Draft {
	return &domain.Draft{
		LocalID:        localID,
		To:             strings.TrimSpace(r.To),
		Subject:        strings.TrimSpace(r.Subject),
		SourceBody:     r.SourceBody,
		TranslatedBody: r.TranslatedBody,
		TargetLang:     strings.TrimSpace(r.TargetLang),
	}
}

// saveFailStatus maps service save errors to (status, code, message).
func saveFailStatus(err error) (int, string, string) {
	switch {
	case errors.Is(err, services.ErrEmptyDraft):
		return http.StatusBadRequest, ErrCodeBadRequest, "draft has no content"
	case errors.Is(err, services.ErrBadTargetLang):
		return http.StatusBadRequest, ErrCodeBadRequest, "target_lang must be a BCP 47 tag"
	default:
		return http.StatusInternalServerError, ErrCodeSaveFailed, err.Error()
	}
}

//
// Handlers
//

// CreateDraft godoc
// @ID          createDraft
// @Summary     Create a draft
// @Description Persists a new local draft and returns its identifiers. Supports
// @Description Idempotency-Key replay: retrying the same key returns the draft
// @Description created by the first attempt instead of inserting a duplicate.
// @Tags        Drafts
// @Accept      json
// @Produce     json
//
// @Param       Idempotency-Key  header  string  false "Stable key for safe retries"
// @Param       body             body    handlers.SaveDraftRequest  true  "Draft payload"
//
// @Success     201  {object}  handlers.SaveDraftResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /drafts [post]
func (h *Handlers) CreateDraft(c *gin.Context) {
	ctx := c.Request.Context()

	var req SaveDraftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	db := h.serviceDB()
	key, hasKey := middleware.GetIdempotencyKey(c)

	// Replay: the same key already produced a draft; return it instead of
	// inserting a duplicate.
	if hasKey && db != nil && middleware.IsReplay(c) {
		if rec, err := repo.GetIdempotency(ctx, db, clientID(c), idemScopeDrafts, key, time.Now().UTC()); err == nil && rec != nil {
			if d, err := h.draftSvc.Get(ctx, rec.DraftID); err == nil {
				ok(c, http.StatusOK, SaveDraftResponse{LocalID: d.LocalID, SyncStatus: d.SyncStatus})
				return
			}
		}
	}

	id, err := h.draftSvc.Save(ctx, req.toDraft(0))
	if err != nil {
		status, code, msg := saveFailStatus(err)
		fail(c, status, code, msg)
		return
	}

	// Record the key → draft mapping for future retries (best effort).
	if hasKey && db != nil {
		if _, err := repo.CreateIdempotency(ctx, db, clientID(c), idemScopeDrafts, key, id, http.StatusCreated, h.idemTTL); err != nil && !errors.Is(err, repo.ErrDuplicate) {
			middleware.LoggerFrom(c).Warn().Err(err).Msg("idempotency record not stored")
		}
	}

	ok(c, http.StatusCreated, SaveDraftResponse{LocalID: id, SyncStatus: domain.SyncStatusPending})
}

// UpdateDraft godoc
// @ID          updateDraft
// @Summary     Update a draft
// @Description Overwrites an existing draft's content and resets it to pending.
// @Tags        Drafts
// @Accept      json
// @Produce     json
//
// @Param       id    path  int  true  "Draft local id"
// @Param       body  body  handlers.SaveDraftRequest  true  "Draft payload"
//
// @Success     200  {object}  handlers.SaveDraftResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Draft not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /drafts/{id} [put]
func (h *Handlers) UpdateDraft(c *gin.Context) {
	localID, okID := pathLocalID(c)
	if !okID {
		return
	}
	ctx := c.Request.Context()

	// Updating an absent draft is a 404, not a silent insert at that id.
	if _, err := h.draftSvc.Get(ctx, localID); err != nil {
		if errors.Is(err, services.ErrDraftNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "draft not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeSaveFailed, err.Error())
		return
	}

	var req SaveDraftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	id, err := h.draftSvc.Save(ctx, req.toDraft(localID))
	if err != nil {
		status, code, msg := saveFailStatus(err)
		fail(c, status, code, msg)
		return
	}
	ok(c, http.StatusOK, SaveDraftResponse{LocalID: id, SyncStatus: domain.SyncStatusPending})
}

// GetDraft godoc
// @ID          getDraft
// @Summary     Fetch a draft
// @Tags        Drafts
// @Produce     json
//
// @Param       id  path  int  true  "Draft local id"
//
// @Success     200  {object}  domain.Draft
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Draft not found"
// @Router      /drafts/{id} [get]
func (h *Handlers) GetDraft(c *gin.Context) {
	localID, okID := pathLocalID(c)
	if !okID {
		return
	}

	d, err := h.draftSvc.Get(c.Request.Context(), localID)
	if err != nil {
		if errors.Is(err, services.ErrDraftNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "draft not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, d)
}

// ListDrafts godoc
// @ID          listDrafts
// @Summary     List drafts (paginated)
// @Description Returns a page of drafts, most recently edited first. Supports
// @Description weak ETag via If-None-Match and may return 304.
// @Tags        Drafts
// @Produce     json
//
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"
// @Param       page           query   int     false "Page number"     minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListDraftsResponse
// @Header      200  {string} ETag  "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /drafts [get]
func (h *Handlers) ListDrafts(c *gin.Context) {
	ctx := c.Request.Context()
	page, pageSize := clampPagination(c)

	// ETag pre-check (best effort).
	if db := h.serviceDB(); db != nil {
		count, maxTS, err := repo.DraftsStats(ctx, db)
		if err == nil {
			var ts int64
			if maxTS != nil {
				ts = maxTS.Unix()
			}
			etag := fmt.Sprintf(`W/"drafts:%d:%d"`, count, ts)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	// Fetch page.
	items, total, err := h.draftSvc.ListPage(ctx, page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	resp := ListDraftsResponse{
		Drafts: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	}
	ok(c, http.StatusOK, resp)
}

// DeleteDraft godoc
// @ID          deleteDraft
// @Summary     Delete a draft
// @Description Removes a draft from the local store, typically after the real
// @Description email was sent. Deleting an absent draft still returns 204.
// @Tags        Drafts
//
// @Param       id  path  int  true  "Draft local id"
//
// @Success     204  {string} string "No Content"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /drafts/{id} [delete]
func (h *Handlers) DeleteDraft(c *gin.Context) {
	localID, okID := pathLocalID(c)
	if !okID {
		return
	}
	if err := h.draftSvc.Delete(c.Request.Context(), localID); err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	noContent(c)
}

// SearchDrafts godoc
// @ID          searchDrafts
// @Summary     Search drafts
// @Description Ranks stored drafts against a free-text query over subject and
// @Description both bodies, best matches first.
// @Tags        Drafts
// @Produce     json
//
// @Param       q  query  string  true   "Free-text query"
// @Param       k  query  int     false  "Maximum results"  default(5)
//
// @Success     200  {array}   search.Result
// @Failure     400  {object}  handlers.ErrorResponse "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /drafts/search [get]
func (h *Handlers) SearchDrafts(c *gin.Context) {
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "query parameter q is required")
		return
	}
	k := utils.AtoiDefault(c.Query("k"), 5)

	res, err := h.draftSvc.Search(c.Request.Context(), q, k)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeSearchFailed, err.Error())
		return
	}
	if res == nil {
		res = []search.Result{}
	}
	ok(c, http.StatusOK, res)
}

// RunCleanup godoc
// @ID          runCleanup
// @Summary     Run the retention sweep
// @Description Deletes synchronized drafts older than the retention window and
// @Description reports how many were removed. The sweep also runs on a schedule;
// @Description this endpoint exists for manual maintenance.
// @Tags        Maintenance
// @Produce     json
//
// @Success     200  {object}  handlers.CleanupResponse
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /maintenance/cleanup [post]
func (h *Handlers) RunCleanup(c *gin.Context) {
	n, err := h.draftSvc.CleanupSynced(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeCleanupFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, CleanupResponse{Deleted: n})
}

// serviceDB exposes the concrete service's DB handle for best-effort extras
// (ETag stats, idempotency records). Interface-only test doubles return nil
// and those extras are skipped.
func (h *Handlers) serviceDB() *gorm.DB {
	if svc, okSvc := h.draftSvc.(*services.DraftService); okSvc {
		return svc.DB
	}
	return nil
}
