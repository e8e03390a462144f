// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, idempotency, and rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - Localhost-sidecar posture: permissive CORS for the desktop client,
//     conservative security headers everywhere else
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tbourn/go-draftsync-backend/internal/config"
	"github.com/tbourn/go-draftsync-backend/internal/domain"
	"github.com/tbourn/go-draftsync-backend/internal/http/handlers"
	"github.com/tbourn/go-draftsync-backend/internal/http/middleware"
	"github.com/tbourn/go-draftsync-backend/internal/repo"
	"github.com/tbourn/go-draftsync-backend/internal/services"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"
)

// draftRepoShim adapts the repository free functions to the services.DraftRepo
// interface expected by the DraftService. This keeps services decoupled from
// the concrete repo package while reusing existing functions.
type draftRepoShim struct{}

// SaveDraft proxies repo.SaveDraft.
func (draftRepoShim) SaveDraft(ctx context.Context, db *gorm.DB, d *domain.Draft) (int64, error) {
	return repo.SaveDraft(ctx, db, d)
}

// ListDrafts proxies repo.ListDrafts.
func (draftRepoShim) ListDrafts(ctx context.Context, db *gorm.DB) ([]domain.Draft, error) {
	return repo.ListDrafts(ctx, db)
}

// ListDraftsPage proxies repo.ListDraftsPage (pagination support).
func (draftRepoShim) ListDraftsPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.Draft, error) {
	return repo.ListDraftsPage(ctx, db, offset, limit)
}

// GetDraft proxies repo.GetDraft.
func (draftRepoShim) GetDraft(ctx context.Context, db *gorm.DB, localID int64) (*domain.Draft, error) {
	return repo.GetDraft(ctx, db, localID)
}

// DeleteDraft proxies repo.DeleteDraft.
func (draftRepoShim) DeleteDraft(ctx context.Context, db *gorm.DB, localID int64) error {
	return repo.DeleteDraft(ctx, db, localID)
}

// CountDrafts proxies repo.CountDrafts (pagination support).
func (draftRepoShim) CountDrafts(ctx context.Context, db *gorm.DB) (int64, error) {
	return repo.CountDrafts(ctx, db)
}

// CleanupSyncedBefore proxies repo.CleanupSyncedBefore (retention sweep).
func (draftRepoShim) CleanupSyncedBefore(ctx context.Context, db *gorm.DB, cutoff time.Time) (int64, error) {
	return repo.CleanupSyncedBefore(ctx, db, cutoff)
}

// Deps carries the externally constructed collaborators the router wires to
// handlers. DraftSvc is built internally from db; these come from main because
// they own goroutines (autosave timer, connectivity monitor) or transport
// state (uploader) whose lifecycle the router must not manage.
type Deps struct {
	// Sync coordinates pending-draft uploads; required for /sync and /status.
	Sync handlers.SyncCoordinator
	// Net reports connectivity for /status; may be nil in tests.
	Net handlers.NetStatus
	// Editor receives autosave snapshots from PUT /editor; may be nil in tests.
	Editor handlers.EditorSink
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. It configures observability (tracing, metrics), idempotency and rate
// limiting, CORS and security headers, health and metrics endpoints, and then
// mounts the versioned public API under /api/v*.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Idempotency validator (before rate limiter to allow bypass on replay)
//  8. Rate limiter (per client/IP, bypass on replay)
//  9. CORS and Security headers
func RegisterRoutes(r *gin.Engine, db *gorm.DB, deps Deps, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction. Draft payloads carry supplier
	// addresses, so bodies are never logged and queries are scrubbed.
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{
			"X-Upstream-Token", // credential for the remote translation backend
		},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB covers the largest draft we accept)
	r.Use(limitBody(1 << 20))

	// Compress list/search responses; drafts with long bodies gzip well.
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Idempotency validation (before rate limiting)
	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{
			MaxLen:   200,
			BasePath: cfg.APIBasePath,
		},
		func(ctx context.Context, clientID, scope, key string, now time.Time) (bool, error) {
			rec, err := repo.GetIdempotency(ctx, db, clientID, scope, key, now)
			if err != nil || rec == nil {
				return false, nil
			}
			return true, nil
		},
	))

	// 8) Token-bucket rate limiter per client/IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByClientOrIP())
	r.Use(rl.Handler())

	// 9) CORS posture (safe defaults: allow all if none configured)
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header (helps tests and simple health checks).
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderClientID, middleware.HeaderIdempotencyKey},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length", "ETag"},
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		// Echo ACAO with the request Origin when it is in the allowlist (in addition to gin-contrib/cors).
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderClientID, middleware.HeaderIdempotencyKey},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length", "ETag"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      false,
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// Dependency injection: services ← repo/db
	draftSvc := services.NewDraftService(db, draftRepoShim{})
	if cfg.Retention > 0 {
		draftSvc.Retention = cfg.Retention
	}

	h := handlers.New(draftSvc, deps.Sync, deps.Net, deps.Editor).
		WithIdempotencyTTL(cfg.IdempotencyTTL)

	// Public API
	apiBase := cfg.APIBasePath // e.g. "/api/v1"
	api := groupWithPrefix(r, apiBase)
	{
		// Drafts
		api.POST("/drafts", h.CreateDraft)
		api.GET("/drafts", h.ListDrafts)
		api.GET("/drafts/search", h.SearchDrafts)
		api.GET("/drafts/:id", h.GetDraft)
		api.PUT("/drafts/:id", h.UpdateDraft)
		api.DELETE("/drafts/:id", h.DeleteDraft)

		// Sync + status
		api.POST("/sync", h.TriggerSync)
		api.GET("/status", h.Status)

		// Editor snapshot feed (autosave)
		api.PUT("/editor", h.UpdateEditor)

		// Maintenance
		api.POST("/maintenance/cleanup", h.RunCleanup)
	}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
