// Command draftsync runs the local draft-sync sidecar: a localhost HTTP
// service that persists email drafts while the user is offline, uploads the
// pending queue to the translation backend when connectivity returns, and
// sweeps old synchronized rows on a schedule.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/tbourn/go-draftsync-backend/internal/autosave"
	"github.com/tbourn/go-draftsync-backend/internal/config"
	"github.com/tbourn/go-draftsync-backend/internal/domain"
	httpapi "github.com/tbourn/go-draftsync-backend/internal/http"
	"github.com/tbourn/go-draftsync-backend/internal/netwatch"
	"github.com/tbourn/go-draftsync-backend/internal/observability"
	"github.com/tbourn/go-draftsync-backend/internal/repo"
	"github.com/tbourn/go-draftsync-backend/internal/services"
	"github.com/tbourn/go-draftsync-backend/internal/sysutil"
	"github.com/tbourn/go-draftsync-backend/internal/uploader"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

// draftRepo adapts the repository free functions to services.DraftRepo for
// the collaborators main owns (autosave, scheduled sweeps).
type draftRepo struct{}

func (draftRepo) SaveDraft(ctx context.Context, db *gorm.DB, d *domain.Draft) (int64, error) {
	return repo.SaveDraft(ctx, db, d)
}
func (draftRepo) ListDrafts(ctx context.Context, db *gorm.DB) ([]domain.Draft, error) {
	return repo.ListDrafts(ctx, db)
}
func (draftRepo) ListDraftsPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.Draft, error) {
	return repo.ListDraftsPage(ctx, db, offset, limit)
}
func (draftRepo) GetDraft(ctx context.Context, db *gorm.DB, localID int64) (*domain.Draft, error) {
	return repo.GetDraft(ctx, db, localID)
}
func (draftRepo) DeleteDraft(ctx context.Context, db *gorm.DB, localID int64) error {
	return repo.DeleteDraft(ctx, db, localID)
}
func (draftRepo) CountDrafts(ctx context.Context, db *gorm.DB) (int64, error) {
	return repo.CountDrafts(ctx, db)
}
func (draftRepo) CleanupSyncedBefore(ctx context.Context, db *gorm.DB, cutoff time.Time) (int64, error) {
	return repo.CleanupSyncedBefore(ctx, db, cutoff)
}

func main() {
	// .env is optional; real deployments configure via the environment.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	gin.SetMode(cfg.GinMode)

	log.Info().Str("version", version).Str("db", cfg.DBPath).Msg("draftsync starting")

	// Tracing
	shutdownOTel, err := observability.SetupOTel(context.Background(), cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}

	// Storage
	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("open database failed")
	}
	if cfg.OTEL.Enabled {
		if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
			log.Warn().Err(err).Msg("gorm tracing plugin not installed")
		}
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate failed")
	}

	// Core collaborators.
	draftSvc := services.NewDraftService(db, draftRepo{})
	if cfg.Retention > 0 {
		draftSvc.Retention = cfg.Retention
	}

	up := uploader.NewHTTP(cfg.UpstreamURL, cfg.UpstreamTimeout)
	syncSvc := services.NewSyncService(db, up)

	// Connectivity monitor: when the link comes back, push the queue.
	monitor := netwatch.NewMonitor(netwatch.HTTPProbe(cfg.ProbeURL, cfg.UpstreamTimeout), cfg.ProbeInterval)
	sub := monitor.Watch(
		func() {
			go func() {
				if sum, err := syncSvc.SyncPending(context.Background()); err == nil {
					log.Info().Int("synced", sum.Synced).Int("failed", sum.Failed).Msg("reconnect sync finished")
				} else if !errors.Is(err, services.ErrSyncInProgress) {
					log.Warn().Err(err).Msg("reconnect sync failed")
				}
			}()
		},
		func() { log.Info().Msg("upstream unreachable; queueing drafts locally") },
	)
	defer sub.Close()
	monitor.Start(context.Background())

	// Autosave timer for the editor snapshot feed.
	timer := autosave.New(draftSvc.Save, cfg.AutosaveInterval)
	if err := timer.Start(); err != nil {
		log.Fatal().Err(err).Msg("autosave start failed")
	}

	// Scheduled work: periodic sync pass and retention sweep.
	sched := cron.New()
	if _, err := sched.AddFunc("@every "+cfg.SyncInterval.String(), func() {
		if monitor.IsOnline() {
			if _, err := syncSvc.SyncPending(context.Background()); err != nil && !errors.Is(err, services.ErrSyncInProgress) {
				log.Warn().Err(err).Msg("scheduled sync failed")
			}
		}
	}); err != nil {
		log.Fatal().Err(err).Msg("schedule sync failed")
	}
	if _, err := sched.AddFunc("@daily", func() {
		ctx := context.Background()
		if n, err := draftSvc.CleanupSynced(ctx); err != nil {
			log.Warn().Err(err).Msg("retention sweep failed")
		} else if n > 0 {
			log.Info().Int64("deleted", n).Msg("retention sweep removed synced drafts")
		}
		if n, err := repo.PurgeExpiredIdempotency(ctx, db, time.Now().UTC()); err != nil {
			log.Warn().Err(err).Msg("idempotency purge failed")
		} else if n > 0 {
			log.Debug().Int64("deleted", n).Msg("purged expired idempotency records")
		}
	}); err != nil {
		log.Fatal().Err(err).Msg("schedule cleanup failed")
	}
	sched.Start()

	// HTTP transport.
	r := gin.New()
	httpapi.RegisterRoutes(r, db, httpapi.Deps{
		Sync:   syncSvc,
		Net:    monitor,
		Editor: timer,
	}, cfg)

	srv := &http.Server{
		Addr:              "127.0.0.1:" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	// Graceful shutdown: stop intake, flush the autosave snapshot, let the
	// in-flight sync pass finish via the server drain timeout.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}

	sched.Stop()
	monitor.Stop()
	timer.Stop() // flushes the last snapshot

	if err := shutdownOTel(ctx); err != nil {
		log.Warn().Err(err).Msg("otel shutdown failed")
	}
	log.Info().Msg("bye")
}
