package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/tbourn/go-draftsync-backend/internal/domain"
	"github.com/tbourn/go-draftsync-backend/internal/repo"
)

func seedPending(t *testing.T, svc *DraftService, subjects ...string) map[string]int64 {
	t.Helper()
	ids := make(map[string]int64, len(subjects))
	for _, s := range subjects {
		id, err := svc.Save(context.Background(), &domain.Draft{Subject: s, SourceBody: "body of " + s})
		if err != nil {
			t.Fatalf("seed %q: %v", s, err)
		}
		ids[s] = id
	}
	return ids
}

func TestSyncPending_NoUploader(t *testing.T) {
	db := newSvcDB(t)
	syncSvc := &SyncService{DB: db}

	if _, err := syncSvc.SyncPending(context.Background()); !errors.Is(err, ErrNoUploader) {
		t.Fatalf("expected ErrNoUploader, got %v", err)
	}
}

func TestSyncPending_EmptyQueue_NeverInvokesUploader(t *testing.T) {
	db := newSvcDB(t)
	calls := 0
	syncSvc := NewSyncService(db, UploadFunc(func(ctx context.Context, d *domain.Draft) (string, error) {
		calls++
		return "srv", nil
	}))

	sum, err := syncSvc.SyncPending(context.Background())
	if err != nil {
		t.Fatalf("SyncPending: %v", err)
	}
	if sum.Synced != 0 || sum.Failed != 0 {
		t.Fatalf("expected {0,0}, got %+v", sum)
	}
	if calls != 0 {
		t.Fatalf("uploader must not be called on an empty queue, got %d calls", calls)
	}
}

func TestSyncPending_AllSuccess(t *testing.T) {
	draftSvc := newDraftService(t)
	ids := seedPending(t, draftSvc, "RFQ")

	syncSvc := NewSyncService(draftSvc.DB, UploadFunc(func(ctx context.Context, d *domain.Draft) (string, error) {
		return "srv-42", nil
	}))

	sum, err := syncSvc.SyncPending(context.Background())
	if err != nil {
		t.Fatalf("SyncPending: %v", err)
	}
	if sum.Synced != 1 || sum.Failed != 0 {
		t.Fatalf("expected {1,0}, got %+v", sum)
	}

	got, err := draftSvc.Get(context.Background(), ids["RFQ"])
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.SyncStatus != domain.SyncStatusSynced {
		t.Fatalf("expected synced, got %q", got.SyncStatus)
	}
	if got.ServerID == nil || *got.ServerID != "srv-42" {
		t.Fatalf("expected server id srv-42, got %v", got.ServerID)
	}
	if got.SyncedAt == nil {
		t.Fatalf("SyncedAt not stamped")
	}
}

func TestSyncPending_PartialFailure_IsolatesBadDrafts(t *testing.T) {
	draftSvc := newDraftService(t)
	ids := seedPending(t, draftSvc, "good-1", "bad-1", "good-2", "bad-2")

	var n int
	syncSvc := NewSyncService(draftSvc.DB, UploadFunc(func(ctx context.Context, d *domain.Draft) (string, error) {
		if strings.HasPrefix(d.Subject, "bad") {
			return "", fmt.Errorf("remote rejected %q", d.Subject)
		}
		n++
		return fmt.Sprintf("srv-%d", n), nil
	}))

	sum, err := syncSvc.SyncPending(context.Background())
	if err != nil {
		t.Fatalf("SyncPending: %v", err)
	}
	if sum.Synced != 2 || sum.Failed != 2 {
		t.Fatalf("expected {2,2}, got %+v", sum)
	}

	// Exactly the failed drafts remain pending.
	for subject, id := range ids {
		got, err := draftSvc.Get(context.Background(), id)
		if err != nil {
			t.Fatalf("Get %q: %v", subject, err)
		}
		wantStatus := domain.SyncStatusSynced
		if strings.HasPrefix(subject, "bad") {
			wantStatus = domain.SyncStatusPending
		}
		if got.SyncStatus != wantStatus {
			t.Fatalf("draft %q: status = %q, want %q", subject, got.SyncStatus, wantStatus)
		}
	}
}

func TestSyncPending_EmptyServerID_CountsAsFailure(t *testing.T) {
	draftSvc := newDraftService(t)
	ids := seedPending(t, draftSvc, "only")

	syncSvc := NewSyncService(draftSvc.DB, UploadFunc(func(ctx context.Context, d *domain.Draft) (string, error) {
		return "", nil // no error, but no identifier either
	}))

	sum, err := syncSvc.SyncPending(context.Background())
	if err != nil {
		t.Fatalf("SyncPending: %v", err)
	}
	if sum.Synced != 0 || sum.Failed != 1 {
		t.Fatalf("expected {0,1}, got %+v", sum)
	}
	got, err := draftSvc.Get(context.Background(), ids["only"])
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.SyncStatus != domain.SyncStatusPending {
		t.Fatalf("draft must stay pending on falsy server id, got %q", got.SyncStatus)
	}
}

func TestSyncPending_SyncedRowsAreNeverReuploaded(t *testing.T) {
	draftSvc := newDraftService(t)
	seedPending(t, draftSvc, "a", "b")

	calls := 0
	syncSvc := NewSyncService(draftSvc.DB, UploadFunc(func(ctx context.Context, d *domain.Draft) (string, error) {
		calls++
		return fmt.Sprintf("srv-%d", calls), nil
	}))

	if _, err := syncSvc.SyncPending(context.Background()); err != nil {
		t.Fatalf("first pass: %v", err)
	}
	sum, err := syncSvc.SyncPending(context.Background())
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if sum.Synced != 0 || sum.Failed != 0 {
		t.Fatalf("second pass should find nothing, got %+v", sum)
	}
	if calls != 2 {
		t.Fatalf("synced drafts re-uploaded: %d calls total", calls)
	}
}

func TestSyncPending_ConcurrentRunRejected(t *testing.T) {
	draftSvc := newDraftService(t)
	seedPending(t, draftSvc, "slow")

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)

	syncSvc := NewSyncService(draftSvc.DB, UploadFunc(func(ctx context.Context, d *domain.Draft) (string, error) {
		close(started)
		<-release
		return "srv-slow", nil
	}))

	go func() {
		_, err := syncSvc.SyncPending(context.Background())
		done <- err
	}()

	<-started
	if !syncSvc.InFlight() {
		t.Fatalf("expected InFlight during a run")
	}
	if _, err := syncSvc.SyncPending(context.Background()); !errors.Is(err, ErrSyncInProgress) {
		t.Fatalf("expected ErrSyncInProgress, got %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	if syncSvc.InFlight() {
		t.Fatalf("InFlight should clear after the run completes")
	}
}

// Stale-record handling: a draft deleted locally between the pending scan and
// the synced mark must not resurface or error.
func TestSyncPending_DraftDeletedMidBatch(t *testing.T) {
	draftSvc := newDraftService(t)
	ids := seedPending(t, draftSvc, "vanishing")

	syncSvc := NewSyncService(draftSvc.DB, UploadFunc(func(ctx context.Context, d *domain.Draft) (string, error) {
		// Simulate the user deleting the draft while the upload is in flight.
		if err := repo.DeleteDraft(ctx, draftSvc.DB, d.LocalID); err != nil {
			return "", err
		}
		return "srv-v", nil
	}))

	sum, err := syncSvc.SyncPending(context.Background())
	if err != nil {
		t.Fatalf("SyncPending: %v", err)
	}
	if sum.Synced != 1 || sum.Failed != 0 {
		t.Fatalf("expected {1,0} (benign no-op mark), got %+v", sum)
	}
	if _, err := draftSvc.Get(context.Background(), ids["vanishing"]); !errors.Is(err, ErrDraftNotFound) {
		t.Fatalf("deleted draft must stay deleted, got %v", err)
	}
}
