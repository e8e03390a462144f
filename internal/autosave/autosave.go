// Package autosave implements the periodic draft-persistence timer.
//
// The editor (the desktop client) pushes its current snapshot through
// Timer.Update whenever the user types; the timer persists the latest
// snapshot on a fixed interval. Persistence failures are logged and retried
// on the next tick rather than surfaced to the editor, so a transient store
// problem never interrupts typing.
//
// Semantics:
//   - Ticks with no changes since the last successful save are skipped: the
//     save function is not invoked at all.
//   - The first successful save assigns the snapshot its local id, so every
//     subsequent tick updates the same row instead of creating new ones.
//   - Stop halts the ticker and flushes one final time, so a snapshot typed
//     just before shutdown is not lost.
//   - A Timer runs at most one loop; Start on a running timer returns
//     ErrAlreadyRunning.
package autosave

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-draftsync-backend/internal/domain"
)

// DefaultInterval is how often the timer persists a changed snapshot.
const DefaultInterval = 30 * time.Second

// ErrAlreadyRunning is returned by Start when the timer loop is active.
var ErrAlreadyRunning = errors.New("autosave timer already running")

// SaveFunc persists one snapshot and returns its local id. The DraftService's
// Save method satisfies this signature.
type SaveFunc func(ctx context.Context, d *domain.Draft) (int64, error)

// Timer persists the most recent editor snapshot on a fixed interval.
type Timer struct {
	interval time.Duration
	save     SaveFunc

	mu      sync.Mutex
	latest  *domain.Draft
	seq     uint64 // bumped on every Update; lets flush detect edits made mid-save
	savedAt uint64 // seq value of the last successful save
	running bool
	stop    chan struct{}
	done    chan struct{}
}

// New constructs a Timer around the given save function. A non-positive
// interval falls back to DefaultInterval.
func New(save SaveFunc, interval time.Duration) *Timer {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Timer{interval: interval, save: save}
}

// Update replaces the pending snapshot with d and marks it dirty. The draft
// is copied, so the caller may keep mutating its own value.
func (t *Timer) Update(d *domain.Draft) {
	if d == nil {
		return
	}
	cp := *d

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.latest != nil && cp.LocalID == 0 {
		// Keep updating the row the first save created.
		cp.LocalID = t.latest.LocalID
	}
	t.latest = &cp
	t.seq++
}

// Start launches the tick loop. It returns ErrAlreadyRunning if the loop is
// already active.
func (t *Timer) Start() error {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		return ErrAlreadyRunning
	}
	t.running = true
	t.stop = make(chan struct{})
	t.done = make(chan struct{})
	stop, done := t.stop, t.done
	t.mu.Unlock()

	go t.loop(stop, done)
	return nil
}

// Stop halts the tick loop, flushes any unsaved snapshot, and waits for the
// loop to exit. Stopping a stopped timer is a no-op.
func (t *Timer) Stop() {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	t.running = false
	stop, done := t.stop, t.done
	t.mu.Unlock()

	close(stop)
	<-done
	t.Flush(context.Background())
}

// Flush persists the pending snapshot immediately if it changed since the
// last successful save. Failures are logged; the snapshot stays dirty so the
// next tick (or Flush) retries.
func (t *Timer) Flush(ctx context.Context) {
	t.mu.Lock()
	if t.latest == nil || t.seq == t.savedAt {
		t.mu.Unlock()
		return
	}
	snapshot := *t.latest
	seq := t.seq
	t.mu.Unlock()

	// A cleared editor has nothing worth persisting.
	if snapshot.IsEmpty() {
		return
	}

	id, err := t.save(ctx, &snapshot)
	if err != nil {
		log.Warn().Err(err).Msg("autosave failed; will retry next tick")
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.savedAt = seq
	if t.latest != nil && t.latest.LocalID == 0 {
		t.latest.LocalID = id
	}
	log.Debug().Int64("local_id", id).Msg("autosaved draft")
}

func (t *Timer) loop(stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			t.Flush(context.Background())
		}
	}
}
