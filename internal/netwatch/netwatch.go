// Package netwatch tracks upstream reachability for the sync pipeline.
//
// A Monitor polls a Probe on a fixed interval and keeps a boolean online
// state. Interested parties register callbacks through Watch and receive a
// Subscription whose Close unregisters them; callbacks fire only on state
// transitions (offline→online, online→offline), never on steady state.
//
// The typical wiring registers the sync coordinator's SyncPending as the
// onOnline callback, so a reconnect immediately drains the pending queue.
package netwatch

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultInterval is how often the monitor probes the upstream.
const DefaultInterval = 15 * time.Second

// Probe reports whether the upstream is reachable right now.
type Probe func(ctx context.Context) bool

// HTTPProbe returns a Probe that issues a HEAD request against url and treats
// any response, regardless of status code, as proof of connectivity. Only
// transport-level failures (DNS, refused connection, timeout) count as
// offline.
func HTTPProbe(url string, timeout time.Duration) Probe {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	client := &http.Client{Timeout: timeout}
	return func(ctx context.Context) bool {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
		if err != nil {
			return false
		}
		resp, err := client.Do(req)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return true
	}
}

// Subscription represents one registered watcher. Close unregisters it;
// closing twice is a no-op.
type Subscription struct {
	once sync.Once
	m    *Monitor
	id   int
}

// Close removes the watcher from its monitor.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.m.mu.Lock()
		delete(s.m.watchers, s.id)
		s.m.mu.Unlock()
	})
}

type watcher struct {
	onOnline  func()
	onOffline func()
}

// Monitor polls a Probe and notifies watchers on connectivity transitions.
type Monitor struct {
	probe    Probe
	interval time.Duration

	mu       sync.Mutex
	online   bool
	seeded   bool
	nextID   int
	watchers map[int]watcher
	running  bool
	stop     chan struct{}
	done     chan struct{}
}

// NewMonitor constructs a Monitor around the given probe. A non-positive
// interval falls back to DefaultInterval. The monitor starts pessimistic:
// IsOnline reports false until the first probe.
func NewMonitor(probe Probe, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Monitor{
		probe:    probe,
		interval: interval,
		watchers: make(map[int]watcher),
	}
}

// IsOnline reports the last observed connectivity state.
func (m *Monitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Watch registers transition callbacks. Either callback may be nil. Callbacks
// run on the monitor's poll goroutine, so they must not block for long;
// long-running work (like a sync pass) should be dispatched to its own
// goroutine by the callback.
func (m *Monitor) Watch(onOnline, onOffline func()) *Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	id := m.nextID
	m.watchers[id] = watcher{onOnline: onOnline, onOffline: onOffline}
	return &Subscription{m: m, id: id}
}

// Start probes once immediately to seed the state, then polls on the
// interval until Stop. Starting a running monitor is a no-op.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	stop, done := m.stop, m.done
	m.mu.Unlock()

	m.poll(ctx)

	go func() {
		defer close(done)
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				m.poll(ctx)
			}
		}
	}()
}

// Stop halts polling and waits for the poll goroutine to exit. Stopping a
// stopped monitor is a no-op.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	stop, done := m.stop, m.done
	m.mu.Unlock()

	close(stop)
	<-done
}

func (m *Monitor) poll(ctx context.Context) {
	now := m.probe(ctx)

	m.mu.Lock()
	transition := !m.seeded && now || m.seeded && now != m.online
	// The very first probe only transitions when it finds us online; the
	// monitor already assumed offline.
	m.seeded = true
	m.online = now

	var fns []func()
	if transition {
		for _, w := range m.watchers {
			if now && w.onOnline != nil {
				fns = append(fns, w.onOnline)
			}
			if !now && w.onOffline != nil {
				fns = append(fns, w.onOffline)
			}
		}
	}
	m.mu.Unlock()

	if transition {
		log.Info().Bool("online", now).Msg("connectivity changed")
		for _, fn := range fns {
			fn()
		}
	}
}
