// Package monitor maintains a continuously refreshed snapshot of the
// concurrency backlog: how many registered units of work are still pending
// and a short description of every live unit. One writer goroutine, any
// number of readers.
package monitor

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// DefaultInterval is the pause between monitor cycles.
const DefaultInterval = 250 * time.Millisecond

// DefaultMaxDescription bounds task descriptions in the snapshot.
const DefaultMaxDescription = 120

// BacklogStatus is one full snapshot of the backlog. Replaced wholesale on
// every cycle; no history is kept.
type BacklogStatus struct {
	// PendingCount is the number of live tasks not yet executing.
	PendingCount int `json:"pendingCount"`
	// Descriptions maps every live task id (pending or running) to its
	// sanitized, truncated description.
	Descriptions map[string]string `json:"descriptions"`
}

// Monitor periodically snapshots a Tracker into an atomically swapped
// BacklogStatus. It runs for the process lifetime; Stop exists for graceful
// shutdown and tests.
type Monitor struct {
	tracker  *Tracker
	interval time.Duration
	maxDesc  int
	log      *zap.Logger

	status   atomic.Pointer[BacklogStatus]
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

type Option func(*Monitor)

func WithInterval(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

func WithMaxDescription(n int) Option {
	return func(m *Monitor) {
		if n > 0 {
			m.maxDesc = n
		}
	}
}

// New creates a Monitor seeded with an empty status, so readers never see
// nil even before the first cycle.
func New(tracker *Tracker, log *zap.Logger, opts ...Option) *Monitor {
	m := &Monitor{
		tracker:  tracker,
		interval: DefaultInterval,
		maxDesc:  DefaultMaxDescription,
		log:      log,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.status.Store(&BacklogStatus{Descriptions: map[string]string{}})
	return m
}

// Status returns the latest snapshot. The returned value is immutable;
// concurrent readers see either the previous or the next full snapshot,
// never a partial one.
func (m *Monitor) Status() *BacklogStatus {
	return m.status.Load()
}

// Start launches the monitor goroutine.
func (m *Monitor) Start() {
	go m.run()
}

// Stop ends the monitor loop and waits for the goroutine to exit. Safe to
// call more than once.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
	<-m.done
}

func (m *Monitor) run() {
	defer close(m.done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.cycle()
		}
	}
}

// cycle builds and publishes one snapshot. A panic while enumerating tasks
// is logged and swallowed so the next tick still happens.
func (m *Monitor) cycle() {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("backlog monitor cycle failed", zap.Any("panic", r))
		}
	}()

	tasks := m.tracker.snapshot()

	status := &BacklogStatus{
		Descriptions: make(map[string]string, len(tasks)),
	}
	for _, t := range tasks {
		if t.Pending() {
			status.PendingCount++
		}
		status.Descriptions[t.ID()] = sanitizeDescription(t.Description(), m.maxDesc)
	}

	m.status.Store(status)
}

// sanitizeDescription strips non-ASCII characters and truncates to maxLen,
// keeping the snapshot safe to embed in any text response.
func sanitizeDescription(s string, maxLen int) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r < 128 {
			b.WriteRune(r)
		}
	}
	out := strings.TrimSpace(b.String())
	if len(out) > maxLen {
		out = out[:maxLen]
	}
	return out
}
