package busytime

import (
	"HopSpectra/internal/clock"
	"log"
	"sync"
)

// period is one completed busy interval, identified by the time it ended.
type period struct {
	end      uint64
	duration uint64
}

// Tracker samples how much of a trailing window a resource (a link, a
// transmit queue) spent busy. Periods are kept in a FIFO ordered by end
// time, so eviction of old periods is a prefix trim.
type Tracker struct {
	name  string
	clock clock.Clock

	mu        sync.Mutex
	busy      bool
	lastStart uint64
	busyTime  uint64
	periods   []period
}

// New creates an idle tracker. name only appears in log lines.
func New(name string, c clock.Clock) *Tracker {
	return &Tracker{name: name, clock: c}
}

// Start marks the resource busy. Starting an already busy tracker keeps the
// original start time.
func (t *Tracker) Start() {
	now := t.clock.Now()

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.busy {
		return
	}
	t.lastStart = now
	t.busy = true
}

// Stop marks the resource idle and records the finished busy period. A
// stop while idle is ignored; a clock that moved backward since Start is
// fatal.
func (t *Tracker) Stop() {
	now := t.clock.Now()

	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.busy {
		return
	}
	if now < t.lastStart {
		log.Panicf("busytime: %s stopped at %d before it started at %d", t.name, now, t.lastStart)
	}
	duration := now - t.lastStart
	t.periods = append(t.periods, period{end: now, duration: duration})
	t.busyTime += duration
	t.busy = false
}

// Busy reports whether the resource is currently busy.
func (t *Tracker) Busy() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.busy
}

// Utilization returns the busy fraction of the last window clock units,
// in [0, 1]. A period that is still running counts up to now, but is not
// stored.
func (t *Tracker) Utilization(window uint64) float64 {
	if window == 0 {
		return 0
	}
	now := t.clock.Now()

	t.mu.Lock()
	defer t.mu.Unlock()
	t.evict(now, window)

	total := t.busyTime
	if t.busy && now > t.lastStart {
		total += now - t.lastStart
	}
	if total > window {
		log.Printf("Warning: busy tracker '%s' is overloaded: %d > %d (at %d)", t.name, total, window, now)
		total = window
	}
	if total == 0 {
		return 0
	}
	return float64(total) / float64(window)
}

// evict drops every period that ended at least window units ago.
func (t *Tracker) evict(now, window uint64) {
	n := 0
	for n < len(t.periods) {
		p := t.periods[n]
		if now < p.end || now-p.end < window {
			break
		}
		t.busyTime -= p.duration
		n++
	}
	if n > 0 {
		t.periods = t.periods[n:]
	}
}

// Pending returns how many finished periods are still inside the tracker.
func (t *Tracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.periods)
}
