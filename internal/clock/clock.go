package clock

import (
	"fmt"
	"log"
	"sync"
	"time"
)

// Clock returns a monotonic timestamp in a fixed unit. Every component of a
// run must share the same Clock so that send, hop and receive timestamps
// are comparable.
type Clock interface {
	Now() uint64
}

// ParseUnit converts a unit name from the config file into a duration.
func ParseUnit(unit string) (time.Duration, error) {
	switch unit {
	case "ns", "":
		return time.Nanosecond, nil
	case "us", "µs":
		return time.Microsecond, nil
	case "ms":
		return time.Millisecond, nil
	default:
		return 0, fmt.Errorf("unknown clock unit: %s", unit)
	}
}

// Monotonic is a Clock backed by the runtime monotonic clock. It counts from
// the moment it was created.
type Monotonic struct {
	start time.Time
	unit  time.Duration
}

// NewMonotonic creates a monotonic clock reporting in the given unit.
func NewMonotonic(unit time.Duration) *Monotonic {
	if unit <= 0 {
		unit = time.Nanosecond
	}
	return &Monotonic{start: time.Now(), unit: unit}
}

// Now returns the elapsed time since construction in clock units.
func (c *Monotonic) Now() uint64 {
	return uint64(time.Since(c.start) / c.unit)
}

// Unit returns the resolution of the clock.
func (c *Monotonic) Unit() time.Duration {
	return c.unit
}

// Manual is a Clock that only moves when told to. The simulated scheduler
// drives it event by event; tests use it to pin timestamps.
type Manual struct {
	mu  sync.Mutex
	now uint64
}

// NewManual creates a manual clock set to start.
func NewManual(start uint64) *Manual {
	return &Manual{now: start}
}

// Now returns the current manual time.
func (c *Manual) Now() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d units.
func (c *Manual) Advance(d uint64) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += d
	return c.now
}

// AdvanceTo moves the clock to t. Moving backward is a scheduler bug.
func (c *Manual) AdvanceTo(t uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t < c.now {
		log.Panicf("clock: AdvanceTo(%d) would move time backward from %d", t, c.now)
	}
	c.now = t
}

// Set places the clock at t without any ordering check.
func (c *Manual) Set(t uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}
