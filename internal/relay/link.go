package relay

import (
	"HopSpectra/internal/clock"
	"HopSpectra/internal/telemetry/busytime"
	"time"
)

// Sample is what a link reports for one observed frame.
type Sample struct {
	Utilization float64
	QueueDepth  uint64
	Dropped     bool
}

// Link models the egress of an observed interface as a FIFO serializing
// frames at a fixed rate. A frame occupies the link for length*8/rate; the
// link is busy from the first arrival into an empty FIFO until the FIFO
// runs empty again.
type Link struct {
	clock      *clock.Manual
	busy       *busytime.Tracker
	unit       time.Duration
	rateBps    uint64
	window     uint64
	queueLimit int

	// departures holds the time each queued frame finishes serialization;
	// the head is the frame currently on the wire.
	departures []uint64
}

// NewLink creates a link model. window is the utilization window, unit the
// clock unit timestamps are expressed in.
func NewLink(name string, rateBps uint64, window, unit time.Duration, queueLimit int) *Link {
	if unit <= 0 {
		unit = time.Nanosecond
	}
	c := clock.NewManual(0)
	return &Link{
		clock:      c,
		busy:       busytime.New(name, c),
		unit:       unit,
		rateBps:    rateBps,
		window:     uint64(window / unit),
		queueLimit: queueLimit,
	}
}

// Units converts a wall-clock timestamp into link clock units.
func (l *Link) Units(t time.Time) uint64 {
	return uint64(t.UnixNano()) / uint64(l.unit.Nanoseconds())
}

// TransmitTime returns how long a frame of length bytes occupies the link.
func (l *Link) TransmitTime(length int) uint64 {
	if l.rateBps == 0 {
		return 0
	}
	ns := uint64(length) * 8 * uint64(time.Second) / l.rateBps
	return ns / uint64(l.unit.Nanoseconds())
}

// Observe accounts for a frame of length bytes arriving at time at and
// returns the link state the frame found. Arrival times earlier than a
// previous arrival are treated as simultaneous with it.
func (l *Link) Observe(at uint64, length int) Sample {
	if now := l.clock.Now(); at < now {
		at = now
	}
	l.drain(at)
	l.clock.AdvanceTo(at)

	s := Sample{Utilization: l.busy.Utilization(l.window)}
	if n := len(l.departures); n > 1 {
		s.QueueDepth = uint64(n - 1)
	}
	if l.queueLimit > 0 && int(s.QueueDepth) >= l.queueLimit {
		s.Dropped = true
		return s
	}

	start := at
	if n := len(l.departures); n > 0 {
		start = l.departures[n-1]
	} else {
		l.busy.Start()
	}
	l.departures = append(l.departures, start+l.TransmitTime(length))
	return s
}

// drain removes every frame that finished serialization by at, stopping
// the busy period when the FIFO runs empty.
func (l *Link) drain(at uint64) {
	n := 0
	for n < len(l.departures) && l.departures[n] <= at {
		l.clock.AdvanceTo(l.departures[n])
		n++
		if n == len(l.departures) {
			l.busy.Stop()
		}
	}
	if n > 0 {
		l.departures = l.departures[n:]
	}
}

// Backlog returns the number of frames queued or on the wire.
func (l *Link) Backlog() int {
	return len(l.departures)
}
