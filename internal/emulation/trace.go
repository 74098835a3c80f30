package emulation

import (
	"HopSpectra/internal/engine/aggregator"
	"HopSpectra/internal/report/csv"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"
)

// ErrNoInitialState is returned when a trace has no entry for t=0.
var ErrNoInitialState = errors.New("emulation: trace has no entry for t=0")

// Trace is the replay schedule of one interface, keyed by millisecond.
type Trace struct {
	Interface string
	entries   map[time.Duration]Entry
}

// NewTrace builds the schedule of iface. Rows mapping to the same
// millisecond overwrite each other; the last one wins.
func NewTrace(iface string, rows []aggregator.SummaryRow, unit time.Duration, linkRateBps uint64) *Trace {
	t := &Trace{Interface: iface, entries: make(map[time.Duration]Entry, len(rows))}
	for _, row := range rows {
		e := FromRow(row, unit, linkRateBps)
		t.entries[e.At] = e
	}
	return t
}

// LoadTrace reads a trace CSV written by the csv report writer.
func LoadTrace(iface, path string, unit time.Duration, linkRateBps uint64) (*Trace, error) {
	rows, err := csv.ReadTrace(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load trace for interface '%s': %w", iface, err)
	}
	return NewTrace(iface, rows, unit, linkRateBps), nil
}

// At returns the entry scheduled at exactly t.
func (t *Trace) At(at time.Duration) (Entry, bool) {
	e, ok := t.entries[at]
	return e, ok
}

// Initial returns the entry for t=0.
func (t *Trace) Initial() (Entry, error) {
	e, ok := t.entries[0]
	if !ok {
		return Entry{}, fmt.Errorf("%w (interface %s)", ErrNoInitialState, t.Interface)
	}
	return e, nil
}

// Len returns the number of scheduled entries.
func (t *Trace) Len() int { return len(t.entries) }

// Step is one point of a replay. A nil side has no update at that time.
type Step struct {
	At      time.Duration
	Forward *Entry
	Return  *Entry
}

// Plan merges the schedules of both directions into the sorted updates
// that follow the initial state. Both traces must have an entry for t=0.
func Plan(fwd, rtn *Trace) ([]Step, error) {
	if _, err := fwd.Initial(); err != nil {
		return nil, err
	}
	if _, err := rtn.Initial(); err != nil {
		return nil, err
	}

	times := make(map[time.Duration]struct{})
	for at := range fwd.entries {
		times[at] = struct{}{}
	}
	for at := range rtn.entries {
		times[at] = struct{}{}
	}
	delete(times, 0)

	sorted := make([]time.Duration, 0, len(times))
	for at := range times {
		sorted = append(sorted, at)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	steps := make([]Step, 0, len(sorted))
	var prev time.Duration
	for _, at := range sorted {
		if at-prev < MinUpdateInterval {
			log.Printf("Warning: update at t=%s follows the previous one after less than %s", at, MinUpdateInterval)
		}
		prev = at

		s := Step{At: at}
		if e, ok := fwd.At(at); ok {
			s.Forward = &e
		}
		if e, ok := rtn.At(at); ok {
			s.Return = &e
		}
		steps = append(steps, s)
	}
	return steps, nil
}
