package emulation

import (
	"HopSpectra/internal/engine/aggregator"
	"fmt"
	"strconv"
	"time"
)

// MinUpdateInterval is the shortest gap between two updates that netem
// applies reliably.
const MinUpdateInterval = 100 * time.Millisecond

// Entry is the link state to apply at one point of a trace replay.
type Entry struct {
	At       time.Duration
	Delay    time.Duration
	Jitter   time.Duration
	RateBps  uint64
	LossPct  float64
	Hops     int
	QueueCap uint64
}

// FromRow converts a trace summary row into a link state. Times in the row
// are in clock units of the given size and are truncated to milliseconds.
// When linkRateBps is set, min_link_cap is read as a fraction of that rate;
// otherwise it already is a rate in bit/s.
func FromRow(row aggregator.SummaryRow, unit time.Duration, linkRateBps uint64) Entry {
	rate := uint64(row.MinLinkCapacity)
	if linkRateBps > 0 {
		rate = uint64(row.MinLinkCapacity * float64(linkRateBps))
	}
	return Entry{
		At:       (time.Duration(row.Offset) * unit).Truncate(time.Millisecond),
		Delay:    (time.Duration(row.MeanDelay) * unit).Truncate(time.Millisecond),
		Jitter:   time.Duration(row.StdDevDelay * float64(unit)).Truncate(time.Millisecond),
		RateBps:  rate,
		LossPct:  row.DropRatio * 100,
		Hops:     int(row.HopCount),
		QueueCap: row.QueueCapacity,
	}
}

// Limit is the netem queue limit in packets: the bandwidth-delay product
// in KiB on top of the queue capacity of the path.
func (e Entry) Limit() uint64 {
	if e.RateBps == 0 || e.Delay == 0 {
		return e.QueueCap
	}
	bdp := float64(e.RateBps) / 8 * e.Delay.Seconds()
	return uint64(bdp/1024 + float64(e.QueueCap))
}

// Reorders reports whether the jitter is large enough for netem to reorder
// packets.
func (e Entry) Reorders() bool {
	return 2*e.Jitter > e.Delay
}

// NetemArgs returns the netem parameters of a tc qdisc command.
func (e Entry) NetemArgs() []string {
	return []string{
		"netem",
		"delay", ms(e.Delay), ms(e.Jitter),
		"loss", "random", strconv.FormatFloat(e.LossPct, 'f', -1, 64),
		"rate", fmt.Sprintf("%dbit", e.RateBps),
		"limit", strconv.FormatUint(e.Limit(), 10),
	}
}

func (e Entry) String() string {
	return fmt.Sprintf("At t=%s: Rate=%dbit, Delay=%s, Jitter=%s, Loss=%g%%, Hops=%d, Queue=%d",
		e.At, e.RateBps, e.Delay, e.Jitter, e.LossPct, e.Hops, e.QueueCap)
}

func ms(d time.Duration) string {
	return strconv.FormatInt(d.Milliseconds(), 10) + "ms"
}
