// Package goodput computes the receive rate of a speedtest flow over fixed
// time bins.
package goodput

import (
	"HopSpectra/internal/flow/speedtest"
	"sort"
	"time"
)

// Default evaluation settings of a speedtest run.
const (
	DefaultBinWidth   = 250 * time.Millisecond
	DefaultPacketSize = 1024
)

// Bin is the goodput of the packets received in one time bin.
type Bin struct {
	Start   time.Duration
	Packets int
	Mbps    float64
}

// Bins groups the received packets by receive time into bins of the given
// width. Receive times are in clock units of the given size. Packets that
// were never received are ignored, and so are bins without packets.
func Bins(entries []speedtest.Entry, unit, width time.Duration, packetSize int) []Bin {
	if width <= 0 {
		width = DefaultBinWidth
	}
	counts := make(map[int64]int)
	for _, e := range entries {
		if e.ReceiveTime == 0 {
			continue
		}
		at := time.Duration(e.ReceiveTime) * unit
		counts[int64(at/width)]++
	}

	idx := make([]int64, 0, len(counts))
	for i := range counts {
		idx = append(idx, i)
	}
	sort.Slice(idx, func(a, b int) bool { return idx[a] < idx[b] })

	bins := make([]Bin, 0, len(idx))
	for _, i := range idx {
		n := counts[i]
		bits := float64(n * packetSize * 8)
		bins = append(bins, Bin{
			Start:   time.Duration(i) * width,
			Packets: n,
			Mbps:    bits / width.Seconds() / 1e6,
		})
	}
	return bins
}

// Mean averages the goodput of the bins whose start, shifted by offset,
// lies strictly between from and to. ok is false when no bin qualifies.
func Mean(bins []Bin, offset, from, to time.Duration) (mean float64, ok bool) {
	var sum float64
	n := 0
	for _, b := range bins {
		at := b.Start + offset
		if at <= from || at >= to {
			continue
		}
		sum += b.Mbps
		n++
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}
