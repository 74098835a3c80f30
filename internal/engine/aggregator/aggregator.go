package aggregator

import (
	"HopSpectra/internal/telemetry/trace"
	"math"
)

// SummaryRow condenses one batch of consecutive trace records.
type SummaryRow struct {
	Offset          uint64  `json:"at"`
	MeanDelay       uint64  `json:"delay"`
	StdDevDelay     float64 `json:"stddev"`
	MinLinkCapacity float64 `json:"min_link_cap"`
	MaxLinkCapacity float64 `json:"max_link_cap"`
	QueueCapacity   uint64  `json:"queue_capacity"`
	HopCount        uint32  `json:"hops"`
	DropRatio       float64 `json:"dropratio"`
}

// Aggregator turns the records of one flow into summary rows.
type Aggregator struct {
	batchSize int
	policy    Policy
}

// New creates an aggregator emitting one row per batchSize records. A
// non-positive batch size puts every record into a single batch.
func New(batchSize int, policy Policy) *Aggregator {
	return &Aggregator{batchSize: batchSize, policy: policy}
}

// Aggregate splits records (in creation order) into consecutive batches and
// summarizes each of them. firstSend is the flow's first send time; row
// offsets are relative to it. A trailing partial batch is summarized like a
// full one.
func (a *Aggregator) Aggregate(records []trace.Record, firstSend uint64) []SummaryRow {
	if len(records) == 0 {
		return nil
	}
	size := a.batchSize
	if size <= 0 {
		size = len(records)
	}

	rows := make([]SummaryRow, 0, (len(records)+size-1)/size)
	for start := 0; start < len(records); start += size {
		end := start + size
		if end > len(records) {
			end = len(records)
		}
		rows = append(rows, a.summarize(records[start:end], firstSend))
	}
	return rows
}

func (a *Aggregator) summarize(batch []trace.Record, firstSend uint64) SummaryRow {
	row := SummaryRow{
		Offset:   batch[0].SendTime - firstSend,
		HopCount: batch[0].HopCount,
	}

	var (
		delaySum uint64
		received uint64
		drops    uint64
		queueSum uint64
	)
	for i := range batch {
		rec := &batch[i]
		rec.CheckShape()

		if rec.Received {
			delaySum += rec.Delay()
			received++
		} else {
			drops++
		}

		// Only the last record of the batch ends up in the row.
		row.MinLinkCapacity, row.MaxLinkCapacity = linkRange(rec.LinkUtilizations)
		queueSum += a.policy.queueValue(rec.LinkUtilizations, rec.QueueDepths)
	}

	n := uint64(len(batch))
	row.QueueCapacity = queueSum / n
	row.DropRatio = float64(drops) / float64(n)

	if received == 0 {
		row.DropRatio = 1.0
		return row
	}

	row.MeanDelay = delaySum / received
	var sq float64
	for i := range batch {
		if !batch[i].Received {
			continue
		}
		d := float64(batch[i].Delay()) - float64(row.MeanDelay)
		sq += d * d
	}
	row.StdDevDelay = math.Sqrt(sq / float64(received))
	return row
}

// linkRange returns the minimum and maximum utilization over all hops, or
// zeros for a record without hops.
func linkRange(links []float64) (float64, float64) {
	if len(links) == 0 {
		return 0, 0
	}
	lo, hi := links[0], links[0]
	for _, l := range links[1:] {
		if l < lo {
			lo = l
		}
		if l > hi {
			hi = l
		}
	}
	return lo, hi
}
