package trace

import (
	"HopSpectra/internal/model"
	"log"
)

// Record accumulates everything known about one probe packet: when its flow
// sent it, what every relay observed, and when the final receiver saw it.
//
// LinkUtilizations, QueueDepths, HopTimes and HopNodes are parallel arrays
// with exactly HopCount entries each.
type Record struct {
	ID          model.PacketID
	SendTime    uint64
	ReceiveTime uint64
	Received    bool
	HopCount    uint32

	LinkUtilizations []float64
	QueueDepths      []uint64
	HopTimes         []uint64
	HopNodes         []model.NodeID
}

// Delay returns ReceiveTime - SendTime. It is only meaningful for received
// records.
func (r *Record) Delay() uint64 {
	return r.ReceiveTime - r.SendTime
}

// Dropped reports whether the final receiver never completed the record.
func (r *Record) Dropped() bool {
	return !r.Received
}

// CheckShape aborts if the per-hop arrays disagree with HopCount. A mismatch
// can only come from a broken collaborator and would corrupt every statistic
// computed afterwards.
func (r *Record) CheckShape() {
	n := int(r.HopCount)
	if len(r.LinkUtilizations) != n || len(r.QueueDepths) != n ||
		len(r.HopTimes) != n || len(r.HopNodes) != n {
		log.Panicf("trace: packet %d hop sample mismatch: hops=%d link=%d queue=%d times=%d nodes=%d",
			r.ID, r.HopCount, len(r.LinkUtilizations), len(r.QueueDepths), len(r.HopTimes), len(r.HopNodes))
	}
}

func (r *Record) clone() Record {
	c := *r
	c.LinkUtilizations = append([]float64(nil), r.LinkUtilizations...)
	c.QueueDepths = append([]uint64(nil), r.QueueDepths...)
	c.HopTimes = append([]uint64(nil), r.HopTimes...)
	c.HopNodes = append([]model.NodeID(nil), r.HopNodes...)
	return c
}
