package trace

import (
	"HopSpectra/internal/clock"
	"HopSpectra/internal/model"
	"testing"
)

func expectPanic(t *testing.T, name string, fn func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Errorf("%s: expected a panic", name)
		}
	}()
	fn()
}

func TestStore_Lifecycle(t *testing.T) {
	c := clock.NewManual(1000)
	s := NewStore(c)

	s.Begin(7)
	c.Advance(10)
	s.AddHop(7, 0.5, 12, false, 3)
	c.Advance(10)
	s.AddHop(7, 0.25, 4, false, 4)
	c.Advance(30)
	s.Complete(7)

	rec, ok := s.Get(7)
	if !ok {
		t.Fatalf("Record 7 not found")
	}
	if rec.SendTime != 1000 || rec.ReceiveTime != 1050 {
		t.Errorf("Unexpected timestamps: send=%d receive=%d", rec.SendTime, rec.ReceiveTime)
	}
	if !rec.Received || rec.Delay() != 50 {
		t.Errorf("Expected a received record with delay 50, got received=%v delay=%d", rec.Received, rec.Delay())
	}
	if rec.HopCount != 2 || len(rec.LinkUtilizations) != 2 || len(rec.QueueDepths) != 2 {
		t.Fatalf("Hop arrays do not match hop count: %+v", rec)
	}
	if rec.QueueDepths[0] != 12 || rec.QueueDepths[1] != 4 {
		t.Errorf("Unexpected queue depths %v", rec.QueueDepths)
	}
	if rec.HopTimes[0] != 1010 || rec.HopNodes[1] != 4 {
		t.Errorf("Unexpected hop times/nodes %v %v", rec.HopTimes, rec.HopNodes)
	}
	if s.Completed() != 1 {
		t.Errorf("Expected 1 completed record, got %d", s.Completed())
	}
}

func TestStore_LocalHopRecordsZeroQueue(t *testing.T) {
	s := NewStore(clock.NewManual(0))
	s.Begin(1)
	s.AddHop(1, 0.9, 55, true, 0)

	rec, _ := s.Get(1)
	if rec.QueueDepths[0] != 0 {
		t.Errorf("Local hop should record queue depth 0, got %d", rec.QueueDepths[0])
	}
	if rec.LinkUtilizations[0] != 0.9 {
		t.Errorf("Local hop should still record link utilization, got %f", rec.LinkUtilizations[0])
	}
}

func TestStore_InsertionOrderAndDrops(t *testing.T) {
	c := clock.NewManual(0)
	s := NewStore(c)
	for _, id := range []model.PacketID{5, 2, 9} {
		s.Begin(id)
		c.Advance(1)
	}
	// Completion order differs from creation order.
	s.Complete(9)
	s.Complete(5)

	recs := s.Records()
	if len(recs) != 3 {
		t.Fatalf("Expected 3 records, got %d", len(recs))
	}
	if recs[0].ID != 5 || recs[1].ID != 2 || recs[2].ID != 9 {
		t.Errorf("Records not in creation order: %d %d %d", recs[0].ID, recs[1].ID, recs[2].ID)
	}
	if !recs[1].Dropped() {
		t.Errorf("Record 2 was never completed and must count as dropped")
	}
	first, ok := s.FirstSendTime()
	if !ok || first != 0 {
		t.Errorf("Expected first send time 0, got %d (%v)", first, ok)
	}
}

func TestStore_RecordsAreCopies(t *testing.T) {
	s := NewStore(clock.NewManual(0))
	s.Begin(1)
	s.AddHop(1, 0.1, 1, false, 1)

	recs := s.Records()
	recs[0].QueueDepths[0] = 999

	rec, _ := s.Get(1)
	if rec.QueueDepths[0] != 1 {
		t.Errorf("Mutating a returned record changed the store")
	}
}

func TestStore_FatalPaths(t *testing.T) {
	s := NewStore(clock.NewManual(0))
	s.Begin(1)
	s.Complete(1)

	expectPanic(t, "AddHop unknown", func() { s.AddHop(2, 0, 0, false, 0) })
	expectPanic(t, "Complete unknown", func() { s.Complete(2) })
	expectPanic(t, "Complete twice", func() { s.Complete(1) })
	expectPanic(t, "Begin twice", func() { s.Begin(1) })
	expectPanic(t, "CompleteAt twice", func() { s.CompleteAt(1, 9) })
	expectPanic(t, "TryCompleteAt unknown", func() { s.TryCompleteAt(2, 9) })
}

func TestStore_StampedSamples(t *testing.T) {
	c := clock.NewManual(0)
	s := NewStore(c)
	s.Begin(1)
	c.Advance(500)

	s.AddHopAt(1, 0.5, 3, false, 2, 20)
	if !s.TryCompleteAt(1, 35) {
		t.Fatalf("First completion was rejected")
	}
	if s.TryCompleteAt(1, 90) {
		t.Errorf("Repeated completion was accepted")
	}

	rec, _ := s.Get(1)
	if rec.HopTimes[0] != 20 || rec.ReceiveTime != 35 || rec.Delay() != 35 {
		t.Errorf("Expected the given times to be kept, got hop=%d receive=%d", rec.HopTimes[0], rec.ReceiveTime)
	}
	if s.Completed() != 1 {
		t.Errorf("Expected 1 completed record, got %d", s.Completed())
	}
}

func TestRecord_CheckShape(t *testing.T) {
	rec := &Record{ID: 1, HopCount: 1, LinkUtilizations: []float64{0.1}}
	expectPanic(t, "shape mismatch", rec.CheckShape)

	ok := &Record{
		ID:               2,
		HopCount:         1,
		LinkUtilizations: []float64{0.1},
		QueueDepths:      []uint64{1},
		HopTimes:         []uint64{1},
		HopNodes:         []model.NodeID{1},
	}
	ok.CheckShape()
}
