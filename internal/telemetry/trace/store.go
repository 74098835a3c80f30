package trace

import (
	"HopSpectra/internal/clock"
	"HopSpectra/internal/model"
	"log"
	"sync"
)

// Store keeps the trace records of a single flow in the order their packets
// were created. One exclusive lock guards the whole store; hops for a given
// packet are never reported in parallel, so contention stays per flow.
type Store struct {
	clock clock.Clock

	mu        sync.Mutex
	records   map[model.PacketID]*Record
	order     []model.PacketID
	firstSend uint64
	started   bool
	completed int
}

// NewStore creates an empty store stamping records with c.
func NewStore(c clock.Clock) *Store {
	return &Store{
		clock:   c,
		records: make(map[model.PacketID]*Record),
	}
}

// Begin opens the record for id with the current time as send time. It must
// be called exactly once per packet, before any other method names id.
func (s *Store) Begin(id model.PacketID) {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[id]; exists {
		log.Panicf("trace: Begin called twice for packet %d", id)
	}
	s.records[id] = &Record{ID: id, SendTime: now}
	s.order = append(s.order, id)
	if !s.started {
		s.firstSend = now
		s.started = true
	}
}

// AddHop appends one telemetry sample to the record of id, stamped with the
// current time. A local hop is the packet's own origin; its queue is not
// part of downstream congestion, so it is recorded with depth 0.
func (s *Store) AddHop(id model.PacketID, linkUtilization float64, queueDepth uint64, isLocalHop bool, atNode model.NodeID) {
	s.AddHopAt(id, linkUtilization, queueDepth, isLocalHop, atNode, s.clock.Now())
}

// AddHopAt is AddHop for a sample taken at time at.
func (s *Store) AddHopAt(id model.PacketID, linkUtilization float64, queueDepth uint64, isLocalHop bool, atNode model.NodeID, at uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		log.Panicf("trace: AddHop for packet %d that was never begun", id)
	}
	if isLocalHop {
		queueDepth = 0
	}
	rec.LinkUtilizations = append(rec.LinkUtilizations, linkUtilization)
	rec.QueueDepths = append(rec.QueueDepths, queueDepth)
	rec.HopTimes = append(rec.HopTimes, at)
	rec.HopNodes = append(rec.HopNodes, atNode)
	rec.HopCount++
	rec.CheckShape()
}

// Complete marks id as received now. Completing a record twice means two
// components both believe they are the final receiver, which is treated as
// fatal like every other shape violation.
func (s *Store) Complete(id model.PacketID) {
	s.CompleteAt(id, s.clock.Now())
}

// CompleteAt is Complete for a reception observed at time at.
func (s *Store) CompleteAt(id model.PacketID, at uint64) {
	if !s.complete(id, at) {
		log.Panicf("trace: packet %d completed twice", id)
	}
}

// TryCompleteAt marks id as received at time at unless it already is. It
// reports whether the record was completed by this call.
func (s *Store) TryCompleteAt(id model.PacketID, at uint64) bool {
	return s.complete(id, at)
}

func (s *Store) complete(id model.PacketID, at uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		log.Panicf("trace: Complete for packet %d that was never begun", id)
	}
	if rec.Received {
		return false
	}
	rec.ReceiveTime = at
	rec.Received = true
	s.completed++
	return true
}

// Get returns a copy of the record for id.
func (s *Store) Get(id model.PacketID) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return Record{}, false
	}
	return rec.clone(), true
}

// Records returns copies of all records in creation order, including the
// ones never completed.
func (s *Store) Records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.records[id].clone())
	}
	return out
}

// FirstSendTime returns the send time of the first record ever begun.
func (s *Store) FirstSendTime() (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.firstSend, s.started
}

// Len returns the number of records.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

// Completed returns the number of received records.
func (s *Store) Completed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completed
}
