package speedtest

import (
	"HopSpectra/internal/clock"
	"HopSpectra/internal/model"
	"HopSpectra/internal/telemetry/registry"
	"fmt"
	"log"
	"sort"
	"sync"
)

// SocketStats exposes the congestion state of the sending socket at the
// moment a packet is created.
type SocketStats interface {
	RTT() uint64
	CongestionWindow() int64
	AckedBytes() int64
}

// Entry is the per-packet record of a speedtest flow.
type Entry struct {
	SendTime    uint64 `json:"send_time" cbor:"send_time"`
	ReceiveTime uint64 `json:"receive_time" cbor:"receive_time"`
	SocketRTT   uint64 `json:"sock_rtt" cbor:"sock_rtt"`
	Cwnd        int64  `json:"sock_cwnd" cbor:"sock_cwnd"`
	Progress    int64  `json:"progress" cbor:"progress"`
}

// Sender tracks a bulk TCP transfer packet by packet. Unlike the tracer it
// does not collect hop samples; it only needs send and receive times next to
// the socket state.
type Sender struct {
	name          string
	node          model.NodeID
	receiver      model.NodeID
	trackAtDevice bool
	handle        model.FlowHandle

	clock    clock.Clock
	registry *registry.Registry

	mu      sync.Mutex
	entries map[model.PacketID]*Entry
}

// New creates a sender on node whose packets are received by receiver.
// With trackAtDevice, send and receive times are taken when the packet
// leaves or enters a network device instead of at the socket.
func New(name string, node, receiver model.NodeID, trackAtDevice bool, reg *registry.Registry, c clock.Clock) *Sender {
	s := &Sender{
		name:          name,
		node:          node,
		receiver:      receiver,
		trackAtDevice: trackAtDevice,
		clock:         c,
		registry:      reg,
		entries:       make(map[model.PacketID]*Entry),
	}
	s.handle = reg.RegisterFlow(s)
	return s
}

// Name returns the configured flow name.
func (s *Sender) Name() string { return s.name }

// Handle returns the flow handle assigned by the registry.
func (s *Sender) Handle() model.FlowHandle { return s.handle }

// NextPacket allocates an id for a new segment and snapshots the socket
// state into its entry.
func (s *Sender) NextPacket(stats SocketStats) model.PacketID {
	id := s.registry.RegisterPacket(s.handle)
	entry := &Entry{}
	s.stamp(entry, stats)

	s.mu.Lock()
	s.entries[id] = entry
	s.mu.Unlock()
	return id
}

// Resend refreshes the entry of a packet whose previous send attempt failed
// and that goes out again under the same id.
func (s *Sender) Resend(id model.PacketID, stats SocketStats) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[id]
	if !ok {
		log.Panicf("speedtest: resend of unknown packet %d in flow %s", id, s.name)
	}
	s.stamp(entry, stats)
}

func (s *Sender) stamp(entry *Entry, stats SocketStats) {
	entry.SendTime = s.clock.Now()
	if stats != nil {
		entry.SocketRTT = stats.RTT()
		entry.Cwnd = stats.CongestionWindow()
		entry.Progress = stats.AckedBytes()
	}
}

// OnTransmit overwrites the send time with the device transmit time.
func (s *Sender) OnTransmit(id model.PacketID, atNode model.NodeID) {
	s.OnTransmitAt(id, atNode, s.clock.Now())
}

// OnTransmitAt is OnTransmit for a transmission observed at time at.
func (s *Sender) OnTransmitAt(id model.PacketID, atNode model.NodeID, at uint64) {
	if !s.trackAtDevice {
		return
	}
	s.update(id, func(e *Entry) { e.SendTime = at })
}

// OnReceive records the reception time. Without device tracking only the
// receiving node counts.
func (s *Sender) OnReceive(id model.PacketID, atNode model.NodeID) {
	s.OnReceiveAt(id, atNode, s.clock.Now())
}

// OnReceiveAt is OnReceive for a reception observed at time at.
func (s *Sender) OnReceiveAt(id model.PacketID, atNode model.NodeID, at uint64) {
	if !s.trackAtDevice && atNode != s.receiver {
		return
	}
	s.update(id, func(e *Entry) { e.ReceiveTime = at })
}

// OnHop is part of the owner capability; speedtest flows keep no hop data.
func (s *Sender) OnHop(model.PacketID, float64, uint64, model.NodeID) {}

// OnHopAt is OnHop for stamped events.
func (s *Sender) OnHopAt(model.PacketID, float64, uint64, model.NodeID, uint64) {}

func (s *Sender) update(id model.PacketID, fn func(*Entry)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[id]
	if !ok {
		log.Panicf("speedtest: packet %d is not part of flow %s", id, s.name)
	}
	fn(entry)
}

// Rows returns copies of all entries ordered by packet id, which is the
// order the packets were created in.
func (s *Sender) Rows() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]model.PacketID, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]Entry, 0, len(ids))
	for _, id := range ids {
		out = append(out, *s.entries[id])
	}
	return out
}

// Len returns the number of packets sent.
func (s *Sender) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// ReportName is the base name of the flow's report file.
func (s *Sender) ReportName() string {
	return fmt.Sprintf("speedtest_%d", s.node)
}
