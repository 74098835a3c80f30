package tracer

import (
	"HopSpectra/internal/clock"
	"HopSpectra/internal/engine/aggregator"
	"HopSpectra/internal/model"
	"HopSpectra/internal/telemetry/registry"
	"HopSpectra/internal/telemetry/trace"
	"fmt"
	"log"
)

// Tracer is the sending side of a probe flow between two nodes. It issues
// packet ids, keeps one trace record per probe and collects the hop and
// reception reports routed back to it through the registry.
type Tracer struct {
	name   string
	from   model.NodeID
	to     model.NodeID
	handle model.FlowHandle

	registry *registry.Registry
	store    *trace.Store
}

// New creates a tracer and registers it as a flow owner.
func New(name string, from, to model.NodeID, reg *registry.Registry, c clock.Clock) *Tracer {
	t := &Tracer{
		name:     name,
		from:     from,
		to:       to,
		registry: reg,
		store:    trace.NewStore(c),
	}
	t.handle = reg.RegisterFlow(t)
	return t
}

// Name returns the configured flow name.
func (t *Tracer) Name() string { return t.name }

// Handle returns the flow handle assigned by the registry.
func (t *Tracer) Handle() model.FlowHandle { return t.handle }

// From returns the sending node.
func (t *Tracer) From() model.NodeID { return t.from }

// To returns the final receiver.
func (t *Tracer) To() model.NodeID { return t.to }

// NextProbe allocates the id for a new probe and opens its record. The
// caller attaches the id to the outgoing packet.
func (t *Tracer) NextProbe() model.PacketID {
	id := t.registry.RegisterPacket(t.handle)
	t.store.Begin(id)
	return id
}

// OnHop records a relay sample. A sample taken at the sending node itself
// is a local hop.
func (t *Tracer) OnHop(id model.PacketID, linkUtilization float64, queueDepth uint64, atNode model.NodeID) {
	t.store.AddHop(id, linkUtilization, queueDepth, atNode == t.from, atNode)
}

// OnHopAt is OnHop for a sample that arrived at time at.
func (t *Tracer) OnHopAt(id model.PacketID, linkUtilization float64, queueDepth uint64, atNode model.NodeID, at uint64) {
	t.store.AddHopAt(id, linkUtilization, queueDepth, atNode == t.from, atNode, at)
}

// OnReceive completes the record when the probe reached the flow's final
// receiver.
func (t *Tracer) OnReceive(id model.PacketID, atNode model.NodeID) {
	if !t.isReceiver(id, atNode) {
		return
	}
	t.store.Complete(id)
}

// OnReceiveAt completes the record with a reception reported from outside
// the process. Receivers and relays may report the same frame more than
// once, so a repeated reception is dropped with a warning.
func (t *Tracer) OnReceiveAt(id model.PacketID, atNode model.NodeID, at uint64) {
	if !t.isReceiver(id, atNode) {
		return
	}
	if !t.store.TryCompleteAt(id, at) {
		log.Printf("Warning: flow %s got a repeated reception of packet %d at node %d, ignoring it", t.name, id, atNode)
	}
}

// OnTransmitAt is accepted for every owner; probes are stamped when they
// are created.
func (t *Tracer) OnTransmitAt(model.PacketID, model.NodeID, uint64) {}

func (t *Tracer) isReceiver(id model.PacketID, atNode model.NodeID) bool {
	if atNode != t.to {
		log.Printf("Warning: flow %s got reception of packet %d at node %d, expected node %d", t.name, id, atNode, t.to)
		return false
	}
	return true
}

// Summarize aggregates all records of the flow.
func (t *Tracer) Summarize(batchSize int, policy aggregator.Policy) []aggregator.SummaryRow {
	first, ok := t.store.FirstSendTime()
	if !ok {
		return nil
	}
	return aggregator.New(batchSize, policy).Aggregate(t.store.Records(), first)
}

// Records returns copies of all trace records in creation order.
func (t *Tracer) Records() []trace.Record {
	return t.store.Records()
}

// Stats returns the number of probes sent and received so far.
func (t *Tracer) Stats() (sent, received int) {
	return t.store.Len(), t.store.Completed()
}

// ReportName is the base name of the flow's report files.
func (t *Tracer) ReportName() string {
	return fmt.Sprintf("trace_%d_to_%d", t.from, t.to)
}

// Debug logs the timing of a single probe.
func (t *Tracer) Debug(id model.PacketID) {
	rec, ok := t.store.Get(id)
	if !ok {
		log.Printf("Warning: flow %s has no record for packet %d", t.name, id)
		return
	}
	if !rec.Received {
		log.Printf("Trace packet id=%d flow=%d sent=%d not received hops=%d", id, t.handle, rec.SendTime, rec.HopCount)
		return
	}
	log.Printf("Trace packet id=%d flow=%d sent=%d received=%d took=%d hops=%d",
		id, t.handle, rec.SendTime, rec.ReceiveTime, rec.Delay(), rec.HopCount)
}
