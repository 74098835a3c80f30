package model

import (
	"fmt"
	"net"
)

// NodeID identifies an observation point (host, bridge, router) in the
// measured network. It is only compared for equality.
type NodeID uint32

// FlowHandle identifies a logical flow (one sender instance) for the
// lifetime of a run. Handles are issued sequentially starting at 1.
type FlowHandle uint32

// NoFlow is the reserved zero handle.
const NoFlow FlowHandle = 0

// PacketID is the 64-bit identifier carried on the wire with every measured
// packet. IDs are issued sequentially starting at 1 and are never reused
// within a run.
type PacketID uint64

// FlowOwner is the capability every flow variant exposes to the rest of the
// pipeline. Relays call OnHop, the final receiver calls OnReceive.
type FlowOwner interface {
	OnHop(id PacketID, linkUtilization float64, queueDepth uint64, atNode NodeID)
	OnReceive(id PacketID, atNode NodeID)
}

// TransmitObserver is implemented by owners that want to know when a packet
// actually leaves the sending device.
type TransmitObserver interface {
	OnTransmit(id PacketID, atNode NodeID)
}

// StampedOwner accepts observations together with the time they were made.
// The collector uses it so that the time an event spends in a mailbox is
// not added to the measurement.
type StampedOwner interface {
	OnHopAt(id PacketID, linkUtilization float64, queueDepth uint64, atNode NodeID, at uint64)
	OnReceiveAt(id PacketID, atNode NodeID, at uint64)
	OnTransmitAt(id PacketID, atNode NodeID, at uint64)
}

// FiveTuple represents the 5-tuple of a network packet.
type FiveTuple struct {
	SrcIP    net.IP
	DstIP    net.IP
	SrcPort  uint16
	DstPort  uint16
	Protocol uint8
}

// EventKind tells a collector which owner entry point an Event targets.
type EventKind uint8

const (
	EventHop EventKind = iota + 1
	EventReceive
	EventTransmit
)

func (k EventKind) String() string {
	switch k {
	case EventHop:
		return "hop"
	case EventReceive:
		return "receive"
	case EventTransmit:
		return "transmit"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// ParseEventKind is the inverse of EventKind.String.
func ParseEventKind(s string) (EventKind, error) {
	switch s {
	case "hop":
		return EventHop, nil
	case "receive":
		return EventReceive, nil
	case "transmit":
		return EventTransmit, nil
	default:
		return 0, fmt.Errorf("unknown event kind: %s", s)
	}
}

// Event is one observation of a tagged packet reported by a relay or a
// receiver that does not share memory with the owning flow.
type Event struct {
	Kind            EventKind
	PacketID        PacketID
	Node            NodeID
	LinkUtilization float64
	QueueDepth      uint64
	// At is the collector clock reading when the event arrived. It is set
	// by the collector and never travels on the wire.
	At uint64
}

// Apply delivers the event to its owner, stamped with e.At.
func (e Event) Apply(owner StampedOwner) {
	switch e.Kind {
	case EventHop:
		owner.OnHopAt(e.PacketID, e.LinkUtilization, e.QueueDepth, e.Node, e.At)
	case EventReceive:
		owner.OnReceiveAt(e.PacketID, e.Node, e.At)
	case EventTransmit:
		owner.OnTransmitAt(e.PacketID, e.Node, e.At)
	}
}
