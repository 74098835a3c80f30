package transport

import (
	"HopSpectra/internal/model"
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers of the hop event message:
//
//	message Event {
//	  uint32 kind             = 1;
//	  uint64 packet_id        = 2;
//	  uint32 node             = 3;
//	  double link_utilization = 4;
//	  uint64 queue_depth      = 5;
//	}
const (
	fieldKind            protowire.Number = 1
	fieldPacketID        protowire.Number = 2
	fieldNode            protowire.Number = 3
	fieldLinkUtilization protowire.Number = 4
	fieldQueueDepth      protowire.Number = 5
)

var errMissingField = errors.New("transport: event without kind or packet id")

// MarshalEvent encodes e in the protobuf wire format.
func MarshalEvent(e model.Event) []byte {
	b := make([]byte, 0, 32)
	b = protowire.AppendTag(b, fieldKind, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(e.Kind))
	b = protowire.AppendTag(b, fieldPacketID, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(e.PacketID))
	if e.Node != 0 {
		b = protowire.AppendTag(b, fieldNode, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(e.Node))
	}
	if e.LinkUtilization != 0 {
		b = protowire.AppendTag(b, fieldLinkUtilization, protowire.Fixed64Type)
		b = protowire.AppendFixed64(b, math.Float64bits(e.LinkUtilization))
	}
	if e.QueueDepth != 0 {
		b = protowire.AppendTag(b, fieldQueueDepth, protowire.VarintType)
		b = protowire.AppendVarint(b, e.QueueDepth)
	}
	return b
}

// UnmarshalEvent decodes an event. Unknown fields are skipped.
func UnmarshalEvent(b []byte) (model.Event, error) {
	var e model.Event
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return e, fmt.Errorf("failed to read tag: %w", protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == fieldLinkUtilization && typ == protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(b)
			if n < 0 {
				return e, fmt.Errorf("failed to read link utilization: %w", protowire.ParseError(n))
			}
			e.LinkUtilization = math.Float64frombits(v)
			b = b[n:]
		case typ == protowire.VarintType && num >= fieldKind && num <= fieldQueueDepth:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return e, fmt.Errorf("failed to read field %d: %w", num, protowire.ParseError(n))
			}
			switch num {
			case fieldKind:
				e.Kind = model.EventKind(v)
			case fieldPacketID:
				e.PacketID = model.PacketID(v)
			case fieldNode:
				e.Node = model.NodeID(v)
			case fieldQueueDepth:
				e.QueueDepth = v
			}
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return e, fmt.Errorf("failed to skip field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	if e.Kind == 0 || e.PacketID == 0 {
		return e, errMissingField
	}
	return e, nil
}
