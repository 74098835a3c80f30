package tag

import (
	"HopSpectra/internal/model"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// Magic opens every probe payload.
const Magic = "HSPT"

// Size is the length of the probe preamble: the magic followed by the
// big-endian packet id.
const Size = len(Magic) + 8

// ErrNotProbe is returned for payloads and frames that carry no probe tag.
var ErrNotProbe = errors.New("tag: not a probe")

// Probe is a tagged packet found in a captured frame.
type Probe struct {
	ID        model.PacketID
	FiveTuple model.FiveTuple
	Length    int
}

// Encode returns the preamble carrying id.
func Encode(id model.PacketID) []byte {
	return Append(make([]byte, 0, Size), id)
}

// Append appends the preamble carrying id to dst.
func Append(dst []byte, id model.PacketID) []byte {
	dst = append(dst, Magic...)
	return binary.BigEndian.AppendUint64(dst, uint64(id))
}

// Decode extracts the packet id from the start of a UDP payload.
func Decode(payload []byte) (model.PacketID, error) {
	if len(payload) < Size || !bytes.Equal(payload[:len(Magic)], []byte(Magic)) {
		return 0, ErrNotProbe
	}
	id := model.PacketID(binary.BigEndian.Uint64(payload[len(Magic):Size]))
	if id == 0 {
		return 0, fmt.Errorf("%w: zero packet id", ErrNotProbe)
	}
	return id, nil
}

// FromFrame decodes a raw frame starting at the given link layer and
// returns the probe it carries. Frames without an IPv4 or IPv6 UDP payload
// starting with the probe preamble yield ErrNotProbe.
func FromFrame(data []byte, first gopacket.Decoder) (*Probe, error) {
	packet := gopacket.NewPacket(data, first, gopacket.DecodeOptions{Lazy: true, NoCopy: true})
	return FromPacket(packet)
}

// FromPacket is FromFrame for an already decoded packet.
func FromPacket(packet gopacket.Packet) (*Probe, error) {
	var fiveTuple model.FiveTuple

	if l := packet.Layer(layers.LayerTypeIPv4); l != nil {
		ip := l.(*layers.IPv4)
		fiveTuple.SrcIP = ip.SrcIP
		fiveTuple.DstIP = ip.DstIP
		fiveTuple.Protocol = uint8(ip.Protocol)
	} else if l := packet.Layer(layers.LayerTypeIPv6); l != nil {
		ip := l.(*layers.IPv6)
		fiveTuple.SrcIP = ip.SrcIP
		fiveTuple.DstIP = ip.DstIP
		fiveTuple.Protocol = uint8(ip.NextHeader)
	} else {
		return nil, ErrNotProbe
	}

	l := packet.Layer(layers.LayerTypeUDP)
	if l == nil {
		return nil, ErrNotProbe
	}
	udp := l.(*layers.UDP)
	fiveTuple.SrcPort = uint16(udp.SrcPort)
	fiveTuple.DstPort = uint16(udp.DstPort)

	id, err := Decode(udp.Payload)
	if err != nil {
		return nil, err
	}

	length := len(packet.Data())
	if meta := packet.Metadata(); meta != nil && meta.Length > 0 {
		length = meta.Length
	}
	return &Probe{ID: id, FiveTuple: fiveTuple, Length: length}, nil
}
