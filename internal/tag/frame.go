package tag

import (
	"HopSpectra/internal/model"
	"fmt"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

var (
	defaultSrcMAC = net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}
	defaultDstMAC = net.HardwareAddr{0x00, 0x66, 0x77, 0x88, 0x99, 0xAA}
)

// FrameSpec describes a synthetic Ethernet/IPv4 frame.
type FrameSpec struct {
	SrcIP   net.IP
	DstIP   net.IP
	SrcPort uint16
	DstPort uint16
	// ID tags the frame as a probe. Zero builds untagged UDP traffic.
	ID model.PacketID
	// PayloadSize is the total UDP payload size, including the preamble
	// of tagged frames.
	PayloadSize int
}

// BuildFrame serializes an Ethernet/IPv4/UDP frame for spec.
func BuildFrame(spec FrameSpec) ([]byte, error) {
	size := spec.PayloadSize
	if spec.ID != 0 && size < Size {
		size = Size
	}
	payload := make([]byte, 0, size)
	if spec.ID != 0 {
		payload = Append(payload, spec.ID)
	}
	payload = payload[:size]

	eth := &layers.Ethernet{
		SrcMAC:       defaultSrcMAC,
		DstMAC:       defaultDstMAC,
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		SrcIP:    spec.SrcIP.To4(),
		DstIP:    spec.DstIP.To4(),
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
	}
	udp := &layers.UDP{
		SrcPort: layers.UDPPort(spec.SrcPort),
		DstPort: layers.UDPPort(spec.DstPort),
	}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		return nil, fmt.Errorf("failed to set checksum layer: %w", err)
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{
		ComputeChecksums: true,
		FixLengths:       true,
	}
	if err := gopacket.SerializeLayers(buf, opts, eth, ip, udp, gopacket.Payload(payload)); err != nil {
		return nil, fmt.Errorf("failed to serialize layers: %w", err)
	}
	return buf.Bytes(), nil
}
