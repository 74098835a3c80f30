package pcap

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	"github.com/google/gopacket/pcapgo"
)

// Frame is one captured frame.
type Frame struct {
	Timestamp time.Time
	// Length is the original wire length, which may exceed len(Data) for
	// truncated captures.
	Length int
	Data   []byte
}

// source is implemented by pcapgo readers and live pcap handles.
type source interface {
	gopacket.PacketDataSource
	LinkType() layers.LinkType
}

// Reader reads frames from a capture file or a live interface.
type Reader struct {
	src    source
	closer func()
}

// NewReader opens a pcap or pcapng file.
func NewReader(filePath string) (*Reader, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture file: %w", err)
	}

	br := bufio.NewReader(f)
	magic, err := br.Peek(4)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to read capture header: %w", err)
	}

	var src source
	// pcapng files start with a section header block.
	if magic[0] == 0x0a && magic[1] == 0x0d && magic[2] == 0x0d && magic[3] == 0x0a {
		src, err = pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
	} else {
		src, err = pcapgo.NewReader(br)
	}
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to parse capture file %s: %w", filePath, err)
	}
	return &Reader{src: src, closer: func() { f.Close() }}, nil
}

// OpenLive captures from a network interface. It requires libpcap and
// capture privileges.
func OpenLive(iface string, snaplen int) (*Reader, error) {
	handle, err := pcap.OpenLive(iface, int32(snaplen), true, pcap.BlockForever)
	if err != nil {
		return nil, fmt.Errorf("failed to open interface %s: %w", iface, err)
	}
	return &Reader{src: handle, closer: handle.Close}, nil
}

// Close releases the underlying file or handle.
func (r *Reader) Close() {
	if r.closer != nil {
		r.closer()
	}
}

// LinkType returns the link layer of the capture.
func (r *Reader) LinkType() layers.LinkType {
	return r.src.LinkType()
}

// ReadFrames sends every frame to out until the capture ends or ctx is
// cancelled. It closes out when done and returns nil at the end of a file.
func (r *Reader) ReadFrames(ctx context.Context, out chan<- Frame) error {
	defer close(out)

	for {
		data, ci, err := r.src.ReadPacketData()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read frame: %w", err)
		}

		length := ci.Length
		if length == 0 {
			length = len(data)
		}
		select {
		case out <- Frame{Timestamp: ci.Timestamp, Length: length, Data: data}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
