package relay

import (
	"HopSpectra/pkg/pcap"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// Recorder persists the probe frames a relay sees into a pcap file on a
// background goroutine.
type Recorder struct {
	frames  chan pcap.Frame
	wg      sync.WaitGroup
	path    string
	dropped atomic.Uint64
	once    sync.Once
}

// NewRecorder creates <dir>/<timestamp>.pcap and starts the writer.
func NewRecorder(dir string, linkType layers.LinkType, snaplen, bufferSize int) (*Recorder, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create record directory: %w", err)
	}
	if bufferSize <= 0 {
		bufferSize = 10000
	}

	fileName := fmt.Sprintf("%s.pcap", time.Now().Format("2006-01-02_15-04-05"))
	path := filepath.Join(dir, fileName)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create record file: %w", err)
	}
	w := pcapgo.NewWriter(file)
	if err := w.WriteFileHeader(uint32(snaplen), linkType); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to write pcap header: %w", err)
	}

	r := &Recorder{frames: make(chan pcap.Frame, bufferSize), path: path}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for f := range r.frames {
			ci := gopacket.CaptureInfo{
				Timestamp:     f.Timestamp,
				CaptureLength: len(f.Data),
				Length:        f.Length,
			}
			if err := w.WritePacket(ci, f.Data); err != nil {
				log.Printf("Recorder: failed to write frame: %v", err)
			}
		}
		if err := file.Close(); err != nil {
			log.Printf("Recorder: error closing file: %v", err)
		}
	}()
	log.Printf("Recording probe frames to %s", path)
	return r, nil
}

// Path returns the pcap file being written.
func (r *Recorder) Path() string { return r.path }

// Record queues f for writing. The frame is dropped when the writer falls
// behind.
func (r *Recorder) Record(f pcap.Frame) {
	data := append([]byte(nil), f.Data...)
	select {
	case r.frames <- pcap.Frame{Timestamp: f.Timestamp, Length: f.Length, Data: data}:
	default:
		if r.dropped.Add(1) == 1 {
			log.Printf("Warning: recorder %s is falling behind, dropping frames", r.path)
		}
	}
}

// Dropped returns the number of frames that could not be recorded.
func (r *Recorder) Dropped() uint64 { return r.dropped.Load() }

// Close flushes pending frames and closes the file.
func (r *Recorder) Close() {
	r.once.Do(func() {
		close(r.frames)
		r.wg.Wait()
		log.Printf("Recorder stopped, file %s closed.", r.path)
	})
}
