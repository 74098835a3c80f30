package probe

import (
	"HopSpectra/internal/model"
	"HopSpectra/internal/tag"
	"context"
	"fmt"
	"log"
	"net"
	"sync"
	"time"
)

// Source issues probe ids. *tracer.Tracer implements it.
type Source interface {
	Name() string
	NextProbe() model.PacketID
}

// Target pairs a probe source with the UDP address its probes go to.
type Target struct {
	Source Source
	Remote string
}

type sender struct {
	source Source
	conn   net.Conn
}

// Emitter sends tagged UDP probes for every target at a fixed interval.
type Emitter struct {
	senders  []sender
	interval time.Duration
	size     int

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewEmitter dials every target. size is the UDP payload size of a probe;
// it is raised to the tag size if smaller.
func NewEmitter(targets []Target, interval time.Duration, size int) (*Emitter, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("probe interval must be positive, got %s", interval)
	}
	if size < tag.Size {
		size = tag.Size
	}

	e := &Emitter{interval: interval, size: size}
	for _, t := range targets {
		conn, err := net.Dial("udp", t.Remote)
		if err != nil {
			e.closeConns()
			return nil, fmt.Errorf("failed to dial %s for flow %s: %w", t.Remote, t.Source.Name(), err)
		}
		e.senders = append(e.senders, sender{source: t.Source, conn: conn})
	}
	return e, nil
}

// Start launches one sending goroutine per target.
func (e *Emitter) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	e.wg.Add(len(e.senders))
	for _, s := range e.senders {
		go e.run(ctx, s)
	}
	log.Printf("Probe emitter started for %d flows every %s.", len(e.senders), e.interval)
}

func (e *Emitter) run(ctx context.Context, s sender) {
	defer e.wg.Done()
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	payload := make([]byte, e.size)
	var failures uint64
	for {
		select {
		case <-ticker.C:
			id := s.source.NextProbe()
			tag.Append(payload[:0], id)
			if _, err := s.conn.Write(payload); err != nil {
				// The record stays open and is reported as a drop.
				failures++
				if failures == 1 || failures%1000 == 0 {
					log.Printf("Warning: flow %s failed to send probe %d (%d failures): %v", s.source.Name(), id, failures, err)
				}
			}
		case <-ctx.Done():
			return
		}
	}
}

// Stop halts all senders and closes their sockets.
func (e *Emitter) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
	e.closeConns()
	log.Println("Probe emitter stopped.")
}

func (e *Emitter) closeConns() {
	for _, s := range e.senders {
		s.conn.Close()
	}
}
