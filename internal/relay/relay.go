package relay

import (
	"HopSpectra/internal/config"
	"HopSpectra/internal/model"
	"HopSpectra/internal/tag"
	"HopSpectra/pkg/pcap"
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/gopacket/layers"
)

// Publisher delivers events to the collector.
type Publisher interface {
	Publish(e model.Event) error
}

// Stats counts what a relay has seen.
type Stats struct {
	Frames        uint64
	Probes        uint64
	Dropped       uint64
	Published     uint64
	PublishErrors uint64
}

// Relay taps a link, keeps the link model current with every frame and
// reports each probe frame to the collector. In hop mode it publishes hop
// events with the link state the probe found; in receive mode it marks the
// probe as arrived at its final receiver.
type Relay struct {
	node     model.NodeID
	kind     model.EventKind
	linkType layers.LinkType
	link     *Link
	pub      Publisher
	recorder *Recorder

	stats Stats
}

// New creates a relay for the given node config.
func New(cfg config.RelayConfig, window, unit time.Duration, linkType layers.LinkType, pub Publisher) (*Relay, error) {
	kind := model.EventHop
	switch cfg.Mode {
	case "", "hop":
	case "receive":
		kind = model.EventReceive
	default:
		return nil, fmt.Errorf("unknown relay mode: %s", cfg.Mode)
	}
	if kind == model.EventHop && cfg.LinkRateBps == 0 {
		return nil, errors.New("relay: link_rate_bps must be set in hop mode")
	}

	name := fmt.Sprintf("node-%d", cfg.NodeID)
	return &Relay{
		node:     model.NodeID(cfg.NodeID),
		kind:     kind,
		linkType: linkType,
		link:     NewLink(name, cfg.LinkRateBps, window, unit, cfg.QueueLimit),
		pub:      pub,
	}, nil
}

// SetRecorder makes the relay persist every probe frame it sees.
func (r *Relay) SetRecorder(rec *Recorder) {
	r.recorder = rec
}

// HandleFrame processes one captured frame.
func (r *Relay) HandleFrame(f pcap.Frame) {
	r.stats.Frames++

	var sample Sample
	if r.kind == model.EventHop {
		sample = r.link.Observe(r.link.Units(f.Timestamp), f.Length)
		if sample.Dropped {
			r.stats.Dropped++
		}
	}

	probe, err := tag.FromFrame(f.Data, r.linkType)
	if err != nil {
		return
	}
	r.stats.Probes++
	if r.recorder != nil {
		r.recorder.Record(f)
	}
	// A probe dropped by the modelled queue never reaches the next hop.
	if sample.Dropped {
		return
	}

	e := model.Event{Kind: r.kind, PacketID: probe.ID, Node: r.node}
	if r.kind == model.EventHop {
		e.LinkUtilization = sample.Utilization
		e.QueueDepth = sample.QueueDepth
	}
	if err := r.pub.Publish(e); err != nil {
		r.stats.PublishErrors++
		if r.stats.PublishErrors == 1 {
			log.Printf("Warning: failed to publish %s event for packet %d: %v", e.Kind, e.PacketID, err)
		}
		return
	}
	r.stats.Published++
}

// Run handles frames until the channel is closed or ctx is cancelled.
func (r *Relay) Run(ctx context.Context, frames <-chan pcap.Frame) error {
	for {
		select {
		case f, ok := <-frames:
			if !ok {
				return nil
			}
			r.HandleFrame(f)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Stats returns the counters. It must not be called concurrently with Run.
func (r *Relay) Stats() Stats {
	return r.stats
}
