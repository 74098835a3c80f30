package main

import (
	"HopSpectra/internal/clock"
	"HopSpectra/internal/config"
	"HopSpectra/internal/relay"
	"HopSpectra/internal/transport"
	"HopSpectra/pkg/pcap"
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
)

func main() {
	configFile := pflag.StringP("config", "c", "configs/config.yaml", "Path to the configuration file.")
	file := pflag.StringP("file", "r", "", "Read frames from a capture file instead of the configured source.")
	iface := pflag.StringP("iface", "i", "", "Capture from this interface instead of the configured source.")
	node := pflag.Uint32("node", 0, "Override relay.node_id.")
	mode := pflag.String("mode", "", "Override relay.mode (hop or receive).")
	pflag.Parse()

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *file != "" {
		cfg.Relay.Capture.File, cfg.Relay.Capture.Interface = *file, ""
	} else if *iface != "" {
		cfg.Relay.Capture.File, cfg.Relay.Capture.Interface = "", *iface
	}
	if *node != 0 {
		cfg.Relay.NodeID = *node
	}
	if *mode != "" {
		cfg.Relay.Mode = *mode
	}

	unit, err := clock.ParseUnit(cfg.Clock.Unit)
	if err != nil {
		log.Fatalf("Invalid clock config: %v", err)
	}

	// Open the capture source
	var reader *pcap.Reader
	switch {
	case cfg.Relay.Capture.File != "":
		reader, err = pcap.NewReader(cfg.Relay.Capture.File)
	case cfg.Relay.Capture.Interface != "":
		reader, err = pcap.OpenLive(cfg.Relay.Capture.Interface, cfg.Relay.Capture.Snaplen)
	default:
		err = errors.New("neither relay.capture.file nor relay.capture.interface is set")
	}
	if err != nil {
		log.Fatalf("Failed to open capture: %v", err)
	}
	defer reader.Close()

	pub, err := transport.NewPublisher(cfg.Transport)
	if err != nil {
		log.Fatalf("Failed to connect to NATS: %v", err)
	}
	defer pub.Close()

	r, err := relay.New(cfg.Relay, cfg.BusyWindow(), unit, reader.LinkType(), pub)
	if err != nil {
		log.Fatalf("Failed to create relay: %v", err)
	}
	if cfg.Relay.RecordPath != "" {
		rec, err := relay.NewRecorder(cfg.Relay.RecordPath, reader.LinkType(), cfg.Relay.Capture.Snaplen, 0)
		if err != nil {
			log.Fatalf("Failed to create recorder: %v", err)
		}
		defer rec.Close()
		r.SetRecorder(rec)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	frames := make(chan pcap.Frame, 1024)
	go func() {
		if err := reader.ReadFrames(ctx, frames); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("Capture stopped: %v", err)
		}
	}()

	log.Printf("Relay for node %d started in %s mode.", cfg.Relay.NodeID, cfg.Relay.Mode)
	if err := r.Run(ctx, frames); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("Relay stopped: %v", err)
	}

	st := r.Stats()
	log.Printf("Relay done: %d frames, %d probes, %d queue drops, %d published, %d publish errors",
		st.Frames, st.Probes, st.Dropped, st.Published, st.PublishErrors)
}
