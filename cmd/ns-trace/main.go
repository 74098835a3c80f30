package main

import (
	"HopSpectra/internal/clock"
	"HopSpectra/internal/collector"
	"HopSpectra/internal/config"
	"HopSpectra/internal/factory"
	"HopSpectra/internal/ingest"
	"HopSpectra/internal/model"
	"HopSpectra/internal/probe"
	"HopSpectra/internal/transport"
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
)

func main() {
	configFile := pflag.StringP("config", "c", "configs/config.yaml", "Path to the configuration file.")
	listenAddr := pflag.String("listen", "", "Override api.listen_addr.")
	noNATS := pflag.Bool("no-nats", false, "Do not subscribe to relay events on NATS.")
	noProbes := pflag.Bool("no-probes", false, "Do not emit probes; flows are driven through the ingest API only.")
	pflag.Parse()

	log.Println("Starting ns-trace...")

	// 1. Load configuration
	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *listenAddr != "" {
		cfg.API.ListenAddr = *listenAddr
	}
	log.Println("Configuration loaded successfully.")

	unit, err := clock.ParseUnit(cfg.Clock.Unit)
	if err != nil {
		log.Fatalf("Invalid clock config: %v", err)
	}

	// 2. Build writers first so a bad writer config fails before measuring.
	writers, err := factory.Create(cfg.EnabledWriters())
	if err != nil {
		log.Fatalf("Failed to create report writers: %v", err)
	}

	// 3. Build the collector with all configured flows
	clk := clock.NewMonotonic(unit)
	col, err := collector.New(cfg, clk)
	if err != nil {
		log.Fatalf("Failed to create collector: %v", err)
	}
	col.Start()
	log.Printf("Collector run %s started, timestamps in units of %s.", col.RunID(), clk.Unit())

	// 4. Event intake: NATS from relays, HTTP from everything else
	var sub *transport.Subscriber
	if !*noNATS && cfg.Transport.NATSURL != "" {
		sub, err = transport.NewSubscriber(cfg.Transport)
		if err != nil {
			log.Fatalf("Failed to connect to NATS: %v", err)
		}
		if err := sub.Start(func(e model.Event) { col.Dispatch(e) }); err != nil {
			log.Fatalf("Subscriber failed to start: %v", err)
		}
	}

	var server *ingest.Server
	if cfg.API.ListenAddr != "" {
		server = ingest.NewServer(cfg.API.ListenAddr, col)
		server.Start()
	}

	// 5. Probe emission for every trace flow with a remote address
	var emitter *probe.Emitter
	if !*noProbes {
		remotes := make(map[string]string)
		for _, def := range cfg.Tracer.Flows {
			if def.Kind == "trace" && def.Remote != "" {
				remotes[def.Name] = def.Remote
			}
		}
		var targets []probe.Target
		for _, t := range col.Tracers() {
			if remote, ok := remotes[t.Name()]; ok {
				targets = append(targets, probe.Target{Source: t, Remote: remote})
			}
		}
		if len(targets) > 0 {
			emitter, err = probe.NewEmitter(targets, cfg.ProbeInterval(), cfg.Tracer.ProbeSize)
			if err != nil {
				log.Fatalf("Failed to create probe emitter: %v", err)
			}
			emitter.Start(context.Background())
		}
	}

	// 6. Wait for a shutdown signal for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigChan:
		log.Println("Shutdown signal received, stopping...")
	case err := <-col.Fatal():
		log.Fatalf("Aborting run: %v", err)
	}

	if emitter != nil {
		emitter.Stop()
	}
	if sub != nil {
		sub.Close()
	}
	if server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := server.Shutdown(ctx); err != nil {
			log.Printf("Error: %v", err)
		}
		cancel()
	}

	// 7. Final flush: one report per flow to every writer
	if err := col.WriteReports(writers); err != nil {
		log.Printf("Some reports could not be written: %v", err)
	}
	for _, w := range writers {
		if err := w.Close(); err != nil {
			log.Printf("Failed to close writer: %v", err)
		}
	}
	reg := col.Registry()
	log.Printf("Issued %d packet ids across %d flows.", reg.PacketCount(), reg.FlowCount())
	for _, st := range col.Status() {
		log.Printf("Flow %s (%s): %d sent, %d received", st.Name, st.Kind, st.Sent, st.Received)
	}
	log.Println("Shutdown complete.")
}
