package main

import (
	"HopSpectra/internal/clock"
	"HopSpectra/internal/config"
	"HopSpectra/internal/emulation"
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
)

const usage = `Usage:
  ns-emulate init  [flags] <fwd_if> <fwd_trace> <rtn_if> <rtn_trace>
  ns-emulate run   [flags] <fwd_if> <fwd_trace> <rtn_if> <rtn_trace>
  ns-emulate clean <fwd_if> <rtn_if>
`

func main() {
	configFile := pflag.StringP("config", "c", "", "Take the clock unit of the traces from this configuration file.")
	unitName := pflag.String("unit", "", "Clock unit of the trace timestamps (ns, us, ms); overrides --config.")
	linkRate := pflag.Uint64("link-rate", 0, "Nominal link rate in bit/s; min_link_cap is read as a fraction of it when set.")
	mtu := pflag.Int("mtu", emulation.DefaultMTU, "Path MTU to emulate (init only).")
	debug := pflag.BoolP("debug", "d", false, "Show debug output.")
	pflag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		pflag.PrintDefaults()
	}
	pflag.Parse()

	args := pflag.Args()
	if len(args) == 0 {
		pflag.Usage()
		os.Exit(1)
	}
	cmd, args := args[0], args[1:]

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	em := emulation.New(emulation.NewHost(emulation.ExecRunner), *debug)

	if cmd == "clean" {
		if len(args) != 2 {
			pflag.Usage()
			os.Exit(1)
		}
		if err := em.Clean(ctx, args[0], args[1]); err != nil {
			log.Printf("Warning: cleanup incomplete: %v", err)
		}
		log.Println("Emulation configuration cleaned.")
		return
	}
	if cmd != "init" && cmd != "run" {
		log.Fatalf("Unknown subcommand: '%s'", cmd)
	}
	if len(args) != 4 {
		pflag.Usage()
		os.Exit(1)
	}

	unit, err := traceUnit(*configFile, *unitName)
	if err != nil {
		log.Fatalf("Invalid clock unit: %v", err)
	}
	for _, iface := range []string{args[0], args[2]} {
		if _, err := net.InterfaceByName(iface); err != nil {
			log.Fatalf("No interface with name '%s' on system: %v", iface, err)
		}
	}
	fwd, err := emulation.LoadTrace(args[0], args[1], unit, *linkRate)
	if err != nil {
		log.Fatalf("Failed to load forward trace: %v", err)
	}
	rtn, err := emulation.LoadTrace(args[2], args[3], unit, *linkRate)
	if err != nil {
		log.Fatalf("Failed to load return trace: %v", err)
	}

	switch cmd {
	case "init":
		if err := em.Init(ctx, fwd, rtn, *mtu); err != nil {
			log.Fatalf("Initialization failed: %v", err)
		}
		log.Println("Emulation environment initialized, use 'run' to start playback.")
	case "run":
		if err := em.Run(ctx, fwd, rtn); err != nil {
			if errors.Is(err, context.Canceled) {
				log.Println("Playback interrupted.")
				return
			}
			log.Fatalf("Playback failed: %v", err)
		}
	}
}

func traceUnit(configFile, unitName string) (time.Duration, error) {
	if unitName == "" && configFile != "" {
		cfg, err := config.LoadConfig(configFile)
		if err != nil {
			return 0, err
		}
		unitName = cfg.Clock.Unit
	}
	return clock.ParseUnit(unitName)
}
