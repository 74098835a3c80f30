package main

import (
	"HopSpectra/internal/clock"
	"HopSpectra/internal/engine/goodput"
	"HopSpectra/internal/report/csv"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

// Prints the mean goodput of every speedtest CSV in the given directories,
// one series per directory.
func main() {
	unitName := pflag.String("unit", "ns", "Clock unit of the receive times (ns, us, ms)")
	width := pflag.Duration("bin", goodput.DefaultBinWidth, "Bin width")
	packetSize := pflag.Int("packet-size", goodput.DefaultPacketSize, "Payload bytes per packet")
	offset := pflag.Duration("offset", 0, "Shift applied to every bin")
	from := pflag.Duration("from", 50*time.Second, "Start of the evaluation window (exclusive)")
	to := pflag.Duration("to", 70*time.Second, "End of the evaluation window (exclusive)")
	pflag.Parse()

	if pflag.NArg() == 0 {
		fmt.Println("Usage: go run ./scripts/goodput/main.go [flags] <results dir>...")
		os.Exit(1)
	}
	unit, err := clock.ParseUnit(*unitName)
	if err != nil {
		log.Fatal(err)
	}

	for _, dir := range pflag.Args() {
		log.Printf("Loading series from %s ...", dir)
		files, err := filepath.Glob(filepath.Join(dir, "*.csv"))
		if err != nil {
			log.Fatal(err)
		}
		sort.Strings(files)

		var series []string
		for _, file := range files {
			entries, err := csv.ReadSpeedtest(file)
			if err != nil {
				log.Printf("Warning: skipping %s: %v", file, err)
				continue
			}
			bins := goodput.Bins(entries, unit, *width, *packetSize)
			mean, ok := goodput.Mean(bins, *offset, *from, *to)
			if !ok {
				log.Printf("Warning: %s has no received packets between %s and %s", file, *from, *to)
				continue
			}
			series = append(series, fmt.Sprintf("%.3f", mean))
		}
		fmt.Printf("%s: %d runs, mean goodput (Mbit/s): %s\n", dir, len(series), strings.Join(series, " "))
	}
}
