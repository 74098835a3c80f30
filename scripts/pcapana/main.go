package main

import (
	"HopSpectra/internal/tag"
	"HopSpectra/pkg/pcap"
	"context"
	"fmt"
	"log"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run ./scripts/pcapana/main.go <path_to_pcap_file>")
		os.Exit(1)
	}
	reader, err := pcap.NewReader(os.Args[1])
	if err != nil {
		log.Fatal(err)
	}
	defer reader.Close()

	frames := make(chan pcap.Frame, 64)
	go func() {
		if err := reader.ReadFrames(context.Background(), frames); err != nil {
			log.Printf("Read error: %v", err)
		}
	}()

	total, probes := 0, 0
	for f := range frames {
		total++
		p, err := tag.FromFrame(f.Data, reader.LinkType())
		if err != nil {
			continue
		}
		probes++
		fmt.Printf("[%s] probe %d %s:%d -> %s:%d len=%d\n",
			f.Timestamp.Format("15:04:05.000000"), p.ID,
			p.FiveTuple.SrcIP, p.FiveTuple.SrcPort,
			p.FiveTuple.DstIP, p.FiveTuple.DstPort,
			p.Length,
		)
	}
	fmt.Printf("%d frames, %d probes\n", total, probes)
}
