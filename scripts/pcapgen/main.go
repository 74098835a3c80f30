package main

import (
	"HopSpectra/internal/model"
	"HopSpectra/internal/tag"
	"log"
	"math/rand"
	"net"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/spf13/pflag"
)

func main() {
	outputFile := pflag.StringP("output", "o", "test.pcap", "Output pcap file path")
	packetCount := pflag.IntP("count", "c", 1000, "Number of frames to generate")
	probeEvery := pflag.Int("probe-every", 10, "Every n-th frame is a tagged probe")
	firstID := pflag.Uint64("first-id", 1, "Packet id of the first probe")
	gap := pflag.Duration("gap", 100*time.Microsecond, "Mean gap between frames")
	pflag.Parse()

	f, err := os.Create(*outputFile)
	if err != nil {
		log.Fatalf("Failed to create output file: %v", err)
	}
	defer f.Close()

	pcapWriter := pcapgo.NewWriter(f)
	if err := pcapWriter.WriteFileHeader(65536, layers.LinkTypeEthernet); err != nil {
		log.Fatalf("Failed to write pcap header: %v", err)
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	log.Printf("Generating %d frames into %s...", *packetCount, *outputFile)

	ts := time.Now()
	nextID := model.PacketID(*firstID)
	probes := 0
	for i := 0; i < *packetCount; i++ {
		spec := tag.FrameSpec{
			SrcIP:       net.IP{10, 0, 0, 1},
			DstIP:       net.IP{10, 0, 0, 3},
			SrcPort:     uint16(rng.Intn(65535-1024) + 1024),
			DstPort:     uint16(rng.Intn(65535-1024) + 1024),
			PayloadSize: rng.Intn(1400) + 50,
		}
		if *probeEvery > 0 && i%*probeEvery == 0 {
			spec.ID = nextID
			spec.PayloadSize = 64
			spec.DstPort = 9000
			nextID++
			probes++
		}

		frame, err := tag.BuildFrame(spec)
		if err != nil {
			log.Fatalf("Failed to build frame: %v", err)
		}
		ci := gopacket.CaptureInfo{
			Timestamp:     ts,
			CaptureLength: len(frame),
			Length:        len(frame),
		}
		if err := pcapWriter.WritePacket(ci, frame); err != nil {
			log.Fatalf("Failed to write packet: %v", err)
		}
		ts = ts.Add(time.Duration(rng.Int63n(2*int64(*gap) + 1)))
	}

	log.Printf("Successfully generated %d frames (%d probes) into %s.", *packetCount, probes, *outputFile)
}
