package main

import (
	"HopSpectra/internal/report/dump"
	"fmt"
	"log"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run ./scripts/dumpana/main.go <records file>")
		os.Exit(1)
	}

	d, err := dump.ReadFile(os.Args[1])
	if err != nil {
		log.Fatalf("Failed to read dump: %v", err)
	}

	fmt.Printf("Run %s, report %s (%s)\n", d.RunID, d.Name, d.Kind)
	for _, row := range d.Rows {
		fmt.Printf("  at=%d delay=%d stddev=%.2f queue=%d hops=%d drop=%.2f\n",
			row.Offset, row.MeanDelay, row.StdDevDelay, row.QueueCapacity, row.HopCount, row.DropRatio)
	}
	for _, rec := range d.Records {
		status := "dropped"
		if rec.Received {
			status = fmt.Sprintf("took %d", rec.Delay())
		}
		fmt.Printf("  packet %d sent=%d %s hops=%d nodes=%v queues=%v\n",
			rec.ID, rec.SendTime, status, rec.HopCount, rec.HopNodes, rec.QueueDepths)
	}
	for i, p := range d.Packets {
		fmt.Printf("  #%d %+v\n", i, p)
	}
}
