package csv

import (
	"HopSpectra/internal/config"
	"HopSpectra/internal/factory"
	"HopSpectra/internal/report"
	"bufio"
	"fmt"
	"log"
	"os"
	"path/filepath"
)

const (
	traceHeader     = "at,delay,stddev,min_link_cap,max_link_cap,queue_capacity,hops,dropratio\n"
	speedtestHeader = "send_time,receive_time,sock_rtt,sock_cwnd,progress\n"
)

func init() {
	factory.RegisterWriter("csv", func(def config.WriterDef) (report.Writer, error) {
		return NewWriter(def.CSV.RootPath)
	})
}

// Writer writes one CSV file per flow.
type Writer struct {
	rootPath string
}

// NewWriter creates a CSV writer below rootPath.
func NewWriter(rootPath string) (*Writer, error) {
	if rootPath == "" {
		rootPath = "."
	}
	if err := os.MkdirAll(rootPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create csv directory: %w", err)
	}
	return &Writer{rootPath: rootPath}, nil
}

// Path returns the file a report with the given name is written to.
func (w *Writer) Path(name string) string {
	return filepath.Join(w.rootPath, name+".csv")
}

// Write replaces the CSV file of r.
func (w *Writer) Write(r *report.Report) error {
	path := w.Path(r.Name)
	log.Printf("Writing %s file to %s ...", r.Kind, path)

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create csv file '%s': %w", path, err)
	}
	defer file.Close()

	bw := bufio.NewWriter(file)
	switch r.Kind {
	case report.KindTrace:
		writeTrace(bw, r)
	case report.KindSpeedtest:
		writeSpeedtest(bw, r)
	default:
		return fmt.Errorf("unsupported report kind: %s", r.Kind)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("failed to write csv file '%s': %w", path, err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close csv file '%s': %w", path, err)
	}
	log.Printf("Closed %s file %s", r.Kind, path)
	return nil
}

func writeTrace(bw *bufio.Writer, r *report.Report) {
	bw.WriteString(traceHeader)
	for _, row := range r.Rows {
		fmt.Fprintf(bw, "%d,%d,%.2f,%.2f,%.2f,%d,%d,%.2f\n",
			row.Offset,
			row.MeanDelay,
			row.StdDevDelay,
			row.MinLinkCapacity,
			row.MaxLinkCapacity,
			row.QueueCapacity,
			row.HopCount,
			row.DropRatio,
		)
	}
}

func writeSpeedtest(bw *bufio.Writer, r *report.Report) {
	bw.WriteString(speedtestHeader)
	for _, e := range r.Packets {
		fmt.Fprintf(bw, "%d,%d,%d,%d,%d\n", e.SendTime, e.ReceiveTime, e.SocketRTT, e.Cwnd, e.Progress)
	}
}

// Close is a no-op; files are closed after every Write.
func (w *Writer) Close() error {
	return nil
}
