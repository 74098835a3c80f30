package report

import (
	"HopSpectra/internal/engine/aggregator"
	"HopSpectra/internal/flow/speedtest"
	"HopSpectra/internal/telemetry/trace"
	"time"
)

// Kind tells writers which payload of a Report is populated.
type Kind string

const (
	KindTrace     Kind = "trace"
	KindSpeedtest Kind = "speedtest"
)

// Report is the final output of one flow. Trace reports carry summary rows
// and the raw records they were computed from; speedtest reports carry the
// per-packet entries.
type Report struct {
	RunID     string
	Name      string
	Flow      string
	Kind      Kind
	CreatedAt time.Time

	BatchSize int
	Policy    string

	Rows    []aggregator.SummaryRow
	Records []trace.Record
	Packets []speedtest.Entry
}

// Writer persists reports. Write is called once per flow after the run has
// stopped; Close releases connections once every report was written.
type Writer interface {
	Write(r *Report) error
	Close() error
}
