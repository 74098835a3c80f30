package dump

import (
	"HopSpectra/internal/config"
	"HopSpectra/internal/engine/aggregator"
	"HopSpectra/internal/factory"
	"HopSpectra/internal/flow/speedtest"
	"HopSpectra/internal/report"
	"HopSpectra/internal/telemetry/trace"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/pierrec/lz4/v4"
)

var encMode cbor.EncMode

func init() {
	var err error
	// Deterministic encoding: the same run always produces identical files.
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("dump: CBOR encoder initialization failed: " + err.Error())
	}

	factory.RegisterWriter("dump", func(def config.WriterDef) (report.Writer, error) {
		return NewWriter(def.Dump.RootPath, def.Dump.Encoding, def.Dump.Compress)
	})
}

// Dump is the raw content of one flow report as stored on disk.
type Dump struct {
	RunID   string
	Name    string
	Kind    string
	Rows    []aggregator.SummaryRow
	Records []trace.Record
	Packets []speedtest.Entry
}

// SummaryData holds the metadata written next to every dump.
type SummaryData struct {
	RunID        string `json:"run_id"`
	Name         string `json:"name"`
	Flow         string `json:"flow"`
	Kind         string `json:"kind"`
	Encoding     string `json:"encoding"`
	Compressed   bool   `json:"compressed"`
	Policy       string `json:"policy,omitempty"`
	BatchSize    int    `json:"batch_size,omitempty"`
	TotalPackets int    `json:"total_packets"`
	Received     int    `json:"received"`
	SummaryRows  int    `json:"summary_rows"`
	Timestamp    string `json:"timestamp"`
}

// Writer stores the raw records of every report in gob or CBOR, optionally
// lz4 compressed, together with a summary.json.
type Writer struct {
	rootPath string
	encoding string
	compress bool
}

// NewWriter creates a dump writer. encoding is "gob" or "cbor".
func NewWriter(rootPath, encoding string, compress bool) (*Writer, error) {
	switch encoding {
	case "gob", "cbor":
	case "":
		encoding = "gob"
	default:
		return nil, fmt.Errorf("unsupported dump encoding: %s", encoding)
	}
	if rootPath == "" {
		rootPath = "."
	}
	return &Writer{rootPath: rootPath, encoding: encoding, compress: compress}, nil
}

// FileName returns the name of the records file inside a report directory.
func (w *Writer) FileName() string {
	name := "records." + w.encoding
	if w.compress {
		name += ".lz4"
	}
	return name
}

// Dir returns the directory the report r is written to.
func (w *Writer) Dir(r *report.Report) string {
	runID := r.RunID
	if runID == "" {
		runID = r.CreatedAt.UTC().Format("2006-01-02_15-04-05")
	}
	return filepath.Join(w.rootPath, runID, r.Name)
}

// Write serializes the records of r and its summary to disk.
func (w *Writer) Write(r *report.Report) error {
	dir := w.Dir(r)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create dump directory: %w", err)
	}

	path := filepath.Join(dir, w.FileName())
	if err := w.writeRecords(path, r); err != nil {
		return err
	}

	received := 0
	for i := range r.Records {
		if r.Records[i].Received {
			received++
		}
	}
	for _, p := range r.Packets {
		if p.ReceiveTime != 0 {
			received++
		}
	}
	summary := SummaryData{
		RunID:        r.RunID,
		Name:         r.Name,
		Flow:         r.Flow,
		Kind:         string(r.Kind),
		Encoding:     w.encoding,
		Compressed:   w.compress,
		Policy:       r.Policy,
		BatchSize:    r.BatchSize,
		TotalPackets: len(r.Records) + len(r.Packets),
		Received:     received,
		SummaryRows:  len(r.Rows),
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
	}
	summaryFilePath := filepath.Join(dir, "summary.json")
	summaryFile, err := os.Create(summaryFilePath)
	if err != nil {
		return fmt.Errorf("failed to create summary file: %w", err)
	}
	if err := writeSummary(summaryFile, summary); err != nil {
		return fmt.Errorf("summary file '%s': %w", summaryFilePath, err)
	}
	return nil
}

// writeSummary encodes s to wc and closes it, returning the close error
// when the encode succeeded.
func writeSummary(wc io.WriteCloser, s SummaryData) (err error) {
	defer func() {
		if cerr := wc.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close summary file: %w", cerr)
		}
	}()

	jsonEncoder := json.NewEncoder(wc)
	jsonEncoder.SetIndent("", "  ")
	if err := jsonEncoder.Encode(s); err != nil {
		return fmt.Errorf("failed to encode summary to json: %w", err)
	}
	return nil
}

func (w *Writer) writeRecords(path string, r *report.Report) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create dump file '%s': %w", path, err)
	}
	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close dump file '%s': %w", path, cerr)
		}
	}()

	var out io.Writer = file
	var zw *lz4.Writer
	if w.compress {
		zw = lz4.NewWriter(file)
		out = zw
	}

	d := Dump{
		RunID:   r.RunID,
		Name:    r.Name,
		Kind:    string(r.Kind),
		Rows:    r.Rows,
		Records: r.Records,
		Packets: r.Packets,
	}
	if w.encoding == "cbor" {
		err = encMode.NewEncoder(out).Encode(d)
	} else {
		err = gob.NewEncoder(out).Encode(d)
	}
	if err != nil {
		return fmt.Errorf("failed to encode records to %s for file '%s': %w", w.encoding, path, err)
	}

	if zw != nil {
		if err := zw.Close(); err != nil {
			return fmt.Errorf("failed to flush lz4 stream for file '%s': %w", path, err)
		}
	}
	return nil
}

// Close is a no-op; files are closed after every Write.
func (w *Writer) Close() error {
	return nil
}

// ReadFile loads a dump written by Writer. The encoding and compression
// are taken from the file name.
func ReadFile(path string) (*Dump, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dump file: %w", err)
	}
	defer file.Close()

	name := filepath.Base(path)
	var in io.Reader = file
	if strings.HasSuffix(name, ".lz4") {
		in = lz4.NewReader(file)
		name = strings.TrimSuffix(name, ".lz4")
	}

	var d Dump
	switch filepath.Ext(name) {
	case ".gob":
		err = gob.NewDecoder(in).Decode(&d)
	case ".cbor":
		err = cbor.NewDecoder(in).Decode(&d)
	default:
		return nil, fmt.Errorf("unknown dump format: %s", path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode dump file '%s': %w", path, err)
	}
	return &d, nil
}
