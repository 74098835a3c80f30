package csv

import (
	"HopSpectra/internal/engine/aggregator"
	"HopSpectra/internal/flow/speedtest"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ReadTrace parses a trace summary file written by Writer. Blank lines and
// the header are skipped; surrounding whitespace in fields is ignored.
func ReadTrace(path string) ([]aggregator.SummaryRow, error) {
	records, err := readAll(path, 8)
	if err != nil {
		return nil, err
	}

	rows := make([]aggregator.SummaryRow, 0, len(records))
	for i, rec := range records {
		var row aggregator.SummaryRow
		var p fieldParser
		row.Offset = p.uint(rec[0])
		row.MeanDelay = p.uint(rec[1])
		row.StdDevDelay = p.float(rec[2])
		row.MinLinkCapacity = p.float(rec[3])
		row.MaxLinkCapacity = p.float(rec[4])
		row.QueueCapacity = p.uint(rec[5])
		row.HopCount = uint32(p.uint(rec[6]))
		row.DropRatio = p.float(rec[7])
		if p.err != nil {
			return nil, fmt.Errorf("%s: row %d: %w", path, i+1, p.err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// ReadSpeedtest parses a speedtest file written by Writer.
func ReadSpeedtest(path string) ([]speedtest.Entry, error) {
	records, err := readAll(path, 5)
	if err != nil {
		return nil, err
	}

	entries := make([]speedtest.Entry, 0, len(records))
	for i, rec := range records {
		var e speedtest.Entry
		var p fieldParser
		e.SendTime = p.uint(rec[0])
		e.ReceiveTime = p.uint(rec[1])
		e.SocketRTT = p.uint(rec[2])
		e.Cwnd = p.int(rec[3])
		e.Progress = p.int(rec[4])
		if p.err != nil {
			return nil, fmt.Errorf("%s: row %d: %w", path, i+1, p.err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// readAll returns the data rows of a CSV file with the given column count.
func readAll(path string, columns int) ([][]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open csv file '%s': %w", path, err)
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = columns
	r.TrimLeadingSpace = true
	all, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv file '%s': %w", path, err)
	}
	if len(all) > 0 && isHeader(all[0]) {
		all = all[1:]
	}
	return all, nil
}

func isHeader(rec []string) bool {
	_, err := strconv.ParseFloat(strings.TrimSpace(rec[0]), 64)
	return err != nil
}

// fieldParser keeps the first parse error so a row can be decoded field by
// field.
type fieldParser struct {
	err error
}

func (p *fieldParser) uint(s string) uint64 {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	p.keep(s, err)
	return v
}

func (p *fieldParser) int(s string) int64 {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	p.keep(s, err)
	return v
}

func (p *fieldParser) float(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	p.keep(s, err)
	return v
}

func (p *fieldParser) keep(s string, err error) {
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("invalid field %q: %w", s, err)
	}
}
