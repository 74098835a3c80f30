package csv

import (
	"HopSpectra/internal/engine/aggregator"
	"HopSpectra/internal/flow/speedtest"
	"HopSpectra/internal/report"
	"os"
	"path/filepath"
	"testing"
)

func TestReadTrace_RoundTripsWriter(t *testing.T) {
	w, err := NewWriter(t.TempDir())
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}
	r := &report.Report{
		Name: "trace_1_to_3",
		Kind: report.KindTrace,
		Rows: []aggregator.SummaryRow{
			{Offset: 0, MeanDelay: 175, StdDevDelay: 12.5, MinLinkCapacity: 0.25, MaxLinkCapacity: 0.75, QueueCapacity: 40, HopCount: 3, DropRatio: 0.5},
			{Offset: 200, DropRatio: 1},
		},
	}
	if err := w.Write(r); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	rows, err := ReadTrace(w.Path("trace_1_to_3"))
	if err != nil {
		t.Fatalf("ReadTrace failed: %v", err)
	}
	if len(rows) != 2 || rows[0] != r.Rows[0] || rows[1] != r.Rows[1] {
		t.Errorf("Unexpected rows %+v", rows)
	}
}

func TestReadTrace_WhitespaceAndBlankLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.csv")
	data := "at,delay,stddev,min_link_cap,max_link_cap,queue_capacity,hops,dropratio\n" +
		"\n" +
		" 1000, 20000, 1000.00, 0.50, 0.90, 8, 2, 0.00\n"
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	rows, err := ReadTrace(path)
	if err != nil {
		t.Fatalf("ReadTrace failed: %v", err)
	}
	if len(rows) != 1 || rows[0].Offset != 1000 || rows[0].HopCount != 2 || rows[0].QueueCapacity != 8 {
		t.Errorf("Unexpected rows %+v", rows)
	}
}

func TestReadTrace_Errors(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		data string
	}{
		{"short row", "1,2,3\n"},
		{"bad number", "x0,1,2,3,4,5,6,7\n1,one,2,3,4,5,6,7\n"},
	}
	for _, tt := range tests {
		path := filepath.Join(dir, tt.name+".csv")
		if err := os.WriteFile(path, []byte(tt.data), 0644); err != nil {
			t.Fatalf("WriteFile failed: %v", err)
		}
		if _, err := ReadTrace(path); err == nil {
			t.Errorf("%s: expected an error", tt.name)
		}
	}
	if _, err := ReadTrace(filepath.Join(dir, "missing.csv")); err == nil {
		t.Errorf("Expected an error for a missing file")
	}
}

func TestReadSpeedtest(t *testing.T) {
	w, err := NewWriter(t.TempDir())
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}
	packets := []speedtest.Entry{
		{SendTime: 10, ReceiveTime: 30, SocketRTT: 500, Cwnd: 14600},
		{SendTime: 15, SocketRTT: 510, Cwnd: -1, Progress: 1460},
	}
	if err := w.Write(&report.Report{Name: "speedtest_4", Kind: report.KindSpeedtest, Packets: packets}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	got, err := ReadSpeedtest(w.Path("speedtest_4"))
	if err != nil {
		t.Fatalf("ReadSpeedtest failed: %v", err)
	}
	if len(got) != 2 || got[0] != packets[0] || got[1] != packets[1] {
		t.Errorf("Unexpected entries %+v", got)
	}
}
