package csv

import (
	"HopSpectra/internal/engine/aggregator"
	"HopSpectra/internal/flow/speedtest"
	"HopSpectra/internal/report"
	"os"
	"path/filepath"
	"testing"
)

func TestWriter_Trace(t *testing.T) {
	dir, err := os.MkdirTemp("", "csv_writer_test")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(dir)

	w, err := NewWriter(filepath.Join(dir, "results"))
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}
	r := &report.Report{
		Name: "trace_1_to_3",
		Kind: report.KindTrace,
		Rows: []aggregator.SummaryRow{
			{Offset: 0, MeanDelay: 175, StdDevDelay: 55.9017, MinLinkCapacity: 0.2, MaxLinkCapacity: 0.95, QueueCapacity: 40, HopCount: 3, DropRatio: 0.2},
			{Offset: 200, DropRatio: 1},
		},
	}
	if err := w.Write(r); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "results", "trace_1_to_3.csv"))
	if err != nil {
		t.Fatalf("Failed to read csv: %v", err)
	}
	want := "at,delay,stddev,min_link_cap,max_link_cap,queue_capacity,hops,dropratio\n" +
		"0,175,55.90,0.20,0.95,40,3,0.20\n" +
		"200,0,0.00,0.00,0.00,0,0,1.00\n"
	if string(data) != want {
		t.Errorf("Unexpected csv content:\n%s\nwant:\n%s", data, want)
	}
}

func TestWriter_Speedtest(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir)
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}
	r := &report.Report{
		Name: "speedtest_4",
		Kind: report.KindSpeedtest,
		Packets: []speedtest.Entry{
			{SendTime: 10, ReceiveTime: 30, SocketRTT: 500, Cwnd: 14600, Progress: 0},
			{SendTime: 15, SocketRTT: 510, Cwnd: -1, Progress: 1460},
		},
	}
	if err := w.Write(r); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	data, err := os.ReadFile(w.Path("speedtest_4"))
	if err != nil {
		t.Fatalf("Failed to read csv: %v", err)
	}
	want := "send_time,receive_time,sock_rtt,sock_cwnd,progress\n" +
		"10,30,500,14600,0\n" +
		"15,0,510,-1,1460\n"
	if string(data) != want {
		t.Errorf("Unexpected csv content:\n%s\nwant:\n%s", data, want)
	}
}

func TestWriter_UnknownKind(t *testing.T) {
	w, err := NewWriter(t.TempDir())
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}
	if err := w.Write(&report.Report{Name: "x", Kind: "histogram"}); err == nil {
		t.Errorf("Expected an error for an unknown kind")
	}
}
