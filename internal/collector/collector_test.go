package collector

import (
	"HopSpectra/internal/clock"
	"HopSpectra/internal/config"
	"HopSpectra/internal/model"
	"HopSpectra/internal/report"
	"HopSpectra/internal/telemetry/registry"
	"errors"
	"sync"
	"testing"
)

func newTestConfig(strict bool) *config.Config {
	cfg := &config.Config{
		Tracer: config.TracerConfig{
			BatchSize:    2,
			Accumulation: "bottleneck",
			Strict:       strict,
			MailboxSize:  4,
			Flows: []config.FlowDef{
				{Name: "probe", Kind: "trace", From: 1, To: 3},
				{Name: "bulk", Kind: "speedtest", From: 1, To: 3},
			},
		},
	}
	if err := cfg.Validate(); err != nil {
		panic(err)
	}
	return cfg
}

type memoryWriter struct {
	mu      sync.Mutex
	reports []*report.Report
	err     error
}

func (w *memoryWriter) Write(r *report.Report) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.reports = append(w.reports, r)
	return w.err
}

func (w *memoryWriter) Close() error { return nil }

func TestCollector_DispatchAndReport(t *testing.T) {
	c := clock.NewManual(0)
	col, err := New(newTestConfig(false), c)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	tracers := col.Tracers()
	if len(tracers) != 1 {
		t.Fatalf("Expected 1 tracer, got %d", len(tracers))
	}
	tr := tracers[0]
	col.Start()

	var ids []model.PacketID
	for i := 0; i < 3; i++ {
		ids = append(ids, tr.NextProbe())
	}
	c.Advance(10)
	// Many relays report concurrently.
	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id model.PacketID) {
			defer wg.Done()
			if err := col.Dispatch(model.Event{Kind: model.EventHop, PacketID: id, Node: 2, LinkUtilization: 0.5, QueueDepth: 6}); err != nil {
				t.Errorf("Dispatch hop failed: %v", err)
			}
		}(id)
	}
	wg.Wait()
	for _, id := range ids[:2] {
		if err := col.Dispatch(model.Event{Kind: model.EventReceive, PacketID: id, Node: 3}); err != nil {
			t.Fatalf("Dispatch receive failed: %v", err)
		}
	}

	w := &memoryWriter{}
	if err := col.WriteReports([]report.Writer{w}); err != nil {
		t.Fatalf("WriteReports failed: %v", err)
	}
	if len(w.reports) != 2 {
		t.Fatalf("Expected 2 reports, got %d", len(w.reports))
	}

	tr0 := w.reports[0]
	if tr0.Kind != report.KindTrace || tr0.Name != "trace_1_to_3" || tr0.RunID != col.RunID() {
		t.Errorf("Unexpected trace report header %+v", tr0)
	}
	if tr0.Policy != "bottleneck" || tr0.BatchSize != 2 {
		t.Errorf("Unexpected aggregation settings %s/%d", tr0.Policy, tr0.BatchSize)
	}
	if len(tr0.Rows) != 2 || len(tr0.Records) != 3 {
		t.Fatalf("Expected 2 rows over 3 records, got %d rows, %d records", len(tr0.Rows), len(tr0.Records))
	}
	if tr0.Rows[0].DropRatio != 0 || tr0.Rows[1].DropRatio != 1 {
		t.Errorf("Unexpected drop ratios %f, %f", tr0.Rows[0].DropRatio, tr0.Rows[1].DropRatio)
	}
	if tr0.Rows[0].QueueCapacity != 6 || tr0.Rows[0].HopCount != 1 {
		t.Errorf("Hop samples not applied: %+v", tr0.Rows[0])
	}
	if w.reports[1].Kind != report.KindSpeedtest || w.reports[1].Name != "speedtest_1" {
		t.Errorf("Unexpected speedtest report %+v", w.reports[1])
	}

	status := col.Status()
	if len(status) != 2 || status[0].Sent != 3 || status[0].Received != 2 {
		t.Errorf("Unexpected status %+v", status)
	}
}

func TestCollector_UnknownPacket(t *testing.T) {
	col, err := New(newTestConfig(false), clock.NewManual(0))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	col.Start()
	defer col.Stop()

	err = col.Dispatch(model.Event{Kind: model.EventReceive, PacketID: 404, Node: 3})
	if !errors.Is(err, registry.ErrUnknownPacket) {
		t.Errorf("Expected ErrUnknownPacket, got %v", err)
	}
}

func TestCollector_StrictReceptionAbortsRun(t *testing.T) {
	col, err := New(newTestConfig(true), clock.NewManual(0))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	id := col.Tracers()[0].NextProbe()
	col.Start()
	defer col.Stop()

	// Unknown hops are tolerated even in strict mode.
	if err := col.Dispatch(model.Event{Kind: model.EventHop, PacketID: 404, Node: 2}); !errors.Is(err, registry.ErrUnknownPacket) {
		t.Errorf("Expected ErrUnknownPacket for an unknown hop, got %v", err)
	}
	select {
	case err := <-col.Fatal():
		t.Fatalf("Unknown hop must not abort the run, got %v", err)
	default:
	}

	err = col.Dispatch(model.Event{Kind: model.EventReceive, PacketID: 404, Node: 3})
	if !errors.Is(err, ErrStrictViolation) {
		t.Fatalf("Expected ErrStrictViolation, got %v", err)
	}
	select {
	case fatal := <-col.Fatal():
		if !errors.Is(fatal, ErrStrictViolation) {
			t.Errorf("Expected the fatal error to wrap ErrStrictViolation, got %v", fatal)
		}
	default:
		t.Fatalf("Expected the violation on the fatal channel")
	}

	// Nothing is accepted once the run is aborted.
	if err := col.Dispatch(model.Event{Kind: model.EventReceive, PacketID: id, Node: 3}); !errors.Is(err, ErrStrictViolation) {
		t.Errorf("Expected later events to be rejected, got %v", err)
	}
	if _, received := col.Tracers()[0].Stats(); received != 0 {
		t.Errorf("Expected no reception after the abort, got %d", received)
	}
}

func TestCollector_TimestampsAtDispatch(t *testing.T) {
	c := clock.NewManual(0)
	col, err := New(newTestConfig(false), c)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	tr := col.Tracers()[0]
	col.Start()
	id := tr.NextProbe()

	c.Advance(40)
	if err := col.Dispatch(model.Event{Kind: model.EventHop, PacketID: id, Node: 2, LinkUtilization: 0.1, QueueDepth: 1}); err != nil {
		t.Fatalf("Dispatch hop failed: %v", err)
	}
	c.Advance(60)
	if err := col.Dispatch(model.Event{Kind: model.EventReceive, PacketID: id, Node: 3}); err != nil {
		t.Fatalf("Dispatch receive failed: %v", err)
	}
	// The mailbox may drain long after the events were reported.
	c.Advance(4900)
	col.Stop()

	records := tr.Records()
	if len(records) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(records))
	}
	rec := records[0]
	if !rec.Received || rec.ReceiveTime != 100 || rec.Delay() != 100 {
		t.Errorf("Expected reception at 100 with delay 100, got received=%v at %d", rec.Received, rec.ReceiveTime)
	}
	if len(rec.HopTimes) != 1 || rec.HopTimes[0] != 40 {
		t.Errorf("Expected the hop stamped at 40, got %v", rec.HopTimes)
	}
}

func TestCollector_RepeatedReceptionIsDropped(t *testing.T) {
	c := clock.NewManual(0)
	col, err := New(newTestConfig(false), c)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	tr := col.Tracers()[0]
	col.Start()
	id := tr.NextProbe()

	c.Advance(7)
	for i := 0; i < 2; i++ {
		if err := col.Dispatch(model.Event{Kind: model.EventReceive, PacketID: id, Node: 3}); err != nil {
			t.Fatalf("Dispatch receive %d failed: %v", i, err)
		}
		c.Advance(5)
	}
	col.Stop()

	if _, received := tr.Stats(); received != 1 {
		t.Errorf("Expected exactly 1 reception, got %d", received)
	}
	if rec := tr.Records()[0]; rec.ReceiveTime != 7 {
		t.Errorf("Expected the first reception to win, got %d", rec.ReceiveTime)
	}
}

func TestCollector_DispatchAfterStop(t *testing.T) {
	col, err := New(newTestConfig(false), clock.NewManual(0))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	id := col.Tracers()[0].NextProbe()
	col.Start()
	col.Stop()
	col.Stop()

	if err := col.Dispatch(model.Event{Kind: model.EventHop, PacketID: id, Node: 2}); !errors.Is(err, ErrStopped) {
		t.Errorf("Expected ErrStopped, got %v", err)
	}
}

func TestCollector_WriterErrorsAreJoined(t *testing.T) {
	col, err := New(newTestConfig(false), clock.NewManual(0))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	failing := &memoryWriter{err: errors.New("disk full")}
	ok := &memoryWriter{}

	err = col.WriteReports([]report.Writer{failing, ok})
	if err == nil {
		t.Fatalf("Expected an error from the failing writer")
	}
	if len(ok.reports) != 2 {
		t.Errorf("Expected the healthy writer to still get both reports, got %d", len(ok.reports))
	}
}

func TestCollector_DirectApplyBeforeStart(t *testing.T) {
	c := clock.NewManual(0)
	col, err := New(newTestConfig(false), c)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	tr := col.Tracers()[0]
	id := tr.NextProbe()
	c.Advance(4)
	if err := col.Dispatch(model.Event{Kind: model.EventReceive, PacketID: id, Node: 3}); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if _, received := tr.Stats(); received != 1 {
		t.Errorf("Expected the reception to be applied synchronously")
	}
}
