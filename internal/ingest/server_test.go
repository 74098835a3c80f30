package ingest

import (
	"HopSpectra/internal/clock"
	"HopSpectra/internal/collector"
	"HopSpectra/internal/config"
	"HopSpectra/internal/model"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type fakeSink struct {
	events []model.Event
}

func (s *fakeSink) Dispatch(e model.Event) error {
	if e.PacketID == 404 {
		return errors.New("unknown packet")
	}
	s.events = append(s.events, e)
	return nil
}

func (s *fakeSink) Status() []collector.FlowStatus {
	return []collector.FlowStatus{{Name: "probe", Kind: "trace", Handle: 1, Report: "trace_1_to_3", Sent: 5, Received: 4}}
}

func TestEventsHandler(t *testing.T) {
	sink := &fakeSink{}
	router := NewRouter(sink)

	body := `[
		{"kind":"hop","packet_id":1,"node":2,"link_utilization":0.4,"queue_depth":3},
		{"kind":"receive","packet_id":1,"node":3},
		{"kind":"teleport","packet_id":2},
		{"kind":"hop","packet_id":404,"node":2}
	]`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/events", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp EventResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Accepted != 2 || resp.Rejected != 2 || len(resp.Errors) != 2 {
		t.Errorf("Unexpected response %+v", resp)
	}
	want := model.Event{Kind: model.EventHop, PacketID: 1, Node: 2, LinkUtilization: 0.4, QueueDepth: 3}
	if len(sink.events) != 2 || sink.events[0] != want || sink.events[1].Kind != model.EventReceive {
		t.Errorf("Unexpected dispatched events %+v", sink.events)
	}
}

func TestEventsHandler_BadRequests(t *testing.T) {
	router := NewRouter(&fakeSink{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/events", strings.NewReader("{not json")))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for malformed JSON, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/events", strings.NewReader(`[{"kind":"hop"}]`)))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("Expected 422 when every event is rejected, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/events", nil))
	if rec.Code == http.StatusOK {
		t.Errorf("Expected GET on events to be refused")
	}
}

func TestFlowsHandler(t *testing.T) {
	router := NewRouter(&fakeSink{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/flows", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Unexpected content type %s", ct)
	}
	var flows []collector.FlowStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &flows); err != nil {
		t.Fatalf("Failed to decode flows: %v", err)
	}
	if len(flows) != 1 || flows[0].Name != "probe" || flows[0].Received != 4 {
		t.Errorf("Unexpected flows %+v", flows)
	}
}

func TestEventsHandler_StrictUnknownReceptionAbortsRun(t *testing.T) {
	cfg := &config.Config{
		Tracer: config.TracerConfig{
			BatchSize:    1,
			Accumulation: "sum",
			Strict:       true,
			MailboxSize:  4,
			Flows:        []config.FlowDef{{Name: "probe", Kind: "trace", From: 1, To: 3}},
		},
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	col, err := collector.New(cfg, clock.NewManual(0))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	col.Start()
	defer col.Stop()
	router := NewRouter(col)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/events", strings.NewReader(`[{"kind":"receive","packet_id":999,"node":3}]`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("Expected 422, got %d: %s", rec.Code, rec.Body.String())
	}
	select {
	case err := <-col.Fatal():
		if !errors.Is(err, collector.ErrStrictViolation) {
			t.Errorf("Expected ErrStrictViolation, got %v", err)
		}
	default:
		t.Fatalf("Expected the collector to report the violation as fatal")
	}

	id := col.Tracers()[0].NextProbe()
	req = httptest.NewRequest(http.MethodPost, "/api/v1/events", strings.NewReader(fmt.Sprintf(`[{"kind":"receive","packet_id":%d,"node":3}]`, id)))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("Expected events after the abort to be rejected, got %d", rec.Code)
	}
}
