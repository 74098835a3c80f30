package ingest

import (
	"HopSpectra/internal/collector"
	"HopSpectra/internal/model"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

const maxBodyBytes = 8 << 20

// Sink receives events and reports flow status. *collector.Collector
// implements it.
type Sink interface {
	Dispatch(e model.Event) error
	Status() []collector.FlowStatus
}

// EventRequest is the JSON form of a telemetry event.
type EventRequest struct {
	Kind            string  `json:"kind"`
	PacketID        uint64  `json:"packet_id"`
	Node            uint32  `json:"node"`
	LinkUtilization float64 `json:"link_utilization"`
	QueueDepth      uint64  `json:"queue_depth"`
}

// EventResponse reports how many events of a request were applied.
type EventResponse struct {
	Accepted int      `json:"accepted"`
	Rejected int      `json:"rejected"`
	Errors   []string `json:"errors,omitempty"`
}

// APIHandler holds the dependencies for API handlers.
type APIHandler struct {
	sink Sink
}

// NewRouter builds the ingest routes.
func NewRouter(sink Sink) *mux.Router {
	h := &APIHandler{sink: sink}

	r := mux.NewRouter()
	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/events", h.eventsHandler).Methods(http.MethodPost)
	api.HandleFunc("/flows", h.flowsHandler).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)
	return r
}

// eventsHandler accepts a JSON array of events from receivers that report
// over HTTP instead of NATS.
func (h *APIHandler) eventsHandler(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to read request body: %v", err), http.StatusBadRequest)
		return
	}
	var reqs []EventRequest
	if err := json.Unmarshal(body, &reqs); err != nil {
		http.Error(w, fmt.Sprintf("failed to decode request: %v", err), http.StatusBadRequest)
		return
	}

	var resp EventResponse
	for i, req := range reqs {
		kind, err := model.ParseEventKind(req.Kind)
		if err == nil && req.PacketID == 0 {
			err = fmt.Errorf("missing packet_id")
		}
		if err == nil {
			err = h.sink.Dispatch(model.Event{
				Kind:            kind,
				PacketID:        model.PacketID(req.PacketID),
				Node:            model.NodeID(req.Node),
				LinkUtilization: req.LinkUtilization,
				QueueDepth:      req.QueueDepth,
			})
		}
		if err != nil {
			resp.Rejected++
			resp.Errors = append(resp.Errors, fmt.Sprintf("event %d: %v", i, err))
			continue
		}
		resp.Accepted++
	}

	status := http.StatusOK
	if resp.Accepted == 0 && resp.Rejected > 0 {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, resp)
}

// flowsHandler lists the registered flows and their packet counters.
func (h *APIHandler) flowsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.sink.Status())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to marshal response: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(jsonBytes)
}

// Server runs the ingest router on an HTTP listener.
type Server struct {
	server *http.Server
}

// NewServer creates a server for sink on addr.
func NewServer(addr string, sink Sink) *Server {
	return &Server{server: &http.Server{
		Addr:              addr,
		Handler:           NewRouter(sink),
		ReadHeaderTimeout: 5 * time.Second,
	}}
}

// Start serves in the background.
func (s *Server) Start() {
	go func() {
		log.Printf("Ingest server starting on %s", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("Error: ingest server on %s failed: %v", s.server.Addr, err)
		}
	}()
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("ingest server shutdown: %w", err)
	}
	log.Println("Ingest server exited.")
	return nil
}
