package collector

import (
	"HopSpectra/internal/clock"
	"HopSpectra/internal/config"
	"HopSpectra/internal/engine/aggregator"
	"HopSpectra/internal/flow/speedtest"
	"HopSpectra/internal/flow/tracer"
	"HopSpectra/internal/model"
	"HopSpectra/internal/report"
	_ "HopSpectra/internal/report/clickhouse" // Registers the clickhouse writer
	_ "HopSpectra/internal/report/csv"        // Registers the csv writer
	_ "HopSpectra/internal/report/dump"       // Registers the dump writer
	"HopSpectra/internal/telemetry/registry"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrStopped is returned by Dispatch after Stop.
	ErrStopped = errors.New("collector: stopped")
	// ErrStrictViolation marks the error that aborted a strict run.
	ErrStrictViolation = errors.New("collector: strict mode violation")
)

// Flow is the part of a flow owner the collector needs besides the
// registry capability.
type Flow interface {
	model.FlowOwner
	model.StampedOwner
	Name() string
	Handle() model.FlowHandle
	ReportName() string
}

// FlowStatus is the operational state of one flow.
type FlowStatus struct {
	Name     string           `json:"name"`
	Kind     report.Kind      `json:"kind"`
	Handle   model.FlowHandle `json:"handle"`
	Report   string           `json:"report"`
	Sent     int              `json:"sent"`
	Received int              `json:"received"`
}

// mailbox serializes all events of one flow on a dedicated goroutine.
type mailbox struct {
	flow   Flow
	kind   report.Kind
	events chan model.Event
}

// Collector owns the registry and the flows of a live run. Events reported
// by relays and receivers arrive through Dispatch from any goroutine and
// are applied to their flow in arrival order.
type Collector struct {
	runID     string
	clock     clock.Clock
	registry  *registry.Registry
	batchSize int
	policy    aggregator.Policy
	strict    bool
	debug     bool
	queueSize int

	mu        sync.RWMutex
	mailboxes map[model.FlowHandle]*mailbox
	order     []*mailbox
	started   bool
	stopped   bool
	wg        sync.WaitGroup

	fatal     chan error
	abortOnce sync.Once
	aborted   atomic.Bool
	abortErr  error

	createdAt time.Time
}

// New creates a collector with the flows defined in cfg.
func New(cfg *config.Config, c clock.Clock) (*Collector, error) {
	policy, err := aggregator.ParsePolicy(cfg.Tracer.Accumulation)
	if err != nil {
		return nil, fmt.Errorf("invalid tracer config: %w", err)
	}

	col := &Collector{
		runID:     uuid.NewString(),
		clock:     c,
		registry:  registry.New(),
		batchSize: cfg.Tracer.BatchSize,
		policy:    policy,
		strict:    cfg.Tracer.Strict,
		debug:     cfg.Tracer.Debug,
		queueSize: cfg.Tracer.MailboxSize,
		mailboxes: make(map[model.FlowHandle]*mailbox),
		fatal:     make(chan error, 1),
		createdAt: time.Now(),
	}
	if col.queueSize <= 0 {
		col.queueSize = 1024
	}

	for _, def := range cfg.Tracer.Flows {
		switch def.Kind {
		case "speedtest":
			col.AddSpeedtest(def.Name, model.NodeID(def.From), model.NodeID(def.To), def.TrackAtDevice)
		default:
			col.AddTracer(def.Name, model.NodeID(def.From), model.NodeID(def.To))
		}
	}
	log.Printf("Collector %s created with %d flows (policy %s, batch size %d).", col.runID, len(col.order), policy, col.batchSize)
	return col, nil
}

// RunID identifies this run in every report.
func (c *Collector) RunID() string { return c.runID }

// Registry returns the registry shared by all flows of the run.
func (c *Collector) Registry() *registry.Registry { return c.registry }

// AddTracer adds a probe flow. Flows must be added before Start.
func (c *Collector) AddTracer(name string, from, to model.NodeID) *tracer.Tracer {
	t := tracer.New(name, from, to, c.registry, c.clock)
	c.add(t, report.KindTrace)
	return t
}

// AddSpeedtest adds a speedtest flow. Flows must be added before Start.
func (c *Collector) AddSpeedtest(name string, node, receiver model.NodeID, trackAtDevice bool) *speedtest.Sender {
	s := speedtest.New(name, node, receiver, trackAtDevice, c.registry, c.clock)
	c.add(s, report.KindSpeedtest)
	return s
}

func (c *Collector) add(f Flow, kind report.Kind) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		log.Panicf("collector: flow %s added after start", f.Name())
	}
	mb := &mailbox{flow: f, kind: kind, events: make(chan model.Event, c.queueSize)}
	c.mailboxes[f.Handle()] = mb
	c.order = append(c.order, mb)
}

// Tracers returns all probe flows in the order they were added.
func (c *Collector) Tracers() []*tracer.Tracer {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []*tracer.Tracer
	for _, mb := range c.order {
		if t, ok := mb.flow.(*tracer.Tracer); ok {
			out = append(out, t)
		}
	}
	return out
}

// Start launches one goroutine per flow.
func (c *Collector) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return
	}
	c.started = true

	c.wg.Add(len(c.order))
	for _, mb := range c.order {
		go c.run(mb)
	}
	log.Printf("Collector started with %d flow mailboxes.", len(c.order))
}

func (c *Collector) run(mb *mailbox) {
	defer c.wg.Done()
	for e := range mb.events {
		e.Apply(mb.flow)
		if c.debug && e.Kind == model.EventReceive {
			if t, ok := mb.flow.(*tracer.Tracer); ok {
				t.Debug(e.PacketID)
			}
		}
	}
}

// Dispatch stamps e with the collector clock and routes it to the mailbox
// of the flow that owns its packet id. Unknown ids are dropped with a
// warning, except for receptions in strict mode: those abort the run (see
// Fatal) and every later Dispatch fails with the same error.
func (c *Collector) Dispatch(e model.Event) error {
	e.At = c.clock.Now()
	if c.aborted.Load() {
		return c.abortErr
	}

	handle, err := c.registry.Lookup(e.PacketID)
	if err != nil {
		if c.strict && e.Kind == model.EventReceive {
			return c.abort(fmt.Errorf("%w: reception of unknown packet %d at node %d: %w", ErrStrictViolation, e.PacketID, e.Node, err))
		}
		log.Printf("Warning: dropping %s event for unknown packet %d from node %d", e.Kind, e.PacketID, e.Node)
		return fmt.Errorf("dispatch %s event: %w", e.Kind, err)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.stopped {
		return ErrStopped
	}
	mb, ok := c.mailboxes[handle]
	if !ok {
		return fmt.Errorf("dispatch %s event: no mailbox for flow %d", e.Kind, handle)
	}
	if !c.started {
		e.Apply(mb.flow)
		return nil
	}
	mb.events <- e
	return nil
}

// abort records the first strict violation and publishes it on the fatal
// channel.
func (c *Collector) abort(err error) error {
	c.abortOnce.Do(func() {
		c.abortErr = err
		c.aborted.Store(true)
		log.Printf("Error: %v", err)
		c.fatal <- err
	})
	return c.abortErr
}

// Fatal delivers the error that aborted a strict run. The owner of the
// collector must terminate the run when it fires.
func (c *Collector) Fatal() <-chan error {
	return c.fatal
}

// Stop closes every mailbox and waits until all queued events are applied.
// Packets still in flight stay incomplete and are reported as drops.
func (c *Collector) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	if c.started {
		for _, mb := range c.order {
			close(mb.events)
		}
	}
	c.mu.Unlock()

	log.Println("Waiting for flow mailboxes to drain...")
	c.wg.Wait()
	log.Println("Collector stopped.")
}

// Status returns the state of every flow, ordered by handle.
func (c *Collector) Status() []FlowStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]FlowStatus, 0, len(c.order))
	for _, mb := range c.order {
		st := FlowStatus{
			Name:   mb.flow.Name(),
			Kind:   mb.kind,
			Handle: mb.flow.Handle(),
			Report: mb.flow.ReportName(),
		}
		switch f := mb.flow.(type) {
		case *tracer.Tracer:
			st.Sent, st.Received = f.Stats()
		case *speedtest.Sender:
			st.Sent = f.Len()
			for _, e := range f.Rows() {
				if e.ReceiveTime != 0 {
					st.Received++
				}
			}
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Handle < out[j].Handle })
	return out
}

// Reports builds the final report of every flow. It must only be called
// once mutation has ceased, i.e. after Stop.
func (c *Collector) Reports() []*report.Report {
	c.mu.RLock()
	defer c.mu.RUnlock()

	reports := make([]*report.Report, 0, len(c.order))
	for _, mb := range c.order {
		r := &report.Report{
			RunID:     c.runID,
			Name:      mb.flow.ReportName(),
			Flow:      mb.flow.Name(),
			Kind:      mb.kind,
			CreatedAt: c.createdAt,
		}
		switch f := mb.flow.(type) {
		case *tracer.Tracer:
			r.BatchSize = c.batchSize
			r.Policy = c.policy.String()
			r.Rows = f.Summarize(c.batchSize, c.policy)
			r.Records = f.Records()
		case *speedtest.Sender:
			r.Packets = f.Rows()
		}
		reports = append(reports, r)
	}
	return reports
}

// WriteReports stops the collector if needed and hands every report to
// every writer. All writers are attempted; their errors are joined.
func (c *Collector) WriteReports(writers []report.Writer) error {
	c.Stop()

	var errs []error
	for _, r := range c.Reports() {
		for _, w := range writers {
			if err := w.Write(r); err != nil {
				log.Printf("Error writing report %s: %v", r.Name, err)
				errs = append(errs, fmt.Errorf("report %s: %w", r.Name, err))
			}
		}
	}
	return errors.Join(errs...)
}
