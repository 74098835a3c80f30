package emulation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"
)

// Emulator replays a forward and a return trace on two interfaces.
type Emulator struct {
	host  *Host
	debug bool

	// Wait blocks until at has elapsed since the replay started. Run
	// installs a wall clock based implementation when it is nil.
	Wait func(ctx context.Context, at time.Duration) error
}

// New creates an emulator that configures the host through h.
func New(h *Host, debug bool) *Emulator {
	return &Emulator{host: h, debug: debug}
}

// Init resets both interfaces and installs the t=0 state of both traces.
func (em *Emulator) Init(ctx context.Context, fwd, rtn *Trace, mtu int) error {
	fwd0, err := fwd.Initial()
	if err != nil {
		return err
	}
	rtn0, err := rtn.Initial()
	if err != nil {
		return err
	}

	for _, iface := range []string{fwd.Interface, rtn.Interface} {
		if err := em.host.DeleteQdisc(ctx, iface); err != nil && em.debug {
			log.Printf("Warning: %v", err)
		}
	}
	for _, side := range []struct {
		iface string
		e     Entry
	}{{fwd.Interface, fwd0}, {rtn.Interface, rtn0}} {
		em.logf("Init link %s with -> %s", side.iface, side.e)
		warnReordering(side.iface, side.e)
		if err := em.host.AddQdisc(ctx, side.iface, side.e); err != nil {
			return fmt.Errorf("initial qdisc installation failed: %w", err)
		}
	}
	for _, iface := range []string{fwd.Interface, rtn.Interface} {
		if err := em.host.SetMTU(ctx, iface, mtu, false); err != nil {
			log.Printf("Warning: %v", err)
		}
	}
	if err := em.host.InstallTTL(ctx, fwd.Interface, fwd0.Hops); err != nil {
		return fmt.Errorf("forward link: %w", err)
	}
	if err := em.host.InstallTTL(ctx, rtn.Interface, rtn0.Hops); err != nil {
		return fmt.Errorf("return link: %w", err)
	}
	return em.host.InstallReject(ctx)
}

// Run replays every update after t=0. Failed updates are logged and the
// replay continues; the interfaces must have been set up by Init.
func (em *Emulator) Run(ctx context.Context, fwd, rtn *Trace) error {
	for _, iface := range []string{fwd.Interface, rtn.Interface} {
		if err := em.host.CheckQdisc(ctx, iface); err != nil {
			return fmt.Errorf("interface '%s' was not initialized: %w", iface, err)
		}
	}
	steps, err := Plan(fwd, rtn)
	if err != nil {
		return err
	}

	fwdLink, err := em.newLink(ctx, fwd)
	if err != nil {
		return err
	}
	rtnLink, err := em.newLink(ctx, rtn)
	if err != nil {
		return err
	}
	em.logf("TTL rules: %s=%d, %s=%d", fwdLink.iface, fwdLink.ttlIndex, rtnLink.iface, rtnLink.ttlIndex)

	wait := em.Wait
	if wait == nil {
		wait = wallClock(time.Now())
	}

	log.Printf("Starting link emulation with %d updates ...", len(steps))
	for _, s := range steps {
		if err := wait(ctx, s.At); err != nil {
			return err
		}
		em.logf("Running t=%s at %s", s.At, time.Now().Format(time.RFC3339Nano))
		fwdLink.apply(ctx, em, s.At, s.Forward)
		rtnLink.apply(ctx, em, s.At, s.Return)
	}
	log.Println("Link emulation completed.")
	return nil
}

// Clean removes the qdiscs, resets the MTU and flushes the rules installed
// by Init. Every step is attempted; the errors are joined.
func (em *Emulator) Clean(ctx context.Context, fwdIface, rtnIface string) error {
	var errs []error
	for _, iface := range []string{fwdIface, rtnIface} {
		if err := em.host.DeleteQdisc(ctx, iface); err != nil {
			errs = append(errs, err)
		}
	}
	for _, iface := range []string{fwdIface, rtnIface} {
		if err := em.host.SetMTU(ctx, iface, DefaultMTU, true); err != nil {
			errs = append(errs, err)
		}
	}
	if err := em.host.FlushTTL(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// link tracks the applied state of one replayed interface.
type link struct {
	iface    string
	hops     int
	ttlIndex int
}

func (em *Emulator) newLink(ctx context.Context, t *Trace) (*link, error) {
	initial, err := t.Initial()
	if err != nil {
		return nil, err
	}
	index, err := em.host.IndexTTL(ctx, t.Interface)
	if err != nil {
		return nil, fmt.Errorf("cannot obtain the TTL rule index: %w", err)
	}
	return &link{iface: t.Interface, hops: initial.Hops, ttlIndex: index}, nil
}

func (l *link) apply(ctx context.Context, em *Emulator, at time.Duration, e *Entry) {
	if e == nil {
		return
	}
	em.logf("Update link %s with -> %s", l.iface, e)
	warnReordering(l.iface, *e)
	if err := em.host.ChangeQdisc(ctx, l.iface, *e); err != nil {
		log.Printf("Warning: unable to apply the update at t=%s: %v", at, err)
	}
	if e.Hops == l.hops {
		return
	}
	if err := em.host.UpdateTTL(ctx, l.iface, e.Hops, l.ttlIndex); err != nil {
		log.Printf("Warning: unable to change the hop count at t=%s: %v", at, err)
		return
	}
	l.hops = e.Hops
}

func (em *Emulator) logf(format string, args ...any) {
	if em.debug {
		log.Printf(format, args...)
	}
}

func warnReordering(iface string, e Entry) {
	if e.Reorders() {
		log.Printf("Warning: link %s at t=%s: jitter %s is too high to prevent reordering", iface, e.At, e.Jitter)
	}
}

// wallClock waits for offsets relative to start, so time spent applying an
// update is not added to the next gap.
func wallClock(start time.Time) func(context.Context, time.Duration) error {
	return func(ctx context.Context, at time.Duration) error {
		d := time.Until(start.Add(at))
		if d <= 0 {
			return nil
		}
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-timer.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
