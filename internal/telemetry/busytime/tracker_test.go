package busytime

import (
	"HopSpectra/internal/clock"
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestTracker_IdleIsZero(t *testing.T) {
	tr := New("idle", clock.NewManual(100))
	if u := tr.Utilization(50); u != 0 {
		t.Errorf("Expected 0 utilization for an idle tracker, got %f", u)
	}
	tr.Stop() // stop while idle is a no-op
	if tr.Pending() != 0 {
		t.Errorf("Stop while idle recorded a period")
	}
}

func TestTracker_SinglePeriod(t *testing.T) {
	for _, window := range []uint64{10, 30, 100} {
		c := clock.NewManual(0)
		tr := New("link", c)
		tr.Start()
		c.Advance(30)
		tr.Stop()

		want := math.Min(30, float64(window)) / float64(window)
		if got := tr.Utilization(window); !almostEqual(got, want) {
			t.Errorf("window %d: expected %f, got %f", window, want, got)
		}
	}
}

func TestTracker_DuplicateStartKeepsOriginalTimer(t *testing.T) {
	c := clock.NewManual(0)
	tr := New("link", c)
	tr.Start()
	c.Advance(10)
	tr.Start()
	c.Advance(10)
	tr.Stop()

	if got := tr.Utilization(100); !almostEqual(got, 0.2) {
		t.Errorf("Expected 0.2 (20 of 100), got %f", got)
	}
}

func TestTracker_OngoingPeriodIsProvisional(t *testing.T) {
	c := clock.NewManual(0)
	tr := New("link", c)
	tr.Start()
	c.Advance(25)

	if got := tr.Utilization(100); !almostEqual(got, 0.25) {
		t.Fatalf("Expected 0.25 while busy, got %f", got)
	}
	if tr.Pending() != 0 {
		t.Errorf("Querying while busy must not store a period")
	}
	c.Advance(25)
	if got := tr.Utilization(100); !almostEqual(got, 0.5) {
		t.Errorf("Expected 0.5 after 50 busy units, got %f", got)
	}
}

func TestTracker_ClampsLongBusyPeriod(t *testing.T) {
	c := clock.NewManual(0)
	tr := New("link", c)
	tr.Start()
	c.Advance(500)

	if got := tr.Utilization(100); got != 1 {
		t.Errorf("Expected utilization clamped to 1, got %f", got)
	}
}

func TestTracker_Eviction(t *testing.T) {
	c := clock.NewManual(0)
	tr := New("link", c)

	tr.Start()
	c.Advance(10)
	tr.Stop() // period ends at 10
	c.Advance(40)
	tr.Start()
	c.Advance(20)
	tr.Stop() // period ends at 70

	// At 70 both periods are inside a window of 100.
	if got := tr.Utilization(100); !almostEqual(got, 0.3) {
		t.Fatalf("Expected 0.3, got %f", got)
	}

	// At 110 the first period ended exactly 100 units ago and is evicted.
	c.AdvanceTo(110)
	if got := tr.Utilization(100); !almostEqual(got, 0.2) {
		t.Fatalf("Expected 0.2 after eviction, got %f", got)
	}
	if tr.Pending() != 1 {
		t.Errorf("Expected 1 remaining period, got %d", tr.Pending())
	}

	// Later queries never bring an evicted period back.
	prev := tr.Utilization(100)
	for step := 0; step < 10; step++ {
		c.Advance(15)
		got := tr.Utilization(100)
		if got > prev {
			t.Fatalf("Utilization increased without new busy time: %f > %f", got, prev)
		}
		prev = got
	}
	if prev != 0 {
		t.Errorf("Expected all periods evicted eventually, got %f", prev)
	}
}

func TestTracker_AlwaysInRange(t *testing.T) {
	c := clock.NewManual(0)
	tr := New("link", c)
	for i := 0; i < 200; i++ {
		if i%2 == 0 {
			tr.Start()
		} else {
			tr.Stop()
		}
		c.Advance(uint64(i%7 + 1))
		for _, w := range []uint64{1, 5, 50, 1000} {
			u := tr.Utilization(w)
			if u < 0 || u > 1 {
				t.Fatalf("Utilization %f out of range for window %d", u, w)
			}
		}
	}
}

func TestTracker_BackwardClockIsFatal(t *testing.T) {
	c := clock.NewManual(100)
	tr := New("link", c)
	tr.Start()
	c.Set(50)

	defer func() {
		if recover() == nil {
			t.Errorf("Expected Stop with a backward clock to panic")
		}
	}()
	tr.Stop()
}
