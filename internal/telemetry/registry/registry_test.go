package registry

import (
	"HopSpectra/internal/model"
	"sync"
	"testing"
)

type stubOwner struct {
	name string
}

func (s *stubOwner) OnHop(model.PacketID, float64, uint64, model.NodeID) {}
func (s *stubOwner) OnReceive(model.PacketID, model.NodeID) {}

func TestRegistry_SequentialIdentifiers(t *testing.T) {
	r := New()
	a := r.RegisterFlow(&stubOwner{name: "a"})
	b := r.RegisterFlow(&stubOwner{name: "b"})
	if a != 1 || b != 2 {
		t.Fatalf("Expected flow handles 1 and 2, got %d and %d", a, b)
	}

	first := r.RegisterPacket(a)
	second := r.RegisterPacket(b)
	if first != 1 || second != 2 {
		t.Fatalf("Expected packet ids 1 and 2, got %d and %d", first, second)
	}
	if r.PacketCount() != 2 {
		t.Errorf("Expected PacketCount 2, got %d", r.PacketCount())
	}
}

func TestRegistry_ResolveOwner(t *testing.T) {
	r := New()
	ownerA := &stubOwner{name: "a"}
	ownerB := &stubOwner{name: "b"}
	a := r.RegisterFlow(ownerA)
	b := r.RegisterFlow(ownerB)

	issued := make(map[model.PacketID]*stubOwner)
	for i := 0; i < 500; i++ {
		if i%3 == 0 {
			issued[r.RegisterPacket(b)] = ownerB
		} else {
			issued[r.RegisterPacket(a)] = ownerA
		}
	}

	for id, want := range issued {
		got, ok := r.ResolveOwner(id)
		if !ok {
			t.Fatalf("Packet %d did not resolve", id)
		}
		if got != want {
			t.Fatalf("Packet %d resolved to %s, expected %s", id, got.(*stubOwner).name, want.name)
		}
		// Resolution must not change anything.
		again, _ := r.ResolveOwner(id)
		if again != got {
			t.Fatalf("Second resolution of packet %d returned a different owner", id)
		}
	}
}

func TestRegistry_UnknownPacket(t *testing.T) {
	r := New()
	r.RegisterPacket(r.RegisterFlow(&stubOwner{}))

	if _, ok := r.ResolveOwner(0); ok {
		t.Errorf("Packet id 0 must never resolve")
	}
	if _, ok := r.ResolveOwner(99); ok {
		t.Errorf("Packet id 99 was never issued but resolved")
	}
	if _, err := r.Lookup(99); err != ErrUnknownPacket {
		t.Errorf("Expected ErrUnknownPacket, got %v", err)
	}
}

func TestRegistry_ConcurrentRegistration(t *testing.T) {
	r := New()
	const flows = 8
	const perFlow = 1000

	handles := make([]model.FlowHandle, flows)
	owners := make([]*stubOwner, flows)
	for i := range handles {
		owners[i] = &stubOwner{}
		handles[i] = r.RegisterFlow(owners[i])
	}

	ids := make([][]model.PacketID, flows)
	var wg sync.WaitGroup
	wg.Add(flows)
	for i := 0; i < flows; i++ {
		go func(i int) {
			defer wg.Done()
			for j := 0; j < perFlow; j++ {
				ids[i] = append(ids[i], r.RegisterPacket(handles[i]))
			}
		}(i)
	}
	wg.Wait()

	seen := make(map[model.PacketID]bool)
	for i := range ids {
		for _, id := range ids[i] {
			if seen[id] {
				t.Fatalf("Packet id %d issued twice", id)
			}
			seen[id] = true
			owner, ok := r.ResolveOwner(id)
			if !ok || owner != owners[i] {
				t.Fatalf("Packet %d resolved to the wrong owner", id)
			}
		}
	}
	if len(seen) != flows*perFlow {
		t.Errorf("Expected %d unique ids, got %d", flows*perFlow, len(seen))
	}
}
