package registry

import (
	"HopSpectra/internal/model"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrUnknownPacket is returned by Lookup when a packet id was never issued
// by this registry.
var ErrUnknownPacket = errors.New("registry: unknown packet id")

const defaultShardCount = 64

// shard holds a slice of the packet id space. Packet ids are sequential so
// a modulo spreads consecutive packets over all shards.
type shard struct {
	packets map[model.PacketID]model.FlowHandle
	mu      sync.RWMutex
}

// Registry maps flow handles to their owners and packet ids to the flow
// that produced them. One Registry lives for one run; entries are never
// removed, so memory is bounded by the number of flows and packets the run
// creates.
//
// All methods are safe for concurrent use.
type Registry struct {
	flowCounter   atomic.Uint32
	packetCounter atomic.Uint64

	flowsMu sync.RWMutex
	flows   map[model.FlowHandle]model.FlowOwner

	shards     []*shard
	shardCount uint64
}

// New creates an empty registry.
func New() *Registry {
	r := &Registry{
		flows:      make(map[model.FlowHandle]model.FlowOwner),
		shards:     make([]*shard, defaultShardCount),
		shardCount: defaultShardCount,
	}
	for i := range r.shards {
		r.shards[i] = &shard{packets: make(map[model.PacketID]model.FlowHandle)}
	}
	return r
}

// RegisterFlow stores owner under the next flow handle and returns it.
func (r *Registry) RegisterFlow(owner model.FlowOwner) model.FlowHandle {
	handle := model.FlowHandle(r.flowCounter.Add(1))

	r.flowsMu.Lock()
	r.flows[handle] = owner
	r.flowsMu.Unlock()
	return handle
}

// RegisterPacket allocates the next packet id and associates it with flow.
func (r *Registry) RegisterPacket(flow model.FlowHandle) model.PacketID {
	id := model.PacketID(r.packetCounter.Add(1))

	s := r.getShard(id)
	s.mu.Lock()
	s.packets[id] = flow
	s.mu.Unlock()
	return id
}

// Lookup returns the flow handle that registered id.
func (r *Registry) Lookup(id model.PacketID) (model.FlowHandle, error) {
	s := r.getShard(id)
	s.mu.RLock()
	defer s.mu.RUnlock()
	if flow, ok := s.packets[id]; ok {
		return flow, nil
	}
	return model.NoFlow, ErrUnknownPacket
}

// ResolveOwner returns the owner of the flow that produced id. The boolean
// is false for ids this registry never issued, e.g. stray or foreign
// packets; the caller decides whether that matters.
func (r *Registry) ResolveOwner(id model.PacketID) (model.FlowOwner, bool) {
	flow, err := r.Lookup(id)
	if err != nil {
		return nil, false
	}
	return r.Owner(flow)
}

// Owner returns the owner registered under handle.
func (r *Registry) Owner(handle model.FlowHandle) (model.FlowOwner, bool) {
	r.flowsMu.RLock()
	defer r.flowsMu.RUnlock()
	owner, ok := r.flows[handle]
	return owner, ok
}

// FlowCount returns the number of registered flows.
func (r *Registry) FlowCount() int {
	r.flowsMu.RLock()
	defer r.flowsMu.RUnlock()
	return len(r.flows)
}

// PacketCount returns the number of packet ids issued so far.
func (r *Registry) PacketCount() uint64 {
	return r.packetCounter.Load()
}

func (r *Registry) getShard(id model.PacketID) *shard {
	return r.shards[uint64(id)%r.shardCount]
}
