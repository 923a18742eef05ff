package rpc

import (
	"context"
	"fmt"
	"sync"
)

// FakeAgent is an in-memory AgentClient used by internal/node and
// internal/volume tests in place of a real storage agent over gRPC. It
// reproduces the idempotence semantics spec.md §7 requires of a real
// agent: a second CreatePool/CreateReplica/CreateNexus with the same
// identity returns ALREADY_EXISTS, and destroying a missing object
// returns NOT_FOUND.
type FakeAgent struct {
	mu        sync.Mutex
	Unavail   bool // when true, every call fails with UNAVAILABLE
	pools     map[string]PoolWire
	replicas  map[string]ReplicaWire
	nexus     map[string]NexusWire
}

// NewFakeAgent creates an empty FakeAgent.
func NewFakeAgent() *FakeAgent {
	return &FakeAgent{
		pools:    make(map[string]PoolWire),
		replicas: make(map[string]ReplicaWire),
		nexus:    make(map[string]NexusWire),
	}
}

func (f *FakeAgent) unavailable() error {
	if f.Unavail {
		return NewError(Unavailable, "fake agent unreachable")
	}
	return nil
}

func (f *FakeAgent) CreatePool(_ context.Context, name string, disks []string) (PoolWire, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.unavailable(); err != nil {
		return PoolWire{}, err
	}
	if p, ok := f.pools[name]; ok {
		return p, NewError(AlreadyExists, "pool %s exists", name)
	}
	p := PoolWire{Name: name, Disks: disks, State: "ONLINE", CapacityBytes: 100 << 30}
	f.pools[name] = p
	return p, nil
}

func (f *FakeAgent) DestroyPool(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.unavailable(); err != nil {
		return err
	}
	if _, ok := f.pools[name]; !ok {
		return NewError(NotFound, "pool %s not found", name)
	}
	delete(f.pools, name)
	return nil
}

func (f *FakeAgent) ListPools(_ context.Context) ([]PoolWire, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.unavailable(); err != nil {
		return nil, err
	}
	out := make([]PoolWire, 0, len(f.pools))
	for _, p := range f.pools {
		out = append(out, p)
	}
	return out, nil
}

func (f *FakeAgent) CreateReplica(_ context.Context, uuid, pool string, size uint64) (ReplicaWire, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.unavailable(); err != nil {
		return ReplicaWire{}, err
	}
	if r, ok := f.replicas[uuid]; ok {
		return r, NewError(AlreadyExists, "replica %s exists", uuid)
	}
	p, ok := f.pools[pool]
	if !ok {
		return ReplicaWire{}, NewError(NotFound, "pool %s not found", pool)
	}
	if p.CapacityBytes-p.UsedBytes < size {
		return ReplicaWire{}, NewError(ResourceExhausted, "pool %s out of space", pool)
	}
	p.UsedBytes += size
	f.pools[pool] = p
	r := ReplicaWire{UUID: uuid, Pool: pool, Size: size, Share: "REPLICA_NONE", State: "ONLINE"}
	f.replicas[uuid] = r
	return r, nil
}

func (f *FakeAgent) DestroyReplica(_ context.Context, uuid string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.unavailable(); err != nil {
		return err
	}
	r, ok := f.replicas[uuid]
	if !ok {
		return NewError(NotFound, "replica %s not found", uuid)
	}
	if p, ok := f.pools[r.Pool]; ok {
		p.UsedBytes -= r.Size
		f.pools[r.Pool] = p
	}
	delete(f.replicas, uuid)
	return nil
}

func (f *FakeAgent) ListReplicas(_ context.Context) ([]ReplicaWire, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.unavailable(); err != nil {
		return nil, err
	}
	out := make([]ReplicaWire, 0, len(f.replicas))
	for _, r := range f.replicas {
		out = append(out, r)
	}
	return out, nil
}

func (f *FakeAgent) StatReplicas(_ context.Context) (map[string]uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.unavailable(); err != nil {
		return nil, err
	}
	out := make(map[string]uint64, len(f.replicas))
	for uuid, r := range f.replicas {
		out[uuid] = r.Size
	}
	return out, nil
}

func (f *FakeAgent) ShareReplica(_ context.Context, uuid, protocol string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.unavailable(); err != nil {
		return "", err
	}
	r, ok := f.replicas[uuid]
	if !ok {
		return "", NewError(NotFound, "replica %s not found", uuid)
	}
	r.Share = protocol
	r.URI = fmt.Sprintf("%s://%s", protocolScheme(protocol), uuid)
	f.replicas[uuid] = r
	return r.URI, nil
}

func protocolScheme(protocol string) string {
	switch protocol {
	case "REPLICA_ISCSI":
		return "iscsi"
	case "REPLICA_NVMF":
		return "nvmf"
	default:
		return "bdev"
	}
}

func (f *FakeAgent) CreateNexus(_ context.Context, uuid string, size uint64, children []string) (NexusWire, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.unavailable(); err != nil {
		return NexusWire{}, err
	}
	if n, ok := f.nexus[uuid]; ok {
		return n, NewError(AlreadyExists, "nexus %s exists", uuid)
	}
	cs := make([]ChildWire, 0, len(children))
	for _, c := range children {
		cs = append(cs, ChildWire{URI: c, State: "online"})
	}
	n := NexusWire{UUID: uuid, Size: size, State: "online", Children: cs}
	f.nexus[uuid] = n
	return n, nil
}

func (f *FakeAgent) DestroyNexus(_ context.Context, uuid string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.unavailable(); err != nil {
		return err
	}
	if _, ok := f.nexus[uuid]; !ok {
		return NewError(NotFound, "nexus %s not found", uuid)
	}
	delete(f.nexus, uuid)
	return nil
}

func (f *FakeAgent) ListNexus(_ context.Context) ([]NexusWire, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.unavailable(); err != nil {
		return nil, err
	}
	out := make([]NexusWire, 0, len(f.nexus))
	for _, n := range f.nexus {
		out = append(out, n)
	}
	return out, nil
}

func (f *FakeAgent) PublishNexus(_ context.Context, uuid, protocol string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.unavailable(); err != nil {
		return "", err
	}
	n, ok := f.nexus[uuid]
	if !ok {
		return "", NewError(NotFound, "nexus %s not found", uuid)
	}
	n.DevicePath = fmt.Sprintf("/dev/moac/%s", uuid)
	f.nexus[uuid] = n
	return n.DevicePath, nil
}

func (f *FakeAgent) UnpublishNexus(_ context.Context, uuid string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.unavailable(); err != nil {
		return err
	}
	n, ok := f.nexus[uuid]
	if !ok {
		return NewError(NotFound, "nexus %s not found", uuid)
	}
	n.DevicePath = ""
	f.nexus[uuid] = n
	return nil
}

func (f *FakeAgent) ChildOperation(_ context.Context, nexusUUID, childURI string, op ChildOp) (NexusWire, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.unavailable(); err != nil {
		return NexusWire{}, err
	}
	n, ok := f.nexus[nexusUUID]
	if !ok {
		return NexusWire{}, NewError(NotFound, "nexus %s not found", nexusUUID)
	}
	switch op {
	case ChildOpAdd:
		n.Children = append(n.Children, ChildWire{URI: childURI, State: "online"})
	case ChildOpRemove:
		filtered := n.Children[:0]
		for _, c := range n.Children {
			if c.URI != childURI {
				filtered = append(filtered, c)
			}
		}
		n.Children = filtered
	case ChildOpOnline, ChildOpOffline:
		state := "online"
		if op == ChildOpOffline {
			state = "faulted"
		}
		for i, c := range n.Children {
			if c.URI == childURI {
				n.Children[i].State = state
			}
		}
	}
	f.nexus[nexusUUID] = n
	return n, nil
}

func (f *FakeAgent) Close() error { return nil }
