// Package registry implements the Registry: the aggregate of all known
// Nodes, lookup by identity, and the choosePools scheduler (spec.md §4.2,
// §4.2.1).
package registry

import (
	"sort"
	"sync"

	"github.com/openebs/moac/internal/events"
	"github.com/openebs/moac/internal/metrics"
	"github.com/openebs/moac/internal/node"
	"github.com/openebs/moac/internal/types"
)

// Registry aggregates Nodes by name and re-emits every event a Node's sync
// loop publishes, tagged with the owning node (spec.md §4.2).
type Registry struct {
	mu     sync.RWMutex
	nodes  map[string]*node.Node
	Broker *events.Broker
}

// New creates an empty Registry with its own event broker.
func New() *Registry {
	r := &Registry{
		nodes:  make(map[string]*node.Node),
		Broker: events.NewBroker(),
	}
	r.Broker.Start()
	return r
}

// AddNode registers a Node and publishes a node:new event; it does not
// start the node's sync loop (the caller runs Node.Start). The node must
// already be constructed against this Registry's Broker (internal/node.New's
// broker argument) so its sync events flow here.
func (r *Registry) AddNode(n *node.Node) {
	r.mu.Lock()
	r.nodes[n.Name()] = n
	r.mu.Unlock()
	r.Broker.Publish(events.Event{Kind: events.KindNode, Type: events.TypeNew, Ref: n.Name()})
}

// RemoveNode stops and forgets a Node.
func (r *Registry) RemoveNode(name string) {
	r.mu.Lock()
	n, ok := r.nodes[name]
	delete(r.nodes, name)
	r.mu.Unlock()
	if !ok {
		return
	}
	n.Stop()
	r.Broker.Publish(events.Event{Kind: events.KindNode, Type: events.TypeDel, Ref: name})
}

// GetNode returns the named node, or nil if unknown.
func (r *Registry) GetNode(name string) *node.Node {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.nodes[name]
}

// Nodes returns a snapshot of all known nodes' bookkeeping info.
func (r *Registry) Nodes() []types.Node {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.Node, 0, len(r.nodes))
	for _, n := range r.nodes {
		out = append(out, n.Info())
	}
	return out
}

// nodeList returns the live *node.Node values, used internally by
// getPool/getNexus/getReplicaSet/getCapacity/choosePools.
func (r *Registry) nodeList() []*node.Node {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*node.Node, 0, len(r.nodes))
	for _, n := range r.nodes {
		out = append(out, n)
	}
	return out
}

// GetPool returns the named pool and the node that owns it.
func (r *Registry) GetPool(name string) (types.Pool, bool) {
	for _, n := range r.nodeList() {
		for _, p := range n.Pools() {
			if p.Name == name {
				return p, true
			}
		}
	}
	return types.Pool{}, false
}

// GetNexus returns the nexus with the given volume uuid.
func (r *Registry) GetNexus(uuid string) (types.Nexus, bool) {
	for _, n := range r.nodeList() {
		for _, x := range n.Nexuses() {
			if x.UUID == uuid {
				return x, true
			}
		}
	}
	return types.Nexus{}, false
}

// GetReplicaSet returns every replica sharing the given volume uuid — at
// most one per pool (spec.md §4.2).
func (r *Registry) GetReplicaSet(uuid string) []types.Replica {
	var out []types.Replica
	for _, n := range r.nodeList() {
		for _, rep := range n.Replicas() {
			if rep.UUID == uuid {
				out = append(out, rep)
			}
		}
	}
	return out
}

// GetCapacity sums capacity-used over accessible pools, optionally scoped
// to one node.
func (r *Registry) GetCapacity(nodeName string) uint64 {
	var total uint64
	for _, n := range r.nodeList() {
		if nodeName != "" && n.Name() != nodeName {
			continue
		}
		for _, p := range n.Pools() {
			if p.Accessible() {
				total += p.Free()
			}
		}
	}
	return total
}

// AllPools returns every known pool across every node.
func (r *Registry) AllPools() []types.Pool {
	var out []types.Pool
	for _, n := range r.nodeList() {
		out = append(out, n.Pools()...)
	}
	return out
}

// RefreshGauges updates the moac_{nodes,pools}_total gauges from current
// state; called periodically by the pool operator sweeper.
func (r *Registry) RefreshGauges() {
	counts := map[types.NodeState]int{}
	for _, n := range r.Nodes() {
		counts[n.State]++
	}
	for _, s := range []types.NodeState{types.NodeInit, types.NodeOnline, types.NodeOffline} {
		metrics.NodesTotal.WithLabelValues(string(s)).Set(float64(counts[s]))
	}

	poolCounts := map[types.PoolState]int{}
	for _, p := range r.AllPools() {
		poolCounts[p.State]++
	}
	for _, s := range []types.PoolState{types.PoolOnline, types.PoolDegraded, types.PoolPending, types.PoolOffline} {
		metrics.PoolsTotal.WithLabelValues(string(s)).Set(float64(poolCounts[s]))
	}
}

// ChoosePools ranks candidate pools for a replica placement (spec.md
// §4.2.1): at most one pool per node, filtered to accessible pools with
// enough free space (and, if mustNodes is non-empty, restricted to those
// nodes), ordered by shouldNodes membership, state, existing-replica
// count, then free space.
func (r *Registry) ChoosePools(requiredBytes uint64, mustNodes, shouldNodes []string) []types.Pool {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.SchedulingLatency)

	must := toSet(mustNodes)
	should := toSet(shouldNodes)

	replicaCounts := r.replicaCountByPool()

	var candidates []types.Pool
	for _, p := range r.AllPools() {
		if !p.Accessible() {
			continue
		}
		if p.Free() < requiredBytes {
			continue
		}
		if len(must) > 0 && !must[p.Node] {
			continue
		}
		candidates = append(candidates, p)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if should[a.Node] != should[b.Node] {
			return should[a.Node]
		}
		if a.State != b.State {
			return a.State == types.PoolOnline
		}
		ca, cb := replicaCounts[a.Name], replicaCounts[b.Name]
		if ca != cb {
			return ca < cb
		}
		return a.Free() > b.Free()
	})

	seenNode := make(map[string]bool, len(candidates))
	out := make([]types.Pool, 0, len(candidates))
	for _, p := range candidates {
		if seenNode[p.Node] {
			continue
		}
		seenNode[p.Node] = true
		out = append(out, p)
	}
	return out
}

func (r *Registry) replicaCountByPool() map[string]int {
	counts := make(map[string]int)
	for _, n := range r.nodeList() {
		for _, rep := range n.Replicas() {
			counts[rep.Pool]++
		}
	}
	return counts
}

func toSet(xs []string) map[string]bool {
	m := make(map[string]bool, len(xs))
	for _, x := range xs {
		m[x] = true
	}
	return m
}
