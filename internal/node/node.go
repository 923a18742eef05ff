// Package node implements the per-Node agent connection: the periodic
// listPools/listReplicas/listNexus sync loop that keeps the Registry's view
// of one storage agent current, and the pass-through mutating calls
// (createPool, createReplica, ...) the Pool Operator and Volume Manager
// issue against it (spec.md §4.1).
package node

import (
	"context"
	"reflect"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/openebs/moac/internal/events"
	"github.com/openebs/moac/internal/log"
	"github.com/openebs/moac/internal/rpc"
	"github.com/openebs/moac/internal/types"
)

// syncInterval is how often a Node polls its agent for pool/replica/nexus
// state, mirroring the teacher's worker sync-loop cadence.
const syncInterval = 5 * time.Second

// offlineThreshold is the number of consecutive sync failures before a
// Node is marked OFFLINE (spec.md §4.1, §7: agents that stop answering
// don't flap the Registry on a single missed poll).
const offlineThreshold = 3

// Node owns one agent connection and the last-synced snapshot of that
// agent's pools, replicas and nexuses.
type Node struct {
	mu    sync.RWMutex
	info  types.Node
	agent rpc.AgentClient

	pools    map[string]types.Pool
	replicas map[string]types.Replica
	nexus    map[string]types.Nexus

	consecutiveFailures int

	broker *events.Broker
	logger zerolog.Logger

	stopCh chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a Node bound to agent, initially in the INIT state.
func New(name, endpoint string, agent rpc.AgentClient, broker *events.Broker) *Node {
	return &Node{
		info: types.Node{
			Name:     name,
			Endpoint: endpoint,
			State:    types.NodeInit,
			JoinedAt: time.Now(),
		},
		agent:    agent,
		pools:    make(map[string]types.Pool),
		replicas: make(map[string]types.Replica),
		nexus:    make(map[string]types.Nexus),
		broker:   broker,
		logger:   log.WithNode(name),
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic sync loop. The first sync runs immediately so
// a newly joined node's state is visible before the first tick.
func (n *Node) Start(ctx context.Context) {
	n.wg.Add(1)
	go n.loop(ctx)
}

// Stop terminates the sync loop. Idempotent.
func (n *Node) Stop() {
	n.stopOnce.Do(func() { close(n.stopCh) })
	n.wg.Wait()
	_ = n.agent.Close()
}

func (n *Node) loop(ctx context.Context) {
	defer n.wg.Done()
	n.sync(ctx)

	ticker := time.NewTicker(syncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			n.sync(ctx)
		case <-n.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Info returns a snapshot of the node's bookkeeping fields.
func (n *Node) Info() types.Node {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.info
}

// Name returns the node's name without locking, safe as it's immutable.
func (n *Node) Name() string { return n.info.Name }

// Pools returns a snapshot of the node's last-synced pools.
func (n *Node) Pools() []types.Pool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]types.Pool, 0, len(n.pools))
	for _, p := range n.pools {
		out = append(out, p)
	}
	return out
}

// Replicas returns a snapshot of the node's last-synced replicas.
func (n *Node) Replicas() []types.Replica {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]types.Replica, 0, len(n.replicas))
	for _, r := range n.replicas {
		out = append(out, r)
	}
	return out
}

// Nexuses returns a snapshot of the node's last-synced nexuses.
func (n *Node) Nexuses() []types.Nexus {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]types.Nexus, 0, len(n.nexus))
	for _, x := range n.nexus {
		out = append(out, x)
	}
	return out
}

// Sync runs one poll-and-reconcile cycle immediately, outside the normal
// ticker cadence. Exported for tests and for the pool operator's
// node-join resync (spec.md §4.5.2).
func (n *Node) Sync(ctx context.Context) {
	n.sync(ctx)
}

// sync polls the agent and reconciles the in-memory snapshot, publishing
// one new/mod/del event per changed entity (spec.md §4.1, §4.3).
func (n *Node) sync(ctx context.Context) {
	sctx, cancel := context.WithTimeout(ctx, syncInterval)
	defer cancel()

	pools, err := n.agent.ListPools(sctx)
	if err == nil {
		var replicas []rpc.ReplicaWire
		replicas, err = n.agent.ListReplicas(sctx)
		if err == nil {
			var nx []rpc.NexusWire
			nx, err = n.agent.ListNexus(sctx)
			if err == nil {
				n.reconcile(pools, replicas, nx)
				return
			}
		}
	}
	n.onSyncError(err)
}

func (n *Node) onSyncError(err error) {
	n.mu.Lock()
	n.consecutiveFailures++
	n.info.LastSyncErr = err.Error()
	wentOffline := n.consecutiveFailures >= offlineThreshold && n.info.State != types.NodeOffline
	if wentOffline {
		n.info.State = types.NodeOffline
	}
	name := n.info.Name

	var poolRefs, replicaRefs []string
	if wentOffline {
		for ref, p := range n.pools {
			p.State = types.PoolOffline
			p.Reason = err.Error()
			n.pools[ref] = p
			poolRefs = append(poolRefs, ref)
		}
		for ref, r := range n.replicas {
			r.State = types.ReplicaOffline
			n.replicas[ref] = r
			replicaRefs = append(replicaRefs, ref)
		}
	}
	n.mu.Unlock()

	n.logger.Warn().Err(err).Int("consecutive_failures", n.consecutiveFailures).Msg("agent sync failed")
	if wentOffline {
		n.logger.Error().Dur("uptime", time.Since(n.info.JoinedAt)).Msg("node marked offline")
		n.publish(events.TypeMod, events.KindNode, name, "")
		for _, ref := range poolRefs {
			n.publish(events.TypeMod, events.KindPool, ref, name)
		}
		for _, ref := range replicaRefs {
			n.publish(events.TypeMod, events.KindReplica, ref, name)
		}
	}
}

func (n *Node) reconcile(poolWires []rpc.PoolWire, replicaWires []rpc.ReplicaWire, nexusWires []rpc.NexusWire) {
	name := n.info.Name

	newPools := make(map[string]types.Pool, len(poolWires))
	for _, w := range poolWires {
		newPools[w.Name] = rpc.ToPool(w, name)
	}
	newReplicas := make(map[string]types.Replica, len(replicaWires))
	for _, w := range replicaWires {
		newReplicas[w.UUID] = rpc.ToReplica(w, name)
	}
	newNexus := make(map[string]types.Nexus, len(nexusWires))
	for _, w := range nexusWires {
		newNexus[w.UUID] = rpc.ToNexus(w, name)
	}

	n.mu.Lock()
	becameOnline := n.info.State != types.NodeOnline
	n.info.State = types.NodeOnline
	n.info.LastSyncAt = time.Now()
	n.info.LastSyncErr = ""
	n.consecutiveFailures = 0

	poolEvents := diff(n.pools, newPools)
	replicaEvents := diff(n.replicas, newReplicas)
	nexusEvents := diff(n.nexus, newNexus)

	n.pools = newPools
	n.replicas = newReplicas
	n.nexus = newNexus
	n.mu.Unlock()

	if becameOnline {
		n.logger.Info().Time("joined_at", n.info.JoinedAt).Msg("node online")
		n.publish(events.TypeMod, events.KindNode, name, "")
	}
	for ref, t := range poolEvents {
		n.publish(t, events.KindPool, ref, name)
	}
	for ref, t := range replicaEvents {
		n.publish(t, events.KindReplica, ref, name)
	}
	for ref, t := range nexusEvents {
		n.publish(t, events.KindNexus, ref, name)
	}
}

// diff compares two generic-keyed snapshots and returns the set of changed
// identities with their event type: new and deleted identities, plus
// existing identities whose value differs (compared with reflect.DeepEqual).
// Unchanged identities are left out.
func diff[T any](old, new map[string]T) map[string]events.Type {
	changes := make(map[string]events.Type)
	for ref := range old {
		if _, ok := new[ref]; !ok {
			changes[ref] = events.TypeDel
		}
	}
	for ref := range new {
		if _, ok := old[ref]; !ok {
			changes[ref] = events.TypeNew
		} else if !reflect.DeepEqual(old[ref], new[ref]) {
			changes[ref] = events.TypeMod
		}
	}
	return changes
}

func (n *Node) publish(t events.Type, kind events.Kind, ref, node string) {
	if n.broker == nil {
		return
	}
	n.broker.Publish(events.Event{Kind: kind, Type: t, Ref: ref, Node: node})
}

// --- pass-through mutating calls, used by internal/pooloperator and
// internal/volume. Each updates the in-memory snapshot optimistically on
// success; the next sync tick reconciles against agent-reported truth.

func (n *Node) CreatePool(ctx context.Context, name string, disks []string) (types.Pool, error) {
	w, err := n.agent.CreatePool(ctx, name, disks)
	if err != nil && !rpc.IsAlreadyExists(err) {
		return types.Pool{}, err
	}
	p := rpc.ToPool(w, n.Name())
	n.mu.Lock()
	n.pools[p.Name] = p
	n.mu.Unlock()
	n.publish(events.TypeNew, events.KindPool, p.Name, n.Name())
	return p, nil
}

func (n *Node) DestroyPool(ctx context.Context, name string) error {
	err := n.agent.DestroyPool(ctx, name)
	if err != nil && !rpc.IsNotFound(err) {
		return err
	}
	n.mu.Lock()
	delete(n.pools, name)
	n.mu.Unlock()
	n.publish(events.TypeDel, events.KindPool, name, n.Name())
	return nil
}

func (n *Node) CreateReplica(ctx context.Context, uuid, pool string, size uint64) (types.Replica, error) {
	w, err := n.agent.CreateReplica(ctx, uuid, pool, size)
	if err != nil && !rpc.IsAlreadyExists(err) {
		return types.Replica{}, err
	}
	r := rpc.ToReplica(w, n.Name())
	n.mu.Lock()
	n.replicas[r.UUID] = r
	n.mu.Unlock()
	n.publish(events.TypeNew, events.KindReplica, r.UUID, n.Name())
	return r, nil
}

func (n *Node) DestroyReplica(ctx context.Context, uuid string) error {
	err := n.agent.DestroyReplica(ctx, uuid)
	if err != nil && !rpc.IsNotFound(err) {
		return err
	}
	n.mu.Lock()
	delete(n.replicas, uuid)
	n.mu.Unlock()
	n.publish(events.TypeDel, events.KindReplica, uuid, n.Name())
	return nil
}

func (n *Node) ShareReplica(ctx context.Context, uuid string, protocol types.ShareProtocol) (string, error) {
	uri, err := n.agent.ShareReplica(ctx, uuid, rpc.ShareToWire(protocol))
	if err != nil {
		return "", err
	}
	n.mu.Lock()
	if r, ok := n.replicas[uuid]; ok {
		r.Share = protocol
		r.URI = uri
		n.replicas[uuid] = r
	}
	n.mu.Unlock()
	n.publish(events.TypeMod, events.KindReplica, uuid, n.Name())
	return uri, nil
}

func (n *Node) CreateNexus(ctx context.Context, uuid string, size uint64, children []string) (types.Nexus, error) {
	w, err := n.agent.CreateNexus(ctx, uuid, size, children)
	if err != nil && !rpc.IsAlreadyExists(err) {
		return types.Nexus{}, err
	}
	x := rpc.ToNexus(w, n.Name())
	n.mu.Lock()
	n.nexus[x.UUID] = x
	n.mu.Unlock()
	n.publish(events.TypeNew, events.KindNexus, x.UUID, n.Name())
	return x, nil
}

func (n *Node) DestroyNexus(ctx context.Context, uuid string) error {
	err := n.agent.DestroyNexus(ctx, uuid)
	if err != nil && !rpc.IsNotFound(err) {
		return err
	}
	n.mu.Lock()
	delete(n.nexus, uuid)
	n.mu.Unlock()
	n.publish(events.TypeDel, events.KindNexus, uuid, n.Name())
	return nil
}

func (n *Node) PublishNexus(ctx context.Context, uuid string, protocol types.ShareProtocol) (string, error) {
	devicePath, err := n.agent.PublishNexus(ctx, uuid, rpc.ShareToWire(protocol))
	if err != nil {
		return "", err
	}
	n.mu.Lock()
	if x, ok := n.nexus[uuid]; ok {
		x.DevicePath = devicePath
		n.nexus[uuid] = x
	}
	n.mu.Unlock()
	n.publish(events.TypeMod, events.KindNexus, uuid, n.Name())
	return devicePath, nil
}

func (n *Node) UnpublishNexus(ctx context.Context, uuid string) error {
	if err := n.agent.UnpublishNexus(ctx, uuid); err != nil {
		return err
	}
	n.mu.Lock()
	if x, ok := n.nexus[uuid]; ok {
		x.DevicePath = ""
		n.nexus[uuid] = x
	}
	n.mu.Unlock()
	n.publish(events.TypeMod, events.KindNexus, uuid, n.Name())
	return nil
}

func (n *Node) AddChild(ctx context.Context, nexusUUID, childURI string) (types.Nexus, error) {
	w, err := n.agent.ChildOperation(ctx, nexusUUID, childURI, rpc.ChildOpAdd)
	if err != nil {
		return types.Nexus{}, err
	}
	x := rpc.ToNexus(w, n.Name())
	n.mu.Lock()
	n.nexus[x.UUID] = x
	n.mu.Unlock()
	n.publish(events.TypeMod, events.KindNexus, x.UUID, n.Name())
	return x, nil
}

func (n *Node) RemoveChild(ctx context.Context, nexusUUID, childURI string) (types.Nexus, error) {
	w, err := n.agent.ChildOperation(ctx, nexusUUID, childURI, rpc.ChildOpRemove)
	if err != nil {
		return types.Nexus{}, err
	}
	x := rpc.ToNexus(w, n.Name())
	n.mu.Lock()
	n.nexus[x.UUID] = x
	n.mu.Unlock()
	n.publish(events.TypeMod, events.KindNexus, x.UUID, n.Name())
	return x, nil
}

// SetChildOnline marks a nexus child's connectivity state without removing
// it from the nexus (spec.md §3: a child whose node is offline is marked
// down, not removed).
func (n *Node) SetChildOnline(ctx context.Context, nexusUUID, childURI string, online bool) (types.Nexus, error) {
	op := rpc.ChildOpOffline
	if online {
		op = rpc.ChildOpOnline
	}
	w, err := n.agent.ChildOperation(ctx, nexusUUID, childURI, op)
	if err != nil {
		return types.Nexus{}, err
	}
	x := rpc.ToNexus(w, n.Name())
	n.mu.Lock()
	n.nexus[x.UUID] = x
	n.mu.Unlock()
	n.publish(events.TypeMod, events.KindNexus, x.UUID, n.Name())
	return x, nil
}
