// Package pooloperator implements the Pool Operator (spec.md §4.5):
// reconciling declarative pool resources against agent state, through a
// single cluster-wide work queue.
package pooloperator

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/openebs/moac/internal/csource"
	"github.com/openebs/moac/internal/events"
	"github.com/openebs/moac/internal/log"
	"github.com/openebs/moac/internal/registry"
	"github.com/openebs/moac/internal/rpc"
	"github.com/openebs/moac/internal/storage"
	"github.com/openebs/moac/internal/types"
	"github.com/openebs/moac/internal/workqueue"
)

// owner serializes every mutation cluster-wide: at most one
// create|destroy|modify|sync action in flight (spec.md §5).
const owner = "pooloperator"

// staleSyncThreshold and sweepInterval implement the startup sweeper
// (spec.md §4.5 step 6).
const (
	staleSyncThreshold = 60 * time.Second
	sweepInterval      = 20 * time.Second
)

// DesiredWriter is the subset of storage.Store / cluster.Cluster the
// operator needs to persist pool-resource mutations. Both satisfy it, so
// the operator can be pointed at either a plain BoltStore or a raft
// Cluster wrapping one without caring which.
type DesiredWriter interface {
	CreatePoolResource(r *types.PoolResource) error
	DeletePoolResource(name string) error
}

// Operator reconciles pool resources against agent state.
type Operator struct {
	reg     *registry.Registry
	store   storage.Store
	writer  DesiredWriter
	watcher *csource.Watcher
	queue   *workqueue.Queue

	mu        sync.RWMutex
	resources map[string]types.PoolResource // name -> desired
	status    map[string]types.PoolResourceStatus
}

// New creates an Operator. writer may be the same value as store (direct,
// non-replicated persistence) or a *cluster.Cluster (raft-replicated).
func New(reg *registry.Registry, store storage.Store, writer DesiredWriter, resourceDir string) (*Operator, error) {
	w, err := csource.NewWatcher(resourceDir)
	if err != nil {
		return nil, err
	}
	return &Operator{
		reg:       reg,
		store:     store,
		writer:    writer,
		watcher:   w,
		queue:     workqueue.New(),
		resources: make(map[string]types.PoolResource),
		status:    make(map[string]types.PoolResourceStatus),
	}, nil
}

// Start runs the startup sequence (spec.md §4.5) and returns once it is
// done; node events, resource-file events and the periodic sweeper are then
// handled by background goroutines.
func (o *Operator) Start(ctx context.Context) error {
	// 1. Load resources, strip any observed status (only agent truth is
	// trusted going forward).
	loaded, err := o.store.ListPoolResources()
	if err != nil {
		return fmt.Errorf("list pool resources: %w", err)
	}
	o.mu.Lock()
	for _, r := range loaded {
		o.resources[r.Name] = *r
	}
	o.mu.Unlock()

	// 2. Subscribe to node events; queue them until step 3 completes.
	nodeSub := o.reg.Broker.Subscribe()
	var queued []events.Event
	var queueMu sync.Mutex
	draining := true
	go func() {
		for ev := range nodeSub {
			if ev.Kind != events.KindNode {
				continue
			}
			queueMu.Lock()
			if draining {
				queued = append(queued, ev)
				queueMu.Unlock()
				continue
			}
			queueMu.Unlock()
			o.handleNodeEvent(ctx, ev)
		}
	}()

	// 3. Synchronize every currently-known node.
	for _, n := range o.reg.Nodes() {
		o.syncNode(ctx, n.Name)
	}

	// 4. Replay queued node events in arrival order.
	queueMu.Lock()
	draining = false
	toReplay := queued
	queued = nil
	queueMu.Unlock()
	for _, ev := range toReplay {
		o.handleNodeEvent(ctx, ev)
	}

	// 5. Enable the resource watcher.
	resourceEvents := make(chan csource.PoolEvent, 64)
	if err := o.watcher.Run(ctx, resourceEvents); err != nil {
		return fmt.Errorf("start resource watcher: %w", err)
	}
	go func() {
		for ev := range resourceEvents {
			o.handleResourceEvent(ctx, ev)
		}
	}()

	// 6. Periodic sweeper.
	go o.sweep(ctx)

	return nil
}

func (o *Operator) handleNodeEvent(ctx context.Context, ev events.Event) {
	if ev.Type == events.TypeDel {
		return
	}
	o.syncNode(ctx, ev.Ref)
}

func (o *Operator) sweep(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			o.reg.RefreshGauges()
			for _, n := range o.reg.Nodes() {
				if n.State == types.NodeOnline && time.Since(n.LastSyncAt) > staleSyncThreshold {
					o.syncNode(ctx, n.Name)
				}
			}
		case <-ctx.Done():
			return
		}
	}
}

func (o *Operator) handleResourceEvent(ctx context.Context, ev csource.PoolEvent) {
	_ = o.queue.Submit(owner, func() error {
		switch ev.Type {
		case csource.Created:
			return o.create(ctx, ev.Resource)
		case csource.Deleted:
			return o.destroyResource(ctx, ev.Resource.Name)
		case csource.Modified:
			return o.modify(ctx, ev.Resource)
		}
		return nil
	})
}

// create implements spec.md §4.5.1's `create` verb.
func (o *Operator) create(ctx context.Context, r types.PoolResource) error {
	logger := log.WithPool(r.Name)

	if !validDisks(r.Disks) {
		o.setStatus(r.Name, types.PoolResourceStatus{State: types.PoolPending, Reason: "disk paths must be absolute under /dev/ and contain no .."})
		return nil
	}

	o.mu.Lock()
	o.resources[r.Name] = r
	o.mu.Unlock()
	if err := o.writer.CreatePoolResource(&r); err != nil {
		logger.Warn().Err(err).Msg("failed to persist pool resource")
	}

	n := o.reg.GetNode(r.Node)
	if n == nil {
		o.setStatus(r.Name, types.PoolResourceStatus{State: types.PoolPending, Reason: "target node unknown"})
		return nil
	}

	observed, err := n.CreatePool(ctx, r.Name, r.Disks)
	if err != nil {
		o.setStatus(r.Name, types.PoolResourceStatus{State: types.PoolOffline, Reason: err.Error()})
		return nil
	}
	if !sameDisks(observed.Disks, r.Disks) {
		o.setStatus(r.Name, types.PoolResourceStatus{State: types.PoolPending, Reason: "a different pool with the same name already exists"})
		return nil
	}
	o.setStatus(r.Name, types.PoolResourceStatus{State: observed.State, Capacity: observed.CapacityBytes, Used: observed.UsedBytes})
	return nil
}

func (o *Operator) destroyResource(ctx context.Context, name string) error {
	o.mu.Lock()
	r, ok := o.resources[name]
	delete(o.resources, name)
	o.mu.Unlock()
	if !ok {
		return nil
	}
	if err := o.writer.DeletePoolResource(name); err != nil {
		log.WithPool(name).Warn().Err(err).Msg("failed to persist pool resource deletion")
	}

	n := o.reg.GetNode(r.Node)
	if n == nil {
		return nil // next node join's sync deletes any foreign pool
	}
	if err := n.DestroyPool(ctx, name); err != nil && !rpc.IsNotFound(err) {
		return err
	}
	return nil
}

// modify implements spec.md §4.5.1's `modify` verb.
func (o *Operator) modify(ctx context.Context, r types.PoolResource) error {
	o.mu.RLock()
	prev, ok := o.resources[r.Name]
	o.mu.RUnlock()
	if !ok {
		return o.create(ctx, r)
	}

	if !sameDisks(prev.Disks, r.Disks) {
		log.WithPool(r.Name).Warn().Msg("disk list change rejected, no-op on agent")
		r.Disks = prev.Disks
	}

	if prev.Node != r.Node {
		if err := o.destroyResource(ctx, prev.Name); err != nil {
			return err
		}
		return o.create(ctx, r)
	}

	o.mu.Lock()
	o.resources[r.Name] = r
	o.mu.Unlock()
	return nil
}

// syncNode implements spec.md §4.5.2, run under the operator's work-queue
// owner like every other mutation.
func (o *Operator) syncNode(ctx context.Context, nodeName string) {
	_ = o.queue.Submit(owner, func() error {
		o.reconcileNode(ctx, nodeName)
		return nil
	})
}

func (o *Operator) reconcileNode(ctx context.Context, nodeName string) {
	n := o.reg.GetNode(nodeName)
	if n == nil {
		return
	}
	n.Sync(ctx)

	if n.Info().LastSyncErr != "" {
		o.markNodeResourcesOffline(nodeName, n.Info().LastSyncErr)
		return
	}

	observedPools := n.Pools()
	observedByName := make(map[string]types.Pool, len(observedPools))
	for _, p := range observedPools {
		observedByName[p.Name] = p
	}

	o.mu.RLock()
	var desiredForNode []types.PoolResource
	for _, r := range o.resources {
		if r.Node == nodeName {
			desiredForNode = append(desiredForNode, r)
		}
	}
	o.mu.RUnlock()

	desiredByName := make(map[string]types.PoolResource, len(desiredForNode))
	for _, r := range desiredForNode {
		desiredByName[r.Name] = r
	}

	// Foreign pools: on the node, no matching resource.
	for name := range observedByName {
		if _, ok := desiredByName[name]; !ok {
			_ = n.DestroyPool(ctx, name)
		}
	}

	// Desired pools absent from the node: create.
	for name, r := range desiredByName {
		if _, ok := observedByName[name]; !ok {
			_ = o.create(ctx, r)
		}
	}

	// Matching pools: refresh status; disks are agent-authoritative.
	for name, r := range desiredByName {
		observed, ok := observedByName[name]
		if !ok {
			continue
		}
		if !sameDisks(observed.Disks, r.Disks) {
			log.WithPool(name).Warn().Msg("observed disks differ from resource, agent is authoritative for topology")
			r.Disks = observed.Disks
			o.mu.Lock()
			o.resources[name] = r
			o.mu.Unlock()
		}
		o.setStatus(name, types.PoolResourceStatus{State: observed.State, Reason: "", Capacity: observed.CapacityBytes, Used: observed.UsedBytes})
	}
}

func (o *Operator) markNodeResourcesOffline(nodeName, reason string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for name, r := range o.resources {
		if r.Node == nodeName {
			o.setStatusLocked(name, types.PoolResourceStatus{State: types.PoolOffline, Reason: reason})
		}
	}
}

func (o *Operator) setStatus(name string, s types.PoolResourceStatus) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.setStatusLocked(name, s)
}

func (o *Operator) setStatusLocked(name string, s types.PoolResourceStatus) {
	o.status[name] = s
}

// Status returns the last written-back status for a pool resource.
func (o *Operator) Status(name string) (types.PoolResourceStatus, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	s, ok := o.status[name]
	return s, ok
}

func validDisks(disks []string) bool {
	if len(disks) == 0 {
		return false
	}
	for _, d := range disks {
		if !filepath.IsAbs(d) || !strings.HasPrefix(d, "/dev/") || strings.Contains(d, "..") {
			return false
		}
	}
	return true
}

func sameDisks(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

