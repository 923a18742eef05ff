package volume

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openebs/moac/internal/log"
	"github.com/openebs/moac/internal/metrics"
	"github.com/openebs/moac/internal/types"
)

// ErrInvalidArgument marks a caller error (e.g. a spec update that would
// shrink a volume), distinguishing it from operational failures so the
// internal/api boundary can map it onto codes.InvalidArgument.
var ErrInvalidArgument = errors.New("invalid argument")

// runFSA is the finite state advance (spec.md §4.6): idempotent, computes
// the next single unit of work from (spec, observed), executes it, then
// re-checks. Re-entrancy is suppressed by entry.pending — a concurrent
// trigger while a run is in flight just requests a rerun instead of
// starting a second goroutine racing the first.
func (m *Manager) runFSA(ctx context.Context, id string) {
	m.lock()
	e, ok := m.volumes[id]
	if !ok {
		m.unlock()
		return
	}
	if e.pending {
		e.rerun = true
		m.unlock()
		return
	}
	e.pending = true
	m.unlock()

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.ReconciliationDuration)

	for {
		m.lock()
		vol := e.vol
		m.unlock()

		if vol.Status.State == types.VolumeDestroyed {
			break
		}

		changed := m.advanceOnce(ctx, &vol)

		m.lock()
		e.vol = vol
		m.unlock()

		if err := m.writer.UpdateVolume(&vol); err != nil {
			log.WithVolume(id).Warn().Err(err).Msg("failed to persist volume status")
		}

		if !changed {
			break
		}
	}

	m.lock()
	rerun := e.rerun
	e.rerun = false
	e.pending = false
	m.unlock()
	if rerun {
		m.runFSA(ctx, id)
	}
}

// advanceOnce executes at most one unit of work against vol and reports
// whether anything changed (spec.md §4.6.3's degraded-state healing is
// just another pass through this loop, triggered by pool/node events).
func (m *Manager) advanceOnce(ctx context.Context, vol *types.Volume) bool {
	metrics.FsaRunsTotal.WithLabelValues(string(vol.Status.State)).Inc()
	switch vol.Status.State {
	case types.VolumePending:
		return m.advancePending(ctx, vol)
	case types.VolumeDegraded:
		return m.advanceDegraded(ctx, vol)
	case types.VolumeHealthy, types.VolumeFaulted, types.VolumeUnknown:
		return m.refreshObserved(ctx, vol)
	default:
		return false
	}
}

func (m *Manager) advancePending(ctx context.Context, vol *types.Volume) bool {
	existing := m.reg.GetReplicaSet(vol.UUID)
	if len(existing) < vol.Spec.ReplicaCount {
		hostNodes := nodesOf(existing)
		must := subtract(vol.Spec.RequiredNodes, hostNodes)
		more, err := m.allocateReplicas(ctx, *vol, vol.Spec.ReplicaCount-len(existing), must)
		if err != nil {
			log.WithVolume(vol.UUID).Warn().Err(err).Msg("replica allocation failed, staying pending")
			return false
		}
		existing = append(existing, more...)
	}
	vol.Status.Replicas = replicaPoolList(existing)
	vol.Status.State = nextHealthState(vol.Spec, existing)
	return true
}

// advanceDegraded re-runs placement for the shortfall on nodes not
// already hosting a replica, then attaches the new replica to the
// nexus if one is already published (spec.md §4.6.3).
func (m *Manager) advanceDegraded(ctx context.Context, vol *types.Volume) bool {
	existing := m.reg.GetReplicaSet(vol.UUID)
	m.syncNexusChildren(ctx, vol, existing)
	onlineCount := countOnline(existing)
	if onlineCount >= vol.Spec.ReplicaCount {
		vol.Status.Replicas = replicaPoolList(existing)
		vol.Status.State = types.VolumeHealthy
		return true
	}
	if onlineCount == 0 {
		vol.Status.State = types.VolumeFaulted
		return true
	}

	hostNodes := nodesOf(existing)
	must := subtract(vol.Spec.RequiredNodes, hostNodes)
	added, err := m.allocateReplicas(ctx, *vol, 1, must)
	if err != nil || len(added) == 0 {
		return false
	}
	rep := added[0]

	if nx, ok := m.reg.GetNexus(vol.UUID); ok {
		n := m.reg.GetNode(nx.Node)
		if n != nil {
			if _, err := n.AddChild(ctx, nx.UUID, rep.URI); err != nil {
				log.WithVolume(vol.UUID).Warn().Err(err).Msg("failed to attach healed replica to nexus")
			}
		}
	}

	existing = append(existing, rep)
	m.syncNexusChildren(ctx, vol, existing)
	vol.Status.Replicas = replicaPoolList(existing)
	vol.Status.State = nextHealthState(vol.Spec, existing)
	return true
}

// refreshObserved re-derives state from the registry's current view
// without allocating anything; covers node-join rebind (spec.md §4.6.4)
// and the Healthy->Degraded transition when a replica drops out.
func (m *Manager) refreshObserved(ctx context.Context, vol *types.Volume) bool {
	existing := m.reg.GetReplicaSet(vol.UUID)
	m.syncNexusChildren(ctx, vol, existing)
	next := nextHealthState(vol.Spec, existing)
	if next == vol.Status.State {
		return false
	}
	vol.Status.State = next
	vol.Status.Replicas = replicaPoolList(existing)
	vol.Status.LastTransitionAt = time.Now()
	return true
}

// syncNexusChildren marks each nexus child online or offline to match its
// backing replica's observed state (spec.md §3: a child whose node is
// offline is marked down, not removed from the nexus).
func (m *Manager) syncNexusChildren(ctx context.Context, vol *types.Volume, replicas []types.Replica) {
	if vol.Status.Nexus == "" {
		return
	}
	nx, ok := m.reg.GetNexus(vol.Status.Nexus)
	if !ok {
		return
	}
	n := m.reg.GetNode(nx.Node)
	if n == nil {
		return
	}
	for _, rep := range replicas {
		wantOnline := rep.State == types.ReplicaOnline
		for _, c := range nx.Children {
			if c.URI != rep.URI || (c.State == types.ChildOnline) == wantOnline {
				continue
			}
			if _, err := n.SetChildOnline(ctx, nx.UUID, c.URI, wantOnline); err != nil {
				log.WithNexus(nx.UUID).Warn().Err(err).Str("child", c.URI).Msg("failed to sync nexus child state")
			}
		}
	}
}

// allocateReplicas schedules and creates `count` additional replicas on
// nodes not already hosting a replica of vol, rolling back anything it
// created on partial failure (spec.md §4.6.1's create()).
func (m *Manager) allocateReplicas(ctx context.Context, vol types.Volume, count int, mustNodes []string) ([]types.Replica, error) {
	if count <= 0 {
		return nil, nil
	}
	hosted := make(map[string]bool)
	for _, r := range m.reg.GetReplicaSet(vol.UUID) {
		hosted[r.Node] = true
	}
	var pools []types.Pool
	for _, p := range m.reg.ChoosePools(vol.Spec.RequiredBytes, mustNodes, vol.Spec.PreferredNodes) {
		if !hosted[p.Node] {
			pools = append(pools, p)
		}
	}
	if len(pools) < count {
		return nil, fmt.Errorf("scheduler found %d candidate pool(s), need %d", len(pools), count)
	}

	var created []types.Replica
	rollback := func() {
		for _, rep := range created {
			m.destroyReplicaBestEffort(ctx, rep)
		}
	}
	for i := 0; i < count; i++ {
		pool := pools[i]
		n := m.reg.GetNode(pool.Node)
		if n == nil {
			rollback()
			return nil, fmt.Errorf("node %s for pool %s disappeared mid-allocation", pool.Node, pool.Name)
		}
		rep, err := n.CreateReplica(ctx, vol.UUID, pool.Name, vol.Spec.RequiredBytes)
		if err != nil {
			rollback()
			return nil, fmt.Errorf("create replica on pool %s: %w", pool.Name, err)
		}
		created = append(created, rep)
	}
	return created, nil
}

func (m *Manager) destroyReplicaBestEffort(ctx context.Context, rep types.Replica) {
	n := m.reg.GetNode(rep.Node)
	if n == nil {
		return
	}
	if err := n.DestroyReplica(ctx, rep.UUID); err != nil {
		log.WithVolume(rep.UUID).Warn().Err(err).Str("pool", rep.Pool).Msg("failed to destroy replica during rollback")
	}
}

func nodesOf(replicas []types.Replica) []string {
	out := make([]string, 0, len(replicas))
	for _, r := range replicas {
		out = append(out, r.Node)
	}
	return out
}

func countOnline(replicas []types.Replica) int {
	n := 0
	for _, r := range replicas {
		if r.State == types.ReplicaOnline {
			n++
		}
	}
	return n
}

func subtract(all, exclude []string) []string {
	if len(all) == 0 {
		return nil
	}
	excl := make(map[string]bool, len(exclude))
	for _, x := range exclude {
		excl[x] = true
	}
	var out []string
	for _, a := range all {
		if !excl[a] {
			out = append(out, a)
		}
	}
	return out
}
