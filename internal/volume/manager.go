// Package volume implements the Volume Manager and the per-volume finite
// state advance (fsa) that drives each Volume from its desired Spec toward
// its observed Status (spec.md §4.6, §4.7).
package volume

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/openebs/moac/internal/events"
	"github.com/openebs/moac/internal/log"
	"github.com/openebs/moac/internal/registry"
	"github.com/openebs/moac/internal/storage"
	"github.com/openebs/moac/internal/types"
	"github.com/openebs/moac/internal/workqueue"
)

// createOwner is the single work-queue owner createVolume is serialized
// under (spec.md §4.4, §4.7): at most one allocation runs at a time so
// scheduler placement never races itself.
const createOwner = "create"

// DesiredWriter is the subset of storage.Store / cluster.Cluster the
// manager needs to persist volume specs/status. Both satisfy it.
type DesiredWriter interface {
	CreateVolume(v *types.Volume) error
	UpdateVolume(v *types.Volume) error
	DeleteVolume(uuid string) error
}

// entry guards one volume's state and its fsa re-entrancy flag.
type entry struct {
	vol     types.Volume
	pending bool
	rerun   bool
}

// Manager owns every Volume by UUID, reacting to Registry events and
// serving the create/publish/unpublish/destroy/update operations (spec.md
// §4.7).
type Manager struct {
	reg    *registry.Registry
	writer DesiredWriter

	createQueue *workqueue.Queue

	mu      chan struct{} // binary semaphore guarding volumes map
	volumes map[string]*entry
}

// NewManager creates a Manager bound to reg for scheduling/placement and
// writer for desired-state persistence.
func NewManager(reg *registry.Registry, writer DesiredWriter) *Manager {
	m := &Manager{
		reg:         reg,
		writer:      writer,
		createQueue: workqueue.New(),
		mu:          make(chan struct{}, 1),
		volumes:     make(map[string]*entry),
	}
	m.mu <- struct{}{}
	return m
}

func (m *Manager) lock()   { <-m.mu }
func (m *Manager) unlock() { m.mu <- struct{}{} }

// LoadExisting reconstructs Manager state from persisted volumes without
// allocating anything — used at startup (spec.md §4.7's importVolume).
// ImportVolume registers a single volume the same way without reading the
// store.
func (m *Manager) LoadExisting(store storage.Store) error {
	vols, err := store.ListVolumes()
	if err != nil {
		return fmt.Errorf("list volumes: %w", err)
	}
	m.lock()
	for _, v := range vols {
		m.volumes[v.UUID] = &entry{vol: *v}
	}
	m.unlock()
	return nil
}

// Start subscribes to the Registry's event stream and routes events to
// volumes until ctx is done (spec.md §4.7).
func (m *Manager) Start(ctx context.Context) {
	stream := m.reg.Subscribe(ctx)
	go func() {
		defer stream.Close()
		for ev := range stream.Events() {
			m.route(ctx, ev)
		}
	}()
}

// route implements the event-dispatch rules of spec.md §4.7: pool:new
// wakes every Degraded volume, replica/nexus events forward to the owning
// volume by UUID (ignoring unknown uuids), node events wake volumes
// published on that node.
func (m *Manager) route(ctx context.Context, ev events.Event) {
	switch ev.Kind {
	case events.KindPool:
		if ev.Type == events.TypeNew || ev.Type == events.TypeSync {
			for _, id := range m.degradedUUIDs() {
				go m.runFSA(ctx, id)
			}
		}
	case events.KindReplica, events.KindNexus:
		if m.has(ev.Ref) {
			go m.runFSA(ctx, ev.Ref)
		}
	case events.KindNode:
		for _, id := range m.publishedOn(ev.Ref) {
			go m.runFSA(ctx, id)
		}
	}
}

func (m *Manager) has(id string) bool {
	m.lock()
	defer m.unlock()
	_, ok := m.volumes[id]
	return ok
}

func (m *Manager) degradedUUIDs() []string {
	m.lock()
	defer m.unlock()
	var out []string
	for id, e := range m.volumes {
		if e.vol.Status.State == types.VolumeDegraded {
			out = append(out, id)
		}
	}
	return out
}

func (m *Manager) publishedOn(node string) []string {
	m.lock()
	defer m.unlock()
	var out []string
	for id, e := range m.volumes {
		if e.vol.Status.PublishedOn == node {
			out = append(out, id)
		}
	}
	return out
}

// GetVolume returns a snapshot of the named volume.
func (m *Manager) GetVolume(id string) (types.Volume, bool) {
	m.lock()
	defer m.unlock()
	e, ok := m.volumes[id]
	if !ok {
		return types.Volume{}, false
	}
	return e.vol, true
}

// ListVolumes returns a snapshot of every known volume.
func (m *Manager) ListVolumes() []types.Volume {
	m.lock()
	defer m.unlock()
	out := make([]types.Volume, 0, len(m.volumes))
	for _, e := range m.volumes {
		out = append(out, e.vol)
	}
	return out
}

// CreateVolume allocates replicas for a new volume and registers it,
// serialized through the manager's single create work-queue owner. On
// partial allocation failure, every replica created so far is rolled back
// and removed (spec.md §4.6.1, §4.7).
func (m *Manager) CreateVolume(ctx context.Context, id string, spec types.VolumeSpec) (types.Volume, error) {
	if id == "" {
		id = uuid.NewString()
	}
	logger := log.WithVolume(id)

	var result types.Volume
	var resultErr error
	err := m.createQueue.Submit(createOwner, func() error {
		v := types.Volume{
			UUID: id,
			Spec: spec,
			Status: types.VolumeStatus{
				State: types.VolumePending,
				Size:  spec.RequiredBytes,
			},
		}

		replicas, err := m.allocateReplicas(ctx, v, spec.ReplicaCount, spec.RequiredNodes)
		if err != nil {
			for _, rep := range replicas {
				m.destroyReplicaBestEffort(ctx, rep)
			}
			resultErr = err
			return err
		}
		v.Status.Replicas = replicaPoolList(replicas)
		v.Status.State = nextHealthState(spec, replicas)

		m.lock()
		m.volumes[id] = &entry{vol: v}
		m.unlock()

		if err := m.writer.CreateVolume(&v); err != nil {
			logger.Warn().Err(err).Msg("failed to persist volume")
		}
		result = v
		return nil
	})
	if err != nil && resultErr == nil {
		resultErr = err
	}
	return result, resultErr
}

// DestroyVolume unpublishes (tolerantly) then destroys every replica,
// removing the volume from the manager's set only once all replicas are
// gone or already missing (spec.md §4.6.1).
func (m *Manager) DestroyVolume(ctx context.Context, id string) error {
	m.lock()
	e, ok := m.volumes[id]
	var vol types.Volume
	if ok {
		vol = e.vol
	}
	m.unlock()
	if !ok {
		return nil
	}

	if vol.Status.Nexus != "" {
		if err := m.unpublish(ctx, &vol); err != nil {
			log.WithVolume(id).Warn().Err(err).Msg("unpublish during destroy failed, continuing")
		}
	}

	for _, rep := range m.reg.GetReplicaSet(id) {
		n := m.reg.GetNode(rep.Node)
		if n == nil {
			continue
		}
		if err := n.DestroyReplica(ctx, rep.UUID); err != nil {
			return fmt.Errorf("destroy replica on pool %s: %w", rep.Pool, err)
		}
	}

	m.lock()
	delete(m.volumes, id)
	m.unlock()

	if err := m.writer.DeleteVolume(id); err != nil {
		log.WithVolume(id).Warn().Err(err).Msg("failed to persist volume deletion")
	}
	return nil
}

// ImportVolume registers an already-persisted volume (e.g. one restored
// from a snapshot or re-imported after a manager restart) without
// allocating any new component; its status is refreshed by the next fsa
// run.
func (m *Manager) ImportVolume(v types.Volume) {
	if v.Status.State == "" {
		v.Status.State = types.VolumeUnknown
	}
	m.lock()
	m.volumes[v.UUID] = &entry{vol: v}
	m.unlock()
}

// UpdateSpec applies a new desired spec (size floor enforced) and wakes the
// volume's fsa (spec.md §4.6.1's update()). A raised replica count leaves
// the volume Degraded until fsa allocates the missing replicas; a lowered
// one removes no replica, the extra replicas stay in place.
func (m *Manager) UpdateSpec(ctx context.Context, id string, spec types.VolumeSpec) error {
	m.lock()
	e, ok := m.volumes[id]
	if !ok {
		m.unlock()
		return fmt.Errorf("volume %s not found", id)
	}
	if spec.RequiredBytes < e.vol.Spec.RequiredBytes {
		m.unlock()
		return fmt.Errorf("%w: requiredBytes cannot shrink", ErrInvalidArgument)
	}
	e.vol.Spec = spec
	m.unlock()

	m.runFSA(ctx, id)
	return nil
}

// replicaPoolList records which pools back a volume's replica set. Every
// replica of the same volume shares its UUID (spec.md §4.2), so the pool
// name is what distinguishes one from another in Status.Replicas.
func replicaPoolList(replicas []types.Replica) []string {
	out := make([]string, 0, len(replicas))
	for _, r := range replicas {
		out = append(out, r.Pool)
	}
	return out
}

func nextHealthState(spec types.VolumeSpec, replicas []types.Replica) types.VolumeState {
	onlineCount := 0
	for _, r := range replicas {
		if r.State == types.ReplicaOnline {
			onlineCount++
		}
	}
	switch {
	case onlineCount == 0:
		return types.VolumeFaulted
	case onlineCount >= spec.ReplicaCount:
		return types.VolumeHealthy
	default:
		return types.VolumeDegraded
	}
}
