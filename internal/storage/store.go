// Package storage persists MOAC's desired state — pool resources and
// volume specs/status — so the control plane survives a restart. The live
// observed object graph (Nodes/Pools/Replicas/Nexuses) is never persisted
// here: it is re-derived from agent sync on every startup (spec.md §4.1),
// matching the teacher's own split between durable store and live worker
// state.
package storage

import "github.com/openebs/moac/internal/types"

// Store is the durable desired-state interface. BoltStore is the durable
// implementation; MemStore is an in-memory one, so internal/cluster's
// raft.FSM and other packages can be tested without a real BoltDB file.
type Store interface {
	CreatePoolResource(r *types.PoolResource) error
	GetPoolResource(name string) (*types.PoolResource, error)
	ListPoolResources() ([]*types.PoolResource, error)
	DeletePoolResource(name string) error

	CreateVolume(v *types.Volume) error
	UpdateVolume(v *types.Volume) error
	GetVolume(uuid string) (*types.Volume, error)
	ListVolumes() ([]*types.Volume, error)
	DeleteVolume(uuid string) error

	Close() error
}
