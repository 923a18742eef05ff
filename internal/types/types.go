// Package types defines MOAC's in-memory object graph: nodes, pools,
// replicas, nexuses and volumes, plus the declarative resources the
// operators reconcile against.
package types

import "time"

// NodeState is the connection state of an agent.
type NodeState string

const (
	NodeInit    NodeState = "init"
	NodeOnline  NodeState = "online"
	NodeOffline NodeState = "offline"
)

// Node is one storage-agent connection, identified by name.
type Node struct {
	Name        string
	Endpoint    string
	State       NodeState
	JoinedAt    time.Time
	LastSyncAt  time.Time
	LastSyncErr string
}

// PoolState mirrors the agent's pool state enum.
type PoolState string

const (
	PoolOnline   PoolState = "ONLINE"
	PoolDegraded PoolState = "DEGRADED"
	PoolPending  PoolState = "PENDING"
	PoolOffline  PoolState = "OFFLINE"
)

// Pool is a storage region owned by exactly one Node.
type Pool struct {
	Name          string
	Node          string
	Disks         []string
	State         PoolState
	Reason        string
	CapacityBytes uint64
	UsedBytes     uint64
	CreatedAt     time.Time
}

// Free returns the pool's unallocated capacity.
func (p *Pool) Free() uint64 {
	if p.UsedBytes >= p.CapacityBytes {
		return 0
	}
	return p.CapacityBytes - p.UsedBytes
}

// Accessible reports whether the pool can serve placement/IO.
func (p *Pool) Accessible() bool {
	return p.State == PoolOnline || p.State == PoolDegraded
}

// ShareProtocol is the transport a replica is exported over.
type ShareProtocol string

const (
	ShareNone ShareProtocol = "NONE"
	ShareISCSI ShareProtocol = "ISCSI"
	ShareNVMF  ShareProtocol = "NVMF"
)

// ReplicaState mirrors the agent's replica health.
type ReplicaState string

const (
	ReplicaOnline  ReplicaState = "ONLINE"
	ReplicaOffline ReplicaState = "OFFLINE"
)

// Replica is a fixed-size logical volume carved from a Pool, named by the
// owning Volume's UUID.
type Replica struct {
	UUID      string
	Pool      string
	Node      string
	Size      uint64
	Share     ShareProtocol
	URI       string
	State     ReplicaState
	CreatedAt time.Time
}

// NexusState mirrors the agent's nexus health.
type NexusState string

const (
	NexusOnline   NexusState = "online"
	NexusDegraded NexusState = "degraded"
	NexusFaulted  NexusState = "faulted"
)

// ChildState is the health of one nexus child.
type ChildState string

const (
	ChildOnline  ChildState = "online"
	ChildDegraded ChildState = "degraded"
	ChildFaulted  ChildState = "faulted"
)

// Child is one replica URI attached to a Nexus.
type Child struct {
	URI   string
	State ChildState
}

// Nexus assembles one or more replicas into a volume's I/O target.
type Nexus struct {
	UUID       string
	Node       string
	Size       uint64
	State      NexusState
	Children   []Child
	DevicePath string
	CreatedAt  time.Time
}

// VolumeState is the Volume's observed lifecycle state (spec.md §4.6.2).
type VolumeState string

const (
	VolumePending   VolumeState = "Pending"
	VolumeHealthy   VolumeState = "Healthy"
	VolumeDegraded  VolumeState = "Degraded"
	VolumeFaulted   VolumeState = "Faulted"
	VolumeDestroyed VolumeState = "Destroyed"
	VolumeUnknown   VolumeState = "Unknown"
)

// VolumeSpec is the desired state of a Volume (spec.md §3).
type VolumeSpec struct {
	ReplicaCount   int
	PreferredNodes []string
	RequiredNodes  []string
	RequiredBytes  uint64
	LimitBytes     uint64
	Protocol       ShareProtocol
}

// VolumeStatus is the observed state of a Volume (spec.md §3).
type VolumeStatus struct {
	State                VolumeState
	Size                 uint64
	PublishedOn          string
	Replicas             []string // pool names backing this volume's replica set (each replica shares Volume.UUID, so pool is what distinguishes them)
	Nexus                string   // nexus uuid, empty if none
	LastTransitionAt     time.Time
	LastTransitionReason string
}

// Volume is identified by a UUID and carries both desired (Spec) and
// observed (Status) state.
type Volume struct {
	UUID   string
	Spec   VolumeSpec
	Status VolumeStatus
}

// PoolResource is the declarative desired state for a Pool (spec.md §6).
type PoolResource struct {
	Name  string
	Node  string
	Disks []string
}

// PoolResourceStatus is written back by the Pool Operator (spec.md §6).
type PoolResourceStatus struct {
	State    PoolState
	Reason   string
	Capacity uint64
	Used     uint64
}
