// Package rpc implements the agent RPC Handle: a scoped, one-connection-
// per-agent client with one typed method per verb in spec.md §4.1. The
// wire format is protocol-buffer RPC over gRPC in the upstream agent
// protocol; this module has no protoc/buf toolchain available, so the
// messages below travel as plain Go structs through a hand-registered JSON
// codec (codec.go) instead of generated protobuf types. The transport
// (dial, deadlines, status codes) is still real google.golang.org/grpc.
package rpc

import "github.com/openebs/moac/internal/types"

// PoolWire is the agent's wire representation of a pool.
type PoolWire struct {
	Name          string
	Disks         []string
	State         string // "ONLINE" | "DEGRADED" | "FAULTED" (agent never reports PENDING/OFFLINE, those are MOAC-local)
	CapacityBytes uint64
	UsedBytes     uint64
}

// ReplicaWire is the agent's wire representation of a replica.
type ReplicaWire struct {
	UUID  string
	Pool  string
	Size  uint64
	Share string // "REPLICA_NONE" | "REPLICA_ISCSI" | "REPLICA_NVMF"
	URI   string
	State string // "ONLINE" | "OFFLINE"
}

// ChildWire is the agent's wire representation of one nexus child.
type ChildWire struct {
	URI   string
	State string // "online" | "degraded" | "faulted"
}

// NexusWire is the agent's wire representation of a nexus.
type NexusWire struct {
	UUID       string
	Size       uint64
	State      string // "online" | "degraded" | "faulted"
	Children   []ChildWire
	DevicePath string
}

type CreatePoolRequest struct {
	Name  string
	Disks []string
}
type CreatePoolResponse struct{ Pool PoolWire }

type DestroyPoolRequest struct{ Name string }
type DestroyPoolResponse struct{}

type ListPoolsRequest struct{}
type ListPoolsResponse struct{ Pools []PoolWire }

type CreateReplicaRequest struct {
	UUID string
	Pool string
	Size uint64
}
type CreateReplicaResponse struct{ Replica ReplicaWire }

type DestroyReplicaRequest struct{ UUID string }
type DestroyReplicaResponse struct{}

type ListReplicasRequest struct{}
type ListReplicasResponse struct{ Replicas []ReplicaWire }

type StatReplicasRequest struct{}
type StatReplicasResponse struct{ Stats map[string]uint64 } // uuid -> bytes used

type ShareReplicaRequest struct {
	UUID     string
	Protocol string // "REPLICA_NONE" | "REPLICA_ISCSI" | "REPLICA_NVMF"
}
type ShareReplicaResponse struct{ URI string }

type CreateNexusRequest struct {
	UUID     string
	Size     uint64
	Children []string // child URIs, in insertion order
}
type CreateNexusResponse struct{ Nexus NexusWire }

type DestroyNexusRequest struct{ UUID string }
type DestroyNexusResponse struct{}

type ListNexusRequest struct{}
type ListNexusResponse struct{ Nexus []NexusWire }

type PublishNexusRequest struct {
	UUID     string
	Protocol string
}
type PublishNexusResponse struct{ DevicePath string }

type UnpublishNexusRequest struct{ UUID string }
type UnpublishNexusResponse struct{}

// ChildOp is the action passed to ChildOperation.
type ChildOp string

const (
	ChildOpOnline  ChildOp = "ONLINE_CHILD"
	ChildOpOffline ChildOp = "OFFLINE_CHILD"
	ChildOpAdd     ChildOp = "ADD_CHILD"
	ChildOpRemove  ChildOp = "REMOVE_CHILD"
)

type ChildOperationRequest struct {
	NexusUUID string
	ChildURI  string
	Op        ChildOp
}
type ChildOperationResponse struct{ Nexus NexusWire }

// toPool/toReplica/toNexus convert wire structs into registry entities,
// owned by the given node name.
func (w PoolWire) toPool(node string) types.Pool {
	return types.Pool{
		Name:          w.Name,
		Node:          node,
		Disks:         append([]string(nil), w.Disks...),
		State:         types.PoolState(w.State),
		CapacityBytes: w.CapacityBytes,
		UsedBytes:     w.UsedBytes,
	}
}

func (w ReplicaWire) toReplica(node string) types.Replica {
	return types.Replica{
		UUID:  w.UUID,
		Pool:  w.Pool,
		Node:  node,
		Size:  w.Size,
		Share: shareFromWire(w.Share),
		URI:   w.URI,
		State: types.ReplicaState(w.State),
	}
}

func (w NexusWire) toNexus(node string) types.Nexus {
	children := make([]types.Child, 0, len(w.Children))
	for _, c := range w.Children {
		children = append(children, types.Child{URI: c.URI, State: types.ChildState(c.State)})
	}
	return types.Nexus{
		UUID:       w.UUID,
		Node:       node,
		Size:       w.Size,
		State:      types.NexusState(w.State),
		Children:   children,
		DevicePath: w.DevicePath,
	}
}

func shareFromWire(s string) types.ShareProtocol {
	switch s {
	case "REPLICA_ISCSI":
		return types.ShareISCSI
	case "REPLICA_NVMF":
		return types.ShareNVMF
	default:
		return types.ShareNone
	}
}

func shareToWire(s types.ShareProtocol) string {
	switch s {
	case types.ShareISCSI:
		return "REPLICA_ISCSI"
	case types.ShareNVMF:
		return "REPLICA_NVMF"
	default:
		return "REPLICA_NONE"
	}
}

// ToPool, ToReplica and ToNexus are exported conversions used by callers
// outside this package (internal/node) that only see the wire types
// through the AgentClient interface.
func ToPool(w PoolWire, node string) types.Pool       { return w.toPool(node) }
func ToReplica(w ReplicaWire, node string) types.Replica { return w.toReplica(node) }
func ToNexus(w NexusWire, node string) types.Nexus    { return w.toNexus(node) }
func ShareToWire(s types.ShareProtocol) string        { return shareToWire(s) }
