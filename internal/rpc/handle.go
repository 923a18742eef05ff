package rpc

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// defaultTimeout bounds every agent RPC call (spec.md §5: the Node sync
// loop and the Volume fsa must never block indefinitely on an unreachable
// agent).
const defaultTimeout = 10 * time.Second

// AgentClient is the set of RPC verbs a storage agent exposes (spec.md
// §4.1). Handle implements this over a real grpc.ClientConn; FakeAgent
// (fake_agent.go) implements it in-memory for tests.
type AgentClient interface {
	CreatePool(ctx context.Context, name string, disks []string) (PoolWire, error)
	DestroyPool(ctx context.Context, name string) error
	ListPools(ctx context.Context) ([]PoolWire, error)

	CreateReplica(ctx context.Context, uuid, pool string, size uint64) (ReplicaWire, error)
	DestroyReplica(ctx context.Context, uuid string) error
	ListReplicas(ctx context.Context) ([]ReplicaWire, error)
	StatReplicas(ctx context.Context) (map[string]uint64, error)
	ShareReplica(ctx context.Context, uuid, protocol string) (string, error)

	CreateNexus(ctx context.Context, uuid string, size uint64, children []string) (NexusWire, error)
	DestroyNexus(ctx context.Context, uuid string) error
	ListNexus(ctx context.Context) ([]NexusWire, error)
	PublishNexus(ctx context.Context, uuid, protocol string) (string, error)
	UnpublishNexus(ctx context.Context, uuid string) error
	ChildOperation(ctx context.Context, nexusUUID, childURI string, op ChildOp) (NexusWire, error)

	Close() error
}

// Handle is a gRPC-backed AgentClient bound to a single agent endpoint.
// One Handle is acquired per Node (cmd/moac's connectNodes) and held for
// the node's lifetime; Release (or Close) closes its connection. Handles
// are not pooled or shared between nodes.
type Handle struct {
	endpoint string
	conn     *grpc.ClientConn
	raw      rawClient
}

// rawClient is the minimal subset of grpc.ClientConn.Invoke the Handle
// methods below need. FakeAgent does not go through it; it implements
// AgentClient directly.
type rawClient interface {
	Invoke(ctx context.Context, method string, args, reply interface{}, opts ...grpc.CallOption) error
}

// Acquire dials the agent at endpoint and returns a ready Handle. The
// connection carries no transport credentials beyond insecure.NewCredentials
// because MOAC agent endpoints are expected to sit behind a private
// storage-class network (see internal/security for where mTLS would hook
// in once agent certificates are provisioned).
func Acquire(endpoint string) (*Handle, error) {
	conn, err := grpc.NewClient(endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	)
	if err != nil {
		return nil, fmt.Errorf("dial agent %s: %w", endpoint, err)
	}
	return &Handle{endpoint: endpoint, conn: conn, raw: conn}, nil
}

// Release closes the underlying connection.
func (h *Handle) Release() error {
	return h.Close()
}

func (h *Handle) Close() error {
	if h.conn != nil {
		return h.conn.Close()
	}
	return nil
}

func (h *Handle) Endpoint() string { return h.endpoint }

func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, defaultTimeout)
}

const (
	methodCreatePool      = "/moac.agent.v1.AgentService/CreatePool"
	methodDestroyPool     = "/moac.agent.v1.AgentService/DestroyPool"
	methodListPools       = "/moac.agent.v1.AgentService/ListPools"
	methodCreateReplica   = "/moac.agent.v1.AgentService/CreateReplica"
	methodDestroyReplica  = "/moac.agent.v1.AgentService/DestroyReplica"
	methodListReplicas    = "/moac.agent.v1.AgentService/ListReplicas"
	methodStatReplicas    = "/moac.agent.v1.AgentService/StatReplicas"
	methodShareReplica    = "/moac.agent.v1.AgentService/ShareReplica"
	methodCreateNexus     = "/moac.agent.v1.AgentService/CreateNexus"
	methodDestroyNexus    = "/moac.agent.v1.AgentService/DestroyNexus"
	methodListNexus       = "/moac.agent.v1.AgentService/ListNexus"
	methodPublishNexus    = "/moac.agent.v1.AgentService/PublishNexus"
	methodUnpublishNexus  = "/moac.agent.v1.AgentService/UnpublishNexus"
	methodChildOperation  = "/moac.agent.v1.AgentService/ChildOperation"
)

func (h *Handle) CreatePool(ctx context.Context, name string, disks []string) (PoolWire, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	req := &CreatePoolRequest{Name: name, Disks: disks}
	resp := &CreatePoolResponse{}
	if err := h.raw.Invoke(ctx, methodCreatePool, req, resp); err != nil {
		return PoolWire{}, translate(err)
	}
	return resp.Pool, nil
}

func (h *Handle) DestroyPool(ctx context.Context, name string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	req := &DestroyPoolRequest{Name: name}
	resp := &DestroyPoolResponse{}
	return translate(h.raw.Invoke(ctx, methodDestroyPool, req, resp))
}

func (h *Handle) ListPools(ctx context.Context) ([]PoolWire, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	req := &ListPoolsRequest{}
	resp := &ListPoolsResponse{}
	if err := h.raw.Invoke(ctx, methodListPools, req, resp); err != nil {
		return nil, translate(err)
	}
	return resp.Pools, nil
}

func (h *Handle) CreateReplica(ctx context.Context, uuid, pool string, size uint64) (ReplicaWire, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	req := &CreateReplicaRequest{UUID: uuid, Pool: pool, Size: size}
	resp := &CreateReplicaResponse{}
	if err := h.raw.Invoke(ctx, methodCreateReplica, req, resp); err != nil {
		return ReplicaWire{}, translate(err)
	}
	return resp.Replica, nil
}

func (h *Handle) DestroyReplica(ctx context.Context, uuid string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	req := &DestroyReplicaRequest{UUID: uuid}
	resp := &DestroyReplicaResponse{}
	return translate(h.raw.Invoke(ctx, methodDestroyReplica, req, resp))
}

func (h *Handle) ListReplicas(ctx context.Context) ([]ReplicaWire, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	req := &ListReplicasRequest{}
	resp := &ListReplicasResponse{}
	if err := h.raw.Invoke(ctx, methodListReplicas, req, resp); err != nil {
		return nil, translate(err)
	}
	return resp.Replicas, nil
}

func (h *Handle) StatReplicas(ctx context.Context) (map[string]uint64, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	req := &StatReplicasRequest{}
	resp := &StatReplicasResponse{}
	if err := h.raw.Invoke(ctx, methodStatReplicas, req, resp); err != nil {
		return nil, translate(err)
	}
	return resp.Stats, nil
}

func (h *Handle) ShareReplica(ctx context.Context, uuid, protocol string) (string, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	req := &ShareReplicaRequest{UUID: uuid, Protocol: protocol}
	resp := &ShareReplicaResponse{}
	if err := h.raw.Invoke(ctx, methodShareReplica, req, resp); err != nil {
		return "", translate(err)
	}
	return resp.URI, nil
}

func (h *Handle) CreateNexus(ctx context.Context, uuid string, size uint64, children []string) (NexusWire, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	req := &CreateNexusRequest{UUID: uuid, Size: size, Children: children}
	resp := &CreateNexusResponse{}
	if err := h.raw.Invoke(ctx, methodCreateNexus, req, resp); err != nil {
		return NexusWire{}, translate(err)
	}
	return resp.Nexus, nil
}

func (h *Handle) DestroyNexus(ctx context.Context, uuid string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	req := &DestroyNexusRequest{UUID: uuid}
	resp := &DestroyNexusResponse{}
	return translate(h.raw.Invoke(ctx, methodDestroyNexus, req, resp))
}

func (h *Handle) ListNexus(ctx context.Context) ([]NexusWire, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	req := &ListNexusRequest{}
	resp := &ListNexusResponse{}
	if err := h.raw.Invoke(ctx, methodListNexus, req, resp); err != nil {
		return nil, translate(err)
	}
	return resp.Nexus, nil
}

func (h *Handle) PublishNexus(ctx context.Context, uuid, protocol string) (string, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	req := &PublishNexusRequest{UUID: uuid, Protocol: protocol}
	resp := &PublishNexusResponse{}
	if err := h.raw.Invoke(ctx, methodPublishNexus, req, resp); err != nil {
		return "", translate(err)
	}
	return resp.DevicePath, nil
}

func (h *Handle) UnpublishNexus(ctx context.Context, uuid string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	req := &UnpublishNexusRequest{UUID: uuid}
	resp := &UnpublishNexusResponse{}
	return translate(h.raw.Invoke(ctx, methodUnpublishNexus, req, resp))
}

func (h *Handle) ChildOperation(ctx context.Context, nexusUUID, childURI string, op ChildOp) (NexusWire, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	req := &ChildOperationRequest{NexusUUID: nexusUUID, ChildURI: childURI, Op: op}
	resp := &ChildOperationResponse{}
	if err := h.raw.Invoke(ctx, methodChildOperation, req, resp); err != nil {
		return NexusWire{}, translate(err)
	}
	return resp.Nexus, nil
}
