package volume

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openebs/moac/internal/node"
	"github.com/openebs/moac/internal/registry"
	"github.com/openebs/moac/internal/rpc"
	"github.com/openebs/moac/internal/storage"
	"github.com/openebs/moac/internal/types"
)

func twoNodeRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg := registry.New()
	for _, name := range []string{"node-a", "node-b"} {
		agent := rpc.NewFakeAgent()
		n := node.New(name, name+":10000", agent, reg.Broker)
		_, err := n.CreatePool(context.Background(), "pool-"+name, []string{"/dev/sdb"})
		require.NoError(t, err)
		n.Sync(context.Background())
		reg.AddNode(n)
	}
	return reg
}

func TestCreateVolumeAllocatesReplicas(t *testing.T) {
	reg := twoNodeRegistry(t)
	store := storage.NewMemStore()
	m := NewManager(reg, store)

	vol, err := m.CreateVolume(context.Background(), "", types.VolumeSpec{
		ReplicaCount:  2,
		RequiredBytes: 1 << 20,
		Protocol:      types.ShareNVMF,
	})
	require.NoError(t, err)
	assert.Equal(t, types.VolumeHealthy, vol.Status.State)
	assert.Len(t, vol.Status.Replicas, 2)
}

func TestCreateVolumeRollsBackOnPartialFailure(t *testing.T) {
	reg := registry.New()
	store := storage.NewMemStore()

	agent := rpc.NewFakeAgent()
	n := node.New("node-a", "node-a:10000", agent, reg.Broker)
	_, err := n.CreatePool(context.Background(), "pool-a", []string{"/dev/sdb"})
	require.NoError(t, err)
	n.Sync(context.Background())
	reg.AddNode(n)

	m := NewManager(reg, store)
	_, err = m.CreateVolume(context.Background(), "v1", types.VolumeSpec{
		ReplicaCount:  2, // only one pool available cluster-wide
		RequiredBytes: 1 << 20,
	})
	assert.Error(t, err)
	assert.Empty(t, n.Replicas())
}

func TestDestroyVolumeIsIdempotent(t *testing.T) {
	reg := twoNodeRegistry(t)
	store := storage.NewMemStore()
	m := NewManager(reg, store)

	vol, err := m.CreateVolume(context.Background(), "", types.VolumeSpec{ReplicaCount: 1, RequiredBytes: 1 << 20})
	require.NoError(t, err)

	require.NoError(t, m.DestroyVolume(context.Background(), vol.UUID))
	require.NoError(t, m.DestroyVolume(context.Background(), vol.UUID)) // second call: no-op

	_, ok := m.GetVolume(vol.UUID)
	assert.False(t, ok)
}

func TestPublishIsIdempotent(t *testing.T) {
	reg := twoNodeRegistry(t)
	store := storage.NewMemStore()
	m := NewManager(reg, store)

	vol, err := m.CreateVolume(context.Background(), "", types.VolumeSpec{ReplicaCount: 2, RequiredBytes: 1 << 20})
	require.NoError(t, err)

	uri1, err := m.Publish(context.Background(), vol.UUID, types.ShareNVMF)
	require.NoError(t, err)
	require.NotEmpty(t, uri1)

	uri2, err := m.Publish(context.Background(), vol.UUID, types.ShareNVMF)
	require.NoError(t, err)
	assert.Equal(t, uri1, uri2)

	_, ok := reg.GetNexus(vol.UUID)
	assert.True(t, ok)
}

func TestUpdateSpecRejectsShrink(t *testing.T) {
	reg := twoNodeRegistry(t)
	store := storage.NewMemStore()
	m := NewManager(reg, store)

	vol, err := m.CreateVolume(context.Background(), "", types.VolumeSpec{ReplicaCount: 1, RequiredBytes: 2 << 20})
	require.NoError(t, err)

	err = m.UpdateSpec(context.Background(), vol.UUID, types.VolumeSpec{ReplicaCount: 1, RequiredBytes: 1 << 20})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestPublishedNexusChildMarkedOfflineWhenReplicaNodeDies(t *testing.T) {
	reg := registry.New()
	store := storage.NewMemStore()

	agentA := rpc.NewFakeAgent()
	nodeA := node.New("node-a", "node-a:10000", agentA, reg.Broker)
	_, err := nodeA.CreatePool(context.Background(), "pool-a", []string{"/dev/sdb"})
	require.NoError(t, err)
	nodeA.Sync(context.Background())
	reg.AddNode(nodeA)

	agentB := rpc.NewFakeAgent()
	nodeB := node.New("node-b", "node-b:10000", agentB, reg.Broker)
	_, err = nodeB.CreatePool(context.Background(), "pool-b", []string{"/dev/sdb"})
	require.NoError(t, err)
	nodeB.Sync(context.Background())
	reg.AddNode(nodeB)

	m := NewManager(reg, store)
	vol, err := m.CreateVolume(context.Background(), "", types.VolumeSpec{
		ReplicaCount:  2,
		RequiredBytes: 1 << 20,
		Protocol:      types.ShareNVMF,
	})
	require.NoError(t, err)

	_, err = m.Publish(context.Background(), vol.UUID, types.ShareNVMF)
	require.NoError(t, err)

	nx, ok := reg.GetNexus(vol.UUID)
	require.True(t, ok)
	hostAgent, remoteAgent, remoteNode := agentA, agentB, nodeB
	if nx.Node == "node-b" {
		hostAgent, remoteAgent, remoteNode = agentB, agentA, nodeA
	}

	// kill the node backing the non-host replica; three failed syncs cross
	// internal/node's offline threshold
	remoteAgent.Unavail = true
	for i := 0; i < 3; i++ {
		remoteNode.Sync(context.Background())
	}

	m.runFSA(context.Background(), vol.UUID)

	wires, err := hostAgent.ListNexus(context.Background())
	require.NoError(t, err)
	require.Len(t, wires, 1)

	var remoteRep types.Replica
	for _, r := range reg.GetReplicaSet(vol.UUID) {
		if r.Node == remoteNode.Name() {
			remoteRep = r
		}
	}
	require.NotEmpty(t, remoteRep.UUID)

	found := false
	for _, c := range wires[0].Children {
		if c.URI == remoteRep.URI {
			found = true
			assert.Equal(t, "faulted", c.State)
		}
	}
	assert.True(t, found, "expected the dead replica's child entry to remain present, marked faulted")
}

func TestDegradedVolumeHealsWhenPoolJoins(t *testing.T) {
	reg := registry.New()
	store := storage.NewMemStore()

	agent := rpc.NewFakeAgent()
	n := node.New("node-a", "node-a:10000", agent, reg.Broker)
	_, err := n.CreatePool(context.Background(), "pool-a", []string{"/dev/sdb"})
	require.NoError(t, err)
	n.Sync(context.Background())
	reg.AddNode(n)

	m := NewManager(reg, store)
	vol, err := m.CreateVolume(context.Background(), "", types.VolumeSpec{ReplicaCount: 2, RequiredBytes: 1 << 20})
	assert.Error(t, err) // can't satisfy 2 replicas with one pool
	_ = vol

	m.ImportVolume(types.Volume{
		UUID: "v-degraded",
		Spec: types.VolumeSpec{ReplicaCount: 2, RequiredBytes: 1 << 20},
		Status: types.VolumeStatus{
			State:    types.VolumeDegraded,
			Replicas: []string{"pool-a"},
		},
	})
	_, err = n.CreateReplica(context.Background(), "v-degraded", "pool-a", 1<<20)
	require.NoError(t, err)

	agent2 := rpc.NewFakeAgent()
	n2 := node.New("node-b", "node-b:10000", agent2, reg.Broker)
	_, err = n2.CreatePool(context.Background(), "pool-b", []string{"/dev/sdb"})
	require.NoError(t, err)
	n2.Sync(context.Background())
	reg.AddNode(n2)

	m.Start(context.Background())
	time.Sleep(50 * time.Millisecond)

	got, ok := m.GetVolume("v-degraded")
	require.True(t, ok)
	assert.Len(t, got.Status.Replicas, 2)
	assert.Equal(t, types.VolumeHealthy, got.Status.State)
}
