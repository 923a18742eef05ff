package rpc

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeAgentCreatePoolIdempotence(t *testing.T) {
	ctx := context.Background()
	agent := NewFakeAgent()

	p, err := agent.CreatePool(ctx, "pool-1", []string{"/dev/sdb"})
	require.NoError(t, err)
	assert.Equal(t, "pool-1", p.Name)

	_, err = agent.CreatePool(ctx, "pool-1", []string{"/dev/sdb"})
	assert.True(t, IsAlreadyExists(err))
}

func TestFakeAgentDestroyMissingPool(t *testing.T) {
	ctx := context.Background()
	agent := NewFakeAgent()

	err := agent.DestroyPool(ctx, "does-not-exist")
	assert.True(t, IsNotFound(err))
}

func TestFakeAgentReplicaLifecycle(t *testing.T) {
	ctx := context.Background()
	agent := NewFakeAgent()

	_, err := agent.CreatePool(ctx, "pool-1", []string{"/dev/sdb"})
	require.NoError(t, err)

	r, err := agent.CreateReplica(ctx, "replica-1", "pool-1", 1<<20)
	require.NoError(t, err)
	assert.Equal(t, uint64(1<<20), r.Size)

	uri, err := agent.ShareReplica(ctx, "replica-1", "REPLICA_NVMF")
	require.NoError(t, err)
	assert.Contains(t, uri, "nvmf://")

	require.NoError(t, agent.DestroyReplica(ctx, "replica-1"))
	err = agent.DestroyReplica(ctx, "replica-1")
	assert.True(t, IsNotFound(err))
}

func TestFakeAgentResourceExhausted(t *testing.T) {
	ctx := context.Background()
	agent := NewFakeAgent()

	_, err := agent.CreatePool(ctx, "pool-1", []string{"/dev/sdb"})
	require.NoError(t, err)

	_, err = agent.CreateReplica(ctx, "replica-1", "pool-1", 1<<40)
	assert.Equal(t, ResourceExhausted, CodeOf(err))
}

func TestFakeAgentUnavailable(t *testing.T) {
	ctx := context.Background()
	agent := NewFakeAgent()
	agent.Unavail = true

	_, err := agent.ListPools(ctx)
	assert.True(t, IsUnavailable(err))
}

func TestFakeAgentNexusChildOperations(t *testing.T) {
	ctx := context.Background()
	agent := NewFakeAgent()

	n, err := agent.CreateNexus(ctx, "nexus-1", 1<<20, []string{"bdev://replica-a"})
	require.NoError(t, err)
	assert.Len(t, n.Children, 1)

	n, err = agent.ChildOperation(ctx, "nexus-1", "bdev://replica-b", ChildOpAdd)
	require.NoError(t, err)
	assert.Len(t, n.Children, 2)

	n, err = agent.ChildOperation(ctx, "nexus-1", "bdev://replica-a", ChildOpRemove)
	require.NoError(t, err)
	assert.Len(t, n.Children, 1)
	assert.Equal(t, "bdev://replica-b", n.Children[0].URI)
}

func TestCodeMapping(t *testing.T) {
	assert.Equal(t, OK, CodeOf(nil))
	assert.Equal(t, Unavailable, CodeOf(assertPlainError{}))
}

type assertPlainError struct{}

func (assertPlainError) Error() string { return "boom" }
