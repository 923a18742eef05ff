package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openebs/moac/internal/node"
	"github.com/openebs/moac/internal/rpc"
)

func TestChoosePoolsFiltersByCapacityAndMustNodes(t *testing.T) {
	r := New()
	defer r.Broker.Stop()

	ctx := context.Background()

	agentA := rpc.NewFakeAgent()
	_, err := agentA.CreatePool(ctx, "pool-a", []string{"/dev/sdb"})
	require.NoError(t, err)
	nodeA := node.New("node-a", "a:10124", agentA, r.Broker)
	nodeA.Sync(ctx)
	r.AddNode(nodeA)

	agentB := rpc.NewFakeAgent()
	_, err = agentB.CreatePool(ctx, "pool-b", []string{"/dev/sdc"})
	require.NoError(t, err)
	nodeB := node.New("node-b", "b:10124", agentB, r.Broker)
	nodeB.Sync(ctx)
	r.AddNode(nodeB)

	candidates := r.ChoosePools(1<<20, []string{"node-a"}, nil)
	require.Len(t, candidates, 1)
	assert.Equal(t, "pool-a", candidates[0].Name)

	candidates = r.ChoosePools(1<<60, nil, nil)
	assert.Empty(t, candidates)
}

func TestChoosePoolsAtMostOnePerNode(t *testing.T) {
	r := New()
	defer r.Broker.Stop()
	ctx := context.Background()

	agent := rpc.NewFakeAgent()
	_, err := agent.CreatePool(ctx, "pool-1", []string{"/dev/sdb"})
	require.NoError(t, err)
	_, err = agent.CreatePool(ctx, "pool-2", []string{"/dev/sdc"})
	require.NoError(t, err)
	n := node.New("node-a", "a:10124", agent, r.Broker)
	n.Sync(ctx)
	r.AddNode(n)

	candidates := r.ChoosePools(1<<20, nil, nil)
	assert.Len(t, candidates, 1)
}

func TestSubscribeEmitsSyncCatchUp(t *testing.T) {
	r := New()
	defer r.Broker.Stop()
	ctx := context.Background()

	agent := rpc.NewFakeAgent()
	_, err := agent.CreatePool(ctx, "pool-1", []string{"/dev/sdb"})
	require.NoError(t, err)
	n := node.New("node-a", "a:10124", agent, r.Broker)
	n.Sync(ctx)
	r.AddNode(n)

	stream := r.Subscribe(context.Background())
	defer stream.Close()

	seenNode, seenPool := false, false
	timeout := time.After(time.Second)
	for !seenNode || !seenPool {
		select {
		case ev := <-stream.Events():
			if ev.Ref == "node-a" {
				seenNode = true
			}
			if ev.Ref == "pool-1" {
				seenPool = true
			}
		case <-timeout:
			t.Fatal("timed out waiting for catch-up events")
		}
	}
}
