package node

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openebs/moac/internal/events"
	"github.com/openebs/moac/internal/rpc"
	"github.com/openebs/moac/internal/types"
)

func TestNodeSyncPicksUpAgentState(t *testing.T) {
	agent := rpc.NewFakeAgent()
	ctx := context.Background()
	_, err := agent.CreatePool(ctx, "pool-1", []string{"/dev/sdb"})
	require.NoError(t, err)

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()
	sub := broker.Subscribe()

	n := New("node-1", "agent-1:10124", agent, broker)
	n.Sync(ctx)

	assert.Equal(t, types.NodeOnline, n.Info().State)
	pools := n.Pools()
	require.Len(t, pools, 1)
	assert.Equal(t, "pool-1", pools[0].Name)
	assert.Equal(t, "node-1", pools[0].Node)

	select {
	case ev := <-sub:
		assert.Equal(t, events.KindNode, ev.Kind)
	case <-time.After(time.Second):
		t.Fatal("expected node-online event")
	}
}

func TestNodeGoesOfflineAfterRepeatedFailures(t *testing.T) {
	agent := rpc.NewFakeAgent()
	agent.Unavail = true
	ctx := context.Background()

	n := New("node-1", "agent-1:10124", agent, nil)
	for i := 0; i < offlineThreshold; i++ {
		n.Sync(ctx)
	}

	assert.Equal(t, types.NodeOffline, n.Info().State)
}

func TestNodeGoingOfflineMarksPoolsAndReplicasOffline(t *testing.T) {
	agent := rpc.NewFakeAgent()
	ctx := context.Background()
	_, err := agent.CreatePool(ctx, "pool-1", []string{"/dev/sdb"})
	require.NoError(t, err)
	_, err = agent.CreateReplica(ctx, "vol-1", "pool-1", 1<<20)
	require.NoError(t, err)

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()
	sub := broker.Subscribe()

	n := New("node-1", "agent-1:10124", agent, broker)
	n.Sync(ctx)
	drainUntil(t, sub, events.KindReplica)

	agent.Unavail = true
	for i := 0; i < offlineThreshold; i++ {
		n.Sync(ctx)
	}

	assert.Equal(t, types.NodeOffline, n.Info().State)
	pools := n.Pools()
	require.Len(t, pools, 1)
	assert.Equal(t, types.PoolOffline, pools[0].State)
	assert.NotEmpty(t, pools[0].Reason)

	replicas := n.Replicas()
	require.Len(t, replicas, 1)
	assert.Equal(t, types.ReplicaOffline, replicas[0].State)

	seenPoolMod, seenReplicaMod := false, false
	for i := 0; i < 8; i++ {
		select {
		case ev := <-sub:
			switch ev.Kind {
			case events.KindPool:
				seenPoolMod = true
			case events.KindReplica:
				seenReplicaMod = true
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for offline-propagation events")
		}
		if seenPoolMod && seenReplicaMod {
			break
		}
	}
	assert.True(t, seenPoolMod, "expected a pool:mod event for the dead node's pool")
	assert.True(t, seenReplicaMod, "expected a replica:mod event for the dead node's replica")
}

func drainUntil(t *testing.T, sub <-chan events.Event, kind events.Kind) {
	t.Helper()
	for i := 0; i < 8; i++ {
		select {
		case ev := <-sub:
			if ev.Kind == kind {
				return
			}
		case <-time.After(time.Second):
			t.Fatal("timed out draining events")
		}
	}
}

func TestNodeCreatePoolIsIdempotent(t *testing.T) {
	agent := rpc.NewFakeAgent()
	ctx := context.Background()
	n := New("node-1", "agent-1:10124", agent, nil)

	p, err := n.CreatePool(ctx, "pool-1", []string{"/dev/sdb"})
	require.NoError(t, err)
	assert.Equal(t, "pool-1", p.Name)

	// a second create against an already-existing pool must not surface
	// ALREADY_EXISTS to the caller (spec.md §7 idempotence rule)
	_, err = n.CreatePool(ctx, "pool-1", []string{"/dev/sdb"})
	assert.NoError(t, err)
}

func TestNodeDestroyReplicaIsIdempotent(t *testing.T) {
	agent := rpc.NewFakeAgent()
	ctx := context.Background()
	n := New("node-1", "agent-1:10124", agent, nil)

	err := n.DestroyReplica(ctx, "does-not-exist")
	assert.NoError(t, err)
}
