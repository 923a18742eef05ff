package pooloperator

import (
	"context"
	"os"
	"path/filepath"
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

func writeResource(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0644))
}

func TestOperatorCreatesPoolFromResourceFile(t *testing.T) {
	dir := t.TempDir()
	reg := registry.New()
	store := storage.NewMemStore()

	agent := rpc.NewFakeAgent()
	n := node.New("node-a", "node-a:10000", agent, reg.Broker)
	n.Sync(context.Background())
	reg.AddNode(n)

	op, err := New(reg, store, store, dir)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	writeResource(t, dir, "pool-1.yaml", "name: pool-1\nnode: node-a\ndisks:\n  - /dev/sdb\n")

	go op.Start(ctx)
	<-ctx.Done()

	pools := n.Pools()
	require.Len(t, pools, 1)
	assert.Equal(t, "pool-1", pools[0].Name)

	status, ok := op.Status("pool-1")
	require.True(t, ok)
	assert.Equal(t, types.PoolOnline, status.State)
}

func TestCreateRejectsRelativeDiskPath(t *testing.T) {
	dir := t.TempDir()
	reg := registry.New()
	store := storage.NewMemStore()
	op, err := New(reg, store, store, dir)
	require.NoError(t, err)

	err = op.create(context.Background(), types.PoolResource{Name: "p1", Node: "node-a", Disks: []string{"sdb"}})
	require.NoError(t, err)

	status, ok := op.Status("p1")
	require.True(t, ok)
	assert.Equal(t, types.PoolPending, status.State)
}

func TestCreatePendingWhenNodeUnknown(t *testing.T) {
	dir := t.TempDir()
	reg := registry.New()
	store := storage.NewMemStore()
	op, err := New(reg, store, store, dir)
	require.NoError(t, err)

	err = op.create(context.Background(), types.PoolResource{Name: "p1", Node: "missing-node", Disks: []string{"/dev/sdb"}})
	require.NoError(t, err)

	status, ok := op.Status("p1")
	require.True(t, ok)
	assert.Equal(t, types.PoolPending, status.State)
}

func TestSyncNodeDestroysForeignPool(t *testing.T) {
	dir := t.TempDir()
	reg := registry.New()
	store := storage.NewMemStore()

	agent := rpc.NewFakeAgent()
	n := node.New("node-a", "node-a:10000", agent, reg.Broker)
	_, err := n.CreatePool(context.Background(), "ghost", []string{"/dev/sdb"})
	require.NoError(t, err)
	n.Sync(context.Background())
	reg.AddNode(n)

	op, err := New(reg, store, store, dir)
	require.NoError(t, err)

	op.syncNode(context.Background(), "node-a")

	assert.Empty(t, n.Pools())
}

func TestModifyRejectsDiskChange(t *testing.T) {
	dir := t.TempDir()
	reg := registry.New()
	store := storage.NewMemStore()
	op, err := New(reg, store, store, dir)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, op.create(ctx, types.PoolResource{Name: "p1", Node: "node-a", Disks: []string{"/dev/sdb"}}))
	require.NoError(t, op.modify(ctx, types.PoolResource{Name: "p1", Node: "node-a", Disks: []string{"/dev/sdc"}}))

	op.mu.RLock()
	got := op.resources["p1"]
	op.mu.RUnlock()
	assert.Equal(t, []string{"/dev/sdb"}, got.Disks)
}
