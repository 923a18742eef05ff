package cluster

import (
	"encoding/json"
	"testing"

	"github.com/hashicorp/raft"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openebs/moac/internal/storage"
	"github.com/openebs/moac/internal/types"
)

func applyCmd(t *testing.T, fsm *FSM, op string, data interface{}) interface{} {
	t.Helper()
	payload, err := json.Marshal(data)
	require.NoError(t, err)
	cmd := Command{Op: op, Data: payload}
	b, err := json.Marshal(cmd)
	require.NoError(t, err)
	return fsm.Apply(&raft.Log{Data: b})
}

func TestFSMAppliesPoolResourceCommands(t *testing.T) {
	store := storage.NewMemStore()
	fsm := NewFSM(store)

	res := applyCmd(t, fsm, OpCreatePoolResource, &types.PoolResource{Name: "pool-1", Node: "node-a", Disks: []string{"/dev/sdb"}})
	assert.Nil(t, res)

	got, err := store.GetPoolResource("pool-1")
	require.NoError(t, err)
	assert.Equal(t, "node-a", got.Node)

	res = applyCmd(t, fsm, OpDeletePoolResource, "pool-1")
	assert.Nil(t, res)
	_, err = store.GetPoolResource("pool-1")
	assert.Error(t, err)
}

func TestFSMAppliesVolumeCommands(t *testing.T) {
	store := storage.NewMemStore()
	fsm := NewFSM(store)

	v := &types.Volume{UUID: "vol-1", Spec: types.VolumeSpec{ReplicaCount: 1}}
	res := applyCmd(t, fsm, OpCreateVolume, v)
	assert.Nil(t, res)

	v.Status.State = types.VolumeHealthy
	res = applyCmd(t, fsm, OpUpdateVolume, v)
	assert.Nil(t, res)

	got, err := store.GetVolume("vol-1")
	require.NoError(t, err)
	assert.Equal(t, types.VolumeHealthy, got.Status.State)
}

func TestFSMRejectsUnknownCommand(t *testing.T) {
	store := storage.NewMemStore()
	fsm := NewFSM(store)

	res := applyCmd(t, fsm, "not_a_real_op", "x")
	err, ok := res.(error)
	require.True(t, ok)
	assert.Contains(t, err.Error(), "unknown command")
}

func TestFSMSnapshotAndRestore(t *testing.T) {
	store := storage.NewMemStore()
	fsm := NewFSM(store)
	require.NoError(t, store.CreatePoolResource(&types.PoolResource{Name: "pool-1", Node: "node-a"}))
	require.NoError(t, store.CreateVolume(&types.Volume{UUID: "vol-1"}))

	snap, err := fsm.Snapshot()
	require.NoError(t, err)

	restoreStore := storage.NewMemStore()
	restoreFSM := NewFSM(restoreStore)

	buf := &countingSink{}
	require.NoError(t, snap.Persist(buf))

	require.NoError(t, restoreFSM.Restore(buf.reader()))

	got, err := restoreStore.GetPoolResource("pool-1")
	require.NoError(t, err)
	assert.Equal(t, "node-a", got.Node)
}
