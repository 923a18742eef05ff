package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openebs/moac/internal/types"
)

func TestMemStorePoolResourceCRUD(t *testing.T) {
	s := NewMemStore()

	require.NoError(t, s.CreatePoolResource(&types.PoolResource{Name: "pool-1", Node: "node-a", Disks: []string{"/dev/sdb"}}))

	got, err := s.GetPoolResource("pool-1")
	require.NoError(t, err)
	assert.Equal(t, "node-a", got.Node)

	list, err := s.ListPoolResources()
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, s.DeletePoolResource("pool-1"))
	_, err = s.GetPoolResource("pool-1")
	assert.Error(t, err)
}

func TestMemStoreVolumeUpsert(t *testing.T) {
	s := NewMemStore()

	v := &types.Volume{UUID: "vol-1", Spec: types.VolumeSpec{ReplicaCount: 2}}
	require.NoError(t, s.CreateVolume(v))

	v.Status.State = types.VolumeHealthy
	require.NoError(t, s.UpdateVolume(v))

	got, err := s.GetVolume("vol-1")
	require.NoError(t, err)
	assert.Equal(t, types.VolumeHealthy, got.Status.State)
}
