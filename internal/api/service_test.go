package api

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openebs/moac/internal/node"
	"github.com/openebs/moac/internal/registry"
	"github.com/openebs/moac/internal/rpc"
	"github.com/openebs/moac/internal/storage"
	"github.com/openebs/moac/internal/volume"
)

func newTestService(t *testing.T) *CSIService {
	t.Helper()
	reg := registry.New()
	agent := rpc.NewFakeAgent()
	n := node.New("node-a", "node-a:10000", agent, reg.Broker)
	_, err := n.CreatePool(context.Background(), "pool-a", []string{"/dev/sdb"})
	require.NoError(t, err)
	n.Sync(context.Background())
	reg.AddNode(n)

	store := storage.NewMemStore()
	mgr := volume.NewManager(reg, store)
	return NewCSIService(mgr, reg)
}

func TestCreateDestroyVolumeRoundTrip(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	createResp, err := svc.CreateVolume(ctx, &CreateVolumeRequest{ReplicaCount: 1, RequiredBytes: 1 << 20})
	require.NoError(t, err)
	assert.NotEmpty(t, createResp.Volume.UUID)
	assert.Equal(t, "Healthy", createResp.Volume.State)

	listResp, err := svc.ListVolumes(ctx, &ListVolumesRequest{})
	require.NoError(t, err)
	assert.Len(t, listResp.Volumes, 1)

	_, err = svc.DestroyVolume(ctx, &DestroyVolumeRequest{UUID: createResp.Volume.UUID})
	require.NoError(t, err)

	listResp, err = svc.ListVolumes(ctx, &ListVolumesRequest{})
	require.NoError(t, err)
	assert.Empty(t, listResp.Volumes)
}

func TestGetCapacityReflectsPool(t *testing.T) {
	svc := newTestService(t)
	resp, err := svc.GetCapacity(context.Background(), &GetCapacityRequest{})
	require.NoError(t, err)
	assert.Positive(t, resp.Bytes)
}
