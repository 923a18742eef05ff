package api

import (
	"context"

	"github.com/openebs/moac/internal/registry"
	"github.com/openebs/moac/internal/types"
	"github.com/openebs/moac/internal/volume"
)

// CSIService implements the CSI-adjacent operations spec.md §6 names:
// createVolume, destroyVolume, publish, unpublish, list, getCapacity.
type CSIService struct {
	volumes *volume.Manager
	reg     *registry.Registry
}

func NewCSIService(volumes *volume.Manager, reg *registry.Registry) *CSIService {
	return &CSIService{volumes: volumes, reg: reg}
}

func (s *CSIService) CreateVolume(ctx context.Context, req *CreateVolumeRequest) (*CreateVolumeResponse, error) {
	v, err := s.volumes.CreateVolume(ctx, req.UUID, fromCreateRequest(*req))
	if err != nil {
		return nil, toStatus(err)
	}
	return &CreateVolumeResponse{Volume: toVolumeWire(v)}, nil
}

func (s *CSIService) DestroyVolume(ctx context.Context, req *DestroyVolumeRequest) (*DestroyVolumeResponse, error) {
	if err := s.volumes.DestroyVolume(ctx, req.UUID); err != nil {
		return nil, toStatus(err)
	}
	return &DestroyVolumeResponse{}, nil
}

func (s *CSIService) Publish(ctx context.Context, req *PublishRequest) (*PublishResponse, error) {
	uri, err := s.volumes.Publish(ctx, req.UUID, types.ShareProtocol(req.Protocol))
	if err != nil {
		return nil, toStatus(err)
	}
	return &PublishResponse{URI: uri}, nil
}

func (s *CSIService) Unpublish(ctx context.Context, req *UnpublishRequest) (*UnpublishResponse, error) {
	if err := s.volumes.Unpublish(ctx, req.UUID); err != nil {
		return nil, toStatus(err)
	}
	return &UnpublishResponse{}, nil
}

func (s *CSIService) ListVolumes(ctx context.Context, _ *ListVolumesRequest) (*ListVolumesResponse, error) {
	vols := s.volumes.ListVolumes()
	out := make([]VolumeWire, 0, len(vols))
	for _, v := range vols {
		out = append(out, toVolumeWire(v))
	}
	return &ListVolumesResponse{Volumes: out}, nil
}

func (s *CSIService) GetCapacity(ctx context.Context, req *GetCapacityRequest) (*GetCapacityResponse, error) {
	return &GetCapacityResponse{Bytes: s.reg.GetCapacity(req.Node)}, nil
}
