// Package api exposes the CSI-adjacent control surface (spec.md §6's
// "CSI controller surface (external adapter)") over the same hand-rolled
// JSON-over-gRPC transport internal/rpc uses for the agent connection —
// the spec leaves the CSI wire format unspecified, so this is MOAC's own
// choice rather than a translation of anything upstream.
package api

import "github.com/openebs/moac/internal/types"

type CreateVolumeRequest struct {
	UUID           string
	ReplicaCount   int
	PreferredNodes []string
	RequiredNodes  []string
	RequiredBytes  uint64
	LimitBytes     uint64
	Protocol       string
}

type CreateVolumeResponse struct {
	Volume VolumeWire
}

type DestroyVolumeRequest struct {
	UUID string
}

type DestroyVolumeResponse struct{}

type PublishRequest struct {
	UUID     string
	Protocol string
}

type PublishResponse struct {
	URI string
}

type UnpublishRequest struct {
	UUID string
}

type UnpublishResponse struct{}

type ListVolumesRequest struct{}

type ListVolumesResponse struct {
	Volumes []VolumeWire
}

type GetCapacityRequest struct {
	Node string
}

type GetCapacityResponse struct {
	Bytes uint64
}

// VolumeWire is the CSI-surface projection of types.Volume.
type VolumeWire struct {
	UUID                 string
	ReplicaCount         int
	PreferredNodes       []string
	RequiredNodes        []string
	RequiredBytes        uint64
	LimitBytes           uint64
	Protocol             string
	State                string
	Size                 uint64
	PublishedOn          string
	Replicas             []string
	Nexus                string
	LastTransitionReason string
}

func toVolumeWire(v types.Volume) VolumeWire {
	return VolumeWire{
		UUID:                 v.UUID,
		ReplicaCount:         v.Spec.ReplicaCount,
		PreferredNodes:       v.Spec.PreferredNodes,
		RequiredNodes:        v.Spec.RequiredNodes,
		RequiredBytes:        v.Spec.RequiredBytes,
		LimitBytes:           v.Spec.LimitBytes,
		Protocol:             string(v.Spec.Protocol),
		State:                string(v.Status.State),
		Size:                 v.Status.Size,
		PublishedOn:          v.Status.PublishedOn,
		Replicas:             v.Status.Replicas,
		Nexus:                v.Status.Nexus,
		LastTransitionReason: v.Status.LastTransitionReason,
	}
}

func fromCreateRequest(req CreateVolumeRequest) types.VolumeSpec {
	return types.VolumeSpec{
		ReplicaCount:   req.ReplicaCount,
		PreferredNodes: req.PreferredNodes,
		RequiredNodes:  req.RequiredNodes,
		RequiredBytes:  req.RequiredBytes,
		LimitBytes:     req.LimitBytes,
		Protocol:       types.ShareProtocol(req.Protocol),
	}
}
