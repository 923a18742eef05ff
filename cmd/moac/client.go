package main

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/openebs/moac/internal/api"
	_ "github.com/openebs/moac/internal/rpc" // registers the moac-json codec
)

// csiClient is a thin hand-rolled stub for internal/api.CSIService,
// mirroring the teacher's pkg/client wrapper but over the JSON codec
// instead of generated protobuf stubs.
type csiClient struct {
	conn *grpc.ClientConn
}

func dialCSI(addr string) (*csiClient, error) {
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype("moac-json")),
	)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return &csiClient{conn: conn}, nil
}

func (c *csiClient) Close() error { return c.conn.Close() }

func (c *csiClient) invoke(method string, req, resp interface{}) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return c.conn.Invoke(ctx, "/moac.csi.v1.VolumeService/"+method, req, resp)
}

func (c *csiClient) CreateVolume(req *api.CreateVolumeRequest) (*api.CreateVolumeResponse, error) {
	resp := new(api.CreateVolumeResponse)
	return resp, c.invoke("CreateVolume", req, resp)
}

func (c *csiClient) DestroyVolume(req *api.DestroyVolumeRequest) (*api.DestroyVolumeResponse, error) {
	resp := new(api.DestroyVolumeResponse)
	return resp, c.invoke("DestroyVolume", req, resp)
}

func (c *csiClient) Publish(req *api.PublishRequest) (*api.PublishResponse, error) {
	resp := new(api.PublishResponse)
	return resp, c.invoke("Publish", req, resp)
}

func (c *csiClient) Unpublish(req *api.UnpublishRequest) (*api.UnpublishResponse, error) {
	resp := new(api.UnpublishResponse)
	return resp, c.invoke("Unpublish", req, resp)
}

func (c *csiClient) ListVolumes(req *api.ListVolumesRequest) (*api.ListVolumesResponse, error) {
	resp := new(api.ListVolumesResponse)
	return resp, c.invoke("ListVolumes", req, resp)
}
