package api

import (
	"context"
	"fmt"
	"net"

	"google.golang.org/grpc"

	"github.com/openebs/moac/internal/log"
)

func createVolumeHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	req := new(CreateVolumeRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	s := srv.(*CSIService)
	if interceptor == nil {
		return s.CreateVolume(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodCreateVolume}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return s.CreateVolume(ctx, req.(*CreateVolumeRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func destroyVolumeHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	req := new(DestroyVolumeRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	s := srv.(*CSIService)
	if interceptor == nil {
		return s.DestroyVolume(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodDestroyVolume}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return s.DestroyVolume(ctx, req.(*DestroyVolumeRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func publishHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	req := new(PublishRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	s := srv.(*CSIService)
	if interceptor == nil {
		return s.Publish(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodPublish}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return s.Publish(ctx, req.(*PublishRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func unpublishHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	req := new(UnpublishRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	s := srv.(*CSIService)
	if interceptor == nil {
		return s.Unpublish(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodUnpublish}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return s.Unpublish(ctx, req.(*UnpublishRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func listVolumesHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	req := new(ListVolumesRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	s := srv.(*CSIService)
	if interceptor == nil {
		return s.ListVolumes(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodListVolumes}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return s.ListVolumes(ctx, req.(*ListVolumesRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func getCapacityHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	req := new(GetCapacityRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	s := srv.(*CSIService)
	if interceptor == nil {
		return s.GetCapacity(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodGetCapacity}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return s.GetCapacity(ctx, req.(*GetCapacityRequest))
	}
	return interceptor(ctx, req, info, handler)
}

const (
	methodCreateVolume  = "/moac.csi.v1.VolumeService/CreateVolume"
	methodDestroyVolume = "/moac.csi.v1.VolumeService/DestroyVolume"
	methodPublish       = "/moac.csi.v1.VolumeService/Publish"
	methodUnpublish     = "/moac.csi.v1.VolumeService/Unpublish"
	methodListVolumes   = "/moac.csi.v1.VolumeService/ListVolumes"
	methodGetCapacity   = "/moac.csi.v1.VolumeService/GetCapacity"
)

// serviceDesc wires CSIService's methods into a grpc.Server without
// generated stubs, the same JSON-codec approach internal/rpc uses on the
// agent-client side (see internal/rpc/codec.go).
var serviceDesc = grpc.ServiceDesc{
	ServiceName: "moac.csi.v1.VolumeService",
	HandlerType: (*CSIService)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CreateVolume", Handler: createVolumeHandler},
		{MethodName: "DestroyVolume", Handler: destroyVolumeHandler},
		{MethodName: "Publish", Handler: publishHandler},
		{MethodName: "Unpublish", Handler: unpublishHandler},
		{MethodName: "ListVolumes", Handler: listVolumesHandler},
		{MethodName: "GetCapacity", Handler: getCapacityHandler},
	},
}

// Server hosts the CSI-adjacent gRPC surface.
type Server struct {
	grpcServer *grpc.Server
	svc        *CSIService
}

// NewServer creates a Server with request logging installed.
func NewServer(svc *CSIService) *Server {
	s := grpc.NewServer(grpc.UnaryInterceptor(LoggingInterceptor()))
	s.RegisterService(&serviceDesc, svc)
	return &Server{grpcServer: s, svc: svc}
}

// Serve listens on addr and blocks until the listener or server stops.
func (s *Server) Serve(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	log.Logger.Info().Str("addr", addr).Msg("csi api server listening")
	return s.grpcServer.Serve(lis)
}

// Stop gracefully shuts the server down.
func (s *Server) Stop() {
	s.grpcServer.GracefulStop()
}
