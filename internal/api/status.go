package api

import (
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/openebs/moac/internal/rpc"
	"github.com/openebs/moac/internal/volume"
)

// toStatus maps an internal error onto a conventional gRPC status so a
// real CSI sidecar sees codes.AlreadyExists/codes.ResourceExhausted/etc.
// instead of codes.Unknown, per spec.md §7.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, volume.ErrInvalidArgument) {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	var rerr *rpc.Error
	if errors.As(err, &rerr) {
		return status.Error(rerr.Code.GRPCCode(), rerr.Message)
	}
	return status.Error(codes.Internal, err.Error())
}
