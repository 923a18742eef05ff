package api

import (
	"context"
	"time"

	"google.golang.org/grpc"

	"github.com/openebs/moac/internal/log"
)

// LoggingInterceptor logs every CSI-surface call with its outcome and
// latency, generalizing the teacher's per-method gRPC interceptor
// (pkg/api/interceptor.go) from an authorization check into request
// logging, since MOAC's CSI surface has no read-only/write split to
// enforce.
func LoggingInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		evt := log.Logger.Info()
		if err != nil {
			evt = log.Logger.Error().Err(err)
		}
		evt.Str("method", info.FullMethod).Dur("duration", time.Since(start)).Msg("csi call")
		return resp, err
	}
}
