package rpc

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// translate converts a raw error returned by grpc.ClientConn.Invoke into a
// *Error carrying MOAC's status Code (spec.md §7), so callers only ever
// switch on rpc.Code regardless of whether the failure came from the
// agent's handler or from the transport itself.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return NewError(Unavailable, "%v", err)
	}
	st, ok := status.FromError(err)
	if !ok {
		return NewError(Unavailable, "%v", err)
	}
	return NewError(fromGRPCCode(st.Code()), "%s", st.Message())
}

func fromGRPCCode(c codes.Code) Code {
	switch c {
	case codes.OK:
		return OK
	case codes.Canceled:
		return Cancelled
	case codes.InvalidArgument:
		return InvalidArgument
	case codes.NotFound:
		return NotFound
	case codes.AlreadyExists:
		return AlreadyExists
	case codes.FailedPrecondition:
		return FailedPrecondition
	case codes.ResourceExhausted:
		return ResourceExhausted
	case codes.Internal:
		return Internal
	case codes.Unavailable, codes.DeadlineExceeded:
		return Unavailable
	default:
		return Unknown
	}
}
