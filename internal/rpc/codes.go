package rpc

import "google.golang.org/grpc/codes"

// Code is MOAC's status code enumeration, modeled on the agent's RPC status
// enum (spec.md §7).
type Code int

const (
	OK Code = iota
	Cancelled
	Unknown
	InvalidArgument
	NotFound
	AlreadyExists
	FailedPrecondition
	ResourceExhausted
	Internal
	Unavailable
)

func (c Code) String() string {
	switch c {
	case OK:
		return "OK"
	case Cancelled:
		return "CANCELLED"
	case Unknown:
		return "UNKNOWN"
	case InvalidArgument:
		return "INVALID_ARGUMENT"
	case NotFound:
		return "NOT_FOUND"
	case AlreadyExists:
		return "ALREADY_EXISTS"
	case FailedPrecondition:
		return "FAILED_PRECONDITION"
	case ResourceExhausted:
		return "RESOURCE_EXHAUSTED"
	case Internal:
		return "INTERNAL"
	case Unavailable:
		return "UNAVAILABLE"
	default:
		return "UNKNOWN"
	}
}

// GRPCCode maps a Code onto the conventional google.golang.org/grpc/codes
// value, used at the internal/api boundary so external CSI callers see
// standard gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	case OK:
		return codes.OK
	case Cancelled:
		return codes.Canceled
	case InvalidArgument:
		return codes.InvalidArgument
	case NotFound:
		return codes.NotFound
	case AlreadyExists:
		return codes.AlreadyExists
	case FailedPrecondition:
		return codes.FailedPrecondition
	case ResourceExhausted:
		return codes.ResourceExhausted
	case Internal:
		return codes.Internal
	case Unavailable:
		return codes.Unavailable
	default:
		return codes.Unknown
	}
}
