package rpc

import (
	"errors"
	"fmt"
)

// Error is a status-coded agent RPC error (spec.md §7). All Handle methods
// return *Error (possibly wrapped) on failure so callers can switch on Code.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewError builds an *Error.
func NewError(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the Code from err. Errors that did not originate from an
// agent call (e.g. a raw transport/dial failure) are treated as UNAVAILABLE,
// since that is how the Node sync loop needs to handle them (spec.md §7).
func CodeOf(err error) Code {
	if err == nil {
		return OK
	}
	var rerr *Error
	if errors.As(err, &rerr) {
		return rerr.Code
	}
	return Unavailable
}

// IsAlreadyExists reports whether err is an ALREADY_EXISTS status.
func IsAlreadyExists(err error) bool { return CodeOf(err) == AlreadyExists }

// IsNotFound reports whether err is a NOT_FOUND status.
func IsNotFound(err error) bool { return CodeOf(err) == NotFound }

// IsUnavailable reports whether err is an UNAVAILABLE (transport) status.
func IsUnavailable(err error) bool { return CodeOf(err) == Unavailable }
