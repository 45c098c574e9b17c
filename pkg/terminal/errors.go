package terminal

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrNoOrderID is returned by PendingPayment.OrderID when the payment finished
// without the service assigning an order ID.
var ErrNoOrderID = errors.New("payment finished without an order id")

// CallError is a transport-level failure of one RPC. Code is the gRPC status
// code (DeadlineExceeded, Unavailable, Unauthenticated, ...).
type CallError struct {
	Method string
	Code   codes.Code
	Err    error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("%s failed (%s): %v", e.Method, e.Code, e.Err)
}

func (e *CallError) Unwrap() error { return e.Err }

// Is lets errors.Is match context.DeadlineExceeded and context.Canceled
// against the gRPC code.
func (e *CallError) Is(target error) bool {
	switch target {
	case context.DeadlineExceeded:
		return e.Code == codes.DeadlineExceeded
	case context.Canceled:
		return e.Code == codes.Canceled
	}
	return false
}

func newCallError(method string, err error) *CallError {
	code := status.Code(err)
	if code == codes.Unknown {
		if c := status.FromContextError(err).Code(); c != codes.Unknown {
			code = c
		}
	}
	return &CallError{Method: method, Code: code, Err: err}
}

// Code returns the gRPC status code of err, or codes.OK for nil.
func Code(err error) codes.Code {
	if err == nil {
		return codes.OK
	}
	var ce *CallError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return status.Code(err)
}

// IsDeadlineExceeded reports whether err is a call that ran past its deadline.
func IsDeadlineExceeded(err error) bool {
	return Code(err) == codes.DeadlineExceeded
}

// IsUnavailable reports whether the service could not be reached.
func IsUnavailable(err error) bool {
	return Code(err) == codes.Unavailable
}
