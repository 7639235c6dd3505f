// Package status provides errors that carry a gRPC status code while keeping
// an identity usable with errors.Is.
package status

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Sentinels for the tracking subsystem's failure taxonomy.
var (
	ErrPermissionDenied    = errors.New("permission denied")
	ErrResourceUnavailable = errors.New("resource unavailable")
	ErrLaunchFailed        = errors.New("launch failed")
	ErrCorruptedCounter    = errors.New("corrupted counter")
	ErrCounterMissing      = errors.New("counter missing")
)

type statusError struct {
	code codes.Code
	err  error
}

func (e *statusError) Error() string {
	return e.GRPCStatus().String()
}

func (e *statusError) Unwrap() error {
	return e.err
}

func (e *statusError) GRPCStatus() *status.Status {
	return status.New(e.code, e.err.Error())
}

// WrapWithCode attaches a code to err without hiding it from errors.Is.
func WrapWithCode(err error, code codes.Code) error {
	if err == nil {
		return nil
	}
	return &statusError{code: code, err: err}
}

func newf(code codes.Code, sentinel error, format string, a ...any) error {
	msg := fmt.Sprintf(format, a...)
	if sentinel == nil {
		return &statusError{code: code, err: errors.New(msg)}
	}
	return &statusError{code: code, err: fmt.Errorf("%w: %s", sentinel, msg)}
}

// Code returns the status code of err, codes.OK for nil and codes.Unknown for
// errors without one.
func Code(err error) codes.Code {
	if err == nil {
		return codes.OK
	}
	var se interface{ GRPCStatus() *status.Status }
	if errors.As(err, &se) {
		return se.GRPCStatus().Code()
	}
	return codes.Unknown
}

// Message returns the status message without the "rpc error" decoration.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.err.Error()
	}
	if s, ok := status.FromError(err); ok {
		return s.Message()
	}
	return err.Error()
}

func PermissionDeniedErrorf(format string, a ...any) error {
	return newf(codes.PermissionDenied, ErrPermissionDenied, format, a...)
}
func IsPermissionDeniedError(err error) bool {
	return Code(err) == codes.PermissionDenied
}

func ResourceUnavailableErrorf(format string, a ...any) error {
	return newf(codes.Unavailable, ErrResourceUnavailable, format, a...)
}
func IsResourceUnavailableError(err error) bool {
	return Code(err) == codes.Unavailable
}

func LaunchFailedErrorf(format string, a ...any) error {
	return newf(codes.FailedPrecondition, ErrLaunchFailed, format, a...)
}
func IsLaunchFailedError(err error) bool {
	return errors.Is(err, ErrLaunchFailed)
}

func CorruptedCounterErrorf(format string, a ...any) error {
	return newf(codes.DataLoss, ErrCorruptedCounter, format, a...)
}
func IsCorruptedCounterError(err error) bool {
	return Code(err) == codes.DataLoss
}

func CounterMissingErrorf(format string, a ...any) error {
	return newf(codes.NotFound, ErrCounterMissing, format, a...)
}

func NotFoundErrorf(format string, a ...any) error {
	return newf(codes.NotFound, nil, format, a...)
}
func IsNotFoundError(err error) bool {
	return Code(err) == codes.NotFound
}

func InvalidArgumentErrorf(format string, a ...any) error {
	return newf(codes.InvalidArgument, nil, format, a...)
}
func IsInvalidArgumentError(err error) bool {
	return Code(err) == codes.InvalidArgument
}

func FailedPreconditionErrorf(format string, a ...any) error {
	return newf(codes.FailedPrecondition, nil, format, a...)
}

func InternalErrorf(format string, a ...any) error {
	return newf(codes.Internal, nil, format, a...)
}
func IsInternalError(err error) bool {
	return Code(err) == codes.Internal
}

func UnimplementedErrorf(format string, a ...any) error {
	return newf(codes.Unimplemented, nil, format, a...)
}

func CanceledErrorf(format string, a ...any) error {
	return newf(codes.Canceled, nil, format, a...)
}
