// Package errors provides structured application errors with stable codes.
// Codes travel over gRPC as google.rpc.ErrorInfo details so the control CLI and the
// daemon agree on failure reasons.
package errors

import (
	"errors"
	"fmt"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Domain is the ErrorInfo domain attached to every status we emit.
const Domain = "flashguard"

// Code identifies a failure class.
type Code int

const (
	Unknown Code = iota
	Internal
	InvalidArgument
	NotFound
	Unavailable
	Timeout
	Cancelled
	CaptureFailed
	CaptureDenied
	StoreReadFailed
	StoreWriteFailed
	StatUnknown
	ActionUnknown
	ConfigInvalid
)

var codeNames = [...]string{
	Unknown:          "UNKNOWN",
	Internal:         "INTERNAL",
	InvalidArgument:  "INVALID_ARGUMENT",
	NotFound:         "NOT_FOUND",
	Unavailable:      "UNAVAILABLE",
	Timeout:          "TIMEOUT",
	Cancelled:        "CANCELLED",
	CaptureFailed:    "CAPTURE_FAILED",
	CaptureDenied:    "CAPTURE_DENIED",
	StoreReadFailed:  "STORE_READ_FAILED",
	StoreWriteFailed: "STORE_WRITE_FAILED",
	StatUnknown:      "STAT_UNKNOWN",
	ActionUnknown:    "ACTION_UNKNOWN",
	ConfigInvalid:    "CONFIG_INVALID",
}

func (c Code) String() string {
	if c >= 0 && int(c) < len(codeNames) {
		return codeNames[c]
	}
	return codeNames[Unknown]
}

// parseCode is the inverse of String.
func parseCode(s string) (Code, bool) {
	for i, name := range codeNames {
		if name == s {
			return Code(i), true
		}
	}
	return Unknown, false
}

// grpcCodeMap maps application codes to gRPC status codes.
var grpcCodeMap = map[Code]codes.Code{
	Unknown:          codes.Unknown,
	Internal:         codes.Internal,
	InvalidArgument:  codes.InvalidArgument,
	NotFound:         codes.NotFound,
	Unavailable:      codes.Unavailable,
	Timeout:          codes.DeadlineExceeded,
	Cancelled:        codes.Canceled,
	CaptureFailed:    codes.Internal,
	CaptureDenied:    codes.PermissionDenied,
	StoreReadFailed:  codes.Unavailable,
	StoreWriteFailed: codes.Unavailable,
	StatUnknown:      codes.InvalidArgument,
	ActionUnknown:    codes.Unimplemented,
	ConfigInvalid:    codes.InvalidArgument,
}

// AppError is the base error type with structured error code and metadata.
type AppError struct {
	Code     Code
	Message  string
	Metadata map[string]string
	Cause    error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	s := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if len(e.Metadata) > 0 {
		s += fmt.Sprintf(" %v", e.Metadata)
	}
	if e.Cause != nil {
		s += fmt.Sprintf(" caused by: %v", e.Cause)
	}
	return s
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *AppError) Unwrap() error { return e.Cause }

// GRPCCode returns the corresponding gRPC status code.
func (e *AppError) GRPCCode() codes.Code {
	if c, ok := grpcCodeMap[e.Code]; ok {
		return c
	}
	return codes.Unknown
}

// GRPCStatus returns a gRPC status with an ErrorInfo detail attached.
// grpc-go calls this when the error is returned from a handler.
func (e *AppError) GRPCStatus() *status.Status {
	st := status.New(e.GRPCCode(), e.Error())
	info := &errdetails.ErrorInfo{Reason: e.Code.String(), Domain: Domain, Metadata: e.Metadata}
	if withDetails, err := st.WithDetails(info); err == nil {
		return withDetails
	}
	return st
}

// New creates a new AppError with the given code and message.
func New(code Code, msg string) *AppError {
	return &AppError{Code: code, Message: msg}
}

// Newf creates a new AppError with formatted message.
func Newf(code Code, format string, args ...any) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an existing error with an AppError.
func Wrap(err error, code Code, msg string) *AppError {
	return &AppError{Code: code, Message: msg, Cause: err}
}

// Wrapf wraps an existing error with formatted message.
func Wrapf(err error, code Code, format string, args ...any) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...), Cause: err}
}

// WithMetadata adds metadata to an AppError.
func (e *AppError) WithMetadata(key, value string) *AppError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
	return e
}

// FromGRPCError extracts an AppError from a gRPC error.
func FromGRPCError(err error) *AppError {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return &AppError{Code: Unknown, Message: err.Error(), Cause: err}
	}

	for _, detail := range st.Details() {
		info, ok := detail.(*errdetails.ErrorInfo)
		if !ok || info.GetDomain() != Domain {
			continue
		}
		if code, ok := parseCode(info.GetReason()); ok {
			return &AppError{Code: code, Message: st.Message(), Metadata: info.GetMetadata(), Cause: err}
		}
	}

	return &AppError{Code: grpcToCode(st.Code()), Message: st.Message(), Cause: err}
}

// grpcToCode maps gRPC codes back to application codes (best effort).
func grpcToCode(c codes.Code) Code {
	switch c {
	case codes.InvalidArgument:
		return InvalidArgument
	case codes.NotFound:
		return NotFound
	case codes.Unavailable:
		return Unavailable
	case codes.DeadlineExceeded:
		return Timeout
	case codes.Canceled:
		return Cancelled
	case codes.Internal:
		return Internal
	case codes.PermissionDenied:
		return CaptureDenied
	case codes.Unimplemented:
		return ActionUnknown
	default:
		return Unknown
	}
}

// CodeOf returns the code of the first AppError in err's chain.
func CodeOf(err error) Code {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return Unknown
}

// IsCode checks if an error chain carries a specific error code.
func IsCode(err error, code Code) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

// IsRetryable returns true if the error is potentially retryable.
func IsRetryable(err error) bool {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return false
	}
	switch appErr.Code {
	case Unavailable, Timeout, StoreReadFailed, StoreWriteFailed:
		return true
	default:
		return false
	}
}
