// Package errors provides unified error handling for the audio pipeline.
// Every failure that crosses an endpoint or trigger boundary is an AppError with a Code.
package errors

import (
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Code classifies a failure.
type Code int

const (
	Unknown Code = iota
	Internal
	InvalidArgument // client sent bad or too-small audio
	ConversionTimeout
	ConversionFailed
	CorruptHeader // sub-kind of ConversionFailed: converter rejected the input data
	EmptyResult
	ModelInference
	ModelRejected // the inference backend refused the request as invalid
	Unavailable
	Timeout
	Cancelled
	BufferOverflow
)

var codeNames = map[Code]string{
	Unknown:           "UNKNOWN",
	Internal:          "INTERNAL",
	InvalidArgument:   "INVALID_ARGUMENT",
	ConversionTimeout: "CONVERSION_TIMEOUT",
	ConversionFailed:  "CONVERSION_FAILED",
	CorruptHeader:     "CORRUPT_HEADER",
	EmptyResult:       "EMPTY_RESULT",
	ModelInference:    "MODEL_INFERENCE",
	ModelRejected:     "MODEL_REJECTED",
	Unavailable:       "UNAVAILABLE",
	Timeout:           "TIMEOUT",
	Cancelled:         "CANCELLED",
	BufferOverflow:    "BUFFER_OVERFLOW",
}

// grpcCodeMap maps Code to gRPC status codes.
var grpcCodeMap = map[Code]codes.Code{
	Unknown:           codes.Unknown,
	Internal:          codes.Internal,
	InvalidArgument:   codes.InvalidArgument,
	ConversionTimeout: codes.DeadlineExceeded,
	ConversionFailed:  codes.Internal,
	CorruptHeader:     codes.InvalidArgument,
	EmptyResult:       codes.Internal,
	ModelInference:    codes.Internal,
	ModelRejected:     codes.InvalidArgument,
	Unavailable:       codes.Unavailable,
	Timeout:           codes.DeadlineExceeded,
	Cancelled:         codes.Canceled,
	BufferOverflow:    codes.ResourceExhausted,
}

// publicMessages are safe to show to HTTP and realtime clients.
var publicMessages = map[Code]string{
	InvalidArgument:   "invalid audio input",
	ConversionTimeout: "audio conversion timed out",
	ConversionFailed:  "error processing audio",
	CorruptHeader:     "corrupt audio header",
	EmptyResult:       "converted audio is empty",
	ModelInference:    "transcription failed",
	ModelRejected:     "transcription failed",
	Unavailable:       "inference backend unavailable",
	Timeout:           "request timed out",
	BufferOverflow:    "audio buffer limit exceeded",
}

func (c Code) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return fmt.Sprintf("CODE(%d)", int(c))
}

// GRPCCode returns the corresponding gRPC status code.
func (c Code) GRPCCode() codes.Code {
	if gc, ok := grpcCodeMap[c]; ok {
		return gc
	}
	return codes.Unknown
}

// HTTPStatus returns the status batch endpoints answer with. Only our own
// input validation is a client error; every backend failure is a 500.
func (c Code) HTTPStatus() int {
	if c == InvalidArgument {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
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

// WithMetadata adds metadata to an AppError.
func (e *AppError) WithMetadata(key, value string) *AppError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
	return e
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

// CodeOf returns the code of the outermost AppError in err's chain, or Unknown.
func CodeOf(err error) Code {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return Unknown
}

// IsCode checks if an error has a specific error code.
func IsCode(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// IsConversionFailure reports whether the converter exited unsuccessfully,
// including the corrupt-header sub-kind.
func IsConversionFailure(err error) bool {
	c := CodeOf(err)
	return c == ConversionFailed || c == CorruptHeader
}

// PublicMessage returns a client-safe description of err.
func PublicMessage(err error) string {
	if msg, ok := publicMessages[CodeOf(err)]; ok {
		return msg
	}
	return "error processing audio"
}

// FromGRPCError converts an error returned by the inference backend.
// Errors that already carry an AppError are returned unchanged.
func FromGRPCError(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	st, ok := status.FromError(err)
	if !ok {
		return &AppError{Code: ModelInference, Message: err.Error(), Cause: err}
	}
	return &AppError{Code: grpcToCode(st.Code()), Message: st.Message(), Cause: err}
}

// grpcToCode maps gRPC codes back to our codes (best effort).
func grpcToCode(c codes.Code) Code {
	switch c {
	case codes.InvalidArgument:
		return ModelRejected
	case codes.Unavailable:
		return Unavailable
	case codes.DeadlineExceeded:
		return Timeout
	case codes.Canceled:
		return Cancelled
	case codes.ResourceExhausted:
		return Unavailable
	default:
		return ModelInference
	}
}
