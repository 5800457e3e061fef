package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestAppErrorString(t *testing.T) {
	cause := errors.New("exit status 1")
	err := Wrap(cause, ConversionFailed, "ffmpeg failed").WithMetadata("stderr", "boom")

	want := "[CONVERSION_FAILED] ffmpeg failed map[stderr:boom] caused by: exit status 1"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the cause")
	}
}

func TestIsCodeThroughWrapping(t *testing.T) {
	base := New(CorruptHeader, "invalid data")
	wrapped := fmt.Errorf("trigger: %w", base)

	if !IsCode(wrapped, CorruptHeader) {
		t.Error("IsCode should see through fmt wrapping")
	}
	if IsCode(wrapped, ConversionFailed) {
		t.Error("CorruptHeader must be distinguishable from ConversionFailed")
	}
	if !IsConversionFailure(wrapped) {
		t.Error("CorruptHeader is a conversion failure")
	}
	if IsCode(nil, Unknown) {
		t.Error("nil error has no code")
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		code Code
		want int
	}{
		{InvalidArgument, http.StatusBadRequest},
		{ConversionTimeout, http.StatusInternalServerError},
		{CorruptHeader, http.StatusInternalServerError},
		{ModelInference, http.StatusInternalServerError},
		{ModelRejected, http.StatusInternalServerError},
		{Unavailable, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.code.String(), func(t *testing.T) {
			if got := tt.code.HTTPStatus(); got != tt.want {
				t.Errorf("HTTPStatus() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestFromGRPCError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{"unavailable", status.Error(codes.Unavailable, "down"), Unavailable},
		{"backend rejected input", status.Error(codes.InvalidArgument, "tensor shape mismatch"), ModelRejected},
		{"deadline", status.Error(codes.DeadlineExceeded, "slow"), Timeout},
		{"internal", status.Error(codes.Internal, "oom"), ModelInference},
		{"plain", errors.New("socket closed"), ModelInference},
		{"app error kept", New(BufferOverflow, "full"), BufferOverflow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FromGRPCError(tt.err).Code; got != tt.want {
				t.Errorf("code = %v, want %v", got, tt.want)
			}
		})
	}
	if FromGRPCError(nil) != nil {
		t.Error("FromGRPCError(nil) should be nil")
	}
}

func TestPublicMessage(t *testing.T) {
	if got := PublicMessage(New(CorruptHeader, "pipe:0: Invalid data found")); got != "corrupt audio header" {
		t.Errorf("PublicMessage = %q", got)
	}
	if got := PublicMessage(errors.New("anything")); got != "error processing audio" {
		t.Errorf("PublicMessage(plain) = %q", got)
	}
}

func TestCodeGRPCMapping(t *testing.T) {
	if ConversionTimeout.GRPCCode() != codes.DeadlineExceeded {
		t.Errorf("ConversionTimeout.GRPCCode() = %v", ConversionTimeout.GRPCCode())
	}
	if Code(99).GRPCCode() != codes.Unknown {
		t.Error("unmapped code should map to Unknown")
	}
	if Code(99).String() != "CODE(99)" {
		t.Errorf("String() = %q", Code(99).String())
	}
}
