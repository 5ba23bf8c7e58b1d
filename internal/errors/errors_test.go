package errors

import (
	"fmt"
	"strings"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestAppErrorString(t *testing.T) {
	err := Wrap(fmt.Errorf("disk full"), StoreWriteFailed, "persist stats").WithMetadata("tier", "synced")

	got := err.Error()
	for _, want := range []string{"[STORE_WRITE_FAILED]", "persist stats", "tier:synced", "caused by: disk full"} {
		if !strings.Contains(got, want) {
			t.Errorf("Error() = %q, missing %q", got, want)
		}
	}
}

func TestGRPCRoundTrip(t *testing.T) {
	orig := New(StatUnknown, "no such stat").WithMetadata("stat", "bogus")

	// Simulate the wire: handler error -> status -> client error.
	wire := orig.GRPCStatus().Err()
	if status.Code(wire) != codes.InvalidArgument {
		t.Fatalf("grpc code = %v, want InvalidArgument", status.Code(wire))
	}

	back := FromGRPCError(wire)
	if back.Code != StatUnknown {
		t.Errorf("Code = %v, want %v", back.Code, StatUnknown)
	}
	if back.Metadata["stat"] != "bogus" {
		t.Errorf("Metadata = %v, want stat=bogus", back.Metadata)
	}
}

func TestFromGRPCErrorFallback(t *testing.T) {
	tests := []struct {
		code codes.Code
		want Code
	}{
		{codes.Unavailable, Unavailable},
		{codes.DeadlineExceeded, Timeout},
		{codes.NotFound, NotFound},
		{codes.Unimplemented, ActionUnknown},
		{codes.Aborted, Unknown},
	}
	for _, tt := range tests {
		got := FromGRPCError(status.Error(tt.code, "x"))
		if got.Code != tt.want {
			t.Errorf("FromGRPCError(%v).Code = %v, want %v", tt.code, got.Code, tt.want)
		}
	}

	plain := FromGRPCError(fmt.Errorf("not grpc"))
	if plain.Code != Unknown {
		t.Errorf("plain error code = %v, want Unknown", plain.Code)
	}
	if FromGRPCError(nil) != nil {
		t.Error("FromGRPCError(nil) should be nil")
	}
}

func TestIsCodeThroughWrapping(t *testing.T) {
	inner := New(CaptureDenied, "tainted canvas")
	outer := fmt.Errorf("snapshot: %w", inner)

	if !IsCode(outer, CaptureDenied) {
		t.Error("IsCode should see through fmt wrapping")
	}
	if CodeOf(outer) != CaptureDenied {
		t.Errorf("CodeOf = %v, want CaptureDenied", CodeOf(outer))
	}
	if IsCode(fmt.Errorf("plain"), CaptureDenied) {
		t.Error("plain error should not match")
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{New(Unavailable, "x"), true},
		{New(StoreWriteFailed, "x"), true},
		{New(Timeout, "x"), true},
		{New(InvalidArgument, "x"), false},
		{New(CaptureDenied, "x"), false},
		{fmt.Errorf("plain"), false},
	}
	for _, tt := range tests {
		if got := IsRetryable(tt.err); got != tt.want {
			t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestCodeString(t *testing.T) {
	if Code(999).String() != "UNKNOWN" {
		t.Errorf("out of range code = %q", Code(999).String())
	}
	if c, ok := parseCode("CAPTURE_FAILED"); !ok || c != CaptureFailed {
		t.Errorf("parseCode = %v, %v", c, ok)
	}
}
