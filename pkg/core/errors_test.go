package core

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorFormatting(t *testing.T) {
	err := NewProtocolErrorWithParam("bad frame", "event")
	want := "protocol_error: bad frame (event)"
	if got := err.Error(); got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}

	err = NewCodecError("odd length")
	want = "codec_error: odd length"
	if got := err.Error(); got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
}

func TestUnwrap(t *testing.T) {
	inner := errors.New("socket closed")
	err := NewDisconnectedError("transport gone", inner)
	if !errors.Is(err, inner) {
		t.Fatal("wrapped error not reachable via errors.Is")
	}
}

func TestIsType(t *testing.T) {
	err := NewUpstreamError("endpoint down", nil)
	wrapped := fmt.Errorf("session: %w", err)

	if !IsType(wrapped, ErrUpstream) {
		t.Error("IsType should see through wrapping")
	}
	if IsType(wrapped, ErrCodec) {
		t.Error("IsType matched the wrong type")
	}
	if IsType(errors.New("plain"), ErrUpstream) {
		t.Error("IsType matched a plain error")
	}
}

func TestIsFatalToSession(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"protocol", NewProtocolError("x"), true},
		{"disconnected", NewDisconnectedError("x", nil), true},
		{"codec", NewCodecError("x"), true},
		{"upstream", NewUpstreamError("x", nil), true},
		{"persistence", NewPersistenceError("x", nil), false},
		{"plain", errors.New("x"), true},
		{"wrapped persistence", fmt.Errorf("store: %w", NewPersistenceError("x", nil)), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsFatalToSession(tc.err); got != tc.want {
				t.Errorf("IsFatalToSession(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}
