// Package store records call lifecycle events and transcripts. Recording is
// best-effort: a persistence failure never ends a live call.
package store

import (
	"context"
	"time"
)

// CallStart describes a call at the moment it is placed or answered.
type CallStart struct {
	CallSID   string
	ToNumber  string
	StartedAt time.Time
}

// CallRecord is the durable outcome of a finished call.
type CallRecord struct {
	CallSID    string
	Transcript string
	EndedAt    time.Time
}

// Recorder persists call lifecycle events. Implementations must be safe for
// concurrent use.
type Recorder interface {
	CallStarted(ctx context.Context, start CallStart) error
	CallEnded(ctx context.Context, record CallRecord) error
}

// NopRecorder discards everything. Used when no persistence is configured.
type NopRecorder struct{}

func (NopRecorder) CallStarted(context.Context, CallStart) error { return nil }
func (NopRecorder) CallEnded(context.Context, CallRecord) error  { return nil }
