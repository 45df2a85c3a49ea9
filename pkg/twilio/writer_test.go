package twilio

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voxbridge/voxbridge/pkg/core"
)

type fakeWSWriter struct {
	mu       sync.Mutex
	frames   [][]byte
	controls []int
	closed   bool
}

func (f *fakeWSWriter) SetWriteDeadline(time.Time) error { return nil }

func (f *fakeWSWriter) WriteMessage(messageType int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	buf := make([]byte, len(data))
	copy(buf, data)
	f.frames = append(f.frames, buf)
	return nil
}

func (f *fakeWSWriter) WriteControl(messageType int, data []byte, deadline time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.controls = append(f.controls, messageType)
	return nil
}

func (f *fakeWSWriter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeWSWriter) frameCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames)
}

func (f *fakeWSWriter) frame(i int) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.frames[i]
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestWriterSendAudioWithMarks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ws := &fakeWSWriter{}
	w := NewChannelWriter(ctx, ws, WriterConfig{EnableMarks: true})

	done := make(chan error, 1)
	go func() { done <- w.Run() }()

	payload := []byte{0x7F, 0xFF, 0x00}
	if err := w.SendAudio("MZ123", payload); err != nil {
		t.Fatalf("SendAudio: %v", err)
	}

	waitFor(t, func() bool { return ws.frameCount() == 2 })

	var media struct {
		Event     string `json:"event"`
		StreamSID string `json:"streamSid"`
		Media     struct {
			Payload string `json:"payload"`
		} `json:"media"`
	}
	if err := json.Unmarshal(ws.frame(0), &media); err != nil {
		t.Fatalf("unmarshal media frame: %v", err)
	}
	if media.Event != "media" || media.StreamSID != "MZ123" {
		t.Fatalf("media frame = %+v", media)
	}
	decoded, err := base64.StdEncoding.DecodeString(media.Media.Payload)
	if err != nil || string(decoded) != string(payload) {
		t.Fatalf("payload round trip failed: %v", err)
	}

	var mark struct {
		Event     string `json:"event"`
		StreamSID string `json:"streamSid"`
		Mark      struct {
			Name string `json:"name"`
		} `json:"mark"`
	}
	if err := json.Unmarshal(ws.frame(1), &mark); err != nil {
		t.Fatalf("unmarshal mark frame: %v", err)
	}
	if mark.Event != "mark" || mark.StreamSID != "MZ123" || mark.Mark.Name == "" {
		t.Fatalf("mark frame = %+v", mark)
	}

	if got := w.PendingMarks(); got != 1 {
		t.Fatalf("PendingMarks = %d, want 1", got)
	}
	name, ok := w.AckMark()
	if !ok || name != mark.Mark.Name {
		t.Fatalf("AckMark = %q, %v", name, ok)
	}
	if _, ok := w.AckMark(); ok {
		t.Fatal("AckMark succeeded on empty queue")
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}

	ws.mu.Lock()
	defer ws.mu.Unlock()
	if !ws.closed {
		t.Fatal("socket not released on shutdown")
	}
	foundClose := false
	for _, mt := range ws.controls {
		if mt == websocket.CloseMessage {
			foundClose = true
		}
	}
	if !foundClose {
		t.Fatal("no close frame sent on shutdown")
	}
}

func TestWriterRejectsMissingStreamID(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w := NewChannelWriter(ctx, &fakeWSWriter{}, WriterConfig{})
	if err := w.SendAudio("", []byte{1}); !core.IsType(err, core.ErrProtocol) {
		t.Fatalf("got %v, want protocol error", err)
	}
	if err := w.SendMark(""); !core.IsType(err, core.ErrProtocol) {
		t.Fatalf("got %v, want protocol error", err)
	}
}

func TestWriterEnqueueAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	w := NewChannelWriter(ctx, &fakeWSWriter{}, WriterConfig{QueueSize: 1})

	// Fill the queue, then cancel; the next enqueue must not block forever.
	if err := w.SendAudio("MZ123", []byte{1}); err != nil {
		t.Fatalf("SendAudio: %v", err)
	}
	cancel()
	if err := w.SendAudio("MZ123", []byte{2}); !core.IsType(err, core.ErrDisconnected) {
		t.Fatalf("got %v, want disconnected error", err)
	}
}
