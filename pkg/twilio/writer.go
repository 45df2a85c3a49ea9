package twilio

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/voxbridge/voxbridge/pkg/core"
)

// wsWriter is the write half of a websocket connection.
type wsWriter interface {
	SetWriteDeadline(t time.Time) error
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}

// WriterConfig tunes the outbound half of the caller-side transport.
type WriterConfig struct {
	PingInterval time.Duration
	WriteTimeout time.Duration
	QueueSize    int

	// EnableMarks emits a mark frame after every media frame so playback
	// completion can be paced via mark acknowledgements. Optional; correctness
	// does not depend on it.
	EnableMarks bool
}

// ChannelWriter frames outbound audio into the provider protocol. A single
// goroutine (Run) owns the socket so concurrent senders can never interleave
// bytes of one JSON frame.
type ChannelWriter struct {
	ws     wsWriter
	ctx    context.Context
	cfg    WriterConfig
	frames chan []byte

	markMu sync.Mutex
	marks  []string
}

// NewChannelWriter wraps the write half of an accepted caller-side connection.
// Run must be started before senders are unblocked.
func NewChannelWriter(ctx context.Context, ws wsWriter, cfg WriterConfig) *ChannelWriter {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 20 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 128
	}
	return &ChannelWriter{
		ws:     ws,
		ctx:    ctx,
		cfg:    cfg,
		frames: make(chan []byte, cfg.QueueSize),
	}
}

// Run drains the frame queue onto the socket until the session context is
// canceled or a write fails. It sends the close frame and releases the socket
// on the way out.
func (w *ChannelWriter) Run() error {
	pingTicker := time.NewTicker(w.cfg.PingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			deadline := time.Now().Add(w.cfg.WriteTimeout)
			_ = w.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
			_ = w.ws.Close()
			return nil
		case <-pingTicker.C:
			deadline := time.Now().Add(w.cfg.WriteTimeout)
			if err := w.ws.WriteControl(websocket.PingMessage, []byte("ping"), deadline); err != nil {
				return core.NewDisconnectedError("caller transport ping failed", err)
			}
		case frame, ok := <-w.frames:
			if !ok {
				return nil
			}
			if err := w.ws.SetWriteDeadline(time.Now().Add(w.cfg.WriteTimeout)); err != nil {
				return core.NewDisconnectedError("caller transport deadline failed", err)
			}
			if err := w.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				return core.NewDisconnectedError("caller transport write failed", err)
			}
		}
	}
}

// SendAudio wraps an encoded mu-law payload in a media envelope stamped with
// streamID and queues it for the writer goroutine. When marks are enabled a
// mark frame follows the media frame and its name is tracked until the
// provider acknowledges playback.
func (w *ChannelWriter) SendAudio(streamID string, payload []byte) error {
	if streamID == "" {
		return core.NewProtocolErrorWithParam("refusing to send media without a stream id", "streamSid")
	}
	frame, err := json.Marshal(outboundMedia{
		Event:     string(EventMedia),
		StreamSID: streamID,
		Media:     mediaBody{Payload: base64.StdEncoding.EncodeToString(payload)},
	})
	if err != nil {
		return core.NewProtocolError("marshal media frame: " + err.Error())
	}
	if err := w.enqueue(frame); err != nil {
		return err
	}
	if w.cfg.EnableMarks {
		return w.SendMark(streamID)
	}
	return nil
}

// SendMark emits a synchronization mark and records it as pending until the
// provider echoes it back.
func (w *ChannelWriter) SendMark(streamID string) error {
	if streamID == "" {
		return core.NewProtocolErrorWithParam("refusing to send mark without a stream id", "streamSid")
	}
	name := "chunk-" + uuid.NewString()
	frame, err := json.Marshal(outboundMark{
		Event:     string(EventMark),
		StreamSID: streamID,
		Mark:      markBody{Name: name},
	})
	if err != nil {
		return core.NewProtocolError("marshal mark frame: " + err.Error())
	}
	if err := w.enqueue(frame); err != nil {
		return err
	}
	w.markMu.Lock()
	w.marks = append(w.marks, name)
	w.markMu.Unlock()
	return nil
}

// AckMark pops the oldest pending mark. Returns false when nothing is pending,
// which is benign: the provider may replay marks after a reconnect.
func (w *ChannelWriter) AckMark() (string, bool) {
	w.markMu.Lock()
	defer w.markMu.Unlock()
	if len(w.marks) == 0 {
		return "", false
	}
	name := w.marks[0]
	w.marks = w.marks[1:]
	return name, true
}

// PendingMarks reports how many sent marks await acknowledgement.
func (w *ChannelWriter) PendingMarks() int {
	w.markMu.Lock()
	defer w.markMu.Unlock()
	return len(w.marks)
}

func (w *ChannelWriter) enqueue(frame []byte) error {
	select {
	case w.frames <- frame:
		return nil
	case <-w.ctx.Done():
		return core.NewDisconnectedError("session closed", w.ctx.Err())
	}
}
