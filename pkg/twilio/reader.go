package twilio

import (
	"log/slog"

	"github.com/gorilla/websocket"

	"github.com/voxbridge/voxbridge/pkg/core"
)

// wsReader is the read half of a websocket connection.
type wsReader interface {
	ReadMessage() (messageType int, p []byte, err error)
}

// ChannelReader consumes media-stream frames from the caller-side transport.
type ChannelReader struct {
	conn   wsReader
	logger *slog.Logger
}

// NewChannelReader wraps an accepted caller-side connection.
func NewChannelReader(conn wsReader, logger *slog.Logger) *ChannelReader {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChannelReader{conn: conn, logger: logger}
}

// Next blocks until the next frame arrives and decodes it. A closed transport
// yields a disconnected error; a malformed frame yields a protocol error.
// Non-text frames are skipped.
func (r *ChannelReader) Next() (*InboundEvent, error) {
	for {
		messageType, data, err := r.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				return nil, core.NewDisconnectedError("caller transport closed", err)
			}
			return nil, core.NewDisconnectedError("caller transport read failed", err)
		}
		if messageType != websocket.TextMessage {
			r.logger.Debug("skipping non-text media-stream frame", "message_type", messageType)
			continue
		}
		return DecodeEvent(data)
	}
}
