package twilio

import (
	"errors"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/voxbridge/voxbridge/pkg/core"
)

type scriptedMessage struct {
	messageType int
	data        []byte
	err         error
}

type fakeWSReader struct {
	script []scriptedMessage
}

func (f *fakeWSReader) ReadMessage() (int, []byte, error) {
	if len(f.script) == 0 {
		return 0, nil, errors.New("script exhausted")
	}
	msg := f.script[0]
	f.script = f.script[1:]
	return msg.messageType, msg.data, msg.err
}

func TestReaderSkipsNonTextFrames(t *testing.T) {
	r := NewChannelReader(&fakeWSReader{script: []scriptedMessage{
		{messageType: websocket.BinaryMessage, data: []byte{1, 2, 3}},
		{messageType: websocket.TextMessage, data: []byte(`{"event":"stop"}`)},
	}}, nil)

	ev, err := r.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if ev.Event != EventStop {
		t.Fatalf("event = %q, want stop", ev.Event)
	}
}

func TestReaderDisconnect(t *testing.T) {
	r := NewChannelReader(&fakeWSReader{script: []scriptedMessage{
		{err: &websocket.CloseError{Code: websocket.CloseNormalClosure}},
	}}, nil)

	_, err := r.Next()
	if !core.IsType(err, core.ErrDisconnected) {
		t.Fatalf("got %v, want disconnected error", err)
	}
}

func TestReaderMalformedFrame(t *testing.T) {
	r := NewChannelReader(&fakeWSReader{script: []scriptedMessage{
		{messageType: websocket.TextMessage, data: []byte(`not json`)},
	}}, nil)

	_, err := r.Next()
	if !core.IsType(err, core.ErrProtocol) {
		t.Fatalf("got %v, want protocol error", err)
	}
}
