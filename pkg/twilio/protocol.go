// Package twilio implements the provider media-stream protocol: JSON text
// frames on the caller-side WebSocket, the call-control document returned by
// the setup webhook, and the REST client used to place outbound calls.
package twilio

import (
	"encoding/json"
	"fmt"

	"github.com/voxbridge/voxbridge/pkg/core"
)

// EventType identifies a media-stream frame.
type EventType string

const (
	EventStart EventType = "start"
	EventMedia EventType = "media"
	EventStop  EventType = "stop"
	EventMark  EventType = "mark"
)

// InboundEvent is one decoded frame from the caller-side transport.
type InboundEvent struct {
	Event EventType     `json:"event"`
	Start *StartPayload `json:"start,omitempty"`
	Media *MediaPayload `json:"media,omitempty"`
	Mark  *MarkPayload  `json:"mark,omitempty"`
}

// StartPayload carries the identifiers assigned at stream start.
type StartPayload struct {
	StreamSID string `json:"streamSid"`
	CallSID   string `json:"callSid,omitempty"`
}

// MediaPayload carries base64-encoded mu-law audio.
type MediaPayload struct {
	Payload string `json:"payload"`
}

// MarkPayload acknowledges a previously sent synchronization mark.
type MarkPayload struct {
	Name string `json:"name,omitempty"`
}

// DecodeEvent parses one inbound text frame. Malformed JSON, a missing event
// field, or an unknown event type is a protocol error; the session treats
// those as fatal.
func DecodeEvent(data []byte) (*InboundEvent, error) {
	var ev InboundEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, core.NewProtocolError(fmt.Sprintf("malformed media-stream frame: %v", err))
	}
	switch ev.Event {
	case EventStart:
		if ev.Start == nil {
			return nil, core.NewProtocolErrorWithParam("start frame missing payload", "start")
		}
	case EventMedia:
		if ev.Media == nil || ev.Media.Payload == "" {
			return nil, core.NewProtocolErrorWithParam("media frame missing payload", "media.payload")
		}
	case EventStop, EventMark:
	case "":
		return nil, core.NewProtocolErrorWithParam("frame missing event field", "event")
	default:
		return nil, core.NewProtocolErrorWithParam(fmt.Sprintf("unknown event %q", ev.Event), "event")
	}
	return &ev, nil
}

type mediaBody struct {
	Payload string `json:"payload"`
}

type markBody struct {
	Name string `json:"name"`
}

type outboundMedia struct {
	Event     string    `json:"event"`
	StreamSID string    `json:"streamSid"`
	Media     mediaBody `json:"media"`
}

type outboundMark struct {
	Event     string   `json:"event"`
	StreamSID string   `json:"streamSid"`
	Mark      markBody `json:"mark"`
}
