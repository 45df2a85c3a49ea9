package twilio

import (
	"testing"

	"github.com/voxbridge/voxbridge/pkg/core"
)

func TestDecodeEvent(t *testing.T) {
	cases := []struct {
		name    string
		data    string
		want    EventType
		wantErr bool
	}{
		{
			name: "start",
			data: `{"event":"start","start":{"streamSid":"MZ123","callSid":"CA456"}}`,
			want: EventStart,
		},
		{
			name: "media",
			data: `{"event":"media","media":{"payload":"AAAA"}}`,
			want: EventMedia,
		},
		{
			name: "stop",
			data: `{"event":"stop"}`,
			want: EventStop,
		},
		{
			name: "mark",
			data: `{"event":"mark","mark":{"name":"chunk-1"}}`,
			want: EventMark,
		},
		{name: "malformed json", data: `{"event":`, wantErr: true},
		{name: "missing event", data: `{"media":{"payload":"AAAA"}}`, wantErr: true},
		{name: "unknown event", data: `{"event":"dtmf"}`, wantErr: true},
		{name: "start without payload", data: `{"event":"start"}`, wantErr: true},
		{name: "media without payload", data: `{"event":"media"}`, wantErr: true},
		{name: "media empty payload", data: `{"event":"media","media":{"payload":""}}`, wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ev, err := DecodeEvent([]byte(tc.data))
			if tc.wantErr {
				if !core.IsType(err, core.ErrProtocol) {
					t.Fatalf("got err %v, want protocol error", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeEvent: %v", err)
			}
			if ev.Event != tc.want {
				t.Fatalf("event = %q, want %q", ev.Event, tc.want)
			}
		})
	}
}

func TestDecodeEventStartIdentifiers(t *testing.T) {
	ev, err := DecodeEvent([]byte(`{"event":"start","start":{"streamSid":"MZ123","callSid":"CA456"}}`))
	if err != nil {
		t.Fatalf("DecodeEvent: %v", err)
	}
	if ev.Start.StreamSID != "MZ123" || ev.Start.CallSID != "CA456" {
		t.Fatalf("start payload = %+v", ev.Start)
	}
}
