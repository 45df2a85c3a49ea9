package realtime

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voxbridge/voxbridge/pkg/core"
)

// realtimeScript runs a canned server side of the realtime protocol: it
// records the client's opening messages, then plays back the given events.
type realtimeScript struct {
	serverEvents []string

	gotAuth     string
	gotBeta     string
	gotMessages []json.RawMessage
}

func (s *realtimeScript) handler(t *testing.T, wantClientMessages int) http.HandlerFunc {
	upgrader := websocket.Upgrader{}
	return func(w http.ResponseWriter, r *http.Request) {
		s.gotAuth = r.Header.Get("Authorization")
		s.gotBeta = r.Header.Get("OpenAI-Beta")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		for i := 0; i < wantClientMessages; i++ {
			_, data, err := conn.ReadMessage()
			if err != nil {
				t.Errorf("read client message: %v", err)
				return
			}
			s.gotMessages = append(s.gotMessages, data)
		}
		for _, ev := range s.serverEvents {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(ev)); err != nil {
				t.Errorf("write server event: %v", err)
				return
			}
		}
		deadline := time.Now().Add(time.Second)
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	}
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// collect drains the event stream, dropping the trailing error the read loop
// emits when the canned server hangs up.
func collect(t *testing.T, c *OpenAIClient) []Event {
	t.Helper()
	var out []Event
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-c.Events():
			if !ok {
				return out
			}
			if ev.Type == EventError {
				continue
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatal("event stream did not close in time")
		}
	}
}

func TestOpenAIConnectAndEventMapping(t *testing.T) {
	audioChunk := []byte{0x7E, 0x01, 0x80}
	script := &realtimeScript{serverEvents: []string{
		`{"type":"session.created"}`,
		`{"type":"response.audio.delta","delta":"` + base64.StdEncoding.EncodeToString(audioChunk) + `"}`,
		`{"type":"response.audio_transcript.delta","delta":"Good"}`,
		`{"type":"response.audio_transcript.delta","delta":"bye."}`,
		`{"type":"response.audio_transcript.done"}`,
		`{"type":"conversation.item.input_audio_transcription.completed","transcript":"Hello there."}`,
		`{"type":"rate_limits.updated"}`,
		`{"type":"response.done"}`,
	}}
	srv := httptest.NewServer(script.handler(t, 2))
	defer srv.Close()

	client := NewOpenAIClient(OpenAIConfig{
		APIKey:   "sk-test",
		BaseURL:  wsURL(srv),
		Greeting: "Greet the caller.",
	})
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer client.Close()

	events := collect(t, client)

	if script.gotAuth != "Bearer sk-test" {
		t.Errorf("auth header = %q", script.gotAuth)
	}
	if script.gotBeta != "realtime=v1" {
		t.Errorf("beta header = %q", script.gotBeta)
	}

	if len(script.gotMessages) != 2 {
		t.Fatalf("client sent %d opening messages, want 2", len(script.gotMessages))
	}
	var update sessionUpdate
	if err := json.Unmarshal(script.gotMessages[0], &update); err != nil {
		t.Fatalf("unmarshal session.update: %v", err)
	}
	if update.Type != "session.update" {
		t.Errorf("first message type = %q", update.Type)
	}
	if update.Session.InputAudioFormat != "g711_ulaw" || update.Session.OutputAudioFormat != "g711_ulaw" {
		t.Errorf("audio formats = %q/%q, want g711_ulaw both ways",
			update.Session.InputAudioFormat, update.Session.OutputAudioFormat)
	}
	if update.Session.TurnDetection.Type != "server_vad" {
		t.Errorf("turn detection = %q", update.Session.TurnDetection.Type)
	}
	if update.Session.InputTranscription == nil || update.Session.InputTranscription.Model != "whisper-1" {
		t.Error("input transcription not configured")
	}
	var create responseCreate
	if err := json.Unmarshal(script.gotMessages[1], &create); err != nil {
		t.Fatalf("unmarshal response.create: %v", err)
	}
	if create.Type != "response.create" || create.Response.Instructions != "Greet the caller." {
		t.Errorf("greeting message = %+v", create)
	}

	want := []EventType{
		EventSessionCreated,
		EventAudioDelta,
		EventTranscript,
		EventTranscript,
		EventTranscript,
		EventTranscript,
		EventRateLimits,
		EventTurnComplete,
	}
	if len(events) != len(want) {
		t.Fatalf("got %d events, want %d: %+v", len(events), len(want), events)
	}
	for i, typ := range want {
		if events[i].Type != typ {
			t.Errorf("event[%d] = %s, want %s", i, events[i].Type, typ)
		}
	}

	if string(events[1].Audio) != string(audioChunk) {
		t.Error("audio delta not base64-decoded")
	}
	if tr := events[2].Transcript; tr.Speaker != SpeakerAI || tr.Text != "Good" || tr.Final {
		t.Errorf("ai delta fragment = %+v", tr)
	}
	if tr := events[4].Transcript; tr.Speaker != SpeakerAI || !tr.Final || tr.Text != "" {
		t.Errorf("ai done fragment = %+v", tr)
	}
	if tr := events[5].Transcript; tr.Speaker != SpeakerHuman || tr.Text != "Hello there." || !tr.Final {
		t.Errorf("human fragment = %+v", tr)
	}
}

func TestOpenAISendAudio(t *testing.T) {
	done := make(chan json.RawMessage, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		// session.update, then the audio append.
		for i := 0; i < 2; i++ {
			_, data, err := conn.ReadMessage()
			if err != nil {
				t.Errorf("read: %v", err)
				return
			}
			if i == 1 {
				done <- data
			}
		}
	}))
	defer srv.Close()

	client := NewOpenAIClient(OpenAIConfig{APIKey: "sk-test", BaseURL: wsURL(srv)})
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer client.Close()

	chunk := []byte{0xFF, 0x00, 0x7F}
	if err := client.SendAudio(context.Background(), chunk); err != nil {
		t.Fatalf("SendAudio: %v", err)
	}

	select {
	case data := <-done:
		var msg audioAppend
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("unmarshal append: %v", err)
		}
		if msg.Type != "input_audio_buffer.append" {
			t.Errorf("type = %q", msg.Type)
		}
		if msg.Audio != base64.StdEncoding.EncodeToString(chunk) {
			t.Errorf("audio = %q", msg.Audio)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not receive audio append")
	}
}

func TestOpenAIUpstreamErrorEvent(t *testing.T) {
	script := &realtimeScript{serverEvents: []string{
		`{"type":"error","error":{"type":"invalid_request_error","message":"bad session"}}`,
	}}
	srv := httptest.NewServer(script.handler(t, 1))
	defer srv.Close()

	client := NewOpenAIClient(OpenAIConfig{APIKey: "sk-test", BaseURL: wsURL(srv)})
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer client.Close()

	select {
	case ev := <-client.Events():
		if ev.Type != EventError {
			t.Fatalf("event = %+v, want error", ev)
		}
		if !core.IsType(ev.Err, core.ErrUpstream) {
			t.Fatalf("err = %v, want upstream error", ev.Err)
		}
		if !strings.Contains(ev.Err.Error(), "bad session") {
			t.Errorf("err = %v, want upstream message", ev.Err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no error event")
	}
}

func TestOpenAIConnectRequiresAPIKey(t *testing.T) {
	client := NewOpenAIClient(OpenAIConfig{})
	err := client.Connect(context.Background())
	if !core.IsType(err, core.ErrUpstream) {
		t.Fatalf("Connect = %v, want upstream error", err)
	}
}

func TestOpenAIFormats(t *testing.T) {
	client := NewOpenAIClient(OpenAIConfig{APIKey: "sk-test"})
	want := AudioFormat{Encoding: EncodingMuLaw, SampleRateHz: 8000}
	if client.InputFormat() != want || client.OutputFormat() != want {
		t.Errorf("formats = %+v/%+v, want mu-law 8 kHz both ways", client.InputFormat(), client.OutputFormat())
	}
}

func TestOpenAISendAudioAfterClose(t *testing.T) {
	script := &realtimeScript{}
	srv := httptest.NewServer(script.handler(t, 1))
	defer srv.Close()

	client := NewOpenAIClient(OpenAIConfig{APIKey: "sk-test", BaseURL: wsURL(srv)})
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	_ = client.Close()
	_ = client.Close()

	err := client.SendAudio(context.Background(), []byte{0x01})
	if !core.IsType(err, core.ErrDisconnected) {
		t.Fatalf("SendAudio after close = %v, want disconnected error", err)
	}
}
