package realtime

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voxbridge/voxbridge/pkg/core"
)

const (
	defaultOpenAIRealtimeURL = "wss://api.openai.com/v1/realtime"
	defaultOpenAIModel       = "gpt-4o-realtime-preview-2025-06-03"
	defaultOpenAIVoice       = "alloy"
)

// logEventTypes are upstream event types worth surfacing at info level; the
// rest of the stream is too chatty to log per event.
var logEventTypes = map[string]struct{}{
	"error":                             {},
	"response.content.done":             {},
	"rate_limits.updated":               {},
	"response.done":                     {},
	"input_audio_buffer.committed":      {},
	"input_audio_buffer.speech_stopped": {},
	"input_audio_buffer.speech_started": {},
	"session.created":                   {},
}

// OpenAIConfig configures a realtime session against the OpenAI endpoint.
type OpenAIConfig struct {
	APIKey       string
	Model        string
	Voice        string
	Instructions string
	// Greeting, when set, asks the model to open the conversation.
	Greeting         string
	Temperature      float64
	BaseURL          string
	HandshakeTimeout time.Duration
	Logger           *slog.Logger
}

// OpenAIClient speaks the OpenAI realtime protocol over a websocket. Audio is
// mu-law passthrough in both directions: the endpoint accepts and emits
// g711_ulaw, so no transcoding is needed on this backend.
type OpenAIClient struct {
	cfg    OpenAIConfig
	logger *slog.Logger

	conn    *websocket.Conn
	writeMu sync.Mutex

	events    chan Event
	done      chan struct{}
	closeOnce sync.Once
}

// NewOpenAIClient builds an unconnected client.
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	if cfg.Model == "" {
		cfg.Model = defaultOpenAIModel
	}
	if cfg.Voice == "" {
		cfg.Voice = defaultOpenAIVoice
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.8
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultOpenAIRealtimeURL
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenAIClient{
		cfg:    cfg,
		logger: logger,
		events: make(chan Event, 64),
		done:   make(chan struct{}),
	}
}

// InputFormat implements Client.
func (c *OpenAIClient) InputFormat() AudioFormat {
	return AudioFormat{Encoding: EncodingMuLaw, SampleRateHz: 8000}
}

// OutputFormat implements Client.
func (c *OpenAIClient) OutputFormat() AudioFormat {
	return AudioFormat{Encoding: EncodingMuLaw, SampleRateHz: 8000}
}

// Connect dials the realtime endpoint, sends the session configuration and
// optional greeting, and starts the receive loop.
func (c *OpenAIClient) Connect(ctx context.Context) error {
	if c.cfg.APIKey == "" {
		return core.NewUpstreamError("api key is required", nil)
	}

	u, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return core.NewUpstreamError("invalid realtime endpoint url", err)
	}
	q := u.Query()
	q.Set("model", c.cfg.Model)
	u.RawQuery = q.Encode()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	header.Set("OpenAI-Beta", "realtime=v1")

	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.HandshakeTimeout}
	conn, resp, err := dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		return core.NewUpstreamError(fmt.Sprintf("dial realtime endpoint (status %d)", status), err)
	}
	c.conn = conn

	if err := c.sendJSON(sessionUpdate{
		Type: "session.update",
		Session: sessionConfig{
			TurnDetection:         turnDetection{Type: "server_vad"},
			InputAudioFormat:      "g711_ulaw",
			OutputAudioFormat:     "g711_ulaw",
			Voice:                 c.cfg.Voice,
			Instructions:          c.cfg.Instructions,
			Modalities:            []string{"text", "audio"},
			Temperature:           c.cfg.Temperature,
			InputTranscription:    &transcriptionConfig{Model: "whisper-1"},
		},
	}); err != nil {
		_ = conn.Close()
		return err
	}
	if c.cfg.Greeting != "" {
		if err := c.sendJSON(responseCreate{
			Type:     "response.create",
			Response: responseParams{Instructions: c.cfg.Greeting},
		}); err != nil {
			_ = conn.Close()
			return err
		}
	}

	go c.readLoop()
	return nil
}

// SendAudio forwards one mu-law chunk as an input buffer append.
func (c *OpenAIClient) SendAudio(ctx context.Context, audio []byte) error {
	select {
	case <-c.done:
		return core.NewDisconnectedError("realtime session closed", nil)
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	return c.sendJSON(audioAppend{
		Type:  "input_audio_buffer.append",
		Audio: base64.StdEncoding.EncodeToString(audio),
	})
}

// Events implements Client.
func (c *OpenAIClient) Events() <-chan Event { return c.events }

// Close implements Client. Safe to call more than once.
func (c *OpenAIClient) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.conn != nil {
			deadline := time.Now().Add(time.Second)
			_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
			_ = c.conn.Close()
		}
	})
	return nil
}

func (c *OpenAIClient) readLoop() {
	defer close(c.events)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				// Expected after Close.
			default:
				c.emit(Event{Type: EventError, Err: core.NewUpstreamError("realtime endpoint read failed", err)})
			}
			return
		}

		var ev serverEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			c.logger.Warn("undecodable realtime event", "error", err)
			continue
		}
		if _, ok := logEventTypes[ev.Type]; ok {
			c.logger.Info("realtime event", "type", ev.Type)
		}

		switch ev.Type {
		case "response.audio.delta":
			audio, err := base64.StdEncoding.DecodeString(ev.Delta)
			if err != nil {
				c.logger.Warn("undecodable audio delta", "error", err)
				continue
			}
			c.emit(Event{Type: EventAudioDelta, Audio: audio})
		case "response.audio_transcript.delta":
			c.emit(Event{Type: EventTranscript, Transcript: TranscriptFragment{Speaker: SpeakerAI, Text: ev.Delta}})
		case "response.audio_transcript.done":
			c.emit(Event{Type: EventTranscript, Transcript: TranscriptFragment{Speaker: SpeakerAI, Final: true}})
		case "conversation.item.input_audio_transcription.completed":
			c.emit(Event{Type: EventTranscript, Transcript: TranscriptFragment{Speaker: SpeakerHuman, Text: ev.Transcript, Final: true}})
		case "response.done":
			c.emit(Event{Type: EventTurnComplete})
		case "session.created":
			c.emit(Event{Type: EventSessionCreated})
		case "rate_limits.updated":
			c.emit(Event{Type: EventRateLimits})
		case "error":
			msg := "realtime endpoint error"
			if ev.Error != nil && ev.Error.Message != "" {
				msg = ev.Error.Message
			}
			c.emit(Event{Type: EventError, Err: core.NewUpstreamError(msg, nil)})
		}
	}
}

func (c *OpenAIClient) emit(ev Event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

func (c *OpenAIClient) sendJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return core.NewUpstreamError("marshal realtime message", err)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return core.NewUpstreamError("realtime endpoint write failed", err)
	}
	return nil
}

type turnDetection struct {
	Type string `json:"type"`
}

type transcriptionConfig struct {
	Model string `json:"model"`
}

type sessionConfig struct {
	TurnDetection      turnDetection        `json:"turn_detection"`
	InputAudioFormat   string               `json:"input_audio_format"`
	OutputAudioFormat  string               `json:"output_audio_format"`
	Voice              string               `json:"voice"`
	Instructions       string               `json:"instructions"`
	Modalities         []string             `json:"modalities"`
	Temperature        float64              `json:"temperature"`
	InputTranscription *transcriptionConfig `json:"input_audio_transcription,omitempty"`
}

type sessionUpdate struct {
	Type    string        `json:"type"`
	Session sessionConfig `json:"session"`
}

type responseParams struct {
	Instructions string `json:"instructions"`
}

type responseCreate struct {
	Type     string         `json:"type"`
	Response responseParams `json:"response"`
}

type audioAppend struct {
	Type  string `json:"type"`
	Audio string `json:"audio"`
}

type serverError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type serverEvent struct {
	Type       string       `json:"type"`
	Delta      string       `json:"delta,omitempty"`
	Transcript string       `json:"transcript,omitempty"`
	Error      *serverError `json:"error,omitempty"`
}
