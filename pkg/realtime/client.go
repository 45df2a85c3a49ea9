// Package realtime abstracts the bidirectional session with a conversational
// AI endpoint: audio streams in, and a tagged event stream of audio deltas,
// transcript fragments, and turn boundaries streams out. Each backend is one
// implementation of the Client capability.
package realtime

import "context"

// Speaker identifies which side of the conversation produced a transcript
// fragment.
type Speaker string

const (
	SpeakerHuman Speaker = "human"
	SpeakerAI    Speaker = "ai"
)

// Encoding names an audio wire encoding.
type Encoding string

const (
	// EncodingMuLaw is 8-bit G.711 mu-law.
	EncodingMuLaw Encoding = "mulaw"
	// EncodingPCM16 is 16-bit little-endian linear PCM.
	EncodingPCM16 Encoding = "pcm16"
)

// AudioFormat describes one direction of a backend's audio stream.
type AudioFormat struct {
	Encoding     Encoding
	SampleRateHz int
}

// EventType tags an upstream event.
type EventType string

const (
	// EventAudioDelta carries a chunk of AI speech in the backend's output format.
	EventAudioDelta EventType = "audio_delta"
	// EventTranscript carries an incremental transcript fragment. Concatenating
	// a turn's fragments per speaker yields that speaker's turn text.
	EventTranscript EventType = "transcript"
	// EventTurnComplete marks the end of one AI response cycle.
	EventTurnComplete EventType = "turn_complete"
	// EventSessionCreated acknowledges session setup.
	EventSessionCreated EventType = "session_created"
	// EventRateLimits reports upstream quota updates. Informational.
	EventRateLimits EventType = "rate_limits"
	// EventError carries an upstream failure. The stream ends after it.
	EventError EventType = "error"
)

// TranscriptFragment is one incremental piece of speech-to-text output.
type TranscriptFragment struct {
	Speaker Speaker
	Text    string
	Final   bool
}

// Event is one tagged item from the backend's outbound stream.
type Event struct {
	Type       EventType
	Audio      []byte
	Transcript TranscriptFragment
	Err        error
}

// Client manages the session lifecycle to one realtime AI endpoint. A client
// is lease-scoped to a single bridge session and holds no state that survives
// teardown.
type Client interface {
	// Connect opens the session and sends the initial configuration. The event
	// stream is live once Connect returns.
	Connect(ctx context.Context) error
	// InputFormat is the audio format SendAudio expects.
	InputFormat() AudioFormat
	// OutputFormat is the audio format EventAudioDelta payloads carry.
	OutputFormat() AudioFormat
	// SendAudio forwards one chunk of caller audio upstream.
	SendAudio(ctx context.Context, audio []byte) error
	// Events returns the upstream event stream. Closed on session end.
	Events() <-chan Event
	// Close releases the session. Idempotent.
	Close() error
}
