package realtime

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"google.golang.org/genai"

	"github.com/voxbridge/voxbridge/pkg/core"
)

const (
	defaultGeminiModel    = "gemini-2.5-flash-preview-native-audio-dialog"
	defaultGeminiVoice    = "Achernar"
	defaultGeminiLanguage = "en-US"

	// geminiOutputRate is the PCM rate of Live API audio output.
	geminiOutputRate = 24000
)

// GeminiConfig configures a Live API session against the Gemini endpoint.
type GeminiConfig struct {
	APIKey            string
	Model             string
	Voice             string
	LanguageCode      string
	SystemInstruction string
	// Greeting, when set, is sent as an opening client turn so the model
	// speaks first.
	Greeting string
	Logger   *slog.Logger
}

// GeminiClient bridges to the Gemini Live API. Input is 16 kHz linear PCM,
// output is 24 kHz linear PCM; both directions need transcoding to and from
// the telephony wire format.
type GeminiClient struct {
	cfg    GeminiConfig
	logger *slog.Logger

	session *genai.Session
	sendMu  sync.Mutex

	events    chan Event
	done      chan struct{}
	closeOnce sync.Once
}

// NewGeminiClient builds an unconnected client.
func NewGeminiClient(cfg GeminiConfig) *GeminiClient {
	if cfg.Model == "" {
		cfg.Model = defaultGeminiModel
	}
	if cfg.Voice == "" {
		cfg.Voice = defaultGeminiVoice
	}
	if cfg.LanguageCode == "" {
		cfg.LanguageCode = defaultGeminiLanguage
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &GeminiClient{
		cfg:    cfg,
		logger: logger,
		events: make(chan Event, 64),
		done:   make(chan struct{}),
	}
}

// InputFormat implements Client.
func (c *GeminiClient) InputFormat() AudioFormat {
	return AudioFormat{Encoding: EncodingPCM16, SampleRateHz: 16000}
}

// OutputFormat implements Client.
func (c *GeminiClient) OutputFormat() AudioFormat {
	return AudioFormat{Encoding: EncodingPCM16, SampleRateHz: geminiOutputRate}
}

// Connect opens the Live session, applies voice/transcription configuration,
// sends the opening turn, and starts the receive loop.
func (c *GeminiClient) Connect(ctx context.Context) error {
	if c.cfg.APIKey == "" {
		return core.NewUpstreamError("api key is required", nil)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  c.cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return core.NewUpstreamError("create genai client", err)
	}

	config := &genai.LiveConnectConfig{
		ResponseModalities: []genai.Modality{genai.ModalityAudio},
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: c.cfg.SystemInstruction}},
		},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: c.cfg.Voice},
			},
			LanguageCode: c.cfg.LanguageCode,
		},
		InputAudioTranscription:  &genai.AudioTranscriptionConfig{},
		OutputAudioTranscription: &genai.AudioTranscriptionConfig{},
	}

	session, err := client.Live.Connect(ctx, c.cfg.Model, config)
	if err != nil {
		return core.NewUpstreamError("connect live session", err)
	}
	c.session = session

	if c.cfg.Greeting != "" {
		err := session.SendClientContent(genai.LiveClientContentInput{
			Turns: []*genai.Content{{
				Role:  genai.RoleUser,
				Parts: []*genai.Part{{Text: c.cfg.Greeting}},
			}},
			TurnComplete: genai.Ptr(true),
		})
		if err != nil {
			_ = session.Close()
			return core.NewUpstreamError("send opening turn", err)
		}
	}

	go c.readLoop()
	return nil
}

// SendAudio forwards one 16 kHz PCM chunk as realtime input.
func (c *GeminiClient) SendAudio(ctx context.Context, audio []byte) error {
	select {
	case <-c.done:
		return core.NewDisconnectedError("live session closed", nil)
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	err := c.session.SendRealtimeInput(genai.LiveRealtimeInput{
		Media: &genai.Blob{Data: audio, MIMEType: "audio/pcm;rate=16000"},
	})
	if err != nil {
		return core.NewUpstreamError("send realtime audio", err)
	}
	return nil
}

// Events implements Client.
func (c *GeminiClient) Events() <-chan Event { return c.events }

// Close implements Client. Safe to call more than once.
func (c *GeminiClient) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.session != nil {
			_ = c.session.Close()
		}
	})
	return nil
}

func (c *GeminiClient) readLoop() {
	defer close(c.events)
	for {
		msg, err := c.session.Receive()
		if err != nil {
			select {
			case <-c.done:
				// Expected after Close.
			default:
				c.emit(Event{Type: EventError, Err: core.NewUpstreamError("live session read failed", err)})
			}
			return
		}
		if msg.SetupComplete != nil {
			c.emit(Event{Type: EventSessionCreated})
		}
		sc := msg.ServerContent
		if sc == nil {
			continue
		}
		if sc.InputTranscription != nil && sc.InputTranscription.Text != "" {
			c.emit(Event{Type: EventTranscript, Transcript: TranscriptFragment{
				Speaker: SpeakerHuman,
				Text:    spaceTerminated(sc.InputTranscription.Text),
				Final:   sc.InputTranscription.Finished,
			}})
		}
		if sc.OutputTranscription != nil && sc.OutputTranscription.Text != "" {
			c.emit(Event{Type: EventTranscript, Transcript: TranscriptFragment{
				Speaker: SpeakerAI,
				Text:    spaceTerminated(sc.OutputTranscription.Text),
				Final:   sc.OutputTranscription.Finished,
			}})
		}
		if sc.ModelTurn != nil {
			for _, part := range sc.ModelTurn.Parts {
				if part.InlineData != nil && len(part.InlineData.Data) > 0 {
					c.emit(Event{Type: EventAudioDelta, Audio: part.InlineData.Data})
				}
			}
		}
		if sc.Interrupted {
			c.logger.Debug("model turn interrupted by caller speech")
		}
		if sc.TurnComplete {
			c.emit(Event{Type: EventTurnComplete})
		}
	}
}

func (c *GeminiClient) emit(ev Event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

// spaceTerminated pads a transcription fragment so adjacent fragments cannot
// fuse words; the Live API does not guarantee trailing whitespace.
func spaceTerminated(text string) string {
	if strings.HasSuffix(text, " ") {
		return text
	}
	return text + " "
}
