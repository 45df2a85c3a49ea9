// Package bridge pairs one caller-side media stream with one realtime AI
// session and relays audio between them until either side ends the call or
// the AI speaks the termination cue.
package bridge

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/voxbridge/voxbridge/pkg/audio"
	"github.com/voxbridge/voxbridge/pkg/core"
	"github.com/voxbridge/voxbridge/pkg/realtime"
	"github.com/voxbridge/voxbridge/pkg/twilio"
)

const (
	defaultTerminationCue    = "goodbye"
	defaultMaxBufferedFrames = 32
)

// TelephonyReader is the inbound half of the caller-side transport.
type TelephonyReader interface {
	Next() (*twilio.InboundEvent, error)
}

// TelephonyWriter is the outbound half of the caller-side transport.
type TelephonyWriter interface {
	Run() error
	SendAudio(streamID string, payload []byte) error
	AckMark() (string, bool)
}

// Config tunes session behavior.
type Config struct {
	// TerminationCue ends the call when it appears, case-insensitively, in the
	// accumulated conversation transcript. Defaults to "goodbye".
	TerminationCue string
	// MaxBufferedFrames bounds AI audio buffered before the stream id arrives.
	// Oldest frames are dropped on overflow.
	MaxBufferedFrames int
	// MaxCallDuration, when positive, force-closes the session after the given
	// wall-clock time.
	MaxCallDuration time.Duration
}

// Dependencies are the collaborators a session runs against.
type Dependencies struct {
	Reader TelephonyReader
	Writer TelephonyWriter
	AI     realtime.Client
	Logger *slog.Logger

	// CloseTransport, when set, is invoked once at teardown to release the
	// caller-side connection. The writer's context cancel goes here.
	CloseTransport func()

	// OnAudioRelayed, when set, is called with the byte count of each relayed
	// chunk. Direction is "inbound" for caller audio and "outbound" for AI audio.
	OnAudioRelayed func(direction string, n int)
}

// Session relays audio between one caller and one AI session. Run drives it to
// completion; accessors are safe during and after the run.
type Session struct {
	reader         TelephonyReader
	writer         TelephonyWriter
	ai             realtime.Client
	logger         *slog.Logger
	closeTransport func()
	onAudioRelayed func(direction string, n int)
	cfg            Config

	mu       sync.Mutex
	state    State
	streamID string
	callSID  string
	pending  [][]byte
	cause    error
	closing  bool

	log transcriptLog
	acc turnAccumulator

	cancel    context.CancelFunc
	closeOnce sync.Once
}

// NewSession validates dependencies and applies config defaults.
func NewSession(deps Dependencies, cfg Config) (*Session, error) {
	if deps.Reader == nil || deps.Writer == nil || deps.AI == nil {
		return nil, fmt.Errorf("bridge: reader, writer, and ai client are required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if cfg.TerminationCue == "" {
		cfg.TerminationCue = defaultTerminationCue
	}
	cfg.TerminationCue = strings.ToLower(cfg.TerminationCue)
	if cfg.MaxBufferedFrames <= 0 {
		cfg.MaxBufferedFrames = defaultMaxBufferedFrames
	}
	if deps.OnAudioRelayed == nil {
		deps.OnAudioRelayed = func(string, int) {}
	}
	return &Session{
		reader:         deps.Reader,
		writer:         deps.Writer,
		ai:             deps.AI,
		logger:         deps.Logger,
		closeTransport: deps.CloseTransport,
		onAudioRelayed: deps.OnAudioRelayed,
		cfg:            cfg,
		state:          StateConnecting,
	}, nil
}

// Run connects the AI session and relays both directions until teardown. It
// returns the error that initiated teardown, or nil for a clean close.
func (s *Session) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	s.cancel = cancel
	closing := s.closing
	s.mu.Unlock()
	if closing {
		// Close raced ahead of Run; honor it.
		cancel()
	}

	if err := s.ai.Connect(runCtx); err != nil {
		s.shutdown(err)
		s.transition(StateClosed)
		return err
	}
	s.transition(StateActive)

	if s.cfg.MaxCallDuration > 0 {
		timer := time.AfterFunc(s.cfg.MaxCallDuration, func() {
			s.logger.Info("max call duration reached, closing session")
			s.shutdown(nil)
		})
		defer timer.Stop()
	}

	writerDone := make(chan error, 1)
	go func() {
		err := s.writer.Run()
		s.shutdown(err)
		writerDone <- err
	}()

	callerDone := make(chan error, 1)
	go func() {
		err := s.relayCallerAudio(runCtx)
		s.shutdown(err)
		callerDone <- err
	}()

	s.shutdown(s.relayAIEvents(runCtx))

	<-callerDone
	<-writerDone
	s.flushPartialTurn()
	s.transition(StateClosed)

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cause
}

// Close initiates teardown from outside the relay tasks, such as server drain.
// Idempotent.
func (s *Session) Close() error {
	s.shutdown(nil)
	return nil
}

// State reports the current lifecycle phase.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// StreamID reports the provider stream id, or "" before the start frame.
func (s *Session) StreamID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamID
}

// CallSID reports the provider call id, or "" before the start frame.
func (s *Session) CallSID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callSID
}

// Transcript returns the completed turns recorded so far.
func (s *Session) Transcript() []TranscriptTurn {
	return s.log.snapshot()
}

// TranscriptText renders the completed turns as alternating speaker lines.
func (s *Session) TranscriptText() string {
	return s.log.concatenated()
}

// shutdown begins teardown exactly once, recording the initiating error.
// Cascade errors from the other relay task unwinding are not recorded.
func (s *Session) shutdown(cause error) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.cause = cause
		s.closing = true
		cancel := s.cancel
		s.mu.Unlock()
		s.transition(StateClosing)
		if cancel != nil {
			cancel()
		}
		if err := s.ai.Close(); err != nil {
			s.logger.Warn("ai session close failed", "error", err)
		}
		if s.closeTransport != nil {
			s.closeTransport()
		}
	})
}

func (s *Session) transition(to State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !canTransition(s.state, to) {
		s.logger.Warn("refusing invalid state transition", "from", string(s.state), "to", string(to))
		return
	}
	s.state = to
}

// relayCallerAudio pumps frames from the caller-side transport into the AI
// session until the transport fails or the session context ends.
func (s *Session) relayCallerAudio(ctx context.Context) error {
	for {
		ev, err := s.reader.Next()
		if err != nil {
			select {
			case <-ctx.Done():
				// Transport was torn down by shutdown; not an initiating error.
				return nil
			default:
			}
			return err
		}

		switch ev.Event {
		case twilio.EventStart:
			s.handleStart(ev.Start)
		case twilio.EventMedia:
			if err := s.forwardCallerAudio(ctx, ev.Media.Payload); err != nil {
				return err
			}
		case twilio.EventStop:
			s.logger.Info("caller media stream stopped", "stream_sid", s.StreamID())
		case twilio.EventMark:
			if name, ok := s.writer.AckMark(); ok {
				s.logger.Debug("playback mark acknowledged", "name", name)
			}
		}

		select {
		case <-ctx.Done():
			return nil
		default:
		}
	}
}

// handleStart records the stream identifiers and flushes AI audio that arrived
// before them. A duplicate start frame is ignored; the first one wins. The
// buffer drains before the stream id is published: publishing first would let
// a fresh AI delta reach the writer ahead of older buffered frames.
func (s *Session) handleStart(start *twilio.StartPayload) {
	s.mu.Lock()
	if s.streamID != "" {
		s.mu.Unlock()
		s.logger.Debug("ignoring duplicate start frame", "stream_sid", start.StreamSID)
		return
	}
	for _, payload := range s.pending {
		if err := s.writer.SendAudio(start.StreamSID, payload); err != nil {
			s.logger.Warn("flushing buffered ai audio failed", "error", err)
			break
		}
		s.onAudioRelayed("outbound", len(payload))
	}
	s.pending = nil
	s.streamID = start.StreamSID
	s.callSID = start.CallSID
	s.mu.Unlock()

	s.logger.Info("caller media stream started", "stream_sid", start.StreamSID, "call_sid", start.CallSID)
}

// forwardCallerAudio decodes one media payload and sends it upstream in the
// AI session's input format.
func (s *Session) forwardCallerAudio(ctx context.Context, payload string) error {
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return core.NewCodecError("undecodable media payload: " + err.Error())
	}

	chunk := raw
	if s.ai.InputFormat().Encoding == realtime.EncodingPCM16 {
		chunk, err = audio.DecodeInbound(raw)
		if err != nil {
			return err
		}
	}
	if len(chunk) == 0 {
		return nil
	}
	if err := s.ai.SendAudio(ctx, chunk); err != nil {
		return err
	}
	s.onAudioRelayed("inbound", len(chunk))
	return nil
}

// relayAIEvents consumes the AI event stream, playing audio back to the caller
// and accumulating transcripts, until the stream ends, an upstream error
// arrives, or the AI speaks the termination cue.
func (s *Session) relayAIEvents(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-s.ai.Events():
			if !ok {
				return nil
			}
			switch ev.Type {
			case realtime.EventAudioDelta:
				if err := s.playAIAudio(ev.Audio); err != nil {
					return err
				}
			case realtime.EventTranscript:
				s.acc.append(ev.Transcript)
				if s.terminationSpoken() {
					s.logger.Info("termination cue spoken, closing session")
					return nil
				}
			case realtime.EventTurnComplete:
				if !s.acc.empty() {
					s.log.append(s.acc.flush())
				}
				if s.terminationSpoken() {
					s.logger.Info("termination cue spoken, closing session")
					return nil
				}
			case realtime.EventSessionCreated:
				s.logger.Info("ai session established")
			case realtime.EventRateLimits:
				s.logger.Debug("ai rate limits updated")
			case realtime.EventError:
				return ev.Err
			}
		}
	}
}

// playAIAudio converts one AI audio delta to the telephony wire format and
// sends it, buffering while the stream id is still unknown. A malformed chunk
// is dropped rather than ending the call.
func (s *Session) playAIAudio(chunk []byte) error {
	payload := chunk
	if out := s.ai.OutputFormat(); out.Encoding == realtime.EncodingPCM16 {
		encoded, err := audio.EncodeOutbound(chunk, out.SampleRateHz)
		if err != nil {
			s.logger.Warn("dropping malformed ai audio chunk", "error", err)
			return nil
		}
		payload = encoded
	}
	if len(payload) == 0 {
		return nil
	}

	s.mu.Lock()
	if s.state != StateActive {
		s.mu.Unlock()
		return nil
	}
	if s.streamID == "" {
		if len(s.pending) >= s.cfg.MaxBufferedFrames {
			s.pending = s.pending[1:]
			s.logger.Debug("pre-start audio buffer full, dropping oldest frame")
		}
		s.pending = append(s.pending, payload)
		s.mu.Unlock()
		return nil
	}
	streamID := s.streamID
	s.mu.Unlock()

	if err := s.writer.SendAudio(streamID, payload); err != nil {
		return err
	}
	s.onAudioRelayed("outbound", len(payload))
	return nil
}

// terminationSpoken reports whether the cue appears anywhere in the recorded
// turns or the turn still in flight.
func (s *Session) terminationSpoken() bool {
	text := s.log.concatenated() + " " + s.acc.text()
	return strings.Contains(strings.ToLower(text), s.cfg.TerminationCue)
}

// flushPartialTurn records whatever the in-flight turn accumulated when the
// session ended mid-turn. Called only after both relay tasks have stopped.
func (s *Session) flushPartialTurn() {
	if !s.acc.empty() {
		s.log.append(s.acc.flush())
	}
}
