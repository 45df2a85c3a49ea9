// Package server wires the HTTP surface of the voice bridge: the call-control
// webhook, the media-stream websocket, and the operational endpoints.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/voxbridge/voxbridge/pkg/bridge"
	"github.com/voxbridge/voxbridge/pkg/core"
	"github.com/voxbridge/voxbridge/pkg/gateway/config"
	"github.com/voxbridge/voxbridge/pkg/gateway/mw"
	"github.com/voxbridge/voxbridge/pkg/gateway/sessions"
	"github.com/voxbridge/voxbridge/pkg/realtime"
	"github.com/voxbridge/voxbridge/pkg/store"
	"github.com/voxbridge/voxbridge/pkg/twilio"
)

type Server struct {
	cfg      config.Config
	logger   *slog.Logger
	mux      *http.ServeMux
	metrics  *Metrics
	recorder store.Recorder
	tracker  *sessions.Tracker
	upgrader websocket.Upgrader
	draining atomic.Bool
}

// New builds a server around the given recorder. A nil recorder disables call
// persistence.
func New(cfg config.Config, logger *slog.Logger, recorder store.Recorder) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if recorder == nil {
		recorder = store.NopRecorder{}
	}

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		mux:      http.NewServeMux(),
		metrics:  NewMetrics("voxbridge"),
		recorder: recorder,
		tracker:  sessions.NewTracker(),
		upgrader: websocket.Upgrader{
			HandshakeTimeout: 10 * time.Second,
			ReadBufferSize:   4096,
			WriteBufferSize:  4096,
			CheckOrigin: func(r *http.Request) bool {
				// The media-stream provider connects from its own infrastructure.
				return true
			},
		},
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /", s.handleIndex)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("GET /twilio/outbound_call_handler", s.handleCallControl)
	s.mux.HandleFunc("POST /twilio/outbound_call_handler", s.handleCallControl)
	s.mux.HandleFunc("GET /twilio/reply", s.handleReply)
	if s.cfg.MetricsEnabled {
		s.mux.Handle("GET /metrics", s.metrics.Handler())
	}
}

// Handler returns the mux wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, h)
	h = mw.RequestID(h)
	return h
}

// SetDraining stops the server accepting new calls.
func (s *Server) SetDraining() {
	s.draining.Store(true)
}

// ActiveCalls reports how many bridged calls are live.
func (s *Server) ActiveCalls() int {
	return s.tracker.Count()
}

// WaitCalls blocks until live calls drain or ctx expires.
func (s *Server) WaitCalls(ctx context.Context) bool {
	return s.tracker.Wait(ctx)
}

// CancelCalls force-closes every live call.
func (s *Server) CancelCalls() {
	n := s.tracker.CancelAll()
	if n > 0 {
		s.logger.Warn("force-closed live calls", "count", n)
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"message": "voice bridge is running",
		"backend": string(s.cfg.Backend),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	status := "ok"
	if s.draining.Load() {
		status = "draining"
	}
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":       status,
		"active_calls": s.tracker.Count(),
	})
}

// handleCallControl answers the provider's call webhook with the document that
// pauses briefly and then connects the media stream back to this host.
func (s *Server) handleCallControl(w http.ResponseWriter, r *http.Request) {
	host := s.cfg.PublicHost
	if host == "" {
		host = r.Host
	}
	doc, err := twilio.CallControlDocument(host, s.cfg.AnswerPauseSeconds)
	if err != nil {
		mw.WriteJSONError(w, http.StatusInternalServerError, core.NewProtocolError("render call-control document: "+err.Error()))
		return
	}
	w.Header().Set("Content-Type", "text/xml")
	_, _ = w.Write(doc)
}

// handleReply upgrades the media-stream connection and runs one bridged call
// to completion.
func (s *Server) handleReply(w http.ResponseWriter, r *http.Request) {
	if s.draining.Load() {
		mw.WriteJSONError(w, http.StatusServiceUnavailable, core.NewDisconnectedError("server is draining", nil))
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	callCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	defer conn.Close()

	ai, err := s.newRealtimeClient()
	if err != nil {
		s.logger.Error("realtime client setup failed", "error", err)
		return
	}

	reader := twilio.NewChannelReader(conn, s.logger)
	writer := twilio.NewChannelWriter(callCtx, conn, twilio.WriterConfig{
		PingInterval: s.cfg.WSPingInterval,
		WriteTimeout: s.cfg.WSWriteTimeout,
		EnableMarks:  s.cfg.EnableMarks,
	})

	sess, err := bridge.NewSession(bridge.Dependencies{
		Reader:         reader,
		Writer:         writer,
		AI:             ai,
		Logger:         s.logger,
		CloseTransport: cancel,
		OnAudioRelayed: s.metrics.RecordAudio,
	}, bridge.Config{
		MaxCallDuration: s.cfg.MaxCallDuration,
	})
	if err != nil {
		s.logger.Error("bridge session setup failed", "error", err)
		return
	}

	unregister := s.tracker.Register(uuid.NewString(), func() { _ = sess.Close() })
	defer unregister()

	s.metrics.RecordCallStart()
	started := time.Now()

	runErr := sess.Run(callCtx)

	outcome := "completed"
	if runErr != nil {
		outcome = errorOutcome(runErr)
		s.metrics.RecordError(outcome)
		s.logger.Error("bridged call ended with error", "error", runErr, "call_sid", sess.CallSID())
	}
	s.metrics.RecordCallEnd(string(s.cfg.Backend), outcome, time.Since(started))

	s.deliverRecord(sess)
}

// deliverRecord hands the transcript to the recorder. Best-effort: a recording
// failure is logged and counted, never surfaced to the call path.
func (s *Server) deliverRecord(sess *bridge.Session) {
	transcript := sess.TranscriptText()
	if transcript == "" && sess.CallSID() == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := s.recorder.CallEnded(ctx, store.CallRecord{
		CallSID:    sess.CallSID(),
		Transcript: transcript,
		EndedAt:    time.Now().UTC(),
	})
	if err != nil {
		s.metrics.RecorderFails.Inc()
		s.logger.Warn("call record delivery failed", "error", err, "call_sid", sess.CallSID())
	}
}

func (s *Server) newRealtimeClient() (realtime.Client, error) {
	switch s.cfg.Backend {
	case config.BackendOpenAI:
		return realtime.NewOpenAIClient(realtime.OpenAIConfig{
			APIKey:       s.cfg.OpenAIAPIKey,
			Model:        s.cfg.OpenAIModel,
			Voice:        s.cfg.Voice,
			Instructions: s.cfg.SystemPrompt,
			Greeting:     s.cfg.Greeting,
			Logger:       s.logger,
		}), nil
	case config.BackendGemini:
		return realtime.NewGeminiClient(realtime.GeminiConfig{
			APIKey:            s.cfg.GeminiAPIKey,
			Model:             s.cfg.GeminiModel,
			Voice:             s.cfg.Voice,
			SystemInstruction: s.cfg.SystemPrompt,
			Greeting:          s.cfg.Greeting,
			Logger:            s.logger,
		}), nil
	default:
		return nil, errors.New("unknown realtime backend: " + string(s.cfg.Backend))
	}
}

func errorOutcome(err error) string {
	var ce *core.Error
	if errors.As(err, &ce) {
		return string(ce.Type)
	}
	return "error"
}
