// Package config loads gateway configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Backend selects which realtime AI endpoint handles calls.
type Backend string

const (
	BackendOpenAI Backend = "openai"
	BackendGemini Backend = "gemini"
)

type Config struct {
	Addr string

	// PublicHost is the externally reachable hostname used in the call-control
	// document's stream URL. No scheme, no trailing slash.
	PublicHost string

	Backend Backend

	OpenAIAPIKey string
	OpenAIModel  string
	GeminiAPIKey string
	GeminiModel  string

	Voice        string
	SystemPrompt string
	Greeting     string

	// Twilio REST credentials, used by the dial-out tool.
	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFromNumber string

	// Recording targets. DatabaseURL takes precedence over RecorderURL when
	// both are set.
	DatabaseURL string
	RecorderURL string

	// Seconds of silence before the stream connects, giving the callee time to
	// pick up the handset.
	AnswerPauseSeconds int

	EnableMarks bool

	WSPingInterval time.Duration
	WSWriteTimeout time.Duration

	MaxCallDuration time.Duration

	MetricsEnabled bool

	ReadHeaderTimeout   time.Duration
	ReadTimeout         time.Duration
	ShutdownGracePeriod time.Duration
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:                envOr("VOXBRIDGE_ADDR", ":8080"),
		PublicHost:          envOr("VOXBRIDGE_PUBLIC_HOST", ""),
		Backend:             Backend(envOr("VOXBRIDGE_BACKEND", string(BackendOpenAI))),
		OpenAIAPIKey:        os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:         envOr("VOXBRIDGE_OPENAI_MODEL", ""),
		GeminiAPIKey:        os.Getenv("GEMINI_API_KEY"),
		GeminiModel:         envOr("VOXBRIDGE_GEMINI_MODEL", ""),
		Voice:               envOr("VOXBRIDGE_VOICE", ""),
		SystemPrompt:        envOr("VOXBRIDGE_SYSTEM_PROMPT", ""),
		Greeting:            envOr("VOXBRIDGE_GREETING", ""),
		TwilioAccountSID:    os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:     os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFromNumber:    os.Getenv("TWILIO_FROM_NUMBER"),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		RecorderURL:         envOr("VOXBRIDGE_RECORDER_URL", ""),
		AnswerPauseSeconds:  envIntOr("VOXBRIDGE_ANSWER_PAUSE_SECONDS", 1),
		EnableMarks:         envBoolOr("VOXBRIDGE_ENABLE_MARKS", true),
		WSPingInterval:      envDurationOr("VOXBRIDGE_WS_PING_INTERVAL", 20*time.Second),
		WSWriteTimeout:      envDurationOr("VOXBRIDGE_WS_WRITE_TIMEOUT", 5*time.Second),
		MaxCallDuration:     envDurationOr("VOXBRIDGE_MAX_CALL_DURATION", 30*time.Minute),
		MetricsEnabled:      envBoolOr("VOXBRIDGE_METRICS_ENABLED", true),
		ReadHeaderTimeout:   envDurationOr("VOXBRIDGE_READ_HEADER_TIMEOUT", 10*time.Second),
		ReadTimeout:         envDurationOr("VOXBRIDGE_READ_TIMEOUT", 0),
		ShutdownGracePeriod: envDurationOr("VOXBRIDGE_SHUTDOWN_GRACE_PERIOD", 30*time.Second),
	}

	switch cfg.Backend {
	case BackendOpenAI, BackendGemini:
	default:
		return Config{}, fmt.Errorf("VOXBRIDGE_BACKEND must be one of openai|gemini")
	}
	if cfg.Backend == BackendOpenAI && cfg.OpenAIAPIKey == "" {
		return Config{}, fmt.Errorf("OPENAI_API_KEY must be set when VOXBRIDGE_BACKEND=openai")
	}
	if cfg.Backend == BackendGemini && cfg.GeminiAPIKey == "" {
		return Config{}, fmt.Errorf("GEMINI_API_KEY must be set when VOXBRIDGE_BACKEND=gemini")
	}
	if cfg.AnswerPauseSeconds < 0 {
		return Config{}, fmt.Errorf("VOXBRIDGE_ANSWER_PAUSE_SECONDS must be >= 0")
	}
	if cfg.WSPingInterval <= 0 {
		return Config{}, fmt.Errorf("VOXBRIDGE_WS_PING_INTERVAL must be > 0")
	}
	if cfg.WSWriteTimeout <= 0 {
		return Config{}, fmt.Errorf("VOXBRIDGE_WS_WRITE_TIMEOUT must be > 0")
	}
	if cfg.MaxCallDuration < 0 {
		return Config{}, fmt.Errorf("VOXBRIDGE_MAX_CALL_DURATION must be >= 0")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("VOXBRIDGE_READ_HEADER_TIMEOUT must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, fmt.Errorf("VOXBRIDGE_SHUTDOWN_GRACE_PERIOD must be > 0")
	}

	cfg.PublicHost = strings.TrimSuffix(strings.TrimPrefix(strings.TrimPrefix(cfg.PublicHost, "https://"), "http://"), "/")

	return cfg, nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envBoolOr(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	switch strings.ToLower(raw) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return def
	}
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}
