// Command dialout places an outbound call through the provider REST API and
// points it at a running voice bridge.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/voxbridge/voxbridge/pkg/store"
	"github.com/voxbridge/voxbridge/pkg/twilio"
)

type dialConfig struct {
	accountSID  string
	authToken   string
	fromNumber  string
	publicHost  string
	databaseURL string
	recorderURL string
}

func loadDialConfig() (dialConfig, error) {
	cfg := dialConfig{
		accountSID:  os.Getenv("TWILIO_ACCOUNT_SID"),
		authToken:   os.Getenv("TWILIO_AUTH_TOKEN"),
		fromNumber:  os.Getenv("TWILIO_FROM_NUMBER"),
		publicHost:  strings.TrimSpace(os.Getenv("VOXBRIDGE_PUBLIC_HOST")),
		databaseURL: os.Getenv("DATABASE_URL"),
		recorderURL: strings.TrimSpace(os.Getenv("VOXBRIDGE_RECORDER_URL")),
	}
	if cfg.accountSID == "" || cfg.authToken == "" {
		return dialConfig{}, fmt.Errorf("TWILIO_ACCOUNT_SID and TWILIO_AUTH_TOKEN must be set")
	}
	if cfg.fromNumber == "" {
		return dialConfig{}, fmt.Errorf("TWILIO_FROM_NUMBER must be set")
	}
	cfg.publicHost = strings.TrimSuffix(strings.TrimPrefix(strings.TrimPrefix(cfg.publicHost, "https://"), "http://"), "/")
	return cfg, nil
}

func run(ctx context.Context, args []string, logger *slog.Logger) error {
	fs := flag.NewFlagSet("dialout", flag.ContinueOnError)
	to := fs.String("to", "", "destination number in E.164 form")
	handlerURL := fs.String("handler-url", "", "call webhook URL (default derived from VOXBRIDGE_PUBLIC_HOST)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *to == "" {
		return fmt.Errorf("-to is required")
	}

	cfg, err := loadDialConfig()
	if err != nil {
		return err
	}

	url := *handlerURL
	if url == "" {
		if cfg.publicHost == "" {
			return fmt.Errorf("set -handler-url or VOXBRIDGE_PUBLIC_HOST")
		}
		url = "https://" + cfg.publicHost + "/twilio/outbound_call_handler"
	}

	client := &twilio.RestClient{
		AccountSID: cfg.accountSID,
		AuthToken:  cfg.authToken,
	}

	call, err := client.CreateCall(ctx, *to, cfg.fromNumber, url)
	if err != nil {
		return fmt.Errorf("place call: %w", err)
	}
	logger.Info("call placed", "call_sid", call.SID, "status", call.Status, "to", call.To)

	recordStart(ctx, cfg, logger, call, *to)
	return nil
}

// recordStart notes the placed call in whichever store is configured.
// Best-effort: the call is already ringing regardless.
func recordStart(ctx context.Context, cfg dialConfig, logger *slog.Logger, call *twilio.Call, to string) {
	var rec store.Recorder
	switch {
	case cfg.databaseURL != "":
		pg, err := store.NewPostgresRecorder(ctx, cfg.databaseURL)
		if err != nil {
			logger.Warn("call start not recorded", "error", err)
			return
		}
		defer pg.Close()
		rec = pg
	case cfg.recorderURL != "":
		rec = store.NewWebhookRecorder(cfg.recorderURL)
	default:
		return
	}

	err := rec.CallStarted(ctx, store.CallStart{
		CallSID:   call.SID,
		ToNumber:  to,
		StartedAt: time.Now().UTC(),
	})
	if err != nil {
		logger.Warn("call start not recorded", "error", err)
	}
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "dialout: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := run(ctx, os.Args[1:], logger); err != nil {
		fmt.Fprintf(os.Stderr, "dialout: %v\n", err)
		os.Exit(1)
	}
}
