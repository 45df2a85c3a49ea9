package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/voxbridge/voxbridge/pkg/core"
)

// WebhookRecorder posts call events as JSON to an external collector.
type WebhookRecorder struct {
	url    string
	client *http.Client
}

// NewWebhookRecorder targets the given collector URL.
func NewWebhookRecorder(url string) *WebhookRecorder {
	return &WebhookRecorder{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

type webhookPayload struct {
	Event      string `json:"event"`
	CallSID    string `json:"call_sid"`
	ToNumber   string `json:"to_number,omitempty"`
	Transcript string `json:"transcript,omitempty"`
	Timestamp  string `json:"timestamp"`
}

// CallStarted implements Recorder.
func (r *WebhookRecorder) CallStarted(ctx context.Context, start CallStart) error {
	ts := start.StartedAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return r.post(ctx, webhookPayload{
		Event:     "call.started",
		CallSID:   start.CallSID,
		ToNumber:  start.ToNumber,
		Timestamp: ts.Format(time.RFC3339),
	})
}

// CallEnded implements Recorder.
func (r *WebhookRecorder) CallEnded(ctx context.Context, record CallRecord) error {
	ts := record.EndedAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return r.post(ctx, webhookPayload{
		Event:      "call.ended",
		CallSID:    record.CallSID,
		Transcript: record.Transcript,
		Timestamp:  ts.Format(time.RFC3339),
	})
}

func (r *WebhookRecorder) post(ctx context.Context, payload webhookPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return core.NewPersistenceError("marshal webhook payload", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return core.NewPersistenceError("build webhook request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return core.NewPersistenceError("deliver webhook", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return core.NewPersistenceError(fmt.Sprintf("webhook collector returned status %d", resp.StatusCode), nil)
	}
	return nil
}
