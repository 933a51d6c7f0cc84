package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"fatalwatch/internal/event"
	"fatalwatch/pkg/logger"
)

// WebhookSink posts each event as a JSON document to an alerting endpoint.
type WebhookSink struct {
	url    string
	client *http.Client
}

type webhookPayload struct {
	ID          string `json:"id"`
	Destination string `json:"destination"`
	Timestamp   string `json:"timestamp"`
	Message     string `json:"message"`
	Source      string `json:"source,omitempty"`
	Line        int64  `json:"line,omitempty"`
}

func NewWebhookSink(url string, timeout time.Duration) *WebhookSink {
	return &WebhookSink{url: url, client: &http.Client{Timeout: timeout}}
}

func (s *WebhookSink) Insert(ctx context.Context, ev event.FatalEvent, destination string) error {
	fail := func(err error) error {
		return &SinkError{Destination: destination, EventID: ev.ID, Err: err}
	}

	body, err := json.Marshal(webhookPayload{
		ID:          ev.ID,
		Destination: destination,
		Timestamp:   ev.Timestamp.UTC().Format(event.TimestampLayout),
		Message:     ev.Message,
		Source:      ev.Source,
		Line:        ev.Line,
	})
	if err != nil {
		return fail(fmt.Errorf("failed to marshal event: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fail(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", ev.ID)

	resp, err := s.client.Do(req)
	if err != nil {
		return fail(err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fail(fmt.Errorf("webhook responded %s", resp.Status))
	}

	logger.Get().Debugw("event posted", "event_id", ev.ID, "status", resp.StatusCode)
	return nil
}
